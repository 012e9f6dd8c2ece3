package models

import (
	"github.com/pocketbase/pocketbase/tools/types"
)

const (
	ScanAdmitted  = "admitted"
	ScanDuplicate = "duplicate"
	ScanInvalid   = "invalid"
)

// ScanLog is append-only. TicketID is nil when the token did not resolve.
type ScanLog struct {
	ID                string         `db:"id" json:"id"`
	TicketID          *string        `db:"ticket_id" json:"ticket_id"`
	EventID           string         `db:"event_id" json:"event_id,omitempty"`
	OperatorID        string         `db:"operator_id" json:"operator_id"`
	Result            string         `db:"result" json:"result"` // admitted, duplicate, invalid
	Reason            string         `db:"reason" json:"reason,omitempty"`
	DeviceFingerprint string         `db:"device_fingerprint" json:"device_fingerprint,omitempty"`
	LocationHint      string         `db:"location_hint" json:"location_hint,omitempty"`
	ScannedAt         types.DateTime `db:"scanned_at" json:"scanned_at"`
}
