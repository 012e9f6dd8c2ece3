package store

import (
	"context"
	"fmt"

	"fanzone-tickets/models"

	"github.com/pocketbase/dbx"
)

// InsertScanLog appends an audit row. Scan logs are never updated.
func InsertScanLog(ctx context.Context, db dbx.Builder, l *models.ScanLog) error {
	var ticketID any
	if l.TicketID != nil {
		ticketID = *l.TicketID
	}
	_, err := db.Insert("scan_logs", dbx.Params{
		"id":                 l.ID,
		"ticket_id":          ticketID,
		"event_id":           l.EventID,
		"operator_id":        l.OperatorID,
		"result":             l.Result,
		"reason":             l.Reason,
		"device_fingerprint": l.DeviceFingerprint,
		"location_hint":      l.LocationHint,
		"scanned_at":         l.ScannedAt,
	}).WithContext(ctx).Execute()
	if err != nil {
		return fmt.Errorf("insert scan log: %w", err)
	}
	return nil
}

func ScanLogsForEvent(ctx context.Context, db dbx.Builder, eventID string, limit int64) ([]*models.ScanLog, error) {
	logs := []*models.ScanLog{}
	err := db.Select("*").
		From("scan_logs").
		Where(dbx.HashExp{"event_id": eventID}).
		OrderBy("scanned_at DESC", "id DESC").
		Limit(limit).
		WithContext(ctx).
		All(&logs)
	if err != nil {
		return nil, fmt.Errorf("scan logs: %w", err)
	}
	return logs, nil
}

// ScanLogsForTicket is used by tests and support tooling; a nil id selects
// the unresolved scans.
func ScanLogsForTicket(ctx context.Context, db dbx.Builder, ticketID *string) ([]*models.ScanLog, error) {
	logs := []*models.ScanLog{}
	q := db.Select("*").From("scan_logs")
	if ticketID == nil {
		q = q.Where(dbx.NewExp("ticket_id IS NULL"))
	} else {
		q = q.Where(dbx.HashExp{"ticket_id": *ticketID})
	}
	err := q.OrderBy("scanned_at ASC", "id ASC").WithContext(ctx).All(&logs)
	if err != nil {
		return nil, fmt.Errorf("scan logs: %w", err)
	}
	return logs, nil
}
