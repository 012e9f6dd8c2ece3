package services

import (
	"context"
	"fmt"
	"log/slog"

	pubnub "github.com/pubnub/go/v7"
)

// Notification is pushed to the user's own session channel.
type Notification struct {
	Type      string `json:"type"`
	Reference string `json:"reference,omitempty"`
	TicketID  string `json:"ticket_id,omitempty"`
	EventID   string `json:"event_id,omitempty"`
	TierCode  string `json:"tier_code,omitempty"`
	Coins     int64  `json:"coins,omitempty"`
}

const (
	NotifyTicketIssued        = "ticket_issued"
	NotifyMembershipActivated = "membership_activated"
	NotifyCoinsCredited       = "coins_credited"
)

// Notifier delivers best-effort user notifications. Errors are never fatal to
// the caller.
type Notifier interface {
	Notify(ctx context.Context, userID string, n Notification) error
}

type PubNubNotifier struct {
	pn     *pubnub.PubNub
	logger *slog.Logger
}

func NewPubNubNotifier(pn *pubnub.PubNub, logger *slog.Logger) *PubNubNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &PubNubNotifier{pn: pn, logger: logger}
}

// Notify publishes to user-<id> in the background and returns immediately.
func (n *PubNubNotifier) Notify(ctx context.Context, userID string, msg Notification) error {
	if userID == "" {
		return fmt.Errorf("notify: empty user id")
	}
	channel := fmt.Sprintf("user-%s", userID)

	go func() {
		_, st, err := n.pn.Publish().
			Channel(channel).
			Message(msg).
			Execute()
		if err != nil {
			n.logger.Warn("pubnub publish failed", "error", err, "channel", channel, "status_code", st.StatusCode)
		}
	}()

	return nil
}

// NopNotifier drops every notification.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, string, Notification) error { return nil }
