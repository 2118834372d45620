// Package notify delivers operator alerts (entries, closes, cooldown trips,
// gateway failures) over one or more channels. Events can be filtered so an
// operator receives only the alert types they care about.
package notify

import (
	"context"
	"log/slog"
	"strings"
)

// Known event names emitted by the trading loop.
const (
	EventPositionClosed = "position_closed"
	EventCooldown       = "cooldown"
	EventRegimePause    = "regime_pause"
	EventError          = "error"
)

// Sender is one delivery channel.
type Sender interface {
	// Send delivers a notification with the given title and message body.
	Send(ctx context.Context, title, message string) error
	// Name returns a human-readable identifier for the sender (e.g. "telegram").
	Name() string
}

// Notifier fans a notification out to every registered sender. It keeps a set
// of allowed event names; Notify drops events outside the set. Delivery
// failures are logged, never propagated: an unreachable webhook must not stop
// the trading loop.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier for the given senders. An empty events list
// allows every event type.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		allowed[strings.TrimSpace(e)] = true
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Notify delivers the message to all senders if the event type is allowed.
// The event name doubles as the message title.
func (n *Notifier) Notify(ctx context.Context, event, message string) {
	if len(n.events) > 0 && !n.events[event] {
		return
	}
	n.dispatch(ctx, event, message)
}

// dispatch sends to every sender; one failing sender does not stop the rest.
func (n *Notifier) dispatch(ctx context.Context, title, message string) {
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.Warn("sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
		}
	}
}
