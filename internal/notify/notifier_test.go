package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

type recordingSender struct {
	name     string
	err      error
	messages []string
}

func (s *recordingSender) Send(_ context.Context, title, message string) error {
	if s.err != nil {
		return s.err
	}
	s.messages = append(s.messages, title+": "+message)
	return nil
}

func (s *recordingSender) Name() string { return s.name }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifyFiltersEvents(t *testing.T) {
	s := &recordingSender{name: "test"}
	n := NewNotifier([]Sender{s}, []string{EventPositionClosed, EventError}, discardLogger())
	ctx := context.Background()

	n.Notify(ctx, EventPositionClosed, "BTCUSDT closed, pnl 1.2500")
	n.Notify(ctx, EventCooldown, "3 losses, pausing")
	n.Notify(ctx, EventError, "gateway unreachable")

	assert.Equal(t, []string{
		"position_closed: BTCUSDT closed, pnl 1.2500",
		"error: gateway unreachable",
	}, s.messages)
}

func TestNotifyEmptyFilterAllowsAll(t *testing.T) {
	s := &recordingSender{name: "test"}
	n := NewNotifier([]Sender{s}, nil, discardLogger())

	n.Notify(context.Background(), EventRegimePause, "crash z triggered")
	assert.Len(t, s.messages, 1)
}

func TestNotifyFansOutPastFailures(t *testing.T) {
	broken := &recordingSender{name: "broken", err: errors.New("webhook 500")}
	healthy := &recordingSender{name: "healthy"}
	n := NewNotifier([]Sender{broken, healthy}, nil, discardLogger())

	// The failing sender must not stop delivery to the rest.
	n.Notify(context.Background(), EventError, "still delivered")
	assert.Len(t, healthy.messages, 1)
}
