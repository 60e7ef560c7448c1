package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	name   string
	err    error
	titles []string
}

func (s *fakeSender) Send(_ context.Context, title, _ string) error {
	s.titles = append(s.titles, title)
	return s.err
}

func (s *fakeSender) Name() string { return s.name }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifyFiltersEvents(t *testing.T) {
	sender := &fakeSender{name: "telegram"}
	n := NewNotifier([]Sender{sender}, []string{"close_failed"}, discardLogger())
	ctx := context.Background()

	require.NoError(t, n.Notify(ctx, "close_quantity_mismatch", "Mismatch", "ignored"))
	assert.Empty(t, sender.titles)

	require.NoError(t, n.Notify(ctx, "close_failed", "Close failed", "details"))
	assert.Equal(t, []string{"Close failed"}, sender.titles)
}

func TestNotifyEmptyFilterPassesEverything(t *testing.T) {
	sender := &fakeSender{name: "discord"}
	n := NewNotifier([]Sender{sender}, nil, discardLogger())

	require.NoError(t, n.Notify(context.Background(), "settlement_failed", "Unsettled fill", "details"))
	assert.Len(t, sender.titles, 1)
}

func TestNotifyFailingChannelDoesNotBlockOthers(t *testing.T) {
	broken := &fakeSender{name: "telegram", err: errors.New("bot token revoked")}
	working := &fakeSender{name: "discord"}
	n := NewNotifier([]Sender{broken, working}, nil, discardLogger())

	err := n.Notify(context.Background(), "close_failed", "Close failed", "details")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "telegram")
	assert.Len(t, working.titles, 1, "the healthy channel still delivers")
}

func TestNotifyWithoutSenders(t *testing.T) {
	n := NewNotifier(nil, nil, discardLogger())
	require.NoError(t, n.Notify(context.Background(), "close_failed", "t", "m"))
}
