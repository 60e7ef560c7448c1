package archive

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeArchiver struct {
	txnCalls    []time.Time
	changeCalls []time.Time
	txnErr      error
}

func (a *fakeArchiver) ArchiveTransactions(_ context.Context, before time.Time) (int64, error) {
	a.txnCalls = append(a.txnCalls, before)
	return 3, a.txnErr
}

func (a *fakeArchiver) ArchivePositionChanges(_ context.Context, before time.Time) (int64, error) {
	a.changeCalls = append(a.changeCalls, before)
	return 1, nil
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunOnceArchivesBothJournals(t *testing.T) {
	archiver := &fakeArchiver{}
	r := NewRunner(archiver, time.Hour, 90, discard())

	require.NoError(t, r.RunOnce(context.Background()))
	require.Len(t, archiver.txnCalls, 1)
	require.Len(t, archiver.changeCalls, 1)

	// Cutoff is retention_days in the past.
	want := time.Now().UTC().Add(-90 * 24 * time.Hour)
	assert.WithinDuration(t, want, archiver.txnCalls[0], time.Minute)
	assert.Equal(t, archiver.txnCalls[0], archiver.changeCalls[0])
}

func TestRunOnceStopsOnTransactionError(t *testing.T) {
	archiver := &fakeArchiver{txnErr: errors.New("upload failed")}
	r := NewRunner(archiver, time.Hour, 30, discard())

	err := r.RunOnce(context.Background())
	require.Error(t, err)
	assert.Empty(t, archiver.changeCalls, "second journal is not attempted after a failure")
}

func TestRunStopsOnContextCancel(t *testing.T) {
	r := NewRunner(&fakeArchiver{}, time.Hour, 30, discard())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := r.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
}
