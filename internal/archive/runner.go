// Package archive moves old journal rows from the database to cold storage
// on a fixed interval.
package archive

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/meridianquant/tradecore/internal/domain"
)

// Runner periodically exports journal rows older than the retention window.
type Runner struct {
	archiver      domain.Archiver
	interval      time.Duration
	retentionDays int
	logger        *slog.Logger
}

// NewRunner creates a Runner.
func NewRunner(archiver domain.Archiver, interval time.Duration, retentionDays int, logger *slog.Logger) *Runner {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &Runner{
		archiver:      archiver,
		interval:      interval,
		retentionDays: retentionDays,
		logger:        logger.With("component", "archive_runner"),
	}
}

// RunOnce executes a single archive pass over both journals.
func (r *Runner) RunOnce(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-time.Duration(r.retentionDays) * 24 * time.Hour)
	r.logger.InfoContext(ctx, "starting archive run",
		slog.Time("cutoff", cutoff),
		slog.Int("retention_days", r.retentionDays),
	)

	txns, err := r.archiver.ArchiveTransactions(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("archive: transactions before %v: %w", cutoff, err)
	}
	changes, err := r.archiver.ArchivePositionChanges(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("archive: position changes before %v: %w", cutoff, err)
	}

	r.logger.InfoContext(ctx, "archive run complete",
		slog.Int64("transactions_archived", txns),
		slog.Int64("position_changes_archived", changes),
	)
	return nil
}

// Run executes archive passes on the configured interval until the context is
// cancelled. A failed pass is logged and retried on the next tick.
func (r *Runner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := r.RunOnce(ctx); err != nil {
				r.logger.ErrorContext(ctx, "archive run failed", slog.String("error", err.Error()))
			}
		}
	}
}
