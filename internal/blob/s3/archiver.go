package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/meridianquant/tradecore/internal/domain"
	"github.com/meridianquant/tradecore/internal/metrics"
)

// TransactionArchiveStore provides read access to ledger transactions for
// archival purposes.
type TransactionArchiveStore interface {
	// ListBefore returns all transactions created strictly before the cutoff.
	ListBefore(ctx context.Context, before time.Time) ([]domain.Transaction, error)
}

// PositionChangeArchiveStore provides read access to position change journal
// rows for archival purposes.
type PositionChangeArchiveStore interface {
	// ListBefore returns all changes created strictly before the cutoff.
	ListBefore(ctx context.Context, before time.Time) ([]domain.PositionChange, error)
}

// ArchiveImpl implements domain.Archiver by querying the journal stores for
// old rows, serializing them to JSONL, and uploading the result to S3.
//
// Deletion of the archived rows from the primary store is intentionally NOT
// performed here. That is a separate, explicit step to be executed after the
// archive has been verified.
type ArchiveImpl struct {
	writer  domain.BlobWriter
	txns    TransactionArchiveStore
	changes PositionChangeArchiveStore
	audit   domain.AuditStore
	metrics *metrics.Metrics
}

// NewArchiver creates a new ArchiveImpl. metrics may be nil.
func NewArchiver(
	writer domain.BlobWriter,
	txns TransactionArchiveStore,
	changes PositionChangeArchiveStore,
	audit domain.AuditStore,
	m *metrics.Metrics,
) *ArchiveImpl {
	return &ArchiveImpl{
		writer:  writer,
		txns:    txns,
		changes: changes,
		audit:   audit,
		metrics: m,
	}
}

var _ domain.Archiver = (*ArchiveImpl)(nil)

// ArchiveTransactions exports all ledger transactions before the cutoff to
// archive/transactions/YYYY-MM.jsonl and returns the exported row count.
func (a *ArchiveImpl) ArchiveTransactions(ctx context.Context, before time.Time) (int64, error) {
	txns, err := a.txns.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive transactions query: %w", err)
	}
	if len(txns) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(txns)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive transactions marshal: %w", err)
	}
	return a.upload(ctx, "transactions", buf, int64(len(txns)), before)
}

// ArchivePositionChanges exports all position change rows before the cutoff
// to archive/position_changes/YYYY-MM.jsonl and returns the exported count.
func (a *ArchiveImpl) ArchivePositionChanges(ctx context.Context, before time.Time) (int64, error) {
	changes, err := a.changes.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive position changes query: %w", err)
	}
	if len(changes) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(changes)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive position changes marshal: %w", err)
	}
	return a.upload(ctx, "position_changes", buf, int64(len(changes)), before)
}

// upload writes one JSONL archive object, bumps the archive counter and
// records the export in the audit log.
func (a *ArchiveImpl) upload(ctx context.Context, table string, buf []byte, count int64, before time.Time) (int64, error) {
	path := archivePath(table, before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive %s upload: %w", table, err)
	}

	if a.metrics != nil {
		a.metrics.ArchivedRowsTotal.WithLabelValues(table).Add(float64(count))
	}
	if err := a.audit.Log(ctx, "archive."+table, map[string]any{
		"path":   path,
		"count":  count,
		"before": before.Format(time.RFC3339),
	}); err != nil {
		return count, fmt.Errorf("s3blob: archive %s audit log: %w", table, err)
	}
	return count, nil
}

// archivePath builds the S3 key for an archive file, partitioned by the
// year-month of the cutoff time.
//
//	archive/transactions/2026-01.jsonl
//	archive/position_changes/2026-01.jsonl
func archivePath(table string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", table, before.Format("2006-01"))
}

// marshalJSONL serialises a slice of values as newline-delimited JSON (JSONL).
// Each element is marshalled as a single compact JSON line followed by '\n'.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
