package handler

import (
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/meridianquant/tradecore/internal/domain"
)

// ArchiveHandler exposes the cold-storage journal archives for inspection.
type ArchiveHandler struct {
	reader domain.BlobReader
	logger *slog.Logger
}

// NewArchiveHandler creates an ArchiveHandler.
func NewArchiveHandler(reader domain.BlobReader, logger *slog.Logger) *ArchiveHandler {
	return &ArchiveHandler{
		reader: reader,
		logger: logHandler(logger, "archives"),
	}
}

// ListArchives returns metadata for archived journal files under a prefix.
// PREFIX defaults to "archive/" and is always constrained to it.
// GET /api/v1/archives?prefix=transactions
func (h *ArchiveHandler) ListArchives(w http.ResponseWriter, r *http.Request) {
	if h.reader == nil {
		writeError(w, http.StatusServiceUnavailable, "archive storage is not configured")
		return
	}
	prefix := "archive/"
	if p := r.URL.Query().Get("prefix"); p != "" {
		prefix += strings.TrimPrefix(p, "archive/")
	}

	infos, err := h.reader.List(r.Context(), prefix)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"archives": infos})
}

// GetArchive streams one archived JSONL file.
// GET /api/v1/archives/download?path=archive/transactions/2026-01.jsonl
func (h *ArchiveHandler) GetArchive(w http.ResponseWriter, r *http.Request) {
	if h.reader == nil {
		writeError(w, http.StatusServiceUnavailable, "archive storage is not configured")
		return
	}
	path := r.URL.Query().Get("path")
	if !strings.HasPrefix(path, "archive/") || strings.Contains(path, "..") {
		writeError(w, http.StatusBadRequest, "path must point inside archive/")
		return
	}

	body, err := h.reader.Get(r.Context(), path)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "application/x-ndjson")
	if _, err := io.Copy(w, body); err != nil {
		h.logger.WarnContext(r.Context(), "archive stream interrupted",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
	}
}
