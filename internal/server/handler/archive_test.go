package handler

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianquant/tradecore/internal/domain"
)

type fakeBlobReader struct {
	objects   map[string]string
	gotPrefix string
}

func (r *fakeBlobReader) Get(_ context.Context, path string) (io.ReadCloser, error) {
	data, ok := r.objects[path]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(strings.NewReader(data)), nil
}

func (r *fakeBlobReader) List(_ context.Context, prefix string) ([]domain.BlobInfo, error) {
	r.gotPrefix = prefix
	var infos []domain.BlobInfo
	for path, data := range r.objects {
		if strings.HasPrefix(path, prefix) {
			infos = append(infos, domain.BlobInfo{
				Path:         path,
				Size:         int64(len(data)),
				LastModified: time.Now(),
			})
		}
	}
	return infos, nil
}

func (r *fakeBlobReader) Exists(_ context.Context, path string) (bool, error) {
	_, ok := r.objects[path]
	return ok, nil
}

func TestListArchivesConstrainsPrefix(t *testing.T) {
	reader := &fakeBlobReader{objects: map[string]string{
		"archive/transactions/2026-01.jsonl": "{}",
	}}
	h := NewArchiveHandler(reader, nodeTestLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/archives?prefix=../secrets", nil)
	rec := httptest.NewRecorder()
	h.ListArchives(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(reader.gotPrefix, "archive/"), "prefix stays under archive/")
}

func TestGetArchiveStreamsFile(t *testing.T) {
	reader := &fakeBlobReader{objects: map[string]string{
		"archive/transactions/2026-01.jsonl": `{"id":"tx-1"}` + "\n",
	}}
	h := NewArchiveHandler(reader, nodeTestLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/archives/download?path=archive/transactions/2026-01.jsonl", nil)
	rec := httptest.NewRecorder()
	h.GetArchive(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/x-ndjson", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "tx-1")
}

func TestGetArchiveRejectsOutsidePaths(t *testing.T) {
	h := NewArchiveHandler(&fakeBlobReader{}, nodeTestLogger())

	for _, path := range []string{
		"secrets/credentials",
		"archive/../secrets",
		"",
	} {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/archives/download?path="+path, nil)
		rec := httptest.NewRecorder()
		h.GetArchive(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "path %q", path)
	}
}

func TestGetArchiveMissingFile(t *testing.T) {
	h := NewArchiveHandler(&fakeBlobReader{objects: map[string]string{}}, nodeTestLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/archives/download?path=archive/transactions/1999-01.jsonl", nil)
	rec := httptest.NewRecorder()
	h.GetArchive(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
