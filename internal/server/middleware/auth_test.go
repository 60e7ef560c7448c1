package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAuth(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name       string
		apiKey     string
		header     string
		value      string
		wantStatus int
	}{
		{"bearer token accepted", "k3y", "Authorization", "Bearer k3y", http.StatusOK},
		{"api key header accepted", "k3y", "X-API-Key", "k3y", http.StatusOK},
		{"wrong token rejected", "k3y", "Authorization", "Bearer other", http.StatusUnauthorized},
		{"missing token rejected", "k3y", "", "", http.StatusUnauthorized},
		{"empty key disables the guard", "", "", "", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := Auth(tt.apiKey)(next)

			req := httptest.NewRequest(http.MethodGet, "/api/v1/positions", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestCORS(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	t.Run("allowed origin gets headers", func(t *testing.T) {
		handler := CORS([]string{"https://ops.example.com"})(next)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/positions", nil)
		req.Header.Set("Origin", "https://ops.example.com")

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "https://ops.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("unlisted origin gets no headers", func(t *testing.T) {
		handler := CORS([]string{"https://ops.example.com"})(next)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/positions", nil)
		req.Header.Set("Origin", "https://evil.example.com")

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("preflight short-circuits", func(t *testing.T) {
		handler := CORS(nil)(next)

		req := httptest.NewRequest(http.MethodOptions, "/api/v1/positions", nil)
		req.Header.Set("Origin", "https://anywhere.example.com")

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "https://anywhere.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	})
}
