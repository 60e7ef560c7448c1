package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianquant/tradecore/internal/domain"
)

func TestGetPrices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/tickers", r.URL.Path)
		require.Equal(t, "BTCUSDT,ETHUSDT", r.URL.Query().Get("symbols"))

		json.NewEncoder(w).Encode(map[string]any{
			"tickers": []map[string]any{
				{"symbol": "BTCUSDT", "price": 50000.0},
				{"symbol": "ETHUSDT", "price": 3000.0},
				{"symbol": "", "price": 1.0},
			},
		})
	}))
	defer srv.Close()

	client := NewClient(map[string]string{"binance": srv.URL}, 5*time.Second)
	prices, err := client.GetPrices(context.Background(), "binance", []string{"BTCUSDT", "ETHUSDT"})
	require.NoError(t, err)

	assert.Equal(t, map[string]float64{"BTCUSDT": 50000, "ETHUSDT": 3000}, prices)
}

func TestGetPricesEmptySymbols(t *testing.T) {
	client := NewClient(map[string]string{"binance": "http://unused"}, time.Second)
	prices, err := client.GetPrices(context.Background(), "binance", nil)
	require.NoError(t, err)
	assert.Empty(t, prices)
}

func TestGetPricesUnknownExchange(t *testing.T) {
	client := NewClient(map[string]string{}, time.Second)
	_, err := client.GetPrices(context.Background(), "bogus", []string{"BTCUSDT"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no base URL configured")
}

func TestPlaceMarketOrderSignsRequest(t *testing.T) {
	creds := Credentials{APIKey: "key-1", APISecret: "secret-1", Passphrase: "phrase"}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/v1/orders", r.URL.Path)
		require.Equal(t, "key-1", r.Header.Get("X-API-KEY"))
		require.Equal(t, "phrase", r.Header.Get("X-API-PASSPHRASE"))

		ts := r.Header.Get("X-API-TIMESTAMP")
		require.NotEmpty(t, ts)

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)

		// Recompute the signature the way the client documents it.
		mac := hmac.New(sha256.New, []byte(creds.APISecret))
		mac.Write([]byte(ts + http.MethodPost + "/api/v1/orders"))
		mac.Write(body)
		want := base64.StdEncoding.EncodeToString(mac.Sum(nil))
		require.Equal(t, want, r.Header.Get("X-API-SIGN"))

		var req OrderRequest
		require.NoError(t, json.Unmarshal(body, &req))
		assert.Equal(t, "MARKET", req.Type)
		assert.Equal(t, "BTCUSDT", req.Symbol)

		json.NewEncoder(w).Encode(OrderResult{
			ExchangeOrderID: "ex-1",
			Status:          "FILLED",
			FilledQuantity:  req.Quantity,
			FilledPrice:     50000,
			Fee:             0.1,
		})
	}))
	defer srv.Close()

	client := NewClient(map[string]string{"binance": srv.URL}, 5*time.Second)
	result, err := client.PlaceMarketOrder(context.Background(), "binance", creds, OrderRequest{
		Symbol:        "BTCUSDT",
		Side:          "SELL",
		PositionSide:  "LONG",
		Quantity:      2,
		ClientOrderID: "c-1",
	})
	require.NoError(t, err)

	assert.Equal(t, "ex-1", result.ExchangeOrderID)
	assert.Equal(t, 2.0, result.FilledQuantity)
	assert.Equal(t, 50000.0, result.FilledPrice)
}

func TestErrorStatusMapping(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr error
	}{
		{"not found", http.StatusNotFound, domain.ErrNotFound},
		{"unauthorized", http.StatusUnauthorized, domain.ErrUnauthorized},
		{"forbidden", http.StatusForbidden, domain.ErrUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				json.NewEncoder(w).Encode(map[string]string{"code": "E1", "message": "nope"})
			}))
			defer srv.Close()

			client := NewClient(map[string]string{"binance": srv.URL}, time.Second)
			_, err := client.GetPrices(context.Background(), "binance", []string{"BTCUSDT"})
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}
