package executor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianquant/tradecore/internal/exchange"
)

type fakePlacer struct {
	result   exchange.OrderResult
	err      error
	gotCreds exchange.Credentials
	gotReq   exchange.OrderRequest
}

func (p *fakePlacer) PlaceMarketOrder(_ context.Context, _ string, creds exchange.Credentials, req exchange.OrderRequest) (exchange.OrderResult, error) {
	p.gotCreds = creds
	p.gotReq = req
	return p.result, p.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestExecuteClose(t *testing.T) {
	placer := &fakePlacer{result: exchange.OrderResult{
		ExchangeOrderID: "ex-1",
		Status:          "FILLED",
		FilledQuantity:  2,
		FilledPrice:     101.5,
	}}

	// No configured fallback: the request carries the account's keys.
	closer := NewLocalCloser(placer, nil, testLogger())
	resp, err := closer.ExecuteClose(context.Background(), CloseRequest{
		PositionID:   "pos-1",
		Symbol:       "BTCUSDT",
		Exchange:     "binance",
		Side:         "SELL",
		PositionSide: "LONG",
		Quantity:     2,
		Reason:       "STOP_LOSS",
		APIKey:       "k",
		APISecret:    "s",
		Passphrase:   "p",
	})
	require.NoError(t, err)

	assert.Equal(t, "ex-1", resp.ExchangeOrderID)
	assert.Equal(t, 2.0, resp.FilledQuantity)
	assert.Equal(t, 101.5, resp.FilledPrice)
	assert.NotEmpty(t, resp.OrderID)
	assert.NotEmpty(t, resp.FillID)

	assert.Equal(t, "k", placer.gotCreds.APIKey)
	assert.Equal(t, "s", placer.gotCreds.APISecret)
	assert.Equal(t, "p", placer.gotCreds.Passphrase)
	assert.Equal(t, "MARKET", placer.gotReq.Type)
	assert.Equal(t, "LONG", placer.gotReq.PositionSide)
	assert.Equal(t, resp.OrderID, placer.gotReq.ClientOrderID)
}

func TestExecuteCloseUsesRequestCredentialsOverFallback(t *testing.T) {
	placer := &fakePlacer{result: exchange.OrderResult{
		FilledQuantity: 1,
		FilledPrice:    100,
	}}
	fallback := map[string]exchange.Credentials{
		"binance": {APIKey: "node-key", APISecret: "node-secret"},
	}

	closer := NewLocalCloser(placer, fallback, testLogger())
	_, err := closer.ExecuteClose(context.Background(), CloseRequest{
		Symbol: "BTCUSDT", Exchange: "binance", Side: "SELL", Quantity: 1,
		APIKey: "account-key", APISecret: "account-secret",
	})
	require.NoError(t, err)
	assert.Equal(t, "account-key", placer.gotCreds.APIKey, "the request's keys win over the node's")
}

func TestExecuteCloseFallsBackToConfiguredCredentials(t *testing.T) {
	placer := &fakePlacer{result: exchange.OrderResult{
		FilledQuantity: 1,
		FilledPrice:    100,
	}}
	fallback := map[string]exchange.Credentials{
		"binance": {APIKey: "node-key", APISecret: "node-secret"},
	}

	closer := NewLocalCloser(placer, fallback, testLogger())
	_, err := closer.ExecuteClose(context.Background(), CloseRequest{
		Symbol: "BTCUSDT", Exchange: "binance", Side: "SELL", Quantity: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, "node-key", placer.gotCreds.APIKey)
}

func TestExecuteCloseBuyClosesShort(t *testing.T) {
	placer := &fakePlacer{result: exchange.OrderResult{
		ExchangeOrderID: "ex-1",
		FilledQuantity:  1,
		FilledPrice:     99,
	}}
	closer := NewLocalCloser(placer, nil, testLogger())

	// Legacy requests without an explicit position side derive it from the
	// order side.
	_, err := closer.ExecuteClose(context.Background(), CloseRequest{
		Symbol: "ETHUSDT", Exchange: "okx", Side: "BUY", Quantity: 1,
		APIKey: "k", APISecret: "s",
	})
	require.NoError(t, err)
	assert.Equal(t, "SHORT", placer.gotReq.PositionSide)
}

func TestExecuteCloseWithoutAnyCredentials(t *testing.T) {
	closer := NewLocalCloser(&fakePlacer{}, nil, testLogger())

	_, err := closer.ExecuteClose(context.Background(), CloseRequest{Exchange: "bogus"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "carries no credentials")
}

func TestExecuteCloseRejectsEmptyExecution(t *testing.T) {
	placer := &fakePlacer{result: exchange.OrderResult{Status: "REJECTED"}}
	closer := NewLocalCloser(placer, map[string]exchange.Credentials{"binance": {}}, testLogger())

	_, err := closer.ExecuteClose(context.Background(), CloseRequest{Exchange: "binance", Side: "SELL", Quantity: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no execution")
}

func TestExecuteClosePropagatesExchangeError(t *testing.T) {
	placer := &fakePlacer{err: errors.New("insufficient margin")}
	closer := NewLocalCloser(placer, map[string]exchange.Credentials{"binance": {}}, testLogger())

	_, err := closer.ExecuteClose(context.Background(), CloseRequest{Exchange: "binance", Side: "SELL", Quantity: 1})
	require.ErrorContains(t, err, "insufficient margin")
}
