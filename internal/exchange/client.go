// Package exchange implements the REST client for upstream derivatives
// exchanges. One Client serves every account; credentials are passed per call
// because each account signs with its own key.
package exchange

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/meridianquant/tradecore/internal/domain"
)

// Credentials are one account's API credentials, decrypted for the duration
// of a single call.
type Credentials struct {
	APIKey     string
	APISecret  string
	Passphrase string
}

// OrderRequest describes a market order to submit.
type OrderRequest struct {
	Symbol        string  `json:"symbol"`
	Side          string  `json:"side"`
	PositionSide  string  `json:"position_side"`
	Type          string  `json:"type"`
	Quantity      float64 `json:"quantity"`
	MarketType    string  `json:"market_type,omitempty"`
	ClientOrderID string  `json:"client_order_id"`
}

// OrderResult is the exchange's report of a submitted order.
type OrderResult struct {
	ExchangeOrderID string  `json:"order_id"`
	Status          string  `json:"status"`
	FilledQuantity  float64 `json:"filled_quantity"`
	FilledPrice     float64 `json:"filled_price"`
	Fee             float64 `json:"fee"`
}

type tickerResponse struct {
	Tickers []struct {
		Symbol string  `json:"symbol"`
		Price  float64 `json:"price"`
	} `json:"tickers"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Client is the REST client for exchange APIs. Base URLs are configured per
// exchange name.
type Client struct {
	baseURLs   map[string]string
	httpClient *http.Client
}

// NewClient creates a Client for the configured exchanges.
func NewClient(baseURLs map[string]string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURLs: baseURLs,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// GetPrices fetches the latest traded prices for the given symbols on one
// exchange in a single batch request. Symbols the exchange does not quote are
// omitted from the result.
func (c *Client) GetPrices(ctx context.Context, exchangeName string, symbols []string) (map[string]float64, error) {
	if len(symbols) == 0 {
		return map[string]float64{}, nil
	}

	params := url.Values{}
	params.Set("symbols", strings.Join(symbols, ","))
	path := "/api/v1/tickers?" + params.Encode()

	body, err := c.doRequest(ctx, exchangeName, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("exchange: get prices %s: %w", exchangeName, err)
	}

	var resp tickerResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("exchange: decode tickers %s: %w", exchangeName, err)
	}

	prices := make(map[string]float64, len(resp.Tickers))
	for _, t := range resp.Tickers {
		if t.Symbol == "" {
			continue
		}
		prices[t.Symbol] = t.Price
	}
	return prices, nil
}

// PlaceMarketOrder submits a market order signed with the account's
// credentials and returns the exchange's execution report.
func (c *Client) PlaceMarketOrder(ctx context.Context, exchangeName string, creds Credentials, req OrderRequest) (OrderResult, error) {
	if req.Type == "" {
		req.Type = "MARKET"
	}

	body, err := c.doRequest(ctx, exchangeName, http.MethodPost, "/api/v1/orders", &creds, req)
	if err != nil {
		return OrderResult{}, fmt.Errorf("exchange: place order %s %s: %w", exchangeName, req.Symbol, err)
	}

	var result OrderResult
	if err := json.Unmarshal(body, &result); err != nil {
		return OrderResult{}, fmt.Errorf("exchange: decode order result: %w", err)
	}
	return result, nil
}

// doRequest builds, optionally signs, sends, and reads an HTTP request
// against one exchange's API. creds may be nil for public endpoints.
func (c *Client) doRequest(ctx context.Context, exchangeName, method, path string, creds *Credentials, reqBody any) ([]byte, error) {
	baseURL, ok := c.baseURLs[exchangeName]
	if !ok {
		return nil, fmt.Errorf("no base URL configured for exchange %q", exchangeName)
	}

	var jsonBody []byte
	var bodyReader io.Reader
	if reqBody != nil {
		var err error
		jsonBody, err = json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	if creds != nil {
		signRequest(req, *creds, method, path, jsonBody)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkStatus(resp.StatusCode, respBody); err != nil {
		return nil, err
	}

	return respBody, nil
}

// signRequest adds HMAC authentication headers. The signature is
// HMAC-SHA256 over timestamp + method + path + body, base64 encoded.
func signRequest(req *http.Request, creds Credentials, method, path string, body []byte) {
	ts := strconv.FormatInt(time.Now().UnixMilli(), 10)

	mac := hmac.New(sha256.New, []byte(creds.APISecret))
	mac.Write([]byte(ts + method + path))
	mac.Write(body)
	signature := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	req.Header.Set("X-API-KEY", creds.APIKey)
	req.Header.Set("X-API-SIGN", signature)
	req.Header.Set("X-API-TIMESTAMP", ts)
	if creds.Passphrase != "" {
		req.Header.Set("X-API-PASSPHRASE", creds.Passphrase)
	}
}

// checkStatus maps non-2xx HTTP status codes to errors.
func checkStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	var apiErr errorResponse
	_ = json.Unmarshal(body, &apiErr)

	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("not found: %s (%s): %w", apiErr.Message, apiErr.Code, domain.ErrNotFound)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("unauthorized: %s (%s): %w", apiErr.Message, apiErr.Code, domain.ErrUnauthorized)
	case http.StatusTooManyRequests:
		return fmt.Errorf("rate limited: %s (%s)", apiErr.Message, apiErr.Code)
	case http.StatusBadRequest:
		return fmt.Errorf("bad request: %s (%s)", apiErr.Message, apiErr.Code)
	default:
		return fmt.Errorf("HTTP %d: %s (%s)", statusCode, apiErr.Message, apiErr.Code)
	}
}
