package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// nodeTokenHeader carries the shared secret that authenticates the
// coordinator to its execution nodes.
const nodeTokenHeader = "X-Node-Token"

// CloseRequest is the payload sent to a remote execution node. It carries the
// account's decrypted exchange credentials: nodes are stateless and trade each
// request with the keys it arrives with.
type CloseRequest struct {
	PositionID   string  `json:"position_id"`
	TenantID     string  `json:"tenant_id"`
	AccountID    string  `json:"account_id"`
	Symbol       string  `json:"symbol"`
	Exchange     string  `json:"exchange"`
	Side         string  `json:"side"`
	PositionSide string  `json:"position_side"`
	Quantity     float64 `json:"quantity"`
	MarketType   string  `json:"market_type,omitempty"`
	Reason       string  `json:"reason"`
	APIKey       string  `json:"api_key"`
	APISecret    string  `json:"api_secret"`
	Passphrase   string  `json:"passphrase,omitempty"`
}

// CloseResponse is the node's execution report. The coordinator settles with
// the reported quantity and price, not with what it asked for.
type CloseResponse struct {
	OrderID         string  `json:"order_id"`
	FillID          string  `json:"fill_id"`
	ExchangeOrderID string  `json:"exchange_order_id"`
	FilledQuantity  float64 `json:"filled_quantity"`
	FilledPrice     float64 `json:"filled_price"`
}

// NodeClient calls remote execution nodes over HTTP, authenticated with the
// deployment's shared secret.
type NodeClient struct {
	secret     string
	httpClient *http.Client
}

// NewNodeClient creates a NodeClient.
func NewNodeClient(secret string, timeout time.Duration) *NodeClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &NodeClient{
		secret: secret,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// ClosePosition asks the node at baseURL to close a position and returns its
// execution report.
func (c *NodeClient) ClosePosition(ctx context.Context, baseURL string, req CloseRequest) (CloseResponse, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return CloseResponse{}, fmt.Errorf("executor: marshal close request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		baseURL+"/api/v1/close-position", bytes.NewReader(payload))
	if err != nil {
		return CloseResponse{}, fmt.Errorf("executor: create node request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(nodeTokenHeader, c.secret)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return CloseResponse{}, fmt.Errorf("executor: call node %s: %w", baseURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return CloseResponse{}, fmt.Errorf("executor: read node response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var nodeErr struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(body, &nodeErr)
		return CloseResponse{}, fmt.Errorf("executor: node %s returned HTTP %d: %s", baseURL, resp.StatusCode, nodeErr.Error)
	}

	var result CloseResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return CloseResponse{}, fmt.Errorf("executor: decode node response: %w", err)
	}
	return result, nil
}
