package domain

import "time"

// ExchangeAccount holds the per-account exchange binding: which exchange the
// account trades on, its API credentials (encrypted at rest), and the optional
// execution node that should place its orders.
type ExchangeAccount struct {
	ID         string
	TenantID   string
	AccountID  string
	Exchange   string
	APIKey     string
	APISecret  string
	Passphrase string
	MarketType string
	NodeID     *string // nil means orders are placed locally
	Enabled    bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ExecutionNode is a remote process holding exchange connectivity. Nodes
// execute orders on the central coordinator's behalf and report results back;
// they hold no authoritative financial state.
type ExecutionNode struct {
	ID        string
	Name      string
	BaseURL   string
	Enabled   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ExecutionTarget is the resolved destination for a close order: either the
// local exchange client or a remote execution node. It is resolved once per
// account per dispatch.
type ExecutionTarget struct {
	nodeURL string
}

// LocalTarget returns the target for direct local execution.
func LocalTarget() ExecutionTarget {
	return ExecutionTarget{}
}

// RemoteTarget returns the target for execution via the node at baseURL.
func RemoteTarget(baseURL string) ExecutionTarget {
	return ExecutionTarget{nodeURL: baseURL}
}

// IsRemote reports whether the target is a remote execution node.
func (t ExecutionTarget) IsRemote() bool {
	return t.nodeURL != ""
}

// NodeURL returns the remote node's base URL; empty for local targets.
func (t ExecutionTarget) NodeURL() string {
	return t.nodeURL
}
