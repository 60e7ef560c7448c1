// Package executor dispatches triggered position closes to their execution
// target: the local exchange client or a remote execution node.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/meridianquant/tradecore/internal/crypto"
	"github.com/meridianquant/tradecore/internal/domain"
	"github.com/meridianquant/tradecore/internal/exchange"
	"github.com/meridianquant/tradecore/internal/service"
)

// settleAttempts bounds how often an executed close's settlement is retried
// before it is left for manual replay. Settlement is idempotent by fill ID,
// so a retry can never double-book.
const settleAttempts = 3

// OrderPlacer submits orders to an upstream exchange.
type OrderPlacer interface {
	PlaceMarketOrder(ctx context.Context, exchangeName string, creds exchange.Credentials, req exchange.OrderRequest) (exchange.OrderResult, error)
}

// NodeCaller forwards a close to a remote execution node.
type NodeCaller interface {
	ClosePosition(ctx context.Context, baseURL string, req CloseRequest) (CloseResponse, error)
}

// Settler settles one fill atomically and idempotently.
type Settler interface {
	SettleFill(ctx context.Context, f domain.Fill) (service.SettlementResult, error)
}

// Notifier delivers operator alerts. It may be nil.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Router resolves the execution target for each triggered close and runs the
// full close flow: order record, execution, settlement of the reported fill,
// and trigger cleanup.
type Router struct {
	exchangeAccounts domain.ExchangeAccountStore
	nodes            domain.NodeStore
	orders           domain.OrderStore
	positions        domain.PositionStore
	transactor       domain.Transactor
	placer           OrderPlacer
	nodeClient       NodeCaller
	settler          Settler
	cipher           *crypto.Cipher
	notifier         Notifier
	logger           *slog.Logger
}

// NewRouter creates a Router. notifier may be nil.
func NewRouter(
	exchangeAccounts domain.ExchangeAccountStore,
	nodes domain.NodeStore,
	orders domain.OrderStore,
	positions domain.PositionStore,
	transactor domain.Transactor,
	placer OrderPlacer,
	nodeClient NodeCaller,
	settler Settler,
	cipher *crypto.Cipher,
	notifier Notifier,
	logger *slog.Logger,
) *Router {
	return &Router{
		exchangeAccounts: exchangeAccounts,
		nodes:            nodes,
		orders:           orders,
		positions:        positions,
		transactor:       transactor,
		placer:           placer,
		nodeClient:       nodeClient,
		settler:          settler,
		cipher:           cipher,
		notifier:         notifier,
		logger:           logger.With("component", "executor"),
	}
}

// ClosePosition closes the position's full quantity at market. The outcome
// is informational: all durable effects (order row, fill, position, ledger)
// are already persisted when it returns.
func (r *Router) ClosePosition(ctx context.Context, p domain.Position, trigger domain.TriggerType, price float64) domain.CloseOutcome {
	account, target, err := r.resolveTarget(ctx, p)
	if err != nil {
		return r.fail(ctx, p, trigger, fmt.Errorf("resolve target: %w", err))
	}

	order := domain.Order{
		ID:           uuid.New().String(),
		TenantID:     p.TenantID,
		AccountID:    p.AccountID,
		Symbol:       p.Symbol,
		Exchange:     p.Exchange,
		Side:         domain.ClosingSide(p.Side),
		PositionSide: p.Side,
		Type:         "MARKET",
		Quantity:     p.Quantity,
		Status:       domain.OrderStatusNew,
		MarketType:   p.MarketType,
		Reason:       string(trigger),
	}
	if err := r.orders.Create(ctx, order); err != nil {
		return r.fail(ctx, p, trigger, fmt.Errorf("create order: %w", err))
	}

	var fill domain.Fill
	if target.IsRemote() {
		fill, err = r.closeRemote(ctx, account, target, p, order)
	} else {
		fill, err = r.closeLocal(ctx, account, p, order)
	}
	if err != nil {
		if stErr := r.orders.UpdateStatus(ctx, order.ID, domain.OrderStatusFailed, ""); stErr != nil {
			r.logger.Error("mark order failed", "order_id", order.ID, "error", stErr)
		}
		return r.fail(ctx, p, trigger, err)
	}

	if err := r.orders.UpdateStatus(ctx, order.ID, domain.OrderStatusFilled, fill.ExchangeOrderID); err != nil {
		r.logger.Error("mark order filled", "order_id", order.ID, "error", err)
	}

	// The exchange executed. From here on the close is terminal: the reported
	// fill settles, never a second order.
	result, err := r.settleExecuted(ctx, p, trigger, fill)
	if err != nil {
		// Clear the thresholds anyway so the next scan cannot refire and
		// close a second time. The reported fill keeps its ID and can be
		// replayed through the settlement API.
		if clearErr := r.positions.ClearTriggers(ctx, p.ID, string(trigger)); clearErr != nil && !errors.Is(clearErr, domain.ErrNotFound) {
			r.logger.Error("clear triggers after settlement failure", "position_id", p.ID, "error", clearErr)
		}
		r.logger.Error("settlement failed for executed close",
			"position_id", p.ID,
			"fill_id", fill.ID,
			"quantity", fill.Quantity,
			"price", fill.Price,
			"error", err)
		r.alert(ctx, "settlement_failed", "Settlement failed after executed close",
			fmt.Sprintf("position %s (%s %s): fill %s for %v @ %v executed but not settled: %v",
				p.ID, p.Symbol, p.Side, fill.ID, fill.Quantity, fill.Price, err))
		return domain.CloseOutcome{
			OrderID: order.ID,
			FillID:  fill.ID,
			Error:   fmt.Sprintf("settle fill %s: %v", fill.ID, err),
		}
	}

	r.logger.Info("close settled",
		"position_id", p.ID,
		"fill_id", fill.ID,
		"realized_pnl", result.RealizedPnL,
		"position_status", string(result.PositionStatus))

	if residual := p.Quantity - fill.Quantity; math.Abs(residual) > 1e-9 {
		r.logger.Warn("reported close quantity differs from requested",
			"position_id", p.ID,
			"requested", p.Quantity,
			"reported", fill.Quantity)
		r.alert(ctx, "close_quantity_mismatch", "Close quantity mismatch",
			fmt.Sprintf("position %s (%s %s): requested %v, node reported %v",
				p.ID, p.Symbol, p.Side, p.Quantity, fill.Quantity))
	}

	return domain.CloseOutcome{
		Success:        true,
		Remote:         target.IsRemote(),
		FilledQuantity: fill.Quantity,
		FilledPrice:    fill.Price,
		OrderID:        order.ID,
		FillID:         fill.ID,
	}
}

// settleExecuted settles the reported fill and clears the position's
// thresholds in one database transaction, so a partially reported close can
// never refire with stale triggers. Failures retry with the same fill ID.
func (r *Router) settleExecuted(ctx context.Context, p domain.Position, trigger domain.TriggerType, fill domain.Fill) (service.SettlementResult, error) {
	var lastErr error
	for attempt := 1; attempt <= settleAttempts; attempt++ {
		var result service.SettlementResult
		err := r.transactor.InTx(ctx, func(ctx context.Context) error {
			var err error
			result, err = r.settler.SettleFill(ctx, fill)
			if err != nil {
				return err
			}
			if err := r.positions.ClearTriggers(ctx, p.ID, string(trigger)); err != nil && !errors.Is(err, domain.ErrNotFound) {
				return fmt.Errorf("clear triggers: %w", err)
			}
			return nil
		})
		if err == nil {
			return result, nil
		}
		lastErr = err
		r.logger.Warn("settle reported fill",
			"fill_id", fill.ID,
			"attempt", attempt,
			"error", err)
	}
	return service.SettlementResult{}, lastErr
}

// resolveTarget loads the account's exchange binding and maps it to a local
// or remote execution target.
func (r *Router) resolveTarget(ctx context.Context, p domain.Position) (domain.ExchangeAccount, domain.ExecutionTarget, error) {
	account, err := r.exchangeAccounts.Get(ctx, p.TenantID, p.AccountID, p.Exchange)
	if err != nil {
		return domain.ExchangeAccount{}, domain.ExecutionTarget{}, fmt.Errorf("exchange account for %s/%s on %s: %w",
			p.TenantID, p.AccountID, p.Exchange, err)
	}
	if !account.Enabled {
		return domain.ExchangeAccount{}, domain.ExecutionTarget{}, fmt.Errorf("exchange account %s: %w", account.ID, domain.ErrNodeDisabled)
	}

	if account.NodeID == nil {
		return account, domain.LocalTarget(), nil
	}

	node, err := r.nodes.Get(ctx, *account.NodeID)
	if err != nil {
		return domain.ExchangeAccount{}, domain.ExecutionTarget{}, fmt.Errorf("node %s: %w", *account.NodeID, err)
	}
	if !node.Enabled {
		return domain.ExchangeAccount{}, domain.ExecutionTarget{}, fmt.Errorf("node %s: %w", node.ID, domain.ErrNodeDisabled)
	}
	return account, domain.RemoteTarget(node.BaseURL), nil
}

// closeLocal places the market order directly and builds the fill from the
// exchange's execution report.
func (r *Router) closeLocal(ctx context.Context, account domain.ExchangeAccount, p domain.Position, order domain.Order) (domain.Fill, error) {
	creds, err := r.decryptCredentials(account)
	if err != nil {
		return domain.Fill{}, fmt.Errorf("decrypt credentials: %w", err)
	}

	result, err := r.placer.PlaceMarketOrder(ctx, p.Exchange, creds, exchange.OrderRequest{
		Symbol:        p.Symbol,
		Side:          string(order.Side),
		PositionSide:  string(p.Side),
		Type:          "MARKET",
		Quantity:      order.Quantity,
		MarketType:    p.MarketType,
		ClientOrderID: order.ID,
	})
	if err != nil {
		return domain.Fill{}, err
	}
	if result.FilledQuantity <= 0 || result.FilledPrice <= 0 {
		return domain.Fill{}, fmt.Errorf("exchange reported no execution for order %s (status %s)", order.ID, result.Status)
	}

	return domain.Fill{
		ID:              uuid.New().String(),
		OrderID:         order.ID,
		TenantID:        p.TenantID,
		AccountID:       p.AccountID,
		Symbol:          p.Symbol,
		Exchange:        p.Exchange,
		Side:            order.Side,
		PositionSide:    p.Side,
		Quantity:        result.FilledQuantity,
		Price:           result.FilledPrice,
		Fee:             result.Fee,
		MarketType:      p.MarketType,
		ExchangeOrderID: result.ExchangeOrderID,
		CreatedAt:       time.Now().UTC(),
	}, nil
}

// closeRemote forwards the close to the node, carrying the account's
// decrypted credentials, and settles whatever quantity and price the node
// reports. Nodes do not report fees; the fee is booked as zero and reconciled
// out of band.
func (r *Router) closeRemote(ctx context.Context, account domain.ExchangeAccount, target domain.ExecutionTarget, p domain.Position, order domain.Order) (domain.Fill, error) {
	creds, err := r.decryptCredentials(account)
	if err != nil {
		return domain.Fill{}, fmt.Errorf("decrypt credentials: %w", err)
	}

	resp, err := r.nodeClient.ClosePosition(ctx, target.NodeURL(), CloseRequest{
		PositionID:   p.ID,
		TenantID:     p.TenantID,
		AccountID:    p.AccountID,
		Symbol:       p.Symbol,
		Exchange:     p.Exchange,
		Side:         string(order.Side),
		PositionSide: string(p.Side),
		Quantity:     order.Quantity,
		MarketType:   p.MarketType,
		Reason:       order.Reason,
		APIKey:       creds.APIKey,
		APISecret:    creds.APISecret,
		Passphrase:   creds.Passphrase,
	})
	if err != nil {
		return domain.Fill{}, err
	}
	if resp.FilledQuantity <= 0 || resp.FilledPrice <= 0 {
		return domain.Fill{}, fmt.Errorf("node reported no execution for position %s", p.ID)
	}

	fillID := resp.FillID
	if fillID == "" {
		fillID = uuid.New().String()
	}

	return domain.Fill{
		ID:              fillID,
		OrderID:         order.ID,
		TenantID:        p.TenantID,
		AccountID:       p.AccountID,
		Symbol:          p.Symbol,
		Exchange:        p.Exchange,
		Side:            order.Side,
		PositionSide:    p.Side,
		Quantity:        resp.FilledQuantity,
		Price:           resp.FilledPrice,
		MarketType:      p.MarketType,
		ExchangeOrderID: resp.ExchangeOrderID,
		CreatedAt:       time.Now().UTC(),
	}, nil
}

func (r *Router) decryptCredentials(account domain.ExchangeAccount) (exchange.Credentials, error) {
	apiKey, err := r.cipher.Decrypt(account.APIKey)
	if err != nil {
		return exchange.Credentials{}, err
	}
	apiSecret, err := r.cipher.Decrypt(account.APISecret)
	if err != nil {
		return exchange.Credentials{}, err
	}
	passphrase, err := r.cipher.Decrypt(account.Passphrase)
	if err != nil {
		return exchange.Credentials{}, err
	}
	return exchange.Credentials{
		APIKey:     apiKey,
		APISecret:  apiSecret,
		Passphrase: passphrase,
	}, nil
}

func (r *Router) fail(ctx context.Context, p domain.Position, trigger domain.TriggerType, err error) domain.CloseOutcome {
	r.logger.Error("close failed",
		"position_id", p.ID,
		"symbol", p.Symbol,
		"trigger", trigger,
		"error", err)
	r.alert(ctx, "close_failed", "Position close failed",
		fmt.Sprintf("position %s (%s %s, %s): %v", p.ID, p.Symbol, p.Side, trigger, err))

	return domain.CloseOutcome{Error: err.Error()}
}

func (r *Router) alert(ctx context.Context, event, title, message string) {
	if r.notifier == nil {
		return
	}
	if err := r.notifier.Notify(ctx, event, title, message); err != nil {
		r.logger.Warn("notification failed", "event", event, "error", err)
	}
}
