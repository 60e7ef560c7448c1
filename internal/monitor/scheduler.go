package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/meridianquant/tradecore/internal/domain"
	"github.com/meridianquant/tradecore/internal/metrics"
)

// PriceProvider resolves current prices for a batch of instruments. Missing
// keys are omitted from the result.
type PriceProvider interface {
	GetPrices(ctx context.Context, keys []domain.PriceKey) (map[domain.PriceKey]float64, error)
}

// Closer dispatches one triggered close and reports its outcome. The outcome
// is informational; persistence and settlement happen inside the closer.
type Closer interface {
	ClosePosition(ctx context.Context, p domain.Position, trigger domain.TriggerType, price float64) domain.CloseOutcome
}

// Config holds the scheduler's timing and leadership parameters.
type Config struct {
	ScanInterval time.Duration
	CloseTimeout time.Duration
	// LeaderLock is the distributed lock key for single-scanner election.
	// Empty disables leadership and every instance scans.
	LeaderLock string
	LockTTL    time.Duration
}

// Scheduler runs the scan loop: every interval it loads monitored positions,
// resolves prices, evaluates triggers, and dispatches closes. Cycles are
// sequential; a slow cycle delays the next tick rather than overlapping it.
// All state is per-instance.
type Scheduler struct {
	cfg       Config
	positions domain.PositionStore
	prices    PriceProvider
	closer    Closer
	bus       domain.SignalBus
	locks     domain.LockManager
	inflight  *InFlight
	stats     *Stats
	metrics   *metrics.Metrics
	logger    *slog.Logger

	scanRequests chan struct{}
}

// NewScheduler creates a Scheduler. locks may be nil when only one instance
// runs the monitor.
func NewScheduler(
	cfg Config,
	positions domain.PositionStore,
	prices PriceProvider,
	closer Closer,
	bus domain.SignalBus,
	locks domain.LockManager,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Scheduler {
	if cfg.ScanInterval <= 0 {
		cfg.ScanInterval = 3 * time.Second
	}
	if cfg.CloseTimeout <= 0 {
		cfg.CloseTimeout = 30 * time.Second
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Second
	}
	return &Scheduler{
		cfg:          cfg,
		positions:    positions,
		prices:       prices,
		closer:       closer,
		bus:          bus,
		locks:        locks,
		inflight:     NewInFlight(),
		stats:        &Stats{},
		metrics:      m,
		logger:       logger.With("component", "monitor"),
		scanRequests: make(chan struct{}, 1),
	}
}

// Stats returns the scheduler's counters for the admin API.
func (s *Scheduler) Stats() *Stats {
	return s.stats
}

// TriggerScan requests an immediate cycle in addition to the regular ticks.
// It never blocks; a request made while one is already pending is dropped.
func (s *Scheduler) TriggerScan() {
	select {
	case s.scanRequests <- struct{}{}:
	default:
	}
}

// Run executes scan cycles until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("monitor started",
		"scan_interval", s.cfg.ScanInterval,
		"leader_lock", s.cfg.LeaderLock != "")

	ticker := time.NewTicker(s.cfg.ScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("monitor stopped")
			return ctx.Err()
		case <-ticker.C:
			s.runCycle(ctx)
		case <-s.scanRequests:
			s.runCycle(ctx)
		}
	}
}

func (s *Scheduler) runCycle(ctx context.Context) {
	if s.locks != nil && s.cfg.LeaderLock != "" {
		unlock, err := s.locks.Acquire(ctx, s.cfg.LeaderLock, s.cfg.LockTTL)
		if err != nil {
			if !errors.Is(err, domain.ErrLockHeld) {
				s.logger.Warn("leader lock acquire failed", "error", err)
			}
			return
		}
		defer unlock()
	}

	start := time.Now()
	monitored, triggered, skipped, err := s.scanOnce(ctx)
	duration := time.Since(start)

	s.stats.RecordCycle(duration, monitored, triggered, skipped, err)
	if s.metrics != nil {
		s.metrics.ScanCycles.Inc()
		s.metrics.ScanDuration.Observe(duration.Seconds())
		s.metrics.MonitoredGauge.Set(float64(monitored))
	}

	if err != nil {
		s.logger.Error("scan cycle failed", "error", err)
	}
}

// scanOnce performs one full evaluation pass. The in-flight set is cleared
// unconditionally at the end so a failed dispatch can be retried next cycle.
func (s *Scheduler) scanOnce(ctx context.Context) (monitored, triggered, skipped int, err error) {
	defer s.inflight.Clear()

	positions, err := s.positions.ListMonitored(ctx)
	if err != nil {
		return 0, 0, 0, err
	}
	monitored = len(positions)
	if monitored == 0 {
		return 0, 0, 0, nil
	}

	keys := make([]domain.PriceKey, 0, len(positions))
	for _, p := range positions {
		keys = append(keys, domain.PriceKey{Exchange: p.Exchange, Symbol: p.Symbol})
	}

	prices, err := s.prices.GetPrices(ctx, keys)
	if err != nil {
		return monitored, 0, 0, err
	}

	var wg sync.WaitGroup
	for _, p := range positions {
		price, ok := prices[domain.PriceKey{Exchange: p.Exchange, Symbol: p.Symbol}]
		if !ok {
			// No fresh price this cycle; never evaluate against a stale one.
			skipped++
			if s.metrics != nil {
				s.metrics.PriceFetchMisses.Inc()
			}
			continue
		}

		trigger := Evaluate(p, price)
		if trigger == domain.TriggerNone {
			continue
		}
		if !s.inflight.TryAcquire(p.ID) {
			continue
		}

		triggered++
		if s.metrics != nil {
			s.metrics.TriggersTotal.WithLabelValues(string(trigger)).Inc()
		}
		s.logger.Info("trigger fired",
			"position_id", p.ID,
			"symbol", p.Symbol,
			"side", p.Side,
			"trigger", trigger,
			"price", price)

		wg.Add(1)
		go func(p domain.Position, trigger domain.TriggerType, price float64) {
			defer wg.Done()
			defer s.inflight.Release(p.ID)
			s.dispatch(ctx, p, trigger, price)
		}(p, trigger, price)
	}

	wg.Wait()
	return monitored, triggered, skipped, nil
}

func (s *Scheduler) dispatch(ctx context.Context, p domain.Position, trigger domain.TriggerType, price float64) {
	closeCtx, cancel := context.WithTimeout(ctx, s.cfg.CloseTimeout)
	defer cancel()

	outcome := s.closer.ClosePosition(closeCtx, p, trigger, price)

	target := "local"
	if outcome.Remote {
		target = "remote"
	}
	result := "success"
	if !outcome.Success {
		result = "failure"
		s.stats.RecordCloseFailure()
		s.logger.Error("close dispatch failed",
			"position_id", p.ID,
			"symbol", p.Symbol,
			"trigger", trigger,
			"target", target,
			"error", outcome.Error)
	} else {
		s.logger.Info("position closed",
			"position_id", p.ID,
			"symbol", p.Symbol,
			"trigger", trigger,
			"target", target,
			"filled_quantity", outcome.FilledQuantity,
			"filled_price", outcome.FilledPrice)
	}
	if s.metrics != nil {
		s.metrics.CloseOutcomes.WithLabelValues(target, result).Inc()
	}

	s.publishOutcome(ctx, p, trigger, price, outcome)

	if outcome.Success && trigger == domain.TriggerStopLoss && p.StrategyCode != "" {
		s.publishCooldown(ctx, p, trigger)
	}
}

func (s *Scheduler) publishOutcome(ctx context.Context, p domain.Position, trigger domain.TriggerType, price float64, outcome domain.CloseOutcome) {
	if s.bus == nil {
		return
	}

	event := domain.TriggerEvent{
		PositionID:     p.ID,
		TenantID:       p.TenantID,
		AccountID:      p.AccountID,
		Symbol:         p.Symbol,
		Exchange:       p.Exchange,
		Side:           p.Side,
		Trigger:        trigger,
		Price:          price,
		Quantity:       p.Quantity,
		Success:        outcome.Success,
		FilledQuantity: outcome.FilledQuantity,
		FilledPrice:    outcome.FilledPrice,
		Remote:         outcome.Remote,
		Error:          outcome.Error,
		OccurredAt:     time.Now(),
	}

	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.Warn("marshal trigger event", "error", err)
		return
	}
	if err := s.bus.Publish(ctx, domain.ChannelCloses, payload); err != nil {
		s.logger.Warn("publish close event", "error", err)
	}
}

// publishCooldown tells the originating strategy to pause re-entry after a
// stop-loss close. The event goes to the ephemeral channel for live
// subscribers and to the durable stream for consumers that were down.
func (s *Scheduler) publishCooldown(ctx context.Context, p domain.Position, trigger domain.TriggerType) {
	if s.bus == nil {
		return
	}

	event := domain.CooldownEvent{
		StrategyCode: p.StrategyCode,
		TenantID:     p.TenantID,
		AccountID:    p.AccountID,
		Symbol:       p.Symbol,
		Exchange:     p.Exchange,
		Trigger:      trigger,
		OccurredAt:   time.Now(),
	}

	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.Warn("marshal cooldown event", "error", err)
		return
	}
	if err := s.bus.Publish(ctx, domain.ChannelCooldown, payload); err != nil {
		s.logger.Warn("publish cooldown event", "error", err)
	}
	if err := s.bus.StreamAppend(ctx, domain.StreamCooldown, payload); err != nil {
		s.logger.Warn("append cooldown stream", "error", err)
	}
}
