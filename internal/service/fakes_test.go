package service

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/meridianquant/tradecore/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fillKey is the position key a fill settles against.
func fillKey(f domain.Fill) domain.PositionKey {
	return domain.PositionKey{
		TenantID:  f.TenantID,
		AccountID: f.AccountID,
		Symbol:    f.Symbol,
		Exchange:  f.Exchange,
		Side:      f.PositionSide,
	}
}

// fakePositionStore keeps positions in a map keyed by ID.
type fakePositionStore struct {
	rows map[string]domain.Position
}

func newFakePositionStore() *fakePositionStore {
	return &fakePositionStore{rows: make(map[string]domain.Position)}
}

func (s *fakePositionStore) Create(_ context.Context, p domain.Position) error {
	if _, ok := s.rows[p.ID]; ok {
		return domain.ErrAlreadyExists
	}
	s.rows[p.ID] = p
	return nil
}

func (s *fakePositionStore) Update(_ context.Context, p domain.Position) error {
	if _, ok := s.rows[p.ID]; !ok {
		return domain.ErrNotFound
	}
	s.rows[p.ID] = p
	return nil
}

func (s *fakePositionStore) GetByID(_ context.Context, id string) (domain.Position, error) {
	p, ok := s.rows[id]
	if !ok {
		return domain.Position{}, domain.ErrNotFound
	}
	return p, nil
}

func (s *fakePositionStore) GetByKey(_ context.Context, key domain.PositionKey) (domain.Position, error) {
	for _, p := range s.rows {
		if p.Status != domain.PositionStatusClosed && p.Key() == key {
			return p, nil
		}
	}
	return domain.Position{}, domain.ErrNotFound
}

func (s *fakePositionStore) ListMonitored(_ context.Context) ([]domain.Position, error) {
	var out []domain.Position
	for _, p := range s.rows {
		if p.Status == domain.PositionStatusOpen && p.Quantity > 0 && p.HasTriggers() {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *fakePositionStore) ListByAccount(_ context.Context, tenantID, accountID string, _ domain.ListOpts) ([]domain.Position, error) {
	var out []domain.Position
	for _, p := range s.rows {
		if p.TenantID == tenantID && p.AccountID == accountID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *fakePositionStore) ClearTriggers(_ context.Context, id string, closeReason string) error {
	p, ok := s.rows[id]
	if !ok {
		return domain.ErrNotFound
	}
	p.StopLoss = nil
	p.TakeProfit = nil
	p.CloseReason = closeReason
	s.rows[id] = p
	return nil
}

// fakeChangeStore records appended journal rows in order.
type fakeChangeStore struct {
	rows []domain.PositionChange
}

func (s *fakeChangeStore) Append(_ context.Context, c domain.PositionChange) error {
	s.rows = append(s.rows, c)
	return nil
}

func (s *fakeChangeStore) GetBySource(_ context.Context, sourceType, sourceID string) (domain.PositionChange, error) {
	for _, c := range s.rows {
		if c.SourceType == sourceType && c.SourceID == sourceID {
			return c, nil
		}
	}
	return domain.PositionChange{}, domain.ErrNotFound
}

func (s *fakeChangeStore) ListByPosition(_ context.Context, positionID string, _ domain.ListOpts) ([]domain.PositionChange, error) {
	var out []domain.PositionChange
	for _, c := range s.rows {
		if c.PositionID == positionID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *fakeChangeStore) ListBefore(_ context.Context, before time.Time) ([]domain.PositionChange, error) {
	var out []domain.PositionChange
	for _, c := range s.rows {
		if c.CreatedAt.Before(before) {
			out = append(out, c)
		}
	}
	return out, nil
}

type acctKey struct {
	tenantID, accountID, currency string
}

// fakeAccountStore keeps accounts keyed by (tenant, account, currency).
type fakeAccountStore struct {
	rows map[acctKey]domain.Account
}

func newFakeAccountStore() *fakeAccountStore {
	return &fakeAccountStore{rows: make(map[acctKey]domain.Account)}
}

func (s *fakeAccountStore) key(a domain.Account) acctKey {
	return acctKey{a.TenantID, a.AccountID, a.Currency}
}

func (s *fakeAccountStore) Create(_ context.Context, a domain.Account) error {
	if _, ok := s.rows[s.key(a)]; ok {
		return domain.ErrAlreadyExists
	}
	s.rows[s.key(a)] = a
	return nil
}

func (s *fakeAccountStore) Update(_ context.Context, a domain.Account) error {
	if _, ok := s.rows[s.key(a)]; !ok {
		return domain.ErrNotFound
	}
	s.rows[s.key(a)] = a
	return nil
}

func (s *fakeAccountStore) Get(_ context.Context, tenantID, accountID, currency string) (domain.Account, error) {
	a, ok := s.rows[acctKey{tenantID, accountID, currency}]
	if !ok {
		return domain.Account{}, domain.ErrNotFound
	}
	return a, nil
}

type sourceKey struct {
	sourceType, sourceID string
}

// fakeTxStore enforces the unique (source_type, source_id) constraint the
// real journal table carries.
type fakeTxStore struct {
	rows    []domain.Transaction
	sources map[sourceKey]struct{}
}

func newFakeTxStore() *fakeTxStore {
	return &fakeTxStore{sources: make(map[sourceKey]struct{})}
}

func (s *fakeTxStore) Append(_ context.Context, t domain.Transaction) error {
	k := sourceKey{t.SourceType, t.SourceID}
	if _, ok := s.sources[k]; ok {
		return domain.ErrDuplicateSource
	}
	s.sources[k] = struct{}{}
	s.rows = append(s.rows, t)
	return nil
}

func (s *fakeTxStore) GetBySource(_ context.Context, sourceType, sourceID string) (domain.Transaction, error) {
	for _, t := range s.rows {
		if t.SourceType == sourceType && t.SourceID == sourceID {
			return t, nil
		}
	}
	return domain.Transaction{}, domain.ErrNotFound
}

func (s *fakeTxStore) ListByAccount(_ context.Context, tenantID, accountID string, _ domain.ListOpts) ([]domain.Transaction, error) {
	var out []domain.Transaction
	for _, t := range s.rows {
		if t.TenantID == tenantID && t.AccountID == accountID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *fakeTxStore) ListBefore(_ context.Context, before time.Time) ([]domain.Transaction, error) {
	var out []domain.Transaction
	for _, t := range s.rows {
		if t.CreatedAt.Before(before) {
			out = append(out, t)
		}
	}
	return out, nil
}

// fakeFillStore keeps fills by ID.
type fakeFillStore struct {
	rows map[string]domain.Fill
}

func newFakeFillStore() *fakeFillStore {
	return &fakeFillStore{rows: make(map[string]domain.Fill)}
}

func (s *fakeFillStore) Create(_ context.Context, f domain.Fill) error {
	if _, ok := s.rows[f.ID]; ok {
		return domain.ErrAlreadyExists
	}
	s.rows[f.ID] = f
	return nil
}

func (s *fakeFillStore) GetByID(_ context.Context, id string) (domain.Fill, error) {
	f, ok := s.rows[id]
	if !ok {
		return domain.Fill{}, domain.ErrNotFound
	}
	return f, nil
}

func (s *fakeFillStore) ListByOrder(_ context.Context, orderID string) ([]domain.Fill, error) {
	var out []domain.Fill
	for _, f := range s.rows {
		if f.OrderID == orderID {
			out = append(out, f)
		}
	}
	return out, nil
}

// fakeTransactor runs the function directly; the fakes have no transactions
// to coordinate.
type fakeTransactor struct {
	calls int
}

func (t *fakeTransactor) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	t.calls++
	return fn(ctx)
}

// fakeAuditStore records audit events.
type fakeAuditStore struct {
	entries []domain.AuditEntry
}

func (s *fakeAuditStore) Log(_ context.Context, event string, detail map[string]any) error {
	s.entries = append(s.entries, domain.AuditEntry{
		ID:        int64(len(s.entries) + 1),
		Event:     event,
		Detail:    detail,
		CreatedAt: time.Now(),
	})
	return nil
}

func (s *fakeAuditStore) List(_ context.Context, _ domain.ListOpts) ([]domain.AuditEntry, error) {
	return s.entries, nil
}
