package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridianquant/tradecore/internal/domain"
)

// NodeStore implements domain.NodeStore using PostgreSQL.
type NodeStore struct {
	pool *pgxpool.Pool
}

// NewNodeStore creates a new NodeStore.
func NewNodeStore(pool *pgxpool.Pool) *NodeStore {
	return &NodeStore{pool: pool}
}

// Upsert inserts or replaces an execution node registration.
func (s *NodeStore) Upsert(ctx context.Context, n domain.ExecutionNode) error {
	const query = `
		INSERT INTO execution_nodes (id, name, base_url, enabled)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			name       = EXCLUDED.name,
			base_url   = EXCLUDED.base_url,
			enabled    = EXCLUDED.enabled,
			updated_at = NOW()`

	_, err := querierFrom(ctx, s.pool).Exec(ctx, query, n.ID, n.Name, n.BaseURL, n.Enabled)
	if err != nil {
		return fmt.Errorf("postgres: upsert node %s: %w", n.ID, err)
	}
	return nil
}

// Get retrieves a node registration.
func (s *NodeStore) Get(ctx context.Context, id string) (domain.ExecutionNode, error) {
	var n domain.ExecutionNode
	err := querierFrom(ctx, s.pool).QueryRow(ctx,
		`SELECT id, name, base_url, enabled, created_at, updated_at
		 FROM execution_nodes WHERE id = $1`, id,
	).Scan(&n.ID, &n.Name, &n.BaseURL, &n.Enabled, &n.CreatedAt, &n.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ExecutionNode{}, domain.ErrNotFound
		}
		return domain.ExecutionNode{}, fmt.Errorf("postgres: get node %s: %w", id, err)
	}
	return n, nil
}

// List returns all registered nodes.
func (s *NodeStore) List(ctx context.Context) ([]domain.ExecutionNode, error) {
	rows, err := querierFrom(ctx, s.pool).Query(ctx,
		`SELECT id, name, base_url, enabled, created_at, updated_at
		 FROM execution_nodes ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list nodes: %w", err)
	}
	defer rows.Close()

	var nodes []domain.ExecutionNode
	for rows.Next() {
		var n domain.ExecutionNode
		if err := rows.Scan(&n.ID, &n.Name, &n.BaseURL, &n.Enabled, &n.CreatedAt, &n.UpdatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan node: %w", err)
		}
		nodes = append(nodes, n)
	}
	return nodes, rows.Err()
}

// Compile-time interface check.
var _ domain.NodeStore = (*NodeStore)(nil)
