// Package pgsource implementa a fonte de metadados de relays a partir de
// um espelho PostgreSQL do registry, para deployments que sincronizam o
// registry on-chain para SQL.
package pgsource

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/goautomatik/router-server/internal/domain"
	"github.com/goautomatik/router-server/internal/registry"
)

// Source lê o espelho de relays do PostgreSQL
type Source struct {
	pool *pgxpool.Pool
}

// New cria a fonte a partir de um pool pgx já conectado
func New(pool *pgxpool.Pool) *Source {
	return &Source{pool: pool}
}

// CreateTables cria o schema do espelho se não existir
func (s *Source) CreateTables(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS relay_nodes (
			node_id VARCHAR(64) PRIMARY KEY,
			operator_key VARCHAR(64) NOT NULL,
			location VARCHAR(32) NOT NULL,
			reputation REAL NOT NULL DEFAULT 0,
			bandwidth_mbps REAL NOT NULL DEFAULT 0,
			uptime_pct REAL NOT NULL DEFAULT 0,
			price_per_gb REAL NOT NULL DEFAULT 0,
			last_heartbeat TIMESTAMP WITH TIME ZONE,
			active BOOLEAN DEFAULT FALSE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_relay_nodes_location ON relay_nodes(location)`,
		`CREATE INDEX IF NOT EXISTS idx_relay_nodes_active ON relay_nodes(active)`,
	}

	for _, query := range queries {
		if _, err := s.pool.Exec(ctx, query); err != nil {
			return fmt.Errorf("failed to create tables: %w", err)
		}
	}
	return nil
}

// FetchAll implementa registry.Source
func (s *Source) FetchAll(ctx context.Context) ([]domain.NodeHealthMetrics, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT node_id, operator_key, location, reputation, bandwidth_mbps,
		       uptime_pct, price_per_gb, last_heartbeat, active
		FROM relay_nodes
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query relay nodes: %w", err)
	}
	defer rows.Close()

	var nodes []domain.NodeHealthMetrics
	for rows.Next() {
		var node domain.NodeHealthMetrics
		if err := rows.Scan(
			&node.NodeID,
			&node.Operator,
			&node.Location,
			&node.Reputation,
			&node.BandwidthMbps,
			&node.UptimePct,
			&node.PricePerGB,
			&node.LastHeartbeat,
			&node.IsActive,
		); err != nil {
			// Linha malformada não aborta o fetch das demais
			continue
		}
		nodes = append(nodes, node)
	}
	return nodes, rows.Err()
}

// Ping verifica a conectividade com o PostgreSQL
func (s *Source) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

var _ registry.Source = (*Source)(nil)
