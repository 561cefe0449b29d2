// Package redis implementa o cache de decisões de roteamento sobre um
// key-value store externo. Se o store fica indisponível o cache se
// desabilita (log único) e todas as operações viram no-op de miss; os
// chamadores devem tolerar um cache permanentemente frio.
package redis

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/goautomatik/router-server/internal/domain"
)

// Prefixos de chaves. Decisões têm dois namespaces distintos: por usuário
// e por par localização/destino.
const (
	keyPrefixDecisionUser = "routing:user:"
	keyPrefixDecisionPair = "routing:pair:"
	keyPrefixRanking      = "ranking:"
)

// DefaultTTL limita a idade de qualquer decisão cacheada
const DefaultTTL = 300 * time.Second

// Stats expõe o estado corrente do cache
type Stats struct {
	Hits     int64 `json:"hits"`
	Misses   int64 `json:"misses"`
	Disabled bool  `json:"disabled"`
}

// DecisionCache memoiza decisões de roteamento e rankings de nós por região
type DecisionCache struct {
	client *redis.Client
	logger *zap.Logger
	ttl    time.Duration

	hits   atomic.Int64
	misses atomic.Int64

	disabled    atomic.Bool
	disableOnce sync.Once
}

// NewDecisionCache cria o cache; falha no ping inicial desabilita de imediato
func NewDecisionCache(ctx context.Context, client *redis.Client, logger *zap.Logger, ttl time.Duration) *DecisionCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &DecisionCache{client: client, logger: logger, ttl: ttl}

	if err := client.Ping(ctx).Err(); err != nil {
		c.disable(err)
	}
	return c
}

// disable desliga o cache; loga uma única vez, não por chamada
func (c *DecisionCache) disable(err error) {
	c.disableOnce.Do(func() {
		c.disabled.Store(true)
		c.logger.Warn("decision cache unavailable, operating without cache", zap.Error(err))
	})
}

// Disabled indica se o cache está operando como no-op
func (c *DecisionCache) Disabled() bool {
	return c.disabled.Load()
}

func pairKey(location, destination string) string {
	return keyPrefixDecisionPair + location + "|" + destination
}

// GetDecision busca uma decisão pelo par (localização, destino).
// Retorna (nil, false) em miss, cache desabilitado ou erro.
func (c *DecisionCache) GetDecision(ctx context.Context, location, destination string) (*domain.RoutingDecision, bool) {
	return c.getDecision(ctx, pairKey(location, destination))
}

// GetDecisionForUser busca uma decisão no namespace por usuário
func (c *DecisionCache) GetDecisionForUser(ctx context.Context, userID string) (*domain.RoutingDecision, bool) {
	return c.getDecision(ctx, keyPrefixDecisionUser+userID)
}

func (c *DecisionCache) getDecision(ctx context.Context, key string) (*domain.RoutingDecision, bool) {
	if c.disabled.Load() {
		c.misses.Add(1)
		return nil, false
	}

	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.disable(err)
		}
		c.misses.Add(1)
		return nil, false
	}

	var decision domain.RoutingDecision
	if err := json.Unmarshal(data, &decision); err != nil {
		c.misses.Add(1)
		return nil, false
	}

	c.hits.Add(1)
	decision.Cached = true
	return &decision, true
}

// SetDecision memoiza uma decisão no namespace por par com o TTL do cache
func (c *DecisionCache) SetDecision(ctx context.Context, location, destination string, decision *domain.RoutingDecision) {
	c.setJSON(ctx, pairKey(location, destination), decision)
}

// SetDecisionForUser memoiza uma decisão no namespace por usuário
func (c *DecisionCache) SetDecisionForUser(ctx context.Context, userID string, decision *domain.RoutingDecision) {
	c.setJSON(ctx, keyPrefixDecisionUser+userID, decision)
}

// GetRanking busca o ranking de nós de uma região
func (c *DecisionCache) GetRanking(ctx context.Context, region string) ([]domain.NodeHealthMetrics, bool) {
	if c.disabled.Load() {
		c.misses.Add(1)
		return nil, false
	}

	data, err := c.client.Get(ctx, keyPrefixRanking+region).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.disable(err)
		}
		c.misses.Add(1)
		return nil, false
	}

	var nodes []domain.NodeHealthMetrics
	if err := json.Unmarshal(data, &nodes); err != nil {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return nodes, true
}

// SetRanking memoiza o ranking de nós de uma região
func (c *DecisionCache) SetRanking(ctx context.Context, region string, nodes []domain.NodeHealthMetrics) {
	c.setJSON(ctx, keyPrefixRanking+region, nodes)
}

func (c *DecisionCache) setJSON(ctx context.Context, key string, value interface{}) {
	if c.disabled.Load() {
		return
	}

	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.disable(err)
	}
}

// Stats retorna hits, misses e o estado de disabled
func (c *DecisionCache) Stats() Stats {
	return Stats{
		Hits:     c.hits.Load(),
		Misses:   c.misses.Load(),
		Disabled: c.disabled.Load(),
	}
}

// Close encerra a conexão com o store
func (c *DecisionCache) Close() error {
	return c.client.Close()
}
