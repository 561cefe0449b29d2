// Package routing implementa o motor de decisão: combina saúde dos nós e
// threat intelligence em uma seleção ranqueada de relays por pedido.
package routing

import (
	"context"
	"errors"
	"math"
	"sort"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"

	"github.com/goautomatik/router-server/internal/domain"
	"github.com/goautomatik/router-server/internal/registry"
	"github.com/goautomatik/router-server/internal/threat"
)

// ErrNoNodesAvailable indica que nenhum nó ativo elegível existe
var ErrNoNodesAvailable = errors.New("no nodes available")

const (
	maxFallbackNodes = 3

	// Limiar do circuit-breaker de privacidade: requisitante em país de
	// risco alto nunca é roteado por nó em país de risco relevante.
	userThreatCutoff = 7.0
	nodeThreatCutoff = 5.0

	rankingCacheSize = 128
	rankingCacheTTL  = 300 * time.Second
)

// weights é o vetor de pesos de um modo de prioridade; soma 1.0
type weights struct {
	reputation float64
	latency    float64
	cost       float64
	uptime     float64
	safety     float64
}

var weightsByMode = map[domain.PriorityMode]weights{
	domain.PrioritySpeed:    {reputation: 0.20, latency: 0.50, cost: 0.10, uptime: 0.15, safety: 0.05},
	domain.PriorityPrivacy:  {reputation: 0.30, latency: 0.10, cost: 0.10, uptime: 0.20, safety: 0.30},
	domain.PriorityBalanced: {reputation: 0.25, latency: 0.25, cost: 0.15, uptime: 0.20, safety: 0.15},
}

// RankingCache persiste rankings por região fora do processo, para que
// réplicas compartilhem o trabalho de ranqueamento. Implementado pelo
// cache de decisões em Redis; nil desliga a camada compartilhada.
type RankingCache interface {
	GetRanking(ctx context.Context, region string) ([]domain.NodeHealthMetrics, bool)
	SetRanking(ctx context.Context, region string, nodes []domain.NodeHealthMetrics)
}

// Engine calcula decisões de roteamento a partir do registro e do threat intel
type Engine struct {
	registry *registry.Registry
	threats  *threat.Provider
	store    RankingCache
	logger   *zap.Logger

	// rankings por região memoizados em LRU com TTL, na frente do store
	rankings *expirable.LRU[string, []domain.NodeHealthMetrics]
}

// NewEngine cria o motor de decisão; store pode ser nil
func NewEngine(reg *registry.Registry, threats *threat.Provider, store RankingCache, logger *zap.Logger) *Engine {
	return &Engine{
		registry: reg,
		threats:  threats,
		store:    store,
		logger:   logger,
		rankings: expirable.NewLRU[string, []domain.NodeHealthMetrics](rankingCacheSize, nil, rankingCacheTTL),
	}
}

type scoredNode struct {
	node  domain.NodeHealthMetrics
	score float64
}

// SelectOptimalNode escolhe o nó primário e até três fallbacks para o
// pedido, aplicando o vetor de pesos do modo de prioridade.
func (e *Engine) SelectOptimalNode(req *domain.UserRoutingRequest) (*domain.RoutingDecision, error) {
	active := e.registry.GetActive()
	if len(active) == 0 {
		return nil, ErrNoNodesAvailable
	}

	userThreat := e.threats.GetThreatLevel(req.UserLocation).ThreatLevel
	mode := weightsByMode[req.Priority]

	scored := make([]scoredNode, 0, len(active))
	threatAvoided := false
	for _, node := range active {
		nodeThreat := e.threats.GetThreatLevel(node.Country()).ThreatLevel
		score := e.scoreNode(&node, nodeThreat, mode)

		// Circuit-breaker de privacidade: nunca contornado pelos demais fatores
		if userThreat > userThreatCutoff && nodeThreat > nodeThreatCutoff {
			score = 0
			threatAvoided = true
		}

		if score > 0 {
			scored = append(scored, scoredNode{node: node, score: score})
		}
	}

	if len(scored) == 0 {
		return nil, ErrNoNodesAvailable
	}

	sort.Slice(scored, func(i, j int) bool { return scored[i].score > scored[j].score })

	primary := scored[0]
	fallbacks := make([]domain.NodeHealthMetrics, 0, maxFallbackNodes)
	for _, candidate := range scored[1:] {
		if len(fallbacks) == maxFallbackNodes {
			break
		}
		fallbacks = append(fallbacks, candidate.node)
	}

	e.logger.Debug("routing decision",
		zap.String("primary", primary.node.NodeID),
		zap.Float64("score", primary.score),
		zap.String("priority", req.Priority.String()))

	return &domain.RoutingDecision{
		PrimaryNode:        &primary.node,
		FallbackNodes:      fallbacks,
		Score:              primary.score,
		EstimatedLatencyMs: primary.node.LatencyMs,
		ThreatAvoidance:    threatAvoided,
		Timestamp:          time.Now(),
	}, nil
}

// scoreNode aplica a fórmula ponderada; resultado arredondado a 2 casas
func (e *Engine) scoreNode(node *domain.NodeHealthMetrics, nodeThreat float64, w weights) float64 {
	latencyScore := 100 - math.Min(100, node.LatencyMs/10)
	costScore := 100 - math.Min(100, node.PricePerGB*100)
	safetyScore := (10 - nodeThreat) * 10

	score := node.Reputation*w.reputation +
		latencyScore*w.latency +
		costScore*w.cost +
		node.UptimePct*w.uptime +
		safetyScore*w.safety

	return math.Round(score*100) / 100
}

// GetNearbyNodes retorna até limit nós priorizando o país pedido e depois
// as regiões vizinhas da tabela de adjacência. O ranking por região é
// memoizado com TTL.
func (e *Engine) GetNearbyNodes(ctx context.Context, country string, limit int) []domain.NodeHealthMetrics {
	if limit <= 0 {
		return nil
	}

	ranked := e.rankedByRegion(ctx, country)
	if len(ranked) >= limit {
		return ranked[:limit]
	}

	result := make([]domain.NodeHealthMetrics, len(ranked))
	copy(result, ranked)

	seen := make(map[string]bool, len(result))
	for _, node := range result {
		seen[node.NodeID] = true
	}

	for _, neighbor := range neighborsOf(country) {
		if len(result) >= limit {
			break
		}
		for _, node := range e.rankedByRegion(ctx, neighbor) {
			if len(result) >= limit {
				break
			}
			if !seen[node.NodeID] {
				seen[node.NodeID] = true
				result = append(result, node)
			}
		}
	}
	return result
}

// rankedByRegion retorna os nós ativos de um país por reputação decrescente.
// Consulta primeiro o LRU local, depois o store compartilhado; só recomputa
// do registro quando ambos falham, e então popula as duas camadas.
func (e *Engine) rankedByRegion(ctx context.Context, country string) []domain.NodeHealthMetrics {
	if cached, ok := e.rankings.Get(country); ok {
		return cached
	}

	if e.store != nil {
		if ranked, ok := e.store.GetRanking(ctx, country); ok {
			e.rankings.Add(country, ranked)
			return ranked
		}
	}

	var ranked []domain.NodeHealthMetrics
	for _, node := range e.registry.GetActive() {
		if node.Country() == country {
			ranked = append(ranked, node)
		}
	}
	e.rankings.Add(country, ranked)
	if e.store != nil {
		e.store.SetRanking(ctx, country, ranked)
	}
	return ranked
}
