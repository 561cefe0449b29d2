// Package registry mantém o cache local de nós relay e sua saúde.
// É o único dono dos NodeHealthMetrics: apenas o ciclo de polling muta.
package registry

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/goautomatik/router-server/internal/domain"
	"github.com/goautomatik/router-server/internal/threat"
)

// Registry é o cache de nós candidatos e sua liveness
type Registry struct {
	source   Source
	probe    Probe
	threats  *threat.Provider
	logger   *zap.Logger
	clock    clock.Clock
	interval time.Duration

	mu    sync.RWMutex
	nodes map[string]*domain.NodeHealthMetrics
}

// New cria o registro de nós
func New(source Source, probe Probe, threats *threat.Provider, logger *zap.Logger, clk clock.Clock, interval time.Duration) *Registry {
	return &Registry{
		source:   source,
		probe:    probe,
		threats:  threats,
		logger:   logger,
		clock:    clk,
		interval: interval,
		nodes:    make(map[string]*domain.NodeHealthMetrics),
	}
}

// FetchAll recarrega o conjunto de nós a partir da fonte externa.
// Latências já medidas são preservadas entre fetches.
func (r *Registry) FetchAll(ctx context.Context) ([]domain.NodeHealthMetrics, error) {
	fetched, err := r.source.FetchAll(ctx)
	if err != nil {
		return nil, err
	}

	now := r.clock.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	fresh := make(map[string]*domain.NodeHealthMetrics, len(fetched))
	for i := range fetched {
		node := fetched[i]
		node.ThreatLevel = int(r.threats.GetThreatLevel(node.Country()).ThreatLevel)

		if prev, ok := r.nodes[node.NodeID]; ok && node.LatencyMs == 0 {
			node.LatencyMs = prev.LatencyMs
		}
		// Staleness vence a flag vinda da fonte; só heartbeat novo reativa
		if node.HeartbeatStale(now) {
			node.IsActive = false
		}
		fresh[node.NodeID] = &node
	}
	r.nodes = fresh

	result := make([]domain.NodeHealthMetrics, 0, len(fresh))
	for _, node := range fresh {
		result = append(result, *node)
	}
	return result, nil
}

// RefreshHealth re-verifica a liveness dos nós em cache: mede latência e
// aplica o limiar de staleness de heartbeat. Este é o único caminho que
// desativa um nó localmente; a falha de um nó não aborta o ciclo dos outros.
// Os pings rodam fora do lock do registro para não bloquear as leituras
// durante a rodada; as medidas são aplicadas de uma vez ao final.
func (r *Registry) RefreshHealth(ctx context.Context) {
	now := r.clock.Now()

	r.mu.RLock()
	snapshot := make([]domain.NodeHealthMetrics, 0, len(r.nodes))
	for _, node := range r.nodes {
		snapshot = append(snapshot, *node)
	}
	r.mu.RUnlock()

	latencies := make(map[string]float64, len(snapshot))
	for i := range snapshot {
		node := snapshot[i]
		latency, err := r.probe.Ping(ctx, &node)
		if err != nil {
			r.logger.Warn("node health check failed",
				zap.String("node_id", node.NodeID), zap.Error(err))
			continue
		}
		latencies[node.NodeID] = float64(latency.Milliseconds())
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, node := range r.nodes {
		if latency, ok := latencies[node.NodeID]; ok {
			node.LatencyMs = latency
		}

		if node.IsActive && node.HeartbeatStale(now) {
			node.IsActive = false
			r.logger.Warn("node heartbeat stale, deactivating",
				zap.String("node_id", node.NodeID),
				zap.Time("last_heartbeat", node.LastHeartbeat))
		}
	}
}

// GetActive retorna os nós ativos ordenados por reputação decrescente
func (r *Registry) GetActive() []domain.NodeHealthMetrics {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.NodeHealthMetrics, 0, len(r.nodes))
	for _, node := range r.nodes {
		if node.IsActive {
			result = append(result, *node)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Reputation > result[j].Reputation })
	return result
}

// GetByLocation retorna nós cuja localização começa com o prefixo dado
func (r *Registry) GetByLocation(prefix string) []domain.NodeHealthMetrics {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []domain.NodeHealthMetrics
	for _, node := range r.nodes {
		if strings.HasPrefix(node.Location, prefix) {
			result = append(result, *node)
		}
	}
	return result
}

// GetByID retorna o nó pelo ID, ou nil se desconhecido
func (r *Registry) GetByID(nodeID string) *domain.NodeHealthMetrics {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if node, ok := r.nodes[nodeID]; ok {
		copied := *node
		return &copied
	}
	return nil
}

// NodeCount retorna o total de nós em cache
func (r *Registry) NodeCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.nodes)
}

// AverageLatency retorna a latência média dos nós ativos, em ms
func (r *Registry) AverageLatency() float64 {
	return r.averageOf(func(n *domain.NodeHealthMetrics) float64 { return n.LatencyMs })
}

// AverageUptime retorna o uptime médio dos nós ativos
func (r *Registry) AverageUptime() float64 {
	return r.averageOf(func(n *domain.NodeHealthMetrics) float64 { return n.UptimePct })
}

func (r *Registry) averageOf(field func(*domain.NodeHealthMetrics) float64) float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var sum float64
	var count int
	for _, node := range r.nodes {
		if node.IsActive {
			sum += field(node)
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}

// Start roda o ciclo periódico de fetch + health check
func (r *Registry) Start(ctx context.Context) {
	ticker := r.clock.Ticker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Debug("registry refresh loop stopped")
			return
		case <-ticker.C:
			if _, err := r.FetchAll(ctx); err != nil {
				// Mantém o cache anterior; o health check segue rodando
				r.logger.Error("registry fetch failed", zap.Error(err))
			}
			r.RefreshHealth(ctx)
		}
	}
}
