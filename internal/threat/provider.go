// Package threat mantém a tabela de risco de censura por país usada pelo
// motor de roteamento para evitar regiões hostis.
package threat

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/goautomatik/router-server/internal/domain"
)

const (
	// DefaultThreatLevel é atribuído a países fora da tabela; nunca é erro
	DefaultThreatLevel = 3.0

	HighRiskThreshold = 7.0
	SafeThreshold     = 3.0

	maxThreatLevel = 10.0
	// perturbationRange limita a variação aleatória aplicada por refresh
	perturbationRange = 0.5
)

// seedEntry é uma linha da tabela estática de baseline
type seedEntry struct {
	country    string
	level      float64
	censorship float64
	dpi        bool
}

// Baseline estático; um refresh de produção substitui a perturbação por uma
// leitura externa mantendo o contrato de clamp [0,10].
var baseline = []seedEntry{
	{"CN", 9.5, 95, true},
	{"IR", 9.0, 90, true},
	{"KP", 10.0, 100, true},
	{"RU", 8.0, 75, true},
	{"TM", 8.5, 85, true},
	{"BY", 7.5, 70, true},
	{"SA", 7.0, 65, true},
	{"AE", 6.5, 60, true},
	{"VN", 6.0, 55, false},
	{"TR", 5.5, 50, false},
	{"IN", 4.5, 40, false},
	{"BR", 2.5, 20, false},
	{"US", 2.0, 15, false},
	{"GB", 2.0, 15, false},
	{"DE", 1.0, 5, false},
	{"FR", 1.5, 10, false},
	{"JP", 1.0, 5, false},
	{"NL", 0.5, 5, false},
	{"CH", 0.5, 5, false},
	{"SE", 0.5, 5, false},
}

// Provider mantém e atualiza a threat intelligence por país
type Provider struct {
	logger   *zap.Logger
	clock    clock.Clock
	interval time.Duration
	rng      *rand.Rand

	mu      sync.RWMutex
	entries map[string]domain.ThreatIntelligence
}

// NewProvider cria o provedor com a tabela de baseline carregada
func NewProvider(logger *zap.Logger, clk clock.Clock, interval time.Duration) *Provider {
	p := &Provider{
		logger:   logger,
		clock:    clk,
		interval: interval,
		rng:      rand.New(rand.NewSource(clk.Now().UnixNano())),
		entries:  make(map[string]domain.ThreatIntelligence, len(baseline)),
	}

	now := clk.Now()
	for _, seed := range baseline {
		p.entries[seed.country] = domain.ThreatIntelligence{
			CountryCode:     seed.country,
			ThreatLevel:     seed.level,
			CensorshipScore: seed.censorship,
			DPIDetected:     seed.dpi,
			LastUpdated:     now,
			Sources:         []string{"baseline"},
		}
	}
	return p
}

// GetThreatLevel retorna a entrada do país; países desconhecidos recebem
// uma entrada default de nível médio em vez de erro.
func (p *Provider) GetThreatLevel(countryCode string) domain.ThreatIntelligence {
	p.mu.RLock()
	entry, ok := p.entries[countryCode]
	p.mu.RUnlock()
	if ok {
		return entry
	}

	return domain.ThreatIntelligence{
		CountryCode:     countryCode,
		ThreatLevel:     DefaultThreatLevel,
		CensorshipScore: 30,
		DPIDetected:     false,
		LastUpdated:     p.clock.Now(),
		Sources:         []string{"default"},
	}
}

// GetHighRiskCountries retorna países com nível acima do limiar
func (p *Provider) GetHighRiskCountries(threshold float64) []domain.ThreatIntelligence {
	return p.filter(func(t domain.ThreatIntelligence) bool { return t.ThreatLevel > threshold })
}

// GetSafeCountries retorna países com nível abaixo do limiar
func (p *Provider) GetSafeCountries(threshold float64) []domain.ThreatIntelligence {
	return p.filter(func(t domain.ThreatIntelligence) bool { return t.ThreatLevel < threshold })
}

// GetAll retorna todas as entradas conhecidas, ordenadas por país
func (p *Provider) GetAll() []domain.ThreatIntelligence {
	return p.filter(func(domain.ThreatIntelligence) bool { return true })
}

func (p *Provider) filter(keep func(domain.ThreatIntelligence) bool) []domain.ThreatIntelligence {
	p.mu.RLock()
	defer p.mu.RUnlock()

	result := make([]domain.ThreatIntelligence, 0, len(p.entries))
	for _, entry := range p.entries {
		if keep(entry) {
			result = append(result, entry)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CountryCode < result[j].CountryCode })
	return result
}

// Refresh aplica uma perturbação pequena e limitada a cada entrada,
// simulando atualização de sinal ao vivo. Clamp em [0,10].
func (p *Provider) Refresh() {
	now := p.clock.Now()

	p.mu.Lock()
	defer p.mu.Unlock()
	for code, entry := range p.entries {
		delta := (p.rng.Float64()*2 - 1) * perturbationRange
		level := entry.ThreatLevel + delta
		if level < 0 {
			level = 0
		}
		if level > maxThreatLevel {
			level = maxThreatLevel
		}

		entry.ThreatLevel = level
		entry.LastUpdated = now
		p.entries[code] = entry
	}
}

// Start roda o refresh periódico até o contexto ser cancelado
func (p *Provider) Start(ctx context.Context) {
	ticker := p.clock.Ticker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Debug("threat refresh loop stopped")
			return
		case <-ticker.C:
			p.Refresh()
		}
	}
}
