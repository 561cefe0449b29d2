package registry

import (
	"context"
	"math/rand"
	"time"

	"github.com/goautomatik/router-server/internal/domain"
)

// Source é a fonte externa de metadados de relays (read-only).
// Implementações: cliente gRPC do registry, espelho PostgreSQL e a fonte
// estática usada em testes e desenvolvimento.
type Source interface {
	FetchAll(ctx context.Context) ([]domain.NodeHealthMetrics, error)
}

// Probe mede a latência de um nó. A implementação default é um gerador
// pseudo-aleatório; uma sonda ICMP/TCP real é plugada aqui sem tocar no
// registro.
type Probe interface {
	Ping(ctx context.Context, node *domain.NodeHealthMetrics) (time.Duration, error)
}

// StaticSource serve um conjunto fixo de nós; útil em testes
type StaticSource struct {
	Nodes []domain.NodeHealthMetrics
}

func (s *StaticSource) FetchAll(_ context.Context) ([]domain.NodeHealthMetrics, error) {
	out := make([]domain.NodeHealthMetrics, len(s.Nodes))
	copy(out, s.Nodes)
	return out, nil
}

// RandomProbe devolve uma latência pseudo-aleatória entre 10ms e 210ms
type RandomProbe struct {
	rng *rand.Rand
}

// NewRandomProbe cria a sonda placeholder
func NewRandomProbe(seed int64) *RandomProbe {
	return &RandomProbe{rng: rand.New(rand.NewSource(seed))}
}

func (p *RandomProbe) Ping(_ context.Context, _ *domain.NodeHealthMetrics) (time.Duration, error) {
	return time.Duration(10+p.rng.Intn(200)) * time.Millisecond, nil
}
