package telemetry

import (
	"context"
	"runtime"
	"time"

	"github.com/benbjohnson/clock"
)

// Sampler publica gauges de nível de processo em intervalo fixo
type Sampler struct {
	metrics  *Metrics
	clock    clock.Clock
	interval time.Duration
	started  time.Time
}

// NewSampler cria um sampler de métricas de processo
func NewSampler(metrics *Metrics, clk clock.Clock, interval time.Duration) *Sampler {
	return &Sampler{
		metrics:  metrics,
		clock:    clk,
		interval: interval,
		started:  clk.Now(),
	}
}

// Start roda o loop de amostragem até o contexto ser cancelado
func (s *Sampler) Start(ctx context.Context) {
	ticker := s.clock.Ticker(s.interval)
	defer ticker.Stop()

	s.sample()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sample()
		}
	}
}

func (s *Sampler) sample() {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	s.metrics.ProcessMemoryBytes.Set(float64(mem.HeapAlloc))
	s.metrics.ProcessGoroutines.Set(float64(runtime.NumGoroutine()))
	s.metrics.ProcessUptimeSeconds.Set(s.clock.Since(s.started).Seconds())
}
