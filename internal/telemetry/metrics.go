package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// LatencyBuckets são os limites fixos (ms) dos histogramas de latência
var LatencyBuckets = []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000}

// Metrics agrega todos os instrumentos do processo em um registry privado.
// Construído explicitamente e passado por referência (sem estado global).
type Metrics struct {
	registry *prometheus.Registry

	RequestsTotal     *prometheus.CounterVec
	RequestDurationMs *prometheus.HistogramVec
	RoutingDecisions  *prometheus.CounterVec
	CacheHits         prometheus.Counter
	CacheMisses       prometheus.Counter
	ActiveSessions    prometheus.Gauge
	ActiveNodes       prometheus.Gauge
	FailedConnections prometheus.Counter
	RateLimitRejected prometheus.Counter
	KeyExchanges      prometheus.Counter

	ProcessUptimeSeconds prometheus.Gauge
	ProcessMemoryBytes   prometheus.Gauge
	ProcessGoroutines    prometheus.Gauge
}

// NewMetrics cria e registra todos os instrumentos
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "router_http_requests_total",
			Help: "Total de requests HTTP por rota e status",
		}, []string{"path", "status"}),
		RequestDurationMs: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "router_http_request_duration_ms",
			Help:    "Duração das requests HTTP em milissegundos",
			Buckets: LatencyBuckets,
		}, []string{"path"}),
		RoutingDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "router_routing_decisions_total",
			Help: "Decisões de roteamento por modo de prioridade",
		}, []string{"priority"}),
		CacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "router_decision_cache_hits_total",
			Help: "Hits no cache de decisões",
		}),
		CacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Name: "router_decision_cache_misses_total",
			Help: "Misses no cache de decisões",
		}),
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "router_active_sessions",
			Help: "Sessões ativas no momento",
		}),
		ActiveNodes: factory.NewGauge(prometheus.GaugeOpts{
			Name: "router_active_nodes",
			Help: "Nós relay ativos conhecidos",
		}),
		FailedConnections: factory.NewCounter(prometheus.CounterOpts{
			Name: "router_failed_connections_total",
			Help: "Conexões que falharam ao estabelecer",
		}),
		RateLimitRejected: factory.NewCounter(prometheus.CounterOpts{
			Name: "router_ratelimit_rejections_total",
			Help: "Requests rejeitadas pelo rate limiter",
		}),
		KeyExchanges: factory.NewCounter(prometheus.CounterOpts{
			Name: "router_key_exchanges_total",
			Help: "Trocas de chave concluídas",
		}),
		ProcessUptimeSeconds: factory.NewGauge(prometheus.GaugeOpts{
			Name: "router_process_uptime_seconds",
			Help: "Uptime do processo em segundos",
		}),
		ProcessMemoryBytes: factory.NewGauge(prometheus.GaugeOpts{
			Name: "router_process_memory_bytes",
			Help: "Memória heap alocada",
		}),
		ProcessGoroutines: factory.NewGauge(prometheus.GaugeOpts{
			Name: "router_process_goroutines",
			Help: "Goroutines vivas",
		}),
	}
}

// Handler expõe o registry no formato de texto Prometheus
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// MetricPoint é a forma serializada de uma métrica no exportador JSON
type MetricPoint struct {
	Name   string            `json:"name"`
	Type   string            `json:"type"`
	Labels map[string]string `json:"labels,omitempty"`
	Value  float64           `json:"value"`
}

// ExportJSON materializa o estado atual do registry como pontos JSON.
// Histogramas são exportados como a soma e a contagem.
func (m *Metrics) ExportJSON() ([]MetricPoint, error) {
	families, err := m.registry.Gather()
	if err != nil {
		return nil, err
	}

	var points []MetricPoint
	for _, fam := range families {
		for _, metric := range fam.GetMetric() {
			labels := make(map[string]string, len(metric.GetLabel()))
			for _, pair := range metric.GetLabel() {
				labels[pair.GetName()] = pair.GetValue()
			}

			point := MetricPoint{
				Name:   fam.GetName(),
				Type:   fam.GetType().String(),
				Labels: labels,
			}

			switch {
			case metric.GetCounter() != nil:
				point.Value = metric.GetCounter().GetValue()
			case metric.GetGauge() != nil:
				point.Value = metric.GetGauge().GetValue()
			case metric.GetHistogram() != nil:
				h := metric.GetHistogram()
				points = append(points, MetricPoint{
					Name: fam.GetName() + "_count", Type: "HISTOGRAM",
					Labels: labels, Value: float64(h.GetSampleCount()),
				})
				point.Name = fam.GetName() + "_sum"
				point.Value = h.GetSampleSum()
			}

			points = append(points, point)
		}
	}
	return points, nil
}
