package domain

import (
	"strings"
	"time"
)

// HeartbeatStaleAfter é o limiar a partir do qual um nó sem heartbeat
// recente é considerado inativo. Apenas um heartbeat novo reativa o nó.
const HeartbeatStaleAfter = 300 * time.Second

// NodeHealthMetrics representa as métricas de saúde de um nó relay.
// Pertence exclusivamente ao registro de nós; apenas o ciclo de polling muta.
type NodeHealthMetrics struct {
	NodeID        string    `json:"node_id"`
	Operator      string    `json:"operator"`
	Location      string    `json:"location"` // formato "COUNTRY-CITY"
	LatencyMs     float64   `json:"latency_ms"`
	UptimePct     float64   `json:"uptime_pct"` // [0,100]
	Reputation    float64   `json:"reputation"` // [0,100]
	BandwidthMbps float64   `json:"bandwidth_mbps"`
	PricePerGB    float64   `json:"price_per_gb"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
	IsActive      bool      `json:"is_active"`
	ThreatLevel   int       `json:"threat_level"` // [0,10], herdado do país do nó
	SuccessRate   float64   `json:"success_rate,omitempty"`
	LossRate      float64   `json:"loss_rate,omitempty"`
}

// Country retorna o código do país a partir da localização "COUNTRY-CITY"
func (n *NodeHealthMetrics) Country() string {
	if idx := strings.Index(n.Location, "-"); idx > 0 {
		return n.Location[:idx]
	}
	return n.Location
}

// HeartbeatStale verifica se o último heartbeat excedeu o limiar de staleness
func (n *NodeHealthMetrics) HeartbeatStale(now time.Time) bool {
	return now.Sub(n.LastHeartbeat) > HeartbeatStaleAfter
}
