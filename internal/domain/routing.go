package domain

import "time"

// PriorityMode representa o modo de prioridade de um pedido de roteamento
type PriorityMode int

const (
	PriorityBalanced PriorityMode = iota
	PrioritySpeed
	PriorityPrivacy
)

func (m PriorityMode) String() string {
	switch m {
	case PrioritySpeed:
		return "speed"
	case PriorityPrivacy:
		return "privacy"
	default:
		return "balanced"
	}
}

// ParsePriorityMode converte a string da API para o modo correspondente.
// Valores desconhecidos caem em "balanced".
func ParsePriorityMode(s string) PriorityMode {
	switch s {
	case "speed":
		return PrioritySpeed
	case "privacy":
		return PriorityPrivacy
	default:
		return PriorityBalanced
	}
}

// UserRoutingRequest representa um pedido de roteamento; transiente, um por request
type UserRoutingRequest struct {
	UserID        string       `json:"user_id,omitempty"`
	UserLocation  string       `json:"user_location"` // código do país do requisitante
	Destination   string       `json:"destination"`
	BandwidthMbps float64      `json:"bandwidth_mbps,omitempty"`
	Priority      PriorityMode `json:"priority"`
}

// RoutingDecision é o resultado do motor de decisão: nó primário mais até
// três fallbacks, ordenados por score decrescente.
type RoutingDecision struct {
	PrimaryNode        *NodeHealthMetrics  `json:"primary_node"`
	FallbackNodes      []NodeHealthMetrics `json:"fallback_nodes"`
	Score              float64             `json:"score"`
	EstimatedLatencyMs float64             `json:"estimated_latency_ms"`
	ThreatAvoidance    bool                `json:"threat_avoidance"`
	Timestamp          time.Time           `json:"timestamp"`
	Cached             bool                `json:"cached,omitempty"`
}
