package domain

import "time"

// Connection representa uma sessão ativa cliente<->nó.
// Criada pelo gerenciador de sessões; nunca mutada após terminar.
type Connection struct {
	SessionID        string    `json:"session_id"`
	UserID           string    `json:"user_id"`
	NodeID           string    `json:"node_id"`
	StartTime        time.Time `json:"start_time"`
	BytesTransferred int64     `json:"bytes_transferred"` // monotônico não-decrescente
	PacketsIn        int64     `json:"packets_in"`
	PacketsOut       int64     `json:"packets_out"`
	LastActivity     time.Time `json:"last_activity"`
	IsActive         bool      `json:"is_active"`
}

// TrafficStats são contadores agregados derivados das sessões ativas e históricas
type TrafficStats struct {
	TotalConnections  int64   `json:"total_connections"`
	ActiveConnections int     `json:"active_connections"`
	TotalBytes        int64   `json:"total_bytes"`
	AverageLatencyMs  float64 `json:"average_latency_ms"` // proxy por gaps de inatividade
	FailedConnections int64   `json:"failed_connections"`
	SuccessRate       float64 `json:"success_rate"`
}
