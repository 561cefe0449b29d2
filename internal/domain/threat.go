package domain

import "time"

// ThreatIntelligence representa o nível de risco de censura/vigilância de um país.
// Pertence ao provedor de threat intel; entradas nunca são removidas.
type ThreatIntelligence struct {
	CountryCode     string    `json:"country_code"`
	ThreatLevel     float64   `json:"threat_level"`     // [0,10]
	CensorshipScore float64   `json:"censorship_score"` // [0,100]
	DPIDetected     bool      `json:"dpi_detected"`
	LastUpdated     time.Time `json:"last_updated"`
	Sources         []string  `json:"sources"`
}
