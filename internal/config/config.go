package config

import (
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config contém todas as configurações do Router Server
type Config struct {
	// Server
	HTTPPort    int    `envconfig:"HTTP_PORT" default:"8080"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	CORSOrigins string `envconfig:"CORS_ORIGINS" default:"*"`

	// Registry de relays (fonte de metadados)
	RegistryEndpoint string        `envconfig:"REGISTRY_RPC_ENDPOINT" default:"localhost:50051"`
	RegistrySource   string        `envconfig:"REGISTRY_SOURCE" default:"grpc"` // grpc | postgres | static
	RefreshInterval  time.Duration `envconfig:"REGISTRY_REFRESH_INTERVAL" default:"60s"`

	// Threat intel
	ThreatEndpoint        string        `envconfig:"THREAT_ENDPOINT" default:""`
	ThreatRefreshInterval time.Duration `envconfig:"THREAT_REFRESH_INTERVAL" default:"30s"`

	// Redis (cache de decisões)
	RedisHost     string `envconfig:"REDIS_HOST" default:"localhost"`
	RedisPort     int    `envconfig:"REDIS_PORT" default:"6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	// PostgreSQL (espelho opcional do registry)
	PostgresHost     string `envconfig:"POSTGRES_HOST" default:"localhost"`
	PostgresPort     int    `envconfig:"POSTGRES_PORT" default:"5432"`
	PostgresUser     string `envconfig:"POSTGRES_USER" default:"router"`
	PostgresPassword string `envconfig:"POSTGRES_PASSWORD" default:"router_secret"`
	PostgresDB       string `envconfig:"POSTGRES_DB" default:"relay_registry"`
	PostgresSSL      string `envconfig:"POSTGRES_SSL" default:"disable"`

	// Rate limiting
	RateLimitWindow time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"60s"`
	RateLimitMax    int           `envconfig:"RATE_LIMIT_MAX_REQUESTS" default:"100"`

	// Sessões
	SessionReapInterval time.Duration `envconfig:"SESSION_REAP_INTERVAL" default:"60s"`
	SessionStaleAfter   time.Duration `envconfig:"SESSION_STALE_AFTER" default:"300s"`

	// Criptografia
	EncryptionSessionMaxAge time.Duration `envconfig:"ENCRYPTION_SESSION_MAX_AGE" default:"1h"`

	// Cache de decisões
	DecisionCacheTTL time.Duration `envconfig:"DECISION_CACHE_TTL" default:"300s"`

	// Broadcast de estatísticas
	StatsInterval time.Duration `envconfig:"STATS_INTERVAL" default:"30s"`
}

// Load carrega as configurações a partir de variáveis de ambiente
func Load() (*Config, error) {
	cfg := &Config{}
	if err := envconfig.Process("", cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// RedisAddr retorna o endereço do Redis
func (c *Config) RedisAddr() string {
	return c.RedisHost + ":" + strconv.Itoa(c.RedisPort)
}

// PostgresDSN retorna a string de conexão do PostgreSQL
func (c *Config) PostgresDSN() string {
	return "postgres://" + c.PostgresUser + ":" + c.PostgresPassword +
		"@" + c.PostgresHost + ":" + strconv.Itoa(c.PostgresPort) +
		"/" + c.PostgresDB + "?sslmode=" + c.PostgresSSL
}

// AllowedOrigins retorna a lista de origens CORS permitidas
func (c *Config) AllowedOrigins() []string {
	parts := strings.Split(c.CORSOrigins, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}

// IsProduction indica se o servidor roda em modo produção
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
