// Package server expõe a superfície HTTP e o canal de eventos websocket.
// A camada é fina: validação, mapeamento de erros e delegação para os
// serviços do core.
package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/goautomatik/router-server/internal/config"
	"github.com/goautomatik/router-server/internal/ratelimit"
	"github.com/goautomatik/router-server/internal/registry"
	redisrepo "github.com/goautomatik/router-server/internal/repository/redis"
	"github.com/goautomatik/router-server/internal/routing"
	"github.com/goautomatik/router-server/internal/session"
	"github.com/goautomatik/router-server/internal/telemetry"
	"github.com/goautomatik/router-server/internal/threat"

	"github.com/goautomatik/router-server/internal/events"
	"github.com/goautomatik/router-server/pkg/crypto/e2e"
)

// Server agrega as dependências da superfície externa
type Server struct {
	cfg         *config.Config
	logger      *zap.Logger
	metrics     *telemetry.Metrics
	registry    *registry.Registry
	threats     *threat.Provider
	engine      *routing.Engine
	sessions    *session.Manager
	cache       *redisrepo.DecisionCache
	limiter     *ratelimit.Limiter
	keyExchange *e2e.KeyExchangeService
	bus         *events.Bus
	hub         *wsHub

	httpServer *http.Server
	startedAt  time.Time
}

// New monta o servidor com todas as dependências explícitas
func New(
	cfg *config.Config,
	logger *zap.Logger,
	metrics *telemetry.Metrics,
	reg *registry.Registry,
	threats *threat.Provider,
	engine *routing.Engine,
	sessions *session.Manager,
	cache *redisrepo.DecisionCache,
	limiter *ratelimit.Limiter,
	keyExchange *e2e.KeyExchangeService,
	bus *events.Bus,
) *Server {
	allowAll := cfg.CORSOrigins == "*"
	s := &Server{
		cfg:         cfg,
		logger:      logger,
		metrics:     metrics,
		registry:    reg,
		threats:     threats,
		engine:      engine,
		sessions:    sessions,
		cache:       cache,
		limiter:     limiter,
		keyExchange: keyExchange,
		bus:         bus,
		hub:         newWSHub(logger, bus, allowAll),
		startedAt:   time.Now(),
	}

	s.httpServer = &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.HTTPPort),
		Handler:      s.routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  2 * time.Minute,
	}
	return s
}

// routes monta o router chi com os middlewares globais
func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.cors)
	r.Use(s.observability)

	r.Get("/metrics", s.metrics.Handler().ServeHTTP)
	r.Get("/ws", s.hub.handle)

	r.Route("/api", func(r chi.Router) {
		r.Use(s.limiter.Middleware(s.metrics.RateLimitRejected, s.rejectRateLimited))

		r.Get("/health", s.handleHealth)
		r.Get("/stats", s.handleStats)
		r.Get("/metrics.json", s.handleMetricsJSON)

		r.Route("/routing", func(r chi.Router) {
			r.Get("/optimal-node", s.handleOptimalNode)
			r.Get("/nearby-nodes", s.handleNearbyNodes)
			r.Post("/report-failure", s.handleReportFailure)
		})

		r.Route("/nodes", func(r chi.Router) {
			r.Get("/health-status", s.handleNodesHealthStatus)
			r.Get("/{nodeID}", s.handleGetNode)
		})

		r.Route("/threat-intel", func(r chi.Router) {
			r.Get("/", s.handleThreatIntelAll)
			r.Get("/{countryCode}", s.handleThreatIntel)
		})

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", s.handleEstablishSession)
			r.Post("/{sessionID}/switch", s.handleSwitchNode)
			r.Post("/{sessionID}/key-exchange", s.handleKeyExchange)
			r.Delete("/{sessionID}", s.handleTerminateSession)
		})

		r.Get("/crypto/public-key", s.handleServerPublicKey)
	})

	return r
}

// Handler expõe o router montado; usado nos testes
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start bloqueia servindo HTTP até Shutdown
func (s *Server) Start() error {
	s.logger.Info("http server listening", zap.String("addr", s.httpServer.Addr))
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown para de aceitar trabalho novo e derruba as conexões websocket.
// Os timers de background e a conexão do cache são encerrados pelo main,
// na ordem de drain documentada.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.closeAll()
	return s.httpServer.Shutdown(ctx)
}
