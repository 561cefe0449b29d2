package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	goredis "github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/goautomatik/router-server/internal/config"
	"github.com/goautomatik/router-server/internal/events"
	"github.com/goautomatik/router-server/internal/ratelimit"
	"github.com/goautomatik/router-server/internal/registry"
	"github.com/goautomatik/router-server/internal/registry/grpcsource"
	"github.com/goautomatik/router-server/internal/registry/pgsource"
	redisrepo "github.com/goautomatik/router-server/internal/repository/redis"
	"github.com/goautomatik/router-server/internal/routing"
	"github.com/goautomatik/router-server/internal/server"
	"github.com/goautomatik/router-server/internal/session"
	"github.com/goautomatik/router-server/internal/telemetry"
	"github.com/goautomatik/router-server/internal/threat"
	"github.com/goautomatik/router-server/pkg/crypto/e2e"
)

func main() {
	// Carrega configurações
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := telemetry.NewLogger(cfg.LogLevel, cfg.Environment)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting router server",
		zap.String("environment", cfg.Environment),
		zap.Int("port", cfg.HTTPPort))

	clk := clock.New()
	metrics := telemetry.NewMetrics()
	bus := events.NewBus()

	// Contexto das tarefas de background; cancelado no shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Cache de decisões: indisponibilidade degrada para no-op
	redisClient := goredis.NewClient(&goredis.Options{
		Addr:         cfg.RedisAddr(),
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	cache := redisrepo.NewDecisionCache(ctx, redisClient, logger, cfg.DecisionCacheTTL)

	threats := threat.NewProvider(logger, clk, cfg.ThreatRefreshInterval)

	source, cleanup, err := buildSource(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize registry source", zap.Error(err))
	}
	defer cleanup()

	probe := registry.NewRandomProbe(time.Now().UnixNano())
	reg := registry.New(source, probe, threats, logger, clk, cfg.RefreshInterval)

	// Carga inicial: falha não é fatal, o loop periódico tenta de novo
	if _, err := reg.FetchAll(ctx); err != nil {
		logger.Warn("initial registry fetch failed", zap.Error(err))
	}

	engine := routing.NewEngine(reg, threats, cache, logger)
	sessions := session.NewManager(logger, clk, bus, cfg.SessionStaleAfter, cfg.SessionReapInterval)
	limiter := ratelimit.New(clk, cfg.RateLimitMax, cfg.RateLimitWindow)

	keyExchange, err := e2e.NewKeyExchangeService(clk, cfg.EncryptionSessionMaxAge)
	if err != nil {
		logger.Fatal("failed to initialize key exchange service", zap.Error(err))
	}
	// Todo término de sessão destrói a chave de criptografia associada,
	// inclusive os términos feitos pela colheita de sessões inativas
	sessions.OnTerminate(keyExchange.DestroySession)

	sampler := telemetry.NewSampler(metrics, clk, 10*time.Second)

	srv := server.New(cfg, logger, metrics, reg, threats, engine, sessions, cache, limiter, keyExchange, bus)

	// Tarefas periódicas independentes, cada uma cancelável pelo contexto
	var wg sync.WaitGroup
	background := []func(context.Context){
		reg.Start,
		threats.Start,
		sessions.Start,
		limiter.Start,
		keyExchange.Start,
		sampler.Start,
	}
	for _, task := range background {
		wg.Add(1)
		go func(run func(context.Context)) {
			defer wg.Done()
			run(ctx)
		}(task)
	}

	// Broadcast de estatísticas para os assinantes do canal de eventos
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := clk.Ticker(cfg.StatsInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				stats := sessions.Stats()
				metrics.ActiveSessions.Set(float64(stats.ActiveConnections))
				metrics.ActiveNodes.Set(float64(len(reg.GetActive())))
				bus.Publish(events.TypeStatsUpdate, stats)
			}
		}
	}()

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.Start()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
	case err := <-serverErr:
		if err != nil {
			logger.Error("http server failed", zap.Error(err))
		}
	}

	// Ordem de drain: para de aceitar trabalho novo, depois os timers de
	// background, por fim a conexão do cache.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown error", zap.Error(err))
	}

	cancel()
	wg.Wait()
	bus.Close()

	if err := cache.Close(); err != nil {
		logger.Warn("cache close error", zap.Error(err))
	}

	logger.Info("router server stopped")
}

// buildSource seleciona a fonte de metadados de relays pela configuração
func buildSource(ctx context.Context, cfg *config.Config, logger *zap.Logger) (registry.Source, func(), error) {
	switch cfg.RegistrySource {
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.PostgresDSN())
		if err != nil {
			return nil, nil, err
		}
		src := pgsource.New(pool)
		if err := src.CreateTables(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return src, pool.Close, nil

	case "static":
		// Desenvolvimento sem registry externo
		return &registry.StaticSource{}, func() {}, nil

	default:
		client, err := grpcsource.Dial(cfg.RegistryEndpoint, logger)
		if err != nil {
			return nil, nil, err
		}
		return client, func() { client.Close() }, nil
	}
}
