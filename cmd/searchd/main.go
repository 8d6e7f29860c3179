// Command searchd serves the incident knowledge-base search API. It loads
// the record corpus from PostgreSQL into an in-memory inverted index, keeps
// the index in step with record-events from Kafka, and answers queries over
// HTTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mainframe-kb/incident-search/internal/analytics"
	"github.com/mainframe-kb/incident-search/internal/index"
	"github.com/mainframe-kb/incident-search/internal/index/consumer"
	"github.com/mainframe-kb/incident-search/internal/searcher"
	"github.com/mainframe-kb/incident-search/internal/searcher/cache"
	"github.com/mainframe-kb/incident-search/internal/searcher/executor"
	"github.com/mainframe-kb/incident-search/internal/searcher/handler"
	"github.com/mainframe-kb/incident-search/internal/store"
	"github.com/mainframe-kb/incident-search/pkg/config"
	"github.com/mainframe-kb/incident-search/pkg/health"
	"github.com/mainframe-kb/incident-search/pkg/kafka"
	"github.com/mainframe-kb/incident-search/pkg/logger"
	"github.com/mainframe-kb/incident-search/pkg/metrics"
	"github.com/mainframe-kb/incident-search/pkg/middleware"
	"github.com/mainframe-kb/incident-search/pkg/postgres"
	pkgredis "github.com/mainframe-kb/incident-search/pkg/redis"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting search service", "port", cfg.Server.Port)

	m := metrics.New()
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownMetrics(ctx); err != nil {
				slog.Error("metrics server shutdown error", "error", err)
			}
		}()
	}

	pg, err := postgres.New(cfg.Postgres)
	if err != nil {
		slog.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer pg.Close()
	recordStore := store.NewPostgres(pg)

	resultCache, redisClient := buildCache(cfg)
	if redisClient != nil {
		defer redisClient.Close()
	}

	engine := index.NewEngine()
	exec := executor.New(engine, executor.Params{
		K1:         cfg.Search.Ranking.K1,
		B:          cfg.Search.Ranking.B,
		TitleBoost: cfg.Search.Ranking.TitleBoost,
	})
	svc := searcher.New(cfg.Search, searcher.Deps{
		Store:    recordStore,
		Index:    engine,
		Executor: exec,
		Cache:    resultCache,
		Metrics:  m,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := svc.RebuildFromStore(ctx); err != nil {
		// The degraded scan path still answers queries, so start anyway.
		slog.Error("initial index rebuild failed, serving degraded until records arrive", "error", err)
	}

	eventsProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.SearchEvents)
	defer eventsProducer.Close()
	collector := analytics.NewCollector(eventsProducer, 100, 5*time.Second)
	collector.Start(ctx)
	defer collector.Close()

	recordConsumer := consumer.New(kafka.NewConsumer(
		cfg.Kafka, cfg.Kafka.Topics.RecordEvents, consumer.HandleRecordEvent(svc)))
	go func() {
		if err := recordConsumer.Start(ctx); err != nil {
			slog.Error("record consumer error", "error", err)
		}
	}()

	checker := health.NewChecker()
	checker.Register("postgres", func(ctx context.Context) health.ComponentHealth {
		if err := pg.DB.PingContext(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})
	checker.Register("index", func(ctx context.Context) health.ComponentHealth {
		stats := svc.Statistics().Index
		if stats.Documents == 0 {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "index empty"}
		}
		return health.ComponentHealth{
			Status:  health.StatusUp,
			Message: fmt.Sprintf("%d records, %d terms", stats.Documents, stats.Terms),
		}
	})
	if redisClient != nil {
		checker.Register("redis", func(ctx context.Context) health.ComponentHealth {
			if err := redisClient.Ping(ctx); err != nil {
				return health.ComponentHealth{Status: health.StatusDegraded, Message: err.Error()}
			}
			return health.ComponentHealth{Status: health.StatusUp}
		})
	}

	h := handler.New(svc, collector)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("GET /api/v1/search/statistics", h.Statistics)
	mux.HandleFunc("GET /api/v1/search/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/search/cache/invalidate", h.CacheInvalidate)
	mux.HandleFunc("POST /api/v1/index/rebuild", h.Rebuild)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Metrics(m)(chain)
	chain = middleware.Tracing(chain)
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("search service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("search service stopped")
}

// buildCache selects the result-cache backend. Redis trouble is not fatal:
// the in-process cache serves a single instance perfectly well.
func buildCache(cfg *config.Config) (searcher.ResultCache, *pkgredis.Client) {
	if cfg.Cache.Backend == "redis" {
		client, err := pkgredis.NewClient(cfg.Redis)
		if err == nil {
			slog.Info("result cache backend: redis", "addr", cfg.Redis.Addr, "ttl", cfg.Cache.TTL)
			return cache.NewRedis[*searcher.Response](client, cfg.Cache.TTL), client
		}
		slog.Warn("redis unavailable, using in-process result cache", "error", err)
	}
	slog.Info("result cache backend: memory", "max_entries", cfg.Cache.MaxEntries, "ttl", cfg.Cache.TTL)
	return cache.NewMemory[*searcher.Response](cfg.Cache.MaxEntries, cfg.Cache.TTL), nil
}
