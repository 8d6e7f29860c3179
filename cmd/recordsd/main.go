// Command recordsd serves the record mutation API: create, update, delete,
// and usage feedback. PostgreSQL is the source of truth; every accepted
// mutation is published to Kafka so search instances update their indexes.
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

	"github.com/mainframe-kb/incident-search/internal/records"
	"github.com/mainframe-kb/incident-search/internal/store"
	"github.com/mainframe-kb/incident-search/pkg/config"
	"github.com/mainframe-kb/incident-search/pkg/health"
	"github.com/mainframe-kb/incident-search/pkg/kafka"
	"github.com/mainframe-kb/incident-search/pkg/logger"
	"github.com/mainframe-kb/incident-search/pkg/metrics"
	"github.com/mainframe-kb/incident-search/pkg/middleware"
	"github.com/mainframe-kb/incident-search/pkg/postgres"
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
	slog.Info("starting records service", "port", cfg.Server.Port)

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

	producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.RecordEvents)
	defer producer.Close()

	publisher := records.New(pg, producer)
	h := records.NewHandler(publisher, store.NewPostgres(pg))

	checker := health.NewChecker()
	checker.Register("postgres", func(ctx context.Context) health.ComponentHealth {
		if err := pg.DB.PingContext(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/records", h.Upsert)
	mux.HandleFunc("PUT /api/v1/records/{id}", h.Upsert)
	mux.HandleFunc("GET /api/v1/records/{id}", h.Get)
	mux.HandleFunc("DELETE /api/v1/records/{id}", h.Delete)
	mux.HandleFunc("POST /api/v1/records/{id}/feedback", h.Feedback)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Metrics(m)(chain)
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	chain = middleware.RequestID(chain)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	slog.Info("records service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("records service stopped")
}
