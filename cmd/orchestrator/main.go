package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"github.com/mentorlabs/deepresearch/internal/activities"
	"github.com/mentorlabs/deepresearch/internal/config"
	"github.com/mentorlabs/deepresearch/internal/db"
	"github.com/mentorlabs/deepresearch/internal/httpapi"
	"github.com/mentorlabs/deepresearch/internal/llm"
	"github.com/mentorlabs/deepresearch/internal/streaming"
	"github.com/mentorlabs/deepresearch/internal/temporal"
	"github.com/mentorlabs/deepresearch/internal/tools"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load("")
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}
	logger.Info("Deep research service starting",
		zap.Int("max_parallel_topics", cfg.Research.MaxParallelTopics),
		zap.Bool("sequential", cfg.Research.Sequential))

	// Persistence is best-effort at startup; the engine runs without it and
	// reports then live only in workflow histories.
	var store *db.Store
	if s, err := db.NewStore(cfg.Postgres.DSN(), logger.Named("db")); err != nil {
		logger.Warn("Postgres unavailable, running without persistence", zap.Error(err))
	} else {
		store = s
		defer store.Close()
	}

	var redisClient *redis.Client
	if cfg.Streaming.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.Streaming.RedisAddr})
		pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			logger.Warn("Redis unavailable, event mirror disabled", zap.Error(err))
			redisClient = nil
		}
		cancel()
	}
	streams := streaming.NewManager(cfg.Streaming.RingCapacity, redisClient, logger.Named("streaming"))

	invoker := llm.NewClient(llm.Config{
		BaseURL:     cfg.LLM.BaseURL,
		Timeout:     cfg.LLM.Timeout,
		MaxAttempts: cfg.LLM.MaxAttempts,
		RatePerSec:  cfg.LLM.RatePerSec,
		Burst:       cfg.LLM.Burst,
	})

	registry := tools.NewRegistry()
	search := tools.NewWebSearch(cfg.Tools.SearchURL)
	search.MaxResults = cfg.Tools.MaxResults
	if err := registry.Register(search); err != nil {
		logger.Fatal("Tool registration failed", zap.Error(err))
	}
	if err := registry.Register(tools.NewWebFetch(cfg.Tools.FetchURL)); err != nil {
		logger.Fatal("Tool registration failed", zap.Error(err))
	}
	logger.Info("Tools registered", zap.Strings("tools", registry.Names()))

	tClient := dialTemporalWithRetry(cfg, logger)
	defer tClient.Close()

	acts := activities.NewActivities(invoker, registry, streams, store, logger.Named("activities"))
	w := temporal.NewWorker(tClient, cfg.Temporal.TaskQueue, acts)
	if err := w.Start(); err != nil {
		logger.Fatal("Worker start failed", zap.Error(err))
	}
	logger.Info("Worker polling", zap.String("task_queue", cfg.Temporal.TaskQueue))

	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.MetricsPort)
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info("Metrics server listening", zap.String("address", addr))
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Error("Metrics server failed", zap.Error(err))
		}
	}()

	api := httpapi.NewHandler(tClient, store, streams, cfg, logger.Named("api"))
	apiServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           api.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("API server listening", zap.String("address", apiServer.Addr))
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("API server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("API shutdown failed", zap.Error(err))
	}
	w.Stop()
}

// dialTemporalWithRetry blocks until the cluster answers. The service is
// useless without Temporal, so there is no fallback path.
func dialTemporalWithRetry(cfg *config.Config, logger *zap.Logger) client.Client {
	for attempt := 1; ; attempt++ {
		c, err := temporal.Dial(cfg.Temporal, logger)
		if err == nil {
			logger.Info("Connected to Temporal",
				zap.String("host_port", cfg.Temporal.HostPort),
				zap.String("namespace", cfg.Temporal.Namespace))
			return c
		}
		delay := time.Duration(attempt) * time.Second
		if delay > 15*time.Second {
			delay = 15 * time.Second
		}
		logger.Warn("Temporal not ready, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("sleep", delay),
			zap.Error(err))
		time.Sleep(delay)
	}
}
