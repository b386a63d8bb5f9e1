package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"ledgerqa/internal/amqp"
	"ledgerqa/internal/assistant"
	"ledgerqa/internal/audit"
	"ledgerqa/internal/cache"
	"ledgerqa/internal/config"
	"ledgerqa/internal/facts"
	apphttp "ledgerqa/internal/http"
	"ledgerqa/internal/llm/gemini"
	applog "ledgerqa/internal/log"
	"ledgerqa/internal/period"
	"ledgerqa/internal/storage"
	"ledgerqa/internal/worker"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	cfg := config.Load()

	logger := applog.New(applog.Config{
		Level:     applog.ParseLevel(cfg.LogLevel),
		Format:    cfg.LogFormat,
		Component: applog.ComponentApp,
		Output:    os.Stdout,
	})
	applog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", applog.FieldError, err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	builder := facts.NewBuilder(
		period.NewResolver(),
		facts.NewAggregator(facts.DefaultClassifier()),
		facts.Options{OperationLimit: cfg.OperationLimit},
	)
	gate := audit.NewGate(audit.WithTolerance(cfg.AuditTolerance))

	opts := []assistant.Option{assistant.WithLogger(logger)}
	serverOpts := []apphttp.Option{
		apphttp.WithLogger(logger),
		apphttp.WithRateLimit(cfg.RateLimitPerMinute),
		apphttp.WithMaxSnapshotBytes(cfg.MaxSnapshotBytes),
		// First composition, one repair, and room to render the fallback.
		apphttp.WithWriteTimeout(2*cfg.LLMTimeout + 15*time.Second),
	}

	if cfg.LLMBackend == config.LLMBackendGemini {
		composer, err := gemini.New(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, cfg.LLMTimeout)
		if err != nil {
			logger.Error("Failed to initialize Gemini composer", applog.FieldError, err)
			os.Exit(1)
		}
		opts = append(opts, assistant.WithComposer(composer))
		logger.Info("LLM composer enabled", "backend", cfg.LLMBackend, "model", cfg.GeminiModel)
	} else {
		logger.Info("LLM composer disabled, answering with facts blocks only")
	}

	cacheManager := cache.NewManager(logger)
	defer cacheManager.Stop()
	if cfg.AnswerCacheSize > 0 {
		answers := cache.NewLRUCache[assistant.Answer](cfg.AnswerCacheSize, cfg.AnswerCacheTTL)
		cacheManager.Register(answers)
		cacheManager.StartCleanup(cfg.AnswerCacheTTL)
		opts = append(opts, assistant.WithCache(answers))
		serverOpts = append(serverOpts, apphttp.WithCacheStats(answers.Stats))
	}

	var repo *storage.SQLiteRepository
	if cfg.SQLiteDBPath != "" {
		var err error
		repo, err = storage.NewSQLiteRepository(cfg.SQLiteDBPath)
		if err != nil {
			logger.Error("Failed to initialize SQLite repository", applog.FieldError, err, "path", cfg.SQLiteDBPath)
			os.Exit(1)
		}
		defer repo.Close()
		serverOpts = append(serverOpts, apphttp.WithAuditStore(repo))
	}

	switch {
	case cfg.AMQPURL != "":
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", applog.FieldError, err)
			os.Exit(1)
		}
		defer client.Close()
		opts = append(opts, assistant.WithPublisher(client))
		logger.Info("Publishing audit events to broker", "exchange", cfg.AMQPExchange)
	case repo != nil:
		sink := worker.NewAuditWorker(nil, repo, cfg.AuditReportInterval, logger)
		opts = append(opts, assistant.WithPublisher(sink))
		logger.Info("No broker configured, storing audit events in-process", "path", cfg.SQLiteDBPath)
	default:
		logger.Info("Audit event publishing disabled")
	}

	svc := assistant.NewService(builder, gate, opts...)
	srv := apphttp.NewServer(":"+cfg.Port, svc, serverOpts...)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting ledgerqa server", "port", cfg.Port, "llm_backend", cfg.LLMBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server error", applog.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}
