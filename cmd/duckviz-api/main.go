package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/duckmesh/duckviz/internal/api"
	"github.com/duckmesh/duckviz/internal/auth"
	"github.com/duckmesh/duckviz/internal/catalog"
	catalogpostgres "github.com/duckmesh/duckviz/internal/catalog/postgres"
	"github.com/duckmesh/duckviz/internal/codegen"
	"github.com/duckmesh/duckviz/internal/config"
	"github.com/duckmesh/duckviz/internal/conversation"
	"github.com/duckmesh/duckviz/internal/export"
	"github.com/duckmesh/duckviz/internal/observability"
	"github.com/duckmesh/duckviz/internal/query"
	"github.com/duckmesh/duckviz/internal/sandbox"
	s3store "github.com/duckmesh/duckviz/internal/storage/s3"
)

func main() {
	cfg, err := config.LoadFromEnv("duckviz-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	readiness := []api.ReadinessCheck{}
	loaderOpts := catalog.LoaderOptions{}

	var objectStore *s3store.Store
	if cfg.ObjectStore.Enabled {
		objectStore, err = s3store.New(ctx, s3store.Config{
			Endpoint:         cfg.ObjectStore.Endpoint,
			Region:           cfg.ObjectStore.Region,
			Bucket:           cfg.ObjectStore.Bucket,
			AccessKeyID:      cfg.ObjectStore.AccessKeyID,
			SecretAccessKey:  cfg.ObjectStore.SecretAccessKey,
			UseSSL:           cfg.ObjectStore.UseSSL,
			Prefix:           cfg.ObjectStore.Prefix,
			AutoCreateBucket: cfg.ObjectStore.AutoCreateBucket,
		})
		if err != nil {
			logger.Error("failed to initialize object store", slog.Any("error", err))
			os.Exit(1)
		}
		loaderOpts.Store = objectStore
	}

	if cfg.Postgres.DSN != "" {
		db, err := catalogpostgres.Open(ctx, catalogpostgres.DBConfig{
			DSN:             cfg.Postgres.DSN,
			MaxOpenConns:    cfg.Postgres.MaxOpenConns,
			MaxIdleConns:    cfg.Postgres.MaxIdleConns,
			ConnMaxIdleTime: cfg.Postgres.ConnMaxIdleTime,
			ConnMaxLifetime: cfg.Postgres.ConnMaxLifetime,
		})
		if err != nil {
			logger.Error("failed to open postgres dataset source", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() { _ = db.Close() }()
		source := catalogpostgres.NewSource(db)
		loaderOpts.Postgres = source
		readiness = append(readiness, source.HealthCheck)
	}

	manifest, err := catalog.LoadManifest(cfg.Datasets.ManifestPath)
	if err != nil {
		logger.Error("failed to load dataset manifest", slog.String("path", cfg.Datasets.ManifestPath), slog.Any("error", err))
		os.Exit(1)
	}
	datasets := catalog.New(manifest, catalog.NewLoader(loaderOpts, logger))
	if err := datasets.Reload(ctx); err != nil {
		logger.Error("failed to load datasets", slog.Any("error", err))
		os.Exit(1)
	}
	loaded, _ := datasets.Select(nil)
	for name, table := range loaded {
		observability.SetDatasetRows(name, table.Len())
	}
	logger.Info("datasets loaded", slog.Int("count", len(loaded)))
	readiness = append(readiness, func(context.Context) error { return datasets.Ready() })

	model, err := codegen.NewChatModel(ctx, codegen.ProviderConfig{
		Provider:  cfg.AI.Provider,
		BaseURL:   cfg.AI.BaseURL,
		APIKey:    cfg.AI.APIKey,
		Model:     cfg.AI.Model,
		MaxTokens: cfg.AI.MaxTokens,
		Timeout:   cfg.AI.Timeout,
	})
	if err != nil {
		logger.Error("failed to initialize ai provider", slog.Any("error", err))
		os.Exit(1)
	}
	temperature := cfg.AI.Temperature
	generator := codegen.NewGenerator(model, codegen.Options{
		Temperature: &temperature,
		SampleRows:  cfg.Prompt.SampleRows,
	}, logger)

	executor := sandbox.New(sandbox.Config{
		Timeout:     cfg.Sandbox.Timeout,
		OutputLimit: cfg.Sandbox.OutputLimit,
		Query:       query.Options{RejectMultiStatement: cfg.Sandbox.RejectMultiStatement},
	}, logger)

	sessions := api.NewSessionRegistry(api.SessionOptions{
		Generator: generator,
		Runner:    executor,
		Conversation: conversation.Options{
			HistoryCap:        cfg.Conversation.HistoryCap,
			RollbackOnFailure: cfg.Conversation.RollbackOnFailure,
		},
		IdleTTL:     cfg.Sessions.IdleTTL,
		MaxSessions: cfg.Sessions.MaxSessions,
		Logger:      logger,
	})
	go sessions.Run(ctx, time.Minute)

	deps := api.Dependencies{
		Logger:            logger,
		Readiness:         api.CombineReadinessChecks(readiness...),
		DependencyTimeout: time.Second,
		Catalog:           datasets,
		Generator:         generator,
		Runner:            executor,
		Sessions:          sessions,
		SampleRows:        cfg.Prompt.SampleRows,
	}
	if cfg.Export.Enabled {
		deps.Exporter = export.New(objectStore, export.Config{
			Prefix:        cfg.Export.Prefix,
			PresignExpiry: cfg.Export.PresignExpiry,
		}, logger)
	}
	if cfg.Auth.Required {
		validator, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
		if err != nil {
			logger.Error("failed to parse static auth keys", slog.Any("error", err))
			os.Exit(1)
		}
		deps.AuthMiddleware = auth.Middleware(logger, validator)
	}

	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      api.NewHandler(cfg, deps),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	go func() {
		logger.Info("starting api server",
			slog.String("addr", cfg.HTTP.Address),
			slog.String("provider", model.Provider()),
			slog.String("model", model.Model()),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}
