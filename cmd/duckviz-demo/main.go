package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/duckmesh/duckviz/internal/catalog"
	"github.com/duckmesh/duckviz/internal/config"
	"github.com/duckmesh/duckviz/internal/demo/seed"
	"github.com/duckmesh/duckviz/internal/observability"
	s3store "github.com/duckmesh/duckviz/internal/storage/s3"
)

func main() {
	cfg, err := seed.LoadConfigFromEnv(os.LookupEnv)
	if err != nil {
		slog.Error("failed to load demo config", slog.Any("error", err))
		os.Exit(1)
	}
	serviceCfg, err := config.LoadFromEnv("duckviz-demo")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := observability.NewLogger(serviceCfg, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bundle, err := seed.Build(cfg)
	if err != nil {
		logger.Error("failed to build demo datasets", slog.Any("error", err))
		os.Exit(1)
	}

	manifest := seed.Manifest(catalog.SourceFile, "")
	if cfg.Upload {
		store, err := s3store.New(ctx, s3store.Config{
			Endpoint:         serviceCfg.ObjectStore.Endpoint,
			Region:           serviceCfg.ObjectStore.Region,
			Bucket:           serviceCfg.ObjectStore.Bucket,
			AccessKeyID:      serviceCfg.ObjectStore.AccessKeyID,
			SecretAccessKey:  serviceCfg.ObjectStore.SecretAccessKey,
			UseSSL:           serviceCfg.ObjectStore.UseSSL,
			Prefix:           serviceCfg.ObjectStore.Prefix,
			AutoCreateBucket: serviceCfg.ObjectStore.AutoCreateBucket,
		})
		if err != nil {
			logger.Error("failed to initialize object store", slog.Any("error", err))
			os.Exit(1)
		}
		if err := seed.Upload(ctx, store, cfg.Prefix, bundle, logger); err != nil {
			logger.Error("failed to upload demo datasets", slog.Any("error", err))
			os.Exit(1)
		}
		manifest = seed.Manifest(catalog.SourceObject, cfg.Prefix)
		bundle.Files = nil
	}

	if err := seed.WriteDir(cfg.Dir, bundle, manifest); err != nil {
		logger.Error("failed to write demo datasets", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("demo datasets ready",
		slog.String("dir", cfg.Dir),
		slog.Bool("uploaded", cfg.Upload),
		slog.Int("sales_rows", bundle.SalesRows),
		slog.Int("weather_rows", bundle.WeatherRows),
		slog.Int64("seed", cfg.Seed),
	)
}
