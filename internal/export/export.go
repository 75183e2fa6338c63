// Package export persists rendered chart artifacts to the object store.
package export

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/duckmesh/duckviz/internal/chart"
	"github.com/duckmesh/duckviz/internal/storage"
)

var exportsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "duckviz_exports_total",
		Help: "Total number of chart artifacts written to the object store by outcome.",
	},
	[]string{"kind", "outcome"},
)

func init() {
	prometheus.MustRegister(exportsTotal)
}

type Config struct {
	Prefix string
	// PresignExpiry enables read links on stores that support them.
	PresignExpiry time.Duration
}

type Artifact struct {
	Key         string `json:"key"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	URL         string `json:"url,omitempty"`
}

type Exporter struct {
	store  storage.ObjectStore
	cfg    Config
	logger *slog.Logger
}

func New(store storage.ObjectStore, cfg Config, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Exporter{store: store, cfg: cfg, logger: logger}
}

// Export renders result and stores it under
// <prefix>/<session>/<execution>.<ext>. An empty executionID gets a fresh id.
func (e *Exporter) Export(ctx context.Context, sessionID, executionID string, result chart.Result) (Artifact, error) {
	artifact, err := e.export(ctx, sessionID, executionID, result)
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	exportsTotal.WithLabelValues(string(result.Kind), outcome).Inc()
	return artifact, err
}

func (e *Exporter) export(ctx context.Context, sessionID, executionID string, result chart.Result) (Artifact, error) {
	if err := result.Validate(); err != nil {
		return Artifact{}, fmt.Errorf("export chart: %w", err)
	}
	if executionID == "" {
		executionID = uuid.NewString()
	}
	key, err := storage.BuildArtifactPath(e.cfg.Prefix, sessionID, executionID, result.Artifact.Extension())
	if err != nil {
		return Artifact{}, fmt.Errorf("export chart: %w", err)
	}

	var body bytes.Buffer
	contentType, err := chart.Render(&body, result)
	if err != nil {
		return Artifact{}, fmt.Errorf("render %s chart: %w", result.Kind, err)
	}
	info, err := e.store.Put(ctx, key, bytes.NewReader(body.Bytes()), int64(body.Len()), storage.PutOptions{ContentType: contentType})
	if err != nil {
		return Artifact{}, fmt.Errorf("store chart artifact: %w", err)
	}

	artifact := Artifact{Key: key, ContentType: contentType, Size: info.Size}
	if presigner, ok := e.store.(storage.Presigner); ok && e.cfg.PresignExpiry > 0 {
		link, err := presigner.PresignGet(ctx, key, e.cfg.PresignExpiry)
		if err != nil {
			return Artifact{}, fmt.Errorf("presign chart artifact: %w", err)
		}
		artifact.URL = link
	}

	e.logger.Info("chart exported",
		slog.String("key", key),
		slog.String("kind", string(result.Kind)),
		slog.Int64("size", artifact.Size),
	)
	return artifact, nil
}
