// Package api exposes generation, execution and conversational answering
// over HTTP.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/duckmesh/duckviz/internal/auth"
	"github.com/duckmesh/duckviz/internal/chart"
	"github.com/duckmesh/duckviz/internal/codegen"
	"github.com/duckmesh/duckviz/internal/config"
	"github.com/duckmesh/duckviz/internal/dataset"
	"github.com/duckmesh/duckviz/internal/export"
	"github.com/duckmesh/duckviz/internal/observability"
	"github.com/duckmesh/duckviz/internal/sandbox"
)

const maxRequestBytes = 1 << 20

type ReadinessCheck func(ctx context.Context) error

type DatasetCatalog interface {
	Select(names []string) (dataset.Set, error)
}

type Generator interface {
	Generate(ctx context.Context, req codegen.Request) (codegen.Result, error)
}

type Runner interface {
	Run(ctx context.Context, code string, tables dataset.Set) *sandbox.Execution
}

type Exporter interface {
	Export(ctx context.Context, sessionID, executionID string, result chart.Result) (export.Artifact, error)
}

type Dependencies struct {
	Logger            *slog.Logger
	Readiness         ReadinessCheck
	AuthMiddleware    func(http.Handler) http.Handler
	DependencyTimeout time.Duration
	Catalog           DatasetCatalog
	Generator         Generator
	Runner            Runner
	// Exporter is optional; without it export requests are rejected.
	Exporter   Exporter
	Sessions   *SessionRegistry
	SampleRows int
}

func NewHandler(cfg config.Config, deps Dependencies) http.Handler {
	if deps.SampleRows <= 0 {
		deps.SampleRows = cfg.Prompt.SampleRows
	}
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "service": cfg.Service.Name})
	})
	mux.HandleFunc("GET /v1/ready", func(w http.ResponseWriter, r *http.Request) {
		handleReady(deps, w, r)
	})
	mux.Handle("GET /v1/metrics", promhttp.Handler())

	protect := protector(cfg, deps)
	route := func(pattern string, handler func(Dependencies, http.ResponseWriter, *http.Request), scopes ...auth.Scope) {
		h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { handler(deps, w, r) })
		mux.Handle(pattern, protect(auth.RequireScopes(h, scopes...)))
	}
	route("GET /v1/datasets", handleDatasets)
	route("POST /v1/generate", handleGenerate, auth.ScopeGenerate)
	route("POST /v1/execute", handleExecute, auth.ScopeExecute)
	route("POST /v1/sessions", handleCreateSession, auth.ScopeGenerate, auth.ScopeExecute)
	route("GET /v1/sessions/{session}", handleGetSession)
	route("POST /v1/sessions/{session}/answer", handleAnswer, auth.ScopeGenerate, auth.ScopeExecute)
	route("DELETE /v1/sessions/{session}", handleDeleteSession)

	middlewares := []func(http.Handler) http.Handler{
		observability.TraceMiddleware,
		observability.MetricsMiddleware,
	}
	if deps.Logger != nil {
		middlewares = append(middlewares, observability.LoggingMiddleware(deps.Logger))
	}
	return chain(mux, middlewares...)
}

func protector(cfg config.Config, deps Dependencies) func(http.Handler) http.Handler {
	if !cfg.Auth.Required {
		return func(next http.Handler) http.Handler { return next }
	}
	if deps.AuthMiddleware == nil {
		if deps.Logger != nil {
			deps.Logger.Error("auth required but auth middleware missing")
		}
		return func(http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeError(r.Context(), w, http.StatusInternalServerError, "AUTH_MIDDLEWARE_MISSING", "auth middleware is required by configuration", false, nil)
			})
		}
	}
	return deps.AuthMiddleware
}

func handleReady(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Readiness == nil {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
		return
	}
	timeout := deps.DependencyTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()
	if err := deps.Readiness(ctx); err != nil {
		writeError(r.Context(), w, http.StatusServiceUnavailable, "NOT_READY", err.Error(), true, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func CombineReadinessChecks(checks ...ReadinessCheck) ReadinessCheck {
	filtered := make([]ReadinessCheck, 0, len(checks))
	for _, check := range checks {
		if check != nil {
			filtered = append(filtered, check)
		}
	}
	return func(ctx context.Context) error {
		for _, check := range filtered {
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

func chain(base http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	wrapped := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}
	return wrapped
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid request body", false, map[string]any{"details": err.Error()})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, code, message string, retryable bool, extra map[string]any) {
	writeJSON(w, status, map[string]any{
		"error_code": code,
		"message":    message,
		"retryable":  retryable,
		"context":    extra,
		"trace_id":   observability.TraceIDFromContext(ctx),
	})
}
