package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/duckmesh/duckviz/internal/catalog"
	"github.com/duckmesh/duckviz/internal/codegen"
	"github.com/duckmesh/duckviz/internal/query"
	"github.com/duckmesh/duckviz/internal/sandbox"
)

// writeDomainError maps generation, execution and catalog failures to the
// error envelope.
func writeDomainError(ctx context.Context, w http.ResponseWriter, err error) {
	var (
		execErr   *sandbox.ExecutionError
		upstream  *codegen.UpstreamError
		violation *query.PolicyViolation
	)
	switch {
	case errors.As(err, &execErr):
		code := "EXECUTION_ERROR"
		if execErr.IsValidation() {
			code = "VALIDATION_ERROR"
		}
		extra := map[string]any{
			"execution_id": execErr.ID,
			"phase":        execErr.Phase,
			"class":        execErr.Class,
			"diagnostic":   execErr.Diagnostic(),
		}
		if errors.As(err, &violation) {
			code = "POLICY_VIOLATION"
			extra["statement"] = violation.Statement
			extra["reason"] = violation.Reason
		}
		writeError(ctx, w, http.StatusUnprocessableEntity, code, execErr.Message, false, extra)
	case errors.As(err, &upstream):
		writeError(ctx, w, http.StatusBadGateway, "UPSTREAM_ERROR", err.Error(), true, map[string]any{
			"provider": upstream.Provider,
			"model":    upstream.Model,
		})
	case errors.Is(err, catalog.ErrNotFound):
		writeError(ctx, w, http.StatusNotFound, "DATASET_NOT_FOUND", err.Error(), false, nil)
	case errors.Is(err, catalog.ErrNotLoaded):
		writeError(ctx, w, http.StatusServiceUnavailable, "DATASETS_NOT_LOADED", err.Error(), true, nil)
	case errors.Is(err, context.DeadlineExceeded):
		writeError(ctx, w, http.StatusGatewayTimeout, "TIMEOUT", err.Error(), true, nil)
	default:
		writeError(ctx, w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error(), false, nil)
	}
}
