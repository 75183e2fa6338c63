package api

import (
	"bytes"
	"encoding/base64"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/duckmesh/duckviz/internal/chart"
	"github.com/duckmesh/duckviz/internal/codegen"
	"github.com/duckmesh/duckviz/internal/dataset"
	"github.com/duckmesh/duckviz/internal/export"
	"github.com/duckmesh/duckviz/internal/observability"
	"github.com/duckmesh/duckviz/internal/sandbox"
)

type generateRequest struct {
	Question   string     `json:"question"`
	Datasets   []string   `json:"datasets"`
	Preference chart.Kind `json:"preference"`
}

type executeRequest struct {
	Code      string   `json:"code"`
	Datasets  []string `json:"datasets"`
	Export    bool     `json:"export"`
	SessionID string   `json:"session_id"`
}

// executionPayload carries the rendered artifact inline. Binary artifacts
// are base64 encoded.
type executionPayload struct {
	ExecutionID string           `json:"execution_id"`
	Kind        chart.Kind       `json:"kind"`
	Explanation string           `json:"explanation"`
	ContentType string           `json:"content_type"`
	Encoding    string           `json:"encoding"`
	Artifact    string           `json:"artifact"`
	Output      string           `json:"output"`
	Queries     int              `json:"queries"`
	DurationMS  int64            `json:"duration_ms"`
	Export      *export.Artifact `json:"export,omitempty"`
}

func handleDatasets(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Catalog == nil {
		writeError(r.Context(), w, http.StatusServiceUnavailable, "DATASETS_NOT_LOADED", "dataset catalog is not configured", true, nil)
		return
	}
	sampleRows := deps.SampleRows
	if raw := strings.TrimSpace(r.URL.Query().Get("sample_rows")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(r.Context(), w, http.StatusBadRequest, "INVALID_ARGUMENT", "sample_rows must be a non-negative integer", false, nil)
			return
		}
		sampleRows = n
	}
	set, err := deps.Catalog.Select(nil)
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"datasets": dataset.Summarize(set, sampleRows)})
}

func handleGenerate(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_ARGUMENT", "question is required", false, nil)
		return
	}
	if req.Preference != "" && !req.Preference.Valid() {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_ARGUMENT", "preference must be interactive, static or declarative", false, nil)
		return
	}
	set, err := deps.Catalog.Select(req.Datasets)
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	result, err := deps.Generator.Generate(r.Context(), codegen.Request{Question: req.Question, Datasets: set, Preference: req.Preference})
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"code":           result.Code,
		"rationale":      result.Rationale,
		"provider":       result.Provider,
		"model":          result.Model,
		"policy_version": result.PolicyVersion,
		"datasets":       set.Names(),
	})
}

func handleExecute(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Code) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_ARGUMENT", "code is required", false, nil)
		return
	}
	if req.Export && deps.Exporter == nil {
		writeError(r.Context(), w, http.StatusBadRequest, "EXPORT_DISABLED", "artifact export is not configured", false, nil)
		return
	}
	set, err := deps.Catalog.Select(req.Datasets)
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	execution := deps.Runner.Run(r.Context(), req.Code, set)
	if execution.Err != nil {
		writeDomainError(r.Context(), w, execution.Err)
		return
	}
	payload, err := newExecutionPayload(execution)
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	if req.Export {
		artifact, err := deps.Exporter.Export(r.Context(), req.SessionID, execution.ID, execution.Result)
		if err != nil {
			logger := observability.WithTrace(r.Context(), deps.logger())
			logger.Error("export artifact", slog.String("execution_id", execution.ID), slog.Any("error", err))
			writeError(r.Context(), w, http.StatusBadGateway, "EXPORT_FAILED", err.Error(), true, map[string]any{"execution_id": execution.ID})
			return
		}
		payload.Export = &artifact
	}
	writeJSON(w, http.StatusOK, payload)
}

func newExecutionPayload(execution *sandbox.Execution) (executionPayload, error) {
	var body bytes.Buffer
	contentType, err := chart.Render(&body, execution.Result)
	if err != nil {
		return executionPayload{}, err
	}
	payload := executionPayload{
		ExecutionID: execution.ID,
		Kind:        execution.Result.Kind,
		Explanation: execution.Result.Explanation,
		ContentType: contentType,
		Encoding:    "utf-8",
		Output:      execution.Output,
		Queries:     execution.Queries,
		DurationMS:  execution.Duration.Milliseconds(),
	}
	if execution.Result.Kind == chart.KindStatic {
		payload.Encoding = "base64"
		payload.Artifact = base64.StdEncoding.EncodeToString(body.Bytes())
	} else {
		payload.Artifact = body.String()
	}
	return payload, nil
}

func (d Dependencies) logger() *slog.Logger {
	if d.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return d.Logger
}
