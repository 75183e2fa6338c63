package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/duckmesh/duckviz/internal/conversation"
)

type createSessionRequest struct {
	Datasets []string `json:"datasets"`
}

type answerRequest struct {
	Question string   `json:"question"`
	Datasets []string `json:"datasets"`
}

type answerPayload struct {
	executionPayload
	SessionID string              `json:"session_id"`
	Continued bool                `json:"continued"`
	Code      string              `json:"code"`
	Rationale string              `json:"rationale"`
	History   []conversation.Turn `json:"history"`
}

func handleCreateSession(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Sessions == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "SESSIONS_DISABLED", "sessions are not configured", false, nil)
		return
	}
	var req createSessionRequest
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}
	if _, err := deps.Catalog.Select(req.Datasets); err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusCreated, deps.Sessions.Create(req.Datasets))
}

func handleGetSession(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Sessions == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "SESSIONS_DISABLED", "sessions are not configured", false, nil)
		return
	}
	view, err := deps.Sessions.Get(r.PathValue("session"))
	if err != nil {
		writeSessionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func handleAnswer(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Sessions == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "SESSIONS_DISABLED", "sessions are not configured", false, nil)
		return
	}
	id := r.PathValue("session")
	var req answerRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_ARGUMENT", "question is required", false, nil)
		return
	}
	view, err := deps.Sessions.Get(id)
	if err != nil {
		writeSessionError(w, r, err)
		return
	}
	names := req.Datasets
	if len(names) == 0 {
		names = view.Datasets
	}
	set, err := deps.Catalog.Select(names)
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}

	answer, err := deps.Sessions.Ask(r.Context(), id, req.Question, set)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			writeSessionError(w, r, err)
			return
		}
		writeDomainError(r.Context(), w, err)
		return
	}
	execution, err := newExecutionPayload(answer.Execution)
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, answerPayload{
		executionPayload: execution,
		SessionID:        id,
		Continued:        answer.Exchange.Continued,
		Code:             answer.Exchange.Generation.Code,
		Rationale:        answer.Exchange.Generation.Rationale,
		History:          answer.History,
	})
}

func handleDeleteSession(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Sessions == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "SESSIONS_DISABLED", "sessions are not configured", false, nil)
		return
	}
	if err := deps.Sessions.Delete(r.PathValue("session")); err != nil {
		writeSessionError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeSessionError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, ErrSessionNotFound) {
		writeError(r.Context(), w, http.StatusNotFound, "SESSION_NOT_FOUND", err.Error(), false, map[string]any{"session_id": r.PathValue("session")})
		return
	}
	writeDomainError(r.Context(), w, err)
}
