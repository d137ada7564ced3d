package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/codeai-platform/task-engine/internal/models"
	"github.com/codeai-platform/task-engine/internal/tasks"
)

// Response helpers

type apiResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *apiError   `json:"error,omitempty"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := apiResponse{
		Success: status >= 200 && status < 300,
		Data:    data,
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := apiResponse{
		Success: false,
		Error: &apiError{
			Code:    code,
			Message: message,
		},
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}

// respondManagerError maps the lifecycle manager's error taxonomy onto HTTP.
// Validation and authorization errors are final; anything else is a store
// failure the client may retry.
func respondManagerError(w http.ResponseWriter, err error, op string) {
	var verr *tasks.ValidationError
	switch {
	case errors.As(err, &verr):
		respondError(w, http.StatusBadRequest, verr.Code, verr.Message)
	case errors.Is(err, tasks.ErrBadStatus):
		respondError(w, http.StatusBadRequest, "bad_status", err.Error())
	case errors.Is(err, tasks.ErrNotAuthorized):
		respondError(w, http.StatusForbidden, "not_authorized", "you are not allowed to perform this operation")
	case errors.Is(err, tasks.ErrTaskNotFound):
		respondError(w, http.StatusNotFound, "not_found", "task not found")
	default:
		slog.Error("store operation failed", "op", op, "error", err)
		respondError(w, http.StatusServiceUnavailable, "store_error", "the operation failed, please retry")
	}
}

// Health handlers

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := s.taskManager.Ping(r.Context()); err != nil {
		respondError(w, http.StatusServiceUnavailable, "not_ready", "service not ready")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
	})
}

// Task handlers

func (s *Server) handleSubmitTask(w http.ResponseWriter, r *http.Request) {
	principal := PrincipalFromContext(r.Context())

	var spec models.TaskSpecification
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	result, err := s.taskManager.Submit(r.Context(), &spec, principal)
	if err != nil {
		respondManagerError(w, err, "submit")
		return
	}

	respondJSON(w, http.StatusCreated, result)
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	var spec models.TaskSpecification
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	result, err := s.taskManager.Quote(r.Context(), &spec)
	if err != nil {
		respondManagerError(w, err, "quote")
		return
	}

	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	principal := PrincipalFromContext(r.Context())

	filters := models.ListFilters{
		Status: models.TaskStatus(r.URL.Query().Get("status")),
	}
	if principal != nil && principal.IsAdmin {
		filters.OwnerID = r.URL.Query().Get("owner")
	}

	list, err := s.taskManager.List(r.Context(), principal, filters)
	if err != nil {
		respondManagerError(w, err, "list")
		return
	}

	if list == nil {
		list = []*models.Task{}
	}
	respondJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	principal := PrincipalFromContext(r.Context())

	id := chi.URLParam(r, "id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "validation_error", "task id is required")
		return
	}

	task, err := s.taskManager.Get(r.Context(), id, principal)
	if err != nil {
		respondManagerError(w, err, "get")
		return
	}

	respondJSON(w, http.StatusOK, task)
}

type setStatusRequest struct {
	Status models.TaskStatus `json:"status"`
}

func (s *Server) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	principal := PrincipalFromContext(r.Context())

	id := chi.URLParam(r, "id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "validation_error", "task id is required")
		return
	}

	var req setStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	task, err := s.taskManager.SetStatus(r.Context(), id, req.Status, principal)
	if err != nil {
		respondManagerError(w, err, "set_status")
		return
	}

	respondJSON(w, http.StatusOK, task)
}
