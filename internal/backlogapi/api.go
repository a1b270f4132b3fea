// Package backlogapi exposes backlog triage and task management over HTTP.
package backlogapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/linnemanlabs/sift/internal/triage"
)

// BacklogService defines the business operations backlogapi needs.
type BacklogService interface {
	Submit(ctx context.Context, items []string) (*triage.Run, error)
	Get(ctx context.Context, id string) (*triage.Run, bool, error)
	Confirm(ctx context.Context, id string, acc []triage.Acceptance) (*triage.Run, error)
	CreateTask(ctx context.Context, in triage.TaskInput) (*triage.ExistingTask, error)
	SetTaskStatus(ctx context.Context, id string, status triage.Status) error
	ListTasks(ctx context.Context, f triage.TaskFilter) ([]triage.ExistingTask, error)
	Budget(ctx context.Context) (*triage.Budget, error)
	Stats(ctx context.Context) (*triage.Stats, error)
	PruneDone(ctx context.Context, olderThan time.Duration) (*triage.PruneResult, error)
}

// API holds dependencies for HTTP handlers.
type API struct {
	logger log.Logger
	svc    BacklogService
}

// New creates a new API handler.
func New(logger log.Logger, svc BacklogService) *API {
	if logger == nil {
		logger = log.Nop()
	}
	if svc == nil {
		panic(xerrors.New("backlog service is required"))
	}
	return &API{
		logger: logger,
		svc:    svc,
	}
}

// RegisterRoutes attaches API endpoints to the router. Extra middleware
// (authentication) wraps only the /api/v1 group.
func (a *API) RegisterRoutes(r chi.Router, mw ...func(http.Handler) http.Handler) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(mw...)

		r.Post("/backlog", a.handleSubmit)
		r.Get("/backlog/{id}", a.handleGetRun)
		r.Post("/backlog/{id}/confirm", a.handleConfirm)

		r.Get("/tasks", a.handleListTasks)
		r.Post("/tasks", a.handleCreateTask)
		r.Post("/tasks/prune", a.handlePrune)
		r.Post("/tasks/{id}/status", a.handleSetStatus)

		r.Get("/budget", a.handleBudget)
		r.Get("/stats", a.handleStats)
	})
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// fail maps service errors onto HTTP statuses. Anything unrecognized is
// logged and reported as an internal error.
func (a *API) fail(w http.ResponseWriter, r *http.Request, err error, msg string) {
	switch {
	case errors.Is(err, triage.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, triage.ErrNotConfirmable), errors.Is(err, triage.ErrP0NeedsConfirmation):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, triage.ErrRunNotFound), errors.Is(err, triage.ErrTaskNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, triage.ErrAlreadyConfirmed):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, context.Canceled):
		// client went away; nothing useful to write
	default:
		a.logger.Error(r.Context(), err, msg)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
