package backlogapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/sift/internal/triage"
)

type submitRequest struct {
	Items []json.RawMessage `json:"items"`
}

type confirmRequest struct {
	Accept []triage.Acceptance `json:"accept"`
}

// decodeItems requires every item to be a JSON string.
func decodeItems(raw []json.RawMessage) ([]string, error) {
	items := make([]string, len(raw))
	for i, msg := range raw {
		if bytes.Equal(bytes.TrimSpace(msg), []byte("null")) {
			return nil, &triage.InvalidInputError{Field: "items", Index: i, Reason: "not a string"}
		}
		if err := json.Unmarshal(msg, &items[i]); err != nil {
			return nil, &triage.InvalidInputError{Field: "items", Index: i, Reason: "not a string"}
		}
	}
	return items, nil
}

func (a *API) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	items, err := decodeItems(req.Items)
	if err != nil {
		a.fail(w, r, err, "decode items")
		return
	}

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.Int("sift.backlog.items", len(items)))

	run, err := a.svc.Submit(r.Context(), items)
	if err != nil {
		a.fail(w, r, err, "failed to triage backlog")
		return
	}

	span.SetAttributes(
		attribute.String("sift.run.id", run.ID),
		attribute.Int("sift.run.new", run.Report.Summary.New),
		attribute.Int("sift.run.duplicates", run.Report.Summary.Duplicates),
		attribute.Int("sift.run.ambiguous", run.Report.Summary.Ambiguous),
	)

	w.Header().Set("Location", "/api/v1/backlog/"+run.ID)
	writeJSON(w, http.StatusCreated, run)
}

func (a *API) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.String("sift.run.id", id))

	run, ok, err := a.svc.Get(r.Context(), id)
	if err != nil {
		a.logger.Error(r.Context(), err, "failed to get run", "id", id)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	span.SetAttributes(attribute.String("sift.run.status", string(run.Status)))
	writeJSON(w, http.StatusOK, run)
}

func (a *API) handleConfirm(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.String("sift.run.id", id))

	// An empty body or a missing "accept" accepts every NEW decision as
	// suggested; "accept": [] closes the run without creating tasks.
	var req confirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	run, err := a.svc.Confirm(r.Context(), id, req.Accept)
	if err != nil {
		a.fail(w, r, err, fmt.Sprintf("failed to confirm run %s", id))
		return
	}

	span.SetAttributes(attribute.Int("sift.run.tasks_created", len(run.CreatedTaskIDs)))
	writeJSON(w, http.StatusOK, run)
}
