package backlogapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/sift/internal/triage"
)

type statusRequest struct {
	Status string `json:"status"`
}

type statusResponse struct {
	ID     string        `json:"id"`
	Status triage.Status `json:"status"`
}

type pruneRequest struct {
	OlderThanDays *int `json:"older_than_days"`
}

type taskList struct {
	Tasks []triage.ExistingTask `json:"tasks"`
	Count int                   `json:"count"`
}

// queryList accepts repeated and comma-separated values: ?priority=P0,P1&priority=P2.
func queryList(r *http.Request, key string) []string {
	var out []string
	for _, v := range r.URL.Query()[key] {
		for part := range strings.SplitSeq(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func parseFilter(r *http.Request) (triage.TaskFilter, error) {
	f := triage.TaskFilter{
		Categories: queryList(r, "category"),
		Priorities: queryList(r, "priority"),
	}
	for _, s := range queryList(r, "status") {
		st, err := triage.ParseStatus(s)
		if err != nil {
			return f, err
		}
		f.Statuses = append(f.Statuses, st)
	}
	if v := r.URL.Query().Get("include_done"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return f, &triage.InvalidInputError{Field: "include_done", Index: -1, Reason: "not a boolean"}
		}
		f.IncludeDone = b
	}
	return f, nil
}

func (a *API) handleListTasks(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		a.fail(w, r, err, "parse task filter")
		return
	}
	tasks, err := a.svc.ListTasks(r.Context(), f)
	if err != nil {
		a.fail(w, r, err, "failed to list tasks")
		return
	}
	if tasks == nil {
		tasks = []triage.ExistingTask{}
	}
	writeJSON(w, http.StatusOK, taskList{Tasks: tasks, Count: len(tasks)})
}

func (a *API) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var in triage.TaskInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	task, err := a.svc.CreateTask(r.Context(), in)
	if err != nil {
		a.fail(w, r, err, "failed to create task")
		return
	}
	trace.SpanFromContext(r.Context()).SetAttributes(
		attribute.String("sift.task.id", task.ID),
		attribute.String("sift.task.priority", task.Priority),
	)
	writeJSON(w, http.StatusCreated, task)
}

func (a *API) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	trace.SpanFromContext(r.Context()).SetAttributes(attribute.String("sift.task.id", id))

	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if strings.TrimSpace(req.Status) == "" {
		writeError(w, http.StatusBadRequest, "status is required")
		return
	}
	st, err := triage.ParseStatus(req.Status)
	if err != nil {
		a.fail(w, r, err, "parse status")
		return
	}
	if err := a.svc.SetTaskStatus(r.Context(), id, st); err != nil {
		a.fail(w, r, err, "failed to update task status")
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{ID: id, Status: st})
}

// handlePrune deletes done tasks untouched for older_than_days, 30 when the
// body is empty or omits it.
func (a *API) handlePrune(w http.ResponseWriter, r *http.Request) {
	var req pruneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	age := triage.DefaultPruneAge
	if req.OlderThanDays != nil {
		var err error
		if age, err = triage.PruneAgeDays(*req.OlderThanDays); err != nil {
			a.fail(w, r, err, "parse prune age")
			return
		}
	}
	res, err := a.svc.PruneDone(r.Context(), age)
	if err != nil {
		a.fail(w, r, err, "failed to prune tasks")
		return
	}
	trace.SpanFromContext(r.Context()).SetAttributes(attribute.Int("sift.tasks.pruned", res.Count))
	writeJSON(w, http.StatusOK, res)
}

func (a *API) handleBudget(w http.ResponseWriter, r *http.Request) {
	b, err := a.svc.Budget(r.Context())
	if err != nil {
		a.fail(w, r, err, "failed to compute budget")
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (a *API) handleStats(w http.ResponseWriter, r *http.Request) {
	st, err := a.svc.Stats(r.Context())
	if err != nil {
		a.fail(w, r, err, "failed to compute stats")
		return
	}
	writeJSON(w, http.StatusOK, st)
}
