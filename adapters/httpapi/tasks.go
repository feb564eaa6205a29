package httpapi

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/agentgate/agentgate/app"
	"github.com/agentgate/agentgate/domain/task"
)

// handleSubmitTask accepts an async task and returns 202 with the
// initial snapshot.
func (h *Handler) handleSubmitTask(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "failed to read request body")
		return
	}

	req, err := task.ParseRequest(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	snap, err := h.deps.Tasks.Submit(req, APIKeyID(r.Context()))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, snap)
}

// handleListTasks returns the caller's tasks with optional filters.
func (h *Handler) handleListTasks(w http.ResponseWriter, r *http.Request) {
	filter := app.ListFilter{
		Status: task.Status(r.URL.Query().Get("status")),
		Agent:  task.AgentType(r.URL.Query().Get("agent")),
		Limit:  parseIntQuery(r, "limit", 20),
		Offset: parseIntQuery(r, "offset", 0),
	}

	snaps, total := h.deps.Tasks.List(APIKeyID(r.Context()), filter)
	writeJSON(w, http.StatusOK, map[string]any{
		"tasks":  snaps,
		"total":  total,
		"limit":  filter.Limit,
		"offset": filter.Offset,
	})
}

// handleGetTask returns one task's status snapshot.
func (h *Handler) handleGetTask(w http.ResponseWriter, r *http.Request) {
	snap, err := h.deps.Tasks.Get(chi.URLParam(r, "taskID"), APIKeyID(r.Context()))
	if err != nil {
		h.writeTaskError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleTaskResult returns the result of a completed task.
func (h *Handler) handleTaskResult(w http.ResponseWriter, r *http.Request) {
	result, err := h.deps.Tasks.Result(chi.URLParam(r, "taskID"), APIKeyID(r.Context()))
	if err != nil {
		h.writeTaskError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleCancelTask cancels a pending or processing task.
func (h *Handler) handleCancelTask(w http.ResponseWriter, r *http.Request) {
	snap, err := h.deps.Tasks.Cancel(chi.URLParam(r, "taskID"), APIKeyID(r.Context()))
	if err != nil {
		h.writeTaskError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// writeTaskError maps task manager errors: unknown or not-owned tasks
// are 404, result-not-ready and cancel conflicts are 409.
func (h *Handler) writeTaskError(w http.ResponseWriter, err error) {
	var conflict *task.ConflictError
	switch {
	case errors.Is(err, task.ErrNotFound):
		writeError(w, http.StatusNotFound, "task_not_found", "task not found")
	case errors.Is(err, task.ErrNotReady):
		writeError(w, http.StatusConflict, "task_not_ready", "task result is not ready")
	case errors.As(err, &conflict):
		writeError(w, http.StatusConflict, "task_conflict", conflict.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
