package httpapi

import (
	"net/http"
	"strconv"

	"github.com/agentgate/agentgate/ports"
)

// handleHistoryRequests returns the caller's request history.
func (h *Handler) handleHistoryRequests(w http.ResponseWriter, r *http.Request) {
	q := ports.RequestQuery{
		APIKeyID:     APIKeyID(r.Context()),
		Method:       r.URL.Query().Get("method"),
		PathContains: r.URL.Query().Get("path"),
		Limit:        parseIntQuery(r, "limit", 20),
		Offset:       parseIntQuery(r, "offset", 0),
	}
	if s := r.URL.Query().Get("status_code"); s != "" {
		code, err := strconv.Atoi(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "status_code must be an integer")
			return
		}
		q.StatusCode = &code
	}

	entries, total, err := h.deps.History.QueryRequests(r.Context(), q)
	if err != nil {
		h.historyError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"requests": entries,
		"total":    total,
		"limit":    q.Limit,
		"offset":   q.Offset,
	})
}

// handleHistoryExecutions returns the caller's execution history.
func (h *Handler) handleHistoryExecutions(w http.ResponseWriter, r *http.Request) {
	q := ports.ExecutionQuery{
		APIKeyID: APIKeyID(r.Context()),
		Agent:    r.URL.Query().Get("agent"),
		Status:   r.URL.Query().Get("status"),
		Limit:    parseIntQuery(r, "limit", 20),
		Offset:   parseIntQuery(r, "offset", 0),
	}

	entries, total, err := h.deps.History.QueryExecutions(r.Context(), q)
	if err != nil {
		h.historyError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"executions": entries,
		"total":      total,
		"limit":      q.Limit,
		"offset":     q.Offset,
	})
}

// handleHistoryStats returns aggregate stats for the caller.
func (h *Handler) handleHistoryStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.deps.History.Stats(r.Context(), APIKeyID(r.Context()))
	if err != nil {
		h.historyError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) historyError(w http.ResponseWriter, err error) {
	h.deps.Logger.Error().Err(err).Msg("history query failed")
	writeError(w, http.StatusInternalServerError, "history_error", "failed to read history")
}
