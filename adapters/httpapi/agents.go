package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/agentgate/agentgate/app"
	"github.com/agentgate/agentgate/domain/agent"
	"github.com/agentgate/agentgate/domain/task"
)

// maxBodyBytes bounds inbound JSON bodies.
const maxBodyBytes = 1 << 20 // 1MB

// ChatRequest is the synchronous chat request body.
type ChatRequest struct {
	Message  string `json:"message"`
	Provider string `json:"provider,omitempty"`
}

// handleChat runs a synchronous chat completion.
func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "message is required")
		return
	}

	provider, ok := h.parseProvider(w, req.Provider)
	if !ok {
		return
	}

	result, err := h.deps.Chat.Chat(r.Context(), req.Message, provider)
	h.recordAgentRun(r, string(task.AgentChat), app.Execution{
		Provider: result.Provider,
		Model:    result.Model,
		Duration: result.Duration,
		Tokens:   result.TokensUsed,
		Err:      err,
	})
	if err != nil {
		h.writeAgentError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// ResearchRequest is the synchronous research request body.
type ResearchRequest struct {
	Topic      string   `json:"topic"`
	Depth      string   `json:"depth,omitempty"`
	Provider   string   `json:"provider,omitempty"`
	FocusAreas []string `json:"focus_areas,omitempty"`
}

// handleResearch runs a synchronous research completion.
func (h *Handler) handleResearch(w http.ResponseWriter, r *http.Request) {
	var req ResearchRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.Topic) < 3 {
		writeError(w, http.StatusBadRequest, "invalid_request", "topic must be at least 3 characters")
		return
	}

	depth, err := agent.ParseDepth(req.Depth)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	provider, ok := h.parseProvider(w, req.Provider)
	if !ok {
		return
	}

	result, err := h.deps.Research.Research(r.Context(), req.Topic, depth, provider, req.FocusAreas)
	h.recordAgentRun(r, string(task.AgentResearch), app.Execution{
		Provider: result.Metadata.Provider,
		Model:    result.Metadata.Model,
		Duration: result.Metadata.Duration,
		Tokens:   result.Metadata.TokensUsed,
		Err:      err,
		Metadata: map[string]any{"topic": req.Topic, "depth": string(depth)},
	})
	if err != nil {
		h.writeAgentError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// recordAgentRun feeds a synchronous execution into the usage recorder.
func (h *Handler) recordAgentRun(r *http.Request, agentName string, e app.Execution) {
	if h.deps.Recorder == nil {
		return
	}
	e.RequestID = RequestID(r.Context())
	e.APIKeyID = APIKeyID(r.Context())
	e.Agent = agentName
	h.deps.Recorder.Record(r.Context(), e)
}

func (h *Handler) parseProvider(w http.ResponseWriter, s string) (agent.Provider, bool) {
	if s == "" {
		return "", true
	}
	p, err := agent.ParseProvider(s)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return "", false
	}
	return p, true
}

// writeAgentError maps provider errors to response statuses.
func (h *Handler) writeAgentError(w http.ResponseWriter, err error) {
	if errors.Is(err, app.ErrProviderNotConfigured) {
		writeError(w, http.StatusServiceUnavailable, "provider_unavailable", err.Error())
		return
	}
	writeError(w, http.StatusBadGateway, "provider_error", err.Error())
}

// decodeBody reads and decodes a JSON request body, writing the error
// response itself on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "failed to read request body")
		return false
	}
	if err := json.Unmarshal(body, v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "request body is not valid JSON")
		return false
	}
	return true
}
