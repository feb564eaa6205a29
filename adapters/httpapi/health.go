package httpapi

import (
	"net/http"
)

// handleHealth is the liveness check.
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleProvidersHealth reports which LLM providers are configured.
// Degraded (no providers) is still 200: the task and history APIs work
// without any backend.
func (h *Handler) handleProvidersHealth(w http.ResponseWriter, r *http.Request) {
	available := h.deps.Providers.Available()

	status := "ok"
	if len(available) == 0 {
		status = "degraded"
	}

	providers := make([]map[string]string, 0, len(available))
	for _, p := range available {
		entry := map[string]string{"provider": string(p)}
		if client, err := h.deps.Providers.Client(p); err == nil {
			entry["model"] = client.Model()
		}
		providers = append(providers, entry)
	}

	resp := map[string]any{
		"status":    status,
		"providers": providers,
	}
	if def, err := h.deps.Providers.Default(); err == nil {
		resp["default_provider"] = string(def)
	}
	writeJSON(w, http.StatusOK, resp)
}
