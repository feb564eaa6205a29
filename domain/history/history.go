// Package history provides value types and pure aggregation for request
// and execution history. Storage backends live in adapters.
package history

import "time"

// RequestEntry records one completed HTTP request.
type RequestEntry struct {
	Timestamp  time.Time `json:"timestamp"`
	RequestID  string    `json:"request_id,omitempty"`
	APIKeyID   string    `json:"api_key_id,omitempty"`
	Method     string    `json:"method"`
	Path       string    `json:"path"`
	StatusCode int       `json:"status_code"`
	DurationMs float64   `json:"duration_ms"`
	Client     string    `json:"client,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// ExecutionEntry records one agent execution.
type ExecutionEntry struct {
	Timestamp     time.Time      `json:"timestamp"`
	RequestID     string         `json:"request_id,omitempty"`
	APIKeyID      string         `json:"api_key_id,omitempty"`
	Agent         string         `json:"agent"`
	Status        string         `json:"status"`
	Provider      string         `json:"provider,omitempty"`
	Model         string         `json:"model,omitempty"`
	Duration      float64        `json:"duration_seconds,omitempty"`
	TokensUsed    int64          `json:"tokens_used,omitempty"`
	EstimatedCost float64        `json:"estimated_cost,omitempty"`
	Error         string         `json:"error,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// Execution statuses recorded in history.
const (
	ExecutionCompleted = "completed"
	ExecutionFailed    = "failed"
)

// Stats summarizes request and execution history for one API key.
type Stats struct {
	APIKeyID string `json:"api_key_id"`

	RequestCount         int     `json:"request_count"`
	RequestErrorCount    int     `json:"request_error_count"`
	AvgRequestDurationMs float64 `json:"average_request_duration_ms"`

	ExecutionCount        int `json:"execution_count"`
	ExecutionSuccessCount int `json:"execution_success_count"`
	ExecutionFailureCount int `json:"execution_failure_count"`

	TotalTokensUsed    int64   `json:"total_tokens_used"`
	TotalEstimatedCost float64 `json:"total_estimated_cost"`
}

// Aggregate combines request and execution entries into summary stats.
// This is a PURE function.
func Aggregate(apiKeyID string, requests []RequestEntry, executions []ExecutionEntry) Stats {
	stats := Stats{APIKeyID: apiKeyID}

	var totalDuration float64
	for _, r := range requests {
		stats.RequestCount++
		totalDuration += r.DurationMs
		if r.StatusCode >= 400 {
			stats.RequestErrorCount++
		}
	}
	if stats.RequestCount > 0 {
		stats.AvgRequestDurationMs = totalDuration / float64(stats.RequestCount)
	}

	for _, e := range executions {
		stats.ExecutionCount++
		switch e.Status {
		case ExecutionCompleted:
			stats.ExecutionSuccessCount++
		case ExecutionFailed:
			stats.ExecutionFailureCount++
		}
		stats.TotalTokensUsed += e.TokensUsed
		stats.TotalEstimatedCost += e.EstimatedCost
	}

	return stats
}
