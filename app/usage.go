package app

import (
	"context"
	"time"

	"github.com/agentgate/agentgate/domain/agent"
	"github.com/agentgate/agentgate/domain/history"
	"github.com/agentgate/agentgate/ports"
	"github.com/rs/zerolog"
)

// UsageRecorder feeds post-execution consumption into the rate limiter
// and the execution history. Both sinks are best-effort: a history write
// failure is logged, never surfaced to the caller.
type UsageRecorder struct {
	limiter   *RateLimitService
	history   ports.HistoryStore
	clock     ports.Clock
	logger    zerolog.Logger
	costPer1K map[agent.Provider]float64
}

// Execution describes one finished agent run for recording.
type Execution struct {
	RequestID string
	APIKeyID  string
	Agent     string
	Provider  agent.Provider
	Model     string
	Duration  float64
	Tokens    int64
	Err       error
	Metadata  map[string]any
}

// NewUsageRecorder creates a usage recorder. costPer1K maps a provider
// to its estimated dollar cost per 1000 tokens; unlisted providers
// record zero cost.
func NewUsageRecorder(limiter *RateLimitService, hist ports.HistoryStore, costPer1K map[agent.Provider]float64, clock ports.Clock, logger zerolog.Logger) *UsageRecorder {
	return &UsageRecorder{
		limiter:   limiter,
		history:   hist,
		clock:     clock,
		logger:    logger.With().Str("component", "usage").Logger(),
		costPer1K: costPer1K,
	}
}

// EstimateCost converts a token count into an estimated dollar cost for
// the provider.
func (r *UsageRecorder) EstimateCost(provider agent.Provider, tokens int64) float64 {
	if tokens <= 0 {
		return 0
	}
	return float64(tokens) / 1000 * r.costPer1K[provider]
}

// Record commits one execution's consumption and appends it to history.
// The rate-limit agent scope is the agent name.
func (r *UsageRecorder) Record(ctx context.Context, e Execution) {
	cost := r.EstimateCost(e.Provider, e.Tokens)

	if r.limiter != nil {
		r.limiter.RecordUsage(e.APIKeyID, e.Agent, e.Tokens, cost)
	}

	if r.history == nil {
		return
	}

	status := history.ExecutionCompleted
	errMsg := ""
	if e.Err != nil {
		status = history.ExecutionFailed
		errMsg = e.Err.Error()
	}

	entry := history.ExecutionEntry{
		Timestamp:     r.clock.Now().UTC(),
		RequestID:     e.RequestID,
		APIKeyID:      e.APIKeyID,
		Agent:         e.Agent,
		Status:        status,
		Provider:      string(e.Provider),
		Model:         e.Model,
		Duration:      e.Duration,
		TokensUsed:    e.Tokens,
		EstimatedCost: cost,
		Error:         errMsg,
		Metadata:      e.Metadata,
	}

	// Recording must not block on request cancellation.
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := r.history.RecordExecution(recordCtx, entry); err != nil {
		r.logger.Error().Err(err).Str("agent", e.Agent).Msg("failed to record execution history")
	}
}
