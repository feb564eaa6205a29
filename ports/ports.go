// Package ports defines interfaces (contracts) between layers.
// These interfaces enable dependency injection and testability.
// Implementations live in adapters/.
package ports

import (
	"context"
	"time"

	"github.com/agentgate/agentgate/domain/history"
	"github.com/agentgate/agentgate/domain/key"
	"github.com/agentgate/agentgate/domain/task"
)

// -----------------------------------------------------------------------------
// Infrastructure Ports
// -----------------------------------------------------------------------------

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// IDGenerator generates unique identifiers.
type IDGenerator interface {
	New() string
}

// -----------------------------------------------------------------------------
// Data Store Ports
// -----------------------------------------------------------------------------

// KeyStore resolves API keys for authentication.
type KeyStore interface {
	// GetByHash retrieves a key by its SHA-256 digest.
	GetByHash(ctx context.Context, hash string) (key.Key, bool)

	// UpdateLastUsed records when a key last authenticated a request.
	UpdateLastUsed(ctx context.Context, id string, at time.Time)
}

// RequestQuery filters request history reads.
type RequestQuery struct {
	APIKeyID     string
	Method       string
	PathContains string
	StatusCode   *int
	Limit        int
	Offset       int
}

// ExecutionQuery filters execution history reads.
type ExecutionQuery struct {
	APIKeyID string
	Agent    string
	Status   string
	Limit    int
	Offset   int
}

// HistoryStore persists request and execution history.
type HistoryStore interface {
	// RecordRequest appends a request history entry.
	RecordRequest(ctx context.Context, e history.RequestEntry) error

	// RecordExecution appends an execution history entry.
	RecordExecution(ctx context.Context, e history.ExecutionEntry) error

	// QueryRequests returns matching entries newest-first plus the total
	// match count before pagination.
	QueryRequests(ctx context.Context, q RequestQuery) ([]history.RequestEntry, int, error)

	// QueryExecutions returns matching entries newest-first plus the total
	// match count before pagination.
	QueryExecutions(ctx context.Context, q ExecutionQuery) ([]history.ExecutionEntry, int, error)

	// Stats aggregates history for one API key.
	Stats(ctx context.Context, apiKeyID string) (history.Stats, error)

	// Sweep removes entries older than the cutoff.
	Sweep(ctx context.Context, cutoff time.Time) error

	// Close releases backend resources.
	Close() error
}

// -----------------------------------------------------------------------------
// Execution Ports
// -----------------------------------------------------------------------------

// Executor runs one task to completion on behalf of the owning API key.
// It must honor context cancellation; returning context.Canceled marks
// the task cancelled rather than failed. Supplied by the application at
// TaskManager construction time.
type Executor func(ctx context.Context, req task.Request, apiKeyID string) (map[string]any, error)

// CompletionRequest is a single-turn prompt for an LLM backend.
type CompletionRequest struct {
	System string
	Prompt string
}

// Completion is the LLM backend's answer.
type Completion struct {
	Content    string
	Model      string
	TokensUsed int64
}

// LLMClient is one configured LLM backend.
type LLMClient interface {
	// Complete performs a single completion call.
	Complete(ctx context.Context, req CompletionRequest) (Completion, error)

	// Model returns the configured model name.
	Model() string
}
