package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/agentgate/agentgate/adapters/sqlite"
	"github.com/agentgate/agentgate/domain/history"
	"github.com/agentgate/agentgate/ports"
)

var day = time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)

func newStore(t *testing.T) *sqlite.HistoryStore {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := db.Migrate(); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	s := sqlite.NewHistoryStore(db)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestMigrate_Idempotent(t *testing.T) {
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		t.Fatalf("first Migrate: %v", err)
	}
	if err := db.Migrate(); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
}

func TestRecordAndQueryRequests(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	entries := []history.RequestEntry{
		{Timestamp: day, RequestID: "r1", APIKeyID: "key1", Method: "POST", Path: "/chat", StatusCode: 200, DurationMs: 12.5},
		{Timestamp: day.Add(time.Minute), APIKeyID: "key1", Method: "GET", Path: "/tasks", StatusCode: 200, DurationMs: 1},
		{Timestamp: day.Add(2 * time.Minute), APIKeyID: "key1", Method: "POST", Path: "/chat", StatusCode: 429, DurationMs: 0.5},
		{Timestamp: day, APIKeyID: "key2", Method: "POST", Path: "/chat", StatusCode: 200},
	}
	for _, e := range entries {
		if err := s.RecordRequest(ctx, e); err != nil {
			t.Fatalf("RecordRequest: %v", err)
		}
	}

	got, total, err := s.QueryRequests(ctx, ports.RequestQuery{APIKeyID: "key1"})
	if err != nil {
		t.Fatalf("QueryRequests: %v", err)
	}
	if total != 3 || len(got) != 3 {
		t.Fatalf("total=%d len=%d, want 3/3", total, len(got))
	}
	if got[0].StatusCode != 429 {
		t.Errorf("first entry = %+v, want newest (429)", got[0])
	}

	got, total, _ = s.QueryRequests(ctx, ports.RequestQuery{APIKeyID: "key1", Method: "get"})
	if total != 1 || got[0].Path != "/tasks" {
		t.Errorf("method filter: total=%d got=%+v", total, got)
	}

	_, total, _ = s.QueryRequests(ctx, ports.RequestQuery{APIKeyID: "key1", PathContains: "chat"})
	if total != 2 {
		t.Errorf("path filter total = %d, want 2", total)
	}

	code := 429
	_, total, _ = s.QueryRequests(ctx, ports.RequestQuery{APIKeyID: "key1", StatusCode: &code})
	if total != 1 {
		t.Errorf("status filter total = %d, want 1", total)
	}

	got, total, _ = s.QueryRequests(ctx, ports.RequestQuery{APIKeyID: "key1", Limit: 2, Offset: 2})
	if total != 3 || len(got) != 1 {
		t.Errorf("pagination: total=%d len=%d, want 3/1", total, len(got))
	}
}

func TestRecordAndQueryExecutions(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	execs := []history.ExecutionEntry{
		{
			Timestamp: day, APIKeyID: "key1", Agent: "chat", Status: history.ExecutionCompleted,
			Provider: "openai", Model: "gpt-4o-mini", TokensUsed: 100, EstimatedCost: 0.05,
		},
		{
			Timestamp: day.Add(time.Minute), APIKeyID: "key1", Agent: "research",
			Status: history.ExecutionFailed, Error: "boom",
			Metadata: map[string]any{"topic": "quic", "depth": "deep"},
		},
		{Timestamp: day, APIKeyID: "key2", Agent: "chat", Status: history.ExecutionCompleted},
	}
	for _, e := range execs {
		if err := s.RecordExecution(ctx, e); err != nil {
			t.Fatalf("RecordExecution: %v", err)
		}
	}

	got, total, err := s.QueryExecutions(ctx, ports.ExecutionQuery{APIKeyID: "key1"})
	if err != nil {
		t.Fatalf("QueryExecutions: %v", err)
	}
	if total != 2 {
		t.Fatalf("total = %d, want 2", total)
	}
	if got[0].Agent != "research" {
		t.Errorf("first entry = %+v, want newest (research)", got[0])
	}
	if got[0].Metadata["topic"] != "quic" {
		t.Errorf("metadata round-trip: %v", got[0].Metadata)
	}
	if got[1].Provider != "openai" || got[1].TokensUsed != 100 {
		t.Errorf("fields: %+v", got[1])
	}

	_, total, _ = s.QueryExecutions(ctx, ports.ExecutionQuery{APIKeyID: "key1", Agent: "chat"})
	if total != 1 {
		t.Errorf("agent filter total = %d, want 1", total)
	}

	_, total, _ = s.QueryExecutions(ctx, ports.ExecutionQuery{APIKeyID: "key1", Status: history.ExecutionFailed})
	if total != 1 {
		t.Errorf("status filter total = %d, want 1", total)
	}
}

func TestStats(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	s.RecordRequest(ctx, history.RequestEntry{Timestamp: day, APIKeyID: "key1", Method: "POST", Path: "/chat", StatusCode: 200, DurationMs: 10})
	s.RecordRequest(ctx, history.RequestEntry{Timestamp: day, APIKeyID: "key1", Method: "POST", Path: "/chat", StatusCode: 500, DurationMs: 30})
	s.RecordExecution(ctx, history.ExecutionEntry{
		Timestamp: day, APIKeyID: "key1", Agent: "chat",
		Status: history.ExecutionCompleted, TokensUsed: 100, EstimatedCost: 0.5,
	})
	s.RecordExecution(ctx, history.ExecutionEntry{
		Timestamp: day, APIKeyID: "key1", Agent: "chat", Status: history.ExecutionFailed,
	})

	stats, err := s.Stats(ctx, "key1")
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.RequestCount != 2 || stats.RequestErrorCount != 1 {
		t.Errorf("request stats: %+v", stats)
	}
	if stats.AvgRequestDurationMs != 20 {
		t.Errorf("avg duration = %v, want 20", stats.AvgRequestDurationMs)
	}
	if stats.ExecutionCount != 2 || stats.ExecutionSuccessCount != 1 || stats.ExecutionFailureCount != 1 {
		t.Errorf("execution stats: %+v", stats)
	}
	if stats.TotalTokensUsed != 100 || stats.TotalEstimatedCost != 0.5 {
		t.Errorf("totals: %+v", stats)
	}
}

func TestStats_EmptyKey(t *testing.T) {
	s := newStore(t)

	stats, err := s.Stats(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.RequestCount != 0 || stats.ExecutionCount != 0 {
		t.Errorf("stats for unknown key: %+v", stats)
	}
}

func TestSweep(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	old := day.AddDate(0, 0, -40)
	s.RecordRequest(ctx, history.RequestEntry{Timestamp: old, APIKeyID: "key1", Method: "GET", Path: "/tasks", StatusCode: 200})
	s.RecordRequest(ctx, history.RequestEntry{Timestamp: day, APIKeyID: "key1", Method: "GET", Path: "/tasks", StatusCode: 200})
	s.RecordExecution(ctx, history.ExecutionEntry{Timestamp: old, APIKeyID: "key1", Agent: "chat", Status: history.ExecutionCompleted})

	if err := s.Sweep(ctx, day.AddDate(0, 0, -30)); err != nil {
		t.Fatalf("Sweep: %v", err)
	}

	_, total, _ := s.QueryRequests(ctx, ports.RequestQuery{APIKeyID: "key1"})
	if total != 1 {
		t.Errorf("requests after sweep = %d, want 1", total)
	}
	_, total, _ = s.QueryExecutions(ctx, ports.ExecutionQuery{APIKeyID: "key1"})
	if total != 0 {
		t.Errorf("executions after sweep = %d, want 0", total)
	}
}
