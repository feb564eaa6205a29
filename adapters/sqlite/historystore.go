package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/agentgate/agentgate/domain/history"
	"github.com/agentgate/agentgate/ports"
)

// HistoryStore implements ports.HistoryStore using SQLite.
type HistoryStore struct {
	db *DB
}

// NewHistoryStore creates a new SQLite history store.
func NewHistoryStore(db *DB) *HistoryStore {
	return &HistoryStore{db: db}
}

// RecordRequest stores one request history entry.
func (s *HistoryStore) RecordRequest(ctx context.Context, e history.RequestEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO request_history (
			timestamp, request_id, api_key_id, method, path, status_code, duration_ms, client, error
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.Timestamp.UTC(), e.RequestID, e.APIKeyID, e.Method, e.Path, e.StatusCode, e.DurationMs, e.Client, e.Error)
	return err
}

// RecordExecution stores one execution history entry.
func (s *HistoryStore) RecordExecution(ctx context.Context, e history.ExecutionEntry) error {
	var metadata any
	if len(e.Metadata) > 0 {
		data, err := json.Marshal(e.Metadata)
		if err != nil {
			return err
		}
		metadata = string(data)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO execution_history (
			timestamp, request_id, api_key_id, agent, status, provider, model,
			duration_seconds, tokens_used, estimated_cost, error, metadata
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.Timestamp.UTC(), e.RequestID, e.APIKeyID, e.Agent, e.Status, e.Provider, e.Model,
		e.Duration, e.TokensUsed, e.EstimatedCost, e.Error, metadata)
	return err
}

// QueryRequests returns matching request entries newest-first plus the
// total match count before pagination.
func (s *HistoryStore) QueryRequests(ctx context.Context, q ports.RequestQuery) ([]history.RequestEntry, int, error) {
	where := []string{"api_key_id = ?"}
	args := []any{q.APIKeyID}
	if q.Method != "" {
		where = append(where, "UPPER(method) = UPPER(?)")
		args = append(args, q.Method)
	}
	if q.PathContains != "" {
		where = append(where, "instr(path, ?) > 0")
		args = append(args, q.PathContains)
	}
	if q.StatusCode != nil {
		where = append(where, "status_code = ?")
		args = append(args, *q.StatusCode)
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM request_history WHERE "+cond, args...,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit, offset := pageBounds(q.Limit, q.Offset)
	rows, err := s.db.QueryContext(ctx, `
		SELECT timestamp, request_id, api_key_id, method, path, status_code, duration_ms, client, error
		FROM request_history
		WHERE `+cond+`
		ORDER BY timestamp DESC, id DESC
		LIMIT ? OFFSET ?
	`, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	entries := []history.RequestEntry{}
	for rows.Next() {
		var e history.RequestEntry
		var requestID, client, errMsg sql.NullString
		if err := rows.Scan(&e.Timestamp, &requestID, &e.APIKeyID, &e.Method, &e.Path,
			&e.StatusCode, &e.DurationMs, &client, &errMsg); err != nil {
			return nil, 0, err
		}
		e.RequestID = requestID.String
		e.Client = client.String
		e.Error = errMsg.String
		entries = append(entries, e)
	}
	return entries, total, rows.Err()
}

// QueryExecutions returns matching execution entries newest-first plus
// the total match count before pagination.
func (s *HistoryStore) QueryExecutions(ctx context.Context, q ports.ExecutionQuery) ([]history.ExecutionEntry, int, error) {
	where := []string{"api_key_id = ?"}
	args := []any{q.APIKeyID}
	if q.Agent != "" {
		where = append(where, "agent = ?")
		args = append(args, q.Agent)
	}
	if q.Status != "" {
		where = append(where, "status = ?")
		args = append(args, q.Status)
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM execution_history WHERE "+cond, args...,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit, offset := pageBounds(q.Limit, q.Offset)
	rows, err := s.db.QueryContext(ctx, `
		SELECT timestamp, request_id, api_key_id, agent, status, provider, model,
		       duration_seconds, tokens_used, estimated_cost, error, metadata
		FROM execution_history
		WHERE `+cond+`
		ORDER BY timestamp DESC, id DESC
		LIMIT ? OFFSET ?
	`, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	entries := []history.ExecutionEntry{}
	for rows.Next() {
		var e history.ExecutionEntry
		var requestID, provider, model, errMsg, metadata sql.NullString
		if err := rows.Scan(&e.Timestamp, &requestID, &e.APIKeyID, &e.Agent, &e.Status,
			&provider, &model, &e.Duration, &e.TokensUsed, &e.EstimatedCost, &errMsg, &metadata); err != nil {
			return nil, 0, err
		}
		e.RequestID = requestID.String
		e.Provider = provider.String
		e.Model = model.String
		e.Error = errMsg.String
		if metadata.Valid && metadata.String != "" {
			// Best effort; malformed metadata is dropped rather than failing the read.
			_ = json.Unmarshal([]byte(metadata.String), &e.Metadata)
		}
		entries = append(entries, e)
	}
	return entries, total, rows.Err()
}

// Stats aggregates history for one API key.
func (s *HistoryStore) Stats(ctx context.Context, apiKeyID string) (history.Stats, error) {
	stats := history.Stats{APIKeyID: apiKeyID}

	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN status_code >= 400 THEN 1 ELSE 0 END), 0),
			COALESCE(AVG(duration_ms), 0)
		FROM request_history
		WHERE api_key_id = ?
	`, apiKeyID).Scan(&stats.RequestCount, &stats.RequestErrorCount, &stats.AvgRequestDurationMs)
	if err != nil {
		return history.Stats{}, err
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(tokens_used), 0),
			COALESCE(SUM(estimated_cost), 0)
		FROM execution_history
		WHERE api_key_id = ?
	`, history.ExecutionCompleted, history.ExecutionFailed, apiKeyID).Scan(
		&stats.ExecutionCount, &stats.ExecutionSuccessCount, &stats.ExecutionFailureCount,
		&stats.TotalTokensUsed, &stats.TotalEstimatedCost)
	if err != nil {
		return history.Stats{}, err
	}

	return stats, nil
}

// Sweep removes entries older than the cutoff.
func (s *HistoryStore) Sweep(ctx context.Context, cutoff time.Time) error {
	at := cutoff.UTC()
	if _, err := s.db.ExecContext(ctx, "DELETE FROM request_history WHERE timestamp < ?", at); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, "DELETE FROM execution_history WHERE timestamp < ?", at)
	return err
}

// Close closes the underlying database.
func (s *HistoryStore) Close() error {
	return s.db.Close()
}

func pageBounds(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// Ensure interface compliance.
var _ ports.HistoryStore = (*HistoryStore)(nil)
