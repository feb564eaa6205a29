// Package history provides file-backed history storage. Entries are
// appended to one JSONL file per day and category; retention works by
// deleting whole files past the cutoff.
package history

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/agentgate/agentgate/domain/history"
	"github.com/agentgate/agentgate/ports"
)

const (
	requestsPrefix   = "requests"
	executionsPrefix = "executions"
	dateLayout       = "2006-01-02"
)

// JSONLStore stores history entries as line-delimited JSON files.
type JSONLStore struct {
	mu  sync.Mutex
	dir string
}

// NewJSONLStore creates the storage directory if needed.
func NewJSONLStore(dir string) (*JSONLStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}
	return &JSONLStore{dir: dir}, nil
}

// RecordRequest appends a request history entry.
func (s *JSONLStore) RecordRequest(_ context.Context, e history.RequestEntry) error {
	return s.append(requestsPrefix, e.Timestamp, e)
}

// RecordExecution appends an execution history entry.
func (s *JSONLStore) RecordExecution(_ context.Context, e history.ExecutionEntry) error {
	return s.append(executionsPrefix, e.Timestamp, e)
}

func (s *JSONLStore) append(prefix string, ts time.Time, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode history entry: %w", err)
	}

	path := filepath.Join(s.dir, fmt.Sprintf("%s-%s.jsonl", prefix, ts.UTC().Format(dateLayout)))

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open history file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("append history entry: %w", err)
	}
	return nil
}

// QueryRequests returns matching request entries newest-first plus the
// total match count before pagination.
func (s *JSONLStore) QueryRequests(_ context.Context, q ports.RequestQuery) ([]history.RequestEntry, int, error) {
	var entries []history.RequestEntry
	err := s.readAll(requestsPrefix, func(line []byte) error {
		var e history.RequestEntry
		if err := json.Unmarshal(line, &e); err != nil {
			return nil // skip malformed lines
		}
		if e.APIKeyID != q.APIKeyID {
			return nil
		}
		if q.Method != "" && !strings.EqualFold(e.Method, q.Method) {
			return nil
		}
		if q.PathContains != "" && !strings.Contains(e.Path, q.PathContains) {
			return nil
		}
		if q.StatusCode != nil && e.StatusCode != *q.StatusCode {
			return nil
		}
		entries = append(entries, e)
		return nil
	})
	if err != nil {
		return nil, 0, err
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Timestamp.After(entries[j].Timestamp) })
	total := len(entries)
	return paginate(entries, q.Limit, q.Offset), total, nil
}

// QueryExecutions returns matching execution entries newest-first plus
// the total match count before pagination.
func (s *JSONLStore) QueryExecutions(_ context.Context, q ports.ExecutionQuery) ([]history.ExecutionEntry, int, error) {
	var entries []history.ExecutionEntry
	err := s.readAll(executionsPrefix, func(line []byte) error {
		var e history.ExecutionEntry
		if err := json.Unmarshal(line, &e); err != nil {
			return nil
		}
		if e.APIKeyID != q.APIKeyID {
			return nil
		}
		if q.Agent != "" && e.Agent != q.Agent {
			return nil
		}
		if q.Status != "" && e.Status != q.Status {
			return nil
		}
		entries = append(entries, e)
		return nil
	})
	if err != nil {
		return nil, 0, err
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Timestamp.After(entries[j].Timestamp) })
	total := len(entries)
	return paginate(entries, q.Limit, q.Offset), total, nil
}

// Stats aggregates history for one API key.
func (s *JSONLStore) Stats(ctx context.Context, apiKeyID string) (history.Stats, error) {
	var requests []history.RequestEntry
	err := s.readAll(requestsPrefix, func(line []byte) error {
		var e history.RequestEntry
		if err := json.Unmarshal(line, &e); err != nil {
			return nil
		}
		if e.APIKeyID == apiKeyID {
			requests = append(requests, e)
		}
		return nil
	})
	if err != nil {
		return history.Stats{}, err
	}

	var executions []history.ExecutionEntry
	err = s.readAll(executionsPrefix, func(line []byte) error {
		var e history.ExecutionEntry
		if err := json.Unmarshal(line, &e); err != nil {
			return nil
		}
		if e.APIKeyID == apiKeyID {
			executions = append(executions, e)
		}
		return nil
	})
	if err != nil {
		return history.Stats{}, err
	}

	return history.Aggregate(apiKeyID, requests, executions), nil
}

// Sweep deletes history files whose date is older than the cutoff.
func (s *JSONLStore) Sweep(_ context.Context, cutoff time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	files, err := filepath.Glob(filepath.Join(s.dir, "*.jsonl"))
	if err != nil {
		return fmt.Errorf("list history files: %w", err)
	}

	cutoffDate := cutoff.UTC().Format(dateLayout)
	for _, path := range files {
		date, ok := fileDate(filepath.Base(path))
		if !ok {
			continue
		}
		if date < cutoffDate {
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("remove history file: %w", err)
			}
		}
	}
	return nil
}

// Close is a no-op for the file-backed store.
func (s *JSONLStore) Close() error { return nil }

func (s *JSONLStore) readAll(prefix string, fn func(line []byte) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	files, err := filepath.Glob(filepath.Join(s.dir, prefix+"-*.jsonl"))
	if err != nil {
		return fmt.Errorf("list history files: %w", err)
	}
	sort.Strings(files)

	for _, path := range files {
		f, err := os.Open(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return fmt.Errorf("open history file: %w", err)
		}

		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
		for scanner.Scan() {
			if err := fn(scanner.Bytes()); err != nil {
				f.Close()
				return err
			}
		}
		if err := scanner.Err(); err != nil {
			f.Close()
			return fmt.Errorf("read history file: %w", err)
		}
		f.Close()
	}
	return nil
}

// fileDate extracts the YYYY-MM-DD part of a history file name.
func fileDate(name string) (string, bool) {
	name = strings.TrimSuffix(name, ".jsonl")
	i := strings.IndexByte(name, '-')
	if i < 0 || len(name)-i-1 != len(dateLayout) {
		return "", false
	}
	date := name[i+1:]
	if _, err := time.Parse(dateLayout, date); err != nil {
		return "", false
	}
	return date, true
}

func paginate[T any](entries []T, limit, offset int) []T {
	if limit <= 0 {
		limit = 20
	}
	if offset >= len(entries) {
		return []T{}
	}
	end := offset + limit
	if end > len(entries) {
		end = len(entries)
	}
	return entries[offset:end]
}

// Ensure interface compliance.
var _ ports.HistoryStore = (*JSONLStore)(nil)
