// Package memory provides in-memory store implementations backed by
// configuration.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/agentgate/agentgate/domain/key"
	"github.com/agentgate/agentgate/ports"
)

// KeyStore holds the API keys declared in configuration, indexed by
// SHA-256 digest for O(1) authentication lookups.
type KeyStore struct {
	mu     sync.RWMutex
	byHash map[string]*key.Key
	byID   map[string]*key.Key
}

// KeyConfig is one configured API key. Either the plaintext Key or its
// precomputed Hash must be set; plaintext entries are hashed at load.
type KeyConfig struct {
	KeyID  string
	Name   string
	Key    string
	Hash   string
	Status key.Status
}

// NewKeyStore builds a key store from configured entries.
func NewKeyStore(entries []KeyConfig, now time.Time) *KeyStore {
	s := &KeyStore{
		byHash: make(map[string]*key.Key, len(entries)),
		byID:   make(map[string]*key.Key, len(entries)),
	}
	for _, e := range entries {
		hash := e.Hash
		if hash == "" {
			if e.Key == "" {
				continue
			}
			hash = key.Hash(e.Key)
		}
		status := e.Status
		if status == "" {
			status = key.StatusActive
		}
		k := &key.Key{
			ID:        e.KeyID,
			Name:      e.Name,
			Hash:      hash,
			Status:    status,
			CreatedAt: now,
		}
		s.byHash[hash] = k
		s.byID[e.KeyID] = k
	}
	return s
}

// GetByHash retrieves a key by its SHA-256 digest.
func (s *KeyStore) GetByHash(_ context.Context, hash string) (key.Key, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	k, ok := s.byHash[hash]
	if !ok {
		return key.Key{}, false
	}
	return *k, true
}

// UpdateLastUsed records when a key last authenticated a request.
func (s *KeyStore) UpdateLastUsed(_ context.Context, id string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if k, ok := s.byID[id]; ok {
		t := at
		k.LastUsed = &t
	}
}

// Len returns the number of configured keys.
func (s *KeyStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// Ensure interface compliance.
var _ ports.KeyStore = (*KeyStore)(nil)
