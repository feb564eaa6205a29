package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/agentgate/agentgate/adapters/memory"
	"github.com/agentgate/agentgate/domain/key"
)

var loadTime = time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)

func TestNewKeyStore_HashesPlaintext(t *testing.T) {
	raw := "ak_0123456789abcdef0123456789abcdef"
	s := memory.NewKeyStore([]memory.KeyConfig{
		{KeyID: "k1", Name: "dev", Key: raw},
	}, loadTime)

	k, ok := s.GetByHash(context.Background(), key.Hash(raw))
	if !ok {
		t.Fatal("key not found by hash of plaintext")
	}
	if k.ID != "k1" || k.Name != "dev" {
		t.Errorf("key = %+v", k)
	}
	if k.Status != key.StatusActive {
		t.Errorf("status = %q, want default active", k.Status)
	}
	if !k.CreatedAt.Equal(loadTime) {
		t.Errorf("created at = %v", k.CreatedAt)
	}
}

func TestNewKeyStore_PrecomputedHash(t *testing.T) {
	raw := "ak_ffffffffffffffffffffffffffffffff"
	s := memory.NewKeyStore([]memory.KeyConfig{
		{KeyID: "k1", Hash: key.Hash(raw), Status: key.StatusRevoked},
	}, loadTime)

	k, ok := s.GetByHash(context.Background(), key.Hash(raw))
	if !ok {
		t.Fatal("key not found by precomputed hash")
	}
	if k.Status != key.StatusRevoked {
		t.Errorf("status = %q, want revoked", k.Status)
	}
}

func TestNewKeyStore_SkipsEmptyEntries(t *testing.T) {
	s := memory.NewKeyStore([]memory.KeyConfig{
		{KeyID: "broken"},
		{KeyID: "ok", Key: "ak_0123456789abcdef0123456789abcdef"},
	}, loadTime)

	if s.Len() != 1 {
		t.Errorf("Len = %d, want 1 (entry without key or hash skipped)", s.Len())
	}
}

func TestGetByHash_Unknown(t *testing.T) {
	s := memory.NewKeyStore(nil, loadTime)
	if _, ok := s.GetByHash(context.Background(), "deadbeef"); ok {
		t.Error("unknown hash resolved to a key")
	}
}

func TestUpdateLastUsed(t *testing.T) {
	raw := "ak_0123456789abcdef0123456789abcdef"
	s := memory.NewKeyStore([]memory.KeyConfig{{KeyID: "k1", Key: raw}}, loadTime)

	at := loadTime.Add(time.Hour)
	s.UpdateLastUsed(context.Background(), "k1", at)

	k, _ := s.GetByHash(context.Background(), key.Hash(raw))
	if k.LastUsed == nil || !k.LastUsed.Equal(at) {
		t.Errorf("last used = %v, want %v", k.LastUsed, at)
	}

	// Unknown IDs are ignored.
	s.UpdateLastUsed(context.Background(), "ghost", at)
}
