package session

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryStorePutGetDelete(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	ctx := context.Background()

	entry := Entry{PrincipalID: "user:alice", Reason: "forbidden fault", RevokedAt: time.Now().UTC()}
	if err := s.Put(ctx, "jti-1", entry, time.Minute); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := s.Get(ctx, "jti-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.PrincipalID != "user:alice" {
		t.Errorf("entry: %+v", got)
	}

	if err := s.Delete(ctx, "jti-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Get(ctx, "jti-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("after delete: %v", err)
	}

	// Deleting an absent id is not an error.
	if err := s.Delete(ctx, "jti-1"); err != nil {
		t.Errorf("double delete: %v", err)
	}
}

func TestMemoryStoreExpiry(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	ctx := context.Background()

	if err := s.Put(ctx, "jti-2", Entry{PrincipalID: "user:bob"}, 10*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	time.Sleep(20 * time.Millisecond)
	if _, err := s.Get(ctx, "jti-2"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expired entry still visible: %v", err)
	}
}

func TestMemoryStoreCloseIdempotent(t *testing.T) {
	s := NewMemoryStore()
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
}
