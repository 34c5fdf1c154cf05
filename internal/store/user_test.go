package store

import (
	"bytes"
	"path/filepath"
	"testing"
)

func TestXORObfuscationRoundTrip(t *testing.T) {
	key := xorKeyFor("Dave")
	plain := []byte("secret-password")
	masked := xorMask(key, plain)
	recovered := xorMask(key, masked)
	if !bytes.Equal(recovered, plain) {
		t.Fatalf("XOR round trip failed: got %q, want %q", recovered, plain)
	}
}

func TestCreateAuthenticateRejectsDuplicateUsername(t *testing.T) {
	dir := t.TempDir()
	s, err := NewUserStore(filepath.Join(dir, "users"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	if _, err := s.CreateUser("dave", "hunter2", "Dave", "David Smith"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := s.CreateUser("Dave", "other", "Dave2", "D2"); err != ErrUserExists {
		t.Fatalf("expected ErrUserExists for case-insensitive duplicate, got %v", err)
	}

	if _, err := s.Authenticate("DAVE", "hunter2"); err != nil {
		t.Fatalf("authenticate case-insensitive username: %v", err)
	}
	if _, err := s.Authenticate("dave", "wrong"); err != ErrBadCredentials {
		t.Fatalf("expected ErrBadCredentials, got %v", err)
	}
}
