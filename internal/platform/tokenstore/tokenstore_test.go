package tokenstore

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFileStore_SaveLoadClear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "authToken")
	store := NewFileStore(path)

	if _, err := store.Load(); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound before first save, got %v", err)
	}

	grant := &Grant{
		AccessToken:  "access-abc",
		RefreshToken: "refresh-def",
		SavedAt:      time.Now().UTC(),
	}
	if err := store.Save(grant); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("expected grant file to exist: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("expected file mode 0600, got %04o", perm)
	}

	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loaded.AccessToken != "access-abc" {
		t.Errorf("expected access token access-abc, got %s", loaded.AccessToken)
	}
	if loaded.RefreshToken != "refresh-def" {
		t.Errorf("expected refresh token refresh-def, got %s", loaded.RefreshToken)
	}

	if err := store.Clear(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := store.Load(); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after clear, got %v", err)
	}

	// Clearing twice must not fail.
	if err := store.Clear(); err != nil {
		t.Errorf("unexpected error clearing empty store: %v", err)
	}
}

func TestFileStore_LastWriterWins(t *testing.T) {
	path := filepath.Join(t.TempDir(), "authToken")

	first := NewFileStore(path)
	second := NewFileStore(path)

	if err := first.Save(&Grant{AccessToken: "one"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := second.Save(&Grant{AccessToken: "two"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	loaded, err := first.Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loaded.AccessToken != "two" {
		t.Errorf("expected last written token 'two', got %s", loaded.AccessToken)
	}
}

func TestFileStore_RejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "authToken")
	if err := os.WriteFile(path, []byte("not json"), 0600); err != nil {
		t.Fatal(err)
	}

	store := NewFileStore(path)
	if _, err := store.Load(); err == nil {
		t.Error("expected error for corrupt grant file")
	}
}

func TestMemStore(t *testing.T) {
	store := NewMemStore()

	if _, err := store.Load(); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	grant := &Grant{AccessToken: "tok"}
	if err := store.Save(grant); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The store must hold its own copy, not alias the caller's value.
	grant.AccessToken = "mutated"
	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loaded.AccessToken != "tok" {
		t.Errorf("expected stored copy 'tok', got %s", loaded.AccessToken)
	}

	if err := store.Clear(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := store.Load(); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after clear, got %v", err)
	}
}
