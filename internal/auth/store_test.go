package auth

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func TestFileTokenStoreRoundTrip(t *testing.T) {
	store := NewFileTokenStore(t.TempDir())
	pair := TokenPair{AccessToken: "access", RefreshToken: "refresh"}

	if err := store.Save("user@example.com", pair); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	got, err := store.Load("user@example.com")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if got != pair {
		t.Errorf("Loaded %+v, want %+v", got, pair)
	}
}

func TestFileTokenStoreNotFound(t *testing.T) {
	store := NewFileTokenStore(t.TempDir())

	_, err := store.Load("nobody")
	if !errors.Is(err, ErrTokenNotFound) {
		t.Errorf("Expected ErrTokenNotFound, got %v", err)
	}
}

func TestFileTokenStoreHashesAccountNames(t *testing.T) {
	dir := t.TempDir()
	store := NewFileTokenStore(dir)

	if err := store.Save("alice", TokenPair{AccessToken: "a", RefreshToken: "b"}); err != nil {
		t.Fatal(err)
	}
	if err := store.Save("bob", TokenPair{AccessToken: "c", RefreshToken: "d"}); err != nil {
		t.Fatal(err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("Expected 2 token files, got %d", len(entries))
	}
	for _, e := range entries {
		if strings.Contains(e.Name(), "alice") || strings.Contains(e.Name(), "bob") {
			t.Errorf("Token file name %q leaks the account identifier", e.Name())
		}
		if !strings.HasPrefix(e.Name(), "tokens_") || !strings.HasSuffix(e.Name(), ".json") {
			t.Errorf("Unexpected token file name %q", e.Name())
		}
	}

	alice, err := store.Load("alice")
	if err != nil {
		t.Fatal(err)
	}
	if alice.AccessToken != "a" {
		t.Errorf("Expected alice's tokens, got %+v", alice)
	}
}

func TestFileTokenStorePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("file modes are not meaningful on windows")
	}

	dir := t.TempDir()
	store := NewFileTokenStore(dir)
	if err := store.Save("alice", TokenPair{AccessToken: "a", RefreshToken: "b"}); err != nil {
		t.Fatal(err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	info, err := entries[0].Info()
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("Expected 0600 permissions, got %o", perm)
	}
}

func TestFileTokenStoreRejectsPartialPair(t *testing.T) {
	dir := t.TempDir()
	store := NewFileTokenStore(dir)

	// A pair missing the refresh token is useless for resumption
	path := filepath.Join(dir, "tokens_bad.json")
	if err := os.WriteFile(path, []byte(`{"access_token":"a"}`), 0o600); err != nil {
		t.Fatal(err)
	}

	// Write a real file for the account under test, then corrupt it
	if err := store.Save("alice", TokenPair{AccessToken: "a", RefreshToken: "b"}); err != nil {
		t.Fatal(err)
	}
	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if e.Name() == "tokens_bad.json" {
			continue
		}
		if err := os.WriteFile(filepath.Join(dir, e.Name()), []byte(`{"access_token":"a"}`), 0o600); err != nil {
			t.Fatal(err)
		}
	}

	if _, err := store.Load("alice"); !errors.Is(err, ErrTokenNotFound) {
		t.Errorf("Expected ErrTokenNotFound for partial pair, got %v", err)
	}
}
