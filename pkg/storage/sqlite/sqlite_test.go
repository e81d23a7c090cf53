package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/vedmemory/ved/pkg/storage"
)

// TestSQLiteStorageSuite runs the full storage test suite against a file-backed database.
func TestSQLiteStorageSuite(t *testing.T) {
	suite := &storage.StorageTestSuite{
		NewStorage: func(t *testing.T) storage.Storage {
			store, err := Open(context.Background(), &Config{Path: filepath.Join(t.TempDir(), "ved.db")})
			if err != nil {
				t.Fatalf("Open failed: %v", err)
			}
			return store
		},
	}

	suite.RunAllTests(t)
}

func TestSQLiteStorage_InMemory(t *testing.T) {
	store, err := Open(context.Background(), &Config{Path: ":memory:"})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer store.Close()

	u := &storage.User{Email: "mem@example.com", PasswordHash: "h"}
	if err := store.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	if _, err := store.GetUser(context.Background(), u.ID); err != nil {
		t.Errorf("GetUser failed: %v", err)
	}
}

func TestSQLiteStorage_MigrateIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "ved.db")

	first, err := Open(context.Background(), &Config{Path: path})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	second, err := Open(context.Background(), &Config{Path: path})
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	defer second.Close()

	if err := second.Migrate(context.Background()); err != nil {
		t.Errorf("Migrate failed: %v", err)
	}
}

func TestDSN(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{":memory:", "file::memory:?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"},
		{"/tmp/ved.db", "file:/tmp/ved.db?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"},
	}
	for _, tt := range tests {
		if got := dsn(tt.path); got != tt.want {
			t.Errorf("dsn(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}
