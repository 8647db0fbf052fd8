// Package testutil provides shared test helpers for setting up card stores.
package testutil

import (
	"os"
	"testing"

	"github.com/starford/ansuz/internal/cardstore"
)

// TestStore creates a temporary SQLite card store that is automatically
// cleaned up.
func TestStore(t *testing.T) *cardstore.Store {
	t.Helper()
	dbFile, err := os.CreateTemp("", "ansuz-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	store, err := cardstore.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}
