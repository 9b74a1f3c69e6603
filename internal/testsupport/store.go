package testsupport

import (
	"testing"

	"landopt/internal/config"
	"landopt/internal/ledger"
)

// MustOpenLedger opens the ledger for a test config and fails the test on
// error. The store is closed automatically at cleanup.
func MustOpenLedger(t testing.TB, cfg *config.Config) *ledger.Store {
	t.Helper()
	store, err := ledger.Open(cfg)
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("close ledger: %v", err)
		}
	})
	return store
}
