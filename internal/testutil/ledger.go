package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/roach88/agentregistry/internal/ir"
	"github.com/roach88/agentregistry/internal/ledger"
	"github.com/roach88/agentregistry/internal/store"
)

// OpenStore opens a store in a fresh temp dir and closes it on cleanup.
func OpenStore(t testing.TB) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "registry.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// NewLedger returns a deterministic ledger (DeterministicClock and
// SequentialTokens) over a temp store. Extra options are applied last.
func NewLedger(t testing.TB, opts ...ledger.Option) (*ledger.Ledger, *store.Store) {
	t.Helper()
	s := OpenStore(t)

	base := []ledger.Option{
		ledger.WithClock(NewDeterministicClock()),
		ledger.WithTokenGenerator(NewSequentialTokens("")),
	}
	l, err := ledger.New(s, append(base, opts...)...)
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	return l, s
}

// InitLedger is NewLedger followed by Init as owner.
func InitLedger(t testing.TB, owner ir.AccountID, opts ...ledger.Option) (*ledger.Ledger, *store.Store) {
	t.Helper()
	l, s := NewLedger(t, opts...)
	if _, err := l.Init(context.Background(), owner); err != nil {
		t.Fatalf("init ledger: %v", err)
	}
	return l, s
}
