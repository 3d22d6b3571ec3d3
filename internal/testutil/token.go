package testutil

import (
	"fmt"
	"sync"
)

// DefaultTokenPrefix is used when a scenario does not name one.
const DefaultTokenPrefix = "test-tx"

// SequentialTokens hands out tx tokens "<prefix>-1", "<prefix>-2", ...
//
// A scenario run with the same prefix produces the same tokens, and so the
// same receipt IDs, every time. It satisfies ledger.TokenGenerator.
//
// Thread-safety: safe for concurrent use via internal mutex.
type SequentialTokens struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequentialTokens creates a generator with the given prefix.
// An empty prefix falls back to DefaultTokenPrefix.
func NewSequentialTokens(prefix string) *SequentialTokens {
	if prefix == "" {
		prefix = DefaultTokenPrefix
	}
	return &SequentialTokens{prefix: prefix}
}

// Generate returns the next token.
func (g *SequentialTokens) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}
