package registry

import (
	"context"

	"github.com/roach88/agentregistry/internal/ir"
)

// MemoryStore is a map-backed KVStore.
// Not safe for concurrent use; the host serializes calls.
type MemoryStore struct {
	personas map[ir.AccountID]ir.CID
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{personas: make(map[ir.AccountID]ir.CID)}
}

func (s *MemoryStore) GetPersona(_ context.Context, account ir.AccountID) (ir.CID, bool, error) {
	cid, ok := s.personas[account]
	return cid, ok, nil
}

func (s *MemoryStore) PutPersona(_ context.Context, account ir.AccountID, cid ir.CID) error {
	s.personas[account] = cid
	return nil
}

// Len returns the number of stored records.
func (s *MemoryStore) Len() int {
	return len(s.personas)
}

// LogSink collects emitted lines in order.
type LogSink struct {
	Lines []string
}

func (s *LogSink) Emit(line string) {
	s.Lines = append(s.Lines, line)
}

// StaticCaller is a CallerContext that always resolves to the same account.
type StaticCaller ir.AccountID

func (c StaticCaller) CurrentCaller() ir.AccountID {
	return ir.AccountID(c)
}
