package registry

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/roach88/agentregistry/internal/ir"
)

// CallerContext resolves the identity making the current call.
type CallerContext interface {
	CurrentCaller() ir.AccountID
}

// KVStore persists the account -> CID mapping across calls.
type KVStore interface {
	GetPersona(ctx context.Context, account ir.AccountID) (ir.CID, bool, error)
	PutPersona(ctx context.Context, account ir.AccountID, cid ir.CID) error
}

// EventSink accepts append-only event lines for external indexing.
type EventSink interface {
	Emit(line string)
}

// Registry holds the persona mapping and applies writes to it.
type Registry struct {
	personas   KVStore
	strictCIDs bool
}

// Option configures a Registry.
type Option func(*Registry)

// WithStrictCIDs makes validation enforce the 'bafy' prefix advertised by the
// rejection message, in addition to the non-empty check.
func WithStrictCIDs() Option {
	return func(r *Registry) {
		r.strictCIDs = true
	}
}

// New initializes a registry over the given store.
func New(store KVStore, opts ...Option) *Registry {
	r := &Registry{personas: store}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SetPersona records cid as the caller's persona and emits one PersonaSetEvent.
//
// The caller is resolved once from the CallerContext; there is no way to write
// on behalf of another account. An invalid cid returns an *InputError before
// any mutation or emission.
func (r *Registry) SetPersona(ctx context.Context, caller CallerContext, sink EventSink, cid string) error {
	account := caller.CurrentCaller()

	if err := r.validateCID(cid); err != nil {
		return err
	}

	// Format first: a stored write must never lack its event.
	line, err := FormatEvent(ir.PersonaSetEvent{AccountID: account, CID: ir.CID(cid)})
	if err != nil {
		return fmt.Errorf("set persona: %w", err)
	}

	if err := r.personas.PutPersona(ctx, account, ir.CID(cid)); err != nil {
		return fmt.Errorf("set persona: %w", err)
	}

	sink.Emit(line)
	return nil
}

// GetPersona returns the stored CID for account. Absence is ("", false, nil), never an error.
func (r *Registry) GetPersona(ctx context.Context, account ir.AccountID) (ir.CID, bool, error) {
	cid, ok, err := r.personas.GetPersona(ctx, account)
	if err != nil {
		return "", false, fmt.Errorf("get persona: %w", err)
	}
	return cid, ok, nil
}

func (r *Registry) validateCID(cid string) error {
	if !IsValidCID(cid) {
		return newInvalidCID(cid)
	}
	if r.strictCIDs && !strings.HasPrefix(strings.TrimSpace(cid), StrictCIDPrefix) {
		return newInvalidCID(cid)
	}
	return nil
}

// StrictCIDPrefix is the prefix enforced by WithStrictCIDs.
const StrictCIDPrefix = "bafy"

// IsValidCID reports whether cid passes the surface check: valid UTF-8 and
// non-empty after trimming surrounding whitespace. Multibase/multihash
// structure is not checked.
func IsValidCID(cid string) bool {
	return utf8.ValidString(cid) && strings.TrimSpace(cid) != ""
}
