package indexer

import (
	"context"
	"fmt"

	"github.com/roach88/agentregistry/internal/ir"
)

// ReceiptSource yields committed receipts in seq order.
type ReceiptSource interface {
	ReadReceipts(ctx context.Context, sinceSeq int64) ([]ir.Receipt, error)
}

// StateSource yields the stored persona mapping.
type StateSource interface {
	ReadPersonas(ctx context.Context) ([]ir.PersonaRecord, error)
}

// Projection is the latest CID per account as seen through events.
// Not safe for concurrent use.
type Projection struct {
	personas map[ir.AccountID]ir.CID
	lastSeq  int64
	events   int
	receipts int
}

// NewProjection returns an empty projection.
func NewProjection() *Projection {
	return &Projection{personas: make(map[ir.AccountID]ir.CID)}
}

// Apply records ev. Later events for the same account win.
func (p *Projection) Apply(ev ir.PersonaSetEvent) {
	p.personas[ev.AccountID] = ev.CID
	p.events++
}

// Get returns the projected CID for account.
func (p *Projection) Get(account ir.AccountID) (ir.CID, bool) {
	cid, ok := p.personas[account]
	return cid, ok
}

// Len returns the number of accounts with a persona.
func (p *Projection) Len() int {
	return len(p.personas)
}

// Events returns the number of events applied.
func (p *Projection) Events() int {
	return p.events
}

// Receipts returns the number of receipts indexed, failures included.
func (p *Projection) Receipts() int {
	return p.receipts
}

// LastSeq returns the seq of the last receipt indexed.
func (p *Projection) LastSeq() int64 {
	return p.lastSeq
}

// Accounts returns the projected accounts in ascending order.
func (p *Projection) Accounts() []ir.AccountID {
	keys := make(map[string]ir.CID, len(p.personas))
	for a, c := range p.personas {
		keys[string(a)] = c
	}
	sorted := ir.SortedKeys(keys)

	out := make([]ir.AccountID, len(sorted))
	for i, k := range sorted {
		out[i] = ir.AccountID(k)
	}
	return out
}

// Records returns the projection as persona records ordered by account.
func (p *Projection) Records() []ir.PersonaRecord {
	accounts := p.Accounts()
	out := make([]ir.PersonaRecord, len(accounts))
	for i, a := range accounts {
		out[i] = ir.PersonaRecord{AccountID: a, CID: p.personas[a]}
	}
	return out
}

// Index applies the events of every receipt with seq > sinceSeq.
// Failure receipts carry no logs and contribute nothing.
func (p *Projection) Index(ctx context.Context, source ReceiptSource, sinceSeq int64) error {
	receipts, err := source.ReadReceipts(ctx, sinceSeq)
	if err != nil {
		return fmt.Errorf("index: %w", err)
	}

	for _, r := range receipts {
		events, err := Scan(r.Logs)
		if err != nil {
			return fmt.Errorf("index receipt %s (seq=%d): %w", r.ID, r.Seq, err)
		}
		if len(events) > 0 && !r.Succeeded() {
			return fmt.Errorf("index receipt %s (seq=%d): failure receipt carries events", r.ID, r.Seq)
		}
		for _, ev := range events {
			p.Apply(ev)
		}
		p.lastSeq = r.Seq
		p.receipts++
	}
	return nil
}

// Index builds a projection from every committed receipt.
func Index(ctx context.Context, source ReceiptSource) (*Projection, error) {
	p := NewProjection()
	if err := p.Index(ctx, source, 0); err != nil {
		return nil, err
	}
	return p, nil
}
