package indexer

import (
	"context"
	"fmt"

	"github.com/roach88/agentregistry/internal/ir"
)

// Mismatch describes one account where the event log and stored state disagree.
// An empty side means the account is absent there.
type Mismatch struct {
	AccountID ir.AccountID `json:"account_id"`
	Projected ir.CID       `json:"projected"`
	Stored    ir.CID       `json:"stored"`
}

// VerifyResult is the outcome of a replay check.
type VerifyResult struct {
	Receipts   int        `json:"receipts"`
	Events     int        `json:"events"`
	Accounts   int        `json:"accounts"`
	Mismatches []Mismatch `json:"mismatches"`
}

// Consistent reports whether the replayed events reproduce the stored state.
func (r *VerifyResult) Consistent() bool {
	return len(r.Mismatches) == 0
}

// Verify replays all events from source and compares the result with the
// mapping held by state.
func Verify(ctx context.Context, source ReceiptSource, state StateSource) (*VerifyResult, error) {
	p, err := Index(ctx, source)
	if err != nil {
		return nil, fmt.Errorf("verify: %w", err)
	}

	stored, err := state.ReadPersonas(ctx)
	if err != nil {
		return nil, fmt.Errorf("verify: %w", err)
	}

	result := &VerifyResult{
		Receipts:   p.Receipts(),
		Events:     p.Events(),
		Accounts:   p.Len(),
		Mismatches: []Mismatch{},
	}

	seen := make(map[ir.AccountID]bool, len(stored))
	for _, rec := range stored {
		seen[rec.AccountID] = true
		projected, ok := p.Get(rec.AccountID)
		if !ok || projected != rec.CID {
			result.Mismatches = append(result.Mismatches, Mismatch{
				AccountID: rec.AccountID,
				Projected: projected,
				Stored:    rec.CID,
			})
		}
	}
	for _, rec := range p.Records() {
		if !seen[rec.AccountID] {
			result.Mismatches = append(result.Mismatches, Mismatch{
				AccountID: rec.AccountID,
				Projected: rec.CID,
			})
		}
	}

	return result, nil
}
