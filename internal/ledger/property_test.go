package ledger

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/roach88/agentregistry/internal/ir"
	"github.com/roach88/agentregistry/internal/registry"
	"github.com/roach88/agentregistry/internal/store"
)

// TestPropertyLedgerMatchesModel drives random set_persona calls through the
// full host and compares views, receipts and events with a map model.
func TestPropertyLedgerMatchesModel(t *testing.T) {
	dir := t.TempDir()
	run := 0

	rapid.Check(t, func(rt *rapid.T) {
		ctx := context.Background()
		run++
		s, err := store.Open(filepath.Join(dir, fmt.Sprintf("prop-%d.db", run)))
		require.NoError(rt, err)
		defer s.Close()

		l, err := New(s, WithViewCache(DefaultViewCacheTTL))
		require.NoError(rt, err)
		_, err = l.Init(ctx, "owner.test")
		require.NoError(rt, err)

		accounts := []ir.AccountID{"a.test", "b.test", "c.test"}
		model := make(map[ir.AccountID]ir.CID)
		events := 0

		steps := rapid.IntRange(1, 20).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			caller := rapid.SampledFrom(accounts).Draw(rt, "caller")
			cid := rapid.OneOf(
				rapid.StringMatching(`bafy[a-z2-7]{2,10}`),
				rapid.StringMatching(`[ \t]{0,3}`),
			).Draw(rt, "cid")

			rec, err := l.Call(ctx, caller, MethodSetPersona, cidArgs(cid))
			require.NoError(rt, err)

			if registry.IsValidCID(cid) {
				require.Equal(rt, ir.StatusSuccess, rec.Status)
				require.Len(rt, rec.Logs, 1)
				model[caller] = ir.CID(cid)
				events++
			} else {
				require.Equal(rt, ir.StatusFailure, rec.Status)
				require.Empty(rt, rec.Logs)
			}

			for _, a := range accounts {
				got, ok, err := l.GetPersona(ctx, a)
				require.NoError(rt, err)
				want, wantOK := model[a]
				require.Equal(rt, wantOK, ok, "presence of %s", a)
				require.Equal(rt, want, got, "cid of %s", a)
			}
		}

		receipts, err := l.Receipts(ctx, 0)
		require.NoError(rt, err)
		require.Len(rt, receipts, steps+1)

		total := 0
		for _, r := range receipts {
			total += len(r.Logs)
		}
		require.Equal(rt, events, total)
	})
}
