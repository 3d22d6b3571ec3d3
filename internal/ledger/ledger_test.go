package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/roach88/agentregistry/internal/ir"
	"github.com/roach88/agentregistry/internal/registry"
	"github.com/roach88/agentregistry/internal/store"
)

const (
	alice ir.AccountID = "alice.test"
	bob   ir.AccountID = "bob.test"
	carol ir.AccountID = "carol.test"
)

func openStore(t *testing.T, path string) *store.Store {
	t.Helper()
	s, err := store.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func setupLedger(t *testing.T, opts ...Option) (*Ledger, *store.Store) {
	t.Helper()
	s := openStore(t, filepath.Join(t.TempDir(), "ledger.db"))
	l, err := New(s, opts...)
	require.NoError(t, err)
	return l, s
}

func setupInitialized(t *testing.T, opts ...Option) (*Ledger, *store.Store) {
	t.Helper()
	l, s := setupLedger(t, opts...)
	_, err := l.Init(context.Background(), alice)
	require.NoError(t, err)
	return l, s
}

func cidArgs(cid string) []byte {
	return mustJSON(map[string]string{"cid": cid})
}

func TestABI(t *testing.T) {
	l, _ := setupLedger(t)
	abi := l.ABI()

	assert.Equal(t, ContractName, abi.Name)
	require.Len(t, abi.Methods, 3)

	set, ok := abi.Method(MethodSetPersona)
	require.True(t, ok)
	assert.Equal(t, ir.KindCall, set.Kind)
	assert.Equal(t, []ir.NamedArg{{Name: "cid", Type: "string"}}, set.Args)

	get, ok := abi.Method(MethodGetPersona)
	require.True(t, ok)
	assert.Equal(t, ir.KindView, get.Kind)
}

func TestInit(t *testing.T) {
	ctx := context.Background()
	l, s := setupLedger(t, WithTokenGenerator(NewFixedGenerator("tx-init")))

	rec, err := l.Init(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, ir.StatusSuccess, rec.Status)
	assert.Equal(t, int64(1), rec.Seq)
	assert.Equal(t, MethodNew, rec.Method)
	assert.Equal(t, "tx-init", rec.TxToken)
	assert.Empty(t, rec.Logs)

	ok, err := s.IsInitialized(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestInitTwice(t *testing.T) {
	l, _ := setupInitialized(t)

	_, err := l.Init(context.Background(), bob)
	require.Error(t, err)
	assert.True(t, IsHostError(err, ErrCodeAlreadyInitialized))
}

func TestCallBeforeInit(t *testing.T) {
	ctx := context.Background()
	l, s := setupLedger(t)

	_, err := l.Call(ctx, alice, MethodSetPersona, cidArgs("bafyabc"))
	require.Error(t, err)
	assert.True(t, IsHostError(err, ErrCodeNotInitialized))

	_, err = l.View(ctx, MethodGetPersona, []byte(`{"account_id":"alice.test"}`))
	assert.True(t, IsHostError(err, ErrCodeNotInitialized))

	receipts, err := s.ReadReceipts(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, receipts)
}

func TestSetPersonaSuccess(t *testing.T) {
	ctx := context.Background()
	l, s := setupInitialized(t, WithTokenGenerator(NewFixedGenerator("tx-1", "tx-2")))

	rec, err := l.Call(ctx, alice, MethodSetPersona, cidArgs("bafyalice"))
	require.NoError(t, err)

	assert.Equal(t, ir.StatusSuccess, rec.Status)
	assert.Equal(t, int64(2), rec.Seq)
	assert.Equal(t, alice, rec.Caller)
	assert.Equal(t, ir.Args{"cid": "bafyalice"}, rec.Args)
	assert.Equal(t, ir.MustReceiptID("tx-2", alice, MethodSetPersona, ir.Args{"cid": "bafyalice"}, 2), rec.ID)
	assert.Equal(t, []string{`EVENT_JSON:{"account_id":"alice.test","cid":"bafyalice"}`}, rec.Logs)

	stored, err := s.ReadReceipt(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.Logs, stored.Logs)
	assert.Equal(t, ir.Args{"cid": "bafyalice"}, stored.Args)

	cid, ok, err := l.GetPersona(ctx, alice)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, ir.CID("bafyalice"), cid)
}

func TestSetPersonaRejectedRecordsFailure(t *testing.T) {
	ctx := context.Background()
	l, s := setupInitialized(t)

	_, err := l.Call(ctx, alice, MethodSetPersona, cidArgs("bafyfirst"))
	require.NoError(t, err)

	for _, bad := range []string{"", "   ", "\t\n"} {
		rec, err := l.Call(ctx, alice, MethodSetPersona, cidArgs(bad))
		require.NoError(t, err, "contract failure is not a host error")
		assert.Equal(t, ir.StatusFailure, rec.Status)
		assert.Equal(t, registry.InvalidCIDMessage, rec.Error)
		assert.Empty(t, rec.Logs)

		stored, err := s.ReadReceipt(ctx, rec.ID)
		require.NoError(t, err)
		assert.Equal(t, ir.StatusFailure, stored.Status)
		assert.Empty(t, stored.Logs)
	}

	cid, ok, err := l.GetPersona(ctx, alice)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, ir.CID("bafyfirst"), cid, "rejected writes leave state unchanged")
}

func TestSetPersonaWrongArgumentName(t *testing.T) {
	ctx := context.Background()
	l, s := setupInitialized(t)
	before := l.Seq()

	_, err := l.Call(ctx, alice, MethodSetPersona, []byte(`{"not_cid":"bafyabc"}`))
	require.Error(t, err)
	assert.True(t, IsHostError(err, ErrCodeInvalidArgs))

	assert.Equal(t, before, l.Seq(), "host errors consume no seq")
	receipts, err := s.ReadReceipts(ctx, before)
	require.NoError(t, err)
	assert.Empty(t, receipts)
}

func TestUnknownMethod(t *testing.T) {
	l, _ := setupInitialized(t)

	_, err := l.Call(context.Background(), alice, "delete_persona", nil)
	assert.True(t, IsHostError(err, ErrCodeUnknownMethod))

	_, err = l.View(context.Background(), "delete_persona", nil)
	assert.True(t, IsHostError(err, ErrCodeUnknownMethod))
}

func TestInitThroughCallRejected(t *testing.T) {
	l, _ := setupLedger(t)

	_, err := l.Call(context.Background(), alice, MethodNew, nil)
	assert.True(t, IsHostError(err, ErrCodeNotACall))
}

func TestViewRejectsCallMethod(t *testing.T) {
	l, _ := setupInitialized(t)

	_, err := l.View(context.Background(), MethodSetPersona, cidArgs("bafyabc"))
	assert.True(t, IsHostError(err, ErrCodeNotAView))
}

func TestViewThroughCallIsReadOnly(t *testing.T) {
	ctx := context.Background()
	l, s := setupInitialized(t)

	rec, err := l.Call(ctx, bob, MethodGetPersona, []byte(`{"account_id":"alice.test"}`))
	require.NoError(t, err)
	assert.Equal(t, ir.StatusSuccess, rec.Status)
	assert.Empty(t, rec.Logs)

	personas, err := s.ReadPersonas(ctx)
	require.NoError(t, err)
	assert.Empty(t, personas)
}

func TestViewResultEncoding(t *testing.T) {
	ctx := context.Background()
	l, _ := setupInitialized(t)

	raw, err := l.View(ctx, MethodGetPersona, []byte(`{"account_id":"carol.test"}`))
	require.NoError(t, err)
	assert.JSONEq(t, `null`, string(raw))

	_, err = l.Call(ctx, carol, MethodSetPersona, cidArgs("bafy<carol>&"))
	require.NoError(t, err)

	raw, err = l.View(ctx, MethodGetPersona, []byte(`{"account_id":"carol.test"}`))
	require.NoError(t, err)
	var got string
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, "bafy<carol>&", got)
}

// TestViewCacheSeesCommittedWrite reads an absent account (caching null),
// writes it, and checks the next read sees the write.
func TestViewCacheSeesCommittedWrite(t *testing.T) {
	ctx := context.Background()
	l, _ := setupInitialized(t)

	_, ok, err := l.GetPersona(ctx, bob)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = l.Call(ctx, bob, MethodSetPersona, cidArgs("bafybob"))
	require.NoError(t, err)

	cid, ok, err := l.GetPersona(ctx, bob)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, ir.CID("bafybob"), cid)

	v, ok := l.views.Get(string(bob))
	require.True(t, ok)
	assert.Equal(t, viewEntry{cid: "bafybob", found: true, seq: 2}, v)
}

// TestLedgersSharingStore runs a reader and a writer over one store, then
// over two connections to one database file.
func TestLedgersSharingStore(t *testing.T) {
	ctx := context.Background()

	pairs := map[string]func(t *testing.T) (*store.Store, *store.Store){
		"same store": func(t *testing.T) (*store.Store, *store.Store) {
			s := openStore(t, filepath.Join(t.TempDir(), "ledger.db"))
			return s, s
		},
		"same file": func(t *testing.T) (*store.Store, *store.Store) {
			path := filepath.Join(t.TempDir(), "ledger.db")
			return openStore(t, path), openStore(t, path)
		},
	}

	for name, open := range pairs {
		t.Run(name, func(t *testing.T) {
			ws, rs := open(t)
			writer, err := New(ws)
			require.NoError(t, err)
			reader, err := New(rs)
			require.NoError(t, err)

			_, err = writer.Init(ctx, alice)
			require.NoError(t, err)

			_, ok, err := reader.GetPersona(ctx, bob)
			require.NoError(t, err)
			require.False(t, ok)

			rec, err := writer.Call(ctx, bob, MethodSetPersona, cidArgs("bafybob"))
			require.NoError(t, err)
			assert.Equal(t, int64(2), rec.Seq)

			cid, ok, err := reader.GetPersona(ctx, bob)
			require.NoError(t, err)
			assert.True(t, ok, "cached absence must not outlive another writer's commit")
			assert.Equal(t, ir.CID("bafybob"), cid)

			// The reader's clock was built before any receipt existed.
			rec, err = reader.Call(ctx, carol, MethodSetPersona, cidArgs("bafycarol"))
			require.NoError(t, err)
			assert.Equal(t, int64(3), rec.Seq)

			rec, err = writer.Call(ctx, alice, MethodSetPersona, cidArgs(""))
			require.NoError(t, err)
			assert.Equal(t, ir.StatusFailure, rec.Status)
			assert.Equal(t, int64(4), rec.Seq)

			receipts, err := writer.Receipts(ctx, 0)
			require.NoError(t, err)
			require.Len(t, receipts, 4)
			for i, r := range receipts {
				assert.Equal(t, int64(i+1), r.Seq)
			}
		})
	}
}

func TestCallerMustBeValidUTF8(t *testing.T) {
	ctx := context.Background()
	l, s := setupInitialized(t)

	_, err := l.Call(ctx, "alice\xff.test", MethodSetPersona, cidArgs("bafyx"))
	require.Error(t, err)
	assert.True(t, IsHostError(err, ErrCodeInvalidArgs))

	_, _, err = l.GetPersona(ctx, "alice\xff.test")
	assert.True(t, IsHostError(err, ErrCodeInvalidArgs))

	last, err := s.LastSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), last, "rejected caller consumes no seq")

	rec, err := l.Call(ctx, "alicé.test", MethodSetPersona, cidArgs("bafyx"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), rec.Seq)
	assert.Equal(t, []string{`EVENT_JSON:{"account_id":"alicé.test","cid":"bafyx"}`}, rec.Logs)
}

func TestArgsMustBeValidUTF8(t *testing.T) {
	ctx := context.Background()
	l, _ := setupInitialized(t)

	_, err := l.Call(ctx, alice, MethodSetPersona, []byte("{\"cid\":\"bafy\xfe\"}"))
	require.Error(t, err)
	assert.True(t, IsHostError(err, ErrCodeInvalidArgs))
}

func TestViewCacheDisabled(t *testing.T) {
	ctx := context.Background()
	l, _ := setupInitialized(t, WithViewCache(0))
	assert.Nil(t, l.views)

	_, err := l.Call(ctx, bob, MethodSetPersona, cidArgs("bafybob"))
	require.NoError(t, err)

	cid, ok, err := l.GetPersona(ctx, bob)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, ir.CID("bafybob"), cid)
}

func TestStrictCIDs(t *testing.T) {
	ctx := context.Background()
	l, _ := setupInitialized(t, WithStrictCIDs())

	rec, err := l.Call(ctx, alice, MethodSetPersona, cidArgs("QmNotBafy"))
	require.NoError(t, err)
	assert.Equal(t, ir.StatusFailure, rec.Status)

	rec, err = l.Call(ctx, alice, MethodSetPersona, cidArgs("bafyok"))
	require.NoError(t, err)
	assert.Equal(t, ir.StatusSuccess, rec.Status)
}

// TestConcreteScenario walks the reference flow: init, two accounts set,
// an empty write fails, a third account has nothing.
func TestConcreteScenario(t *testing.T) {
	ctx := context.Background()
	l, s := setupLedger(t)

	_, err := l.Init(ctx, alice)
	require.NoError(t, err)

	rec, err := l.Call(ctx, alice, MethodSetPersona, cidArgs("bafyx"))
	require.NoError(t, err)
	require.True(t, rec.Succeeded())

	rec, err = l.Call(ctx, bob, MethodSetPersona, cidArgs("bafyy"))
	require.NoError(t, err)
	require.True(t, rec.Succeeded())

	rec, err = l.Call(ctx, alice, MethodSetPersona, cidArgs(""))
	require.NoError(t, err)
	assert.False(t, rec.Succeeded())

	cid, ok, err := l.GetPersona(ctx, alice)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, ir.CID("bafyx"), cid)

	cid, ok, err = l.GetPersona(ctx, bob)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, ir.CID("bafyy"), cid)

	_, ok, err = l.GetPersona(ctx, carol)
	require.NoError(t, err)
	assert.False(t, ok)

	receipts, err := s.ReadReceipts(ctx, 0)
	require.NoError(t, err)
	require.Len(t, receipts, 4)
	for i, r := range receipts {
		assert.Equal(t, int64(i+1), r.Seq)
	}

	var events int
	for _, r := range receipts {
		events += len(r.Logs)
	}
	assert.Equal(t, 2, events, "one event per successful set_persona")
}

func TestClockResumesFromStore(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger.db")

	s1, err := store.Open(path)
	require.NoError(t, err)
	l1, err := New(s1)
	require.NoError(t, err)
	_, err = l1.Init(ctx, alice)
	require.NoError(t, err)
	_, err = l1.Call(ctx, alice, MethodSetPersona, cidArgs("bafyone"))
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2 := openStore(t, path)
	l2, err := New(s2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), l2.Seq())

	rec, err := l2.Call(ctx, bob, MethodSetPersona, cidArgs("bafytwo"))
	require.NoError(t, err)
	assert.Equal(t, int64(3), rec.Seq)

	cid, ok, err := l2.GetPersona(ctx, alice)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, ir.CID("bafyone"), cid)
}

func TestCallSpans(t *testing.T) {
	ctx := context.Background()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(ctx) })

	l, _ := setupLedger(t, WithTracer(tp.Tracer("test")))
	_, err := l.Init(ctx, alice)
	require.NoError(t, err)
	_, err = l.Call(ctx, alice, MethodSetPersona, cidArgs(""))
	require.NoError(t, err)
	_, err = l.View(ctx, MethodGetPersona, []byte(`{"account_id":"alice.test"}`))
	require.NoError(t, err)

	spans := exporter.GetSpans()
	require.Len(t, spans, 3)
	assert.Equal(t, "ledger.call", spans[0].Name)
	assert.Equal(t, "ledger.call", spans[1].Name)
	assert.Equal(t, "ledger.view", spans[2].Name)

	attrs := make(map[string]string)
	for _, kv := range spans[1].Attributes {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	assert.Equal(t, MethodSetPersona, attrs["ledger.method"])
	assert.Equal(t, string(ir.StatusFailure), attrs["ledger.status"])
}

func TestReceiptsAndLogs(t *testing.T) {
	ctx := context.Background()
	l, _ := setupInitialized(t)

	for i := 0; i < 3; i++ {
		_, err := l.Call(ctx, alice, MethodSetPersona, cidArgs(fmt.Sprintf("bafy%d", i)))
		require.NoError(t, err)
	}

	receipts, err := l.Receipts(ctx, 1)
	require.NoError(t, err)
	require.Len(t, receipts, 3)

	logs, err := l.Logs(ctx, receipts[2].ID)
	require.NoError(t, err)
	assert.Equal(t, []string{`EVENT_JSON:{"account_id":"alice.test","cid":"bafy2"}`}, logs)
}
