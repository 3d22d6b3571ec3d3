package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
	"unicode/utf8"

	gocache "github.com/patrickmn/go-cache"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/agentregistry/internal/ir"
	"github.com/roach88/agentregistry/internal/registry"
	"github.com/roach88/agentregistry/internal/store"
)

// Method names exported by the contract.
const (
	MethodNew        = "new"
	MethodSetPersona = "set_persona"
	MethodGetPersona = "get_persona"
)

// DefaultViewCacheTTL is how long a view result stays cached.
// An entry is only served while the store's last seq is unchanged, so the
// TTL bounds memory, not staleness.
const DefaultViewCacheTTL = 5 * time.Minute

const tracerName = "github.com/roach88/agentregistry/internal/ledger"

// Ledger runs contract calls against a store, one at a time.
type Ledger struct {
	mu sync.Mutex

	store  *store.Store
	abi    *ir.ContractSpec
	clock  Clock
	tokens TokenGenerator
	logger *slog.Logger
	tracer trace.Tracer

	registryOpts []registry.Option
	viewTTL      time.Duration
	views        *gocache.Cache
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithTokenGenerator sets the tx token source (default UUIDv7Generator).
func WithTokenGenerator(g TokenGenerator) Option {
	return func(l *Ledger) {
		l.tokens = g
	}
}

// WithClock replaces the clock resumed from the store.
func WithClock(c Clock) Option {
	return func(l *Ledger) {
		l.clock = c
	}
}

// WithLogger sets the structured logger (default slog.Default()).
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		l.logger = logger
	}
}

// WithTracer sets the tracer used for call and view spans.
// Defaults to the global otel tracer provider.
func WithTracer(t trace.Tracer) Option {
	return func(l *Ledger) {
		l.tracer = t
	}
}

// WithStrictCIDs enables the 'bafy' prefix check in the registry.
func WithStrictCIDs() Option {
	return func(l *Ledger) {
		l.registryOpts = append(l.registryOpts, registry.WithStrictCIDs())
	}
}

// WithViewCache sets the view cache TTL. Zero or negative disables caching.
func WithViewCache(ttl time.Duration) Option {
	return func(l *Ledger) {
		l.viewTTL = ttl
	}
}

// New creates a Ledger over s. The clock resumes after the last stored
// receipt unless WithClock is given.
//
// Several Ledgers may share one store or database file. Each call reads the
// store's last seq inside its transaction and advances the clock past it.
func New(s *store.Store, opts ...Option) (*Ledger, error) {
	abi, err := loadABI()
	if err != nil {
		return nil, fmt.Errorf("load contract abi: %w", err)
	}

	l := &Ledger{
		store:   s,
		abi:     abi,
		tokens:  UUIDv7Generator{},
		logger:  slog.Default(),
		tracer:  otel.Tracer(tracerName),
		viewTTL: DefaultViewCacheTTL,
	}
	for _, opt := range opts {
		opt(l)
	}

	if l.clock == nil {
		last, err := s.LastSeq(context.Background())
		if err != nil {
			return nil, fmt.Errorf("resume clock: %w", err)
		}
		l.clock = NewClockAt(last)
	}
	if l.viewTTL > 0 {
		l.views = gocache.New(l.viewTTL, 2*l.viewTTL)
	}

	return l, nil
}

// ABI returns the compiled contract interface.
func (l *Ledger) ABI() ir.ContractSpec {
	return *l.abi
}

// Init runs the contract's init method as caller.
func (l *Ledger) Init(ctx context.Context, caller ir.AccountID) (*ir.Receipt, error) {
	return l.invoke(ctx, caller, MethodNew, nil, true)
}

// Call runs a mutating method as caller with JSON-encoded arguments.
//
// A contract failure (rejected input) is an outcome, not an error: the
// returned receipt has status failure and err is nil. err is non-nil only
// for host errors and infrastructure faults, in which case no receipt exists.
func (l *Ledger) Call(ctx context.Context, caller ir.AccountID, method string, argsJSON []byte) (*ir.Receipt, error) {
	return l.invoke(ctx, caller, method, argsJSON, false)
}

func (l *Ledger) invoke(ctx context.Context, caller ir.AccountID, method string, argsJSON []byte, init bool) (rec *ir.Receipt, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ctx, span := l.tracer.Start(ctx, "ledger.call", trace.WithAttributes(
		attribute.String("ledger.method", method),
		attribute.String("ledger.caller", string(caller)),
	))
	defer func() {
		switch {
		case err != nil:
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		case rec != nil:
			span.SetAttributes(
				attribute.Int64("ledger.seq", rec.Seq),
				attribute.String("ledger.status", string(rec.Status)),
			)
		}
		span.End()
	}()

	sig, ok := l.abi.Method(method)
	if !ok {
		return nil, newHostError(ErrCodeUnknownMethod, method, "method not found in contract %s", l.abi.Name)
	}
	if !utf8.ValidString(string(caller)) {
		return nil, newHostError(ErrCodeInvalidArgs, method, "caller %q is not valid UTF-8", caller)
	}
	switch {
	case sig.Kind == ir.KindInit && !init:
		return nil, newHostError(ErrCodeNotACall, method, "init method must be run through Init")
	case sig.Kind != ir.KindInit && init:
		return nil, newHostError(ErrCodeNotACall, method, "method is not an init method")
	}

	args, err := decodeArgs(sig, argsJSON)
	if err != nil {
		return nil, err
	}

	initialized, err := l.store.IsInitialized(ctx)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	if init && initialized {
		return nil, newHostError(ErrCodeAlreadyInitialized, method, "contract already initialized")
	}
	if !init && !initialized {
		return nil, newHostError(ErrCodeNotInitialized, method, "contract not initialized")
	}

	tx, err := l.store.BeginNext(ctx, l.nextSeq)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	defer tx.Rollback()

	seq := tx.Seq()
	token := l.tokens.Generate()
	id, err := ir.ReceiptID(token, caller, method, args, seq)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}

	rec = &ir.Receipt{
		ID:              id,
		TxToken:         token,
		Seq:             seq,
		Caller:          caller,
		Method:          method,
		Args:            args,
		Status:          ir.StatusSuccess,
		Logs:            []string{},
		ContractVersion: ir.ContractVersion,
	}

	if err := tx.Savepoint(ctx); err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}

	sink := &registry.LogSink{}
	var written *ir.PersonaRecord
	callErr := l.execute(ctx, tx, sig, caller, args, sink, &written)

	switch {
	case callErr == nil:
		if len(sink.Lines) > 0 {
			rec.Logs = sink.Lines
		}
		if err := tx.WriteReceipt(ctx, *rec); err != nil {
			return nil, fmt.Errorf("call %s: %w", method, err)
		}
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("call %s: %w", method, err)
		}
		if written != nil {
			l.cacheView(written.AccountID, written.CID, true, seq)
		}

	case registry.IsInvalidInput(callErr):
		// Keep the seq, drop whatever the call wrote.
		if err := tx.RollbackToSavepoint(ctx); err != nil {
			return nil, fmt.Errorf("call %s: %w", method, err)
		}
		rec.Status = ir.StatusFailure
		rec.Error = callErr.Error()
		if err := tx.WriteReceipt(ctx, *rec); err != nil {
			return nil, fmt.Errorf("call %s: %w", method, err)
		}
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("call %s: %w", method, err)
		}

	case errors.Is(callErr, store.ErrAlreadyInitialized):
		return nil, newHostError(ErrCodeAlreadyInitialized, method, "contract already initialized")

	default:
		return nil, fmt.Errorf("call %s: %w", method, callErr)
	}

	l.logger.Info("call committed",
		"method", method,
		"caller", caller,
		"seq", seq,
		"status", rec.Status,
		"events", len(rec.Logs),
	)
	return rec, nil
}

// execute dispatches a decoded call against tx.
func (l *Ledger) execute(
	ctx context.Context,
	tx *store.Tx,
	sig ir.MethodSig,
	caller ir.AccountID,
	args ir.Args,
	sink *registry.LogSink,
	written **ir.PersonaRecord,
) error {
	switch sig.Name {
	case MethodNew:
		return tx.MarkInitialized(ctx, caller)

	case MethodSetPersona:
		cid, _ := args["cid"].(string)
		reg := registry.New(tx, l.registryOpts...)
		if err := reg.SetPersona(ctx, registry.StaticCaller(caller), sink, cid); err != nil {
			return err
		}
		*written = &ir.PersonaRecord{AccountID: caller, CID: ir.CID(cid)}
		return nil

	case MethodGetPersona:
		// A view run as a transaction reads but never writes.
		account, _ := args["account_id"].(string)
		_, _, err := registry.New(tx).GetPersona(ctx, ir.AccountID(account))
		return err

	default:
		return fmt.Errorf("no handler for method %q", sig.Name)
	}
}

// nextSeq picks the seq for a call given the store's last committed seq.
// Writers sharing the store may have moved past this Ledger's clock.
func (l *Ledger) nextSeq(last int64) int64 {
	l.clock.Advance(last)
	return l.clock.Next()
}

// View runs a read-only method. get_persona returns a JSON string, or null
// when the account has no persona.
func (l *Ledger) View(ctx context.Context, method string, argsJSON []byte) (_ json.RawMessage, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ctx, span := l.tracer.Start(ctx, "ledger.view", trace.WithAttributes(
		attribute.String("ledger.method", method),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	sig, ok := l.abi.Method(method)
	if !ok {
		return nil, newHostError(ErrCodeUnknownMethod, method, "method not found in contract %s", l.abi.Name)
	}
	if sig.Kind != ir.KindView {
		return nil, newHostError(ErrCodeNotAView, method, "method kind is %s", sig.Kind)
	}

	args, err := decodeArgs(sig, argsJSON)
	if err != nil {
		return nil, err
	}

	initialized, err := l.store.IsInitialized(ctx)
	if err != nil {
		return nil, fmt.Errorf("view %s: %w", method, err)
	}
	if !initialized {
		return nil, newHostError(ErrCodeNotInitialized, method, "contract not initialized")
	}

	account, _ := args["account_id"].(string)
	cid, found, cached, err := l.getPersona(ctx, ir.AccountID(account))
	if err != nil {
		return nil, fmt.Errorf("view %s: %w", method, err)
	}
	span.SetAttributes(attribute.Bool("ledger.cache_hit", cached))

	if !found {
		return json.RawMessage("null"), nil
	}
	out, err := json.Marshal(string(cid))
	if err != nil {
		return nil, fmt.Errorf("view %s: %w", method, err)
	}
	return out, nil
}

// GetPersona is the typed form of View("get_persona").
func (l *Ledger) GetPersona(ctx context.Context, account ir.AccountID) (ir.CID, bool, error) {
	if !utf8.ValidString(string(account)) {
		return "", false, newHostError(ErrCodeInvalidArgs, MethodGetPersona, "account %q is not valid UTF-8", account)
	}
	raw, err := l.View(ctx, MethodGetPersona, mustJSON(map[string]string{"account_id": string(account)}))
	if err != nil {
		return "", false, err
	}
	var cid *string
	if err := json.Unmarshal(raw, &cid); err != nil {
		return "", false, fmt.Errorf("get persona: %w", err)
	}
	if cid == nil {
		return "", false, nil
	}
	return ir.CID(*cid), true, nil
}

// Receipts returns committed receipts with seq greater than sinceSeq.
func (l *Ledger) Receipts(ctx context.Context, sinceSeq int64) ([]ir.Receipt, error) {
	return l.store.ReadReceipts(ctx, sinceSeq)
}

// Logs returns the event lines of one receipt.
func (l *Ledger) Logs(ctx context.Context, receiptID string) ([]string, error) {
	return l.store.ReadLogs(ctx, receiptID)
}

// Seq returns the last seq handed out by this Ledger. Other writers on the
// same store are not reflected until this Ledger's next call.
func (l *Ledger) Seq() int64 {
	return l.clock.Current()
}

// viewEntry is a cached lookup, valid while the store's last seq equals seq.
type viewEntry struct {
	cid   ir.CID
	found bool
	seq   int64
}

func (l *Ledger) getPersona(ctx context.Context, account ir.AccountID) (ir.CID, bool, bool, error) {
	if l.views == nil {
		cid, found, err := registry.New(l.store).GetPersona(ctx, account)
		return cid, found, false, err
	}

	// Read the seq before the persona: a write landing in between leaves
	// the entry tagged with an older seq, so it is never served.
	last, err := l.store.LastSeq(ctx)
	if err != nil {
		return "", false, false, err
	}
	if v, ok := l.views.Get(string(account)); ok {
		if e := v.(viewEntry); e.seq == last {
			return e.cid, e.found, true, nil
		}
	}

	cid, found, err := registry.New(l.store).GetPersona(ctx, account)
	if err != nil {
		return "", false, false, err
	}
	l.cacheView(account, cid, found, last)
	return cid, found, false, nil
}

func (l *Ledger) cacheView(account ir.AccountID, cid ir.CID, found bool, seq int64) {
	if l.views == nil {
		return
	}
	l.views.Set(string(account), viewEntry{cid: cid, found: found, seq: seq}, gocache.DefaultExpiration)
}

func mustJSON(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("ledger: marshal %T: %v", v, err))
	}
	return b
}
