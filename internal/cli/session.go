package cli

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/roach88/agentregistry/internal/ledger"
	"github.com/roach88/agentregistry/internal/store"
	"github.com/roach88/agentregistry/internal/tracing"
)

// session bundles what a ledger command needs for one invocation.
type session struct {
	store    *store.Store
	ledger   *ledger.Ledger
	provider *tracing.Provider
}

// openSession opens the database named by opts and builds a ledger over it.
// spanOut receives spans when the stdout exporter is selected.
func openSession(ctx context.Context, opts *RootOptions, spanOut io.Writer) (*session, error) {
	if opts.Database == "" {
		return nil, NewExitError(ExitCommandError, "no database configured (use --db)")
	}

	provider, err := tracing.NewProvider(ctx, opts.Tracing, spanOut)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to start tracing", err)
	}

	slog.Debug("opening database", "path", opts.Database)
	st, err := store.Open(opts.Database)
	if err != nil {
		_ = provider.Shutdown(ctx)
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	ledgerOpts := []ledger.Option{
		ledger.WithLogger(slog.Default()),
		ledger.WithTracer(provider.Tracer()),
		ledger.WithViewCache(opts.ViewCacheTTL),
	}
	if opts.StrictCID {
		ledgerOpts = append(ledgerOpts, ledger.WithStrictCIDs())
	}

	l, err := ledger.New(st, ledgerOpts...)
	if err != nil {
		_ = st.Close()
		_ = provider.Shutdown(ctx)
		return nil, WrapExitError(ExitCommandError, "failed to open ledger", err)
	}

	return &session{store: st, ledger: l, provider: provider}, nil
}

// Close flushes spans and closes the database.
func (s *session) Close(ctx context.Context) error {
	return errors.Join(s.provider.Shutdown(ctx), s.store.Close())
}

// hostErrorExit maps a ledger error to a command exit error.
func hostErrorExit(err error) error {
	var hostErr *ledger.HostError
	if errors.As(err, &hostErr) {
		return WrapExitError(ExitCommandError, "rejected by host", err)
	}
	return WrapExitError(ExitCommandError, "ledger error", err)
}
