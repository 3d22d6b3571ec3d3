package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/agentregistry/internal/indexer"
	"github.com/roach88/agentregistry/internal/ir"
)

// EventsOptions holds flags for the events command.
type EventsOptions struct {
	*RootOptions
	Account string // optional filter
	Since   int64  // only receipts with seq > Since
}

// NewEventsCommand creates the events command.
func NewEventsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EventsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "events",
		Short: "List persona_set events from committed receipts",
		Long: `List persona_set events parsed from the EVENT_JSON log lines of
committed receipts, in ledger order.

Examples:
  agentreg events
  agentreg events --account alice.test
  agentreg events --since 10 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvents(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Account, "account", "", "only events for this account")
	cmd.Flags().Int64Var(&opts.Since, "since", 0, "only receipts after this seq")

	return cmd
}

func runEvents(cmd *cobra.Command, opts *EventsOptions) error {
	formatter := newFormatter(cmd, opts.RootOptions)

	if opts.Since < 0 {
		return NewExitError(ExitCommandError, "--since must not be negative")
	}

	ctx := commandContext(cmd)
	s, err := openSession(ctx, opts.RootOptions, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer closeSession(ctx, s)

	receipts, err := s.ledger.Receipts(ctx, opts.Since)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read receipts", err)
	}

	out := eventsOutput{Events: []eventRow{}, LastSeq: opts.Since}
	projection := indexer.NewProjection()
	for _, r := range receipts {
		out.LastSeq = r.Seq
		events, err := indexer.Scan(r.Logs)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("receipt %s", r.ID), err)
		}
		for _, ev := range events {
			if opts.Account != "" && ev.AccountID != ir.AccountID(opts.Account) {
				continue
			}
			projection.Apply(ev)
			out.Events = append(out.Events, eventRow{
				Seq:       r.Seq,
				ReceiptID: r.ID,
				AccountID: ev.AccountID,
				CID:       ev.CID,
			})
		}
	}
	out.Count = len(out.Events)
	out.Accounts = projection.Len()

	formatter.VerboseLog("scanned %d receipt(s)", len(receipts))
	return formatter.Success(out)
}
