package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/agentregistry/internal/indexer"
)

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay the event log and verify it reproduces stored state",
		Long: `Replay every persona_set event in ledger order and compare the resulting
account -> CID mapping with the registry's stored state.

Exit codes:
  0 - Event log reproduces stored state
  1 - Mismatch detected
  2 - Command error (database not found, malformed event line, etc.)

Examples:
  agentreg replay --db ./agentreg.db
  agentreg replay --db ./agentreg.db --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(cmd, rootOpts)
		},
	}
	return cmd
}

func runReplay(cmd *cobra.Command, opts *RootOptions) error {
	formatter := newFormatter(cmd, opts)

	ctx := commandContext(cmd)
	s, err := openSession(ctx, opts, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer closeSession(ctx, s)

	result, err := indexer.Verify(ctx, s.store, s.store)
	if err != nil {
		return WrapExitError(ExitCommandError, "replay failed", err)
	}

	out := newReplayOutput(result)
	if out.Consistent {
		return formatter.Success(out)
	}

	if err := formatter.Failure(CodeReplayMismatch, "event log does not reproduce stored state", out); err != nil {
		return err
	}
	return NewExitError(ExitFailure, "replay verification failed")
}
