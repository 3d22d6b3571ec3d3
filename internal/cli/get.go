package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/agentregistry/internal/ir"
)

// NewGetCommand creates the get command.
func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <account>",
		Short: "Look up the persona CID registered for an account",
		Long: `Look up the persona CID registered for an account. This is a view:
it needs no caller and writes no receipt. An account with no persona is
not an error.

Examples:
  agentreg get alice.test
  agentreg get alice.test --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGet(cmd, rootOpts, ir.AccountID(args[0]))
		},
	}
	return cmd
}

func runGet(cmd *cobra.Command, opts *RootOptions, account ir.AccountID) error {
	formatter := newFormatter(cmd, opts)

	ctx := commandContext(cmd)
	s, err := openSession(ctx, opts, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer closeSession(ctx, s)

	cid, found, err := s.ledger.GetPersona(ctx, account)
	if err != nil {
		return reportLedgerError(formatter, err)
	}

	out := personaOutput{AccountID: account}
	if found {
		out.CID = &cid
	}
	return formatter.Success(out)
}
