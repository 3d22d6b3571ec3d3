package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/roach88/agentregistry/internal/ir"
	"github.com/roach88/agentregistry/internal/ledger"
)

// CallOptions holds flags for the call, set and init commands.
type CallOptions struct {
	*RootOptions
	As   string // caller account
	Args string // JSON arguments (call only)
}

// NewCallCommand creates the call command.
func NewCallCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CallOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "call <method>",
		Short: "Call a contract method and print its receipt",
		Long: `Call a contract method as the given account.

Arguments are a JSON object matching the method signature exactly.
A rejected input still commits a failure receipt.

Exit codes:
  0 - Success receipt
  1 - Failure receipt
  2 - Host error (not initialized, unknown method, invalid arguments, ...)

Examples:
  agentreg call set_persona --as alice.test --args '{"cid":"bafyx"}'
  agentreg call get_persona --as alice.test --args '{"account_id":"bob.test"}'`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCall(cmd, opts, args[0], []byte(opts.Args))
		},
	}

	cmd.Flags().StringVar(&opts.As, "as", "", "caller account (required)")
	_ = cmd.MarkFlagRequired("as")
	cmd.Flags().StringVar(&opts.Args, "args", "{}", "method arguments as JSON")

	return cmd
}

// NewSetCommand creates the set command, shorthand for call set_persona.
func NewSetCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CallOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "set <cid>",
		Short: "Register or replace the caller's persona CID",
		Long: `Register or replace the persona CID of the calling account.

Examples:
  agentreg set bafybeigdyrzt5sfp7udm7hu76uh7y26nf3efuylqabf3oclgtqy55fbzdi --as alice.test
  agentreg set bafyx --as alice.test --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !utf8.ValidString(args[0]) {
				return NewExitError(ExitCommandError, fmt.Sprintf("cid %q is not valid UTF-8", args[0]))
			}
			raw, err := json.Marshal(map[string]string{"cid": args[0]})
			if err != nil {
				return err
			}
			return runCall(cmd, opts, ledger.MethodSetPersona, raw)
		},
	}

	cmd.Flags().StringVar(&opts.As, "as", "", "caller account (required)")
	_ = cmd.MarkFlagRequired("as")

	return cmd
}

// NewInitCommand creates the init command.
func NewInitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CallOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize the registry contract",
		Long: `Run the contract's init method. Must be called exactly once per database
before any call is accepted.

Example:
  agentreg init --as owner.test --db ./agentreg.db`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCall(cmd, opts, ledger.MethodNew, nil)
		},
	}

	cmd.Flags().StringVar(&opts.As, "as", "", "initializing account (required)")
	_ = cmd.MarkFlagRequired("as")

	return cmd
}

func runCall(cmd *cobra.Command, opts *CallOptions, method string, args []byte) error {
	formatter := newFormatter(cmd, opts.RootOptions)

	// Account IDs compare byte for byte, so the flag is used as given.
	caller := opts.As
	switch {
	case strings.TrimSpace(caller) == "":
		return NewExitError(ExitCommandError, "--as must name an account")
	case strings.TrimSpace(caller) != caller:
		return NewExitError(ExitCommandError, fmt.Sprintf("--as %q has surrounding whitespace", caller))
	}

	ctx := commandContext(cmd)
	s, err := openSession(ctx, opts.RootOptions, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer closeSession(ctx, s)

	var rec *ir.Receipt
	if method == ledger.MethodNew {
		rec, err = s.ledger.Init(ctx, ir.AccountID(caller))
	} else {
		rec, err = s.ledger.Call(ctx, ir.AccountID(caller), method, args)
	}
	if err != nil {
		return reportLedgerError(formatter, err)
	}

	formatter.VerboseLog("committed %s at seq %d", rec.ID, rec.Seq)
	return writeReceipt(formatter, rec)
}

// writeReceipt prints rec. A failure receipt yields ExitFailure.
func writeReceipt(f *OutputFormatter, rec *ir.Receipt) error {
	out := receiptOutput{Receipt: *rec}
	if rec.Succeeded() {
		return f.Success(out)
	}
	if err := f.Failure(CodeCallFailed, rec.Error, out); err != nil {
		return err
	}
	return NewExitError(ExitFailure, fmt.Sprintf("%s failed: %s", rec.Method, rec.Error))
}

// reportLedgerError prints a host error in the configured format and returns
// the matching exit error.
func reportLedgerError(f *OutputFormatter, err error) error {
	if f.Format == "json" {
		code := "E_LEDGER"
		var hostErr *ledger.HostError
		if errors.As(err, &hostErr) {
			code = string(hostErr.Code)
		}
		if encErr := f.Error(code, err.Error(), nil); encErr != nil {
			return encErr
		}
	}
	return hostErrorExit(err)
}

func newFormatter(cmd *cobra.Command, opts *RootOptions) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func closeSession(ctx context.Context, s *session) {
	if err := s.Close(ctx); err != nil {
		slog.Error("error closing session", "error", err)
	}
}
