package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/agentregistry/internal/ledger"
)

// NewABICommand creates the abi command.
func NewABICommand(rootOpts *RootOptions) *cobra.Command {
	var source bool

	cmd := &cobra.Command{
		Use:   "abi",
		Short: "Print the registry contract interface",
		Long: `Print the method signatures compiled from the embedded contract.
With --source, print the CUE contract itself.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if source {
				_, err := fmt.Fprint(cmd.OutOrStdout(), ledger.ContractSource())
				return err
			}
			abi, err := ledger.LoadABI()
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to compile contract", err)
			}
			return newFormatter(cmd, rootOpts).Success(abiOutput{ContractSpec: abi})
		},
	}

	cmd.Flags().BoolVar(&source, "source", false, "print the CUE contract source")

	return cmd
}
