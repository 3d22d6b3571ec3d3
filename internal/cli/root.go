package cli

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/agentregistry/internal/config"
	"github.com/roach88/agentregistry/internal/tracing"
)

// RootOptions holds global flags for all commands. After the root
// PersistentPreRunE runs, the fields hold the resolved configuration
// (defaults, config file, environment and flags merged).
type RootOptions struct {
	ConfigFile string
	Verbose    bool
	Format     string // "json" | "text"
	Database   string
	Trace      string
	StrictCID  bool

	ViewCacheTTL time.Duration
	Tracing      tracing.Config
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the agentreg CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "agentreg",
		Short: "agentreg - agent persona registry",
		Long: `A ledger-hosted registry mapping each account to the content identifier
of its persona document. Every call produces a receipt; successful writes
emit EVENT_JSON log lines that an indexer can replay.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.resolve(cmd)
		},
	}

	d := config.Defaults()
	cmd.PersistentFlags().StringVar(&opts.ConfigFile, "config", "", "config file (default .agentreg.yaml, then ~/.config/agentreg/config.yaml)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", d.Format, "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", d.DB, "path to SQLite ledger database")
	cmd.PersistentFlags().StringVar(&opts.Trace, "trace", d.Tracing.Exporter, "span exporter (none|stdout|otlp)")
	cmd.PersistentFlags().BoolVar(&opts.StrictCID, "strict-cid", d.Registry.StrictCID, "require CIDs to start with 'bafy'")

	cmd.AddCommand(NewInitCommand(opts))
	cmd.AddCommand(NewCallCommand(opts))
	cmd.AddCommand(NewSetCommand(opts))
	cmd.AddCommand(NewGetCommand(opts))
	cmd.AddCommand(NewEventsCommand(opts))
	cmd.AddCommand(NewReplayCommand(opts))
	cmd.AddCommand(NewABICommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// resolve loads configuration and installs the process logger.
func (o *RootOptions) resolve(cmd *cobra.Command) error {
	if !isValidFormat(o.Format) {
		return fmt.Errorf("invalid format %q: must be one of %v", o.Format, ValidFormats)
	}

	cfg, err := config.Load(o.ConfigFile, cmd.Root().PersistentFlags())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}

	o.Format = cfg.Format
	o.Verbose = cfg.Verbose
	o.Database = cfg.DB
	o.StrictCID = cfg.Registry.StrictCID
	o.ViewCacheTTL = cfg.Ledger.ViewCacheTTL
	o.Tracing = cfg.Tracing
	o.Trace = cfg.Tracing.Exporter

	level := slog.LevelWarn
	if o.Verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))

	return nil
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
