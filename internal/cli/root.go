package cli

import (
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/roach88/ledger/internal/config"
)

// RootOptions holds global flags for all commands and, once the root
// PersistentPreRunE has run, the loaded configuration.
type RootOptions struct {
	ConfigFile string
	Verbose    bool
	Format     string // "json" | "text"

	Config config.Config
	Logger *slog.Logger
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the ledger CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Permissioned ledger state machine",
		Long: `A permissioned ledger: domains, accounts and assets changed by
authorized instruction batches, with event-driven triggers.

Configuration is read from ledger.yaml (./ or ~/.config/ledger),
LEDGER_* environment variables and flags, in increasing priority.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return opts.load(cmd)
		},
	}

	// Global flags
	pf := cmd.PersistentFlags()
	pf.StringVarP(&opts.ConfigFile, "config", "c", "", "config file (default: ./ledger.yaml or ~/.config/ledger/ledger.yaml)")
	pf.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output and debug logging")
	pf.StringVar(&opts.Format, "format", "text", "output format (json|text)")
	pf.String("db", "", "path to the SQLite block store")
	pf.String("genesis", "", "genesis file (.yaml or .cue); empty uses the built-in genesis")
	pf.String("authority", "", "account that signs submitted batches")
	pf.String("log-level", "", "log level (debug|info|warn|error)")
	pf.String("log-format", "", "log format (text|json)")

	// Add subcommands
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))
	cmd.AddCommand(NewSubmitCommand(opts))
	cmd.AddCommand(NewReplayCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewBlocksCommand(opts))
	cmd.AddCommand(NewEventsCommand(opts))
	cmd.AddCommand(NewQueryCommand(opts))
	cmd.AddCommand(NewServeCommand(opts))

	return cmd
}

// flagKeys maps persistent flags to config keys.
var flagKeys = map[string]string{
	"db":         "database",
	"genesis":    "genesis",
	"authority":  "authority",
	"log-level":  "log.level",
	"log-format": "log.format",
	"listen":     "listen",
}

// load reads the configuration and installs the logger. Flags only
// override the config when they were set on the command line.
func (o *RootOptions) load(cmd *cobra.Command) error {
	v, err := config.New(o.ConfigFile)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if err := bindFlags(v, cmd); err != nil {
		return WrapExitError(ExitCommandError, "failed to bind flags", err)
	}

	cfg, err := config.Load(v)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	o.Config = cfg
	o.Logger = newLogger(cmd.ErrOrStderr(), cfg.Log, o.Verbose)
	slog.SetDefault(o.Logger)
	return nil
}

func bindFlags(v *viper.Viper, cmd *cobra.Command) error {
	for flag, key := range flagKeys {
		f := cmd.Flags().Lookup(flag)
		if f == nil || !f.Changed {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return err
		}
	}
	return nil
}

// newLogger builds the slog handler selected by cfg. Verbose forces the
// debug level.
func newLogger(w io.Writer, cfg config.LogConfig, verbose bool) *slog.Logger {
	level, err := cfg.SlogLevel()
	if err != nil {
		level = slog.LevelInfo
	}
	if verbose {
		level = slog.LevelDebug
	}
	handlerOpts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, handlerOpts))
	}
	return slog.New(slog.NewTextHandler(w, handlerOpts))
}
