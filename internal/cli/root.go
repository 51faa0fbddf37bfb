package cli

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/tabwrite/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string
	Database   string // overrides config.Database when set

	// Config is loaded in PersistentPreRunE. Tests may set it directly and
	// leave ConfigPath empty.
	Config *config.Config
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the tabwrite CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "tabwrite",
		Short: "tabwrite - single-writer table updates",
		Long: `Dispatch updates to tables that allow one writer at a time.

An update to a free table runs immediately. An update to a held table is
queued behind the holder and runs when the holder drains or releases it.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return opts.setup(cmd)
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to YAML config")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite database (overrides config)")

	cmd.AddCommand(NewInitCommand(opts))
	cmd.AddCommand(NewExecCommand(opts))
	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewTraceCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))

	return cmd
}

// setup loads the config and installs the slog handler it asks for.
// Logs go to stderr so JSON output on stdout stays parseable.
func (o *RootOptions) setup(cmd *cobra.Command) error {
	if o.Config == nil {
		cfg, err := loadConfig(o.ConfigPath)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to load config", err)
		}
		o.Config = &cfg
	}
	if o.Database != "" {
		o.Config.Database = o.Database
	}

	handler, err := o.Config.Log.Handler(cmd.ErrOrStderr(), o.Verbose)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid log config", err)
	}
	slog.SetDefault(slog.New(handler))
	return nil
}

// config returns the loaded config, or the defaults when a subcommand is
// executed without the root's pre-run (as tests do).
func (o *RootOptions) config() config.Config {
	if o.Config == nil {
		cfg := config.Default()
		if o.Database != "" {
			cfg.Database = o.Database
		}
		return cfg
	}
	return *o.Config
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
