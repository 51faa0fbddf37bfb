package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/tabwrite/internal/store"
)

// InitResult is the JSON payload of the init command.
type InitResult struct {
	Database string   `json:"database"`
	Tables   []string `json:"tables"`
}

// NewInitCommand creates the init command.
func NewInitCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the database and configured tables",
		Long: `Create the SQLite database and register every table listed in the
config. Safe to run again: tables that already exist with the same
columns are left alone.

Examples:
  tabwrite init --config tabwrite.yaml
  tabwrite init --db ./trades.db --config tabwrite.yaml --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(rootOpts, cmd)
		},
	}
	return cmd
}

func runInit(opts *RootOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := opts.config()

	st, err := store.Open(cfg.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	if err := ensureTables(ctx, st, cfg.Tables); err != nil {
		return WrapExitError(ExitCommandError, "failed to create tables", err)
	}
	names, err := st.ListTables(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list tables", err)
	}
	if names == nil {
		names = []string{}
	}

	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
	if opts.Format == "json" {
		return formatter.Success(InitResult{Database: cfg.Database, Tables: names})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Initialized %s\n", cfg.Database)
	for _, name := range names {
		fmt.Fprintf(cmd.OutOrStdout(), "  table %s\n", name)
	}
	return nil
}
