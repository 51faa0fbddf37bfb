package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/tabwrite/internal/config"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Path   string         `json:"path"`
	Valid  bool           `json:"valid"`
	Errors []config.Issue `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <config.yaml>",
		Short: "Validate a config file",
		Long: `Check a YAML config against the embedded CUE schema without opening
the database. Reports every violated field.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		// The root pre-run loads --config; validate reads its argument
		// instead so a broken file can be reported rather than refused.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(rootOpts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", rootOpts.Format, ValidFormats)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}

	cfg, err := config.Load(path)
	if err != nil {
		var ve *config.ValidationError
		if !errors.As(err, &ve) {
			return outputValidateError(formatter, ErrCodeNotFound, err.Error())
		}
		return outputValidationErrors(formatter, path, config.Issues(ve.Err))
	}

	formatter.VerboseLog("database: %s", cfg.Database)
	formatter.VerboseLog("tables: %d (%d held)", len(cfg.Tables), len(cfg.Held()))
	return outputValidateSuccess(formatter, path)
}

func outputValidateError(f *OutputFormatter, code, message string) error {
	if err := f.Error(code, message, nil); err != nil {
		return err
	}
	return NewExitError(ExitCommandError, message)
}

func outputValidationErrors(f *OutputFormatter, path string, issues []config.Issue) error {
	if f.Format == "json" {
		if err := f.Success(ValidationResult{Path: path, Valid: false, Errors: issues}); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(f.Writer, "✗ %s: %d error(s)\n", path, len(issues))
		for _, is := range issues {
			if is.Path != "" {
				fmt.Fprintf(f.Writer, "  %s: %s\n", is.Path, is.Message)
			} else {
				fmt.Fprintf(f.Writer, "  %s\n", is.Message)
			}
		}
	}
	return NewExitError(ExitFailure, fmt.Sprintf("%s is invalid", path))
}

func outputValidateSuccess(f *OutputFormatter, path string) error {
	if f.Format == "json" {
		return f.Success(ValidationResult{Path: path, Valid: true})
	}
	fmt.Fprintf(f.Writer, "✓ %s is valid\n", path)
	return nil
}
