package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/tabwrite/internal/engine"
	"github.com/roach88/tabwrite/internal/ir"
)

// ExecOptions holds flags for the exec command.
type ExecOptions struct {
	*RootOptions
	Table    string
	Set      []string
	Where    []string
	Position int
	Sync     bool
	Timeout  time.Duration
	Session  string

	// Sessions overrides the session ID generator (for testing).
	Sessions engine.SessionGenerator
}

// ExecResult is the outcome of one dispatched update.
type ExecResult struct {
	OpID         string `json:"op_id"`
	Table        string `json:"table"`
	Seq          int64  `json:"seq"`
	State        string `json:"state"`
	RowsAffected int64  `json:"rows_affected"`
}

// NewExecCommand creates the exec command.
func NewExecCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExecOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "exec",
		Short: "Dispatch a single update",
		Long: `Dispatch one update and wait for its outcome.

Values are parsed as literals: null, true, false and integers keep their
type; anything else is text. Quote with single quotes to force text.

Examples:
  tabwrite exec --table trades --set status=settled --where id=1
  tabwrite exec --table trades --set price=120 --set note="'007'" --where id=1 --sync
  tabwrite exec --table trades --set status=void --timeout 2s --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExec(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Table, "table", "t", "", "table to update (required)")
	_ = cmd.MarkFlagRequired("table")
	cmd.Flags().StringArrayVar(&opts.Set, "set", nil, "column=value assignment (repeatable, required)")
	cmd.Flags().StringArrayVar(&opts.Where, "where", nil, "column=value filter (repeatable)")
	cmd.Flags().IntVar(&opts.Position, "position", 0, "statement position reported in errors")
	cmd.Flags().BoolVar(&opts.Sync, "sync", false, "fail with BUSY instead of queueing behind a holder")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 0, "how long to wait for a queued update (default from config)")
	cmd.Flags().StringVar(&opts.Session, "session", "", "session ID (default: generated UUIDv7)")

	return cmd
}

func runExec(opts *ExecOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := opts.config()
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	if len(opts.Set) == 0 {
		return NewExitError(ExitCommandError, "at least one --set is required")
	}
	set, err := parseAssignments(opts.Set)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --set", err)
	}
	where, err := parseAssignments(opts.Where)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --where", err)
	}

	eng, st, err := openEngine(ctx, cfg, opts.Sessions)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open engine", err)
	}
	defer st.Close()
	defer eng.Stop()

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = cfg.AwaitTimeout.Std()
	}

	f, op, err := eng.Dispatch(ctx, engine.Request{
		Table:     opts.Table,
		Position:  opts.Position,
		Set:       set,
		Where:     where,
		Sync:      opts.Sync,
		SessionID: opts.Session,
	})
	if err == nil {
		formatter.VerboseLog("dispatched %s (%s)", op.ID, f.State())
		var out ir.Outcome
		out, err = eng.Await(ctx, f, timeout)
		if err == nil {
			return outputExec(formatter, ExecResult{
				OpID:         op.ID,
				Table:        op.Table,
				Seq:          op.Seq,
				State:        f.State().String(),
				RowsAffected: out.RowsAffected,
			})
		}
	}

	code := string(engine.Code(err))
	if code == "" {
		code = ErrCodeGeneric
	}
	opID := ""
	if op != nil {
		opID = op.ID
	}
	if ferr := formatter.OpError(opID, code, err.Error(), nil); ferr != nil {
		return ferr
	}
	return WrapExitError(ExitFailure, "update failed", err)
}

func outputExec(f *OutputFormatter, r ExecResult) error {
	if f.Format == "json" {
		return f.Success(r)
	}
	fmt.Fprintf(f.Writer, "%s: %d row(s) %s\n", r.Table, r.RowsAffected, r.State)
	fmt.Fprintf(f.Writer, "  op %s (seq %d)\n", r.OpID, r.Seq)
	return nil
}

// parseAssignments parses column=value pairs into a Row.
func parseAssignments(pairs []string) (ir.Row, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	row := make(ir.Row, len(pairs))
	for _, p := range pairs {
		col, val, ok := strings.Cut(p, "=")
		col = strings.TrimSpace(col)
		if !ok || col == "" {
			return nil, fmt.Errorf("%q: expected column=value", p)
		}
		if _, dup := row[col]; dup {
			return nil, fmt.Errorf("%q: column %s given twice", p, col)
		}
		row[col] = ir.ParseValue(val)
	}
	return row, nil
}
