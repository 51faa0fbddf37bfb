package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/tabwrite/internal/ir"
	"github.com/roach88/tabwrite/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Table string // optional - filter to one table
}

// TraceResult holds the apply log and its summary.
type TraceResult struct {
	Table   string            `json:"table,omitempty"`
	Entries []store.AppliedOp `json:"entries"`
	Stats   TraceStats        `json:"stats"`
}

// TraceStats summarises an apply log.
type TraceStats struct {
	Total        int   `json:"total"`
	Inline       int   `json:"inline"`
	Deferred     int   `json:"deferred"`
	RowsAffected int64 `json:"rows_affected"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Print the apply log",
		Long: `Print the apply log in the order updates were applied.

Each entry shows whether the update ran inline (the writer was free) or
deferred (it queued behind a holder), and the session it ran under.

Examples:
  tabwrite trace --db ./trades.db
  tabwrite trace --db ./trades.db --table trades --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Table, "table", "t", "", "filter to one table")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := context.Background()
	cfg := opts.config()

	st, err := store.Open(cfg.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	entries, err := st.ReadAppliedOps(ctx, opts.Table)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read apply log", err)
	}
	if entries == nil {
		entries = []store.AppliedOp{}
	}

	result := TraceResult{Table: opts.Table, Entries: entries, Stats: summarize(entries)}
	if opts.Format == "json" {
		return outputTraceJSON(cmd, result)
	}
	return outputTraceText(cmd.OutOrStdout(), result, opts.Verbose)
}

func summarize(entries []store.AppliedOp) TraceStats {
	s := TraceStats{Total: len(entries)}
	for _, e := range entries {
		switch e.Mode {
		case ir.ModeInline:
			s.Inline++
		case ir.ModeDeferred:
			s.Deferred++
		}
		s.RowsAffected += e.RowsAffected
	}
	return s
}

// outputTraceJSON outputs the trace result as JSON.
func outputTraceJSON(cmd *cobra.Command, result TraceResult) error {
	response := CLIResponse{
		Status: "ok",
		Data:   result,
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(response)
}

// outputTraceText outputs the trace result as text.
func outputTraceText(w io.Writer, result TraceResult, verbose bool) error {
	if result.Table != "" {
		fmt.Fprintf(w, "Apply log for table: %s\n", result.Table)
	} else {
		fmt.Fprintln(w, "Apply log")
	}
	fmt.Fprintln(w)

	if len(result.Entries) == 0 {
		fmt.Fprintln(w, "  (no updates applied)")
	}
	for _, e := range result.Entries {
		fmt.Fprintf(w, "  [%d] %-8s %s@%d rows=%d op=%s\n",
			e.Seq, e.Mode, e.Table, e.Position, e.RowsAffected, truncateID(e.OpID))
		if verbose {
			fmt.Fprintf(w, "       session=%s tenant=%s user=%s engine=%s\n",
				e.SessionID, e.SecurityContext.TenantID, e.SecurityContext.UserID, e.EngineVersion)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Stats ===")
	fmt.Fprintf(w, "  Total:    %d\n", result.Stats.Total)
	fmt.Fprintf(w, "  Inline:   %d\n", result.Stats.Inline)
	fmt.Fprintf(w, "  Deferred: %d\n", result.Stats.Deferred)
	fmt.Fprintf(w, "  Rows:     %d\n", result.Stats.RowsAffected)
	return nil
}

// truncateID shortens an operation ID for display.
func truncateID(id string) string {
	if len(id) <= 16 {
		return id
	}
	return id[:16] + "..."
}
