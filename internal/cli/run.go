package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/tabwrite/internal/dispatch"
	"github.com/roach88/tabwrite/internal/engine"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Concurrency int
	Timeout     time.Duration

	// Sessions overrides the session ID generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	Sessions engine.SessionGenerator
}

// RunLine is the outcome of one request line.
type RunLine struct {
	Line         int    `json:"line"`
	OpID         string `json:"op_id,omitempty"`
	Table        string `json:"table,omitempty"`
	Seq          int64  `json:"seq,omitempty"`
	State        string `json:"state,omitempty"`
	RowsAffected int64  `json:"rows_affected"`
	Code         string `json:"code,omitempty"`
	Error        string `json:"error,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Hold configured tables and dispatch updates from stdin",
		Long: `Start an owner for every table marked hold in the config, then read
update requests from stdin, one JSON object per line:

  {"table":"trades","set":{"status":"settled"},"where":{"id":1}}

Updates are dispatched in line order. Updates to held tables queue behind
their owner and run in that order.
Each outcome is printed as one JSON line. Stops at end of input or on
Ctrl-C; owners drain what is still queued before exiting.

Example:
  tabwrite run --config tabwrite.yaml < updates.jsonl`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEngine(opts, cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Concurrency, "concurrency", 16, "maximum updates in flight")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 0, "how long to wait for each queued update (default from config)")

	return cmd
}

func runEngine(opts *RunOptions, cmd *cobra.Command) error {
	cfg := opts.config()

	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	eng, st, err := openEngine(ctx, cfg, opts.Sessions)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open engine", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()

	if err := ensureTables(ctx, st, cfg.Tables); err != nil {
		eng.Stop()
		return WrapExitError(ExitCommandError, "failed to create tables", err)
	}
	for _, name := range cfg.Held() {
		if err := eng.Hold(ctx, name); err != nil {
			eng.Stop()
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to hold %s", name), err)
		}
		slog.Info("holding table", "table", name)
	}

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = cfg.AwaitTimeout.Std()
	}

	failed, readErr := dispatchLines(ctx, eng, cmd.InOrStdin(), cmd.OutOrStdout(), opts.Concurrency, timeout)

	if err := eng.Stop(); err != nil {
		return WrapExitError(ExitFailure, "engine error", err)
	}
	slog.Info("engine stopped gracefully", "failed", failed)

	if readErr != nil {
		return WrapExitError(ExitCommandError, "failed to read requests", readErr)
	}
	if failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d update(s) failed", failed))
	}
	return nil
}

// dispatchLines dispatches request lines in input order and waits for
// their outcomes concurrently, writing one RunLine per request. Returns
// the number of failed lines.
//
// Dispatch itself never blocks, so it runs on the reading goroutine: seq
// values and queue positions follow line order. Only the waits are
// spread over up to limit goroutines.
func dispatchLines(ctx context.Context, eng *engine.Engine, in io.Reader, out io.Writer, limit int, timeout time.Duration) (int, error) {
	var (
		mu     sync.Mutex
		failed int
		enc    = json.NewEncoder(out)
	)
	emit := func(r RunLine) {
		mu.Lock()
		defer mu.Unlock()
		if r.Error != "" {
			failed++
		}
		if err := enc.Encode(r); err != nil {
			slog.Error("failed to write outcome", "line", r.Line, "error", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	line := 0
	for scanner.Scan() {
		line++
		text := scanner.Bytes()
		if len(text) == 0 {
			continue
		}
		if ctx.Err() != nil {
			break
		}

		var req engine.Request
		if err := json.Unmarshal(text, &req); err != nil {
			emit(RunLine{Line: line, Code: ErrCodeBadRequest, Error: err.Error()})
			continue
		}

		r := RunLine{Line: line, Table: req.Table}
		f, op, err := eng.Dispatch(ctx, req)
		if op != nil {
			r.OpID, r.Seq = op.ID, op.Seq
		}
		if err != nil {
			emit(failure(r, err))
			continue
		}

		g.Go(func() error {
			emit(awaitRequest(gctx, eng, r, f, timeout))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return failed, err
	}
	return failed, scanner.Err()
}

func awaitRequest(ctx context.Context, eng *engine.Engine, r RunLine, f dispatch.Future, timeout time.Duration) RunLine {
	out, err := eng.Await(ctx, f, timeout)
	r.State = f.State().String()
	if err != nil {
		return failure(r, err)
	}
	r.RowsAffected = out.RowsAffected
	return r
}

func failure(r RunLine, err error) RunLine {
	r.Code = string(engine.Code(err))
	r.Error = err.Error()
	return r
}
