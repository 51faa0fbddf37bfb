package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/tabwrite/internal/dispatch"
	"github.com/roach88/tabwrite/internal/ir"
	"github.com/roach88/tabwrite/internal/store"
	"github.com/roach88/tabwrite/internal/table"
)

// ErrTableOwned is returned by Hold when the engine already runs an owner
// for the table.
var ErrTableOwned = errors.New("table already owned by this engine")

// Request is one update as callers submit it.
type Request struct {
	Table    string `json:"table"`
	Position int    `json:"position,omitempty"`
	Set      ir.Row `json:"set"`
	Where    ir.Row `json:"where,omitempty"`

	// Sync refuses deferral: a busy writer fails the request.
	Sync bool `json:"sync,omitempty"`

	// SessionID is generated when empty.
	SessionID string             `json:"session_id,omitempty"`
	Security  ir.SecurityContext `json:"security"`
}

// Engine owns the store-backed writer pool and dispatches requests to it.
//
// Thread-safety: Dispatch, Await, Hold and Release are safe from any
// goroutine. Stop must be called once.
type Engine struct {
	store    *store.Store
	pool     *table.Pool
	sender   *dispatch.Sender
	clock    *Clock
	sessions SessionGenerator

	mu     sync.Mutex
	owners map[string]*runningOwner
	wg     sync.WaitGroup
}

type runningOwner struct {
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// Option configures an Engine.
type Option func(*options)

type options struct {
	clock  *Clock
	sender []dispatch.Option
}

// WithClock sets the logical clock. Default: NewClock().
func WithClock(c *Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

// WithDefectPolicy sets the dispatch defect policy.
func WithDefectPolicy(p dispatch.DefectPolicy) Option {
	return func(o *options) {
		o.sender = append(o.sender, dispatch.WithDefectPolicy(p))
	}
}

// WithRetryAttempts sets how often dispatch retries the inline path.
func WithRetryAttempts(n int) Option {
	return func(o *options) {
		o.sender = append(o.sender, dispatch.WithRetryAttempts(n))
	}
}

// New creates an Engine over s.
func New(s *store.Store, sessions SessionGenerator, opts ...Option) *Engine {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.clock == nil {
		o.clock = NewClock()
	}
	if sessions == nil {
		sessions = UUIDv7Generator{}
	}

	pool := table.NewPool(s)
	return &Engine{
		store:    s,
		pool:     pool,
		sender:   dispatch.NewSender(pool, o.sender...),
		clock:    o.clock,
		sessions: sessions,
		owners:   make(map[string]*runningOwner),
	}
}

// Store returns the backing store.
func (e *Engine) Store() *store.Store {
	return e.store
}

// Stats returns the writer pool stats.
func (e *Engine) Stats() []table.TableStats {
	return e.pool.Stats()
}

// Dispatch builds an operation from req and hands it to the sender.
// The returned operation carries the ID and seq the request was given.
//
// Errors are *RuntimeError values wrapping the cause.
func (e *Engine) Dispatch(ctx context.Context, req Request) (dispatch.Future, *ir.UpdateOperation, error) {
	op, err := ir.NewUpdateOperation(req.Table, req.Position, req.Set, req.Where, e.clock.Next())
	if err != nil {
		return nil, nil, &RuntimeError{
			Code:    ErrCodeInvalidRequest,
			Message: "build operation",
			Table:   req.Table,
			Err:     err,
		}
	}

	ec := ir.ExecContext{SessionID: req.SessionID, Security: req.Security}
	if ec.SessionID == "" {
		ec.SessionID = e.sessions.Generate()
	}

	ch := e.pool.Commands()
	if req.Sync {
		ch = dispatch.NoDeferral
	}

	f, err := e.sender.Execute(ctx, op, ec, ch)
	if err != nil {
		return nil, op, classify(err, op.Table, op.ID)
	}

	slog.Debug("request dispatched",
		"table", op.Table,
		"op_id", op.ID,
		"seq", op.Seq,
		"session", ec.SessionID,
		"state", f.State().String(),
	)
	return f, op, nil
}

// Await waits for f and returns its outcome. A zero timeout waits until ctx
// ends; a negative one polls.
func (e *Engine) Await(ctx context.Context, f dispatch.Future, timeout time.Duration) (ir.Outcome, error) {
	var err error
	switch {
	case timeout < 0:
		err = f.AwaitTimeout(0)
	case timeout > 0:
		wctx, cancel := context.WithTimeout(ctx, timeout)
		err = f.Await(wctx)
		cancel()
	default:
		err = f.Await(ctx)
	}
	tableName := ""
	if p, ok := f.(*dispatch.Pending); ok {
		tableName = p.Operation().Table
	}
	if err != nil {
		return ir.Outcome{}, classify(err, tableName, "")
	}
	out, err := f.Value()
	return out, classify(err, tableName, "")
}

// Acquire takes a table's writer for a caller that drains by hand with
// Tick. Used by the scenario harness; long-running holders use Hold.
func (e *Engine) Acquire(tableName string) (*table.Writer, error) {
	w, err := e.pool.Acquire(tableName, "owner")
	if err != nil {
		return nil, classify(err, tableName, "")
	}
	return w, nil
}

// Hold starts an owner goroutine for tableName.
func (e *Engine) Hold(ctx context.Context, tableName string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.owners[tableName]; ok {
		return fmt.Errorf("hold %s: %w", tableName, ErrTableOwned)
	}
	o, err := NewOwner(e.pool, tableName)
	if err != nil {
		return classify(err, tableName, "")
	}

	octx, cancel := context.WithCancel(ctx)
	ro := &runningOwner{cancel: cancel, done: make(chan struct{})}
	e.owners[tableName] = ro

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer close(ro.done)
		ro.err = o.Run(octx)
		if ro.err != nil {
			slog.Error("table owner failed", "table", tableName, "error", ro.err)
		}
	}()
	return nil
}

// Release stops the owner for tableName and waits for it to drain.
func (e *Engine) Release(tableName string) error {
	e.mu.Lock()
	ro, ok := e.owners[tableName]
	delete(e.owners, tableName)
	e.mu.Unlock()
	if !ok {
		return nil
	}

	ro.cancel()
	<-ro.done
	return ro.err
}

// Owned returns whether the engine runs an owner for tableName.
func (e *Engine) Owned(tableName string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.owners[tableName]
	return ok
}

// Stop releases every owner, then closes the pool. Queued updates drain
// through their owners before the pool closes.
func (e *Engine) Stop() error {
	e.mu.Lock()
	names := make([]string, 0, len(e.owners))
	for name := range e.owners {
		names = append(names, name)
	}
	e.mu.Unlock()

	var errs []error
	for _, name := range names {
		if err := e.Release(name); err != nil {
			errs = append(errs, err)
		}
	}
	e.wg.Wait()
	e.pool.Close()
	return errors.Join(errs...)
}
