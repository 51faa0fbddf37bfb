package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/roach88/tabwrite/internal/ir"
	"github.com/roach88/tabwrite/internal/table"
)

// State is the lifecycle position of a Future.
type State int

const (
	// StatePending means the update is queued and has not run.
	StatePending State = iota
	// StateCompleted means the update ran and Value returns its outcome.
	StateCompleted
	// StateFailed means the update ran and Value returns its error.
	StateFailed
	// StateTimedOut means a bounded wait expired first. The update is still
	// queued, so the state moves on to Completed or Failed once it runs.
	StateTimedOut
)

// String returns the state name used in traces and CLI output.
func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateTimedOut:
		return "timed_out"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Terminal reports whether no further transition can happen.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Future is the result of Execute, resolved or pending.
type Future interface {
	// Done reports whether the update has run.
	Done() bool

	// Await blocks until the update has run or ctx ends. It returns the
	// update's error, ErrTimedOut if ctx's deadline passed, or ctx.Err().
	Await(ctx context.Context) error

	// AwaitTimeout is Await bounded by d. A zero or negative d polls.
	AwaitTimeout(d time.Duration) error

	// Value returns the outcome or the update's error.
	// Before completion it returns ErrNotDone.
	Value() (ir.Outcome, error)

	// State returns the current lifecycle state.
	State() State
}

// Resolved is a future whose outcome was known when Execute returned.
type Resolved struct {
	outcome ir.Outcome
}

// NewResolved wraps an outcome.
func NewResolved(out ir.Outcome) Resolved {
	return Resolved{outcome: out}
}

// Done always reports true.
func (Resolved) Done() bool { return true }

// Await returns immediately.
func (Resolved) Await(context.Context) error { return nil }

// AwaitTimeout returns immediately.
func (Resolved) AwaitTimeout(time.Duration) error { return nil }

// State is always StateCompleted.
func (Resolved) State() State { return StateCompleted }

// Value returns the outcome recorded at construction.
func (r Resolved) Value() (ir.Outcome, error) {
	return r.outcome, nil
}

// Pending is a future waiting on a queued command.
//
// Safe for concurrent use, though one consumer is the intended pattern.
type Pending struct {
	cmd      *table.Command
	op       *ir.UpdateOperation
	position int
	fallback bool

	mu    sync.Mutex
	state State
}

func newPending(cmd *table.Command, fallback bool) *Pending {
	return &Pending{
		cmd:      cmd,
		op:       cmd.Op,
		position: cmd.Op.Position,
		fallback: fallback,
		state:    StatePending,
	}
}

// Operation returns the queued operation.
func (p *Pending) Operation() *ir.UpdateOperation {
	return p.op
}

// Position returns the statement position of the queued operation.
func (p *Pending) Position() int {
	return p.position
}

// Done reports whether the queued command has completed.
func (p *Pending) Done() bool {
	return p.cmd.Completed()
}

// Await blocks until the command completes or ctx ends. A passed deadline
// marks the future timed out.
func (p *Pending) Await(ctx context.Context) error {
	select {
	case <-p.cmd.Done():
		_, err := p.settle()
		return err
	default:
	}

	select {
	case <-p.cmd.Done():
		_, err := p.settle()
		return err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return p.timedOut()
		}
		return ctx.Err()
	}
}

// AwaitTimeout waits up to d for the command. d <= 0 polls.
func (p *Pending) AwaitTimeout(d time.Duration) error {
	if d <= 0 {
		if p.cmd.Completed() {
			_, err := p.settle()
			return err
		}
		return p.timedOut()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-p.cmd.Done():
		_, err := p.settle()
		return err
	case <-timer.C:
		return p.timedOut()
	}
}

// Value returns the drained outcome, or ErrNotDone while still queued.
func (p *Pending) Value() (ir.Outcome, error) {
	if !p.cmd.Completed() {
		return ir.Outcome{}, ErrNotDone
	}
	return p.settle()
}

// State returns the current state, settling it first if the command has
// completed.
func (p *Pending) State() State {
	if p.cmd.Completed() {
		p.settle()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// settle reads the command result and records the terminal state.
// Must only be called once the command has completed.
func (p *Pending) settle() (ir.Outcome, error) {
	out, err := p.cmd.Result()
	if err != nil && p.fallback && errors.Is(err, table.ErrStaleReader) {
		out, err = ir.DoneOutcome, nil
	}

	p.mu.Lock()
	if !p.state.Terminal() {
		if err != nil {
			p.state = StateFailed
		} else {
			p.state = StateCompleted
		}
	}
	p.mu.Unlock()
	return out, err
}

func (p *Pending) timedOut() error {
	p.mu.Lock()
	if !p.state.Terminal() {
		p.state = StateTimedOut
	}
	p.mu.Unlock()
	return fmt.Errorf("%w: table %q position %d", ErrTimedOut, p.op.Table, p.position)
}
