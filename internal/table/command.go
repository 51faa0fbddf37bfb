package table

import (
	"sync"

	"github.com/roach88/tabwrite/internal/ir"
)

// Command is a deferred update plus its single-consumer completion signal.
//
// The signal fires exactly once: Complete records the outcome and closes
// the done channel. Readers that observed Done() closed see the recorded
// outcome (the close happens after the write).
type Command struct {
	Op *ir.UpdateOperation

	once    sync.Once
	done    chan struct{}
	outcome ir.Outcome
	err     error
}

// NewCommand wraps an operation for deferred execution.
func NewCommand(op *ir.UpdateOperation) *Command {
	return &Command{
		Op:   op,
		done: make(chan struct{}),
	}
}

// Complete records the outcome and fires the signal.
// Returns false if the command was already completed; the first outcome wins.
func (c *Command) Complete(outcome ir.Outcome, err error) bool {
	fired := false
	c.once.Do(func() {
		c.outcome = outcome
		c.err = err
		close(c.done)
		fired = true
	})
	return fired
}

// Done returns a channel that is closed once the command completes.
func (c *Command) Done() <-chan struct{} {
	return c.done
}

// Completed reports whether the signal has fired.
func (c *Command) Completed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Result returns the recorded outcome, or ErrNotCompleted if the command
// is still queued.
func (c *Command) Result() (ir.Outcome, error) {
	if !c.Completed() {
		return ir.Outcome{}, ErrNotCompleted
	}
	return c.outcome, c.err
}
