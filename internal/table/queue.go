package table

import "sync"

// commandQueue is a thread-safe FIFO of deferred commands for one table.
//
// The queue is unbounded: a busy writer must never push back on
// callers, because dispatch is required not to block.
//
// Many goroutines enqueue; only the current writer holder dequeues.
// The signal channel lets the holder wait with select alongside ctx.Done().
type commandQueue struct {
	mu       sync.Mutex
	commands []*Command
	closed   bool
	signal   chan struct{} // Signals command availability (buffered, size 1)
}

func newCommandQueue() *commandQueue {
	return &commandQueue{
		commands: make([]*Command, 0, 16),
		signal:   make(chan struct{}, 1),
	}
}

// Enqueue adds a command to the back of the queue.
// Returns false if the queue is closed.
func (q *commandQueue) Enqueue(c *Command) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.commands = append(q.commands, c)

	// Non-blocking: the buffer of 1 coalesces multiple signals
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue removes and returns the front command without blocking.
func (q *commandQueue) TryDequeue() (*Command, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.commands) == 0 {
		return nil, false
	}

	c := q.commands[0]
	// Nil the slot so the backing array does not pin drained commands.
	q.commands[0] = nil

	if len(q.commands) == 1 {
		q.commands = q.commands[:0]
	} else {
		q.commands = q.commands[1:]
	}

	return c, true
}

// Wait returns a channel that signals when commands may be available.
// The channel is closed when the queue is closed.
func (q *commandQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *commandQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.commands)
}

// Close stops accepting commands and returns whatever was still queued.
// Wakes any waiters by closing the signal channel.
func (q *commandQueue) Close() []*Command {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}

	q.closed = true
	close(q.signal)

	rest := q.commands
	q.commands = nil
	return rest
}
