package table

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/roach88/tabwrite/internal/ir"
)

// Applier rewrites table data for one update. Implemented by *store.Store.
type Applier interface {
	ApplyUpdate(ctx context.Context, ec ir.ExecContext, op *ir.UpdateOperation, mode ir.UpdateMode) (int64, error)
}

// Channel accepts deferred commands. The pool's implementation routes
// each command to its table's queue.
type Channel interface {
	Enqueue(cmd *Command) error
}

// Pool hands out at most one Writer per table.
//
// Thread-safety: all methods are safe for concurrent use.
type Pool struct {
	applier Applier

	mu      sync.Mutex
	entries map[string]*entry
	closed  bool
}

// entry is the per-table state. Guarded by Pool.mu except for the
// queue (own lock) and the counters (atomic).
type entry struct {
	held  bool
	owner string
	queue *commandQueue

	acquired atomic.Int64
	busy     atomic.Int64
	deferred atomic.Int64
	applied  atomic.Int64
}

// NewPool creates a pool that applies updates through a.
func NewPool(a Applier) *Pool {
	return &Pool{
		applier: a,
		entries: make(map[string]*entry),
	}
}

// entryLocked returns the entry for table, creating it on first use.
// Caller must hold p.mu.
func (p *Pool) entryLocked(table string) *entry {
	e, ok := p.entries[table]
	if !ok {
		e = &entry{queue: newCommandQueue()}
		p.entries[table] = e
	}
	return e
}

// Acquire takes the writer for table. reason identifies the holder in
// busy errors and logs (e.g. "inline update", "owner").
//
// Never blocks. Returns a *BusyError if the table is held.
func (p *Pool) Acquire(table, reason string) (*Writer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrPoolClosed
	}

	e := p.entryLocked(table)
	if e.held {
		e.busy.Add(1)
		return nil, &BusyError{Table: table, Owner: e.owner}
	}

	e.held = true
	e.owner = reason
	e.acquired.Add(1)

	slog.Debug("writer acquired", "table", table, "reason", reason)
	return &Writer{pool: p, table: table, entry: e}, nil
}

// Commands returns the deferred-execution channel backed by this pool.
func (p *Pool) Commands() Channel {
	return poolChannel{p: p}
}

type poolChannel struct {
	p *Pool
}

// Enqueue queues cmd for cmd.Op.Table.
// Returns ErrNotHeld if no writer holds the table (the caller should retry
// acquiring instead of queueing behind nobody).
func (c poolChannel) Enqueue(cmd *Command) error {
	if cmd == nil || cmd.Op == nil {
		return fmt.Errorf("enqueue: nil command")
	}
	p := c.p
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPoolClosed
	}

	e := p.entryLocked(cmd.Op.Table)
	if !e.held {
		return ErrNotHeld
	}
	if !e.queue.Enqueue(cmd) {
		return ErrPoolClosed
	}
	e.deferred.Add(1)

	slog.Debug("update deferred",
		"table", cmd.Op.Table,
		"op_id", cmd.Op.ID,
		"holder", e.owner,
	)
	return nil
}

// TableStats is a point-in-time view of one table's writer.
type TableStats struct {
	Table    string `json:"table"`
	Held     bool   `json:"held"`
	Owner    string `json:"owner,omitempty"`
	Queued   int    `json:"queued"`
	Acquired int64  `json:"acquired"`
	Busy     int64  `json:"busy"`
	Deferred int64  `json:"deferred"`
	Applied  int64  `json:"applied"`
}

// Stats returns stats for every table the pool has seen, sorted by name.
func (p *Pool) Stats() []TableStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]TableStats, 0, len(p.entries))
	for name, e := range p.entries {
		out = append(out, TableStats{
			Table:    name,
			Held:     e.held,
			Owner:    e.owner,
			Queued:   e.queue.Len(),
			Acquired: e.acquired.Load(),
			Busy:     e.busy.Load(),
			Deferred: e.deferred.Load(),
			Applied:  e.applied.Load(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Table < out[j].Table })
	return out
}

// Held reports whether table's writer is currently held.
func (p *Pool) Held(table string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entries[table]
	return ok && e.held
}

// Queued returns the number of commands waiting for table.
func (p *Pool) Queued(table string) int {
	p.mu.Lock()
	e, ok := p.entries[table]
	p.mu.Unlock()
	if !ok {
		return 0
	}
	return e.queue.Len()
}

// Close shuts the pool down. Commands still queued are failed with
// ErrPoolClosed. Writers already handed out keep working until closed.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	var stranded []*Command
	for _, e := range p.entries {
		stranded = append(stranded, e.queue.Close()...)
	}
	p.mu.Unlock()

	for _, cmd := range stranded {
		cmd.Complete(ir.Outcome{}, ErrPoolClosed)
	}
	if len(stranded) > 0 {
		slog.Warn("writer pool closed with queued updates", "count", len(stranded))
	}
}
