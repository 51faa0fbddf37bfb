package engine

import (
	"context"
	"fmt"
	"sync/atomic"
)

// Clock is the monotonic logical clock that stamps every request.
//
// Seq values are strictly increasing and never reused. They are part of
// the operation ID, so reuse across restarts would make a new update look
// like an already-applied one. Use ResumeClock when reopening a store.
//
// Safe for concurrent use.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock whose next value is start+1.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// SeqSource reports the highest seq already used. Implemented by
// *store.Store.
type SeqSource interface {
	MaxSeq(ctx context.Context) (int64, error)
}

// ResumeClock creates a clock that continues after the highest logged seq.
func ResumeClock(ctx context.Context, src SeqSource) (*Clock, error) {
	seq, err := src.MaxSeq(ctx)
	if err != nil {
		return nil, fmt.Errorf("resume clock: %w", err)
	}
	return NewClockAt(seq), nil
}

// Next returns the next seq.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last seq handed out.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
