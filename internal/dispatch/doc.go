// Package dispatch routes update operations to a table's single writer.
//
// Sender.Execute tries the writer inline first. When the writer is free the
// update is applied on the calling goroutine and a Resolved future is
// returned. When the writer is busy and the caller supplied a deferred
// channel, the caller's execution context is bound into the operation, the
// operation is queued for the goroutine that holds the writer, and a Pending
// future is returned without waiting. Without a channel the busy error is
// returned as is.
//
// Both future variants satisfy Future, so callers consume them the same way:
//
//	f, err := sender.Execute(ctx, op, ec, pool.Commands())
//	if err != nil {
//		return err
//	}
//	if err := f.Await(ctx); err != nil {
//		return err
//	}
//	out, _ := f.Value()
//
// A Pending future times out without retracting its operation. The holder
// still applies it; a later Await observes the result.
package dispatch
