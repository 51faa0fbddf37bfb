// Package table implements the exclusive writer pool.
//
// Every table has at most one live Writer. Acquire never blocks: if another
// owner holds the table it fails with a *BusyError naming that owner, so
// callers can choose to defer instead of stalling.
//
// # Deferred Commands
//
// Each table also has a FIFO command queue. A caller that found the table
// busy may enqueue a Command through the pool's Channel; the queue accepts
// commands only while the table is held. The holder drains the queue with
// Writer.Tick, and Writer.Close drains whatever is left before releasing,
// so a queued command is never stranded.
//
// Commands for one table are applied in enqueue order by whichever
// goroutine holds that table's writer. There is no ordering across tables.
package table
