// Package store provides SQLite-backed table data for tabwrite.
//
// The store holds:
//   - Tables: a catalog of table names and their columns
//   - Rows: one canonical JSON document per row
//   - Applied ops: an append-only log of every update that was applied
//
// # Update Operator
//
// ApplyUpdate is the physical update operator. It runs in one transaction:
// validate the table and SET columns, rewrite matching rows with json_set,
// append to the apply log. The apply log's UNIQUE(op_id) guarantees an
// operation is applied at most once even if it is replayed.
//
// The store does not enforce single-writer-per-table; that is the job of
// the table package's writer pool. SQLite itself serializes transactions.
//
// # Deterministic Queries
//
// All reads include an ORDER BY with a stable tiebreaker.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
