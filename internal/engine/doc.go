// Package engine runs the table owners and exposes dispatch to callers.
//
// An Owner holds one table's writer for as long as it runs and drains the
// updates other callers queued while it held the table. Because only the
// owner dequeues, updates for one table apply in the order they were
// queued. Nothing is ordered across tables.
//
// Engine ties the pieces together: the store applies updates, the pool
// enforces one writer per table, and the dispatch sender decides between
// inline and deferred execution. Every request gets a seq from the logical
// Clock, which also feeds the operation ID, so two requests never share an
// ID even when their content matches.
package engine
