// Package harness runs write-dispatch scenarios and compares their traces
// against golden files.
//
// # Scenario Format
//
//	name: trades_held_with_channel
//	description: "A held table defers the update to its holder"
//	session: s-1
//	tables:
//	  - name: trades
//	    columns: [id, price, status]
//	    rows:
//	      - { id: 1, price: 100, status: open }
//	steps:
//	  - hold: trades
//	  - dispatch: { id: u1, table: trades, set: { status: settled }, where: { id: 1 } }
//	    expect: { state: pending }
//	  - drain: trades
//	  - await: { id: u1 }
//	    expect: { state: completed, rows: 1 }
//	assertions:
//	  - type: final_state
//	    table: trades
//	    where: { id: 1 }
//	    expect: { status: settled }
//
// Steps run in order on one goroutine. A held table stays held until its
// release step (or the end of the scenario), so deferred updates run only
// at drain and release steps. An await without a timeout requires the
// update to have run already; "timeout: 0s" polls and reports timed_out.
//
// # Assertion Types
//
//   - final_state: rows matching where carry the expected values
//   - applied_order: the table's apply log lists these handle IDs in order,
//     optionally with their modes (inline or deferred)
//   - handle_state: a dispatched handle ended in the given state
//
// # Determinism
//
// Each scenario gets a fresh in-memory store, a logical clock starting at
// zero, and a fixed session ID, so traces are byte-identical across runs.
package harness
