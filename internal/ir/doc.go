// Package ir provides the shared types of the write-dispatch core.
//
// This package contains type definitions only. All other internal packages
// import ir; ir imports nothing internal.
//
// Key design constraints:
//   - NO float types anywhere - use int64 for numbers
//   - Operation identity is content-addressed (canonical JSON + SHA-256)
//   - Logical clocks (seq) only, never wall-clock timestamps
//   - An UpdateOperation's execution context is bound at most once
package ir
