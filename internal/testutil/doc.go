// Package testutil provides deterministic fixtures shared by the harness
// and package tests: seeded stores and a fixed session generator.
package testutil
