// Package testutil provides deterministic fixtures for admission tests:
// attempt id generators, Ed25519 signers derived from fixed seeds,
// candidate message builders, and recorders for events and stages.
package testutil
