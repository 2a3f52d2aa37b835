// Package session implements the coordinator shared by every agent of one
// top-level run: the member table, the cost ledger, the model-call budget and
// the cooperative abort flag. Store keeps sessions addressable for status
// queries for the lifetime of the process.
package session
