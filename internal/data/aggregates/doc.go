// Package aggregates implements the transactional write side of the store.
//
// Aggregates compose table repos from internal/data/repos and own the
// transaction boundary of every invariant-critical write.
package aggregates
