// Package store provides the persistence backends behind the claim and
// forum stores: Postgres for shared deployments, SQLite for lite mode, and
// an in-process memory store for tests and development.
package store

import "errors"

var (
	// ErrNotFound means the referenced record is absent. Not retryable.
	ErrNotFound = errors.New("record not found")
	// ErrConflict means a conditional write lost an optimistic-concurrency
	// race. Retryable after re-reading the record.
	ErrConflict = errors.New("conflicting concurrent update")
)
