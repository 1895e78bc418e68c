// Package syncerr defines the error values reported by replication sessions.
//
// An Error is a (domain, code) pair plus an optional reference into a
// MessageLog. Errors are small comparable values so they can be stored in
// status snapshots and copied freely between goroutines.
//
// # Message Log
//
// Error messages are not embedded in the Error value. They are recorded in
// a bounded MessageLog and referenced by sequence number (Error.Info):
//
//   - the log keeps the most recent DefaultCapacity messages (FIFO eviction)
//   - sequence numbers start at 1000 and are never reused
//   - looking up an evicted sequence returns "", never another message
//
// The log is an ordinary value owned by whoever constructs errors; the
// replication controller and engines receive one through their options.
// DefaultLog exists for callers that do not inject their own.
//
// # Classification
//
// MayBeTransient and MayBeNetworkDependent are advisory facets for callers
// implementing retry and backoff. Both are table lookups keyed by domain;
// code zero and unknown domains are never classified.
package syncerr
