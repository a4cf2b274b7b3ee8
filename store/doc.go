// Package store defines the persistence contract for the zen authentication
// core: the record types (users, accounts, sessions, verification codes,
// OAuth states, rate-limit counters) and the [Store] interface the engine is
// written against.
//
// # Transaction model
//
// Every method is a single atomic unit. Methods that must read, decide and
// write as one step take an update function (UpdateRateLimit,
// UpdateVerification); adapters implement them as a conditional update with
// retry and may invoke the function more than once, so update functions must
// not have side effects beyond their return values.
//
// # What this package must NOT do
//
//   - Import the root zen package or any engine component.
//   - Hold records in memory across calls.
//
// Adapters live in sub-packages: redisstore (Redis) and pgstore (PostgreSQL).
package store
