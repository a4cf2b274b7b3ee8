// Package session issues and validates opaque bearer sessions.
//
// # Tokens
//
// A token is 32 random bytes in hex. The store only ever sees its SHA-256
// digest, so a leaked session table cannot be replayed.
//
// # Lifetime
//
// Every session has a sliding expiry and an absolute cap. Validation pushes
// the sliding expiry forward once the session has been idle longer than the
// extend threshold, never past the cap.
//
// # Architecture boundaries
//
// This package owns session lifetime and the ban check on validation. It does
// NOT authenticate credentials or transport tokens; those belong to the
// Engine and its callers.
package session
