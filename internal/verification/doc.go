// Package verification issues and checks single-use codes for email
// verification and password reset.
//
// # Design
//
// A code is eight characters from an unambiguous alphabet. Only its SHA-256
// digest is stored, keyed by (identifier, type), so issuing a new code
// replaces the previous one. Verify runs as one conditional update against
// the store: it decides the outcome and writes the attempt counter or deletes
// the record in the same step.
//
// # Architecture boundaries
//
// This package does not deliver codes and does not rate limit callers. Both
// belong to the Engine.
package verification
