// Package rate implements a sliding-window failure counter with a hard
// lockout, persisted through [store.RateLimits].
//
// # Window semantics
//
// A key accumulates failures inside a window of fixed width that starts at
// the first failure. Reaching MaxAttempts sets a lockout that outlives the
// window, so an attacker who trips it once cannot keep probing just under the
// threshold. Check never mutates; Increment is one conditional
// read-modify-write through store.RateLimits.UpdateRateLimit.
//
// # Keys
//
// Keys follow `action:scope:identifier`, e.g. `sign-in:email:a@b.c` and
// `sign-in:ip:10.0.0.1`. See [Key].
package rate
