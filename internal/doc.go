// Package internal holds the crypto primitives shared by the engine: bearer
// token generation, SHA-256 lookup hashes, verification codes and PKCE
// verifier/challenge pairs.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - metrics: lock-free counters and latency histograms
//   - rate: store-backed sliding-window limiter with lockout
//   - verification: single-use verification codes
package internal
