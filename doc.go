// Package zen is an authentication and session core for backends that bring
// their own transport.
//
// It issues and validates opaque session tokens, authenticates email and
// password users and OAuth users, manages single-use verification codes,
// throttles abuse with windowed rate limits, and gates administrative
// actions on a configured role. Only hashes of tokens and codes are stored.
//
// Build an [Engine] with [New]:
//
//	engine, err := zen.New().
//		WithConfig(cfg).
//		WithStore(redisstore.New(rdb)).
//		WithLogger(log).
//		Build()
//
// Engine methods are safe for concurrent use. Each one is a single logical
// transaction against the [store.Store] backend; the engine keeps no
// per-user state in memory.
//
// # Architecture boundaries
//
// zen is the public surface: [Engine], [Builder], [Config], request and
// result types, and [Error]. Session lifetime rules live in package session,
// provider protocol in package oauth, and persistence behind package store
// with Redis and Postgres adapters in store/redisstore and store/pgstore.
//
// # What this package must NOT do
//
//   - Send email. Codes are returned to the caller, who delivers them.
//   - Set cookies or read HTTP requests. Client IP and User-Agent arrive via
//     [WithClientIP] and [WithUserAgent].
//   - Reveal whether an email is registered through sign-in or password
//     reset responses.
package zen
