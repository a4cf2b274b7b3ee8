// Package redisstore implements [store.Store] on Redis.
//
// # Key layout
//
// All keys live under a prefix (default "zen"):
//
//	user:{id}                         JSON user record
//	user:email:{email}                user id
//	users                             ZSET user id by creation sequence
//	users:seq                         creation sequence counter
//	user:{id}:accounts                SET account ids
//	user:{id}:sessions                SET session ids
//	account:{id}                      JSON account record
//	account:provider:{p}:{accountId}  account id
//	session:{id}                      JSON session record (TTL: absolute expiry)
//	session:token:{hash}              session id
//	sessions:expiry                   ZSET session id by sliding expiry
//	verification:{type}:{identifier}  JSON verification record
//	verifications:expiry              ZSET "{type}:{identifier}" by expiry
//	oauth:state:{hash}                JSON OAuth state (TTL: expiry)
//	oauth:states:expiry               ZSET state hash by expiry
//	ratelimit:{key}                   JSON counter (TTL: ExpiresAt)
//
// # Atomicity
//
// Multi-key writes are queued in MULTI/EXEC. Read-modify-write paths run under
// WATCH and retry on contention up to a bounded number of times, after which
// store.ErrConflict is returned. OAuth states are consumed with GETDEL.
package redisstore
