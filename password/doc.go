// Package password implements password hashing and verification with Argon2id.
//
// # Output format
//
// Hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// The parameters travel with every hash, so costs can be raised without a
// migration: [Argon2.NeedsUpgrade] reports hashes produced with weaker
// parameters and the caller re-hashes on the next successful sign-in.
//
// Password strength policy is enforced by the engine, not here.
package password
