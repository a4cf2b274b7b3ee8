package store

import (
	"context"
	"time"
)

// Users persists identity records.
type Users interface {
	// CreateUser inserts user and, when account is non-nil, its first account
	// in the same transaction. ErrConflict when the email or the account's
	// (ProviderID, AccountID) pair is taken.
	CreateUser(ctx context.Context, user *User, account *Account) error
	GetUser(ctx context.Context, id string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	// UpdateUser overwrites an existing user. ErrNotFound when it is gone.
	UpdateUser(ctx context.Context, user *User) error
	// BanUser writes the ban fields of user (Banned, BanReason, BanExpires,
	// UpdatedAt) and deletes every session of the user in one transaction. It
	// returns how many sessions went. ErrNotFound when the user is gone.
	BanUser(ctx context.Context, user *User) (int, error)
	// ListUsers pages through users in creation order. An empty cursor starts
	// from the beginning.
	ListUsers(ctx context.Context, limit int, cursor string) (*UserPage, error)
	// DeleteUser removes the user's sessions, then accounts, then the user, as
	// one transaction. ErrNotFound when the user does not exist.
	DeleteUser(ctx context.Context, id string) error
}

// Accounts persists credential and OAuth accounts.
type Accounts interface {
	// CreateAccount inserts an account for an existing user. ErrConflict when
	// (ProviderID, AccountID) is taken.
	CreateAccount(ctx context.Context, account *Account) error
	GetAccountByProvider(ctx context.Context, providerID, accountID string) (*Account, error)
	UpdateAccount(ctx context.Context, account *Account) error
	ListUserAccounts(ctx context.Context, userID string) ([]*Account, error)
}

// Sessions persists login sessions.
type Sessions interface {
	CreateSession(ctx context.Context, session *Session) error
	GetSession(ctx context.Context, id string) (*Session, error)
	GetSessionByTokenHash(ctx context.Context, tokenHash string) (*Session, error)
	// UpdateSession overwrites an existing session and never recreates a
	// deleted one. ErrNotFound when it is gone.
	UpdateSession(ctx context.Context, session *Session) error
	// DeleteSession is idempotent.
	DeleteSession(ctx context.Context, id string) error
	DeleteUserSessions(ctx context.Context, userID string) (int, error)
	// DeleteExpiredSessions removes at most limit sessions whose sliding
	// expiry is at or before before.
	DeleteExpiredSessions(ctx context.Context, before time.Time, limit int) (int, error)
}

// VerificationUpdate receives the current record (nil when absent) and returns
// the record to store, or nil to delete it.
type VerificationUpdate func(current *Verification) (*Verification, error)

// Verifications persists single-use verification codes.
type Verifications interface {
	// PutVerification replaces any record with the same key.
	PutVerification(ctx context.Context, v *Verification) error
	// UpdateVerification applies fn atomically. If fn returns an error, nothing
	// is written and the error is returned unchanged.
	UpdateVerification(ctx context.Context, identifier string, typ VerificationType, fn VerificationUpdate) error
	// DeleteVerification is idempotent.
	DeleteVerification(ctx context.Context, identifier string, typ VerificationType) error
	DeleteExpiredVerifications(ctx context.Context, before time.Time, limit int) (int, error)
}

// OAuthStates persists in-flight OAuth authorization state.
type OAuthStates interface {
	PutOAuthState(ctx context.Context, state *OAuthState) error
	// ConsumeOAuthState reads and deletes the record in one step.
	ConsumeOAuthState(ctx context.Context, stateHash string) (*OAuthState, error)
	DeleteExpiredOAuthStates(ctx context.Context, before time.Time, limit int) (int, error)
}

// RateLimitUpdate receives the current counter (nil when absent) and returns
// the counter to store, or nil to delete it.
type RateLimitUpdate func(current *RateLimit) (*RateLimit, error)

// RateLimits persists failure counters.
type RateLimits interface {
	GetRateLimit(ctx context.Context, key string) (*RateLimit, error)
	UpdateRateLimit(ctx context.Context, key string, fn RateLimitUpdate) error
	DeleteRateLimit(ctx context.Context, key string) error
	DeleteExpiredRateLimits(ctx context.Context, before time.Time, limit int) (int, error)
}

// Store is the full storage collaborator required by the engine.
type Store interface {
	Users
	Accounts
	Sessions
	Verifications
	OAuthStates
	RateLimits
}
