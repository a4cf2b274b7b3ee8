package store

import (
	"time"

	"github.com/natedunn/convex-zen-sub000/seal"
)

// CredentialProviderID is the ProviderID of password-backed accounts.
const CredentialProviderID = "credential"

// VerificationType distinguishes the purposes a verification code can serve.
type VerificationType string

const (
	VerificationEmail         VerificationType = "email-verification"
	VerificationPasswordReset VerificationType = "password-reset"
)

// User is the identity record. Email is stored normalized (trimmed, lower case).
type User struct {
	ID            string
	Email         string
	EmailVerified bool
	Name          string
	Image         string
	Role          string

	Banned    bool
	BanReason string
	// BanExpires is zero for a permanent ban.
	BanExpires time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// BanActive reports whether the user is banned at now. A ban whose expiry has
// passed is not active.
func (u *User) BanActive(now time.Time) bool {
	if u == nil || !u.Banned {
		return false
	}
	return u.BanExpires.IsZero() || now.Before(u.BanExpires)
}

// BanLapsed reports whether the user carries a ban flag whose expiry has passed.
func (u *User) BanLapsed(now time.Time) bool {
	return u != nil && u.Banned && !u.BanExpires.IsZero() && !now.Before(u.BanExpires)
}

// ClearBan resets every ban field.
func (u *User) ClearBan() {
	u.Banned = false
	u.BanReason = ""
	u.BanExpires = time.Time{}
}

// Account links a User to one way of proving identity. Credential accounts
// carry a password hash and use the user id as AccountID; OAuth accounts carry
// the provider's tokens as sealed values.
type Account struct {
	ID         string
	UserID     string
	ProviderID string
	AccountID  string

	PasswordHash string

	AccessToken          seal.Value
	RefreshToken         seal.Value
	AccessTokenExpiresAt time.Time
	Scope                string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Session is an active login. Only the SHA-256 hex digest of the bearer token
// is stored.
type Session struct {
	ID        string
	UserID    string
	TokenHash string

	// ExpiresAt is the sliding expiry; it never exceeds AbsoluteExpiresAt.
	ExpiresAt         time.Time
	AbsoluteExpiresAt time.Time
	LastActiveAt      time.Time

	IPAddress string
	UserAgent string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Verification is a single-use code keyed by (Identifier, Type).
type Verification struct {
	Identifier string
	Type       VerificationType
	CodeHash   string
	ExpiresAt  time.Time
	Attempts   int
	CreatedAt  time.Time
}

// OAuthState is the short-lived CSRF/PKCE record of one authorization flow.
type OAuthState struct {
	StateHash    string
	ProviderID   string
	CodeVerifier string
	RedirectURL  string
	ExpiresAt    time.Time
	CreatedAt    time.Time
}

// RateLimit is a failure counter for one key.
type RateLimit struct {
	Key         string
	WindowStart time.Time
	Count       int
	// LockedUntil is zero when no hard lockout is in effect.
	LockedUntil time.Time
	// ExpiresAt is when the record stops affecting decisions and may be
	// dropped by the adapter.
	ExpiresAt time.Time
}

// UserPage is one page of a forward-only user listing.
type UserPage struct {
	Users []*User
	// Cursor marks the last returned position; pass it back to continue.
	Cursor string
	IsDone bool
}
