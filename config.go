package zen

import (
	"errors"
	"fmt"
	"time"

	"github.com/natedunn/convex-zen-sub000/oauth"
	"github.com/natedunn/convex-zen-sub000/session"
)

// Config is the full engine configuration. Start from DefaultConfig and
// override fields; the Builder clones it, so later mutation by the caller has
// no effect on a built Engine.
type Config struct {
	Session           SessionConfig
	Password          PasswordConfig
	RateLimit         RateLimitConfig
	EmailVerification EmailVerificationConfig
	PasswordReset     PasswordResetConfig
	Account           AccountConfig
	Admin             AdminConfig
	OAuth             OAuthConfig
	Cleanup           CleanupConfig
	Audit             AuditConfig
	Metrics           MetricsConfig
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls sliding and absolute session expiry.
//
// Duration is the sliding window, AbsoluteLifetime the hard cap measured from
// creation. A session idle longer than ExtendThreshold is extended on its next
// successful validation.
type SessionConfig struct {
	Duration         time.Duration
	AbsoluteLifetime time.Duration
	ExtendThreshold  time.Duration
}

// ShortSessionConfig returns the 1h sliding / 12h absolute preset.
func ShortSessionConfig() SessionConfig {
	s := session.ShortConfig()
	return SessionConfig{
		Duration:         s.Duration,
		AbsoluteLifetime: s.AbsoluteLifetime,
		ExtendThreshold:  s.ExtendThreshold,
	}
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig holds the Argon2id cost parameters and the password policy.
type PasswordConfig struct {
	Memory uint32
	Time   uint32
	// Parallelism is the Argon2id lane count. Only 1 is accepted; hashes
	// encoded with other lane counts still verify.
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32

	// MinLength and MaxLength are in bytes.
	MinLength int
	MaxLength int

	// MinStrength is the lowest accepted zxcvbn score (0-4). 0 disables the
	// check.
	MinStrength int

	// UpgradeOnLogin re-hashes a stored password after a successful sign-in
	// when its encoded parameters differ from the ones above.
	UpgradeOnLogin bool
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// RateLimitConfig applies to every throttled action (sign-in, sign-up,
// password reset requests, verification resends).
type RateLimitConfig struct {
	Window      time.Duration
	Lockout     time.Duration
	MaxAttempts int
}

/*
====================================
VERIFICATION CONFIG
====================================
*/

// EmailVerificationConfig controls sign-up verification codes.
//
// RequireForSignIn rejects sign-in for unverified users even when the
// request does not set RequireEmailVerified.
type EmailVerificationConfig struct {
	CodeTTL          time.Duration
	MaxAttempts      int
	RequireForSignIn bool
}

// PasswordResetConfig controls password reset codes.
type PasswordResetConfig struct {
	CodeTTL     time.Duration
	MaxAttempts int
}

/*
====================================
ACCOUNT & ADMIN CONFIG
====================================
*/

// AccountConfig applies to users created by sign-up or first OAuth login.
type AccountConfig struct {
	// DefaultRole is assigned to new users. Empty leaves the role unset.
	DefaultRole string
}

// AdminConfig gates the Admin* operations.
type AdminConfig struct {
	Role            string
	DefaultPageSize int
	MaxPageSize     int
}

/*
====================================
OAUTH CONFIG
====================================
*/

// OAuthConfig lists the configured providers.
//
// TokenSecret keys the cipher that seals provider access and refresh tokens
// at rest. It is required whenever Providers is non-empty.
type OAuthConfig struct {
	Providers   []oauth.ProviderConfig
	StateTTL    time.Duration
	HTTPTimeout time.Duration
	TokenSecret string
}

/*
====================================
CLEANUP CONFIG
====================================
*/

// CleanupConfig bounds each Cleanup call.
type CleanupConfig struct {
	// BatchSize bounds the records removed per table per Cleanup call.
	BatchSize int
}

/*
====================================
AUDIT & METRICS CONFIG
====================================
*/

// AuditConfig controls the async audit dispatcher. With DropIfFull set, events
// that do not fit the buffer are counted and dropped instead of blocking the
// caller.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig enables the in-process counters and, separately, the latency
// histograms.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	s := session.DefaultConfig()
	return Config{
		Session: SessionConfig{
			Duration:         s.Duration,
			AbsoluteLifetime: s.AbsoluteLifetime,
			ExtendThreshold:  s.ExtendThreshold,
		},
		Password: PasswordConfig{
			Memory:         19456,
			Time:           2,
			Parallelism:    1,
			SaltLength:     16,
			KeyLength:      32,
			MinLength:      8,
			MaxLength:      128,
			UpgradeOnLogin: true,
		},
		RateLimit: RateLimitConfig{
			Window:      10 * time.Minute,
			Lockout:     10 * time.Minute,
			MaxAttempts: 10,
		},
		EmailVerification: EmailVerificationConfig{
			CodeTTL:     60 * time.Minute,
			MaxAttempts: 10,
		},
		PasswordReset: PasswordResetConfig{
			CodeTTL:     15 * time.Minute,
			MaxAttempts: 10,
		},
		Account: AccountConfig{
			DefaultRole: "user",
		},
		Admin: AdminConfig{
			Role:            "admin",
			DefaultPageSize: 20,
			MaxPageSize:     100,
		},
		OAuth: OAuthConfig{
			StateTTL:    10 * time.Minute,
			HTTPTimeout: oauth.DefaultHTTPTimeout,
		},
		Cleanup: CleanupConfig{
			BatchSize: 500,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	if len(cfg.OAuth.Providers) > 0 {
		out.OAuth.Providers = make([]oauth.ProviderConfig, len(cfg.OAuth.Providers))
		for i, p := range cfg.OAuth.Providers {
			p.Scopes = append([]string(nil), p.Scopes...)
			out.OAuth.Providers[i] = p
		}
	}
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first invalid field. Build calls it; callers loading
// configuration from files may call it earlier to fail fast.
func (c *Config) Validate() error {
	// Session
	if c.Session.Duration <= 0 {
		return errors.New("Session Duration must be > 0")
	}
	if c.Session.AbsoluteLifetime <= c.Session.Duration {
		return errors.New("Session AbsoluteLifetime must be > Duration")
	}
	if c.Session.ExtendThreshold < 0 {
		return errors.New("Session ExtendThreshold must be >= 0")
	}

	// Password
	if c.Password.Memory < 16*1024 {
		return errors.New("Password Memory must be >= 16384 KB")
	}
	if c.Password.Time < 2 {
		return errors.New("Password Time must be >= 2")
	}
	if c.Password.Parallelism != 1 {
		return errors.New("Password Parallelism must be 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}
	if c.Password.MinLength < 1 {
		return errors.New("Password MinLength must be >= 1")
	}
	if c.Password.MaxLength < c.Password.MinLength {
		return errors.New("Password MaxLength must be >= MinLength")
	}
	if c.Password.MinStrength < 0 || c.Password.MinStrength > 4 {
		return errors.New("Password MinStrength must be between 0 and 4")
	}

	// Rate limit
	if c.RateLimit.Window <= 0 {
		return errors.New("RateLimit Window must be > 0")
	}
	if c.RateLimit.Lockout < 0 {
		return errors.New("RateLimit Lockout must be >= 0")
	}
	if c.RateLimit.MaxAttempts <= 0 {
		return errors.New("RateLimit MaxAttempts must be > 0")
	}

	// Verification codes
	if c.EmailVerification.CodeTTL <= 0 {
		return errors.New("EmailVerification CodeTTL must be > 0")
	}
	if c.PasswordReset.CodeTTL <= 0 {
		return errors.New("PasswordReset CodeTTL must be > 0")
	}
	if c.EmailVerification.MaxAttempts <= 0 || c.PasswordReset.MaxAttempts <= 0 {
		return errors.New("verification MaxAttempts must be > 0")
	}

	// Admin
	if c.Admin.Role == "" {
		return errors.New("Admin Role must be set")
	}
	if c.Admin.DefaultPageSize <= 0 {
		return errors.New("Admin DefaultPageSize must be > 0")
	}
	if c.Admin.MaxPageSize < c.Admin.DefaultPageSize {
		return errors.New("Admin MaxPageSize must be >= DefaultPageSize")
	}

	// OAuth
	if c.OAuth.StateTTL <= 0 {
		return errors.New("OAuth StateTTL must be > 0")
	}
	if c.OAuth.HTTPTimeout <= 0 {
		return errors.New("OAuth HTTPTimeout must be > 0")
	}
	if len(c.OAuth.Providers) > 0 && c.OAuth.TokenSecret == "" {
		return errors.New("OAuth TokenSecret is required when providers are configured")
	}
	seen := make(map[string]struct{}, len(c.OAuth.Providers))
	for _, p := range c.OAuth.Providers {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("OAuth provider %q: %w", p.ID, err)
		}
		if _, dup := seen[p.ID]; dup {
			return fmt.Errorf("OAuth provider %q is configured twice", p.ID)
		}
		seen[p.ID] = struct{}{}
	}

	// Cleanup
	if c.Cleanup.BatchSize <= 0 {
		return errors.New("Cleanup BatchSize must be > 0")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}

	return nil
}
