package verification

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/natedunn/convex-zen-sub000/internal"
	"github.com/natedunn/convex-zen-sub000/store"
)

// Result is the outcome of checking a presented code.
type Result string

const (
	Valid           Result = "valid"
	Invalid         Result = "invalid"
	Expired         Result = "expired"
	TooManyAttempts Result = "too_many_attempts"
)

var (
	// ErrStoreUnavailable wraps storage failures.
	ErrStoreUnavailable = errors.New("verification: store unavailable")
	// ErrUnknownType is returned for a type without a configured TTL.
	ErrUnknownType = errors.New("verification: unknown type")
)

// Config controls code lifetimes and the attempt cap.
type Config struct {
	EmailVerificationTTL time.Duration
	PasswordResetTTL     time.Duration
	MaxAttempts          int

	// PasswordResetMaxAttempts overrides MaxAttempts for reset codes when > 0.
	PasswordResetMaxAttempts int

	CleanupBatchSize int
}

// DefaultConfig returns 60 minute email codes, 15 minute reset codes and a
// cap of 10 wrong guesses.
func DefaultConfig() Config {
	return Config{
		EmailVerificationTTL: 60 * time.Minute,
		PasswordResetTTL:     15 * time.Minute,
		MaxAttempts:          10,
		CleanupBatchSize:     500,
	}
}

// Issued is a freshly created code. Code is the only copy of the plaintext.
type Issued struct {
	Code      string
	ExpiresAt time.Time
}

// Manager issues and checks single-use codes on top of a store.Verifications.
type Manager struct {
	store  store.Verifications
	config Config
	now    func() time.Time
}

// New returns a Manager. A nil now uses time.Now.
func New(s store.Verifications, cfg Config, now func() time.Time) *Manager {
	if now == nil {
		now = time.Now
	}
	return &Manager{store: s, config: cfg, now: now}
}

func (m *Manager) ttl(typ store.VerificationType) (time.Duration, error) {
	switch typ {
	case store.VerificationEmail:
		return m.config.EmailVerificationTTL, nil
	case store.VerificationPasswordReset:
		return m.config.PasswordResetTTL, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownType, typ)
	}
}

func (m *Manager) maxAttempts(typ store.VerificationType) int {
	if typ == store.VerificationPasswordReset && m.config.PasswordResetMaxAttempts > 0 {
		return m.config.PasswordResetMaxAttempts
	}
	return m.config.MaxAttempts
}

// Create issues a new code for (identifier, typ), replacing any earlier one.
func (m *Manager) Create(ctx context.Context, identifier string, typ store.VerificationType) (Issued, error) {
	ttl, err := m.ttl(typ)
	if err != nil {
		return Issued{}, err
	}

	code, err := internal.GenerateCode()
	if err != nil {
		return Issued{}, err
	}

	now := m.now()
	rec := &store.Verification{
		Identifier: identifier,
		Type:       typ,
		CodeHash:   internal.Hash(code),
		ExpiresAt:  now.Add(ttl),
		CreatedAt:  now,
	}
	if err := m.store.PutVerification(ctx, rec); err != nil {
		return Issued{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return Issued{Code: code, ExpiresAt: rec.ExpiresAt}, nil
}

// Verify checks code against the stored record. A wrong guess counts as an
// attempt; a match or an expired record deletes it.
func (m *Manager) Verify(ctx context.Context, identifier string, typ store.VerificationType, code string) (Result, error) {
	presented := internal.Hash(strings.ToUpper(strings.TrimSpace(code)))

	limit := m.maxAttempts(typ)

	var result Result
	err := m.store.UpdateVerification(ctx, identifier, typ, func(current *store.Verification) (*store.Verification, error) {
		now := m.now()

		switch {
		case current == nil:
			result = Invalid
			return nil, nil
		case !now.Before(current.ExpiresAt):
			result = Expired
			return nil, nil
		case current.Attempts >= limit:
			result = TooManyAttempts
			return current, nil
		}

		if subtle.ConstantTimeCompare([]byte(presented), []byte(current.CodeHash)) == 1 {
			result = Valid
			return nil, nil
		}

		current.Attempts++
		if current.Attempts >= limit {
			result = TooManyAttempts
		} else {
			result = Invalid
		}
		return current, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return result, nil
}

// Revoke deletes any outstanding code for (identifier, typ).
func (m *Manager) Revoke(ctx context.Context, identifier string, typ store.VerificationType) error {
	if err := m.store.DeleteVerification(ctx, identifier, typ); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Cleanup removes one batch of expired records and reports how many went.
func (m *Manager) Cleanup(ctx context.Context) (int, error) {
	n, err := m.store.DeleteExpiredVerifications(ctx, m.now(), m.config.CleanupBatchSize)
	if err != nil {
		return n, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return n, nil
}
