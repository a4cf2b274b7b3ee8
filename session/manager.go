package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/natedunn/convex-zen-sub000/internal"
	"github.com/natedunn/convex-zen-sub000/store"
	"github.com/rs/zerolog"
)

var (
	// ErrInvalid is returned for any token that does not resolve to a live
	// session of an unbanned user.
	ErrInvalid = errors.New("session: invalid")
	// ErrStoreUnavailable wraps storage failures.
	ErrStoreUnavailable = errors.New("session: store unavailable")
)

// Config controls session lifetimes.
type Config struct {
	// Duration is the sliding lifetime granted on creation and extension.
	Duration time.Duration
	// AbsoluteLifetime caps a session regardless of activity.
	AbsoluteLifetime time.Duration
	// ExtendThreshold is the idle time after which validation extends.
	ExtendThreshold  time.Duration
	CleanupBatchSize int
}

// DefaultConfig returns 24 hour sessions capped at 14 days.
func DefaultConfig() Config {
	return Config{
		Duration:         24 * time.Hour,
		AbsoluteLifetime: 14 * 24 * time.Hour,
		ExtendThreshold:  30 * time.Minute,
		CleanupBatchSize: 500,
	}
}

// ShortConfig returns 1 hour sessions capped at 12 hours, for deployments
// that prefer frequent re-authentication.
func ShortConfig() Config {
	cfg := DefaultConfig()
	cfg.Duration = time.Hour
	cfg.AbsoluteLifetime = 12 * time.Hour
	return cfg
}

// Store is the storage the manager needs: sessions plus user lookups for the
// ban check.
type Store interface {
	store.Sessions
	GetUser(ctx context.Context, id string) (*store.User, error)
	UpdateUser(ctx context.Context, user *store.User) error
}

// Metadata is recorded on the session at creation.
type Metadata struct {
	IPAddress string
	UserAgent string
}

// Issued carries the bearer token. It is the only place the raw token exists.
type Issued struct {
	Token   string
	Session *store.Session
}

// Result identifies the owner of a validated session.
type Result struct {
	UserID    string
	SessionID string
}

// Manager creates, validates and revokes sessions. Its state lives in the
// Store, so one Manager may be shared by concurrent callers.
type Manager struct {
	store  Store
	config Config
	now    func() time.Time
	log    zerolog.Logger
}

// New creates a [Manager]. A nil now uses time.Now.
func New(s Store, cfg Config, now func() time.Time, log zerolog.Logger) *Manager {
	if now == nil {
		now = time.Now
	}
	return &Manager{
		store:  s,
		config: cfg,
		now:    now,
		log:    log.With().Str("component", "session").Logger(),
	}
}

// Create opens a session for userID and returns the raw token. Only its hash
// is stored.
func (m *Manager) Create(ctx context.Context, userID string, meta Metadata) (*Issued, error) {
	token, err := internal.GenerateToken()
	if err != nil {
		return nil, err
	}

	now := m.now()
	absolute := now.Add(m.config.AbsoluteLifetime)
	sess := &store.Session{
		ID:                uuid.NewString(),
		UserID:            userID,
		TokenHash:         internal.Hash(token),
		ExpiresAt:         earliest(now.Add(m.config.Duration), absolute),
		AbsoluteExpiresAt: absolute,
		LastActiveAt:      now,
		IPAddress:         meta.IPAddress,
		UserAgent:         meta.UserAgent,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := m.store.CreateSession(ctx, sess); err != nil {
		return nil, m.storeErr(err)
	}

	return &Issued{Token: token, Session: sess}, nil
}

// Validate resolves token to its owner. Expired sessions are deleted, idle
// sessions are extended, and with checkBanned a user under an active ban is
// rejected while a lapsed ban is cleared.
func (m *Manager) Validate(ctx context.Context, token string, checkBanned bool) (*Result, error) {
	if token == "" {
		return nil, ErrInvalid
	}

	sess, err := m.store.GetSessionByTokenHash(ctx, internal.Hash(token))
	if err != nil {
		return nil, m.storeErr(err)
	}

	now := m.now()
	if !now.Before(sess.ExpiresAt) || !now.Before(sess.AbsoluteExpiresAt) {
		if err := m.store.DeleteSession(ctx, sess.ID); err != nil {
			m.log.Warn().Err(err).Str("session_id", sess.ID).Msg("delete expired session")
		}
		return nil, ErrInvalid
	}

	if now.Sub(sess.LastActiveAt) > m.config.ExtendThreshold {
		if err := m.extend(ctx, sess, now); err != nil {
			return nil, err
		}
	}

	if checkBanned {
		user, err := m.store.GetUser(ctx, sess.UserID)
		if err != nil {
			return nil, m.storeErr(err)
		}
		if user.BanActive(now) {
			return nil, ErrInvalid
		}
		if user.BanLapsed(now) {
			user.ClearBan()
			user.UpdatedAt = now
			if err := m.store.UpdateUser(ctx, user); err != nil {
				m.log.Warn().Err(err).Str("user_id", user.ID).Msg("clear lapsed ban")
			}
		}
	}

	return &Result{UserID: sess.UserID, SessionID: sess.ID}, nil
}

// Extend pushes the sliding expiry of a live session forward.
func (m *Manager) Extend(ctx context.Context, sessionID string) error {
	sess, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		return m.storeErr(err)
	}
	now := m.now()
	if !now.Before(sess.ExpiresAt) || !now.Before(sess.AbsoluteExpiresAt) {
		return ErrInvalid
	}
	return m.extend(ctx, sess, now)
}

func (m *Manager) extend(ctx context.Context, sess *store.Session, now time.Time) error {
	sess.ExpiresAt = earliest(now.Add(m.config.Duration), sess.AbsoluteExpiresAt)
	sess.LastActiveAt = now
	sess.UpdatedAt = now
	return m.storeErr(m.store.UpdateSession(ctx, sess))
}

// Invalidate deletes the session behind token. Unknown tokens are ignored.
func (m *Manager) Invalidate(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	sess, err := m.store.GetSessionByTokenHash(ctx, internal.Hash(token))
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return m.storeErr(err)
	}
	return m.InvalidateByID(ctx, sess.ID)
}

// InvalidateByID deletes a session by id. A missing session is not an error.
func (m *Manager) InvalidateByID(ctx context.Context, sessionID string) error {
	if err := m.store.DeleteSession(ctx, sessionID); err != nil && !errors.Is(err, store.ErrNotFound) {
		return m.storeErr(err)
	}
	return nil
}

// InvalidateAll deletes every session of userID and returns how many existed.
func (m *Manager) InvalidateAll(ctx context.Context, userID string) (int, error) {
	n, err := m.store.DeleteUserSessions(ctx, userID)
	if err != nil {
		return n, m.storeErr(err)
	}
	return n, nil
}

// Cleanup deletes one batch of sessions past their sliding expiry.
func (m *Manager) Cleanup(ctx context.Context) (int, error) {
	n, err := m.store.DeleteExpiredSessions(ctx, m.now(), m.config.CleanupBatchSize)
	if err != nil {
		return n, m.storeErr(err)
	}
	return n, nil
}

// storeErr maps a missing record to ErrInvalid and wraps everything else.
func (m *Manager) storeErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return ErrInvalid
	default:
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
}

func earliest(a, b time.Time) time.Time {
	if b.Before(a) {
		return b
	}
	return a
}
