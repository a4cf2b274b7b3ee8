package zen

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	internalaudit "github.com/natedunn/convex-zen-sub000/internal/audit"
	"github.com/natedunn/convex-zen-sub000/internal/rate"
	"github.com/natedunn/convex-zen-sub000/internal/verification"
	"github.com/natedunn/convex-zen-sub000/oauth"
	"github.com/natedunn/convex-zen-sub000/password"
	"github.com/natedunn/convex-zen-sub000/seal"
	"github.com/natedunn/convex-zen-sub000/session"
	"github.com/natedunn/convex-zen-sub000/store"
	"github.com/rs/zerolog"
)

// Builder assembles an Engine. A Builder is single-use: Build fails on the
// second call.
type Builder struct {
	config     Config
	store      store.Store
	log        zerolog.Logger
	auditSink  AuditSink
	httpClient *http.Client
	now        func() time.Time

	built bool
}

// New returns a Builder holding DefaultConfig and a no-op logger.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
		log:    zerolog.Nop(),
	}
}

// WithConfig replaces the configuration. Build validates it.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithStore sets the storage backend. It is required.
func (b *Builder) WithStore(s store.Store) *Builder {
	b.store = s
	return b
}

// WithLogger sets the logger. The default discards everything.
func (b *Builder) WithLogger(log zerolog.Logger) *Builder {
	b.log = log
	return b
}

// WithAuditSink sets the destination for audit events. Events flow only
// when Config.Audit.Enabled is set.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithHTTPClient sets the client used for OAuth provider calls. Its Timeout
// is replaced by Config.OAuth.HTTPTimeout when unset.
func (b *Builder) WithHTTPClient(c *http.Client) *Builder {
	b.httpClient = c
	return b
}

// WithClock overrides time.Now for every component.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Build validates the configuration and returns a ready Engine. It fails
// when no store is set.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.store == nil {
		return nil, errors.New("store required")
	}

	now := b.now
	if now == nil {
		now = time.Now
	}

	// -------- PASSWORD HASHER --------
	hasher, err := password.NewArgon2(password.Config{
		Memory:           cfg.Password.Memory,
		Time:             cfg.Password.Time,
		Parallelism:      cfg.Password.Parallelism,
		SaltLength:       cfg.Password.SaltLength,
		KeyLength:        cfg.Password.KeyLength,
		MaxPasswordBytes: cfg.Password.MaxLength,
	})
	if err != nil {
		return nil, err
	}

	// -------- OAUTH PROVIDERS --------
	var cipher *seal.Cipher
	providers := make(map[string]*oauth.Client, len(cfg.OAuth.Providers))
	if len(cfg.OAuth.Providers) > 0 {
		cipher, err = seal.NewCipher(cfg.OAuth.TokenSecret)
		if err != nil {
			return nil, err
		}

		httpClient := b.httpClient
		if httpClient == nil {
			httpClient = &http.Client{}
		}
		if httpClient.Timeout == 0 {
			c := *httpClient
			c.Timeout = cfg.OAuth.HTTPTimeout
			httpClient = &c
		}

		for _, p := range cfg.OAuth.Providers {
			client, err := oauth.NewClient(p, httpClient)
			if err != nil {
				return nil, fmt.Errorf("oauth provider %q: %w", p.ID, err)
			}
			providers[p.ID] = client
		}
	}

	log := b.log.With().Str("component", "engine").Logger()

	e := &Engine{
		config: cfg,
		store:  b.store,
		sessions: session.New(b.store, session.Config{
			Duration:         cfg.Session.Duration,
			AbsoluteLifetime: cfg.Session.AbsoluteLifetime,
			ExtendThreshold:  cfg.Session.ExtendThreshold,
			CleanupBatchSize: cfg.Cleanup.BatchSize,
		}, now, b.log),
		limiter: rate.New(b.store, rate.Config{
			Window:      cfg.RateLimit.Window,
			Lockout:     cfg.RateLimit.Lockout,
			MaxAttempts: cfg.RateLimit.MaxAttempts,
		}, now),
		codes: verification.New(b.store, verification.Config{
			EmailVerificationTTL:     cfg.EmailVerification.CodeTTL,
			PasswordResetTTL:         cfg.PasswordReset.CodeTTL,
			MaxAttempts:              cfg.EmailVerification.MaxAttempts,
			PasswordResetMaxAttempts: cfg.PasswordReset.MaxAttempts,
			CleanupBatchSize:         cfg.Cleanup.BatchSize,
		}, now),
		hasher:    hasher,
		cipher:    cipher,
		providers: providers,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		audit: internalaudit.NewDispatcher(internalaudit.Config{
			Enabled:    cfg.Audit.Enabled,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
			Logger:     log,
		}, b.auditSink),
		metrics: NewMetrics(cfg.Metrics),
		log:     log,
		now:     now,
	}

	b.built = true
	return e, nil
}
