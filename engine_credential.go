package zen

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/natedunn/convex-zen-sub000/internal/rate"
	"github.com/natedunn/convex-zen-sub000/session"
	"github.com/natedunn/convex-zen-sub000/store"
)

const (
	actionSignIn        = "sign-in"
	actionSignUp        = "sign-up"
	actionPasswordReset = "password-reset"
	actionVerification  = "email-verification"
)

// limitKeys returns the email and, when the context carries one, the client
// IP key for action.
func limitKeys(ctx context.Context, action, email string) []string {
	keys := []string{rate.Key(action, "email", email)}
	if ip := clientIPFromContext(ctx); ip != "" {
		keys = append(keys, rate.Key(action, "ip", ip))
	}
	return keys
}

// throttle returns a rate limited error built from base when any key is
// limited.
func (e *Engine) throttle(ctx context.Context, base *Error, keys []string) error {
	d, err := e.limiter.CheckAll(ctx, keys...)
	if err != nil {
		return storageErr(err)
	}
	if d.Limited {
		e.metricInc(MetricRateLimitHit)
		return rateLimited(base, d.RetryAfter)
	}
	return nil
}

func (e *Engine) recordFailure(ctx context.Context, keys []string) error {
	for _, key := range keys {
		if err := e.limiter.Increment(ctx, key); err != nil {
			return storageErr(err)
		}
	}
	return nil
}

// SignUp registers an email and password user and issues an email
// verification code. The user cannot satisfy RequireEmailVerified until
// VerifyEmail succeeds.
//
// Every attempt counts against the sign-up rate limit, so probing for
// registered addresses is throttled the same as creating accounts.
func (e *Engine) SignUp(ctx context.Context, req SignUpRequest) (*SignUpResult, error) {
	email, err := e.checkEmail(req.Email)
	if err != nil {
		return nil, err
	}
	if err := e.checkPassword(req.Password, email, req.Name); err != nil {
		return nil, err
	}

	keys := limitKeys(ctx, actionSignUp, email)
	if err := e.throttle(ctx, nil, keys); err != nil {
		if KindOf(err) == KindRateLimited {
			e.metricInc(MetricSignUpRateLimited)
		}
		return nil, err
	}
	if err := e.recordFailure(ctx, keys); err != nil {
		return nil, err
	}

	if _, err := e.store.GetUserByEmail(ctx, email); err == nil {
		e.metricInc(MetricSignUpDuplicate)
		e.emitAudit(ctx, auditEventSignUp, false, auditEntry{err: ErrAccountExists})
		return nil, ErrAccountExists
	} else if !isNotFound(err) {
		return nil, storageErr(err)
	}

	hash, err := e.hasher.Hash(req.Password)
	if err != nil {
		return nil, wrap(ErrCrypto, err)
	}

	now := e.now()
	user := &store.User{
		ID:        uuid.NewString(),
		Email:     email,
		Name:      req.Name,
		Role:      e.config.Account.DefaultRole,
		CreatedAt: now,
		UpdatedAt: now,
	}
	account := &store.Account{
		ID:           uuid.NewString(),
		UserID:       user.ID,
		ProviderID:   store.CredentialProviderID,
		AccountID:    user.ID,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := e.store.CreateUser(ctx, user, account); err != nil {
		if errors.Is(err, store.ErrConflict) {
			e.metricInc(MetricSignUpDuplicate)
			return nil, ErrAccountExists
		}
		return nil, storageErr(err)
	}

	issued, err := e.codes.Create(ctx, email, store.VerificationEmail)
	if err != nil {
		return nil, storageErr(err)
	}

	e.metricInc(MetricSignUpSuccess)
	e.emitAudit(ctx, auditEventSignUp, true, auditEntry{userID: user.ID})

	return &SignUpResult{
		Status:           StatusVerificationRequired,
		UserID:           user.ID,
		VerificationCode: issued.Code,
		ExpiresAt:        issued.ExpiresAt,
	}, nil
}

// SignIn authenticates an email and password and opens a session.
//
// Unknown emails, users without a password and wrong passwords all fail
// with ErrInvalidCredentials and count against the per-email and per-IP
// limits. Once a limit trips, SignIn fails with a KindRateLimited error
// before the password is checked.
func (e *Engine) SignIn(ctx context.Context, req SignInRequest) (*SignInResult, error) {
	email := normalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		return nil, ErrInvalidCredentials
	}

	keys := limitKeys(ctx, actionSignIn, email)
	if err := e.throttle(ctx, errSignInRateLimited, keys); err != nil {
		if KindOf(err) == KindRateLimited {
			e.metricInc(MetricSignInRateLimited)
			e.emitAudit(ctx, auditEventSignInRateLimited, false, auditEntry{err: err})
		}
		return nil, err
	}

	user, account, err := e.credentialAccount(ctx, email)
	if err != nil {
		return nil, e.signInFailed(ctx, keys, "", err)
	}

	ok, err := e.hasher.Verify(req.Password, account.PasswordHash)
	if err != nil || !ok {
		return nil, e.signInFailed(ctx, keys, user.ID, ErrInvalidCredentials)
	}

	if (req.RequireEmailVerified || e.config.EmailVerification.RequireForSignIn) && !user.EmailVerified {
		e.metricInc(MetricSignInFailure)
		e.emitAudit(ctx, auditEventSignInFailure, false, auditEntry{userID: user.ID, err: ErrEmailNotVerified})
		return nil, ErrEmailNotVerified
	}

	if err := e.checkBan(ctx, user); err != nil {
		e.metricInc(MetricSignInFailure)
		e.emitAudit(ctx, auditEventSignInFailure, false, auditEntry{userID: user.ID, err: err})
		return nil, err
	}

	if err := e.limiter.Reset(ctx, keys...); err != nil {
		e.log.Warn().Err(err).Str("user_id", user.ID).Msg("reset sign-in counters")
	}

	if e.config.Password.UpgradeOnLogin {
		e.upgradePasswordHash(ctx, account, req.Password)
	}

	issued, err := e.openSession(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricSignInSuccess)
	e.emitAudit(ctx, auditEventSignInSuccess, true, auditEntry{userID: user.ID, sessionID: issued.Session.ID})

	return &SignInResult{SessionToken: issued.Token, UserID: user.ID}, nil
}

func (e *Engine) signInFailed(ctx context.Context, keys []string, userID string, cause error) error {
	if KindOf(cause) == KindInternal {
		return cause
	}
	if err := e.recordFailure(ctx, keys); err != nil {
		return err
	}
	e.metricInc(MetricSignInFailure)
	e.emitAudit(ctx, auditEventSignInFailure, false, auditEntry{userID: userID, err: ErrInvalidCredentials})
	return ErrInvalidCredentials
}

// credentialAccount loads the user and its password account. A missing user
// or a user without a password both report ErrInvalidCredentials.
func (e *Engine) credentialAccount(ctx context.Context, email string) (*store.User, *store.Account, error) {
	user, err := e.store.GetUserByEmail(ctx, email)
	if err != nil {
		if isNotFound(err) {
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, storageErr(err)
	}
	account, err := e.store.GetAccountByProvider(ctx, store.CredentialProviderID, user.ID)
	if err != nil {
		if isNotFound(err) {
			return user, nil, ErrInvalidCredentials
		}
		return nil, nil, storageErr(err)
	}
	return user, account, nil
}

// upgradePasswordHash re-hashes with the current parameters. Failures are
// logged; the sign-in already succeeded.
func (e *Engine) upgradePasswordHash(ctx context.Context, account *store.Account, plaintext string) {
	stale, err := e.hasher.NeedsUpgrade(account.PasswordHash)
	if err != nil || !stale {
		return
	}
	hash, err := e.hasher.Hash(plaintext)
	if err != nil {
		e.log.Warn().Err(err).Str("user_id", account.UserID).Msg("rehash password")
		return
	}
	account.PasswordHash = hash
	account.UpdatedAt = e.now()
	if err := e.store.UpdateAccount(ctx, account); err != nil {
		e.log.Warn().Err(err).Str("user_id", account.UserID).Msg("store upgraded password hash")
	}
}

// checkBan rejects a user under an active ban and clears a lapsed one.
func (e *Engine) checkBan(ctx context.Context, user *store.User) error {
	now := e.now()
	if user.BanActive(now) {
		return ErrUserBanned
	}
	if user.BanLapsed(now) {
		user.ClearBan()
		user.UpdatedAt = now
		if err := e.store.UpdateUser(ctx, user); err != nil {
			e.log.Warn().Err(err).Str("user_id", user.ID).Msg("clear lapsed ban")
		}
	}
	return nil
}

func (e *Engine) openSession(ctx context.Context, userID string) (*session.Issued, error) {
	issued, err := e.sessions.Create(ctx, userID, session.Metadata{
		IPAddress: clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
	})
	if err != nil {
		return nil, storageErr(err)
	}
	e.metricInc(MetricSessionCreated)
	return issued, nil
}
