package zen

import (
	"context"
	"strconv"

	"github.com/google/uuid"
	"github.com/natedunn/convex-zen-sub000/internal/rate"
	"github.com/natedunn/convex-zen-sub000/store"
)

// RequestPasswordReset issues a reset code when email belongs to a user.
// The result is StatusSent either way; only ResetCode differs, and callers
// must not reveal that difference to the requester.
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) (*PasswordResetRequestResult, error) {
	email, err := e.checkEmail(email)
	if err != nil {
		return nil, err
	}

	keys := limitKeys(ctx, actionPasswordReset, email)
	if err := e.throttle(ctx, nil, keys); err != nil {
		return nil, err
	}
	if err := e.recordFailure(ctx, keys); err != nil {
		return nil, err
	}

	e.metricInc(MetricPasswordResetRequest)
	out := &PasswordResetRequestResult{Status: StatusSent}

	user, err := e.store.GetUserByEmail(ctx, email)
	if err != nil {
		if isNotFound(err) {
			e.emitAudit(ctx, auditEventPasswordResetRequest, true, auditEntry{})
			return out, nil
		}
		return nil, storageErr(err)
	}

	issued, err := e.codes.Create(ctx, email, store.VerificationPasswordReset)
	if err != nil {
		return nil, storageErr(err)
	}
	out.ResetCode = issued.Code
	out.ExpiresAt = issued.ExpiresAt

	e.emitAudit(ctx, auditEventPasswordResetRequest, true, auditEntry{userID: user.ID})
	return out, nil
}

// ResetPassword consumes a reset code and replaces the user's password. On
// success every session of the user is invalidated and the sign-in counters
// for the email are cleared. A user who only had OAuth accounts gains a
// password account.
//
// newPassword is checked before the code so a weak password does not burn
// the code.
func (e *Engine) ResetPassword(ctx context.Context, email, code, newPassword string) (VerifyResult, error) {
	if err := e.checkPassword(newPassword, normalizeEmail(email)); err != nil {
		return "", err
	}
	email = normalizeEmail(email)
	if email == "" || code == "" {
		return VerifyInvalid, nil
	}

	result, err := e.codes.Verify(ctx, email, store.VerificationPasswordReset, code)
	if err != nil {
		return "", storageErr(err)
	}
	if result != VerifyValid {
		e.metricInc(MetricPasswordResetFailure)
		e.emitAudit(ctx, auditEventPasswordReset, false, auditEntry{
			metadata: map[string]string{"result": string(result)},
		})
		return result, nil
	}

	user, err := e.store.GetUserByEmail(ctx, email)
	if err != nil {
		if isNotFound(err) {
			return VerifyInvalid, nil
		}
		return "", storageErr(err)
	}

	hash, err := e.hasher.Hash(newPassword)
	if err != nil {
		return "", wrap(ErrCrypto, err)
	}
	if err := e.setPasswordHash(ctx, user.ID, hash); err != nil {
		return "", err
	}

	n, err := e.sessions.InvalidateAll(ctx, user.ID)
	if err != nil {
		return "", storageErr(err)
	}
	if err := e.limiter.Reset(ctx, rate.Key(actionSignIn, "email", email)); err != nil {
		e.log.Warn().Err(err).Str("user_id", user.ID).Msg("reset sign-in counters")
	}

	e.metricInc(MetricPasswordResetSuccess)
	e.emitAudit(ctx, auditEventPasswordReset, true, auditEntry{
		userID:   user.ID,
		metadata: map[string]string{"sessions_invalidated": strconv.Itoa(n)},
	})
	return VerifyValid, nil
}

func (e *Engine) setPasswordHash(ctx context.Context, userID, hash string) error {
	now := e.now()

	account, err := e.store.GetAccountByProvider(ctx, store.CredentialProviderID, userID)
	switch {
	case isNotFound(err):
		err = e.store.CreateAccount(ctx, &store.Account{
			ID:           uuid.NewString(),
			UserID:       userID,
			ProviderID:   store.CredentialProviderID,
			AccountID:    userID,
			PasswordHash: hash,
			CreatedAt:    now,
			UpdatedAt:    now,
		})
	case err == nil:
		account.PasswordHash = hash
		account.UpdatedAt = now
		err = e.store.UpdateAccount(ctx, account)
	}
	if err != nil {
		return storageErr(err)
	}
	return nil
}
