package zen

import (
	"context"

	"github.com/natedunn/convex-zen-sub000/store"
)

// VerifyEmail checks an email verification code and marks the user verified
// on success. A valid code is consumed; it cannot be replayed.
func (e *Engine) VerifyEmail(ctx context.Context, email, code string) (VerifyResult, error) {
	email = normalizeEmail(email)
	if email == "" || code == "" {
		return VerifyInvalid, nil
	}

	result, err := e.codes.Verify(ctx, email, store.VerificationEmail, code)
	if err != nil {
		return "", storageErr(err)
	}
	if result != VerifyValid {
		e.metricInc(MetricEmailVerificationFailure)
		e.emitAudit(ctx, auditEventEmailVerification, false, auditEntry{
			metadata: map[string]string{"result": string(result)},
		})
		return result, nil
	}

	user, err := e.store.GetUserByEmail(ctx, email)
	if err != nil {
		if isNotFound(err) {
			// Deleted between issuing and verifying the code.
			return VerifyInvalid, nil
		}
		return "", storageErr(err)
	}
	if !user.EmailVerified {
		user.EmailVerified = true
		user.UpdatedAt = e.now()
		if err := e.store.UpdateUser(ctx, user); err != nil {
			return "", storageErr(err)
		}
	}

	e.metricInc(MetricEmailVerificationSuccess)
	e.emitAudit(ctx, auditEventEmailVerification, true, auditEntry{userID: user.ID})
	return VerifyValid, nil
}

// ResendVerification issues a fresh email verification code, replacing any
// outstanding one. The result reports StatusSent whether or not the email
// belongs to an unverified user; VerificationCode is set only when it does.
func (e *Engine) ResendVerification(ctx context.Context, email string) (*ResendVerificationResult, error) {
	email, err := e.checkEmail(email)
	if err != nil {
		return nil, err
	}

	keys := limitKeys(ctx, actionVerification, email)
	if err := e.throttle(ctx, nil, keys); err != nil {
		return nil, err
	}
	if err := e.recordFailure(ctx, keys); err != nil {
		return nil, err
	}

	out := &ResendVerificationResult{Status: StatusSent}

	user, err := e.store.GetUserByEmail(ctx, email)
	switch {
	case isNotFound(err):
		return out, nil
	case err != nil:
		return nil, storageErr(err)
	case user.EmailVerified:
		return out, nil
	}

	issued, err := e.codes.Create(ctx, email, store.VerificationEmail)
	if err != nil {
		return nil, storageErr(err)
	}
	out.VerificationCode = issued.Code
	out.ExpiresAt = issued.ExpiresAt

	e.emitAudit(ctx, auditEventVerificationResend, true, auditEntry{userID: user.ID})
	return out, nil
}
