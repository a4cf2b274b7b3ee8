package zen

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/natedunn/convex-zen-sub000/internal"
	"github.com/natedunn/convex-zen-sub000/oauth"
	"github.com/natedunn/convex-zen-sub000/store"
)

// GetAuthorizationURL starts an OAuth flow. It stores a single-use state
// record holding the PKCE verifier and redirectURL, and returns the
// provider URL to send the user to.
//
// redirectURL is optional. It must be a path on this site or an absolute
// http(s) URL.
func (e *Engine) GetAuthorizationURL(ctx context.Context, providerID, redirectURL string) (string, error) {
	client, ok := e.providers[providerID]
	if !ok {
		return "", ErrUnknownProvider
	}
	if err := checkRedirect(redirectURL); err != nil {
		return "", err
	}

	state, err := internal.GenerateState()
	if err != nil {
		return "", wrap(ErrCrypto, err)
	}
	verifier, err := internal.GenerateCodeVerifier()
	if err != nil {
		return "", wrap(ErrCrypto, err)
	}

	now := e.now()
	err = e.store.PutOAuthState(ctx, &store.OAuthState{
		StateHash:    internal.Hash(state),
		ProviderID:   providerID,
		CodeVerifier: verifier,
		RedirectURL:  redirectURL,
		ExpiresAt:    now.Add(e.config.OAuth.StateTTL),
		CreatedAt:    now,
	})
	if err != nil {
		return "", storageErr(err)
	}

	e.metricInc(MetricOAuthAuthorize)
	e.emitAudit(ctx, auditEventOAuthAuthorize, true, auditEntry{
		metadata: map[string]string{"provider": providerID},
	})
	return client.AuthCodeURL(state, internal.CodeChallenge(verifier)), nil
}

// HandleCallback completes an OAuth flow and opens a session.
//
// The state is consumed before anything else, so a callback URL can be
// replayed at most once even if the exchange fails. The provider identity is
// resolved in order: an existing account for the provider subject, then an
// existing user with the same email (linked, and the email marked verified),
// then a new user.
func (e *Engine) HandleCallback(ctx context.Context, req CallbackRequest) (*CallbackResult, error) {
	res, err := e.handleCallback(ctx, req)
	if err != nil {
		e.metricInc(MetricOAuthCallbackFailure)
		e.emitAudit(ctx, auditEventOAuthCallback, false, auditEntry{
			err:      err,
			metadata: map[string]string{"provider": req.ProviderID},
		})
		return nil, err
	}

	e.metricInc(MetricOAuthCallbackSuccess)
	e.emitAudit(ctx, auditEventOAuthCallback, true, auditEntry{
		userID:   res.UserID,
		metadata: map[string]string{"provider": req.ProviderID, "outcome": string(res.Outcome)},
	})
	return res, nil
}

func (e *Engine) handleCallback(ctx context.Context, req CallbackRequest) (*CallbackResult, error) {
	if req.State == "" || req.Code == "" {
		return nil, ErrInvalidOAuthState
	}

	state, err := e.store.ConsumeOAuthState(ctx, internal.Hash(req.State))
	if err != nil {
		if isNotFound(err) {
			return nil, ErrInvalidOAuthState
		}
		return nil, storageErr(err)
	}
	if !e.now().Before(state.ExpiresAt) || state.ProviderID != req.ProviderID {
		return nil, ErrInvalidOAuthState
	}

	client, ok := e.providers[state.ProviderID]
	if !ok {
		return nil, ErrUnknownProvider
	}

	token, err := client.Exchange(ctx, req.Code, state.CodeVerifier)
	if err != nil {
		return nil, wrap(ErrUpstream, err)
	}
	profile, err := client.Profile(ctx, token.AccessToken)
	if err != nil {
		return nil, wrap(ErrUpstream, err)
	}

	user, outcome, err := e.resolveOAuthUser(ctx, state.ProviderID, token, profile)
	if err != nil {
		return nil, err
	}
	if err := e.checkBan(ctx, user); err != nil {
		return nil, err
	}

	issued, err := e.openSession(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	redirect := state.RedirectURL
	if redirect == "" {
		redirect = req.RedirectURL
	}
	return &CallbackResult{
		SessionToken: issued.Token,
		UserID:       user.ID,
		RedirectURL:  redirect,
		Outcome:      outcome,
	}, nil
}

func (e *Engine) resolveOAuthUser(ctx context.Context, providerID string, token *oauth.Token, profile *oauth.Profile) (*store.User, Outcome, error) {
	now := e.now()

	account, err := e.store.GetAccountByProvider(ctx, providerID, profile.ID)
	switch {
	case err == nil:
		user, err := e.store.GetUser(ctx, account.UserID)
		if err != nil {
			return nil, "", storageErr(err)
		}
		if err := e.applyToken(account, token); err != nil {
			return nil, "", err
		}
		account.UpdatedAt = now
		if err := e.store.UpdateAccount(ctx, account); err != nil {
			return nil, "", storageErr(err)
		}
		return user, OutcomeExisting, nil
	case !isNotFound(err):
		return nil, "", storageErr(err)
	}

	if profile.Email == "" {
		return nil, "", ErrOAuthNoEmail
	}

	account = &store.Account{
		ID:         uuid.NewString(),
		ProviderID: providerID,
		AccountID:  profile.ID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := e.applyToken(account, token); err != nil {
		return nil, "", err
	}

	user, err := e.store.GetUserByEmail(ctx, profile.Email)
	switch {
	case err == nil:
		account.UserID = user.ID
		if err := e.store.CreateAccount(ctx, account); err != nil {
			return nil, "", storageErr(err)
		}
		if !user.EmailVerified {
			user.EmailVerified = true
			user.UpdatedAt = now
			if err := e.store.UpdateUser(ctx, user); err != nil {
				return nil, "", storageErr(err)
			}
		}
		return user, OutcomeLinked, nil
	case !isNotFound(err):
		return nil, "", storageErr(err)
	}

	user = &store.User{
		ID:            uuid.NewString(),
		Email:         profile.Email,
		EmailVerified: true,
		Name:          profile.Name,
		Image:         profile.Image,
		Role:          e.config.Account.DefaultRole,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	account.UserID = user.ID
	if err := e.store.CreateUser(ctx, user, account); err != nil {
		if errors.Is(err, store.ErrConflict) {
			// A concurrent callback or sign-up took the email first.
			return nil, "", ErrAccountExists
		}
		return nil, "", storageErr(err)
	}
	return user, OutcomeCreated, nil
}

// applyToken seals the provider tokens onto account. A missing refresh token
// keeps the stored one.
func (e *Engine) applyToken(account *store.Account, token *oauth.Token) error {
	access, err := e.cipher.Seal(token.AccessToken)
	if err != nil {
		return wrap(ErrCrypto, err)
	}
	account.AccessToken = access
	account.AccessTokenExpiresAt = token.Expiry
	account.Scope = token.Scope

	refresh, err := e.cipher.SealOptional(token.RefreshToken)
	if err != nil {
		return wrap(ErrCrypto, err)
	}
	if refresh != nil {
		account.RefreshToken = refresh
	}
	return nil
}

func checkRedirect(raw string) error {
	if raw == "" {
		return nil
	}
	if strings.HasPrefix(raw, "/") && !strings.HasPrefix(raw, "//") {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "https" && u.Scheme != "http") {
		return ErrInvalidRequest
	}
	return nil
}
