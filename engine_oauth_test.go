package zen

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/natedunn/convex-zen-sub000/internal"
	"github.com/natedunn/convex-zen-sub000/oauth"
	"github.com/natedunn/convex-zen-sub000/seal"
	"github.com/natedunn/convex-zen-sub000/store"
)

type fakeProvider struct {
	server *httptest.Server

	mu        sync.Mutex
	profile   map[string]any
	verifiers []string
	noRefresh bool
}

func newFakeProvider(t *testing.T) *fakeProvider {
	t.Helper()

	fp := &fakeProvider{profile: map[string]any{
		"id":    42,
		"email": "octo@example.com",
		"name":  "Octo",
	}}

	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		fp.mu.Lock()
		fp.verifiers = append(fp.verifiers, r.PostForm.Get("code_verifier"))
		noRefresh := fp.noRefresh
		fp.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if r.PostForm.Get("code") != "good-code" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		body := map[string]any{
			"access_token":  "provider-access",
			"refresh_token": "provider-refresh",
			"token_type":    "Bearer",
			"expires_in":    3600,
		}
		if noRefresh {
			delete(body, "refresh_token")
		}
		_ = json.NewEncoder(w).Encode(body)
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer provider-access" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		fp.mu.Lock()
		defer fp.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(fp.profile)
	})

	fp.server = httptest.NewTLSServer(mux)
	t.Cleanup(fp.server.Close)
	return fp
}

func (fp *fakeProvider) setProfile(p map[string]any) {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	fp.profile = p
}

func (fp *fakeProvider) lastVerifier() string {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	if len(fp.verifiers) == 0 {
		return ""
	}
	return fp.verifiers[len(fp.verifiers)-1]
}

func (fp *fakeProvider) config(id string) oauth.ProviderConfig {
	return oauth.ProviderConfig{
		ID:               id,
		ClientID:         "client-id",
		ClientSecret:     "client-secret",
		AuthorizationURL: fp.server.URL + "/authorize",
		TokenURL:         fp.server.URL + "/token",
		UserInfoURL:      fp.server.URL + "/userinfo",
		Scopes:           []string{"read:user", "user:email"},
		CallbackURL:      "https://app.example.com/auth/callback",
	}
}

func newOAuthEnv(t *testing.T) (*testEnv, *fakeProvider) {
	t.Helper()

	fp := newFakeProvider(t)
	env := newTestEnv(t, func(c *Config) {
		c.OAuth.Providers = []oauth.ProviderConfig{fp.config("github"), fp.config("gitlab")}
		c.OAuth.TokenSecret = "test-token-secret"
	}, func(b *Builder) {
		b.WithHTTPClient(fp.server.Client())
	})
	return env, fp
}

// authorize starts a flow and returns the state carried by the provider URL.
func authorize(t *testing.T, env *testEnv, providerID, redirect string) (string, url.Values) {
	t.Helper()

	raw, err := env.engine.GetAuthorizationURL(context.Background(), providerID, redirect)
	if err != nil {
		t.Fatalf("GetAuthorizationURL failed: %v", err)
	}
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse authorization url: %v", err)
	}
	q := u.Query()
	return q.Get("state"), q
}

func TestGetAuthorizationURL(t *testing.T) {
	env, fp := newOAuthEnv(t)

	s1, q := authorize(t, env, "github", "/dashboard")
	s2, _ := authorize(t, env, "github", "")
	if s1 == "" || s1 == s2 {
		t.Fatalf("expected distinct states, got %q and %q", s1, s2)
	}

	if q.Get("client_id") != "client-id" || q.Get("response_type") != "code" {
		t.Fatalf("unexpected query: %v", q)
	}
	if q.Get("code_challenge_method") != "S256" || q.Get("code_challenge") == "" {
		t.Fatalf("missing PKCE parameters: %v", q)
	}
	if q.Get("redirect_uri") != "https://app.example.com/auth/callback" {
		t.Fatalf("unexpected redirect_uri %q", q.Get("redirect_uri"))
	}

	// The verifier sent at exchange time must match the published challenge.
	res, err := env.engine.HandleCallback(context.Background(), CallbackRequest{ProviderID: "github", Code: "good-code", State: s1})
	if err != nil {
		t.Fatalf("HandleCallback failed: %v", err)
	}
	if got := internal.CodeChallenge(fp.lastVerifier()); got != q.Get("code_challenge") {
		t.Fatalf("verifier does not match challenge: %q vs %q", got, q.Get("code_challenge"))
	}
	if res.RedirectURL != "/dashboard" {
		t.Fatalf("expected stored redirect, got %q", res.RedirectURL)
	}
}

func TestGetAuthorizationURLRejectsBadInput(t *testing.T) {
	env, _ := newOAuthEnv(t)
	ctx := context.Background()

	if _, err := env.engine.GetAuthorizationURL(ctx, "myspace", ""); !errors.Is(err, ErrUnknownProvider) {
		t.Fatalf("expected ErrUnknownProvider, got %v", err)
	}
	for _, redirect := range []string{"//evil.example.com", "javascript:alert(1)", "ftp://example.com/x"} {
		if _, err := env.engine.GetAuthorizationURL(ctx, "github", redirect); !errors.Is(err, ErrInvalidRequest) {
			t.Fatalf("redirect %q: expected ErrInvalidRequest, got %v", redirect, err)
		}
	}
	if _, err := env.engine.GetAuthorizationURL(ctx, "github", "https://app.example.com/welcome"); err != nil {
		t.Fatalf("absolute redirect rejected: %v", err)
	}
}

func TestHandleCallbackCreatesThenReusesUser(t *testing.T) {
	env, _ := newOAuthEnv(t)
	ctx := context.Background()

	state, _ := authorize(t, env, "github", "")
	first, err := env.engine.HandleCallback(ctx, CallbackRequest{ProviderID: "github", Code: "good-code", State: state, RedirectURL: "/fallback"})
	if err != nil {
		t.Fatalf("HandleCallback failed: %v", err)
	}
	if first.Outcome != OutcomeCreated || first.RedirectURL != "/fallback" {
		t.Fatalf("unexpected first result: %+v", first)
	}
	if !tokenPattern.MatchString(first.SessionToken) {
		t.Fatalf("unexpected session token %q", first.SessionToken)
	}

	user, err := env.store.GetUser(ctx, first.UserID)
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if user.Email != "octo@example.com" || !user.EmailVerified || user.Name != "Octo" || user.Role != "user" {
		t.Fatalf("unexpected created user: %+v", user)
	}

	account, err := env.store.GetAccountByProvider(ctx, "github", "42")
	if err != nil {
		t.Fatalf("GetAccountByProvider failed: %v", err)
	}
	enc, ok := account.AccessToken.(seal.Encrypted)
	if !ok {
		t.Fatalf("access token stored as %T", account.AccessToken)
	}
	if string(enc.Ciphertext) == "provider-access" {
		t.Fatal("access token stored in clear")
	}
	access, err := env.engine.cipher.Open(account.AccessToken)
	if err != nil || access != "provider-access" {
		t.Fatalf("Open access token = %q, %v", access, err)
	}
	refresh, err := env.engine.cipher.Open(account.RefreshToken)
	if err != nil || refresh != "provider-refresh" {
		t.Fatalf("Open refresh token = %q, %v", refresh, err)
	}
	if account.AccessTokenExpiresAt.IsZero() {
		t.Fatal("expected token expiry to be recorded")
	}

	state, _ = authorize(t, env, "github", "")
	second, err := env.engine.HandleCallback(ctx, CallbackRequest{ProviderID: "github", Code: "good-code", State: state})
	if err != nil {
		t.Fatalf("HandleCallback failed: %v", err)
	}
	if second.Outcome != OutcomeExisting || second.UserID != first.UserID {
		t.Fatalf("expected existing user %s, got %+v", first.UserID, second)
	}
}

func TestHandleCallbackKeepsRefreshTokenWhenOmitted(t *testing.T) {
	env, fp := newOAuthEnv(t)
	ctx := context.Background()

	state, _ := authorize(t, env, "github", "")
	if _, err := env.engine.HandleCallback(ctx, CallbackRequest{ProviderID: "github", Code: "good-code", State: state}); err != nil {
		t.Fatalf("HandleCallback failed: %v", err)
	}

	fp.mu.Lock()
	fp.noRefresh = true
	fp.mu.Unlock()

	state, _ = authorize(t, env, "github", "")
	if _, err := env.engine.HandleCallback(ctx, CallbackRequest{ProviderID: "github", Code: "good-code", State: state}); err != nil {
		t.Fatalf("HandleCallback without refresh token failed: %v", err)
	}

	account, err := env.store.GetAccountByProvider(ctx, "github", "42")
	if err != nil {
		t.Fatalf("GetAccountByProvider failed: %v", err)
	}
	refresh, err := env.engine.cipher.Open(account.RefreshToken)
	if err != nil || refresh != "provider-refresh" {
		t.Fatalf("expected stored refresh token to survive, got %q, %v", refresh, err)
	}
}

func TestHandleCallbackLinksExistingEmail(t *testing.T) {
	env, fp := newOAuthEnv(t)
	ctx := context.Background()

	signUp, err := env.engine.SignUp(ctx, SignUpRequest{Email: "octo@example.com", Password: testPassword})
	if err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}
	fp.setProfile(map[string]any{"sub": "gl-7", "email": "Octo@Example.com"})

	state, _ := authorize(t, env, "gitlab", "")
	res, err := env.engine.HandleCallback(ctx, CallbackRequest{ProviderID: "gitlab", Code: "good-code", State: state})
	if err != nil {
		t.Fatalf("HandleCallback failed: %v", err)
	}
	if res.Outcome != OutcomeLinked || res.UserID != signUp.UserID {
		t.Fatalf("expected link to %s, got %+v", signUp.UserID, res)
	}

	user, _ := env.store.GetUser(ctx, signUp.UserID)
	if !user.EmailVerified {
		t.Fatal("linking should mark the email verified")
	}
	accounts, err := env.store.ListUserAccounts(ctx, signUp.UserID)
	if err != nil {
		t.Fatalf("ListUserAccounts failed: %v", err)
	}
	if len(accounts) != 2 {
		t.Fatalf("expected credential and gitlab accounts, got %d", len(accounts))
	}
	env.signIn(t, "octo@example.com")
}

func TestHandleCallbackStateIsSingleUse(t *testing.T) {
	env, _ := newOAuthEnv(t)
	ctx := context.Background()

	state, _ := authorize(t, env, "github", "")
	req := CallbackRequest{ProviderID: "github", Code: "good-code", State: state}
	if _, err := env.engine.HandleCallback(ctx, req); err != nil {
		t.Fatalf("HandleCallback failed: %v", err)
	}
	if _, err := env.engine.HandleCallback(ctx, req); !errors.Is(err, ErrInvalidOAuthState) {
		t.Fatalf("expected ErrInvalidOAuthState on replay, got %v", err)
	}
}

func TestHandleCallbackRejectsBadState(t *testing.T) {
	env, _ := newOAuthEnv(t)
	ctx := context.Background()

	if _, err := env.engine.HandleCallback(ctx, CallbackRequest{ProviderID: "github", Code: "good-code", State: "forged"}); !errors.Is(err, ErrInvalidOAuthState) {
		t.Fatalf("forged state: %v", err)
	}
	if _, err := env.engine.HandleCallback(ctx, CallbackRequest{ProviderID: "github", Code: "good-code"}); !errors.Is(err, ErrInvalidOAuthState) {
		t.Fatalf("missing state: %v", err)
	}

	state, _ := authorize(t, env, "github", "")
	if _, err := env.engine.HandleCallback(ctx, CallbackRequest{ProviderID: "gitlab", Code: "good-code", State: state}); !errors.Is(err, ErrInvalidOAuthState) {
		t.Fatalf("provider mismatch: %v", err)
	}

	state, _ = authorize(t, env, "github", "")
	env.clock.Advance(10 * time.Minute)
	if _, err := env.engine.HandleCallback(ctx, CallbackRequest{ProviderID: "github", Code: "good-code", State: state}); !errors.Is(err, ErrInvalidOAuthState) {
		t.Fatalf("expired state: %v", err)
	}
}

func TestHandleCallbackUpstreamFailureConsumesState(t *testing.T) {
	env, _ := newOAuthEnv(t)
	ctx := context.Background()

	state, _ := authorize(t, env, "github", "")
	_, err := env.engine.HandleCallback(ctx, CallbackRequest{ProviderID: "github", Code: "bad-code", State: state})
	if !errors.Is(err, ErrUpstream) || KindOf(err) != KindUpstream {
		t.Fatalf("expected upstream error, got %v", err)
	}
	if !errors.Is(err, oauth.ErrUpstream) {
		t.Fatalf("expected the provider error to be wrapped, got %v", err)
	}

	if _, err := env.engine.HandleCallback(ctx, CallbackRequest{ProviderID: "github", Code: "good-code", State: state}); !errors.Is(err, ErrInvalidOAuthState) {
		t.Fatalf("state survived a failed exchange: %v", err)
	}

	if got := env.engine.MetricsSnapshot().Counters[MetricOAuthCallbackFailure]; got != 2 {
		t.Fatalf("expected 2 callback failures, got %d", got)
	}
}

func TestHandleCallbackRequiresEmailForNewUsers(t *testing.T) {
	env, fp := newOAuthEnv(t)
	fp.setProfile(map[string]any{"id": "no-mail"})

	state, _ := authorize(t, env, "github", "")
	_, err := env.engine.HandleCallback(context.Background(), CallbackRequest{ProviderID: "github", Code: "good-code", State: state})
	if !errors.Is(err, ErrOAuthNoEmail) {
		t.Fatalf("expected ErrOAuthNoEmail, got %v", err)
	}
}

func TestHandleCallbackRejectsBannedUser(t *testing.T) {
	env, _ := newOAuthEnv(t)
	ctx := context.Background()

	state, _ := authorize(t, env, "github", "")
	res, err := env.engine.HandleCallback(ctx, CallbackRequest{ProviderID: "github", Code: "good-code", State: state})
	if err != nil {
		t.Fatalf("HandleCallback failed: %v", err)
	}

	user, _ := env.store.GetUser(ctx, res.UserID)
	user.Banned = true
	if err := env.store.UpdateUser(ctx, user); err != nil {
		t.Fatalf("UpdateUser failed: %v", err)
	}

	state, _ = authorize(t, env, "github", "")
	if _, err := env.engine.HandleCallback(ctx, CallbackRequest{ProviderID: "github", Code: "good-code", State: state}); !errors.Is(err, ErrUserBanned) {
		t.Fatalf("expected ErrUserBanned, got %v", err)
	}
}

func TestOAuthStateStoredHashed(t *testing.T) {
	env, _ := newOAuthEnv(t)
	ctx := context.Background()

	state, _ := authorize(t, env, "github", "/next")
	rec, err := env.store.ConsumeOAuthState(ctx, internal.Hash(state))
	if err != nil {
		t.Fatalf("state not stored under its hash: %v", err)
	}
	if rec.ProviderID != "github" || rec.RedirectURL != "/next" || len(rec.CodeVerifier) != 43 {
		t.Fatalf("unexpected state record: %+v", rec)
	}
	if _, err := env.store.ConsumeOAuthState(ctx, state); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("raw state should not be a key, got %v", err)
	}
}
