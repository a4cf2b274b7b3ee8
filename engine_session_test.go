package zen

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/natedunn/convex-zen-sub000/internal"
)

func TestValidateSessionStableIdentity(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	userID := env.signUpVerified(t, "a@example.com")
	token := env.signIn(t, "a@example.com")

	first, err := env.engine.ValidateSession(ctx, token)
	if err != nil {
		t.Fatalf("ValidateSession failed: %v", err)
	}
	env.clock.Advance(2 * time.Hour)
	second, err := env.engine.ValidateSession(ctx, token)
	if err != nil {
		t.Fatalf("ValidateSession failed: %v", err)
	}
	if first.SessionID != second.SessionID || second.UserID != userID {
		t.Fatalf("identity changed: %+v then %+v", first, second)
	}
}

func TestValidateSessionRejectsUnknownTokens(t *testing.T) {
	env := newTestEnv(t, nil)

	for _, token := range []string{"", "not-a-token", internal.Hash("anything")} {
		if _, err := env.engine.ValidateSession(context.Background(), token); !errors.Is(err, ErrInvalidSession) {
			t.Fatalf("ValidateSession(%q) = %v", token, err)
		}
	}
	if got := env.engine.MetricsSnapshot().Counters[MetricSessionRejected]; got != 3 {
		t.Fatalf("expected 3 rejections, got %d", got)
	}
}

func TestSessionSlidingExpiryConvergesOnAbsolute(t *testing.T) {
	env := newTestEnv(t, func(c *Config) { c.Session = ShortSessionConfig() })
	ctx := context.Background()
	env.signUpVerified(t, "a@example.com")

	created := env.clock.Now()
	token := env.signIn(t, "a@example.com")
	absolute := created.Add(12 * time.Hour)

	for i := 1; i <= 15; i++ {
		env.clock.Advance(45 * time.Minute)
		if _, err := env.engine.ValidateSession(ctx, token); err != nil {
			t.Fatalf("validate %d at %v: %v", i, env.clock.Now().Sub(created), err)
		}
		sess, err := env.store.GetSessionByTokenHash(ctx, internal.Hash(token))
		if err != nil {
			t.Fatalf("GetSessionByTokenHash failed: %v", err)
		}
		if sess.ExpiresAt.After(sess.AbsoluteExpiresAt) {
			t.Fatalf("sliding expiry %v passed absolute %v", sess.ExpiresAt, sess.AbsoluteExpiresAt)
		}
		if !sess.AbsoluteExpiresAt.Equal(absolute) {
			t.Fatalf("absolute expiry moved to %v", sess.AbsoluteExpiresAt)
		}
	}

	sess, _ := env.store.GetSessionByTokenHash(ctx, internal.Hash(token))
	if !sess.ExpiresAt.Equal(absolute) {
		t.Fatalf("expected sliding expiry capped at %v, got %v", absolute, sess.ExpiresAt)
	}

	env.clock.Advance(45 * time.Minute)
	if _, err := env.engine.ValidateSession(ctx, token); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("expected absolute expiry to end the session, got %v", err)
	}
}

func TestSessionIdleExpiry(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	env.signUpVerified(t, "a@example.com")
	token := env.signIn(t, "a@example.com")

	env.clock.Advance(24 * time.Hour)
	if _, err := env.engine.ValidateSession(ctx, token); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("expected idle session to expire, got %v", err)
	}
}

func TestSessionNotExtendedWithinThreshold(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	env.signUpVerified(t, "a@example.com")
	token := env.signIn(t, "a@example.com")

	before, _ := env.store.GetSessionByTokenHash(ctx, internal.Hash(token))
	env.clock.Advance(10 * time.Minute)
	if _, err := env.engine.ValidateSession(ctx, token); err != nil {
		t.Fatalf("ValidateSession failed: %v", err)
	}
	after, _ := env.store.GetSessionByTokenHash(ctx, internal.Hash(token))
	if !after.ExpiresAt.Equal(before.ExpiresAt) {
		t.Fatalf("session extended inside threshold: %v -> %v", before.ExpiresAt, after.ExpiresAt)
	}

	env.clock.Advance(time.Hour)
	if _, err := env.engine.ValidateSession(ctx, token); err != nil {
		t.Fatalf("ValidateSession failed: %v", err)
	}
	after, _ = env.store.GetSessionByTokenHash(ctx, internal.Hash(token))
	if want := env.clock.Now().Add(24 * time.Hour); !after.ExpiresAt.Equal(want) {
		t.Fatalf("expected extension to %v, got %v", want, after.ExpiresAt)
	}
}

func TestInvalidateSession(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	env.signUpVerified(t, "a@example.com")
	token := env.signIn(t, "a@example.com")
	other := env.signIn(t, "a@example.com")

	if err := env.engine.InvalidateSession(ctx, token); err != nil {
		t.Fatalf("InvalidateSession failed: %v", err)
	}
	if err := env.engine.InvalidateSession(ctx, token); err != nil {
		t.Fatalf("second InvalidateSession should be a no-op, got %v", err)
	}
	if _, err := env.engine.ValidateSession(ctx, token); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("expected invalidated session, got %v", err)
	}
	if _, err := env.engine.ValidateSession(ctx, other); err != nil {
		t.Fatalf("other session affected: %v", err)
	}
}

func TestInvalidateAllSessions(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	userID := env.signUpVerified(t, "a@example.com")
	tokens := []string{env.signIn(t, "a@example.com"), env.signIn(t, "a@example.com"), env.signIn(t, "a@example.com")}

	n, err := env.engine.InvalidateAllSessions(ctx, userID)
	if err != nil {
		t.Fatalf("InvalidateAllSessions failed: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 sessions removed, got %d", n)
	}
	for _, token := range tokens {
		if _, err := env.engine.ValidateSession(ctx, token); !errors.Is(err, ErrInvalidSession) {
			t.Fatalf("session survived: %v", err)
		}
	}
}

func TestSessionMetadataFromContext(t *testing.T) {
	env := newTestEnv(t, nil)
	env.signUpVerified(t, "a@example.com")

	ctx := WithUserAgent(WithClientIP(context.Background(), "192.0.2.10"), "zen-test/1.0")
	res, err := env.engine.SignIn(ctx, SignInRequest{Email: "a@example.com", Password: testPassword})
	if err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}
	sess, err := env.store.GetSessionByTokenHash(ctx, internal.Hash(res.SessionToken))
	if err != nil {
		t.Fatalf("GetSessionByTokenHash failed: %v", err)
	}
	if sess.IPAddress != "192.0.2.10" || sess.UserAgent != "zen-test/1.0" {
		t.Fatalf("unexpected metadata: ip=%q ua=%q", sess.IPAddress, sess.UserAgent)
	}
}

func TestValidateSessionLatencyHistogram(t *testing.T) {
	env := newTestEnv(t, func(c *Config) { c.Metrics.EnableLatencyHistograms = true })
	env.signUpVerified(t, "a@example.com")
	token := env.signIn(t, "a@example.com")

	if _, err := env.engine.ValidateSession(context.Background(), token); err != nil {
		t.Fatalf("ValidateSession failed: %v", err)
	}

	buckets := env.engine.MetricsSnapshot().Histograms[MetricValidateLatency]
	if len(buckets) != 8 {
		t.Fatalf("expected 8 buckets, got %v", buckets)
	}
	// The test clock does not move during the call.
	if buckets[0] != 1 {
		t.Fatalf("expected one observation in the first bucket, got %v", buckets)
	}
}
