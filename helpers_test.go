package zen

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/natedunn/convex-zen-sub000/store"
	"github.com/natedunn/convex-zen-sub000/store/redisstore"
	"github.com/redis/go-redis/v9"
)

const testPassword = "CorrectHorse42"

type testClock struct{ t time.Time }

func (c *testClock) Now() time.Time          { return c.t }
func (c *testClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type testEnv struct {
	engine *Engine
	store  *redisstore.Store
	clock  *testClock
}

func newTestRedis(t testing.TB) *redis.Client {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		rdb.Close()
		mr.Close()
	})
	return rdb
}

// newTestEnv builds an Engine over miniredis with a controllable clock.
// mutate may adjust the configuration before Build.
func newTestEnv(t testing.TB, mutate func(*Config), opts ...func(*Builder)) *testEnv {
	t.Helper()

	clock := &testClock{t: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
	s := redisstore.New(newTestRedis(t), redisstore.WithClock(clock.Now))

	cfg := DefaultConfig()
	cfg.Metrics.Enabled = true
	if mutate != nil {
		mutate(&cfg)
	}

	b := New().WithConfig(cfg).WithStore(s).WithClock(clock.Now)
	for _, opt := range opts {
		opt(b)
	}
	e, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(e.Close)

	return &testEnv{engine: e, store: s, clock: clock}
}

// signUpVerified registers email and completes email verification.
func (env *testEnv) signUpVerified(t testing.TB, email string) string {
	t.Helper()
	ctx := context.Background()

	res, err := env.engine.SignUp(ctx, SignUpRequest{Email: email, Password: testPassword})
	if err != nil {
		t.Fatalf("SignUp(%s) failed: %v", email, err)
	}
	got, err := env.engine.VerifyEmail(ctx, email, res.VerificationCode)
	if err != nil || got != VerifyValid {
		t.Fatalf("VerifyEmail(%s) = %q, %v", email, got, err)
	}
	return res.UserID
}

func (env *testEnv) signIn(t testing.TB, email string) string {
	t.Helper()

	res, err := env.engine.SignIn(context.Background(), SignInRequest{Email: email, Password: testPassword})
	if err != nil {
		t.Fatalf("SignIn(%s) failed: %v", email, err)
	}
	return res.SessionToken
}

// seedUser inserts a user directly, bypassing sign-up.
func (env *testEnv) seedUser(t testing.TB, id, email, role string) *store.User {
	t.Helper()

	now := env.clock.Now()
	u := &store.User{ID: id, Email: email, Role: role, EmailVerified: true, CreatedAt: now, UpdatedAt: now}
	if err := env.store.CreateUser(context.Background(), u, nil); err != nil {
		t.Fatalf("seed user %s: %v", id, err)
	}
	return u
}
