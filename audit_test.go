package zen

import (
	"context"
	"testing"
	"time"
)

func nextEvent(t *testing.T, sink *ChannelSink) AuditEvent {
	t.Helper()

	select {
	case ev := <-sink.Events():
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for audit event")
		return AuditEvent{}
	}
}

func TestAuditEventsForCredentialFlow(t *testing.T) {
	sink := NewChannelSink(64)
	env := newTestEnv(t, func(c *Config) {
		c.Audit.Enabled = true
		c.Audit.BufferSize = 64
	}, func(b *Builder) {
		b.WithAuditSink(sink)
	})
	ctx := WithClientIP(context.Background(), "192.0.2.1")

	res, err := env.engine.SignUp(ctx, SignUpRequest{Email: "a@example.com", Password: testPassword})
	if err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}
	if _, err := env.engine.SignIn(ctx, SignInRequest{Email: "a@example.com", Password: "WrongPass99"}); err == nil {
		t.Fatal("expected sign-in failure")
	}

	ev := nextEvent(t, sink)
	if ev.Type != auditEventSignUp || !ev.Success || ev.UserID != res.UserID || ev.IP != "192.0.2.1" {
		t.Fatalf("unexpected sign-up event: %+v", ev)
	}
	if !ev.Timestamp.Equal(env.clock.Now()) {
		t.Fatalf("event timestamp %v does not follow the clock", ev.Timestamp)
	}

	ev = nextEvent(t, sink)
	if ev.Type != auditEventSignInFailure || ev.Success || ev.Error != "invalid_credentials" {
		t.Fatalf("unexpected sign-in failure event: %+v", ev)
	}
}

func TestAuditAdminDenied(t *testing.T) {
	sink := NewChannelSink(8)
	env := newTestEnv(t, func(c *Config) { c.Audit.Enabled = true }, func(b *Builder) {
		b.WithAuditSink(sink)
	})
	env.seedUser(t, "member", "member@example.com", "user")

	if _, err := env.engine.AdminListUsers(context.Background(), "member", ListUsersRequest{}); err == nil {
		t.Fatal("expected forbidden")
	}

	ev := nextEvent(t, sink)
	if ev.Type != auditEventAdminDenied || ev.ActorID != "member" || ev.Error != "forbidden" {
		t.Fatalf("unexpected event: %+v", ev)
	}
}

type blockingSink struct {
	release chan struct{}
}

func (s *blockingSink) Emit(context.Context, AuditEvent) { <-s.release }

func TestAuditDropsWhenBufferFull(t *testing.T) {
	sink := &blockingSink{release: make(chan struct{})}
	env := newTestEnv(t, func(c *Config) {
		c.Audit.Enabled = true
		c.Audit.BufferSize = 1
		c.Audit.DropIfFull = true
	}, func(b *Builder) {
		b.WithAuditSink(sink)
	})
	defer close(sink.release)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, _ = env.engine.ResendVerification(ctx, "nobody@example.com")
		_, _ = env.engine.RequestPasswordReset(ctx, "nobody@example.com")
	}

	if env.engine.AuditDropped() == 0 {
		t.Fatal("expected dropped events with a blocked sink")
	}
}

func TestAuditDisabledEmitsNothing(t *testing.T) {
	sink := NewChannelSink(8)
	env := newTestEnv(t, nil, func(b *Builder) { b.WithAuditSink(sink) })

	env.signUpVerified(t, "a@example.com")
	env.engine.Close()

	select {
	case ev := <-sink.Events():
		t.Fatalf("unexpected event with audit disabled: %+v", ev)
	default:
	}
	if env.engine.AuditDropped() != 0 {
		t.Fatal("disabled audit should not count drops")
	}
}

type explodingSink struct{}

func (explodingSink) Emit(_ context.Context, ev AuditEvent) {
	if ev.Type == auditEventSignUp {
		panic("sink exploded")
	}
}

func TestAuditStatsCountSinkPanics(t *testing.T) {
	env := newTestEnv(t, func(c *Config) {
		c.Audit.Enabled = true
		c.Audit.BufferSize = 8
		c.Audit.DropIfFull = false
	}, func(b *Builder) {
		b.WithAuditSink(explodingSink{})
	})
	ctx := context.Background()

	if _, err := env.engine.SignUp(ctx, SignUpRequest{Email: "a@example.com", Password: testPassword}); err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}
	if _, err := env.engine.SignIn(ctx, SignInRequest{Email: "a@example.com", Password: "WrongPass99"}); err == nil {
		t.Fatal("expected sign-in failure")
	}
	env.engine.Close()

	stats := env.engine.AuditStats()
	if stats.SinkPanics != 1 || stats.Delivered != 1 || stats.Dropped != 0 {
		t.Fatalf("unexpected audit stats: %+v", stats)
	}
}
