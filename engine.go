package zen

import (
	"errors"
	"fmt"
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

// Engine is the authentication core. It holds no per-user state between
// calls; every operation reads and writes through the configured store.
//
// An Engine is safe for concurrent use. Call Close to flush pending audit
// events.
type Engine struct {
	config Config
	store  store.Store

	sessions *session.Manager
	limiter  *rate.Limiter
	codes    *verification.Manager
	hasher   *password.Argon2

	// cipher is nil when no OAuth provider is configured.
	cipher    *seal.Cipher
	providers map[string]*oauth.Client

	validate *validator.Validate
	audit    *internalaudit.Dispatcher
	metrics  *Metrics
	log      zerolog.Logger
	now      func() time.Time
}

// Close flushes buffered audit events to the sink and stops the dispatcher.
// The Engine must not be used afterwards.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.audit.Close()
}

// AuditDropped reports events discarded because the audit buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

// AuditStats is a point-in-time view of the audit dispatcher counters.
type AuditStats struct {
	Delivered  uint64
	Dropped    uint64
	SinkPanics uint64
}

// AuditStats reports how many events reached the sink, how many were dropped
// on a full buffer and how many were lost to a panicking sink.
func (e *Engine) AuditStats() AuditStats {
	if e == nil {
		return AuditStats{}
	}
	return AuditStats{
		Delivered:  e.audit.Delivered(),
		Dropped:    e.audit.Dropped(),
		SinkPanics: e.audit.SinkPanics(),
	}
}

// MetricsSnapshot copies the in-process counters and latency histograms. It
// returns empty maps when metrics are disabled.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// storageErr classifies a failure from the store or a component wrapping it.
func storageErr(err error) error {
	var zerr *Error
	if errors.As(err, &zerr) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrStorage, err)
}

func isNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}
