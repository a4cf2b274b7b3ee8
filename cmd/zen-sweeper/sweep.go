package main

import (
	"context"
	"time"

	zen "github.com/natedunn/convex-zen-sub000"
	"github.com/rs/zerolog"
)

type cleaner interface {
	Cleanup(ctx context.Context) (zen.CleanupReport, error)
}

type sweeper struct {
	engine    cleaner
	batchSize int
	maxPasses int
	log       zerolog.Logger
}

func (s *sweeper) loop(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := s.sweep(ctx); err != nil {
			// Storage hiccups are retried on the next tick.
			s.log.Error().Err(err).Msg("sweep failed")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// sweep runs Cleanup until no table returns a full batch, up to maxPasses.
func (s *sweeper) sweep(ctx context.Context) (zen.CleanupReport, error) {
	var total zen.CleanupReport
	start := time.Now()

	passes := 0
	for passes < s.maxPasses {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		r, err := s.engine.Cleanup(ctx)
		passes++
		total.Sessions += r.Sessions
		total.Verifications += r.Verifications
		total.OAuthStates += r.OAuthStates
		total.RateLimits += r.RateLimits
		if err != nil {
			return total, err
		}
		if !s.full(r) {
			break
		}
	}

	s.log.Info().
		Int("sessions", total.Sessions).
		Int("verifications", total.Verifications).
		Int("oauth_states", total.OAuthStates).
		Int("rate_limits", total.RateLimits).
		Int("passes", passes).
		Dur("took", time.Since(start)).
		Msg("sweep complete")
	return total, nil
}

func (s *sweeper) full(r zen.CleanupReport) bool {
	return r.Sessions >= s.batchSize ||
		r.Verifications >= s.batchSize ||
		r.OAuthStates >= s.batchSize ||
		r.RateLimits >= s.batchSize
}
