package session

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"speech-translate-relay/internal/observability/logging"
)

const (
	DefaultMaxAge        = 30 * time.Minute
	DefaultSweepInterval = 5 * time.Minute
)

// TeardownFunc ends a session through the same path as a browser disconnect.
type TeardownFunc func(id string)

// Sweeper periodically tears down sessions older than a max age.
type Sweeper struct {
	registry *Registry
	interval time.Duration
	maxAge   time.Duration
	teardown TeardownFunc
	log      zerolog.Logger
}

// NewSweeper creates a Sweeper. Zero durations use the defaults.
func NewSweeper(registry *Registry, interval, maxAge time.Duration, teardown TeardownFunc) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &Sweeper{
		registry: registry,
		interval: interval,
		maxAge:   maxAge,
		teardown: teardown,
		log:      logging.WithComponent("sweeper"),
	}
}

// Run sweeps every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) error {
	s.log.Info().
		Dur("interval", s.interval).
		Dur("maxAge", s.maxAge).
		Msg("Session sweeper started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Sweep(s.registry.Now())
		}
	}
}

// Sweep tears down every session older than the max age at now and returns
// their ids.
func (s *Sweeper) Sweep(now time.Time) []string {
	expired := s.registry.Expired(now, s.maxAge)
	for _, id := range expired {
		s.log.Info().Str("sessionId", id).Msg("Sweeping expired session")
		s.teardown(id)
	}
	if len(expired) > 0 {
		s.log.Info().Int("count", len(expired)).Int("remaining", s.registry.Len()).Msg("Sweep complete")
	}
	return expired
}
