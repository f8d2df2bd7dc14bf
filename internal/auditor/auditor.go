// Package auditor periodically repairs occupancy rows that drifted out of
// their invariants.
package auditor

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"comlab-status-backend/config"
)

// Resolver fixes instructors found occupying more than one lab.
type Resolver interface {
	ResolveDoubleOccupancy(ctx context.Context) (int, error)
}

// Service runs the audit on a timer.
type Service struct {
	cfg      config.AuditorConfig
	resolver Resolver
	log      zerolog.Logger
}

// NewService creates an audit loop over resolver.
func NewService(cfg config.AuditorConfig, resolver Resolver, log zerolog.Logger) *Service {
	return &Service{
		cfg:      cfg,
		resolver: resolver,
		log:      log.With().Str("component", "auditor").Logger(),
	}
}

// Run audits once immediately and then every interval until ctx is done.
func (s *Service) Run(ctx context.Context) {
	if !s.cfg.Enabled {
		s.log.Info().Msg("auditor is disabled, not starting")
		return
	}
	interval := s.cfg.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	s.log.Info().Dur("interval", interval).Msg("starting auditor")

	s.RunOnce(ctx)

	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("auditor shutting down")
			return
		case <-timer.C:
			s.RunOnce(ctx)
			timer.Reset(interval)
		}
	}
}

// RunOnce performs a single audit pass. Errors are logged; the next pass
// tries again.
func (s *Service) RunOnce(ctx context.Context) {
	released, err := s.resolver.ResolveDoubleOccupancy(ctx)
	if err != nil {
		s.log.Error().Err(err).Int("released", released).Msg("audit pass failed")
		return
	}
	if released > 0 {
		s.log.Warn().Int("released", released).Msg("audit released double-occupied labs")
		return
	}
	s.log.Debug().Msg("audit pass clean")
}
