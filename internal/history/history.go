// Package history serves the reconciled attendance log.
package history

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"comlab-status-backend/internal/apperr"
	"comlab-status-backend/internal/attendance"
	"comlab-status-backend/internal/metrics"
	"comlab-status-backend/internal/reconcile"
)

// Service reads the raw stream and reconciles it on every call.
type Service struct {
	source     attendance.Source
	reconciler *reconcile.Reconciler
	log        zerolog.Logger
}

// NewService creates a history service over source.
func NewService(source attendance.Source, reconciler *reconcile.Reconciler, log zerolog.Logger) *Service {
	return &Service{
		source:     source,
		reconciler: reconciler,
		log:        log.With().Str("component", "history").Logger(),
	}
}

// Sessions returns the reconciled sessions whose instructor or lab number
// contains query, case-insensitively. An empty query returns everything.
func (s *Service) Sessions(ctx context.Context, query string) ([]reconcile.Session, error) {
	records, err := s.source.Records(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to read attendance records")
		if apperr.KindOf(err) == apperr.KindUpstreamUnavailable {
			return nil, err
		}
		return nil, apperr.Upstream("history", err, "attendance source unavailable")
	}

	sessions := s.reconciler.Reconcile(records)

	var completed int
	for _, sess := range sessions {
		if sess.Completed {
			completed++
		}
	}
	metrics.SetReconciledSessions(completed, len(sessions)-completed)
	s.log.Debug().Int("records", len(records)).Int("sessions", len(sessions)).Msg("reconciled attendance")

	return Filter(sessions, query), nil
}

// Filter keeps the sessions matching query on instructor or lab number.
func Filter(sessions []reconcile.Session, query string) []reconcile.Session {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return sessions
	}
	out := make([]reconcile.Session, 0, len(sessions))
	for _, sess := range sessions {
		if strings.Contains(strings.ToLower(sess.Instructor), q) ||
			strings.Contains(strings.ToLower(sess.LabNumber), q) {
			out = append(out, sess)
		}
	}
	return out
}
