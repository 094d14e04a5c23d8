package service

import (
	"time"

	"github.com/okian/tunechart/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithFetchConcurrency sets how many members are fetched at once.
func WithFetchConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.fetchConcurrency = n
		}
	}
}

// WithBackfillDelay sets the pause between weeks of a range regeneration.
func WithBackfillDelay(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.backfillDelay = d
		}
	}
}

// WithMaxRangeWeeks caps weeksBack of a range regeneration.
func WithMaxRangeWeeks(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxRangeWeeks = n
		}
	}
}

// WithRecordsLease sets the records calculation lease.
func WithRecordsLease(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.recordsLease = d
		}
	}
}

// WithCandidateLimit bounds the full streak scan.
func WithCandidateLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.candidateLimit = n
		}
	}
}

// WithMinMembers sets the member count below which user records are skipped.
func WithMinMembers(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.minMembers = n
		}
	}
}

// WithClock overrides the wall clock of the service and its caches.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}
