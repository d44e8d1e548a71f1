package scheduler

import (
	"sync"
	"time"

	"imageloop/internal/imagegen"
)

// SpacingTracker enforces a minimum gap between attempts against
// rate-limited providers. Providers without a configured spacing are
// unlimited.
type SpacingTracker struct {
	mu      sync.Mutex
	spacing map[imagegen.Provider]time.Duration
	last    map[imagegen.Provider]time.Time
}

// NewSpacingTracker builds a tracker with per-provider spacing.
func NewSpacingTracker(spacing map[imagegen.Provider]time.Duration) *SpacingTracker {
	limits := make(map[imagegen.Provider]time.Duration, len(spacing))
	for p, d := range spacing {
		if d > 0 {
			limits[p] = d
		}
	}
	return &SpacingTracker{spacing: limits, last: map[imagegen.Provider]time.Time{}}
}

// DefaultSpacing limits the primary provider to one attempt per PrimarySpacing.
func DefaultSpacing() map[imagegen.Provider]time.Duration {
	return map[imagegen.Provider]time.Duration{imagegen.ProviderPrimary: imagegen.PrimarySpacing}
}

// RecordAttempt notes an attempt against provider at t.
func (s *SpacingTracker) RecordAttempt(provider imagegen.Provider, t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, limited := s.spacing[provider]; !limited {
		return
	}
	s.last[provider] = t
}

// EarliestAllowed returns when the next attempt against provider may start.
// It returns now for unlimited providers and providers never attempted.
func (s *SpacingTracker) EarliestAllowed(provider imagegen.Provider, now time.Time) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	spacing, limited := s.spacing[provider]
	if !limited {
		return now
	}
	last, ok := s.last[provider]
	if !ok {
		return now
	}
	return last.Add(spacing)
}

// Reset forgets all recorded attempts.
func (s *SpacingTracker) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = map[imagegen.Provider]time.Time{}
}
