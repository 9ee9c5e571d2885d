// Package ratelimit throttles how often a single chat user can trigger
// AI replies.
package ratelimit

import (
	"sync"
	"time"
)

// UserLimiter tracks trigger times per user within a sliding window.
type UserLimiter struct {
	mu      sync.Mutex
	entries map[string][]time.Time
	max     int
	window  time.Duration
	now     func() time.Time
}

// NewUserLimiter allows max triggers per user per window. A max of zero
// or less disables limiting.
func NewUserLimiter(max int, window time.Duration) *UserLimiter {
	return &UserLimiter{
		entries: make(map[string][]time.Time),
		max:     max,
		window:  window,
		now:     time.Now,
	}
}

// Allow returns true if the user has not exceeded the limit, recording
// the attempt when allowed.
func (l *UserLimiter) Allow(userID string) bool {
	if l.max <= 0 {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)

	timestamps := l.entries[userID]
	valid := timestamps[:0]
	for _, t := range timestamps {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}

	if len(valid) >= l.max {
		l.entries[userID] = valid
		return false
	}

	l.entries[userID] = append(valid, now)
	return true
}

// RetryAfter returns how long until userID may trigger again.
func (l *UserLimiter) RetryAfter(userID string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	ts := l.entries[userID]
	if l.max <= 0 || len(ts) < l.max {
		return 0
	}
	wait := ts[len(ts)-l.max].Add(l.window).Sub(l.now())
	if wait < 0 {
		return 0
	}
	return wait
}
