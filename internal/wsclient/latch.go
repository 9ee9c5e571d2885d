package wsclient

import (
	"context"
	"sync"
	"time"
)

// Latch is a resettable one-shot signal: Set releases all current and
// future waiters until Clear.
type Latch struct {
	mu  sync.Mutex
	ch  chan struct{}
	set bool
}

// NewLatch returns a cleared latch.
func NewLatch() *Latch {
	return &Latch{ch: make(chan struct{})}
}

// Set releases waiters. Repeated calls are no-ops.
func (l *Latch) Set() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.set {
		l.set = true
		close(l.ch)
	}
}

// Clear re-arms the latch.
func (l *Latch) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.set {
		l.set = false
		l.ch = make(chan struct{})
	}
}

// IsSet reports the current state.
func (l *Latch) IsSet() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.set
}

// Wait blocks until the latch is set, the timeout elapses or ctx ends.
// It reports whether the latch was set.
func (l *Latch) Wait(ctx context.Context, timeout time.Duration) bool {
	l.mu.Lock()
	ch := l.ch
	l.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ch:
		return true
	case <-timer.C:
		return l.IsSet()
	case <-ctx.Done():
		return false
	}
}
