// Package uptime tracks how long the current process has run and how long
// the bot has run across all restarts.
package uptime

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/christopherjohns/hangbot/internal/store"
)

const storeKey = "uptime_state"

type state struct {
	TotalSeconds float64 `json:"total_seconds"`
	FirstSeen    float64 `json:"first_seen,omitempty"`
}

// Tracker accumulates lifetime uptime. The persisted total only includes
// completed checkpoints; the running process adds its own elapsed time.
type Tracker struct {
	mu      sync.Mutex
	kv      store.Store
	logger  *slog.Logger
	start   time.Time
	flushed time.Time
	st      state
	now     func() time.Time
}

// Load restores the lifetime total, creating the record on first run.
func Load(ctx context.Context, kv store.Store, logger *slog.Logger) (*Tracker, error) {
	return load(ctx, kv, logger, time.Now)
}

func load(ctx context.Context, kv store.Store, logger *slog.Logger, now func() time.Time) (*Tracker, error) {
	t := &Tracker{kv: kv, logger: logger, now: now}
	t.start = now()
	t.flushed = t.start
	found, err := kv.Load(ctx, storeKey, &t.st)
	if err != nil {
		logger.Warn("uptime state unreadable, starting fresh", slog.Any("err", err))
		t.st = state{}
		found = false
	}
	if !found || t.st.FirstSeen == 0 {
		t.st.FirstSeen = float64(t.start.Unix())
		if err := kv.Save(ctx, storeKey, t.st); err != nil {
			return nil, fmt.Errorf("uptime: init: %w", err)
		}
	}
	return t, nil
}

// Current is the time since this process started.
func (t *Tracker) Current() time.Duration {
	return t.now().Sub(t.start)
}

// Lifetime is the accumulated total including the current run.
func (t *Tracker) Lifetime() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return secs(t.st.TotalSeconds) + t.now().Sub(t.flushed)
}

// FirstSeen is when the bot first ran.
func (t *Tracker) FirstSeen() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return time.Unix(int64(t.st.FirstSeen), 0)
}

// Checkpoint folds elapsed time into the persisted total.
func (t *Tracker) Checkpoint(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	next := t.st
	next.TotalSeconds += now.Sub(t.flushed).Seconds()
	if err := t.kv.Save(ctx, storeKey, next); err != nil {
		return fmt.Errorf("uptime: save: %w", err)
	}
	t.st = next
	t.flushed = now
	return nil
}

// Run checkpoints every interval until ctx ends, then once more.
func (t *Tracker) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			final, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := t.Checkpoint(final); err != nil {
				t.logger.Warn("uptime shutdown save failed", slog.Any("err", err))
			}
			return nil
		case <-ticker.C:
			if err := t.Checkpoint(ctx); err != nil {
				t.logger.Warn("uptime checkpoint failed", slog.Any("err", err))
			}
		}
	}
}

// Summary renders the /uptime reply.
func (t *Tracker) Summary() string {
	return fmt.Sprintf("⏱️ Uptime: %s | Lifetime: %s", Format(t.Current()), Format(t.Lifetime()))
}

// Format renders d as "1d 2h 3m 4s", omitting leading zero units.
func Format(d time.Duration) string {
	total := int64(d.Round(time.Second) / time.Second)
	if total < 0 {
		total = 0
	}
	days, rem := total/86400, total%86400
	hours, rem := rem/3600, rem%3600
	minutes, s := rem/60, rem%60

	var parts []string
	if days > 0 {
		parts = append(parts, fmt.Sprintf("%dd", days))
	}
	if hours > 0 || days > 0 {
		parts = append(parts, fmt.Sprintf("%dh", hours))
	}
	if minutes > 0 || hours > 0 || days > 0 {
		parts = append(parts, fmt.Sprintf("%dm", minutes))
	}
	parts = append(parts, fmt.Sprintf("%ds", s))
	return strings.Join(parts, " ")
}

func secs(f float64) time.Duration {
	return time.Duration(f * float64(time.Second))
}
