package wsclient

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/christopherjohns/hangbot/internal/telemetry"
)

// State is the lifecycle of one connection attempt.
type State int32

const (
	Disconnected State = iota
	Connecting
	AwaitingAuth
	Ready
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case AwaitingAuth:
		return "awaiting_auth"
	case Ready:
		return "ready"
	}
	return "disconnected"
}

// Session runs one connection until it fails or ctx ends. It calls
// connected once the transport is up so the backoff can reset.
type Session func(ctx context.Context, connected func()) error

// Redial runs session repeatedly until ctx ends, sleeping b.NextBackOff()
// between attempts. Reconnection never gives up.
func Redial(ctx context.Context, name string, b backoff.BackOff, logger *slog.Logger, session Session) {
	attempt := 0
	for {
		if ctx.Err() != nil {
			return
		}
		if attempt > 0 {
			telemetry.IncReconnect(name)
		}
		attempt++

		err := session(ctx, b.Reset)
		if ctx.Err() != nil {
			return
		}

		delay := b.NextBackOff()
		if delay < minDelay {
			delay = minDelay
		}
		logger.Warn("connection lost, retrying",
			slog.Any("err", err),
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
		)

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

// minDelay floors every reconnect delay.
const minDelay = 100 * time.Millisecond

// ExponentialBackOff doubles from one second up to max with ±10% jitter.
func ExponentialBackOff(max time.Duration) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.Multiplier = 2
	b.RandomizationFactor = 0.1
	b.MaxInterval = max
	b.Reset()
	return b
}

// ConstantBackOff waits d between every attempt.
func ConstantBackOff(d time.Duration) backoff.BackOff {
	return backoff.NewConstantBackOff(d)
}
