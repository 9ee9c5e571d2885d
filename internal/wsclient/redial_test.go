package wsclient

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

type countingBackOff struct {
	next   time.Duration
	resets int
	calls  int
}

func (b *countingBackOff) NextBackOff() time.Duration { b.calls++; return b.next }
func (b *countingBackOff) Reset()                     { b.resets++ }

func TestRedialRetriesAndResets(t *testing.T) {
	b := &countingBackOff{next: time.Millisecond}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runs := 0
	Redial(ctx, "test", b, slog.New(slog.NewTextHandler(io.Discard, nil)), func(ctx context.Context, connected func()) error {
		runs++
		if runs == 2 {
			connected()
		}
		if runs == 3 {
			cancel()
		}
		return errors.New("dropped")
	})

	if runs != 3 {
		t.Fatalf("expected 3 sessions, got %d", runs)
	}
	if b.resets != 1 {
		t.Fatalf("expected one reset, got %d", b.resets)
	}
	if b.calls != 2 {
		t.Fatalf("expected a delay after each of the first two sessions, got %d", b.calls)
	}
}

func TestRedialStopsDuringDelay(t *testing.T) {
	b := &countingBackOff{next: time.Hour}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		Redial(ctx, "test", b, slog.New(slog.NewTextHandler(io.Discard, nil)), func(context.Context, func()) error {
			return errors.New("refused")
		})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("redial did not honour context during backoff")
	}
}

func TestExponentialBackOffBounds(t *testing.T) {
	b := ExponentialBackOff(4 * time.Second)
	first := b.NextBackOff()
	if first < 900*time.Millisecond || first > 1100*time.Millisecond {
		t.Fatalf("first delay %v outside 1s±10%%", first)
	}
	for i := 0; i < 10; i++ {
		if d := b.NextBackOff(); d > 4400*time.Millisecond {
			t.Fatalf("delay %v exceeds cap plus jitter", d)
		}
	}
	b.Reset()
	if d := b.NextBackOff(); d > 1100*time.Millisecond {
		t.Fatalf("reset did not restart sequence: %v", d)
	}
	if ConstantBackOff(2*time.Second).NextBackOff() != 2*time.Second {
		t.Fatal("constant backoff mismatch")
	}
}

func TestStateString(t *testing.T) {
	if Ready.String() != "ready" || State(99).String() != "disconnected" {
		t.Fatal("unexpected state names")
	}
}
