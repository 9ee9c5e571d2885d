package wsclient

import (
	"context"
	"testing"
	"time"
)

func TestLatchSetReleasesWaiters(t *testing.T) {
	l := NewLatch()
	done := make(chan bool, 1)
	go func() { done <- l.Wait(context.Background(), time.Second) }()
	time.Sleep(10 * time.Millisecond)
	l.Set()
	l.Set()

	if !<-done {
		t.Fatal("waiter not released")
	}
	if !l.Wait(context.Background(), time.Millisecond) {
		t.Fatal("set latch should return immediately")
	}
}

func TestLatchTimeoutAndClear(t *testing.T) {
	l := NewLatch()
	if l.Wait(context.Background(), 10*time.Millisecond) {
		t.Fatal("expected timeout")
	}
	l.Set()
	l.Clear()
	if l.IsSet() {
		t.Fatal("clear did not reset")
	}
	if l.Wait(context.Background(), 10*time.Millisecond) {
		t.Fatal("cleared latch should time out")
	}
}

func TestLatchContextCancel(t *testing.T) {
	l := NewLatch()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if l.Wait(ctx, time.Second) {
		t.Fatal("expected false on cancelled context")
	}
}
