package event

import (
	"context"
	"errors"
	"sync"

	"github.com/christopherjohns/hangbot/internal/telemetry"
)

// ErrClosed is returned by Put and Get once the queue has been closed.
var ErrClosed = errors.New("event: queue closed")

// Sink accepts events from producers.
type Sink interface {
	Put(ctx context.Context, ev Event) error
}

// Queue is a bounded FIFO shared by all producers and the single consumer.
// Put blocks while the queue is full; nothing is dropped.
type Queue struct {
	items     chan Event
	done      chan struct{}
	closeOnce sync.Once
}

// NewQueue creates a queue holding at most size events.
func NewQueue(size int) *Queue {
	if size <= 0 {
		size = 1
	}
	return &Queue{
		items: make(chan Event, size),
		done:  make(chan struct{}),
	}
}

// Put enqueues ev, waiting for space. It returns ctx.Err() if the context
// ends first and ErrClosed if the queue is closed.
func (q *Queue) Put(ctx context.Context, ev Event) error {
	select {
	case <-q.done:
		return ErrClosed
	default:
	}
	select {
	case q.items <- ev:
		telemetry.IncQueued(ev.Topic.Label())
		telemetry.SetQueueDepth(len(q.items))
		return nil
	case <-q.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Get dequeues the oldest event, waiting until one is available.
func (q *Queue) Get(ctx context.Context) (Event, error) {
	select {
	case <-q.done:
		return Event{}, ErrClosed
	default:
	}
	select {
	case ev := <-q.items:
		telemetry.SetQueueDepth(len(q.items))
		return ev, nil
	case <-q.done:
		return Event{}, ErrClosed
	case <-ctx.Done():
		return Event{}, ctx.Err()
	}
}

// Close releases all blocked callers. Events still buffered are discarded.
func (q *Queue) Close() {
	q.closeOnce.Do(func() { close(q.done) })
}

// Len returns the number of buffered events.
func (q *Queue) Len() int { return len(q.items) }

// Cap returns the queue bound.
func (q *Queue) Cap() int { return cap(q.items) }
