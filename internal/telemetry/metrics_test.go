package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestHelpersBeforeInitAreNoops(t *testing.T) {
	if EventsQueued != nil {
		t.Skip("metrics already initialized by another test")
	}
	IncQueued("chatMessage")
	IncSent(false)
	SetQueueDepth(3)
	ObserveAI("openai", "ok", time.Second)
}

func TestInitAndCount(t *testing.T) {
	Init()
	Init()

	before := testutil.ToFloat64(Commands.WithLabelValues("uptime", "ok"))
	IncCommand("uptime", "ok")
	if got := testutil.ToFloat64(Commands.WithLabelValues("uptime", "ok")); got != before+1 {
		t.Fatalf("expected counter to increase by 1, got %v -> %v", before, got)
	}

	SetQueueDepth(7)
	if got := testutil.ToFloat64(QueueDepthGauge); got != 7 {
		t.Fatalf("queue depth = %v", got)
	}

	IncSent(true)
	if got := testutil.ToFloat64(MessagesSent.WithLabelValues("ok")); got < 1 {
		t.Fatalf("messages sent = %v", got)
	}
}

func TestSpanHelpersWithoutProvider(t *testing.T) {
	shutdown, err := InitTracing("", "hangbot", "test")
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	defer shutdown()

	_, span := StartSpan(context.Background(), "test", "op")
	RecordError(span, errors.New("boom"))
	RecordError(span, nil)
	SetSpanSuccess(span)
	span.End()
}
