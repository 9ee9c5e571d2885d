// Package telemetry provides Prometheus metrics and OpenTelemetry tracing helpers.
package telemetry

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	EventsQueued  *prometheus.CounterVec
	EventsHandled *prometheus.CounterVec
	Reconnects    *prometheus.CounterVec
	Commands      *prometheus.CounterVec
	AIRequests    *prometheus.CounterVec
	MessagesSent  *prometheus.CounterVec

	AIDuration prometheus.Observer

	QueueDepthGauge prometheus.Gauge
)

// Init registers metrics (idempotent). Helpers are no-ops until Init runs.
func Init() {
	once.Do(func() {
		EventsQueued = promauto.NewCounterVec(prometheus.CounterOpts{Name: "hangbot_events_queued_total", Help: "Events accepted into the queue"}, []string{"topic"})
		EventsHandled = promauto.NewCounterVec(prometheus.CounterOpts{Name: "hangbot_events_handled_total", Help: "Events taken off the queue by outcome"}, []string{"topic", "outcome"})
		Reconnects = promauto.NewCounterVec(prometheus.CounterOpts{Name: "hangbot_reconnects_total", Help: "Connection attempts after the first, per client"}, []string{"client"})
		Commands = promauto.NewCounterVec(prometheus.CounterOpts{Name: "hangbot_commands_total", Help: "Chat commands by outcome"}, []string{"command", "outcome"})
		AIRequests = promauto.NewCounterVec(prometheus.CounterOpts{Name: "hangbot_ai_requests_total", Help: "Completion requests by provider and outcome"}, []string{"provider", "outcome"})
		MessagesSent = promauto.NewCounterVec(prometheus.CounterOpts{Name: "hangbot_messages_sent_total", Help: "Outgoing chat messages by result"}, []string{"result"})
		AIDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "hangbot_ai_request_duration_seconds", Help: "Completion latency seconds", Buckets: prometheus.DefBuckets})
		QueueDepthGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "hangbot_queue_depth", Help: "Events waiting in the queue"})
	})
}

// IncQueued counts an accepted event.
func IncQueued(topic string) {
	if EventsQueued != nil {
		EventsQueued.WithLabelValues(topic).Inc()
	}
}

// IncHandled counts a dispatched event. outcome is "ok" or "panic".
func IncHandled(topic, outcome string) {
	if EventsHandled != nil {
		EventsHandled.WithLabelValues(topic, outcome).Inc()
	}
}

// IncReconnect counts a reconnect attempt for client.
func IncReconnect(client string) {
	if Reconnects != nil {
		Reconnects.WithLabelValues(client).Inc()
	}
}

// IncCommand counts a command dispatch.
func IncCommand(command, outcome string) {
	if Commands != nil {
		Commands.WithLabelValues(command, outcome).Inc()
	}
}

// ObserveAI records one completion request.
func ObserveAI(provider, outcome string, d time.Duration) {
	if AIRequests != nil {
		AIRequests.WithLabelValues(provider, outcome).Inc()
	}
	if AIDuration != nil {
		AIDuration.Observe(d.Seconds())
	}
}

// IncSent counts an outgoing chat message.
func IncSent(ok bool) {
	if MessagesSent == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	MessagesSent.WithLabelValues(result).Inc()
}

// SetQueueDepth records the current queue length.
func SetQueueDepth(n int) {
	if QueueDepthGauge != nil {
		QueueDepthGauge.Set(float64(n))
	}
}
