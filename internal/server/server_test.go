package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/christopherjohns/hangbot/internal/event"
)

type refusingSink struct{}

func (refusingSink) Put(context.Context, event.Event) error { return event.ErrClosed }

func newTestServer(sink event.Sink, secret string) *Server {
	probes := Probes{
		RoomJoined: func() bool { return true },
		QueueDepth: func() int { return 3 },
	}
	return New(":0", sink, secret, probes, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func post(srv *Server, body string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/events", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(event.NewQueue(1), "")

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	var body healthResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.Status != "ok" || !body.RoomJoined || body.ChatReady || body.QueueDepth != 3 {
		t.Errorf("unexpected health %+v", body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(event.NewQueue(1), "")
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "go_goroutines") {
		t.Fatalf("metrics: %d", w.Code)
	}
}

func TestEventQueued(t *testing.T) {
	q := event.NewQueue(4)
	srv := newTestServer(q, "")

	w := post(srv, `{"event":"playedSong","payload":{"song":{"artistName":"Air"}}}`, nil)
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body)
	}
	ev, err := q.Get(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if ev.Topic != event.TopicPlayedSong || ev.Source != event.SourceWebhook || !strings.Contains(string(ev.Payload), "Air") {
		t.Fatalf("unexpected event %+v", ev)
	}
}

func TestChatEventNormalized(t *testing.T) {
	q := event.NewQueue(4)
	srv := newTestServer(q, "")

	w := post(srv, `{"event":"chatMessage","payload":{"message":"hi bot","userUuid":"U1","userName":"Al"}}`, nil)
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", w.Code)
	}
	ev, _ := q.Get(context.Background())
	var msg event.ChatMessage
	if err := json.Unmarshal(ev.Payload, &msg); err != nil {
		t.Fatal(err)
	}
	if msg.Text != "hi bot" || msg.Sender.UID != "U1" {
		t.Fatalf("payload not normalized: %s", ev.Payload)
	}

	if w := post(srv, `{"event":"chatMessage","payload":{}}`, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("empty chat accepted: %d", w.Code)
	}
}

func TestEventRejections(t *testing.T) {
	srv := newTestServer(event.NewQueue(4), "s3cret")
	cases := []struct {
		name   string
		body   string
		header map[string]string
		want   int
	}{
		{"missing secret", `{"event":"userJoined"}`, nil, http.StatusUnauthorized},
		{"wrong secret", `{"event":"userJoined"}`, map[string]string{"x-relay-secret": "nope"}, http.StatusUnauthorized},
		{"no event name", `{"payload":{}}`, map[string]string{"x-relay-secret": "s3cret"}, http.StatusBadRequest},
		{"bad json", `{`, map[string]string{"x-relay-secret": "s3cret"}, http.StatusBadRequest},
		{"ok", `{"event":"userJoined"}`, map[string]string{"x-relay-secret": "s3cret"}, http.StatusAccepted},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if w := post(srv, tc.body, tc.header); w.Code != tc.want {
				t.Fatalf("expected %d, got %d: %s", tc.want, w.Code, w.Body)
			}
		})
	}
}

func TestQueueUnavailable(t *testing.T) {
	srv := newTestServer(refusingSink{}, "")
	w := post(srv, `{"event":"userLeft","payload":{}}`, nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
	var resp webhookResponse
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.OK || resp.Error == "" {
		t.Fatalf("unexpected body %+v", resp)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	srv := New("127.0.0.1:0", event.NewQueue(1), "", Probes{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()
	cancel()
	if err := <-done; err != nil && !errors.Is(err, context.Canceled) {
		t.Fatalf("run: %v", err)
	}
}
