package presence

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"nhooyr.io/websocket"

	"github.com/christopherjohns/hangbot/internal/event"
	"github.com/christopherjohns/hangbot/internal/wsclient"
)

// fakePrimus scripts one server-side connection at a time.
type fakePrimus struct {
	t       *testing.T
	conns   atomic.Int32
	queries chan string
	joins   chan []byte
	script  func(ctx context.Context, conn *websocket.Conn, n int32)
}

func (f *fakePrimus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		f.t.Errorf("accept: %v", err)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")
	n := f.conns.Add(1)
	select {
	case f.queries <- r.URL.RawQuery:
	default:
	}

	ctx := r.Context()
	_, join, err := conn.Read(ctx)
	if err != nil {
		return
	}
	select {
	case f.joins <- join:
	default:
	}
	f.script(ctx, conn, n)
}

func newFakePrimus(t *testing.T, script func(ctx context.Context, conn *websocket.Conn, n int32)) (*fakePrimus, *httptest.Server) {
	f := &fakePrimus{t: t, queries: make(chan string, 4), joins: make(chan []byte, 4), script: script}
	ts := httptest.NewServer(f)
	t.Cleanup(ts.Close)
	return f, ts
}

func newTestClient(t *testing.T, ts *httptest.Server, q *event.Queue) *Client {
	t.Helper()
	c, err := New(Config{
		URL:         "ws" + strings.TrimPrefix(ts.URL, "http"),
		Token:       "tok",
		RoomUUID:    "room-1",
		RecvTimeout: 2 * time.Second,
	}, q, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	c.newBackOff = func() backoff.BackOff { return wsclient.ConstantBackOff(10 * time.Millisecond) }
	return c
}

func TestNewRequiresConfig(t *testing.T) {
	if _, err := New(Config{Token: "x"}, event.NewQueue(1), slog.Default()); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestJoinPingAndClassify(t *testing.T) {
	pong := make(chan string, 1)
	f, ts := newFakePrimus(t, func(ctx context.Context, conn *websocket.Conn, _ int32) {
		conn.Write(ctx, websocket.MessageText, []byte("primus::ping::12345"))
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		pong <- string(data)
		conn.Write(ctx, websocket.MessageText, []byte("not json at all"))
		conn.Write(ctx, websocket.MessageText, []byte(`{"context":"response","ok":true}`))
		conn.Write(ctx, websocket.MessageText, []byte(`{"context":"user","name":"userJoined"}`))
		conn.Write(ctx, websocket.MessageText, []byte(`{"name":"playedSong"}`))
		conn.Read(ctx)
	})

	q := event.NewQueue(10)
	c := newTestClient(t, ts, q)
	ctx := context.Background()
	c.Start(ctx)
	c.Start(ctx)
	defer c.Stop(2 * time.Second)

	query := <-f.queries
	if !strings.Contains(query, "token=tok") || !strings.Contains(query, "_primuscb=") {
		t.Fatalf("unexpected query %q", query)
	}

	var join struct {
		Event  string `json:"event"`
		Params struct {
			RoomUUID string `json:"roomUuid"`
			Action   string `json:"action"`
		} `json:"params"`
		MessageID int `json:"messageId"`
	}
	if err := json.Unmarshal(<-f.joins, &join); err != nil {
		t.Fatalf("join frame: %v", err)
	}
	if join.Event != "action" || join.Params.RoomUUID != "room-1" || join.Params.Action != "joinRoom" || join.MessageID != 1 {
		t.Fatalf("unexpected join frame %+v", join)
	}

	select {
	case p := <-pong:
		if p != "primus::pong::12345" {
			t.Fatalf("pong = %q", p)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no pong received")
	}

	if !c.WaitJoined(ctx, 2*time.Second) {
		t.Fatal("join not confirmed")
	}
	if !c.Joined() || c.State() != wsclient.Ready {
		t.Fatalf("expected joined ready client, state=%s", c.State())
	}

	want := []event.Topic{event.TopicRoomJoined, event.TopicRoomUser, event.TopicRoomMisc}
	for _, topic := range want {
		gctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		ev, err := q.Get(gctx)
		cancel()
		if err != nil {
			t.Fatalf("waiting for %s: %v", topic, err)
		}
		if ev.Topic != topic || ev.Source != event.SourcePresence {
			t.Fatalf("expected %s, got %s", topic, ev.Topic)
		}
	}
}

func TestPingWithSurroundingWhitespace(t *testing.T) {
	pong := make(chan string, 1)
	_, ts := newFakePrimus(t, func(ctx context.Context, conn *websocket.Conn, _ int32) {
		conn.Write(ctx, websocket.MessageText, []byte("  primus::ping::777\n"))
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		pong <- string(data)
		conn.Read(ctx)
	})

	c := newTestClient(t, ts, event.NewQueue(4))
	c.Start(context.Background())
	defer c.Stop(2 * time.Second)

	select {
	case p := <-pong:
		if p != "primus::pong::777" {
			t.Fatalf("pong = %q", p)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no pong received")
	}
}

func TestReconnectClearsJoined(t *testing.T) {
	release := make(chan struct{})
	f, ts := newFakePrimus(t, func(ctx context.Context, conn *websocket.Conn, n int32) {
		if n == 1 {
			conn.Write(ctx, websocket.MessageText, []byte(`{"context":"response"}`))
			<-release
			return
		}
		conn.Read(ctx)
	})

	q := event.NewQueue(10)
	c := newTestClient(t, ts, q)
	ctx := context.Background()
	c.Start(ctx)
	defer c.Stop(2 * time.Second)

	if !c.WaitJoined(ctx, 2*time.Second) {
		t.Fatal("first connection never joined")
	}
	close(release)

	deadline := time.Now().Add(3 * time.Second)
	for f.conns.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if f.conns.Load() < 2 {
		t.Fatal("client did not reconnect")
	}
	// The second server never confirms, so joined must be cleared.
	for c.Joined() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if c.Joined() {
		t.Fatal("joined flag survived reconnect")
	}
}

func TestStopIsBounded(t *testing.T) {
	_, ts := newFakePrimus(t, func(ctx context.Context, conn *websocket.Conn, _ int32) {
		conn.Read(ctx)
	})
	c := newTestClient(t, ts, event.NewQueue(1))
	c.Start(context.Background())
	time.Sleep(50 * time.Millisecond)

	start := time.Now()
	c.Stop(2 * time.Second)
	if time.Since(start) > 2500*time.Millisecond {
		t.Fatal("stop exceeded its timeout")
	}
	if c.State() != wsclient.Disconnected {
		t.Fatalf("expected disconnected after stop, got %s", c.State())
	}
	c.Stop(time.Second)
}
