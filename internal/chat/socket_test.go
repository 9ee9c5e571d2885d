package chat

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tidwall/gjson"
	"nhooyr.io/websocket"

	"github.com/christopherjohns/hangbot/internal/event"
)

type fakeCometSocket struct {
	t      *testing.T
	ack    string
	// ackFor, when set, picks the reply to the n-th auth (1-based).
	ackFor func(n int) string
	mu     sync.Mutex
	auths  [][]byte
	frames chan []byte
	push   chan string
	drop   chan struct{}
}

func (f *fakeCometSocket) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		f.t.Errorf("accept: %v", err)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")
	ctx := r.Context()

	_, auth, err := conn.Read(ctx)
	if err != nil {
		return
	}
	f.mu.Lock()
	f.auths = append(f.auths, auth)
	n := len(f.auths)
	f.mu.Unlock()
	ack := f.ack
	if f.ackFor != nil {
		ack = f.ackFor(n)
	}
	conn.Write(ctx, websocket.MessageText, []byte(ack))

	reads := make(chan []byte)
	go func() {
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				close(reads)
				return
			}
			reads <- data
		}
	}()
	for {
		select {
		case data, ok := <-reads:
			if !ok {
				return
			}
			f.frames <- data
		case msg := <-f.push:
			conn.Write(ctx, websocket.MessageText, []byte(msg))
		case <-f.drop:
			return
		}
	}
}

func (f *fakeCometSocket) authCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.auths)
}

func (f *fakeCometSocket) device(i int) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return gjson.GetBytes(f.auths[i], "deviceId").String()
}

func newSocketFixture(t *testing.T, ack string) (*fakeCometSocket, *SocketClient, *event.Queue) {
	t.Helper()
	f := &fakeCometSocket{t: t, ack: ack, frames: make(chan []byte, 8), push: make(chan string, 8), drop: make(chan struct{}, 1)}
	ts := httptest.NewServer(f)
	t.Cleanup(ts.Close)

	cfg := Config{
		AppID:          "app1",
		UID:            "bot-uid",
		AuthToken:      "secret",
		RoomID:         "room-1",
		SocketURL:      "ws" + strings.TrimPrefix(ts.URL, "http"),
		ReconnectDelay: 10 * time.Millisecond,
	}
	q := event.NewQueue(8)
	c, err := NewSocketClient(cfg, q, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	return f, c, q
}

func TestSocketAuthSendReceive(t *testing.T) {
	f, c, q := newSocketFixture(t, `{"type":"auth","body":{"status":"success"}}`)
	ctx := context.Background()
	c.Start(ctx)
	defer c.Stop(2 * time.Second)

	if !c.WaitAuthenticated(ctx, 2*time.Second) {
		t.Fatal("not authenticated")
	}
	if !c.Ready() {
		t.Fatal("expected ready")
	}

	if !c.SendText(ctx, "hello room") {
		t.Fatal("send failed")
	}
	select {
	case frame := <-f.frames:
		if gjson.GetBytes(frame, "body.data.text").String() != "hello room" || gjson.GetBytes(frame, "receiver").String() != "room-1" {
			t.Fatalf("unexpected frame %s", frame)
		}
		authDevice := gjson.GetBytes(f.auths[0], "deviceId").String()
		if gjson.GetBytes(frame, "deviceId").String() != authDevice {
			t.Fatal("message device id differs from auth device id")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("message frame not received")
	}

	f.push <- `{"type":"message","receiver":"room-1","body":{"type":"text","data":{"text":"hi bot","entities":{"sender":{"entity":{"uid":"u1","name":"Alice"}}}}}}`
	gctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	ev, err := q.Get(gctx)
	if err != nil {
		t.Fatalf("no chat event: %v", err)
	}
	msg, ok := event.ParseChat(ev.Payload)
	if ev.Topic != event.TopicChatMessage || !ok || msg.Text != "hi bot" || msg.Sender.UID != "u1" || msg.Sender.Name != "Alice" {
		t.Fatalf("unexpected event %s %s", ev.Topic, ev.Payload)
	}
}

func TestSocketUnrecognisedAckTimesOut(t *testing.T) {
	_, c, _ := newSocketFixture(t, `{"type":"auth","body":{"status":"pending"}}`)
	ctx := context.Background()
	c.Start(ctx)
	defer c.Stop(2 * time.Second)

	if c.WaitAuthenticated(ctx, 200*time.Millisecond) {
		t.Fatal("unexpected authentication")
	}
	if c.SendText(ctx, "nope") {
		t.Fatal("send must fail before authentication")
	}
}

func TestSocketReconnectUsesFreshDevice(t *testing.T) {
	f, c, _ := newSocketFixture(t, `{"type":"authSuccess"}`)
	ctx := context.Background()
	c.Start(ctx)
	defer c.Stop(2 * time.Second)

	if !c.WaitAuthenticated(ctx, 2*time.Second) {
		t.Fatal("not authenticated")
	}
	f.drop <- struct{}{}

	deadline := time.Now().Add(3 * time.Second)
	for f.authCount() < 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if f.authCount() < 2 {
		t.Fatal("client did not reconnect")
	}
	f.mu.Lock()
	first := gjson.GetBytes(f.auths[0], "deviceId").String()
	second := gjson.GetBytes(f.auths[1], "deviceId").String()
	f.mu.Unlock()
	if first == second || !strings.HasPrefix(second, "WEB-4_0_10-") {
		t.Fatalf("expected fresh device ids, got %q and %q", first, second)
	}
	if !c.WaitAuthenticated(ctx, 2*time.Second) {
		t.Fatal("not re-authenticated")
	}
}

func TestSocketRejectedAuthReconnects(t *testing.T) {
	f, c, _ := newSocketFixture(t, "")
	f.ackFor = func(n int) string {
		if n == 1 {
			return `{"type":"auth","body":{"status":"failed"}}`
		}
		return `{"type":"auth","body":{"status":"success"}}`
	}
	ctx := context.Background()
	c.Start(ctx)
	defer c.Stop(2 * time.Second)

	if !c.WaitAuthenticated(ctx, 2*time.Second) {
		t.Fatalf("not authenticated after %d auth attempts", f.authCount())
	}
	if got := f.authCount(); got != 2 {
		t.Fatalf("expected 2 auth attempts, got %d", got)
	}
	if f.device(0) == f.device(1) {
		t.Fatal("reconnect reused the rejected device id")
	}
}

func TestHandlePayloadRejectedAuth(t *testing.T) {
	_, c, _ := newSocketFixture(t, "")
	err := c.handlePayload(context.Background(), []byte(`{"type":"auth","body":{"status":"failed"}}`))
	if err != errAuthRejected {
		t.Fatalf("expected errAuthRejected, got %v", err)
	}
	if err := c.handlePayload(context.Background(), []byte(`{"type":"presence"}`)); err != nil {
		t.Fatalf("unrelated frame ended the session: %v", err)
	}
}
