package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/christopherjohns/hangbot/internal/event"
	"github.com/christopherjohns/hangbot/internal/wsclient"
)

// SocketClient is the realtime CometChat transport.
type SocketClient struct {
	cfg    Config
	sink   event.Sink
	logger *slog.Logger

	authed *wsclient.Latch
	state  atomic.Int32

	newBackOff func() backoff.BackOff

	connMu   sync.RWMutex
	conn     *wsclient.Conn
	deviceID string

	runMu   sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
}

var _ Transport = (*SocketClient)(nil)

// errAuthRejected ends a session whose login the backend refused.
var errAuthRejected = errors.New("chat: auth rejected")

// NewSocketClient validates cfg and returns a stopped client.
func NewSocketClient(cfg Config, sink event.Sink, logger *slog.Logger) (*SocketClient, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	c := &SocketClient{
		cfg:    cfg,
		sink:   sink,
		logger: logger.With(slog.String("component", "chat_socket")),
		authed: wsclient.NewLatch(),
	}
	c.newBackOff = func() backoff.BackOff { return wsclient.ConstantBackOff(c.cfg.ReconnectDelay) }
	return c, nil
}

// Start launches the connection loop. It is idempotent.
func (c *SocketClient) Start(ctx context.Context) {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	if c.started {
		return
	}
	c.started = true
	ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})
	go func() {
		defer close(c.done)
		wsclient.Redial(ctx, "chat_socket", c.newBackOff(), c.logger, c.session)
	}()
}

// Stop cancels the loop and waits up to timeout.
func (c *SocketClient) Stop(timeout time.Duration) {
	c.runMu.Lock()
	if !c.started {
		c.runMu.Unlock()
		return
	}
	c.started = false
	cancel, done := c.cancel, c.done
	c.runMu.Unlock()

	cancel()
	select {
	case <-done:
	case <-time.After(timeout):
		c.logger.Warn("chat socket loop did not stop in time")
	}
}

// WaitAuthenticated blocks until the login is acknowledged or timeout elapses.
func (c *SocketClient) WaitAuthenticated(ctx context.Context, timeout time.Duration) bool {
	return c.authed.Wait(ctx, timeout)
}

// Ready reports whether the current connection is authenticated.
func (c *SocketClient) Ready() bool {
	return c.authed.IsSet()
}

// State returns the current connection state.
func (c *SocketClient) State() wsclient.State {
	return wsclient.State(c.state.Load())
}

// HandleAuthPayload marks the connection authenticated when raw is a
// recognised success acknowledgement.
func (c *SocketClient) HandleAuthPayload(raw []byte) bool {
	if !IsAuthSuccess(raw) {
		return false
	}
	if !c.authed.IsSet() {
		c.state.Store(int32(wsclient.Ready))
		c.authed.Set()
		c.logger.Info("authenticated", slog.String("uid", c.cfg.UID))
	}
	return true
}

// SendText implements Transport.
func (c *SocketClient) SendText(ctx context.Context, text string) bool {
	if !c.authed.IsSet() {
		c.logger.Warn("send skipped: not authenticated")
		return false
	}
	c.connMu.RLock()
	conn, deviceID := c.conn, c.deviceID
	c.connMu.RUnlock()
	if conn == nil {
		return false
	}
	if err := conn.WriteJSON(ctx, newMessageFrame(&c.cfg, deviceID, text)); err != nil {
		c.logger.Warn("send failed", slog.Any("err", err))
		return false
	}
	return true
}

func (c *SocketClient) session(ctx context.Context, connected func()) error {
	c.authed.Clear()
	c.state.Store(int32(wsclient.Connecting))
	defer c.state.Store(int32(wsclient.Disconnected))

	conn, err := wsclient.Dial(ctx, c.cfg.socketURL(),
		wsclient.WithHeader("Origin", c.cfg.Origin),
		wsclient.WithHeader("User-Agent", c.cfg.UserAgent),
	)
	if err != nil {
		return err
	}
	defer conn.Close("bye")
	connected()

	deviceID := "WEB-4_0_10-" + uuid.NewString()
	c.connMu.Lock()
	c.conn, c.deviceID = conn, deviceID
	c.connMu.Unlock()
	defer func() {
		c.authed.Clear()
		c.connMu.Lock()
		c.conn = nil
		c.connMu.Unlock()
	}()

	c.state.Store(int32(wsclient.AwaitingAuth))
	if err := conn.WriteJSON(ctx, newAuthFrame(&c.cfg, deviceID, time.Now())); err != nil {
		return fmt.Errorf("send auth: %w", err)
	}
	c.logger.Info("connected, auth sent", slog.String("device", deviceID))

	for {
		raw, err := conn.ReadText(ctx, 0)
		if err != nil {
			return err
		}
		if err := c.handlePayload(ctx, raw); err != nil {
			return err
		}
	}
}

func (c *SocketClient) handlePayload(ctx context.Context, raw []byte) error {
	if !gjson.ValidBytes(raw) {
		return nil
	}
	if c.HandleAuthPayload(raw) {
		return nil
	}
	typ := gjson.GetBytes(raw, "type").String()
	if typ == "auth" {
		c.logger.Warn("auth rejected", slog.String("status", gjson.GetBytes(raw, "body.status").String()))
		return errAuthRejected
	}
	if typ != "message" {
		return nil
	}
	msg, ok := parseSocketMessage(raw, c.cfg.RoomID)
	if !ok {
		return nil
	}
	return c.sink.Put(ctx, event.NewChat(event.SourceChat, msg))
}

// parseSocketMessage normalizes an inbound text message addressed to room.
func parseSocketMessage(raw []byte, room string) (event.ChatMessage, bool) {
	if t := gjson.GetBytes(raw, "body.type"); t.Exists() && t.String() != "text" {
		return event.ChatMessage{}, false
	}
	recv, _ := event.Paths{"receiver", "body.receiver"}.Lookup(raw)
	if recv != "" && recv != room {
		return event.ChatMessage{}, false
	}
	return event.ParseChat(raw)
}
