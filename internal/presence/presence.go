// Package presence keeps the bot joined to a room over the Primus socket.
package presence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/tidwall/gjson"

	"github.com/christopherjohns/hangbot/internal/event"
	"github.com/christopherjohns/hangbot/internal/idgen"
	"github.com/christopherjohns/hangbot/internal/wsclient"
)

const (
	pingPrefix = "primus::ping::"
	pongPrefix = "primus::pong::"

	// DefaultURL is the production Primus endpoint.
	DefaultURL = "wss://socket.prod.tt.fm/primus"
)

// ErrNotConfigured is returned by New when token or room is missing.
var ErrNotConfigured = errors.New("presence: token and room uuid are required")

// Config configures a Client.
type Config struct {
	URL         string
	Token       string
	RoomUUID    string
	RecvTimeout time.Duration
	MaxBackoff  time.Duration
	Origin      string
	UserAgent   string
}

// Client maintains the room connection and forwards frames to a sink.
type Client struct {
	cfg    Config
	sink   event.Sink
	logger *slog.Logger

	joined *wsclient.Latch
	state  atomic.Int32

	// newBackOff is swapped in tests.
	newBackOff func() backoff.BackOff

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New validates cfg and returns a stopped client.
func New(cfg Config, sink event.Sink, logger *slog.Logger) (*Client, error) {
	if cfg.Token == "" || cfg.RoomUUID == "" {
		return nil, ErrNotConfigured
	}
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.RecvTimeout <= 0 {
		cfg.RecvTimeout = 45 * time.Second
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 60 * time.Second
	}
	c := &Client{
		cfg:    cfg,
		sink:   sink,
		logger: logger.With(slog.String("component", "presence")),
		joined: wsclient.NewLatch(),
	}
	c.newBackOff = func() backoff.BackOff { return wsclient.ExponentialBackOff(c.cfg.MaxBackoff) }
	return c, nil
}

// Start launches the connection loop. Calling Start on a running client
// does nothing.
func (c *Client) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return
	}
	c.started = true
	ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})
	go func() {
		defer close(c.done)
		wsclient.Redial(ctx, "presence", c.newBackOff(), c.logger, c.session)
		c.setState(wsclient.Disconnected)
	}()
}

// Stop cancels the loop and waits up to timeout for it to exit.
func (c *Client) Stop(timeout time.Duration) {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return
	}
	c.started = false
	cancel, done := c.cancel, c.done
	c.mu.Unlock()

	cancel()
	select {
	case <-done:
	case <-time.After(timeout):
		c.logger.Warn("presence loop did not stop in time")
	}
}

// WaitJoined blocks until the room join is confirmed or timeout elapses.
func (c *Client) WaitJoined(ctx context.Context, timeout time.Duration) bool {
	return c.joined.Wait(ctx, timeout)
}

// Joined reports whether the current connection has confirmed the join.
func (c *Client) Joined() bool {
	return c.joined.IsSet()
}

// State returns the current connection state.
func (c *Client) State() wsclient.State {
	return wsclient.State(c.state.Load())
}

func (c *Client) setState(s wsclient.State) {
	c.state.Store(int32(s))
}

// dialURL appends the token and a fresh cache-busting nonce.
func (c *Client) dialURL() (string, error) {
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	q := u.Query()
	q.Set("token", c.cfg.Token)
	q.Set("_primuscb", idgen.Nonce(8))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

type joinFrame struct {
	Event     string     `json:"event"`
	Params    joinParams `json:"params"`
	MessageID int        `json:"messageId"`
}

type joinParams struct {
	RoomUUID string `json:"roomUuid"`
	Action   string `json:"action"`
}

func (c *Client) session(ctx context.Context, connected func()) error {
	c.joined.Clear()
	c.setState(wsclient.Connecting)
	defer c.setState(wsclient.Disconnected)

	u, err := c.dialURL()
	if err != nil {
		return err
	}
	var opts []wsclient.Option
	if c.cfg.Origin != "" {
		opts = append(opts, wsclient.WithHeader("Origin", c.cfg.Origin))
	}
	if c.cfg.UserAgent != "" {
		opts = append(opts, wsclient.WithHeader("User-Agent", c.cfg.UserAgent))
	}
	conn, err := wsclient.Dial(ctx, u, opts...)
	if err != nil {
		return err
	}
	defer conn.Close("bye")
	connected()
	c.logger.Info("connected", slog.String("room", c.cfg.RoomUUID))

	c.setState(wsclient.AwaitingAuth)
	join := joinFrame{
		Event:     "action",
		Params:    joinParams{RoomUUID: c.cfg.RoomUUID, Action: "joinRoom"},
		MessageID: 1,
	}
	if err := conn.WriteJSON(ctx, join); err != nil {
		return fmt.Errorf("send join: %w", err)
	}

	for {
		frame, err := conn.ReadText(ctx, c.cfg.RecvTimeout)
		if err != nil {
			return err
		}
		if err := c.handleFrame(ctx, conn, frame); err != nil {
			return err
		}
	}
}

// handleFrame answers keep-alives inline and classifies everything else.
func (c *Client) handleFrame(ctx context.Context, conn *wsclient.Conn, frame []byte) error {
	text := strings.TrimSpace(string(frame))
	if ts, ok := strings.CutPrefix(text, pingPrefix); ok {
		return conn.WriteText(ctx, []byte(pongPrefix+ts))
	}
	if strings.HasPrefix(text, pongPrefix) {
		return nil
	}
	ev, ok := c.classify(frame)
	if !ok {
		c.logger.Debug("dropping non-json frame", slog.Int("bytes", len(frame)))
		return nil
	}
	return c.sink.Put(ctx, ev)
}

// classify maps a raw presence frame to a queued event. ok is false for
// frames that are not JSON objects.
func (c *Client) classify(frame []byte) (event.Event, bool) {
	if !json.Valid(frame) || !gjson.ParseBytes(frame).IsObject() {
		return event.Event{}, false
	}
	var topic event.Topic
	switch gjson.GetBytes(frame, "context").String() {
	case "response":
		if !c.joined.IsSet() {
			c.setState(wsclient.Ready)
			c.joined.Set()
			c.logger.Info("room joined", slog.String("room", c.cfg.RoomUUID))
		}
		topic = event.TopicRoomJoined
	case "user":
		topic = event.TopicRoomUser
	case "api":
		topic = event.TopicRoomAPI
	default:
		topic = event.TopicRoomMisc
	}
	return event.New(topic, event.SourcePresence, frame), true
}
