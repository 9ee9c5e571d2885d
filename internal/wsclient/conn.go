// Package wsclient wraps outbound WebSocket connections used by the room
// presence and chat clients: dialing with headers, idle-bounded reads,
// timed writes, and a reconnect loop.
package wsclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"nhooyr.io/websocket"
)

const (
	// writeTimeout is the max time to wait for a single write to complete.
	writeTimeout = 5 * time.Second

	// defaultReadLimit caps a single inbound frame.
	defaultReadLimit = 1 << 20

	dialTimeout = 15 * time.Second
)

// ErrIdle is returned by Read when no frame arrived within the idle window.
var ErrIdle = errors.New("wsclient: receive timeout")

// Conn is a single client connection.
type Conn struct {
	ws           *websocket.Conn
	writeTimeout time.Duration
}

type dialConfig struct {
	header       http.Header
	readLimit    int64
	writeTimeout time.Duration
}

// Option configures Dial.
type Option func(*dialConfig)

// WithHeader adds a request header to the handshake.
func WithHeader(key, value string) Option {
	return func(c *dialConfig) { c.header.Set(key, value) }
}

// WithReadLimit overrides the max inbound frame size.
func WithReadLimit(n int64) Option {
	return func(c *dialConfig) { c.readLimit = n }
}

// WithWriteTimeout overrides the per-write deadline.
func WithWriteTimeout(d time.Duration) Option {
	return func(c *dialConfig) { c.writeTimeout = d }
}

// Dial opens a connection to url.
func Dial(ctx context.Context, url string, opts ...Option) (*Conn, error) {
	cfg := dialConfig{
		header:       http.Header{},
		readLimit:    defaultReadLimit,
		writeTimeout: writeTimeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	dctx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	ws, resp, err := websocket.Dial(dctx, url, &websocket.DialOptions{HTTPHeader: cfg.header})
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	ws.SetReadLimit(cfg.readLimit)
	return &Conn{ws: ws, writeTimeout: cfg.writeTimeout}, nil
}

// ReadText returns the next text frame. Binary frames are skipped. With a
// positive idle, a read that waits longer than idle returns ErrIdle; the
// connection is unusable afterwards.
func (c *Conn) ReadText(ctx context.Context, idle time.Duration) ([]byte, error) {
	for {
		rctx, cancel := ctx, context.CancelFunc(func() {})
		if idle > 0 {
			rctx, cancel = context.WithTimeout(ctx, idle)
		}
		typ, data, err := c.ws.Read(rctx)
		timedOut := rctx.Err() == context.DeadlineExceeded && ctx.Err() == nil
		cancel()
		if err != nil {
			if timedOut {
				return nil, ErrIdle
			}
			return nil, err
		}
		if typ == websocket.MessageText {
			return data, nil
		}
	}
}

// WriteText sends a text frame.
func (c *Conn) WriteText(ctx context.Context, data []byte) error {
	wctx, cancel := context.WithTimeout(ctx, c.writeTimeout)
	defer cancel()
	return c.ws.Write(wctx, websocket.MessageText, data)
}

// WriteJSON encodes v and sends it as a text frame.
func (c *Conn) WriteJSON(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	return c.WriteText(ctx, data)
}

// Close closes the connection with a normal closure status.
func (c *Conn) Close(reason string) error {
	return c.ws.Close(websocket.StatusNormalClosure, reason)
}
