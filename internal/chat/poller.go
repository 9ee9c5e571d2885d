package chat

import (
	"context"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"github.com/christopherjohns/hangbot/internal/event"
	"github.com/christopherjohns/hangbot/internal/wsclient"
)

const pollLimit = 10

// systemSenders never produce user chat.
var systemSenders = map[string]bool{"app_system": true, "system": true}

// Poller pulls recent group messages and forwards the ones it has not
// seen, oldest first, tracking the highest message id.
type Poller struct {
	client   *HTTPClient
	sink     event.Sink
	interval time.Duration
	logger   *slog.Logger

	ready *wsclient.Latch

	mu     sync.Mutex
	lastID int64
	primed bool
}

// NewPoller creates a poller over client.
func NewPoller(client *HTTPClient, sink event.Sink, logger *slog.Logger) *Poller {
	return &Poller{
		client:   client,
		sink:     sink,
		interval: client.cfg.PollInterval,
		logger:   logger.With(slog.String("component", "chat_poller")),
		ready:    wsclient.NewLatch(),
	}
}

// Run polls until ctx ends.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		if err := p.PollOnce(ctx); err != nil && ctx.Err() == nil {
			p.logger.Warn("poll failed", slog.Any("err", err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

type polled struct {
	id  int64
	raw string
}

// PollOnce fetches one page. The first successful fetch only records the
// watermark so history is not replayed.
func (p *Poller) PollOnce(ctx context.Context) error {
	body, err := p.client.recentMessages(ctx, pollLimit)
	if err != nil {
		return err
	}

	var batch []polled
	gjson.GetBytes(body, "data").ForEach(func(_, m gjson.Result) bool {
		id, err := strconv.ParseInt(m.Get("id").String(), 10, 64)
		if err == nil {
			batch = append(batch, polled{id: id, raw: m.Raw})
		}
		return true
	})
	sort.Slice(batch, func(i, j int) bool { return batch[i].id < batch[j].id })

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.primed {
		for _, m := range batch {
			p.lastID = max(p.lastID, m.id)
		}
		p.primed = true
		p.ready.Set()
		p.logger.Info("poller primed", slog.Int64("watermark", p.lastID))
		return nil
	}

	for _, m := range batch {
		if m.id <= p.lastID {
			continue
		}
		p.lastID = m.id
		msg, ok := parsePolled([]byte(m.raw))
		if !ok || msg.Sender.UID == p.client.cfg.UID || systemSenders[msg.Sender.UID] {
			continue
		}
		if err := p.sink.Put(ctx, event.NewChat(event.SourceChat, msg)); err != nil {
			return err
		}
	}
	return nil
}

// Watermark returns the highest message id seen.
func (p *Poller) Watermark() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastID
}

func parsePolled(raw []byte) (event.ChatMessage, bool) {
	if gjson.GetBytes(raw, "type").String() != "text" {
		return event.ChatMessage{}, false
	}
	if c := gjson.GetBytes(raw, "category"); c.Exists() && c.String() != "message" {
		return event.ChatMessage{}, false
	}
	return event.ParseChat(raw)
}

// HTTPTransport combines REST sends with polling for inbound chat.
type HTTPTransport struct {
	client *HTTPClient
	poller *Poller
	logger *slog.Logger

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
}

var _ Transport = (*HTTPTransport)(nil)

// NewHTTPTransport validates cfg and builds the client and poller.
func NewHTTPTransport(cfg Config, sink event.Sink, logger *slog.Logger) (*HTTPTransport, error) {
	client, err := NewHTTPClient(cfg, logger)
	if err != nil {
		return nil, err
	}
	return &HTTPTransport{
		client: client,
		poller: NewPoller(client, sink, logger),
		logger: logger.With(slog.String("component", "chat_http")),
	}, nil
}

// Start launches the poller. It is idempotent.
func (t *HTTPTransport) Start(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.started {
		return
	}
	t.started = true
	ctx, t.cancel = context.WithCancel(ctx)
	t.done = make(chan struct{})
	go func() {
		defer close(t.done)
		t.poller.Run(ctx)
	}()
}

// Stop halts the poller, waiting up to timeout.
func (t *HTTPTransport) Stop(timeout time.Duration) {
	t.mu.Lock()
	if !t.started {
		t.mu.Unlock()
		return
	}
	t.started = false
	cancel, done := t.cancel, t.done
	t.mu.Unlock()

	cancel()
	select {
	case <-done:
	case <-time.After(timeout):
		t.logger.Warn("poller did not stop in time")
	}
}

// WaitAuthenticated waits for the first successful poll, which proves
// the credentials work.
func (t *HTTPTransport) WaitAuthenticated(ctx context.Context, timeout time.Duration) bool {
	return t.poller.ready.Wait(ctx, timeout)
}

// Ready reports whether a poll has succeeded.
func (t *HTTPTransport) Ready() bool {
	return t.poller.ready.IsSet()
}

// SendText implements Transport.
func (t *HTTPTransport) SendText(ctx context.Context, text string) bool {
	return t.client.SendText(ctx, text)
}
