package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/christopherjohns/hangbot/internal/room"
	"github.com/christopherjohns/hangbot/internal/telemetry"
)

const (
	// NotConfiguredText is replied when no provider is available.
	NotConfiguredText = "AI system not configured."

	errorPrefix   = "Sorry, I encountered an error: "
	maxErrorChars = 100
)

// ErrUnknownProvider is returned when an override names no configured provider.
var ErrUnknownProvider = errors.New("ai: unknown provider")

// Request is one reply attempt.
type Request struct {
	Message  string
	Role     string
	UserName string
	// Tone is optional guidance derived from the user's sentiment.
	Tone string
	// History is prior conversation, oldest first.
	History []Message
	// Override selects a provider for this call only.
	Override string
}

// Reply is the outcome of GenerateReply. Silent means the bot must not
// answer at all. Err is set when Text is an apology for a backend failure.
type Reply struct {
	Text     string
	Silent   bool
	Provider string
	Err      error
}

// Coordinator owns provider selection, prompt assembly and the room
// context that is fed into every prompt.
type Coordinator struct {
	providers []Provider
	backend   Backend
	persona   string
	maxChars  int
	timeout   time.Duration
	logger    *slog.Logger
	room      *room.State

	mu       sync.RWMutex
	override string
	disabled bool
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithPersona replaces the built-in persona text.
func WithPersona(p string) Option {
	return func(c *Coordinator) {
		if strings.TrimSpace(p) != "" {
			c.persona = p
		}
	}
}

// WithResponseLimit trims replies longer than n characters. Zero disables trimming.
func WithResponseLimit(n int) Option {
	return func(c *Coordinator) { c.maxChars = n }
}

// WithTimeout bounds a single backend call.
func WithTimeout(d time.Duration) Option {
	return func(c *Coordinator) { c.timeout = d }
}

// NewCoordinator creates a coordinator over providers in priority order.
func NewCoordinator(providers []Provider, backend Backend, logger *slog.Logger, opts ...Option) *Coordinator {
	c := &Coordinator{
		providers: append([]Provider(nil), providers...),
		backend:   backend,
		persona:   defaultPersona,
		maxChars:  200,
		timeout:   30 * time.Second,
		logger:    logger.With(slog.String("component", "ai")),
		room:      room.NewState(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GenerateReply produces a reply for req. It never returns an error:
// backend failures become an apology with Reply.Err set.
func (c *Coordinator) GenerateReply(ctx context.Context, req Request) Reply {
	c.mu.RLock()
	disabled, standing := c.disabled, c.override
	c.mu.RUnlock()

	if disabled {
		return Reply{Silent: true}
	}
	p, ok := c.pick(req.Override, standing)
	if !ok {
		return Reply{Text: NotConfiguredText}
	}

	ctx, span := telemetry.StartSpan(ctx, "hangbot/ai", "ai.generate_reply",
		attribute.String("ai.provider", p.Name),
		attribute.String("ai.model", p.Model),
	)
	defer span.End()

	msgs := c.buildMessages(p, req)
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	text, err := c.backend.Complete(callCtx, p, msgs)
	if err != nil {
		telemetry.ObserveAI(p.Name, "error", time.Since(start))
		telemetry.RecordError(span, err)
		c.logger.Warn("completion failed", slog.String("provider", p.ID()), slog.Any("err", err))
		return Reply{Text: errorPrefix + truncate(err.Error(), maxErrorChars), Provider: p.ID(), Err: err}
	}
	telemetry.ObserveAI(p.Name, "ok", time.Since(start))
	telemetry.SetSpanSuccess(span)
	return Reply{Text: trimReply(text, c.maxChars), Provider: p.ID()}
}

// pick resolves the provider chain: per-call override, standing override,
// then the first configured provider. Unknown names are skipped.
func (c *Coordinator) pick(names ...string) (Provider, bool) {
	for _, n := range names {
		if n == "" {
			continue
		}
		if p, ok := c.lookup(n); ok {
			return p, true
		}
	}
	if len(c.providers) == 0 {
		return Provider{}, false
	}
	return c.providers[0], true
}

func (c *Coordinator) lookup(name string) (Provider, bool) {
	for _, p := range c.providers {
		if strings.EqualFold(p.Name, name) || strings.EqualFold(p.ID(), name) {
			return p, true
		}
	}
	return Provider{}, false
}

// SetOverride pins a provider by name. "", "auto" and "default" clear it.
func (c *Coordinator) SetOverride(name string) error {
	name = strings.TrimSpace(name)
	switch strings.ToLower(name) {
	case "", "auto", "default":
		c.mu.Lock()
		c.override = ""
		c.mu.Unlock()
		return nil
	}
	p, ok := c.lookup(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	c.mu.Lock()
	c.override = p.Name
	c.mu.Unlock()
	return nil
}

// SetEnabled turns replies on or off.
func (c *Coordinator) SetEnabled(on bool) {
	c.mu.Lock()
	c.disabled = !on
	c.mu.Unlock()
}

// Enabled reports whether replies are on.
func (c *Coordinator) Enabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.disabled
}

// Providers returns the configured provider names in priority order.
func (c *Coordinator) Providers() []string {
	names := make([]string, len(c.providers))
	for i, p := range c.providers {
		names[i] = p.Name
	}
	return names
}

// Status renders the current AI state for chat.
func (c *Coordinator) Status() string {
	c.mu.RLock()
	disabled, override := c.disabled, c.override
	c.mu.RUnlock()

	if len(c.providers) == 0 {
		return "🤖 " + NotConfiguredText
	}
	state := "on"
	if disabled {
		state = "off"
	}
	active, _ := c.pick(override)
	mode := "auto"
	if override != "" {
		mode = "override"
	}
	return fmt.Sprintf("🤖 AI %s | provider: %s (%s) | available: %s",
		state, active.ID(), mode, strings.Join(c.Providers(), ", "))
}

// UpdateRoomContext merges partial into the room snapshot used in prompts.
func (c *Coordinator) UpdateRoomContext(partial room.Context) {
	c.room.Merge(partial)
}

// RoomContext returns the current room snapshot.
func (c *Coordinator) RoomContext() room.Context {
	return c.room.Snapshot()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
