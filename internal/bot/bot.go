// Package bot is the single consumer of the event queue. It routes chat
// to commands or AI replies and folds room events into the room context.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/christopherjohns/hangbot/internal/ai"
	"github.com/christopherjohns/hangbot/internal/command"
	"github.com/christopherjohns/hangbot/internal/event"
	"github.com/christopherjohns/hangbot/internal/filter"
	"github.com/christopherjohns/hangbot/internal/perms"
	"github.com/christopherjohns/hangbot/internal/ratelimit"
	"github.com/christopherjohns/hangbot/internal/telemetry"
	"github.com/christopherjohns/hangbot/internal/uptime"
	"github.com/christopherjohns/hangbot/internal/user"
)

// LinkGuardText is sent instead of an AI reply when the prompt has a link.
const LinkGuardText = "🚫 Links are not allowed in AI prompts"

// systemSenders are synthetic identities the chat backend posts as.
var systemSenders = map[string]bool{"app_system": true, "system": true}

// Source yields queued events.
type Source interface {
	Get(ctx context.Context) (event.Event, error)
}

// Sender delivers text to the room chat.
type Sender interface {
	SendText(ctx context.Context, text string) bool
}

// Config tunes the dispatch loop.
type Config struct {
	// SelfUID is the bot's own chat identity; its messages are ignored.
	SelfUID       string
	Triggers      filter.Triggers
	HistoryWindow int
	RepoURL       string
}

// Deps are the collaborators the loop drives.
type Deps struct {
	Events      Source
	Chat        Sender
	Coordinator *ai.Coordinator
	Permissions *perms.Permissions
	Resolver    *perms.Resolver
	Memory      *user.Memory
	Uptime      *uptime.Tracker
	Limiter     *ratelimit.UserLimiter
	Policy      filter.Policy
}

// Bot drains the queue one event at a time.
type Bot struct {
	cfg        Config
	deps       Deps
	dispatcher *command.Dispatcher
	logger     *slog.Logger
}

// New wires the dispatcher and registers the built-in commands.
func New(cfg Config, deps Deps, logger *slog.Logger) *Bot {
	if deps.Policy == nil {
		deps.Policy = filter.Permissive{}
	}
	if deps.Limiter == nil {
		deps.Limiter = ratelimit.NewUserLimiter(0, 0)
	}
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = 5
	}
	if cfg.RepoURL == "" {
		cfg.RepoURL = defaultRepoURL
	}
	b := &Bot{
		cfg:        cfg,
		deps:       deps,
		dispatcher: command.NewDispatcher(deps.Resolver, logger),
		logger:     logger.With(slog.String("component", "bot")),
	}
	b.registerCommands()
	return b
}

// Run handles events until ctx ends or the queue is closed.
func (b *Bot) Run(ctx context.Context) error {
	b.logger.Info("dispatch loop started")
	for {
		ev, err := b.deps.Events.Get(ctx)
		if err != nil {
			if errors.Is(err, event.ErrClosed) || ctx.Err() != nil {
				b.logger.Info("dispatch loop stopped")
				return nil
			}
			return fmt.Errorf("dequeue: %w", err)
		}
		b.Handle(ctx, ev)
	}
}

// Handle processes one event. Failures and panics are logged and counted;
// they never escape.
func (b *Bot) Handle(ctx context.Context, ev event.Event) {
	outcome := "ok"
	defer func() {
		if r := recover(); r != nil {
			outcome = "panic"
			b.logger.Error("event handler panicked", slog.String("topic", string(ev.Topic)), slog.Any("panic", r))
		}
		telemetry.IncHandled(ev.Topic.Label(), outcome)
	}()
	if err := b.route(ctx, ev.Topic, ev.Payload); err != nil {
		outcome = "error"
		b.logger.Warn("event handling failed", slog.String("topic", string(ev.Topic)), slog.String("id", ev.ID), slog.Any("err", err))
	}
}

// Greet sends the boot announcement.
func (b *Bot) Greet(ctx context.Context, text string) {
	if text != "" {
		b.send(ctx, text)
	}
}

func (b *Bot) route(ctx context.Context, topic event.Topic, payload []byte) error {
	switch topic {
	case event.TopicChatMessage:
		return b.handleChat(ctx, payload)
	case event.TopicPlayedSong:
		b.handleSong(payload)
	case event.TopicUserJoined:
		b.handleUserJoined(payload)
	case event.TopicUserLeft:
		b.handleUserLeft(payload)
	case event.TopicAddedDJ:
		b.handleDJAdded(payload)
	case event.TopicRemovedDJ:
		b.handleDJRemoved(payload)
	case event.TopicRoomStateUpdated:
		b.handleRoomState(payload)
	case event.TopicRoomJoined:
		b.logger.Info("room join confirmed")
		b.handleRoomState(event.Inner(payload, "state", "room", "data"))
	case event.TopicRoomUser, event.TopicRoomAPI, event.TopicRoomMisc,
		event.TopicStatefulMessage, event.TopicStatelessMessage:
		return b.routeNested(ctx, topic, payload)
	default:
		b.logger.Debug("unhandled topic", slog.String("topic", string(topic)))
	}
	return nil
}

// nestedTopics maps inner event names, lower-cased, onto room topics.
var nestedTopics = map[string]event.Topic{
	"playedsong":       event.TopicPlayedSong,
	"userjoined":       event.TopicUserJoined,
	"userleft":         event.TopicUserLeft,
	"addeddj":          event.TopicAddedDJ,
	"removeddj":        event.TopicRemovedDJ,
	"roomstateupdated": event.TopicRoomStateUpdated,
}

// routeNested unwraps presence and relay frames that carry a named room
// event inside them.
func (b *Bot) routeNested(ctx context.Context, outer event.Topic, payload []byte) error {
	name := event.EventNamePaths.String(payload)
	inner, ok := nestedTopics[strings.ToLower(name)]
	if !ok {
		b.logger.Debug("unmapped room frame", slog.String("topic", string(outer)), slog.String("name", name))
		return nil
	}
	return b.route(ctx, inner, event.Inner(payload, "params", "data", "message.payload", "payload"))
}

func (b *Bot) send(ctx context.Context, text string) bool {
	ok := b.deps.Chat.SendText(ctx, text)
	telemetry.IncSent(ok)
	if !ok {
		b.logger.Warn("chat send failed", slog.Int("chars", len(text)))
	}
	return ok
}

func (b *Bot) handleChat(ctx context.Context, payload []byte) error {
	msg, ok := event.ParseChat(payload)
	if !ok {
		return nil
	}
	text := strings.TrimSpace(msg.Text)
	uid := msg.Sender.UID
	if text == "" || uid == "" || uid == b.cfg.SelfUID || systemSenders[uid] {
		return nil
	}
	if !b.deps.Policy.Allow(text) {
		b.logger.Debug("message rejected by content policy", slog.String("sender", uid))
		return nil
	}

	caller := command.Caller{ID: uid, Name: msg.Sender.Name}
	if caller.Name == "" {
		caller.Name = uid
	}
	if reply, isCommand := b.dispatcher.Dispatch(ctx, caller, text); isCommand {
		if reply != "" {
			b.send(ctx, reply)
		}
		return nil
	}
	if b.cfg.Triggers.Match(text) {
		b.replyWithAI(ctx, caller, text)
	}
	return nil
}

func (b *Bot) replyWithAI(ctx context.Context, caller command.Caller, text string) {
	if filter.ContainsLink(text) {
		b.send(ctx, LinkGuardText)
		return
	}
	role := b.deps.Resolver.ResolveRole(caller.ID)
	if !role.Staff() && !b.deps.Limiter.Allow(caller.ID) {
		b.logger.Info("ai trigger throttled", slog.String("sender", caller.ID),
			slog.Duration("retry_after", b.deps.Limiter.RetryAfter(caller.ID)))
		return
	}

	sentiment := b.deps.Memory.Observe(ctx, caller.ID, caller.Name, text)
	turns := b.deps.Memory.History(caller.ID, b.cfg.HistoryWindow)
	history := make([]ai.Message, 0, len(turns))
	for _, t := range turns {
		history = append(history, ai.Message{Role: t.Role, Content: t.Content})
	}

	reply := b.deps.Coordinator.GenerateReply(ctx, ai.Request{
		Message:  text,
		Role:     string(role),
		UserName: caller.Name,
		Tone:     user.ToneHint(sentiment),
		History:  history,
	})
	if reply.Silent || reply.Text == "" {
		return
	}
	if !b.send(ctx, reply.Text) || reply.Err != nil {
		return
	}
	b.deps.Memory.Append(ctx, caller.ID, user.RoleUser, text)
	b.deps.Memory.Append(ctx, caller.ID, user.RoleAssistant, reply.Text)
}
