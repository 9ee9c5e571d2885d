// Package command parses chat commands and routes them to role-gated handlers.
package command

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/christopherjohns/hangbot/internal/perms"
	"github.com/christopherjohns/hangbot/internal/telemetry"
)

// Accepted prefixes: "/", "/.", "!", "!.", "./" and ".".
var pattern = regexp.MustCompile(`(?s)^(/\.?|!\.?|\./|\.)(\w+)(?:\s+(.*))?$`)

const maxErrorChars = 100

// Caller identifies who sent a command.
type Caller struct {
	ID   string
	Name string
}

// Invocation is what a handler receives.
type Invocation struct {
	Caller Caller
	Role   perms.Role
	Name   string
	Args   string
}

// Handler runs a command and returns the reply text. An empty reply
// sends nothing.
type Handler func(ctx context.Context, inv Invocation) (string, error)

// RoleResolver maps identities to roles and roles to permissions.
type RoleResolver interface {
	ResolveRole(id string) perms.Role
	HasPermission(role perms.Role, cmd string) bool
}

// Parse splits text into a lower-cased command name and raw args.
// ok is false when text is not a command.
func Parse(text string) (name, args string, ok bool) {
	m := pattern.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return "", "", false
	}
	return strings.ToLower(m[2]), strings.TrimSpace(m[3]), true
}

// Dispatcher owns the handler registry. Register every handler before the
// first Dispatch; the registry is not safe for concurrent mutation.
type Dispatcher struct {
	roles    RoleResolver
	handlers map[string]Handler
	logger   *slog.Logger
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher(roles RoleResolver, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		roles:    roles,
		handlers: make(map[string]Handler),
		logger:   logger.With(slog.String("component", "command")),
	}
}

// Register binds name to h. Registering a name twice panics.
func (d *Dispatcher) Register(name string, h Handler) {
	name = strings.ToLower(name)
	if _, dup := d.handlers[name]; dup {
		panic("command: duplicate handler " + name)
	}
	d.handlers[name] = h
}

// Names returns the registered command names.
func (d *Dispatcher) Names() []string {
	names := make([]string, 0, len(d.handlers))
	for n := range d.handlers {
		names = append(names, n)
	}
	return names
}

// Dispatch handles text from caller. isCommand is false when text does not
// parse as a command, in which case reply is empty. Handler errors and
// panics are turned into an error reply.
func (d *Dispatcher) Dispatch(ctx context.Context, caller Caller, text string) (reply string, isCommand bool) {
	name, args, ok := Parse(text)
	if !ok {
		return "", false
	}

	h, registered := d.handlers[name]
	label := "other"
	if registered {
		label = name
	}

	role := d.roles.ResolveRole(caller.ID)
	if !d.roles.HasPermission(role, name) {
		telemetry.IncCommand(label, "denied")
		d.logger.Info("command denied", slog.String("command", name), slog.String("caller", caller.ID), slog.String("role", string(role)))
		return fmt.Sprintf("❌ You don't have permission to use /%s", name), true
	}

	if !registered {
		telemetry.IncCommand(label, "unknown")
		return fmt.Sprintf("❓ Unknown command: /%s. Type /help for available commands.", name), true
	}

	ctx, span := telemetry.StartSpan(ctx, "hangbot/command", "command."+name,
		attribute.String("command.caller", caller.ID),
		attribute.String("command.role", string(role)),
	)
	defer span.End()

	out, err := d.invoke(ctx, h, Invocation{Caller: caller, Role: role, Name: name, Args: args})
	if err != nil {
		telemetry.IncCommand(label, "error")
		telemetry.RecordError(span, err)
		d.logger.Warn("command failed", slog.String("command", name), slog.Any("err", err))
		return "❌ Command error: " + truncate(err.Error(), maxErrorChars), true
	}
	telemetry.IncCommand(label, "ok")
	return out, true
}

func (d *Dispatcher) invoke(ctx context.Context, h Handler, inv Invocation) (out string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return h(ctx, inv)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
