package bot

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/christopherjohns/hangbot/internal/ai"
	"github.com/christopherjohns/hangbot/internal/command"
)

const (
	defaultRepoURL = "https://github.com/randomSPPOCguy/HangDeepcutFMBotAlpha1.4.20.69"
	thanksText     = "Thank you to Jodrell, noiz, Kai the Husky, butter, and the music sharing community for inspiring me to build this project"
)

// adminUsage documents the staff commands. Order is display order.
var adminUsage = []struct{ name, usage string }{
	{"ai", "/.ai [status|on|off|auto|<provider>] - show or change AI replies"},
	{"listperms", "/.listperms - list co-owners and moderators"},
	{"addcoowner", "/.addcoowner <uuid> [name] - grant co-owner"},
	{"removecoowner", "/.removecoowner <uuid> - revoke co-owner"},
	{"addmod", "/.addmod <uuid> [name] - grant moderator"},
	{"removemod", "/.removemod <uuid> - revoke moderator"},
}

func (b *Bot) registerCommands() {
	d := b.dispatcher
	d.Register("uptime", b.cmdUptime)
	d.Register("ai", b.cmdAI)
	d.Register("addcoowner", b.cmdAddCoowner)
	d.Register("addmod", b.cmdAddMod)
	d.Register("removecoowner", b.cmdRemoveCoowner)
	d.Register("removemod", b.cmdRemoveMod)
	d.Register("listperms", b.cmdListPerms)
	d.Register("myuuid", b.cmdMyUUID)
	d.Register("room", b.cmdRoom)
	d.Register("commands", b.cmdCommands)
	d.Register("help", b.cmdCommands)
	d.Register("adminhelp", b.cmdAdminHelp)
	d.Register("gitlink", func(context.Context, command.Invocation) (string, error) {
		return "🔗 Source: " + b.cfg.RepoURL, nil
	})
	d.Register("ty", func(context.Context, command.Invocation) (string, error) {
		return thanksText, nil
	})
}

func (b *Bot) cmdUptime(context.Context, command.Invocation) (string, error) {
	return b.deps.Uptime.Summary(), nil
}

func (b *Bot) cmdAI(_ context.Context, inv command.Invocation) (string, error) {
	c := b.deps.Coordinator
	arg := strings.ToLower(strings.TrimSpace(inv.Args))
	switch arg {
	case "", "status":
		return c.Status(), nil
	case "on":
		c.SetEnabled(true)
		return "✅ AI replies enabled", nil
	case "off":
		c.SetEnabled(false)
		return "⏸️ AI replies disabled", nil
	case "auto", "default":
		_ = c.SetOverride("")
		return "🔄 AI provider selection: auto", nil
	}
	if err := c.SetOverride(arg); err != nil {
		if errors.Is(err, ai.ErrUnknownProvider) {
			available := strings.Join(c.Providers(), ", ")
			if available == "" {
				available = "none"
			}
			return fmt.Sprintf("❌ Unknown provider: %s. Available: %s", arg, available), nil
		}
		return "", err
	}
	return "✅ AI provider set to " + arg, nil
}

// target splits "uuid [display name]". The name defaults to the uuid.
func target(args string) (id, name string, ok bool) {
	id, rest, _ := strings.Cut(strings.TrimSpace(args), " ")
	if id == "" {
		return "", "", false
	}
	name = strings.TrimSpace(rest)
	if name == "" {
		name = id
	}
	return id, name, true
}

func (b *Bot) cmdAddCoowner(ctx context.Context, inv command.Invocation) (string, error) {
	id, name, ok := target(inv.Args)
	if !ok {
		return "Usage: /.addcoowner <uuid> [name]", nil
	}
	if err := b.deps.Permissions.AddCoowner(ctx, id, name); err != nil {
		return "", err
	}
	return fmt.Sprintf("👑 %s is now a co-owner", name), nil
}

func (b *Bot) cmdAddMod(ctx context.Context, inv command.Invocation) (string, error) {
	id, name, ok := target(inv.Args)
	if !ok {
		return "Usage: /.addmod <uuid> [name]", nil
	}
	if err := b.deps.Permissions.AddModerator(ctx, id, name); err != nil {
		return "", err
	}
	return fmt.Sprintf("🛡️ %s is now a moderator", name), nil
}

func (b *Bot) cmdRemoveCoowner(ctx context.Context, inv command.Invocation) (string, error) {
	id, _, ok := target(inv.Args)
	if !ok {
		return "Usage: /.removecoowner <uuid>", nil
	}
	removed, err := b.deps.Permissions.RemoveCoowner(ctx, id)
	if err != nil {
		return "", err
	}
	if !removed {
		return fmt.Sprintf("ℹ️ %s is not a co-owner", id), nil
	}
	return fmt.Sprintf("✅ Removed co-owner %s", id), nil
}

func (b *Bot) cmdRemoveMod(ctx context.Context, inv command.Invocation) (string, error) {
	id, _, ok := target(inv.Args)
	if !ok {
		return "Usage: /.removemod <uuid>", nil
	}
	removed, err := b.deps.Permissions.RemoveModerator(ctx, id)
	if err != nil {
		return "", err
	}
	if !removed {
		return fmt.Sprintf("ℹ️ %s is not a moderator", id), nil
	}
	return fmt.Sprintf("✅ Removed moderator %s", id), nil
}

func (b *Bot) cmdListPerms(context.Context, command.Invocation) (string, error) {
	return b.deps.Permissions.List(), nil
}

func (b *Bot) cmdMyUUID(_ context.Context, inv command.Invocation) (string, error) {
	return fmt.Sprintf("🆔 %s, your UUID is %s", inv.Caller.Name, inv.Caller.ID), nil
}

func (b *Bot) cmdRoom(context.Context, command.Invocation) (string, error) {
	snap := b.deps.Coordinator.RoomContext()
	if snap.Empty() {
		return "🎵 No room info yet.", nil
	}
	return "🎵 " + snap.Render(), nil
}

// cmdCommands lists what the caller's role may run.
func (b *Bot) cmdCommands(_ context.Context, inv command.Invocation) (string, error) {
	var names []string
	for _, name := range b.dispatcher.Names() {
		if b.deps.Resolver.HasPermission(inv.Role, name) {
			names = append(names, "/"+name)
		}
	}
	sort.Strings(names)
	return "📋 Commands: " + strings.Join(names, ", "), nil
}

func (b *Bot) cmdAdminHelp(_ context.Context, inv command.Invocation) (string, error) {
	lines := []string{"🛠️ Staff commands:"}
	for _, u := range adminUsage {
		if b.deps.Resolver.HasPermission(inv.Role, u.name) {
			lines = append(lines, u.usage)
		}
	}
	return strings.Join(lines, "\n"), nil
}
