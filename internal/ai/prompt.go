package ai

import (
	"strings"
	"unicode"
)

const defaultPersona = "You are BOT, a regular hanging out in a live music room. " +
	"Keep replies short, casual and on topic. Talk like a person in the room, not an assistant. " +
	"Never paste links."

// buildMessages assembles system block, history and the user turn, in that order.
func (c *Coordinator) buildMessages(p Provider, req Request) []Message {
	var sys strings.Builder
	sys.WriteString(c.persona)
	sys.WriteString("\n\nYou are answering through ")
	sys.WriteString(p.ID())
	sys.WriteString(".")
	if req.UserName != "" {
		sys.WriteString(" You are talking to ")
		sys.WriteString(req.UserName)
		if req.Role != "" && req.Role != "user" {
			sys.WriteString(" (room ")
			sys.WriteString(req.Role)
			sys.WriteString(")")
		}
		sys.WriteString(".")
	}
	if req.Tone != "" {
		sys.WriteString("\n\nTone: ")
		sys.WriteString(req.Tone)
	}
	if snap := c.room.Snapshot(); !snap.Empty() {
		sys.WriteString("\n\nRoom right now:\n")
		sys.WriteString(snap.Render())
	}

	msgs := make([]Message, 0, len(req.History)+2)
	msgs = append(msgs, Message{Role: RoleSystem, Content: sys.String()})
	for _, h := range req.History {
		if h.Role != RoleUser && h.Role != RoleAssistant {
			continue
		}
		msgs = append(msgs, h)
	}
	msgs = append(msgs, Message{Role: RoleUser, Content: req.Message})
	return msgs
}

// trimReply cuts text to at most max runes, preferring a sentence end in
// the back half and falling back to a word boundary.
func trimReply(text string, max int) string {
	r := []rune(strings.TrimSpace(text))
	if max <= 0 || len(r) <= max {
		return string(r)
	}
	cut := r[:max]
	for i := len(cut) - 1; i >= max/2; i-- {
		if cut[i] == '.' || cut[i] == '!' || cut[i] == '?' {
			return string(cut[:i+1])
		}
	}
	for i := len(cut) - 1; i > 0; i-- {
		if unicode.IsSpace(cut[i]) {
			return strings.TrimSpace(string(cut[:i])) + "…"
		}
	}
	return string(cut) + "…"
}
