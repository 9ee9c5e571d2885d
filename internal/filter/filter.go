// Package filter decides which inbound chat text the bot acts on.
package filter

import (
	"regexp"
	"strings"
)

// Policy is a content validity rule applied before commands and AI replies.
type Policy interface {
	Allow(text string) bool
}

// Permissive accepts any non-blank text.
type Permissive struct{}

// Allow implements Policy.
func (Permissive) Allow(text string) bool {
	return strings.TrimSpace(text) != ""
}

// Blocklist rejects text containing any of its phrases, case-insensitively.
type Blocklist struct {
	phrases []string
}

// NewBlocklist builds a Blocklist. Blank phrases are ignored.
func NewBlocklist(phrases []string) *Blocklist {
	b := &Blocklist{}
	for _, p := range phrases {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			b.phrases = append(b.phrases, p)
		}
	}
	return b
}

// Allow implements Policy.
func (b *Blocklist) Allow(text string) bool {
	if !(Permissive{}).Allow(text) {
		return false
	}
	lower := strings.ToLower(text)
	for _, p := range b.phrases {
		if strings.Contains(lower, p) {
			return false
		}
	}
	return true
}

var linkPattern = regexp.MustCompile(`(?i)(https?://|www\.)\S+|\b[a-z0-9-]+\.(com|net|org|io|fm|gg|ly|co|me|tv)\b`)

// ContainsLink reports whether text looks like it carries a URL.
func ContainsLink(text string) bool {
	return linkPattern.MatchString(text)
}

// Triggers matches AI keyword triggers.
type Triggers []string

// ParseTriggers splits a comma separated keyword list.
func ParseTriggers(csv string) Triggers {
	var t Triggers
	for _, k := range strings.Split(csv, ",") {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			t = append(t, k)
		}
	}
	return t
}

// Match reports whether text contains any trigger, case-insensitively.
func (t Triggers) Match(text string) bool {
	lower := strings.ToLower(text)
	for _, k := range t {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}
