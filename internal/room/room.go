// Package room tracks what the bot knows about the music room it sits in.
package room

import (
	"fmt"
	"strings"
	"sync"
)

// rosterPreview is how many in-room names Render lists before summarizing.
const rosterPreview = 3

// Song is the track currently playing.
type Song struct {
	Artist string `json:"artist,omitempty"`
	Track  string `json:"track,omitempty"`
	Album  string `json:"album,omitempty"`
	DJ     string `json:"dj,omitempty"`
}

// Context is a snapshot of room state. As a partial update, nil pointers
// and nil slices mean "not provided"; an empty non-nil slice clears a roster.
type Context struct {
	CurrentSong   *Song    `json:"current_song,omitempty"`
	DJs           []string `json:"djs,omitempty"`
	Users         []string `json:"users,omitempty"`
	LastJoin      string   `json:"last_join,omitempty"`
	LastLeave     string   `json:"last_leave,omitempty"`
	LastDJAdded   string   `json:"last_dj_added,omitempty"`
	LastDJRemoved string   `json:"last_dj_removed,omitempty"`
}

// Empty reports whether the snapshot carries nothing worth rendering.
func (c Context) Empty() bool {
	return c.CurrentSong == nil && len(c.DJs) == 0 && len(c.Users) == 0 &&
		c.LastJoin == "" && c.LastLeave == "" && c.LastDJAdded == "" && c.LastDJRemoved == ""
}

// Render formats the snapshot as plain lines for a prompt.
func (c Context) Render() string {
	var lines []string
	if s := c.CurrentSong; s != nil && (s.Artist != "" || s.Track != "") {
		title := s.Track
		if s.Artist != "" && s.Track != "" {
			title = s.Artist + " - " + s.Track
		} else if s.Artist != "" {
			title = s.Artist
		}
		line := "Now playing: " + title
		if s.Album != "" {
			line += " (album: " + s.Album + ")"
		}
		if s.DJ != "" {
			line += " spun by " + s.DJ
		}
		lines = append(lines, line)
	}
	if len(c.DJs) > 0 {
		lines = append(lines, "On stage: "+strings.Join(c.DJs, ", "))
	}
	if n := len(c.Users); n > 0 {
		preview := c.Users
		if n > rosterPreview {
			preview = preview[:rosterPreview]
		}
		line := fmt.Sprintf("In room (%d): %s", n, strings.Join(preview, ", "))
		if n > rosterPreview {
			line += fmt.Sprintf(" +%d more", n-rosterPreview)
		}
		lines = append(lines, line)
	}
	for _, kv := range [][2]string{
		{"Last join", c.LastJoin},
		{"Last leave", c.LastLeave},
		{"Last DJ added", c.LastDJAdded},
		{"Last DJ removed", c.LastDJRemoved},
	} {
		if kv[1] != "" {
			lines = append(lines, kv[0]+": "+kv[1])
		}
	}
	return strings.Join(lines, "\n")
}

// State holds the current room context. Updates are shallow merges:
// fields absent from a partial keep their previous value.
type State struct {
	mu  sync.RWMutex
	cur Context
}

// NewState creates an empty room state.
func NewState() *State {
	return &State{}
}

// Merge applies a partial update.
func (s *State) Merge(p Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.CurrentSong != nil {
		song := *p.CurrentSong
		s.cur.CurrentSong = &song
	}
	if p.DJs != nil {
		s.cur.DJs = append([]string{}, p.DJs...)
	}
	if p.Users != nil {
		s.cur.Users = append([]string{}, p.Users...)
	}
	if p.LastJoin != "" {
		s.cur.LastJoin = p.LastJoin
	}
	if p.LastLeave != "" {
		s.cur.LastLeave = p.LastLeave
	}
	if p.LastDJAdded != "" {
		s.cur.LastDJAdded = p.LastDJAdded
	}
	if p.LastDJRemoved != "" {
		s.cur.LastDJRemoved = p.LastDJRemoved
	}
}

// Snapshot returns a copy of the current context.
func (s *State) Snapshot() Context {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c := s.cur
	if c.CurrentSong != nil {
		song := *c.CurrentSong
		c.CurrentSong = &song
	}
	c.DJs = append([]string(nil), c.DJs...)
	c.Users = append([]string(nil), c.Users...)
	return c
}

// WithName returns list with name appended if absent.
func WithName(list []string, name string) []string {
	out := append([]string{}, list...)
	for _, n := range out {
		if strings.EqualFold(n, name) {
			return out
		}
	}
	return append(out, name)
}

// WithoutName returns list with every case-insensitive match of name removed.
func WithoutName(list []string, name string) []string {
	out := []string{}
	for _, n := range list {
		if !strings.EqualFold(n, name) {
			out = append(out, n)
		}
	}
	return out
}
