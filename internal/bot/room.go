package bot

import (
	"log/slog"

	"github.com/christopherjohns/hangbot/internal/event"
	"github.com/christopherjohns/hangbot/internal/room"
)

var (
	djListPaths   = []string{"djs", "visibleDjs", "room.djs", "state.djs", "roomState.djs"}
	userListPaths = []string{"users", "allUsers", "audience", "room.users", "state.users", "roomState.users"}
)

func songFrom(payload []byte) (*room.Song, bool) {
	s := room.Song{
		Artist: event.ArtistPaths.String(payload),
		Track:  event.TrackPaths.String(payload),
		Album:  event.AlbumPaths.String(payload),
		DJ:     event.DJPaths.String(payload),
	}
	if s.Artist == "" && s.Track == "" {
		return nil, false
	}
	return &s, true
}

func (b *Bot) handleSong(payload []byte) {
	song, ok := songFrom(payload)
	if !ok {
		b.logger.Debug("song event without artist or track")
		return
	}
	b.deps.Coordinator.UpdateRoomContext(room.Context{CurrentSong: song})
	b.logger.Info("now playing", slog.String("artist", song.Artist), slog.String("track", song.Track), slog.String("dj", song.DJ))
}

func (b *Bot) handleUserJoined(payload []byte) {
	name := event.UserNamePaths.String(payload)
	if name == "" {
		return
	}
	cur := b.deps.Coordinator.RoomContext()
	b.deps.Coordinator.UpdateRoomContext(room.Context{Users: room.WithName(cur.Users, name), LastJoin: name})
}

func (b *Bot) handleUserLeft(payload []byte) {
	name := event.UserNamePaths.String(payload)
	if name == "" {
		return
	}
	cur := b.deps.Coordinator.RoomContext()
	b.deps.Coordinator.UpdateRoomContext(room.Context{Users: room.WithoutName(cur.Users, name), LastLeave: name})
}

func (b *Bot) handleDJAdded(payload []byte) {
	name := event.UserNamePaths.String(payload)
	if name == "" {
		name = event.DJPaths.String(payload)
	}
	if name == "" {
		return
	}
	cur := b.deps.Coordinator.RoomContext()
	b.deps.Coordinator.UpdateRoomContext(room.Context{DJs: room.WithName(cur.DJs, name), LastDJAdded: name})
}

func (b *Bot) handleDJRemoved(payload []byte) {
	name := event.UserNamePaths.String(payload)
	if name == "" {
		name = event.DJPaths.String(payload)
	}
	if name == "" {
		return
	}
	cur := b.deps.Coordinator.RoomContext()
	b.deps.Coordinator.UpdateRoomContext(room.Context{DJs: room.WithoutName(cur.DJs, name), LastDJRemoved: name})
}

// handleRoomState applies a full or partial room snapshot. Rosters that are
// absent from the payload are left alone.
func (b *Bot) handleRoomState(payload []byte) {
	var partial room.Context
	if djs, ok := event.Names(payload, djListPaths...); ok {
		partial.DJs = djs
	}
	if users, ok := event.Names(payload, userListPaths...); ok {
		partial.Users = users
	}
	if song, ok := songFrom(payload); ok {
		partial.CurrentSong = song
	}
	if partial.Empty() && partial.DJs == nil && partial.Users == nil {
		return
	}
	b.deps.Coordinator.UpdateRoomContext(partial)
}
