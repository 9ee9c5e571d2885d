package event

import (
	"strings"

	"github.com/tidwall/gjson"
)

// Paths is an ordered list of gjson paths tried in turn. The first path that
// resolves to a non-empty string or number wins.
type Paths []string

// Lookup extracts the first scalar match from a JSON document.
func (p Paths) Lookup(raw []byte) (string, bool) {
	for _, path := range p {
		r := gjson.GetBytes(raw, path)
		if v, ok := scalar(r); ok {
			return v, true
		}
	}
	return "", false
}

// String is Lookup without the found flag.
func (p Paths) String(raw []byte) string {
	v, _ := p.Lookup(raw)
	return v
}

func scalar(r gjson.Result) (string, bool) {
	switch r.Type {
	case gjson.String:
		v := strings.TrimSpace(r.String())
		return v, v != ""
	case gjson.Number:
		return r.Raw, true
	}
	return "", false
}

// Candidate field locations seen across the presence socket, the chat
// backend and the webhook relay.
var (
	ChatTextPaths = Paths{
		"text",
		"message",
		"data.text",
		"body.data.text",
		"payload.text",
		"message.text",
	}
	SenderUIDPaths = Paths{
		"sender.uid",
		"data.entities.sender.entity.uid",
		"body.data.entities.sender.entity.uid",
		"body.sender",
		"sender",
		"uid",
		"userUuid",
		"data.metadata.chatMessage.userUuid",
	}
	SenderNamePaths = Paths{
		"sender.name",
		"data.entities.sender.entity.name",
		"body.data.entities.sender.entity.name",
		"senderName",
		"data.metadata.chatMessage.userName",
		"name",
	}
	UserNamePaths = Paths{
		"userProfile.nickname",
		"user.userProfile.nickname",
		"user.nickname",
		"user.name",
		"nickname",
		"userName",
		"name",
		"user",
	}
	UserUIDPaths = Paths{
		"userUuid",
		"uuid",
		"user.uuid",
		"userProfile.uuid",
		"uid",
	}
	ArtistPaths = Paths{
		"song.artistName",
		"currentSong.artistName",
		"nowPlaying.song.artistName",
		"artistName",
		"artist",
		"song.artist",
	}
	TrackPaths = Paths{
		"song.trackName",
		"currentSong.trackName",
		"nowPlaying.song.trackName",
		"trackName",
		"title",
		"track",
		"song.title",
	}
	AlbumPaths = Paths{
		"song.albumName",
		"currentSong.albumName",
		"nowPlaying.song.albumName",
		"albumName",
		"album",
	}
	DJPaths = Paths{
		"djUserProfile.nickname",
		"dj.userProfile.nickname",
		"dj.nickname",
		"dj.name",
		"djName",
		"dj",
		"userProfile.nickname",
	}
	// EventNamePaths locate the inner event name of a presence frame.
	EventNamePaths = Paths{
		"name",
		"event",
		"message.name",
		"type",
	}
)

// ParseChat normalizes a chat payload. ok is false when no text was found.
func ParseChat(raw []byte) (ChatMessage, bool) {
	text, ok := ChatTextPaths.Lookup(raw)
	if !ok {
		return ChatMessage{}, false
	}
	return ChatMessage{
		Text: text,
		Sender: Sender{
			UID:  SenderUIDPaths.String(raw),
			Name: SenderNamePaths.String(raw),
		},
	}, true
}

// Inner returns the first object found at one of the given paths, or raw
// itself when none exists.
func Inner(raw []byte, paths ...string) []byte {
	for _, path := range paths {
		r := gjson.GetBytes(raw, path)
		if r.IsObject() {
			return []byte(r.Raw)
		}
	}
	return raw
}

// Names collects display names from an array or object of user records
// found at the first matching path.
func Names(raw []byte, paths ...string) ([]string, bool) {
	for _, path := range paths {
		r := gjson.GetBytes(raw, path)
		if !r.IsArray() && !r.IsObject() {
			continue
		}
		names := []string{}
		r.ForEach(func(_, v gjson.Result) bool {
			var name string
			if v.Type == gjson.String {
				name = strings.TrimSpace(v.String())
			} else {
				name = UserNamePaths.String([]byte(v.Raw))
			}
			if name != "" {
				names = append(names, name)
			}
			return true
		})
		return names, true
	}
	return nil, false
}
