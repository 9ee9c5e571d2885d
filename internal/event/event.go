// Package event defines the normalized events that flow from the protocol
// clients to the dispatch loop, and the bounded queue that carries them.
package event

import (
	"encoding/json"
	"time"

	"github.com/christopherjohns/hangbot/internal/idgen"
)

// Topic names the kind of event.
type Topic string

const (
	// Room presence socket frames.
	TopicRoomJoined Topic = "ttfm_response"
	TopicRoomUser   Topic = "ttfm_user"
	TopicRoomAPI    Topic = "ttfm_api"
	TopicRoomMisc   Topic = "ttfm_misc"

	// Chat backend.
	TopicChatMessage Topic = "chatMessage"

	// Room state, produced by the webhook receiver or remapped from presence frames.
	TopicPlayedSong       Topic = "playedSong"
	TopicUserJoined       Topic = "userJoined"
	TopicUserLeft         Topic = "userLeft"
	TopicAddedDJ          Topic = "addedDj"
	TopicRemovedDJ        Topic = "removedDj"
	TopicRoomStateUpdated Topic = "roomStateUpdated"
	TopicStatefulMessage  Topic = "statefulMessage"
	TopicStatelessMessage Topic = "statelessMessage"
)

var knownTopics = map[Topic]bool{
	TopicRoomJoined: true, TopicRoomUser: true, TopicRoomAPI: true, TopicRoomMisc: true,
	TopicChatMessage: true,
	TopicPlayedSong: true, TopicUserJoined: true, TopicUserLeft: true,
	TopicAddedDJ: true, TopicRemovedDJ: true, TopicRoomStateUpdated: true,
	TopicStatefulMessage: true, TopicStatelessMessage: true,
}

// Label is the metric label for t. Webhook callers choose topic names
// freely, so anything outside the declared topics reports as "other".
func (t Topic) Label() string {
	if knownTopics[t] {
		return string(t)
	}
	return "other"
}

// Source identifies the producer of an event.
type Source string

const (
	SourcePresence Source = "presence"
	SourceChat     Source = "chat"
	SourceWebhook  Source = "webhook"
)

// Event is a single queued item. Payload is owned by the event once queued.
type Event struct {
	ID         string          `json:"id"`
	Topic      Topic           `json:"topic"`
	Source     Source          `json:"source"`
	Payload    json.RawMessage `json:"payload"`
	ReceivedAt time.Time       `json:"received_at"`
}

// New builds an event with a fresh id. The payload is copied.
func New(topic Topic, src Source, payload []byte) Event {
	p := make(json.RawMessage, len(payload))
	copy(p, payload)
	return Event{
		ID:         idgen.New(),
		Topic:      topic,
		Source:     src,
		Payload:    p,
		ReceivedAt: time.Now(),
	}
}

// Sender is the normalized author of a chat message.
type Sender struct {
	UID  string `json:"uid"`
	Name string `json:"name"`
}

// ChatMessage is the payload shape of every TopicChatMessage event,
// regardless of which chat transport produced it.
type ChatMessage struct {
	Text   string `json:"text"`
	Sender Sender `json:"sender"`
}

// NewChat builds a TopicChatMessage event from a normalized message.
func NewChat(src Source, msg ChatMessage) Event {
	data, _ := json.Marshal(msg)
	return New(TopicChatMessage, src, data)
}
