// Package user keeps per-identity conversation memory: a rolling sentiment
// estimate and a bounded history of exchanged turns.
package user

import (
	"strings"
	"time"
)

// Sentiment is the bot's running read of how a user treats it.
type Sentiment string

const (
	Neutral  Sentiment = "neutral"
	Positive Sentiment = "positive"
	Negative Sentiment = "negative"
)

// Turn roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one entry of conversation history.
type Turn struct {
	Role    string    `json:"role"`
	Content string    `json:"content"`
	At      time.Time `json:"timestamp"`
}

// Record is everything remembered about one identity.
type Record struct {
	Name         string    `json:"name"`
	Sentiment    Sentiment `json:"sentiment"`
	Interactions int       `json:"interactions"`
	FirstSeen    time.Time `json:"first_seen"`
	LastSeen     time.Time `json:"last_seen"`
	History      []Turn    `json:"context"`
}

var (
	negativeWords = []string{"fuck you", "bitch", "stupid", "dumb", "idiot", "shut up", "useless"}
	positiveWords = []string{"thanks", "thank you", "cool", "nice", "awesome", "great", "good"}
)

// driftAfter is the interaction count after which a neutral message resets
// sentiment to neutral.
const driftAfter = 5

// nextSentiment applies one message to the current sentiment. Hostile
// messages pull a friendly user back to neutral before going negative,
// and the reverse for kind messages.
func nextSentiment(cur Sentiment, interactions int, msg string) Sentiment {
	lower := strings.ToLower(msg)
	switch {
	case containsAny(lower, negativeWords):
		if cur == Positive {
			return Neutral
		}
		return Negative
	case containsAny(lower, positiveWords):
		if cur == Negative {
			return Neutral
		}
		return Positive
	case interactions > driftAfter:
		return Neutral
	}
	return cur
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

// ToneHint returns the prompt guidance for a sentiment.
func ToneHint(s Sentiment) string {
	switch s {
	case Positive:
		return "The user's been cool with you. Be friendly and engaging; you can joke around and be more relaxed. Show personality."
	case Negative:
		return "The user's being rude. Answer with witty, playful comebacks instead of taking the insults seriously. Keep it sharp and entertaining, never literal."
	}
	return "The user's neutral. Just be chill and answer naturally. No forced sass, no corporate friendliness."
}
