// Package ai turns chat messages into replies from a configured
// chat-completion provider.
package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	openai "github.com/sashabaranov/go-openai"
)

// Provider is one configured completion backend.
type Provider struct {
	Name    string
	Model   string
	BaseURL string
	APIKey  string
}

// ID is the provider/model pair shown to users.
func (p Provider) ID() string {
	return p.Name + ":" + p.Model
}

// Message is one entry of a completion conversation.
type Message struct {
	Role    string
	Content string
}

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Backend performs a single completion request.
type Backend interface {
	Complete(ctx context.Context, p Provider, msgs []Message) (string, error)
}

// ErrEmptyCompletion is returned when a provider answers with no text.
var ErrEmptyCompletion = errors.New("ai: empty completion")

// OpenAIBackend talks to any OpenAI-compatible chat completions endpoint.
type OpenAIBackend struct {
	MaxTokens int

	mu      sync.Mutex
	clients map[string]*openai.Client
}

// NewOpenAIBackend creates a backend. maxTokens of zero leaves the
// provider default in place.
func NewOpenAIBackend(maxTokens int) *OpenAIBackend {
	return &OpenAIBackend{MaxTokens: maxTokens, clients: make(map[string]*openai.Client)}
}

func (b *OpenAIBackend) client(p Provider) *openai.Client {
	b.mu.Lock()
	defer b.mu.Unlock()
	key := p.Name + "|" + p.BaseURL
	if c, ok := b.clients[key]; ok {
		return c
	}
	cfg := openai.DefaultConfig(p.APIKey)
	if p.BaseURL != "" {
		cfg.BaseURL = strings.TrimRight(p.BaseURL, "/")
	}
	c := openai.NewClientWithConfig(cfg)
	b.clients[key] = c
	return c
}

// Complete implements Backend.
func (b *OpenAIBackend) Complete(ctx context.Context, p Provider, msgs []Message) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:     p.Model,
		MaxTokens: b.MaxTokens,
		Messages:  make([]openai.ChatCompletionMessage, 0, len(msgs)),
	}
	for _, m := range msgs {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	resp, err := b.client(p).CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("%s: %w", p.Name, err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", ErrEmptyCompletion
	}
	return text, nil
}
