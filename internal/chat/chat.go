// Package chat connects the bot to the CometChat group that mirrors the
// room chat, either over the realtime socket or over REST with polling.
package chat

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Transport is a chat backend connection.
type Transport interface {
	Start(ctx context.Context)
	Stop(timeout time.Duration)
	WaitAuthenticated(ctx context.Context, timeout time.Duration) bool
	Ready() bool
	// SendText posts text to the configured group. It reports success and
	// never returns an error; failures are logged.
	SendText(ctx context.Context, text string) bool
}

// ErrNotConfigured is returned when required credentials are missing.
var ErrNotConfigured = errors.New("chat: app id, uid, auth token and room are required")

const (
	defaultOrigin    = "https://hang.fm"
	defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

	sdkVersion = "4.0.10"
	apiVersion = "v3.0"
)

// Config holds CometChat credentials and tuning.
type Config struct {
	AppID     string
	Region    string
	UID       string
	AuthToken string
	// RoomID is the group guid, which matches the room uuid.
	RoomID string

	// SocketURL and APIBase override the derived endpoints.
	SocketURL string
	APIBase   string

	ReconnectDelay time.Duration
	PollInterval   time.Duration

	Origin    string
	UserAgent string

	// Outgoing message decoration for the HTTP transport.
	BotName  string
	AvatarID string
	Color    string
}

func (c *Config) validate() error {
	if c.AppID == "" || c.UID == "" || c.AuthToken == "" || c.RoomID == "" {
		return ErrNotConfigured
	}
	if c.Region == "" {
		c.Region = "us"
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = 2 * time.Second
	}
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.Origin == "" {
		c.Origin = defaultOrigin
	}
	if c.UserAgent == "" {
		c.UserAgent = defaultUserAgent
	}
	if c.BotName == "" {
		c.BotName = "BOT"
	}
	if c.AvatarID == "" {
		c.AvatarID = "bot-01"
	}
	if c.Color == "" {
		c.Color = "#9E4ADF"
	}
	return nil
}

func (c *Config) socketURL() string {
	if c.SocketURL != "" {
		return c.SocketURL
	}
	return fmt.Sprintf("wss://%s.websocket-%s.cometchat.io/", c.AppID, c.Region)
}

func (c *Config) apiBase() string {
	if c.APIBase != "" {
		return c.APIBase
	}
	return fmt.Sprintf("https://%s.apiclient-%s.cometchat.io", c.AppID, c.Region)
}
