package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/christopherjohns/hangbot/internal/idgen"
)

// HTTPClient sends messages through the CometChat REST API.
type HTTPClient struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

// NewHTTPClient validates cfg and returns a client.
func NewHTTPClient(cfg Config, logger *slog.Logger) (*HTTPClient, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &HTTPClient{
		cfg:    cfg,
		http:   &http.Client{Timeout: 10 * time.Second},
		logger: logger.With(slog.String("component", "chat_http")),
	}, nil
}

type chatMetadata struct {
	Message  string   `json:"message"`
	AvatarID string   `json:"avatarId"`
	UserName string   `json:"userName"`
	Color    string   `json:"color"`
	Mentions []string `json:"mentions"`
	UserUUID string   `json:"userUuid"`
	Badges   []string `json:"badges"`
	ID       string   `json:"id"`
}

type sendPayload struct {
	Receiver     string   `json:"receiver"`
	ReceiverType string   `json:"receiverType"`
	Category     string   `json:"category"`
	Type         string   `json:"type"`
	Data         sendData `json:"data"`
}

type sendData struct {
	Text     string                  `json:"text"`
	Metadata map[string]chatMetadata `json:"metadata"`
}

func (c *HTTPClient) newSendPayload(text string) sendPayload {
	return sendPayload{
		Receiver:     c.cfg.RoomID,
		ReceiverType: "group",
		Category:     "message",
		Type:         "text",
		Data: sendData{
			Text: text,
			Metadata: map[string]chatMetadata{
				"chatMessage": {
					Message:  text,
					AvatarID: c.cfg.AvatarID,
					UserName: c.cfg.BotName,
					Color:    c.cfg.Color,
					Mentions: []string{},
					UserUUID: c.cfg.UID,
					Badges:   []string{"VERIFIED"},
					ID:       idgen.New(),
				},
			},
		},
	}
}

// SendText posts text to the group, joining it first if the backend
// reports the bot is not a member. The send is retried once after a join.
func (c *HTTPClient) SendText(ctx context.Context, text string) bool {
	payload := c.newSendPayload(text)
	status, body, err := c.do(ctx, http.MethodPost, "/v3.0/messages", payload)
	if err != nil {
		c.logger.Warn("send failed", slog.Any("err", err))
		return false
	}
	if statusOK(status) {
		return true
	}
	if status == http.StatusNotFound && strings.Contains(strings.ToLower(string(body)), "not a member") {
		c.logger.Info("bot is not a group member, joining", slog.String("group", c.cfg.RoomID))
		if err := c.JoinGroup(ctx); err != nil {
			c.logger.Warn("group join failed", slog.Any("err", err))
			return false
		}
		status, body, err = c.do(ctx, http.MethodPost, "/v3.0/messages", payload)
		if err == nil && statusOK(status) {
			return true
		}
	}
	c.logger.Warn("send rejected", slog.Int("status", status), slog.String("body", snippet(body)), slog.Any("err", err))
	return false
}

// JoinGroup adds the bot to the group as a participant.
func (c *HTTPClient) JoinGroup(ctx context.Context) error {
	body := map[string]any{
		"members": []map[string]string{{"uid": c.cfg.UID, "scope": "participant"}},
	}
	path := "/v3.0/groups/" + url.PathEscape(c.cfg.RoomID) + "/members"
	status, resp, err := c.do(ctx, http.MethodPost, path, body)
	if err != nil {
		return err
	}
	if !statusOK(status) {
		return fmt.Errorf("join group: status %d: %s", status, snippet(resp))
	}
	return nil
}

// recentMessages fetches the latest group messages.
func (c *HTTPClient) recentMessages(ctx context.Context, limit int) ([]byte, error) {
	path := fmt.Sprintf("/v3/groups/%s/messages?limit=%d", url.PathEscape(c.cfg.RoomID), limit)
	status, body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	if !statusOK(status) {
		return nil, fmt.Errorf("fetch messages: status %d: %s", status, snippet(body))
	}
	return body, nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, payload any) (int, []byte, error) {
	var reader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(c.cfg.apiBase(), "/")+path, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("authtoken", c.cfg.AuthToken)
	req.Header.Set("appid", c.cfg.AppID)
	req.Header.Set("onBehalfOf", c.cfg.UID)
	req.Header.Set("origin", "https://tt.live")
	req.Header.Set("referer", "https://tt.live/")
	req.Header.Set("sdk", "javascript@3.0.10")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, body, nil
}

func statusOK(status int) bool {
	return status >= 200 && status < 300
}

func snippet(b []byte) string {
	const max = 200
	if len(b) > max {
		return string(b[:max])
	}
	return string(b)
}
