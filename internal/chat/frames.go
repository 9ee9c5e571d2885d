package chat

import (
	"time"

	"github.com/tidwall/gjson"
)

type authFrame struct {
	AppID    string   `json:"appId"`
	DeviceID string   `json:"deviceId"`
	Type     string   `json:"type"`
	Sender   string   `json:"sender"`
	Body     authBody `json:"body"`
}

type authBody struct {
	Auth                 string     `json:"auth"`
	DeviceID             string     `json:"deviceId"`
	PresenceSubscription string     `json:"presenceSubscription"`
	Params               authParams `json:"params"`
}

type authParams struct {
	AppInfo   appInfo `json:"appInfo"`
	UserAgent string  `json:"userAgent"`
	DeviceID  string  `json:"deviceId"`
	Platform  string  `json:"platform"`
}

type appInfo struct {
	Version    string `json:"version"`
	APIVersion string `json:"apiVersion"`
	Origin     string `json:"origin"`
	UTS        int64  `json:"uts"`
}

func newAuthFrame(cfg *Config, deviceID string, now time.Time) authFrame {
	return authFrame{
		AppID:    cfg.AppID,
		DeviceID: deviceID,
		Type:     "auth",
		Sender:   cfg.UID,
		Body: authBody{
			Auth:                 cfg.AuthToken,
			DeviceID:             deviceID,
			PresenceSubscription: "ALL_USERS",
			Params: authParams{
				AppInfo: appInfo{
					Version:    sdkVersion,
					APIVersion: apiVersion,
					Origin:     cfg.Origin,
					UTS:        now.UnixMilli(),
				},
				UserAgent: cfg.UserAgent,
				DeviceID:  deviceID,
				Platform:  "javascript",
			},
		},
	}
}

type messageFrame struct {
	AppID        string      `json:"appId"`
	DeviceID     string      `json:"deviceId"`
	Sender       string      `json:"sender"`
	ReceiverType string      `json:"receiverType"`
	Receiver     string      `json:"receiver"`
	Type         string      `json:"type"`
	Body         messageBody `json:"body"`
}

type messageBody struct {
	Category string      `json:"category"`
	Type     string      `json:"type"`
	Data     messageData `json:"data"`
}

type messageData struct {
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata"`
}

func newMessageFrame(cfg *Config, deviceID, text string) messageFrame {
	return messageFrame{
		AppID:        cfg.AppID,
		DeviceID:     deviceID,
		Sender:       cfg.UID,
		ReceiverType: "group",
		Receiver:     cfg.RoomID,
		Type:         "message",
		Body: messageBody{
			Category: "message",
			Type:     "text",
			Data: messageData{
				Text:     text,
				Metadata: map[string]any{"incrementUnreadCount": true},
			},
		},
	}
}

// IsAuthSuccess reports whether a socket payload acknowledges a successful
// login. The backend has answered in several shapes over time; exactly
// these are accepted:
//
//	{"type":"auth","body":{"status":"success"}}
//	{"type":"authSuccess"}
//	{"body":{"code":"200"}}
//	{"body":{"success":true}}
//	{"status":"success"}
//	{"code":"200"}
//
// Codes may also be the number 200. Anything else is not a success.
func IsAuthSuccess(raw []byte) bool {
	if !gjson.ValidBytes(raw) {
		return false
	}
	doc := gjson.ParseBytes(raw)
	if !doc.IsObject() {
		return false
	}
	switch typ := doc.Get("type").String(); {
	case typ == "authSuccess":
		return true
	case typ == "auth" && doc.Get("body.status").String() == "success":
		return true
	}
	if codeOK(doc.Get("body.code")) || doc.Get("body.success").Type == gjson.True {
		return true
	}
	if s := doc.Get("status"); s.Type == gjson.String && s.Str == "success" {
		return true
	}
	return codeOK(doc.Get("code"))
}

func codeOK(r gjson.Result) bool {
	switch r.Type {
	case gjson.String:
		return r.Str == "200"
	case gjson.Number:
		return r.Num == 200
	}
	return false
}
