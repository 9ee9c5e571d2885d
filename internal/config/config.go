// Package config resolves the bot's settings from defaults, an optional
// YAML file and environment variables. Use ValidateRoom and ValidateChat
// before starting the clients that need credentials.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/christopherjohns/hangbot/internal/ai"
	"github.com/christopherjohns/hangbot/internal/chat"
	"github.com/christopherjohns/hangbot/internal/presence"
)

// ErrMissing is wrapped by validation errors naming absent variables.
var ErrMissing = errors.New("missing required configuration")

// Config is immutable after Load.
type Config struct {
	// Room presence
	RoomUUID        string
	PrimusURL       string
	TTFMToken       string
	RetryMaxBackoff time.Duration
	RecvTimeout     time.Duration

	// Chat backend
	ChatTransport      string
	CometAppID         string
	CometRegion        string
	CometUID           string
	CometAuth          string
	CometSocketURL     string
	CometAPIBase       string
	CometPollInterval  time.Duration
	CometReconnectWait time.Duration
	BotName            string
	BotAvatar          string
	BotColor           string

	// AI
	Providers     []ai.Provider
	Persona       string
	Triggers      string
	HistoryWindow int
	RateLimit     int
	RateWindow    time.Duration
	ResponseLimit int
	MaxTokens     int
	AITimeout     time.Duration

	// Storage
	QueueSize     int
	DataDir       string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// HTTP surface
	HTTPAddr    string
	RelaySecret string

	// Operations
	BootGreet        bool
	BootGreetMessage string
	StartupTimeout   time.Duration
	CheckpointEvery  time.Duration
	OTLPEndpoint     string
	ServiceVersion   string

	// Permissions
	AdminUIDs           []string
	BootstrapCoowners   map[string]string
	BootstrapModerators map[string]string
	RolesFile           string
	Blocklist           []string
}

type providerDefaults struct {
	name    string
	baseURL string
	model   string
}

var knownProviders = []providerDefaults{
	{"openai", "https://api.openai.com/v1", "gpt-4o-mini"},
	{"anthropic", "https://api.anthropic.com/v1/", "claude-3-5-haiku-latest"},
	{"gemini", "https://generativelanguage.googleapis.com/v1beta/openai/", "gemini-1.5-flash"},
	{"huggingface", "https://router.huggingface.co/v1", "meta-llama/Llama-3.1-8B-Instruct"},
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ttfm_primus_url", presence.DefaultURL)
	v.SetDefault("ttfm_retry_max_backoff", "60")
	v.SetDefault("ttfm_recv_timeout", "45")

	v.SetDefault("chat_transport", "socket")
	v.SetDefault("cometchat_region", "us")
	v.SetDefault("cometchat_poll_interval", "1")
	v.SetDefault("cometchat_reconnect_delay", "2")
	v.SetDefault("bot_name", "BOT")
	v.SetDefault("bot_avatar", "bot-01")
	v.SetDefault("bot_color", "#9E4ADF")

	v.SetDefault("ai_providers", "openai,anthropic,gemini,huggingface")
	v.SetDefault("keyword_triggers", "bot,b0t,bot2,b0t2,@bot2")
	v.SetDefault("ai_history_window", 5)
	v.SetDefault("ai_rate_limit", 3)
	v.SetDefault("ai_rate_window", "2.5m")
	v.SetDefault("ai_response_limit", 200)
	v.SetDefault("ai_max_tokens", 256)
	v.SetDefault("ai_timeout", "30s")

	v.SetDefault("queue_size", 100)
	v.SetDefault("data_dir", "data")

	v.SetDefault("http_addr", ":8080")

	v.SetDefault("boot_greet", true)
	v.SetDefault("boot_greet_message", "BOT Online 🦾🤖")
	v.SetDefault("startup_timeout", "15s")
	v.SetDefault("uptime_checkpoint", "60s")
	v.SetDefault("service_version", "dev")
}

// Load reads configuration. fileName is the YAML file name without
// extension, looked up in the working directory; a missing file is not an
// error.
func Load(logger *slog.Logger, fileName string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName(fileName)
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("ttfm_auth_token", "TTFM_AUTH_TOKEN", "HANG_AUTH_TOKEN")
	_ = v.BindEnv("otlp_endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		logger.Debug("config file not found, using defaults and environment", slog.String("name", fileName))
	}

	cfg := &Config{
		RoomUUID:  strings.TrimSpace(v.GetString("room_uuid")),
		PrimusURL: v.GetString("ttfm_primus_url"),
		TTFMToken: strings.TrimSpace(v.GetString("ttfm_auth_token")),

		ChatTransport:  strings.ToLower(v.GetString("chat_transport")),
		CometAppID:     strings.TrimSpace(v.GetString("cometchat_appid")),
		CometRegion:    v.GetString("cometchat_region"),
		CometUID:       strings.TrimSpace(v.GetString("cometchat_uid")),
		CometAuth:      strings.TrimSpace(v.GetString("cometchat_auth")),
		CometSocketURL: v.GetString("cometchat_socket_url"),
		CometAPIBase:   v.GetString("cometchat_api_base"),
		BotName:        v.GetString("bot_name"),
		BotAvatar:      v.GetString("bot_avatar"),
		BotColor:       v.GetString("bot_color"),

		Persona:       v.GetString("ai_persona"),
		Triggers:      v.GetString("keyword_triggers"),
		HistoryWindow: v.GetInt("ai_history_window"),
		RateLimit:     v.GetInt("ai_rate_limit"),
		ResponseLimit: v.GetInt("ai_response_limit"),
		MaxTokens:     v.GetInt("ai_max_tokens"),

		QueueSize:     v.GetInt("queue_size"),
		DataDir:       v.GetString("data_dir"),
		RedisAddr:     v.GetString("store_redis_addr"),
		RedisPassword: v.GetString("store_redis_password"),
		RedisDB:       v.GetInt("store_redis_db"),

		HTTPAddr:    v.GetString("http_addr"),
		RelaySecret: v.GetString("relay_secret"),

		BootGreet:        v.GetBool("boot_greet"),
		BootGreetMessage: v.GetString("boot_greet_message"),
		OTLPEndpoint:     v.GetString("otlp_endpoint"),
		ServiceVersion:   v.GetString("service_version"),

		AdminUIDs: CSV(v.GetString("admin_uids")),
		RolesFile: v.GetString("roles_file"),
		Blocklist: CSV(v.GetString("blocklist")),
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"ttfm_retry_max_backoff", &cfg.RetryMaxBackoff},
		{"ttfm_recv_timeout", &cfg.RecvTimeout},
		{"cometchat_poll_interval", &cfg.CometPollInterval},
		{"cometchat_reconnect_delay", &cfg.CometReconnectWait},
		{"ai_rate_window", &cfg.RateWindow},
		{"ai_timeout", &cfg.AITimeout},
		{"startup_timeout", &cfg.StartupTimeout},
		{"uptime_checkpoint", &cfg.CheckpointEvery},
	}
	for _, d := range durations {
		val, err := Duration(v.GetString(d.key))
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", strings.ToUpper(d.key), err)
		}
		*d.dst = val
	}

	var err error
	if cfg.BootstrapCoowners, err = Identities(v.GetString("bootstrap_coowners")); err != nil {
		return nil, fmt.Errorf("invalid BOOTSTRAP_COOWNERS: %w", err)
	}
	if cfg.BootstrapModerators, err = Identities(v.GetString("bootstrap_moderators")); err != nil {
		return nil, fmt.Errorf("invalid BOOTSTRAP_MODERATORS: %w", err)
	}

	switch cfg.ChatTransport {
	case "socket", "http":
	default:
		return nil, fmt.Errorf("invalid CHAT_TRANSPORT %q: want socket or http", cfg.ChatTransport)
	}
	if cfg.QueueSize <= 0 {
		return nil, fmt.Errorf("invalid QUEUE_SIZE %d: must be positive", cfg.QueueSize)
	}

	cfg.Providers = resolveProviders(v)
	return cfg, nil
}

// resolveProviders lists, in AI_PROVIDERS order, every provider that has an
// API key. <NAME>_MODEL and <NAME>_BASE_URL override the defaults.
func resolveProviders(v *viper.Viper) []ai.Provider {
	var out []ai.Provider
	for _, name := range CSV(strings.ToLower(v.GetString("ai_providers"))) {
		for _, known := range knownProviders {
			if known.name != name {
				continue
			}
			key := strings.TrimSpace(v.GetString(name + "_api_key"))
			if key == "" {
				break
			}
			p := ai.Provider{Name: name, Model: known.model, BaseURL: known.baseURL, APIKey: key}
			if m := v.GetString(name + "_model"); m != "" {
				p.Model = m
			}
			if u := v.GetString(name + "_base_url"); u != "" {
				p.BaseURL = u
			}
			out = append(out, p)
		}
	}
	return out
}

// ValidateRoom checks the settings the presence client needs.
func (c *Config) ValidateRoom() error {
	return require(map[string]string{
		"ROOM_UUID":                            c.RoomUUID,
		"TTFM_AUTH_TOKEN (or HANG_AUTH_TOKEN)": c.TTFMToken,
	})
}

// ValidateChat checks the settings the chat transport needs.
func (c *Config) ValidateChat() error {
	return require(map[string]string{
		"ROOM_UUID":       c.RoomUUID,
		"COMETCHAT_APPID": c.CometAppID,
		"COMETCHAT_UID":   c.CometUID,
		"COMETCHAT_AUTH":  c.CometAuth,
	})
}

func require(fields map[string]string) error {
	var missing []string
	for name, val := range fields {
		if val == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return fmt.Errorf("%w: %s", ErrMissing, strings.Join(missing, ", "))
}

// Presence returns the presence client settings.
func (c *Config) Presence() presence.Config {
	return presence.Config{
		URL:         c.PrimusURL,
		Token:       c.TTFMToken,
		RoomUUID:    c.RoomUUID,
		RecvTimeout: c.RecvTimeout,
		MaxBackoff:  c.RetryMaxBackoff,
	}
}

// Chat returns the chat transport settings. The group id is the room uuid.
func (c *Config) Chat() chat.Config {
	return chat.Config{
		AppID:          c.CometAppID,
		Region:         c.CometRegion,
		UID:            c.CometUID,
		AuthToken:      c.CometAuth,
		RoomID:         c.RoomUUID,
		SocketURL:      c.CometSocketURL,
		APIBase:        c.CometAPIBase,
		ReconnectDelay: c.CometReconnectWait,
		PollInterval:   c.CometPollInterval,
		BotName:        c.BotName,
		AvatarID:       c.BotAvatar,
		Color:          c.BotColor,
	}
}

// CSV splits a comma separated list, dropping blanks.
func CSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Identities parses "uid:Name,uid2:Name2". A bare uid uses itself as name.
func Identities(s string) (map[string]string, error) {
	out := map[string]string{}
	for _, entry := range CSV(s) {
		id, name, found := strings.Cut(entry, ":")
		id, name = strings.TrimSpace(id), strings.TrimSpace(name)
		if id == "" {
			return nil, fmt.Errorf("empty identity in %q", entry)
		}
		if !found || name == "" {
			name = id
		}
		out[id] = name
	}
	return out, nil
}

// Duration accepts a Go duration ("2.5m") or a plain number of seconds ("60").
func Duration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		if f < 0 {
			return 0, fmt.Errorf("negative duration %q", s)
		}
		return time.Duration(f * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %q", s)
	}
	return d, nil
}
