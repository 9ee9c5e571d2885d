// Command hangbot joins a music room, bridges its chat backend and answers
// commands and trigger keywords in chat.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/christopherjohns/hangbot/internal/ai"
	"github.com/christopherjohns/hangbot/internal/bot"
	"github.com/christopherjohns/hangbot/internal/chat"
	"github.com/christopherjohns/hangbot/internal/config"
	"github.com/christopherjohns/hangbot/internal/event"
	"github.com/christopherjohns/hangbot/internal/filter"
	"github.com/christopherjohns/hangbot/internal/perms"
	"github.com/christopherjohns/hangbot/internal/presence"
	"github.com/christopherjohns/hangbot/internal/ratelimit"
	"github.com/christopherjohns/hangbot/internal/server"
	"github.com/christopherjohns/hangbot/internal/store"
	"github.com/christopherjohns/hangbot/internal/telemetry"
	"github.com/christopherjohns/hangbot/internal/uptime"
	"github.com/christopherjohns/hangbot/internal/user"
)

const stopTimeout = 2 * time.Second

func main() {
	// Local convenience only; production relies on the real environment.
	_ = godotenv.Load(".env")
	_ = godotenv.Load("hang-fm-config.env")

	logger := newLogger(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("hangbot exited", slog.Any("err", err))
		os.Exit(1)
	}
}

func newLogger(level, format string) *slog.Logger {
	lvl := slog.LevelInfo
	unknown := false
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
	default:
		unknown = true
	}
	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)
	if unknown {
		logger.Warn("unknown LOG_LEVEL, using info", slog.String("value", level))
	}
	return logger
}

func run(logger *slog.Logger) error {
	cfg, err := config.Load(logger, "hangbot")
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := cfg.ValidateRoom(); err != nil {
		return err
	}
	if err := cfg.ValidateChat(); err != nil {
		return err
	}

	telemetry.Init()
	shutdownTracing, err := telemetry.InitTracing(cfg.OTLPEndpoint, "hangbot", cfg.ServiceVersion)
	if err != nil {
		return err
	}
	defer shutdownTracing()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	kv, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	table := perms.DefaultTable()
	if cfg.RolesFile != "" {
		if table, err = perms.LoadTable(cfg.RolesFile); err != nil {
			return err
		}
	}
	permissions, err := perms.Load(ctx, kv, perms.Bootstrap{
		Coowners:   cfg.BootstrapCoowners,
		Moderators: cfg.BootstrapModerators,
	})
	if err != nil {
		return err
	}
	memory, err := user.LoadMemory(ctx, kv, user.DefaultHistoryLimit, logger)
	if err != nil {
		return err
	}
	tracker, err := uptime.Load(ctx, kv, logger)
	if err != nil {
		return err
	}

	aiOpts := []ai.Option{ai.WithResponseLimit(cfg.ResponseLimit), ai.WithTimeout(cfg.AITimeout)}
	if cfg.Persona != "" {
		aiOpts = append(aiOpts, ai.WithPersona(cfg.Persona))
	}
	coordinator := ai.NewCoordinator(cfg.Providers, ai.NewOpenAIBackend(cfg.MaxTokens), logger, aiOpts...)
	if len(cfg.Providers) == 0 {
		logger.Warn("no AI provider keys configured; trigger replies will say so")
	}

	queue := event.NewQueue(cfg.QueueSize)

	transport, err := newTransport(cfg, queue, logger)
	if err != nil {
		return err
	}
	room, err := presence.New(cfg.Presence(), queue, logger)
	if err != nil {
		return err
	}

	var policy filter.Policy = filter.Permissive{}
	if len(cfg.Blocklist) > 0 {
		policy = filter.NewBlocklist(cfg.Blocklist)
	}

	b := bot.New(bot.Config{
		SelfUID:       cfg.CometUID,
		Triggers:      filter.ParseTriggers(cfg.Triggers),
		HistoryWindow: cfg.HistoryWindow,
	}, bot.Deps{
		Events:      queue,
		Chat:        transport,
		Coordinator: coordinator,
		Permissions: permissions,
		Resolver:    perms.NewResolver(permissions, table, cfg.AdminUIDs),
		Memory:      memory,
		Uptime:      tracker,
		Limiter:     ratelimit.NewUserLimiter(cfg.RateLimit, cfg.RateWindow),
		Policy:      policy,
	}, logger)

	srv := server.New(cfg.HTTPAddr, queue, cfg.RelaySecret, server.Probes{
		RoomJoined: room.Joined,
		ChatReady:  transport.Ready,
		QueueDepth: queue.Len,
	}, logger)

	logger.Info("starting hangbot",
		slog.String("room", cfg.RoomUUID),
		slog.String("chat_transport", cfg.ChatTransport),
		slog.Any("ai_providers", coordinator.Providers()),
		slog.Int("queue_size", cfg.QueueSize))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx) })
	g.Go(func() error { return tracker.Run(gctx, cfg.CheckpointEvery) })
	g.Go(func() error { return b.Run(gctx) })

	room.Start(gctx)
	transport.Start(gctx)

	g.Go(func() error {
		awaitStartup(gctx, cfg, room, transport, b, logger)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		room.Stop(stopTimeout)
		transport.Stop(stopTimeout)
		queue.Close()
		return nil
	})

	return g.Wait()
}

// awaitStartup waits for both connections, then greets the room. Timeouts
// are logged and the bot keeps running.
func awaitStartup(ctx context.Context, cfg *config.Config, room *presence.Client, transport chat.Transport, b *bot.Bot, logger *slog.Logger) {
	joined := make(chan bool, 1)
	go func() { joined <- room.WaitJoined(ctx, cfg.StartupTimeout) }()
	authed := transport.WaitAuthenticated(ctx, cfg.StartupTimeout)
	roomOK := <-joined

	if !roomOK {
		logger.Warn("room join not confirmed in time", slog.Duration("timeout", cfg.StartupTimeout))
	}
	if !authed {
		logger.Warn("chat not authenticated in time", slog.Duration("timeout", cfg.StartupTimeout))
	}
	if roomOK && authed && cfg.BootGreet && ctx.Err() == nil {
		b.Greet(ctx, cfg.BootGreetMessage)
	}
}

func newTransport(cfg *config.Config, sink event.Sink, logger *slog.Logger) (chat.Transport, error) {
	if cfg.ChatTransport == "http" {
		return chat.NewHTTPTransport(cfg.Chat(), sink, logger)
	}
	return chat.NewSocketClient(cfg.Chat(), sink, logger)
}

// openStore picks Redis when STORE_REDIS_ADDR is set, else JSON files.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.Store, func(), error) {
	if cfg.RedisAddr == "" {
		fs, err := store.NewFileStore(cfg.DataDir)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("using file store", slog.String("dir", cfg.DataDir))
		return fs, func() {}, nil
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, nil, fmt.Errorf("connect to redis at %s: %w", cfg.RedisAddr, err)
	}
	logger.Info("connected to redis", slog.String("addr", cfg.RedisAddr))
	return store.NewRedisStore(rdb, ""), func() { rdb.Close() }, nil
}
