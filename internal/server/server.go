// Package server exposes the relay webhook, a health probe and Prometheus
// metrics over HTTP.
package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/christopherjohns/hangbot/internal/event"
)

const (
	maxBodyBytes      = 1 << 20
	defaultPutTimeout = 2 * time.Second
)

// Probes report readiness for /health. Nil probes read as false or zero.
type Probes struct {
	RoomJoined func() bool
	ChatReady  func() bool
	QueueDepth func() int
}

// Server is the bot's HTTP surface.
type Server struct {
	addr       string
	router     chi.Router
	sink       event.Sink
	secret     string
	probes     Probes
	putTimeout time.Duration
	logger     *slog.Logger
}

// New creates a Server. When secret is non-empty, webhook requests must
// carry it in the x-relay-secret header.
func New(addr string, sink event.Sink, secret string, probes Probes, logger *slog.Logger) *Server {
	s := &Server{
		addr:       addr,
		router:     chi.NewRouter(),
		sink:       sink,
		secret:     secret,
		probes:     probes,
		putTimeout: defaultPutTimeout,
		logger:     logger.With(slog.String("component", "http")),
	}
	s.routes()
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", slog.String("addr", s.addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

func (s *Server) routes() {
	s.router.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	s.router.Get("/health", s.handleHealth)
	s.router.Post("/events", s.handleEvent)
	s.router.Method(http.MethodGet, "/metrics", promhttp.Handler())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type healthResponse struct {
	Status     string `json:"status"`
	RoomJoined bool   `json:"room_joined"`
	ChatReady  bool   `json:"chat_ready"`
	QueueDepth int    `json:"queue_depth"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok"}
	if s.probes.RoomJoined != nil {
		resp.RoomJoined = s.probes.RoomJoined()
	}
	if s.probes.ChatReady != nil {
		resp.ChatReady = s.probes.ChatReady()
	}
	if s.probes.QueueDepth != nil {
		resp.QueueDepth = s.probes.QueueDepth()
	}
	writeJSON(w, http.StatusOK, resp)
}

type webhookRequest struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

type webhookResponse struct {
	OK    bool   `json:"ok"`
	ID    string `json:"id,omitempty"`
	Error string `json:"error,omitempty"`
}

func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	if s.secret != "" {
		got := r.Header.Get("x-relay-secret")
		if subtle.ConstantTimeCompare([]byte(got), []byte(s.secret)) != 1 {
			writeJSON(w, http.StatusUnauthorized, webhookResponse{Error: "bad relay secret"})
			return
		}
	}

	var req webhookRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, webhookResponse{Error: "invalid JSON body"})
		return
	}
	name := strings.TrimSpace(req.Event)
	if name == "" {
		writeJSON(w, http.StatusBadRequest, webhookResponse{Error: "No event name"})
		return
	}

	ev, ok := toEvent(name, req.Payload)
	if !ok {
		writeJSON(w, http.StatusBadRequest, webhookResponse{Error: "chat payload has no text"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.putTimeout)
	defer cancel()
	if err := s.sink.Put(ctx, ev); err != nil {
		s.logger.Warn("webhook event not queued", slog.String("event", name), slog.Any("err", err))
		writeJSON(w, http.StatusServiceUnavailable, webhookResponse{Error: "queue unavailable"})
		return
	}
	s.logger.Debug("webhook event queued", slog.String("event", name), slog.String("id", ev.ID))
	writeJSON(w, http.StatusAccepted, webhookResponse{OK: true, ID: ev.ID})
}

// toEvent builds the queued event. Chat payloads are normalized so every
// chat event carries the same shape regardless of producer.
func toEvent(name string, payload json.RawMessage) (event.Event, bool) {
	if len(payload) == 0 || string(payload) == "null" {
		payload = json.RawMessage(`{}`)
	}
	if event.Topic(name) == event.TopicChatMessage {
		msg, ok := event.ParseChat(payload)
		if !ok {
			return event.Event{}, false
		}
		return event.NewChat(event.SourceWebhook, msg), true
	}
	return event.New(event.Topic(name), event.SourceWebhook, payload), true
}
