package user

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/christopherjohns/hangbot/internal/store"
)

const (
	storeKey = "user_memory"

	// DefaultHistoryLimit is how many turns a record keeps.
	DefaultHistoryLimit = 10
)

// Memory owns every user record. Records are created lazily and never
// removed. Each mutation rewrites the persisted document; write failures
// are logged and the in-memory state is kept.
type Memory struct {
	mu      sync.Mutex
	records map[string]*Record
	limit   int
	kv      store.Store
	logger  *slog.Logger
	now     func() time.Time
}

// LoadMemory reads persisted records. limit caps each user's history.
func LoadMemory(ctx context.Context, kv store.Store, limit int, logger *slog.Logger) (*Memory, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	m := &Memory{
		records: make(map[string]*Record),
		limit:   limit,
		kv:      kv,
		logger:  logger,
		now:     time.Now,
	}
	if _, err := kv.Load(ctx, storeKey, &m.records); err != nil {
		return nil, fmt.Errorf("user: load memory: %w", err)
	}
	if m.records == nil {
		m.records = make(map[string]*Record)
	}
	return m, nil
}

// get returns the record for id, creating it if needed. Caller holds mu.
func (m *Memory) get(id, name string) *Record {
	now := m.now()
	r, ok := m.records[id]
	if !ok {
		r = &Record{Name: name, Sentiment: Neutral, FirstSeen: now}
		m.records[id] = r
	}
	if name != "" {
		r.Name = name
	}
	r.LastSeen = now
	return r
}

// Observe records an inbound message from id and returns the updated sentiment.
func (m *Memory) Observe(ctx context.Context, id, name, msg string) Sentiment {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.get(id, name)
	r.Interactions++
	r.Sentiment = nextSentiment(r.Sentiment, r.Interactions, msg)
	m.save(ctx)
	return r.Sentiment
}

// Append adds a turn to id's history, trimming to the configured limit.
func (m *Memory) Append(ctx context.Context, id, role, content string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.get(id, "")
	r.History = append(r.History, Turn{Role: role, Content: content, At: m.now()})
	if len(r.History) > m.limit {
		r.History = append([]Turn(nil), r.History[len(r.History)-m.limit:]...)
	}
	m.save(ctx)
}

// History returns up to n of id's most recent turns, oldest first.
func (m *Memory) History(id string, n int) []Turn {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[id]
	if !ok || n <= 0 {
		return nil
	}
	h := r.History
	if len(h) > n {
		h = h[len(h)-n:]
	}
	return append([]Turn(nil), h...)
}

// Sentiment returns id's current sentiment, neutral for strangers.
func (m *Memory) Sentiment(id string) Sentiment {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.records[id]; ok {
		return r.Sentiment
	}
	return Neutral
}

// Count returns the number of known users.
func (m *Memory) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

func (m *Memory) save(ctx context.Context) {
	if err := m.kv.Save(ctx, storeKey, m.records); err != nil {
		m.logger.Warn("user memory save failed", slog.Any("err", err))
	}
}
