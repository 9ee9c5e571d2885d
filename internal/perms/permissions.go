package perms

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/christopherjohns/hangbot/internal/store"
)

// storeKey is the document name of the persisted record.
const storeKey = "permissions"

// record is the persisted shape.
type record struct {
	Coowners   map[string]string `json:"coowners"`
	Moderators map[string]string `json:"moderators"`
}

// Permissions holds the elevated-role identities. Every mutation is written
// to the backing store before it returns; a failed write leaves the
// in-memory sets unchanged.
type Permissions struct {
	mu  sync.RWMutex
	rec record
	kv  store.Store
}

// Bootstrap seeds the record the first time the bot runs.
type Bootstrap struct {
	Coowners   map[string]string
	Moderators map[string]string
}

// Load reads the persisted record. When none exists, the bootstrap
// identities are written as the initial record.
func Load(ctx context.Context, kv store.Store, seed Bootstrap) (*Permissions, error) {
	p := &Permissions{kv: kv}
	found, err := kv.Load(ctx, storeKey, &p.rec)
	if err != nil {
		return nil, fmt.Errorf("perms: load: %w", err)
	}
	if p.rec.Coowners == nil {
		p.rec.Coowners = map[string]string{}
	}
	if p.rec.Moderators == nil {
		p.rec.Moderators = map[string]string{}
	}
	if found {
		return p, nil
	}
	for id, name := range seed.Coowners {
		p.rec.Coowners[id] = name
	}
	for id, name := range seed.Moderators {
		p.rec.Moderators[id] = name
	}
	if err := kv.Save(ctx, storeKey, p.rec); err != nil {
		return nil, fmt.Errorf("perms: seed: %w", err)
	}
	return p, nil
}

// IsCoowner reports whether id is a co-owner.
func (p *Permissions) IsCoowner(id string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.rec.Coowners[id]
	return ok
}

// IsModerator reports whether id is a moderator.
func (p *Permissions) IsModerator(id string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.rec.Moderators[id]
	return ok
}

// AddCoowner grants co-owner to id. Re-adding updates the display name.
func (p *Permissions) AddCoowner(ctx context.Context, id, name string) error {
	return p.mutate(ctx, func(r *record) { r.Coowners[id] = name })
}

// AddModerator grants moderator to id.
func (p *Permissions) AddModerator(ctx context.Context, id, name string) error {
	return p.mutate(ctx, func(r *record) { r.Moderators[id] = name })
}

// RemoveCoowner revokes co-owner. It reports whether id held the role.
func (p *Permissions) RemoveCoowner(ctx context.Context, id string) (bool, error) {
	var had bool
	err := p.mutate(ctx, func(r *record) {
		_, had = r.Coowners[id]
		delete(r.Coowners, id)
	})
	return had, err
}

// RemoveModerator revokes moderator. It reports whether id held the role.
func (p *Permissions) RemoveModerator(ctx context.Context, id string) (bool, error) {
	var had bool
	err := p.mutate(ctx, func(r *record) {
		_, had = r.Moderators[id]
		delete(r.Moderators, id)
	})
	return had, err
}

func (p *Permissions) mutate(ctx context.Context, fn func(*record)) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	next := record{
		Coowners:   clone(p.rec.Coowners),
		Moderators: clone(p.rec.Moderators),
	}
	fn(&next)
	if err := p.kv.Save(ctx, storeKey, next); err != nil {
		return fmt.Errorf("perms: save: %w", err)
	}
	p.rec = next
	return nil
}

// List renders both sets for chat, names sorted.
func (p *Permissions) List() string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var b strings.Builder
	b.WriteString("👑 Co-owners: ")
	b.WriteString(joinNames(p.rec.Coowners))
	b.WriteString("\n🛡️ Moderators: ")
	b.WriteString(joinNames(p.rec.Moderators))
	return b.String()
}

func joinNames(m map[string]string) string {
	if len(m) == 0 {
		return "none"
	}
	names := make([]string, 0, len(m))
	for id, name := range m {
		if name == "" {
			name = id
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

func clone(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
