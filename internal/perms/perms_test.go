package perms

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/christopherjohns/hangbot/internal/store"
)

func newTestPermissions(t *testing.T) (*Permissions, *store.Memory) {
	t.Helper()
	kv := store.NewMemory()
	p, err := Load(context.Background(), kv, Bootstrap{})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	return p, kv
}

func TestDefaultTable(t *testing.T) {
	tbl := DefaultTable()
	tests := []struct {
		role Role
		cmd  string
		want bool
	}{
		{RoleUser, "uptime", true},
		{RoleUser, "myuuid", true},
		{RoleUser, "addcoowner", false},
		{RoleUser, "ai", false},
		{RoleModerator, "ai", true},
		{RoleModerator, "addmod", false},
		{RoleCoowner, "addcoowner", true},
		{RoleCoowner, "REMOVEMOD", true},
		{RoleAdmin, "removecoowner", true},
		{Role("ghost"), "uptime", false},
	}
	for _, tt := range tests {
		if got := tbl.Allows(tt.role, tt.cmd); got != tt.want {
			t.Errorf("Allows(%s, %s) = %v, want %v", tt.role, tt.cmd, got, tt.want)
		}
	}
}

func TestParseTableRequiresUserRole(t *testing.T) {
	if _, err := ParseTable([]byte("admin: [uptime]\n")); err == nil {
		t.Fatal("expected error for table without user role")
	}
}

func TestLoadTableFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roles.yaml")
	if err := os.WriteFile(path, []byte("user: [help]\nDJ: [Help, room]\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	tbl, err := LoadTable(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !tbl.Allows(RoleDJ, "room") || tbl.Allows(RoleUser, "room") {
		t.Errorf("unexpected table %v", tbl)
	}
}

func TestResolveRole(t *testing.T) {
	p, _ := newTestPermissions(t)
	ctx := context.Background()
	_ = p.AddCoowner(ctx, "c1", "Carol")
	_ = p.AddModerator(ctx, "m1", "Mo")
	_ = p.AddModerator(ctx, "c1", "Carol")

	r := NewResolver(p, DefaultTable(), []string{"owner"})
	tests := map[string]Role{
		"owner":  RoleAdmin,
		"c1":     RoleCoowner,
		"m1":     RoleModerator,
		"nobody": RoleUser,
		"":       RoleUser,
	}
	for id, want := range tests {
		if got := r.ResolveRole(id); got != want {
			t.Errorf("ResolveRole(%q) = %s, want %s", id, got, want)
		}
	}
	if !r.HasPermission(RoleCoowner, "addmod") || r.HasPermission(RoleUser, "addmod") {
		t.Error("unexpected permission result")
	}
}

func TestMutationsPersist(t *testing.T) {
	p, kv := newTestPermissions(t)
	ctx := context.Background()

	if err := p.AddCoowner(ctx, "u1", "Alice"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := p.AddCoowner(ctx, "u1", "Alice2"); err != nil {
		t.Fatalf("re-add: %v", err)
	}
	if err := p.AddModerator(ctx, "u2", "Bob"); err != nil {
		t.Fatalf("add mod: %v", err)
	}

	reloaded, err := Load(ctx, kv, Bootstrap{Coowners: map[string]string{"seed": "Seed"}})
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !reloaded.IsCoowner("u1") || !reloaded.IsModerator("u2") {
		t.Fatal("mutations not persisted")
	}
	if reloaded.IsCoowner("seed") {
		t.Fatal("bootstrap must not apply once a record exists")
	}
	if !strings.Contains(reloaded.List(), "Alice2") {
		t.Errorf("expected updated display name, got %q", reloaded.List())
	}

	had, err := reloaded.RemoveCoowner(ctx, "u1")
	if err != nil || !had {
		t.Fatalf("remove: had=%v err=%v", had, err)
	}
	had, err = reloaded.RemoveCoowner(ctx, "u1")
	if err != nil || had {
		t.Fatalf("second remove: had=%v err=%v", had, err)
	}
	again, _ := Load(ctx, kv, Bootstrap{})
	if again.IsCoowner("u1") {
		t.Fatal("removal not persisted")
	}
}

func TestBootstrapSeedsOnce(t *testing.T) {
	kv := store.NewMemory()
	ctx := context.Background()
	p, err := Load(ctx, kv, Bootstrap{
		Coowners:   map[string]string{"c": "Cee"},
		Moderators: map[string]string{"m": "Em"},
	})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !p.IsCoowner("c") || !p.IsModerator("m") {
		t.Fatal("bootstrap identities missing")
	}
	if kv.Raw(storeKey) == nil {
		t.Fatal("seeded record was not persisted")
	}
}

func TestFailedSaveRollsBack(t *testing.T) {
	p, kv := newTestPermissions(t)
	ctx := context.Background()
	_ = p.AddModerator(ctx, "m1", "Mo")

	kv.Err = errors.New("read-only filesystem")
	if err := p.AddCoowner(ctx, "u1", "Alice"); err == nil {
		t.Fatal("expected save error")
	}
	if p.IsCoowner("u1") {
		t.Fatal("memory changed despite failed save")
	}
	if _, err := p.RemoveModerator(ctx, "m1"); err == nil {
		t.Fatal("expected save error")
	}
	if !p.IsModerator("m1") {
		t.Fatal("moderator removed despite failed save")
	}
}

func TestListFormatting(t *testing.T) {
	p, _ := newTestPermissions(t)
	if got := p.List(); got != "👑 Co-owners: none\n🛡️ Moderators: none" {
		t.Errorf("empty list: %q", got)
	}
	ctx := context.Background()
	_ = p.AddCoowner(ctx, "b", "Zed")
	_ = p.AddCoowner(ctx, "a", "Amy")
	_ = p.AddModerator(ctx, "x", "")
	if got := p.List(); got != "👑 Co-owners: Amy, Zed\n🛡️ Moderators: x" {
		t.Errorf("list: %q", got)
	}
}
