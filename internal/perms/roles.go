// Package perms resolves chat identities to roles and roles to the
// commands they may run.
package perms

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Role is a permission tier.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleCoowner   Role = "coowner"
	RoleModerator Role = "moderator"
	RoleDJ        Role = "dj"
	RoleUser      Role = "user"
)

// Staff reports whether the role is co-owner tier or above, or a moderator.
func (r Role) Staff() bool {
	return r == RoleAdmin || r == RoleCoowner || r == RoleModerator
}

//go:embed roles.yaml
var defaultRoles []byte

// Table maps each role to the set of command names it may invoke.
// It is read-only after construction.
type Table map[Role]map[string]struct{}

// ParseTable decodes a YAML document of role -> command list.
func ParseTable(data []byte) (Table, error) {
	var raw map[string][]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("perms: parse role table: %w", err)
	}
	t := make(Table, len(raw))
	for role, cmds := range raw {
		set := make(map[string]struct{}, len(cmds))
		for _, c := range cmds {
			set[strings.ToLower(strings.TrimSpace(c))] = struct{}{}
		}
		t[Role(strings.ToLower(role))] = set
	}
	if _, ok := t[RoleUser]; !ok {
		return nil, fmt.Errorf("perms: role table has no %q role", RoleUser)
	}
	return t, nil
}

// DefaultTable returns the built-in role table.
func DefaultTable() Table {
	t, err := ParseTable(defaultRoles)
	if err != nil {
		panic(err)
	}
	return t
}

// LoadTable reads a role table from path, or returns the built-in one
// when path is empty.
func LoadTable(path string) (Table, error) {
	if path == "" {
		return DefaultTable(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("perms: read role table: %w", err)
	}
	return ParseTable(data)
}

// Allows reports whether role may run cmd. Unknown roles allow nothing.
func (t Table) Allows(role Role, cmd string) bool {
	set, ok := t[role]
	if !ok {
		return false
	}
	_, ok = set[strings.ToLower(cmd)]
	return ok
}
