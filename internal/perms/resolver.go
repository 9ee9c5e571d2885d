package perms

// Resolver answers role and permission questions for the command dispatcher.
type Resolver struct {
	admins map[string]struct{}
	perms  *Permissions
	table  Table
}

// NewResolver builds a resolver. admins are identities configured as
// owners of the bot; they outrank every persisted role.
func NewResolver(p *Permissions, table Table, admins []string) *Resolver {
	set := make(map[string]struct{}, len(admins))
	for _, id := range admins {
		set[id] = struct{}{}
	}
	return &Resolver{admins: set, perms: p, table: table}
}

// ResolveRole maps an identity to its role. Unknown identities are users.
func (r *Resolver) ResolveRole(id string) Role {
	if _, ok := r.admins[id]; ok && id != "" {
		return RoleAdmin
	}
	if r.perms.IsCoowner(id) {
		return RoleCoowner
	}
	if r.perms.IsModerator(id) {
		return RoleModerator
	}
	return RoleUser
}

// HasPermission reports whether role may run cmd.
func (r *Resolver) HasPermission(role Role, cmd string) bool {
	return r.table.Allows(role, cmd)
}
