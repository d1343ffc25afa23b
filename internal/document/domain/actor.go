package domain

import (
	"strings"

	"github.com/samber/lo"
	"github.com/smallbiznis/pipetrade/internal/doctype"
)

// Actor is the authenticated caller as asserted by the upstream gateway.
type Actor struct {
	ID    string
	Roles []doctype.Role
}

func (a Actor) Valid() bool {
	return strings.TrimSpace(a.ID) != ""
}

func (a Actor) HasRole(role doctype.Role) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// RoleList renders the roles the way the gateway sends them.
func (a Actor) RoleList() string {
	return strings.Join(lo.Map(a.Roles, func(r doctype.Role, _ int) string { return string(r) }), ",")
}

// RolesFor adds the implicit creator role when the actor created doc.
func (a Actor) RolesFor(doc *Document) []doctype.Role {
	roles := append([]doctype.Role(nil), a.Roles...)
	if doc != nil && a.ID != "" && doc.CreatedByID == a.ID && !a.HasRole(doctype.RoleCreator) {
		roles = append(roles, doctype.RoleCreator)
	}
	return roles
}
