package auth

import "github.com/spec-kit/storefront-auth/internal/domain"

// Permission names a capability the grant table can allow per role,
// optionally scoped to a resource.
type Permission string

const (
	PermissionProductsRead  Permission = "products:read"
	PermissionProductsWrite Permission = "products:write"
	PermissionOrdersRead    Permission = "orders:read"
	PermissionOrdersManage  Permission = "orders:manage"
	PermissionUsersManage   Permission = "users:manage"
)

// ResourceAny grants a permission across all resources.
const ResourceAny = ""

// Grant is one row of the static policy table.
type Grant struct {
	Role       domain.Role
	Permission Permission
	Resource   string
}

// roleRank fixes the total order USER < SUPPLIER < ADMIN. Unknown roles
// rank below every known role.
var roleRank = map[domain.Role]int{
	domain.RoleUser:     1,
	domain.RoleSupplier: 2,
	domain.RoleAdmin:    3,
}

// Dominates reports whether role a sits at or above role b in the
// hierarchy. Reflexive for known roles; unknown roles dominate nothing.
func Dominates(a, b domain.Role) bool {
	ra, okA := roleRank[a]
	rb, okB := roleRank[b]
	return okA && okB && ra >= rb
}

// PolicyTable is the fail-closed capability lookup, built once at
// startup and read-only afterwards.
type PolicyTable struct {
	grants map[domain.Role]map[Permission]map[string]struct{}
}

// NewPolicyTable indexes the given grants.
func NewPolicyTable(grants []Grant) *PolicyTable {
	table := &PolicyTable{grants: make(map[domain.Role]map[Permission]map[string]struct{})}
	for _, g := range grants {
		perms, ok := table.grants[g.Role]
		if !ok {
			perms = make(map[Permission]map[string]struct{})
			table.grants[g.Role] = perms
		}
		resources, ok := perms[g.Permission]
		if !ok {
			resources = make(map[string]struct{})
			perms[g.Permission] = resources
		}
		resources[g.Resource] = struct{}{}
	}
	return table
}

// DefaultGrants is the static policy for the storefront roles.
func DefaultGrants() []Grant {
	return []Grant{
		{Role: domain.RoleUser, Permission: PermissionProductsRead, Resource: ResourceAny},
		{Role: domain.RoleUser, Permission: PermissionOrdersRead, Resource: "own"},
		{Role: domain.RoleSupplier, Permission: PermissionProductsRead, Resource: ResourceAny},
		{Role: domain.RoleSupplier, Permission: PermissionProductsWrite, Resource: "own"},
		{Role: domain.RoleSupplier, Permission: PermissionOrdersRead, Resource: "own"},
		{Role: domain.RoleAdmin, Permission: PermissionProductsRead, Resource: ResourceAny},
		{Role: domain.RoleAdmin, Permission: PermissionProductsWrite, Resource: ResourceAny},
		{Role: domain.RoleAdmin, Permission: PermissionOrdersRead, Resource: ResourceAny},
		{Role: domain.RoleAdmin, Permission: PermissionOrdersManage, Resource: ResourceAny},
		{Role: domain.RoleAdmin, Permission: PermissionUsersManage, Resource: ResourceAny},
	}
}

// CanPerform answers whether role may exercise permission on resource.
// Absent combinations deny. A grant on ResourceAny covers every
// resource; a resource-scoped grant covers only that resource.
func (p *PolicyTable) CanPerform(role domain.Role, permission Permission, resource string) bool {
	perms, ok := p.grants[role]
	if !ok {
		return false
	}
	resources, ok := perms[permission]
	if !ok {
		return false
	}
	if _, ok := resources[ResourceAny]; ok {
		return true
	}
	_, ok = resources[resource]
	return ok
}
