package domain

import "sort"

// Role names known to the authorization model.
const (
	RoleAdmin        = "admin"
	RoleSalesManager = "sales_manager"
	RoleSalesRep     = "sales_rep"
	RoleViewer       = "viewer"
)

// Permission strings granted through roles.
const (
	PermClientsRead       = "clients:read"
	PermClientsWrite      = "clients:write"
	PermStakeholdersRead  = "stakeholders:read"
	PermStakeholdersWrite = "stakeholders:write"
	PermSalesRepsRead     = "sales_reps:read"
	PermSalesRepsWrite    = "sales_reps:write"
	PermReportsRead       = "reports:read"
	PermUsersManage       = "users:manage"
	PermRolesManage       = "roles:manage"
)

// Role groups permissions and is assigned to users many-to-many.
type Role struct {
	ID          int64
	Name        string
	Permissions []string
}

// IsElevated reports whether the role bypasses ownership scoping.
func IsElevated(roleName string) bool {
	return roleName == RoleAdmin || roleName == RoleSalesManager
}

// PermissionSet is the union of permissions across a user's roles.
type PermissionSet map[string]struct{}

// NewPermissionSet builds the effective permission set for the given roles.
func NewPermissionSet(roles []Role) PermissionSet {
	set := make(PermissionSet)
	for _, role := range roles {
		for _, perm := range role.Permissions {
			set[perm] = struct{}{}
		}
	}
	return set
}

// Has reports whether perm is in the set.
func (s PermissionSet) Has(perm string) bool {
	_, ok := s[perm]
	return ok
}

// Sorted returns the permissions in lexical order.
func (s PermissionSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for perm := range s {
		out = append(out, perm)
	}
	sort.Strings(out)
	return out
}

// RoleNames returns the distinct role names in lexical order.
func RoleNames(roles []Role) []string {
	seen := make(map[string]struct{}, len(roles))
	out := make([]string, 0, len(roles))
	for _, role := range roles {
		if _, ok := seen[role.Name]; ok {
			continue
		}
		seen[role.Name] = struct{}{}
		out = append(out, role.Name)
	}
	sort.Strings(out)
	return out
}
