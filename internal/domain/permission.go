package domain

// Permission is one entry of the closed permission taxonomy.
type Permission string

const (
	PermFullAccess                 Permission = "full:access"
	PermUserReadAndWrite           Permission = "user:read_and_write_only"
	PermUserDelete                 Permission = "user:delete_only"
	PermUserSelfReadAndWrite       Permission = "user:self_read_and_write_only"
	PermRoleAssignOrRemove         Permission = "role:assign_or_remove_only"
	PermUserView                   Permission = "user:view_only"
	PermRoleView                   Permission = "role:view_only"
	PermRoleReadAndWrite           Permission = "role:read_and_write_only"
	PermRoleDelete                 Permission = "role:delete_only"
	PermRolePermissionReadAndWrite Permission = "role:permission_read_and_write_only"
	PermHostManageTenants          Permission = "host:manage_tenants"
	PermManageStorageSettings      Permission = "manage:storage_settings"
	PermManageTenantSettings       Permission = "manage:tenant_settings"
	PermManageBilling              Permission = "manage:billing"
	PermManagePaymentsSettings     Permission = "manage:payments_settings"
	PermManageProductsAndPricing   Permission = "manage:products_and_pricing"
)

// AllPermissions lists the taxonomy in declaration order.
var AllPermissions = []Permission{
	PermFullAccess,
	PermUserReadAndWrite,
	PermUserDelete,
	PermUserSelfReadAndWrite,
	PermRoleAssignOrRemove,
	PermUserView,
	PermRoleView,
	PermRoleReadAndWrite,
	PermRoleDelete,
	PermRolePermissionReadAndWrite,
	PermHostManageTenants,
	PermManageStorageSettings,
	PermManageTenantSettings,
	PermManageBilling,
	PermManagePaymentsSettings,
	PermManageProductsAndPricing,
}

// IsValid reports whether p belongs to the taxonomy.
func (p Permission) IsValid() bool {
	for _, known := range AllPermissions {
		if p == known {
			return true
		}
	}
	return false
}

// PermissionSet is an unordered set of permissions.
type PermissionSet map[Permission]struct{}

// NewPermissionSet builds a set from a list.
func NewPermissionSet(perms ...Permission) PermissionSet {
	s := make(PermissionSet, len(perms))
	for _, p := range perms {
		s[p] = struct{}{}
	}
	return s
}

// Has reports membership.
func (s PermissionSet) Has(p Permission) bool {
	_, ok := s[p]
	return ok
}

// HasAny reports whether the intersection with perms is non-empty.
func (s PermissionSet) HasAny(perms ...Permission) bool {
	for _, p := range perms {
		if s.Has(p) {
			return true
		}
	}
	return false
}

// HasAll reports whether s is a superset of perms.
func (s PermissionSet) HasAll(perms ...Permission) bool {
	for _, p := range perms {
		if !s.Has(p) {
			return false
		}
	}
	return true
}
