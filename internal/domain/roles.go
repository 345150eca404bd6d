package domain

// Default role names seeded into every new tenant.
const (
	RoleAdmin          = "admin"
	RoleUser           = "user"
	RoleGuest          = "guest"
	RoleBillingManager = "billing_manager"
	RoleHostAdmin      = "host_admin"
)

// DefaultRoles returns the role templates seeded by post-tenant-creation.
// IDs are left empty; callers assign them on insert.
func DefaultRoles(tenantID string) []*Role {
	return []*Role{
		{
			Name:        RoleAdmin,
			Description: "Full access to the tenant",
			Permissions: []Permission{PermFullAccess},
			TenantID:    tenantID,
		},
		{
			Name:        RoleUser,
			Description: "Regular member",
			Permissions: []Permission{PermUserSelfReadAndWrite, PermRoleView},
			TenantID:    tenantID,
		},
		{
			Name:        RoleGuest,
			Description: "Read-only access to own profile",
			Permissions: []Permission{PermUserSelfReadAndWrite},
			TenantID:    tenantID,
		},
		{
			Name:        RoleBillingManager,
			Description: "Manages billing and pricing",
			Permissions: []Permission{
				PermUserSelfReadAndWrite,
				PermManageBilling,
				PermManagePaymentsSettings,
				PermManageProductsAndPricing,
			},
			TenantID: tenantID,
		},
	}
}

// HostAdminRole is the role of platform operators in the main database.
func HostAdminRole() *Role {
	return &Role{
		Name:        RoleHostAdmin,
		Description: "Manages tenants across the platform",
		Permissions: []Permission{PermHostManageTenants, PermFullAccess},
	}
}
