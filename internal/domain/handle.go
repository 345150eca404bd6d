package domain

// MainDatabase is the logical database holding the tenant directory and
// host-level documents.
const MainDatabase = "main"

// DataHandle selects the logical database a repository call operates on.
// The zero value targets the main database.
type DataHandle struct {
	tenantID string
}

// MainHandle targets the main database.
func MainHandle() DataHandle {
	return DataHandle{}
}

// TenantHandle targets the isolated database of tenant id.
func TenantHandle(id string) DataHandle {
	return DataHandle{tenantID: id}
}

// TenantID returns the tenant the handle is bound to, or "" for main.
func (h DataHandle) TenantID() string {
	return h.tenantID
}

// IsMain reports whether the handle targets the main database.
func (h DataHandle) IsMain() bool {
	return h.tenantID == ""
}

// Database returns the logical database name: "main" or "tenant_{id}".
func (h DataHandle) Database() string {
	if h.tenantID == "" {
		return MainDatabase
	}
	return TenantDatabase(h.tenantID)
}

// TenantDatabase returns the logical database name of a tenant.
func TenantDatabase(tenantID string) string {
	return "tenant_" + tenantID
}
