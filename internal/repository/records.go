package repository

import (
	"strings"
	"time"

	multitenancy "github.com/bartventer/gorm-multitenancy/v8"

	"github.com/yourorg/saasforge/internal/domain"
)

// tenantRecord is the shared directory row in public.tenants.
type tenantRecord struct {
	multitenancy.TenantModel

	ID           string          `gorm:"primaryKey;type:varchar(24)"`
	Name         string          `gorm:"type:varchar(255);not null;uniqueIndex"`
	Subdomain    *string         `gorm:"type:varchar(255);uniqueIndex"`
	CustomDomain *string         `gorm:"type:varchar(255);uniqueIndex"`
	IsActive     bool            `gorm:"not null;default:true"`
	Features     map[string]bool `gorm:"serializer:json;type:text"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (tenantRecord) TableName() string   { return "public.tenants" }
func (tenantRecord) IsSharedModel() bool { return true }

// userRecord lives in every tenant schema and in the main schema.
type userRecord struct {
	ID           string `gorm:"primaryKey;type:varchar(24)"`
	Email        string `gorm:"type:varchar(320);not null;uniqueIndex"`
	PasswordHash string `gorm:"not null"`
	TenantID     string `gorm:"type:varchar(24)"`
	RoleID       string `gorm:"type:varchar(24);index"`
	IsActive     bool   `gorm:"not null;default:false"`
	ActivatedAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (userRecord) TableName() string   { return "users" }
func (userRecord) IsSharedModel() bool { return false }

type roleRecord struct {
	ID          string   `gorm:"primaryKey;type:varchar(24)"`
	Name        string   `gorm:"type:varchar(100);not null;uniqueIndex"`
	Description string   `gorm:"type:text"`
	Permissions []string `gorm:"serializer:json;type:text"`
	TenantID    string   `gorm:"type:varchar(24)"`
}

func (roleRecord) TableName() string   { return "roles" }
func (roleRecord) IsSharedModel() bool { return false }

func optional(s string) *string {
	if s == "" {
		return nil
	}
	v := strings.ToLower(s)
	return &v
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func toTenantRecord(t *domain.Tenant) *tenantRecord {
	features := make(map[string]bool, len(t.Features))
	for f, on := range t.Features {
		features[string(f)] = on
	}
	schema := domain.TenantDatabase(t.ID)
	return &tenantRecord{
		TenantModel: multitenancy.TenantModel{
			DomainURL:  schema,
			SchemaName: schema,
		},
		ID:           t.ID,
		Name:         t.Name,
		Subdomain:    optional(t.Subdomain),
		CustomDomain: optional(t.CustomDomain),
		IsActive:     t.IsActive,
		Features:     features,
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.UpdatedAt,
	}
}

func (r *tenantRecord) toDomain() *domain.Tenant {
	features := make(domain.Features, len(r.Features))
	for f, on := range r.Features {
		features[domain.Feature(f)] = on
	}
	return &domain.Tenant{
		ID:           r.ID,
		Name:         r.Name,
		Subdomain:    deref(r.Subdomain),
		CustomDomain: deref(r.CustomDomain),
		IsActive:     r.IsActive,
		Features:     features,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

func toUserRecord(u *domain.User) *userRecord {
	return &userRecord{
		ID:           u.ID,
		Email:        strings.ToLower(u.Email),
		PasswordHash: u.PasswordHash,
		TenantID:     u.TenantID,
		RoleID:       u.RoleID,
		IsActive:     u.IsActive,
		ActivatedAt:  u.ActivatedAt,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func (r *userRecord) toDomain() *domain.User {
	return &domain.User{
		ID:           r.ID,
		Email:        r.Email,
		PasswordHash: r.PasswordHash,
		TenantID:     r.TenantID,
		RoleID:       r.RoleID,
		IsActive:     r.IsActive,
		ActivatedAt:  r.ActivatedAt,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

func toRoleRecord(role *domain.Role) *roleRecord {
	perms := make([]string, 0, len(role.Permissions))
	for _, p := range role.Permissions {
		perms = append(perms, string(p))
	}
	return &roleRecord{
		ID:          role.ID,
		Name:        role.Name,
		Description: role.Description,
		Permissions: perms,
		TenantID:    role.TenantID,
	}
}

func (r *roleRecord) toDomain() *domain.Role {
	perms := make([]domain.Permission, 0, len(r.Permissions))
	for _, p := range r.Permissions {
		perms = append(perms, domain.Permission(p))
	}
	return &domain.Role{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		Permissions: perms,
		TenantID:    r.TenantID,
	}
}
