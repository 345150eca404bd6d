package domain

import (
	"context"
	"time"
)

// User represents an account stored in a tenant (or the main) database.
type User struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	TenantID     string     `json:"tenant_id,omitempty"`
	RoleID       string     `json:"role_id"`
	IsActive     bool       `json:"is_active"`
	ActivatedAt  *time.Time `json:"activated_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Role groups permissions. Names are unique per database.
type Role struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Permissions []Permission `json:"permissions"`
	TenantID    string       `json:"tenant_id,omitempty"`
}

// Principal is the authenticated caller of one request. It is built by the
// identity middleware and must not be mutated afterwards.
type Principal struct {
	ID          string
	Email       string
	TenantID    string
	RoleID      string
	HasRole     bool
	Permissions PermissionSet
	IsActive    bool
	ActivatedAt *time.Time
}

// UserRepository defines data access for users. Every call names the
// logical database through h.
type UserRepository interface {
	Create(ctx context.Context, h DataHandle, user *User) error
	GetByID(ctx context.Context, h DataHandle, id string) (*User, error)
	GetByEmail(ctx context.Context, h DataHandle, email string) (*User, error)
	Update(ctx context.Context, h DataHandle, user *User) error
	Delete(ctx context.Context, h DataHandle, id string) error
	List(ctx context.Context, h DataHandle) ([]*User, error)
}

// RoleRepository defines data access for roles.
type RoleRepository interface {
	Create(ctx context.Context, h DataHandle, role *Role) error
	GetByID(ctx context.Context, h DataHandle, id string) (*Role, error)
	GetByName(ctx context.Context, h DataHandle, name string) (*Role, error)
	List(ctx context.Context, h DataHandle) ([]*Role, error)
}
