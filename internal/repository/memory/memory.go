// Package memory provides in-process repositories used by tests and by
// single-process development runs.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yourorg/saasforge/internal/apperr"
	"github.com/yourorg/saasforge/internal/domain"
)

// TenantRepository is an in-memory tenant directory.
type TenantRepository struct {
	mu      sync.RWMutex
	tenants map[string]*domain.Tenant
}

func NewTenantRepository() *TenantRepository {
	return &TenantRepository{tenants: map[string]*domain.Tenant{}}
}

func (r *TenantRepository) Create(_ context.Context, t *domain.Tenant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.tenants {
		if existing.Name == t.Name {
			return apperr.Conflict("Tenant with name '%s' already exists", t.Name)
		}
		if t.Subdomain != "" && strings.EqualFold(existing.Subdomain, t.Subdomain) {
			return apperr.Conflict("Subdomain '%s' is already taken", t.Subdomain)
		}
		if t.CustomDomain != "" && strings.EqualFold(existing.CustomDomain, t.CustomDomain) {
			return apperr.Conflict("Custom domain '%s' is already taken", t.CustomDomain)
		}
	}
	if t.ID == "" {
		t.ID = domain.NewID()
	}
	now := time.Now().UTC()
	t.CreatedAt, t.UpdatedAt = now, now
	r.tenants[t.ID] = cloneTenant(t)
	return nil
}

func (r *TenantRepository) GetByID(_ context.Context, id string) (*domain.Tenant, error) {
	return r.find(func(t *domain.Tenant) bool { return t.ID == id })
}

func (r *TenantRepository) GetByName(_ context.Context, name string) (*domain.Tenant, error) {
	return r.find(func(t *domain.Tenant) bool { return t.Name == name })
}

func (r *TenantRepository) GetBySubdomain(_ context.Context, subdomain string) (*domain.Tenant, error) {
	return r.find(func(t *domain.Tenant) bool { return t.Subdomain != "" && strings.EqualFold(t.Subdomain, subdomain) })
}

func (r *TenantRepository) GetByCustomDomain(_ context.Context, host string) (*domain.Tenant, error) {
	return r.find(func(t *domain.Tenant) bool { return t.CustomDomain != "" && strings.EqualFold(t.CustomDomain, host) })
}

func (r *TenantRepository) find(match func(*domain.Tenant) bool) (*domain.Tenant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.tenants {
		if match(t) {
			return cloneTenant(t), nil
		}
	}
	return nil, apperr.NotFound("Tenant not found")
}

func (r *TenantRepository) Update(_ context.Context, t *domain.Tenant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tenants[t.ID]; !ok {
		return apperr.NotFound("Tenant not found")
	}
	t.UpdatedAt = time.Now().UTC()
	r.tenants[t.ID] = cloneTenant(t)
	return nil
}

func (r *TenantRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tenants[id]; !ok {
		return apperr.NotFound("Tenant not found")
	}
	delete(r.tenants, id)
	return nil
}

func (r *TenantRepository) List(_ context.Context) ([]*domain.Tenant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domain.Tenant, 0, len(r.tenants))
	for _, t := range r.tenants {
		out = append(out, cloneTenant(t))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func cloneTenant(t *domain.Tenant) *domain.Tenant {
	c := *t
	c.Features = make(domain.Features, len(t.Features))
	for k, v := range t.Features {
		c.Features[k] = v
	}
	return &c
}

// Databases holds one record set per logical database and counts schema
// initializations, so tests can observe binder behaviour.
type Databases struct {
	mu    sync.Mutex
	dbs   map[string]*database
	inits atomic.Int64
	// InitDelay slows InitSchema down to widen race windows in tests.
	InitDelay time.Duration
}

type database struct {
	users map[string]*domain.User
	roles map[string]*domain.Role
	// Reads counts List and Get calls, so tests can tell cache hits apart.
	reads int
}

func NewDatabases() *Databases {
	return &Databases{dbs: map[string]*database{}}
}

// InitSchema creates the logical database if it does not exist yet.
func (d *Databases) InitSchema(_ context.Context, h domain.DataHandle) error {
	if d.InitDelay > 0 {
		time.Sleep(d.InitDelay)
	}
	d.inits.Add(1)
	d.mu.Lock()
	defer d.mu.Unlock()
	d.get(h)
	return nil
}

// DropSchema removes a logical database. Dropping a missing one is a no-op.
func (d *Databases) DropSchema(_ context.Context, h domain.DataHandle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.dbs, h.Database())
	return nil
}

// Exists reports whether the logical database behind h exists.
func (d *Databases) Exists(h domain.DataHandle) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.dbs[h.Database()]
	return ok
}

// Inits returns the number of InitSchema calls so far.
func (d *Databases) Inits() int64 {
	return d.inits.Load()
}

// Reads returns how many read queries hit the logical database behind h.
func (d *Databases) Reads(h domain.DataHandle) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if db, ok := d.dbs[h.Database()]; ok {
		return db.reads
	}
	return 0
}

// get must be called with d.mu held.
func (d *Databases) get(h domain.DataHandle) *database {
	name := h.Database()
	db, ok := d.dbs[name]
	if !ok {
		db = &database{users: map[string]*domain.User{}, roles: map[string]*domain.Role{}}
		d.dbs[name] = db
	}
	return db
}

// UserRepository stores users in Databases.
type UserRepository struct {
	dbs *Databases
}

func NewUserRepository(dbs *Databases) *UserRepository {
	return &UserRepository{dbs: dbs}
}

func (r *UserRepository) Create(_ context.Context, h domain.DataHandle, u *domain.User) error {
	r.dbs.mu.Lock()
	defer r.dbs.mu.Unlock()
	db := r.dbs.get(h)
	for _, existing := range db.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return apperr.Conflict("User with email '%s' already exists", u.Email)
		}
	}
	if u.ID == "" {
		u.ID = domain.NewID()
	}
	now := time.Now().UTC()
	u.CreatedAt, u.UpdatedAt = now, now
	c := *u
	db.users[u.ID] = &c
	return nil
}

func (r *UserRepository) GetByID(_ context.Context, h domain.DataHandle, id string) (*domain.User, error) {
	r.dbs.mu.Lock()
	defer r.dbs.mu.Unlock()
	db := r.dbs.get(h)
	db.reads++
	u, ok := db.users[id]
	if !ok {
		return nil, apperr.NotFound("User not found")
	}
	c := *u
	return &c, nil
}

func (r *UserRepository) GetByEmail(_ context.Context, h domain.DataHandle, email string) (*domain.User, error) {
	r.dbs.mu.Lock()
	defer r.dbs.mu.Unlock()
	db := r.dbs.get(h)
	db.reads++
	for _, u := range db.users {
		if strings.EqualFold(u.Email, email) {
			c := *u
			return &c, nil
		}
	}
	return nil, apperr.NotFound("User not found")
}

func (r *UserRepository) Update(_ context.Context, h domain.DataHandle, u *domain.User) error {
	r.dbs.mu.Lock()
	defer r.dbs.mu.Unlock()
	db := r.dbs.get(h)
	if _, ok := db.users[u.ID]; !ok {
		return apperr.NotFound("User not found")
	}
	u.UpdatedAt = time.Now().UTC()
	c := *u
	db.users[u.ID] = &c
	return nil
}

func (r *UserRepository) Delete(_ context.Context, h domain.DataHandle, id string) error {
	r.dbs.mu.Lock()
	defer r.dbs.mu.Unlock()
	db := r.dbs.get(h)
	if _, ok := db.users[id]; !ok {
		return apperr.NotFound("User not found")
	}
	delete(db.users, id)
	return nil
}

func (r *UserRepository) List(_ context.Context, h domain.DataHandle) ([]*domain.User, error) {
	r.dbs.mu.Lock()
	defer r.dbs.mu.Unlock()
	db := r.dbs.get(h)
	db.reads++
	out := make([]*domain.User, 0, len(db.users))
	for _, u := range db.users {
		c := *u
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

// RoleRepository stores roles in Databases.
type RoleRepository struct {
	dbs *Databases
}

func NewRoleRepository(dbs *Databases) *RoleRepository {
	return &RoleRepository{dbs: dbs}
}

func (r *RoleRepository) Create(_ context.Context, h domain.DataHandle, role *domain.Role) error {
	r.dbs.mu.Lock()
	defer r.dbs.mu.Unlock()
	db := r.dbs.get(h)
	for _, existing := range db.roles {
		if existing.Name == role.Name {
			return apperr.Conflict("Role '%s' already exists", role.Name)
		}
	}
	if role.ID == "" {
		role.ID = domain.NewID()
	}
	c := *role
	c.Permissions = append([]domain.Permission(nil), role.Permissions...)
	db.roles[role.ID] = &c
	return nil
}

func (r *RoleRepository) GetByID(_ context.Context, h domain.DataHandle, id string) (*domain.Role, error) {
	r.dbs.mu.Lock()
	defer r.dbs.mu.Unlock()
	role, ok := r.dbs.get(h).roles[id]
	if !ok {
		return nil, apperr.NotFound("Role not found")
	}
	c := *role
	return &c, nil
}

func (r *RoleRepository) GetByName(_ context.Context, h domain.DataHandle, name string) (*domain.Role, error) {
	r.dbs.mu.Lock()
	defer r.dbs.mu.Unlock()
	for _, role := range r.dbs.get(h).roles {
		if role.Name == name {
			c := *role
			return &c, nil
		}
	}
	return nil, apperr.NotFound("Role not found")
}

func (r *RoleRepository) List(_ context.Context, h domain.DataHandle) ([]*domain.Role, error) {
	r.dbs.mu.Lock()
	defer r.dbs.mu.Unlock()
	roles := r.dbs.get(h).roles
	out := make([]*domain.Role, 0, len(roles))
	for _, role := range roles {
		c := *role
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
