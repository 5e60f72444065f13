package auth

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// PermissionCache holds each role's permission set. Implementations must be
// safe for concurrent use.
type PermissionCache interface {
	Get(role string) (map[string]bool, bool)
	Set(role string, perms map[string]bool)
}

// memoryPermissionCache keeps role permissions in process memory. A zero TTL
// keeps entries for the life of the process.
type memoryPermissionCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]cachedPermissions
	now     func() time.Time
}

type cachedPermissions struct {
	perms    map[string]bool
	storedAt time.Time
}

// NewPermissionCache creates an in-memory permission cache.
func NewPermissionCache(ttl time.Duration) PermissionCache {
	return &memoryPermissionCache{
		ttl:     ttl,
		entries: make(map[string]cachedPermissions),
		now:     time.Now,
	}
}

func (c *memoryPermissionCache) Get(role string) (map[string]bool, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[role]
	if !ok {
		return nil, false
	}
	if c.ttl > 0 && c.now().Sub(entry.storedAt) > c.ttl {
		return nil, false
	}
	return entry.perms, true
}

func (c *memoryPermissionCache) Set(role string, perms map[string]bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[role] = cachedPermissions{perms: perms, storedAt: c.now()}
}

// Authorizer answers role and permission questions. Roles are coarse and
// gate whole pages; permissions are fine-grained and gate single actions
// such as changing only an asset's location.
type Authorizer struct {
	repo  PermissionRepository
	cache PermissionCache
}

// NewAuthorizer creates an authorizer reading role mappings from repo and
// caching them in cache.
func NewAuthorizer(repo PermissionRepository, cache PermissionCache) *Authorizer {
	return &Authorizer{repo: repo, cache: cache}
}

// HasRole reports whether u holds one of roles. A nil user holds none.
func (a *Authorizer) HasRole(u *User, roles ...string) bool {
	if u == nil {
		return false
	}
	for _, r := range roles {
		if u.Role == r {
			return true
		}
	}
	return false
}

// HasPermission reports whether u may perform perm.
func (a *Authorizer) HasPermission(ctx context.Context, u *User, perm string) (bool, error) {
	if u == nil {
		return false, nil
	}

	// Admin is the superuser role: it is authorized for everything and never
	// consults the role mapping, even for permissions added later.
	if u.IsAdmin() {
		return true, nil
	}

	perms, err := a.rolePermissions(ctx, u.Role)
	if err != nil {
		return false, err
	}
	return perms[perm], nil
}

// HasAnyPermission reports whether u holds at least one of perms.
func (a *Authorizer) HasAnyPermission(ctx context.Context, u *User, perms ...string) (bool, error) {
	for _, p := range perms {
		ok, err := a.HasPermission(ctx, u, p)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// Permissions returns u's effective permission set. Admins receive the full
// catalog.
func (a *Authorizer) Permissions(ctx context.Context, u *User) (map[string]bool, error) {
	if u == nil {
		return map[string]bool{}, nil
	}
	if u.IsAdmin() {
		all, err := a.repo.ListAll(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing permission catalog: %w", err)
		}
		return toSet(all), nil
	}
	return a.rolePermissions(ctx, u.Role)
}

// rolePermissions returns the cached permission set for role, loading it on
// first use.
func (a *Authorizer) rolePermissions(ctx context.Context, role string) (map[string]bool, error) {
	if perms, ok := a.cache.Get(role); ok {
		return perms, nil
	}

	names, err := a.repo.ListForRole(ctx, role)
	if err != nil {
		return nil, fmt.Errorf("loading permissions for role %s: %w", role, err)
	}
	perms := toSet(names)
	a.cache.Set(role, perms)
	return perms, nil
}

func toSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}
