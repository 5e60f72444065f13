package auth

import (
	"fmt"

	"github.com/labstack/echo/v4"

	"github.com/glassyams/ams/internal/session"
)

// Echo context keys for the per-request identity slot and the resolver that
// fills it.
const (
	contextKeyIdentity = "auth_identity"
	contextKeyResolver = "auth_identity_resolver"
)

// identity memoizes the current user for one request.
type identity struct {
	resolved bool
	user     *User
	err      error
}

// IdentityResolver turns the session's user id into a live User record.
type IdentityResolver struct {
	repo    UserRepository
	lockout *LockoutGuard
}

// NewIdentityResolver creates a resolver reading users from repo.
func NewIdentityResolver(repo UserRepository, lockout *LockoutGuard) *IdentityResolver {
	return &IdentityResolver{repo: repo, lockout: lockout}
}

// Middleware attaches an empty per-request identity slot. The user is
// looked up on first use by CurrentUser, never before. Must run after the
// session middleware.
func (r *IdentityResolver) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Set(contextKeyIdentity, &identity{})
			c.Set(contextKeyResolver, r)
			return next(c)
		}
	}
}

// resolve fetches the session's user. The record is re-read on every request
// so role, active-flag and lock changes apply immediately. An inactive,
// missing or locked user is treated as signed out and the stale pointer is
// cleared from the session.
func (r *IdentityResolver) resolve(c echo.Context) (*User, error) {
	s := session.FromContext(c)
	if s == nil || s.UserID() == 0 {
		return nil, nil
	}

	user, err := r.repo.FindByID(c.Request().Context(), s.UserID())
	if err != nil {
		if isNotFound(err) {
			s.ClearUser()
			return nil, nil
		}
		return nil, fmt.Errorf("resolving session user: %w", err)
	}

	if !user.IsActive || r.lockout.IsLocked(user) {
		s.ClearUser()
		return nil, nil
	}
	return user, nil
}

// CurrentUser returns the signed-in user, or nil for anonymous requests. The
// lookup runs at most once per request.
func CurrentUser(c echo.Context) (*User, error) {
	id, ok := c.Get(contextKeyIdentity).(*identity)
	if !ok {
		return nil, nil
	}
	if !id.resolved {
		r, _ := c.Get(contextKeyResolver).(*IdentityResolver)
		if r != nil {
			id.user, id.err = r.resolve(c)
		}
		id.resolved = true
	}
	return id.user, id.err
}

// GetUser is CurrentUser for callers behind RequireLogin, where the lookup
// has already succeeded. Returns nil otherwise.
func GetUser(c echo.Context) *User {
	u, err := CurrentUser(c)
	if err != nil {
		return nil
	}
	return u
}

// SetUser records u as the request's resolved identity, replacing whatever
// was looked up before. A nil u makes the request anonymous.
func SetUser(c echo.Context, u *User) {
	c.Set(contextKeyIdentity, &identity{resolved: true, user: u})
}

// forgetUser drops the memoized identity after login or logout changes who
// the session belongs to.
func forgetUser(c echo.Context) {
	if id, ok := c.Get(contextKeyIdentity).(*identity); ok {
		*id = identity{}
	}
}
