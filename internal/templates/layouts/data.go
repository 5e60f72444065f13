// data.go provides typed context helpers for passing layout data from
// handlers/middleware to page components. This avoids importing plugin
// types in the layouts package; only simple types are stored.
//
// Data flow: Handler/Middleware -> Echo Context -> LayoutInjector -> Go Context -> Page
package layouts

import "context"

// ctxKey is a private type for context keys to prevent collisions.
type ctxKey string

const (
	keyAppName         ctxKey = "layout_app_name"
	keyIsAuthenticated ctxKey = "layout_is_authenticated"
	keyUserID          ctxKey = "layout_user_id"
	keyUserName        ctxKey = "layout_user_name"
	keyUserRole        ctxKey = "layout_user_role"
	keyCSRFToken       ctxKey = "layout_csrf_token"
	keyFlashes         ctxKey = "layout_flashes"
	keyActivePath      ctxKey = "layout_active_path"
	keyPermissions     ctxKey = "layout_permissions"
)

// Flash is a one-shot alert rendered at the top of the page. Type is one of
// success, warning or danger.
type Flash struct {
	Type    string
	Message string
}

// --- Setters (called by the layout injector in app/routes.go) ---

// SetAppName stores the display name shown in the title and header.
func SetAppName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, keyAppName, name)
}

// SetIsAuthenticated marks whether the current request has a signed-in user.
func SetIsAuthenticated(ctx context.Context, authed bool) context.Context {
	return context.WithValue(ctx, keyIsAuthenticated, authed)
}

// SetUserID stores the signed-in user's ID in context.
func SetUserID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, keyUserID, id)
}

// SetUserName stores the signed-in user's full name in context.
func SetUserName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, keyUserName, name)
}

// SetUserRole stores the signed-in user's role in context.
func SetUserRole(ctx context.Context, role string) context.Context {
	return context.WithValue(ctx, keyUserRole, role)
}

// SetCSRFToken stores the session's CSRF token for hidden form fields.
func SetCSRFToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, keyCSRFToken, token)
}

// SetFlashes stores the flashes consumed for this render.
func SetFlashes(ctx context.Context, flashes []Flash) context.Context {
	return context.WithValue(ctx, keyFlashes, flashes)
}

// SetActivePath stores the request path for navigation highlighting.
func SetActivePath(ctx context.Context, path string) context.Context {
	return context.WithValue(ctx, keyActivePath, path)
}

// SetPermissions stores the user's effective permission set.
func SetPermissions(ctx context.Context, perms map[string]bool) context.Context {
	return context.WithValue(ctx, keyPermissions, perms)
}

// --- Getters (called by page components) ---

// GetAppName returns the application display name.
func GetAppName(ctx context.Context) string {
	v, _ := ctx.Value(keyAppName).(string)
	return v
}

// IsAuthenticated returns true if a user is signed in.
func IsAuthenticated(ctx context.Context) bool {
	v, _ := ctx.Value(keyIsAuthenticated).(bool)
	return v
}

// GetUserID returns the signed-in user's ID, or zero.
func GetUserID(ctx context.Context) int64 {
	v, _ := ctx.Value(keyUserID).(int64)
	return v
}

// GetUserName returns the signed-in user's full name.
func GetUserName(ctx context.Context) string {
	v, _ := ctx.Value(keyUserName).(string)
	return v
}

// GetUserRole returns the signed-in user's role.
func GetUserRole(ctx context.Context) string {
	v, _ := ctx.Value(keyUserRole).(string)
	return v
}

// GetCSRFToken returns the CSRF token for forms.
func GetCSRFToken(ctx context.Context) string {
	v, _ := ctx.Value(keyCSRFToken).(string)
	return v
}

// GetFlashes returns the flashes to display.
func GetFlashes(ctx context.Context) []Flash {
	v, _ := ctx.Value(keyFlashes).([]Flash)
	return v
}

// GetActivePath returns the current request path.
func GetActivePath(ctx context.Context) string {
	v, _ := ctx.Value(keyActivePath).(string)
	return v
}

// IsAdmin reports whether the signed-in user holds the admin role.
func IsAdmin(ctx context.Context) bool {
	return GetUserRole(ctx) == "admin"
}

// Can reports whether the signed-in user holds perm. Used to hide links the
// user could not follow anyway.
func Can(ctx context.Context, perm string) bool {
	v, _ := ctx.Value(keyPermissions).(map[string]bool)
	return v[perm]
}
