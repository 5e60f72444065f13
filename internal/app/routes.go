package app

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/glassyams/ams/internal/middleware"
	"github.com/glassyams/ams/internal/plugins/admin"
	"github.com/glassyams/ams/internal/plugins/assets"
	"github.com/glassyams/ams/internal/plugins/audit"
	"github.com/glassyams/ams/internal/plugins/auth"
	"github.com/glassyams/ams/internal/plugins/catalog"
	"github.com/glassyams/ams/internal/plugins/dashboard"
	"github.com/glassyams/ams/internal/plugins/reports"
	"github.com/glassyams/ams/internal/session"
	"github.com/glassyams/ams/internal/templates/layouts"
)

// healthTimeout bounds each dependency ping in /healthz.
const healthTimeout = 2 * time.Second

// Services exposes the wired services main.go needs after routing, such as
// the first-run admin bootstrap.
type Services struct {
	Users auth.UserRepository
	Auth  auth.AuthService
}

// RegisterRoutes wires every plugin and registers its routes. It also adds
// the session, CSRF and identity middleware, which depend on plugin
// construction.
//
// This is the single place where all routes are aggregated. When a new
// plugin is added, its routes are registered here.
func (a *App) RegisterRoutes() *Services {
	e := a.Echo
	cfg := a.Config

	// --- Infrastructure ---

	sessions := session.NewManager(session.NewRedisStore(a.Redis), cfg.Session.CookieName, cfg.Session.IdleTimeout)

	// --- Core Plugins ---

	users := auth.NewUserRepository(a.DB)
	hasher := auth.NewHasher(auth.Argon2Params{
		Memory:      cfg.Password.Argon2Memory,
		Iterations:  cfg.Password.Argon2Iterations,
		Parallelism: cfg.Password.Argon2Parallelism,
	})
	policy := auth.PasswordPolicy{
		MinLength:        cfg.Password.MinLength,
		RequireUppercase: cfg.Password.RequireUppercase,
		RequireLowercase: cfg.Password.RequireLowercase,
		RequireNumber:    cfg.Password.RequireNumber,
		RequireSpecial:   cfg.Password.RequireSpecial,
		HistoryCount:     cfg.Password.HistoryCount,
	}
	lockout := auth.NewLockoutGuard(users, auth.LockoutPolicy{
		MaxAttempts: cfg.Lockout.MaxAttempts,
		Duration:    cfg.Lockout.Duration,
	})
	auditSvc := audit.NewService(audit.NewRepository())
	authSvc := auth.NewAuthService(users, hasher, auth.NewPolicyEngine(policy, users, hasher), lockout, auditSvc, auth.ServiceOptions{
		MaxPasswordAge:   cfg.Password.MaxAge,
		AuditSelfService: cfg.Auth.AuditSelfServiceChanges,
	})
	authz := auth.NewAuthorizer(auth.NewPermissionRepository(a.DB), auth.NewPermissionCache(cfg.Auth.PermissionCacheTTL))
	resolver := auth.NewIdentityResolver(users, lockout)

	// Session first, then CSRF (reads the session's token), then the
	// identity slot (reads the session's user id).
	e.Use(sessions.Middleware())
	e.Use(middleware.CSRF())
	e.Use(resolver.Middleware())

	middleware.LayoutInjector = a.layoutInjector(authz)

	// Authenticated pages outside /account send expired passwords to the
	// change form.
	fresh := auth.RequirePasswordFresh(authSvc)

	// --- Public Routes (no auth required) ---

	e.GET("/healthz", a.healthz)

	auth.RegisterRoutes(e, auth.NewHandler(authSvc, sessions, policy, cfg.AppName), cfg.Lockout.LoginRateLimit)

	// --- Plugin Routes ---

	assetSvc := assets.NewAssetService(assets.NewAssetRepository(a.DB), authz)
	reportSvc := reports.NewService(reports.NewRepository(a.DB))

	dashboard.RegisterRoutes(e, dashboard.NewHandler(assetSvc, dashboard.NewRepository(a.DB), reportSvc, assets.Statuses), fresh)
	assets.RegisterRoutes(e, assets.NewHandler(assetSvc), authz, fresh)
	reports.RegisterRoutes(e, reports.NewHandler(reportSvc), authz, fresh)
	catalog.RegisterRoutes(e, catalog.NewHandler(catalog.NewService(catalog.NewRepository(a.DB))), authz, fresh)
	admin.RegisterRoutes(e, admin.NewHandler(admin.NewUserService(users, authSvc, auditSvc)), authz, fresh)

	return &Services{Users: users, Auth: authSvc}
}

// healthz reports whether MariaDB and Redis answer (GET /healthz).
func (a *App) healthz(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), healthTimeout)
	defer cancel()

	status := map[string]string{"status": "ok", "database": "ok", "redis": "ok"}
	code := http.StatusOK
	if err := a.DB.PingContext(ctx); err != nil {
		status["database"] = "unavailable"
		status["status"] = "degraded"
		code = http.StatusServiceUnavailable
	}
	if err := a.Redis.Ping(ctx).Err(); err != nil {
		status["redis"] = "unavailable"
		status["status"] = "degraded"
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, status)
}

// layoutInjector copies the request's identity, CSRF token and pending
// flashes into the render context. Reading the flashes consumes them.
func (a *App) layoutInjector(authz *auth.Authorizer) func(echo.Context, context.Context) context.Context {
	return func(c echo.Context, ctx context.Context) context.Context {
		ctx = layouts.SetAppName(ctx, a.Config.AppName)
		ctx = layouts.SetActivePath(ctx, activeSection(c.Request().URL.Path))

		if s := session.FromContext(c); s != nil {
			ctx = layouts.SetCSRFToken(ctx, middleware.GetCSRFToken(c))
			var flashes []layouts.Flash
			for _, f := range s.Flashes() {
				flashes = append(flashes, layouts.Flash{Type: f.Type, Message: f.Message})
			}
			ctx = layouts.SetFlashes(ctx, flashes)
		}

		user := auth.GetUser(c)
		if user == nil {
			return layouts.SetIsAuthenticated(ctx, false)
		}
		ctx = layouts.SetIsAuthenticated(ctx, true)
		ctx = layouts.SetUserID(ctx, user.ID)
		ctx = layouts.SetUserName(ctx, user.FullName)
		ctx = layouts.SetUserRole(ctx, user.Role)

		// Navigation degrades to no permission-gated links if the lookup fails.
		if perms, err := authz.Permissions(c.Request().Context(), user); err == nil {
			ctx = layouts.SetPermissions(ctx, perms)
		}
		return ctx
	}
}

// activeSection maps a request path to the nav entry it belongs to.
func activeSection(path string) string {
	for _, prefix := range []string{
		"/dashboard", "/assets", "/reports",
		"/admin/categories", "/admin/locations", "/admin/users", "/account",
	} {
		if strings.HasPrefix(path, prefix) {
			return prefix
		}
	}
	return path
}
