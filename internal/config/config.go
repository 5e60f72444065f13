// Package config handles loading application configuration from environment
// variables. All config is centralized here so no other package reads env
// vars directly. Sensible defaults are provided for development.
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
)

// Config holds all application configuration. Populated from environment
// variables at startup. Passed to other packages via dependency injection.
type Config struct {
	// Env is the runtime environment: "development" or "production".
	Env string

	// Port is the HTTP listen port (default: 8080).
	Port int

	// BaseURL is the public-facing URL used for links and CORS.
	BaseURL string

	// AppName is shown in page titles and the login greeting.
	AppName string

	// LogLevel controls log verbosity: "debug", "info", "warn", "error".
	LogLevel string

	// TrustedProxies lists the CIDRs whose X-Forwarded-For headers are
	// believed when resolving the client IP.
	TrustedProxies []string

	// Migrations holds golang-migrate settings.
	Migrations MigrationsConfig

	// Database holds MariaDB connection settings.
	Database DatabaseConfig

	// Redis holds Redis connection settings.
	Redis RedisConfig

	// Session holds server-side session settings.
	Session SessionConfig

	// Password holds the password policy and hashing cost.
	Password PasswordConfig

	// Lockout holds brute-force lockout settings.
	Lockout LockoutConfig

	// Auth holds authorization and auditing settings.
	Auth AuthConfig

	// Bootstrap holds the optional first-run admin account.
	Bootstrap BootstrapConfig
}

// DatabaseConfig holds MariaDB connection parameters. Individual fields
// (Host, User, Password, Name) are read from separate env vars so
// container orchestrators can manage each independently.
// If DATABASE_URL is set, it takes precedence over the individual fields.
type DatabaseConfig struct {
	// Host is the MariaDB address in host:port format (default: "localhost:3306").
	// If no port is specified, 3306 is appended automatically.
	Host string

	User     string
	Password string
	Name     string

	// dsnOverride is set when DATABASE_URL is provided, bypassing individual fields.
	dsnOverride string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration

	// Timeout bounds dialing; ReadTimeout and WriteTimeout bound I/O on an
	// established connection.
	Timeout      time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// ConnectRetries is how many pings startup attempts before giving up.
	ConnectRetries int
}

// DSN returns the go-sql-driver/mysql connection string. If DATABASE_URL was
// set, it is returned as-is. Otherwise the DSN is built from the individual
// fields with the driver's Config.FormatDSN().
//
// Every connection runs with a UTC session time zone and scans DATETIME into
// UTC time.Time, so lockout expiry and password ages written by Go compare
// correctly with CURRENT_TIMESTAMP defaults.
func (d DatabaseConfig) DSN() string {
	if d.dsnOverride != "" {
		return d.dsnOverride
	}
	cfg := mysql.NewConfig()
	cfg.User = d.User
	cfg.Passwd = d.Password
	cfg.Net = "tcp"
	cfg.Addr = ensurePort(d.Host, "3306")
	cfg.DBName = d.Name
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	cfg.Collation = "utf8mb4_unicode_ci"
	cfg.Timeout = d.Timeout
	cfg.ReadTimeout = d.ReadTimeout
	cfg.WriteTimeout = d.WriteTimeout
	cfg.Params = map[string]string{"time_zone": "'+00:00'"}
	return cfg.FormatDSN()
}

// ensurePort appends the default port if the host string doesn't include one.
func ensurePort(host, defaultPort string) string {
	_, _, err := net.SplitHostPort(host)
	if err != nil {
		return net.JoinHostPort(host, defaultPort)
	}
	return host
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	// URL is the Redis connection URL (e.g., "redis://localhost:6379").
	URL string

	// PoolSize caps open connections. Zero keeps go-redis' default.
	PoolSize int

	// ConnectRetries is how many pings startup attempts before giving up.
	ConnectRetries int
}

// MigrationsConfig holds golang-migrate settings.
type MigrationsConfig struct {
	// Path is the directory holding the numbered .up.sql/.down.sql files.
	Path string

	// Table records the applied version.
	Table string
}

// SessionConfig holds server-side session settings.
type SessionConfig struct {
	// IdleTimeout is the sliding lifetime of a session in Redis. Every
	// request that touches the session pushes the expiry forward.
	IdleTimeout time.Duration

	// CookieName is the name of the opaque session identifier cookie.
	CookieName string
}

// PasswordConfig holds the password policy. The character class flags are
// independent so a deployment can relax a single rule.
type PasswordConfig struct {
	MinLength        int
	RequireUppercase bool
	RequireLowercase bool
	RequireNumber    bool
	RequireSpecial   bool

	// HistoryCount is how many previous hashes are kept for reuse checks.
	HistoryCount int

	// MaxAge forces a password change once last_password_change is older.
	// Zero disables forced rotation.
	MaxAge time.Duration

	// Argon2 cost parameters for newly created hashes.
	Argon2Memory      uint32
	Argon2Iterations  uint32
	Argon2Parallelism uint8
}

// LockoutConfig holds per-account brute-force protection settings.
type LockoutConfig struct {
	// MaxAttempts is the failed-login count that triggers a lock.
	MaxAttempts int

	// Duration is how long a locked account stays locked.
	Duration time.Duration

	// LoginRateLimit is the number of login submissions allowed per client
	// IP per minute, applied before credentials are looked at.
	LoginRateLimit int
}

// AuthConfig holds authorization and auditing settings.
type AuthConfig struct {
	// PermissionCacheTTL bounds how long a role's permission list is reused.
	// Zero keeps it for the process lifetime.
	PermissionCacheTTL time.Duration

	// AuditSelfServiceChanges also records a password change request when a
	// user changes their own password. Admin resets are always recorded.
	AuditSelfServiceChanges bool
}

// BootstrapConfig describes the admin created on first run when the users
// table is empty. Ignored when Email is blank.
type BootstrapConfig struct {
	Email    string
	Password string
	Name     string
}

// Load reads configuration from environment variables with sensible defaults.
// Returns an error if required variables are missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Env:            getEnv("ENV", "development"),
		Port:           getEnvInt("PORT", 8080),
		BaseURL:        getEnv("BASE_URL", "http://localhost:8080"),
		AppName:        getEnv("APP_NAME", "Glassy AMS"),
		LogLevel:       getEnv("LOG_LEVEL", ""),
		TrustedProxies: getEnvList("TRUSTED_PROXIES", []string{
			"127.0.0.0/8",    // Localhost
			"10.0.0.0/8",     // Docker default bridge
			"172.16.0.0/12",  // Docker bridge (alternate range)
			"192.168.0.0/16", // Common LAN
			"fd00::/8",       // IPv6 private
		}),

		Migrations: MigrationsConfig{
			Path:  getEnv("MIGRATIONS_PATH", "db/migrations"),
			Table: getEnv("MIGRATIONS_TABLE", "schema_migrations"),
		},

		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost:3306"),
			User:            getEnv("DB_USER", "ams"),
			Password:        getEnv("DB_PASSWORD", "ams"),
			Name:            getEnv("DB_NAME", "glassy_ams"),
			dsnOverride:     getEnv("DATABASE_URL", ""),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			ConnMaxIdleTime: getEnvDuration("DB_CONN_MAX_IDLE_TIME", time.Minute),
			Timeout:         getEnvDuration("DB_TIMEOUT", 5*time.Second),
			ReadTimeout:     getEnvDuration("DB_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvDuration("DB_WRITE_TIMEOUT", 30*time.Second),
			ConnectRetries:  getEnvInt("DB_CONNECT_RETRIES", 10),
		},

		Redis: RedisConfig{
			URL:            getEnv("REDIS_URL", "redis://localhost:6379"),
			PoolSize:       getEnvInt("REDIS_POOL_SIZE", 0),
			ConnectRetries: getEnvInt("REDIS_CONNECT_RETRIES", 5),
		},

		Session: SessionConfig{
			IdleTimeout: getEnvDuration("SESSION_IDLE_TIMEOUT", time.Hour),
			CookieName:  getEnv("SESSION_COOKIE_NAME", "ams_session"),
		},

		Password: PasswordConfig{
			MinLength:         getEnvInt("PASSWORD_MIN_LENGTH", 8),
			RequireUppercase:  getEnvBool("PASSWORD_REQUIRE_UPPERCASE", true),
			RequireLowercase:  getEnvBool("PASSWORD_REQUIRE_LOWERCASE", true),
			RequireNumber:     getEnvBool("PASSWORD_REQUIRE_NUMBER", true),
			RequireSpecial:    getEnvBool("PASSWORD_REQUIRE_SPECIAL", true),
			HistoryCount:      getEnvInt("PASSWORD_HISTORY_COUNT", 5),
			MaxAge:            getEnvDuration("PASSWORD_MAX_AGE", 0),
			Argon2Memory:      uint32(getEnvInt("ARGON2_MEMORY_KIB", 64*1024)),
			Argon2Iterations:  uint32(getEnvInt("ARGON2_ITERATIONS", 3)),
			Argon2Parallelism: uint8(getEnvInt("ARGON2_PARALLELISM", 4)),
		},

		Lockout: LockoutConfig{
			MaxAttempts:    getEnvInt("MAX_LOGIN_ATTEMPTS", 5),
			Duration:       getEnvDuration("LOCKOUT_DURATION", 15*time.Minute),
			LoginRateLimit: getEnvInt("LOGIN_RATE_LIMIT", 10),
		},

		Auth: AuthConfig{
			PermissionCacheTTL:      getEnvDuration("PERMISSION_CACHE_TTL", 0),
			AuditSelfServiceChanges: getEnvBool("AUDIT_SELF_SERVICE_CHANGES", false),
		},

		Bootstrap: BootstrapConfig{
			Email:    getEnv("BOOTSTRAP_ADMIN_EMAIL", ""),
			Password: getEnv("BOOTSTRAP_ADMIN_PASSWORD", ""),
			Name:     getEnv("BOOTSTRAP_ADMIN_NAME", "Administrator"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate rejects settings that would silently weaken the auth core.
func (c *Config) validate() error {
	if c.Password.MinLength < 1 {
		return fmt.Errorf("PASSWORD_MIN_LENGTH must be at least 1")
	}
	if c.Password.HistoryCount < 0 {
		return fmt.Errorf("PASSWORD_HISTORY_COUNT must not be negative")
	}
	if c.Lockout.MaxAttempts < 1 {
		return fmt.Errorf("MAX_LOGIN_ATTEMPTS must be at least 1")
	}
	if c.Lockout.Duration <= 0 {
		return fmt.Errorf("LOCKOUT_DURATION must be positive")
	}
	if c.Session.IdleTimeout <= 0 {
		return fmt.Errorf("SESSION_IDLE_TIMEOUT must be positive")
	}
	if c.Session.CookieName == "" {
		return fmt.Errorf("SESSION_COOKIE_NAME is required")
	}
	if c.Database.ConnectRetries < 1 || c.Redis.ConnectRetries < 1 {
		return fmt.Errorf("DB_CONNECT_RETRIES and REDIS_CONNECT_RETRIES must be at least 1")
	}
	for _, cidr := range c.TrustedProxies {
		if _, _, err := net.ParseCIDR(cidr); err != nil {
			return fmt.Errorf("TRUSTED_PROXIES: invalid CIDR %q", cidr)
		}
	}
	if c.Migrations.Path == "" || c.Migrations.Table == "" {
		return fmt.Errorf("MIGRATIONS_PATH and MIGRATIONS_TABLE are required")
	}
	if c.Password.Argon2Memory == 0 || c.Password.Argon2Iterations == 0 || c.Password.Argon2Parallelism == 0 {
		return fmt.Errorf("argon2 cost parameters must be positive")
	}

	// Case-insensitive check catches common variants like "Production", "prod".
	if c.IsProduction() {
		if c.Database.dsnOverride == "" && c.Database.Password == "ams" {
			return fmt.Errorf("DB_PASSWORD must be changed from the development default in production")
		}
		if c.Redis.URL == "redis://localhost:6379" {
			return fmt.Errorf("REDIS_URL must be set explicitly in production")
		}
		if c.Bootstrap.Email != "" && c.Bootstrap.Password == "" {
			return fmt.Errorf("BOOTSTRAP_ADMIN_PASSWORD is required when BOOTSTRAP_ADMIN_EMAIL is set")
		}
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	env := strings.ToLower(c.Env)
	return env == "development" || env == "dev"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	env := strings.ToLower(c.Env)
	return env == "production" || env == "prod"
}

// --- Helper functions for reading environment variables ---

// getEnv reads a string env var or returns the default.
func getEnv(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return defaultVal
}

// getEnvInt reads an integer env var or returns the default.
func getEnvInt(key string, defaultVal int) int {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

// getEnvBool reads a boolean env var ("true", "1", "false", "0", ...) or
// returns the default.
func getEnvBool(key string, defaultVal bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

// getEnvList reads a comma-separated env var, dropping empty items, or
// returns the default.
func getEnvList(key string, defaultVal []string) []string {
	val, ok := os.LookupEnv(key)
	if !ok {
		return defaultVal
	}
	var items []string
	for _, item := range strings.Split(val, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

// getEnvDuration reads a duration env var (e.g., "15m") or returns the default.
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
