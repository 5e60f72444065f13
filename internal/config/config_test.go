package config

import (
	"strings"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("ENV", "development")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Password.MinLength != 8 || cfg.Password.HistoryCount != 5 {
		t.Errorf("unexpected password defaults: %+v", cfg.Password)
	}
	if !cfg.Password.RequireUppercase || !cfg.Password.RequireLowercase ||
		!cfg.Password.RequireNumber || !cfg.Password.RequireSpecial {
		t.Error("expected every character class required by default")
	}
	if cfg.Lockout.MaxAttempts != 5 || cfg.Lockout.Duration != 15*time.Minute {
		t.Errorf("unexpected lockout defaults: %+v", cfg.Lockout)
	}
	if cfg.Session.IdleTimeout != time.Hour {
		t.Errorf("expected 1h idle timeout, got %v", cfg.Session.IdleTimeout)
	}
	if cfg.Auth.AuditSelfServiceChanges {
		t.Error("expected self-service auditing off by default")
	}
	if cfg.Migrations.Path != "db/migrations" || cfg.Migrations.Table != "schema_migrations" {
		t.Errorf("unexpected migration defaults: %+v", cfg.Migrations)
	}
	if cfg.Database.ConnectRetries != 10 || cfg.Redis.ConnectRetries != 5 {
		t.Errorf("unexpected retry defaults: db %d, redis %d", cfg.Database.ConnectRetries, cfg.Redis.ConnectRetries)
	}
	if len(cfg.TrustedProxies) == 0 {
		t.Error("expected default trusted proxy ranges")
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PASSWORD_MIN_LENGTH", "12")
	t.Setenv("PASSWORD_REQUIRE_SPECIAL", "false")
	t.Setenv("LOCKOUT_DURATION", "30m")
	t.Setenv("AUDIT_SELF_SERVICE_CHANGES", "1")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Password.MinLength != 12 || cfg.Password.RequireSpecial {
		t.Errorf("overrides not applied: %+v", cfg.Password)
	}
	if cfg.Lockout.Duration != 30*time.Minute {
		t.Errorf("expected 30m lockout, got %v", cfg.Lockout.Duration)
	}
	if !cfg.Auth.AuditSelfServiceChanges {
		t.Error("expected self-service auditing on")
	}
}

func TestLoad_RejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
		want string
	}{
		{"zero length", "PASSWORD_MIN_LENGTH", "0", "PASSWORD_MIN_LENGTH"},
		{"no attempts", "MAX_LOGIN_ATTEMPTS", "0", "MAX_LOGIN_ATTEMPTS"},
		{"negative history", "PASSWORD_HISTORY_COUNT", "-1", "PASSWORD_HISTORY_COUNT"},
		{"no db retries", "DB_CONNECT_RETRIES", "0", "DB_CONNECT_RETRIES"},
		{"empty migrations table", "MIGRATIONS_TABLE", "", "MIGRATIONS_TABLE"},
		{"bad proxy range", "TRUSTED_PROXIES", "10.0.0.0/8,nope", "TRUSTED_PROXIES"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error mentioning %s, got %v", tt.want, err)
			}
		})
	}
}

func TestLoad_ProductionRefusesDevDefaults(t *testing.T) {
	t.Setenv("ENV", "production")
	t.Setenv("REDIS_URL", "redis://cache:6379")

	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "DB_PASSWORD") {
		t.Fatalf("expected DB_PASSWORD error, got %v", err)
	}

	t.Setenv("DB_PASSWORD", "s3cret")
	t.Setenv("REDIS_URL", "redis://localhost:6379")
	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "REDIS_URL") {
		t.Fatalf("expected REDIS_URL error, got %v", err)
	}
}

func TestDSN_ParsesTimeInUTC(t *testing.T) {
	d := DatabaseConfig{Host: "db", User: "ams", Password: "p@ss:word", Name: "glassy_ams", Timeout: 5 * time.Second}
	dsn := d.DSN()
	if !strings.Contains(dsn, "tcp(db:3306)") || !strings.Contains(dsn, "parseTime=true") {
		t.Errorf("unexpected DSN %q", dsn)
	}

	parsed, err := mysql.ParseDSN(dsn)
	if err != nil {
		t.Fatalf("DSN does not parse: %v", err)
	}
	if parsed.Passwd != "p@ss:word" {
		t.Errorf("password not preserved: %q", parsed.Passwd)
	}
	if parsed.Loc != time.UTC {
		t.Errorf("expected UTC location, got %v", parsed.Loc)
	}
	if got := parsed.Params["time_zone"]; got != "'+00:00'" {
		t.Errorf("expected UTC session time_zone, got %q", got)
	}
	if parsed.Timeout != 5*time.Second {
		t.Errorf("expected 5s dial timeout, got %v", parsed.Timeout)
	}
}

func TestDSN_OverrideWins(t *testing.T) {
	d := DatabaseConfig{Host: "db", dsnOverride: "u:p@tcp(elsewhere:3306)/x"}
	if got := d.DSN(); got != "u:p@tcp(elsewhere:3306)/x" {
		t.Errorf("expected DATABASE_URL verbatim, got %q", got)
	}
}

func TestLoad_TrustedProxiesList(t *testing.T) {
	t.Setenv("TRUSTED_PROXIES", " 10.1.0.0/16, ,fd00::/8 ")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"10.1.0.0/16", "fd00::/8"}
	if len(cfg.TrustedProxies) != len(want) {
		t.Fatalf("expected %v, got %v", want, cfg.TrustedProxies)
	}
	for i := range want {
		if cfg.TrustedProxies[i] != want[i] {
			t.Errorf("entry %d: expected %q, got %q", i, want[i], cfg.TrustedProxies[i])
		}
	}
}
