// Migration files are validated here to catch schema mismatches early.
package database

import (
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"testing"
)

// validRoles must match the ENUM values on users.role and role_permissions.role.
// Current ENUM: ENUM('admin', 'manager', 'viewer')
// Defined in 000001 and 000004.
var validRoles = map[string]bool{
	"admin":   true,
	"manager": true,
	"viewer":  true,
}

// validAssetStatuses must match the ENUM values on assets.status.
// Defined in 000008.
var validAssetStatuses = map[string]bool{
	"In Use":    true,
	"In Repair": true,
	"In Stock":  true,
	"Available": true,
}

// migrationsDir returns the absolute path to db/migrations/ from the project root.
func migrationsDir(t *testing.T) string {
	t.Helper()
	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("cannot determine test file path")
	}
	// thisFile is internal/database/migrate_test.go, project root is two dirs up.
	projectRoot := filepath.Join(filepath.Dir(thisFile), "..", "..")
	dir := filepath.Join(projectRoot, "db", "migrations")
	if _, err := os.Stat(dir); err != nil {
		t.Fatalf("migrations directory not found at %s: %v", dir, err)
	}
	return dir
}

// upFiles returns every .up.sql migration, failing the test when none exist.
func upFiles(t *testing.T) []string {
	t.Helper()
	files, err := filepath.Glob(filepath.Join(migrationsDir(t), "*.up.sql"))
	if err != nil {
		t.Fatalf("globbing migration files: %v", err)
	}
	if len(files) == 0 {
		t.Fatal("no migration files found")
	}
	return files
}

// TestMigrations_RoleSeedValues checks that every role literal used in a
// role_permissions seed is a member of the role ENUM. An unknown value makes
// MariaDB abort the migration with "Data truncated for column 'role'".
func TestMigrations_RoleSeedValues(t *testing.T) {
	rolePattern := regexp.MustCompile(`SELECT\s+'([^']+)'\s*,\s*id\s+FROM\s+permissions`)

	for _, f := range upFiles(t) {
		data, err := os.ReadFile(f)
		if err != nil {
			t.Fatalf("reading %s: %v", f, err)
		}
		content := string(data)
		if !strings.Contains(content, "role_permissions") {
			continue
		}

		for _, match := range rolePattern.FindAllStringSubmatch(content, -1) {
			if !validRoles[match[1]] {
				t.Errorf("%s: invalid role %q; valid values: admin, manager, viewer",
					filepath.Base(f), match[1])
			}
			if match[1] == "admin" {
				t.Errorf("%s: admin must not be seeded into role_permissions; it bypasses the mapping",
					filepath.Base(f))
			}
		}
	}
}

// TestMigrations_AssetStatusValues validates status literals in asset
// INSERT/UPDATE statements against the ENUM.
func TestMigrations_AssetStatusValues(t *testing.T) {
	statusPattern := regexp.MustCompile(`status\s*[=,]\s*'([^']+)'`)

	for _, f := range upFiles(t) {
		data, err := os.ReadFile(f)
		if err != nil {
			t.Fatalf("reading %s: %v", f, err)
		}
		content := string(data)
		if !strings.Contains(content, "assets") {
			continue
		}

		// Skip ALTER TABLE and CREATE TABLE (ENUM definitions).
		inDDL := false
		for _, line := range strings.Split(content, "\n") {
			trimmed := strings.TrimSpace(strings.ToUpper(line))
			if strings.HasPrefix(trimmed, "ALTER TABLE") || strings.HasPrefix(trimmed, "CREATE TABLE") {
				inDDL = true
			}
			if inDDL {
				if strings.Contains(line, ";") {
					inDDL = false
				}
				continue
			}

			for _, match := range statusPattern.FindAllStringSubmatch(line, -1) {
				if !validAssetStatuses[match[1]] {
					t.Errorf("%s: invalid asset status %q", filepath.Base(f), match[1])
				}
			}
		}
	}
}

// TestMigrations_SingleStatement ensures each migration holds one statement.
// The DSN does not enable multiStatements, so a second statement would fail.
func TestMigrations_SingleStatement(t *testing.T) {
	files, err := filepath.Glob(filepath.Join(migrationsDir(t), "*.sql"))
	if err != nil {
		t.Fatalf("globbing migration files: %v", err)
	}

	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			t.Fatalf("reading %s: %v", f, err)
		}
		// Drop quoted literals so semicolons inside strings are ignored.
		stripped := regexp.MustCompile(`'(?:[^']|'')*'`).ReplaceAllString(string(data), "''")
		body := strings.TrimSpace(stripped)
		body = strings.TrimSuffix(body, ";")
		if strings.Contains(body, ";") {
			t.Errorf("%s: contains more than one statement", filepath.Base(f))
		}
	}
}

// TestMigrations_UpDownPairs ensures every .up.sql has a matching .down.sql.
func TestMigrations_UpDownPairs(t *testing.T) {
	for _, up := range upFiles(t) {
		down := strings.Replace(up, ".up.sql", ".down.sql", 1)
		if _, err := os.Stat(down); err != nil {
			t.Errorf("missing down migration for %s", filepath.Base(up))
		}
	}
}

// appendOnlyTables hold records that outlive the users they mention. A
// referential action would rewrite or remove them when a user is deleted.
var appendOnlyTables = []string{"password_change_requests"}

// TestMigrations_AppendOnlyTablesHaveNoReferentialActions ensures audit
// tables carry raw user ids instead of foreign keys that cascade or null out.
func TestMigrations_AppendOnlyTablesHaveNoReferentialActions(t *testing.T) {
	forbidden := regexp.MustCompile(`(?i)ON\s+(DELETE|UPDATE)\s+(CASCADE|SET\s+NULL)`)
	foreignKey := regexp.MustCompile(`(?i)FOREIGN\s+KEY`)

	for _, table := range appendOnlyTables {
		found := false
		for _, f := range upFiles(t) {
			data, err := os.ReadFile(f)
			if err != nil {
				t.Fatalf("reading %s: %v", f, err)
			}
			content := string(data)
			if !regexp.MustCompile(`(?i)(CREATE|ALTER)\s+TABLE\s+` + table + `\b`).MatchString(content) {
				continue
			}
			found = true
			if forbidden.MatchString(content) {
				t.Errorf("%s: %s must not cascade or null out on user changes", filepath.Base(f), table)
			}
			if foreignKey.MatchString(content) {
				t.Errorf("%s: %s must not reference users with a foreign key", filepath.Base(f), table)
			}
		}
		if !found {
			t.Errorf("no migration creates %s", table)
		}
	}
}
