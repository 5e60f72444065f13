package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/glassyams/ams/internal/apperror"
	"github.com/glassyams/ams/internal/database"
)

// mysqlErrDuplicateEntry is the MariaDB error number for unique key violations.
const mysqlErrDuplicateEntry = 1062

// ErrLastAdmin is returned when a change would leave no active admin.
var ErrLastAdmin = errors.New("operation would remove the last active admin")

// TxHook runs extra statements inside a credential transaction, e.g. writing
// the audit row for an admin reset. A hook error rolls everything back.
type TxHook func(ctx context.Context, tx *sql.Tx) error

// UserRepository defines the data access contract for users and their
// credentials. All SQL lives in the concrete implementation -- no SQL leaks
// out. Every method that touches more than one of {hash, history, lock
// state} runs in a single transaction.
type UserRepository interface {
	FindByID(ctx context.Context, id int64) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)

	// Credentials.
	UpdateCredentials(ctx context.Context, userID int64, hash string, historyLimit int, hooks ...TxHook) error
	PasswordHistory(ctx context.Context, userID int64) ([]string, error)

	// Lockout counters.
	RecordFailedAttempt(ctx context.Context, userID int64, threshold int, lockUntil time.Time) (int, error)
	ResetFailedAttempts(ctx context.Context, userID int64) error

	// Account management.
	Create(ctx context.Context, user *User, historyLimit int) error
	List(ctx context.Context) ([]User, error)
	Update(ctx context.Context, user *User) error
	Delete(ctx context.Context, id int64) error
	CountUsers(ctx context.Context) (int, error)
}

// userRepository implements UserRepository with hand-written MariaDB queries.
type userRepository struct {
	db *sql.DB
}

// NewUserRepository creates a new user repository backed by the given DB pool.
func NewUserRepository(db *sql.DB) UserRepository {
	return &userRepository{db: db}
}

// userColumns is the column list matching scanUser.
const userColumns = `id, full_name, email, password_hash, role, is_active,
	failed_login_attempts, locked_until, last_password_change, created_at`

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanUser reads one user in userColumns order.
func scanUser(row rowScanner) (*User, error) {
	u := &User{}
	err := row.Scan(
		&u.ID,
		&u.FullName,
		&u.Email,
		&u.PasswordHash,
		&u.Role,
		&u.IsActive,
		&u.FailedLoginAttempts,
		&u.LockedUntil,
		&u.LastPasswordChange,
		&u.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return u, nil
}

// FindByID retrieves a user by id.
// Returns apperror.NotFound if no user exists with this ID.
func (r *userRepository) FindByID(ctx context.Context, id int64) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = ?`

	user, err := scanUser(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound("user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("querying user by id: %w", err)
	}
	return user, nil
}

// FindByEmail retrieves a user by their (already normalized) email address.
// Returns apperror.NotFound if no user exists with this email.
func (r *userRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = ?`

	user, err := scanUser(r.db.QueryRowContext(ctx, query, email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound("user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("querying user by email: %w", err)
	}
	return user, nil
}

// --- Credentials ---

// UpdateCredentials stores a new password hash, stamps last_password_change,
// appends the hash to the history (trimmed to historyLimit) and runs hooks,
// all in one transaction.
func (r *userRepository) UpdateCredentials(ctx context.Context, userID int64, hash string, historyLimit int, hooks ...TxHook) error {
	return database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`UPDATE users SET password_hash = ?, last_password_change = ? WHERE id = ?`,
			hash, time.Now().UTC(), userID,
		)
		if err != nil {
			return fmt.Errorf("updating password hash: %w", err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return apperror.NewNotFound("user not found")
		}

		if err := appendHistory(ctx, tx, userID, hash, historyLimit); err != nil {
			return err
		}

		for _, hook := range hooks {
			if err := hook(ctx, tx); err != nil {
				return err
			}
		}
		return nil
	})
}

// appendHistory records hash as the newest history entry and evicts the
// oldest entries beyond limit. A limit of zero keeps no history at all.
func appendHistory(ctx context.Context, q database.Querier, userID int64, hash string, limit int) error {
	if limit <= 0 {
		if _, err := q.ExecContext(ctx, `DELETE FROM password_history WHERE user_id = ?`, userID); err != nil {
			return fmt.Errorf("clearing password history: %w", err)
		}
		return nil
	}

	if _, err := q.ExecContext(ctx,
		`INSERT INTO password_history (user_id, password_hash, created_at) VALUES (?, ?, ?)`,
		userID, hash, time.Now().UTC(),
	); err != nil {
		return fmt.Errorf("appending password history: %w", err)
	}

	// The id of the limit-th newest entry is the cutoff; everything older goes.
	var cutoff int64
	err := q.QueryRowContext(ctx,
		`SELECT id FROM password_history WHERE user_id = ? ORDER BY id DESC LIMIT 1 OFFSET ?`,
		userID, limit-1,
	).Scan(&cutoff)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("finding password history cutoff: %w", err)
	}

	if _, err := q.ExecContext(ctx,
		`DELETE FROM password_history WHERE user_id = ? AND id < ?`,
		userID, cutoff,
	); err != nil {
		return fmt.Errorf("trimming password history: %w", err)
	}
	return nil
}

// PasswordHistory returns the user's stored history hashes, oldest first.
func (r *userRepository) PasswordHistory(ctx context.Context, userID int64) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT password_hash FROM password_history WHERE user_id = ? ORDER BY id ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying password history: %w", err)
	}
	defer rows.Close()

	var hashes []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("scanning password history: %w", err)
		}
		hashes = append(hashes, h)
	}
	return hashes, rows.Err()
}

// --- Lockout Counters ---

// RecordFailedAttempt adds one to the failed login counter and, when the new
// count reaches threshold, sets locked_until in the same statement. MariaDB
// applies single-table UPDATE assignments left to right, so the IF sees the
// incremented counter. LAST_INSERT_ID(expr) hands the new count back without
// a second read, so concurrent failures never under-count or skip the lock.
func (r *userRepository) RecordFailedAttempt(ctx context.Context, userID int64, threshold int, lockUntil time.Time) (int, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users
		 SET failed_login_attempts = LAST_INSERT_ID(failed_login_attempts + 1),
		     locked_until = IF(failed_login_attempts >= ?, ?, locked_until)
		 WHERE id = ?`,
		threshold, lockUntil.UTC(), userID,
	)
	if err != nil {
		return 0, fmt.Errorf("recording failed attempt: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return 0, apperror.NewNotFound("user not found")
	}

	count, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading failed attempts: %w", err)
	}
	return int(count), nil
}

// ResetFailedAttempts zeroes the counter and clears any lock.
func (r *userRepository) ResetFailedAttempts(ctx context.Context, userID int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET failed_login_attempts = 0, locked_until = NULL WHERE id = ?`, userID)
	if err != nil {
		return fmt.Errorf("resetting failed attempts: %w", err)
	}
	return nil
}

// --- Account Management ---

// Create inserts a user and seeds their password history with the initial
// hash in the same transaction. Fills in user.ID.
func (r *userRepository) Create(ctx context.Context, user *User, historyLimit int) error {
	now := time.Now().UTC()
	user.CreatedAt = now
	user.LastPasswordChange = &now

	return database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`INSERT INTO users (full_name, email, password_hash, role, is_active, last_password_change, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			user.FullName, user.Email, user.PasswordHash, user.Role, user.IsActive, now, now,
		)
		if err != nil {
			if isDuplicateEntry(err) {
				return apperror.NewConflict("Email already exists.")
			}
			return fmt.Errorf("inserting user: %w", err)
		}

		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("getting user id: %w", err)
		}
		user.ID = id

		return appendHistory(ctx, tx, id, user.PasswordHash, historyLimit)
	})
}

// List returns all users ordered by name. Password hashes are left empty;
// list views never need credential data.
func (r *userRepository) List(ctx context.Context) ([]User, error) {
	query := `SELECT id, full_name, email, role, is_active, failed_login_attempts,
	                 locked_until, last_password_change, created_at
	          FROM users ORDER BY full_name, id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(
			&u.ID, &u.FullName, &u.Email, &u.Role, &u.IsActive, &u.FailedLoginAttempts,
			&u.LockedUntil, &u.LastPasswordChange, &u.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning user row: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// Update saves profile fields (name, email, role, active flag). If the user
// is currently an active admin and the change would end that, the update is
// refused with ErrLastAdmin when no other active admin exists. The admin rows
// are locked for the duration so two concurrent demotions cannot both pass.
func (r *userRepository) Update(ctx context.Context, user *User) error {
	return database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		current, err := lockUser(ctx, tx, user.ID)
		if err != nil {
			return err
		}

		stillActiveAdmin := user.Role == RoleAdmin && user.IsActive
		if current.Role == RoleAdmin && current.IsActive && !stillActiveAdmin {
			if err := ensureOtherActiveAdmin(ctx, tx); err != nil {
				return err
			}
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE users SET full_name = ?, email = ?, role = ?, is_active = ? WHERE id = ?`,
			user.FullName, user.Email, user.Role, user.IsActive, user.ID,
		)
		if err != nil {
			if isDuplicateEntry(err) {
				return apperror.NewConflict("Email already exists.")
			}
			return fmt.Errorf("updating user: %w", err)
		}
		return nil
	})
}

// Delete removes a user. Deleting the only active admin fails with
// ErrLastAdmin.
func (r *userRepository) Delete(ctx context.Context, id int64) error {
	return database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		current, err := lockUser(ctx, tx, id)
		if err != nil {
			return err
		}

		if current.Role == RoleAdmin && current.IsActive {
			if err := ensureOtherActiveAdmin(ctx, tx); err != nil {
				return err
			}
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id); err != nil {
			return fmt.Errorf("deleting user: %w", err)
		}
		return nil
	})
}

// CountUsers returns the total number of users.
func (r *userRepository) CountUsers(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting users: %w", err)
	}
	return count, nil
}

// lockUser reads the role and active flag of a user with a row lock.
func lockUser(ctx context.Context, tx *sql.Tx, id int64) (*User, error) {
	u := &User{ID: id}
	err := tx.QueryRowContext(ctx,
		`SELECT role, is_active FROM users WHERE id = ? FOR UPDATE`, id,
	).Scan(&u.Role, &u.IsActive)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound("user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("locking user: %w", err)
	}
	return u, nil
}

// ensureOtherActiveAdmin locks every active admin row and fails with
// ErrLastAdmin unless there are at least two.
func ensureOtherActiveAdmin(ctx context.Context, tx *sql.Tx) error {
	rows, err := tx.QueryContext(ctx,
		`SELECT id FROM users WHERE role = 'admin' AND is_active = 1 FOR UPDATE`)
	if err != nil {
		return fmt.Errorf("locking admin rows: %w", err)
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		count++
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("counting admins: %w", err)
	}
	if count <= 1 {
		return ErrLastAdmin
	}
	return nil
}

// isDuplicateEntry reports whether err is a MariaDB unique key violation.
func isDuplicateEntry(err error) bool {
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == mysqlErrDuplicateEntry
}
