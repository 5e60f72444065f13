package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/glassyams/ams/internal/apperror"
	"github.com/glassyams/ams/internal/plugins/audit"
)

// InvalidCredentialsMessage is the only text a failed login ever shows.
// Unknown email, wrong password, inactive and locked accounts all look the
// same from outside.
const InvalidCredentialsMessage = "Invalid email or password."

// Internal reasons a login failed. Logged, never shown.
const (
	ReasonUnknownAccount = "unknown_account"
	ReasonInactive       = "inactive"
	ReasonLocked         = "locked"
	ReasonBadPassword    = "bad_password"
)

// AuthFailure is returned by Login for every credential problem. Reason and
// UserID exist for logging; handlers must render InvalidCredentialsMessage.
type AuthFailure struct {
	Reason string
	UserID int64
}

// Error implements the error interface.
func (f *AuthFailure) Error() string {
	return "authentication failed: " + f.Reason
}

// AuthService defines the business logic contract for authentication and
// the password lifecycle. Handlers call these methods -- they never touch
// the repository directly.
type AuthService interface {
	// Login verifies credentials under the lockout rules. Returns an
	// *AuthFailure for any credential problem.
	Login(ctx context.Context, input LoginInput) (*User, error)

	// ChangeOwnPassword runs the self-service change for u.
	ChangeOwnPassword(ctx context.Context, u *User, input ChangePasswordInput) error

	// CheckNewPassword validates a replacement password for userID: presence,
	// confirmation, strength and reuse. Returns *apperror.ValidationError.
	CheckNewPassword(ctx context.Context, userID int64, password, confirm string) error

	// SetPassword hashes and stores password for userID, rotating history
	// and running hooks in the same transaction.
	SetPassword(ctx context.Context, userID int64, password string, hooks ...TxHook) error

	// CreateUser hashes the initial password and stores the account.
	CreateUser(ctx context.Context, input NewUserInput) (*User, error)

	// PasswordViolations returns the strength rules password breaks.
	PasswordViolations(password string) []string

	// UnlockUser clears a lockout early.
	UnlockUser(ctx context.Context, userID int64) error

	// PasswordExpired reports whether u must rotate their password.
	PasswordExpired(u *User) bool
}

// ServiceOptions are the tunables of the auth service.
type ServiceOptions struct {
	// MaxPasswordAge forces a change once exceeded. Zero disables it.
	MaxPasswordAge time.Duration

	// AuditSelfService also writes a change request row for self-service
	// changes. Admin resets are always audited.
	AuditSelfService bool
}

// authService implements AuthService.
// passwordHasher is the part of *Hasher the service calls.
type passwordHasher interface {
	Hash(password string) (string, error)
	Verify(password, encodedHash string) bool
}

type authService struct {
	repo    UserRepository
	hasher  passwordHasher
	policy  *PolicyEngine
	lockout *LockoutGuard
	audit   audit.Service
	opts    ServiceOptions
	now     func() time.Time

	// dummyHash is verified against for unknown emails so a miss costs as
	// much as a hit.
	dummyOnce sync.Once
	dummyHash string
}

// NewAuthService creates a new auth service with the given dependencies.
func NewAuthService(repo UserRepository, hasher *Hasher, policy *PolicyEngine, lockout *LockoutGuard, auditSvc audit.Service, opts ServiceOptions) AuthService {
	return &authService{
		repo:    repo,
		hasher:  hasher,
		policy:  policy,
		lockout: lockout,
		audit:   auditSvc,
		opts:    opts,
		now:     time.Now,
	}
}

// NormalizeEmail trims and lowercases an address. Emails are stored and
// looked up in this form only.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// --- Login ---

// Login authenticates a user by email and password.
//
// A locked account is rejected before the password is looked at and the
// counters stay untouched. A lapsed lock falls through to the normal check
// with its stale count.
func (s *authService) Login(ctx context.Context, input LoginInput) (*User, error) {
	email := NormalizeEmail(input.Email)
	if email == "" || input.Password == "" {
		return nil, apperror.NewValidationErrors("Email and password are required.")
	}

	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if isNotFound(err) {
			s.hasher.Verify(input.Password, s.fallbackHash())
			return nil, s.fail(input, &AuthFailure{Reason: ReasonUnknownAccount})
		}
		return nil, apperror.NewInternal(fmt.Errorf("finding user: %w", err))
	}

	if !user.IsActive {
		// Same hash work as an active account so the response time does
		// not reveal the account state.
		s.hasher.Verify(input.Password, user.PasswordHash)
		return nil, s.fail(input, &AuthFailure{Reason: ReasonInactive, UserID: user.ID})
	}

	if s.lockout.IsLocked(user) {
		return nil, s.fail(input, &AuthFailure{Reason: ReasonLocked, UserID: user.ID})
	}

	if !s.hasher.Verify(input.Password, user.PasswordHash) {
		if _, err := s.lockout.RecordFailure(ctx, user); err != nil {
			return nil, apperror.NewInternal(fmt.Errorf("recording failed login: %w", err))
		}
		return nil, s.fail(input, &AuthFailure{Reason: ReasonBadPassword, UserID: user.ID})
	}

	if err := s.lockout.RecordSuccess(ctx, user); err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("clearing failed logins: %w", err))
	}

	slog.Info("user logged in",
		slog.Int64("user_id", user.ID),
		slog.String("ip", input.IPAddress),
	)
	return user, nil
}

// fail logs a login failure with its internal reason and returns it.
func (s *authService) fail(input LoginInput, f *AuthFailure) error {
	slog.Warn("login failed",
		slog.String("reason", f.Reason),
		slog.Int64("user_id", f.UserID),
		slog.String("ip", input.IPAddress),
	)
	return f
}

// fallbackHash returns a hash in the current format to burn verification
// time on unknown emails. Computed once on first use.
func (s *authService) fallbackHash() string {
	s.dummyOnce.Do(func() {
		h, err := s.hasher.Hash("not-a-real-password")
		if err != nil {
			slog.Error("failed to compute fallback hash", slog.Any("error", err))
			return
		}
		s.dummyHash = h
	})
	return s.dummyHash
}

// --- Password Changes ---

// ChangeOwnPassword validates the form, confirms the current password, then
// rejects reuse before storing the new credential. The caller destroys the
// session afterwards.
func (s *authService) ChangeOwnPassword(ctx context.Context, u *User, input ChangePasswordInput) error {
	v := apperror.NewValidationErrors()
	if input.CurrentPassword == "" {
		v.Add("Current password is required.")
	}
	s.checkReplacement(v, input.NewPassword, input.ConfirmPassword)
	if !v.Empty() {
		return v
	}

	if !s.hasher.Verify(input.CurrentPassword, u.PasswordHash) {
		return apperror.NewValidationErrors("Current password is incorrect.")
	}

	if err := s.checkReuse(ctx, u.ID, input.NewPassword); err != nil {
		return err
	}

	var hooks []TxHook
	if s.opts.AuditSelfService {
		hooks = append(hooks, func(ctx context.Context, tx *sql.Tx) error {
			return s.audit.Record(ctx, tx, &audit.PasswordChangeRequest{
				UserID:      u.ID,
				ChangedBy:   u.ID,
				RequestType: audit.TypeSelfService,
				Status:      audit.StatusCompleted,
				IPAddress:   input.IPAddress,
				Notes:       audit.NoteSelfService,
			})
		})
	}

	if err := s.SetPassword(ctx, u.ID, input.NewPassword, hooks...); err != nil {
		return err
	}

	slog.Info("password changed", slog.Int64("user_id", u.ID))
	return nil
}

// CheckNewPassword validates a replacement password for userID.
func (s *authService) CheckNewPassword(ctx context.Context, userID int64, password, confirm string) error {
	v := apperror.NewValidationErrors()
	s.checkReplacement(v, password, confirm)
	if !v.Empty() {
		return v
	}
	return s.checkReuse(ctx, userID, password)
}

// checkReplacement records presence, confirmation and strength problems.
func (s *authService) checkReplacement(v *apperror.ValidationError, password, confirm string) {
	if password == "" {
		v.Add("New password is required.")
		return
	}
	if password != confirm {
		v.Add("New password and confirmation do not match.")
	}
	for _, msg := range s.policy.ValidateStrength(password) {
		v.Add(msg)
	}
}

// checkReuse rejects password when it matches recent history.
func (s *authService) checkReuse(ctx context.Context, userID int64, password string) error {
	reused, err := s.policy.IsReused(ctx, userID, password)
	if err != nil {
		return apperror.NewInternal(fmt.Errorf("checking password history: %w", err))
	}
	if reused {
		return apperror.NewValidationErrors(s.policy.Policy().ReuseMessage())
	}
	return nil
}

// SetPassword hashes password and stores it. Any failure rolls back the
// hash, the history entry and the hooks together.
func (s *authService) SetPassword(ctx context.Context, userID int64, password string, hooks ...TxHook) error {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return apperror.NewInternal(fmt.Errorf("hashing password: %w", err))
	}

	if err := s.repo.UpdateCredentials(ctx, userID, hash, s.policy.Policy().HistoryCount, hooks...); err != nil {
		var appErr *apperror.AppError
		if errors.As(err, &appErr) {
			return appErr
		}
		return apperror.NewInternal(fmt.Errorf("updating credentials: %w", err))
	}
	return nil
}

// PasswordViolations returns the strength rules password breaks.
func (s *authService) PasswordViolations(password string) []string {
	return s.policy.ValidateStrength(password)
}

// --- Accounts ---

// CreateUser hashes the initial password and stores the account. The first
// hash is written to history with the insert.
func (s *authService) CreateUser(ctx context.Context, input NewUserInput) (*User, error) {
	if violations := s.policy.ValidateStrength(input.Password); len(violations) > 0 {
		return nil, apperror.NewValidationErrors(violations...)
	}
	if !ValidRole(input.Role) {
		return nil, apperror.NewValidationErrors("Please select a valid role.")
	}

	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("hashing password: %w", err))
	}

	user := &User{
		FullName:     strings.TrimSpace(input.FullName),
		Email:        NormalizeEmail(input.Email),
		PasswordHash: hash,
		Role:         input.Role,
		IsActive:     input.IsActive,
	}

	if err := s.repo.Create(ctx, user, s.policy.Policy().HistoryCount); err != nil {
		var appErr *apperror.AppError
		if errors.As(err, &appErr) && appErr.Code == http.StatusConflict {
			return nil, apperror.NewValidationErrors(appErr.Message)
		}
		return nil, apperror.NewInternal(fmt.Errorf("creating user: %w", err))
	}

	slog.Info("user created",
		slog.Int64("user_id", user.ID),
		slog.String("role", user.Role),
	)
	return user, nil
}

// UnlockUser clears a lockout early.
func (s *authService) UnlockUser(ctx context.Context, userID int64) error {
	if err := s.lockout.Unlock(ctx, userID); err != nil {
		return apperror.NewInternal(fmt.Errorf("unlocking user: %w", err))
	}
	return nil
}

// PasswordExpired reports whether u's password is older than the maximum
// age. Accounts that never recorded a change are treated as expired.
func (s *authService) PasswordExpired(u *User) bool {
	if s.opts.MaxPasswordAge <= 0 {
		return false
	}
	if u.LastPasswordChange == nil {
		return true
	}
	return s.now().Sub(*u.LastPasswordChange) > s.opts.MaxPasswordAge
}

// --- Helpers ---

// isNotFound reports whether err is an apperror with a 404 code.
func isNotFound(err error) bool {
	var appErr *apperror.AppError
	return errors.As(err, &appErr) && appErr.Code == http.StatusNotFound
}
