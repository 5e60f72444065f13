package auth

import (
	"context"
	"log/slog"
	"time"
)

// LockoutPolicy configures per-account brute-force protection.
type LockoutPolicy struct {
	// MaxAttempts is the failed-login count that triggers a lock.
	MaxAttempts int

	// Duration is how long the account stays locked once triggered.
	Duration time.Duration
}

// DefaultLockoutPolicy returns five attempts and a fifteen minute lock.
func DefaultLockoutPolicy() LockoutPolicy {
	return LockoutPolicy{MaxAttempts: 5, Duration: 15 * time.Minute}
}

// IsLocked reports whether u is locked at now. A lock whose time has passed
// is lapsed: the account behaves as unlocked with its stale failure count.
func (p LockoutPolicy) IsLocked(u *User, now time.Time) bool {
	return u.LockedUntil != nil && now.Before(*u.LockedUntil)
}

// LockoutStore is the slice of the credential store the guard writes to.
type LockoutStore interface {
	// RecordFailedAttempt increments the counter and, once it reaches
	// threshold, locks the account until lockUntil. One atomic write.
	RecordFailedAttempt(ctx context.Context, userID int64, threshold int, lockUntil time.Time) (int, error)
	ResetFailedAttempts(ctx context.Context, userID int64) error
}

// LockoutGuard tracks failed logins per account in the database so locks
// survive restarts and apply across every server instance.
//
// Per account the states are Unlocked(count) and Locked(until):
//   - a failure while unlocked increments count; reaching MaxAttempts locks
//     the account until now+Duration
//   - any success resets to Unlocked(0)
//   - an attempt while locked is rejected before the password is looked at
//     and changes nothing
//   - once until has passed the account is Unlocked(count) again
type LockoutGuard struct {
	store  LockoutStore
	policy LockoutPolicy
	now    func() time.Time
}

// NewLockoutGuard creates a guard writing to store.
func NewLockoutGuard(store LockoutStore, policy LockoutPolicy) *LockoutGuard {
	return &LockoutGuard{store: store, policy: policy, now: time.Now}
}

// Policy returns the configured lockout rules.
func (g *LockoutGuard) Policy() LockoutPolicy {
	return g.policy
}

// IsLocked reports whether u is currently locked.
func (g *LockoutGuard) IsLocked(u *User) bool {
	return g.policy.IsLocked(u, g.now())
}

// RecordFailure counts a failed password check and locks the account once
// the threshold is reached. Returns whether the account is now locked.
func (g *LockoutGuard) RecordFailure(ctx context.Context, u *User) (bool, error) {
	until := g.now().Add(g.policy.Duration).UTC()
	count, err := g.store.RecordFailedAttempt(ctx, u.ID, g.policy.MaxAttempts, until)
	if err != nil {
		return false, err
	}

	if count < g.policy.MaxAttempts {
		return false, nil
	}

	slog.Warn("account locked after repeated failed logins",
		slog.Int64("user_id", u.ID),
		slog.Int("failed_attempts", count),
		slog.Time("locked_until", until),
	)
	return true, nil
}

// Unlock clears the counter and lock for userID, as an administrator does
// for a user who cannot wait out the lock.
func (g *LockoutGuard) Unlock(ctx context.Context, userID int64) error {
	if err := g.store.ResetFailedAttempts(ctx, userID); err != nil {
		return err
	}
	slog.Info("account unlocked", slog.Int64("user_id", userID))
	return nil
}

// RecordSuccess clears the counter and any lapsed lock. Skips the write
// when there is nothing to clear.
func (g *LockoutGuard) RecordSuccess(ctx context.Context, u *User) error {
	if u.FailedLoginAttempts == 0 && u.LockedUntil == nil {
		return nil
	}
	if err := g.store.ResetFailedAttempts(ctx, u.ID); err != nil {
		return err
	}
	u.FailedLoginAttempts = 0
	u.LockedUntil = nil
	return nil
}
