package auth

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"
)

// SpecialCharacters is the set a password must draw from when special
// characters are required.
const SpecialCharacters = `!@#$%^&*(),.?":{}|<>`

// PasswordPolicy holds the strength rules. Character classes are ASCII:
// an accented capital does not count as an uppercase letter.
type PasswordPolicy struct {
	MinLength        int
	RequireUppercase bool
	RequireLowercase bool
	RequireNumber    bool
	RequireSpecial   bool

	// HistoryCount is how many previous hashes are checked for reuse.
	HistoryCount int
}

// DefaultPasswordPolicy returns the as-built rules: eight characters and all
// four character classes, with the last five passwords blocked.
func DefaultPasswordPolicy() PasswordPolicy {
	return PasswordPolicy{
		MinLength:        8,
		RequireUppercase: true,
		RequireLowercase: true,
		RequireNumber:    true,
		RequireSpecial:   true,
		HistoryCount:     5,
	}
}

// Validate returns one human-readable message per unmet rule. An empty
// result means the password is acceptable. Length counts characters, not
// bytes.
func (p PasswordPolicy) Validate(password string) []string {
	var violations []string

	if utf8.RuneCountInString(password) < p.MinLength {
		violations = append(violations, fmt.Sprintf("Password must be at least %d characters.", p.MinLength))
	}
	if p.RequireUppercase && !strings.ContainsFunc(password, isASCIIUpper) {
		violations = append(violations, "Password must contain at least one uppercase letter.")
	}
	if p.RequireLowercase && !strings.ContainsFunc(password, isASCIILower) {
		violations = append(violations, "Password must contain at least one lowercase letter.")
	}
	if p.RequireNumber && !strings.ContainsFunc(password, isASCIIDigit) {
		violations = append(violations, "Password must contain at least one number.")
	}
	if p.RequireSpecial && !strings.ContainsAny(password, SpecialCharacters) {
		violations = append(violations, "Password must contain at least one special character.")
	}

	return violations
}

// ReuseMessage is the violation reported when a password is in history.
func (p PasswordPolicy) ReuseMessage() string {
	return fmt.Sprintf("You cannot reuse any of your last %d passwords.", p.HistoryCount)
}

// Describe lists the active rules in plain language.
func (p PasswordPolicy) Describe() []string {
	rules := []string{fmt.Sprintf("At least %d characters", p.MinLength)}
	if p.RequireUppercase {
		rules = append(rules, "An uppercase letter")
	}
	if p.RequireLowercase {
		rules = append(rules, "A lowercase letter")
	}
	if p.RequireNumber {
		rules = append(rules, "A number")
	}
	if p.RequireSpecial {
		rules = append(rules, "A special character: "+SpecialCharacters)
	}
	if p.HistoryCount > 0 {
		rules = append(rules, fmt.Sprintf("Not one of your last %d passwords", p.HistoryCount))
	}
	return rules
}

func isASCIIUpper(r rune) bool { return r >= 'A' && r <= 'Z' }
func isASCIILower(r rune) bool { return r >= 'a' && r <= 'z' }
func isASCIIDigit(r rune) bool { return r >= '0' && r <= '9' }

// HistoryReader is the slice of the credential store the policy engine
// needs.
type HistoryReader interface {
	PasswordHistory(ctx context.Context, userID int64) ([]string, error)
}

// PolicyEngine validates password strength and blocks reuse of recent
// passwords.
type PolicyEngine struct {
	policy  PasswordPolicy
	history HistoryReader
	hasher  *Hasher
}

// NewPolicyEngine creates a policy engine.
func NewPolicyEngine(policy PasswordPolicy, history HistoryReader, hasher *Hasher) *PolicyEngine {
	return &PolicyEngine{policy: policy, history: history, hasher: hasher}
}

// Policy returns the configured rules.
func (e *PolicyEngine) Policy() PasswordPolicy {
	return e.policy
}

// ValidateStrength returns the violated strength rules for password.
func (e *PolicyEngine) ValidateStrength(password string) []string {
	return e.policy.Validate(password)
}

// IsReused reports whether candidate matches any stored history hash. Each
// entry is checked with the same one-way verification used for login; hash
// bytes are never compared directly. Only the newest HistoryCount entries
// are considered.
func (e *PolicyEngine) IsReused(ctx context.Context, userID int64, candidate string) (bool, error) {
	if e.policy.HistoryCount <= 0 {
		return false, nil
	}

	hashes, err := e.history.PasswordHistory(ctx, userID)
	if err != nil {
		return false, err
	}
	if len(hashes) > e.policy.HistoryCount {
		hashes = hashes[len(hashes)-e.policy.HistoryCount:]
	}

	for _, h := range hashes {
		if e.hasher.Verify(candidate, h) {
			return true, nil
		}
	}
	return false, nil
}
