// Package sanitize cleans user-supplied free text (display names, audit
// notes) before it is stored. Every value is treated as plain text: markup is
// stripped with bluemonday's strict policy and whitespace is normalized.
package sanitize

import (
	"html"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

var (
	policy     *bluemonday.Policy
	policyOnce sync.Once
)

// getPolicy returns the shared strict policy, initializing it on first call.
func getPolicy() *bluemonday.Policy {
	policyOnce.Do(func() {
		policy = bluemonday.StrictPolicy()
	})
	return policy
}

// Text strips all HTML from input, collapses runs of whitespace into single
// spaces and trims the result. Entities produced by the policy are decoded
// again because templates escape on output.
func Text(input string) string {
	if input == "" {
		return ""
	}
	cleaned := html.UnescapeString(getPolicy().Sanitize(input))
	return strings.Join(strings.Fields(cleaned), " ")
}

// Truncate shortens s to at most max runes.
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
