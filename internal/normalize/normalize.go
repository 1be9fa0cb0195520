// Package normalize canonicalizes identifiers before any cross-system
// comparison. The three fact sources disagree on casing and whitespace, so
// raw string equality on their fields is never safe.
package normalize

import "strings"

// ServerKey folds a server's human name into a stable lookup key. Inputs
// differing only by case or surrounding whitespace normalize identically.
func ServerKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Email trims and lowercases an email address. The second return is false
// for blank input; callers never see an empty-string email.
func Email(email string) (string, bool) {
	e := strings.ToLower(strings.TrimSpace(email))
	if e == "" {
		return "", false
	}
	return e, true
}

// ID trims an external identifier (chat-handle id). Empty means absent.
func ID(id string) string {
	return strings.TrimSpace(id)
}
