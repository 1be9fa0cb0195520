// internal/models/grant.go
package models

// AccessGrant is a live sharing relationship on the media platform, derived
// per run from the platform's shared-user listing. Never persisted. Grants
// without a resolvable email are filtered out before reconciliation.
type AccessGrant struct {
	UserID       string
	Username     string
	Email        string // normalized, never empty
	Server       string // normalized server key
	LibraryCount int
	FourK        bool // derived from LibraryCount vs configured sections
}

// RoleMembership is the set of chat-handle identifiers currently holding
// the audited role, captured once per run.
type RoleMembership map[string]struct{}

// Has reports whether the member id currently holds the role.
func (m RoleMembership) Has(id string) bool {
	_, ok := m[id]
	return ok
}
