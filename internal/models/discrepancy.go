// internal/models/discrepancy.go
package models

// DiscrepancyKind classifies a computed mismatch between the three systems.
type DiscrepancyKind string

const (
	// OrphanedAccess: a live grant with no active ledger entitlement, or an
	// inactive record whose platform-side removal previously failed.
	OrphanedAccess DiscrepancyKind = "OrphanedAccess"
	// OrphanedRole: an inactive record's chat id still holds the role.
	OrphanedRole DiscrepancyKind = "OrphanedRole"
	// ExpiringSoon: an active record inside the reminder window.
	ExpiringSoon DiscrepancyKind = "ExpiringSoon"
	// Expired: an active record whose end date has passed.
	Expired DiscrepancyKind = "Expired"
)

// Discrepancy is a computed, non-persisted unit of enforcement work. It
// carries the minimal identity needed to act and is processed exactly once
// per run.
type Discrepancy struct {
	Kind      DiscrepancyKind
	Server    string // normalized server key
	Email     string // normalized; empty for role-only discrepancies
	DiscordID string // set for OrphanedRole
	DaysLeft  int    // meaningful for ExpiringSoon/Expired

	// Record is the matching ledger row when one exists; nil for grants
	// unknown to the ledger (manual shares).
	Record *SubscriptionRecord
}
