// internal/models/subscription.go
package models

import (
	"strings"
	"time"
)

// Status is a ledger lifecycle status. Only the engine transitions a record
// to StatusInactive.
type Status string

const (
	StatusActive   Status = "Active"
	StatusInactive Status = "Inactive"
)

// IsValidStatus reports whether s is one of the two ledger statuses.
func IsValidStatus(s Status) bool {
	return s == StatusActive || s == StatusInactive
}

// NotifyPref selects which stored contacts receive a notification.
type NotifyPref string

const (
	NotifyNone      NotifyPref = "None"
	NotifyPrimary   NotifyPref = "Primary"
	NotifySecondary NotifyPref = "Secondary"
	NotifyBoth      NotifyPref = "Both"
)

// ParseNotifyPref folds a raw ledger value into a preference. Unknown or
// empty values mean no notification.
func ParseNotifyPref(raw string) NotifyPref {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "primary":
		return NotifyPrimary
	case "secondary":
		return NotifySecondary
	case "both":
		return NotifyBoth
	default:
		return NotifyNone
	}
}

// SubscriptionRecord is one subscriber row from the ledger, one per
// (subscriber, server). Emails and the server key are stored normalized.
type SubscriptionRecord struct {
	ID                 int64
	PrimaryEmail       string
	SecondaryEmail     string
	PrimaryDiscord     string // display handle, informational only
	SecondaryDiscord   string
	PrimaryDiscordID   string
	SecondaryDiscordID string
	NotifyEmail        NotifyPref
	NotifyDiscord      NotifyPref
	Status             Status
	Server             string
	FourK              bool
	JoinDate           *time.Time
	StartDate          *time.Time
	EndDate            *time.Time // nil means no expiry enforcement
}

// DiscordIDs returns the record's non-empty chat-handle identifiers.
func (r SubscriptionRecord) DiscordIDs() []string {
	var ids []string
	if r.PrimaryDiscordID != "" {
		ids = append(ids, r.PrimaryDiscordID)
	}
	if r.SecondaryDiscordID != "" {
		ids = append(ids, r.SecondaryDiscordID)
	}
	return ids
}
