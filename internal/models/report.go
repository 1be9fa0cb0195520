// internal/models/report.go
package models

import "time"

// Skip reason codes recorded on UserEvents.
const (
	SkipNoEmail       = "no_email"
	SkipInvalidRecord = "invalid_record"
	SkipNoPricing     = "no_pricing"
)

// UserEvent records what happened to one subject during a run.
type UserEvent struct {
	UserID             string `json:"userId,omitempty"`
	Username           string `json:"username,omitempty"`
	Email              string `json:"email,omitempty"`
	Server             string `json:"server,omitempty"`
	DaysLeft           *int   `json:"daysLeft,omitempty"`
	DMAttempted        bool   `json:"dmAttempted"`
	DMSent             bool   `json:"dmSent"`
	EmailSent          bool   `json:"emailSent"`
	RemovedFromPlex    bool   `json:"removedFromAccessPlatform"`
	RemovedFromDiscord bool   `json:"removedFromChatRole"`
	SkippedReason      string `json:"skippedReason,omitempty"`
}

// Summary is the per-run structured report, suitable for logging or
// machine consumption.
type Summary struct {
	Processed          int `json:"processed"`
	Skipped            int `json:"skipped"`
	DMAttempted        int `json:"dmAttempted"`
	DMSent             int `json:"dmSent"`
	EmailSent          int `json:"emailSent"`
	RemovedFromPlex    int `json:"removedFromAccessPlatform"`
	RemovedFromDiscord int `json:"removedFromChatRole"`
}

// RunReport accumulates one UserEvent per processed or skipped subject.
// Created at run start, finalized at run end, discarded after logging.
// In dry-run mode the action flags reflect what would have happened.
type RunReport struct {
	RunID      string
	DryRun     bool
	StartedAt  time.Time
	FinishedAt time.Time
	Events     []UserEvent
}

// NewRunReport starts an empty report.
func NewRunReport(runID string, dryRun bool) *RunReport {
	return &RunReport{RunID: runID, DryRun: dryRun, StartedAt: time.Now().UTC()}
}

// Add appends one subject's event.
func (r *RunReport) Add(ev UserEvent) {
	r.Events = append(r.Events, ev)
}

// Finalize stamps the end time and returns the report for chaining.
func (r *RunReport) Finalize() *RunReport {
	r.FinishedAt = time.Now().UTC()
	return r
}

// Summary aggregates event counts. Skipped subjects are not counted as
// processed.
func (r *RunReport) Summary() Summary {
	var s Summary
	for _, e := range r.Events {
		if e.SkippedReason != "" {
			s.Skipped++
		} else {
			s.Processed++
		}
		if e.DMAttempted {
			s.DMAttempted++
		}
		if e.DMSent {
			s.DMSent++
		}
		if e.EmailSent {
			s.EmailSent++
		}
		if e.RemovedFromPlex {
			s.RemovedFromPlex++
		}
		if e.RemovedFromDiscord {
			s.RemovedFromDiscord++
		}
	}
	return s
}

// SkippedEvents returns the non-actionable subjects of the run.
func (r *RunReport) SkippedEvents() []UserEvent {
	var out []UserEvent
	for _, e := range r.Events {
		if e.SkippedReason != "" {
			out = append(out, e)
		}
	}
	return out
}
