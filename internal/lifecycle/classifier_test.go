package lifecycle

import (
	"testing"
	"time"

	"media-reconciler/internal/models"

	"github.com/stretchr/testify/assert"
)

func datePtr(t time.Time) *time.Time { return &t }

func TestClassify_Boundaries(t *testing.T) {
	today := time.Date(2026, 8, 20, 15, 30, 0, 0, time.UTC)
	window := 8

	tests := []struct {
		name     string
		end      *time.Time
		want     State
		wantDays int
	}{
		{"no end date never expires", nil, StateActive, 0},
		{"expires today", datePtr(today), StateExpiringSoon, 0},
		{"expired yesterday", datePtr(today.AddDate(0, 0, -1)), StateExpired, -1},
		{"last day inside window", datePtr(today.AddDate(0, 0, 7)), StateExpiringSoon, 7},
		{"first day outside window", datePtr(today.AddDate(0, 0, 8)), StateActive, 8},
		{"long expired", datePtr(today.AddDate(0, 0, -30)), StateExpired, -30},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state, days := Classify(models.SubscriptionRecord{EndDate: tt.end}, today, window)
			assert.Equal(t, tt.want, state)
			if tt.end != nil {
				assert.Equal(t, tt.wantDays, days)
			}
		})
	}
}

func TestDaysUntil_IgnoresTimeOfDay(t *testing.T) {
	// 23:59 today to 00:01 tomorrow is still one whole calendar day.
	today := time.Date(2026, 8, 20, 23, 59, 0, 0, time.UTC)
	end := time.Date(2026, 8, 21, 0, 1, 0, 0, time.UTC)
	assert.Equal(t, 1, DaysUntil(today, end))
}

func TestDaysUntil_ZoneOffsetsCannotShiftTheDay(t *testing.T) {
	east := time.FixedZone("UTC+12", 12*3600)
	west := time.FixedZone("UTC-8", -8*3600)

	today := time.Date(2026, 8, 20, 2, 0, 0, 0, east)
	end := time.Date(2026, 8, 25, 22, 0, 0, 0, west)
	assert.Equal(t, 5, DaysUntil(today, end))
}
