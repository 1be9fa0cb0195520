package notify

import (
	"context"
	"fmt"
	"testing"

	"media-reconciler/internal/common/config"
	apperrors "media-reconciler/internal/common/errors"
	"media-reconciler/internal/common/logger"
	"media-reconciler/internal/models"

	"github.com/stretchr/testify/assert"
)

type fakeEmail struct {
	sent [][]string
	err  error
}

func (f *fakeEmail) Send(to []string, subject, body string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, to)
	return nil
}

type fakeDM struct {
	sent []string
	errs map[string]error
}

func (f *fakeDM) SendDM(ctx context.Context, userID, content string) error {
	if err := f.errs[userID]; err != nil {
		return err
	}
	f.sent = append(f.sent, userID)
	return nil
}

func baseRecord() models.SubscriptionRecord {
	return models.SubscriptionRecord{
		PrimaryEmail:       "a@x.com",
		SecondaryEmail:     "alt@x.com",
		PrimaryDiscordID:   "1001",
		SecondaryDiscordID: "1002",
		NotifyEmail:        models.NotifyBoth,
		NotifyDiscord:      models.NotifyPrimary,
	}
}

func newDispatcher(email *fakeEmail, dm *fakeDM, dryRun bool) *Dispatcher {
	cfg := config.EmailConfig{
		ReminderSubject: "Reminder - {daysLeft} days",
		ReminderBody:    "expires in {daysLeft} days",
		RemovalSubject:  "Removed",
		RemovalBody:     "subscription for {primaryEmail} ended",
	}
	return NewDispatcher(email, dm, cfg, dryRun, logger.NewNoOpLogger())
}

func TestNotify_FanOutFollowsPreferences(t *testing.T) {
	email := &fakeEmail{}
	dm := &fakeDM{}
	d := newDispatcher(email, dm, false)

	var ev models.UserEvent
	d.Notify(context.Background(), NoticeReminder, baseRecord(), config.ServerConfig{}, "plex1", 3, &ev)

	// NotifyBoth on email, NotifyPrimary on dm.
	assert.Equal(t, [][]string{{"a@x.com", "alt@x.com"}}, email.sent)
	assert.Equal(t, []string{"1001"}, dm.sent)
	assert.True(t, ev.EmailSent)
	assert.True(t, ev.DMAttempted)
	assert.True(t, ev.DMSent)
}

func TestNotify_NonePreferenceSendsNothing(t *testing.T) {
	email := &fakeEmail{}
	dm := &fakeDM{}
	d := newDispatcher(email, dm, false)

	rec := baseRecord()
	rec.NotifyEmail = models.NotifyNone
	rec.NotifyDiscord = models.NotifyNone

	var ev models.UserEvent
	d.Notify(context.Background(), NoticeReminder, rec, config.ServerConfig{}, "plex1", 3, &ev)

	assert.Empty(t, email.sent)
	assert.Empty(t, dm.sent)
	assert.False(t, ev.EmailSent)
	assert.False(t, ev.DMAttempted)
}

func TestNotify_ClosedDMsAreAbsorbed(t *testing.T) {
	email := &fakeEmail{}
	dm := &fakeDM{errs: map[string]error{
		"1001": fmt.Errorf("dm 1001: %w", apperrors.ErrRecipientUnreachable),
	}}
	d := newDispatcher(email, dm, false)

	rec := baseRecord()
	rec.NotifyDiscord = models.NotifyBoth

	var ev models.UserEvent
	d.Notify(context.Background(), NoticeReminder, rec, config.ServerConfig{}, "plex1", 3, &ev)

	// The blocked primary does not stop the secondary.
	assert.Equal(t, []string{"1002"}, dm.sent)
	assert.True(t, ev.DMAttempted)
	assert.True(t, ev.DMSent)
}

func TestNotify_EmailFailureDoesNotStopDMs(t *testing.T) {
	email := &fakeEmail{err: fmt.Errorf("smtp down")}
	dm := &fakeDM{}
	d := newDispatcher(email, dm, false)

	var ev models.UserEvent
	d.Notify(context.Background(), NoticeRemoval, baseRecord(), config.ServerConfig{}, "plex1", 0, &ev)

	assert.False(t, ev.EmailSent)
	assert.Equal(t, []string{"1001"}, dm.sent)
	assert.True(t, ev.DMSent)
}

func TestNotify_DryRunSendsNothingButFlagsEverything(t *testing.T) {
	email := &fakeEmail{}
	dm := &fakeDM{}
	d := newDispatcher(email, dm, true)

	var ev models.UserEvent
	d.Notify(context.Background(), NoticeReminder, baseRecord(), config.ServerConfig{}, "plex1", 3, &ev)

	assert.Empty(t, email.sent)
	assert.Empty(t, dm.sent)
	assert.True(t, ev.EmailSent)
	assert.True(t, ev.DMAttempted)
	assert.True(t, ev.DMSent)
}
