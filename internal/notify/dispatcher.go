// internal/notify/dispatcher.go
package notify

import (
	"context"
	"errors"

	"media-reconciler/internal/common/config"
	apperrors "media-reconciler/internal/common/errors"
	"media-reconciler/internal/common/logger"
	"media-reconciler/internal/common/metrics"
	"media-reconciler/internal/models"
)

// NoticeKind selects the template pair for a notification.
type NoticeKind string

const (
	NoticeReminder NoticeKind = "reminder"
	NoticeRemoval  NoticeKind = "removal"
)

// EmailSender delivers one message to a recipient list.
type EmailSender interface {
	Send(to []string, subject, body string) error
}

// DMSender delivers a direct message to one chat user.
type DMSender interface {
	SendDM(ctx context.Context, userID, content string) error
}

// Dispatcher fans one notice out to the channels and contacts the record's
// stored preferences select. Delivery failures are absorbed per channel; a
// notice that fails one channel still attempts the other. In dry-run mode
// nothing is sent and the event flags record what would have happened.
type Dispatcher struct {
	email    EmailSender
	dm       DMSender
	emailCfg config.EmailConfig
	dryRun   bool
	logger   logger.Logger
}

func NewDispatcher(email EmailSender, dm DMSender, emailCfg config.EmailConfig, dryRun bool, log logger.Logger) *Dispatcher {
	return &Dispatcher{email: email, dm: dm, emailCfg: emailCfg, dryRun: dryRun, logger: log}
}

// Notify sends one notice for a subject and records the outcome on ev.
func (d *Dispatcher) Notify(ctx context.Context, kind NoticeKind, rec models.SubscriptionRecord, srv config.ServerConfig, serverKey string, daysLeft int, ev *models.UserEvent) {
	fields := BuildFields(rec, srv, serverKey, daysLeft)

	subject, body := d.emailCfg.ReminderSubject, d.emailCfg.ReminderBody
	if kind == NoticeRemoval {
		subject, body = d.emailCfg.RemovalSubject, d.emailCfg.RemovalBody
	}
	subject = Render(subject, fields)
	body = Render(body, fields)

	d.sendEmail(kind, rec, subject, body, ev)
	d.sendDMs(ctx, kind, rec, body, ev)
}

func (d *Dispatcher) sendEmail(kind NoticeKind, rec models.SubscriptionRecord, subject, body string, ev *models.UserEvent) {
	recipients := selectContacts(rec.NotifyEmail, rec.PrimaryEmail, rec.SecondaryEmail)
	if len(recipients) == 0 {
		return
	}

	if d.dryRun {
		d.logger.Info("dry run: would send email", map[string]interface{}{
			"kind": string(kind), "recipients": recipients,
		})
		ev.EmailSent = true
		return
	}

	if err := d.email.Send(recipients, subject, body); err != nil {
		d.logger.WithError(apperrors.NewDeliveryFailedError("email", err)).Error(
			"email delivery failed", map[string]interface{}{
				"kind": string(kind), "email": rec.PrimaryEmail,
			})
		return
	}
	ev.EmailSent = true
	metrics.NotificationsSent.WithLabelValues("email").Inc()
}

func (d *Dispatcher) sendDMs(ctx context.Context, kind NoticeKind, rec models.SubscriptionRecord, content string, ev *models.UserEvent) {
	ids := selectContacts(rec.NotifyDiscord, rec.PrimaryDiscordID, rec.SecondaryDiscordID)
	for _, id := range ids {
		ev.DMAttempted = true

		if d.dryRun {
			d.logger.Info("dry run: would send dm", map[string]interface{}{
				"kind": string(kind), "discord_id": id,
			})
			ev.DMSent = true
			continue
		}

		err := d.dm.SendDM(ctx, id, content)
		if err != nil {
			if errors.Is(err, apperrors.ErrRecipientUnreachable) {
				d.logger.Warn("recipient does not accept dms", map[string]interface{}{
					"kind": string(kind), "discord_id": id,
				})
			} else {
				d.logger.WithError(apperrors.NewDeliveryFailedError("dm", err)).Error(
					"dm delivery failed", map[string]interface{}{
						"kind": string(kind), "discord_id": id,
					})
			}
			continue
		}
		ev.DMSent = true
		metrics.NotificationsSent.WithLabelValues("dm").Inc()
	}
}

// selectContacts resolves a stored preference against the primary and
// secondary contact values, dropping empties.
func selectContacts(pref models.NotifyPref, primary, secondary string) []string {
	var out []string
	if (pref == models.NotifyPrimary || pref == models.NotifyBoth) && primary != "" {
		out = append(out, primary)
	}
	if (pref == models.NotifySecondary || pref == models.NotifyBoth) && secondary != "" {
		out = append(out, secondary)
	}
	return out
}
