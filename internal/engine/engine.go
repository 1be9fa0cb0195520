// internal/engine/engine.go
package engine

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"media-reconciler/internal/common/config"
	apperrors "media-reconciler/internal/common/errors"
	"media-reconciler/internal/common/logger"
	"media-reconciler/internal/common/metrics"
	"media-reconciler/internal/lifecycle"
	"media-reconciler/internal/models"
	"media-reconciler/internal/notify"
)

// LedgerStore is the engine's view of the subscription ledger. SetStatus is
// the only write the engine ever performs against it.
type LedgerStore interface {
	UsersByStatus(ctx context.Context, status models.Status, serverKey string) ([]models.SubscriptionRecord, error)
	SetStatus(ctx context.Context, serverKey, email string, status models.Status) (bool, error)
}

// Media is a per-server client for the access platform.
type Media interface {
	ListUsers(ctx context.Context, serverName string, standardLibraries, optionalLibraries []string) ([]models.AccessGrant, []models.UserEvent, error)
	RemoveFriend(ctx context.Context, email string) (bool, error)
}

// RoleDirectory reads and mutates chat-role membership.
type RoleDirectory interface {
	MembersWithRole(ctx context.Context, roleName string, candidateIDs []string) (models.RoleMembership, error)
	RemoveRole(ctx context.Context, memberID, roleName string) (bool, error)
}

// Notifier delivers one notice for a subject and records the outcome.
type Notifier interface {
	Notify(ctx context.Context, kind notify.NoticeKind, rec models.SubscriptionRecord, srv config.ServerConfig, serverKey string, daysLeft int, ev *models.UserEvent)
}

// MediaFactory builds the access-platform client for one server block.
type MediaFactory func(srv config.ServerConfig) Media

// Engine drives one reconciliation run: snapshot the three systems per
// server, compute discrepancies against the snapshot only, then enforce.
// Nothing is re-queried mid-run, so a run is a consistent view even while
// the systems drift underneath it.
type Engine struct {
	cfg      *config.Config
	store    LedgerStore
	media    MediaFactory
	roles    RoleDirectory
	notifier Notifier
	logger   logger.Logger
}

func New(cfg *config.Config, store LedgerStore, media MediaFactory, roles RoleDirectory, notifier Notifier, log logger.Logger) *Engine {
	return &Engine{
		cfg:      cfg,
		store:    store,
		media:    media,
		roles:    roles,
		notifier: notifier,
		logger:   log,
	}
}

// snapshot is the frozen per-server state a run enforces against.
type snapshot struct {
	key      string
	srv      config.ServerConfig
	active   []models.SubscriptionRecord
	inactive []models.SubscriptionRecord
	grants   []models.AccessGrant
	roles    models.RoleMembership
	skipped  []models.UserEvent
}

// Run executes one full reconciliation pass over every configured server.
// A server whose snapshot cannot be collected is skipped with a logged
// collector error; the remaining servers still run. Only fatal
// configuration errors abort a run, and none arise past construction, so
// Run always returns a report.
func (e *Engine) Run(ctx context.Context, today time.Time) *models.RunReport {
	start := time.Now()
	dryRun := e.cfg.Reconcile.DryRun
	report := models.NewRunReport(uuid.NewString(), dryRun)

	mode := "enforce"
	if dryRun {
		mode = "dry_run"
	}
	runLog := e.logger.WithFields(map[string]interface{}{"run_id": report.RunID, "mode": mode})
	runLog.Info("reconciliation run starting", map[string]interface{}{
		"servers": len(e.cfg.Servers),
	})

	for _, key := range e.serverKeys() {
		srvLog := runLog.WithFields(map[string]interface{}{"server": key})

		snap, err := e.collect(ctx, key, e.cfg.Servers[key])
		if err != nil {
			srvLog.WithError(err).Error("snapshot collection failed, skipping server", nil)
			continue
		}

		discrepancies := detect(snap, today, e.cfg.Reconcile.ExpiryWindowDays)
		srvLog.Info("snapshot collected", map[string]interface{}{
			"active":        len(snap.active),
			"inactive":      len(snap.inactive),
			"grants":        len(snap.grants),
			"role_holders":  len(snap.roles),
			"discrepancies": len(discrepancies),
		})

		e.enforce(ctx, snap, discrepancies, report, srvLog)

		for _, ev := range snap.skipped {
			report.Add(ev)
			metrics.UsersSkipped.WithLabelValues(ev.SkippedReason).Inc()
		}
	}

	report.Finalize()
	summary := report.Summary()
	runLog.Info("reconciliation run finished", map[string]interface{}{
		"processed":            summary.Processed,
		"skipped":              summary.Skipped,
		"emails_sent":          summary.EmailSent,
		"dms_sent":             summary.DMSent,
		"removed_from_plex":    summary.RemovedFromPlex,
		"removed_from_discord": summary.RemovedFromDiscord,
		"duration":             time.Since(start).String(),
	})

	metrics.RunsTotal.WithLabelValues(mode).Inc()
	metrics.UsersProcessed.Add(float64(summary.Processed))
	metrics.RunDuration.Observe(time.Since(start).Seconds())
	return report
}

func (e *Engine) serverKeys() []string {
	keys := make([]string, 0, len(e.cfg.Servers))
	for k := range e.cfg.Servers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// collect freezes the three systems' state for one server. Any source
// failing makes the whole snapshot unusable.
func (e *Engine) collect(ctx context.Context, key string, srv config.ServerConfig) (*snapshot, error) {
	snap := &snapshot{key: key, srv: srv}

	var err error
	snap.active, err = e.store.UsersByStatus(ctx, models.StatusActive, key)
	if err != nil {
		return nil, apperrors.NewCollectorFailedError("ledger", err)
	}
	snap.inactive, err = e.store.UsersByStatus(ctx, models.StatusInactive, key)
	if err != nil {
		return nil, apperrors.NewCollectorFailedError("ledger", err)
	}

	snap.grants, snap.skipped, err = e.media(srv).ListUsers(ctx, srv.ServerName, srv.StandardLibraries, srv.OptionalLibraries)
	if err != nil {
		return nil, apperrors.NewCollectorFailedError("media", err)
	}

	// Role membership is probed only for ids the ledger knows about.
	var candidates []string
	for _, rec := range snap.active {
		candidates = append(candidates, rec.DiscordIDs()...)
	}
	for _, rec := range snap.inactive {
		candidates = append(candidates, rec.DiscordIDs()...)
	}
	snap.roles, err = e.roles.MembersWithRole(ctx, srv.Role, candidates)
	if err != nil {
		return nil, apperrors.NewCollectorFailedError("discord", err)
	}

	return snap, nil
}

// detect computes the run's work list purely from the snapshot. Each
// subject appears at most once per discrepancy kind.
func detect(snap *snapshot, today time.Time, windowDays int) []models.Discrepancy {
	var out []models.Discrepancy

	activeByEmail := make(map[string]*models.SubscriptionRecord, len(snap.active))
	for i := range snap.active {
		activeByEmail[snap.active[i].PrimaryEmail] = &snap.active[i]
	}
	inactiveByEmail := make(map[string]*models.SubscriptionRecord, len(snap.inactive))
	for i := range snap.inactive {
		inactiveByEmail[snap.inactive[i].PrimaryEmail] = &snap.inactive[i]
	}

	// Grants with no active entitlement: lapsed records whose removal
	// failed before, or shares made outside the ledger entirely.
	seenOrphan := make(map[string]bool)
	for _, grant := range snap.grants {
		if _, ok := activeByEmail[grant.Email]; ok {
			continue
		}
		if seenOrphan[grant.Email] {
			continue
		}
		seenOrphan[grant.Email] = true
		out = append(out, models.Discrepancy{
			Kind:   models.OrphanedAccess,
			Server: snap.key,
			Email:  grant.Email,
			Record: inactiveByEmail[grant.Email],
		})
	}

	// Expiry sweep over active records.
	for i := range snap.active {
		rec := &snap.active[i]
		state, daysLeft := lifecycle.Classify(*rec, today, windowDays)
		switch state {
		case lifecycle.StateExpiringSoon:
			out = append(out, models.Discrepancy{
				Kind:     models.ExpiringSoon,
				Server:   snap.key,
				Email:    rec.PrimaryEmail,
				DaysLeft: daysLeft,
				Record:   rec,
			})
		case lifecycle.StateExpired:
			out = append(out, models.Discrepancy{
				Kind:     models.Expired,
				Server:   snap.key,
				Email:    rec.PrimaryEmail,
				DaysLeft: daysLeft,
				Record:   rec,
			})
		}
	}

	// Role holders among inactive records. Any id an active record also
	// claims is shielded; the active entitlement wins.
	shielded := make(map[string]bool)
	for _, rec := range snap.active {
		for _, id := range rec.DiscordIDs() {
			shielded[id] = true
		}
	}
	seenRole := make(map[string]bool)
	for i := range snap.inactive {
		rec := &snap.inactive[i]
		for _, id := range rec.DiscordIDs() {
			if !snap.roles.Has(id) || shielded[id] || seenRole[id] {
				continue
			}
			seenRole[id] = true
			out = append(out, models.Discrepancy{
				Kind:      models.OrphanedRole,
				Server:    snap.key,
				Email:     rec.PrimaryEmail,
				DiscordID: id,
				Record:    rec,
			})
		}
	}

	return out
}

// enforce applies the per-subject pipeline to each discrepancy. The fixed
// order inside a subject is revoke access, notify, remove role, then the
// ledger status write; a failed step is logged and absorbed so the rest of
// the subject and the rest of the run still proceed.
func (e *Engine) enforce(ctx context.Context, snap *snapshot, discrepancies []models.Discrepancy, report *models.RunReport, srvLog logger.Logger) {
	dryRun := e.cfg.Reconcile.DryRun
	media := e.media(snap.srv)

	grantEmails := make(map[string]bool, len(snap.grants))
	for _, g := range snap.grants {
		grantEmails[g.Email] = true
	}

	// One event per subject; a subject hit by two discrepancy kinds gets
	// its flags merged.
	events := make(map[string]*models.UserEvent)
	var order []string
	eventFor := func(d models.Discrepancy) *models.UserEvent {
		subject := d.Email
		if subject == "" {
			subject = d.DiscordID
		}
		ev, ok := events[subject]
		if !ok {
			ev = &models.UserEvent{Email: d.Email, Server: snap.key}
			if d.Record != nil {
				ev.Username = d.Record.PrimaryDiscord
			}
			events[subject] = ev
			order = append(order, subject)
		}
		return ev
	}

	for _, d := range discrepancies {
		ev := eventFor(d)

		switch d.Kind {
		case models.OrphanedAccess:
			e.revokeAccess(ctx, media, snap.key, d.Email, dryRun, ev, srvLog)

		case models.ExpiringSoon:
			days := d.DaysLeft
			ev.DaysLeft = &days
			if !notify.HasPricing(*d.Record, snap.srv) {
				srvLog.Warn("no pricing block for subject's tier, skipping reminder", map[string]interface{}{
					"email": d.Email, "fourk": d.Record.FourK,
				})
				ev.SkippedReason = models.SkipNoPricing
				continue
			}
			e.notifier.Notify(ctx, notify.NoticeReminder, *d.Record, snap.srv, snap.key, d.DaysLeft, ev)

		case models.Expired:
			days := d.DaysLeft
			ev.DaysLeft = &days
			if grantEmails[d.Email] {
				e.revokeAccess(ctx, media, snap.key, d.Email, dryRun, ev, srvLog)
			}
			e.notifier.Notify(ctx, notify.NoticeRemoval, *d.Record, snap.srv, snap.key, d.DaysLeft, ev)
			for _, id := range d.Record.DiscordIDs() {
				if snap.roles.Has(id) {
					e.removeRole(ctx, snap.key, id, snap.srv.Role, dryRun, ev, srvLog)
				}
			}
			e.deactivate(ctx, snap.key, d.Email, dryRun, srvLog)

		case models.OrphanedRole:
			e.removeRole(ctx, snap.key, d.DiscordID, snap.srv.Role, dryRun, ev, srvLog)
		}
	}

	for _, subject := range order {
		report.Add(*events[subject])
	}
}

func (e *Engine) revokeAccess(ctx context.Context, media Media, serverKey, email string, dryRun bool, ev *models.UserEvent, srvLog logger.Logger) {
	if dryRun {
		srvLog.Info("dry run: would revoke platform access", map[string]interface{}{"email": email})
		ev.RemovedFromPlex = true
		return
	}

	removed, err := media.RemoveFriend(ctx, email)
	if err != nil {
		srvLog.WithError(apperrors.NewMutationFailedError("revoke_access", serverKey, email, err)).
			Error("access revocation failed", nil)
		metrics.MutationFailures.WithLabelValues("revoke_access").Inc()
		return
	}
	if removed {
		srvLog.Info("platform access revoked", map[string]interface{}{"email": email})
		metrics.RemovalsTotal.WithLabelValues("plex").Inc()
		ev.RemovedFromPlex = true
	}
}

func (e *Engine) removeRole(ctx context.Context, serverKey, discordID, role string, dryRun bool, ev *models.UserEvent, srvLog logger.Logger) {
	if dryRun {
		srvLog.Info("dry run: would remove chat role", map[string]interface{}{
			"discord_id": discordID, "role": role,
		})
		ev.RemovedFromDiscord = true
		return
	}

	removed, err := e.roles.RemoveRole(ctx, discordID, role)
	if err != nil {
		srvLog.WithError(apperrors.NewMutationFailedError("remove_role", serverKey, discordID, err)).
			Error("role removal failed", nil)
		metrics.MutationFailures.WithLabelValues("remove_role").Inc()
		return
	}
	if removed {
		srvLog.Info("chat role removed", map[string]interface{}{
			"discord_id": discordID, "role": role,
		})
		metrics.RemovalsTotal.WithLabelValues("discord").Inc()
		ev.RemovedFromDiscord = true
	}
}

func (e *Engine) deactivate(ctx context.Context, serverKey, email string, dryRun bool, srvLog logger.Logger) {
	if dryRun {
		srvLog.Info("dry run: would mark subscription inactive", map[string]interface{}{"email": email})
		return
	}

	changed, err := e.store.SetStatus(ctx, serverKey, email, models.StatusInactive)
	if err != nil {
		srvLog.WithError(apperrors.NewMutationFailedError("set_status", serverKey, email, err)).
			Error("ledger status update failed", nil)
		metrics.MutationFailures.WithLabelValues("set_status").Inc()
		return
	}
	if changed {
		srvLog.Info("subscription marked inactive", map[string]interface{}{"email": email})
	}
}
