// Package main is the reconciler entrypoint: validate the environment,
// then run once or keep a daily schedule.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"media-reconciler/internal/common/config"
	"media-reconciler/internal/common/database"
	apperrors "media-reconciler/internal/common/errors"
	"media-reconciler/internal/common/logger"
	"media-reconciler/internal/discord"
	"media-reconciler/internal/engine"
	"media-reconciler/internal/ledger"
	"media-reconciler/internal/mailer"
	"media-reconciler/internal/notify"
	"media-reconciler/internal/plex"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to the YAML config file")
		dryRun     = flag.Bool("dry-run", false, "report what would change without mutating anything")
		runNow     = flag.Bool("run-now", false, "run a single reconciliation pass and exit")
		runAt      = flag.String("at", "02:00", "daily run time in HH:MM (scheduled mode)")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *dryRun {
		cfg.Reconcile.DryRun = true
	}

	zapLogger := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLogger.Sync()
	log := logger.NewZapAdapter(zapLogger.With(zap.String("app", cfg.App.Name)))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewMySQL(cfg.Database)
	if err != nil {
		log.WithError(apperrors.NewFatalConfigError(fmt.Sprintf("ledger connection: %v", err))).
			Error("ledger connection failed", nil)
		os.Exit(1)
	}
	defer db.Close()

	if err := validateStartup(ctx, cfg, db, log); err != nil {
		log.WithError(err).Error("startup validation failed", nil)
		if apperrors.IsFatal(err) {
			os.Exit(1)
		}
	}

	retryPolicy := cfg.Reconcile.RetryPolicy()
	store := ledger.NewStore(db.GetDB(), log)
	smtpMailer := mailer.New(cfg.Email, log)
	mediaFactory := func(srv config.ServerConfig) engine.Media {
		return plex.NewClient(srv.BaseURL, srv.Token, cfg.Reconcile.HTTPTimeoutDuration(), log,
			plex.WithRetryPolicy(retryPolicy))
	}

	runOnce := func(runCtx context.Context) {
		// The chat session is scoped to one run; its role cache dies with it.
		session := discord.NewSession(cfg.Discord, log, discord.WithRetryPolicy(retryPolicy))
		dispatcher := notify.NewDispatcher(smtpMailer, session, cfg.Email, cfg.Reconcile.DryRun, log)
		eng := engine.New(cfg, store, mediaFactory, session, dispatcher, log)
		eng.Run(runCtx, time.Now().UTC())
	}

	if *runNow {
		runOnce(ctx)
		return
	}

	if cfg.Metrics.Enabled {
		go serveMetrics(cfg.Metrics.Listen, log)
	}

	schedule(ctx, *runAt, log, runOnce)
}

// validateStartup checks every external dependency before the first run.
// Only the ledger is load-bearing enough to abort on; a media server or the
// chat platform being down costs one server's iteration, not the process.
// Ledger failures come back as fatal configuration errors.
func validateStartup(ctx context.Context, cfg *config.Config, db *database.MySQLClient, log logger.Logger) error {
	if err := db.Ping(ctx); err != nil {
		return apperrors.NewFatalConfigError(fmt.Sprintf("ledger unreachable: %v", err))
	}
	if err := db.ValidateSchema(ctx, cfg.Database.Database, "users"); err != nil {
		return apperrors.NewFatalConfigError(fmt.Sprintf("ledger schema: %v", err))
	}

	retryPolicy := cfg.Reconcile.RetryPolicy()
	for key, srv := range cfg.Servers {
		client := plex.NewClient(srv.BaseURL, srv.Token, cfg.Reconcile.HTTPTimeoutDuration(), log,
			plex.WithRetryPolicy(retryPolicy))
		if err := client.Validate(ctx); err != nil {
			log.WithError(err).Warn("media server unreachable at startup", map[string]interface{}{
				"server": key,
			})
		}
	}

	if cfg.Discord.Token != "" {
		session := discord.NewSession(cfg.Discord, log, discord.WithRetryPolicy(retryPolicy))
		if err := session.Validate(ctx); err != nil {
			log.WithError(err).Warn("chat platform unreachable at startup", nil)
		}
	}
	return nil
}

// parseRunAt validates an HH:MM wall-clock value.
func parseRunAt(at string) (hour, minute int, err error) {
	if _, err := fmt.Sscanf(at, "%d:%d", &hour, &minute); err != nil {
		return 0, 0, fmt.Errorf("expected HH:MM, got %q", at)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("time %q out of range", at)
	}
	return hour, minute, nil
}

// schedule runs fn daily at the given wall-clock time until ctx is done.
func schedule(ctx context.Context, at string, log logger.Logger, fn func(context.Context)) {
	hour, minute, err := parseRunAt(at)
	if err != nil {
		log.WithError(apperrors.NewFatalConfigError(err.Error())).
			Error("invalid --at value", map[string]interface{}{"at": at})
		os.Exit(1)
	}

	for {
		next := nextRunTime(time.Now(), hour, minute)
		log.Info("next reconciliation scheduled", map[string]interface{}{
			"at": next.Format(time.RFC3339),
		})

		select {
		case <-ctx.Done():
			log.Info("shutting down", nil)
			return
		case <-time.After(time.Until(next)):
			fn(ctx)
		}
	}
}

func nextRunTime(now time.Time, hour, minute int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

func serveMetrics(listen string, log logger.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	log.Info("metrics endpoint listening", map[string]interface{}{"addr": listen})
	if err := http.ListenAndServe(listen, mux); err != nil {
		log.WithError(err).Error("metrics endpoint failed", nil)
	}
}
