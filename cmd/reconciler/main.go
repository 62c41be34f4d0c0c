// Command reconciler runs one import pass: it drains both staging tables
// through the reconciliation engine, runs a single annotation link-repair
// pass, and exits. Suitable for cron.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/btmullin/supertl2/internal/config"
	persistence "github.com/btmullin/supertl2/internal/persistence/postgres"
	"github.com/btmullin/supertl2/internal/reconcile"
	"github.com/btmullin/supertl2/internal/repair"
)

func main() {
	cfg := config.Load()

	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to postgres")
	}
	defer pool.Close()

	repo := persistence.NewRepository(pool)
	annotations := persistence.NewAnnotationRepository(pool)

	engine := reconcile.NewEngine(repo, reconcile.Config{
		Tolerance:       cfg.MatchTolerance,
		MetricTolerance: cfg.MetricTolerance,
		DefaultZone:     cfg.DefaultTimezone,
	}, log)

	start := time.Now()

	stravaRows, err := repo.ListStravaStaging(ctx)
	if err != nil {
		log.WithError(err).Fatal("list strava staging")
	}
	stravaSummary, err := engine.ReconcileStrava(ctx, stravaRows)
	if err != nil {
		log.WithError(err).Fatal("reconcile strava")
	}
	logSummary(log, stravaSummary)

	stRows, err := repo.ListSportTracksStaging(ctx)
	if err != nil {
		log.WithError(err).Fatal("list sporttracks staging")
	}
	stSummary, err := engine.ReconcileSportTracks(ctx, stRows)
	if err != nil {
		log.WithError(err).Fatal("reconcile sporttracks")
	}
	logSummary(log, stSummary)

	repairer := repair.NewRepairer(annotations, 0, log)
	linked, err := repairer.RunOnce(ctx)
	if err != nil {
		log.WithError(err).Fatal("repair annotation links")
	}

	log.WithFields(logrus.Fields{
		"annotations_linked": linked,
		"duration_ms":        time.Since(start).Milliseconds(),
	}).Info("import pass complete")

	if stravaSummary.Failed > 0 || stSummary.Failed > 0 {
		os.Exit(1)
	}
}

func logSummary(log *logrus.Logger, s reconcile.Summary) {
	log.WithFields(logrus.Fields{
		"batch_id":          s.BatchID,
		"source":            s.Source,
		"processed":         s.Processed,
		"created":           s.Created,
		"linked":            s.Linked,
		"refreshed":         s.Refreshed,
		"unchanged":         s.Unchanged,
		"skipped_timestamp": s.SkippedTimestamp,
		"ambiguous":         s.Ambiguous,
		"failed":            s.Failed,
	}).Info("reconciliation batch finished")
}
