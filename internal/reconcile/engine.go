// Package reconcile maps raw per-source staging rows onto canonical
// activities, creating or linking as needed while preserving the
// (source, source_activity_id) uniqueness invariant.
package reconcile

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/btmullin/supertl2/internal/domain"
	"github.com/btmullin/supertl2/internal/localtime"
	"github.com/btmullin/supertl2/internal/observability"
)

// Store is the persistence surface the engine needs. Each write method is
// one scoped transaction: all-or-nothing for that unit of work.
type Store interface {
	// FindSource returns the existing link for the unique pair, nil when absent.
	FindSource(ctx context.Context, source domain.Source, sourceActivityID string) (*domain.ActivitySource, error)
	// RefreshSource updates snapshot fields and payload hash on an existing link.
	RefreshSource(ctx context.Context, src domain.ActivitySource) error
	// FindCandidates returns canonical activities whose start lies within
	// tolerance of aroundUTC, closest first.
	FindCandidates(ctx context.Context, aroundUTC time.Time, tolerance time.Duration) ([]domain.Activity, error)
	// CreateWithSource inserts a canonical activity and its source link in
	// one transaction, returning the new activity id. A unique-pair
	// collision surfaces as domain.ErrDuplicateSourceRecord.
	CreateWithSource(ctx context.Context, activity domain.Activity, src domain.ActivitySource) (int64, error)
	// LinkSource attaches a source link to an existing canonical activity.
	// A unique-pair collision surfaces as domain.ErrDuplicateSourceRecord.
	LinkSource(ctx context.Context, activityID int64, src domain.ActivitySource) error
	// GetActivity fetches one canonical activity, nil when absent.
	GetActivity(ctx context.Context, id int64) (*domain.Activity, error)
	// SetTimezone writes the timezone triple and refreshes updated_at_utc.
	SetTimezone(ctx context.Context, activityID int64, tzName string, offsetMinutes int, tzSource domain.TZSource) error
}

// Config carries the operational parameters the matching policy leaves open.
type Config struct {
	// Tolerance is the window around a staging row's UTC start inside
	// which an existing canonical activity is a link candidate.
	Tolerance time.Duration
	// MetricTolerance is the relative distance/duration agreement used to
	// narrow multiple time-window candidates (0.10 = within 10%).
	MetricTolerance float64
	// DefaultZone is the fallback IANA zone for rows without a zone hint.
	DefaultZone string
	// Now is injectable for tests; defaults to time.Now.
	Now func() time.Time
}

// Summary reports the outcome of one reconciliation batch. Row-local
// failures are counted here rather than aborting the batch.
type Summary struct {
	BatchID          string
	Source           domain.Source
	Processed        int
	Created          int
	Linked           int
	Refreshed        int
	Unchanged        int
	SkippedTimestamp int
	Ambiguous        int
	Failed           int
}

// Engine reconciles staging rows into the canonical store.
type Engine struct {
	store Store
	cfg   Config
	log   *logrus.Entry
}

// NewEngine constructs an Engine. Zero config fields get working defaults.
func NewEngine(store Store, cfg Config, log *logrus.Logger) *Engine {
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = 5 * time.Minute
	}
	if cfg.MetricTolerance <= 0 {
		cfg.MetricTolerance = 0.10
	}
	if cfg.DefaultZone == "" {
		cfg.DefaultZone = "UTC"
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Engine{store: store, cfg: cfg, log: log.WithField("component", "reconcile")}
}

// ReconcileStrava processes a batch of Strava staging rows.
func (e *Engine) ReconcileStrava(ctx context.Context, rows []domain.StravaStagingRow) (Summary, error) {
	summary := e.newSummary(domain.SourceStrava)
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		rec, err := normalizeStrava(row, e.cfg.DefaultZone)
		if err != nil {
			e.recordNormalizeFailure(&summary, rec.SourceActivityID, err)
			continue
		}
		if err := e.reconcileRecord(ctx, rec, &summary); err != nil {
			return summary, err
		}
	}
	e.finishBatch(summary)
	return summary, nil
}

// ReconcileSportTracks processes a batch of SportTracks staging rows.
func (e *Engine) ReconcileSportTracks(ctx context.Context, rows []domain.SportTracksStagingRow) (Summary, error) {
	summary := e.newSummary(domain.SourceSportTracks)
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		rec, err := normalizeSportTracks(row, e.cfg.DefaultZone)
		if err != nil {
			e.recordNormalizeFailure(&summary, rec.SourceActivityID, err)
			continue
		}
		if err := e.reconcileRecord(ctx, rec, &summary); err != nil {
			return summary, err
		}
	}
	e.finishBatch(summary)
	return summary, nil
}

func (e *Engine) newSummary(source domain.Source) Summary {
	return Summary{BatchID: uuid.NewString(), Source: source}
}

func (e *Engine) finishBatch(summary Summary) {
	observability.RecordBatchFinished(e.cfg.Now())
	e.log.WithFields(logrus.Fields{
		"batch_id":  summary.BatchID,
		"source":    summary.Source,
		"processed": summary.Processed,
		"created":   summary.Created,
		"linked":    summary.Linked,
		"refreshed": summary.Refreshed,
		"unchanged": summary.Unchanged,
		"skipped":   summary.SkippedTimestamp,
		"ambiguous": summary.Ambiguous,
		"failed":    summary.Failed,
	}).Info("reconcile batch finished")
}

func (e *Engine) recordNormalizeFailure(summary *Summary, sourceID string, err error) {
	summary.Processed++
	if errors.Is(err, domain.ErrUnresolvableTimestamp) {
		summary.SkippedTimestamp++
		observability.RecordRowOutcome(string(summary.Source), "skipped_timestamp")
		e.log.WithFields(logrus.Fields{
			"source":    summary.Source,
			"source_id": sourceID,
		}).WithError(err).Warn("skipping staging row without usable start time")
		return
	}
	summary.Failed++
	observability.RecordRowOutcome(string(summary.Source), "failed")
	e.log.WithFields(logrus.Fields{
		"source":    summary.Source,
		"source_id": sourceID,
	}).WithError(err).Warn("skipping malformed staging row")
}

// reconcileRecord handles one normalized row. Row-local conditions are
// absorbed into the summary; only storage-level failures propagate and
// abort the batch.
func (e *Engine) reconcileRecord(ctx context.Context, rec SourceRecord, summary *Summary) error {
	summary.Processed++

	existing, err := e.store.FindSource(ctx, rec.Source, rec.SourceActivityID)
	if err != nil {
		return err
	}
	if existing != nil {
		return e.refreshExisting(ctx, rec, *existing, summary)
	}

	activityID, outcome, err := e.linkOrCreate(ctx, rec)
	if err != nil {
		if errors.Is(err, domain.ErrAmbiguousReconciliation) {
			summary.Ambiguous++
			observability.RecordRowOutcome(string(rec.Source), "ambiguous")
			e.log.WithFields(logrus.Fields{
				"source":    rec.Source,
				"source_id": rec.SourceActivityID,
				"start_utc": rec.StartTimeUTC.Format(time.RFC3339),
			}).Warn("ambiguous reconciliation, row left unlinked for manual resolution")
			return nil
		}
		if errors.Is(err, domain.ErrDuplicateSourceRecord) {
			// Another writer linked this pair first; fall back to refresh.
			current, findErr := e.store.FindSource(ctx, rec.Source, rec.SourceActivityID)
			if findErr != nil {
				return findErr
			}
			if current != nil {
				return e.refreshExisting(ctx, rec, *current, summary)
			}
			return err
		}
		return err
	}

	switch outcome {
	case "created":
		summary.Created++
	case "linked":
		summary.Linked++
		if err := e.ensureTimezone(ctx, activityID, rec); err != nil {
			return err
		}
	}
	observability.RecordRowOutcome(string(rec.Source), outcome)
	return nil
}

// refreshExisting updates the snapshot on an already-linked source row.
// Unchanged payload hashes make the whole step a no-op, which is what
// keeps repeated imports idempotent.
func (e *Engine) refreshExisting(ctx context.Context, rec SourceRecord, existing domain.ActivitySource, summary *Summary) error {
	if existing.PayloadHash == rec.PayloadHash {
		summary.Unchanged++
		observability.RecordRowOutcome(string(rec.Source), "unchanged")
		return nil
	}
	updated := existing
	start := rec.StartTimeUTC
	updated.StartTimeUTC = &start
	updated.StartTimeLocal = rec.StartTimeLocal
	updated.ElapsedTimeS = rec.ElapsedTimeS
	updated.DistanceM = rec.DistanceM
	updated.Sport = rec.Sport
	updated.PayloadHash = rec.PayloadHash
	updated.IngestedAtUTC = e.cfg.Now().UTC()
	if err := e.store.RefreshSource(ctx, updated); err != nil {
		return err
	}
	summary.Refreshed++
	observability.RecordRowOutcome(string(rec.Source), "refreshed")
	return e.ensureTimezone(ctx, existing.ActivityID, rec)
}

// linkOrCreate applies the matching policy: link to the single eligible
// candidate, create when none exists, and refuse to guess between several.
func (e *Engine) linkOrCreate(ctx context.Context, rec SourceRecord) (int64, string, error) {
	candidates, err := e.store.FindCandidates(ctx, rec.StartTimeUTC, e.cfg.Tolerance)
	if err != nil {
		return 0, "", err
	}

	eligible := candidates[:0:0]
	for _, candidate := range candidates {
		if sportsCompatible(candidate.Sport, rec.Sport) {
			eligible = append(eligible, candidate)
		}
	}

	if len(eligible) > 1 {
		// A candidate starting at the exact same instant outranks the
		// rest of the window.
		exact := eligible[:0:0]
		for _, candidate := range eligible {
			if candidate.StartTimeUTC.Equal(rec.StartTimeUTC) {
				exact = append(exact, candidate)
			}
		}
		if len(exact) == 1 {
			eligible = exact
		} else {
			// Otherwise metric agreement is the only deterministic
			// narrowing applied before giving up.
			narrowed := eligible[:0:0]
			for _, candidate := range eligible {
				if e.metricsAgree(candidate, rec) {
					narrowed = append(narrowed, candidate)
				}
			}
			if len(narrowed) != 1 {
				return 0, "", domain.ErrAmbiguousReconciliation
			}
			eligible = narrowed
		}
	}

	now := e.cfg.Now().UTC()
	if len(eligible) == 0 {
		activity, err := e.seedActivity(rec, now)
		if err != nil {
			return 0, "", err
		}
		src, err := e.buildSource(rec, now, domain.ConfidenceExact)
		if err != nil {
			return 0, "", err
		}
		id, err := e.store.CreateWithSource(ctx, *activity, *src)
		if err != nil {
			return 0, "", err
		}
		return id, "created", nil
	}

	match := eligible[0]
	confidence := domain.ConfidenceTime
	if e.metricsAgree(match, rec) {
		confidence = domain.ConfidenceTimeMetric
	}
	src, err := e.buildSource(rec, now, confidence)
	if err != nil {
		return 0, "", err
	}
	if err := e.store.LinkSource(ctx, match.ID, *src); err != nil {
		return 0, "", err
	}
	return match.ID, "linked", nil
}

// metricsAgree checks relative distance or duration agreement between a
// canonical candidate and the incoming record.
func (e *Engine) metricsAgree(candidate domain.Activity, rec SourceRecord) bool {
	if relClose(candidate.DistanceM, rec.DistanceM, e.cfg.MetricTolerance) {
		return true
	}
	var candDur, recDur *float64
	if candidate.ElapsedTimeS != nil {
		v := float64(*candidate.ElapsedTimeS)
		candDur = &v
	}
	if rec.ElapsedTimeS != nil {
		v := float64(*rec.ElapsedTimeS)
		recDur = &v
	}
	return relClose(candDur, recDur, e.cfg.MetricTolerance)
}

func relClose(a, b *float64, tolerance float64) bool {
	if a == nil || b == nil || *a == 0 || *b == 0 {
		return false
	}
	return math.Abs(*a-*b)/math.Max(*a, *b) <= tolerance
}

// seedActivity builds a new canonical activity from a normalized record,
// including the derived timezone triple.
func (e *Engine) seedActivity(rec SourceRecord, now time.Time) (*domain.Activity, error) {
	activity, err := domain.NewActivity(rec.StartTimeUTC, now)
	if err != nil {
		return nil, err
	}
	activity.ElapsedTimeS = rec.ElapsedTimeS
	activity.MovingTimeS = rec.ElapsedTimeS
	activity.DistanceM = rec.DistanceM
	activity.Name = rec.Name
	activity.Sport = rec.Sport
	activity.TZName = rec.TZName
	activity.TZSource = rec.TZSource
	offset, err := localtime.OffsetMinutes(rec.TZName, rec.StartTimeUTC)
	if err == nil {
		activity.UTCOffsetMin = &offset
	}
	return activity, nil
}

func (e *Engine) buildSource(rec SourceRecord, now time.Time, confidence string) (*domain.ActivitySource, error) {
	src, err := domain.NewActivitySource(rec.Source, rec.SourceActivityID, now)
	if err != nil {
		return nil, err
	}
	start := rec.StartTimeUTC
	src.StartTimeUTC = &start
	src.StartTimeLocal = rec.StartTimeLocal
	src.ElapsedTimeS = rec.ElapsedTimeS
	src.DistanceM = rec.DistanceM
	src.Sport = rec.Sport
	src.PayloadHash = rec.PayloadHash
	src.MatchConfidence = confidence
	return src, nil
}

// tzRank orders timezone provenance from least to most trustworthy.
func tzRank(source domain.TZSource) int {
	switch source {
	case domain.TZSourceStrava:
		return 3
	case domain.TZSourceGPS:
		return 2
	case domain.TZSourceManual:
		return 1
	case domain.TZSourceFallback:
		return 0
	default:
		return -1
	}
}

// ensureTimezone refreshes the canonical timezone triple when the incoming
// record carries a richer zone hint than what is stored. The offset is
// always recomputed from (tz_name, start_time_utc) because it is
// DST-sensitive and derived, never authoritative.
func (e *Engine) ensureTimezone(ctx context.Context, activityID int64, rec SourceRecord) error {
	activity, err := e.store.GetActivity(ctx, activityID)
	if err != nil {
		return err
	}
	if activity == nil {
		return domain.ErrActivityNotFound
	}
	if activity.TZName != "" && tzRank(rec.TZSource) <= tzRank(activity.TZSource) {
		return nil
	}
	offset, err := localtime.OffsetMinutes(rec.TZName, activity.StartTimeUTC)
	if err != nil {
		e.log.WithFields(logrus.Fields{
			"activity_id": activityID,
			"tz_name":     rec.TZName,
		}).WithError(err).Warn("timezone unresolvable, keeping stored zone")
		return nil
	}
	return e.store.SetTimezone(ctx, activityID, rec.TZName, offset, rec.TZSource)
}
