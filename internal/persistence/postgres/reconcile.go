package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/btmullin/supertl2/internal/domain"
)

// FindSource returns the link for the unique (source, source_activity_id)
// pair, nil when the pair has never been reconciled.
func (r *Repository) FindSource(ctx context.Context, source domain.Source, sourceActivityID string) (*domain.ActivitySource, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+sourceColumns+` FROM activity_source WHERE source=$1 AND source_activity_id=$2`,
		source, sourceActivityID)
	src, err := scanSource(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return src, nil
}

// RefreshSource updates snapshot fields and the payload hash on an
// existing link. The owning activity row is left untouched.
func (r *Repository) RefreshSource(ctx context.Context, src domain.ActivitySource) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE activity_source
		 SET start_time_utc=$1, start_time_local=$2, elapsed_time_s=$3, distance_m=$4,
		     sport=$5, payload_hash=$6, ingested_at_utc=$7
		 WHERE source=$8 AND source_activity_id=$9`,
		utcTextPtr(src.StartTimeUTC),
		nullIfEmpty(src.StartTimeLocal),
		src.ElapsedTimeS,
		src.DistanceM,
		nullIfEmpty(src.Sport),
		nullIfEmpty(src.PayloadHash),
		utcText(src.IngestedAtUTC),
		src.Source,
		src.SourceActivityID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("refresh source %s/%s: no existing link", src.Source, src.SourceActivityID)
	}
	return nil
}

// FindCandidates returns canonical activities whose start lies within
// tolerance of aroundUTC, closest first. The window bounds are computed in
// Go and compared as text; fixed-width ISO-8601 UTC strings order the same
// way the instants do.
func (r *Repository) FindCandidates(ctx context.Context, aroundUTC time.Time, tolerance time.Duration) ([]domain.Activity, error) {
	lower := utcText(aroundUTC.Add(-tolerance))
	upper := utcText(aroundUTC.Add(tolerance))

	rows, err := r.pool.Query(ctx,
		`SELECT `+activityColumns+` FROM activity
		 WHERE start_time_utc BETWEEN $1 AND $2
		 ORDER BY ABS(EXTRACT(EPOCH FROM (start_time_utc::timestamptz - $3::timestamptz)))`,
		lower, upper, utcText(aroundUTC))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var candidates []domain.Activity
	for rows.Next() {
		activity, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, *activity)
	}
	return candidates, rows.Err()
}

const insertSourceStmt = `INSERT INTO activity_source (
		activity_id, source, source_activity_id, start_time_utc, start_time_local,
		elapsed_time_s, distance_m, sport, payload_hash, ingested_at_utc, match_confidence)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`

// CreateWithSource inserts a canonical activity and its source link in one
// transaction. A collision on the unique pair rolls the whole unit back
// and surfaces as domain.ErrDuplicateSourceRecord so the caller can take
// the update path instead.
func (r *Repository) CreateWithSource(ctx context.Context, activity domain.Activity, src domain.ActivitySource) (int64, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var activityID int64
	err = tx.QueryRow(ctx,
		`INSERT INTO activity (
			start_time_utc, end_time_utc, elapsed_time_s, moving_time_s, distance_m,
			name, sport, source_quality, tz_name, utc_offset_minutes, tz_source,
			created_at_utc, updated_at_utc)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		 RETURNING id`,
		utcText(activity.StartTimeUTC),
		utcTextPtr(activity.EndTimeUTC),
		activity.ElapsedTimeS,
		activity.MovingTimeS,
		activity.DistanceM,
		nullIfEmpty(activity.Name),
		nullIfEmpty(activity.Sport),
		activity.SourceQuality,
		nullIfEmpty(activity.TZName),
		activity.UTCOffsetMin,
		nullIfEmpty(string(activity.TZSource)),
		utcText(activity.CreatedAtUTC),
		utcText(activity.UpdatedAtUTC),
	).Scan(&activityID)
	if err != nil {
		return 0, err
	}

	_, err = tx.Exec(ctx, insertSourceStmt,
		activityID, src.Source, src.SourceActivityID, utcTextPtr(src.StartTimeUTC),
		nullIfEmpty(src.StartTimeLocal), src.ElapsedTimeS, src.DistanceM,
		nullIfEmpty(src.Sport), nullIfEmpty(src.PayloadHash),
		utcText(src.IngestedAtUTC), nullIfEmpty(src.MatchConfidence))
	if err != nil {
		if isUniqueViolation(err) {
			err = fmt.Errorf("%w: %s/%s", domain.ErrDuplicateSourceRecord, src.Source, src.SourceActivityID)
		}
		return 0, err
	}

	if err = tx.Commit(ctx); err != nil {
		return 0, err
	}
	return activityID, nil
}

// LinkSource attaches a source link to an existing canonical activity and
// touches the parent's mutation timestamp, in one transaction.
func (r *Repository) LinkSource(ctx context.Context, activityID int64, src domain.ActivitySource) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	_, err = tx.Exec(ctx, insertSourceStmt,
		activityID, src.Source, src.SourceActivityID, utcTextPtr(src.StartTimeUTC),
		nullIfEmpty(src.StartTimeLocal), src.ElapsedTimeS, src.DistanceM,
		nullIfEmpty(src.Sport), nullIfEmpty(src.PayloadHash),
		utcText(src.IngestedAtUTC), nullIfEmpty(src.MatchConfidence))
	if err != nil {
		if isUniqueViolation(err) {
			err = fmt.Errorf("%w: %s/%s", domain.ErrDuplicateSourceRecord, src.Source, src.SourceActivityID)
		}
		return err
	}

	if _, err = tx.Exec(ctx, `UPDATE activity SET updated_at_utc=$1 WHERE id=$2`,
		utcText(src.IngestedAtUTC), activityID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// SetTimezone writes the derived timezone triple and refreshes
// updated_at_utc, keeping the audit trail accurate.
func (r *Repository) SetTimezone(ctx context.Context, activityID int64, tzName string, offsetMinutes int, tzSource domain.TZSource) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE activity SET tz_name=$1, utc_offset_minutes=$2, tz_source=$3, updated_at_utc=$4 WHERE id=$5`,
		tzName, offsetMinutes, string(tzSource), utcText(r.now()), activityID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrActivityNotFound
	}
	return nil
}
