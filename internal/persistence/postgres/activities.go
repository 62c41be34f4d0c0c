package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/btmullin/supertl2/internal/domain"
)

const activityColumns = `id, start_time_utc, end_time_utc, elapsed_time_s, moving_time_s,
	distance_m, name, sport, source_quality, tz_name, utc_offset_minutes, tz_source,
	created_at_utc, updated_at_utc`

func scanActivity(row pgx.Row) (*domain.Activity, error) {
	var (
		a           domain.Activity
		startText   string
		endText     *string
		createdText string
		updatedText string
		name        *string
		sport       *string
		tzName      *string
		tzSource    *string
	)
	if err := row.Scan(&a.ID, &startText, &endText, &a.ElapsedTimeS, &a.MovingTimeS,
		&a.DistanceM, &name, &sport, &a.SourceQuality, &tzName, &a.UTCOffsetMin, &tzSource,
		&createdText, &updatedText); err != nil {
		return nil, err
	}

	start, err := parseUTCText(startText)
	if err != nil {
		return nil, err
	}
	a.StartTimeUTC = start
	if a.EndTimeUTC, err = parseUTCTextPtr(endText); err != nil {
		return nil, err
	}
	if a.CreatedAtUTC, err = parseUTCText(createdText); err != nil {
		return nil, err
	}
	if a.UpdatedAtUTC, err = parseUTCText(updatedText); err != nil {
		return nil, err
	}
	if name != nil {
		a.Name = *name
	}
	if sport != nil {
		a.Sport = *sport
	}
	if tzName != nil {
		a.TZName = *tzName
	}
	if tzSource != nil {
		a.TZSource = domain.TZSource(*tzSource)
	}
	return &a, nil
}

// Get retrieves one canonical activity by id, nil when absent.
func (r *Repository) Get(ctx context.Context, id int64) (*domain.Activity, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+activityColumns+` FROM activity WHERE id=$1`, id)
	activity, err := scanActivity(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return activity, nil
}

// GetActivity aliases Get for the reconcile store surface.
func (r *Repository) GetActivity(ctx context.Context, id int64) (*domain.Activity, error) {
	return r.Get(ctx, id)
}

const sourceColumns = `id, activity_id, source, source_activity_id, start_time_utc,
	start_time_local, elapsed_time_s, distance_m, sport, payload_hash, ingested_at_utc,
	match_confidence`

func scanSource(row pgx.Row) (*domain.ActivitySource, error) {
	var (
		src          domain.ActivitySource
		startText    *string
		startLocal   *string
		sport        *string
		payloadHash  *string
		ingestedText string
		confidence   *string
	)
	if err := row.Scan(&src.ID, &src.ActivityID, &src.Source, &src.SourceActivityID,
		&startText, &startLocal, &src.ElapsedTimeS, &src.DistanceM, &sport, &payloadHash,
		&ingestedText, &confidence); err != nil {
		return nil, err
	}
	var err error
	if src.StartTimeUTC, err = parseUTCTextPtr(startText); err != nil {
		return nil, err
	}
	if src.IngestedAtUTC, err = parseUTCText(ingestedText); err != nil {
		return nil, err
	}
	if startLocal != nil {
		src.StartTimeLocal = *startLocal
	}
	if sport != nil {
		src.Sport = *sport
	}
	if payloadHash != nil {
		src.PayloadHash = *payloadHash
	}
	if confidence != nil {
		src.MatchConfidence = *confidence
	}
	return &src, nil
}

// Sources returns all source links of one canonical activity.
func (r *Repository) Sources(ctx context.Context, activityID int64) ([]domain.ActivitySource, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+sourceColumns+` FROM activity_source WHERE activity_id=$1 ORDER BY source`, activityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sources []domain.ActivitySource
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		sources = append(sources, *src)
	}
	return sources, rows.Err()
}

// List pages through canonical activities ordered by start time, newest first.
func (r *Repository) List(ctx context.Context, cursor *domain.Cursor, limit int) ([]domain.Activity, *domain.Cursor, error) {
	query := `SELECT ` + activityColumns + ` FROM activity`
	args := []interface{}{limit}
	if cursor != nil {
		query += ` WHERE (start_time_utc, id) < ($2, $3)`
		args = append(args, utcText(cursor.StartTimeUTC), cursor.ID)
	}
	query += ` ORDER BY start_time_utc DESC, id DESC LIMIT $1`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	results := make([]domain.Activity, 0, limit)
	for rows.Next() {
		activity, err := scanActivity(rows)
		if err != nil {
			return nil, nil, err
		}
		results = append(results, *activity)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	var next *domain.Cursor
	if len(results) == limit {
		last := results[len(results)-1]
		next = &domain.Cursor{StartTimeUTC: last.StartTimeUTC, ID: last.ID}
	}
	return results, next, nil
}

// ListTrainingBetween returns training-flagged activities whose canonical
// start lies in [fromUTC, toUTC). Callers pass a UTC superset of the local
// window they care about and bucket by activity-local date afterwards.
func (r *Repository) ListTrainingBetween(ctx context.Context, fromUTC, toUTC time.Time) ([]domain.Activity, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+activityColumns+` FROM activity a
		 WHERE a.start_time_utc >= $1 AND a.start_time_utc < $2
		   AND EXISTS (
		     SELECT 1 FROM training_log_data t
		     WHERE t.canonical_activity_id = a.id AND t.is_training = 1
		   )
		 ORDER BY a.start_time_utc`,
		utcText(fromUTC), utcText(toUTC))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []domain.Activity
	for rows.Next() {
		activity, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, *activity)
	}
	return results, rows.Err()
}

// Merge folds dropID into keepID in one transaction: source links and
// annotation back-links move over, then the duplicate row is deleted.
// The parent's cascade does not fire because the links move first.
func (r *Repository) Merge(ctx context.Context, keepID, dropID int64) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx,
		`UPDATE activity_source SET activity_id=$1, match_confidence=$2 WHERE activity_id=$3`,
		keepID, domain.ConfidenceManual, dropID); err != nil {
		return err
	}
	if _, err = tx.Exec(ctx,
		`UPDATE training_log_data SET canonical_activity_id=$1 WHERE canonical_activity_id=$2`,
		keepID, dropID); err != nil {
		return err
	}
	if _, err = tx.Exec(ctx, `DELETE FROM activity WHERE id=$1`, dropID); err != nil {
		return err
	}
	if _, err = tx.Exec(ctx, `UPDATE activity SET updated_at_utc=$1 WHERE id=$2`,
		utcText(r.now()), keepID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
