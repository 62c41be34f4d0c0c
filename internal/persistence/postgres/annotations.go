package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/btmullin/supertl2/internal/domain"
)

// AnnotationRepository persists training-log annotations keyed by the
// source-native activity id.
type AnnotationRepository struct {
	pool *pgxpool.Pool
}

// NewAnnotationRepository constructs an AnnotationRepository.
func NewAnnotationRepository(pool *pgxpool.Pool) *AnnotationRepository {
	return &AnnotationRepository{pool: pool}
}

// Get returns the stored annotation for a source id, nil when absent.
func (r *AnnotationRepository) Get(ctx context.Context, sourceActivityID string) (*domain.Annotation, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT source_activity_id, workout_type_id, category_id, canonical_activity_id,
		        notes, tags, is_training
		 FROM training_log_data WHERE source_activity_id=$1`, sourceActivityID)

	var (
		annotation domain.Annotation
		notes      *string
		tags       *string
		training   int
	)
	if err := row.Scan(&annotation.SourceActivityID, &annotation.WorkoutTypeID,
		&annotation.CategoryID, &annotation.CanonicalActivityID, &notes, &tags, &training); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if notes != nil {
		annotation.Notes = *notes
	}
	if tags != nil {
		annotation.Tags = domain.SplitTags(*tags)
	}
	annotation.Training = domain.TrainingFlag(training)
	return &annotation, nil
}

// Upsert creates or refreshes the annotation row. The canonical back-link
// is deliberately not written here; the repair pass owns it.
func (r *AnnotationRepository) Upsert(ctx context.Context, annotation domain.Annotation) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO training_log_data (source_activity_id, workout_type_id, category_id, notes, tags, is_training)
		 VALUES ($1,$2,$3,$4,$5,$6)
		 ON CONFLICT (source_activity_id) DO UPDATE SET
		   workout_type_id = excluded.workout_type_id,
		   category_id = excluded.category_id,
		   notes = excluded.notes,
		   tags = excluded.tags,
		   is_training = excluded.is_training`,
		annotation.SourceActivityID,
		annotation.WorkoutTypeID,
		annotation.CategoryID,
		nullIfEmpty(annotation.Notes),
		nullIfEmpty(domain.JoinTags(annotation.Tags)),
		int(annotation.Training))
	return err
}

// RepairLinks back-links annotation rows whose source id resolves to
// exactly one activity_source row. Rows with no resolving source are left
// alone; once all resolvable links are set a pass touches nothing, so
// repeated runs converge to a fixed point.
func (r *AnnotationRepository) RepairLinks(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE training_log_data t
		 SET canonical_activity_id = s.activity_id
		 FROM activity_source s
		 WHERE t.canonical_activity_id IS NULL
		   AND s.source_activity_id = t.source_activity_id
		   AND (SELECT COUNT(*) FROM activity_source dup
		        WHERE dup.source_activity_id = t.source_activity_id) = 1`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
