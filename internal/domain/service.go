package domain

import (
	"context"
	"errors"
	"time"
)

// Cursor models the pagination token for activity listings.
type Cursor struct {
	StartTimeUTC time.Time
	ID           int64
}

// ActivityRepository captures persistence operations on canonical
// activities and their source links.
type ActivityRepository interface {
	Get(ctx context.Context, id int64) (*Activity, error)
	Sources(ctx context.Context, activityID int64) ([]ActivitySource, error)
	List(ctx context.Context, cursor *Cursor, limit int) ([]Activity, *Cursor, error)
	// ListTrainingBetween returns activities whose canonical start lies in
	// [fromUTC, toUTC) and that are linked to a training-flagged annotation.
	ListTrainingBetween(ctx context.Context, fromUTC, toUTC time.Time) ([]Activity, error)
	// Merge reassigns drop's source links and annotation back-links to
	// keep, then deletes drop, in one transaction.
	Merge(ctx context.Context, keepID, dropID int64) error
}

// AnnotationRepository captures persistence operations on training-log
// annotations.
type AnnotationRepository interface {
	Get(ctx context.Context, sourceActivityID string) (*Annotation, error)
	Upsert(ctx context.Context, annotation Annotation) error
	// RepairLinks fills canonical back-links on annotations that resolve
	// uniquely through activity_source, returning the number of rows
	// linked. Idempotent: at the fixed point it writes nothing.
	RepairLinks(ctx context.Context) (int64, error)
}

// LookupRepository covers the small controlled-vocabulary tables.
type LookupRepository interface {
	ListWorkoutTypes(ctx context.Context) ([]WorkoutType, error)
	ListCategories(ctx context.Context) ([]Category, error)
	CreateCategory(ctx context.Context, category Category) (int64, error)
	ListSeasons(ctx context.Context) ([]Season, error)
	CreateSeason(ctx context.Context, season Season) (int64, error)
}

// ErrInvalidMerge rejects merges of an activity into itself.
var ErrInvalidMerge = errors.New("merge requires two distinct activity ids")

// Service orchestrates read/annotate/edit workflows over the canonical store.
type Service struct {
	activities  ActivityRepository
	annotations AnnotationRepository
	lookups     LookupRepository
}

// NewService constructs a Service.
func NewService(activities ActivityRepository, annotations AnnotationRepository, lookups LookupRepository) *Service {
	return &Service{activities: activities, annotations: annotations, lookups: lookups}
}

// GetActivity fetches one canonical activity with its source links.
func (s *Service) GetActivity(ctx context.Context, id int64) (*Activity, []ActivitySource, error) {
	activity, err := s.activities.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if activity == nil {
		return nil, nil, ErrActivityNotFound
	}
	sources, err := s.activities.Sources(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return activity, sources, nil
}

// ListActivities pages through canonical activities, newest first.
func (s *Service) ListActivities(ctx context.Context, cursor *Cursor, limit int) ([]Activity, *Cursor, error) {
	return s.activities.List(ctx, cursor, limit)
}

// ListTrainingBetween exposes the aggregation input window.
func (s *Service) ListTrainingBetween(ctx context.Context, fromUTC, toUTC time.Time) ([]Activity, error) {
	return s.activities.ListTrainingBetween(ctx, fromUTC, toUTC)
}

// SourcesFor returns the source links of one activity.
func (s *Service) SourcesFor(ctx context.Context, activityID int64) ([]ActivitySource, error) {
	return s.activities.Sources(ctx, activityID)
}

// MergeActivities folds dropID into keepID: source links and annotation
// back-links move over, then the duplicate canonical row is deleted.
// Used for manual resolution of ambiguous or duplicated reconciliations.
func (s *Service) MergeActivities(ctx context.Context, keepID, dropID int64) error {
	if keepID == dropID {
		return ErrInvalidMerge
	}
	keep, err := s.activities.Get(ctx, keepID)
	if err != nil {
		return err
	}
	drop, err := s.activities.Get(ctx, dropID)
	if err != nil {
		return err
	}
	if keep == nil || drop == nil {
		return ErrActivityNotFound
	}
	return s.activities.Merge(ctx, keepID, dropID)
}

// GetAnnotation returns the annotation for a source id, or an empty one
// with the unknown training flag when none is stored yet.
func (s *Service) GetAnnotation(ctx context.Context, sourceActivityID string) (*Annotation, error) {
	annotation, err := s.annotations.Get(ctx, sourceActivityID)
	if err != nil {
		return nil, err
	}
	if annotation == nil {
		return &Annotation{SourceActivityID: sourceActivityID, Training: TrainingUnknown}, nil
	}
	return annotation, nil
}

// SaveAnnotation validates and persists an annotation.
func (s *Service) SaveAnnotation(ctx context.Context, annotation Annotation) error {
	if annotation.SourceActivityID == "" {
		return ErrMissingSourceID
	}
	if !annotation.Training.Valid() {
		annotation.Training = TrainingUnknown
	}
	return s.annotations.Upsert(ctx, annotation)
}

// ListWorkoutTypes returns the workout-type vocabulary.
func (s *Service) ListWorkoutTypes(ctx context.Context) ([]WorkoutType, error) {
	return s.lookups.ListWorkoutTypes(ctx)
}

// ListCategories returns the full category tree as a flat list.
func (s *Service) ListCategories(ctx context.Context) ([]Category, error) {
	return s.lookups.ListCategories(ctx)
}

// CreateCategory adds a category node after checking the parent chain for
// cycles.
func (s *Service) CreateCategory(ctx context.Context, category Category) (int64, error) {
	all, err := s.lookups.ListCategories(ctx)
	if err != nil {
		return 0, err
	}
	if err := ValidateCategoryParent(category.ID, category.ParentID, all); err != nil {
		return 0, err
	}
	return s.lookups.CreateCategory(ctx, category)
}

// ListSeasons returns all defined seasons.
func (s *Service) ListSeasons(ctx context.Context) ([]Season, error) {
	return s.lookups.ListSeasons(ctx)
}

// CreateSeason persists a season definition.
func (s *Service) CreateSeason(ctx context.Context, season Season) (int64, error) {
	return s.lookups.CreateSeason(ctx, season)
}
