package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/btmullin/supertl2/internal/domain"
)

// LookupRepository persists the controlled-vocabulary tables.
type LookupRepository struct {
	pool *pgxpool.Pool
}

// NewLookupRepository constructs a LookupRepository.
func NewLookupRepository(pool *pgxpool.Pool) *LookupRepository {
	return &LookupRepository{pool: pool}
}

// ListWorkoutTypes returns all workout types ordered by name.
func (r *LookupRepository) ListWorkoutTypes(ctx context.Context) ([]domain.WorkoutType, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, COALESCE(description, '') FROM workout_type ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var types []domain.WorkoutType
	for rows.Next() {
		var wt domain.WorkoutType
		if err := rows.Scan(&wt.ID, &wt.Name, &wt.Description); err != nil {
			return nil, err
		}
		types = append(types, wt)
	}
	return types, rows.Err()
}

// ListCategories returns the category tree as a flat list.
func (r *LookupRepository) ListCategories(ctx context.Context) ([]domain.Category, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, parent_id, name FROM category ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var categories []domain.Category
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.ParentID, &c.Name); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

// CreateCategory inserts a category node and returns its id. Cycle
// validation happens in the domain service before this is called.
func (r *LookupRepository) CreateCategory(ctx context.Context, category domain.Category) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO category (parent_id, name) VALUES ($1, $2) RETURNING id`,
		category.ParentID, category.Name).Scan(&id)
	return id, err
}

const dateLayout = "2006-01-02"

// ListSeasons returns all seasons, most recent first.
func (r *LookupRepository) ListSeasons(ctx context.Context) ([]domain.Season, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, start_date, end_date, is_active FROM season ORDER BY start_date DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var seasons []domain.Season
	for rows.Next() {
		var (
			s          domain.Season
			start, end string
		)
		if err := rows.Scan(&s.ID, &s.Name, &start, &end, &s.IsActive); err != nil {
			return nil, err
		}
		if s.StartDate, err = time.Parse(dateLayout, start); err != nil {
			return nil, err
		}
		if s.EndDate, err = time.Parse(dateLayout, end); err != nil {
			return nil, err
		}
		seasons = append(seasons, s)
	}
	return seasons, rows.Err()
}

// CreateSeason inserts a season definition and returns its id.
func (r *LookupRepository) CreateSeason(ctx context.Context, season domain.Season) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO season (name, start_date, end_date, is_active) VALUES ($1,$2,$3,$4) RETURNING id`,
		season.Name,
		season.StartDate.Format(dateLayout),
		season.EndDate.Format(dateLayout),
		season.IsActive).Scan(&id)
	return id, err
}
