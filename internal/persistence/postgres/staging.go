package postgres

import (
	"context"

	"github.com/btmullin/supertl2/internal/domain"
)

// Staging tables are read-only inputs to reconciliation; the core never
// mutates them.

// ListStravaStaging returns every row of the Strava clone table in start
// order. Reconciliation is idempotent, so re-reading already-linked rows
// is harmless.
func (r *Repository) ListStravaStaging(ctx context.Context) ([]domain.StravaStagingRow, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT activity_id, COALESCE(name, ''), COALESCE(start_date_time, ''),
		        COALESCE(timezone, ''), COALESCE(sport_type, ''), distance_m,
		        moving_time_s, COALESCE(description, ''), elevation_m
		 FROM strava_activity ORDER BY start_date_time`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var staged []domain.StravaStagingRow
	for rows.Next() {
		var row domain.StravaStagingRow
		if err := rows.Scan(&row.ActivityID, &row.Name, &row.StartDateTime, &row.Timezone,
			&row.SportType, &row.DistanceM, &row.MovingTimeS, &row.Description,
			&row.ElevationM); err != nil {
			return nil, err
		}
		staged = append(staged, row)
	}
	return staged, rows.Err()
}

// ListSportTracksStaging returns every row of the SportTracks import table.
func (r *Repository) ListSportTracksStaging(ctx context.Context) ([]domain.SportTracksStagingRow, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT activity_id, COALESCE(start_date, ''), COALESCE(start_time, ''),
		        distance_m, duration_s, avg_pace_s_per_km, elev_gain_m,
		        avg_heartrate_bpm, avg_power_w, calories_kcal,
		        COALESCE(category, ''), COALESCE(notes, '')
		 FROM sporttracks_activity ORDER BY start_date, start_time`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var staged []domain.SportTracksStagingRow
	for rows.Next() {
		var row domain.SportTracksStagingRow
		if err := rows.Scan(&row.ActivityID, &row.StartDate, &row.StartTime,
			&row.DistanceM, &row.DurationS, &row.AvgPaceSPerKM, &row.ElevGainM,
			&row.AvgHeartrate, &row.AvgPowerW, &row.CaloriesKcal,
			&row.Category, &row.Notes); err != nil {
			return nil, err
		}
		staged = append(staged, row)
	}
	return staged, rows.Err()
}
