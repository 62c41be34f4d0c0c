package domain

import "time"

// StravaStagingRow is one raw activity as ingested from the Strava clone
// table. Read-only input to reconciliation.
type StravaStagingRow struct {
	ActivityID    string
	Name          string
	StartDateTime string // local wall time, naive, as Strava exports it
	Timezone      string // e.g. "(GMT-06:00) America/Chicago", may be empty
	SportType     string
	DistanceM     *float64
	MovingTimeS   *int
	Description   string
	ElevationM    *float64
}

// SportTracksStagingRow is one raw activity as ingested from a SportTracks
// export. Start date and time are local strings with no zone information;
// the engine applies the configured zone-inference policy.
type SportTracksStagingRow struct {
	ActivityID    string
	StartDate     string // 'YYYY-MM-DD' or 'M/D/YY h:mm AM' style combo
	StartTime     string // 'HH:MM[:SS]', may be empty when StartDate carries both
	DistanceM     *float64
	DurationS     *float64
	AvgPaceSPerKM *float64
	ElevGainM     *float64
	AvgHeartrate  *float64
	AvgPowerW     *float64
	CaloriesKcal  *float64
	Category      string
	Notes         string
}

// Season is a named inclusive date range used for season summaries.
type Season struct {
	ID        int64
	Name      string
	StartDate time.Time // date precision, midnight UTC
	EndDate   time.Time
	IsActive  bool
}
