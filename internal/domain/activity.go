// Package domain defines the canonical training-log entities and the
// business rules that keep them consistent.
package domain

import (
	"strings"
	"time"
)

// Source identifies an external system that records workout data.
type Source string

const (
	SourceStrava      Source = "strava"
	SourceSportTracks Source = "sporttracks"
)

// KnownSources lists every source the reconciliation engine accepts.
var KnownSources = []Source{SourceStrava, SourceSportTracks}

// Valid reports whether s is one of the known sources.
func (s Source) Valid() bool {
	for _, known := range KnownSources {
		if s == known {
			return true
		}
	}
	return false
}

// TZSource records where an activity's timezone name came from, ordered
// here from most to least trustworthy.
type TZSource string

const (
	TZSourceStrava   TZSource = "strava"
	TZSourceGPS      TZSource = "gps"
	TZSourceManual   TZSource = "manual"
	TZSourceFallback TZSource = "fallback"
)

// Activity is the single canonical record for one real-world workout.
// StartTimeUTC is the only authoritative time reference; local wall-clock
// time is always derived from it plus TZName, never stored.
type Activity struct {
	ID            int64
	StartTimeUTC  time.Time
	EndTimeUTC    *time.Time
	ElapsedTimeS  *int
	MovingTimeS   *int
	DistanceM     *float64
	Name          string
	Sport         string
	SourceQuality int
	TZName        string
	UTCOffsetMin  *int
	TZSource      TZSource
	CreatedAtUTC  time.Time
	UpdatedAtUTC  time.Time
}

// NewActivity seeds a canonical activity. The start time is mandatory;
// callers with no usable start time must not create a canonical record.
func NewActivity(startUTC time.Time, now time.Time) (*Activity, error) {
	if startUTC.IsZero() {
		return nil, ErrUnresolvableTimestamp
	}
	now = now.UTC()
	return &Activity{
		StartTimeUTC: startUTC.UTC(),
		CreatedAtUTC: now,
		UpdatedAtUTC: now,
	}, nil
}

// Touch refreshes the mutation timestamp. Every field mutation, including
// timezone derivation, goes through this so audit trails stay accurate.
func (a *Activity) Touch(now time.Time) {
	a.UpdatedAtUTC = now.UTC()
}

// ActivitySource links one source-native record to its canonical activity.
// The pair (Source, SourceActivityID) is globally unique: a source record
// maps to at most one canonical activity, ever.
type ActivitySource struct {
	ID               int64
	ActivityID       int64
	Source           Source
	SourceActivityID string
	StartTimeUTC     *time.Time
	StartTimeLocal   string
	ElapsedTimeS     *int
	DistanceM        *float64
	Sport            string
	PayloadHash      string
	IngestedAtUTC    time.Time
	MatchConfidence  string
}

// Match confidence labels recorded on ActivitySource rows.
const (
	ConfidenceExact      = "exact"       // new canonical seeded from this row
	ConfidenceTimeMetric = "time+metric" // time window plus distance/duration agreement
	ConfidenceTime       = "time"        // time window only
	ConfidenceManual     = "manual"      // operator-resolved link
)

// NewActivitySource validates and builds a source link.
func NewActivitySource(source Source, sourceActivityID string, now time.Time) (*ActivitySource, error) {
	if !source.Valid() {
		return nil, ErrUnknownSource
	}
	sourceActivityID = strings.TrimSpace(sourceActivityID)
	if sourceActivityID == "" {
		return nil, ErrMissingSourceID
	}
	return &ActivitySource{
		Source:           source,
		SourceActivityID: sourceActivityID,
		IngestedAtUTC:    now.UTC(),
	}, nil
}
