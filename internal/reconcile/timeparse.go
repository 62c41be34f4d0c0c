package reconcile

import (
	"fmt"
	"strings"
	"time"

	"github.com/btmullin/supertl2/internal/domain"
)

// Layouts accepted for Strava's naive local start times.
var stravaLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04",
}

// Layouts accepted for SportTracks exports, which show up in ISO,
// space-separated, US month/day with AM/PM, and date-only variants.
var sportTracksLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"1/2/2006 3:04:05 PM",
	"1/2/2006 3:04 PM",
	"1/2/06 3:04:05 PM",
	"1/2/06 3:04 PM",
	"2006-01-02",
	"1/2/2006",
	"1/2/06",
}

// parseLocalWallTime interprets a naive local timestamp in loc and returns
// the local ISO wall time (no zone designator) plus the UTC instant.
// A trailing 'Z' means the value was already UTC.
func parseLocalWallTime(raw string, loc *time.Location) (string, time.Time, error) {
	s := strings.TrimSpace(strings.ReplaceAll(raw, "/", "-"))
	if s == "" {
		return "", time.Time{}, domain.ErrUnresolvableTimestamp
	}

	if strings.HasSuffix(s, "Z") {
		if utc, err := time.Parse(time.RFC3339, s); err == nil {
			return utc.UTC().Format(localLayout), utc.UTC(), nil
		}
	}

	// Drop fractional seconds; source precision is whole seconds anyway.
	if dot := strings.Index(s, "."); dot > 0 {
		s = s[:dot]
	}

	for _, layout := range stravaLayouts {
		if local, err := time.ParseInLocation(layout, s, loc); err == nil {
			return local.Format(localLayout), local.UTC(), nil
		}
	}
	return "", time.Time{}, fmt.Errorf("unrecognized datetime %q: %w", raw, domain.ErrUnresolvableTimestamp)
}

// parseSportTracksDateTime combines the export's date and time columns
// and interprets the result in loc. Either column may carry the whole
// timestamp; date-only values resolve to local midnight.
func parseSportTracksDateTime(dateRaw, timeRaw string, loc *time.Location) (string, time.Time, error) {
	ds := strings.TrimSpace(dateRaw)
	ts := strings.TrimSpace(timeRaw)
	combo := ds
	if ds != "" && ts != "" {
		combo = ds + " " + ts
	}
	combo = strings.TrimSpace(combo)
	if combo == "" {
		return "", time.Time{}, domain.ErrUnresolvableTimestamp
	}

	if ds != "" && ts != "" {
		// Time column may omit seconds.
		extra := []string{"2006-01-02 15:04:05", "2006-01-02 15:04"}
		for _, layout := range extra {
			if local, err := time.ParseInLocation(layout, combo, loc); err == nil {
				return local.Format(localLayout), local.UTC(), nil
			}
		}
	}

	for _, layout := range sportTracksLayouts {
		if local, err := time.ParseInLocation(layout, combo, loc); err == nil {
			return local.Format(localLayout), local.UTC(), nil
		}
	}
	return "", time.Time{}, fmt.Errorf("unrecognized datetime %q: %w", combo, domain.ErrUnresolvableTimestamp)
}
