package reconcile

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/btmullin/supertl2/internal/domain"
)

// SourceRecord is a staging row normalized to a common shape: UTC start
// resolved, local wall time kept for the source snapshot, timezone hint
// classified by provenance.
type SourceRecord struct {
	Source           domain.Source
	SourceActivityID string
	StartTimeUTC     time.Time
	StartTimeLocal   string
	ElapsedTimeS     *int
	DistanceM        *float64
	Sport            string
	Name             string
	TZName           string
	TZSource         domain.TZSource
	PayloadHash      string
}

const localLayout = "2006-01-02T15:04:05"

// normalizeStrava resolves a Strava staging row. Strava stores a naive
// local wall time plus a zone string like "(GMT-06:00) America/Chicago";
// the offset prefix is discarded and the IANA name wins. Rows without a
// usable zone fall back to the configured default.
func normalizeStrava(row domain.StravaStagingRow, fallbackZone string) (SourceRecord, error) {
	rec := SourceRecord{
		Source:           domain.SourceStrava,
		SourceActivityID: strings.TrimSpace(row.ActivityID),
		ElapsedTimeS:     row.MovingTimeS,
		DistanceM:        row.DistanceM,
		Sport:            strings.TrimSpace(row.SportType),
		Name:             strings.TrimSpace(row.Name),
	}
	if rec.SourceActivityID == "" {
		return rec, domain.ErrMissingSourceID
	}

	rec.TZName = extractIANAZone(row.Timezone)
	rec.TZSource = domain.TZSourceStrava
	if rec.TZName == "" {
		rec.TZName = fallbackZone
		rec.TZSource = domain.TZSourceFallback
	}

	loc, _, _ := loadZoneOrUTC(rec.TZName)
	local, utc, err := parseLocalWallTime(row.StartDateTime, loc)
	if err != nil {
		return rec, err
	}
	rec.StartTimeLocal = local
	rec.StartTimeUTC = utc
	rec.PayloadHash = payloadHash(rec)
	return rec, nil
}

// normalizeSportTracks resolves a SportTracks staging row. These exports
// carry a local date/time pair with no zone at all, so the configured
// default zone is applied and tz_source records the fallback provenance.
func normalizeSportTracks(row domain.SportTracksStagingRow, fallbackZone string) (SourceRecord, error) {
	rec := SourceRecord{
		Source:           domain.SourceSportTracks,
		SourceActivityID: strings.TrimSpace(row.ActivityID),
		DistanceM:        row.DistanceM,
		Sport:            strings.TrimSpace(row.Category),
		TZName:           fallbackZone,
		TZSource:         domain.TZSourceFallback,
	}
	if rec.SourceActivityID == "" {
		return rec, domain.ErrMissingSourceID
	}
	if row.DurationS != nil {
		seconds := int(*row.DurationS)
		rec.ElapsedTimeS = &seconds
	}

	rec.Name = strings.TrimSpace(row.Notes)
	if rec.Name == "" {
		rec.Name = rec.Sport
	}
	if rec.Name == "" {
		rec.Name = "SportTracks activity"
	}

	loc, _, _ := loadZoneOrUTC(fallbackZone)
	local, utc, err := parseSportTracksDateTime(row.StartDate, row.StartTime, loc)
	if err != nil {
		return rec, err
	}
	rec.StartTimeLocal = local
	rec.StartTimeUTC = utc
	rec.PayloadHash = payloadHash(rec)
	return rec, nil
}

// payloadHash fingerprints the snapshot fields so re-imports with
// unchanged content become no-ops.
func payloadHash(rec SourceRecord) string {
	basis := fmt.Sprintf("%s|%s|%s|%s|%s|%s|%s",
		rec.SourceActivityID,
		rec.StartTimeLocal,
		rec.StartTimeUTC.UTC().Format(time.RFC3339),
		rec.Sport,
		rec.Name,
		formatFloat(rec.DistanceM),
		formatInt(rec.ElapsedTimeS),
	)
	sum := sha256.Sum256([]byte(basis))
	return hex.EncodeToString(sum[:])
}

func formatFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%g", *v)
}

func formatInt(v *int) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%d", *v)
}

// extractIANAZone pulls the IANA name out of Strava's timezone string.
// Accepts "(GMT-06:00) America/Chicago" or a bare "America/Chicago";
// returns "" when no name can be recovered.
func extractIANAZone(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if idx := strings.Index(raw, ")"); idx >= 0 {
		tail := strings.TrimSpace(raw[idx+1:])
		if strings.Contains(tail, "/") {
			return tail
		}
		return ""
	}
	if strings.Contains(raw, "/") && !strings.Contains(raw, "GMT") {
		return raw
	}
	return ""
}

func loadZoneOrUTC(name string) (*time.Location, string, bool) {
	if name != "" {
		if loc, err := time.LoadLocation(name); err == nil {
			return loc, name, true
		}
	}
	return time.UTC, "UTC", false
}
