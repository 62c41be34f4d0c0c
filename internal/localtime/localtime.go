// Package localtime derives activity-local calendar dates and wall-clock
// times from canonical UTC instants. Every grouping operation in the
// application buckets by these activity-local dates, never by UTC dates
// and never by the viewer's zone.
package localtime

import (
	"fmt"
	"time"

	"github.com/btmullin/supertl2/internal/domain"
)

// Date is a zone-free calendar date.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf extracts the calendar date from t in t's own location.
func DateOf(t time.Time) Date {
	year, month, day := t.Date()
	return Date{Year: year, Month: month, Day: day}
}

// String renders the ISO form, e.g. "2025-01-14".
func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// Time returns midnight UTC of the date, for arithmetic and comparisons.
func (d Date) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// AddDays returns the date n days later (earlier for negative n).
func (d Date) AddDays(n int) Date {
	return DateOf(d.Time().AddDate(0, 0, n))
}

// Before reports whether d precedes other.
func (d Date) Before(other Date) bool {
	return d.Time().Before(other.Time())
}

// After reports whether d follows other.
func (d Date) After(other Date) bool {
	return d.Time().After(other.Time())
}

// Weekday returns the day of the week.
func (d Date) Weekday() time.Weekday {
	return d.Time().Weekday()
}

// Resolution is a resolved activity-local wall-clock moment.
// LowConfidence is set when the stored zone was missing or unloadable and
// a fallback had to be applied; callers surface it rather than hide it.
type Resolution struct {
	Local         time.Time
	ZoneName      string
	LowConfidence bool
}

// Date returns the local calendar date of the resolved moment.
func (r Resolution) Date() Date {
	return DateOf(r.Local)
}

// ResolveZone loads tzName, falling back to fallbackZone and finally UTC.
// The second return names the zone actually used; the third is true when
// the requested zone could not be honored.
func ResolveZone(tzName, fallbackZone string) (*time.Location, string, bool) {
	if tzName != "" {
		if loc, err := time.LoadLocation(tzName); err == nil {
			return loc, tzName, false
		}
	}
	if fallbackZone != "" {
		if loc, err := time.LoadLocation(fallbackZone); err == nil {
			return loc, fallbackZone, true
		}
	}
	return time.UTC, "UTC", true
}

// ActivityDateTime converts the activity's canonical UTC start into its
// own zone, resolving DST for that specific instant.
func ActivityDateTime(activity domain.Activity, fallbackZone string) Resolution {
	loc, name, low := ResolveZone(activity.TZName, fallbackZone)
	return Resolution{
		Local:         activity.StartTimeUTC.In(loc),
		ZoneName:      name,
		LowConfidence: low,
	}
}

// ActivityDate returns the activity-local calendar date plus the
// low-confidence flag.
func ActivityDate(activity domain.Activity, fallbackZone string) (Date, bool) {
	res := ActivityDateTime(activity, fallbackZone)
	return res.Date(), res.LowConfidence
}

// OffsetMinutes computes the signed UTC offset of tzName at the given
// instant, DST-aware. The offset is always derived, never trusted from a
// source verbatim.
func OffsetMinutes(tzName string, at time.Time) (int, error) {
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		return 0, fmt.Errorf("load zone %q: %w", tzName, domain.ErrUnresolvableTimezone)
	}
	_, offsetSeconds := at.In(loc).Zone()
	return offsetSeconds / 60, nil
}

// StartOfWeek returns the date of the week boundary at or before d.
func StartOfWeek(d Date, weekStart time.Weekday) Date {
	delta := (int(d.Weekday()) - int(weekStart) + 7) % 7
	return d.AddDays(-delta)
}

// WeekOffset returns the whole number of weeks between the weeks
// containing today and target (negative for past weeks).
func WeekOffset(target, today Date, weekStart time.Weekday) int {
	base := StartOfWeek(today, weekStart)
	tgt := StartOfWeek(target, weekStart)
	return int(tgt.Time().Sub(base.Time()).Hours()) / (24 * 7)
}

// WeekStarts enumerates the week-start dates covering [start, end]
// inclusive.
func WeekStarts(start, end Date, weekStart time.Weekday) []Date {
	first := StartOfWeek(start, weekStart)
	last := StartOfWeek(end, weekStart)
	var out []Date
	for cur := first; !cur.After(last); cur = cur.AddDays(7) {
		out = append(out, cur)
	}
	return out
}
