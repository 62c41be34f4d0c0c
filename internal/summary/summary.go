// Package summary aggregates training-flagged activities into calendar and
// season views. All bucketing is by activity-local date: an athlete
// finishing at 23:30 local belongs to that local day even when the UTC day
// has already rolled over, and travel must not skew grouping toward the
// viewer's zone.
package summary

import (
	"context"
	"time"

	"github.com/btmullin/supertl2/internal/domain"
	"github.com/btmullin/supertl2/internal/localtime"
)

// activityLister is the read surface the aggregations need.
type activityLister interface {
	ListTrainingBetween(ctx context.Context, fromUTC, toUTC time.Time) ([]domain.Activity, error)
}

// DayTotals accumulates one activity-local calendar day.
type DayTotals struct {
	Day        localtime.Date
	Hours      float64
	DistanceM  float64
	Activities int
	// LowConfidence is set when any contributing activity had its local
	// date derived through the fallback zone.
	LowConfidence bool
}

// MonthOverview is one month tile of the year overview.
type MonthOverview struct {
	Month      time.Month
	Hours      float64
	DistanceM  float64
	Activities int
	Days       []DayTotals
}

// YearOverview is the year-overview calendar payload.
type YearOverview struct {
	Year         int
	Hours        float64
	DistanceM    float64
	Activities   int
	TrainingDays int
	Months       []MonthOverview
}

// windowSlackHours widens the UTC query window so activities whose local
// date falls inside the range are not missed at the edges. No inhabited
// zone is more than 14 hours from UTC.
const windowSlackHours = 15

func activityHours(a domain.Activity) float64 {
	seconds := 0
	if a.MovingTimeS != nil {
		seconds = *a.MovingTimeS
	} else if a.ElapsedTimeS != nil {
		seconds = *a.ElapsedTimeS
	}
	return float64(seconds) / 3600.0
}

func accumulate(byDay map[localtime.Date]*DayTotals, a domain.Activity, fallbackZone string) localtime.Date {
	day, low := localtime.ActivityDate(a, fallbackZone)
	totals, ok := byDay[day]
	if !ok {
		totals = &DayTotals{Day: day}
		byDay[day] = totals
	}
	totals.Hours += activityHours(a)
	if a.DistanceM != nil {
		totals.DistanceM += *a.DistanceM
	}
	totals.Activities++
	totals.LowConfidence = totals.LowConfidence || low
	return day
}

// CalendarYear builds the year-overview calendar for one year.
func CalendarYear(ctx context.Context, lister activityLister, year int, fallbackZone string) (YearOverview, error) {
	fromUTC := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC).Add(-windowSlackHours * time.Hour)
	toUTC := time.Date(year+1, time.January, 1, 0, 0, 0, 0, time.UTC).Add(windowSlackHours * time.Hour)

	activities, err := lister.ListTrainingBetween(ctx, fromUTC, toUTC)
	if err != nil {
		return YearOverview{}, err
	}

	byDay := make(map[localtime.Date]*DayTotals)
	for _, a := range activities {
		day := accumulate(byDay, a, fallbackZone)
		if day.Year != year {
			// Edge-of-window activity whose local date lands outside the year.
			totals := byDay[day]
			totals.Hours -= activityHours(a)
			if a.DistanceM != nil {
				totals.DistanceM -= *a.DistanceM
			}
			totals.Activities--
			if totals.Activities == 0 {
				delete(byDay, day)
			}
		}
	}

	overview := YearOverview{Year: year}
	for month := time.January; month <= time.December; month++ {
		tile := MonthOverview{Month: month}
		first := localtime.Date{Year: year, Month: month, Day: 1}
		for day := first; day.Month == month; day = day.AddDays(1) {
			totals := DayTotals{Day: day}
			if got, ok := byDay[day]; ok {
				totals = *got
			}
			tile.Days = append(tile.Days, totals)
			tile.Hours += totals.Hours
			tile.DistanceM += totals.DistanceM
			tile.Activities += totals.Activities
			if totals.Activities > 0 {
				overview.TrainingDays++
			}
		}
		overview.Hours += tile.Hours
		overview.DistanceM += tile.DistanceM
		overview.Activities += tile.Activities
		overview.Months = append(overview.Months, tile)
	}
	return overview, nil
}

// WeekTotals accumulates one week of a season.
type WeekTotals struct {
	WeekStart  localtime.Date
	Hours      float64
	DistanceM  float64
	Activities int
}

// SeasonSummary aggregates a season's inclusive date range into weekly buckets.
type SeasonSummary struct {
	Season     domain.Season
	Hours      float64
	DistanceM  float64
	Activities int
	Weeks      []WeekTotals
}

// Season builds the weekly summary for one season.
func Season(ctx context.Context, lister activityLister, season domain.Season, fallbackZone string, weekStart time.Weekday) (SeasonSummary, error) {
	startDate := localtime.DateOf(season.StartDate)
	endDate := localtime.DateOf(season.EndDate)

	fromUTC := startDate.Time().Add(-windowSlackHours * time.Hour)
	toUTC := endDate.AddDays(1).Time().Add(windowSlackHours * time.Hour)

	activities, err := lister.ListTrainingBetween(ctx, fromUTC, toUTC)
	if err != nil {
		return SeasonSummary{}, err
	}

	byWeek := make(map[localtime.Date]*WeekTotals)
	out := SeasonSummary{Season: season}
	for _, a := range activities {
		day, _ := localtime.ActivityDate(a, fallbackZone)
		if day.Before(startDate) || day.After(endDate) {
			continue
		}
		week := localtime.StartOfWeek(day, weekStart)
		totals, ok := byWeek[week]
		if !ok {
			totals = &WeekTotals{WeekStart: week}
			byWeek[week] = totals
		}
		hours := activityHours(a)
		totals.Hours += hours
		out.Hours += hours
		if a.DistanceM != nil {
			totals.DistanceM += *a.DistanceM
			out.DistanceM += *a.DistanceM
		}
		totals.Activities++
		out.Activities++
	}

	for _, week := range localtime.WeekStarts(startDate, endDate, weekStart) {
		if totals, ok := byWeek[week]; ok {
			out.Weeks = append(out.Weeks, *totals)
		} else {
			out.Weeks = append(out.Weeks, WeekTotals{WeekStart: week})
		}
	}
	return out, nil
}
