package summary

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/btmullin/supertl2/internal/domain"
)

type stubLister struct {
	activities []domain.Activity
	gotFrom    time.Time
	gotTo      time.Time
}

func (s *stubLister) ListTrainingBetween(_ context.Context, fromUTC, toUTC time.Time) ([]domain.Activity, error) {
	s.gotFrom, s.gotTo = fromUTC, toUTC
	var out []domain.Activity
	for _, a := range s.activities {
		if !a.StartTimeUTC.Before(fromUTC) && a.StartTimeUTC.Before(toUTC) {
			out = append(out, a)
		}
	}
	return out, nil
}

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }

func TestCalendarYearBucketsByLocalDate(t *testing.T) {
	lister := &stubLister{activities: []domain.Activity{
		{
			// 05:30Z Jan 15 is the evening of Jan 14 in Chicago.
			StartTimeUTC: time.Date(2025, time.January, 15, 5, 30, 0, 0, time.UTC),
			TZName:       "America/Chicago",
			MovingTimeS:  intPtr(3600),
			DistanceM:    floatPtr(10000),
		},
		{
			StartTimeUTC: time.Date(2025, time.January, 14, 13, 0, 0, 0, time.UTC),
			TZName:       "America/Chicago",
			MovingTimeS:  intPtr(1800),
			DistanceM:    floatPtr(5000),
		},
	}}

	overview, err := CalendarYear(context.Background(), lister, 2025, "UTC")
	require.NoError(t, err)
	require.Equal(t, 2025, overview.Year)
	require.Equal(t, 2, overview.Activities)
	require.Equal(t, 1, overview.TrainingDays)
	require.InDelta(t, 1.5, overview.Hours, 1e-9)

	january := overview.Months[0]
	require.Equal(t, time.January, january.Month)
	require.Len(t, january.Days, 31)

	jan14 := january.Days[13]
	require.Equal(t, "2025-01-14", jan14.Day.String())
	require.Equal(t, 2, jan14.Activities)
	require.InDelta(t, 15000, jan14.DistanceM, 1e-9)
	require.Zero(t, january.Days[14].Activities)
}

func TestCalendarYearCountsDurationlessTrainingDays(t *testing.T) {
	// A strength session logged without any duration still marks the day.
	lister := &stubLister{activities: []domain.Activity{
		{
			StartTimeUTC: time.Date(2025, time.March, 10, 18, 0, 0, 0, time.UTC),
			TZName:       "America/Chicago",
			Sport:        "Strength",
		},
	}}

	overview, err := CalendarYear(context.Background(), lister, 2025, "UTC")
	require.NoError(t, err)
	require.Equal(t, 1, overview.TrainingDays)
	require.Equal(t, 1, overview.Activities)
	require.Zero(t, overview.Hours)
}

func TestCalendarYearExcludesEdgeSpillover(t *testing.T) {
	lister := &stubLister{activities: []domain.Activity{
		{
			// 03:00Z Jan 1 2025 is still Dec 31 2024 in Chicago, so it
			// belongs to the previous year even though it is inside the
			// widened UTC query window.
			StartTimeUTC: time.Date(2025, time.January, 1, 3, 0, 0, 0, time.UTC),
			TZName:       "America/Chicago",
			MovingTimeS:  intPtr(3600),
		},
	}}

	overview, err := CalendarYear(context.Background(), lister, 2025, "UTC")
	require.NoError(t, err)
	require.Zero(t, overview.Activities)
	require.Zero(t, overview.TrainingDays)

	prior, err := CalendarYear(context.Background(), lister, 2024, "UTC")
	require.NoError(t, err)
	require.Equal(t, 1, prior.Activities)
}

func TestCalendarYearFlagsLowConfidenceDays(t *testing.T) {
	lister := &stubLister{activities: []domain.Activity{
		{
			StartTimeUTC: time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC),
			TZName:       "", // no zone recorded, fallback applies
			MovingTimeS:  intPtr(1800),
		},
	}}

	overview, err := CalendarYear(context.Background(), lister, 2025, "America/Chicago")
	require.NoError(t, err)

	march10 := overview.Months[2].Days[9]
	require.Equal(t, 1, march10.Activities)
	require.True(t, march10.LowConfidence)
}

func TestSeasonGroupsByWeek(t *testing.T) {
	lister := &stubLister{activities: []domain.Activity{
		{
			StartTimeUTC: time.Date(2024, time.November, 5, 13, 0, 0, 0, time.UTC),
			TZName:       "America/Chicago",
			MovingTimeS:  intPtr(3600),
			DistanceM:    floatPtr(12000),
		},
		{
			StartTimeUTC: time.Date(2024, time.November, 6, 13, 0, 0, 0, time.UTC),
			TZName:       "America/Chicago",
			MovingTimeS:  intPtr(5400),
			DistanceM:    floatPtr(20000),
		},
		{
			StartTimeUTC: time.Date(2024, time.November, 14, 13, 0, 0, 0, time.UTC),
			TZName:       "America/Chicago",
			MovingTimeS:  intPtr(3600),
		},
		{
			// Outside the season range.
			StartTimeUTC: time.Date(2025, time.May, 1, 13, 0, 0, 0, time.UTC),
			TZName:       "America/Chicago",
			MovingTimeS:  intPtr(3600),
		},
	}}

	season := domain.Season{
		ID:        1,
		Name:      "2024-25 Ski Season",
		StartDate: time.Date(2024, time.November, 4, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2024, time.November, 17, 0, 0, 0, 0, time.UTC),
	}

	out, err := Season(context.Background(), lister, season, "UTC", time.Monday)
	require.NoError(t, err)
	require.Equal(t, 3, out.Activities)
	require.InDelta(t, 3.5, out.Hours, 1e-9)
	require.Len(t, out.Weeks, 2)

	require.Equal(t, "2024-11-04", out.Weeks[0].WeekStart.String())
	require.Equal(t, 2, out.Weeks[0].Activities)
	require.InDelta(t, 32000, out.Weeks[0].DistanceM, 1e-9)
	require.Equal(t, 1, out.Weeks[1].Activities)
}
