package localtime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/btmullin/supertl2/internal/domain"
)

func TestActivityDateCrossesUTCDateBoundary(t *testing.T) {
	// An evening workout in Chicago: 05:30Z on the 15th is still the
	// evening of the 14th locally.
	activity := domain.Activity{
		StartTimeUTC: time.Date(2025, time.January, 15, 5, 30, 0, 0, time.UTC),
		TZName:       "America/Chicago",
	}

	day, low := ActivityDate(activity, "UTC")
	require.False(t, low)
	require.Equal(t, "2025-01-14", day.String())
}

func TestActivityDateTimeResolvesDSTPerInstant(t *testing.T) {
	winter := domain.Activity{
		StartTimeUTC: time.Date(2025, time.January, 15, 18, 0, 0, 0, time.UTC),
		TZName:       "America/Chicago",
	}
	summer := domain.Activity{
		StartTimeUTC: time.Date(2025, time.July, 15, 18, 0, 0, 0, time.UTC),
		TZName:       "America/Chicago",
	}

	require.Equal(t, 12, ActivityDateTime(winter, "UTC").Local.Hour())
	require.Equal(t, 13, ActivityDateTime(summer, "UTC").Local.Hour())
}

func TestResolveZoneFallsBack(t *testing.T) {
	loc, name, low := ResolveZone("Not/AZone", "America/Denver")
	require.True(t, low)
	require.Equal(t, "America/Denver", name)
	require.NotNil(t, loc)

	loc, name, low = ResolveZone("", "")
	require.True(t, low)
	require.Equal(t, "UTC", name)
	require.Equal(t, time.UTC, loc)

	_, name, low = ResolveZone("Europe/Oslo", "UTC")
	require.False(t, low)
	require.Equal(t, "Europe/Oslo", name)
}

func TestOffsetMinutesIsDSTAware(t *testing.T) {
	winter, err := OffsetMinutes("America/Chicago", time.Date(2025, time.January, 15, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Equal(t, -360, winter)

	summer, err := OffsetMinutes("America/Chicago", time.Date(2025, time.July, 15, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Equal(t, -300, summer)

	_, err = OffsetMinutes("Not/AZone", time.Now())
	require.ErrorIs(t, err, domain.ErrUnresolvableTimezone)
}

func TestStartOfWeek(t *testing.T) {
	// 2025-01-15 is a Wednesday.
	wed := Date{Year: 2025, Month: time.January, Day: 15}

	require.Equal(t, "2025-01-13", StartOfWeek(wed, time.Monday).String())
	require.Equal(t, "2025-01-12", StartOfWeek(wed, time.Sunday).String())

	mon := Date{Year: 2025, Month: time.January, Day: 13}
	require.Equal(t, mon, StartOfWeek(mon, time.Monday))
}

func TestWeekOffset(t *testing.T) {
	today := Date{Year: 2025, Month: time.January, Day: 15}

	require.Equal(t, 0, WeekOffset(Date{Year: 2025, Month: time.January, Day: 13}, today, time.Monday))
	require.Equal(t, -1, WeekOffset(Date{Year: 2025, Month: time.January, Day: 12}, today, time.Monday))
	require.Equal(t, 1, WeekOffset(Date{Year: 2025, Month: time.January, Day: 20}, today, time.Monday))
}

func TestWeekStartsCoversRangeInclusive(t *testing.T) {
	start := Date{Year: 2025, Month: time.January, Day: 15}
	end := Date{Year: 2025, Month: time.February, Day: 2}

	// 2025-02-02 is a Sunday, so its week starts on 2025-01-27.
	weeks := WeekStarts(start, end, time.Monday)
	require.Len(t, weeks, 3)
	require.Equal(t, "2025-01-13", weeks[0].String())
	require.Equal(t, "2025-01-27", weeks[2].String())
}

func TestDateArithmetic(t *testing.T) {
	d := Date{Year: 2024, Month: time.February, Day: 28}
	require.Equal(t, "2024-02-29", d.AddDays(1).String()) // leap year
	require.Equal(t, "2024-03-01", d.AddDays(2).String())
	require.True(t, d.Before(d.AddDays(1)))
	require.True(t, d.AddDays(1).After(d))
}
