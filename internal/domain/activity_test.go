package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewActivityRequiresStartTime(t *testing.T) {
	_, err := NewActivity(time.Time{}, time.Now())
	require.ErrorIs(t, err, ErrUnresolvableTimestamp)

	start := time.Date(2025, time.June, 1, 11, 0, 0, 0, time.UTC)
	activity, err := NewActivity(start, time.Date(2025, time.June, 2, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Equal(t, start, activity.StartTimeUTC)
	require.Equal(t, activity.CreatedAtUTC, activity.UpdatedAtUTC)
}

func TestNewActivitySourceValidation(t *testing.T) {
	now := time.Now()

	_, err := NewActivitySource("garmin", "1", now)
	require.ErrorIs(t, err, ErrUnknownSource)

	_, err = NewActivitySource(SourceStrava, "  ", now)
	require.ErrorIs(t, err, ErrMissingSourceID)

	src, err := NewActivitySource(SourceStrava, " 42 ", now)
	require.NoError(t, err)
	require.Equal(t, "42", src.SourceActivityID)
}

func TestSourceValid(t *testing.T) {
	require.True(t, SourceStrava.Valid())
	require.True(t, SourceSportTracks.Valid())
	require.False(t, Source("garmin").Valid())
}
