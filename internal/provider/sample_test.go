package provider

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSampleWorkoutsAreDeterministic(t *testing.T) {
	client := NewSampleClient()
	start := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 30)

	first, err := client.Workouts(context.Background(), "demo", start, end)
	require.NoError(t, err)
	second, err := client.Workouts(context.Background(), "demo", start, end)
	require.NoError(t, err)

	require.NotEmpty(t, first)
	require.Equal(t, first, second)
	for _, wk := range first {
		require.True(t, wk.TimeEnd.After(wk.TimeStart))
		require.NotEmpty(t, wk.Raw)
	}
}

func TestSampleWorkoutDensityScalesWithRange(t *testing.T) {
	client := NewSampleClient()
	start := time.Date(2022, time.January, 1, 0, 0, 0, 0, time.UTC)

	short, err := client.Workouts(context.Background(), "demo", start, start.AddDate(0, 0, 30))
	require.NoError(t, err)
	require.Len(t, short, 31) // daily within six months

	long, err := client.Workouts(context.Background(), "demo", start, start.AddDate(3, 0, 0))
	require.NoError(t, err)
	// Weekly cadence beyond two years.
	require.Less(t, len(long), 200)
	require.Greater(t, len(long), 100)
}

func TestSampleDailyActivityCoversEveryDay(t *testing.T) {
	client := NewSampleClient()
	start := time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)

	records, err := client.DailyActivity(context.Background(), "demo", start, start.AddDate(0, 0, 6))
	require.NoError(t, err)
	require.Len(t, records, 7)

	seen := make(map[string]bool)
	for _, rec := range records {
		require.False(t, seen[rec.ID], "duplicate id %s", rec.ID)
		seen[rec.ID] = true
	}
}
