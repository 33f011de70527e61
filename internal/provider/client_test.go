package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const workoutsFixture = `{
  "workouts": [
    {
      "id": "wk-1",
      "title": "Morning Run",
      "time_start": "2024-01-02T08:00:00Z",
      "time_end": "2024-01-02T08:45:00Z",
      "calendar_date": "2024-01-02",
      "calories": 520,
      "distance": 8000,
      "duration": 45,
      "average_hr": 141.5,
      "max_hr": 162,
      "moving_time": 2600,
      "sport": {"name": "Running", "id": 61, "slug": "running"},
      "source": {"provider": "strava", "slug": "strava"},
      "future_field": "preserved"
    }
  ]
}`

func TestWorkoutsDecodesAndPreservesRawPayload(t *testing.T) {
	var gotPath, gotKey string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("X-API-Key")
		require.NotEmpty(t, r.URL.Query().Get("start_date"))
		require.NotEmpty(t, r.URL.Query().Get("end_date"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(workoutsFixture))
	}))
	defer server.Close()

	client := NewHTTPClient(Config{BaseURL: server.URL, APIKey: "secret"})
	start := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	workouts, err := client.Workouts(context.Background(), "u1", start, start.AddDate(0, 0, 7))
	require.NoError(t, err)

	require.Equal(t, "/v2/summary/workouts/u1", gotPath)
	require.Equal(t, "secret", gotKey)

	require.Len(t, workouts, 1)
	wk := workouts[0]
	require.Equal(t, "wk-1", wk.ID)
	require.Equal(t, "u1", wk.UserID)
	require.Equal(t, 45, wk.DurationMin)
	require.Equal(t, time.Date(2024, time.January, 2, 8, 0, 0, 0, time.UTC), wk.TimeStart)
	require.JSONEq(t, `{"name": "Running", "id": 61, "slug": "running"}`, string(wk.Sport))
	// Unknown provider fields survive in the verbatim payload.
	require.Contains(t, string(wk.Raw), "future_field")
}

func TestDailyActivityDecodes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v2/summary/activity/u1", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"activity":[{"id":"ac-1","date":"2024-01-02","steps":9000,"calories_total":2100}]}`))
	}))
	defer server.Close()

	client := NewHTTPClient(Config{BaseURL: server.URL})
	start := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	records, err := client.DailyActivity(context.Background(), "u1", start, start.AddDate(0, 0, 7))
	require.NoError(t, err)

	require.Len(t, records, 1)
	require.Equal(t, "ac-1", records[0].ID)
	require.Equal(t, "2024-01-02", records[0].CalendarDate)
	require.Equal(t, 9000, records[0].Steps)
}

func TestWorkoutsSurfacesUpstreamFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewHTTPClient(Config{BaseURL: server.URL})
	_, err := client.Workouts(context.Background(), "u1", time.Now().Add(-time.Hour), time.Now())
	require.Error(t, err)
	require.Contains(t, err.Error(), "status 429")
}

func TestWorkoutsRejectsRecordWithoutID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"workouts":[{"title":"nameless"}]}`))
	}))
	defer server.Close()

	client := NewHTTPClient(Config{BaseURL: server.URL})
	_, err := client.Workouts(context.Background(), "u1", time.Now().Add(-time.Hour), time.Now())
	require.Error(t, err)
}
