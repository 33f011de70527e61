package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"example.com/telemetry/internal/domain"
)

// SampleClient synthesizes deterministic telemetry for demos and offline
// development. The same (user, range) always yields the same records, so
// idempotent ingest holds across repeated fetches.
type SampleClient struct{}

// NewSampleClient constructs a SampleClient.
func NewSampleClient() *SampleClient {
	return &SampleClient{}
}

var sampleSource = json.RawMessage(`{"provider":"sample","type":"sample_data","name":"Sample Data","slug":"sample"}`)

// Workouts generates workouts across the range. Density drops as the range
// grows: daily up to six months, every third day up to two years, weekly
// beyond that.
func (c *SampleClient) Workouts(_ context.Context, userID string, start, end time.Time) ([]domain.Workout, error) {
	start = start.UTC().Truncate(24 * time.Hour)
	end = end.UTC()

	frequency := 1
	switch days := int(end.Sub(start).Hours() / 24); {
	case days > 730:
		frequency = 7
	case days > 180:
		frequency = 3
	}

	var workouts []domain.Workout
	day := 0
	for current := start; !current.After(end); current = current.AddDate(0, 0, 1) {
		if day%frequency == 0 {
			workouts = append(workouts, sampleWorkout(userID, current))
		}
		day++
	}
	return workouts, nil
}

// DailyActivity generates one summary per day in the range.
func (c *SampleClient) DailyActivity(_ context.Context, userID string, start, end time.Time) ([]domain.DailyActivity, error) {
	start = start.UTC().Truncate(24 * time.Hour)
	end = end.UTC()

	var records []domain.DailyActivity
	for current := start; !current.After(end); current = current.AddDate(0, 0, 1) {
		activity := domain.DailyActivity{
			ID:             fmt.Sprintf("sample-%s-%s-activity", userID, current.Format("20060102")),
			UserID:         userID,
			Date:           current,
			CalendarDate:   current.Format("2006-01-02"),
			Steps:          6000 + (current.Day()*317)%8000,
			CaloriesActive: 300 + float64((current.Day()*53)%400),
			CaloriesTotal:  1800 + float64((current.Day()*53)%400),
			DailyMovementM: 4000 + float64((current.Day()*211)%6000),
			LowMin:         120 + current.Day()%60,
			MediumMin:      30 + current.Day()%30,
			HighMin:        current.Day() % 20,
			Source:         sampleSource,
		}
		activity.Raw = mustMarshal(activity)
		records = append(records, activity)
	}
	return records, nil
}

func sampleWorkout(userID string, date time.Time) domain.Workout {
	var sport struct {
		Name string `json:"name"`
		ID   int    `json:"id"`
		Slug string `json:"slug"`
	}
	switch date.Weekday() {
	case time.Tuesday, time.Thursday:
		sport.Name, sport.ID, sport.Slug = "Cycling", 62, "cycling"
	case time.Saturday:
		sport.Name, sport.ID, sport.Slug = "Swimming", 63, "swimming"
	default:
		sport.Name, sport.ID, sport.Slug = "Running", 61, "running"
	}

	weekend := date.Weekday() == time.Saturday || date.Weekday() == time.Sunday
	minKM, maxKM := 3, 10
	if weekend {
		minKM, maxKM = 5, 20
	}
	distanceKM := minKM + (date.Day()+int(date.Month()))%(maxKM-minKM)
	durationMin := distanceKM * 6 // steady ~6 min/km pace

	timeStart := date.Add(8 * time.Hour)
	workout := domain.Workout{
		ID:            fmt.Sprintf("sample-%s-%s", userID, date.Format("20060102")),
		UserID:        userID,
		Title:         fmt.Sprintf("Morning %s", sport.Name),
		TimeStart:     timeStart,
		TimeEnd:       timeStart.Add(time.Duration(durationMin) * time.Minute),
		CalendarDate:  date.Format("2006-01-02"),
		Calories:      float64(distanceKM * 100),
		DistanceM:     float64(distanceKM * 1000),
		DurationMin:   durationMin,
		AverageHR:     float64(110 + date.Day()%40 + distanceKM%20),
		MaxHR:         float64(130 + date.Day()%30 + distanceKM%30),
		MovingTimeSec: durationMin*60 - distanceKM*20,
		Sport:         mustMarshal(sport),
		Source:        sampleSource,
	}
	workout.Raw = mustMarshal(workout)
	return workout
}

func mustMarshal(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}
