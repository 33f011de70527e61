// Package domain defines the telemetry records, fetch jobs, and the query
// planner for the sync service.
package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// DataType selects which telemetry feed a query or fetch job targets.
type DataType string

const (
	DataTypeWorkouts DataType = "workouts"
	DataTypeActivity DataType = "activity"
)

// ParseDataType validates a caller-supplied data type string.
func ParseDataType(raw string) (DataType, error) {
	switch DataType(raw) {
	case DataTypeWorkouts:
		return DataTypeWorkouts, nil
	case DataTypeActivity:
		return DataTypeActivity, nil
	}
	return "", fmt.Errorf("unsupported data type: %q", raw)
}

// Workout is one provider-assigned workout record. IDs are globally unique
// strings minted by the upstream provider; re-ingesting an existing ID is a
// no-op. Raw preserves the original payload verbatim for forward
// compatibility with provider schema additions.
type Workout struct {
	ID            string          `json:"id"`
	UserID        string          `json:"user_id"`
	Title         string          `json:"title,omitempty"`
	TimeStart     time.Time       `json:"time_start"`
	TimeEnd       time.Time       `json:"time_end"`
	CalendarDate  string          `json:"calendar_date,omitempty"`
	Calories      float64         `json:"calories,omitempty"`
	DistanceM     float64         `json:"distance,omitempty"`
	DurationMin   int             `json:"duration,omitempty"`
	AverageHR     float64         `json:"average_hr,omitempty"`
	MaxHR         float64         `json:"max_hr,omitempty"`
	MovingTimeSec int             `json:"moving_time,omitempty"`
	Sport         json.RawMessage `json:"sport,omitempty"`
	Source        json.RawMessage `json:"source,omitempty"`
	Raw           json.RawMessage `json:"-"`
}

// DailyActivity is one provider-assigned daily activity summary.
type DailyActivity struct {
	ID             string          `json:"id"`
	UserID         string          `json:"user_id"`
	Date           time.Time       `json:"date"`
	CalendarDate   string          `json:"calendar_date,omitempty"`
	CaloriesTotal  float64         `json:"calories_total,omitempty"`
	CaloriesActive float64         `json:"calories_active,omitempty"`
	Steps          int             `json:"steps,omitempty"`
	DailyMovementM float64         `json:"daily_movement,omitempty"`
	LowMin         int             `json:"low,omitempty"`
	MediumMin      int             `json:"medium,omitempty"`
	HighMin        int             `json:"high,omitempty"`
	Source         json.RawMessage `json:"source,omitempty"`
	Raw            json.RawMessage `json:"-"`
}
