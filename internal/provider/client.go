// Package provider wraps the upstream telemetry API behind a black-box
// client. Failures carry no structured codes; callers treat any error as
// transient and retryable at the chunk level.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"example.com/telemetry/internal/domain"
)

// Config holds the upstream connection settings.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// HTTPClient talks to the provider's summary endpoints. The per-call timeout
// on the embedded http.Client is the explicit upper bound on how long a chunk
// fetch may block.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewHTTPClient constructs a client with sane defaults.
func NewHTTPClient(cfg Config) *HTTPClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClient{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Workouts fetches workout records for the user within [start, end].
func (c *HTTPClient) Workouts(ctx context.Context, userID string, start, end time.Time) ([]domain.Workout, error) {
	var envelope struct {
		Workouts []json.RawMessage `json:"workouts"`
	}
	if err := c.getSummary(ctx, "workouts", userID, start, end, &envelope); err != nil {
		return nil, err
	}

	records := make([]domain.Workout, 0, len(envelope.Workouts))
	for _, raw := range envelope.Workouts {
		workout, err := decodeWorkout(userID, raw)
		if err != nil {
			return nil, err
		}
		records = append(records, workout)
	}
	return records, nil
}

// DailyActivity fetches daily activity summaries for the user within [start, end].
func (c *HTTPClient) DailyActivity(ctx context.Context, userID string, start, end time.Time) ([]domain.DailyActivity, error) {
	var envelope struct {
		Activity []json.RawMessage `json:"activity"`
	}
	if err := c.getSummary(ctx, "activity", userID, start, end, &envelope); err != nil {
		return nil, err
	}

	records := make([]domain.DailyActivity, 0, len(envelope.Activity))
	for _, raw := range envelope.Activity {
		activity, err := decodeDailyActivity(userID, raw)
		if err != nil {
			return nil, err
		}
		records = append(records, activity)
	}
	return records, nil
}

func (c *HTTPClient) getSummary(ctx context.Context, resource, userID string, start, end time.Time, out interface{}) error {
	endpoint := fmt.Sprintf("%s/v2/summary/%s/%s", c.baseURL, resource, url.PathEscape(userID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}

	query := req.URL.Query()
	query.Set("start_date", start.UTC().Format(time.RFC3339))
	query.Set("end_date", end.UTC().Format(time.RFC3339))
	req.URL.RawQuery = query.Encode()
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("provider %s fetch: %w", resource, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("provider %s fetch: status %d: %s", resource, resp.StatusCode, body)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("provider %s decode: %w", resource, err)
	}
	return nil
}

// workoutPayload mirrors the provider wire format for a single workout.
type workoutPayload struct {
	ID           string          `json:"id"`
	Title        string          `json:"title"`
	TimeStart    string          `json:"time_start"`
	TimeEnd      string          `json:"time_end"`
	CalendarDate string          `json:"calendar_date"`
	Calories     float64         `json:"calories"`
	Distance     float64         `json:"distance"`
	Duration     int             `json:"duration"`
	AverageHR    float64         `json:"average_hr"`
	MaxHR        float64         `json:"max_hr"`
	MovingTime   int             `json:"moving_time"`
	Sport        json.RawMessage `json:"sport"`
	Source       json.RawMessage `json:"source"`
}

func decodeWorkout(userID string, raw json.RawMessage) (domain.Workout, error) {
	var payload workoutPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return domain.Workout{}, fmt.Errorf("workout decode: %w", err)
	}
	if payload.ID == "" {
		return domain.Workout{}, fmt.Errorf("workout decode: missing id")
	}

	timeStart, err := parseProviderTime(payload.TimeStart)
	if err != nil {
		return domain.Workout{}, fmt.Errorf("workout %s: %w", payload.ID, err)
	}
	timeEnd, err := parseProviderTime(payload.TimeEnd)
	if err != nil {
		return domain.Workout{}, fmt.Errorf("workout %s: %w", payload.ID, err)
	}

	return domain.Workout{
		ID:            payload.ID,
		UserID:        userID,
		Title:         payload.Title,
		TimeStart:     timeStart,
		TimeEnd:       timeEnd,
		CalendarDate:  payload.CalendarDate,
		Calories:      payload.Calories,
		DistanceM:     payload.Distance,
		DurationMin:   payload.Duration,
		AverageHR:     payload.AverageHR,
		MaxHR:         payload.MaxHR,
		MovingTimeSec: payload.MovingTime,
		Sport:         payload.Sport,
		Source:        payload.Source,
		Raw:           append(json.RawMessage(nil), raw...),
	}, nil
}

// activityPayload mirrors the provider wire format for one daily summary.
type activityPayload struct {
	ID             string          `json:"id"`
	Date           string          `json:"date"`
	CaloriesTotal  float64         `json:"calories_total"`
	CaloriesActive float64         `json:"calories_active"`
	Steps          int             `json:"steps"`
	DailyMovement  float64         `json:"daily_movement"`
	Low            int             `json:"low"`
	Medium         int             `json:"medium"`
	High           int             `json:"high"`
	Source         json.RawMessage `json:"source"`
}

func decodeDailyActivity(userID string, raw json.RawMessage) (domain.DailyActivity, error) {
	var payload activityPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return domain.DailyActivity{}, fmt.Errorf("activity decode: %w", err)
	}
	if payload.ID == "" {
		return domain.DailyActivity{}, fmt.Errorf("activity decode: missing id")
	}

	date, err := parseProviderTime(payload.Date)
	if err != nil {
		return domain.DailyActivity{}, fmt.Errorf("activity %s: %w", payload.ID, err)
	}

	return domain.DailyActivity{
		ID:             payload.ID,
		UserID:         userID,
		Date:           date,
		CalendarDate:   date.Format("2006-01-02"),
		CaloriesTotal:  payload.CaloriesTotal,
		CaloriesActive: payload.CaloriesActive,
		Steps:          payload.Steps,
		DailyMovementM: payload.DailyMovement,
		LowMin:         payload.Low,
		MediumMin:      payload.Medium,
		HighMin:        payload.High,
		Source:         payload.Source,
		Raw:            append(json.RawMessage(nil), raw...),
	}, nil
}

// parseProviderTime accepts the timestamp shapes the provider emits: RFC3339
// with or without fractional seconds, and bare calendar dates.
func parseProviderTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("missing timestamp")
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", value)
}
