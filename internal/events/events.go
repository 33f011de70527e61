// Package events publishes fetch-job lifecycle notifications to Kafka for
// downstream consumers (dashboards, alerting).
package events

import "time"

// JobResult is emitted once per fetch job when it reaches a terminal state.
type JobResult struct {
	JobID        string    `json:"job_id"`
	UserID       string    `json:"user_id"`
	DataType     string    `json:"data_type"`
	StartDate    time.Time `json:"start_date"`
	EndDate      time.Time `json:"end_date"`
	Status       string    `json:"status"`
	ItemsFetched int       `json:"items_fetched"`
	ChunkErrors  int       `json:"chunk_errors"`
	OccurredAt   time.Time `json:"occurred_at"`
	Error        string    `json:"error,omitempty"`
}
