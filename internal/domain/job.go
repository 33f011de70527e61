package domain

import "time"

// JobStatus tracks the lifecycle of a FetchJob. Transitions are monotonic:
// pending -> in_progress -> completed|failed. A job never reverts.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusInProgress JobStatus = "in_progress"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether the status is an end state.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// FetchJob is one scheduled unit of upstream fetch work covering
// [StartDate, EndDate] for a single user and data type.
type FetchJob struct {
	ID           string
	UserID       string
	DataType     DataType
	StartDate    time.Time
	EndDate      time.Time
	Status       JobStatus
	RequestedAt  time.Time
	CompletedAt  *time.Time
	ItemsFetched int
	ErrorMessage *string
}

// StatusReport is the operational diagnostics view served by the API.
type StatusReport struct {
	Users          int64
	Workouts       int64
	DailyActivity  int64
	CompleteRanges int64
	JobCounts      map[JobStatus]int64
	LatestJob      *FetchJob
}
