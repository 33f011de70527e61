package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrInvalidRange is returned for malformed query bounds.
	ErrInvalidRange = errors.New("invalid date range")
	// ErrMissingUser is returned when no user id was supplied.
	ErrMissingUser = errors.New("user id is required")
	// ErrDuplicateJob is returned by Repository.CreateJob when an active job
	// for the same (user, type, interval) already exists.
	ErrDuplicateJob = errors.New("active fetch job already exists")
)

// Repository captures the persistence operations the planner needs.
type Repository interface {
	IsRangeComplete(ctx context.Context, userID string, dataType DataType, start, end time.Time) (bool, error)
	ListWorkouts(ctx context.Context, userID string, start, end time.Time) ([]Workout, error)
	ListDailyActivity(ctx context.Context, userID string, start, end time.Time) ([]DailyActivity, error)
	FindActiveJob(ctx context.Context, userID string, dataType DataType, start, end time.Time) (*FetchJob, error)
	CreateJob(ctx context.Context, job FetchJob) error
	StatusReport(ctx context.Context) (StatusReport, error)
}

// Service is the query planner: it decides serve-from-cache versus
// enqueue-and-serve-partial for each incoming range query.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService constructs a Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: func() time.Time { return time.Now().UTC() }}
}

// QueryResult carries whatever records are currently cached for the requested
// interval. Complete is true when the range store covers the full interval,
// in which case no background fetch was scheduled.
type QueryResult struct {
	Workouts []Workout
	Activity []DailyActivity
	Complete bool
	JobID    string
}

// Query serves a (user, data-type, date-range) request. A covered range is
// answered from storage with no upstream involvement. An uncovered range
// schedules a deduplicated background fetch and immediately returns the
// cached overlap, possibly empty. Missing data is never an error.
func (s *Service) Query(ctx context.Context, userID string, dataType DataType, start, end time.Time) (*QueryResult, error) {
	if err := validateBounds(userID, start, end); err != nil {
		return nil, err
	}

	covered, err := s.repo.IsRangeComplete(ctx, userID, dataType, start, end)
	if err != nil {
		return nil, err
	}

	result := &QueryResult{Complete: covered}
	if !covered {
		job, _, err := s.ScheduleFetch(ctx, userID, dataType, start, end)
		if err != nil {
			return nil, err
		}
		result.JobID = job.ID
	}

	switch dataType {
	case DataTypeWorkouts:
		result.Workouts, err = s.repo.ListWorkouts(ctx, userID, start, end)
	case DataTypeActivity:
		result.Activity, err = s.repo.ListDailyActivity(ctx, userID, start, end)
	default:
		return nil, fmt.Errorf("unsupported data type: %q", dataType)
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ScheduleFetch enqueues a fetch job for the exact interval unless a pending
// or in-progress job for the same (user, type, start, end) already exists, in
// which case that job is returned unchanged. The boolean reports whether a
// new job was created.
//
// Check-then-insert can lose a race to a simultaneous identical query; the
// storage layer surfaces that as ErrDuplicateJob and the winner's job is
// returned instead. Duplicate submission is never an error for the caller.
func (s *Service) ScheduleFetch(ctx context.Context, userID string, dataType DataType, start, end time.Time) (*FetchJob, bool, error) {
	if err := validateBounds(userID, start, end); err != nil {
		return nil, false, err
	}

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		existing, err := s.repo.FindActiveJob(ctx, userID, dataType, start, end)
		if err != nil {
			return nil, false, err
		}
		if existing != nil {
			return existing, false, nil
		}

		job := FetchJob{
			ID:          uuid.NewString(),
			UserID:      userID,
			DataType:    dataType,
			StartDate:   start.UTC(),
			EndDate:     end.UTC(),
			Status:      JobStatusPending,
			RequestedAt: s.now(),
		}
		err = s.repo.CreateJob(ctx, job)
		if err == nil {
			return &job, true, nil
		}
		if !errors.Is(err, ErrDuplicateJob) {
			return nil, false, err
		}
		// Lost the insert race; loop once to pick up the winner's job.
		lastErr = err
	}
	return nil, false, lastErr
}

// Status returns operational diagnostics: row counts, job counts by status,
// and the most recently requested job.
func (s *Service) Status(ctx context.Context) (*StatusReport, error) {
	report, err := s.repo.StatusReport(ctx)
	if err != nil {
		return nil, err
	}
	return &report, nil
}

func validateBounds(userID string, start, end time.Time) error {
	if userID == "" {
		return ErrMissingUser
	}
	if start.IsZero() || end.IsZero() {
		return fmt.Errorf("%w: zero bound", ErrInvalidRange)
	}
	if !start.Before(end) {
		return fmt.Errorf("%w: start %s is not before end %s", ErrInvalidRange, start.Format(time.RFC3339), end.Format(time.RFC3339))
	}
	return nil
}
