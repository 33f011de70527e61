// Package postgres implements the relational store backing records, fetch
// jobs, and range completeness marks.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/telemetry/internal/domain"
	"example.com/telemetry/internal/observability"
)

// Repository provides Postgres-backed persistence. It serves both the query
// planner (domain.Repository) and the background syncer.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// EnsureUser creates the user row if absent. Users are created lazily on
// first data write and never deleted by this service.
func (r *Repository) EnsureUser(ctx context.Context, userID string) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO users (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`, userID)
	return err
}

const insertWorkout = `INSERT INTO workouts
    (workout_id, user_id, title, time_start, time_end, calendar_date, calories, distance_m, duration_min, average_hr, max_hr, moving_time_sec, sport, source, raw)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
    ON CONFLICT (workout_id) DO NOTHING`

// IngestWorkouts upserts records by absence and returns the count of newly
// inserted rows. Each insert is its own implicit transaction, so rows
// persisted before a mid-batch failure stay persisted.
func (r *Repository) IngestWorkouts(ctx context.Context, userID string, records []domain.Workout) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	if err := r.EnsureUser(ctx, userID); err != nil {
		return 0, fmt.Errorf("ensure user %s: %w", userID, err)
	}

	inserted := 0
	for _, rec := range records {
		tag, err := r.pool.Exec(ctx, insertWorkout,
			rec.ID,
			userID,
			nullIfEmpty(rec.Title),
			rec.TimeStart,
			nullIfZeroTime(rec.TimeEnd),
			nullIfEmpty(rec.CalendarDate),
			rec.Calories,
			rec.DistanceM,
			rec.DurationMin,
			rec.AverageHR,
			rec.MaxHR,
			rec.MovingTimeSec,
			rawOrNil(rec.Sport),
			rawOrNil(rec.Source),
			rawOrNil(rec.Raw),
		)
		if err != nil {
			return inserted, fmt.Errorf("insert workout %s: %w", rec.ID, err)
		}
		inserted += int(tag.RowsAffected())
	}
	observability.RecordIngested(string(domain.DataTypeWorkouts), inserted)
	return inserted, nil
}

const insertActivity = `INSERT INTO daily_activity
    (activity_id, user_id, date, calendar_date, calories_total, calories_active, steps, daily_movement_m, low_min, medium_min, high_min, source, raw)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
    ON CONFLICT (activity_id) DO NOTHING`

// IngestDailyActivity mirrors IngestWorkouts for daily summaries.
func (r *Repository) IngestDailyActivity(ctx context.Context, userID string, records []domain.DailyActivity) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	if err := r.EnsureUser(ctx, userID); err != nil {
		return 0, fmt.Errorf("ensure user %s: %w", userID, err)
	}

	inserted := 0
	for _, rec := range records {
		tag, err := r.pool.Exec(ctx, insertActivity,
			rec.ID,
			userID,
			rec.Date,
			nullIfEmpty(rec.CalendarDate),
			rec.CaloriesTotal,
			rec.CaloriesActive,
			rec.Steps,
			rec.DailyMovementM,
			rec.LowMin,
			rec.MediumMin,
			rec.HighMin,
			rawOrNil(rec.Source),
			rawOrNil(rec.Raw),
		)
		if err != nil {
			return inserted, fmt.Errorf("insert activity %s: %w", rec.ID, err)
		}
		inserted += int(tag.RowsAffected())
	}
	observability.RecordIngested(string(domain.DataTypeActivity), inserted)
	return inserted, nil
}

// ListWorkouts returns workouts starting within [start, end], oldest first.
func (r *Repository) ListWorkouts(ctx context.Context, userID string, start, end time.Time) ([]domain.Workout, error) {
	const query = `SELECT workout_id, user_id, COALESCE(title, ''), time_start, COALESCE(time_end, time_start), COALESCE(calendar_date, ''),
        COALESCE(calories, 0), COALESCE(distance_m, 0), COALESCE(duration_min, 0), COALESCE(average_hr, 0), COALESCE(max_hr, 0), COALESCE(moving_time_sec, 0),
        sport, source, raw
        FROM workouts
        WHERE user_id = $1 AND time_start >= $2 AND time_start <= $3
        ORDER BY time_start`

	rows, err := r.pool.Query(ctx, query, userID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]domain.Workout, 0)
	for rows.Next() {
		var rec domain.Workout
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.Title, &rec.TimeStart, &rec.TimeEnd, &rec.CalendarDate,
			&rec.Calories, &rec.DistanceM, &rec.DurationMin, &rec.AverageHR, &rec.MaxHR, &rec.MovingTimeSec,
			&rec.Sport, &rec.Source, &rec.Raw); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// ListDailyActivity returns daily summaries dated within [start, end].
func (r *Repository) ListDailyActivity(ctx context.Context, userID string, start, end time.Time) ([]domain.DailyActivity, error) {
	const query = `SELECT activity_id, user_id, date, COALESCE(calendar_date, ''),
        COALESCE(calories_total, 0), COALESCE(calories_active, 0), COALESCE(steps, 0), COALESCE(daily_movement_m, 0),
        COALESCE(low_min, 0), COALESCE(medium_min, 0), COALESCE(high_min, 0), source, raw
        FROM daily_activity
        WHERE user_id = $1 AND date >= $2 AND date <= $3
        ORDER BY date`

	rows, err := r.pool.Query(ctx, query, userID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]domain.DailyActivity, 0)
	for rows.Next() {
		var rec domain.DailyActivity
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.Date, &rec.CalendarDate,
			&rec.CaloriesTotal, &rec.CaloriesActive, &rec.Steps, &rec.DailyMovementM,
			&rec.LowMin, &rec.MediumMin, &rec.HighMin, &rec.Source, &rec.Raw); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// IsRangeComplete reports whether any stored complete mark fully contains the
// requested interval. Overlapping redundant marks are fine; one containing
// row suffices.
func (r *Repository) IsRangeComplete(ctx context.Context, userID string, dataType domain.DataType, start, end time.Time) (bool, error) {
	const query = `SELECT EXISTS (
        SELECT 1 FROM range_marks
        WHERE user_id = $1 AND data_type = $2 AND complete
          AND start_date <= $3 AND end_date >= $4
    )`

	var covered bool
	if err := r.pool.QueryRow(ctx, query, userID, string(dataType), start, end).Scan(&covered); err != nil {
		return false, err
	}
	return covered, nil
}

// MarkRangeComplete upserts the completeness mark for the exact interval.
// Only the syncer calls this, and only after every chunk of a job succeeded.
func (r *Repository) MarkRangeComplete(ctx context.Context, userID string, dataType domain.DataType, start, end time.Time) error {
	const stmt = `INSERT INTO range_marks (user_id, data_type, start_date, end_date, complete, updated_at)
        VALUES ($1, $2, $3, $4, TRUE, NOW())
        ON CONFLICT (user_id, data_type, start_date, end_date)
        DO UPDATE SET complete = TRUE, updated_at = NOW()`

	_, err := r.pool.Exec(ctx, stmt, userID, string(dataType), start, end)
	return err
}

const jobColumns = `job_id, user_id, data_type, start_date, end_date, status, requested_at, completed_at, items_fetched, error_message`

// FindActiveJob returns the pending or in-progress job for the exact
// (user, type, interval), or nil when none exists.
func (r *Repository) FindActiveJob(ctx context.Context, userID string, dataType domain.DataType, start, end time.Time) (*domain.FetchJob, error) {
	query := `SELECT ` + jobColumns + ` FROM fetch_jobs
        WHERE user_id = $1 AND data_type = $2 AND start_date = $3 AND end_date = $4
          AND status IN ('pending', 'in_progress')
        LIMIT 1`

	job, err := scanJob(r.pool.QueryRow(ctx, query, userID, string(dataType), start, end))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return job, nil
}

// CreateJob inserts a new pending job. A unique violation on the active-job
// index means a concurrent writer scheduled the same interval first; that is
// reported as domain.ErrDuplicateJob so the planner can return the winner.
func (r *Repository) CreateJob(ctx context.Context, job domain.FetchJob) error {
	const stmt = `INSERT INTO fetch_jobs (job_id, user_id, data_type, start_date, end_date, status, requested_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.pool.Exec(ctx, stmt, job.ID, job.UserID, string(job.DataType), job.StartDate, job.EndDate, string(job.Status), job.RequestedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s/%s [%s, %s]", domain.ErrDuplicateJob, job.UserID, job.DataType,
			job.StartDate.Format(time.DateOnly), job.EndDate.Format(time.DateOnly))
	}
	return err
}

// PendingJobs returns up to limit pending jobs, FIFO by request time. Rows
// are returned untouched; status transitions are the caller's job.
func (r *Repository) PendingJobs(ctx context.Context, limit int) ([]domain.FetchJob, error) {
	query := `SELECT ` + jobColumns + ` FROM fetch_jobs
        WHERE status = 'pending'
        ORDER BY requested_at
        LIMIT $1`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	jobs := make([]domain.FetchJob, 0, limit)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// MarkJobInProgress transitions pending -> in_progress. The status guard in
// the WHERE clause keeps transitions monotonic under concurrent writers.
func (r *Repository) MarkJobInProgress(ctx context.Context, jobID string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE fetch_jobs SET status = 'in_progress' WHERE job_id = $1 AND status = 'pending'`, jobID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("job %s is not pending", jobID)
	}
	return nil
}

// MarkJobCompleted transitions in_progress -> completed with the item count.
func (r *Repository) MarkJobCompleted(ctx context.Context, jobID string, itemsFetched int) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE fetch_jobs SET status = 'completed', completed_at = NOW(), items_fetched = $2 WHERE job_id = $1 AND status = 'in_progress'`,
		jobID, itemsFetched)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("job %s is not in progress", jobID)
	}
	return nil
}

// MarkJobFailed transitions a non-terminal job to failed with an error summary.
func (r *Repository) MarkJobFailed(ctx context.Context, jobID, reason string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE fetch_jobs SET status = 'failed', completed_at = NOW(), error_message = $2 WHERE job_id = $1 AND status IN ('pending', 'in_progress')`,
		jobID, reason)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("job %s is already terminal", jobID)
	}
	return nil
}

// StatusReport gathers the diagnostics served by /v1/status.
func (r *Repository) StatusReport(ctx context.Context) (domain.StatusReport, error) {
	report := domain.StatusReport{JobCounts: make(map[domain.JobStatus]int64)}

	const countsQuery = `SELECT
        (SELECT COUNT(*) FROM users),
        (SELECT COUNT(*) FROM workouts),
        (SELECT COUNT(*) FROM daily_activity),
        (SELECT COUNT(*) FROM range_marks WHERE complete)`
	if err := r.pool.QueryRow(ctx, countsQuery).Scan(&report.Users, &report.Workouts, &report.DailyActivity, &report.CompleteRanges); err != nil {
		return report, err
	}

	rows, err := r.pool.Query(ctx, `SELECT status, COUNT(*) FROM fetch_jobs GROUP BY status`)
	if err != nil {
		return report, err
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return report, err
		}
		report.JobCounts[domain.JobStatus(status)] = count
	}
	if err := rows.Err(); err != nil {
		return report, err
	}

	latestQuery := `SELECT ` + jobColumns + ` FROM fetch_jobs ORDER BY requested_at DESC LIMIT 1`
	latest, err := scanJob(r.pool.QueryRow(ctx, latestQuery))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return report, nil
		}
		return report, err
	}
	report.LatestJob = latest
	return report, nil
}

func scanJob(row pgx.Row) (*domain.FetchJob, error) {
	var job domain.FetchJob
	var dataType, status string
	if err := row.Scan(&job.ID, &job.UserID, &dataType, &job.StartDate, &job.EndDate, &status,
		&job.RequestedAt, &job.CompletedAt, &job.ItemsFetched, &job.ErrorMessage); err != nil {
		return nil, err
	}
	job.DataType = domain.DataType(dataType)
	job.Status = domain.JobStatus(status)
	return &job, nil
}

func nullIfEmpty(value string) interface{} {
	if value == "" {
		return nil
	}
	return value
}

func nullIfZeroTime(value time.Time) interface{} {
	if value.IsZero() {
		return nil
	}
	return value
}

func rawOrNil(raw []byte) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return raw
}
