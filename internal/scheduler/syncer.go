// Package scheduler drains the fetch-job queue against the upstream provider
// under the global rate budget.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"example.com/telemetry/internal/domain"
	"example.com/telemetry/internal/events"
)

// Store captures the persistence operations the syncer needs.
type Store interface {
	PendingJobs(ctx context.Context, limit int) ([]domain.FetchJob, error)
	MarkJobInProgress(ctx context.Context, jobID string) error
	MarkJobCompleted(ctx context.Context, jobID string, itemsFetched int) error
	MarkJobFailed(ctx context.Context, jobID, reason string) error
	IngestWorkouts(ctx context.Context, userID string, records []domain.Workout) (int, error)
	IngestDailyActivity(ctx context.Context, userID string, records []domain.DailyActivity) (int, error)
	MarkRangeComplete(ctx context.Context, userID string, dataType domain.DataType, start, end time.Time) error
}

// Provider is the black-box upstream client.
type Provider interface {
	Workouts(ctx context.Context, userID string, start, end time.Time) ([]domain.Workout, error)
	DailyActivity(ctx context.Context, userID string, start, end time.Time) ([]domain.DailyActivity, error)
}

// RateLimiter gates every upstream call process-wide.
type RateLimiter interface {
	Acquire(ctx context.Context) error
}

// Publisher receives job lifecycle events. Publishing is best-effort and
// never changes job state.
type Publisher interface {
	PublishJobResult(ctx context.Context, result events.JobResult) error
}

// Config tunes the syncer loop.
type Config struct {
	Interval         time.Duration // pause between queue polls
	BatchSize        int           // pending jobs claimed per iteration
	ChunkWidth       time.Duration // maximum sub-request span, provider-imposed
	MaxFetchAttempts int           // per-chunk fetch attempts before the chunk fails
	RetryBaseDelay   time.Duration // base for exponential backoff between attempts
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = 5 * time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 5
	}
	if c.ChunkWidth <= 0 {
		c.ChunkWidth = 90 * 24 * time.Hour
	}
	if c.MaxFetchAttempts <= 0 {
		c.MaxFetchAttempts = 5
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = 2 * time.Second
	}
	return c
}

// Option configures optional behaviour for the Syncer.
type Option func(*Syncer)

// WithLogger overrides the logger used to report progress and errors.
func WithLogger(logger *log.Logger) Option {
	return func(s *Syncer) {
		s.logger = logger
	}
}

// Syncer runs the background fetch loop: claim pending jobs FIFO, fetch their
// ranges in bounded chunks through the rate limiter, persist each chunk as it
// arrives, and mark ranges complete only when every chunk succeeded.
type Syncer struct {
	store     Store
	provider  Provider
	limiter   RateLimiter
	publisher Publisher
	cfg       Config
	logger    *log.Logger

	shutdownComplete chan struct{}
}

// New constructs a Syncer.
func New(store Store, provider Provider, limiter RateLimiter, publisher Publisher, cfg Config, opts ...Option) *Syncer {
	s := &Syncer{
		store:            store,
		provider:         provider,
		limiter:          limiter,
		publisher:        publisher,
		cfg:              cfg.withDefaults(),
		logger:           log.New(log.Writer(), "[syncer] ", log.LstdFlags),
		shutdownComplete: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the polling loop. It should be called in a goroutine.
func (s *Syncer) Start(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer func() {
		ticker.Stop()
		close(s.shutdownComplete)
	}()

	for {
		if err := s.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Printf("sync iteration error: %v", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Wait blocks until the loop started by Start has exited.
func (s *Syncer) Wait() {
	<-s.shutdownComplete
}

// RunOnce claims one batch of pending jobs and processes each to a terminal
// state. Jobs interrupted by context cancellation are left in_progress for
// operator reconciliation; this subsystem does not self-heal that state.
func (s *Syncer) RunOnce(ctx context.Context) error {
	jobs, err := s.store.PendingJobs(ctx, s.cfg.BatchSize)
	if err != nil {
		return fmt.Errorf("claim pending jobs: %w", err)
	}
	if len(jobs) == 0 {
		return nil
	}
	s.logger.Printf("processing %d pending jobs", len(jobs))

	for i := range jobs {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = errors.Join(err, ctxErr)
			break
		}
		if jobErr := s.runJob(ctx, jobs[i]); jobErr != nil {
			err = errors.Join(err, jobErr)
		}
	}
	return err
}

func (s *Syncer) runJob(ctx context.Context, job domain.FetchJob) error {
	start := time.Now()
	defer func() { jobDuration.Observe(time.Since(start).Seconds()) }()

	// Persist the claim first so a crash mid-fetch leaves a visible
	// in_progress job rather than silent requeue.
	if err := s.store.MarkJobInProgress(ctx, job.ID); err != nil {
		return fmt.Errorf("claim job %s: %w", job.ID, err)
	}

	if _, err := domain.ParseDataType(string(job.DataType)); err != nil {
		reason := err.Error()
		if markErr := s.store.MarkJobFailed(ctx, job.ID, reason); markErr != nil {
			return fmt.Errorf("fail job %s: %w", job.ID, markErr)
		}
		jobsProcessed.WithLabelValues(string(domain.JobStatusFailed)).Inc()
		s.publish(ctx, job, domain.JobStatusFailed, 0, 1, reason)
		return nil
	}

	var (
		itemsFetched int
		chunkErrs    []error
	)
	chunks := splitRange(job.StartDate, job.EndDate, s.cfg.ChunkWidth)
	for _, c := range chunks {
		fetched, err := s.fetchChunk(ctx, job, c.start, c.end)
		itemsFetched += fetched
		if err != nil {
			if ctx.Err() != nil {
				// Shutdown: leave the job in_progress.
				return ctx.Err()
			}
			s.logger.Printf("job %s chunk %s..%s failed: %v", job.ID, c.start.Format(time.DateOnly), c.end.Format(time.DateOnly), err)
			chunkFailures.Inc()
			chunkErrs = append(chunkErrs, err)
		}
	}

	if len(chunkErrs) > 0 {
		reason := summarizeChunkErrors(chunkErrs, len(chunks))
		if err := s.store.MarkJobFailed(ctx, job.ID, reason); err != nil {
			return fmt.Errorf("fail job %s: %w", job.ID, err)
		}
		jobsProcessed.WithLabelValues(string(domain.JobStatusFailed)).Inc()
		s.publish(ctx, job, domain.JobStatusFailed, itemsFetched, len(chunkErrs), reason)
		s.logger.Printf("job %s failed (%d/%d chunks) after fetching %d items", job.ID, len(chunkErrs), len(chunks), itemsFetched)
		return nil
	}

	if err := s.store.MarkJobCompleted(ctx, job.ID, itemsFetched); err != nil {
		return fmt.Errorf("complete job %s: %w", job.ID, err)
	}
	// Only a fully clean chunk sequence marks the range complete.
	if err := s.store.MarkRangeComplete(ctx, job.UserID, job.DataType, job.StartDate, job.EndDate); err != nil {
		return fmt.Errorf("mark range for job %s: %w", job.ID, err)
	}
	jobsProcessed.WithLabelValues(string(domain.JobStatusCompleted)).Inc()
	s.publish(ctx, job, domain.JobStatusCompleted, itemsFetched, 0, "")
	s.logger.Printf("job %s completed with %d items", job.ID, itemsFetched)
	return nil
}

// fetchChunk fetches one bounded sub-interval with retry and persists it
// immediately, so partial progress survives a later chunk failure. The
// returned count is the number of records fetched, including ones storage
// already had.
func (s *Syncer) fetchChunk(ctx context.Context, job domain.FetchJob, start, end time.Time) (int, error) {
	var lastErr error
	for attempt := 1; attempt <= s.cfg.MaxFetchAttempts; attempt++ {
		if err := s.limiter.Acquire(ctx); err != nil {
			return 0, err
		}
		chunkFetches.Inc()

		fetched, err := s.fetchAndIngest(ctx, job, start, end)
		if err == nil {
			return fetched, nil
		}
		lastErr = err

		if attempt < s.cfg.MaxFetchAttempts {
			if err := sleepCtx(ctx, backoffDelay(s.cfg.RetryBaseDelay, attempt)); err != nil {
				return 0, err
			}
		}
	}
	return 0, fmt.Errorf("after %d attempts: %w", s.cfg.MaxFetchAttempts, lastErr)
}

func (s *Syncer) fetchAndIngest(ctx context.Context, job domain.FetchJob, start, end time.Time) (int, error) {
	switch job.DataType {
	case domain.DataTypeWorkouts:
		records, err := s.provider.Workouts(ctx, job.UserID, start, end)
		if err != nil {
			return 0, err
		}
		if _, err := s.store.IngestWorkouts(ctx, job.UserID, records); err != nil {
			return 0, err
		}
		return len(records), nil
	case domain.DataTypeActivity:
		records, err := s.provider.DailyActivity(ctx, job.UserID, start, end)
		if err != nil {
			return 0, err
		}
		if _, err := s.store.IngestDailyActivity(ctx, job.UserID, records); err != nil {
			return 0, err
		}
		return len(records), nil
	}
	return 0, fmt.Errorf("unsupported data type: %q", job.DataType)
}

func (s *Syncer) publish(ctx context.Context, job domain.FetchJob, status domain.JobStatus, items, chunkErrors int, reason string) {
	result := events.JobResult{
		JobID:        job.ID,
		UserID:       job.UserID,
		DataType:     string(job.DataType),
		StartDate:    job.StartDate,
		EndDate:      job.EndDate,
		Status:       string(status),
		ItemsFetched: items,
		ChunkErrors:  chunkErrors,
		OccurredAt:   time.Now().UTC(),
		Error:        reason,
	}
	if err := s.publisher.PublishJobResult(ctx, result); err != nil {
		s.logger.Printf("publish result for job %s: %v", job.ID, err)
	}
}

type chunk struct {
	start time.Time
	end   time.Time
}

// splitRange cuts [start, end] into sequential sub-intervals no wider than
// width. Order matters: chunks are fetched oldest first.
func splitRange(start, end time.Time, width time.Duration) []chunk {
	var chunks []chunk
	for current := start; current.Before(end); {
		next := current.Add(width)
		if next.After(end) {
			next = end
		}
		chunks = append(chunks, chunk{start: current, end: next})
		current = next
	}
	return chunks
}

// backoffDelay grows geometrically per attempt, capped at one minute.
func backoffDelay(base time.Duration, attempt int) time.Duration {
	delay := base * time.Duration(1<<uint(attempt-1))
	if delay > time.Minute {
		delay = time.Minute
	}
	return delay
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func summarizeChunkErrors(errs []error, total int) string {
	parts := make([]string, 0, len(errs))
	for _, err := range errs {
		parts = append(parts, err.Error())
	}
	return fmt.Sprintf("%d of %d chunks failed: %s", len(errs), total, strings.Join(parts, "; "))
}
