//go:build integration

package postgres

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"

	"example.com/telemetry/internal/domain"
)

func setupRepository(t *testing.T) (context.Context, *Repository) {
	t.Helper()
	ctx := context.Background()

	pg, err := postgrescontainer.RunContainer(ctx,
		postgrescontainer.WithDatabase("telemetry"),
		postgrescontainer.WithUsername("platform"),
		postgrescontainer.WithPassword("platform"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Terminate(ctx) })

	connStr, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	require.NoError(t, waitForDatabase(ctx, connStr))

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	require.NoError(t, Migrate(ctx, pool))

	return ctx, NewRepository(pool)
}

func TestRepositoryIdempotentIngest(t *testing.T) {
	ctx, repo := setupRepository(t)
	userID := uuid.NewString()

	records := []domain.Workout{
		{
			ID:        "wk-1",
			UserID:    userID,
			Title:     "Morning Run",
			TimeStart: time.Date(2024, time.March, 1, 6, 0, 0, 0, time.UTC),
			TimeEnd:   time.Date(2024, time.March, 1, 7, 0, 0, 0, time.UTC),
			Calories:  450,
			DistanceM: 8000,
			Raw:       json.RawMessage(`{"id":"wk-1","future_field":true}`),
		},
		{
			ID:        "wk-2",
			UserID:    userID,
			TimeStart: time.Date(2024, time.March, 2, 6, 0, 0, 0, time.UTC),
		},
		{
			ID:        "wk-3",
			UserID:    userID,
			TimeStart: time.Date(2024, time.March, 3, 6, 0, 0, 0, time.UTC),
		},
	}

	inserted, err := repo.IngestWorkouts(ctx, userID, records)
	require.NoError(t, err)
	require.Equal(t, 3, inserted)

	// Re-ingesting the same records is a no-op, statement by statement.
	inserted, err = repo.IngestWorkouts(ctx, userID, records)
	require.NoError(t, err)
	require.Equal(t, 0, inserted)

	// A batch mixing known and new records inserts only the new ones.
	mixed := []domain.Workout{records[0], {
		ID:        "wk-4",
		UserID:    userID,
		TimeStart: time.Date(2024, time.March, 4, 6, 0, 0, 0, time.UTC),
	}}
	inserted, err = repo.IngestWorkouts(ctx, userID, mixed)
	require.NoError(t, err)
	require.Equal(t, 1, inserted)

	listed, err := repo.ListWorkouts(ctx, userID,
		time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, time.April, 1, 0, 0, 0, 0, time.UTC),
	)
	require.NoError(t, err)
	require.Len(t, listed, 4)
	require.Equal(t, "Morning Run", listed[0].Title)
	require.JSONEq(t, `{"id":"wk-1","future_field":true}`, string(listed[0].Raw))
}

func TestRepositoryIngestDailyActivity(t *testing.T) {
	ctx, repo := setupRepository(t)
	userID := uuid.NewString()

	records := []domain.DailyActivity{
		{
			ID:     "da-2024-03-01",
			UserID: userID,
			Date:   time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC),
			Steps:  10432,
		},
		{
			ID:     "da-2024-03-02",
			UserID: userID,
			Date:   time.Date(2024, time.March, 2, 0, 0, 0, 0, time.UTC),
			Steps:  8000,
		},
	}

	inserted, err := repo.IngestDailyActivity(ctx, userID, records)
	require.NoError(t, err)
	require.Equal(t, 2, inserted)

	listed, err := repo.ListDailyActivity(ctx, userID,
		time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, time.March, 3, 0, 0, 0, 0, time.UTC),
	)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	require.Equal(t, 10432, listed[0].Steps)

	// Ingest drives the shared Prometheus counter.
	value := counterValue(t, "telemetry_sync_persistence_records_ingested_total", "data_type", "activity")
	require.GreaterOrEqual(t, value, 2.0)
}

func TestRepositoryRangeContainment(t *testing.T) {
	ctx, repo := setupRepository(t)
	userID := uuid.NewString()
	require.NoError(t, repo.EnsureUser(ctx, userID))

	markStart := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	markEnd := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, repo.MarkRangeComplete(ctx, userID, domain.DataTypeWorkouts, markStart, markEnd))

	// The exact interval and any sub-interval count as covered.
	covered, err := repo.IsRangeComplete(ctx, userID, domain.DataTypeWorkouts, markStart, markEnd)
	require.NoError(t, err)
	require.True(t, covered)

	covered, err = repo.IsRangeComplete(ctx, userID, domain.DataTypeWorkouts,
		markStart.AddDate(0, 0, 10), markEnd.AddDate(0, 0, -10))
	require.NoError(t, err)
	require.True(t, covered)

	// An interval sticking out either side is not covered.
	covered, err = repo.IsRangeComplete(ctx, userID, domain.DataTypeWorkouts,
		markStart.AddDate(0, 0, -1), markEnd)
	require.NoError(t, err)
	require.False(t, covered)

	covered, err = repo.IsRangeComplete(ctx, userID, domain.DataTypeWorkouts,
		markStart, markEnd.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.False(t, covered)

	// Completeness is tracked per data type.
	covered, err = repo.IsRangeComplete(ctx, userID, domain.DataTypeActivity, markStart, markEnd)
	require.NoError(t, err)
	require.False(t, covered)

	// Re-marking the same interval is idempotent.
	require.NoError(t, repo.MarkRangeComplete(ctx, userID, domain.DataTypeWorkouts, markStart, markEnd))
}

func TestRepositoryJobLifecycle(t *testing.T) {
	ctx, repo := setupRepository(t)
	userID := uuid.NewString()
	require.NoError(t, repo.EnsureUser(ctx, userID))

	start := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC)

	first := domain.FetchJob{
		ID:          uuid.NewString(),
		UserID:      userID,
		DataType:    domain.DataTypeWorkouts,
		StartDate:   start,
		EndDate:     end,
		Status:      domain.JobStatusPending,
		RequestedAt: time.Now().UTC().Add(-time.Minute),
	}
	require.NoError(t, repo.CreateJob(ctx, first))

	// A second active job for the same interval trips the partial unique
	// index and comes back as the duplicate sentinel, not a raw pg error.
	duplicate := first
	duplicate.ID = uuid.NewString()
	require.ErrorIs(t, repo.CreateJob(ctx, duplicate), domain.ErrDuplicateJob)

	second := domain.FetchJob{
		ID:          uuid.NewString(),
		UserID:      userID,
		DataType:    domain.DataTypeActivity,
		StartDate:   start,
		EndDate:     end,
		Status:      domain.JobStatusPending,
		RequestedAt: time.Now().UTC(),
	}
	require.NoError(t, repo.CreateJob(ctx, second))

	// Pending jobs come back oldest first.
	pending, err := repo.PendingJobs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	require.Equal(t, first.ID, pending[0].ID)
	require.Equal(t, second.ID, pending[1].ID)

	active, err := repo.FindActiveJob(ctx, userID, domain.DataTypeWorkouts, start, end)
	require.NoError(t, err)
	require.NotNil(t, active)
	require.Equal(t, first.ID, active.ID)

	require.NoError(t, repo.MarkJobInProgress(ctx, first.ID))
	// Transitions are monotonic: claiming twice fails.
	require.Error(t, repo.MarkJobInProgress(ctx, first.ID))

	require.NoError(t, repo.MarkJobCompleted(ctx, first.ID, 17))
	// A terminal job cannot fail afterwards.
	require.Error(t, repo.MarkJobFailed(ctx, first.ID, "too late"))

	// Completed jobs are no longer active, so a fresh fetch can be scheduled.
	active, err = repo.FindActiveJob(ctx, userID, domain.DataTypeWorkouts, start, end)
	require.NoError(t, err)
	require.Nil(t, active)

	require.NoError(t, repo.MarkJobInProgress(ctx, second.ID))
	require.NoError(t, repo.MarkJobFailed(ctx, second.ID, "upstream timeout"))

	report, err := repo.StatusReport(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), report.JobCounts[domain.JobStatusCompleted])
	require.Equal(t, int64(1), report.JobCounts[domain.JobStatusFailed])
	require.NotNil(t, report.LatestJob)
	require.Equal(t, second.ID, report.LatestJob.ID)
	require.NotNil(t, report.LatestJob.ErrorMessage)
	require.Equal(t, "upstream timeout", *report.LatestJob.ErrorMessage)
}

func counterValue(t *testing.T, name, labelName, labelValue string) float64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			if matchLabel(metric, labelName, labelValue) {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func matchLabel(metric *dto.Metric, name, value string) bool {
	for _, label := range metric.GetLabel() {
		if label.GetName() == name && label.GetValue() == value {
			return true
		}
	}
	return false
}

func waitForDatabase(ctx context.Context, connStr string) error {
	deadline := time.Now().Add(30 * time.Second)
	for {
		pool, err := pgxpool.New(ctx, connStr)
		if err == nil {
			err = pool.Ping(ctx)
			pool.Close()
			if err == nil {
				return nil
			}
		}
		if time.Now().After(deadline) {
			return err
		}
		time.Sleep(time.Second)
	}
}
