package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schema holds the idempotent DDL for the sync service. Statements use IF NOT
// EXISTS so Migrate can run on every startup.
const schema = `
CREATE TABLE IF NOT EXISTS users (
    user_id    TEXT PRIMARY KEY,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS workouts (
    workout_id      TEXT PRIMARY KEY,
    user_id         TEXT NOT NULL REFERENCES users(user_id),
    title           TEXT,
    time_start      TIMESTAMPTZ NOT NULL,
    time_end        TIMESTAMPTZ,
    calendar_date   TEXT,
    calories        DOUBLE PRECISION,
    distance_m      DOUBLE PRECISION,
    duration_min    INTEGER,
    average_hr      DOUBLE PRECISION,
    max_hr          DOUBLE PRECISION,
    moving_time_sec INTEGER,
    sport           JSONB,
    source          JSONB,
    raw             JSONB,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_workouts_user_time ON workouts (user_id, time_start);

CREATE TABLE IF NOT EXISTS daily_activity (
    activity_id      TEXT PRIMARY KEY,
    user_id          TEXT NOT NULL REFERENCES users(user_id),
    date             TIMESTAMPTZ NOT NULL,
    calendar_date    TEXT,
    calories_total   DOUBLE PRECISION,
    calories_active  DOUBLE PRECISION,
    steps            INTEGER,
    daily_movement_m DOUBLE PRECISION,
    low_min          INTEGER,
    medium_min       INTEGER,
    high_min         INTEGER,
    source           JSONB,
    raw              JSONB,
    created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_daily_activity_user_date ON daily_activity (user_id, date);

CREATE TABLE IF NOT EXISTS fetch_jobs (
    job_id        TEXT PRIMARY KEY,
    user_id       TEXT NOT NULL,
    data_type     TEXT NOT NULL,
    start_date    TIMESTAMPTZ NOT NULL,
    end_date      TIMESTAMPTZ NOT NULL,
    status        TEXT NOT NULL,
    requested_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    completed_at  TIMESTAMPTZ,
    items_fetched INTEGER NOT NULL DEFAULT 0,
    error_message TEXT
);

CREATE INDEX IF NOT EXISTS idx_fetch_jobs_status_requested ON fetch_jobs (status, requested_at);

-- At most one non-terminal job per exact (user, type, interval).
CREATE UNIQUE INDEX IF NOT EXISTS idx_fetch_jobs_active
    ON fetch_jobs (user_id, data_type, start_date, end_date)
    WHERE status IN ('pending', 'in_progress');

CREATE TABLE IF NOT EXISTS range_marks (
    user_id    TEXT NOT NULL,
    data_type  TEXT NOT NULL,
    start_date TIMESTAMPTZ NOT NULL,
    end_date   TIMESTAMPTZ NOT NULL,
    complete   BOOLEAN NOT NULL DEFAULT FALSE,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (user_id, data_type, start_date, end_date)
);

CREATE INDEX IF NOT EXISTS idx_range_marks_lookup ON range_marks (user_id, data_type, start_date, end_date) WHERE complete;
`

// Migrate applies the schema. Safe to call on every start.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
