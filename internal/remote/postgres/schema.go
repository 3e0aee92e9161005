package postgres

import (
	"context"

	"github.com/jmoiron/sqlx"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS emotion_records (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL,
    transcript TEXT NOT NULL DEFAULT '',
    duration DOUBLE PRECISION NOT NULL DEFAULT 0,
    language TEXT NOT NULL DEFAULT '',
    emotion_primary TEXT,
    emotion_scores JSONB,
    sync_status TEXT NOT NULL DEFAULT 'synced'
);
CREATE INDEX IF NOT EXISTS emotion_records_user_idx ON emotion_records(user_id, created_at);

CREATE TABLE IF NOT EXISTS weekly_reports (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    week_start TIMESTAMPTZ NOT NULL,
    week_end TIMESTAMPTZ NOT NULL,
    record_count INTEGER NOT NULL DEFAULT 0,
    emotion_summary JSONB,
    content JSONB,
    ai_model TEXT,
    created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS weekly_reports_user_idx ON weekly_reports(user_id, week_start);

CREATE TABLE IF NOT EXISTS user_profiles (
    user_id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    birth_year INTEGER,
    occupation TEXT,
    interests JSONB,
    mbti TEXT,
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS user_settings (
    user_id TEXT PRIMARY KEY,
    daily_reminder_enabled BOOLEAN,
    daily_reminder_time TEXT,
    reminder_interval_days INTEGER,
    weekly_report_enabled BOOLEAN,
    weekly_report_day INTEGER,
    weekly_report_time TEXT,
    report_frequency TEXT,
    max_reports_per_week INTEGER,
    auto_delete_audio BOOLEAN,
    audio_delete_days INTEGER,
    language TEXT,
    theme TEXT
);

CREATE TABLE IF NOT EXISTS streak_data (
    user_id TEXT PRIMARY KEY,
    current_streak INTEGER NOT NULL DEFAULT 0,
    longest_streak INTEGER NOT NULL DEFAULT 0,
    last_record_date TEXT,
    milestones JSONB
);
`

// EnsureSchema creates the remote tables if they do not exist. Every
// statement is idempotent.
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, schemaSQL)
	return err
}
