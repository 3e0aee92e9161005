package localstore

import (
	"context"
	"database/sql"
	"fmt"
)

// EnsureSchema creates the five entity tables if they do not exist.
// Timestamps are unix milliseconds so that range scans sort numerically.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS emotion_records (
            id TEXT PRIMARY KEY,
            owner_id TEXT NOT NULL,
            created_at INTEGER NOT NULL,
            transcript TEXT NOT NULL,
            duration REAL NOT NULL DEFAULT 0,
            language TEXT NOT NULL,
            emotion_primary TEXT,
            emotion_scores TEXT,
            audio BLOB,
            sync_state TEXT NOT NULL DEFAULT 'local',
            revision INTEGER NOT NULL DEFAULT 0
        );`,
		`CREATE INDEX IF NOT EXISTS emotion_records_owner_created_idx ON emotion_records(owner_id, created_at);`,
		`CREATE TABLE IF NOT EXISTS weekly_reports (
            id TEXT PRIMARY KEY,
            owner_id TEXT NOT NULL,
            week_start INTEGER NOT NULL,
            week_end INTEGER NOT NULL,
            record_count INTEGER NOT NULL DEFAULT 0,
            emotion_summary TEXT NOT NULL DEFAULT '{}',
            content TEXT NOT NULL DEFAULT '{}',
            ai_model TEXT NOT NULL,
            created_at INTEGER NOT NULL
        );`,
		`CREATE INDEX IF NOT EXISTS weekly_reports_owner_week_idx ON weekly_reports(owner_id, week_start);`,
		`CREATE TABLE IF NOT EXISTS user_profiles (
            owner_id TEXT PRIMARY KEY,
            name TEXT NOT NULL,
            birth_year INTEGER NOT NULL DEFAULT 0,
            occupation TEXT NOT NULL DEFAULT '',
            interests TEXT NOT NULL DEFAULT '[]',
            mbti TEXT NOT NULL DEFAULT '',
            created_at INTEGER NOT NULL,
            updated_at INTEGER NOT NULL
        );`,
		`CREATE TABLE IF NOT EXISTS user_settings (
            owner_id TEXT PRIMARY KEY,
            daily_reminder_enabled BOOLEAN NOT NULL,
            daily_reminder_time TEXT NOT NULL,
            reminder_interval_days INTEGER NOT NULL,
            weekly_report_enabled BOOLEAN NOT NULL,
            weekly_report_day INTEGER NOT NULL,
            weekly_report_time TEXT NOT NULL,
            report_frequency TEXT NOT NULL,
            max_reports_per_week INTEGER NOT NULL,
            auto_delete_audio BOOLEAN NOT NULL,
            audio_delete_days INTEGER NOT NULL,
            language TEXT NOT NULL,
            theme TEXT NOT NULL
        );`,
		`CREATE TABLE IF NOT EXISTS streak_data (
            owner_id TEXT PRIMARY KEY,
            current_streak INTEGER NOT NULL,
            longest_streak INTEGER NOT NULL,
            last_record_date TEXT NOT NULL DEFAULT '',
            milestones TEXT NOT NULL DEFAULT '[]'
        );`,
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return addColumnIfMissing(ctx, db, "emotion_records", "revision", "INTEGER NOT NULL DEFAULT 0")
}

// addColumnIfMissing upgrades tables created before column existed.
func addColumnIfMissing(ctx context.Context, db *sql.DB, table, column, decl string) error {
	var n int
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`, table, column).Scan(&n)
	if err != nil || n > 0 {
		return err
	}
	_, err = db.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, decl))
	return err
}
