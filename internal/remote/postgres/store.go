package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/readbori/pulse-diary/internal/remote"
	"github.com/readbori/pulse-diary/internal/wire"
)

// SQL statements kept as constants for clarity and reuse.
const (
	upsertRecordSQL = `
INSERT INTO emotion_records (id, user_id, created_at, transcript, duration, language, emotion_primary, emotion_scores, sync_status)
VALUES (:id, :user_id, :created_at, :transcript, :duration, :language, :emotion_primary, :emotion_scores, :sync_status)
ON CONFLICT (id) DO UPDATE SET
    user_id = EXCLUDED.user_id,
    created_at = EXCLUDED.created_at,
    transcript = EXCLUDED.transcript,
    duration = EXCLUDED.duration,
    language = EXCLUDED.language,
    emotion_primary = EXCLUDED.emotion_primary,
    emotion_scores = EXCLUDED.emotion_scores,
    sync_status = EXCLUDED.sync_status`
	listRecordsSQL  = `SELECT id, user_id, created_at, transcript, duration, language, emotion_primary, emotion_scores, sync_status FROM emotion_records WHERE user_id = $1 ORDER BY created_at DESC, id`
	deleteRecordSQL = `DELETE FROM emotion_records WHERE id = $1`

	upsertReportSQL = `
INSERT INTO weekly_reports (id, user_id, week_start, week_end, record_count, emotion_summary, content, ai_model, created_at)
VALUES (:id, :user_id, :week_start, :week_end, :record_count, :emotion_summary, :content, :ai_model, :created_at)
ON CONFLICT (id) DO UPDATE SET
    user_id = EXCLUDED.user_id,
    week_start = EXCLUDED.week_start,
    week_end = EXCLUDED.week_end,
    record_count = EXCLUDED.record_count,
    emotion_summary = EXCLUDED.emotion_summary,
    content = EXCLUDED.content,
    ai_model = EXCLUDED.ai_model,
    created_at = EXCLUDED.created_at`
	listReportsSQL  = `SELECT id, user_id, week_start, week_end, record_count, emotion_summary, content, ai_model, created_at FROM weekly_reports WHERE user_id = $1 ORDER BY week_start DESC, id`
	deleteReportSQL = `DELETE FROM weekly_reports WHERE id = $1`

	upsertProfileSQL = `
INSERT INTO user_profiles (user_id, name, birth_year, occupation, interests, mbti, created_at, updated_at)
VALUES (:user_id, :name, :birth_year, :occupation, :interests, :mbti, :created_at, :updated_at)
ON CONFLICT (user_id) DO UPDATE SET
    name = EXCLUDED.name,
    birth_year = EXCLUDED.birth_year,
    occupation = EXCLUDED.occupation,
    interests = EXCLUDED.interests,
    mbti = EXCLUDED.mbti,
    created_at = EXCLUDED.created_at,
    updated_at = EXCLUDED.updated_at`
	getProfileSQL = `SELECT user_id, name, birth_year, occupation, interests, mbti, created_at, updated_at FROM user_profiles WHERE user_id = $1`

	upsertSettingsSQL = `
INSERT INTO user_settings (user_id, daily_reminder_enabled, daily_reminder_time, reminder_interval_days, weekly_report_enabled,
    weekly_report_day, weekly_report_time, report_frequency, max_reports_per_week, auto_delete_audio, audio_delete_days, language, theme)
VALUES (:user_id, :daily_reminder_enabled, :daily_reminder_time, :reminder_interval_days, :weekly_report_enabled,
    :weekly_report_day, :weekly_report_time, :report_frequency, :max_reports_per_week, :auto_delete_audio, :audio_delete_days, :language, :theme)
ON CONFLICT (user_id) DO UPDATE SET
    daily_reminder_enabled = EXCLUDED.daily_reminder_enabled,
    daily_reminder_time = EXCLUDED.daily_reminder_time,
    reminder_interval_days = EXCLUDED.reminder_interval_days,
    weekly_report_enabled = EXCLUDED.weekly_report_enabled,
    weekly_report_day = EXCLUDED.weekly_report_day,
    weekly_report_time = EXCLUDED.weekly_report_time,
    report_frequency = EXCLUDED.report_frequency,
    max_reports_per_week = EXCLUDED.max_reports_per_week,
    auto_delete_audio = EXCLUDED.auto_delete_audio,
    audio_delete_days = EXCLUDED.audio_delete_days,
    language = EXCLUDED.language,
    theme = EXCLUDED.theme`
	getSettingsSQL = `SELECT user_id, daily_reminder_enabled, daily_reminder_time, reminder_interval_days, weekly_report_enabled,
    weekly_report_day, weekly_report_time, report_frequency, max_reports_per_week, auto_delete_audio, audio_delete_days, language, theme
FROM user_settings WHERE user_id = $1`

	upsertStreakSQL = `
INSERT INTO streak_data (user_id, current_streak, longest_streak, last_record_date, milestones)
VALUES (:user_id, :current_streak, :longest_streak, :last_record_date, :milestones)
ON CONFLICT (user_id) DO UPDATE SET
    current_streak = EXCLUDED.current_streak,
    longest_streak = EXCLUDED.longest_streak,
    last_record_date = EXCLUDED.last_record_date,
    milestones = EXCLUDED.milestones`
	getStreakSQL = `SELECT user_id, current_streak, longest_streak, last_record_date, milestones FROM streak_data WHERE user_id = $1`
)

// Store is the Postgres remote store.
type Store struct{ db *sqlx.DB }

var _ remote.Store = (*Store)(nil)

// New constructs a Store over an open connection.
func New(db *sqlx.DB) *Store { return &Store{db: db} }

func (s *Store) Records() remote.Rows[wire.RecordRow]         { return &records{db: s.db} }
func (s *Store) Reports() remote.Rows[wire.ReportRow]         { return &reports{db: s.db} }
func (s *Store) Profiles() remote.Singleton[wire.ProfileRow]  { return &profiles{db: s.db} }
func (s *Store) Settings() remote.Singleton[wire.SettingsRow] { return &settings{db: s.db} }
func (s *Store) Streaks() remote.Singleton[wire.StreakRow]    { return &streaks{db: s.db} }

// Close closes the connection pool.
func (s *Store) Close() error { return s.db.Close() }

// --- Records ---

type recordRow struct {
	ID             string         `db:"id"`
	UserID         string         `db:"user_id"`
	CreatedAt      time.Time      `db:"created_at"`
	Transcript     string         `db:"transcript"`
	Duration       float64        `db:"duration"`
	Language       string         `db:"language"`
	EmotionPrimary sql.NullString `db:"emotion_primary"`
	EmotionScores  []byte         `db:"emotion_scores"`
	SyncStatus     string         `db:"sync_status"`
}

type records struct{ db *sqlx.DB }

func (r *records) Upsert(ctx context.Context, w *wire.RecordRow) error {
	row := recordRow{
		ID:         w.ID,
		UserID:     w.UserID,
		CreatedAt:  wire.Time(w.CreatedAt),
		Transcript: w.Transcript,
		Duration:   w.Duration,
		Language:   w.Language,
		SyncStatus: w.SyncStatus,
	}
	if w.EmotionPrimary != nil {
		row.EmotionPrimary = sql.NullString{String: *w.EmotionPrimary, Valid: true}
	}
	var err error
	if row.EmotionScores, err = jsonOrNull(w.EmotionScores); err != nil {
		return err
	}
	_, err = r.db.NamedExecContext(ctx, upsertRecordSQL, row)
	return classify("upsert record", err)
}

func (r *records) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, deleteRecordSQL, id)
	return classify("delete record", err)
}

func (r *records) ListByOwner(ctx context.Context, owner string) ([]wire.RecordRow, error) {
	var rows []recordRow
	if err := r.db.SelectContext(ctx, &rows, listRecordsSQL, owner); err != nil {
		return nil, classify("list records", err)
	}
	out := make([]wire.RecordRow, 0, len(rows))
	for _, row := range rows {
		w := wire.RecordRow{
			ID:         row.ID,
			UserID:     row.UserID,
			CreatedAt:  wire.DateTime(row.CreatedAt),
			Transcript: row.Transcript,
			Duration:   row.Duration,
			Language:   row.Language,
			SyncStatus: row.SyncStatus,
		}
		if row.EmotionPrimary.Valid {
			w.EmotionPrimary = &row.EmotionPrimary.String
		}
		if err := unmarshalIfSet(row.EmotionScores, &w.EmotionScores); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, nil
}

// --- Reports ---

type reportRow struct {
	ID             string         `db:"id"`
	UserID         string         `db:"user_id"`
	WeekStart      time.Time      `db:"week_start"`
	WeekEnd        time.Time      `db:"week_end"`
	RecordCount    int            `db:"record_count"`
	EmotionSummary []byte         `db:"emotion_summary"`
	Content        []byte         `db:"content"`
	AIModel        sql.NullString `db:"ai_model"`
	CreatedAt      time.Time      `db:"created_at"`
}

type reports struct{ db *sqlx.DB }

func (r *reports) Upsert(ctx context.Context, w *wire.ReportRow) error {
	row := reportRow{
		ID:          w.ID,
		UserID:      w.UserID,
		WeekStart:   wire.Time(w.WeekStart),
		WeekEnd:     wire.Time(w.WeekEnd),
		RecordCount: w.RecordCount,
		AIModel:     sql.NullString{String: w.AIModel, Valid: w.AIModel != ""},
		CreatedAt:   wire.Time(w.CreatedAt),
	}
	var err error
	if row.EmotionSummary, err = jsonOrNull(w.EmotionSummary); err != nil {
		return err
	}
	if w.Content != nil {
		if row.Content, err = json.Marshal(w.Content); err != nil {
			return err
		}
	}
	_, err = r.db.NamedExecContext(ctx, upsertReportSQL, row)
	return classify("upsert report", err)
}

func (r *reports) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, deleteReportSQL, id)
	return classify("delete report", err)
}

func (r *reports) ListByOwner(ctx context.Context, owner string) ([]wire.ReportRow, error) {
	var rows []reportRow
	if err := r.db.SelectContext(ctx, &rows, listReportsSQL, owner); err != nil {
		return nil, classify("list reports", err)
	}
	out := make([]wire.ReportRow, 0, len(rows))
	for _, row := range rows {
		w := wire.ReportRow{
			ID:          row.ID,
			UserID:      row.UserID,
			WeekStart:   wire.DateTime(row.WeekStart),
			WeekEnd:     wire.DateTime(row.WeekEnd),
			RecordCount: row.RecordCount,
			AIModel:     row.AIModel.String,
			CreatedAt:   wire.DateTime(row.CreatedAt),
		}
		if err := unmarshalIfSet(row.EmotionSummary, &w.EmotionSummary); err != nil {
			return nil, err
		}
		if len(row.Content) > 0 {
			w.Content = &wire.ReportContentRow{}
			if err := json.Unmarshal(row.Content, w.Content); err != nil {
				return nil, err
			}
		}
		out = append(out, w)
	}
	return out, nil
}

// --- Profiles ---

type profileRow struct {
	UserID     string         `db:"user_id"`
	Name       string         `db:"name"`
	BirthYear  sql.NullInt64  `db:"birth_year"`
	Occupation sql.NullString `db:"occupation"`
	Interests  []byte         `db:"interests"`
	MBTI       sql.NullString `db:"mbti"`
	CreatedAt  time.Time      `db:"created_at"`
	UpdatedAt  time.Time      `db:"updated_at"`
}

type profiles struct{ db *sqlx.DB }

func (p *profiles) Upsert(ctx context.Context, w *wire.ProfileRow) error {
	row := profileRow{
		UserID:     w.UserID,
		Name:       w.Name,
		Occupation: nullString(w.Occupation),
		MBTI:       nullString(w.MBTI),
		CreatedAt:  wire.Time(w.CreatedAt),
		UpdatedAt:  wire.Time(w.UpdatedAt),
	}
	if w.BirthYear != nil {
		row.BirthYear = sql.NullInt64{Int64: int64(*w.BirthYear), Valid: true}
	}
	var err error
	if row.Interests, err = jsonOrNull(w.Interests); err != nil {
		return err
	}
	_, err = p.db.NamedExecContext(ctx, upsertProfileSQL, row)
	return classify("upsert profile", err)
}

func (p *profiles) Get(ctx context.Context, owner string) (*wire.ProfileRow, error) {
	var row profileRow
	if err := p.db.GetContext(ctx, &row, getProfileSQL, owner); err != nil {
		return nil, notFoundOr("get profile", err)
	}
	w := &wire.ProfileRow{
		UserID:     row.UserID,
		Name:       row.Name,
		Occupation: stringPtr(row.Occupation),
		MBTI:       stringPtr(row.MBTI),
		CreatedAt:  wire.DateTime(row.CreatedAt),
		UpdatedAt:  wire.DateTime(row.UpdatedAt),
	}
	if row.BirthYear.Valid {
		y := int(row.BirthYear.Int64)
		w.BirthYear = &y
	}
	if err := unmarshalIfSet(row.Interests, &w.Interests); err != nil {
		return nil, err
	}
	return w, nil
}

// --- Settings ---

type settingsRow struct {
	UserID               string         `db:"user_id"`
	DailyReminderEnabled sql.NullBool   `db:"daily_reminder_enabled"`
	DailyReminderTime    sql.NullString `db:"daily_reminder_time"`
	ReminderIntervalDays sql.NullInt64  `db:"reminder_interval_days"`
	WeeklyReportEnabled  sql.NullBool   `db:"weekly_report_enabled"`
	WeeklyReportDay      sql.NullInt64  `db:"weekly_report_day"`
	WeeklyReportTime     sql.NullString `db:"weekly_report_time"`
	ReportFrequency      sql.NullString `db:"report_frequency"`
	MaxReportsPerWeek    sql.NullInt64  `db:"max_reports_per_week"`
	AutoDeleteAudio      sql.NullBool   `db:"auto_delete_audio"`
	AudioDeleteDays      sql.NullInt64  `db:"audio_delete_days"`
	Language             sql.NullString `db:"language"`
	Theme                sql.NullString `db:"theme"`
}

type settings struct{ db *sqlx.DB }

func (s *settings) Upsert(ctx context.Context, w *wire.SettingsRow) error {
	row := settingsRow{
		UserID:               w.UserID,
		DailyReminderEnabled: nullBool(w.DailyReminderEnabled),
		DailyReminderTime:    nullString(w.DailyReminderTime),
		ReminderIntervalDays: nullInt(w.ReminderIntervalDays),
		WeeklyReportEnabled:  nullBool(w.WeeklyReportEnabled),
		WeeklyReportDay:      nullInt(w.WeeklyReportDay),
		WeeklyReportTime:     nullString(w.WeeklyReportTime),
		ReportFrequency:      nullString(w.ReportFrequency),
		MaxReportsPerWeek:    nullInt(w.MaxReportsPerWeek),
		AutoDeleteAudio:      nullBool(w.AutoDeleteAudio),
		AudioDeleteDays:      nullInt(w.AudioDeleteDays),
		Language:             nullString(w.Language),
		Theme:                nullString(w.Theme),
	}
	_, err := s.db.NamedExecContext(ctx, upsertSettingsSQL, row)
	return classify("upsert settings", err)
}

func (s *settings) Get(ctx context.Context, owner string) (*wire.SettingsRow, error) {
	var row settingsRow
	if err := s.db.GetContext(ctx, &row, getSettingsSQL, owner); err != nil {
		return nil, notFoundOr("get settings", err)
	}
	return &wire.SettingsRow{
		UserID:               row.UserID,
		DailyReminderEnabled: boolPtr(row.DailyReminderEnabled),
		DailyReminderTime:    stringPtr(row.DailyReminderTime),
		ReminderIntervalDays: intPtr(row.ReminderIntervalDays),
		WeeklyReportEnabled:  boolPtr(row.WeeklyReportEnabled),
		WeeklyReportDay:      intPtr(row.WeeklyReportDay),
		WeeklyReportTime:     stringPtr(row.WeeklyReportTime),
		ReportFrequency:      stringPtr(row.ReportFrequency),
		MaxReportsPerWeek:    intPtr(row.MaxReportsPerWeek),
		AutoDeleteAudio:      boolPtr(row.AutoDeleteAudio),
		AudioDeleteDays:      intPtr(row.AudioDeleteDays),
		Language:             stringPtr(row.Language),
		Theme:                stringPtr(row.Theme),
	}, nil
}

// --- Streaks ---

type streakRow struct {
	UserID         string         `db:"user_id"`
	CurrentStreak  int            `db:"current_streak"`
	LongestStreak  int            `db:"longest_streak"`
	LastRecordDate sql.NullString `db:"last_record_date"`
	Milestones     []byte         `db:"milestones"`
}

type streaks struct{ db *sqlx.DB }

func (s *streaks) Upsert(ctx context.Context, w *wire.StreakRow) error {
	row := streakRow{
		UserID:         w.UserID,
		CurrentStreak:  w.CurrentStreak,
		LongestStreak:  w.LongestStreak,
		LastRecordDate: nullString(w.LastRecordDate),
	}
	var err error
	if row.Milestones, err = jsonOrNull(w.Milestones); err != nil {
		return err
	}
	_, err = s.db.NamedExecContext(ctx, upsertStreakSQL, row)
	return classify("upsert streak", err)
}

func (s *streaks) Get(ctx context.Context, owner string) (*wire.StreakRow, error) {
	var row streakRow
	if err := s.db.GetContext(ctx, &row, getStreakSQL, owner); err != nil {
		return nil, notFoundOr("get streak", err)
	}
	w := &wire.StreakRow{
		UserID:         row.UserID,
		CurrentStreak:  row.CurrentStreak,
		LongestStreak:  row.LongestStreak,
		LastRecordDate: stringPtr(row.LastRecordDate),
	}
	if err := unmarshalIfSet(row.Milestones, &w.Milestones); err != nil {
		return nil, err
	}
	return w, nil
}

// --- helpers ---

func notFoundOr(op string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return remote.ErrNotFound
	}
	return classify(op, err)
}

// jsonOrNull encodes v for a JSONB column, mapping nil maps and slices to NULL.
func jsonOrNull[T any](v T) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil || string(b) == "null" {
		return nil, err
	}
	return b, nil
}

func unmarshalIfSet(b []byte, v any) error {
	if len(b) == 0 {
		return nil
	}
	return json.Unmarshal(b, v)
}

func nullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func nullBool(p *bool) sql.NullBool {
	if p == nil {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: *p, Valid: true}
}

func nullInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

func stringPtr(n sql.NullString) *string {
	if !n.Valid {
		return nil
	}
	return &n.String
}

func boolPtr(n sql.NullBool) *bool {
	if !n.Valid {
		return nil
	}
	return &n.Bool
}

func intPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}
