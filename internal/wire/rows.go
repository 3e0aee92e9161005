// Package wire maps local entities to the rows stored by the remote backend
// and back. Column names are the snake_case form of the local field names,
// with OwnerID renamed to user_id. Dates travel as ISO-8601 strings.
package wire

import "github.com/go-openapi/strfmt"

// Remote collection names.
const (
	TableRecords  = "emotion_records"
	TableReports  = "weekly_reports"
	TableProfiles = "user_profiles"
	TableSettings = "user_settings"
	TableStreaks  = "streak_data"
)

// RecordRow is an EmotionRecord on the wire. The audio payload is absent.
type RecordRow struct {
	ID             string             `json:"id"`
	UserID         string             `json:"user_id"`
	CreatedAt      strfmt.DateTime    `json:"created_at"`
	Transcript     string             `json:"transcript"`
	Duration       float64            `json:"duration"`
	Language       string             `json:"language"`
	EmotionPrimary *string            `json:"emotion_primary"`
	EmotionScores  map[string]float64 `json:"emotion_scores"`
	SyncStatus     string             `json:"sync_status"`
}

// ReportContentRow is the JSON body of a report.
type ReportContentRow struct {
	Summary     string `json:"summary"`
	Patterns    string `json:"patterns"`
	Empathy     string `json:"empathy"`
	Positives   string `json:"positives"`
	Suggestions string `json:"suggestions"`
	Quote       string `json:"quote,omitempty"`
}

// ReportRow is a WeeklyReport on the wire.
type ReportRow struct {
	ID             string             `json:"id"`
	UserID         string             `json:"user_id"`
	WeekStart      strfmt.DateTime    `json:"week_start"`
	WeekEnd        strfmt.DateTime    `json:"week_end"`
	RecordCount    int                `json:"record_count"`
	EmotionSummary map[string]float64 `json:"emotion_summary"`
	Content        *ReportContentRow  `json:"content"`
	AIModel        string             `json:"ai_model"`
	CreatedAt      strfmt.DateTime    `json:"created_at"`
}

// ProfileRow is a UserProfile on the wire.
type ProfileRow struct {
	UserID     string          `json:"user_id"`
	Name       string          `json:"name"`
	BirthYear  *int            `json:"birth_year"`
	Occupation *string         `json:"occupation"`
	Interests  []string        `json:"interests"`
	MBTI       *string         `json:"mbti"`
	CreatedAt  strfmt.DateTime `json:"created_at"`
	UpdatedAt  strfmt.DateTime `json:"updated_at"`
}

// SettingsRow is UserSettings on the wire. Every column is optional so a
// missing value can be told apart from a zero value and defaulted.
type SettingsRow struct {
	UserID               string  `json:"user_id"`
	DailyReminderEnabled *bool   `json:"daily_reminder_enabled"`
	DailyReminderTime    *string `json:"daily_reminder_time"`
	ReminderIntervalDays *int    `json:"reminder_interval_days"`
	WeeklyReportEnabled  *bool   `json:"weekly_report_enabled"`
	WeeklyReportDay      *int    `json:"weekly_report_day"`
	WeeklyReportTime     *string `json:"weekly_report_time"`
	ReportFrequency      *string `json:"report_frequency"`
	MaxReportsPerWeek    *int    `json:"max_reports_per_week"`
	AutoDeleteAudio      *bool   `json:"auto_delete_audio"`
	AudioDeleteDays      *int    `json:"audio_delete_days"`
	Language             *string `json:"language"`
	Theme                *string `json:"theme"`
}

// StreakRow is StreakData on the wire.
type StreakRow struct {
	UserID         string  `json:"user_id"`
	CurrentStreak  int     `json:"current_streak"`
	LongestStreak  int     `json:"longest_streak"`
	LastRecordDate *string `json:"last_record_date"`
	Milestones     []int   `json:"milestones"`
}
