// Package backup exports one owner's data to a portable JSON document and
// restores such a document into the Local Store.
package backup

import (
	"encoding/json"
	"errors"
	"io"
	"time"
)

// FormatVersion is the only document version this package reads and writes.
const FormatVersion = 1

// DefaultAppVersion is written when the caller does not supply one.
const DefaultAppVersion = "1.0.0"

// Import failures. Both are returned before anything is written.
var (
	ErrBadFormat   = errors.New("bad file format")
	ErrCorruptDate = errors.New("corrupt date")
)

// Document is the backup file. Dates are ISO-8601 strings.
type Document struct {
	Version    int    `json:"version"`
	ExportedAt string `json:"exportedAt"`
	AppVersion string `json:"appVersion"`
	Data       Data   `json:"data"`
}

// Data holds the five collections. Singleton collections have at most one
// element.
type Data struct {
	Records  []RecordEntry   `json:"records"`
	Reports  []ReportEntry   `json:"reports"`
	Settings []SettingsEntry `json:"settings"`
	Streaks  []StreakEntry   `json:"streaks"`
	Profiles []ProfileEntry  `json:"profiles"`
}

type RecordEntry struct {
	ID                 string         `json:"id"`
	UserID             string         `json:"userId"`
	CreatedAt          string         `json:"createdAt"`
	Transcript         string         `json:"transcript"`
	Duration           float64        `json:"duration"`
	Language           string         `json:"language"`
	Emotions           *EmotionsEntry `json:"emotions,omitempty"`
	SyncStatus         string         `json:"syncStatus"`
	AudioPayloadBase64 string         `json:"audioPayloadBase64,omitempty"`
}

type EmotionsEntry struct {
	Primary string             `json:"primary"`
	Scores  map[string]float64 `json:"scores"`
}

type ReportEntry struct {
	ID             string             `json:"id"`
	UserID         string             `json:"userId"`
	WeekStart      string             `json:"weekStart"`
	WeekEnd        string             `json:"weekEnd"`
	RecordCount    int                `json:"recordCount"`
	EmotionSummary map[string]float64 `json:"emotionSummary"`
	Content        ContentEntry       `json:"content"`
	AIModel        string             `json:"aiModel"`
	CreatedAt      string             `json:"createdAt"`
}

type ContentEntry struct {
	Summary     string `json:"summary"`
	Patterns    string `json:"patterns"`
	Empathy     string `json:"empathy"`
	Positives   string `json:"positives"`
	Suggestions string `json:"suggestions"`
	Quote       string `json:"quote,omitempty"`
}

type ProfileEntry struct {
	UserID     string   `json:"userId"`
	Name       string   `json:"name"`
	BirthYear  int      `json:"birthYear,omitempty"`
	Occupation string   `json:"occupation,omitempty"`
	Interests  []string `json:"interests,omitempty"`
	MBTI       string   `json:"mbti,omitempty"`
	CreatedAt  string   `json:"createdAt"`
	UpdatedAt  string   `json:"updatedAt"`
}

type SettingsEntry struct {
	UserID               string `json:"userId"`
	DailyReminderEnabled bool   `json:"dailyReminderEnabled"`
	DailyReminderTime    string `json:"dailyReminderTime"`
	ReminderIntervalDays int    `json:"reminderIntervalDays"`
	WeeklyReportEnabled  bool   `json:"weeklyReportEnabled"`
	WeeklyReportDay      int    `json:"weeklyReportDay"`
	WeeklyReportTime     string `json:"weeklyReportTime"`
	ReportFrequency      string `json:"reportFrequency"`
	MaxReportsPerWeek    int    `json:"maxReportsPerWeek"`
	AutoDeleteAudio      bool   `json:"autoDeleteAudio"`
	AudioDeleteDays      int    `json:"audioDeleteDays"`
	Language             string `json:"language"`
	Theme                string `json:"theme"`
}

type StreakEntry struct {
	UserID         string `json:"userId"`
	CurrentStreak  int    `json:"currentStreak"`
	LongestStreak  int    `json:"longestStreak"`
	LastRecordDate string `json:"lastRecordDate"`
	Milestones     []int  `json:"milestones"`
}

// Encode writes the document as indented JSON.
func (d *Document) Encode(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(d)
}

// FileName is the suggested file name for a backup taken at t.
func FileName(t time.Time) string {
	return "pulse-diary-backup-" + t.UTC().Format("2006-01-02") + ".json"
}
