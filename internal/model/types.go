package model

import "time"

// SyncState tracks whether an EmotionRecord has been confirmed by the remote store.
type SyncState string

const (
	SyncLocal  SyncState = "local"
	SyncSynced SyncState = "synced"
)

// ParseSyncState maps unknown values to SyncLocal so that an unconfirmed row
// is pushed again rather than silently treated as replicated.
func ParseSyncState(s string) SyncState {
	if SyncState(s) == SyncSynced {
		return SyncSynced
	}
	return SyncLocal
}

// EmotionAnalysis is attached to a record once the analysis collaborator returns.
type EmotionAnalysis struct {
	Primary EmotionType
	Scores  map[EmotionType]float64
}

// EmotionRecord is a single journal entry.
type EmotionRecord struct {
	ID         string
	OwnerID    string
	CreatedAt  time.Time
	Transcript string
	Duration   float64 // seconds
	Language   string
	Emotions   *EmotionAnalysis
	Audio      []byte // never leaves the device
	SyncState  SyncState
	Revision   int64 // local write counter, never leaves the device
}

// ReportContent is the generated body of a WeeklyReport.
type ReportContent struct {
	Summary     string `json:"summary"`
	Patterns    string `json:"patterns"`
	Empathy     string `json:"empathy"`
	Positives   string `json:"positives"`
	Suggestions string `json:"suggestions"`
	Quote       string `json:"quote,omitempty"`
}

// WeeklyReport summarises the records of one period.
type WeeklyReport struct {
	ID             string
	OwnerID        string
	WeekStart      time.Time
	WeekEnd        time.Time
	RecordCount    int
	EmotionSummary map[EmotionType]float64
	Content        ReportContent
	AIModel        AIModel
	CreatedAt      time.Time
}

// UserProfile is the singleton onboarding profile of an owner.
type UserProfile struct {
	OwnerID    string
	Name       string
	BirthYear  int // 0 when unknown
	Occupation string
	Interests  []string
	MBTI       string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// UserSettings holds reminder and report preferences.
type UserSettings struct {
	OwnerID              string
	DailyReminderEnabled bool
	DailyReminderTime    string // HH:MM
	ReminderIntervalDays int
	WeeklyReportEnabled  bool
	WeeklyReportDay      int // 0 = Sunday
	WeeklyReportTime     string
	ReportFrequency      ReportFrequency
	MaxReportsPerWeek    int
	AutoDeleteAudio      bool
	AudioDeleteDays      int
	Language             Language
	Theme                Theme
}

// DefaultSettings returns the settings a new owner starts with.
func DefaultSettings(ownerID string) UserSettings {
	return UserSettings{
		OwnerID:              ownerID,
		DailyReminderEnabled: false,
		DailyReminderTime:    "21:00",
		ReminderIntervalDays: 1,
		WeeklyReportEnabled:  true,
		WeeklyReportDay:      0,
		WeeklyReportTime:     "09:00",
		ReportFrequency:      FrequencyWeekly,
		MaxReportsPerWeek:    1,
		AutoDeleteAudio:      false,
		AudioDeleteDays:      30,
		Language:             LanguageKorean,
		Theme:                ThemeLight,
	}
}

// StreakData counts consecutive recording days.
type StreakData struct {
	OwnerID        string
	CurrentStreak  int
	LongestStreak  int
	LastRecordDate string // YYYY-MM-DD, empty before the first record
	Milestones     []int
}
