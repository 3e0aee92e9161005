package wire

import (
	"time"

	"github.com/go-openapi/strfmt"

	"github.com/readbori/pulse-diary/internal/model"
)

// DateTime converts a local timestamp to its wire form.
func DateTime(t time.Time) strfmt.DateTime { return strfmt.DateTime(t.UTC()) }

// Time converts a wire timestamp to a local UTC time.
func Time(dt strfmt.DateTime) time.Time { return time.Time(dt).UTC() }

// RecordToWire drops the audio payload and always reports the row as synced,
// since a row that reached the remote store is by definition replicated.
func RecordToWire(r model.EmotionRecord) RecordRow {
	row := RecordRow{
		ID:         r.ID,
		UserID:     r.OwnerID,
		CreatedAt:  DateTime(r.CreatedAt),
		Transcript: r.Transcript,
		Duration:   r.Duration,
		Language:   r.Language,
		SyncStatus: string(model.SyncSynced),
	}
	if r.Emotions != nil {
		primary := string(r.Emotions.Primary)
		row.EmotionPrimary = &primary
		row.EmotionScores = make(map[string]float64, len(r.Emotions.Scores))
		for k, v := range r.Emotions.Scores {
			row.EmotionScores[string(k)] = v
		}
	}
	return row
}

// RecordFromWire builds a synced local record without audio. A null
// emotion_primary means no analysis; null scores become an empty map.
func RecordFromWire(row RecordRow) model.EmotionRecord {
	r := model.EmotionRecord{
		ID:         row.ID,
		OwnerID:    row.UserID,
		CreatedAt:  Time(row.CreatedAt),
		Transcript: row.Transcript,
		Duration:   row.Duration,
		Language:   row.Language,
		SyncState:  model.SyncSynced,
	}
	if row.EmotionPrimary != nil && *row.EmotionPrimary != "" {
		r.Emotions = &model.EmotionAnalysis{
			Primary: model.NormalizeEmotion(*row.EmotionPrimary),
			Scores:  emotionMap(row.EmotionScores),
		}
	}
	return r
}

// ReportToWire maps a report to its row.
func ReportToWire(r model.WeeklyReport) ReportRow {
	summary := make(map[string]float64, len(r.EmotionSummary))
	for k, v := range r.EmotionSummary {
		summary[string(k)] = v
	}
	return ReportRow{
		ID:             r.ID,
		UserID:         r.OwnerID,
		WeekStart:      DateTime(r.WeekStart),
		WeekEnd:        DateTime(r.WeekEnd),
		RecordCount:    r.RecordCount,
		EmotionSummary: summary,
		Content: &ReportContentRow{
			Summary:     r.Content.Summary,
			Patterns:    r.Content.Patterns,
			Empathy:     r.Content.Empathy,
			Positives:   r.Content.Positives,
			Suggestions: r.Content.Suggestions,
			Quote:       r.Content.Quote,
		},
		AIModel:   string(r.AIModel),
		CreatedAt: DateTime(r.CreatedAt),
	}
}

// ReportFromWire maps a row to a report. Missing summary and content become
// empty values and a missing model tag becomes model.DefaultAIModel.
func ReportFromWire(row ReportRow) model.WeeklyReport {
	r := model.WeeklyReport{
		ID:             row.ID,
		OwnerID:        row.UserID,
		WeekStart:      Time(row.WeekStart),
		WeekEnd:        Time(row.WeekEnd),
		RecordCount:    row.RecordCount,
		EmotionSummary: emotionMap(row.EmotionSummary),
		AIModel:        model.AIModel(row.AIModel),
		CreatedAt:      Time(row.CreatedAt),
	}
	if r.AIModel == "" {
		r.AIModel = model.DefaultAIModel
	}
	if c := row.Content; c != nil {
		r.Content = model.ReportContent{
			Summary:     c.Summary,
			Patterns:    c.Patterns,
			Empathy:     c.Empathy,
			Positives:   c.Positives,
			Suggestions: c.Suggestions,
			Quote:       c.Quote,
		}
	}
	return r
}

// ProfileToWire sends unset optional fields as null.
func ProfileToWire(p model.UserProfile) ProfileRow {
	row := ProfileRow{
		UserID:    p.OwnerID,
		Name:      p.Name,
		Interests: p.Interests,
		CreatedAt: DateTime(p.CreatedAt),
		UpdatedAt: DateTime(p.UpdatedAt),
	}
	if p.BirthYear != 0 {
		row.BirthYear = &p.BirthYear
	}
	if p.Occupation != "" {
		row.Occupation = &p.Occupation
	}
	if p.MBTI != "" {
		row.MBTI = &p.MBTI
	}
	if len(p.Interests) == 0 {
		row.Interests = nil
	}
	return row
}

// ProfileFromWire maps null optional fields to zero values.
func ProfileFromWire(row ProfileRow) model.UserProfile {
	p := model.UserProfile{
		OwnerID:   row.UserID,
		Name:      row.Name,
		CreatedAt: Time(row.CreatedAt),
		UpdatedAt: Time(row.UpdatedAt),
	}
	if row.BirthYear != nil {
		p.BirthYear = *row.BirthYear
	}
	if row.Occupation != nil {
		p.Occupation = *row.Occupation
	}
	if row.MBTI != nil {
		p.MBTI = *row.MBTI
	}
	if len(row.Interests) > 0 {
		p.Interests = row.Interests
	}
	return p
}

// SettingsToWire sends every column.
func SettingsToWire(s model.UserSettings) SettingsRow {
	freq := string(s.ReportFrequency)
	lang := string(s.Language)
	theme := string(s.Theme)
	return SettingsRow{
		UserID:               s.OwnerID,
		DailyReminderEnabled: &s.DailyReminderEnabled,
		DailyReminderTime:    &s.DailyReminderTime,
		ReminderIntervalDays: &s.ReminderIntervalDays,
		WeeklyReportEnabled:  &s.WeeklyReportEnabled,
		WeeklyReportDay:      &s.WeeklyReportDay,
		WeeklyReportTime:     &s.WeeklyReportTime,
		ReportFrequency:      &freq,
		MaxReportsPerWeek:    &s.MaxReportsPerWeek,
		AutoDeleteAudio:      &s.AutoDeleteAudio,
		AudioDeleteDays:      &s.AudioDeleteDays,
		Language:             &lang,
		Theme:                &theme,
	}
}

// SettingsFromWire fills each missing column from model.DefaultSettings.
func SettingsFromWire(row SettingsRow) model.UserSettings {
	s := model.DefaultSettings(row.UserID)
	setIf(&s.DailyReminderEnabled, row.DailyReminderEnabled)
	setIf(&s.DailyReminderTime, row.DailyReminderTime)
	setIf(&s.ReminderIntervalDays, row.ReminderIntervalDays)
	setIf(&s.WeeklyReportEnabled, row.WeeklyReportEnabled)
	setIf(&s.WeeklyReportDay, row.WeeklyReportDay)
	setIf(&s.WeeklyReportTime, row.WeeklyReportTime)
	setIf(&s.MaxReportsPerWeek, row.MaxReportsPerWeek)
	setIf(&s.AutoDeleteAudio, row.AutoDeleteAudio)
	setIf(&s.AudioDeleteDays, row.AudioDeleteDays)
	if row.ReportFrequency != nil {
		s.ReportFrequency = model.ReportFrequency(*row.ReportFrequency)
	}
	if row.Language != nil {
		s.Language = model.Language(*row.Language)
	}
	if row.Theme != nil {
		s.Theme = model.Theme(*row.Theme)
	}
	return s
}

// StreakToWire maps a streak to its row.
func StreakToWire(s model.StreakData) StreakRow {
	milestones := s.Milestones
	if milestones == nil {
		milestones = []int{}
	}
	row := StreakRow{
		UserID:        s.OwnerID,
		CurrentStreak: s.CurrentStreak,
		LongestStreak: s.LongestStreak,
		Milestones:    milestones,
	}
	if s.LastRecordDate != "" {
		row.LastRecordDate = &s.LastRecordDate
	}
	return row
}

// StreakFromWire maps a null last date to "" and null milestones to an
// empty slice.
func StreakFromWire(row StreakRow) model.StreakData {
	s := model.StreakData{
		OwnerID:       row.UserID,
		CurrentStreak: row.CurrentStreak,
		LongestStreak: row.LongestStreak,
		Milestones:    []int{},
	}
	if row.LastRecordDate != nil {
		s.LastRecordDate = *row.LastRecordDate
	}
	if row.Milestones != nil {
		s.Milestones = row.Milestones
	}
	return s
}

func emotionMap(in map[string]float64) map[model.EmotionType]float64 {
	out := make(map[model.EmotionType]float64, len(in))
	for k, v := range in {
		out[model.NormalizeEmotion(k)] += v
	}
	return out
}

func setIf[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}
