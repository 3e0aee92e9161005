package backup

import (
	"context"
	"encoding/base64"
	"errors"
	"time"

	"github.com/readbori/pulse-diary/internal/localstore"
	"github.com/readbori/pulse-diary/internal/model"
	"github.com/readbori/pulse-diary/internal/wire"
)

// ExportOptions tunes Export. Zero values pick defaults.
type ExportOptions struct {
	AppVersion string
	Now        time.Time
}

// Export snapshots every row of owner. The reads share one transaction so the
// document is consistent.
func Export(ctx context.Context, store *localstore.Store, owner string, opts ExportOptions) (*Document, error) {
	if opts.AppVersion == "" {
		opts.AppVersion = DefaultAppVersion
	}
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}
	doc := &Document{
		Version:    FormatVersion,
		ExportedAt: isoDate(opts.Now),
		AppVersion: opts.AppVersion,
		Data: Data{
			Records:  []RecordEntry{},
			Reports:  []ReportEntry{},
			Settings: []SettingsEntry{},
			Streaks:  []StreakEntry{},
			Profiles: []ProfileEntry{},
		},
	}

	err := store.InTx(ctx, func(tx *localstore.Tx) error {
		recs, err := tx.Records().ListByOwner(ctx, owner)
		if err != nil {
			return err
		}
		for _, r := range recs {
			doc.Data.Records = append(doc.Data.Records, recordEntry(r))
		}

		reps, err := tx.Reports().ListByOwner(ctx, owner)
		if err != nil {
			return err
		}
		for _, r := range reps {
			doc.Data.Reports = append(doc.Data.Reports, reportEntry(r))
		}

		profile, err := tx.Profiles().Get(ctx, owner)
		if err = optional(err); err != nil {
			return err
		} else if profile != nil {
			doc.Data.Profiles = append(doc.Data.Profiles, profileEntry(*profile))
		}

		settings, err := tx.Settings().Get(ctx, owner)
		if err = optional(err); err != nil {
			return err
		} else if settings != nil {
			doc.Data.Settings = append(doc.Data.Settings, settingsEntry(*settings))
		}

		streak, err := tx.Streaks().Get(ctx, owner)
		if err = optional(err); err != nil {
			return err
		} else if streak != nil {
			doc.Data.Streaks = append(doc.Data.Streaks, streakEntry(*streak))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func optional(err error) error {
	if errors.Is(err, model.ErrNotFound) {
		return nil
	}
	return err
}

func isoDate(t time.Time) string { return wire.DateTime(t).String() }

func recordEntry(r model.EmotionRecord) RecordEntry {
	e := RecordEntry{
		ID:         r.ID,
		UserID:     r.OwnerID,
		CreatedAt:  isoDate(r.CreatedAt),
		Transcript: r.Transcript,
		Duration:   r.Duration,
		Language:   r.Language,
		SyncStatus: string(r.SyncState),
	}
	if r.Emotions != nil {
		e.Emotions = &EmotionsEntry{Primary: string(r.Emotions.Primary), Scores: map[string]float64{}}
		for k, v := range r.Emotions.Scores {
			e.Emotions.Scores[string(k)] = v
		}
	}
	if len(r.Audio) > 0 {
		e.AudioPayloadBase64 = base64.StdEncoding.EncodeToString(r.Audio)
	}
	return e
}

func reportEntry(r model.WeeklyReport) ReportEntry {
	e := ReportEntry{
		ID:             r.ID,
		UserID:         r.OwnerID,
		WeekStart:      isoDate(r.WeekStart),
		WeekEnd:        isoDate(r.WeekEnd),
		RecordCount:    r.RecordCount,
		EmotionSummary: map[string]float64{},
		Content:        ContentEntry(r.Content),
		AIModel:        string(r.AIModel),
		CreatedAt:      isoDate(r.CreatedAt),
	}
	for k, v := range r.EmotionSummary {
		e.EmotionSummary[string(k)] = v
	}
	return e
}

func profileEntry(p model.UserProfile) ProfileEntry {
	return ProfileEntry{
		UserID:     p.OwnerID,
		Name:       p.Name,
		BirthYear:  p.BirthYear,
		Occupation: p.Occupation,
		Interests:  p.Interests,
		MBTI:       p.MBTI,
		CreatedAt:  isoDate(p.CreatedAt),
		UpdatedAt:  isoDate(p.UpdatedAt),
	}
}

func settingsEntry(s model.UserSettings) SettingsEntry {
	return SettingsEntry{
		UserID:               s.OwnerID,
		DailyReminderEnabled: s.DailyReminderEnabled,
		DailyReminderTime:    s.DailyReminderTime,
		ReminderIntervalDays: s.ReminderIntervalDays,
		WeeklyReportEnabled:  s.WeeklyReportEnabled,
		WeeklyReportDay:      s.WeeklyReportDay,
		WeeklyReportTime:     s.WeeklyReportTime,
		ReportFrequency:      string(s.ReportFrequency),
		MaxReportsPerWeek:    s.MaxReportsPerWeek,
		AutoDeleteAudio:      s.AutoDeleteAudio,
		AudioDeleteDays:      s.AudioDeleteDays,
		Language:             string(s.Language),
		Theme:                string(s.Theme),
	}
}

func streakEntry(s model.StreakData) StreakEntry {
	milestones := s.Milestones
	if milestones == nil {
		milestones = []int{}
	}
	return StreakEntry{
		UserID:         s.OwnerID,
		CurrentStreak:  s.CurrentStreak,
		LongestStreak:  s.LongestStreak,
		LastRecordDate: s.LastRecordDate,
		Milestones:     milestones,
	}
}
