package localstore

import (
	"time"

	"github.com/readbori/pulse-diary/internal/model"
)

var profileSpec = newSingletonSpec("user_profiles",
	[]string{"name", "birth_year", "occupation", "interests", "mbti", "created_at", "updated_at"},
	singletonSpec[model.UserProfile]{
		owner:    func(p *model.UserProfile) string { return p.OwnerID },
		setOwner: func(p *model.UserProfile, id string) { p.OwnerID = id },
		touch:    func(p *model.UserProfile, now time.Time) { p.UpdatedAt = now },
		values: func(p *model.UserProfile) ([]any, error) {
			interests := p.Interests
			if interests == nil {
				interests = []string{}
			}
			encoded, err := encodeJSON(interests)
			if err != nil {
				return nil, err
			}
			return []any{p.Name, p.BirthYear, p.Occupation, encoded, p.MBTI,
				toMillis(p.CreatedAt), toMillis(p.UpdatedAt)}, nil
		},
		scan: func(row scanner) (*model.UserProfile, error) {
			var (
				p                    model.UserProfile
				interests            string
				createdAt, updatedAt int64
			)
			if err := row.Scan(&p.OwnerID, &p.Name, &p.BirthYear, &p.Occupation, &interests, &p.MBTI,
				&createdAt, &updatedAt); err != nil {
				return nil, err
			}
			if err := decodeJSON(interests, &p.Interests); err != nil {
				return nil, err
			}
			if len(p.Interests) == 0 {
				p.Interests = nil
			}
			p.CreatedAt = fromMillis(createdAt)
			p.UpdatedAt = fromMillis(updatedAt)
			return &p, nil
		},
	})

var settingsSpec = newSingletonSpec("user_settings",
	[]string{"daily_reminder_enabled", "daily_reminder_time", "reminder_interval_days",
		"weekly_report_enabled", "weekly_report_day", "weekly_report_time", "report_frequency",
		"max_reports_per_week", "auto_delete_audio", "audio_delete_days", "language", "theme"},
	singletonSpec[model.UserSettings]{
		owner:    func(s *model.UserSettings) string { return s.OwnerID },
		setOwner: func(s *model.UserSettings, id string) { s.OwnerID = id },
		values: func(s *model.UserSettings) ([]any, error) {
			return []any{s.DailyReminderEnabled, s.DailyReminderTime, s.ReminderIntervalDays,
				s.WeeklyReportEnabled, s.WeeklyReportDay, s.WeeklyReportTime, string(s.ReportFrequency),
				s.MaxReportsPerWeek, s.AutoDeleteAudio, s.AudioDeleteDays, string(s.Language), string(s.Theme)}, nil
		},
		scan: func(row scanner) (*model.UserSettings, error) {
			var (
				s                     model.UserSettings
				freq, language, theme string
			)
			if err := row.Scan(&s.OwnerID, &s.DailyReminderEnabled, &s.DailyReminderTime, &s.ReminderIntervalDays,
				&s.WeeklyReportEnabled, &s.WeeklyReportDay, &s.WeeklyReportTime, &freq,
				&s.MaxReportsPerWeek, &s.AutoDeleteAudio, &s.AudioDeleteDays, &language, &theme); err != nil {
				return nil, err
			}
			s.ReportFrequency = model.ReportFrequency(freq)
			s.Language = model.Language(language)
			s.Theme = model.Theme(theme)
			return &s, nil
		},
	})

var streakSpec = newSingletonSpec("streak_data",
	[]string{"current_streak", "longest_streak", "last_record_date", "milestones"},
	singletonSpec[model.StreakData]{
		owner:    func(s *model.StreakData) string { return s.OwnerID },
		setOwner: func(s *model.StreakData, id string) { s.OwnerID = id },
		values: func(s *model.StreakData) ([]any, error) {
			milestones := s.Milestones
			if milestones == nil {
				milestones = []int{}
			}
			encoded, err := encodeJSON(milestones)
			if err != nil {
				return nil, err
			}
			return []any{s.CurrentStreak, s.LongestStreak, s.LastRecordDate, encoded}, nil
		},
		scan: func(row scanner) (*model.StreakData, error) {
			var (
				s          model.StreakData
				milestones string
			)
			if err := row.Scan(&s.OwnerID, &s.CurrentStreak, &s.LongestStreak, &s.LastRecordDate, &milestones); err != nil {
				return nil, err
			}
			s.Milestones = []int{}
			if err := decodeJSON(milestones, &s.Milestones); err != nil {
				return nil, err
			}
			return &s, nil
		},
	})
