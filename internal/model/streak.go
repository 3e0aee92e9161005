package model

import (
	"slices"
	"time"
)

// DateLayout is the calendar-day format of StreakData.LastRecordDate.
const DateLayout = "2006-01-02"

// StreakMilestones are the streak lengths that are celebrated once each.
var StreakMilestones = []int{7, 14, 30, 50, 100, 365}

// NewStreak returns the streak of an owner whose first record is on day.
func NewStreak(ownerID string, day time.Time) StreakData {
	return StreakData{
		OwnerID:        ownerID,
		CurrentStreak:  1,
		LongestStreak:  1,
		LastRecordDate: day.Format(DateLayout),
		Milestones:     []int{},
	}
}

// RecordDay advances the streak for a record written on day and reports
// whether anything changed. Days are compared in day's location.
func (s *StreakData) RecordDay(day time.Time) bool {
	today := day.Format(DateLayout)
	if s.LastRecordDate == today {
		return false
	}

	yesterday := day.AddDate(0, 0, -1).Format(DateLayout)
	if s.LastRecordDate == yesterday {
		s.CurrentStreak++
	} else {
		s.CurrentStreak = 1
	}
	if s.CurrentStreak > s.LongestStreak {
		s.LongestStreak = s.CurrentStreak
	}
	s.LastRecordDate = today

	if slices.Contains(StreakMilestones, s.CurrentStreak) && !slices.Contains(s.Milestones, s.CurrentStreak) {
		s.Milestones = append(s.Milestones, s.CurrentStreak)
	}
	return true
}
