package backup

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-openapi/strfmt"

	"github.com/readbori/pulse-diary/internal/localstore"
	"github.com/readbori/pulse-diary/internal/model"
)

// Result counts the rows restored by Import.
type Result struct {
	Records int
	Reports int
}

// decoded is a fully validated document ready to be written.
type decoded struct {
	records  []model.EmotionRecord
	reports  []model.WeeklyReport
	profiles []model.UserProfile
	settings []model.UserSettings
	streaks  []model.StreakData
}

// Import reads a backup document from r and upserts every row it holds. The
// whole document is validated first; on ErrBadFormat or ErrCorruptDate the
// store is not touched. Rows sharing a key with existing local rows replace
// them.
func Import(ctx context.Context, store *localstore.Store, r io.Reader) (Result, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrBadFormat, err)
	}
	d, err := decode(raw)
	if err != nil {
		return Result{}, err
	}

	err = store.InTx(ctx, func(tx *localstore.Tx) error {
		if err := tx.Records().BulkPut(ctx, d.records); err != nil {
			return err
		}
		if err := tx.Reports().BulkPut(ctx, d.reports); err != nil {
			return err
		}
		for i := range d.settings {
			if err := tx.Settings().Put(ctx, &d.settings[i]); err != nil {
				return err
			}
		}
		for i := range d.streaks {
			if err := tx.Streaks().Put(ctx, &d.streaks[i]); err != nil {
				return err
			}
		}
		for i := range d.profiles {
			if err := tx.Profiles().Put(ctx, &d.profiles[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return Result{Records: len(d.records), Reports: len(d.reports)}, nil
}

func badFormat(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrBadFormat, fmt.Sprintf(format, args...))
}

// decode validates the envelope, then every row.
func decode(raw []byte) (*decoded, error) {
	var header struct {
		Version    json.RawMessage            `json:"version"`
		ExportedAt json.RawMessage            `json:"exportedAt"`
		AppVersion json.RawMessage            `json:"appVersion"`
		Data       map[string]json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &header); err != nil {
		return nil, badFormat("not a JSON object: %v", err)
	}
	// Any JSON number equal to the format version is accepted, so 1.0 matches.
	var version float64
	if err := json.Unmarshal(header.Version, &version); err != nil || version != FormatVersion {
		return nil, badFormat("unsupported version %s", header.Version)
	}
	for name, field := range map[string]json.RawMessage{"exportedAt": header.ExportedAt, "appVersion": header.AppVersion} {
		var s string
		if err := json.Unmarshal(field, &s); err != nil {
			return nil, badFormat("%s must be a string", name)
		}
	}
	if header.Data == nil {
		return nil, badFormat("missing data")
	}

	collections := map[string][]json.RawMessage{}
	for _, name := range []string{"records", "reports", "settings", "streaks", "profiles"} {
		field := bytes.TrimSpace(header.Data[name])
		if len(field) == 0 || field[0] != '[' {
			return nil, badFormat("data.%s is not a list", name)
		}
		var items []json.RawMessage
		if err := json.Unmarshal(field, &items); err != nil {
			return nil, badFormat("data.%s: %v", name, err)
		}
		collections[name] = items
	}

	d := &decoded{}
	for i, item := range collections["records"] {
		var e RecordEntry
		if err := strictDecode(item, &e); err != nil {
			return nil, badFormat("records[%d]: %v", i, err)
		}
		rec, err := e.toModel(i)
		if err != nil {
			return nil, err
		}
		d.records = append(d.records, rec)
	}
	for i, item := range collections["reports"] {
		var e ReportEntry
		if err := strictDecode(item, &e); err != nil {
			return nil, badFormat("reports[%d]: %v", i, err)
		}
		rep, err := e.toModel(i)
		if err != nil {
			return nil, err
		}
		d.reports = append(d.reports, rep)
	}
	for i, item := range collections["profiles"] {
		var e ProfileEntry
		if err := strictDecode(item, &e); err != nil {
			return nil, badFormat("profiles[%d]: %v", i, err)
		}
		p, err := e.toModel(i)
		if err != nil {
			return nil, err
		}
		d.profiles = append(d.profiles, p)
	}
	for i, item := range collections["settings"] {
		// Fields absent from the entry keep their defaults.
		e := settingsEntry(model.DefaultSettings(""))
		if err := strictDecode(item, &e); err != nil {
			return nil, badFormat("settings[%d]: %v", i, err)
		}
		if e.UserID == "" {
			return nil, badFormat("settings[%d]: missing userId", i)
		}
		d.settings = append(d.settings, e.toModel())
	}
	for i, item := range collections["streaks"] {
		var e StreakEntry
		if err := strictDecode(item, &e); err != nil {
			return nil, badFormat("streaks[%d]: %v", i, err)
		}
		if e.UserID == "" {
			return nil, badFormat("streaks[%d]: missing userId", i)
		}
		d.streaks = append(d.streaks, e.toModel())
	}
	return d, nil
}

// strictDecode decodes one JSON object; anything else is rejected.
func strictDecode(raw json.RawMessage, v any) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return fmt.Errorf("not an object")
	}
	return json.Unmarshal(raw, v)
}

// parseDate parses an ISO-8601 timestamp. Empty strings are corrupt too.
func parseDate(field, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("%w: %s is empty", ErrCorruptDate, field)
	}
	dt, err := strfmt.ParseDateTime(value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s %q", ErrCorruptDate, field, value)
	}
	return time.Time(dt).UTC(), nil
}

func (e RecordEntry) toModel(i int) (model.EmotionRecord, error) {
	if e.ID == "" || e.UserID == "" {
		return model.EmotionRecord{}, badFormat("records[%d]: missing id or userId", i)
	}
	createdAt, err := parseDate(fmt.Sprintf("records[%d].createdAt", i), e.CreatedAt)
	if err != nil {
		return model.EmotionRecord{}, err
	}
	rec := model.EmotionRecord{
		ID:         e.ID,
		OwnerID:    e.UserID,
		CreatedAt:  createdAt,
		Transcript: e.Transcript,
		Duration:   e.Duration,
		Language:   e.Language,
		SyncState:  model.ParseSyncState(e.SyncStatus),
	}
	if e.Emotions != nil {
		rec.Emotions = &model.EmotionAnalysis{
			Primary: model.NormalizeEmotion(e.Emotions.Primary),
			Scores:  make(map[model.EmotionType]float64, len(e.Emotions.Scores)),
		}
		for k, v := range e.Emotions.Scores {
			rec.Emotions.Scores[model.NormalizeEmotion(k)] = v
		}
	}
	if e.AudioPayloadBase64 != "" {
		payload := e.AudioPayloadBase64
		// Accept data URLs as produced by browsers.
		if _, after, ok := strings.Cut(payload, ","); ok {
			payload = after
		}
		audio, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return model.EmotionRecord{}, badFormat("records[%d].audioPayloadBase64: %v", i, err)
		}
		rec.Audio = audio
	}
	return rec, nil
}

func (e ReportEntry) toModel(i int) (model.WeeklyReport, error) {
	if e.ID == "" || e.UserID == "" {
		return model.WeeklyReport{}, badFormat("reports[%d]: missing id or userId", i)
	}
	var dates [3]time.Time
	for j, f := range []struct{ name, value string }{
		{"weekStart", e.WeekStart}, {"weekEnd", e.WeekEnd}, {"createdAt", e.CreatedAt},
	} {
		t, err := parseDate(fmt.Sprintf("reports[%d].%s", i, f.name), f.value)
		if err != nil {
			return model.WeeklyReport{}, err
		}
		dates[j] = t
	}
	rep := model.WeeklyReport{
		ID:             e.ID,
		OwnerID:        e.UserID,
		WeekStart:      dates[0],
		WeekEnd:        dates[1],
		RecordCount:    e.RecordCount,
		EmotionSummary: make(map[model.EmotionType]float64, len(e.EmotionSummary)),
		Content:        model.ReportContent(e.Content),
		AIModel:        model.AIModel(e.AIModel),
		CreatedAt:      dates[2],
	}
	if rep.AIModel == "" {
		rep.AIModel = model.DefaultAIModel
	}
	for k, v := range e.EmotionSummary {
		rep.EmotionSummary[model.NormalizeEmotion(k)] = v
	}
	return rep, nil
}

func (e ProfileEntry) toModel(i int) (model.UserProfile, error) {
	if e.UserID == "" {
		return model.UserProfile{}, badFormat("profiles[%d]: missing userId", i)
	}
	createdAt, err := parseDate(fmt.Sprintf("profiles[%d].createdAt", i), e.CreatedAt)
	if err != nil {
		return model.UserProfile{}, err
	}
	updatedAt := createdAt
	if e.UpdatedAt != "" {
		if updatedAt, err = parseDate(fmt.Sprintf("profiles[%d].updatedAt", i), e.UpdatedAt); err != nil {
			return model.UserProfile{}, err
		}
	}
	return model.UserProfile{
		OwnerID:    e.UserID,
		Name:       e.Name,
		BirthYear:  e.BirthYear,
		Occupation: e.Occupation,
		Interests:  e.Interests,
		MBTI:       e.MBTI,
		CreatedAt:  createdAt,
		UpdatedAt:  updatedAt,
	}, nil
}

func (e SettingsEntry) toModel() model.UserSettings {
	return model.UserSettings{
		OwnerID:              e.UserID,
		DailyReminderEnabled: e.DailyReminderEnabled,
		DailyReminderTime:    e.DailyReminderTime,
		ReminderIntervalDays: e.ReminderIntervalDays,
		WeeklyReportEnabled:  e.WeeklyReportEnabled,
		WeeklyReportDay:      e.WeeklyReportDay,
		WeeklyReportTime:     e.WeeklyReportTime,
		ReportFrequency:      model.ReportFrequency(e.ReportFrequency),
		MaxReportsPerWeek:    e.MaxReportsPerWeek,
		AutoDeleteAudio:      e.AutoDeleteAudio,
		AudioDeleteDays:      e.AudioDeleteDays,
		Language:             model.Language(e.Language),
		Theme:                model.Theme(e.Theme),
	}
}

func (e StreakEntry) toModel() model.StreakData {
	milestones := e.Milestones
	if milestones == nil {
		milestones = []int{}
	}
	return model.StreakData{
		OwnerID:        e.UserID,
		CurrentStreak:  e.CurrentStreak,
		LongestStreak:  e.LongestStreak,
		LastRecordDate: e.LastRecordDate,
		Milestones:     milestones,
	}
}
