// Package remotetest is a compliance suite shared by every remote.Store
// implementation.
package remotetest

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/readbori/pulse-diary/internal/model"
	"github.com/readbori/pulse-diary/internal/remote"
	"github.com/readbori/pulse-diary/internal/wire"
)

// Run exercises a remote.Store. makeStore must return a store that is either
// empty or shared only with rows of other owners; the suite uses fresh ids.
func Run(t *testing.T, makeStore func(t *testing.T) remote.Store) {
	t.Helper()

	s := makeStore(t)
	ctx := context.Background()
	owner := "u-" + uuid.NewString()
	other := "u-" + uuid.NewString()
	at := time.Date(2025, 3, 10, 9, 30, 15, 123_000_000, time.UTC)

	t.Run("records upsert is idempotent", func(t *testing.T) {
		rec := model.EmotionRecord{
			ID: uuid.NewString(), OwnerID: owner, CreatedAt: at, Transcript: "first", Duration: 4.5, Language: "ko",
			Emotions: &model.EmotionAnalysis{Primary: model.EmotionCalm, Scores: map[model.EmotionType]float64{model.EmotionCalm: 1}},
		}
		row := wire.RecordToWire(rec)
		require.NoError(t, s.Records().Upsert(ctx, &row))
		require.NoError(t, s.Records().Upsert(ctx, &row))

		otherRow := wire.RecordToWire(model.EmotionRecord{ID: uuid.NewString(), OwnerID: other, CreatedAt: at, Language: "en"})
		require.NoError(t, s.Records().Upsert(ctx, &otherRow))

		got, err := s.Records().ListByOwner(ctx, owner)
		require.NoError(t, err)
		require.Len(t, got, 1)
		rec.SyncState = model.SyncSynced
		assert.Equal(t, rec, wire.RecordFromWire(got[0]))

		row.Transcript = "second"
		require.NoError(t, s.Records().Upsert(ctx, &row))
		got, err = s.Records().ListByOwner(ctx, owner)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "second", got[0].Transcript)

		require.NoError(t, s.Records().Delete(ctx, row.ID))
		require.NoError(t, s.Records().Delete(ctx, row.ID))
		got, err = s.Records().ListByOwner(ctx, owner)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("reports", func(t *testing.T) {
		rep := model.WeeklyReport{
			ID: uuid.NewString(), OwnerID: owner, WeekStart: at, WeekEnd: at.Add(6 * 24 * time.Hour),
			RecordCount: 3, EmotionSummary: map[model.EmotionType]float64{model.EmotionHope: 3},
			Content: model.ReportContent{Summary: "s", Quote: "q"}, AIModel: model.ModelSonnet, CreatedAt: at,
		}
		row := wire.ReportToWire(rep)
		require.NoError(t, s.Reports().Upsert(ctx, &row))
		require.NoError(t, s.Reports().Upsert(ctx, &row))

		got, err := s.Reports().ListByOwner(ctx, owner)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, rep, wire.ReportFromWire(got[0]))

		require.NoError(t, s.Reports().Delete(ctx, rep.ID))
		got, err = s.Reports().ListByOwner(ctx, owner)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("singletons", func(t *testing.T) {
		_, err := s.Streaks().Get(ctx, owner)
		assert.ErrorIs(t, err, remote.ErrNotFound)

		profile := model.UserProfile{OwnerID: owner, Name: "Mina", BirthYear: 1990, Interests: []string{"tea"}, CreatedAt: at, UpdatedAt: at}
		prow := wire.ProfileToWire(profile)
		require.NoError(t, s.Profiles().Upsert(ctx, &prow))
		profile.Name = "Mina K"
		prow = wire.ProfileToWire(profile)
		require.NoError(t, s.Profiles().Upsert(ctx, &prow))
		gotProfile, err := s.Profiles().Get(ctx, owner)
		require.NoError(t, err)
		assert.Equal(t, profile, wire.ProfileFromWire(*gotProfile))

		settings := model.DefaultSettings(owner)
		settings.Theme = model.ThemeDark
		srow := wire.SettingsToWire(settings)
		require.NoError(t, s.Settings().Upsert(ctx, &srow))
		gotSettings, err := s.Settings().Get(ctx, owner)
		require.NoError(t, err)
		assert.Equal(t, settings, wire.SettingsFromWire(*gotSettings))

		streak := model.StreakData{OwnerID: owner, CurrentStreak: 5, LongestStreak: 5, LastRecordDate: "2025-03-10", Milestones: []int{}}
		strow := wire.StreakToWire(streak)
		require.NoError(t, s.Streaks().Upsert(ctx, &strow))
		require.NoError(t, s.Streaks().Upsert(ctx, &strow))
		gotStreak, err := s.Streaks().Get(ctx, owner)
		require.NoError(t, err)
		assert.Equal(t, streak, wire.StreakFromWire(*gotStreak))
	})
}
