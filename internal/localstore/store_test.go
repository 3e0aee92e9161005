package localstore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/readbori/pulse-diary/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "pulse.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

var base = time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)

func record(id, owner string, at time.Time) model.EmotionRecord {
	return model.EmotionRecord{
		ID:         id,
		OwnerID:    owner,
		CreatedAt:  at,
		Transcript: "transcript " + id,
		Duration:   12.5,
		Language:   "ko",
		SyncState:  model.SyncLocal,
	}
}

func TestRecords_PutGetDelete(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rec := record("r1", "u1", base)
	rec.Audio = []byte{1, 2, 3}
	rec.Emotions = &model.EmotionAnalysis{
		Primary: model.EmotionCalm,
		Scores:  map[model.EmotionType]float64{model.EmotionCalm: 0.8, model.EmotionHope: 0.2},
	}
	require.NoError(t, s.Records().Put(ctx, &rec))

	got, err := s.Records().Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, rec, *got)

	rec.Transcript = "edited"
	require.NoError(t, s.Records().Put(ctx, &rec))
	got, err = s.Records().Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "edited", got.Transcript)

	require.NoError(t, s.Records().Delete(ctx, "r1"))
	_, err = s.Records().Get(ctx, "r1")
	assert.ErrorIs(t, err, model.ErrNotFound)

	// deleting again is fine
	require.NoError(t, s.Records().Delete(ctx, "r1"))
}

func TestRecords_PutRejectsMissingKeys(t *testing.T) {
	s := openTestStore(t)
	rec := record("", "u1", base)
	assert.ErrorIs(t, s.Records().Put(context.Background(), &rec), model.ErrValidation)
}

func TestRecords_ListOrderingAndRange(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	recs := []model.EmotionRecord{
		record("a", "u1", base),
		record("b", "u1", base.Add(48*time.Hour)),
		record("c", "u1", base.Add(24*time.Hour)),
		record("d", "u2", base.Add(24*time.Hour)),
	}
	require.NoError(t, s.Records().BulkPut(ctx, recs))

	all, err := s.Records().ListByOwner(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"b", "c", "a"}, ids(all))

	inRange, err := s.Records().ListByOwnerInRange(ctx, "u1", base.Add(time.Hour), base.Add(48*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, ids(inRange))

	none, err := s.Records().ListByOwner(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestRecords_PendingAndMarkSynced(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	synced := record("s", "u1", base)
	synced.SyncState = model.SyncSynced
	require.NoError(t, s.Records().BulkPut(ctx, []model.EmotionRecord{synced, record("l", "u1", base)}))

	pending, err := s.Records().ListPending(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"l"}, ids(pending))

	marked, err := s.Records().MarkSynced(ctx, "l", pending[0].Revision)
	require.NoError(t, err)
	assert.True(t, marked)
	pending, err = s.Records().ListPending(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, pending)

	// marking a deleted record does not resurrect it
	require.NoError(t, s.Records().Delete(ctx, "l"))
	marked, err = s.Records().MarkSynced(ctx, "l", 1)
	require.NoError(t, err)
	assert.False(t, marked)
	_, err = s.Records().Get(ctx, "l")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestRecords_MarkSyncedIgnoresStaleRevision(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rec := record("r1", "u1", base)
	require.NoError(t, s.Records().Put(ctx, &rec))
	first := rec.Revision
	assert.Equal(t, int64(1), first)

	rec.Transcript = "edited"
	require.NoError(t, s.Records().Put(ctx, &rec))
	assert.Equal(t, first+1, rec.Revision)

	marked, err := s.Records().MarkSynced(ctx, "r1", first)
	require.NoError(t, err)
	assert.False(t, marked)
	got, err := s.Records().Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, model.SyncLocal, got.SyncState)

	marked, err = s.Records().MarkSynced(ctx, "r1", rec.Revision)
	require.NoError(t, err)
	assert.True(t, marked)
	got, err = s.Records().Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, model.SyncSynced, got.SyncState)
}

func TestEnsureSchema_AddsRevisionToOldTable(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "old.db")
	s, err := Open(path)
	require.NoError(t, err)
	_, err = s.DB().ExecContext(ctx, `DROP TABLE emotion_records`)
	require.NoError(t, err)
	_, err = s.DB().ExecContext(ctx, `CREATE TABLE emotion_records (
        id TEXT PRIMARY KEY, owner_id TEXT NOT NULL, created_at INTEGER NOT NULL,
        transcript TEXT NOT NULL, duration REAL NOT NULL DEFAULT 0, language TEXT NOT NULL,
        emotion_primary TEXT, emotion_scores TEXT, audio BLOB,
        sync_state TEXT NOT NULL DEFAULT 'local')`)
	require.NoError(t, err)
	_, err = s.DB().ExecContext(ctx, `INSERT INTO emotion_records (id, owner_id, created_at, transcript, language) VALUES ('old', 'u1', 0, 'kept', 'ko')`)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	got, err := s.Records().Get(ctx, "old")
	require.NoError(t, err)
	assert.Equal(t, "kept", got.Transcript)
	assert.Equal(t, int64(0), got.Revision)
}

func TestRecords_MergeRemoteKeepsAudio(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	local := record("r1", "u1", base)
	local.Audio = []byte("audio")
	require.NoError(t, s.Records().Put(ctx, &local))

	remote := record("r1", "u1", base)
	remote.Transcript = "from remote"
	remote.SyncState = model.SyncSynced
	require.NoError(t, s.Records().MergeRemote(ctx, &remote))

	got, err := s.Records().Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "from remote", got.Transcript)
	assert.Equal(t, model.SyncSynced, got.SyncState)
	assert.Equal(t, []byte("audio"), got.Audio)
}

func TestReports_RoundTripAndOrder(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	older := model.WeeklyReport{
		ID: "w1", OwnerID: "u1",
		WeekStart: base, WeekEnd: base.Add(6 * 24 * time.Hour),
		RecordCount:    4,
		EmotionSummary: map[model.EmotionType]float64{model.EmotionSadness: 2, model.EmotionCalm: 2},
		Content:        model.ReportContent{Summary: "s", Patterns: "p", Empathy: "e", Positives: "+", Suggestions: "try", Quote: "q"},
		AIModel:        model.ModelSonnet,
		CreatedAt:      base.Add(7 * 24 * time.Hour),
	}
	newer := older
	newer.ID = "w2"
	newer.WeekStart = base.Add(7 * 24 * time.Hour)
	newer.AIModel = ""
	require.NoError(t, s.Reports().BulkPut(ctx, []model.WeeklyReport{older, newer}))

	got, err := s.Reports().Get(ctx, "w1")
	require.NoError(t, err)
	assert.Equal(t, older, *got)

	list, err := s.Reports().ListByOwner(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "w2", list[0].ID)
	assert.Equal(t, model.DefaultAIModel, list[0].AIModel)

	require.NoError(t, s.Reports().Delete(ctx, "w2"))
	_, err = s.Reports().Get(ctx, "w2")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestSingletons_UpsertNeverDuplicates(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	settings := model.DefaultSettings("u1")
	require.NoError(t, s.Settings().Put(ctx, &settings))
	settings.Theme = model.ThemeDark
	settings.DailyReminderEnabled = true
	require.NoError(t, s.Settings().Put(ctx, &settings))

	got, err := s.Settings().Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, settings, *got)

	var n int
	require.NoError(t, s.DB().QueryRow(`SELECT COUNT(1) FROM user_settings WHERE owner_id = ?`, "u1").Scan(&n))
	assert.Equal(t, 1, n)

	_, err = s.Streaks().Get(ctx, "u1")
	assert.ErrorIs(t, err, model.ErrNotFound)

	streak := model.StreakData{OwnerID: "u1", CurrentStreak: 5, LongestStreak: 8, LastRecordDate: "2025-03-10", Milestones: []int{7}}
	require.NoError(t, s.Streaks().Put(ctx, &streak))
	gotStreak, err := s.Streaks().Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, streak, *gotStreak)

	profile := model.UserProfile{OwnerID: "u1", Name: "Mina", BirthYear: 1994, Interests: []string{"running"}, MBTI: "INFP", CreatedAt: base, UpdatedAt: base}
	require.NoError(t, s.Profiles().Put(ctx, &profile))
	gotProfile, err := s.Profiles().Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, profile, *gotProfile)
}

func TestSingleton_Rekey(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	profile := model.UserProfile{OwnerID: "anon", Name: "Mina", CreatedAt: base, UpdatedAt: base}
	require.NoError(t, s.Profiles().Put(ctx, &profile))

	later := base.Add(time.Hour)
	err := s.InTx(ctx, func(tx *Tx) error {
		moved, err := tx.Profiles().Rekey(ctx, "anon", "u1", later)
		assert.True(t, moved)
		return err
	})
	require.NoError(t, err)

	_, err = s.Profiles().Get(ctx, "anon")
	assert.ErrorIs(t, err, model.ErrNotFound)
	got, err := s.Profiles().Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Mina", got.Name)
	assert.Equal(t, base, got.CreatedAt)
	assert.Equal(t, later, got.UpdatedAt)

	moved, err := s.Streaks().Rekey(ctx, "anon", "u1", later)
	require.NoError(t, err)
	assert.False(t, moved)
}

func TestInTx_RollsBackOnError(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.InTx(ctx, func(tx *Tx) error {
		rec := record("r1", "u1", base)
		if err := tx.Records().Put(ctx, &rec); err != nil {
			return err
		}
		streak := model.NewStreak("u1", base)
		if err := tx.Streaks().Put(ctx, &streak); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = s.Records().Get(ctx, "r1")
	assert.ErrorIs(t, err, model.ErrNotFound)
	_, err = s.Streaks().Get(ctx, "u1")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestStorageErrorOnClosedDB(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Close())

	_, err := s.Records().ListByOwner(context.Background(), "u1")
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrStorageUnavailable)

	var se *StorageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "list records", se.Op)
	assert.Contains(t, err.Error(), "storage unavailable")
}

func ids(recs []model.EmotionRecord) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.ID
	}
	return out
}
