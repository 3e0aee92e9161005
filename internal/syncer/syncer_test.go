package syncer

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/readbori/pulse-diary/internal/localstore"
	"github.com/readbori/pulse-diary/internal/model"
	"github.com/readbori/pulse-diary/internal/push"
	"github.com/readbori/pulse-diary/internal/remote"
	"github.com/readbori/pulse-diary/internal/remote/memstore"
	"github.com/readbori/pulse-diary/internal/wire"
)

var (
	u1 = model.Session{OwnerID: "u1", RemoteConfigured: true}
	at = time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)
)

type fixture struct {
	local  *localstore.Store
	remote *memstore.Store
	sync   *Syncer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	local, err := localstore.Open(filepath.Join(t.TempDir(), "pulse.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = local.Close() })

	rs := memstore.New()
	p := push.New(local.Records(), rs)
	t.Cleanup(func() { _ = p.Close() })
	return &fixture{local: local, remote: rs, sync: New(local, rs, p)}
}

func record(id, transcript string, state model.SyncState) model.EmotionRecord {
	return model.EmotionRecord{ID: id, OwnerID: "u1", CreatedAt: at, Transcript: transcript, Language: "ko", SyncState: state}
}

func (f *fixture) putLocal(t *testing.T, recs ...model.EmotionRecord) {
	t.Helper()
	for i := range recs {
		require.NoError(t, f.local.Records().Put(context.Background(), &recs[i]))
	}
}

func (f *fixture) putRemote(recs ...model.EmotionRecord) {
	for _, r := range recs {
		f.remote.RecordRows.Put(wire.RecordToWire(r))
	}
}

func TestRun_ScenarioA(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	local := record("r1", "local text", model.SyncSynced)
	local.Audio = []byte("voice")
	f.putLocal(t, local, record("r2", "two", model.SyncSynced), record("r3", "three", model.SyncLocal))
	streak := model.StreakData{OwnerID: "u1", CurrentStreak: 5, LongestStreak: 5, LastRecordDate: "2025-03-10", Milestones: []int{}}
	require.NoError(t, f.local.Streaks().Put(ctx, &streak))

	f.putRemote(record("r1", "remote text", model.SyncSynced), record("r4", "four", model.SyncSynced))

	res := f.sync.Run(ctx, u1)
	require.True(t, res.OK(), "failures: %v", res.Failures)
	assert.Equal(t, 2, res.Pulled[remote.KindRecord])
	assert.Equal(t, 1, res.Pushed[remote.KindRecord])
	assert.Equal(t, 1, res.Pushed[remote.KindStreak])

	recs, err := f.local.Records().ListByOwner(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, recs, 4)
	byID := map[string]model.EmotionRecord{}
	for _, r := range recs {
		byID[r.ID] = r
		assert.Equal(t, model.SyncSynced, r.SyncState, r.ID)
	}
	assert.Equal(t, "remote text", byID["r1"].Transcript)
	assert.Equal(t, []byte("voice"), byID["r1"].Audio, "pull keeps the local audio payload")
	assert.Equal(t, "two", byID["r2"].Transcript)
	assert.Equal(t, "three", byID["r3"].Transcript)

	_, ok := f.remote.RecordRows.Lookup("r3")
	assert.True(t, ok)
	_, ok = f.remote.RecordRows.Lookup("r2")
	assert.False(t, ok, "already-synced records are not re-pushed")

	got, ok := f.remote.StreakRows.Lookup("u1")
	require.True(t, ok)
	assert.Equal(t, 5, got.CurrentStreak)
}

func TestRun_PullOverwritesSingletonsAndKeepsLocalOnlyRows(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	localProfile := model.UserProfile{OwnerID: "u1", Name: "local", CreatedAt: at, UpdatedAt: at}
	require.NoError(t, f.local.Profiles().Put(ctx, &localProfile))
	localSettings := model.DefaultSettings("u1")
	require.NoError(t, f.local.Settings().Put(ctx, &localSettings))
	onlyLocal := model.WeeklyReport{ID: "rep-local", OwnerID: "u1", WeekStart: at, WeekEnd: at, CreatedAt: at, AIModel: model.DefaultAIModel, EmotionSummary: map[model.EmotionType]float64{}}
	require.NoError(t, f.local.Reports().Put(ctx, &onlyLocal))

	remoteProfile := localProfile
	remoteProfile.Name = "remote"
	f.remote.ProfileRows.Put(wire.ProfileToWire(remoteProfile))

	res := f.sync.Run(ctx, u1)
	require.True(t, res.OK(), "failures: %v", res.Failures)

	gotProfile, err := f.local.Profiles().Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "remote", gotProfile.Name)

	gotReport, err := f.local.Reports().Get(ctx, "rep-local")
	require.NoError(t, err)
	assert.Equal(t, onlyLocal, *gotReport)
	_, ok := f.remote.ReportRows.Lookup("rep-local")
	assert.True(t, ok, "reports are pushed unconditionally")

	_, ok = f.remote.SettingsRows.Lookup("u1")
	assert.True(t, ok)
}

func TestRun_SkippedWithoutSync(t *testing.T) {
	f := newFixture(t)
	f.putLocal(t, record("r1", "x", model.SyncLocal))

	for _, s := range []model.Session{
		{OwnerID: model.AnonymousOwner, RemoteConfigured: true},
		{OwnerID: "u1"},
	} {
		res := f.sync.Run(context.Background(), s)
		assert.True(t, res.Skipped)
		assert.False(t, res.OK())
	}
	assert.Empty(t, f.remote.Calls())
}

func TestRun_PhaseOrdering(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.putLocal(t, record("r1", "x", model.SyncLocal))
	streak := model.NewStreak("u1", at)
	require.NoError(t, f.local.Streaks().Put(ctx, &streak))
	f.putRemote(record("r9", "remote", model.SyncSynced))

	var (
		mu         sync.Mutex
		pullsDone  int
		violations int
	)
	f.remote.SetHooks(memstore.Hooks{
		Before: func(_ context.Context, c memstore.Call) error {
			if c.Op == memstore.OpUpsert {
				mu.Lock()
				if pullsDone < len(remote.Kinds) {
					violations++
				}
				mu.Unlock()
			}
			return nil
		},
		After: func(_ context.Context, c memstore.Call) {
			if c.Op == memstore.OpList || c.Op == memstore.OpGet {
				// Widen the window a premature push would have to slip in.
				time.Sleep(2 * time.Millisecond)
				mu.Lock()
				pullsDone++
				mu.Unlock()
			}
		},
	})

	res := f.sync.Run(ctx, u1)
	require.True(t, res.OK(), "failures: %v", res.Failures)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, len(remote.Kinds), pullsDone)
	assert.Zero(t, violations, "a push started before every pull had finished")
}

func TestRun_FailuresAreIsolated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.putLocal(t, record("bad", "x", model.SyncLocal), record("good", "y", model.SyncLocal))
	streak := model.NewStreak("u1", at)
	require.NoError(t, f.local.Streaks().Put(ctx, &streak))

	offline := errors.New("offline")
	f.remote.SetHooks(memstore.Hooks{Before: func(_ context.Context, c memstore.Call) error {
		switch {
		case c.Kind == remote.KindReport && c.Op == memstore.OpList:
			return offline
		case c.Kind == remote.KindRecord && c.Op == memstore.OpUpsert && c.Key == "bad":
			return offline
		}
		return nil
	}})

	res := f.sync.Run(ctx, u1)
	assert.False(t, res.OK())
	require.Len(t, res.Failures, 2)
	phases := map[string]Failure{}
	for _, fl := range res.Failures {
		phases[fl.Phase] = fl
		assert.ErrorIs(t, fl.Err, offline)
	}
	assert.Equal(t, remote.KindReport, phases[PhasePull].Kind)
	assert.Equal(t, "bad", phases[PhasePush].ID)

	assert.Equal(t, 1, res.Pushed[remote.KindRecord])
	_, ok := f.remote.RecordRows.Lookup("good")
	assert.True(t, ok)
	_, ok = f.remote.StreakRows.Lookup("u1")
	assert.True(t, ok, "a failed pull must not block phase 2")

	bad, err := f.local.Records().Get(ctx, "bad")
	require.NoError(t, err)
	assert.Equal(t, model.SyncLocal, bad.SyncState, "failed push stays pending for the next run")

	f.remote.SetHooks(memstore.Hooks{})
	res = f.sync.Run(ctx, u1)
	require.True(t, res.OK(), "failures: %v", res.Failures)
	assert.Equal(t, 1, res.Pushed[remote.KindRecord])
}

// A local edit made while a pull is in flight is overwritten by the pull's
// older snapshot: the remote copy wins on a shared id.
func TestRun_PullOverwritesConcurrentLocalEdit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.putLocal(t, record("r1", "original", model.SyncSynced))
	f.putRemote(record("r1", "original", model.SyncSynced))

	var once sync.Once
	f.remote.SetHooks(memstore.Hooks{After: func(ctx context.Context, c memstore.Call) {
		if c.Kind == remote.KindRecord && c.Op == memstore.OpList {
			once.Do(func() {
				edited := record("r1", "edited during pull", model.SyncLocal)
				assert.NoError(t, f.local.Records().Put(ctx, &edited))
			})
		}
	}})

	res := f.sync.Run(ctx, u1)
	require.True(t, res.OK(), "failures: %v", res.Failures)

	got, err := f.local.Records().Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "original", got.Transcript)
	assert.Equal(t, model.SyncSynced, got.SyncState)
	row, _ := f.remote.RecordRows.Lookup("r1")
	assert.Equal(t, "original", row.Transcript)
}

// An edit landing between ListPending and the push confirmation keeps the
// record pending.
func TestRun_EditDuringPushStaysPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.putLocal(t, record("r1", "first", model.SyncLocal))

	var once sync.Once
	f.remote.SetHooks(memstore.Hooks{Before: func(ctx context.Context, c memstore.Call) error {
		if c.Kind == remote.KindRecord && c.Op == memstore.OpUpsert {
			once.Do(func() {
				edited := record("r1", "second", model.SyncLocal)
				assert.NoError(t, f.local.Records().Put(ctx, &edited))
			})
		}
		return nil
	}})

	res := f.sync.Run(ctx, u1)
	require.True(t, res.OK(), "failures: %v", res.Failures)
	row, ok := f.remote.RecordRows.Lookup("r1")
	require.True(t, ok)
	assert.Equal(t, "first", row.Transcript)

	got, err := f.local.Records().Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "second", got.Transcript)
	assert.Equal(t, model.SyncLocal, got.SyncState)

	pending, err := f.local.Records().ListPending(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "second", pending[0].Transcript)
}

func TestRun_FailedLocalWriteCountsNothingPulled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.putRemote(record("r1", "one", model.SyncSynced), record("r2", "two", model.SyncSynced))
	f.remote.ReportRows.Put(wire.ReportToWire(model.WeeklyReport{ID: "w1", OwnerID: "u1", WeekStart: at, WeekEnd: at, AIModel: model.ModelHaiku, CreatedAt: at}))

	for _, stmt := range []string{
		`CREATE TRIGGER reject_records BEFORE INSERT ON emotion_records BEGIN SELECT RAISE(ABORT, 'read only'); END`,
		`CREATE TRIGGER reject_reports BEFORE INSERT ON weekly_reports BEGIN SELECT RAISE(ABORT, 'read only'); END`,
	} {
		_, err := f.local.DB().ExecContext(ctx, stmt)
		require.NoError(t, err)
	}

	res := f.sync.Run(ctx, u1)
	assert.False(t, res.OK())
	assert.Equal(t, 0, res.Pulled[remote.KindRecord])
	assert.Equal(t, 0, res.Pulled[remote.KindReport])
	failed := map[remote.Kind]bool{}
	for _, fl := range res.Failures {
		if fl.Phase == PhasePull {
			failed[fl.Kind] = true
		}
	}
	assert.True(t, failed[remote.KindRecord])
	assert.True(t, failed[remote.KindReport])

	recs, err := f.local.Records().ListByOwner(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestRun_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.putLocal(t, record("r1", "a", model.SyncLocal))
	f.putRemote(record("r2", "b", model.SyncSynced))

	first := f.sync.Run(ctx, u1)
	second := f.sync.Run(ctx, u1)
	require.True(t, first.OK())
	require.True(t, second.OK())

	assert.Equal(t, 2, f.remote.RecordRows.Len())
	assert.Equal(t, 0, second.Pushed[remote.KindRecord])
	recs, err := f.local.Records().ListByOwner(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, recs, 2)
}
