// Package syncer reconciles the Local Store with the remote store after
// sign-in. A run pulls every kind (remote wins on shared keys), waits for all
// pulls to finish, then pushes what is still unsynced locally.
package syncer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/readbori/pulse-diary/internal/localstore"
	"github.com/readbori/pulse-diary/internal/model"
	"github.com/readbori/pulse-diary/internal/remote"
	"github.com/readbori/pulse-diary/internal/wire"
)

// Phase names.
const (
	PhasePull = "pull"
	PhasePush = "push"
)

// Pusher performs synchronous remote upserts. *push.Pipeline implements it.
type Pusher interface {
	UpsertRecord(ctx context.Context, rec model.EmotionRecord) error
	UpsertReport(ctx context.Context, rep model.WeeklyReport) error
	UpsertProfile(ctx context.Context, p model.UserProfile) error
	UpsertSettings(ctx context.Context, s model.UserSettings) error
	UpsertStreak(ctx context.Context, s model.StreakData) error
}

// Failure is one pull or push that did not complete.
type Failure struct {
	Phase string
	Kind  remote.Kind
	ID    string // row id for record/report pushes, empty otherwise
	Err   error
}

// Result summarises a run. Counts are rows per kind.
type Result struct {
	Skipped  bool
	Pulled   map[remote.Kind]int
	Pushed   map[remote.Kind]int
	Failures []Failure
}

// OK reports whether every step succeeded.
func (r Result) OK() bool { return !r.Skipped && len(r.Failures) == 0 }

// Syncer runs reconciliation passes.
type Syncer struct {
	local  *localstore.Store
	remote remote.Store
	push   Pusher
	log    zerolog.Logger
}

// Option configures a Syncer.
type Option func(*Syncer)

// WithLogger sets the logger failures are reported to.
func WithLogger(l zerolog.Logger) Option { return func(s *Syncer) { s.log = l } }

// New builds a Syncer.
func New(local *localstore.Store, rs remote.Store, p Pusher, opts ...Option) *Syncer {
	s := &Syncer{local: local, remote: rs, push: p, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run reconciles the session owner's data. It always returns; failures of
// individual pulls or pushes are logged and listed in the Result. A session
// that cannot sync returns a skipped Result without touching either store.
func (s *Syncer) Run(ctx context.Context, sess model.Session) Result {
	if !sess.CanSync() {
		syncRunsTotal.WithLabelValues(runSkipped).Inc()
		return Result{Skipped: true}
	}
	run := &runState{
		owner: sess.OwnerID,
		log:   s.log.With().Str("owner", sess.OwnerID).Logger(),
		res:   Result{Pulled: map[remote.Kind]int{}, Pushed: map[remote.Kind]int{}},
	}

	s.phase(ctx, run, PhasePull, map[remote.Kind]step{
		remote.KindRecord:   s.pullRecords,
		remote.KindReport:   s.pullReports,
		remote.KindProfile:  s.pullProfile,
		remote.KindSettings: s.pullSettings,
		remote.KindStreak:   s.pullStreak,
	})
	s.phase(ctx, run, PhasePush, map[remote.Kind]step{
		remote.KindRecord:   s.pushRecords,
		remote.KindReport:   s.pushReports,
		remote.KindProfile:  s.pushProfile,
		remote.KindSettings: s.pushSettings,
		remote.KindStreak:   s.pushStreak,
	})

	outcome := runOK
	if len(run.res.Failures) > 0 {
		outcome = runPartial
	}
	syncRunsTotal.WithLabelValues(outcome).Inc()
	run.log.Info().
		Interface("pulled", run.res.Pulled).
		Interface("pushed", run.res.Pushed).
		Int("failures", len(run.res.Failures)).
		Msg("sync finished")
	return run.res
}

// step handles one kind in one phase and returns the number of rows moved.
type step func(ctx context.Context, run *runState) (int, error)

type runState struct {
	owner string
	log   zerolog.Logger

	mu  sync.Mutex
	res Result
}

func (r *runState) fail(phase string, kind remote.Kind, id string, err error) {
	r.log.Warn().Err(err).Str("phase", phase).Str("kind", string(kind)).Str("id", id).Msg("sync step failed")
	r.mu.Lock()
	r.res.Failures = append(r.res.Failures, Failure{Phase: phase, Kind: kind, ID: id, Err: err})
	r.mu.Unlock()
}

func (r *runState) count(phase string, kind remote.Kind, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if phase == PhasePull {
		r.res.Pulled[kind] = n
	} else {
		r.res.Pushed[kind] = n
	}
}

// phase runs every step concurrently and returns once all have finished.
// Steps never fail the group, so one failure cannot cancel its siblings.
func (s *Syncer) phase(ctx context.Context, run *runState, name string, steps map[remote.Kind]step) {
	start := time.Now()
	var g errgroup.Group
	for _, kind := range remote.Kinds {
		kind, fn := kind, steps[kind]
		g.Go(func() error {
			n, err := fn(ctx, run)
			if err != nil {
				run.fail(name, kind, "", err)
			}
			run.count(name, kind, n)
			return nil
		})
	}
	_ = g.Wait()
	phaseDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
}

// --- Phase 1: pull ---

func (s *Syncer) pullRecords(ctx context.Context, run *runState) (int, error) {
	rows, err := s.remote.Records().ListByOwner(ctx, run.owner)
	if err != nil {
		return 0, err
	}
	err = s.local.InTx(ctx, func(tx *localstore.Tx) error {
		for _, row := range rows {
			rec := wire.RecordFromWire(row)
			if err := tx.Records().MergeRemote(ctx, &rec); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

func (s *Syncer) pullReports(ctx context.Context, run *runState) (int, error) {
	rows, err := s.remote.Reports().ListByOwner(ctx, run.owner)
	if err != nil {
		return 0, err
	}
	reps := make([]model.WeeklyReport, 0, len(rows))
	for _, row := range rows {
		reps = append(reps, wire.ReportFromWire(row))
	}
	err = s.local.InTx(ctx, func(tx *localstore.Tx) error {
		return tx.Reports().BulkPut(ctx, reps)
	})
	if err != nil {
		return 0, err
	}
	return len(reps), nil
}

func (s *Syncer) pullProfile(ctx context.Context, run *runState) (int, error) {
	return pullSingleton(ctx, s.remote.Profiles(), run.owner, wire.ProfileFromWire, s.local.Profiles())
}

func (s *Syncer) pullSettings(ctx context.Context, run *runState) (int, error) {
	return pullSingleton(ctx, s.remote.Settings(), run.owner, wire.SettingsFromWire, s.local.Settings())
}

func (s *Syncer) pullStreak(ctx context.Context, run *runState) (int, error) {
	return pullSingleton(ctx, s.remote.Streaks(), run.owner, wire.StreakFromWire, s.local.Streaks())
}

// pullSingleton copies the owner's remote row over the local one. A missing
// remote row leaves the local row alone.
func pullSingleton[W, L any](ctx context.Context, src remote.Singleton[W], owner string, conv func(W) L, dst *localstore.Singleton[L]) (int, error) {
	row, err := src.Get(ctx, owner)
	if errors.Is(err, remote.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	v := conv(*row)
	if err := dst.Put(ctx, &v); err != nil {
		return 0, err
	}
	return 1, nil
}

// --- Phase 2: push ---

func (s *Syncer) pushRecords(ctx context.Context, run *runState) (int, error) {
	pending, err := s.local.Records().ListPending(ctx, run.owner)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, rec := range pending {
		if err := s.push.UpsertRecord(ctx, rec); err != nil {
			run.fail(PhasePush, remote.KindRecord, rec.ID, err)
			continue
		}
		n++
	}
	return n, nil
}

func (s *Syncer) pushReports(ctx context.Context, run *runState) (int, error) {
	reps, err := s.local.Reports().ListByOwner(ctx, run.owner)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, rep := range reps {
		if err := s.push.UpsertReport(ctx, rep); err != nil {
			run.fail(PhasePush, remote.KindReport, rep.ID, err)
			continue
		}
		n++
	}
	return n, nil
}

func (s *Syncer) pushProfile(ctx context.Context, run *runState) (int, error) {
	return pushSingleton(ctx, s.local.Profiles(), run.owner, s.push.UpsertProfile)
}

func (s *Syncer) pushSettings(ctx context.Context, run *runState) (int, error) {
	return pushSingleton(ctx, s.local.Settings(), run.owner, s.push.UpsertSettings)
}

func (s *Syncer) pushStreak(ctx context.Context, run *runState) (int, error) {
	return pushSingleton(ctx, s.local.Streaks(), run.owner, s.push.UpsertStreak)
}

func pushSingleton[L any](ctx context.Context, src *localstore.Singleton[L], owner string, upsert func(context.Context, L) error) (int, error) {
	v, err := src.Get(ctx, owner)
	if errors.Is(err, model.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if err := upsert(ctx, *v); err != nil {
		return 0, err
	}
	return 1, nil
}
