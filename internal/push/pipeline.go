// Package push replicates local writes to the remote store.
//
// Push* methods are fire-and-forget: they return immediately, run on a shard
// executor keyed by "<kind>:<id>" so writes to one row stay ordered, and
// report failures only to the pipeline's logger. Upsert* methods run inline
// and return the error; the sync orchestrator uses them.
package push

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"

	"github.com/rs/zerolog"

	rerrors "github.com/readbori/pulse-diary/internal/errors"
	"github.com/readbori/pulse-diary/internal/model"
	"github.com/readbori/pulse-diary/internal/remote"
	"github.com/readbori/pulse-diary/internal/shardqueue"
	"github.com/readbori/pulse-diary/internal/wire"
)

// Operation names used in logs and metrics.
const (
	OpUpsert = "upsert"
	OpDelete = "delete"
)

// RecordMarker flips a local record to synced once its upsert has landed.
// The flip only happens while the local row is still at revision.
type RecordMarker interface {
	MarkSynced(ctx context.Context, id string, revision int64) (bool, error)
}

// Pipeline pushes local rows to a remote.Store.
type Pipeline struct {
	local  RecordMarker
	remote remote.Store
	exec   *shardqueue.ShardExecutor

	log     zerolog.Logger
	execCfg shardqueue.Config
	onError func(key string, err error)

	closed uint32
}

// New builds a Pipeline and starts its executor. Call Close to drain it.
func New(local RecordMarker, rs remote.Store, opts ...Option) *Pipeline {
	p := &Pipeline{local: local, remote: rs, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(p)
	}
	cfg := p.execCfg
	cfg.Logger = p.log
	cfg.ErrorHandler = p.handleError
	p.exec = shardqueue.NewShardExecutor(cfg)
	return p
}

// Key returns the executor key for one row.
func Key(kind remote.Kind, id string) string { return string(kind) + ":" + id }

// PushRecord replicates rec in the background and marks it synced locally
// once the remote accepted it.
func (p *Pipeline) PushRecord(ctx context.Context, s model.Session, rec model.EmotionRecord) {
	p.submit(ctx, s, remote.KindRecord, OpUpsert, rec.ID, func(ctx context.Context) error {
		return p.UpsertRecord(ctx, rec)
	})
}

// PushReport replicates rep in the background.
func (p *Pipeline) PushReport(ctx context.Context, s model.Session, rep model.WeeklyReport) {
	p.submit(ctx, s, remote.KindReport, OpUpsert, rep.ID, func(ctx context.Context) error {
		return p.UpsertReport(ctx, rep)
	})
}

// PushProfile replicates the profile in the background.
func (p *Pipeline) PushProfile(ctx context.Context, s model.Session, prof model.UserProfile) {
	p.submit(ctx, s, remote.KindProfile, OpUpsert, prof.OwnerID, func(ctx context.Context) error {
		return p.UpsertProfile(ctx, prof)
	})
}

// PushSettings replicates the settings in the background.
func (p *Pipeline) PushSettings(ctx context.Context, s model.Session, st model.UserSettings) {
	p.submit(ctx, s, remote.KindSettings, OpUpsert, st.OwnerID, func(ctx context.Context) error {
		return p.UpsertSettings(ctx, st)
	})
}

// PushStreak replicates the streak in the background.
func (p *Pipeline) PushStreak(ctx context.Context, s model.Session, st model.StreakData) {
	p.submit(ctx, s, remote.KindStreak, OpUpsert, st.OwnerID, func(ctx context.Context) error {
		return p.UpsertStreak(ctx, st)
	})
}

// DeleteRecord removes the remote copy of a record in the background.
func (p *Pipeline) DeleteRecord(ctx context.Context, s model.Session, id string) {
	p.submit(ctx, s, remote.KindRecord, OpDelete, id, func(ctx context.Context) error {
		return p.remote.Records().Delete(ctx, id)
	})
}

// DeleteReport removes the remote copy of a report in the background.
func (p *Pipeline) DeleteReport(ctx context.Context, s model.Session, id string) {
	p.submit(ctx, s, remote.KindReport, OpDelete, id, func(ctx context.Context) error {
		return p.remote.Reports().Delete(ctx, id)
	})
}

// UpsertRecord writes rec to the remote store, then marks the local row
// synced. The local row is left pending if the remote write fails or if it
// was edited after rec was read.
func (p *Pipeline) UpsertRecord(ctx context.Context, rec model.EmotionRecord) error {
	row := wire.RecordToWire(rec)
	if err := p.remote.Records().Upsert(ctx, &row); err != nil {
		return err
	}
	marked, err := p.local.MarkSynced(ctx, rec.ID, rec.Revision)
	if err != nil {
		return rerrors.NewIrrecoverable("mark record synced", err)
	}
	if !marked {
		p.log.Debug().Str("id", rec.ID).Int64("revision", rec.Revision).Msg("record changed while pushing; left pending")
	}
	return nil
}

// UpsertReport writes rep to the remote store.
func (p *Pipeline) UpsertReport(ctx context.Context, rep model.WeeklyReport) error {
	row := wire.ReportToWire(rep)
	return p.remote.Reports().Upsert(ctx, &row)
}

// UpsertProfile writes the profile to the remote store.
func (p *Pipeline) UpsertProfile(ctx context.Context, prof model.UserProfile) error {
	row := wire.ProfileToWire(prof)
	return p.remote.Profiles().Upsert(ctx, &row)
}

// UpsertSettings writes the settings to the remote store.
func (p *Pipeline) UpsertSettings(ctx context.Context, st model.UserSettings) error {
	row := wire.SettingsToWire(st)
	return p.remote.Settings().Upsert(ctx, &row)
}

// UpsertStreak writes the streak to the remote store.
func (p *Pipeline) UpsertStreak(ctx context.Context, st model.StreakData) error {
	row := wire.StreakToWire(st)
	return p.remote.Streaks().Upsert(ctx, &row)
}

// Barrier blocks until every push queued for the row has finished.
func (p *Pipeline) Barrier(ctx context.Context, kind remote.Kind, id string) error {
	return p.exec.Barrier(ctx, Key(kind, id))
}

// Close drains queued pushes and stops the workers. Safe to call more than
// once.
func (p *Pipeline) Close() error {
	if !atomic.CompareAndSwapUint32(&p.closed, 0, 1) {
		return nil
	}
	p.exec.Stop()
	return nil
}

// pushError tags a job failure with what was being pushed.
type pushError struct {
	kind remote.Kind
	op   string
	err  error
}

func (e *pushError) Error() string { return string(e.kind) + " " + e.op + ": " + e.err.Error() }
func (e *pushError) Unwrap() error { return e.err }

func (p *Pipeline) submit(ctx context.Context, s model.Session, kind remote.Kind, op, id string, fn func(context.Context) error) {
	if !s.CanSync() {
		pushesTotal.WithLabelValues(string(kind), op, outcomeSkipped).Inc()
		return
	}
	key := Key(kind, id)
	// The caller may cancel its context as soon as we return.
	ctx = context.WithoutCancel(ctx)
	job := shardqueue.JobFunc(func(ctx context.Context) error {
		if err := fn(ctx); err != nil {
			return &pushError{kind: kind, op: op, err: err}
		}
		pushesTotal.WithLabelValues(string(kind), op, outcomeOK).Inc()
		return nil
	})
	if err := p.exec.Submit(ctx, key, job); err != nil {
		pushesTotal.WithLabelValues(string(kind), op, outcomeDropped).Inc()
		p.log.Error().Err(err).Str("key", key).Str("op", op).Msg("push not queued")
		if p.onError != nil {
			p.onError(key, err)
		}
	}
}

// handleError is the executor's sink for jobs that failed for good.
func (p *Pipeline) handleError(key string, err error) {
	kind, op := remote.Kind(strings.SplitN(key, ":", 2)[0]), "unknown"
	var pe *pushError
	if errors.As(err, &pe) {
		kind, op = pe.kind, pe.op
	}
	pushesTotal.WithLabelValues(string(kind), op, outcomeFailed).Inc()
	p.log.Error().
		Err(err).
		Str("key", key).
		Str("op", op).
		Bool("irrecoverable", rerrors.IsIrrecoverable(err)).
		Msg("push failed")
	if p.onError != nil {
		p.onError(key, err)
	}
}
