package localstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/readbori/pulse-diary/internal/model"
)

const (
	recordColumns = `id, owner_id, created_at, transcript, duration, language, emotion_primary, emotion_scores, audio, sync_state, revision`

	upsertRecordSQL = `
INSERT INTO emotion_records (` + recordColumns + `)
VALUES (?,?,?,?,?,?,?,?,?,?,1)
ON CONFLICT(id) DO UPDATE SET
    owner_id = excluded.owner_id,
    created_at = excluded.created_at,
    transcript = excluded.transcript,
    duration = excluded.duration,
    language = excluded.language,
    emotion_primary = excluded.emotion_primary,
    emotion_scores = excluded.emotion_scores,
    audio = excluded.audio,
    sync_state = excluded.sync_state,
    revision = emotion_records.revision + 1
RETURNING revision`

	// mergeRecordSQL keeps the stored audio when the incoming row has none;
	// remote rows never carry audio.
	mergeRecordSQL = `
INSERT INTO emotion_records (` + recordColumns + `)
VALUES (?,?,?,?,?,?,?,?,?,?,1)
ON CONFLICT(id) DO UPDATE SET
    owner_id = excluded.owner_id,
    created_at = excluded.created_at,
    transcript = excluded.transcript,
    duration = excluded.duration,
    language = excluded.language,
    emotion_primary = excluded.emotion_primary,
    emotion_scores = excluded.emotion_scores,
    audio = COALESCE(excluded.audio, emotion_records.audio),
    sync_state = excluded.sync_state,
    revision = emotion_records.revision + 1
RETURNING revision`

	selectRecordSQL       = `SELECT ` + recordColumns + ` FROM emotion_records WHERE id = ?`
	listRecordsSQL        = `SELECT ` + recordColumns + ` FROM emotion_records WHERE owner_id = ? ORDER BY created_at DESC, id DESC`
	listRecordsInRangeSQL = `SELECT ` + recordColumns + ` FROM emotion_records WHERE owner_id = ? AND created_at BETWEEN ? AND ? ORDER BY created_at DESC, id DESC`
	listPendingRecordsSQL = `SELECT ` + recordColumns + ` FROM emotion_records WHERE owner_id = ? AND sync_state = 'local' ORDER BY created_at ASC, id ASC`
	markRecordSyncedSQL   = `UPDATE emotion_records SET sync_state = 'synced' WHERE id = ? AND revision = ?`
	deleteRecordSQL       = `DELETE FROM emotion_records WHERE id = ?`
	reassignRecordsSQL    = `UPDATE emotion_records SET owner_id = ?, sync_state = 'local', revision = revision + 1 WHERE owner_id = ?`
)

// Records is the EmotionRecord table.
type Records struct{ q querier }

// Get returns the record with id or model.ErrNotFound.
func (r *Records) Get(ctx context.Context, id string) (*model.EmotionRecord, error) {
	rec, err := scanRecord(r.q.QueryRowContext(ctx, selectRecordSQL, id))
	if err != nil {
		return nil, storageErr("get record", err)
	}
	return rec, nil
}

// Put inserts or replaces the record, including its audio payload. Every
// write bumps the row revision; rec.Revision is set to the stored value.
func (r *Records) Put(ctx context.Context, rec *model.EmotionRecord) error {
	return r.exec(ctx, "put record", upsertRecordSQL, rec)
}

// MergeRemote upserts a record that came from the remote store. The remote
// content wins for every column except audio, which the remote never holds.
// Like Put it bumps the revision.
func (r *Records) MergeRemote(ctx context.Context, rec *model.EmotionRecord) error {
	return r.exec(ctx, "merge record", mergeRecordSQL, rec)
}

// BulkPut upserts every record in order.
func (r *Records) BulkPut(ctx context.Context, recs []model.EmotionRecord) error {
	for i := range recs {
		if err := r.Put(ctx, &recs[i]); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes the record. Deleting a missing id is not an error.
func (r *Records) Delete(ctx context.Context, id string) error {
	_, err := r.q.ExecContext(ctx, deleteRecordSQL, id)
	return storageErr("delete record", err)
}

// MarkSynced flips the record to synced if it is still at revision, the
// version the remote store confirmed. It reports whether the row changed; a
// record edited or deleted in the meantime is left as it is.
func (r *Records) MarkSynced(ctx context.Context, id string, revision int64) (bool, error) {
	res, err := r.q.ExecContext(ctx, markRecordSyncedSQL, id, revision)
	if err != nil {
		return false, storageErr("mark record synced", err)
	}
	n, err := res.RowsAffected()
	return n > 0, storageErr("mark record synced", err)
}

// ListByOwner returns every record of owner, newest first.
func (r *Records) ListByOwner(ctx context.Context, owner string) ([]model.EmotionRecord, error) {
	return r.list(ctx, "list records", listRecordsSQL, owner)
}

// ListByOwnerInRange returns the records of owner created within [from, to],
// newest first.
func (r *Records) ListByOwnerInRange(ctx context.Context, owner string, from, to time.Time) ([]model.EmotionRecord, error) {
	return r.list(ctx, "list records in range", listRecordsInRangeSQL, owner, toMillis(from), toMillis(to))
}

// ListPending returns the records of owner not yet confirmed by the remote
// store, oldest first.
func (r *Records) ListPending(ctx context.Context, owner string) ([]model.EmotionRecord, error) {
	return r.list(ctx, "list pending records", listPendingRecordsSQL, owner)
}

// Reassign moves every record of from to to and marks them local again so
// they are pushed under the new owner.
func (r *Records) Reassign(ctx context.Context, from, to string) (int64, error) {
	res, err := r.q.ExecContext(ctx, reassignRecordsSQL, to, from)
	if err != nil {
		return 0, storageErr("reassign records", err)
	}
	n, err := res.RowsAffected()
	return n, storageErr("reassign records", err)
}

func (r *Records) exec(ctx context.Context, op, query string, rec *model.EmotionRecord) error {
	if rec.ID == "" || rec.OwnerID == "" {
		return model.ErrValidation
	}
	var primary sql.NullString
	var scores sql.NullString
	if rec.Emotions != nil {
		primary = nullString(string(rec.Emotions.Primary))
		s := rec.Emotions.Scores
		if s == nil {
			s = map[model.EmotionType]float64{}
		}
		encoded, err := encodeJSON(s)
		if err != nil {
			return storageErr(op, err)
		}
		scores = nullString(encoded)
	}
	state := rec.SyncState
	if state == "" {
		state = model.SyncLocal
	}
	var revision int64
	err := r.q.QueryRowContext(ctx, query,
		rec.ID, rec.OwnerID, toMillis(rec.CreatedAt), rec.Transcript, rec.Duration, rec.Language,
		primary, scores, nullBytes(rec.Audio), string(state)).Scan(&revision)
	if err != nil {
		return storageErr(op, err)
	}
	rec.Revision = revision
	return nil
}

func (r *Records) list(ctx context.Context, op, query string, args ...any) ([]model.EmotionRecord, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr(op, err)
	}
	defer rows.Close()

	var out []model.EmotionRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, storageErr(op, err)
		}
		out = append(out, *rec)
	}
	return out, storageErr(op, rows.Err())
}

func scanRecord(row scanner) (*model.EmotionRecord, error) {
	var (
		rec       model.EmotionRecord
		createdAt int64
		primary   sql.NullString
		scores    sql.NullString
		state     string
	)
	if err := row.Scan(&rec.ID, &rec.OwnerID, &createdAt, &rec.Transcript, &rec.Duration, &rec.Language,
		&primary, &scores, &rec.Audio, &state, &rec.Revision); err != nil {
		return nil, err
	}
	rec.CreatedAt = fromMillis(createdAt)
	rec.SyncState = model.ParseSyncState(state)
	if primary.Valid {
		rec.Emotions = &model.EmotionAnalysis{
			Primary: model.EmotionType(primary.String),
			Scores:  map[model.EmotionType]float64{},
		}
		if err := decodeJSON(scores.String, &rec.Emotions.Scores); err != nil {
			return nil, err
		}
	}
	return &rec, nil
}
