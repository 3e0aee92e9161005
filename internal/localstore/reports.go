package localstore

import (
	"context"

	"github.com/readbori/pulse-diary/internal/model"
)

const (
	reportColumns = `id, owner_id, week_start, week_end, record_count, emotion_summary, content, ai_model, created_at`

	upsertReportSQL = `
INSERT INTO weekly_reports (` + reportColumns + `)
VALUES (?,?,?,?,?,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET
    owner_id = excluded.owner_id,
    week_start = excluded.week_start,
    week_end = excluded.week_end,
    record_count = excluded.record_count,
    emotion_summary = excluded.emotion_summary,
    content = excluded.content,
    ai_model = excluded.ai_model,
    created_at = excluded.created_at`

	selectReportSQL    = `SELECT ` + reportColumns + ` FROM weekly_reports WHERE id = ?`
	listReportsSQL     = `SELECT ` + reportColumns + ` FROM weekly_reports WHERE owner_id = ? ORDER BY week_start DESC, id DESC`
	deleteReportSQL    = `DELETE FROM weekly_reports WHERE id = ?`
	reassignReportsSQL = `UPDATE weekly_reports SET owner_id = ? WHERE owner_id = ?`
)

// Reports is the WeeklyReport table.
type Reports struct{ q querier }

// Get returns the report with id or model.ErrNotFound.
func (r *Reports) Get(ctx context.Context, id string) (*model.WeeklyReport, error) {
	rep, err := scanReport(r.q.QueryRowContext(ctx, selectReportSQL, id))
	if err != nil {
		return nil, storageErr("get report", err)
	}
	return rep, nil
}

// Put inserts or replaces the report.
func (r *Reports) Put(ctx context.Context, rep *model.WeeklyReport) error {
	if rep.ID == "" || rep.OwnerID == "" {
		return model.ErrValidation
	}
	summary := rep.EmotionSummary
	if summary == nil {
		summary = map[model.EmotionType]float64{}
	}
	summaryJSON, err := encodeJSON(summary)
	if err != nil {
		return storageErr("put report", err)
	}
	contentJSON, err := encodeJSON(rep.Content)
	if err != nil {
		return storageErr("put report", err)
	}
	aiModel := rep.AIModel
	if aiModel == "" {
		aiModel = model.DefaultAIModel
	}
	_, err = r.q.ExecContext(ctx, upsertReportSQL,
		rep.ID, rep.OwnerID, toMillis(rep.WeekStart), toMillis(rep.WeekEnd), rep.RecordCount,
		summaryJSON, contentJSON, string(aiModel), toMillis(rep.CreatedAt))
	return storageErr("put report", err)
}

// BulkPut upserts every report in order.
func (r *Reports) BulkPut(ctx context.Context, reps []model.WeeklyReport) error {
	for i := range reps {
		if err := r.Put(ctx, &reps[i]); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes the report. Deleting a missing id is not an error.
func (r *Reports) Delete(ctx context.Context, id string) error {
	_, err := r.q.ExecContext(ctx, deleteReportSQL, id)
	return storageErr("delete report", err)
}

// ListByOwner returns every report of owner, latest period first.
func (r *Reports) ListByOwner(ctx context.Context, owner string) ([]model.WeeklyReport, error) {
	rows, err := r.q.QueryContext(ctx, listReportsSQL, owner)
	if err != nil {
		return nil, storageErr("list reports", err)
	}
	defer rows.Close()

	var out []model.WeeklyReport
	for rows.Next() {
		rep, err := scanReport(rows)
		if err != nil {
			return nil, storageErr("list reports", err)
		}
		out = append(out, *rep)
	}
	return out, storageErr("list reports", rows.Err())
}

// Reassign moves every report of from to to.
func (r *Reports) Reassign(ctx context.Context, from, to string) (int64, error) {
	res, err := r.q.ExecContext(ctx, reassignReportsSQL, to, from)
	if err != nil {
		return 0, storageErr("reassign reports", err)
	}
	n, err := res.RowsAffected()
	return n, storageErr("reassign reports", err)
}

func scanReport(row scanner) (*model.WeeklyReport, error) {
	var (
		rep                  model.WeeklyReport
		weekStart, weekEnd   int64
		createdAt            int64
		summaryJSON, content string
		aiModel              string
	)
	if err := row.Scan(&rep.ID, &rep.OwnerID, &weekStart, &weekEnd, &rep.RecordCount,
		&summaryJSON, &content, &aiModel, &createdAt); err != nil {
		return nil, err
	}
	rep.WeekStart = fromMillis(weekStart)
	rep.WeekEnd = fromMillis(weekEnd)
	rep.CreatedAt = fromMillis(createdAt)
	rep.AIModel = model.AIModel(aiModel)
	rep.EmotionSummary = map[model.EmotionType]float64{}
	if err := decodeJSON(summaryJSON, &rep.EmotionSummary); err != nil {
		return nil, err
	}
	if err := decodeJSON(content, &rep.Content); err != nil {
		return nil, err
	}
	return &rep, nil
}
