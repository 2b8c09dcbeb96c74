package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jmehdipour/router-sms-gateway/internal/model"
)

// HistoryRecord is one finished send as stored in sms_history.
type HistoryRecord struct {
	ID            int64           `db:"id"             json:"id"`
	JobID         string          `db:"job_id"         json:"job_id"`
	PhoneNumber   string          `db:"phone_number"   json:"phone_number"`
	Message       string          `db:"message"        json:"message"`
	Status        model.JobStatus `db:"status"         json:"status"`
	ResultMessage string          `db:"result_message" json:"result_message"`
	ElapsedTime   float64         `db:"elapsed_time"   json:"elapsed_time"`
	SubmittedAt   time.Time       `db:"submitted_at"   json:"submitted_at"`
	FinishedAt    time.Time       `db:"finished_at"    json:"finished_at"`
}

// HistoryRepository is the audit trail of finished sends. It is append-only;
// nothing is ever replayed from it.
type HistoryRepository interface {
	Record(ctx context.Context, job model.Job) error
	List(ctx context.Context, phone string, status model.JobStatus, limit, offset int) ([]HistoryRecord, error)
}

type historyRepository struct {
	db *sqlx.DB
}

func NewHistoryRepository(db *sqlx.DB) HistoryRepository {
	return &historyRepository{db: db}
}

// Record appends a finished job. Replays of the same job are ignored.
func (r *historyRepository) Record(ctx context.Context, job model.Job) error {
	const q = `
		INSERT IGNORE INTO sms_history
		    (job_id, phone_number, message, status, result_message, elapsed_time, submitted_at, finished_at)
		VALUES
		    (?,      ?,            ?,       ?,      ?,              ?,            ?,            ?)
	`
	var resultMsg string
	var elapsed float64
	if job.Result != nil {
		resultMsg = job.Result.Message
		elapsed = job.Result.ElapsedTime
	}
	finished := job.UpdatedAt
	if finished.IsZero() {
		finished = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, q,
		job.ID, job.PhoneNumber, job.Message, job.Status.String(),
		resultMsg, elapsed, job.SubmittedAt, finished,
	)
	return err
}

func (r *historyRepository) List(ctx context.Context, phone string, status model.JobStatus, limit, offset int) ([]HistoryRecord, error) {
	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	q := `
		SELECT id, job_id, phone_number, message, status, result_message, elapsed_time, submitted_at, finished_at
		FROM sms_history
		WHERE 1 = 1
	`
	var args []any

	if status != "" {
		q += " AND status = ?"
		args = append(args, status.String())
	}
	if phone != "" {
		q += " AND phone_number = ?"
		args = append(args, phone)
	}

	q += " ORDER BY finished_at DESC, id DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows := []HistoryRecord{}
	if err := r.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, err
	}
	return rows, nil
}
