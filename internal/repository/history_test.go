package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/jmehdipour/router-sms-gateway/internal/model"
)

func newMockRepo(t *testing.T) (HistoryRepository, sqlmock.Sqlmock) {
	t.Helper()
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = raw.Close() })
	return NewHistoryRepository(sqlx.NewDb(raw, "mysql")), mock
}

func TestHistoryRecord(t *testing.T) {
	repo, mock := newMockRepo(t)

	res := model.Success()
	res.ElapsedTime = 1.25
	job := model.Job{
		ID:          "0b7f0c52-8f0e-4d3a-9b36-2d0c7d0f4a11",
		PhoneNumber: "+15551234567",
		Message:     "hello",
		Status:      model.JobCompleted,
		Result:      &res,
		SubmittedAt: time.Now().Add(-2 * time.Second).UTC(),
		UpdatedAt:   time.Now().UTC(),
	}

	mock.ExpectExec(`INSERT IGNORE INTO sms_history`).
		WithArgs(job.ID, job.PhoneNumber, job.Message, "completed", model.MsgSent, 1.25, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, repo.Record(context.Background(), job))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHistoryListFilters(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now().UTC().Truncate(time.Millisecond)

	cols := []string{"id", "job_id", "phone_number", "message", "status", "result_message", "elapsed_time", "submitted_at", "finished_at"}
	mock.ExpectQuery(`FROM sms_history WHERE 1 = 1 AND status = \? AND phone_number = \? ORDER BY finished_at DESC, id DESC LIMIT \? OFFSET \?`).
		WithArgs("failed", "+15551234567", 50, 0).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(7, "job-7", "+15551234567", "hi", "failed", model.MsgMaxRetries, 30.5, now, now))

	rows, err := repo.List(context.Background(), "+15551234567", model.JobFailed, 0, -3)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, int64(7), rows[0].ID)
	require.Equal(t, model.JobFailed, rows[0].Status)
	require.Equal(t, model.MsgMaxRetries, rows[0].ResultMessage)
	require.NoError(t, mock.ExpectationsWereMet())
}
