// internal/ledger/postgres_test.go
package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresLedger_Append(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	l := NewPostgresLedger(db)
	e := Entry{
		TaskID:       "t-1",
		LearnerID:    "learner-1",
		AssignmentID: "a-1",
		Attempt:      3,
		Code:         "UPSTREAM_TIMEOUT",
		Message:      "Service 'scoring' exceeded evaluation timeout",
		Retryable:    true,
		Terminal:     false,
		RecordedAt:   time.Now().UTC(),
	}

	mock.ExpectExec("INSERT INTO fault_ledger").
		WithArgs(e.TaskID, e.LearnerID, e.AssignmentID, e.Attempt,
			e.Code, e.Message, e.Retryable, e.Terminal, e.RecordedAt).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, l.Append(context.Background(), e))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLedger_ListDeadLettered(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	l := NewPostgresLedger(db)
	now := time.Now().UTC()

	rows := sqlmock.NewRows([]string{
		"task_id", "learner_id", "assignment_id", "attempt",
		"code", "message", "retryable", "terminal", "recorded_at",
	}).AddRow("t-2", "learner-1", "a-1", 5, "RETRY_BUDGET_EXHAUSTED", "Retry budget exhausted", false, true, now)

	mock.ExpectQuery("SELECT (.+) FROM fault_ledger WHERE assignment_id").
		WithArgs("a-1").
		WillReturnRows(rows)

	entries, err := l.ListDeadLettered(context.Background(), "a-1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "t-2", entries[0].TaskID)
	assert.True(t, entries[0].Terminal)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLedger_IsDeadLettered(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	l := NewPostgresLedger(db)

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("t-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	dead, err := l.IsDeadLettered(context.Background(), "t-1")
	require.NoError(t, err)
	assert.True(t, dead)
	assert.NoError(t, mock.ExpectationsWereMet())
}
