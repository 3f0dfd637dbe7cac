// internal/ledger/postgres.go
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// PostgresLedger persists fault entries in the fault_ledger table. Inserts
// only; the schema carries no update path.
type PostgresLedger struct {
	db *sql.DB
}

// Schema is the DDL for the fault ledger table, applied by migrations.
const Schema = `
CREATE TABLE IF NOT EXISTS fault_ledger (
	id            BIGSERIAL PRIMARY KEY,
	task_id       TEXT        NOT NULL,
	learner_id    TEXT        NOT NULL,
	assignment_id TEXT        NOT NULL,
	attempt       INT         NOT NULL,
	code          TEXT        NOT NULL,
	message       TEXT        NOT NULL,
	retryable     BOOLEAN     NOT NULL,
	terminal      BOOLEAN     NOT NULL,
	recorded_at   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_fault_ledger_task ON fault_ledger (task_id);
CREATE INDEX IF NOT EXISTS idx_fault_ledger_assignment ON fault_ledger (assignment_id) WHERE terminal;
`

func NewPostgresLedger(db *sql.DB) *PostgresLedger {
	return &PostgresLedger{db: db}
}

func (l *PostgresLedger) Append(ctx context.Context, entry Entry) error {
	if entry.RecordedAt.IsZero() {
		entry.RecordedAt = time.Now().UTC()
	}
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO fault_ledger
			(task_id, learner_id, assignment_id, attempt, code, message, retryable, terminal, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		entry.TaskID, entry.LearnerID, entry.AssignmentID, entry.Attempt,
		entry.Code, entry.Message, entry.Retryable, entry.Terminal, entry.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("append fault entry: %w", err)
	}
	return nil
}

func (l *PostgresLedger) ListByTask(ctx context.Context, taskID string) ([]Entry, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT task_id, learner_id, assignment_id, attempt, code, message, retryable, terminal, recorded_at
		FROM fault_ledger WHERE task_id = $1 ORDER BY id`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list fault entries: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func (l *PostgresLedger) ListDeadLettered(ctx context.Context, assignmentID string) ([]Entry, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT task_id, learner_id, assignment_id, attempt, code, message, retryable, terminal, recorded_at
		FROM fault_ledger WHERE assignment_id = $1 AND terminal ORDER BY id`, assignmentID)
	if err != nil {
		return nil, fmt.Errorf("list dead-lettered entries: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func (l *PostgresLedger) IsDeadLettered(ctx context.Context, taskID string) (bool, error) {
	var exists bool
	err := l.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM fault_ledger WHERE task_id = $1 AND terminal)`, taskID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check dead-letter state: %w", err)
	}
	return exists, nil
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(
			&e.TaskID, &e.LearnerID, &e.AssignmentID, &e.Attempt,
			&e.Code, &e.Message, &e.Retryable, &e.Terminal, &e.RecordedAt,
		); err != nil {
			return nil, fmt.Errorf("scan fault entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
