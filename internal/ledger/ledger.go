// Package ledger records every evaluation fault for operator review and
// replay tooling. The ledger is append-only: entries are never updated or
// deleted, and a task's full failure history survives its eventual success.
package ledger

import (
	"context"
	"sync"
	"time"
)

// Entry is one recorded fault. Terminal marks the entry that dead-lettered
// the task; non-terminal entries are intermediate attempt failures.
type Entry struct {
	TaskID       string    `json:"task_id"`
	LearnerID    string    `json:"learner_id"`
	AssignmentID string    `json:"assignment_id"`
	Attempt      int       `json:"attempt"`
	Code         string    `json:"code"`
	Message      string    `json:"message"`
	Retryable    bool      `json:"retryable"`
	Terminal     bool      `json:"terminal"`
	RecordedAt   time.Time `json:"recorded_at"`
}

// Ledger is the append-only fault record.
type Ledger interface {
	Append(ctx context.Context, entry Entry) error
	ListByTask(ctx context.Context, taskID string) ([]Entry, error)
	ListDeadLettered(ctx context.Context, assignmentID string) ([]Entry, error)
	IsDeadLettered(ctx context.Context, taskID string) (bool, error)
}

// MemoryLedger keeps entries in process. Used in tests and as a fallback when
// no database is configured.
type MemoryLedger struct {
	mu      sync.RWMutex
	entries []Entry
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{}
}

func (l *MemoryLedger) Append(ctx context.Context, entry Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if entry.RecordedAt.IsZero() {
		entry.RecordedAt = time.Now().UTC()
	}
	l.entries = append(l.entries, entry)
	return nil
}

func (l *MemoryLedger) ListByTask(ctx context.Context, taskID string) ([]Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []Entry
	for _, e := range l.entries {
		if e.TaskID == taskID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (l *MemoryLedger) ListDeadLettered(ctx context.Context, assignmentID string) ([]Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []Entry
	for _, e := range l.entries {
		if e.Terminal && e.AssignmentID == assignmentID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (l *MemoryLedger) IsDeadLettered(ctx context.Context, taskID string) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, e := range l.entries {
		if e.Terminal && e.TaskID == taskID {
			return true, nil
		}
	}
	return false, nil
}
