// internal/coordinator/store.go
package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"ace-pipeline/internal/models"
)

// OutcomeStore records terminal outcomes keyed by task_id. It is the
// idempotency anchor: PutTerminal is first-writer-wins, so a redelivered task
// racing its original delivery commits exactly one terminal outcome.
type OutcomeStore interface {
	// Get returns the recorded outcome, or nil when none exists.
	Get(ctx context.Context, taskID string) (*models.TaskOutcome, error)

	// PutTerminal records a terminal outcome unless one already exists.
	// Returns false when a prior terminal outcome won the race; the caller
	// must then treat the stored outcome as authoritative.
	PutTerminal(ctx context.Context, outcome *models.TaskOutcome) (bool, error)
}

const outcomeKeyPrefix = "outcome:"

// RedisOutcomeStore backs the store with Redis. SETNX provides the
// first-writer-wins commit.
type RedisOutcomeStore struct {
	client *redis.Client
}

func NewRedisOutcomeStore(client *redis.Client) *RedisOutcomeStore {
	return &RedisOutcomeStore{client: client}
}

func (s *RedisOutcomeStore) Get(ctx context.Context, taskID string) (*models.TaskOutcome, error) {
	val, err := s.client.Get(ctx, outcomeKeyPrefix+taskID).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get outcome: %w", err)
	}

	var outcome models.TaskOutcome
	if err := json.Unmarshal([]byte(val), &outcome); err != nil {
		return nil, fmt.Errorf("decode outcome: %w", err)
	}
	return &outcome, nil
}

func (s *RedisOutcomeStore) PutTerminal(ctx context.Context, outcome *models.TaskOutcome) (bool, error) {
	if !outcome.Terminal() {
		return false, fmt.Errorf("refusing to store non-terminal outcome for task %s", outcome.TaskID)
	}

	data, err := json.Marshal(outcome)
	if err != nil {
		return false, fmt.Errorf("encode outcome: %w", err)
	}

	ok, err := s.client.SetNX(ctx, outcomeKeyPrefix+outcome.TaskID, data, 0).Result()
	if err != nil {
		return false, fmt.Errorf("store outcome: %w", err)
	}
	return ok, nil
}

// MemoryOutcomeStore is the in-process store used in tests.
type MemoryOutcomeStore struct {
	mu       sync.Mutex
	outcomes map[string]*models.TaskOutcome
}

func NewMemoryOutcomeStore() *MemoryOutcomeStore {
	return &MemoryOutcomeStore{outcomes: make(map[string]*models.TaskOutcome)}
}

func (s *MemoryOutcomeStore) Get(ctx context.Context, taskID string) (*models.TaskOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o, ok := s.outcomes[taskID]; ok {
		clone := *o
		return &clone, nil
	}
	return nil, nil
}

func (s *MemoryOutcomeStore) PutTerminal(ctx context.Context, outcome *models.TaskOutcome) (bool, error) {
	if !outcome.Terminal() {
		return false, fmt.Errorf("refusing to store non-terminal outcome for task %s", outcome.TaskID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.outcomes[outcome.TaskID]; exists {
		return false, nil
	}
	clone := *outcome
	s.outcomes[outcome.TaskID] = &clone
	return true, nil
}
