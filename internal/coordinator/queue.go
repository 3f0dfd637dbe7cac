// internal/coordinator/queue.go
package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"ace-pipeline/internal/models"
)

// Lane separates task traffic so slow audio evaluations cannot starve the
// interactive mcq/text path.
type Lane string

const (
	LaneInteractive Lane = "interactive"
	LaneAudio       Lane = "audio"
)

// LaneFor maps a task kind to its lane.
func LaneFor(kind models.TaskKind) Lane {
	if kind == models.KindAudio {
		return LaneAudio
	}
	return LaneInteractive
}

// Delivery is one at-least-once handoff of a task to the coordinator. Attempt
// is 1-based and travels with the task so retries keep counting across
// process restarts.
type Delivery struct {
	Task    models.Task `json:"task"`
	Attempt int         `json:"attempt"`
}

// TaskQueue delivers tasks to worker lanes. The delivery contract is
// at-least-once: consumers must tolerate duplicates, which the outcome store
// absorbs.
type TaskQueue interface {
	// Enqueue schedules a first delivery.
	Enqueue(ctx context.Context, task *models.Task) error

	// EnqueueAfter schedules a redelivery once the delay elapses.
	EnqueueAfter(ctx context.Context, delivery Delivery, delay time.Duration) error

	// Dequeue blocks until a delivery is available on the lane or ctx ends.
	Dequeue(ctx context.Context, lane Lane) (*Delivery, error)
}

const (
	readyKeyPrefix   = "queue:ready:"
	delayedKeyPrefix = "queue:delayed:"
)

// RedisTaskQueue implements the queue on a Redis list per lane, with a sorted
// set holding delayed redeliveries until their visibility time. promoteDue
// moves ripe members from the sorted set onto the list.
type RedisTaskQueue struct {
	client *redis.Client
}

func NewRedisTaskQueue(client *redis.Client) *RedisTaskQueue {
	return &RedisTaskQueue{client: client}
}

func (q *RedisTaskQueue) Enqueue(ctx context.Context, task *models.Task) error {
	return q.push(ctx, Delivery{Task: *task, Attempt: 1})
}

func (q *RedisTaskQueue) EnqueueAfter(ctx context.Context, delivery Delivery, delay time.Duration) error {
	if delay <= 0 {
		return q.push(ctx, delivery)
	}

	data, err := json.Marshal(delivery)
	if err != nil {
		return fmt.Errorf("encode delivery: %w", err)
	}

	readyAt := time.Now().Add(delay)
	key := delayedKeyPrefix + string(LaneFor(delivery.Task.Kind))
	if err := q.client.ZAdd(ctx, key, redis.Z{
		Score:  float64(readyAt.UnixMilli()),
		Member: data,
	}).Err(); err != nil {
		return fmt.Errorf("schedule delayed delivery: %w", err)
	}
	return nil
}

func (q *RedisTaskQueue) Dequeue(ctx context.Context, lane Lane) (*Delivery, error) {
	for {
		if err := q.promoteDue(ctx, lane); err != nil {
			return nil, err
		}

		res, err := q.client.BLPop(ctx, time.Second, readyKeyPrefix+string(lane)).Result()
		if err == redis.Nil {
			// poll window elapsed, re-check the delayed set
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("dequeue: %w", err)
		}

		var delivery Delivery
		if err := json.Unmarshal([]byte(res[1]), &delivery); err != nil {
			return nil, fmt.Errorf("decode delivery: %w", err)
		}
		return &delivery, nil
	}
}

func (q *RedisTaskQueue) push(ctx context.Context, delivery Delivery) error {
	data, err := json.Marshal(delivery)
	if err != nil {
		return fmt.Errorf("encode delivery: %w", err)
	}
	key := readyKeyPrefix + string(LaneFor(delivery.Task.Kind))
	if err := q.client.RPush(ctx, key, data).Err(); err != nil {
		return fmt.Errorf("enqueue: %w", err)
	}
	return nil
}

// promoteDue moves every delayed delivery whose visibility time has passed
// onto the ready list.
func (q *RedisTaskQueue) promoteDue(ctx context.Context, lane Lane) error {
	delayedKey := delayedKeyPrefix + string(lane)
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)

	members, err := q.client.ZRangeByScore(ctx, delayedKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: now,
	}).Result()
	if err != nil {
		return fmt.Errorf("scan delayed deliveries: %w", err)
	}

	for _, m := range members {
		removed, err := q.client.ZRem(ctx, delayedKey, m).Result()
		if err != nil {
			return fmt.Errorf("promote delayed delivery: %w", err)
		}
		// another consumer promoted this member first
		if removed == 0 {
			continue
		}
		if err := q.client.RPush(ctx, readyKeyPrefix+string(lane), m).Err(); err != nil {
			return fmt.Errorf("promote delayed delivery: %w", err)
		}
	}
	return nil
}

// MemoryTaskQueue is the in-process queue used in tests.
type MemoryTaskQueue struct {
	mu    sync.Mutex
	lanes map[Lane]chan Delivery
}

func NewMemoryTaskQueue(buffer int) *MemoryTaskQueue {
	return &MemoryTaskQueue{
		lanes: map[Lane]chan Delivery{
			LaneInteractive: make(chan Delivery, buffer),
			LaneAudio:       make(chan Delivery, buffer),
		},
	}
}

func (q *MemoryTaskQueue) Enqueue(ctx context.Context, task *models.Task) error {
	return q.deliver(ctx, Delivery{Task: *task, Attempt: 1})
}

func (q *MemoryTaskQueue) EnqueueAfter(ctx context.Context, delivery Delivery, delay time.Duration) error {
	if delay <= 0 {
		return q.deliver(ctx, delivery)
	}
	time.AfterFunc(delay, func() {
		_ = q.deliver(context.Background(), delivery)
	})
	return nil
}

func (q *MemoryTaskQueue) Dequeue(ctx context.Context, lane Lane) (*Delivery, error) {
	select {
	case d := <-q.lane(lane):
		return &d, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (q *MemoryTaskQueue) deliver(ctx context.Context, delivery Delivery) error {
	select {
	case q.lane(LaneFor(delivery.Task.Kind)) <- delivery:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *MemoryTaskQueue) lane(lane Lane) chan Delivery {
	q.mu.Lock()
	defer q.mu.Unlock()
	ch, ok := q.lanes[lane]
	if !ok {
		ch = make(chan Delivery, 64)
		q.lanes[lane] = ch
	}
	return ch
}
