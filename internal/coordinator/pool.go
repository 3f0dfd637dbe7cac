// internal/coordinator/pool.go
package coordinator

import (
	"context"
	"sync"

	"ace-pipeline/internal/common/logger"
	"ace-pipeline/internal/common/metrics"
)

// Pool runs a fixed number of workers against one lane. Each worker blocks on
// Dequeue and hands deliveries to the coordinator; processing errors are
// logged and the delivery is dropped back to the queue's redelivery path.
type Pool struct {
	lane        Lane
	workers     int
	coordinator *Coordinator
	queue       TaskQueue
	logger      logger.Logger

	wg sync.WaitGroup
}

func NewPool(lane Lane, workers int, c *Coordinator, queue TaskQueue, log logger.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	return &Pool{
		lane:        lane,
		workers:     workers,
		coordinator: c,
		queue:       queue,
		logger:      log.WithFields(map[string]interface{}{"lane": string(lane)}),
	}
}

// Start launches the workers. They run until ctx is cancelled.
func (p *Pool) Start(ctx context.Context) {
	p.logger.Info("worker pool starting", map[string]interface{}{
		"workers": p.workers,
	})
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.run(ctx)
	}
}

// Wait blocks until every worker has exited.
func (p *Pool) Wait() {
	p.wg.Wait()
}

func (p *Pool) run(ctx context.Context) {
	defer p.wg.Done()
	for {
		delivery, err := p.queue.Dequeue(ctx, p.lane)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.WithError(err).Error("dequeue failed", nil)
			continue
		}

		metrics.TasksInFlight.WithLabelValues(string(p.lane)).Inc()
		if _, err := p.coordinator.Process(ctx, delivery); err != nil {
			p.logger.WithError(err).Error("delivery processing failed", map[string]interface{}{
				"taskId": delivery.Task.TaskID,
			})
		}
		metrics.TasksInFlight.WithLabelValues(string(p.lane)).Dec()
	}
}
