// internal/aggregator/collector.go
package aggregator

import (
	"context"
	"fmt"
	"sync"

	"ace-pipeline/internal/common/logger"
	"ace-pipeline/internal/models"
)

// Collector joins terminal outcomes with their assignment manifests and
// recomputes the report whenever either side advances. It implements the
// coordinator's OutcomeSink. Duplicate outcomes for a task overwrite rather
// than double-count, so an at-least-once upstream cannot skew the fold.
type Collector struct {
	aggregator *Aggregator
	logger     logger.Logger

	mu        sync.Mutex
	manifests map[string]models.Manifest
	outcomes  map[string]map[string]*models.TaskOutcome // assignment -> task -> outcome
}

func NewCollector(a *Aggregator, log logger.Logger) *Collector {
	return &Collector{
		aggregator: a,
		logger:     log,
		manifests:  make(map[string]models.Manifest),
		outcomes:   make(map[string]map[string]*models.TaskOutcome),
	}
}

// RegisterManifest announces the expected task set for an assignment.
// Outcomes that arrived before the manifest are folded immediately.
func (c *Collector) RegisterManifest(ctx context.Context, manifest models.Manifest) (*models.Report, error) {
	c.mu.Lock()
	c.manifests[manifest.AssignmentID] = manifest
	outcomes := c.snapshotLocked(manifest.AssignmentID)
	c.mu.Unlock()

	return c.aggregator.Aggregate(ctx, manifest, outcomes)
}

// Consume records one terminal outcome and recomputes the report when the
// assignment's manifest is known.
func (c *Collector) Consume(ctx context.Context, outcome *models.TaskOutcome) error {
	if !outcome.Terminal() {
		return fmt.Errorf("collector only accepts terminal outcomes, got %s for task %s", outcome.State, outcome.TaskID)
	}

	c.mu.Lock()
	byTask, ok := c.outcomes[outcome.AssignmentID]
	if !ok {
		byTask = make(map[string]*models.TaskOutcome)
		c.outcomes[outcome.AssignmentID] = byTask
	}
	byTask[outcome.TaskID] = outcome

	manifest, haveManifest := c.manifests[outcome.AssignmentID]
	outcomes := c.snapshotLocked(outcome.AssignmentID)
	c.mu.Unlock()

	if !haveManifest {
		c.logger.Debug("outcome buffered until manifest arrives", map[string]interface{}{
			"taskId":       outcome.TaskID,
			"assignmentId": outcome.AssignmentID,
		})
		return nil
	}

	_, err := c.aggregator.Aggregate(ctx, manifest, outcomes)
	return err
}

// Report recomputes the report for an assignment on demand.
func (c *Collector) Report(ctx context.Context, assignmentID string) (*models.Report, error) {
	c.mu.Lock()
	manifest, ok := c.manifests[assignmentID]
	outcomes := c.snapshotLocked(assignmentID)
	c.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("no manifest registered for assignment %s", assignmentID)
	}
	return c.aggregator.Aggregate(ctx, manifest, outcomes)
}

func (c *Collector) snapshotLocked(assignmentID string) []*models.TaskOutcome {
	byTask := c.outcomes[assignmentID]
	out := make([]*models.TaskOutcome, 0, len(byTask))
	for _, o := range byTask {
		out = append(out, o)
	}
	return out
}
