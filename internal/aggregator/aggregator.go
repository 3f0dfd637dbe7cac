// Package aggregator folds terminal task outcomes into learner reports. The
// fold is pure: no clocks, no I/O, no mutation of its inputs. Outcomes are
// canonically ordered before any float arithmetic, so every permutation of
// the same outcome set produces a bit-identical report.
package aggregator

import (
	"context"
	"sort"
	"sync"
	"time"

	"ace-pipeline/internal/common/logger"
	"ace-pipeline/internal/common/metrics"
	"ace-pipeline/internal/models"
)

// Thresholds parameterizes the report verdicts.
type Thresholds struct {
	PassingScore        float64
	ExcellenceThreshold float64

	// DimensionWeights drives the overall score. A dimension absent from the
	// report's means contributes nothing, and its weight leaves the
	// normalization sum.
	DimensionWeights map[models.Dimension]float64
}

// Aggregator builds reports and hands them to an optional archive.
type Aggregator struct {
	thresholds Thresholds
	archive    Archive
	logger     logger.Logger

	mu        sync.RWMutex
	withdrawn map[string]struct{}
}

// Archive persists finished reports. Implemented by the Elasticsearch
// archive; nil disables archiving.
type Archive interface {
	Store(ctx context.Context, report *models.Report) error
}

func New(thresholds Thresholds, archive Archive, log logger.Logger) *Aggregator {
	return &Aggregator{
		thresholds: thresholds,
		archive:    archive,
		logger:     log,
		withdrawn:  make(map[string]struct{}),
	}
}

// Withdraw marks an assignment as withdrawn. In-flight tasks for it may still
// finish, but no report will be produced from their outcomes afterwards.
func (a *Aggregator) Withdraw(assignmentID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.withdrawn[assignmentID] = struct{}{}
	a.logger.Info("assignment withdrawn", map[string]interface{}{
		"assignmentId": assignmentID,
	})
}

// IsWithdrawn reports whether reports for the assignment are suppressed.
func (a *Aggregator) IsWithdrawn(assignmentID string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.withdrawn[assignmentID]
	return ok
}

// BuildReport computes the report for one (learner, assignment) pair from the
// outcomes visible now and the manifest of expected tasks. Outcomes for other
// assignments are ignored; a nil or empty outcome set yields an empty,
// fully-incomplete report.
func BuildReport(manifest models.Manifest, outcomes []*models.TaskOutcome, thresholds Thresholds) *models.Report {
	relevant := make([]*models.TaskOutcome, 0, len(outcomes))
	for _, o := range outcomes {
		if o != nil && o.AssignmentID == manifest.AssignmentID && o.LearnerID == manifest.LearnerID {
			relevant = append(relevant, o)
		}
	}
	// canonical order: float folds must not depend on arrival order
	sort.Slice(relevant, func(i, j int) bool { return relevant[i].TaskID < relevant[j].TaskID })

	report := &models.Report{
		LearnerID:    manifest.LearnerID,
		AssignmentID: manifest.AssignmentID,
		Dimensions:   make(map[models.Dimension]float64),
	}

	succeeded := make(map[string]*models.TaskOutcome, len(relevant))
	var newest time.Time
	for _, o := range relevant {
		if o.State == models.StateSucceeded && o.Score != nil {
			succeeded[o.TaskID] = o
		}
		if o.Terminal() && o.RecordedAt.After(newest) {
			newest = o.RecordedAt
		}
	}
	report.ComputedAt = newest

	// per-dimension weighted mean over succeeded vectors, canonical
	// dimension order
	weightSums := make(map[models.Dimension]float64)
	scoreSums := make(map[models.Dimension]float64)
	var confidenceSum float64
	var confidenceCount int

	for _, taskID := range sortedKeys(succeeded) {
		vector := succeeded[taskID].Score
		for _, dim := range models.AllDimensions {
			ds, ok := vector.Scores[dim]
			if !ok || ds.Weight <= 0 {
				continue
			}
			scoreSums[dim] += ds.Score * ds.Weight
			weightSums[dim] += ds.Weight
		}
		if vector.Confidence != nil {
			confidenceSum += *vector.Confidence
			confidenceCount++
		}
	}

	for _, dim := range models.AllDimensions {
		if weightSums[dim] > 0 {
			report.Dimensions[dim] = scoreSums[dim] / weightSums[dim]
		} else {
			report.Gaps = append(report.Gaps, dim)
		}
	}

	// overall score: cross-dimension weighted mean over scored dimensions
	var overallSum, overallWeight float64
	for _, dim := range models.AllDimensions {
		mean, ok := report.Dimensions[dim]
		if !ok {
			continue
		}
		w := thresholds.DimensionWeights[dim]
		if w <= 0 {
			continue
		}
		overallSum += mean * w
		overallWeight += w
	}
	if overallWeight > 0 {
		report.OverallScore = overallSum / overallWeight
		report.Passed = report.OverallScore >= thresholds.PassingScore
		report.Excellence = report.OverallScore >= thresholds.ExcellenceThreshold
	}

	if confidenceCount > 0 {
		mean := confidenceSum / float64(confidenceCount)
		report.MeanConfidence = &mean
	}

	// completeness against the manifest
	if len(manifest.TaskIDs) > 0 {
		done := 0
		for _, taskID := range manifest.TaskIDs {
			if _, ok := succeeded[taskID]; ok {
				done++
			} else {
				report.IncompleteTaskIDs = append(report.IncompleteTaskIDs, taskID)
			}
		}
		sort.Strings(report.IncompleteTaskIDs)
		report.Completeness = float64(done) / float64(len(manifest.TaskIDs))
	}
	report.Partial = report.Completeness < 1

	return report
}

// Aggregate builds the report, records its completeness and archives it.
// Withdrawn assignments yield no report.
func (a *Aggregator) Aggregate(ctx context.Context, manifest models.Manifest, outcomes []*models.TaskOutcome) (*models.Report, error) {
	if a.IsWithdrawn(manifest.AssignmentID) {
		a.logger.Debug("report suppressed for withdrawn assignment", map[string]interface{}{
			"assignmentId": manifest.AssignmentID,
		})
		return nil, nil
	}

	report := BuildReport(manifest, outcomes, a.thresholds)

	metrics.ReportCompleteness.WithLabelValues(manifest.AssignmentID).Set(report.Completeness)
	a.logger.Info("report computed", map[string]interface{}{
		"learnerId":    report.LearnerID,
		"assignmentId": report.AssignmentID,
		"completeness": report.Completeness,
		"partial":      report.Partial,
		"overallScore": report.OverallScore,
	})

	if a.archive != nil {
		if err := a.archive.Store(ctx, report); err != nil {
			a.logger.WithError(err).Warn("report archive failed", map[string]interface{}{
				"assignmentId": report.AssignmentID,
			})
		}
	}
	return report, nil
}

func sortedKeys(m map[string]*models.TaskOutcome) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
