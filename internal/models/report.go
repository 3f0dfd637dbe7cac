// internal/models/report.go
package models

import "time"

// Report is the aggregate for a (learner, assignment) pair. It is a pure
// function of the terminal outcomes visible at aggregation time: recomputing
// with the same outcome set yields an identical Report, and a new Report
// replaces the old one rather than mutating it.
type Report struct {
	LearnerID    string `json:"learner_id"`
	AssignmentID string `json:"assignment_id"`

	// Dimensions holds the weighted mean per scored dimension. A dimension
	// with no contributing ScoreVector is omitted here and listed in Gaps
	// instead — omission is never conflated with a score of zero.
	Dimensions map[Dimension]float64 `json:"dimensions"`
	Gaps       []Dimension           `json:"gaps,omitempty"`

	// OverallScore is the dimension-weighted mean across scored dimensions.
	OverallScore float64 `json:"overall_score"`
	Passed       bool    `json:"passed"`
	Excellence   bool    `json:"excellence"`

	// Completeness is |succeeded| / |expected|. Partial is true whenever
	// completeness < 1; consumers must not treat a partial report as final.
	Completeness      float64  `json:"completeness"`
	Partial           bool     `json:"partial"`
	IncompleteTaskIDs []string `json:"incomplete_task_ids,omitempty"`

	// MeanConfidence is the average confidence over contributing
	// model-derived vectors. It is provenance only; confidence never
	// influences the weighted means above.
	MeanConfidence *float64 `json:"mean_confidence,omitempty"`

	// ComputedAt is derived from the newest contributing outcome, not the
	// wall clock, so recomputation stays deterministic.
	ComputedAt time.Time `json:"computed_at"`
}
