// internal/models/score.go
package models

import (
	"sort"
	"time"
)

// Dimension is one of the three ACE rubric axes.
type Dimension string

const (
	DimAnalysis      Dimension = "analysis"
	DimCommunication Dimension = "communication"
	DimEvaluation    Dimension = "evaluation"
)

// AllDimensions in canonical order. Aggregation iterates this slice so that
// recomputation is deterministic regardless of map iteration order.
var AllDimensions = []Dimension{DimAnalysis, DimCommunication, DimEvaluation}

// Rubric declares which dimensions apply to a task and with what weight.
// A dimension absent from Weights is not applicable — never implicitly zero.
type Rubric struct {
	// Weights maps each declared dimension to its aggregation weight.
	// Weights need not sum to 1; the aggregator normalizes by the sum of
	// contributing weights.
	Weights map[Dimension]float64 `json:"weights"`
}

// Declares reports whether the rubric declares the given dimension with a
// positive weight.
func (r Rubric) Declares(d Dimension) bool {
	w, ok := r.Weights[d]
	return ok && w > 0
}

// DeclaredDimensions returns the declared dimensions in canonical order.
func (r Rubric) DeclaredDimensions() []Dimension {
	out := make([]Dimension, 0, len(r.Weights))
	for _, d := range AllDimensions {
		if r.Declares(d) {
			out = append(out, d)
		}
	}
	return out
}

// DimensionScore is one scored rubric axis inside a ScoreVector.
type DimensionScore struct {
	Score    float64 `json:"score"`  // always within [0, 1]
	Weight   float64 `json:"weight"` // rubric-declared weight, copied for pure aggregation
	Feedback string  `json:"feedback,omitempty"`
}

// ScoreVector is the immutable result of evaluating one task. Only
// rubric-declared dimensions appear in Scores. Confidence is set for
// model-derived scores (text, audio) and nil for deterministic MCQ scoring.
type ScoreVector struct {
	TaskID        string                       `json:"task_id"`
	EvaluatorKind TaskKind                     `json:"evaluator_kind"`
	EvaluatedAt   time.Time                    `json:"evaluated_at"`
	Scores        map[Dimension]DimensionScore `json:"scores"`
	Confidence    *float64                     `json:"confidence,omitempty"`
	Feedback      string                       `json:"feedback,omitempty"`
	DurationMS    int64                        `json:"duration_ms"`
	Metadata      map[string]string            `json:"metadata,omitempty"`
}

// Dimensions returns the scored dimensions in canonical order.
func (v *ScoreVector) Dimensions() []Dimension {
	out := make([]Dimension, 0, len(v.Scores))
	for d := range v.Scores {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ClampScore bounds a raw score into the [0, 1] range every dimension score
// must satisfy.
func ClampScore(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}
