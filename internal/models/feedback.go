// internal/models/feedback.go
package models

// FeedbackForScore maps a [0, 1] score to its human-readable band. Bands are
// shared by every evaluator so report feedback reads consistently across
// kinds.
func FeedbackForScore(score float64) string {
	switch {
	case score >= 0.9:
		return "Excellent"
	case score >= 0.8:
		return "Good"
	case score >= 0.7:
		return "Satisfactory"
	default:
		return "Needs improvement"
	}
}
