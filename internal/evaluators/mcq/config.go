// internal/evaluators/mcq/config.go
package mcq

// Config for the multiple-choice evaluator. MCQ scoring is deterministic and
// local, so the only knob is the communication cap: answer selection alone
// demonstrates limited communication skill, so that dimension is bounded even
// at perfect accuracy.
type Config struct {
	CommunicationCap float64
}

func DefaultConfig() *Config {
	return &Config{
		CommunicationCap: 0.8,
	}
}
