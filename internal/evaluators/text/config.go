// internal/evaluators/text/config.go
package text

// Config for the free-text evaluator.
type Config struct {
	// MinWords rejects trivially short submissions before spending an
	// upstream call on them.
	MinWords int
}

func DefaultConfig() *Config {
	return &Config{
		MinWords: 3,
	}
}
