// internal/evaluators/audio/config.go
package audio

// Config for the audio evaluator.
type Config struct {
	// MaxDurationSeconds rejects recordings the transcription service would
	// refuse anyway. Zero disables the check.
	MaxDurationSeconds float64
}

func DefaultConfig() *Config {
	return &Config{
		MaxDurationSeconds: 900,
	}
}
