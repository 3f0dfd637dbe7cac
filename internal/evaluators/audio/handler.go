// internal/evaluators/audio/handler.go
package audio

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	evalerrors "ace-pipeline/internal/common/errors"
	"ace-pipeline/internal/common/genai"
	"ace-pipeline/internal/common/logger"
	"ace-pipeline/internal/common/validation"
	"ace-pipeline/internal/evaluators"
	"ace-pipeline/internal/evaluators/text"
	"ace-pipeline/internal/models"
)

// Transcriber is the speech-to-text contract. *genai.TranscriptionClient
// satisfies it.
type Transcriber interface {
	Transcribe(ctx context.Context, audioURL, format string) (*genai.TranscriptResult, error)
}

// Handler scores spoken-response tasks in two upstream steps: transcribe the
// recording, then score the transcript through the same service the text
// evaluator uses. Both steps share the task's single timeout budget; the
// coordinator grants audio a much longer one.
type Handler struct {
	config      *Config
	transcriber Transcriber
	scorer      text.Scorer
	rubrics     evaluators.RubricSource
	logger      logger.Logger
}

func NewHandler(config *Config, transcriber Transcriber, scorer text.Scorer, rubrics evaluators.RubricSource, log logger.Logger) *Handler {
	if config == nil {
		config = DefaultConfig()
	}
	return &Handler{
		config:      config,
		transcriber: transcriber,
		scorer:      scorer,
		rubrics:     rubrics,
		logger:      log.WithFields(map[string]interface{}{"evaluator": string(models.KindAudio)}),
	}
}

func (h *Handler) Kind() models.TaskKind {
	return models.KindAudio
}

func (h *Handler) Evaluate(ctx context.Context, task *models.Task) (*models.ScoreVector, error) {
	start := time.Now()

	if err := validation.ValidatePayload(models.KindAudio, task.Payload); err != nil {
		return nil, evalerrors.NewSchemaError(err.Error())
	}

	var payload models.AudioPayload
	if err := json.Unmarshal(task.Payload, &payload); err != nil {
		return nil, evalerrors.NewSchemaError(fmt.Sprintf("decode audio payload: %v", err))
	}
	if h.config.MaxDurationSeconds > 0 && payload.DurationSeconds > h.config.MaxDurationSeconds {
		return nil, evalerrors.NewSchemaError(fmt.Sprintf(
			"recording of %.0fs exceeds the %.0fs limit", payload.DurationSeconds, h.config.MaxDurationSeconds))
	}

	rubric, ok := h.rubrics.Rubric(task.RubricRef)
	if !ok {
		return nil, evalerrors.NewSchemaError(fmt.Sprintf("unknown rubric_ref: %s", task.RubricRef))
	}

	transcript, err := h.transcriber.Transcribe(ctx, payload.AudioURL, payload.Format)
	if err != nil {
		return nil, err
	}

	h.logger.Debug("audio transcribed", map[string]interface{}{
		"taskId":           task.TaskID,
		"transcriptLength": len(transcript.Transcript),
	})

	result, err := h.scorer.ScoreText(ctx, transcript.Transcript)
	if err != nil {
		return nil, err
	}

	vector := text.BuildVector(task.TaskID, models.KindAudio, rubric, result)
	vector.DurationMS = time.Since(start).Milliseconds()
	vector.Metadata = map[string]string{
		"transcript": transcript.Transcript,
	}
	if transcript.Model != "" {
		vector.Metadata["transcription_model"] = transcript.Model
	}

	return vector, nil
}
