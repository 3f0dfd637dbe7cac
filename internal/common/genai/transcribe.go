// internal/common/genai/transcribe.go
package genai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	evalerrors "ace-pipeline/internal/common/errors"
)

// TranscriptionClient talks to the speech-to-text service. The service
// fetches the recording itself; we only hand it the reference, which keeps
// large audio bodies out of the pipeline.
type TranscriptionClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// TranscriptResult is the transcription service's response.
type TranscriptResult struct {
	Transcript string  `json:"transcript"`
	Model      string  `json:"model,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
}

func NewTranscriptionClient(baseURL, apiKey string, timeout time.Duration) *TranscriptionClient {
	return &TranscriptionClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

// Transcribe converts a referenced recording to text. A 4xx answer means the
// payload itself is bad (corrupt or unreadable audio) and is not retryable;
// network errors, timeouts and 5xx answers are.
func (c *TranscriptionClient) Transcribe(ctx context.Context, audioURL, format string) (*TranscriptResult, error) {
	body, _ := json.Marshal(map[string]interface{}{
		"audio_url": audioURL,
		"format":    format,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/transcribe", bytes.NewBuffer(body))
	if err != nil {
		return nil, evalerrors.NewUpstreamFailureError("transcription", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, evalerrors.NewUpstreamTimeoutError("transcription")
		}
		return nil, evalerrors.NewUpstreamFailureError("transcription", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		// fall through to decode
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, evalerrors.NewSchemaError(fmt.Sprintf("audio rejected by transcription service: status %d", resp.StatusCode))
	default:
		return nil, evalerrors.NewUpstreamFailureError("transcription", fmt.Errorf("status %d", resp.StatusCode))
	}

	var result TranscriptResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, evalerrors.NewUpstreamFailureError("transcription", fmt.Errorf("decode error: %w", err))
	}

	if strings.TrimSpace(result.Transcript) == "" {
		return nil, evalerrors.NewUpstreamFailureError("transcription", fmt.Errorf("empty transcript returned"))
	}

	return &result, nil
}
