// internal/common/genai/client.go
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

// ScoringClient talks to the remote ACE scoring service that grades free
// text along the three rubric dimensions. Model internals are the service's
// business; only the HTTP contract lives here.
type ScoringClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// ScoreResult is the scoring service's response. Scores arrive in [0, 1].
type ScoreResult struct {
	AnalysisScore         float64 `json:"analysis_score"`
	CommunicationScore    float64 `json:"communication_score"`
	EvaluationScore       float64 `json:"evaluation_score"`
	Confidence            float64 `json:"confidence"`
	AnalysisFeedback      string  `json:"analysis_feedback"`
	CommunicationFeedback string  `json:"communication_feedback"`
	EvaluationFeedback    string  `json:"evaluation_feedback"`
	OverallFeedback       string  `json:"overall_feedback"`
}

func NewScoringClient(baseURL, apiKey string, timeout time.Duration) *ScoringClient {
	return &ScoringClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

// ScoreText submits one response body for ACE evaluation. Timeouts map to
// UPSTREAM_TIMEOUT and service errors to UPSTREAM_FAILURE; both are
// retryable at the coordinator level.
func (c *ScoringClient) ScoreText(ctx context.Context, text string) (*ScoreResult, error) {
	body, _ := json.Marshal(map[string]interface{}{"text": text})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/ace/score", bytes.NewBuffer(body))
	if err != nil {
		return nil, evalerrors.NewUpstreamFailureError("scoring", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, evalerrors.NewUpstreamTimeoutError("scoring")
		}
		return nil, evalerrors.NewUpstreamFailureError("scoring", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, evalerrors.NewUpstreamFailureError("scoring", fmt.Errorf("status %d", resp.StatusCode))
	}

	var result ScoreResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, evalerrors.NewUpstreamFailureError("scoring", fmt.Errorf("decode error: %w", err))
	}

	if result.Confidence < 0 || result.Confidence > 1 {
		result.Confidence = 0.5
	}

	return &result, nil
}
