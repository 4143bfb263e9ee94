package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// AnalyzeRequest asks the AI engine to analyze a whole video offline
type AnalyzeRequest struct {
	VideoURL   string `json:"videoUrl"`
	WebhookURL string `json:"webhookUrl"`
}

// AIClient submits analysis jobs to the AI engine. Results come back through
// the webhook.
type AIClient struct {
	httpClient
}

// NewAIClient creates a client for the engine at baseURL
func NewAIClient(baseURL string, timeout time.Duration) *AIClient {
	return &AIClient{httpClient: newHTTPClient("ai engine", baseURL, timeout)}
}

// Analyze submits req and returns the engine's raw acknowledgement
func (c *AIClient) Analyze(ctx context.Context, req AnalyzeRequest) (json.RawMessage, error) {
	data, err := c.doRequest(ctx, http.MethodPost, "/start-analysis", req)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 || !json.Valid(data) {
		return nil, nil
	}
	return json.RawMessage(data), nil
}
