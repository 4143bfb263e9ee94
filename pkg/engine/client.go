// Package engine holds HTTP clients for the external transcription and AI
// engines.
package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"syscall"
	"time"

	"livesync/pkg/logger"
)

// ErrorResponse error body returned by the engines
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// IsUnavailable reports whether err means the engine is not listening
func IsUnavailable(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED)
}

type httpClient struct {
	name       string
	baseURL    string
	httpClient *http.Client
}

func newHTTPClient(name, baseURL string, timeout time.Duration) httpClient {
	return httpClient{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (c *httpClient) doRequest(ctx context.Context, method, path string, body interface{}) ([]byte, error) {
	url := c.baseURL + path

	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
		logger.DebugCtx(ctx, "%s request: %s %s, body: %s", c.name, method, url, string(jsonData))
	} else {
		logger.DebugCtx(ctx, "%s request: %s %s", c.name, method, url)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute HTTP request: %w", err)
	}
	defer resp.Body.Close()

	respData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	logger.DebugCtx(ctx, "%s response: status %d, body: %s", c.name, resp.StatusCode, string(respData))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp ErrorResponse
		if err := json.Unmarshal(respData, &errResp); err == nil && errResp.Detail != "" {
			return nil, fmt.Errorf("%s error (status %d): %s", c.name, resp.StatusCode, errResp.Detail)
		}
		return nil, fmt.Errorf("%s error (status %d): %s", c.name, resp.StatusCode, string(respData))
	}

	return respData, nil
}
