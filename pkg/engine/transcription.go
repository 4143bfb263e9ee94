package engine

import (
	"context"
	"net/http"
	"time"
)

// TranscriptionRequest body of every transcription control call
type TranscriptionRequest struct {
	VideoURL  string  `json:"videoUrl"`
	StartTime float64 `json:"startTime"`
}

// TranscriptionClient controls the shared transcription engine
type TranscriptionClient struct {
	httpClient
}

// NewTranscriptionClient creates a client for the engine at baseURL
func NewTranscriptionClient(baseURL string, timeout time.Duration) *TranscriptionClient {
	return &TranscriptionClient{httpClient: newHTTPClient("transcription engine", baseURL, timeout)}
}

// Start begins transcribing videoURL at offset seconds
func (c *TranscriptionClient) Start(ctx context.Context, videoURL string, offset float64) error {
	_, err := c.doRequest(ctx, http.MethodPost, "/start-asr", TranscriptionRequest{VideoURL: videoURL, StartTime: offset})
	return err
}

// Stop ends transcription of videoURL
func (c *TranscriptionClient) Stop(ctx context.Context, videoURL string) error {
	_, err := c.doRequest(ctx, http.MethodPost, "/stop-asr", TranscriptionRequest{VideoURL: videoURL})
	return err
}

// Seek repositions transcription of videoURL
func (c *TranscriptionClient) Seek(ctx context.Context, videoURL string, offset float64) error {
	_, err := c.doRequest(ctx, http.MethodPost, "/seek-asr", TranscriptionRequest{VideoURL: videoURL, StartTime: offset})
	return err
}

// Pause halts transcription without dropping it
func (c *TranscriptionClient) Pause(ctx context.Context, videoURL string) error {
	_, err := c.doRequest(ctx, http.MethodPost, "/pause-asr", TranscriptionRequest{VideoURL: videoURL})
	return err
}

// Resume continues a paused transcription from offset
func (c *TranscriptionClient) Resume(ctx context.Context, videoURL string, offset float64) error {
	_, err := c.doRequest(ctx, http.MethodPost, "/resume-asr", TranscriptionRequest{VideoURL: videoURL, StartTime: offset})
	return err
}
