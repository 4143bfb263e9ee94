package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"livesync/pkg/logger"
)

// WorkerOfflineNotification a worker connection dropped
type WorkerOfflineNotification struct {
	WorkerID      string
	EndedSessions []string
	Available     int
	Total         int
	DetectedAt    time.Time
}

// FeishuNotifier sends operator alerts to a Feishu (Lark) bot webhook
type FeishuNotifier struct {
	webhookURL string
	client     *http.Client
}

// NewFeishuNotifier creates a notifier. An empty webhookURL disables it.
func NewFeishuNotifier(webhookURL string) *FeishuNotifier {
	if webhookURL == "" {
		logger.Warn("Feishu webhook URL not configured, worker alerts will be disabled")
	}
	return &FeishuNotifier{
		webhookURL: webhookURL,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Enabled reports whether a webhook is configured
func (f *FeishuNotifier) Enabled() bool {
	return f.webhookURL != ""
}

// SendWorkerOffline posts a worker-offline card
func (f *FeishuNotifier) SendWorkerOffline(ctx context.Context, n WorkerOfflineNotification) error {
	if !f.Enabled() {
		return nil
	}

	payload, err := json.Marshal(buildWorkerOfflineMessage(n))
	if err != nil {
		return fmt.Errorf("failed to marshal Feishu message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send Feishu notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("Feishu API returned status code: %d", resp.StatusCode)
	}

	logger.InfoCtx(ctx, "Feishu alert sent for %s", n.WorkerID)
	return nil
}

func buildWorkerOfflineMessage(n WorkerOfflineNotification) map[string]interface{} {
	sessions := "none"
	if len(n.EndedSessions) > 0 {
		sessions = strings.Join(n.EndedSessions, ", ")
	}

	return map[string]interface{}{
		"msg_type": "interactive",
		"card": map[string]interface{}{
			"header": map[string]interface{}{
				"template": "red",
				"title": map[string]interface{}{
					"content": "AI worker offline",
					"tag":     "plain_text",
				},
			},
			"elements": []interface{}{
				map[string]interface{}{
					"tag": "div",
					"fields": []interface{}{
						map[string]interface{}{
							"is_short": true,
							"text": map[string]interface{}{
								"content": fmt.Sprintf("**Worker**\n%s", n.WorkerID),
								"tag":     "lark_md",
							},
						},
						map[string]interface{}{
							"is_short": true,
							"text": map[string]interface{}{
								"content": fmt.Sprintf("**Available slots**\n%d/%d", n.Available, n.Total),
								"tag":     "lark_md",
							},
						},
					},
				},
				map[string]interface{}{
					"tag": "div",
					"text": map[string]interface{}{
						"content": fmt.Sprintf("**Ended sessions**: %s", sessions),
						"tag":     "lark_md",
					},
				},
				map[string]interface{}{
					"tag": "note",
					"elements": []interface{}{
						map[string]interface{}{
							"content": "Detected at " + n.DetectedAt.Format("2006-01-02 15:04:05"),
							"tag":     "plain_text",
						},
					},
				},
			},
		},
	}
}
