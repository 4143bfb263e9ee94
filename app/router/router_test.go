package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"livesync/app/handler"
	"livesync/internal/model"
	"livesync/internal/orchestrator"
	"livesync/pkg/async"
	"livesync/pkg/constants"
	"livesync/pkg/engine"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type noopEngine struct{}

func (noopEngine) Start(context.Context, string, float64) error  { return nil }
func (noopEngine) Stop(context.Context, string) error            { return nil }
func (noopEngine) Seek(context.Context, string, float64) error   { return nil }
func (noopEngine) Pause(context.Context, string) error           { return nil }
func (noopEngine) Resume(context.Context, string, float64) error { return nil }

func newServer(t *testing.T, opts Options) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	o := orchestrator.New(orchestrator.Options{
		PoolSize:        1,
		ReconnectWindow: time.Minute,
		SeekCooldown:    time.Second,
		CallTimeout:     time.Second,
	}, noopEngine{}, orchestrator.WithRunner(async.Inline(time.Second)))
	o.Start()

	engineRouter := gin.New()
	NewRouter(
		handler.NewWSHandler(o),
		handler.NewAPIHandler(o, engine.NewAIClient("http://127.0.0.1:1", time.Second), ""),
		opts,
	).Setup(engineRouter)

	srv := httptest.NewServer(engineRouter)
	t.Cleanup(func() {
		_ = o.Stop(context.Background())
		srv.Close()
	})
	return srv
}

func post(t *testing.T, url, body string, headers map[string]string) int {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	return resp.StatusCode
}

func TestRouter_WebhookAuthAndRateLimit(t *testing.T) {
	srv := newServer(t, Options{APIKey: "secret", WebhookRPS: 0.001, WebhookBurst: 2})
	body := `{"type":"caption","data":{"text":"hi"}}`

	assert.Equal(t, http.StatusUnauthorized, post(t, srv.URL+"/api/webhook", body, nil))
	assert.Equal(t, http.StatusOK, post(t, srv.URL+"/api/webhook", body, map[string]string{"X-API-Key": "secret"}))
	assert.Equal(t, http.StatusTooManyRequests, post(t, srv.URL+"/api/webhook", body, map[string]string{"X-API-Key": "secret"}))
}

func TestRouter_Health(t *testing.T) {
	srv := newServer(t, Options{})
	for _, path := range []string{"/health", "/api/health", "/api/workers/status"} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}
}

func readEvent(t *testing.T, ws *websocket.Conn, event string) model.Envelope {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		require.NoError(t, ws.SetReadDeadline(deadline))
		var env model.Envelope
		require.NoError(t, ws.ReadJSON(&env))
		if env.Event == event {
			return env
		}
	}
}

func TestRouter_WebSocketSessionLifecycle(t *testing.T) {
	srv := newServer(t, Options{})
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	worker, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer worker.Close()
	require.NoError(t, worker.WriteJSON(map[string]interface{}{"event": "register-worker", "data": map[string]string{"workerId": "worker-1"}}))
	ack := readEvent(t, worker, constants.EventWorkerRegistered)
	assert.JSONEq(t, `{"success":true,"workerId":"worker-1"}`, string(ack.Data))

	viewer, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer viewer.Close()
	require.NoError(t, viewer.WriteJSON(map[string]interface{}{"event": "start-live-stream", "data": map[string]string{"videoUrl": "https://video/1"}}))

	created := readEvent(t, viewer, constants.EventSessionCreated)
	var res model.SessionResult
	require.NoError(t, json.Unmarshal(created.Data, &res))
	require.True(t, res.Success)
	assert.Equal(t, "worker-1", res.WorkerID)

	start := readEvent(t, worker, constants.EventStartProcessing)
	assert.Contains(t, string(start.Data), res.SessionID)

	require.NoError(t, worker.WriteJSON(map[string]interface{}{"event": "ai-boxes", "data": map[string]interface{}{"sessionId": res.SessionID, "boxes": []int{1, 2}}}))
	boxes := readEvent(t, viewer, constants.EventAIBoxes)
	assert.Contains(t, string(boxes.Data), `"boxes":[1,2]`)

	other, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer other.Close()
	require.NoError(t, other.WriteJSON(map[string]interface{}{"event": "start-live-stream", "data": map[string]string{"videoUrl": "https://video/2"}}))
	rejected := readEvent(t, other, constants.EventSessionError)
	assert.Contains(t, string(rejected.Data), `"error":"server_full"`)
}
