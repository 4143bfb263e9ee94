package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"livesync/internal/hub/hubtest"
	"livesync/internal/model"
	"livesync/internal/session"
	"livesync/pkg/async"
	"livesync/pkg/constants"
	"livesync/pkg/notification"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	window   = 5 * time.Minute
	cooldown = 2 * time.Second
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type engine struct {
	mu    sync.Mutex
	calls []string
}

func (e *engine) record(call string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, call)
	return nil
}

func (e *engine) Start(_ context.Context, videoURL string, offset float64) error {
	return e.record(fmt.Sprintf("start %s@%g", videoURL, offset))
}
func (e *engine) Stop(_ context.Context, videoURL string) error {
	return e.record("stop " + videoURL)
}
func (e *engine) Seek(_ context.Context, videoURL string, offset float64) error {
	return e.record(fmt.Sprintf("seek %s@%g", videoURL, offset))
}
func (e *engine) Pause(_ context.Context, videoURL string) error {
	return e.record("pause " + videoURL)
}
func (e *engine) Resume(_ context.Context, videoURL string, offset float64) error {
	return e.record(fmt.Sprintf("resume %s@%g", videoURL, offset))
}

func (e *engine) Calls() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.calls...)
}

type publisher struct {
	mu       sync.Mutex
	statuses []model.PoolStatus
}

func (p *publisher) Save(_ context.Context, status model.PoolStatus) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.statuses = append(p.statuses, status)
	return nil
}

func (p *publisher) Last() (model.PoolStatus, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.statuses) == 0 {
		return model.PoolStatus{}, 0
	}
	return p.statuses[len(p.statuses)-1], len(p.statuses)
}

type alerter struct {
	mu     sync.Mutex
	alerts []notification.WorkerOfflineNotification
}

func (a *alerter) SendWorkerOffline(_ context.Context, n notification.WorkerOfflineNotification) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.alerts = append(a.alerts, n)
	return nil
}

func (a *alerter) Alerts() []notification.WorkerOfflineNotification {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]notification.WorkerOfflineNotification(nil), a.alerts...)
}

type timers struct {
	mu      sync.Mutex
	pending []func()
}

func (t *timers) schedule(_ time.Duration, fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending = append(t.pending, fn)
}

func (t *timers) fireAll() {
	t.mu.Lock()
	pending := t.pending
	t.pending = nil
	t.mu.Unlock()
	for _, fn := range pending {
		fn()
	}
}

type harness struct {
	t      *testing.T
	o      *Orchestrator
	clock  *clock
	engine *engine
	pub    *publisher
	alerts *alerter
	timers *timers
	conns  map[string]*hubtest.Conn
}

func newHarness(t *testing.T, size int) *harness {
	t.Helper()
	h := &harness{
		t:      t,
		clock:  &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
		engine: &engine{},
		pub:    &publisher{},
		alerts: &alerter{},
		timers: &timers{},
		conns:  make(map[string]*hubtest.Conn),
	}
	seq := 0
	h.o = New(Options{
		PoolSize:        size,
		ReconnectWindow: window,
		SeekCooldown:    cooldown,
		CallTimeout:     time.Second,
	}, h.engine,
		WithClock(h.clock.Now),
		WithRunner(async.Inline(time.Second)),
		WithScheduler(h.timers.schedule),
		WithPublisher(h.pub),
		WithAlerter(h.alerts),
		WithSessionOptions(session.WithIDGenerator(func(time.Time) string {
			seq++
			return fmt.Sprintf("s%d", seq)
		})),
	)
	h.o.Start()
	t.Cleanup(func() { _ = h.o.Stop(context.Background()) })
	return h
}

func (h *harness) connect(id string) *hubtest.Conn {
	c := hubtest.NewConn(id)
	h.conns[id] = c
	require.True(h.t, h.o.Connect(c))
	return c
}

func (h *harness) send(connID, event string, data interface{}) {
	h.t.Helper()
	payload, err := json.Marshal(data)
	require.NoError(h.t, err)
	frame, err := json.Marshal(model.Envelope{Event: event, Data: payload})
	require.NoError(h.t, err)
	require.True(h.t, h.o.HandleFrame(connID, frame))
	h.sync()
}

// sync waits until every queued event has run
func (h *harness) sync() {
	h.t.Helper()
	_, err := h.o.Status(context.Background())
	require.NoError(h.t, err)
}

func (h *harness) registerWorker(connID, workerID string) {
	h.connect(connID)
	h.send(connID, constants.EventRegisterWorker, map[string]string{"workerId": workerID})
}

func (h *harness) startStream(connID, videoURL, existing string) model.SessionResult {
	h.t.Helper()
	h.send(connID, constants.EventStartLiveStream, map[string]string{"videoUrl": videoURL, "existingSessionId": existing})
	c := h.conns[connID]
	defer c.Reset()
	for _, f := range c.Frames() {
		if f.Event != constants.EventSessionCreated && f.Event != constants.EventSessionError {
			continue
		}
		var res model.SessionResult
		require.NoError(h.t, json.Unmarshal(f.Data, &res))
		return res
	}
	h.t.Fatalf("no reply to start-live-stream on %s", connID)
	return model.SessionResult{}
}

func decode[T any](t *testing.T, f hubtest.Frame) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(f.Data, &v))
	return v
}

func TestOrchestrator_EndToEndCapacityAndReconnectWindow(t *testing.T) {
	h := newHarness(t, 2)
	for _, id := range []string{"A", "B", "C"} {
		h.connect(id)
	}

	a := h.startStream("A", "https://video/a", "")
	require.True(t, a.Success)
	assert.Equal(t, "worker-1", a.WorkerID)

	b := h.startStream("B", "https://video/b", "")
	require.True(t, b.Success)
	assert.Equal(t, "worker-2", b.WorkerID)

	c := h.startStream("C", "https://video/c", "")
	assert.False(t, c.Success)
	assert.Equal(t, constants.FailureServerFull, c.Reason)
	require.NotNil(t, c.Status)
	assert.Equal(t, 0, c.Status.Available)
	assert.Equal(t, 2, c.Status.Total)

	require.True(t, h.o.Disconnect("A"))
	h.sync()
	status, err := h.o.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, status.PendingReconnect)
	assert.Equal(t, 2, status.Busy)

	c = h.startStream("C", "https://video/c", "")
	assert.False(t, c.Success, "worker-1 is reserved for A")

	h.clock.Advance(window + time.Second)
	expired, err := h.o.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{a.SessionID}, expired)

	c = h.startStream("C", "https://video/c", "")
	require.True(t, c.Success)
	assert.Equal(t, "worker-1", c.WorkerID)
}

func TestOrchestrator_ReconnectWithinWindow(t *testing.T) {
	h := newHarness(t, 2)
	w1 := h.connect("w1")
	h.send("w1", constants.EventRegisterWorker, map[string]string{"workerId": "worker-1"})
	h.connect("A")

	a := h.startStream("A", "https://video/a", "")
	require.True(t, a.Success)
	require.True(t, h.o.Disconnect("A"))
	h.sync()
	h.clock.Advance(window - time.Second)
	w1.Reset()

	h.connect("A2")
	res := h.startStream("A2", "https://video/a", a.SessionID)
	require.True(t, res.Success)
	assert.True(t, res.Reconnected)
	assert.Equal(t, a.SessionID, res.SessionID)
	assert.Equal(t, a.WorkerID, res.WorkerID)
	assert.NotContains(t, w1.Events(), constants.EventStartProcessing)

	h.send("w1", constants.EventAIBoxes, map[string]interface{}{"sessionId": a.SessionID, "boxes": []int{1}})
	assert.Equal(t, []string{constants.EventAIBoxes}, h.conns["A2"].Events())
}

func TestOrchestrator_WorkerRoutingIsSessionScoped(t *testing.T) {
	h := newHarness(t, 2)
	h.registerWorker("w1", "worker-1")
	h.registerWorker("w2", "worker-2")
	ack := decode[model.WorkerRegistered](t, h.conns["w1"].Frames()[0])
	assert.True(t, ack.Success)
	assert.Equal(t, "worker-1", ack.WorkerID)
	h.conns["w1"].Reset()
	h.conns["w2"].Reset()

	h.connect("A")
	h.connect("B")
	a := h.startStream("A", "https://video/a", "")
	b := h.startStream("B", "https://video/b", "")

	start, ok := h.conns["w1"].Last(constants.EventStartProcessing)
	require.True(t, ok)
	cmd := decode[model.StartProcessing](t, start)
	assert.Equal(t, model.StartProcessing{SessionID: a.SessionID, WorkerID: "worker-1", VideoURL: "https://video/a"}, cmd)

	h.conns["A"].Reset()
	h.conns["B"].Reset()
	h.send("w2", constants.EventAIBoxes, map[string]interface{}{"sessionId": b.SessionID, "timestamp": 1.5, "boxes": []int{}})
	assert.Empty(t, h.conns["A"].Events())
	assert.Equal(t, []string{constants.EventAIBoxes}, h.conns["B"].Events())

	h.conns["w1"].Reset()
	h.send("A", constants.EventPlayerTime, map[string]interface{}{"sessionId": a.SessionID, "time": 3})
	assert.Equal(t, []string{constants.EventPlayerTime}, h.conns["w1"].Events())
	_, leaked := h.conns["w2"].Last(constants.EventPlayerTime)
	assert.False(t, leaked)
}

func TestOrchestrator_UnknownWorkerRejected(t *testing.T) {
	h := newHarness(t, 1)
	h.registerWorker("w9", "worker-9")

	frame, ok := h.conns["w9"].Last(constants.EventWorkerRegistered)
	require.True(t, ok)
	ack := decode[model.WorkerRegistered](t, frame)
	assert.False(t, ack.Success)
	assert.NotEmpty(t, ack.Error)
}

func TestOrchestrator_LateWorkerGetsStartProcessing(t *testing.T) {
	h := newHarness(t, 1)
	h.connect("A")
	a := h.startStream("A", "https://video/a", "")
	require.True(t, a.Success)

	h.registerWorker("w1", "worker-1")
	frame, ok := h.conns["w1"].Last(constants.EventStartProcessing)
	require.True(t, ok)
	assert.Equal(t, a.SessionID, decode[model.StartProcessing](t, frame).SessionID)
}

func TestOrchestrator_WorkerOfflineForceEnds(t *testing.T) {
	h := newHarness(t, 2)
	h.registerWorker("w1", "worker-1")
	h.connect("A")
	a := h.startStream("A", "https://video/a", "")

	require.True(t, h.o.Disconnect("w1"))
	h.sync()

	frame, ok := h.conns["A"].Last(constants.EventSessionEnded)
	require.True(t, ok)
	ended := decode[model.SessionEnded](t, frame)
	assert.Equal(t, a.SessionID, ended.SessionID)
	assert.Equal(t, constants.EndReasonWorkerOffline, ended.Reason)

	status, err := h.o.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, status.Offline)
	assert.Equal(t, 0, status.ActiveSessions)
	assert.Contains(t, h.engine.Calls(), "stop https://video/a")

	alerts := h.alerts.Alerts()
	require.Len(t, alerts, 1)
	assert.Equal(t, "worker-1", alerts[0].WorkerID)
	assert.Equal(t, []string{a.SessionID}, alerts[0].EndedSessions)
	assert.Equal(t, 1, alerts[0].Available)
	assert.Equal(t, 2, alerts[0].Total)

	// Offline slot is skipped by the next allocation.
	h.connect("B")
	b := h.startStream("B", "https://video/b", "")
	require.True(t, b.Success)
	assert.Equal(t, "worker-2", b.WorkerID)
}

func TestOrchestrator_StreamErrorEndsSession(t *testing.T) {
	h := newHarness(t, 1)
	h.registerWorker("w1", "worker-1")
	h.connect("A")
	a := h.startStream("A", "https://video/a", "")

	h.send("w1", constants.EventStreamError, map[string]interface{}{
		"sessionId": a.SessionID,
		"message":   "HTTP 403 fetching https://cdn/v.mp4?token=secret123 from 10.0.0.7:9000",
		"frame":     42,
	})

	frame, ok := h.conns["A"].Last(constants.EventStreamError)
	require.True(t, ok)
	var relayed map[string]interface{}
	require.NoError(t, json.Unmarshal(frame.Data, &relayed))
	assert.Equal(t, a.SessionID, relayed["sessionId"])
	assert.EqualValues(t, 42, relayed["frame"])
	assert.Equal(t, "VIDEO_ACCESS_DENIED", relayed["errorCode"])
	assert.NotContains(t, relayed["message"], "secret123")
	assert.NotContains(t, relayed["message"], "10.0.0.7")
	status, err := h.o.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, status.Available)
	_, ok = h.conns["w1"].Last(constants.EventStopProcessing)
	assert.True(t, ok)
}

func TestOrchestrator_EndSessionIsIdempotent(t *testing.T) {
	h := newHarness(t, 1)
	h.registerWorker("w1", "worker-1")
	h.connect("A")
	a := h.startStream("A", "https://video/a", "")

	h.send("A", constants.EventEndSession, map[string]string{"sessionId": a.SessionID})
	h.send("A", constants.EventEndSession, map[string]string{"sessionId": a.SessionID})

	var ended int
	for _, e := range h.conns["A"].Events() {
		if e == constants.EventSessionEnded {
			ended++
		}
	}
	assert.Equal(t, 2, ended)

	status, err := h.o.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, status.Available)
	assert.Equal(t, 0, status.Busy)
	assert.Equal(t, []string{"start https://video/a@0", "stop https://video/a"}, h.engine.Calls())
}

func TestOrchestrator_VideoEndedEndsSession(t *testing.T) {
	h := newHarness(t, 1)
	h.connect("A")
	a := h.startStream("A", "https://video/a", "")

	h.send("A", constants.EventPlayerState, map[string]interface{}{"sessionId": a.SessionID, "state": "ended"})

	frame, ok := h.conns["A"].Last(constants.EventSessionEnded)
	require.True(t, ok)
	assert.Equal(t, constants.EndReasonVideoEnded, decode[model.SessionEnded](t, frame).Reason)
	state, err := h.o.Playback(context.Background())
	require.NoError(t, err)
	assert.Empty(t, state.VideoURL)
}

func TestOrchestrator_SeekSuppressesResume(t *testing.T) {
	h := newHarness(t, 1)
	h.connect("A")
	a := h.startStream("A", "https://video/a", "")

	h.send("A", constants.EventPlayerSeek, map[string]interface{}{"sessionId": a.SessionID, "time": 42})
	h.send("A", constants.EventPlayerState, map[string]interface{}{"sessionId": a.SessionID, "state": "playing", "time": 42})
	assert.Equal(t, []string{"start https://video/a@0", "seek https://video/a@42"}, h.engine.Calls())

	h.clock.Advance(cooldown + time.Millisecond)
	h.timers.fireAll()
	h.sync()
	h.send("A", constants.EventPlayerState, map[string]interface{}{"sessionId": a.SessionID, "state": "playing", "time": 50})
	assert.Equal(t, "resume https://video/a@50", h.engine.Calls()[2])

	h.send("A", constants.EventPlayerState, map[string]interface{}{"sessionId": a.SessionID, "state": "paused"})
	assert.Equal(t, "pause https://video/a", h.engine.Calls()[3])
}

func TestOrchestrator_PlayerEventsOfOtherVideoIgnoredByEngine(t *testing.T) {
	h := newHarness(t, 2)
	h.connect("A")
	h.connect("B")
	a := h.startStream("A", "https://video/a", "")
	h.startStream("B", "https://video/b", "")

	h.send("A", constants.EventPlayerSeek, map[string]interface{}{"sessionId": a.SessionID, "time": 9})
	assert.Equal(t, []string{
		"start https://video/a@0",
		"stop https://video/a",
		"start https://video/b@0",
	}, h.engine.Calls())
}

func TestOrchestrator_StatusBroadcastAndMirror(t *testing.T) {
	h := newHarness(t, 2)
	h.connect("A")
	h.connect("observer")
	h.startStream("A", "https://video/a", "")

	frame, ok := h.conns["observer"].Last(constants.EventWorkerStatusUpdate)
	require.True(t, ok)
	status := decode[model.PoolStatus](t, frame)
	assert.Equal(t, 1, status.Busy)
	assert.Equal(t, 1, status.ActiveSessions)

	mirrored, n := h.pub.Last()
	assert.Positive(t, n)
	assert.Equal(t, 1, mirrored.Busy)
}

func TestOrchestrator_IngestResult(t *testing.T) {
	h := newHarness(t, 1)
	a := h.connect("A")
	b := h.connect("B")

	n, err := h.o.IngestResult(context.Background(), "detection", json.RawMessage(`{"label":"cat"}`))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	for _, c := range []*hubtest.Conn{a, b} {
		frame, ok := c.Last(constants.EventAIResult)
		require.True(t, ok)
		res := decode[model.AIResult](t, frame)
		assert.Equal(t, "detection", res.Type)
		assert.JSONEq(t, `{"label":"cat"}`, string(res.Data))
		assert.True(t, h.clock.Now().Equal(res.Timestamp))
	}
}

func TestOrchestrator_SessionlessEventsBroadcast(t *testing.T) {
	h := newHarness(t, 1)
	a := h.connect("A")
	b := h.connect("B")

	h.send("A", constants.EventPlayerTime, map[string]interface{}{"time": 1})
	assert.Empty(t, a.Events())
	assert.Equal(t, []string{constants.EventPlayerTime}, b.Events())
}

func TestOrchestrator_InvalidFramesDropped(t *testing.T) {
	h := newHarness(t, 1)
	h.connect("A")

	assert.False(t, h.o.HandleFrame("A", []byte(`{"event":"bogus"}`)))
	assert.False(t, h.o.HandleFrame("A", []byte(`not json`)))

	h.send("A", constants.EventStartLiveStream, map[string]string{"videoUrl": ""})
	frame, ok := h.conns["A"].Last(constants.EventSessionError)
	require.True(t, ok)
	assert.Equal(t, constants.FailureInvalidRequest, decode[model.SessionResult](t, frame).Reason)
}

func TestOrchestrator_Stop(t *testing.T) {
	h := newHarness(t, 1)
	a := h.connect("A")
	h.sync()

	require.NoError(t, h.o.Stop(context.Background()))
	require.NoError(t, h.o.Stop(context.Background()))
	assert.True(t, a.Closed())

	_, err := h.o.Status(context.Background())
	assert.ErrorIs(t, err, ErrStopped)
	assert.False(t, h.o.HandleFrame("A", []byte(`{"event":"player-time"}`)))
}

func TestOrchestrator_ForeignWorkerMessagesDropped(t *testing.T) {
	h := newHarness(t, 2)
	h.registerWorker("w1", "worker-1")
	h.registerWorker("w2", "worker-2")
	h.connect("A")
	h.connect("X")
	a := h.startStream("A", "https://video/a", "")
	require.Equal(t, "worker-1", a.WorkerID)
	h.conns["A"].Reset()

	h.send("w2", constants.EventAIBoxes, map[string]interface{}{"sessionId": a.SessionID, "boxes": []int{9}})
	h.send("w2", constants.EventStreamError, map[string]string{"sessionId": a.SessionID, "message": "spoofed"})
	h.send("X", constants.EventStreamError, map[string]string{"sessionId": a.SessionID, "message": "spoofed"})

	assert.Empty(t, h.conns["A"].Events())
	status, err := h.o.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, status.ActiveSessions)

	h.send("w1", constants.EventAIBoxes, map[string]interface{}{"sessionId": a.SessionID, "boxes": []int{1}})
	assert.Equal(t, []string{constants.EventAIBoxes}, h.conns["A"].Events())
}

func TestOrchestrator_ReconnectEndsConnectionsOtherSession(t *testing.T) {
	h := newHarness(t, 3)
	h.registerWorker("w1", "worker-1")
	h.registerWorker("w2", "worker-2")
	h.connect("A")
	a := h.startStream("A", "https://video/a", "")
	require.True(t, h.o.Disconnect("A"))
	h.sync()

	h.connect("A2")
	b := h.startStream("A2", "https://video/b", "")
	require.Equal(t, "worker-2", b.WorkerID)
	h.conns["w2"].Reset()

	res := h.startStream("A2", "https://video/a", a.SessionID)
	require.True(t, res.Reconnected)

	frame, ok := h.conns["w2"].Last(constants.EventStopProcessing)
	require.True(t, ok)
	stop := decode[model.StopProcessing](t, frame)
	assert.Equal(t, b.SessionID, stop.SessionID)
	assert.Equal(t, constants.EndReasonUserAction, stop.Reason)

	status, err := h.o.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, status.Busy)
	assert.Equal(t, 1, status.ActiveSessions)

	require.True(t, h.o.Disconnect("A2"))
	h.sync()
	h.clock.Advance(window)
	expired, err := h.o.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{a.SessionID}, expired)

	status, err = h.o.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, status.Busy)
	assert.Equal(t, 3, status.Available)
}

type slowStartEngine struct {
	engine
	active map[string]bool
}

func (e *slowStartEngine) Start(ctx context.Context, videoURL string, offset float64) error {
	time.Sleep(50 * time.Millisecond)
	e.mu.Lock()
	e.active[videoURL] = true
	e.mu.Unlock()
	return e.engine.Start(ctx, videoURL, offset)
}

func (e *slowStartEngine) Stop(ctx context.Context, videoURL string) error {
	e.mu.Lock()
	delete(e.active, videoURL)
	e.mu.Unlock()
	return e.engine.Stop(ctx, videoURL)
}

func TestOrchestrator_EngineCallsFollowLoopOrder(t *testing.T) {
	eng := &slowStartEngine{active: map[string]bool{}}
	o := New(Options{PoolSize: 2, ReconnectWindow: window, SeekCooldown: cooldown, CallTimeout: time.Second}, eng)
	o.Start()

	for _, id := range []string{"A", "B"} {
		require.True(t, o.Connect(hubtest.NewConn(id)))
	}
	for id, video := range map[string]string{"A": "https://video/a", "B": "https://video/b"} {
		frame, err := json.Marshal(map[string]interface{}{"event": constants.EventStartLiveStream, "data": map[string]string{"videoUrl": video}})
		require.NoError(t, err)
		require.True(t, o.HandleFrame(id, frame))
		_, err = o.Status(context.Background())
		require.NoError(t, err)
	}
	state, err := o.Playback(context.Background())
	require.NoError(t, err)
	current := state.VideoURL

	// Stop drains the call queue.
	require.NoError(t, o.Stop(context.Background()))
	calls := eng.Calls()
	require.Len(t, calls, 3)
	assert.Equal(t, "start "+current+"@0", calls[2])
	assert.Equal(t, map[string]bool{current: true}, eng.active)
}

// laggingPublisher makes its first write slow so a detached write would land
// after the second one
type laggingPublisher struct {
	publisher
	once sync.Once
}

func (p *laggingPublisher) Save(ctx context.Context, status model.PoolStatus) error {
	p.once.Do(func() { time.Sleep(50 * time.Millisecond) })
	return p.publisher.Save(ctx, status)
}

func TestOrchestrator_StatusMirrorKeepsLatestSnapshot(t *testing.T) {
	pub := &laggingPublisher{}
	o := New(Options{PoolSize: 1, ReconnectWindow: window, SeekCooldown: cooldown, CallTimeout: time.Second}, &engine{}, WithPublisher(pub))
	o.Start()
	require.True(t, o.Connect(hubtest.NewConn("A")))

	for _, frame := range []string{
		`{"event":"start-live-stream","data":{"videoUrl":"https://video/a"}}`,
		`{"event":"end-session","data":{}}`,
	} {
		require.True(t, o.HandleFrame("A", []byte(frame)))
	}
	_, err := o.Status(context.Background())
	require.NoError(t, err)
	require.NoError(t, o.Stop(context.Background()))

	last, n := pub.Last()
	assert.Equal(t, 2, n)
	assert.Equal(t, 0, last.Busy)
	assert.Equal(t, 1, last.Available)
}
