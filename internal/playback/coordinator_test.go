package playback

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"livesync/pkg/async"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingEngine struct {
	mu    sync.Mutex
	calls []string
	fail  error
}

func (e *recordingEngine) record(call string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, call)
	return e.fail
}

func (e *recordingEngine) Start(_ context.Context, v string, o float64) error {
	return e.record(fmt.Sprintf("start %s %.0f", v, o))
}
func (e *recordingEngine) Stop(_ context.Context, v string) error {
	return e.record("stop " + v)
}
func (e *recordingEngine) Seek(_ context.Context, v string, o float64) error {
	return e.record(fmt.Sprintf("seek %s %.0f", v, o))
}
func (e *recordingEngine) Pause(_ context.Context, v string) error {
	return e.record("pause " + v)
}
func (e *recordingEngine) Resume(_ context.Context, v string, o float64) error {
	return e.record(fmt.Sprintf("resume %s %.0f", v, o))
}

func (e *recordingEngine) Calls() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.calls...)
}

type pendingTimer struct {
	d  time.Duration
	fn func()
}

type harness struct {
	engine *recordingEngine
	coord  *Coordinator
	now    time.Time
	timers []pendingTimer
}

const cooldown = 2000 * time.Millisecond

func newHarness() *harness {
	h := &harness{engine: &recordingEngine{}, now: time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)}
	h.coord = NewCoordinator(h.engine, async.Inline(time.Second),
		func(d time.Duration, fn func()) { h.timers = append(h.timers, pendingTimer{d, fn}) },
		cooldown,
		func() time.Time { return h.now },
	)
	return h
}

func (h *harness) fireTimers() {
	timers := h.timers
	h.timers = nil
	for _, t := range timers {
		t.fn()
	}
}

var ctx = context.Background()

func TestSeekThenResume_WithinCooldownIsSuppressed(t *testing.T) {
	h := newHarness()
	h.coord.Start(ctx, "v1", 0)
	h.engine.calls = nil

	assert.True(t, h.coord.Seek(ctx, 42))
	h.now = h.now.Add(500 * time.Millisecond)
	assert.False(t, h.coord.Resume(ctx, 42))

	assert.Equal(t, []string{"seek v1 42"}, h.engine.Calls())
	require.Len(t, h.timers, 1)
	assert.Equal(t, cooldown, h.timers[0].d)
}

func TestResume_SuppressedWhileFlagSetEvenAfterCooldown(t *testing.T) {
	h := newHarness()
	h.coord.Start(ctx, "v1", 0)
	h.coord.Seek(ctx, 10)

	// Timer has not fired yet: the flag still blocks the resume.
	h.now = h.now.Add(3 * time.Second)
	assert.False(t, h.coord.Resume(ctx, 10))

	h.fireTimers()
	assert.False(t, h.coord.State().SeekInProgress)
	assert.True(t, h.coord.Resume(ctx, 13))
	assert.Equal(t, []string{"start v1 0", "seek v1 10", "resume v1 13"}, h.engine.Calls())
}

func TestResume_WithoutSeekIsIssued(t *testing.T) {
	h := newHarness()
	h.coord.Start(ctx, "v1", 0)
	h.coord.Seek(ctx, 5)
	h.fireTimers()

	h.now = h.now.Add(cooldown)
	assert.True(t, h.coord.Resume(ctx, 7))
	assert.Contains(t, h.engine.Calls(), "resume v1 7")
}

func TestResume_CooldownWindowAloneSuppresses(t *testing.T) {
	h := newHarness()
	h.coord.Start(ctx, "v1", 0)
	h.coord.Seek(ctx, 5)
	h.fireTimers() // flag cleared early

	h.now = h.now.Add(cooldown - time.Millisecond)
	assert.False(t, h.coord.Resume(ctx, 5))
}

func TestSeek_OlderTimerDoesNotClearNewerSeek(t *testing.T) {
	h := newHarness()
	h.coord.Start(ctx, "v1", 0)
	h.coord.Seek(ctx, 5)
	first := h.timers[0]
	h.timers = nil

	h.now = h.now.Add(time.Second)
	h.coord.Seek(ctx, 9)
	first.fn()
	assert.True(t, h.coord.State().SeekInProgress)

	h.fireTimers()
	assert.False(t, h.coord.State().SeekInProgress)
}

func TestStart_DifferentVideoStopsPreviousFirst(t *testing.T) {
	h := newHarness()
	assert.True(t, h.coord.Start(ctx, "v1", 0))
	assert.True(t, h.coord.Start(ctx, "v2", 30))

	assert.Equal(t, []string{"start v1 0", "stop v1", "start v2 30"}, h.engine.Calls())
	assert.Equal(t, "v2", h.coord.Current())
	assert.Equal(t, float64(30), h.coord.State().Offset)
}

func TestStart_SameVideoIsNoop(t *testing.T) {
	h := newHarness()
	h.coord.Start(ctx, "v1", 0)
	assert.False(t, h.coord.Start(ctx, "v1", 0))
	assert.False(t, h.coord.Start(ctx, "", 0))
	assert.Equal(t, []string{"start v1 0"}, h.engine.Calls())
}

func TestStop_ClearsStateEvenWhenCallFails(t *testing.T) {
	h := newHarness()
	h.coord.Start(ctx, "v1", 0)
	h.coord.Seek(ctx, 12)
	h.engine.fail = errors.New("connection refused")

	assert.True(t, h.coord.Stop(ctx))
	assert.Equal(t, State{}, h.coord.State())
	assert.False(t, h.coord.Stop(ctx), "nothing to stop")
	assert.Equal(t, "stop v1", h.engine.Calls()[len(h.engine.Calls())-1])
}

func TestControls_NoopWithoutActiveVideo(t *testing.T) {
	h := newHarness()
	assert.False(t, h.coord.Pause(ctx))
	assert.False(t, h.coord.Resume(ctx, 1))
	assert.False(t, h.coord.Seek(ctx, 1))
	assert.Empty(t, h.engine.Calls())
	assert.Empty(t, h.timers)
}

func TestPause(t *testing.T) {
	h := newHarness()
	h.coord.Start(ctx, "v1", 0)
	assert.True(t, h.coord.Pause(ctx))
	assert.Equal(t, "pause v1", h.engine.Calls()[1])
}

func TestStart_FailureIsSwallowed(t *testing.T) {
	h := newHarness()
	h.engine.fail = errors.New("timeout")
	assert.True(t, h.coord.Start(ctx, "v1", 0))
	assert.Equal(t, "v1", h.coord.Current(), "state is optimistic")
}

// slowEngine takes a while to start and tracks which videos it is running
type slowEngine struct {
	recordingEngine
	delay  time.Duration
	active map[string]bool
}

func (e *slowEngine) Start(ctx context.Context, v string, o float64) error {
	time.Sleep(e.delay)
	e.mu.Lock()
	e.active[v] = true
	e.mu.Unlock()
	return e.recordingEngine.Start(ctx, v, o)
}

func (e *slowEngine) Stop(ctx context.Context, v string) error {
	e.mu.Lock()
	delete(e.active, v)
	e.mu.Unlock()
	return e.recordingEngine.Stop(ctx, v)
}

func (e *slowEngine) Active() map[string]bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]bool, len(e.active))
	for k, v := range e.active {
		out[k] = v
	}
	return out
}

func TestCoordinator_SwitchWaitsForSlowStart(t *testing.T) {
	engine := &slowEngine{delay: 50 * time.Millisecond, active: map[string]bool{}}
	q := async.NewQueue(time.Second, 16)
	defer q.Close(context.Background())
	c := NewCoordinator(engine, q.Run, nil, cooldown, nil)

	ctx := context.Background()
	require.True(t, c.Start(ctx, "A", 0))
	require.True(t, c.Start(ctx, "B", 0))
	assert.Equal(t, "B", c.Current())

	require.NoError(t, q.Close(ctx))
	assert.Equal(t, []string{"start A 0", "stop A", "start B 0"}, engine.Calls())
	assert.Equal(t, map[string]bool{"B": true}, engine.Active())
}
