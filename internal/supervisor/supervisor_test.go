package supervisor

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webpilot-ai/webpilot/internal/agent"
	"github.com/webpilot-ai/webpilot/internal/auth"
	"github.com/webpilot-ai/webpilot/internal/config"
	"github.com/webpilot-ai/webpilot/internal/store"
	"github.com/webpilot-ai/webpilot/internal/types"
)

type fakeEngine struct {
	runFn    func(ctx context.Context, run *types.Run, sink agent.EventSink) error
	replayFn func(ctx context.Context, automation *types.Automation, sink agent.EventSink) (string, error)
}

func (f *fakeEngine) ExecuteRun(ctx context.Context, run *types.Run, sink agent.EventSink) error {
	if f.runFn == nil {
		return errors.New("no run scripted")
	}
	return f.runFn(ctx, run, sink)
}

func (f *fakeEngine) ExecuteReplay(ctx context.Context, automation *types.Automation, sink agent.EventSink) (string, error) {
	if f.replayFn == nil {
		return "", errors.New("no replay scripted")
	}
	return f.replayFn(ctx, automation, sink)
}

func (f *fakeEngine) Screenshot(context.Context) (string, bool) { return "", false }
func (f *fakeEngine) Close()                                    {}

type testHarness struct {
	srv     *httptest.Server
	store   *store.MemoryStore
	started chan struct{} // closed/fed when the factory builds an engine
}

func testConfig() *config.Config {
	return &config.Config{
		MaxSessions:              4,
		HeartbeatInterval:        time.Second,
		ScreenshotInterval:       50 * time.Millisecond,
		ReplayScreenshotInterval: 50 * time.Millisecond,
		MaxSteps:                 25,
		StepTimeout:              5 * time.Second,
	}
}

func newHarness(t *testing.T, cfg *config.Config, engine Engine) *testHarness {
	t.Helper()

	st := store.NewMemoryStore()
	verifier := auth.NewStaticVerifier(map[string]string{"alice-token": "alice"})
	started := make(chan struct{}, 8)

	sup := New(cfg, verifier, st, func(context.Context) (Engine, error) {
		started <- struct{}{}
		return engine, nil
	})

	srv := httptest.NewServer(sup.Handler())
	t.Cleanup(srv.Close)

	return &testHarness{srv: srv, store: st, started: started}
}

func (h *testHarness) dial(t *testing.T, path string) *websocket.Conn {
	t.Helper()
	url := strings.Replace(h.srv.URL, "http", "ws", 1) + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func (h *testHarness) authenticate(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(types.ClientMessage{Type: types.MsgAuthenticate, Token: "alice-token"}))
	ev := readEvent(t, conn)
	require.Equal(t, types.MsgAuthentication, ev["type"])
	require.Equal(t, "success", ev["status"])
}

// readEvent reads the next non-screenshot event.
func readEvent(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var ev map[string]interface{}
		require.NoError(t, conn.ReadJSON(&ev))
		if ev["type"] == types.MsgScreenshotUpdate {
			continue
		}
		return ev
	}
}

func seedRun(t *testing.T, st *store.MemoryStore, status types.RunStatus) {
	t.Helper()
	require.NoError(t, st.SaveRunResult(context.Background(), &types.Run{
		ID:        "run-1",
		UserID:    "alice",
		Objective: "check the widget price",
		Status:    status,
		CreatedAt: time.Now().UTC(),
	}))
}

func TestFirstMessageMustAuthenticate(t *testing.T) {
	h := newHarness(t, testConfig(), &fakeEngine{})
	conn := h.dial(t, "/agent")

	require.NoError(t, conn.WriteJSON(types.ClientMessage{Type: types.MsgStartAgent, RunID: "run-1"}))

	ev := readEvent(t, conn)
	assert.Equal(t, types.MsgAuthentication, ev["type"])
	assert.Equal(t, "failed", ev["status"])
}

func TestAuthenticationRejectsBadToken(t *testing.T) {
	h := newHarness(t, testConfig(), &fakeEngine{})
	conn := h.dial(t, "/agent")

	require.NoError(t, conn.WriteJSON(types.ClientMessage{Type: types.MsgAuthenticate, Token: "wrong"}))

	ev := readEvent(t, conn)
	assert.Equal(t, types.MsgAuthentication, ev["type"])
	assert.Equal(t, "failed", ev["status"])
}

func TestAgentRunHappyPath(t *testing.T) {
	engine := &fakeEngine{
		runFn: func(_ context.Context, run *types.Run, sink agent.EventSink) error {
			step := types.Step{Number: 1, Action: "navigate to https://example.com", Explanation: "open the shop"}
			run.Steps = append(run.Steps, step)
			run.Trace = append(run.Trace, types.NewNavigate("https://example.com"))
			sink.Send(types.NewStepUpdateEvent(step))

			now := time.Now().UTC()
			run.Status = types.StatusCompleted
			run.FinalAnswer = "$12.99"
			run.CompletedAt = &now
			return nil
		},
	}
	h := newHarness(t, testConfig(), engine)
	seedRun(t, h.store, types.StatusPending)

	conn := h.dial(t, "/agent")
	h.authenticate(t, conn)
	require.NoError(t, conn.WriteJSON(types.ClientMessage{Type: types.MsgStartAgent, RunID: "run-1"}))

	ev := readEvent(t, conn)
	require.Equal(t, types.MsgStepUpdate, ev["type"])

	ev = readEvent(t, conn)
	require.Equal(t, types.MsgCompletion, ev["type"])
	assert.Equal(t, "completed", ev["status"])
	assert.Equal(t, "$12.99", ev["finalAnswer"])

	// The result was persisted before the completion frame went out.
	run, err := h.store.GetRun(context.Background(), "alice", "run-1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, run.Status)
	assert.Equal(t, "$12.99", run.FinalAnswer)
	assert.Len(t, run.Steps, 1)
}

func TestDisconnectLeavesRunInProgress(t *testing.T) {
	finished := make(chan struct{})
	engine := &fakeEngine{
		runFn: func(ctx context.Context, _ *types.Run, _ agent.EventSink) error {
			<-ctx.Done()
			close(finished)
			return ctx.Err()
		},
	}
	h := newHarness(t, testConfig(), engine)
	seedRun(t, h.store, types.StatusPending)

	conn := h.dial(t, "/agent")
	h.authenticate(t, conn)
	require.NoError(t, conn.WriteJSON(types.ClientMessage{Type: types.MsgStartAgent, RunID: "run-1"}))
	<-h.started

	conn.Close()
	select {
	case <-finished:
	case <-time.After(5 * time.Second):
		t.Fatal("engine was not cancelled after the disconnect")
	}

	// The run stays resumable: INPROGRESS, nothing terminal persisted.
	run, err := h.store.GetRun(context.Background(), "alice", "run-1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusInProgress, run.Status)
	assert.Nil(t, run.CompletedAt)
}

func TestTerminalRunFastPath(t *testing.T) {
	h := newHarness(t, testConfig(), &fakeEngine{})
	require.NoError(t, h.store.SaveRunResult(context.Background(), &types.Run{
		ID:          "run-1",
		UserID:      "alice",
		Status:      types.StatusCompleted,
		FinalAnswer: "already answered",
	}))

	conn := h.dial(t, "/agent")
	h.authenticate(t, conn)
	require.NoError(t, conn.WriteJSON(types.ClientMessage{Type: types.MsgStartAgent, RunID: "run-1"}))

	ev := readEvent(t, conn)
	require.Equal(t, types.MsgCompletion, ev["type"])
	assert.Equal(t, "already answered", ev["finalAnswer"])

	select {
	case <-h.started:
		t.Fatal("terminal runs must not start a browser")
	default:
	}
}

func TestUnknownRunReported(t *testing.T) {
	h := newHarness(t, testConfig(), &fakeEngine{})

	conn := h.dial(t, "/agent")
	h.authenticate(t, conn)
	require.NoError(t, conn.WriteJSON(types.ClientMessage{Type: types.MsgStartAgent, RunID: "run-404"}))

	ev := readEvent(t, conn)
	require.Equal(t, types.MsgError, ev["type"])
	assert.Equal(t, "run not found", ev["error"])
}

func TestSecondStartRejectedWhileRunning(t *testing.T) {
	release := make(chan struct{})
	engine := &fakeEngine{
		runFn: func(ctx context.Context, run *types.Run, _ agent.EventSink) error {
			select {
			case <-release:
			case <-ctx.Done():
			}
			run.Status = types.StatusCompleted
			return nil
		},
	}
	h := newHarness(t, testConfig(), engine)
	seedRun(t, h.store, types.StatusPending)

	conn := h.dial(t, "/agent")
	h.authenticate(t, conn)
	require.NoError(t, conn.WriteJSON(types.ClientMessage{Type: types.MsgStartAgent, RunID: "run-1"}))
	<-h.started

	require.NoError(t, conn.WriteJSON(types.ClientMessage{Type: types.MsgStartAgent, RunID: "run-1"}))
	ev := readEvent(t, conn)
	require.Equal(t, types.MsgError, ev["type"])
	assert.Contains(t, ev["error"], "already running")

	close(release)
	ev = readEvent(t, conn)
	assert.Equal(t, types.MsgCompletion, ev["type"])
}

func TestAutomationReplay(t *testing.T) {
	engine := &fakeEngine{
		replayFn: func(_ context.Context, automation *types.Automation, sink agent.EventSink) (string, error) {
			for i := range automation.Trace {
				sink.Send(types.NewStepStartedEvent(i + 1))
				sink.Send(types.NewStepCompletedEvent(i + 1))
			}
			return "all steps replayed", nil
		},
	}
	h := newHarness(t, testConfig(), engine)
	require.NoError(t, h.store.SaveAutomation(context.Background(), &types.Automation{
		ID:     "auto-1",
		UserID: "alice",
		Name:   "widget check",
		Trace:  []types.Command{types.NewNavigate("https://example.com")},
	}))

	conn := h.dial(t, "/automation")
	h.authenticate(t, conn)
	require.NoError(t, conn.WriteJSON(types.ClientMessage{Type: types.MsgStartScript, AutomationID: "auto-1"}))

	assert.Equal(t, types.MsgStepStarted, readEvent(t, conn)["type"])
	assert.Equal(t, types.MsgStepCompleted, readEvent(t, conn)["type"])

	ev := readEvent(t, conn)
	require.Equal(t, types.MsgCompletion, ev["type"])
	assert.Equal(t, "completed", ev["status"])
	assert.Equal(t, "all steps replayed", ev["message"])
}

func TestReplayFailureReportsError(t *testing.T) {
	engine := &fakeEngine{
		replayFn: func(context.Context, *types.Automation, agent.EventSink) (string, error) {
			return "", types.NewCaptchaUnsolvableError("recaptcha", "https://example.com", "out of attempts")
		},
	}
	h := newHarness(t, testConfig(), engine)
	require.NoError(t, h.store.SaveAutomation(context.Background(), &types.Automation{
		ID:     "auto-1",
		UserID: "alice",
		Name:   "widget check",
	}))

	conn := h.dial(t, "/automation")
	h.authenticate(t, conn)
	require.NoError(t, conn.WriteJSON(types.ClientMessage{Type: types.MsgStartScript, AutomationID: "auto-1"}))

	ev := readEvent(t, conn)
	require.Equal(t, types.MsgError, ev["type"])
	assert.Equal(t, "a CAPTCHA could not be solved", ev["error"])

	ev = readEvent(t, conn)
	require.Equal(t, types.MsgCompletion, ev["type"])
	assert.Equal(t, "failed", ev["status"])
}

func TestEndpointRejectsWrongStart(t *testing.T) {
	h := newHarness(t, testConfig(), &fakeEngine{})

	conn := h.dial(t, "/agent")
	h.authenticate(t, conn)
	require.NoError(t, conn.WriteJSON(types.ClientMessage{Type: types.MsgStartScript, AutomationID: "auto-1"}))

	ev := readEvent(t, conn)
	require.Equal(t, types.MsgError, ev["type"])
	assert.Contains(t, ev["error"], "not valid on this endpoint")
}

func TestMaxSessionsEnforced(t *testing.T) {
	cfg := testConfig()
	cfg.MaxSessions = 1
	h := newHarness(t, cfg, &fakeEngine{})

	conn := h.dial(t, "/agent")
	h.authenticate(t, conn)

	url := strings.Replace(h.srv.URL, "http", "ws", 1) + "/agent"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 503, resp.StatusCode)
}

func TestClientMessageMapping(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{types.ErrRunNotFound, "run not found"},
		{types.ErrForbidden, "access denied"},
		{types.NewMaxStepsError("run-1", 25), "run stopped: maximum number of steps reached"},
		{types.NewCaptchaTimeoutError("recaptcha", "https://example.com"), "solving a CAPTCHA timed out"},
		{context.Canceled, "run interrupted"},
		{errors.New("database exploded"), "internal error"},
	}

	for _, tt := range tests {
		if got := clientMessage(tt.err); got != tt.want {
			t.Errorf("clientMessage(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
