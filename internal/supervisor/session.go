package supervisor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/webpilot-ai/webpilot/internal/types"
)

type sessionKind int

const (
	sessionAgent sessionKind = iota
	sessionAutomation
)

const (
	authTimeout  = 15 * time.Second
	writeTimeout = 10 * time.Second
	persistGrace = 10 * time.Second

	// sendBuffer bounds the outbound queue. Screenshot frames beyond it are
	// dropped; everything else blocks until the writer catches up.
	sendBuffer = 64
)

// session is one WebSocket connection from authenticate to close.
type session struct {
	id   string
	sup  *Supervisor
	conn *websocket.Conn
	kind sessionKind
	logg zerolog.Logger

	userID  string
	send    chan types.Event
	running atomic.Bool

	cancel context.CancelFunc
	done   chan struct{}
}

func newSession(sup *Supervisor, conn *websocket.Conn, kind sessionKind) *session {
	id := uuid.NewString()
	return &session{
		id:   id,
		sup:  sup,
		conn: conn,
		kind: kind,
		logg: log.With().Str("session_id", id).Logger(),
		send: make(chan types.Event, sendBuffer),
		done: make(chan struct{}),
	}
}

// Send queues an event for the client. Lossy events are dropped when the
// queue is full; all others wait for room or session end.
func (s *session) Send(e types.Event) {
	if types.Lossy(e) {
		select {
		case s.send <- e:
		default:
		}
		return
	}
	select {
	case s.send <- e:
	case <-s.done:
	}
}

func (s *session) run(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	s.cancel = cancel

	var writers sync.WaitGroup
	writers.Add(1)
	go func() {
		defer writers.Done()
		s.writePump(ctx)
	}()

	if s.authenticate(ctx) {
		s.logg.Info().Str("user_id", s.userID).Msg("Session authenticated")
		s.readLoop(ctx)
	}

	cancel()
	writers.Wait()
	close(s.done)
	s.conn.Close()
}

// authenticate enforces the handshake: the first frame must be a valid
// authenticate message, inside the auth timeout.
func (s *session) authenticate(ctx context.Context) bool {
	s.conn.SetReadDeadline(time.Now().Add(authTimeout))

	var msg types.ClientMessage
	if err := s.conn.ReadJSON(&msg); err != nil {
		s.logg.Debug().Err(err).Msg("Session closed before authenticating")
		return false
	}
	if msg.Type != types.MsgAuthenticate {
		s.Send(types.NewAuthenticationEvent(false, "first message must be authenticate"))
		return false
	}

	userID, err := s.sup.verifier.Verify(ctx, msg.Token)
	if err != nil {
		s.logg.Warn().Err(err).Msg("Authentication failed")
		s.Send(types.NewAuthenticationEvent(false, "authentication failed"))
		return false
	}

	s.userID = userID
	s.Send(types.NewAuthenticationEvent(true, ""))
	return true
}

func (s *session) readLoop(ctx context.Context) {
	heartbeat := s.sup.cfg.HeartbeatInterval
	readDeadline := 2*heartbeat + writeTimeout
	s.conn.SetReadDeadline(time.Now().Add(readDeadline))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(readDeadline))
	})

	for {
		var msg types.ClientMessage
		if err := s.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logg.Warn().Err(err).Msg("Session read error")
			} else {
				s.logg.Debug().Msg("Session disconnected")
			}
			// An executing run is abandoned, not failed: the store keeps it
			// INPROGRESS for later inspection.
			s.cancel()
			return
		}
		s.conn.SetReadDeadline(time.Now().Add(readDeadline))

		switch msg.Type {
		case types.MsgHeartbeat:
			// Deadline already extended above.

		case types.MsgStartAgent:
			if s.kind != sessionAgent {
				s.Send(types.NewErrorEvent("start_agent is not valid on this endpoint"))
				continue
			}
			s.startWork(ctx, func(ctx context.Context) { s.runAgent(ctx, msg.RunID) })

		case types.MsgStartScript:
			if s.kind != sessionAutomation {
				s.Send(types.NewErrorEvent("start_script is not valid on this endpoint"))
				continue
			}
			s.startWork(ctx, func(ctx context.Context) { s.runAutomation(ctx, msg.AutomationID) })

		default:
			s.Send(types.NewErrorEvent("unknown message type: " + msg.Type))
		}
	}
}

// startWork enforces one concurrent execution per session.
func (s *session) startWork(ctx context.Context, work func(ctx context.Context)) {
	if !s.running.CompareAndSwap(false, true) {
		s.Send(types.NewErrorEvent("an agent is already running on this session"))
		return
	}
	go func() {
		defer s.running.Store(false)
		work(ctx)
	}()
}

func (s *session) runAgent(ctx context.Context, runID string) {
	if runID == "" {
		s.Send(types.NewErrorEvent("start_agent requires a runId"))
		return
	}

	run, err := s.sup.store.GetRun(ctx, s.userID, runID)
	if err != nil {
		s.Send(types.NewErrorEvent(clientMessage(err)))
		return
	}

	// A terminal run replays its stored outcome without touching a browser.
	if run.Status.IsTerminal() {
		s.logg.Debug().Str("run_id", runID).Msg("Run already terminal, sending stored result")
		s.Send(types.NewCompletionEvent(run.Status, run.FinalAnswer, run.Steps, run.Trace))
		return
	}

	engine, err := s.sup.newEngine(ctx)
	if err != nil {
		s.logg.Error().Err(err).Msg("Engine start failed")
		s.Send(types.NewErrorEvent("could not start a browser for this run"))
		return
	}
	defer engine.Close()

	if err := s.sup.store.UpdateRunStatus(ctx, runID, types.StatusInProgress); err != nil {
		s.Send(types.NewErrorEvent(clientMessage(err)))
		return
	}

	stopPump := s.startScreenshotPump(ctx, engine, func(b64 string) types.Event {
		return types.NewRunScreenshotEvent(runID, b64)
	}, s.sup.cfg.ScreenshotInterval)

	execErr := engine.ExecuteRun(ctx, run, s)
	stopPump()

	// Cancellation mid-run leaves the run non-terminal: the stored record
	// keeps its INPROGRESS status so a later session can resume it.
	if execErr != nil && !run.Status.IsTerminal() {
		s.logg.Info().Err(execErr).Str("run_id", runID).Msg("Run abandoned")
		return
	}

	// Results are persisted before the client hears about completion, so a
	// drop right here never loses the outcome.
	persistCtx, cancel := context.WithTimeout(context.Background(), persistGrace)
	defer cancel()
	if err := s.sup.store.SaveRunResult(persistCtx, run); err != nil {
		s.logg.Error().Err(err).Str("run_id", runID).Msg("Failed to persist run result")
		s.Send(types.NewErrorEvent("run finished but its result could not be saved"))
		return
	}

	if execErr != nil {
		s.Send(types.NewErrorEvent(clientMessage(execErr)))
	}
	s.Send(types.NewCompletionEvent(run.Status, run.FinalAnswer, run.Steps, run.Trace))
}

func (s *session) runAutomation(ctx context.Context, automationID string) {
	if automationID == "" {
		s.Send(types.NewErrorEvent("start_script requires an automationId"))
		return
	}

	automation, err := s.sup.store.GetAutomation(ctx, s.userID, automationID)
	if err != nil {
		s.Send(types.NewErrorEvent(clientMessage(err)))
		return
	}

	engine, err := s.sup.newEngine(ctx)
	if err != nil {
		s.logg.Error().Err(err).Msg("Engine start failed")
		s.Send(types.NewErrorEvent("could not start a browser for this replay"))
		return
	}
	defer engine.Close()

	stopPump := s.startScreenshotPump(ctx, engine, func(b64 string) types.Event {
		return types.NewAutomationScreenshotEvent(automationID, b64)
	}, s.sup.cfg.ReplayScreenshotInterval)

	message, execErr := engine.ExecuteReplay(ctx, automation, s)
	stopPump()

	if execErr != nil {
		s.Send(types.NewErrorEvent(clientMessage(execErr)))
		s.Send(types.NewReplayCompletionEvent(types.StatusFailed, ""))
		return
	}
	s.Send(types.NewReplayCompletionEvent(types.StatusCompleted, message))
}

// startScreenshotPump streams viewport frames until stopped. Frames are
// opportunistic: a busy browser just skips the tick.
func (s *session) startScreenshotPump(ctx context.Context, engine Engine, wrap func(b64 string) types.Event, interval time.Duration) (stop func()) {
	pumpCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-pumpCtx.Done():
				return
			case <-ticker.C:
				if b64, ok := engine.Screenshot(pumpCtx); ok {
					s.Send(wrap(b64))
				}
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}

func (s *session) writePump(ctx context.Context) {
	ping := time.NewTicker(s.sup.cfg.HeartbeatInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			// Flush what is already queued so terminal frames reach the
			// client before the close.
			for {
				select {
				case e := <-s.send:
					s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
					if s.conn.WriteJSON(e) != nil {
						return
					}
				default:
					s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
					s.conn.WriteMessage(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
					return
				}
			}

		case e := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := s.conn.WriteJSON(e); err != nil {
				s.logg.Debug().Err(err).Msg("Session write failed")
				s.cancel()
				return
			}

		case <-ping.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.logg.Debug().Err(err).Msg("Session ping failed")
				s.cancel()
				return
			}
		}
	}
}

// clientMessage maps errors to the strings clients see. Internal details
// stay in the logs.
func clientMessage(err error) string {
	switch {
	case errors.Is(err, types.ErrRunNotFound):
		return "run not found"
	case errors.Is(err, types.ErrAutomationNotFound):
		return "automation not found"
	case errors.Is(err, types.ErrForbidden):
		return "access denied"
	case errors.Is(err, types.ErrRunTerminal):
		return "run already finished"
	case errors.Is(err, types.ErrMaxSteps):
		return "run stopped: maximum number of steps reached"
	case errors.Is(err, types.ErrCaptchaUnsolvable):
		return "a CAPTCHA could not be solved"
	case errors.Is(err, types.ErrCaptchaTimeout):
		return "solving a CAPTCHA timed out"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "run interrupted"
	default:
		return "internal error"
	}
}
