// Package supervisor owns the WebSocket surface: it authenticates sessions,
// starts agent runs and automation replays, and streams progress back to the
// client.
package supervisor

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"github.com/webpilot-ai/webpilot/internal/agent"
	"github.com/webpilot-ai/webpilot/internal/auth"
	"github.com/webpilot-ai/webpilot/internal/config"
	"github.com/webpilot-ai/webpilot/internal/store"
	"github.com/webpilot-ai/webpilot/internal/types"
	"github.com/webpilot-ai/webpilot/pkg/version"
)

// Engine executes runs and replays for one session. The production engine
// drives a real browser; tests substitute fakes.
type Engine interface {
	// ExecuteRun drives a live agent run, mutating run in place.
	ExecuteRun(ctx context.Context, run *types.Run, sink agent.EventSink) error

	// ExecuteReplay replays an automation and returns its completion message.
	ExecuteReplay(ctx context.Context, automation *types.Automation, sink agent.EventSink) (string, error)

	// Screenshot returns the current viewport as base64 JPEG. ok is false
	// when the browser is busy; callers skip the frame.
	Screenshot(ctx context.Context) (b64 string, ok bool)

	// Close releases the engine's browser.
	Close()
}

// EngineFactory builds one Engine per session.
type EngineFactory func(ctx context.Context) (Engine, error)

// Supervisor accepts WebSocket sessions and runs at most one agent or replay
// per session.
type Supervisor struct {
	cfg       *config.Config
	verifier  auth.Verifier
	store     store.Store
	newEngine EngineFactory

	upgrader websocket.Upgrader
	slots    *semaphore.Weighted
	active   atomic.Int64
}

// New builds a Supervisor.
func New(cfg *config.Config, verifier auth.Verifier, st store.Store, newEngine EngineFactory) *Supervisor {
	return &Supervisor{
		cfg:       cfg,
		verifier:  verifier,
		store:     st,
		newEngine: newEngine,
		slots:     semaphore.NewWeighted(int64(cfg.MaxSessions)),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Browser clients connect from app origins unknown at build time;
			// access control happens in the authenticate handshake.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Handler returns the HTTP routes: the two session endpoints and health.
func (s *Supervisor) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/agent", s.handleSession(sessionAgent))
	mux.HandleFunc("/automation", s.handleSession(sessionAutomation))
	mux.HandleFunc("/health", s.handleHealth)
	return mux
}

func (s *Supervisor) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":         "ok",
		"version":        version.Version,
		"activeSessions": s.active.Load(),
		"maxSessions":    s.cfg.MaxSessions,
	})
}

func (s *Supervisor) handleSession(kind sessionKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.slots.TryAcquire(1) {
			log.Warn().
				Int64("active", s.active.Load()).
				Msg("Session rejected, at capacity")
			http.Error(w, "too many sessions", http.StatusServiceUnavailable)
			return
		}
		defer s.slots.Release(1)

		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn().Err(err).Msg("WebSocket upgrade failed")
			return
		}

		s.active.Add(1)
		defer s.active.Add(-1)

		sess := newSession(s, conn, kind)
		sess.run(r.Context())
	}
}
