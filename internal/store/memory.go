package store

import (
	"context"
	"sync"

	"github.com/webpilot-ai/webpilot/internal/types"
)

// MemoryStore is a map-backed Store with the same ownership and lifecycle
// semantics as the Redis backend.
type MemoryStore struct {
	mu          sync.RWMutex
	runs        map[string]types.Run
	automations map[string]types.Automation
}

// NewMemoryStore builds an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		runs:        make(map[string]types.Run),
		automations: make(map[string]types.Automation),
	}
}

func (s *MemoryStore) GetRun(_ context.Context, userID, runID string) (*types.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[runID]
	if !ok {
		return nil, types.ErrRunNotFound
	}
	if run.UserID != userID {
		return nil, types.ErrForbidden
	}
	copied := run
	return &copied, nil
}

func (s *MemoryStore) UpdateRunStatus(_ context.Context, runID string, status types.RunStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[runID]
	if !ok {
		return types.ErrRunNotFound
	}
	if run.Status.IsTerminal() {
		return types.ErrRunTerminal
	}

	run.Status = status
	s.runs[runID] = run
	return nil
}

func (s *MemoryStore) SaveRunResult(_ context.Context, run *types.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.ID] = *run
	return nil
}

func (s *MemoryStore) SaveAutomation(_ context.Context, automation *types.Automation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.automations[automation.ID] = *automation
	return nil
}

func (s *MemoryStore) GetAutomation(_ context.Context, userID, automationID string) (*types.Automation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	automation, ok := s.automations[automationID]
	if !ok {
		return nil, types.ErrAutomationNotFound
	}
	if automation.UserID != userID {
		return nil, types.ErrForbidden
	}
	copied := automation
	return &copied, nil
}
