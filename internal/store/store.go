// Package store persists runs and automations. The canonical backend is
// Redis; an in-memory implementation backs tests and single-node dev use.
package store

import (
	"context"

	"github.com/webpilot-ai/webpilot/internal/types"
)

// Store is the persistence surface the supervisor uses. All reads are scoped
// to the owning user; a record that exists but belongs to someone else is
// reported as forbidden, never returned.
type Store interface {
	// GetRun fetches a run owned by userID.
	GetRun(ctx context.Context, userID, runID string) (*types.Run, error)

	// UpdateRunStatus transitions a run's status. Terminal runs reject
	// further transitions.
	UpdateRunStatus(ctx context.Context, runID string, status types.RunStatus) error

	// SaveRunResult writes the full run record, steps, trace, and final
	// answer included.
	SaveRunResult(ctx context.Context, run *types.Run) error

	// SaveAutomation writes an automation record.
	SaveAutomation(ctx context.Context, automation *types.Automation) error

	// GetAutomation fetches an automation owned by userID.
	GetAutomation(ctx context.Context, userID, automationID string) (*types.Automation, error)
}

func runKey(runID string) string { return "run:" + runID }

func automationKey(automationID string) string { return "automation:" + automationID }
