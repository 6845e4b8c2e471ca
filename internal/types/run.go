package types

import "time"

// RunStatus is the lifecycle status of a Run.
type RunStatus string

// Run lifecycle statuses. A run is created PENDING, moves to INPROGRESS when
// an agent picks it up, and ends in exactly one of COMPLETED or FAILED.
const (
	StatusPending    RunStatus = "PENDING"
	StatusInProgress RunStatus = "INPROGRESS"
	StatusCompleted  RunStatus = "COMPLETED"
	StatusFailed     RunStatus = "FAILED"
)

// IsTerminal reports whether the status is final.
func (s RunStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Valid reports whether the status is one of the known lifecycle values.
func (s RunStatus) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Step is one observable decision cycle of a run. Steps are appended in
// order and never mutated; numbers are 1-based and contiguous.
type Step struct {
	Number      int    `json:"number"`
	Action      string `json:"action"`
	Explanation string `json:"explanation"`
}

// Run is one end-to-end execution of a user objective.
type Run struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	Objective   string     `json:"objective"`
	Status      RunStatus  `json:"status"`
	Steps       []Step     `json:"steps"`
	FinalAnswer string     `json:"final_answer,omitempty"`
	Trace       []Command  `json:"trace,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Automation is a saved command trace, replayable any number of times.
type Automation struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	Objective string    `json:"objective"`
	Trace     []Command `json:"trace"`
	CreatedAt time.Time `json:"created_at"`
}
