// Package types provides shared types, interfaces, and errors for the application.
package types

import "errors"

// Sentinel errors for consistent error handling across the application.
// These errors can be checked with errors.Is() for type-safe error handling.
var (
	// Browser errors
	ErrBrowserClosed     = errors.New("browser is closed")
	ErrNavigationFailed  = errors.New("navigation failed")
	ErrElementNotFound   = errors.New("element not found")
	ErrElementNotVisible = errors.New("element not visible")

	// Session errors
	ErrSessionNotFound      = errors.New("session not found")
	ErrAgentAlreadyRunning  = errors.New("an agent is already running on this session")
	ErrTooManySessions      = errors.New("maximum number of sessions reached")
	ErrNotAuthenticated     = errors.New("session is not authenticated")
	ErrAuthenticationFailed = errors.New("authentication failed")

	// Run errors
	ErrRunNotFound        = errors.New("run not found")
	ErrRunTerminal        = errors.New("run already reached a terminal status")
	ErrAutomationNotFound = errors.New("automation not found")
	ErrForbidden          = errors.New("record belongs to another user")

	// Decision loop errors
	ErrMaxSteps   = errors.New("max steps reached")
	ErrNoToolCall = errors.New("model response contains no tool call")

	// Tool errors
	ErrInvalidToolArgs = errors.New("invalid tool arguments")
	ErrUnknownTool     = errors.New("unknown tool")

	// CAPTCHA errors
	ErrCaptchaUnsolvable = errors.New("captcha could not be solved")
	ErrCaptchaTimeout    = errors.New("captcha solving timed out")

	// Context errors
	ErrContextCanceled = errors.New("operation canceled")
)

// AgentError provides detailed information about decision-loop failures.
// It implements the error interface and supports error unwrapping.
type AgentError struct {
	RunID   string // The run where the error occurred
	Step    int    // Step number active when the error occurred (0 if none)
	Message string // Human-readable error message
	Err     error  // Underlying error (for unwrapping)
}

// Error implements the error interface.
func (e *AgentError) Error() string {
	return e.Message
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *AgentError) Unwrap() error {
	return e.Err
}

// NewMaxStepsError creates an error for step-budget exhaustion.
func NewMaxStepsError(runID string, steps int) *AgentError {
	return &AgentError{
		RunID:   runID,
		Step:    steps,
		Message: "max steps",
		Err:     ErrMaxSteps,
	}
}

// CaptchaError provides detailed information about CAPTCHA solving failures.
// It implements the error interface and supports error unwrapping.
type CaptchaError struct {
	Kind    string // CAPTCHA kind: "recaptcha", "hcaptcha", "text"
	URL     string // The URL where the CAPTCHA was encountered
	Message string // Human-readable error message
	Err     error  // Underlying error (for unwrapping)
}

// Error implements the error interface.
func (e *CaptchaError) Error() string {
	return e.Message
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *CaptchaError) Unwrap() error {
	return e.Err
}

// NewCaptchaUnsolvableError creates an error for an exhausted solve attempt.
func NewCaptchaUnsolvableError(kind, url, reason string) *CaptchaError {
	return &CaptchaError{
		Kind:    kind,
		URL:     url,
		Message: "CAPTCHA could not be solved: " + reason,
		Err:     ErrCaptchaUnsolvable,
	}
}

// NewCaptchaTimeoutError creates an error for a solve that ran out of time.
func NewCaptchaTimeoutError(kind, url string) *CaptchaError {
	return &CaptchaError{
		Kind:    kind,
		URL:     url,
		Message: "CAPTCHA solving timed out",
		Err:     ErrCaptchaTimeout,
	}
}
