package types

// Control-channel message types. All frames are JSON text with a "type" tag.
const (
	// Client to server
	MsgAuthenticate = "authenticate"
	MsgStartAgent   = "start_agent"
	MsgStartScript  = "start_script"
	MsgHeartbeat    = "heartbeat"

	// Server to client
	MsgAuthentication   = "authentication"
	MsgStepUpdate       = "step_update"
	MsgStepStarted      = "step_started"
	MsgStepCompleted    = "step_completed"
	MsgScreenshotUpdate = "screenshot_update"
	MsgCaptchaDetected  = "captcha_detected"
	MsgCaptchaSolved    = "captcha_solved"
	MsgCompletion       = "completion"
	MsgError            = "error"
)

// ClientMessage is any inbound control frame. Fields beyond Type are set
// depending on the message type.
type ClientMessage struct {
	Type         string `json:"type"`
	Token        string `json:"token,omitempty"`
	RunID        string `json:"runId,omitempty"`
	AutomationID string `json:"automationId,omitempty"`
	Timestamp    int64  `json:"timestamp,omitempty"`
}

// Event is an outbound control frame. Every event carries its message type
// tag; screenshot events additionally reference their run or automation.
type Event interface {
	EventType() string
}

// AuthenticationEvent reports the outcome of the authenticate handshake.
type AuthenticationEvent struct {
	Type   string `json:"type"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

func (e AuthenticationEvent) EventType() string { return MsgAuthentication }

// NewAuthenticationEvent builds the handshake reply.
func NewAuthenticationEvent(ok bool, errMsg string) AuthenticationEvent {
	status := "success"
	if !ok {
		status = "failed"
	}
	return AuthenticationEvent{Type: MsgAuthentication, Status: status, Error: errMsg}
}

// StepUpdateEvent announces a new live-run step.
type StepUpdateEvent struct {
	Type string `json:"type"`
	Step Step   `json:"step"`
}

func (e StepUpdateEvent) EventType() string { return MsgStepUpdate }

// NewStepUpdateEvent builds a step_update frame.
func NewStepUpdateEvent(step Step) StepUpdateEvent {
	return StepUpdateEvent{Type: MsgStepUpdate, Step: step}
}

// StepStartedEvent marks the start of a replayed command.
type StepStartedEvent struct {
	Type   string `json:"type"`
	Number int    `json:"number"`
}

func (e StepStartedEvent) EventType() string { return MsgStepStarted }

// NewStepStartedEvent builds a step_started frame.
func NewStepStartedEvent(number int) StepStartedEvent {
	return StepStartedEvent{Type: MsgStepStarted, Number: number}
}

// StepCompletedEvent marks the end of a replayed command.
type StepCompletedEvent struct {
	Type   string `json:"type"`
	Number int    `json:"number"`
}

func (e StepCompletedEvent) EventType() string { return MsgStepCompleted }

// NewStepCompletedEvent builds a step_completed frame.
func NewStepCompletedEvent(number int) StepCompletedEvent {
	return StepCompletedEvent{Type: MsgStepCompleted, Number: number}
}

// ScreenshotEvent carries one base64 JPEG viewport frame. These are lossy:
// the supervisor may drop them for slow clients.
type ScreenshotEvent struct {
	Type         string `json:"type"`
	Screenshot   string `json:"screenshot"`
	RunID        string `json:"runId,omitempty"`
	AutomationID string `json:"automationId,omitempty"`
}

func (e ScreenshotEvent) EventType() string { return MsgScreenshotUpdate }

// NewRunScreenshotEvent builds a screenshot frame for a live run.
func NewRunScreenshotEvent(runID, b64 string) ScreenshotEvent {
	return ScreenshotEvent{Type: MsgScreenshotUpdate, Screenshot: b64, RunID: runID}
}

// NewAutomationScreenshotEvent builds a screenshot frame for a replay.
func NewAutomationScreenshotEvent(automationID, b64 string) ScreenshotEvent {
	return ScreenshotEvent{Type: MsgScreenshotUpdate, Screenshot: b64, AutomationID: automationID}
}

// CaptchaEvent marks CAPTCHA detection or resolution.
type CaptchaEvent struct {
	Type string `json:"type"`
}

func (e CaptchaEvent) EventType() string { return e.Type }

// NewCaptchaDetectedEvent builds a captcha_detected frame.
func NewCaptchaDetectedEvent() CaptchaEvent { return CaptchaEvent{Type: MsgCaptchaDetected} }

// NewCaptchaSolvedEvent builds a captcha_solved frame.
func NewCaptchaSolvedEvent() CaptchaEvent { return CaptchaEvent{Type: MsgCaptchaSolved} }

// CompletionEvent is the single terminal frame of a run or replay.
type CompletionEvent struct {
	Type        string    `json:"type"`
	Status      string    `json:"status"`
	FinalAnswer string    `json:"finalAnswer,omitempty"`
	Message     string    `json:"message,omitempty"`
	Steps       []Step    `json:"steps,omitempty"`
	Commands    []Command `json:"commands,omitempty"`
}

func (e CompletionEvent) EventType() string { return MsgCompletion }

// NewCompletionEvent builds a completion frame for a live run.
func NewCompletionEvent(status RunStatus, finalAnswer string, steps []Step, trace []Command) CompletionEvent {
	s := "completed"
	if status == StatusFailed {
		s = "failed"
	}
	return CompletionEvent{
		Type:        MsgCompletion,
		Status:      s,
		FinalAnswer: finalAnswer,
		Steps:       steps,
		Commands:    trace,
	}
}

// NewReplayCompletionEvent builds a completion frame for a replay.
func NewReplayCompletionEvent(status RunStatus, message string) CompletionEvent {
	s := "completed"
	if status == StatusFailed {
		s = "failed"
	}
	return CompletionEvent{Type: MsgCompletion, Status: s, Message: message}
}

// ErrorEvent reports a session-level error to the client.
type ErrorEvent struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

func (e ErrorEvent) EventType() string { return MsgError }

// NewErrorEvent builds an error frame.
func NewErrorEvent(msg string) ErrorEvent {
	return ErrorEvent{Type: MsgError, Error: msg}
}

// Lossy reports whether the event may be dropped for a slow client.
// Screenshot frames are the only lossy events.
func Lossy(e Event) bool {
	return e.EventType() == MsgScreenshotUpdate
}
