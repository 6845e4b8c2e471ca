package types

import (
	"encoding/json"
	"testing"
)

func TestEventWireShapes(t *testing.T) {
	tests := []struct {
		name  string
		event Event
		want  string
	}{
		{
			"authentication success",
			NewAuthenticationEvent(true, ""),
			`{"type":"authentication","status":"success"}`,
		},
		{
			"authentication failure",
			NewAuthenticationEvent(false, "bad token"),
			`{"type":"authentication","status":"failed","error":"bad token"}`,
		},
		{
			"step update",
			NewStepUpdateEvent(Step{Number: 3, Action: "handle_click", Explanation: "click the login button"}),
			`{"type":"step_update","step":{"number":3,"action":"handle_click","explanation":"click the login button"}}`,
		},
		{
			"step started",
			NewStepStartedEvent(1),
			`{"type":"step_started","number":1}`,
		},
		{
			"step completed",
			NewStepCompletedEvent(1),
			`{"type":"step_completed","number":1}`,
		},
		{
			"captcha detected",
			NewCaptchaDetectedEvent(),
			`{"type":"captcha_detected"}`,
		},
		{
			"error",
			NewErrorEvent("boom"),
			`{"type":"error","error":"boom"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.event)
			if err != nil {
				t.Fatal(err)
			}
			if string(data) != tt.want {
				t.Errorf("got %s, want %s", data, tt.want)
			}
		})
	}
}

func TestScreenshotEventReferences(t *testing.T) {
	run := NewRunScreenshotEvent("run-1", "abc")
	if run.RunID != "run-1" || run.AutomationID != "" {
		t.Errorf("run screenshot should reference only the run: %+v", run)
	}

	auto := NewAutomationScreenshotEvent("auto-1", "abc")
	if auto.AutomationID != "auto-1" || auto.RunID != "" {
		t.Errorf("automation screenshot should reference only the automation: %+v", auto)
	}
}

func TestLossy(t *testing.T) {
	if !Lossy(NewRunScreenshotEvent("r", "x")) {
		t.Error("screenshot events are lossy")
	}
	for _, e := range []Event{
		NewStepUpdateEvent(Step{}),
		NewStepStartedEvent(1),
		NewCaptchaDetectedEvent(),
		NewCaptchaSolvedEvent(),
		NewCompletionEvent(StatusCompleted, "", nil, nil),
		NewErrorEvent("x"),
	} {
		if Lossy(e) {
			t.Errorf("%s must never be dropped", e.EventType())
		}
	}
}

func TestCompletionEventStatus(t *testing.T) {
	done := NewCompletionEvent(StatusCompleted, "42", []Step{{Number: 1}}, nil)
	if done.Status != "completed" || done.FinalAnswer != "42" {
		t.Errorf("unexpected completion: %+v", done)
	}

	failed := NewReplayCompletionEvent(StatusFailed, "command 2 failed")
	if failed.Status != "failed" || failed.Message != "command 2 failed" {
		t.Errorf("unexpected failure completion: %+v", failed)
	}
}
