// Package agent runs objectives against the browser: the decision loop for
// live runs and the replayer for saved automations.
package agent

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sashabaranov/go-openai"

	"github.com/webpilot-ai/webpilot/internal/browser"
	"github.com/webpilot-ai/webpilot/internal/llm"
	"github.com/webpilot-ai/webpilot/internal/tools"
	"github.com/webpilot-ai/webpilot/internal/types"
)

// EventSink receives progress events for the session's client. Send must not
// block.
type EventSink interface {
	Send(event types.Event)
}

// Observer is the page observation capability the loop needs between
// actions. *browser.Driver satisfies it.
type Observer interface {
	CapturePageState(ctx context.Context) (*browser.PageState, error)
}

// captchaToolName is the one tool that skips the CAPTCHA pre-check: it is
// the check.
const captchaToolName = "handle_captcha"

// Loop drives one run: observe the page, ask the model for the next action,
// execute it, repeat until the model answers or a limit trips.
type Loop struct {
	model       llm.Client
	registry    *tools.Registry
	observer    Observer
	solver      tools.CaptchaSolver
	sink        EventSink
	maxSteps    int
	stepTimeout time.Duration
}

// NewLoop builds a decision loop. sink may be nil.
func NewLoop(model llm.Client, registry *tools.Registry, observer Observer, solver tools.CaptchaSolver, sink EventSink, maxSteps int, stepTimeout time.Duration) *Loop {
	return &Loop{
		model:       model,
		registry:    registry,
		observer:    observer,
		solver:      solver,
		sink:        sink,
		maxSteps:    maxSteps,
		stepTimeout: stepTimeout,
	}
}

// Execute runs the loop until the run reaches a terminal status, mutating
// run in place. The returned error is nil exactly when the run completed.
func (l *Loop) Execute(ctx context.Context, run *types.Run) error {
	started := time.Now().UTC()
	run.Status = types.StatusInProgress
	run.StartedAt = &started

	log.Info().
		Str("run_id", run.ID).
		Str("objective", run.Objective).
		Msg("Run started")

	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
	}
	defs := l.registry.Definitions()

	var lastReply string

	for iteration := 1; ; iteration++ {
		if iteration > l.maxSteps {
			return l.fail(run, types.NewMaxStepsError(run.ID, len(run.Steps)))
		}
		if err := ctx.Err(); err != nil {
			return l.abandon(run, err)
		}

		state, err := l.observer.CapturePageState(ctx)
		if err != nil {
			if canceled(ctx, err) {
				return l.abandon(run, err)
			}
			return l.fail(run, err)
		}

		messages = append(messages, buildTurnMessage(run.Objective, len(run.Steps)+1, state))
		pruneImages(messages)

		reply, err := l.model.Decide(ctx, messages, defs)
		if err != nil {
			if canceled(ctx, err) {
				return l.abandon(run, err)
			}
			return l.fail(run, err)
		}

		if reply.Text != "" {
			stripped := stripBracketed(reply.Text)
			if stripped != "" && stripped == lastReply {
				// Non-fatal: guide the model elsewhere and let the iteration
				// cap bound the loop.
				log.Warn().Str("run_id", run.ID).Msg("Model repeated itself, injecting guidance")
				messages = append(messages,
					openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: reply.Text},
					openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: repetitionGuidance},
				)
				continue
			}
			lastReply = stripped
		}

		if reply.ToolCall == nil {
			run.FinalAnswer = reply.Text
			l.finish(run, types.StatusCompleted)
			log.Info().
				Str("run_id", run.ID).
				Int("steps", len(run.Steps)).
				Msg("Run completed")
			return nil
		}

		messages = append(messages, assistantToolCallMessage(reply))

		// A CAPTCHA anywhere on the page blocks the action, so every
		// dispatch is preceded by a solve attempt. A clean page is a no-op.
		if reply.ToolCall.Name != captchaToolName {
			if err := l.solver.Solve(ctx); err != nil {
				if canceled(ctx, err) {
					return l.abandon(run, err)
				}
				log.Warn().
					Err(err).
					Str("run_id", run.ID).
					Str("tool", reply.ToolCall.Name).
					Msg("CAPTCHA pre-check failed")
				l.recordFailedStep(run, reply.ToolCall.Name, err)
				messages = append(messages, toolResultMessage(reply.ToolCall.ID, "error: "+err.Error()))
				continue
			}
		}

		inv, execErr := l.dispatch(ctx, reply.ToolCall)
		if execErr != nil {
			if canceled(ctx, execErr) {
				return l.abandon(run, execErr)
			}
			// Action failures become a failed step and go back to the model;
			// it decides whether to retry, work around, or give up.
			log.Warn().
				Err(execErr).
				Str("run_id", run.ID).
				Str("tool", reply.ToolCall.Name).
				Msg("Tool execution failed")
			l.recordFailedStep(run, reply.ToolCall.Name, execErr)
			messages = append(messages, toolResultMessage(reply.ToolCall.ID, "error: "+execErr.Error()))
			continue
		}

		step := types.Step{
			Number:      len(run.Steps) + 1,
			Action:      inv.Command.Describe(),
			Explanation: inv.Explanation,
		}
		run.Steps = append(run.Steps, step)
		if inv.Command.Traceable() {
			run.Trace = append(run.Trace, inv.Command)
		}
		if l.sink != nil {
			l.sink.Send(types.NewStepUpdateEvent(step))
		}
		log.Debug().
			Str("run_id", run.ID).
			Int("step", step.Number).
			Str("action", step.Action).
			Msg("Step executed")

		messages = append(messages, toolResultMessage(reply.ToolCall.ID, "done: "+inv.Command.Describe()))
	}
}

func (l *Loop) dispatch(ctx context.Context, call *llm.ToolCall) (tools.Invocation, error) {
	tool, err := l.registry.Get(call.Name)
	if err != nil {
		return tools.Invocation{}, err
	}

	actCtx, cancel := context.WithTimeout(ctx, l.stepTimeout)
	defer cancel()
	return tool.Execute(actCtx, call.Args)
}

// recordFailedStep appends a step for an action that could not execute. The
// run continues; failed steps still count toward the numbering.
func (l *Loop) recordFailedStep(run *types.Run, toolName string, err error) {
	step := types.Step{
		Number:      len(run.Steps) + 1,
		Action:      toolName + " failed",
		Explanation: err.Error(),
	}
	run.Steps = append(run.Steps, step)
	if l.sink != nil {
		l.sink.Send(types.NewStepUpdateEvent(step))
	}
}

// abandon ends the loop without a terminal transition: the run keeps its
// current status so a later session can pick it up again.
func (l *Loop) abandon(run *types.Run, err error) error {
	log.Info().
		Err(err).
		Str("run_id", run.ID).
		Int("steps", len(run.Steps)).
		Msg("Run abandoned")
	return err
}

// canceled distinguishes session cancellation from real failures.
func canceled(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, context.Canceled)
}

func (l *Loop) fail(run *types.Run, err error) error {
	l.finish(run, types.StatusFailed)
	log.Error().
		Err(err).
		Str("run_id", run.ID).
		Int("steps", len(run.Steps)).
		Msg("Run failed")
	return err
}

func (l *Loop) finish(run *types.Run, status types.RunStatus) {
	now := time.Now().UTC()
	run.Status = status
	run.CompletedAt = &now
}

func assistantToolCallMessage(reply llm.Reply) openai.ChatCompletionMessage {
	return openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleAssistant,
		Content: reply.Text,
		ToolCalls: []openai.ToolCall{{
			ID:   reply.ToolCall.ID,
			Type: openai.ToolTypeFunction,
			Function: openai.FunctionCall{
				Name:      reply.ToolCall.Name,
				Arguments: string(reply.ToolCall.Args),
			},
		}},
	}
}

func toolResultMessage(callID, content string) openai.ChatCompletionMessage {
	return openai.ChatCompletionMessage{
		Role:       openai.ChatMessageRoleTool,
		ToolCallID: callID,
		Content:    content,
	}
}
