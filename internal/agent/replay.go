package agent

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/webpilot-ai/webpilot/internal/humanize"
	"github.com/webpilot-ai/webpilot/internal/llm"
	"github.com/webpilot-ai/webpilot/internal/tools"
	"github.com/webpilot-ai/webpilot/internal/types"
)

// commandGrace is the pause between replayed commands, giving pages time to
// settle beyond the per-action quiesce.
const commandGrace = time.Second

// ReplayBrowser is the browser capability a replay needs: the action surface
// plus the final screenshot for the summary.
type ReplayBrowser interface {
	tools.Browser
	Screenshot(ctx context.Context) ([]byte, error)
}

// Replayer re-executes a saved automation trace command by command.
type Replayer struct {
	browser ReplayBrowser
	solver  tools.CaptchaSolver
	model   llm.Client
	sink    EventSink
	grace   time.Duration
}

// NewReplayer builds a Replayer. sink may be nil.
func NewReplayer(b ReplayBrowser, solver tools.CaptchaSolver, model llm.Client, sink EventSink) *Replayer {
	return &Replayer{browser: b, solver: solver, model: model, sink: sink, grace: commandGrace}
}

// Execute replays the automation's trace in order and returns the completion
// message. Any command failure aborts the replay.
func (r *Replayer) Execute(ctx context.Context, automation *types.Automation) (string, error) {
	log.Info().
		Str("automation_id", automation.ID).
		Str("name", automation.Name).
		Int("commands", len(automation.Trace)).
		Msg("Replay started")

	for i, cmd := range automation.Trace {
		number := i + 1
		if err := cmd.Validate(); err != nil {
			return "", fmt.Errorf("command %d: %w", number, err)
		}

		if r.sink != nil {
			r.sink.Send(types.NewStepStartedEvent(number))
		}

		// A CAPTCHA can appear anywhere in a replay even though solves are
		// never recorded, so every command gets a pre-check.
		if err := r.solver.Solve(ctx); err != nil {
			return "", fmt.Errorf("command %d: %w", number, err)
		}

		if err := r.apply(ctx, cmd); err != nil {
			return "", fmt.Errorf("command %d (%s): %w", number, cmd.Describe(), err)
		}

		if r.sink != nil {
			r.sink.Send(types.NewStepCompletedEvent(number))
		}
		log.Debug().
			Str("automation_id", automation.ID).
			Int("command", number).
			Str("action", cmd.Describe()).
			Msg("Command replayed")

		if !humanize.SleepWithContext(ctx, r.grace) {
			return "", ctx.Err()
		}
	}

	message := r.summarize(ctx, automation)
	log.Info().
		Str("automation_id", automation.ID).
		Msg("Replay completed")
	return message, nil
}

func (r *Replayer) apply(ctx context.Context, cmd types.Command) error {
	switch cmd.Type {
	case types.CommandNavigate:
		return r.browser.Navigate(ctx, cmd.URL)
	case types.CommandSearch:
		return r.browser.Search(ctx, cmd.Query)
	case types.CommandClick:
		return r.browser.Click(ctx, cmd.Identifier)
	case types.CommandTyping:
		return r.browser.Type(ctx, cmd.Placeholder, cmd.Text, false)
	case types.CommandTypeAndEnter:
		return r.browser.Type(ctx, cmd.Placeholder, cmd.Text, true)
	case types.CommandScroll:
		return r.browser.Scroll(ctx, "down", 0)
	case types.CommandBack:
		return r.browser.Back(ctx)
	case types.CommandSolveCaptcha:
		// Traces never record solves, but tolerate one in hand-edited data.
		return r.solver.Solve(ctx)
	default:
		return fmt.Errorf("%w: unknown command %q", types.ErrInvalidToolArgs, cmd.Type)
	}
}

// summarize asks the vision model to describe the outcome from the final
// page. Summary failures never fail a replay that already ran through.
func (r *Replayer) summarize(ctx context.Context, automation *types.Automation) string {
	fallback := fmt.Sprintf("Automation %q completed successfully.", automation.Name)

	shot, err := r.browser.Screenshot(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Final screenshot failed, using fallback summary")
		return fallback
	}

	message, err := r.model.Summarize(ctx, automation.Name, automation.Objective,
		base64.StdEncoding.EncodeToString(shot))
	if err != nil || message == "" {
		if err != nil {
			log.Warn().Err(err).Msg("Replay summary failed, using fallback")
		}
		return fallback
	}
	return message
}
