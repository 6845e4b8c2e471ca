package supervisor

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/webpilot-ai/webpilot/internal/agent"
	"github.com/webpilot-ai/webpilot/internal/browser"
	"github.com/webpilot-ai/webpilot/internal/captcha"
	"github.com/webpilot-ai/webpilot/internal/config"
	"github.com/webpilot-ai/webpilot/internal/llm"
	"github.com/webpilot-ai/webpilot/internal/tools"
	"github.com/webpilot-ai/webpilot/internal/types"
)

// browserEngine is the production Engine: a dedicated stealth browser per
// session, shared model client, shared CAPTCHA selector manager.
type browserEngine struct {
	cfg      *config.Config
	driver   *browser.Driver
	model    llm.Client
	detector *captcha.Detector
}

// NewBrowserEngineFactory returns the factory main wires into the
// supervisor.
func NewBrowserEngineFactory(cfg *config.Config, model llm.Client, manager *captcha.Manager) EngineFactory {
	return func(ctx context.Context) (Engine, error) {
		driver, err := browser.New(browser.Options{
			Headless:    cfg.Headless,
			BrowserPath: cfg.BrowserPath,
		})
		if err != nil {
			return nil, fmt.Errorf("start browser: %w", err)
		}
		return &browserEngine{
			cfg:      cfg,
			driver:   driver,
			model:    model,
			detector: captcha.NewDetector(manager),
		}, nil
	}
}

func (e *browserEngine) ExecuteRun(ctx context.Context, run *types.Run, sink agent.EventSink) error {
	handler := captcha.NewHandler(e.driver, e.model, e.detector, captchaNotifier{sink})
	registry := tools.NewRegistry(e.driver, handler)
	loop := agent.NewLoop(e.model, registry, e.driver, handler, sink, e.cfg.MaxSteps, e.cfg.StepTimeout)
	return loop.Execute(ctx, run)
}

func (e *browserEngine) ExecuteReplay(ctx context.Context, automation *types.Automation, sink agent.EventSink) (string, error) {
	handler := captcha.NewHandler(e.driver, e.model, e.detector, captchaNotifier{sink})
	replayer := agent.NewReplayer(e.driver, handler, e.model, sink)
	return replayer.Execute(ctx, automation)
}

func (e *browserEngine) Screenshot(ctx context.Context) (string, bool) {
	data, ok := e.driver.TryScreenshot(ctx)
	if !ok {
		return "", false
	}
	return base64.StdEncoding.EncodeToString(data), true
}

func (e *browserEngine) Close() {
	e.driver.Close()
}

// captchaNotifier forwards solve lifecycle notifications as protocol events.
type captchaNotifier struct {
	sink agent.EventSink
}

func (n captchaNotifier) CaptchaDetected(string) { n.sink.Send(types.NewCaptchaDetectedEvent()) }
func (n captchaNotifier) CaptchaSolved(string)   { n.sink.Send(types.NewCaptchaSolvedEvent()) }
