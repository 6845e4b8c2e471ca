package tools

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"

	"github.com/webpilot-ai/webpilot/internal/types"
)

const (
	typingRetries      = 3
	typingRetryBackoff = time.Second
)

type urlTool struct{ b Browser }

func (t *urlTool) Name() string { return "handle_url" }

func (t *urlTool) Definition() openai.Tool {
	return functionTool(t.Name(),
		"Navigate the browser to an absolute URL",
		map[string]jsonschema.Definition{
			"url":         {Type: jsonschema.String, Description: "Absolute URL including the scheme, e.g. https://example.com"},
			"explanation": explanationProperty(),
		},
		[]string{"url", "explanation"},
	)
}

func (t *urlTool) Execute(ctx context.Context, args json.RawMessage) (Invocation, error) {
	var a struct {
		URL         string `json:"url"`
		Explanation string `json:"explanation"`
	}
	if err := decodeArgs(args, &a); err != nil {
		return Invocation{}, err
	}
	if err := t.b.Navigate(ctx, a.URL); err != nil {
		return Invocation{}, err
	}
	return Invocation{Command: types.NewNavigate(a.URL), Explanation: a.Explanation}, nil
}

type searchTool struct{ b Browser }

func (t *searchTool) Name() string { return "handle_search" }

func (t *searchTool) Definition() openai.Tool {
	return functionTool(t.Name(),
		"Type a query into the page's search input and submit it",
		map[string]jsonschema.Definition{
			"query":       {Type: jsonschema.String, Description: "Search query to submit"},
			"explanation": explanationProperty(),
		},
		[]string{"query", "explanation"},
	)
}

func (t *searchTool) Execute(ctx context.Context, args json.RawMessage) (Invocation, error) {
	var a struct {
		Query       string `json:"query"`
		Explanation string `json:"explanation"`
	}
	if err := decodeArgs(args, &a); err != nil {
		return Invocation{}, err
	}
	if err := t.b.Search(ctx, a.Query); err != nil {
		return Invocation{}, err
	}
	return Invocation{Command: types.NewSearch(a.Query), Explanation: a.Explanation}, nil
}

type clickTool struct{ b Browser }

func (t *clickTool) Name() string { return "handle_click" }

func (t *clickTool) Definition() openai.Tool {
	return functionTool(t.Name(),
		"Click an element identified by its visible text, or by its badge number when it has no text",
		map[string]jsonschema.Definition{
			"identifier":  {Type: jsonschema.String, Description: "Visible text of the element, or its yellow badge number"},
			"explanation": explanationProperty(),
		},
		[]string{"identifier", "explanation"},
	)
}

func (t *clickTool) Execute(ctx context.Context, args json.RawMessage) (Invocation, error) {
	var a struct {
		Identifier  string `json:"identifier"`
		Explanation string `json:"explanation"`
	}
	if err := decodeArgs(args, &a); err != nil {
		return Invocation{}, err
	}
	if err := t.b.Click(ctx, a.Identifier); err != nil {
		return Invocation{}, err
	}
	return Invocation{Command: types.NewClick(a.Identifier), Explanation: a.Explanation}, nil
}

type typingArgs struct {
	Placeholder string `json:"placeholder"`
	Text        string `json:"text"`
	Explanation string `json:"explanation"`
}

func typingProperties() map[string]jsonschema.Definition {
	return map[string]jsonschema.Definition{
		"placeholder": {Type: jsonschema.String, Description: "Placeholder, label, or name of the input field"},
		"text":        {Type: jsonschema.String, Description: "Text to type into the field"},
		"explanation": explanationProperty(),
	}
}

type typingTool struct{ b Browser }

func (t *typingTool) Name() string { return "handle_typing" }

func (t *typingTool) Definition() openai.Tool {
	return functionTool(t.Name(),
		"Type text into an input field without submitting",
		typingProperties(),
		[]string{"placeholder", "text", "explanation"},
	)
}

func (t *typingTool) Execute(ctx context.Context, args json.RawMessage) (Invocation, error) {
	var a typingArgs
	if err := decodeArgs(args, &a); err != nil {
		return Invocation{}, err
	}
	if err := typeWithRetry(ctx, t.b, a, false); err != nil {
		return Invocation{}, err
	}
	return Invocation{Command: types.NewTyping(a.Placeholder, a.Text, false), Explanation: a.Explanation}, nil
}

// typeWithRetry drives Browser.Type for both typing tools. Field lookup can
// race page transitions, so it retries before giving up.
func typeWithRetry(ctx context.Context, b Browser, a typingArgs, pressEnter bool) error {
	var err error
	for attempt := 1; attempt <= typingRetries; attempt++ {
		err = b.Type(ctx, a.Placeholder, a.Text, pressEnter)
		if err == nil {
			return nil
		}
		if attempt < typingRetries {
			log.Warn().
				Err(err).
				Int("attempt", attempt).
				Str("placeholder", a.Placeholder).
				Msg("Typing failed, retrying")
			select {
			case <-time.After(typingRetryBackoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return err
}

type typingWithEnterTool struct{ b Browser }

func (t *typingWithEnterTool) Name() string { return "handle_typing_with_enter" }

func (t *typingWithEnterTool) Definition() openai.Tool {
	return functionTool(t.Name(),
		"Type text into an input field and press Enter to submit",
		typingProperties(),
		[]string{"placeholder", "text", "explanation"},
	)
}

func (t *typingWithEnterTool) Execute(ctx context.Context, args json.RawMessage) (Invocation, error) {
	var a typingArgs
	if err := decodeArgs(args, &a); err != nil {
		return Invocation{}, err
	}
	if err := typeWithRetry(ctx, t.b, a, true); err != nil {
		return Invocation{}, err
	}
	return Invocation{Command: types.NewTyping(a.Placeholder, a.Text, true), Explanation: a.Explanation}, nil
}

type scrollTool struct{ b Browser }

func (t *scrollTool) Name() string { return "handle_scroll" }

func (t *scrollTool) Definition() openai.Tool {
	return functionTool(t.Name(),
		"Scroll the page to reveal more content",
		map[string]jsonschema.Definition{
			"direction":   {Type: jsonschema.String, Enum: []string{"up", "down"}, Description: "Scroll direction, down by default"},
			"explanation": explanationProperty(),
		},
		[]string{"explanation"},
	)
}

func (t *scrollTool) Execute(ctx context.Context, args json.RawMessage) (Invocation, error) {
	var a struct {
		Direction   string `json:"direction"`
		Explanation string `json:"explanation"`
	}
	if err := decodeArgs(args, &a); err != nil {
		return Invocation{}, err
	}
	if a.Direction == "" {
		a.Direction = "down"
	}
	// Amount 0 lets the browser default to one viewport height.
	if err := t.b.Scroll(ctx, a.Direction, 0); err != nil {
		return Invocation{}, err
	}
	return Invocation{Command: types.NewScroll(), Explanation: a.Explanation}, nil
}

type backTool struct{ b Browser }

func (t *backTool) Name() string { return "handle_back" }

func (t *backTool) Definition() openai.Tool {
	return functionTool(t.Name(),
		"Go back to the previous page in browser history",
		map[string]jsonschema.Definition{
			"explanation": explanationProperty(),
		},
		[]string{"explanation"},
	)
}

func (t *backTool) Execute(ctx context.Context, args json.RawMessage) (Invocation, error) {
	var a struct {
		Explanation string `json:"explanation"`
	}
	if err := decodeArgs(args, &a); err != nil {
		return Invocation{}, err
	}
	if err := t.b.Back(ctx); err != nil {
		return Invocation{}, err
	}
	return Invocation{Command: types.NewBack(), Explanation: a.Explanation}, nil
}

type captchaTool struct{ solver CaptchaSolver }

func (t *captchaTool) Name() string { return "handle_captcha" }

func (t *captchaTool) Definition() openai.Tool {
	return functionTool(t.Name(),
		"Solve the CAPTCHA currently blocking the page",
		map[string]jsonschema.Definition{
			"explanation": explanationProperty(),
		},
		[]string{"explanation"},
	)
}

func (t *captchaTool) Execute(ctx context.Context, args json.RawMessage) (Invocation, error) {
	var a struct {
		Explanation string `json:"explanation"`
	}
	if err := decodeArgs(args, &a); err != nil {
		return Invocation{}, err
	}
	if err := t.solver.Solve(ctx); err != nil {
		return Invocation{}, err
	}
	return Invocation{Command: types.NewSolveCaptcha(), Explanation: a.Explanation}, nil
}
