// Package tools defines the callable actions exposed to the model during a
// decision turn, and the registry the agent loop dispatches through.
package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"

	"github.com/webpilot-ai/webpilot/internal/types"
)

// Browser is the slice of browser capability the tools drive. *browser.Driver
// satisfies it.
type Browser interface {
	Navigate(ctx context.Context, url string) error
	Search(ctx context.Context, query string) error
	Click(ctx context.Context, identifier string) error
	Type(ctx context.Context, matcher, text string, pressEnter bool) error
	Scroll(ctx context.Context, direction string, amount float64) error
	Back(ctx context.Context) error
}

// CaptchaSolver resolves a CAPTCHA currently blocking the page.
type CaptchaSolver interface {
	Solve(ctx context.Context) error
}

// Invocation is the outcome of one executed tool: the command it performed,
// for the trace, and the model's stated reason, for the step record.
type Invocation struct {
	Command     types.Command
	Explanation string
}

// Tool is one callable action. Execute parses its own arguments and performs
// the action against the browser.
type Tool interface {
	Name() string
	Definition() openai.Tool
	Execute(ctx context.Context, args json.RawMessage) (Invocation, error)
}

// Registry holds the tool set for a session in declaration order.
type Registry struct {
	order  []string
	byName map[string]Tool
}

// NewRegistry builds the full tool set over the given browser and CAPTCHA
// solver.
func NewRegistry(b Browser, solver CaptchaSolver) *Registry {
	r := &Registry{byName: make(map[string]Tool)}
	for _, t := range []Tool{
		&urlTool{b: b},
		&searchTool{b: b},
		&clickTool{b: b},
		&typingTool{b: b},
		&typingWithEnterTool{b: b},
		&scrollTool{b: b},
		&backTool{b: b},
		&captchaTool{solver: solver},
	} {
		r.order = append(r.order, t.Name())
		r.byName[t.Name()] = t
	}
	return r
}

// Get returns the named tool.
func (r *Registry) Get(name string) (Tool, error) {
	t, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrUnknownTool, name)
	}
	return t, nil
}

// Definitions returns the tool declarations passed to the model, in stable
// order.
func (r *Registry) Definitions() []openai.Tool {
	defs := make([]openai.Tool, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.byName[name].Definition())
	}
	return defs
}

// explanationProperty is shared by every tool schema: the model must say why
// it is taking the step.
func explanationProperty() jsonschema.Definition {
	return jsonschema.Definition{
		Type:        jsonschema.String,
		Description: "One sentence explaining why this action advances the objective",
	}
}

func functionTool(name, description string, properties map[string]jsonschema.Definition, required []string) openai.Tool {
	return openai.Tool{
		Type: openai.ToolTypeFunction,
		Function: &openai.FunctionDefinition{
			Name:        name,
			Description: description,
			Parameters: jsonschema.Definition{
				Type:       jsonschema.Object,
				Properties: properties,
				Required:   required,
			},
		},
	}
}

func decodeArgs(args json.RawMessage, v interface{}) error {
	if err := json.Unmarshal(args, v); err != nil {
		return fmt.Errorf("%w: %v", types.ErrInvalidToolArgs, err)
	}
	return nil
}
