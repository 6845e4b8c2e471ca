package types

import "fmt"

// CommandType tags the variant of a replayable Command.
type CommandType string

// Command variants. The names double as the wire/storage tags.
const (
	CommandNavigate     CommandType = "navigate"
	CommandSearch       CommandType = "search"
	CommandClick        CommandType = "click"
	CommandTyping       CommandType = "type"
	CommandTypeAndEnter CommandType = "type_and_enter"
	CommandScroll       CommandType = "scroll"
	CommandBack         CommandType = "back"
	CommandSolveCaptcha CommandType = "solve_captcha"
)

// Command is one recorded browser action. Only the fields relevant to the
// variant are set; the rest stay empty and are omitted from JSON.
type Command struct {
	Type        CommandType `json:"type"`
	URL         string      `json:"url,omitempty"`
	Query       string      `json:"query,omitempty"`
	Identifier  string      `json:"identifier,omitempty"`
	Placeholder string      `json:"placeholder,omitempty"`
	Text        string      `json:"text,omitempty"`
}

// NewNavigate returns a navigate command.
func NewNavigate(url string) Command {
	return Command{Type: CommandNavigate, URL: url}
}

// NewSearch returns a search command.
func NewSearch(query string) Command {
	return Command{Type: CommandSearch, Query: query}
}

// NewClick returns a click command.
func NewClick(identifier string) Command {
	return Command{Type: CommandClick, Identifier: identifier}
}

// NewTyping returns a type command; pressEnter selects the enter variant.
func NewTyping(placeholder, text string, pressEnter bool) Command {
	t := CommandTyping
	if pressEnter {
		t = CommandTypeAndEnter
	}
	return Command{Type: t, Placeholder: placeholder, Text: text}
}

// NewScroll returns a scroll command.
func NewScroll() Command {
	return Command{Type: CommandScroll}
}

// NewBack returns a back command.
func NewBack() Command {
	return Command{Type: CommandBack}
}

// NewSolveCaptcha returns a solve-captcha command. These are produced during
// live runs but never persisted in a trace.
func NewSolveCaptcha() Command {
	return Command{Type: CommandSolveCaptcha}
}

// Traceable reports whether the command belongs in a persisted trace.
// CAPTCHA handling is implicit during replay, so it is never recorded.
func (c Command) Traceable() bool {
	return c.Type != CommandSolveCaptcha
}

// Validate checks that the command carries the fields its variant requires.
func (c Command) Validate() error {
	switch c.Type {
	case CommandNavigate:
		if c.URL == "" {
			return fmt.Errorf("navigate command: url is required")
		}
	case CommandSearch:
		if c.Query == "" {
			return fmt.Errorf("search command: query is required")
		}
	case CommandClick:
		if c.Identifier == "" {
			return fmt.Errorf("click command: identifier is required")
		}
	case CommandTyping, CommandTypeAndEnter:
		if c.Placeholder == "" {
			return fmt.Errorf("%s command: placeholder is required", c.Type)
		}
	case CommandScroll, CommandBack, CommandSolveCaptcha:
		// No arguments.
	default:
		return fmt.Errorf("unknown command type %q", c.Type)
	}
	return nil
}

// Describe returns a short human-readable summary of the command.
func (c Command) Describe() string {
	switch c.Type {
	case CommandNavigate:
		return "navigate to " + c.URL
	case CommandSearch:
		return "search for " + c.Query
	case CommandClick:
		return "click " + c.Identifier
	case CommandTyping:
		return fmt.Sprintf("type %q into %q", c.Text, c.Placeholder)
	case CommandTypeAndEnter:
		return fmt.Sprintf("type %q into %q and press enter", c.Text, c.Placeholder)
	case CommandScroll:
		return "scroll"
	case CommandBack:
		return "go back"
	case CommandSolveCaptcha:
		return "solve captcha"
	default:
		return string(c.Type)
	}
}

// FilterTrace returns only the traceable commands, preserving order.
func FilterTrace(commands []Command) []Command {
	out := make([]Command, 0, len(commands))
	for _, c := range commands {
		if c.Traceable() {
			out = append(out, c)
		}
	}
	return out
}
