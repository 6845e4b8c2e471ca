// Package llm wraps the vision-capable language model behind the narrow
// interface the decision loop and CAPTCHA handler consume.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// ToolCall is one function invocation requested by the model.
type ToolCall struct {
	ID   string
	Name string
	Args json.RawMessage
}

// Reply is one model turn: free text, plus at most one tool call. A reply
// with no tool call is a final answer.
type Reply struct {
	Text     string
	ToolCall *ToolCall
}

// TextCaptchaReading is the model's reading of a text CAPTCHA screenshot.
type TextCaptchaReading struct {
	Found       bool   `json:"found"`
	Placeholder string `json:"placeholder"`
	Answer      string `json:"answer"`
}

// Client is the language-model capability. Implementations must be safe for
// concurrent use across sessions.
type Client interface {
	// Decide runs one decision turn with the conversation and the callable
	// tool declarations.
	Decide(ctx context.Context, messages []openai.ChatCompletionMessage, tools []openai.Tool) (Reply, error)

	// SelectTiles returns the 1-based indices of CAPTCHA tiles matching the
	// instruction, or an empty slice when none match.
	SelectTiles(ctx context.Context, instruction string, tiles []string) ([]int, error)

	// ReadTextCaptcha locates the answer input and extracts the challenge
	// answer from a full-page screenshot.
	ReadTextCaptcha(ctx context.Context, screenshot string) (TextCaptchaReading, error)

	// Summarize produces the replay completion message from the final
	// screenshot.
	Summarize(ctx context.Context, name, objective, screenshot string) (string, error)
}

// ParseTileSelection parses the model's comma-separated tile indices.
// "0", "none", and an empty reply all mean no tiles. Indices are 1-based;
// out-of-range and non-numeric fragments are dropped.
func ParseTileSelection(s string, tileCount int) []int {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	lower := strings.ToLower(s)
	if lower == "0" || lower == "none" {
		return nil
	}

	var indices []int
	seen := make(map[int]bool)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		n, err := strconv.Atoi(part)
		if err != nil || n < 1 || n > tileCount || seen[n] {
			continue
		}
		seen[n] = true
		indices = append(indices, n)
	}
	return indices
}

// parseJSONReply decodes a JSON object from a model reply, tolerating code
// fences and surrounding prose.
func parseJSONReply(s string, v interface{}) error {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start == -1 || end <= start {
		return fmt.Errorf("no JSON object in model reply")
	}
	return json.Unmarshal([]byte(s[start:end+1]), v)
}

// imagePart builds a data-URL image content part from a base64 JPEG.
func imagePart(b64 string) openai.ChatMessagePart {
	return openai.ChatMessagePart{
		Type: openai.ChatMessagePartTypeImageURL,
		ImageURL: &openai.ChatMessageImageURL{
			URL:    "data:image/jpeg;base64," + b64,
			Detail: openai.ImageURLDetailAuto,
		},
	}
}
