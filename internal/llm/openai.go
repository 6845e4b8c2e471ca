package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/sashabaranov/go-openai"

	"github.com/webpilot-ai/webpilot/internal/types"
)

const (
	selectTilesSystemPrompt = "You solve image-grid CAPTCHA challenges. You are shown numbered tiles " +
		"and an instruction. Reply with ONLY the comma-separated numbers of the tiles that match the " +
		"instruction, for example: 1,4,7. If no tiles match, reply with exactly 0."

	readTextCaptchaSystemPrompt = "You read text CAPTCHA challenges from page screenshots. Find the " +
		"distorted challenge text and its answer input field. Reply with ONLY a JSON object: " +
		`{"found": true|false, "placeholder": "<placeholder or label of the answer input>", ` +
		`"answer": "<the characters shown in the challenge>"}. Set found to false when the page ` +
		"shows no text CAPTCHA."

	summarizeSystemPrompt = "You describe the outcome of a finished browser automation in one or two " +
		"plain sentences, based on the final screenshot. State what the page shows that is relevant " +
		"to the objective. Do not mention screenshots or that you are a model."
)

// OpenAIClient implements Client on the OpenAI chat completions API.
type OpenAIClient struct {
	api   *openai.Client
	model string
}

// NewOpenAIClient builds a client for the given API key and vision-capable
// model.
func NewOpenAIClient(apiKey, model string) *OpenAIClient {
	return &OpenAIClient{
		api:   openai.NewClient(apiKey),
		model: model,
	}
}

func (c *OpenAIClient) Decide(ctx context.Context, messages []openai.ChatCompletionMessage, tools []openai.Tool) (Reply, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: messages,
		Tools:    tools,
	})
	if err != nil {
		return Reply{}, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Reply{}, fmt.Errorf("chat completion: empty response")
	}

	msg := resp.Choices[0].Message
	reply := Reply{Text: strings.TrimSpace(msg.Content)}

	if len(msg.ToolCalls) > 0 {
		tc := msg.ToolCalls[0]
		if len(msg.ToolCalls) > 1 {
			log.Warn().
				Int("tool_calls", len(msg.ToolCalls)).
				Str("using", tc.Function.Name).
				Msg("Model requested multiple tool calls, executing only the first")
		}
		reply.ToolCall = &ToolCall{
			ID:   tc.ID,
			Name: tc.Function.Name,
			Args: json.RawMessage(tc.Function.Arguments),
		}
	}

	return reply, nil
}

func (c *OpenAIClient) SelectTiles(ctx context.Context, instruction string, tiles []string) ([]int, error) {
	parts := []openai.ChatMessagePart{
		{
			Type: openai.ChatMessagePartTypeText,
			Text: fmt.Sprintf("Instruction: %s\nThe %d tiles follow in order, tile 1 first.", instruction, len(tiles)),
		},
	}
	for _, tile := range tiles {
		parts = append(parts, imagePart(tile))
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: selectTilesSystemPrompt},
			{Role: openai.ChatMessageRoleUser, MultiContent: parts},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("select tiles: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("select tiles: empty response")
	}

	raw := resp.Choices[0].Message.Content
	indices := ParseTileSelection(raw, len(tiles))
	log.Debug().
		Str("instruction", instruction).
		Str("reply", raw).
		Ints("tiles", indices).
		Msg("Tile selection")
	return indices, nil
}

func (c *OpenAIClient) ReadTextCaptcha(ctx context.Context, screenshot string) (TextCaptchaReading, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: readTextCaptchaSystemPrompt},
			{Role: openai.ChatMessageRoleUser, MultiContent: []openai.ChatMessagePart{
				{Type: openai.ChatMessagePartTypeText, Text: "Read the CAPTCHA on this page."},
				imagePart(screenshot),
			}},
		},
	})
	if err != nil {
		return TextCaptchaReading{}, fmt.Errorf("read text captcha: %w", err)
	}
	if len(resp.Choices) == 0 {
		return TextCaptchaReading{}, fmt.Errorf("read text captcha: empty response")
	}

	var reading TextCaptchaReading
	if err := parseJSONReply(resp.Choices[0].Message.Content, &reading); err != nil {
		return TextCaptchaReading{}, types.NewCaptchaUnsolvableError("text", "", fmt.Sprintf("unparseable reading: %v", err))
	}
	return reading, nil
}

func (c *OpenAIClient) Summarize(ctx context.Context, name, objective, screenshot string) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: summarizeSystemPrompt},
			{Role: openai.ChatMessageRoleUser, MultiContent: []openai.ChatMessagePart{
				{
					Type: openai.ChatMessagePartTypeText,
					Text: fmt.Sprintf("Automation %q just finished. Its objective was: %s\nThis is the final page.", name, objective),
				},
				imagePart(screenshot),
			}},
		},
	})
	if err != nil {
		return "", fmt.Errorf("summarize: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("summarize: empty response")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
