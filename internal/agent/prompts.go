package agent

import (
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/webpilot-ai/webpilot/internal/annotate"
	"github.com/webpilot-ai/webpilot/internal/browser"
)

const systemPrompt = `You are a browser automation agent. You control a real browser and work toward
the user's objective one action at a time.

Each turn you receive a screenshot of the current page and an inventory of its
clickable elements. Interactive elements are outlined in red; elements without
visible text carry a numbered yellow badge instead.

Rules:
- Take exactly one action per turn by calling one tool.
- Refer to elements by their visible text, or by their badge number when they
  have none.
- Use handle_search when the page has a search box and you need to find
  something on the site.
- If a CAPTCHA blocks the page, call handle_captcha before anything else.
- When the objective is fulfilled, do not call a tool: reply with the final
  answer for the user, including any concrete facts you gathered.
- Never invent information that is not on the page.`

// repetitionGuidance is injected when the model repeats itself verbatim.
const repetitionGuidance = "You already gave that exact response and the page has not changed in your " +
	"favor. Take a different action: scroll to reveal more of the page, go back, or try another element."

// buildTurnMessage assembles the user message for one decision turn: page
// context and element inventory as text, plus the current screenshot.
func buildTurnMessage(objective string, stepNumber int, state *browser.PageState) openai.ChatCompletionMessage {
	var b strings.Builder
	fmt.Fprintf(&b, "Objective: %s\n", objective)
	fmt.Fprintf(&b, "Step %d. Current page: %s", stepNumber, state.URL)
	if state.Title != "" {
		fmt.Fprintf(&b, " (%s)", state.Title)
	}
	b.WriteString("\n\n")
	b.WriteString(formatInventory(state.Elements))
	b.WriteString("\nThe screenshot of the current page follows.")

	return openai.ChatCompletionMessage{
		Role: openai.ChatMessageRoleUser,
		MultiContent: []openai.ChatMessagePart{
			{Type: openai.ChatMessagePartTypeText, Text: b.String()},
			{
				Type: openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{
					URL:    "data:image/jpeg;base64," + state.Screenshot,
					Detail: openai.ImageURLDetailAuto,
				},
			},
		},
	}
}

// formatInventory renders the clickable inventory as one line per element.
func formatInventory(elements []annotate.Element) string {
	if len(elements) == 0 {
		return "No clickable elements are visible.\n"
	}

	var b strings.Builder
	b.WriteString("Clickable elements:\n")
	for _, el := range elements {
		if el.Label > 0 {
			fmt.Fprintf(&b, "- [badge %d] <%s>", el.Label, el.Tag)
		} else {
			fmt.Fprintf(&b, "- %q <%s>", el.Text, el.Tag)
		}
		if el.AriaLabel != "" {
			fmt.Fprintf(&b, " aria-label=%q", el.AriaLabel)
		}
		if el.Placeholder != "" {
			fmt.Fprintf(&b, " placeholder=%q", el.Placeholder)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// pruneImages strips screenshots from every user message except the last one
// that has any, keeping the conversation within the model's context budget.
func pruneImages(messages []openai.ChatCompletionMessage) {
	lastWithImage := -1
	for i, m := range messages {
		if m.Role == openai.ChatMessageRoleUser && hasImage(m) {
			lastWithImage = i
		}
	}
	for i := range messages {
		if i == lastWithImage || messages[i].Role != openai.ChatMessageRoleUser || !hasImage(messages[i]) {
			continue
		}
		var text strings.Builder
		for _, part := range messages[i].MultiContent {
			if part.Type == openai.ChatMessagePartTypeText {
				text.WriteString(part.Text)
			}
		}
		messages[i].MultiContent = nil
		messages[i].Content = text.String() + "\n[screenshot omitted]"
	}
}

func hasImage(m openai.ChatCompletionMessage) bool {
	for _, part := range m.MultiContent {
		if part.Type == openai.ChatMessagePartTypeImageURL {
			return true
		}
	}
	return false
}

// stripBracketed removes bracketed segments and collapses whitespace, so
// replies differing only in step counters or timestamps compare as equal.
func stripBracketed(s string) string {
	var b strings.Builder
	depth := 0
	for _, r := range s {
		switch r {
		case '[':
			depth++
		case ']':
			if depth > 0 {
				depth--
			}
		default:
			if depth == 0 {
				b.WriteRune(r)
			}
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
