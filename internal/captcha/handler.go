package captcha

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog/log"
	"github.com/ysmood/gson"

	"github.com/webpilot-ai/webpilot/internal/humanize"
	"github.com/webpilot-ai/webpilot/internal/llm"
	"github.com/webpilot-ai/webpilot/internal/types"
)

const (
	checkboxRetries   = 3
	challengeAttempts = 5
	continuousRounds  = 5
	settleDelay       = 2 * time.Second
	frameTimeout      = 5 * time.Second
	solveTimeout      = 2 * time.Minute

	tileQuality = 80
)

// Browser is the slice of browser capability solving needs. *browser.Driver
// satisfies it.
type Browser interface {
	WithPage(fn func(page *rod.Page) error) error
	Screenshot(ctx context.Context) ([]byte, error)
	Type(ctx context.Context, matcher, text string, pressEnter bool) error
	Eval(ctx context.Context, script string, args ...interface{}) (gson.JSON, error)
	URL() string
}

// Notifier receives solve lifecycle notifications. Implementations must not
// block.
type Notifier interface {
	CaptchaDetected(kind string)
	CaptchaSolved(kind string)
}

// Handler detects and solves the CAPTCHA blocking the current page using the
// vision model. It implements the solver the handle_captcha tool delegates
// to.
type Handler struct {
	browser  Browser
	model    llm.Client
	detector *Detector
	notifier Notifier
}

// NewHandler builds a Handler. notifier may be nil.
func NewHandler(b Browser, model llm.Client, detector *Detector, notifier Notifier) *Handler {
	return &Handler{browser: b, model: model, detector: detector, notifier: notifier}
}

// Solve detects the CAPTCHA kind, runs the matching solve flow, and verifies
// by re-detecting. A page with no visible CAPTCHA is a no-op success.
func (h *Handler) Solve(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, solveTimeout)
	defer cancel()

	detection, err := h.detector.Detect(ctx, h.browser)
	if err != nil {
		return err
	}
	if detection.Kind == KindNone {
		log.Debug().Str("url", h.browser.URL()).Msg("No CAPTCHA on page, nothing to solve")
		return nil
	}

	pageURL := h.browser.URL()
	log.Info().
		Str("kind", string(detection.Kind)).
		Str("url", pageURL).
		Msg("Solving CAPTCHA")
	if h.notifier != nil {
		h.notifier.CaptchaDetected(string(detection.Kind))
	}

	switch detection.Kind {
	case KindRecaptcha:
		err = h.solveRecaptcha(ctx)
	case KindHcaptcha:
		err = h.solveHcaptcha(ctx)
	case KindText:
		err = h.solveText(ctx)
	default:
		err = types.NewCaptchaUnsolvableError(string(detection.Kind), pageURL, "unsupported kind")
	}
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return types.NewCaptchaTimeoutError(string(detection.Kind), pageURL)
		}
		return err
	}

	humanize.SleepWithContext(ctx, settleDelay)
	again, err := h.detector.Detect(ctx, h.browser)
	if err != nil {
		return err
	}
	if again.Kind != KindNone {
		return types.NewCaptchaUnsolvableError(string(again.Kind), pageURL, "challenge still present after solving")
	}

	log.Info().Str("kind", string(detection.Kind)).Msg("CAPTCHA solved")
	if h.notifier != nil {
		h.notifier.CaptchaSolved(string(detection.Kind))
	}
	return nil
}

// solveRecaptcha clicks the anchor checkbox and, when an image challenge
// opens, works through it with the vision model.
func (h *Handler) solveRecaptcha(ctx context.Context) error {
	sel := h.detector.manager.Get()

	return h.browser.WithPage(func(page *rod.Page) error {
		anchor, err := frameBySrc(page, sel.RecaptchaAnchorFrame)
		if err != nil {
			return types.NewCaptchaUnsolvableError("recaptcha", h.browser.URL(), "anchor frame not found")
		}

		for attempt := 1; attempt <= checkboxRetries; attempt++ {
			if err := clickFrameElement(ctx, anchor, "#recaptcha-anchor"); err != nil {
				log.Warn().Err(err).Int("attempt", attempt).Msg("reCAPTCHA checkbox click failed")
			}
			humanize.SleepWithContext(ctx, settleDelay)

			if recaptchaChecked(anchor) {
				return nil
			}
			if challenge, err := frameBySrc(page, sel.RecaptchaChallengeFrame); err == nil {
				return h.solveImageChallenge(ctx, anchor, challenge)
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
		}

		return types.NewCaptchaUnsolvableError("recaptcha", h.browser.URL(), "checkbox never verified")
	})
}

// solveImageChallenge runs the tile selection loop. Continuous tasks keep
// selecting until the model reports no matching tiles remain.
func (h *Handler) solveImageChallenge(ctx context.Context, anchor, challenge *rod.Page) error {
	for attempt := 1; attempt <= challengeAttempts; attempt++ {
		instruction, err := challengeInstruction(challenge)
		if err != nil {
			return types.NewCaptchaUnsolvableError("recaptcha", h.browser.URL(), "challenge instruction unreadable")
		}
		log.Debug().
			Int("attempt", attempt).
			Str("instruction", instruction).
			Msg("reCAPTCHA image challenge")

		rounds := 1
		if isContinuousTask(instruction) {
			rounds = continuousRounds
		}

		for round := 0; round < rounds; round++ {
			tiles, elements, err := captureTiles(challenge)
			if err != nil {
				return err
			}
			indices, err := h.model.SelectTiles(ctx, instruction, tiles)
			if err != nil {
				return err
			}
			if len(indices) == 0 {
				break
			}
			for _, idx := range indices {
				if idx < 1 || idx > len(elements) {
					continue
				}
				if err := elements[idx-1].Click(proto.InputMouseButtonLeft, 1); err != nil {
					log.Warn().Err(err).Int("tile", idx).Msg("Tile click failed")
				}
				humanize.SleepWithContext(ctx, 300*time.Millisecond)
			}
			// Replacement tiles fade in after a selection.
			humanize.SleepWithContext(ctx, settleDelay)
		}

		if err := clickFrameElement(ctx, challenge, "#recaptcha-verify-button"); err != nil {
			log.Warn().Err(err).Msg("Verify button click failed")
		}
		humanize.SleepWithContext(ctx, settleDelay)

		if recaptchaChecked(anchor) {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	return types.NewCaptchaUnsolvableError("recaptcha", h.browser.URL(), "out of challenge attempts")
}

// solveHcaptcha clicks the checkbox and waits for it to turn checked. Image
// challenges beyond the checkbox are treated as unsolvable.
func (h *Handler) solveHcaptcha(ctx context.Context) error {
	sel := h.detector.manager.Get()

	return h.browser.WithPage(func(page *rod.Page) error {
		frame, err := frameBySrc(page, sel.HcaptchaFrame)
		if err != nil {
			return types.NewCaptchaUnsolvableError("hcaptcha", h.browser.URL(), "checkbox frame not found")
		}

		for attempt := 1; attempt <= 2; attempt++ {
			if err := clickFrameElement(ctx, frame, "#checkbox"); err != nil {
				log.Warn().Err(err).Int("attempt", attempt).Msg("hCaptcha checkbox click failed")
			}
			humanize.SleepWithContext(ctx, settleDelay)

			if hcaptchaChecked(frame) {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
		}

		return types.NewCaptchaUnsolvableError("hcaptcha", h.browser.URL(), "checkbox never verified")
	})
}

// solveText reads the challenge from a page screenshot and types the answer
// into the input the model located.
func (h *Handler) solveText(ctx context.Context) error {
	shot, err := h.browser.Screenshot(ctx)
	if err != nil {
		return err
	}

	reading, err := h.model.ReadTextCaptcha(ctx, base64.StdEncoding.EncodeToString(shot))
	if err != nil {
		return err
	}
	if !reading.Found || reading.Answer == "" {
		return types.NewCaptchaUnsolvableError("text", h.browser.URL(), "model could not read the challenge")
	}

	matcher := reading.Placeholder
	if matcher == "" {
		matcher = "captcha"
	}
	return h.browser.Type(ctx, matcher, reading.Answer, true)
}

// frameBySrc returns the first iframe whose src contains pattern, as a page.
func frameBySrc(page *rod.Page, pattern string) (*rod.Page, error) {
	iframes, err := page.Timeout(frameTimeout).Elements("iframe")
	if err != nil {
		return nil, fmt.Errorf("list iframes: %w", err)
	}
	for _, el := range iframes {
		src, err := el.Attribute("src")
		if err != nil || src == nil {
			continue
		}
		if strings.Contains(*src, pattern) {
			frame, err := el.Frame()
			if err != nil {
				return nil, fmt.Errorf("enter frame: %w", err)
			}
			return frame, nil
		}
	}
	return nil, fmt.Errorf("no iframe matching %q", pattern)
}

func clickFrameElement(ctx context.Context, frame *rod.Page, selector string) error {
	el, err := frame.Context(ctx).Timeout(frameTimeout).Element(selector)
	if err != nil {
		return fmt.Errorf("find %s: %w", selector, err)
	}
	return el.Click(proto.InputMouseButtonLeft, 1)
}

func recaptchaChecked(anchor *rod.Page) bool {
	res, err := anchor.Eval(`() => {
		const cb = document.querySelector('#recaptcha-anchor');
		return cb ? cb.getAttribute('aria-checked') === 'true' : false;
	}`)
	return err == nil && res.Value.Bool()
}

func hcaptchaChecked(frame *rod.Page) bool {
	res, err := frame.Eval(`() => {
		const cb = document.querySelector('#checkbox');
		if (!cb) return false;
		return cb.getAttribute('aria-checked') === 'true' || cb.classList.contains('checked');
	}`)
	return err == nil && res.Value.Bool()
}

func challengeInstruction(challenge *rod.Page) (string, error) {
	res, err := challenge.Eval(`() => {
		const desc = document.querySelector('.rc-imageselect-desc-wrapper, .rc-imageselect-desc, .rc-imageselect-instructions');
		return desc ? desc.innerText.trim() : '';
	}`)
	if err != nil {
		return "", err
	}
	instruction := res.Value.Str()
	if instruction == "" {
		return "", fmt.Errorf("empty challenge instruction")
	}
	return instruction, nil
}

// captureTiles screenshots every challenge tile in document order.
func captureTiles(challenge *rod.Page) ([]string, rod.Elements, error) {
	elements, err := challenge.Timeout(frameTimeout).Elements(".rc-imageselect-tile")
	if err != nil || len(elements) == 0 {
		return nil, nil, types.NewCaptchaUnsolvableError("recaptcha", "", "no challenge tiles found")
	}

	tiles := make([]string, 0, len(elements))
	for _, el := range elements {
		shot, err := el.Screenshot(proto.PageCaptureScreenshotFormatJpeg, tileQuality)
		if err != nil {
			return nil, nil, fmt.Errorf("screenshot tile: %w", err)
		}
		tiles = append(tiles, base64.StdEncoding.EncodeToString(shot))
	}
	return tiles, elements, nil
}

// isContinuousTask reports whether the instruction asks for selections until
// no matching tiles remain, which requires re-selecting as tiles are
// replaced.
func isContinuousTask(instruction string) bool {
	lower := strings.ToLower(instruction)
	return strings.Contains(lower, "none left") ||
		strings.Contains(lower, "until there are none") ||
		strings.Contains(lower, "click verify once there are none")
}
