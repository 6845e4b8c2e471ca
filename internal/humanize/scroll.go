package humanize

import (
	"context"
	"math"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog/log"
)

// ScrollConfig contains configuration for humanized scroll behavior.
type ScrollConfig struct {
	// MinScrollSteps and MaxScrollSteps bound the number of increments.
	MinScrollSteps int
	MaxScrollSteps int
	// MinStepDelayMs and MaxStepDelayMs bound the delay between increments.
	MinStepDelayMs int
	MaxStepDelayMs int
	// ScrollMargin is the margin kept when scrolling an element into view.
	ScrollMargin float64
	// PostScrollDelayMinMs and PostScrollDelayMaxMs bound the settle delay.
	PostScrollDelayMinMs int
	PostScrollDelayMaxMs int
}

// DefaultScrollConfig returns sensible defaults for human-like scrolling.
func DefaultScrollConfig() ScrollConfig {
	return ScrollConfig{
		MinScrollSteps:       8,
		MaxScrollSteps:       20,
		MinStepDelayMs:       20,
		MaxStepDelayMs:       60,
		ScrollMargin:         100,
		PostScrollDelayMinMs: 100,
		PostScrollDelayMaxMs: 300,
	}
}

// Scroller provides humanized scroll interactions for a browser page.
type Scroller struct {
	page   *rod.Page
	config ScrollConfig
}

// NewScroller creates a new humanized scroller for the given page.
func NewScroller(page *rod.Page) *Scroller {
	return &Scroller{page: page, config: DefaultScrollConfig()}
}

// ScrollBy scrolls the page by the specified delta with smooth animation.
// Negative deltas scroll up.
func (s *Scroller) ScrollBy(ctx context.Context, deltaY float64) error {
	layoutMetrics, err := proto.PageGetLayoutMetrics{}.Call(s.page)
	if err != nil {
		return err
	}

	currentScrollY := layoutMetrics.VisualViewport.PageY
	targetScrollY := currentScrollY + deltaY

	maxScrollY := layoutMetrics.ContentSize.Height - layoutMetrics.VisualViewport.ClientHeight
	if targetScrollY < 0 {
		targetScrollY = 0
	}
	if targetScrollY > maxScrollY {
		targetScrollY = maxScrollY
	}

	return s.smoothScrollTo(ctx, currentScrollY, targetScrollY)
}

// ScrollToElement smoothly scrolls to bring an element into view.
func (s *Scroller) ScrollToElement(ctx context.Context, element *rod.Element) error {
	shape, err := element.Shape()
	if err != nil {
		return err
	}
	if shape == nil || len(shape.Quads) == 0 {
		return ErrElementNotVisible
	}

	layoutMetrics, err := proto.PageGetLayoutMetrics{}.Call(s.page)
	if err != nil {
		return err
	}

	quad := shape.Quads[0]
	elementCenterY := (quad[1] + quad[3] + quad[5] + quad[7]) / 4

	currentScrollY := layoutMetrics.VisualViewport.PageY
	viewportHeight := layoutMetrics.VisualViewport.ClientHeight

	// Already in view (with margin)?
	if elementCenterY >= currentScrollY+s.config.ScrollMargin &&
		elementCenterY <= currentScrollY+viewportHeight-s.config.ScrollMargin {
		return nil
	}

	targetScrollY := elementCenterY - viewportHeight/2
	maxScrollY := layoutMetrics.ContentSize.Height - viewportHeight
	if targetScrollY < 0 {
		targetScrollY = 0
	}
	if targetScrollY > maxScrollY {
		targetScrollY = maxScrollY
	}

	return s.smoothScrollTo(ctx, currentScrollY, targetScrollY)
}

// ViewportHeight returns the visual viewport height in pixels.
func (s *Scroller) ViewportHeight() (float64, error) {
	layoutMetrics, err := proto.PageGetLayoutMetrics{}.Call(s.page)
	if err != nil {
		return 0, err
	}
	return layoutMetrics.VisualViewport.ClientHeight, nil
}

// smoothScrollTo performs a smooth scroll animation from current to target Y.
func (s *Scroller) smoothScrollTo(ctx context.Context, fromY, toY float64) error {
	distance := math.Abs(toY - fromY)
	if distance < 1 {
		return nil
	}

	// Number of steps scales with distance
	numSteps := s.config.MinScrollSteps + int(distance/100)
	if numSteps > s.config.MaxScrollSteps {
		numSteps = s.config.MaxScrollSteps
	}

	for i := 1; i <= numSteps; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		t := float64(i) / float64(numSteps)
		easedT := easeOutCubic(t)
		currentY := fromY + (toY-fromY)*easedT

		_, err := s.page.Eval(`y => window.scrollTo({top: y, behavior: 'instant'})`, currentY)
		if err != nil {
			log.Debug().Err(err).Msg("Scroll step failed")
		}

		stepDelay := RandomDuration(s.config.MinStepDelayMs, s.config.MaxStepDelayMs)
		if !sleepWithContext(ctx, stepDelay) {
			return ctx.Err()
		}
	}

	postDelay := RandomDuration(s.config.PostScrollDelayMinMs, s.config.PostScrollDelayMaxMs)
	if !sleepWithContext(ctx, postDelay) {
		return ctx.Err()
	}

	return nil
}

// easeOutCubic provides deceleration easing for natural scroll ending.
func easeOutCubic(t float64) float64 {
	return 1 - math.Pow(1-t, 3)
}
