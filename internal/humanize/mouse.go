package humanize

import (
	"context"
	"math"
	"math/rand"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// Point represents a 2D coordinate.
type Point struct {
	X, Y float64
}

// MouseConfig contains configuration for humanized mouse behavior.
type MouseConfig struct {
	// MinSteps and MaxSteps bound the number of points in a movement path.
	MinSteps int
	MaxSteps int
	// MinStepDelayMs and MaxStepDelayMs bound the delay between path points.
	MinStepDelayMs int
	MaxStepDelayMs int
	// ClickOffsetRadius is the maximum random offset from center when clicking.
	ClickOffsetRadius float64
	// PreClickHoverMinMs and PreClickHoverMaxMs bound the hover pause before a click.
	PreClickHoverMinMs int
	PreClickHoverMaxMs int
	// PostClickDwellMinMs and PostClickDwellMaxMs bound the dwell after a click.
	PostClickDwellMinMs int
	PostClickDwellMaxMs int
}

// DefaultMouseConfig returns sensible defaults for human-like mouse behavior.
func DefaultMouseConfig() MouseConfig {
	return MouseConfig{
		MinSteps:            15,
		MaxSteps:            30,
		MinStepDelayMs:      3,
		MaxStepDelayMs:      12,
		ClickOffsetRadius:   5.0,
		PreClickHoverMinMs:  50,
		PreClickHoverMaxMs:  200,
		PostClickDwellMinMs: 80,
		PostClickDwellMaxMs: 250,
	}
}

// Mouse provides humanized mouse interactions for a browser page.
type Mouse struct {
	page   *rod.Page
	config MouseConfig
}

// NewMouse creates a new humanized mouse controller for the given page.
func NewMouse(page *rod.Page) *Mouse {
	return &Mouse{page: page, config: DefaultMouseConfig()}
}

// MoveTo moves the mouse to the target coordinates along a bezier curve with
// natural acceleration and deceleration.
func (m *Mouse) MoveTo(ctx context.Context, x, y float64) error {
	currentPos := m.page.Mouse.Position()
	start := Point{X: currentPos.X, Y: currentPos.Y}
	end := Point{X: x, Y: y}

	numSteps := m.config.MinSteps + rand.Intn(m.config.MaxSteps-m.config.MinSteps+1)
	path := generateBezierPath(start, end, numSteps)

	for _, p := range path {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := m.page.Mouse.MoveTo(proto.NewPoint(p.X, p.Y)); err != nil {
			return err
		}

		delay := RandomDuration(m.config.MinStepDelayMs, m.config.MaxStepDelayMs)
		if !sleepWithContext(ctx, delay) {
			return ctx.Err()
		}
	}

	return nil
}

// Click performs a humanized click at the target coordinates: movement to
// target, pre-click hover, click, post-click dwell.
func (m *Mouse) Click(ctx context.Context, x, y float64) error {
	// Random offset within the click radius for natural variation
	offsetX := (rand.Float64()*2 - 1) * m.config.ClickOffsetRadius
	offsetY := (rand.Float64()*2 - 1) * m.config.ClickOffsetRadius

	if err := m.MoveTo(ctx, x+offsetX, y+offsetY); err != nil {
		return err
	}

	hoverDelay := RandomDuration(m.config.PreClickHoverMinMs, m.config.PreClickHoverMaxMs)
	if !sleepWithContext(ctx, hoverDelay) {
		return ctx.Err()
	}

	if err := m.page.Mouse.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return err
	}

	dwellDelay := RandomDuration(m.config.PostClickDwellMinMs, m.config.PostClickDwellMaxMs)
	if !sleepWithContext(ctx, dwellDelay) {
		return ctx.Err()
	}

	return nil
}

// ClickElement performs a humanized click on the center of a DOM element.
func (m *Mouse) ClickElement(ctx context.Context, element *rod.Element) error {
	shape, err := element.Shape()
	if err != nil {
		return err
	}
	if shape == nil || len(shape.Quads) == 0 {
		return ErrElementNotVisible
	}

	quad := shape.Quads[0]
	centerX := (quad[0] + quad[2] + quad[4] + quad[6]) / 4
	centerY := (quad[1] + quad[3] + quad[5] + quad[7]) / 4

	return m.Click(ctx, centerX, centerY)
}

// generateBezierPath generates a cubic bezier path between two points with
// randomized control points for natural-looking movement.
func generateBezierPath(start, end Point, numPoints int) []Point {
	if numPoints < 2 {
		numPoints = 2
	}

	dx := end.X - start.X
	dy := end.Y - start.Y
	distance := math.Sqrt(dx*dx + dy*dy)

	ctrl1Offset := distance * (0.2 + rand.Float64()*0.3)
	ctrl2Offset := distance * (0.2 + rand.Float64()*0.3)

	perpDir1 := 1.0
	if rand.Float64() < 0.5 {
		perpDir1 = -1.0
	}
	perpDir2 := 1.0
	if rand.Float64() < 0.5 {
		perpDir2 = -1.0
	}

	perpX := -dy / distance
	perpY := dx / distance
	if distance == 0 {
		perpX, perpY = 0, 0
	}

	ctrl1 := Point{
		X: start.X + dx*0.33 + perpX*ctrl1Offset*perpDir1,
		Y: start.Y + dy*0.33 + perpY*ctrl1Offset*perpDir1,
	}
	ctrl2 := Point{
		X: start.X + dx*0.67 + perpX*ctrl2Offset*perpDir2,
		Y: start.Y + dy*0.67 + perpY*ctrl2Offset*perpDir2,
	}

	points := make([]Point, numPoints)
	for i := 0; i < numPoints; i++ {
		t := float64(i) / float64(numPoints-1)
		t = easeInOutCubic(t)

		mt := 1 - t
		mt2 := mt * mt
		mt3 := mt2 * mt
		t2 := t * t
		t3 := t2 * t

		points[i] = Point{
			X: mt3*start.X + 3*mt2*t*ctrl1.X + 3*mt*t2*ctrl2.X + t3*end.X,
			Y: mt3*start.Y + 3*mt2*t*ctrl1.Y + 3*mt*t2*ctrl2.Y + t3*end.Y,
		}
	}

	return points
}

// easeInOutCubic starts slow, speeds up, then slows down.
func easeInOutCubic(t float64) float64 {
	if t < 0.5 {
		return 4 * t * t * t
	}
	return 1 - math.Pow(-2*t+2, 3)/2
}
