package humanize

import (
	"testing"
)

func TestGenerateBezierPath(t *testing.T) {
	tests := []struct {
		name      string
		start     Point
		end       Point
		numPoints int
	}{
		{"horizontal line", Point{X: 0, Y: 0}, Point{X: 100, Y: 0}, 10},
		{"vertical line", Point{X: 0, Y: 0}, Point{X: 0, Y: 100}, 10},
		{"diagonal line", Point{X: 0, Y: 0}, Point{X: 100, Y: 100}, 20},
		{"same point", Point{X: 50, Y: 50}, Point{X: 50, Y: 50}, 5},
		{"minimum points", Point{X: 0, Y: 0}, Point{X: 100, Y: 100}, 2},
		{"many points", Point{X: 0, Y: 0}, Point{X: 500, Y: 500}, 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := generateBezierPath(tt.start, tt.end, tt.numPoints)

			if len(path) != tt.numPoints {
				t.Errorf("generateBezierPath() returned %d points, want %d", len(path), tt.numPoints)
			}

			// The curve must anchor at the requested endpoints
			if len(path) > 0 {
				if !pointsClose(path[0], tt.start, 0.01) {
					t.Errorf("First point %v not close to start %v", path[0], tt.start)
				}
				last := path[len(path)-1]
				if !pointsClose(last, tt.end, 0.01) {
					t.Errorf("Last point %v not close to end %v", last, tt.end)
				}
			}
		})
	}
}

func TestGenerateBezierPathMinPoints(t *testing.T) {
	for _, n := range []int{1, 0, -3} {
		path := generateBezierPath(Point{0, 0}, Point{100, 100}, n)
		if len(path) < 2 {
			t.Errorf("generateBezierPath(n=%d) should return at least 2 points, got %d", n, len(path))
		}
	}
}

func TestEaseInOutCubic(t *testing.T) {
	tests := []struct {
		name string
		t    float64
		want float64
	}{
		{"start", 0.0, 0.0},
		{"end", 1.0, 1.0},
		{"middle", 0.5, 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := easeInOutCubic(tt.t)
			if !floatsClose(got, tt.want, 0.001) {
				t.Errorf("easeInOutCubic(%v) = %v, want %v", tt.t, got, tt.want)
			}
		})
	}

	// Easing must be monotonic
	prev := 0.0
	for i := 0; i <= 100; i++ {
		tVal := float64(i) / 100.0
		result := easeInOutCubic(tVal)
		if result < prev {
			t.Errorf("easeInOutCubic is not monotonic: f(%v) = %v < %v", tVal, result, prev)
		}
		prev = result
	}
}

func pointsClose(a, b Point, tolerance float64) bool {
	return floatsClose(a.X, b.X, tolerance) && floatsClose(a.Y, b.Y, tolerance)
}

func floatsClose(a, b, tolerance float64) bool {
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	return diff <= tolerance
}
