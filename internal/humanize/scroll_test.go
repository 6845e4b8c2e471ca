package humanize

import "testing"

func TestDefaultScrollConfig(t *testing.T) {
	config := DefaultScrollConfig()

	if config.MinScrollSteps <= 0 {
		t.Error("MinScrollSteps should be positive")
	}
	if config.MaxScrollSteps < config.MinScrollSteps {
		t.Error("MaxScrollSteps should be >= MinScrollSteps")
	}
	if config.MinStepDelayMs <= 0 {
		t.Error("MinStepDelayMs should be positive")
	}
	if config.MaxStepDelayMs < config.MinStepDelayMs {
		t.Error("MaxStepDelayMs should be >= MinStepDelayMs")
	}
	if config.ScrollMargin < 0 {
		t.Error("ScrollMargin should be non-negative")
	}
	if config.PostScrollDelayMinMs <= 0 {
		t.Error("PostScrollDelayMinMs should be positive")
	}
	if config.PostScrollDelayMaxMs < config.PostScrollDelayMinMs {
		t.Error("PostScrollDelayMaxMs should be >= PostScrollDelayMinMs")
	}
}

func TestEaseOutCubic(t *testing.T) {
	if got := easeOutCubic(0); !floatsClose(got, 0, 0.001) {
		t.Errorf("easeOutCubic(0) = %v, want 0", got)
	}
	if got := easeOutCubic(1); !floatsClose(got, 1, 0.001) {
		t.Errorf("easeOutCubic(1) = %v, want 1", got)
	}

	// Deceleration easing crosses the midpoint early
	if got := easeOutCubic(0.5); got <= 0.5 {
		t.Errorf("easeOutCubic(0.5) = %v, want > 0.5", got)
	}

	prev := 0.0
	for i := 0; i <= 100; i++ {
		tVal := float64(i) / 100.0
		result := easeOutCubic(tVal)
		if result < prev {
			t.Errorf("easeOutCubic is not monotonic at %v", tVal)
		}
		prev = result
	}
}
