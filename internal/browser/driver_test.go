package browser

import (
	"strings"
	"testing"
)

func TestResolveClickScriptCoversIdentifierFields(t *testing.T) {
	// Click resolution matches across the full set of textual fields.
	for _, field := range []string{"value", "aria-label", "title", "placeholder", "textContent"} {
		if !strings.Contains(resolveClickScript, field) {
			t.Errorf("click resolution script missing field %q", field)
		}
	}
}

func TestResolveClickScriptFallsBackToLabels(t *testing.T) {
	// Purely numeric identifiers resolve through the badge label attribute.
	if !strings.Contains(resolveClickScript, `^[0-9]+$`) {
		t.Error("click resolution script missing numeric identifier check")
	}
	if !strings.Contains(resolveClickScript, "data-wp-label") {
		t.Error("click resolution script missing badge label fallback")
	}
}

func TestResolveFieldScriptMatchers(t *testing.T) {
	for _, field := range []string{"placeholder", "aria-label", "name", "labels"} {
		if !strings.Contains(resolveFieldScript, field) {
			t.Errorf("field resolution script missing matcher %q", field)
		}
	}
}

func TestSearchSelectorsPrioritized(t *testing.T) {
	// The generic text-input fallback must come after the dedicated search
	// selectors.
	searchIdx := strings.Index(markSearchInputScript, `input[type="search"]`)
	textIdx := strings.Index(markSearchInputScript, `input[type="text"]`)
	if searchIdx == -1 || textIdx == -1 {
		t.Fatal("search script missing expected selectors")
	}
	if searchIdx > textIdx {
		t.Error("dedicated search selectors should be tried before generic text inputs")
	}
}

func TestScriptsClearPreviousMarker(t *testing.T) {
	for name, script := range map[string]string{
		"click":  resolveClickScript,
		"field":  resolveFieldScript,
		"search": markSearchInputScript,
	} {
		if !strings.Contains(script, "removeAttribute('"+targetAttr+"')") {
			t.Errorf("%s script must clear stale target markers", name)
		}
	}
}

func TestNewLauncherFlags(t *testing.T) {
	l := newLauncher(Options{Headless: true})

	if v := l.Get("disable-blink-features"); v != "AutomationControlled" {
		t.Errorf("expected AutomationControlled blink feature disabled, got %q", v)
	}
	if v := l.Get("headless"); v != "new" {
		t.Errorf("expected new headless mode, got %q", v)
	}
	if _, has := l.GetFlags("no-sandbox"); !has {
		t.Error("expected no-sandbox for container use")
	}
}
