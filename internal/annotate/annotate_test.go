package annotate

import (
	"strings"
	"testing"
)

func TestParseInventory(t *testing.T) {
	data := []byte(`[
		{"index":1,"tag":"a","text":"Sign in","ariaLabel":"","placeholder":"","label":0},
		{"index":2,"tag":"button","text":"","ariaLabel":"","placeholder":"","label":1}
	]`)

	elements, err := ParseInventory(data)
	if err != nil {
		t.Fatal(err)
	}

	if len(elements) != 2 {
		t.Fatalf("expected 2 elements, got %d", len(elements))
	}
	if elements[0].Text != "Sign in" || elements[0].Label != 0 {
		t.Errorf("unexpected first element: %+v", elements[0])
	}
	if elements[1].Label != 1 {
		t.Errorf("element without text should carry badge 1, got %+v", elements[1])
	}
}

func TestParseInventoryEmpty(t *testing.T) {
	elements, err := ParseInventory([]byte(`[]`))
	if err != nil {
		t.Fatal(err)
	}
	if len(elements) != 0 {
		t.Errorf("expected empty inventory, got %d", len(elements))
	}
}

func TestParseInventoryInvalid(t *testing.T) {
	if _, err := ParseInventory([]byte(`not json`)); err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestAnnotateScriptClearsFirst(t *testing.T) {
	// Idempotence depends on the annotate script removing old overlay state
	// before applying new annotations.
	clearFragment := "document.querySelectorAll('." + badgeClass + "').forEach(b => b.remove())"
	if !strings.Contains(annotateScript, clearFragment) {
		t.Error("annotate script must remove previous badges before annotating")
	}
	if !strings.Contains(annotateScript, "classList.remove") {
		t.Error("annotate script must strip previous highlight classes")
	}
}

func TestScriptsShareMarkers(t *testing.T) {
	for _, marker := range []string{styleID, HighlightClass, badgeClass, LabelAttr} {
		if !strings.Contains(annotateScript, marker) {
			t.Errorf("annotate script missing marker %q", marker)
		}
		if !strings.Contains(clearScript, marker) {
			t.Errorf("clear script missing marker %q", marker)
		}
	}
}

func TestBadgeOffset(t *testing.T) {
	// Badges sit 25px above their element.
	if !strings.Contains(annotateScript, "window.scrollY - 25") {
		t.Error("badge should be positioned 25px above the element")
	}
}
