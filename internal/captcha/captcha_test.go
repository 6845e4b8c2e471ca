package captcha

import (
	"strings"
	"testing"
	"time"
)

func TestHostKey(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want string
	}{
		{"full url", "https://www.example.com/login?next=/cart", "www.example.com"},
		{"case folded", "https://EXAMPLE.com/", "example.com"},
		{"port stripped", "http://localhost:8080/x", "localhost"},
		{"unparseable", "://nope", "://nope"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := hostKey(tt.url); got != tt.want {
				t.Errorf("hostKey(%q) = %q, want %q", tt.url, got, tt.want)
			}
		})
	}
}

func TestHintCacheRoundTrip(t *testing.T) {
	c := &hintCache{entries: make(map[string]hint)}

	c.put("https://shop.example.com/checkout", KindRecaptcha, ".g-recaptcha")

	kind, selector, ok := c.get("https://shop.example.com/other-page")
	if !ok {
		t.Fatal("hint should apply host-wide")
	}
	if kind != KindRecaptcha || selector != ".g-recaptcha" {
		t.Errorf("unexpected hint %q %q", kind, selector)
	}

	if _, _, ok := c.get("https://elsewhere.example.org/"); ok {
		t.Error("hint must not leak to other hosts")
	}
}

func TestHintCacheExpiry(t *testing.T) {
	c := &hintCache{entries: make(map[string]hint)}
	c.entries["stale.example.com"] = hint{
		kind:    KindText,
		expires: time.Now().Add(-time.Minute),
	}

	if _, _, ok := c.get("https://stale.example.com/"); ok {
		t.Error("expired hint must not be served")
	}
	if _, still := c.entries["stale.example.com"]; still {
		t.Error("expired hint must be evicted on access")
	}
}

func TestIsContinuousTask(t *testing.T) {
	tests := []struct {
		instruction string
		want        bool
	}{
		{"Select all images with traffic lights. Click verify once there are none left.", true},
		{"Select all squares with buses until there are none remaining", true},
		{"Select all images with crosswalks", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := isContinuousTask(tt.instruction); got != tt.want {
			t.Errorf("isContinuousTask(%q) = %v, want %v", tt.instruction, got, tt.want)
		}
	}
}

func TestDetectScriptIgnoresBadSelectors(t *testing.T) {
	// An invalid selector from an external override must not abort the probe.
	if !strings.Contains(detectScript, "catch (e)") {
		t.Error("detection script must tolerate invalid selectors")
	}
	if !strings.Contains(detectScript, "excluded.has(el)") {
		t.Error("detection script must skip excluded elements")
	}
}
