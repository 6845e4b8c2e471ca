package captcha

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeSelectorsFile(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "selectors.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestEmbeddedSelectorsComplete(t *testing.T) {
	s := EmbeddedSelectors()

	if len(s.Recaptcha) == 0 || len(s.Hcaptcha) == 0 || len(s.Text) == 0 {
		t.Error("embedded selectors must cover every CAPTCHA kind")
	}
	if len(s.RecaptchaExclude) == 0 {
		t.Error("embedded selectors must exclude non-challenge reCAPTCHA variants")
	}
	if s.RecaptchaAnchorFrame == "" || s.RecaptchaChallengeFrame == "" || s.HcaptchaFrame == "" {
		t.Error("embedded selectors must define all frame patterns")
	}
	if err := s.Validate(); err != nil {
		t.Errorf("embedded selectors must validate: %v", err)
	}
}

func TestManagerEmbeddedOnly(t *testing.T) {
	m, err := NewManager("", false)
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()

	if m.Get() != EmbeddedSelectors() {
		t.Error("manager without external path must serve the embedded set")
	}
}

func TestManagerExternalOverride(t *testing.T) {
	path := writeSelectorsFile(t, t.TempDir(), `
recaptcha:
  - '.custom-recaptcha'
`)

	m, err := NewManager(path, false)
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()

	s := m.Get()
	if len(s.Recaptcha) != 1 || s.Recaptcha[0] != ".custom-recaptcha" {
		t.Errorf("external recaptcha patterns should win, got %v", s.Recaptcha)
	}
	if len(s.Hcaptcha) == 0 {
		t.Error("fields missing from the external file must fall back to embedded")
	}
	if s.RecaptchaAnchorFrame != EmbeddedSelectors().RecaptchaAnchorFrame {
		t.Error("frame patterns must fall back to embedded when not overridden")
	}
}

func TestManagerMissingExternalFallsBack(t *testing.T) {
	m, err := NewManager(filepath.Join(t.TempDir(), "absent.yaml"), false)
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()

	if m.Get() != EmbeddedSelectors() {
		t.Error("unreadable external file must leave the embedded set active")
	}
}

func TestManagerReloadKeepsPreviousOnBadFile(t *testing.T) {
	dir := t.TempDir()
	path := writeSelectorsFile(t, dir, `
recaptcha:
  - '.first'
`)

	m, err := NewManager(path, false)
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()

	if err := os.WriteFile(path, []byte("{{not yaml"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := m.Reload(); err == nil {
		t.Fatal("expected reload error for invalid YAML")
	}

	if s := m.Get(); len(s.Recaptcha) != 1 || s.Recaptcha[0] != ".first" {
		t.Errorf("failed reload must keep the previous set, got %v", s.Recaptcha)
	}
	if m.Stats().LastError == nil {
		t.Error("stats must record the reload error")
	}
}

func TestManagerReloadRejectsEmptySet(t *testing.T) {
	path := writeSelectorsFile(t, t.TempDir(), `
recaptcha:
  - '.ok'
`)

	m, err := NewManager(path, false)
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()

	if err := os.WriteFile(path, []byte("recaptcha: []\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := m.Reload(); err == nil {
		t.Error("a selector file with no patterns must be rejected")
	}
}

func TestManagerHotReload(t *testing.T) {
	dir := t.TempDir()
	path := writeSelectorsFile(t, dir, `
recaptcha:
  - '.before'
`)

	m, err := NewManager(path, true)
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()

	if err := os.WriteFile(path, []byte("recaptcha:\n  - '.after'\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if s := m.Get(); len(s.Recaptcha) == 1 && s.Recaptcha[0] == ".after" {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Errorf("hot-reload did not pick up the new patterns, have %v", m.Get().Recaptcha)
}

func TestManagerCloseIdempotent(t *testing.T) {
	m, err := NewManager("", false)
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Close(); err != nil {
		t.Fatal(err)
	}
	if err := m.Close(); err != nil {
		t.Errorf("second Close must be a no-op, got %v", err)
	}
}
