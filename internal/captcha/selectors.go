// Package captcha detects and solves the CAPTCHA variants an agent run can
// hit: reCAPTCHA image grids, hCaptcha checkboxes, and plain text challenges.
package captcha

import (
	"embed"
	"sync"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

//go:embed selectors.yaml
var defaultSelectorsFS embed.FS

// Selectors holds the detection patterns for every supported CAPTCHA kind.
type Selectors struct {
	Recaptcha        []string `yaml:"recaptcha"`
	RecaptchaExclude []string `yaml:"recaptcha_exclude"`
	Hcaptcha         []string `yaml:"hcaptcha"`
	Text             []string `yaml:"text"`

	RecaptchaAnchorFrame    string `yaml:"recaptcha_anchor_frame"`
	RecaptchaChallengeFrame string `yaml:"recaptcha_challenge_frame"`
	HcaptchaFrame           string `yaml:"hcaptcha_frame"`
}

var (
	instance *Selectors
	once     sync.Once
	loadErr  error
)

// EmbeddedSelectors returns the compiled-in selector set.
func EmbeddedSelectors() *Selectors {
	once.Do(func() {
		instance, loadErr = loadEmbedded()
		if loadErr != nil {
			log.Error().Err(loadErr).Msg("Failed to load embedded CAPTCHA selectors, using fallback")
			instance = fallbackSelectors()
		}
	})
	return instance
}

func loadEmbedded() (*Selectors, error) {
	data, err := defaultSelectorsFS.ReadFile("selectors.yaml")
	if err != nil {
		return nil, err
	}

	var s Selectors
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, err
	}

	log.Debug().
		Int("recaptcha_patterns", len(s.Recaptcha)).
		Int("hcaptcha_patterns", len(s.Hcaptcha)).
		Int("text_patterns", len(s.Text)).
		Msg("CAPTCHA selectors loaded")

	return &s, nil
}

// fallbackSelectors is the last resort when the embedded file is unreadable.
func fallbackSelectors() *Selectors {
	return &Selectors{
		Recaptcha: []string{
			`iframe[src*="recaptcha/api2/anchor"]`,
			`.g-recaptcha`,
		},
		RecaptchaExclude: []string{
			`iframe[src*="recaptcha/api2/aframe"]`,
		},
		Hcaptcha: []string{
			`iframe[src*="hcaptcha.com"]`,
			`.h-captcha`,
		},
		Text: []string{
			`#captchacharacters`,
			`input[name*="captcha"]`,
		},
		RecaptchaAnchorFrame:    "recaptcha/api2/anchor",
		RecaptchaChallengeFrame: "recaptcha/api2/bframe",
		HcaptchaFrame:           "hcaptcha.com",
	}
}

// Validate checks that the selector set can detect at least one kind.
func (s *Selectors) Validate() error {
	if len(s.Recaptcha) == 0 && len(s.Hcaptcha) == 0 && len(s.Text) == 0 {
		return errEmptySelectors
	}
	return nil
}
