package captcha

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/ysmood/gson"
)

// pageAccess is the slice of browser capability detection needs.
type pageAccess interface {
	Eval(ctx context.Context, script string, args ...interface{}) (gson.JSON, error)
	URL() string
}

// Detection is the outcome of a CAPTCHA probe. Selector is the pattern that
// matched, empty when Kind is KindNone.
type Detection struct {
	Kind     Kind
	Selector string
}

// Detector probes a page for visible CAPTCHA challenges, trying the kind the
// host served last time first.
type Detector struct {
	manager *Manager
	hints   *hintCache
}

// NewDetector builds a Detector over the given selector manager.
func NewDetector(m *Manager) *Detector {
	return &Detector{manager: m, hints: sharedHints()}
}

// Detect probes for each CAPTCHA kind in turn and returns the first visible
// match. A host's previously detected kind is probed first.
func (d *Detector) Detect(ctx context.Context, page pageAccess) (Detection, error) {
	sel := d.manager.Get()
	pageURL := page.URL()

	probes := []struct {
		kind      Kind
		selectors []string
		excludes  []string
	}{
		{KindRecaptcha, sel.Recaptcha, sel.RecaptchaExclude},
		{KindHcaptcha, sel.Hcaptcha, nil},
		{KindText, sel.Text, nil},
	}

	if hintKind, _, ok := d.hints.get(pageURL); ok {
		for i, p := range probes {
			if p.kind == hintKind && i > 0 {
				probes[0], probes[i] = probes[i], probes[0]
				break
			}
		}
	}

	for _, p := range probes {
		matched, err := d.probe(ctx, page, p.selectors, p.excludes)
		if err != nil {
			return Detection{}, fmt.Errorf("probe %s: %w", p.kind, err)
		}
		if matched != "" {
			log.Debug().
				Str("kind", string(p.kind)).
				Str("selector", matched).
				Str("url", pageURL).
				Msg("CAPTCHA detected")
			d.hints.put(pageURL, p.kind, matched)
			return Detection{Kind: p.kind, Selector: matched}, nil
		}
	}

	return Detection{Kind: KindNone}, nil
}

func (d *Detector) probe(ctx context.Context, page pageAccess, selectors, excludes []string) (string, error) {
	if len(selectors) == 0 {
		return "", nil
	}
	res, err := page.Eval(ctx, detectScript, selectors, excludes)
	if err != nil {
		return "", err
	}
	return res.Str(), nil
}

// detectScript returns the first selector with a visible match, skipping
// elements that also match an exclude pattern. Invalid selectors are
// ignored so a bad external override cannot break detection.
const detectScript = `(selectors, excludes) => {
	const visible = (el) => {
		const rect = el.getBoundingClientRect();
		if (rect.width <= 0 || rect.height <= 0) return false;
		const cs = window.getComputedStyle(el);
		return cs.display !== 'none' && cs.visibility !== 'hidden';
	};

	const excluded = new Set();
	for (const sel of (excludes || [])) {
		try {
			document.querySelectorAll(sel).forEach(el => excluded.add(el));
		} catch (e) {}
	}

	for (const sel of selectors) {
		let els;
		try {
			els = document.querySelectorAll(sel);
		} catch (e) {
			continue;
		}
		for (const el of els) {
			if (excluded.has(el)) continue;
			if (visible(el)) return sel;
		}
	}
	return '';
}`
