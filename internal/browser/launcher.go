// Package browser owns the live Chrome instance behind each session and
// exposes the typed page operations the agent drives.
package browser

import (
	"fmt"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/rs/zerolog/log"
)

// Options configures a browser launch.
type Options struct {
	Headless    bool
	BrowserPath string
	UserAgent   string
}

// newLauncher builds a launcher with anti-detection flags.
func newLauncher(opts Options) *launcher.Launcher {
	l := launcher.New()

	if opts.BrowserPath != "" {
		l = l.Bin(opts.BrowserPath)
	}

	if opts.Headless {
		// "new" headless mode is much harder to fingerprint than the old one
		l = l.Set("headless", "new")
	} else {
		l = l.Headless(false)
	}

	// Required in containers
	l = l.Set("no-sandbox").
		Set("disable-setuid-sandbox").
		Set("disable-dev-shm-usage")

	// Hide the automation fingerprint
	l = l.Set("disable-blink-features", "AutomationControlled")
	l = l.Set("disable-features", "IsolateOrigins,site-per-process,TranslateUI")

	// Software WebGL so fingerprinting sees a renderer
	l = l.Set("use-gl", "swiftshader").
		Set("use-angle", "swiftshader").
		Set("enable-unsafe-swiftshader").
		Set("enable-webgl").
		Set("enable-webgl2")

	l = l.Set("accept-lang", "en-US,en;q=0.9")
	l = l.Set("window-size", "1280,800")

	l = l.Set("no-first-run").
		Set("no-default-browser-check").
		Set("disable-infobars").
		Set("disable-search-engine-choice-screen")

	// Keep background work quiet
	l = l.Set("disable-background-networking").
		Set("disable-default-apps").
		Set("disable-extensions").
		Set("disable-sync").
		Set("mute-audio").
		Set("safebrowsing-disable-auto-update")

	return l
}

// launch starts a Chrome process and connects to it.
func launch(opts Options) (*rod.Browser, *launcher.Launcher, error) {
	l := newLauncher(opts)

	controlURL, err := l.Launch()
	if err != nil {
		return nil, nil, fmt.Errorf("launch browser: %w", err)
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		l.Cleanup()
		return nil, nil, fmt.Errorf("connect to browser: %w", err)
	}

	log.Debug().
		Bool("headless", opts.Headless).
		Str("path", opts.BrowserPath).
		Msg("Browser launched")

	return b, l, nil
}
