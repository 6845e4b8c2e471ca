package browser

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/rs/zerolog/log"
	"github.com/ysmood/gson"

	"github.com/webpilot-ai/webpilot/internal/annotate"
	"github.com/webpilot-ai/webpilot/internal/humanize"
	"github.com/webpilot-ai/webpilot/internal/types"
	"github.com/webpilot-ai/webpilot/pkg/version"
)

const (
	navigateTimeout = 30 * time.Second
	quiesceTimeout  = 10 * time.Second
	actionTimeout   = 15 * time.Second

	viewportWidth  = 1280
	viewportHeight = 800
)

// targetAttr marks the element a JS resolution pass selected for the next
// native interaction.
const targetAttr = "data-wp-target"

// PageState is the observable page snapshot taken after each action: a clean
// viewport screenshot (overlay removed before capture, reapplied after) plus
// the fresh clickable inventory.
type PageState struct {
	Screenshot string // base64 JPEG
	URL        string
	Title      string
	Elements   []annotate.Element
}

// Driver owns one browser and one stealth page. All page access is
// serialized behind a single mutex shared with the screenshot pump.
type Driver struct {
	browser   *rod.Browser
	cleanup   func()
	page      *rod.Page
	mu        sync.Mutex
	timing    *humanize.Timing
	mouse     *humanize.Mouse
	scroller  *humanize.Scroller
	annotator *annotate.Annotator
}

// New launches a browser and opens a single stealth page for the session.
func New(opts Options) (*Driver, error) {
	if opts.UserAgent == "" {
		opts.UserAgent = version.UserAgent
	}

	b, l, err := launch(opts)
	if err != nil {
		return nil, err
	}

	page, err := stealth.Page(b)
	if err != nil {
		b.Close()
		l.Cleanup()
		return nil, fmt.Errorf("create stealth page: %w", err)
	}

	if err := (proto.NetworkSetUserAgentOverride{UserAgent: opts.UserAgent}).Call(page); err != nil {
		log.Warn().Err(err).Msg("Failed to override user agent")
	}
	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             viewportWidth,
		Height:            viewportHeight,
		DeviceScaleFactor: 1,
	}); err != nil {
		log.Warn().Err(err).Msg("Failed to set viewport")
	}

	return &Driver{
		browser:   b,
		cleanup:   l.Cleanup,
		page:      page,
		timing:    humanize.NewTiming(),
		mouse:     humanize.NewMouse(page),
		scroller:  humanize.NewScroller(page),
		annotator: annotate.New(page),
	}, nil
}

// Close shuts the page and browser down. Safe to call once.
func (d *Driver) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.page != nil {
		if err := d.page.Close(); err != nil {
			log.Debug().Err(err).Msg("Page close failed")
		}
		d.page = nil
	}
	if d.browser != nil {
		if err := d.browser.Close(); err != nil {
			log.Debug().Err(err).Msg("Browser close failed")
		}
		d.browser = nil
	}
	if d.cleanup != nil {
		d.cleanup()
		d.cleanup = nil
	}
}

// WithPage runs fn with the page while holding the driver lock. Used by the
// CAPTCHA handler for frame-level work that has no driver primitive.
func (d *Driver) WithPage(fn func(page *rod.Page) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.page == nil {
		return types.ErrBrowserClosed
	}
	return fn(d.page)
}

// Navigate loads an absolute URL and waits for the page to quiesce. The wait
// escalates: dom-content-loaded first, then a bounded network-idle grace.
func (d *Driver) Navigate(ctx context.Context, rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil || !u.IsAbs() {
		return fmt.Errorf("%w: %q is not an absolute URL", types.ErrNavigationFailed, rawURL)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.page == nil {
		return types.ErrBrowserClosed
	}

	navCtx, cancel := context.WithTimeout(ctx, navigateTimeout)
	defer cancel()

	page := d.page.Context(navCtx)
	if err := page.Navigate(rawURL); err != nil {
		return fmt.Errorf("%w: %s", types.ErrNavigationFailed, err)
	}

	d.quiesce(navCtx)
	humanize.SleepWithContext(ctx, humanize.HumanDelay("navigate"))
	return nil
}

// quiesce waits for the page to settle after an action. Failures are logged
// and tolerated: a partially loaded page is still observable.
func (d *Driver) quiesce(ctx context.Context) {
	loadCtx, cancel := context.WithTimeout(ctx, quiesceTimeout)
	defer cancel()

	page := d.page.Context(loadCtx)
	if err := page.WaitLoad(); err != nil {
		log.Debug().Err(err).Msg("WaitLoad failed, escalating to DOM-stable wait")
		if err := page.WaitDOMStable(500*time.Millisecond, 0); err != nil {
			log.Debug().Err(err).Msg("Page did not quiesce, continuing anyway")
		}
	}
}

// Click resolves an identifier against the highlighted inventory and clicks
// the match with humanized mouse movement. Resolution order: exact text,
// substring text, generic interactive elements, then numbered badge labels
// for purely numeric identifiers.
func (d *Driver) Click(ctx context.Context, identifier string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.page == nil {
		return types.ErrBrowserClosed
	}

	actCtx, cancel := context.WithTimeout(ctx, actionTimeout)
	defer cancel()
	page := d.page.Context(actCtx)

	res, err := page.Eval(resolveClickScript, identifier)
	if err != nil {
		return fmt.Errorf("resolve click target: %w", err)
	}
	if !res.Value.Bool() {
		return fmt.Errorf("%w: no clickable element matches %q", types.ErrElementNotFound, identifier)
	}

	el, err := page.Element("[" + targetAttr + "]")
	if err != nil {
		return fmt.Errorf("%w: %s", types.ErrElementNotFound, err)
	}

	if err := d.scroller.ScrollToElement(actCtx, el); err != nil {
		log.Debug().Err(err).Msg("Scroll to click target failed, clicking anyway")
	}
	humanize.SleepWithContext(actCtx, d.timing.PreActionDelay())

	if err := d.mouse.ClickElement(actCtx, el); err != nil {
		return fmt.Errorf("click %q: %w", identifier, err)
	}

	// Clear the marker; a navigation may already have destroyed it
	_, _ = d.page.Eval(`() => {
		const el = document.querySelector('[` + targetAttr + `]');
		if (el) el.removeAttribute('` + targetAttr + `');
	}`)

	d.quiesce(ctx)
	humanize.SleepWithContext(ctx, d.timing.PostActionDelay())
	return nil
}

// Type locates an input by placeholder, label, aria-label, name, or id
// (substring, case-insensitive), clears it, and types the text with
// humanized keystroke cadence. pressEnter submits afterwards.
func (d *Driver) Type(ctx context.Context, matcher, text string, pressEnter bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.page == nil {
		return types.ErrBrowserClosed
	}

	actCtx, cancel := context.WithTimeout(ctx, actionTimeout)
	defer cancel()
	page := d.page.Context(actCtx)

	res, err := page.Eval(resolveFieldScript, matcher)
	if err != nil {
		return fmt.Errorf("resolve input field: %w", err)
	}
	if !res.Value.Bool() {
		return fmt.Errorf("%w: no input field matches %q", types.ErrElementNotFound, matcher)
	}

	return d.typeIntoMarked(ctx, actCtx, matcher, text, pressEnter)
}

// Search finds a visible search input via a prioritized selector list, then
// types the query and submits it.
func (d *Driver) Search(ctx context.Context, query string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.page == nil {
		return types.ErrBrowserClosed
	}

	actCtx, cancel := context.WithTimeout(ctx, actionTimeout)
	defer cancel()

	res, err := d.page.Context(actCtx).Eval(markSearchInputScript)
	if err != nil {
		return fmt.Errorf("locate search input: %w", err)
	}
	if !res.Value.Bool() {
		return fmt.Errorf("%w: no visible search input on this page", types.ErrElementNotFound)
	}

	return d.typeIntoMarked(ctx, actCtx, "search input", query, true)
}

// typeIntoMarked types into the element carrying the target marker.
// Callers hold the driver lock and have already marked the element.
func (d *Driver) typeIntoMarked(ctx, actCtx context.Context, matcher, text string, pressEnter bool) error {
	page := d.page.Context(actCtx)

	el, err := page.Element("[" + targetAttr + "]")
	if err != nil {
		return fmt.Errorf("%w: %s", types.ErrElementNotFound, err)
	}
	defer func() {
		_, _ = d.page.Eval(`() => {
			const el = document.querySelector('[` + targetAttr + `]');
			if (el) el.removeAttribute('` + targetAttr + `');
		}`)
	}()

	if err := d.scroller.ScrollToElement(actCtx, el); err != nil {
		log.Debug().Err(err).Msg("Scroll to input failed, typing anyway")
	}
	if err := d.mouse.ClickElement(actCtx, el); err != nil {
		return fmt.Errorf("focus %q: %w", matcher, err)
	}

	// Clear existing content
	if err := el.SelectAllText(); err == nil {
		_ = page.Keyboard.Type(input.Backspace)
	}

	for _, r := range text {
		if err := page.InsertText(string(r)); err != nil {
			return fmt.Errorf("type into %q: %w", matcher, err)
		}
		if !humanize.SleepWithContext(actCtx, d.timing.TypingDelay()) {
			return types.ErrContextCanceled
		}
	}

	if pressEnter {
		humanize.SleepWithContext(actCtx, d.timing.PreActionDelay())
		if err := page.Keyboard.Type(input.Enter); err != nil {
			return fmt.Errorf("press enter in %q: %w", matcher, err)
		}
		d.quiesce(ctx)
	}

	humanize.SleepWithContext(ctx, d.timing.PostActionDelay())
	return nil
}

// Scroll moves the viewport. Direction defaults to down; amount defaults to
// one viewport height.
func (d *Driver) Scroll(ctx context.Context, direction string, amount float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.page == nil {
		return types.ErrBrowserClosed
	}

	if amount <= 0 {
		h, err := d.scroller.ViewportHeight()
		if err != nil {
			h = viewportHeight
		}
		amount = h
	}
	if strings.EqualFold(direction, "up") {
		amount = -amount
	}

	actCtx, cancel := context.WithTimeout(ctx, actionTimeout)
	defer cancel()
	return d.scroller.ScrollBy(actCtx, amount)
}

// Back navigates one entry back in the session history.
func (d *Driver) Back(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.page == nil {
		return types.ErrBrowserClosed
	}

	actCtx, cancel := context.WithTimeout(ctx, navigateTimeout)
	defer cancel()

	if err := d.page.Context(actCtx).NavigateBack(); err != nil {
		return fmt.Errorf("%w: %s", types.ErrNavigationFailed, err)
	}
	d.quiesce(actCtx)
	humanize.SleepWithContext(ctx, humanize.HumanDelay("navigate"))
	return nil
}

// Screenshot captures a viewport JPEG. It is safe to call concurrently with
// actions; callers contend on the driver lock.
func (d *Driver) Screenshot(ctx context.Context) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.screenshotLocked(ctx)
}

// TryScreenshot captures a frame only if the driver is idle. The periodic
// pump uses this so it never delays a tool action.
func (d *Driver) TryScreenshot(ctx context.Context) ([]byte, bool) {
	if !d.mu.TryLock() {
		return nil, false
	}
	defer d.mu.Unlock()

	data, err := d.screenshotLocked(ctx)
	if err != nil {
		log.Debug().Err(err).Msg("Opportunistic screenshot failed")
		return nil, false
	}
	return data, true
}

func (d *Driver) screenshotLocked(ctx context.Context) ([]byte, error) {
	if d.page == nil {
		return nil, types.ErrBrowserClosed
	}

	quality := 80
	data, err := d.page.Context(ctx).Screenshot(false, &proto.PageCaptureScreenshot{
		Format:  proto.PageCaptureScreenshotFormatJpeg,
		Quality: &quality,
	})
	if err != nil {
		return nil, fmt.Errorf("screenshot capture failed: %w", err)
	}
	return data, nil
}

// CapturePageState takes the per-turn snapshot: overlay off, clean
// screenshot, overlay back on with a fresh inventory.
func (d *Driver) CapturePageState(ctx context.Context) (*PageState, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.page == nil {
		return nil, types.ErrBrowserClosed
	}

	if err := d.annotator.Clear(ctx); err != nil {
		log.Debug().Err(err).Msg("Overlay clear before capture failed")
	}

	data, err := d.screenshotLocked(ctx)
	if err != nil {
		return nil, err
	}

	elements, err := d.annotator.Annotate(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Re-annotation failed, inventory will be empty")
		elements = nil
	}

	info, err := d.page.Info()
	state := &PageState{
		Screenshot: base64.StdEncoding.EncodeToString(data),
		Elements:   elements,
	}
	if err == nil {
		state.URL = info.URL
		state.Title = info.Title
	}
	return state, nil
}

// Annotate reapplies the overlay and returns the inventory.
func (d *Driver) Annotate(ctx context.Context) ([]annotate.Element, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.page == nil {
		return nil, types.ErrBrowserClosed
	}
	return d.annotator.Annotate(ctx)
}

// Eval runs a script on the page and returns its decoded result.
func (d *Driver) Eval(ctx context.Context, script string, args ...interface{}) (gson.JSON, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.page == nil {
		return gson.New(nil), types.ErrBrowserClosed
	}

	res, err := d.page.Context(ctx).Eval(script, args...)
	if err != nil {
		return gson.New(nil), err
	}
	return res.Value, nil
}

// URL returns the current page URL, or empty when unavailable.
func (d *Driver) URL() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.page == nil {
		return ""
	}
	info, err := d.page.Info()
	if err != nil {
		return ""
	}
	return info.URL
}
