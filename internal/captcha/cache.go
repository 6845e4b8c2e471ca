package captcha

import (
	"net/url"
	"strings"
	"sync"
	"time"
)

const hintTTL = 30 * time.Minute

// Kind identifies a CAPTCHA variant.
type Kind string

const (
	KindNone      Kind = ""
	KindRecaptcha Kind = "recaptcha"
	KindHcaptcha  Kind = "hcaptcha"
	KindText      Kind = "text"
)

type hint struct {
	kind     Kind
	selector string
	expires  time.Time
}

// hintCache remembers which CAPTCHA kind a host served so revisits probe the
// matching selectors first. Shared process-wide across sessions.
type hintCache struct {
	mu      sync.RWMutex
	entries map[string]hint
}

var (
	sharedCache     *hintCache
	sharedCacheOnce sync.Once
)

func sharedHints() *hintCache {
	sharedCacheOnce.Do(func() {
		sharedCache = &hintCache{entries: make(map[string]hint)}
	})
	return sharedCache
}

// hostKey reduces a page URL to its cache key. Unparseable URLs fall back to
// the raw string.
func hostKey(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return strings.ToLower(rawURL)
	}
	return strings.ToLower(u.Hostname())
}

func (c *hintCache) get(rawURL string) (Kind, string, bool) {
	key := hostKey(rawURL)

	c.mu.RLock()
	h, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		return KindNone, "", false
	}
	if time.Now().After(h.expires) {
		c.mu.Lock()
		// Re-check under the write lock; another goroutine may have renewed it.
		if h2, still := c.entries[key]; still && time.Now().After(h2.expires) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return KindNone, "", false
	}
	return h.kind, h.selector, true
}

func (c *hintCache) put(rawURL string, kind Kind, selector string) {
	c.mu.Lock()
	c.entries[hostKey(rawURL)] = hint{
		kind:     kind,
		selector: selector,
		expires:  time.Now().Add(hintTTL),
	}
	c.mu.Unlock()
}
