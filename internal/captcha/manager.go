package captcha

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

var errEmptySelectors = errors.New("selectors must define at least one detection pattern")

// ReloadStats tracks selector reloads for the health endpoint.
type ReloadStats struct {
	LastReloadTime time.Time `json:"lastReloadTime,omitempty"`
	ReloadCount    int64     `json:"reloadCount"`
	LastError      error     `json:"-"`
	LastErrorStr   string    `json:"lastError,omitempty"`
}

// Manager serves the active selector set. It starts from the embedded
// defaults, optionally overlays an external file, and optionally hot-reloads
// that file on change. Reads are lock-free via atomic swap.
type Manager struct {
	embedded     *Selectors
	current      atomic.Value // *Selectors
	externalPath string
	watcher      *fsnotify.Watcher
	stopCh       chan struct{}
	wg           sync.WaitGroup
	mu           sync.Mutex // guards reloads and stats
	stats        ReloadStats
	closed       bool
}

// NewManager builds a Manager. With an empty externalPath only the embedded
// selectors are served; with hotReload set, writes to the file swap the
// active set in place.
func NewManager(externalPath string, hotReload bool) (*Manager, error) {
	m := &Manager{
		embedded:     EmbeddedSelectors(),
		externalPath: externalPath,
		stopCh:       make(chan struct{}),
	}
	m.current.Store(m.embedded)

	if externalPath != "" {
		if err := m.loadExternal(); err != nil {
			log.Warn().
				Err(err).
				Str("path", externalPath).
				Msg("Failed to load external CAPTCHA selectors, using embedded defaults")
		} else {
			log.Info().
				Str("path", externalPath).
				Msg("Loaded external CAPTCHA selectors")
		}

		if hotReload {
			if err := m.startWatcher(); err != nil {
				log.Warn().
					Err(err).
					Str("path", externalPath).
					Msg("Failed to start selectors watcher, hot-reload disabled")
			} else {
				log.Info().
					Str("path", externalPath).
					Msg("CAPTCHA selector hot-reload enabled")
			}
		}
	}

	return m, nil
}

// Get returns the active selector set. Lock-free, safe for concurrent use.
func (m *Manager) Get() *Selectors {
	return m.current.Load().(*Selectors)
}

// Reload re-reads the external file. On failure the previous set stays
// active.
func (m *Manager) Reload() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.externalPath == "" {
		return fmt.Errorf("no external selectors path configured")
	}
	return m.loadExternalLocked()
}

// Stats returns a snapshot of the reload statistics.
func (m *Manager) Stats() ReloadStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := m.stats
	if stats.LastError != nil {
		stats.LastErrorStr = stats.LastError.Error()
	}
	return stats
}

// Close stops the watcher. Safe to call more than once.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.stopCh)
	m.wg.Wait()

	if m.watcher != nil {
		return m.watcher.Close()
	}
	return nil
}

func (m *Manager) loadExternal() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loadExternalLocked()
}

func (m *Manager) loadExternalLocked() error {
	data, err := os.ReadFile(m.externalPath)
	if err != nil {
		m.stats.LastError = err
		return fmt.Errorf("read selectors file: %w", err)
	}

	external, err := parseAndValidate(data)
	if err != nil {
		m.stats.LastError = err
		return fmt.Errorf("parse selectors file: %w", err)
	}

	m.current.Store(m.mergeWithEmbedded(external))

	m.stats.LastReloadTime = time.Now()
	m.stats.ReloadCount++
	m.stats.LastError = nil

	log.Info().
		Int64("reload_count", m.stats.ReloadCount).
		Msg("CAPTCHA selectors reloaded")

	return nil
}

func parseAndValidate(data []byte) (*Selectors, error) {
	var s Selectors
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// mergeWithEmbedded overlays the external set on the embedded one: external
// fields win, empty fields fall back.
func (m *Manager) mergeWithEmbedded(external *Selectors) *Selectors {
	merged := *m.embedded

	if len(external.Recaptcha) > 0 {
		merged.Recaptcha = external.Recaptcha
	}
	if len(external.RecaptchaExclude) > 0 {
		merged.RecaptchaExclude = external.RecaptchaExclude
	}
	if len(external.Hcaptcha) > 0 {
		merged.Hcaptcha = external.Hcaptcha
	}
	if len(external.Text) > 0 {
		merged.Text = external.Text
	}
	if external.RecaptchaAnchorFrame != "" {
		merged.RecaptchaAnchorFrame = external.RecaptchaAnchorFrame
	}
	if external.RecaptchaChallengeFrame != "" {
		merged.RecaptchaChallengeFrame = external.RecaptchaChallengeFrame
	}
	if external.HcaptchaFrame != "" {
		merged.HcaptchaFrame = external.HcaptchaFrame
	}

	return &merged
}

func (m *Manager) startWatcher() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}
	if err := watcher.Add(m.externalPath); err != nil {
		watcher.Close()
		return fmt.Errorf("watch file: %w", err)
	}

	m.watcher = watcher
	m.wg.Add(1)
	go m.watchFile()
	return nil
}

func (m *Manager) watchFile() {
	defer m.wg.Done()

	// Coalesce rapid successive writes into one reload.
	const debounceDelay = 100 * time.Millisecond
	var debounceTimer *time.Timer
	var debouncing bool

	for {
		select {
		case event, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			log.Debug().
				Str("event", event.Op.String()).
				Str("file", event.Name).
				Msg("CAPTCHA selectors file changed")

			if debouncing {
				if !debounceTimer.Stop() {
					select {
					case <-debounceTimer.C:
					default:
					}
				}
				debounceTimer.Reset(debounceDelay)
			} else {
				debouncing = true
				debounceTimer = time.AfterFunc(debounceDelay, func() {
					if err := m.Reload(); err != nil {
						log.Warn().
							Err(err).
							Str("path", m.externalPath).
							Msg("Selector hot-reload failed, keeping previous set")
					}
					debouncing = false
				})
			}

		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("Selectors watcher error")

		case <-m.stopCh:
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return
		}
	}
}
