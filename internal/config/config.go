// Package config provides application configuration management.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Configuration upper bounds to prevent resource exhaustion.
const (
	maxMaxSessions        = 10000
	maxMaxSteps           = 100
	maxStepTimeout        = 5 * time.Minute
	minScreenshotInterval = 100 * time.Millisecond
	maxScreenshotInterval = 30 * time.Second
)

// Config holds all application configuration.
// Configuration is loaded from environment variables at startup.
type Config struct {
	// Server settings
	Host string
	Port int

	// Browser settings
	Headless    bool
	BrowserPath string

	// Language model settings
	OpenAIAPIKey string
	OpenAIModel  string

	// Auth service
	AuthURL string

	// Store settings
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Agent settings
	MaxSteps    int
	StepTimeout time.Duration

	// Session settings
	MaxSessions              int
	HeartbeatInterval        time.Duration
	ScreenshotInterval       time.Duration
	ReplayScreenshotInterval time.Duration

	// CAPTCHA selector overrides
	CaptchaSelectorsPath string
	CaptchaHotReload     bool

	// Logging
	LogLevel string
}

// Load loads configuration from environment variables.
// Returns a Config with values from environment or sensible defaults.
func Load() *Config {
	return &Config{
		// Server - default to localhost for security (prevents accidental exposure)
		// Set HOST=0.0.0.0 explicitly to bind to all interfaces
		Host: getEnvString("HOST", "127.0.0.1"),
		Port: getEnvInt("PORT", 8780),

		// Browser
		Headless:    getEnvBool("HEADLESS", true),
		BrowserPath: getEnvString("BROWSER_PATH", ""),

		// Language model
		OpenAIAPIKey: getEnvString("OPENAI_API_KEY", ""),
		OpenAIModel:  getEnvString("OPENAI_MODEL", "gpt-4o"),

		// Auth
		AuthURL: getEnvString("AUTH_URL", ""),

		// Store
		RedisAddr:     getEnvString("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword: getEnvString("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		// Agent
		MaxSteps:    getEnvInt("MAX_STEPS", 25),
		StepTimeout: getEnvDuration("STEP_TIMEOUT", 60*time.Second),

		// Sessions
		MaxSessions:              getEnvInt("MAX_SESSIONS", 100),
		HeartbeatInterval:        getEnvDuration("HEARTBEAT_INTERVAL", 30*time.Second),
		ScreenshotInterval:       getEnvDuration("SCREENSHOT_INTERVAL", 1*time.Second),
		ReplayScreenshotInterval: getEnvDuration("REPLAY_SCREENSHOT_INTERVAL", 500*time.Millisecond),

		// CAPTCHA selector overrides
		CaptchaSelectorsPath: getEnvString("CAPTCHA_SELECTORS_PATH", ""),
		CaptchaHotReload:     getEnvBool("CAPTCHA_HOT_RELOAD", false),

		// Logging
		LogLevel: getEnvString("LOG_LEVEL", "info"),
	}
}

// Validate checks configuration values and logs warnings for invalid values.
// Invalid values are corrected to sensible defaults.
func (c *Config) Validate() {
	// Port validation - allow 0 for system-assigned ports
	if c.Port < 0 || c.Port > 65535 {
		log.Warn().Int("port", c.Port).Msg("Invalid port, using default 8780")
		c.Port = 8780
	}

	// BrowserPath validation - prevent path traversal attacks
	if c.BrowserPath != "" {
		if strings.Contains(c.BrowserPath, "..") {
			log.Error().
				Str("path", c.BrowserPath).
				Msg("BrowserPath contains path traversal sequence (..), ignoring")
			c.BrowserPath = ""
		} else if !strings.HasPrefix(c.BrowserPath, "/") && !strings.HasPrefix(c.BrowserPath, "C:") && !strings.HasPrefix(c.BrowserPath, "c:") {
			log.Warn().
				Str("path", c.BrowserPath).
				Msg("BrowserPath should be an absolute path")
		}
	}

	// Model configuration - the agent cannot decide without a model
	if c.OpenAIAPIKey == "" {
		log.Warn().Msg("OPENAI_API_KEY not set - the service cannot start without a model")
	}
	if c.OpenAIModel == "" {
		log.Warn().Msg("OPENAI_MODEL empty, using 'gpt-4o'")
		c.OpenAIModel = "gpt-4o"
	}

	// Auth URL validation
	if c.AuthURL == "" {
		log.Warn().Msg("AUTH_URL not set - all authentication attempts will fail")
	} else if !strings.HasPrefix(c.AuthURL, "http://") && !strings.HasPrefix(c.AuthURL, "https://") {
		log.Error().
			Str("url", c.AuthURL).
			Msg("AUTH_URL must be an http(s) URL")
	}

	// Redis DB bounds (redis supports 0-15 by default)
	if c.RedisDB < 0 || c.RedisDB > 15 {
		log.Warn().Int("db", c.RedisDB).Msg("Invalid REDIS_DB, using 0")
		c.RedisDB = 0
	}

	// Step budget validation with upper bound
	if c.MaxSteps < 1 {
		log.Warn().Int("steps", c.MaxSteps).Msg("Invalid max steps, using default 25")
		c.MaxSteps = 25
	} else if c.MaxSteps > maxMaxSteps {
		log.Warn().
			Int("steps", c.MaxSteps).
			Int("max", maxMaxSteps).
			Msg("Max steps too large, capping to maximum")
		c.MaxSteps = maxMaxSteps
	}

	// Step timeout validation
	if c.StepTimeout < time.Second {
		log.Warn().Dur("timeout", c.StepTimeout).Msg("Step timeout too short, using 60s")
		c.StepTimeout = 60 * time.Second
	} else if c.StepTimeout > maxStepTimeout {
		log.Warn().
			Dur("timeout", c.StepTimeout).
			Dur("max", maxStepTimeout).
			Msg("Step timeout too long, capping to maximum")
		c.StepTimeout = maxStepTimeout
	}

	// Session validation with upper bound
	if c.MaxSessions < 1 {
		log.Warn().Int("max", c.MaxSessions).Msg("Invalid max sessions, using 100")
		c.MaxSessions = 100
	} else if c.MaxSessions > maxMaxSessions {
		log.Warn().
			Int("sessions", c.MaxSessions).
			Int("max", maxMaxSessions).
			Msg("Max sessions too high, capping to maximum")
		c.MaxSessions = maxMaxSessions
	}

	// Heartbeat validation (minimum 5 seconds, maximum 5 minutes)
	const minHeartbeat = 5 * time.Second
	const maxHeartbeat = 5 * time.Minute
	if c.HeartbeatInterval < minHeartbeat {
		log.Warn().
			Dur("interval", c.HeartbeatInterval).
			Dur("min", minHeartbeat).
			Msg("Heartbeat interval too short, using minimum")
		c.HeartbeatInterval = minHeartbeat
	} else if c.HeartbeatInterval > maxHeartbeat {
		log.Warn().
			Dur("interval", c.HeartbeatInterval).
			Dur("max", maxHeartbeat).
			Msg("Heartbeat interval too long, using maximum")
		c.HeartbeatInterval = maxHeartbeat
	}

	// Screenshot cadence validation
	c.ScreenshotInterval = clampInterval("SCREENSHOT_INTERVAL", c.ScreenshotInterval)
	c.ReplayScreenshotInterval = clampInterval("REPLAY_SCREENSHOT_INTERVAL", c.ReplayScreenshotInterval)

	// Log level validation
	validLogLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true,
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		log.Warn().Str("level", c.LogLevel).Msg("Invalid log level, using 'info'")
		c.LogLevel = "info"
	}

	// CAPTCHA selectors path validation
	if c.CaptchaSelectorsPath != "" {
		if strings.Contains(c.CaptchaSelectorsPath, "..") {
			log.Error().
				Str("path", c.CaptchaSelectorsPath).
				Msg("CaptchaSelectorsPath contains path traversal sequence (..), ignoring")
			c.CaptchaSelectorsPath = ""
		} else if c.CaptchaHotReload {
			if _, err := os.Stat(c.CaptchaSelectorsPath); os.IsNotExist(err) {
				log.Warn().
					Str("path", c.CaptchaSelectorsPath).
					Msg("CaptchaSelectorsPath does not exist - hot-reload will watch for file creation")
			}
		}
	}

	// Warn if hot-reload is enabled but no path is set
	if c.CaptchaHotReload && c.CaptchaSelectorsPath == "" {
		log.Warn().Msg("CAPTCHA_HOT_RELOAD enabled but CAPTCHA_SELECTORS_PATH not set - hot-reload disabled")
		c.CaptchaHotReload = false
	}
}

// clampInterval bounds a screenshot cadence to a sane range.
func clampInterval(key string, d time.Duration) time.Duration {
	if d < minScreenshotInterval {
		log.Warn().
			Str("key", key).
			Dur("interval", d).
			Dur("min", minScreenshotInterval).
			Msg("Screenshot interval too short, using minimum")
		return minScreenshotInterval
	}
	if d > maxScreenshotInterval {
		log.Warn().
			Str("key", key).
			Dur("interval", d).
			Dur("max", maxScreenshotInterval).
			Msg("Screenshot interval too long, using maximum")
		return maxScreenshotInterval
	}
	return d
}

// Helper functions for environment variable parsing

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		intValue, err := strconv.ParseInt(value, 10, 32)
		if err == nil {
			return int(intValue)
		}
		log.Warn().
			Str("key", key).
			Str("value", value).
			Err(err).
			Int("default", defaultValue).
			Msg("Invalid integer in environment variable, using default")
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		boolValue, err := strconv.ParseBool(value)
		if err == nil {
			return boolValue
		}
		log.Warn().
			Str("key", key).
			Str("value", value).
			Err(err).
			Bool("default", defaultValue).
			Msg("Invalid boolean in environment variable, using default")
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		duration, err := time.ParseDuration(value)
		if err == nil {
			if duration > 0 {
				return duration
			}
			log.Warn().
				Str("key", key).
				Str("value", value).
				Dur("default", defaultValue).
				Msg("Duration must be positive, using default")
			return defaultValue
		}
		log.Warn().
			Str("key", key).
			Str("value", value).
			Err(err).
			Dur("default", defaultValue).
			Msg("Invalid duration in environment variable, using default")
	}
	return defaultValue
}
