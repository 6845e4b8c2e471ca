// Package main provides the entry point for the WebPilot agent service.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/webpilot-ai/webpilot/internal/auth"
	"github.com/webpilot-ai/webpilot/internal/captcha"
	"github.com/webpilot-ai/webpilot/internal/config"
	"github.com/webpilot-ai/webpilot/internal/llm"
	"github.com/webpilot-ai/webpilot/internal/middleware"
	"github.com/webpilot-ai/webpilot/internal/store"
	"github.com/webpilot-ai/webpilot/internal/supervisor"
	"github.com/webpilot-ai/webpilot/pkg/version"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Setup logging first so validation warnings are visible
	setupLogging(cfg.LogLevel)

	// Validate configuration (invalid values are corrected with warnings)
	cfg.Validate()

	printBanner()

	if cfg.OpenAIAPIKey == "" {
		log.Fatal().Msg("OPENAI_API_KEY is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	st, err := store.NewRedisStore(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	cancel()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}

	selectorMgr, err := captcha.NewManager(cfg.CaptchaSelectorsPath, cfg.CaptchaHotReload)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize CAPTCHA selectors")
	}

	var verifier auth.Verifier
	if cfg.AuthURL != "" {
		verifier = auth.NewHTTPVerifier(cfg.AuthURL)
	} else {
		log.Warn().Msg("AUTH_URL not configured, accepting the static dev token only")
		verifier = auth.NewStaticVerifier(map[string]string{"dev-token": "dev-user"})
	}

	model := llm.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIModel)
	engineFactory := supervisor.NewBrowserEngineFactory(cfg, model, selectorMgr)
	sup := supervisor.New(cfg, verifier, st, engineFactory)

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	server := &http.Server{
		Addr:        addr,
		Handler:     middleware.Recovery(middleware.Logging(sup.Handler())),
		ReadTimeout: 0, // WebSocket sessions manage their own deadlines
		IdleTimeout: 120 * time.Second,
	}

	go func() {
		log.Info().
			Str("address", addr).
			Str("model", cfg.OpenAIModel).
			Int("max_sessions", cfg.MaxSessions).
			Bool("headless", cfg.Headless).
			Msg("WebPilot is ready to accept sessions")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown error")
	}
	if err := selectorMgr.Close(); err != nil {
		log.Error().Err(err).Msg("Selector manager close error")
	}
	if err := st.Close(); err != nil {
		log.Error().Err(err).Msg("Redis close error")
	}

	log.Info().Msg("Shutdown complete")
}

// setupLogging configures zerolog based on the log level.
func setupLogging(level string) {
	log.Logger = log.Output(zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	})

	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// printBanner prints the startup banner.
func printBanner() {
	banner := `
__        __   _     ____  _ _       _
\ \      / /__| |__ |  _ \(_) | ___ | |_
 \ \ /\ / / _ \ '_ \| |_) | | |/ _ \| __|
  \ V  V /  __/ |_) |  __/| | | (_) | |_
   \_/\_/ \___|_.__/|_|   |_|_|\___/ \__|
`
	fmt.Println(banner)
	fmt.Printf("Version: %s\n\n", version.Full())
}
