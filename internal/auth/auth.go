// Package auth verifies session tokens against the backing identity
// service.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/webpilot-ai/webpilot/internal/types"
)

const verifyTimeout = 10 * time.Second

// Verifier resolves a bearer token to the user it belongs to.
type Verifier interface {
	Verify(ctx context.Context, token string) (userID string, err error)
}

// HTTPVerifier verifies tokens against an HTTP endpoint that accepts a
// bearer token and answers with the owning user's id.
type HTTPVerifier struct {
	endpoint string
	client   *http.Client
}

// NewHTTPVerifier builds a verifier for the given endpoint.
func NewHTTPVerifier(endpoint string) *HTTPVerifier {
	return &HTTPVerifier{
		endpoint: endpoint,
		client:   &http.Client{Timeout: verifyTimeout},
	}
}

func (v *HTTPVerifier) Verify(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", types.ErrNotAuthenticated
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("build verify request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("verify token: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		var body struct {
			UserID string `json:"user_id"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return "", fmt.Errorf("decode verify response: %w", err)
		}
		if body.UserID == "" {
			return "", fmt.Errorf("%w: verify response missing user id", types.ErrAuthenticationFailed)
		}
		return body.UserID, nil

	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", types.ErrAuthenticationFailed

	default:
		log.Warn().Int("status", resp.StatusCode).Msg("Unexpected verify response")
		return "", fmt.Errorf("verify token: unexpected status %d", resp.StatusCode)
	}
}

// StaticVerifier maps fixed tokens to user ids. Development use only.
type StaticVerifier struct {
	tokens map[string]string
}

// NewStaticVerifier builds a verifier over a fixed token table.
func NewStaticVerifier(tokens map[string]string) *StaticVerifier {
	return &StaticVerifier{tokens: tokens}
}

func (v *StaticVerifier) Verify(_ context.Context, token string) (string, error) {
	if token == "" {
		return "", types.ErrNotAuthenticated
	}
	userID, ok := v.tokens[token]
	if !ok {
		return "", types.ErrAuthenticationFailed
	}
	return userID, nil
}
