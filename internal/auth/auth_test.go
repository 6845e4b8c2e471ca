package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webpilot-ai/webpilot/internal/types"
)

func TestHTTPVerifier(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Header.Get("Authorization") {
		case "Bearer good-token":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"user_id":"user-42"}`))
		case "Bearer empty-user":
			w.Write([]byte(`{}`))
		case "Bearer broken":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			w.WriteHeader(http.StatusUnauthorized)
		}
	}))
	defer srv.Close()

	v := NewHTTPVerifier(srv.URL)
	ctx := context.Background()

	userID, err := v.Verify(ctx, "good-token")
	require.NoError(t, err)
	assert.Equal(t, "user-42", userID)

	_, err = v.Verify(ctx, "bad-token")
	assert.ErrorIs(t, err, types.ErrAuthenticationFailed)

	_, err = v.Verify(ctx, "empty-user")
	assert.ErrorIs(t, err, types.ErrAuthenticationFailed)

	_, err = v.Verify(ctx, "broken")
	require.Error(t, err)
	assert.NotErrorIs(t, err, types.ErrAuthenticationFailed, "server faults are not auth failures")

	_, err = v.Verify(ctx, "")
	assert.ErrorIs(t, err, types.ErrNotAuthenticated)
}

func TestStaticVerifier(t *testing.T) {
	v := NewStaticVerifier(map[string]string{"dev-token": "dev-user"})

	userID, err := v.Verify(context.Background(), "dev-token")
	require.NoError(t, err)
	assert.Equal(t, "dev-user", userID)

	_, err = v.Verify(context.Background(), "other")
	assert.ErrorIs(t, err, types.ErrAuthenticationFailed)

	_, err = v.Verify(context.Background(), "")
	assert.ErrorIs(t, err, types.ErrNotAuthenticated)
}
