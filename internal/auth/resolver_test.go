package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeArtifact(t *testing.T, name string, art artifactJSON) string {
	t.Helper()
	raw, err := json.Marshal(art)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, raw, 0600))
	return path
}

func TestResolveRejectsKeyFileByName(t *testing.T) {
	path := writeArtifact(t, "drive-key.json", artifactJSON{Type: authorizedUserType})

	_, err := Resolve(context.Background(), path)
	assert.ErrorIs(t, err, ErrNotAToken)
}

func TestResolveRejectsServiceAccountKey(t *testing.T) {
	path := writeArtifact(t, "user_token_alice.json", artifactJSON{Type: "service_account"})

	_, err := Resolve(context.Background(), path)
	assert.ErrorIs(t, err, ErrNotAToken)
}

func TestResolveValidToken(t *testing.T) {
	path := writeArtifact(t, "user_token_alice.json", artifactJSON{
		Type:         authorizedUserType,
		AccessToken:  "live-token",
		RefreshToken: "refresh",
		ClientID:     "cid",
		ClientSecret: "secret",
		Expiry:       time.Now().Add(time.Hour).Format(time.RFC3339),
	})

	cred, err := Resolve(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "user_token_alice.json", cred.Name)
	assert.Equal(t, "live-token", cred.token.AccessToken)
}

func TestResolveExpiredWithoutRefresh(t *testing.T) {
	path := writeArtifact(t, "user_token_bob.json", artifactJSON{
		Type:        authorizedUserType,
		AccessToken: "stale",
		Expiry:      time.Now().Add(-time.Hour).Format(time.RFC3339),
	})

	_, err := Resolve(context.Background(), path)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestResolveRefreshesAndRewritesArtifact(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "fresh-token",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	}))
	defer srv.Close()

	path := writeArtifact(t, "user_token_carol.json", artifactJSON{
		Type:         authorizedUserType,
		AccessToken:  "stale",
		RefreshToken: "refresh",
		ClientID:     "cid",
		ClientSecret: "secret",
		TokenURI:     srv.URL,
		Expiry:       time.Now().Add(-time.Hour).Format(time.RFC3339),
	})

	cred, err := Resolve(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "fresh-token", cred.token.AccessToken)

	// The refreshed material replaced the local artifact.
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var rewritten artifactJSON
	require.NoError(t, json.Unmarshal(raw, &rewritten))
	assert.Equal(t, "fresh-token", rewritten.AccessToken)
	assert.Equal(t, "refresh", rewritten.RefreshToken, "refresh token survives a rewrite")
}
