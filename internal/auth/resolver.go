// Package auth resolves per-tenant credential artifacts into usable OAuth
// tokens, refreshing and rewriting them when they have expired.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// ErrNotAToken marks an artifact that is not an authorized-user token, such as
// a service account key that ended up in the credential folder. Skipped, not
// fatal.
var ErrNotAToken = errors.New("artifact is not an authorized-user token")

// ErrExpiredToken marks a token that has expired and carries no refresh token.
var ErrExpiredToken = errors.New("token expired with no refresh token")

// Credential is a resolved, non-expired tenant credential.
type Credential struct {
	Name  string // tenant-identifying artifact name
	token *oauth2.Token
	conf  *oauth2.Config
}

// Client returns an HTTP client that authenticates as the tenant.
func (c *Credential) Client(ctx context.Context) *http.Client {
	return c.conf.Client(ctx, c.token)
}

// Resolve loads the token artifact at path and returns a valid credential.
// Expired tokens with a refresh token are refreshed against the provider's
// token endpoint and the refreshed material is written back over the artifact
// file.
func Resolve(ctx context.Context, path string) (*Credential, error) {
	name := filepath.Base(path)
	if looksLikeKeyFile(name) {
		return nil, fmt.Errorf("%s: %w", name, ErrNotAToken)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read artifact %s: %w", name, err)
	}

	var art artifactJSON
	if err := json.Unmarshal(raw, &art); err != nil {
		return nil, fmt.Errorf("parse artifact %s: %w", name, err)
	}
	if art.Type != "" && art.Type != authorizedUserType {
		return nil, fmt.Errorf("%s has type %q: %w", name, art.Type, ErrNotAToken)
	}
	if art.RefreshToken == "" && art.AccessToken == "" {
		return nil, fmt.Errorf("%s: %w", name, ErrNotAToken)
	}

	conf := &oauth2.Config{
		ClientID:     art.ClientID,
		ClientSecret: art.ClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       art.Scopes,
	}
	if art.TokenURI != "" {
		conf.Endpoint.TokenURL = art.TokenURI
	}

	tok := &oauth2.Token{
		AccessToken:  art.AccessToken,
		RefreshToken: art.RefreshToken,
		Expiry:       parseExpiry(art.Expiry),
	}

	if tok.Valid() {
		return &Credential{Name: name, token: tok, conf: conf}, nil
	}
	if tok.RefreshToken == "" {
		return nil, fmt.Errorf("%s: %w", name, ErrExpiredToken)
	}

	refreshed, err := conf.TokenSource(ctx, tok).Token()
	if err != nil {
		return nil, fmt.Errorf("refresh token %s: %w", name, err)
	}
	if refreshed.RefreshToken == "" {
		refreshed.RefreshToken = tok.RefreshToken
	}

	// Persist the refreshed material over the local artifact so a later read
	// within the same run sees a live token.
	art.AccessToken = refreshed.AccessToken
	art.RefreshToken = refreshed.RefreshToken
	art.Expiry = refreshed.Expiry.UTC().Format(time.RFC3339)
	if out, err := art.marshal(); err == nil {
		if werr := os.WriteFile(path, out, 0600); werr != nil {
			return nil, fmt.Errorf("rewrite artifact %s: %w", name, werr)
		}
	}

	return &Credential{Name: name, token: refreshed, conf: conf}, nil
}
