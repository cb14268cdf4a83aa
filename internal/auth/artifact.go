package auth

import (
	"encoding/json"
	"strings"
	"time"
)

// artifactJSON mirrors the authorized-user token file written by the
// authorization tool. Service account keys share the "type" field, which is
// how we tell them apart.
type artifactJSON struct {
	Type         string   `json:"type"`
	AccessToken  string   `json:"token"`
	RefreshToken string   `json:"refresh_token"`
	ClientID     string   `json:"client_id"`
	ClientSecret string   `json:"client_secret"`
	TokenURI     string   `json:"token_uri"`
	Scopes       []string `json:"scopes,omitempty"`
	Expiry       string   `json:"expiry,omitempty"`
}

const authorizedUserType = "authorized_user"

// looksLikeKeyFile reports whether an artifact name marks a service key rather
// than a tenant token.
func looksLikeKeyFile(name string) bool {
	return strings.HasSuffix(name, "-key.json") || strings.HasSuffix(name, ".key.json")
}

func parseExpiry(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05.999999"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func (a *artifactJSON) marshal() ([]byte, error) {
	return json.Marshal(a)
}
