// Package auth maps workbench API keys to client names.
package auth

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"

	"github.com/straja-ai/desens/internal/config"
)

// Client is the runtime identity behind an API key.
type Client struct {
	Name string
}

// Auth holds mappings from API keys to clients. A nil or empty Auth accepts
// every request.
type Auth struct {
	keys map[string]Client
}

// NewFromConfig builds an Auth from the server client list.
func NewFromConfig(cfg config.ServerConfig) (*Auth, error) {
	m := make(map[string]Client)
	for _, c := range cfg.Clients {
		if c.Name == "" {
			return nil, fmt.Errorf("client with empty name in config")
		}
		for _, key := range c.APIKeys {
			key = strings.TrimSpace(key)
			if key == "" {
				continue
			}
			if _, exists := m[key]; exists {
				return nil, fmt.Errorf("api key is assigned to multiple clients (second: %q)", c.Name)
			}
			m[key] = Client{Name: c.Name}
		}
	}
	return &Auth{keys: m}, nil
}

// Enabled reports whether any key is configured.
func (a *Auth) Enabled() bool {
	return a != nil && len(a.keys) > 0
}

// Lookup returns the client for a given API key, if any.
func (a *Auth) Lookup(apiKey string) (Client, bool) {
	if a == nil || apiKey == "" {
		return Client{}, false
	}
	for key, c := range a.keys {
		if subtle.ConstantTimeCompare([]byte(key), []byte(apiKey)) == 1 {
			return c, true
		}
	}
	return Client{}, false
}

// BearerToken extracts the token from an Authorization header.
func BearerToken(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(h[7:])
}
