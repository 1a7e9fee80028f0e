package gotrue

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultSessionKey is the storage key holding the provider session.
	DefaultSessionKey = "authSession"
	tokenPath         = "/auth/v1/token"
	logoutPath        = "/auth/v1/logout"
)

// Config holds the hosted auth service settings.
type Config struct {
	// URL is the project base URL, e.g. "https://abc.example.co".
	URL string

	// APIKey is sent as the apikey header on every request.
	APIKey string

	// JWTSecret verifies HS256 access tokens (optional).
	JWTSecret string

	// JWKSURL verifies asymmetric access tokens (optional, wins over JWTSecret).
	JWKSURL string

	// Timeout bounds each HTTP request.
	// Default: 10 seconds.
	Timeout time.Duration

	// HTTPClient overrides the client used for requests (optional).
	HTTPClient *http.Client

	// SessionKey overrides the storage key of the provider session.
	// Default: DefaultSessionKey.
	SessionKey string

	// Clock overrides time.Now for token expiry checks.
	Clock func() time.Time
}

func (c Config) validate() error {
	if strings.TrimSpace(c.URL) == "" {
		return fmt.Errorf("gotrue: url is required")
	}
	if !strings.HasPrefix(c.URL, "http://") && !strings.HasPrefix(c.URL, "https://") {
		return fmt.Errorf("gotrue: invalid url: %s", c.URL)
	}
	return nil
}

func (c Config) endpoint(path string) string {
	return strings.TrimRight(c.URL, "/") + path
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.SessionKey == "" {
		c.SessionKey = DefaultSessionKey
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	return c
}
