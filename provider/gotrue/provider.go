package gotrue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
	auth "github.com/goliatone/go-talent-auth"
	"github.com/tidwall/gjson"
)

// Session is the provider session persisted in client storage.
type Session struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token,omitempty"`
	TokenType    string      `json:"token_type,omitempty"`
	ExpiresIn    int64       `json:"expires_in,omitempty"`
	ExpiresAt    int64       `json:"expires_at,omitempty"`
	User         SessionUser `json:"user"`
}

// SessionUser is the user object embedded in the token response.
type SessionUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// IdentityProvider implements auth.IdentityProvider against a hosted
// GoTrue compatible auth service.
type IdentityProvider struct {
	config  Config
	client  *http.Client
	storage auth.Storage
	keyFunc jwt.Keyfunc
	jwks    *keyfunc.JWKS
}

var _ auth.IdentityProvider = (*IdentityProvider)(nil)

// NewIdentityProvider creates a provider persisting its session in storage.
func NewIdentityProvider(cfg Config, storage auth.Storage) (*IdentityProvider, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if storage == nil {
		return nil, fmt.Errorf("gotrue: storage is required")
	}

	cfg = cfg.withDefaults()
	p := &IdentityProvider{
		config:  cfg,
		client:  cfg.HTTPClient,
		storage: storage,
	}

	switch {
	case cfg.JWKSURL != "":
		jwks, err := keyfunc.Get(cfg.JWKSURL, keyfuncOptions())
		if err != nil {
			return nil, fmt.Errorf("gotrue: failed to get JWK set: %w", err)
		}
		p.jwks = jwks
		p.keyFunc = jwks.Keyfunc
	case cfg.JWTSecret != "":
		secret := []byte(cfg.JWTSecret)
		p.keyFunc = func(*jwt.Token) (any, error) {
			return secret, nil
		}
	}

	return p, nil
}

func keyfuncOptions() keyfunc.Options {
	return keyfunc.Options{
		RefreshErrorHandler: func(err error) {
			log.Printf("gotrue: failed to do a background refresh of JWT set: %s", err)
		},
		RefreshInterval:   time.Hour,
		RefreshRateLimit:  time.Minute * 5,
		RefreshTimeout:    time.Second * 10,
		RefreshUnknownKID: true,
	}
}

// Close stops the JWK set background refresh.
func (p *IdentityProvider) Close() {
	if p.jwks != nil {
		p.jwks.EndBackground()
	}
}

// SignInWithPassword exchanges the credentials for a session and stores it.
func (p *IdentityProvider) SignInWithPassword(ctx context.Context, email, password string) (*auth.ProviderUser, error) {
	body, err := json.Marshal(map[string]string{
		"email":    email,
		"password": password,
	})
	if err != nil {
		return nil, err
	}

	req, err := p.newRequest(ctx, http.MethodPost, p.config.endpoint(tokenPath)+"?grant_type=password", body)
	if err != nil {
		return nil, err
	}

	res, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gotrue: sign in request failed: %w", err)
	}
	defer res.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("gotrue: failed to read sign in response: %w", err)
	}

	if res.StatusCode != http.StatusOK {
		return nil, responseError(res.StatusCode, payload)
	}

	session := Session{}
	if err := json.Unmarshal(payload, &session); err != nil {
		return nil, fmt.Errorf("gotrue: malformed sign in response: %w", err)
	}

	if session.AccessToken == "" || session.User.ID == "" {
		return nil, fmt.Errorf("gotrue: sign in response missing session")
	}

	if session.ExpiresAt == 0 && session.ExpiresIn > 0 {
		session.ExpiresAt = p.config.Clock().Add(time.Duration(session.ExpiresIn) * time.Second).Unix()
	}

	if err := p.saveSession(ctx, session); err != nil {
		return nil, err
	}

	return &auth.ProviderUser{ID: session.User.ID, Email: session.User.Email}, nil
}

// GetCurrentUser returns the stored session user while its access token is
// valid. Expired or tampered sessions are discarded, tokens are never refreshed.
func (p *IdentityProvider) GetCurrentUser(ctx context.Context) (*auth.ProviderUser, error) {
	session, ok, err := p.loadSession(ctx)
	if err != nil || !ok {
		return nil, err
	}

	subject, err := p.verifyAccessToken(session)
	if err != nil {
		if derr := p.storage.Delete(ctx, p.config.SessionKey); derr != nil {
			return nil, fmt.Errorf("gotrue: failed to discard session: %w", derr)
		}
		return nil, nil
	}

	if subject == "" {
		subject = session.User.ID
	}

	return &auth.ProviderUser{ID: subject, Email: session.User.Email}, nil
}

// SignOut revokes the session remotely and always discards it locally.
func (p *IdentityProvider) SignOut(ctx context.Context) error {
	session, ok, err := p.loadSession(ctx)
	if err != nil {
		return err
	}

	if derr := p.storage.Delete(ctx, p.config.SessionKey); derr != nil {
		return fmt.Errorf("gotrue: failed to discard session: %w", derr)
	}

	if !ok {
		return nil
	}

	req, err := p.newRequest(ctx, http.MethodPost, p.config.endpoint(logoutPath), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+session.AccessToken)

	res, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("gotrue: sign out request failed: %w", err)
	}
	defer res.Body.Close()

	// an already revoked token is signed out as far as we are concerned
	if res.StatusCode == http.StatusUnauthorized || res.StatusCode < 300 {
		return nil
	}

	payload, _ := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	return responseError(res.StatusCode, payload)
}

// Session returns the stored provider session, if any.
func (p *IdentityProvider) Session(ctx context.Context) (*Session, error) {
	session, ok, err := p.loadSession(ctx)
	if err != nil || !ok {
		return nil, err
	}
	return &session, nil
}

func (p *IdentityProvider) verifyAccessToken(session Session) (string, error) {
	now := p.config.Clock()

	if p.keyFunc == nil {
		if session.ExpiresAt > 0 && !now.Before(time.Unix(session.ExpiresAt, 0)) {
			return "", jwt.ErrTokenExpired
		}
		return session.User.ID, nil
	}

	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(session.AccessToken, claims, p.keyFunc,
		jwt.WithValidMethods([]string{"HS256", "RS256", "ES256"}),
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return "", err
	}

	return claims.Subject, nil
}

func (p *IdentityProvider) loadSession(ctx context.Context) (Session, bool, error) {
	raw, ok, err := p.storage.Get(ctx, p.config.SessionKey)
	if err != nil {
		return Session{}, false, fmt.Errorf("gotrue: failed to read session: %w", err)
	}
	if !ok || raw == "" {
		return Session{}, false, nil
	}

	session := Session{}
	if err := json.Unmarshal([]byte(raw), &session); err != nil || session.AccessToken == "" {
		if derr := p.storage.Delete(ctx, p.config.SessionKey); derr != nil {
			return Session{}, false, fmt.Errorf("gotrue: failed to discard session: %w", derr)
		}
		return Session{}, false, nil
	}

	return session, true, nil
}

func (p *IdentityProvider) saveSession(ctx context.Context, session Session) error {
	raw, err := json.Marshal(session)
	if err != nil {
		return err
	}
	if err := p.storage.Set(ctx, p.config.SessionKey, string(raw)); err != nil {
		return fmt.Errorf("gotrue: failed to store session: %w", err)
	}
	return nil
}

func (p *IdentityProvider) newRequest(ctx context.Context, method, url string, body []byte) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("gotrue: failed to build request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if p.config.APIKey != "" {
		req.Header.Set("apikey", p.config.APIKey)
	}

	return req, nil
}

// ErrUpstream wraps non credential failures returned by the service.
var ErrUpstream = errors.New("gotrue: upstream error")

// responseError maps credential rejections to auth.ErrInvalidCredentials
// and keeps the service message verbatim for everything else.
func responseError(status int, payload []byte) error {
	message := errorMessage(payload)
	if message == "" {
		message = http.StatusText(status)
	}

	if status == http.StatusBadRequest || status == http.StatusUnauthorized || status == http.StatusUnprocessableEntity {
		clone := auth.ErrInvalidCredentials.Clone()
		if clone == nil {
			return auth.ErrInvalidCredentials
		}
		clone.Message = message
		clone.Source = auth.ErrInvalidCredentials
		return clone.WithMetadata(map[string]any{
			"provider": "gotrue",
			"status":   status,
		})
	}

	return fmt.Errorf("%w: %s (status %d)", ErrUpstream, message, status)
}

func errorMessage(payload []byte) string {
	if !gjson.ValidBytes(payload) {
		return ""
	}
	for _, path := range []string{"error_description", "msg", "message", "error"} {
		if v := gjson.GetBytes(payload, path); v.Exists() && v.String() != "" {
			return v.String()
		}
	}
	return ""
}
