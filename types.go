package auth

import (
	"context"
	"time"
)

// Logger is the structured logger contract used across the package.
// Args are key/value pairs, e.g. logger.Error("sign in failed", "error", err).
type Logger interface {
	Trace(msg string, args ...any)
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	WithContext(ctx context.Context) Logger
}

// LoggerProvider hands out named loggers, e.g. "auth.session_store".
type LoggerProvider interface {
	GetLogger(name string) Logger
}

// ProviderUser is the identity returned by the external identity provider.
// It carries no role, roles are resolved by the ProfileResolver.
type ProviderUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// IdentityProvider is the external identity service used for standard
// (non privileged) accounts.
type IdentityProvider interface {
	// GetCurrentUser returns nil, nil when there is no authenticated user.
	GetCurrentUser(ctx context.Context) (*ProviderUser, error)
	SignInWithPassword(ctx context.Context, email, password string) (*ProviderUser, error)
	SignOut(ctx context.Context) error
}

// Storage is durable client side key/value storage. Values are strings.
type Storage interface {
	// Get returns ok=false when the key is not set.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// SecretComparer verifies a supplied secret against a stored reference.
type SecretComparer interface {
	Compare(secret, stored string) error
}

// AdminFinder looks up privileged accounts by exact email. A missing
// account is nil, nil.
type AdminFinder interface {
	FindByEmail(ctx context.Context, email string) (*Admin, error)
}

// ProfileWriter persists partial profile updates to the role indexed table
// and returns the stored record.
type ProfileWriter interface {
	UpdateProfile(ctx context.Context, profile *Profile, patch ProfilePatch) (*Profile, error)
}

// Clock returns the current time, injectable for tests.
type Clock func() time.Time

// CredentialChecker verifies an email/password pair.
type CredentialChecker interface {
	Verify(ctx context.Context, email, password string) (*Verification, error)
}

// ProfileLookup resolves the role specific profile of a principal.
type ProfileLookup interface {
	Resolve(ctx context.Context, principalID string) (*Profile, error)
}
