package auth

import (
	"context"
	"strings"

	"github.com/goliatone/go-repository-bun"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
)

// Verification is the outcome of a successful credential check.
type Verification struct {
	Principal Principal
	// Profile is set on the privileged path only, standard accounts are
	// resolved afterwards by the ProfileResolver.
	Profile    *Profile
	Privileged bool
}

// CredentialVerifier decides whether an email/password pair is valid, first
// against the privileged admins collection and then against the identity
// provider. The first path that knows the email wins.
type CredentialVerifier struct {
	admins   AdminFinder
	provider IdentityProvider
	comparer SecretComparer
	logger   Logger
	lp       LoggerProvider
}

// NewCredentialVerifier returns a verifier using bcrypt for admin secrets.
func NewCredentialVerifier(admins AdminFinder, provider IdentityProvider) *CredentialVerifier {
	lp, logger := ResolveLogger("auth.credentials", nil, nil)
	return &CredentialVerifier{
		admins:   admins,
		provider: provider,
		comparer: BcryptComparer{},
		logger:   logger,
		lp:       lp,
	}
}

// WithComparer swaps the admin secret comparer, e.g. PlaintextComparer for
// legacy rows that were never hashed.
func (v *CredentialVerifier) WithComparer(comparer SecretComparer) *CredentialVerifier {
	if comparer != nil {
		v.comparer = comparer
	}
	return v
}

// Comparer returns the admin secret comparer in use.
func (v *CredentialVerifier) Comparer() SecretComparer { return v.comparer }

func (v *CredentialVerifier) WithLogger(logger Logger) *CredentialVerifier {
	v.lp, v.logger = ResolveLogger("auth.credentials", nil, logger)
	return v
}

func (v *CredentialVerifier) WithLoggerProvider(provider LoggerProvider) *CredentialVerifier {
	v.lp, v.logger = ResolveLogger("auth.credentials", provider, v.logger)
	return v
}

// Verify checks the credentials. Errors are ErrInvalidCredentials or
// ErrProviderError, never a raw upstream error.
func (v *CredentialVerifier) Verify(ctx context.Context, email, password string) (*Verification, error) {
	email = strings.TrimSpace(email)
	logger := v.logger.WithContext(ctx)

	if v.admins != nil {
		admin, err := v.admins.FindByEmail(ctx, email)
		if err != nil && !repository.IsRecordNotFound(err) {
			logger.Error("admin lookup failed", "error", err)
			return nil, providerError(err)
		}

		if admin != nil {
			return v.verifyAdmin(ctx, admin, password)
		}
	}

	if v.provider == nil {
		return nil, ErrInvalidCredentials
	}

	user, err := v.provider.SignInWithPassword(ctx, email, password)
	if err != nil {
		if IsInvalidCredentials(err) {
			logger.Debug("identity provider rejected credentials")
			return nil, err
		}
		logger.Error("identity provider sign in failed", "error", err)
		return nil, providerError(err)
	}

	if user == nil || user.ID == "" {
		return nil, ErrInvalidCredentials
	}

	if user.Email == "" {
		user.Email = email
	}

	return &Verification{
		Principal: Principal{ID: user.ID, Email: user.Email},
	}, nil
}

func (v *CredentialVerifier) verifyAdmin(ctx context.Context, admin *Admin, password string) (*Verification, error) {
	if err := v.comparer.Compare(password, admin.Password); err != nil {
		v.logger.WithContext(ctx).Debug("admin secret mismatch", "admin", admin.Email)
		return nil, ErrInvalidCredentials
	}

	id := admin.ID
	if id == uuid.Nil {
		derived, err := hashid.NewUUID(strings.ToLower(admin.Email))
		if err != nil {
			return nil, providerError(err)
		}
		id = derived
	}

	profile := NewAdminProfile(RoleAdmin, &AdminProfile{
		ID:        id,
		UserID:    id,
		Email:     admin.Email,
		Name:      admin.Name,
		CreatedAt: admin.CreatedAt,
	})

	return &Verification{
		Principal: Principal{
			ID:    id.String(),
			Email: admin.Email,
			Role:  RoleAdmin,
		},
		Profile:    profile,
		Privileged: true,
	}, nil
}
