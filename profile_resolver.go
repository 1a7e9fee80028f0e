package auth

import (
	"context"
	"strings"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

// ProfileRepositories is the subset of RepositoryManager the resolver needs.
type ProfileRepositories interface {
	Users() Users
	TalentProfiles() TalentProfiles
	AdminProfiles() AdminProfiles
}

// ProfileResolver loads the role specific profile for a principal. It also
// writes partial updates back to the role indexed table.
type ProfileResolver struct {
	repos       ProfileRepositories
	phoneRegion string
	logger      Logger
	lp          LoggerProvider
}

var _ ProfileWriter = (*ProfileResolver)(nil)

func NewProfileResolver(repos ProfileRepositories) *ProfileResolver {
	lp, logger := ResolveLogger("auth.profiles", nil, nil)
	return &ProfileResolver{
		repos:       repos,
		phoneRegion: DefaultPhoneRegion,
		logger:      logger,
		lp:          lp,
	}
}

// WithPhoneRegion sets the region used to parse numbers without a country code.
func (r *ProfileResolver) WithPhoneRegion(region string) *ProfileResolver {
	if region = strings.ToUpper(strings.TrimSpace(region)); region != "" {
		r.phoneRegion = region
	}
	return r
}

func (r *ProfileResolver) WithLogger(logger Logger) *ProfileResolver {
	r.lp, r.logger = ResolveLogger("auth.profiles", nil, logger)
	return r
}

func (r *ProfileResolver) WithLoggerProvider(provider LoggerProvider) *ProfileResolver {
	r.lp, r.logger = ResolveLogger("auth.profiles", provider, r.logger)
	return r
}

// Resolve reads the principal role from users and loads exactly one record
// from talent_profiles or admin_profiles.
func (r *ProfileResolver) Resolve(ctx context.Context, principalID string) (*Profile, error) {
	logger := r.logger.WithContext(ctx)

	id, err := uuid.Parse(strings.TrimSpace(principalID))
	if err != nil {
		return nil, withDetails(ErrProfileNotFound, "", map[string]any{"principal_id": principalID})
	}

	role, err := r.repos.Users().GetRole(ctx, id)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, withDetails(ErrProfileNotFound, "", map[string]any{"principal_id": principalID})
		}
		logger.Error("role lookup failed", "principal_id", principalID, "error", err)
		return nil, providerError(err)
	}

	switch {
	case role == RoleTalent:
		record, err := r.repos.TalentProfiles().GetByUserID(ctx, id)
		if err != nil {
			return nil, r.lookupError(ctx, principalID, role, err)
		}
		return NewTalentProfile(record), nil
	case role.IsPrivileged():
		record, err := r.repos.AdminProfiles().GetByUserID(ctx, id)
		if err != nil {
			return nil, r.lookupError(ctx, principalID, role, err)
		}
		return NewAdminProfile(role, record), nil
	}

	logger.Warn("principal has unknown role", "principal_id", principalID, "role", role)
	return nil, withDetails(ErrProfileNotFound, "", map[string]any{
		"principal_id": principalID,
		"role":         role,
	})
}

// UpdateProfile validates patch for the profile role, writes it, and returns
// the stored record wrapped as a new Profile. The input profile is not modified.
func (r *ProfileResolver) UpdateProfile(ctx context.Context, profile *Profile, patch ProfilePatch) (*Profile, error) {
	if err := profile.Validate(); err != nil {
		return nil, err
	}

	normalized, err := NormalizePatch(profile.Role, patch, r.phoneRegion)
	if err != nil {
		return nil, err
	}

	userID := profile.UserID()
	principalID := userID.String()

	if profile.Role == RoleTalent {
		record, err := r.repos.TalentProfiles().Patch(ctx, userID, normalized)
		if err != nil {
			return nil, r.lookupError(ctx, principalID, profile.Role, err)
		}
		return NewTalentProfile(record), nil
	}

	record, err := r.repos.AdminProfiles().Patch(ctx, userID, normalized)
	if err != nil {
		return nil, r.lookupError(ctx, principalID, profile.Role, err)
	}
	return NewAdminProfile(profile.Role, record), nil
}

func (r *ProfileResolver) lookupError(ctx context.Context, principalID string, role Role, err error) error {
	if repository.IsRecordNotFound(err) {
		return withDetails(ErrProfileNotFound, "", map[string]any{
			"principal_id": principalID,
			"role":         role,
		})
	}
	if hasTextCode(err, TextCodeInvalidInput) {
		return err
	}
	r.logger.WithContext(ctx).Error("profile query failed", "principal_id", principalID, "role", role, "error", err)
	return providerError(err)
}
