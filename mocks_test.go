package auth_test

import (
	"context"

	auth "github.com/goliatone/go-talent-auth"
	"github.com/stretchr/testify/mock"
)

// MockIdentityProvider implements auth.IdentityProvider
type MockIdentityProvider struct {
	mock.Mock
}

func (m *MockIdentityProvider) GetCurrentUser(ctx context.Context) (*auth.ProviderUser, error) {
	args := m.Called(ctx)
	user, _ := args.Get(0).(*auth.ProviderUser)
	return user, args.Error(1)
}

func (m *MockIdentityProvider) SignInWithPassword(ctx context.Context, email, password string) (*auth.ProviderUser, error) {
	args := m.Called(ctx, email, password)
	user, _ := args.Get(0).(*auth.ProviderUser)
	return user, args.Error(1)
}

func (m *MockIdentityProvider) SignOut(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockAdminFinder implements auth.AdminFinder
type MockAdminFinder struct {
	mock.Mock
}

func (m *MockAdminFinder) FindByEmail(ctx context.Context, email string) (*auth.Admin, error) {
	args := m.Called(ctx, email)
	admin, _ := args.Get(0).(*auth.Admin)
	return admin, args.Error(1)
}

// MockProfileLookup implements auth.ProfileLookup and auth.ProfileWriter
type MockProfileLookup struct {
	mock.Mock
}

func (m *MockProfileLookup) Resolve(ctx context.Context, principalID string) (*auth.Profile, error) {
	args := m.Called(ctx, principalID)
	profile, _ := args.Get(0).(*auth.Profile)
	return profile, args.Error(1)
}

func (m *MockProfileLookup) UpdateProfile(ctx context.Context, profile *auth.Profile, patch auth.ProfilePatch) (*auth.Profile, error) {
	args := m.Called(ctx, profile, patch)
	updated, _ := args.Get(0).(*auth.Profile)
	return updated, args.Error(1)
}

// MockCredentialChecker implements auth.CredentialChecker
type MockCredentialChecker struct {
	mock.Mock
}

func (m *MockCredentialChecker) Verify(ctx context.Context, email, password string) (*auth.Verification, error) {
	args := m.Called(ctx, email, password)
	v, _ := args.Get(0).(*auth.Verification)
	return v, args.Error(1)
}

// failingStorage returns err from every call
type failingStorage struct {
	err error
}

func (s failingStorage) Get(context.Context, string) (string, bool, error) { return "", false, s.err }
func (s failingStorage) Set(context.Context, string, string) error         { return s.err }
func (s failingStorage) Delete(context.Context, string) error              { return s.err }
