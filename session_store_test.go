package auth_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	auth "github.com/goliatone/go-talent-auth"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type storeFixture struct {
	store    *auth.SessionStore
	provider *MockIdentityProvider
	verifier *MockCredentialChecker
	resolver *MockProfileLookup
	storage  *auth.MemoryStorage
	clock    *fakeClock
	sink     *recordingSink
}

func newStoreFixture(t *testing.T, opts ...auth.SessionStoreOption) *storeFixture {
	t.Helper()

	f := &storeFixture{
		provider: new(MockIdentityProvider),
		verifier: new(MockCredentialChecker),
		resolver: new(MockProfileLookup),
		storage:  auth.NewMemoryStorage(),
		clock:    newFakeClock(),
		sink:     &recordingSink{},
	}

	opts = append([]auth.SessionStoreOption{
		auth.WithSessionStorage(f.storage),
		auth.WithSessionClock(f.clock.Now),
		auth.WithSessionLogger(quietLogger()),
		auth.WithSessionActivitySink(f.sink),
	}, opts...)

	f.store = auth.NewSessionStore(f.provider, f.verifier, f.resolver, opts...)
	return f
}

func talentProfile(userID uuid.UUID, name string) *auth.Profile {
	return auth.NewTalentProfile(&auth.TalentProfile{ID: uuid.New(), UserID: userID, FullName: name})
}

func standardVerification(id uuid.UUID, email string) *auth.Verification {
	return &auth.Verification{Principal: auth.Principal{ID: id.String(), Email: email}}
}

func TestSessionStoreStartsLoading(t *testing.T) {
	f := newStoreFixture(t)

	snap := f.store.Snapshot()
	assert.Equal(t, auth.SessionLoading, snap.Phase)
	assert.True(t, snap.Loading)
	assert.False(t, snap.Authenticated())
}

func TestSessionStoreInitialize(t *testing.T) {
	userID := uuid.New()

	t.Run("no provider session", func(t *testing.T) {
		f := newStoreFixture(t)
		f.provider.On("GetCurrentUser", mock.Anything).Return(nil, nil)

		res := f.store.Initialize(context.Background())
		assert.True(t, res.Success)

		snap := f.store.Snapshot()
		assert.Equal(t, auth.SessionAnonymous, snap.Phase)
		assert.False(t, snap.Loading)
		assert.Empty(t, snap.Error)
		f.resolver.AssertNotCalled(t, "Resolve", mock.Anything, mock.Anything)
	})

	t.Run("restores profile", func(t *testing.T) {
		f := newStoreFixture(t)
		f.provider.On("GetCurrentUser", mock.Anything).
			Return(&auth.ProviderUser{ID: userID.String(), Email: "jane@example.com"}, nil)
		f.resolver.On("Resolve", mock.Anything, userID.String()).
			Return(talentProfile(userID, "Jane"), nil)

		res := f.store.Initialize(context.Background())
		require.True(t, res.Success)

		snap := f.store.Snapshot()
		assert.True(t, snap.Authenticated())
		assert.Equal(t, auth.RoleTalent, snap.Role())
		assert.Equal(t, auth.RoleTalent, snap.User.Role)
		assert.Equal(t, "Jane", snap.Profile.DisplayName())
		assert.Nil(t, snap.AdminSessionStart)
		assert.Equal(t, []auth.ActivityEventType{auth.ActivityEventSessionRestored}, f.sink.Types())
	})

	t.Run("provider failure", func(t *testing.T) {
		f := newStoreFixture(t)
		f.provider.On("GetCurrentUser", mock.Anything).Return(nil, errors.New("network unreachable"))

		res := f.store.Initialize(context.Background())
		assert.False(t, res.Success)
		assert.Equal(t, auth.TextCodeProviderError, res.Code)

		snap := f.store.Snapshot()
		assert.Equal(t, auth.SessionAnonymous, snap.Phase)
		assert.False(t, snap.Loading)
		assert.Contains(t, snap.Error, "network unreachable")
	})

	t.Run("profile missing discards the session", func(t *testing.T) {
		f := newStoreFixture(t)
		f.provider.On("GetCurrentUser", mock.Anything).Return(&auth.ProviderUser{ID: userID.String()}, nil)
		f.resolver.On("Resolve", mock.Anything, userID.String()).Return(nil, auth.ErrProfileNotFound)

		res := f.store.Initialize(context.Background())
		assert.False(t, res.Success)
		assert.True(t, auth.IsProfileNotFound(res.Err))

		snap := f.store.Snapshot()
		assert.Equal(t, auth.SessionAnonymous, snap.Phase)
		assert.Nil(t, snap.User)
		assert.Equal(t, []auth.ActivityEventType{auth.ActivityEventSessionDiscarded}, f.sink.Types())
	})

	t.Run("privileged session restores start time", func(t *testing.T) {
		f := newStoreFixture(t)
		start := f.clock.Now().Add(-time.Hour)
		_, err := auth.NewSessionMetadata(f.storage, 0, func() time.Time { return start }).
			MarkAdminSessionStart(context.Background())
		require.NoError(t, err)

		f.provider.On("GetCurrentUser", mock.Anything).Return(&auth.ProviderUser{ID: userID.String()}, nil)
		f.resolver.On("Resolve", mock.Anything, userID.String()).
			Return(auth.NewAdminProfile(auth.RoleSuperAdmin, &auth.AdminProfile{UserID: userID, Name: "Boss"}), nil)

		require.True(t, f.store.Initialize(context.Background()).Success)

		snap := f.store.Snapshot()
		assert.Equal(t, auth.RoleSuperAdmin, snap.Role())
		require.NotNil(t, snap.AdminSessionStart)
		assert.True(t, start.Equal(*snap.AdminSessionStart))
	})
}

func TestSessionStoreInitializeTimeout(t *testing.T) {
	f := newStoreFixture(t, auth.WithCallTimeout(20*time.Millisecond))
	f.provider.On("GetCurrentUser", mock.Anything).
		Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		}).
		Return(nil, context.DeadlineExceeded)

	res := f.store.Initialize(context.Background())
	assert.False(t, res.Success)
	assert.True(t, auth.IsProviderError(res.Err))
	assert.Contains(t, res.Error, "timed out")
	assert.Equal(t, auth.SessionAnonymous, f.store.Snapshot().Phase)
}

func TestSessionStoreSignInStandardAccount(t *testing.T) {
	f := newStoreFixture(t)
	userID := uuid.New()

	f.verifier.On("Verify", mock.Anything, "jane@example.com", "pw").
		Return(standardVerification(userID, "jane@example.com"), nil)
	f.resolver.On("Resolve", mock.Anything, userID.String()).
		Return(talentProfile(userID, "Jane"), nil)

	res := f.store.SignIn(context.Background(), "  jane@example.com ", "pw")
	require.True(t, res.Success, res.Error)
	assert.False(t, res.Superseded)

	snap := f.store.Snapshot()
	assert.True(t, snap.Authenticated())
	assert.Equal(t, auth.RoleTalent, snap.User.Role)
	assert.Equal(t, "jane@example.com", snap.User.Email)
	assert.Nil(t, snap.AdminSessionStart)
	assert.Equal(t, []auth.ActivityEventType{auth.ActivityEventLoginSuccess}, f.sink.Types())
}

func TestSessionStoreSignInPrivilegedAccount(t *testing.T) {
	f := newStoreFixture(t)
	adminID := uuid.New()

	f.verifier.On("Verify", mock.Anything, "ops@example.com", "s3cret").Return(&auth.Verification{
		Principal:  auth.Principal{ID: adminID.String(), Email: "ops@example.com", Role: auth.RoleAdmin},
		Profile:    auth.NewAdminProfile(auth.RoleAdmin, &auth.AdminProfile{ID: adminID, UserID: adminID, Name: "Ops"}),
		Privileged: true,
	}, nil)

	res := f.store.SignIn(context.Background(), "ops@example.com", "s3cret")
	require.True(t, res.Success, res.Error)

	snap := f.store.Snapshot()
	assert.Equal(t, auth.RoleAdmin, snap.Role())
	require.NotNil(t, snap.AdminSessionStart)
	assert.Equal(t, f.clock.Now().UnixMilli(), snap.AdminSessionStart.UnixMilli())

	remaining, err := f.store.Metadata().AdminSessionRemaining(context.Background())
	require.NoError(t, err)
	assert.Equal(t, auth.DefaultAdminSessionTTL, remaining)

	f.resolver.AssertNotCalled(t, "Resolve", mock.Anything, mock.Anything)
}

func TestSessionStoreLockoutBlocksSixthAttempt(t *testing.T) {
	ctx := context.Background()
	f := newStoreFixture(t)
	userID := uuid.New()

	f.verifier.On("Verify", mock.Anything, "jane@example.com", "bad").Return(nil, auth.ErrInvalidCredentials)
	f.verifier.On("Verify", mock.Anything, "jane@example.com", "good").
		Return(standardVerification(userID, "jane@example.com"), nil)
	f.resolver.On("Resolve", mock.Anything, userID.String()).Return(talentProfile(userID, "Jane"), nil)

	for i := 0; i < auth.DefaultMaxLoginAttempts; i++ {
		res := f.store.SignIn(ctx, "jane@example.com", "bad")
		require.False(t, res.Success)
		assert.True(t, auth.IsInvalidCredentials(res.Err))
	}

	res := f.store.SignIn(ctx, "jane@example.com", "good")
	assert.False(t, res.Success)
	assert.True(t, auth.IsBlocked(res.Err))
	assert.Equal(t, auth.TextCodeBlocked, res.Code)
	f.verifier.AssertNumberOfCalls(t, "Verify", auth.DefaultMaxLoginAttempts)

	f.clock.Advance(auth.DefaultBlockDuration - time.Second)
	res = f.store.SignIn(ctx, "jane@example.com", "good")
	assert.True(t, auth.IsBlocked(res.Err))
	f.verifier.AssertNumberOfCalls(t, "Verify", auth.DefaultMaxLoginAttempts)

	f.clock.Advance(time.Second)
	res = f.store.SignIn(ctx, "jane@example.com", "good")
	require.True(t, res.Success, res.Error)

	state, err := f.store.Lockout().State(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 0, state.Attempts())
	assert.False(t, state.Blocked())

	assert.Contains(t, f.sink.Types(), auth.ActivityEventLoginBlocked)
	assert.Contains(t, f.sink.Types(), auth.ActivityEventLockoutEngaged)
}

func TestSessionStoreSuccessResetsCounter(t *testing.T) {
	ctx := context.Background()
	f := newStoreFixture(t)
	userID := uuid.New()

	f.verifier.On("Verify", mock.Anything, mock.Anything, "bad").Return(nil, auth.ErrInvalidCredentials)
	f.verifier.On("Verify", mock.Anything, mock.Anything, "good").
		Return(standardVerification(userID, "jane@example.com"), nil)
	f.resolver.On("Resolve", mock.Anything, userID.String()).Return(talentProfile(userID, "Jane"), nil)

	for i := 0; i < auth.DefaultMaxLoginAttempts-1; i++ {
		require.False(t, f.store.SignIn(ctx, "jane@example.com", "bad").Success)
	}

	require.True(t, f.store.SignIn(ctx, "jane@example.com", "good").Success)

	for i := 0; i < auth.DefaultMaxLoginAttempts-1; i++ {
		res := f.store.SignIn(ctx, "jane@example.com", "bad")
		assert.True(t, auth.IsInvalidCredentials(res.Err))
	}

	state, err := f.store.Lockout().State(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, auth.DefaultMaxLoginAttempts-1, state.Attempts())
	assert.False(t, state.Blocked())
}

func TestSessionStoreInvalidInputCountsAsFailure(t *testing.T) {
	ctx := context.Background()
	f := newStoreFixture(t)

	res := f.store.SignIn(ctx, "jane@example.com", "")
	assert.False(t, res.Success)
	assert.Equal(t, auth.TextCodeInvalidInput, res.Code)

	res = f.store.SignIn(ctx, "not-an-email", "pw")
	assert.Equal(t, auth.TextCodeInvalidInput, res.Code)

	f.verifier.AssertNotCalled(t, "Verify", mock.Anything, mock.Anything, mock.Anything)

	state, err := f.store.Lockout().State(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 2, state.Attempts())
	assert.Equal(t, auth.SessionAnonymous, f.store.Snapshot().Phase)
}

func TestSessionStoreProviderFailureIsReported(t *testing.T) {
	f := newStoreFixture(t)
	f.verifier.On("Verify", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("upstream says no"))

	res := f.store.SignIn(context.Background(), "jane@example.com", "pw")
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "upstream says no")

	snap := f.store.Snapshot()
	assert.Equal(t, auth.SessionAnonymous, snap.Phase)
	assert.Contains(t, snap.Error, "upstream says no")
}

func TestSessionStoreSignInWithoutProfile(t *testing.T) {
	f := newStoreFixture(t)
	userID := uuid.New()

	f.verifier.On("Verify", mock.Anything, mock.Anything, mock.Anything).
		Return(standardVerification(userID, "jane@example.com"), nil)
	f.resolver.On("Resolve", mock.Anything, userID.String()).Return(nil, auth.ErrProfileNotFound)
	f.provider.On("SignOut", mock.Anything).Return(nil)

	res := f.store.SignIn(context.Background(), "jane@example.com", "pw")
	assert.False(t, res.Success)
	assert.True(t, auth.IsProfileNotFound(res.Err))

	snap := f.store.Snapshot()
	assert.Equal(t, auth.SessionAnonymous, snap.Phase)
	assert.Nil(t, snap.User)
	f.provider.AssertCalled(t, "SignOut", mock.Anything)
}

func TestSessionStoreFailedSignInKeepsSession(t *testing.T) {
	ctx := context.Background()
	f := newStoreFixture(t)
	userID := uuid.New()

	f.verifier.On("Verify", mock.Anything, "jane@example.com", "pw").
		Return(standardVerification(userID, "jane@example.com"), nil)
	f.verifier.On("Verify", mock.Anything, "other@example.com", "bad").Return(nil, auth.ErrInvalidCredentials)
	f.resolver.On("Resolve", mock.Anything, userID.String()).Return(talentProfile(userID, "Jane"), nil)

	require.True(t, f.store.SignIn(ctx, "jane@example.com", "pw").Success)
	require.False(t, f.store.SignIn(ctx, "other@example.com", "bad").Success)

	snap := f.store.Snapshot()
	assert.True(t, snap.Authenticated())
	assert.Equal(t, userID.String(), snap.User.ID)
	assert.NotEmpty(t, snap.Error)
}

func TestSessionStoreSignOut(t *testing.T) {
	ctx := context.Background()
	adminID := uuid.New()

	signedIn := func(t *testing.T) *storeFixture {
		f := newStoreFixture(t)
		f.verifier.On("Verify", mock.Anything, mock.Anything, mock.Anything).Return(&auth.Verification{
			Principal:  auth.Principal{ID: adminID.String(), Email: "ops@example.com", Role: auth.RoleAdmin},
			Profile:    auth.NewAdminProfile(auth.RoleAdmin, &auth.AdminProfile{UserID: adminID}),
			Privileged: true,
		}, nil)
		require.True(t, f.store.SignIn(ctx, "ops@example.com", "pw", auth.WithRememberMe(true)).Success)
		return f
	}

	t.Run("clears session and admin start", func(t *testing.T) {
		f := signedIn(t)
		f.provider.On("SignOut", mock.Anything).Return(nil)

		res := f.store.SignOut(ctx)
		assert.True(t, res.Success)

		snap := f.store.Snapshot()
		assert.Equal(t, auth.SessionAnonymous, snap.Phase)
		assert.Nil(t, snap.User)
		assert.Nil(t, snap.Profile)
		assert.Nil(t, snap.AdminSessionStart)

		_, ok, _ := f.storage.Get(ctx, auth.StorageKeyAdminSessionStart)
		assert.False(t, ok)

		remembered, err := f.store.RememberedCredential(ctx)
		require.NoError(t, err)
		assert.Equal(t, "ops@example.com", remembered.Email)
		assert.Contains(t, f.sink.Types(), auth.ActivityEventLogout)
	})

	t.Run("forget clears remembered email", func(t *testing.T) {
		f := signedIn(t)
		f.provider.On("SignOut", mock.Anything).Return(nil)

		require.True(t, f.store.SignOut(ctx, auth.ForgetRememberedCredential()).Success)

		remembered, err := f.store.RememberedCredential(ctx)
		require.NoError(t, err)
		assert.False(t, remembered.Remember)
		assert.Empty(t, remembered.Email)
	})

	t.Run("provider failure still clears local state", func(t *testing.T) {
		f := signedIn(t)
		f.provider.On("SignOut", mock.Anything).Return(errors.New("offline"))

		res := f.store.SignOut(ctx)
		assert.False(t, res.Success)
		assert.True(t, auth.IsProviderError(res.Err))

		snap := f.store.Snapshot()
		assert.Equal(t, auth.SessionAnonymous, snap.Phase)
		assert.Nil(t, snap.User)
		assert.Contains(t, snap.Error, "offline")
	})
}

func TestSessionStoreRememberMeFalseForgets(t *testing.T) {
	ctx := context.Background()
	f := newStoreFixture(t)
	userID := uuid.New()

	f.verifier.On("Verify", mock.Anything, mock.Anything, mock.Anything).
		Return(standardVerification(userID, "jane@example.com"), nil)
	f.resolver.On("Resolve", mock.Anything, mock.Anything).Return(talentProfile(userID, "Jane"), nil)

	require.True(t, f.store.SignIn(ctx, "jane@example.com", "pw", auth.WithRememberMe(true)).Success)
	remembered, _ := f.store.RememberedCredential(ctx)
	assert.Equal(t, auth.RememberedCredential{Email: "jane@example.com", Remember: true}, remembered)

	require.True(t, f.store.SignIn(ctx, "jane@example.com", "pw").Success)
	remembered, _ = f.store.RememberedCredential(ctx)
	assert.True(t, remembered.Remember, "sign in without the option keeps the preference")

	require.True(t, f.store.SignIn(ctx, "jane@example.com", "pw", auth.WithRememberMe(false)).Success)
	remembered, _ = f.store.RememberedCredential(ctx)
	assert.False(t, remembered.Remember)
}

func TestSessionStoreStaleInitializeLosesToSignIn(t *testing.T) {
	ctx := context.Background()
	f := newStoreFixture(t)
	oldID, newID := uuid.New(), uuid.New()

	started := make(chan struct{})
	release := make(chan struct{})
	f.provider.On("GetCurrentUser", mock.Anything).
		Run(func(mock.Arguments) {
			close(started)
			<-release
		}).
		Return(&auth.ProviderUser{ID: oldID.String()}, nil).Once()
	f.resolver.On("Resolve", mock.Anything, oldID.String()).Return(talentProfile(oldID, "Old"), nil).Maybe()

	f.verifier.On("Verify", mock.Anything, mock.Anything, mock.Anything).
		Return(standardVerification(newID, "new@example.com"), nil)
	f.resolver.On("Resolve", mock.Anything, newID.String()).Return(talentProfile(newID, "New"), nil)

	initDone := make(chan auth.Result, 1)
	go func() { initDone <- f.store.Initialize(ctx) }()
	<-started

	require.True(t, f.store.SignIn(ctx, "new@example.com", "pw").Success)

	close(release)
	initRes := <-initDone
	assert.True(t, initRes.Superseded)

	snap := f.store.Snapshot()
	assert.Equal(t, newID.String(), snap.User.ID)
	assert.Equal(t, "New", snap.Profile.DisplayName())
	assert.False(t, snap.Loading)
}

func TestSessionStoreStaleSignInLosesToInitialize(t *testing.T) {
	ctx := context.Background()
	f := newStoreFixture(t)
	userID := uuid.New()

	started := make(chan struct{})
	release := make(chan struct{})
	f.verifier.On("Verify", mock.Anything, mock.Anything, mock.Anything).
		Run(func(mock.Arguments) {
			close(started)
			<-release
		}).
		Return(standardVerification(userID, "jane@example.com"), nil).Once()
	f.resolver.On("Resolve", mock.Anything, userID.String()).Return(talentProfile(userID, "Jane"), nil)
	f.provider.On("GetCurrentUser", mock.Anything).Return(nil, nil)
	f.provider.On("SignOut", mock.Anything).Return(nil).Once()

	signInDone := make(chan auth.Result, 1)
	go func() { signInDone <- f.store.SignIn(ctx, "jane@example.com", "pw") }()
	<-started

	require.True(t, f.store.Initialize(ctx).Success)

	close(release)
	res := <-signInDone
	assert.True(t, res.Superseded)
	assert.False(t, res.Success)
	assert.True(t, auth.IsSuperseded(res.Err))
	assert.Equal(t, auth.TextCodeSuperseded, res.Code)

	snap := f.store.Snapshot()
	assert.Equal(t, auth.SessionAnonymous, snap.Phase)
	assert.Nil(t, snap.User)
	assert.NotContains(t, f.sink.Types(), auth.ActivityEventLoginSuccess)
	f.provider.AssertNumberOfCalls(t, "SignOut", 1)
}

func TestSessionStoreStaleSignInKeepsNewerSignIn(t *testing.T) {
	ctx := context.Background()
	f := newStoreFixture(t)
	oldID, newID := uuid.New(), uuid.New()

	started := make(chan struct{})
	release := make(chan struct{})
	f.verifier.On("Verify", mock.Anything, "old@example.com", mock.Anything).
		Run(func(mock.Arguments) {
			close(started)
			<-release
		}).
		Return(standardVerification(oldID, "old@example.com"), nil).Once()
	f.verifier.On("Verify", mock.Anything, "new@example.com", mock.Anything).
		Return(standardVerification(newID, "new@example.com"), nil).Once()
	f.resolver.On("Resolve", mock.Anything, oldID.String()).Return(talentProfile(oldID, "Old"), nil)
	f.resolver.On("Resolve", mock.Anything, newID.String()).Return(talentProfile(newID, "New"), nil)

	oldDone := make(chan auth.Result, 1)
	go func() { oldDone <- f.store.SignIn(ctx, "old@example.com", "pw") }()
	<-started

	require.True(t, f.store.SignIn(ctx, "new@example.com", "pw").Success)

	close(release)
	res := <-oldDone
	assert.False(t, res.Success)
	assert.True(t, res.Superseded)

	snap := f.store.Snapshot()
	assert.Equal(t, newID.String(), snap.User.ID)
	f.provider.AssertNotCalled(t, "SignOut", mock.Anything)
}

func TestSessionStoreStaleInitializeLosesToNewerInitialize(t *testing.T) {
	userID := uuid.New()
	user := &auth.ProviderUser{ID: userID.String(), Email: "jane@example.com"}

	cases := []struct {
		name          string
		older         *auth.ProviderUser
		newer         *auth.ProviderUser
		authenticated bool
	}{
		{name: "newer no user beats older user", older: user, newer: nil, authenticated: false},
		{name: "newer user beats older no user", older: nil, newer: user, authenticated: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			f := newStoreFixture(t)

			started := make(chan struct{})
			release := make(chan struct{})
			f.provider.On("GetCurrentUser", mock.Anything).
				Run(func(mock.Arguments) {
					close(started)
					<-release
				}).
				Return(tc.older, nil).Once()
			f.provider.On("GetCurrentUser", mock.Anything).Return(tc.newer, nil).Once()
			f.resolver.On("Resolve", mock.Anything, userID.String()).Return(talentProfile(userID, "Jane"), nil)

			olderDone := make(chan auth.Result, 1)
			go func() { olderDone <- f.store.Initialize(ctx) }()
			<-started

			newer := f.store.Initialize(ctx)
			require.True(t, newer.Success)
			assert.False(t, newer.Superseded)

			close(release)
			older := <-olderDone
			assert.True(t, older.Superseded)

			snap := f.store.Snapshot()
			assert.False(t, snap.Loading)
			assert.Equal(t, tc.authenticated, snap.Authenticated())
			if tc.authenticated {
				require.NotNil(t, snap.User)
				assert.Equal(t, userID.String(), snap.User.ID)
			} else {
				assert.Equal(t, auth.SessionAnonymous, snap.Phase)
				assert.Nil(t, snap.User)
			}
		})
	}
}

func TestSessionStoreUpdateProfile(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()

	signedIn := func(t *testing.T) *storeFixture {
		f := newStoreFixture(t)
		f.verifier.On("Verify", mock.Anything, mock.Anything, mock.Anything).
			Return(standardVerification(userID, "jane@example.com"), nil)
		f.resolver.On("Resolve", mock.Anything, userID.String()).Return(talentProfile(userID, "Jane"), nil)
		require.True(t, f.store.SignIn(ctx, "jane@example.com", "pw").Success)
		return f
	}

	t.Run("replaces the profile with the stored record", func(t *testing.T) {
		f := signedIn(t)
		patch := auth.ProfilePatch{"stage_name": "JD"}
		stored := talentProfile(userID, "Jane")
		stored.Talent.StageName = "JD"
		f.resolver.On("UpdateProfile", mock.Anything, mock.Anything, patch).Return(stored, nil)

		var seen []auth.SessionSnapshot
		unsubscribe := f.store.Subscribe(func(s auth.SessionSnapshot) { seen = append(seen, s) })
		defer unsubscribe()

		res := f.store.UpdateProfile(ctx, patch)
		require.True(t, res.Success, res.Error)

		assert.Equal(t, "JD", f.store.Snapshot().Profile.DisplayName())
		require.Len(t, seen, 1)
		assert.Equal(t, "JD", seen[0].Profile.Talent.StageName)
		assert.Contains(t, f.sink.Types(), auth.ActivityEventProfileUpdated)
	})

	t.Run("failure leaves the profile unchanged", func(t *testing.T) {
		f := signedIn(t)
		f.resolver.On("UpdateProfile", mock.Anything, mock.Anything, mock.Anything).
			Return(nil, auth.ErrInvalidInput)

		res := f.store.UpdateProfile(ctx, auth.ProfilePatch{"phone": "12"})
		assert.False(t, res.Success)
		assert.Equal(t, auth.TextCodeInvalidInput, res.Code)
		assert.Equal(t, "Jane", f.store.Snapshot().Profile.DisplayName())
	})

	t.Run("without a profile", func(t *testing.T) {
		f := newStoreFixture(t)

		res := f.store.UpdateProfile(ctx, auth.ProfilePatch{"bio": "hi"})
		assert.False(t, res.Success)
		assert.True(t, auth.IsNoProfile(res.Err))
		f.resolver.AssertNotCalled(t, "UpdateProfile", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("session ended while writing", func(t *testing.T) {
		f := signedIn(t)
		f.provider.On("SignOut", mock.Anything).Return(nil)

		f.resolver.On("UpdateProfile", mock.Anything, mock.Anything, mock.Anything).
			Run(func(mock.Arguments) {
				require.True(t, f.store.SignOut(ctx).Success)
			}).
			Return(talentProfile(userID, "Late"), nil)

		res := f.store.UpdateProfile(ctx, auth.ProfilePatch{"bio": "hi"})
		assert.True(t, res.Superseded)
		assert.False(t, res.Success)
		assert.True(t, auth.IsSuperseded(res.Err))
		assert.Nil(t, f.store.Snapshot().Profile)
	})
}

func TestSessionStoreSubscribe(t *testing.T) {
	f := newStoreFixture(t)
	f.provider.On("GetCurrentUser", mock.Anything).Return(nil, nil)

	var mu sync.Mutex
	var phases []auth.SessionPhase
	unsubscribe := f.store.Subscribe(func(s auth.SessionSnapshot) {
		mu.Lock()
		phases = append(phases, s.Phase)
		mu.Unlock()
	})

	f.store.Initialize(context.Background())
	unsubscribe()
	f.store.Initialize(context.Background())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []auth.SessionPhase{auth.SessionAnonymous}, phases)
}

func TestSessionStoreSnapshotIsACopy(t *testing.T) {
	f := newStoreFixture(t)
	userID := uuid.New()
	f.verifier.On("Verify", mock.Anything, mock.Anything, mock.Anything).
		Return(standardVerification(userID, "jane@example.com"), nil)
	f.resolver.On("Resolve", mock.Anything, mock.Anything).Return(talentProfile(userID, "Jane"), nil)
	require.True(t, f.store.SignIn(context.Background(), "jane@example.com", "pw").Success)

	snap := f.store.Snapshot()
	snap.User.ID = "mutated"
	snap.Profile.Talent.FullName = "Mutated"

	fresh := f.store.Snapshot()
	assert.Equal(t, userID.String(), fresh.User.ID)
	assert.Equal(t, "Jane", fresh.Profile.Talent.FullName)
}

func TestSessionStoreEndToEnd(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	talent := seedTalent(t, db, "jane@example.com", "Jane Doe")
	seedAdmin(t, db, "ops@example.com", "s3cret")

	repos := auth.NewRepositoryManager(db)
	provider := new(MockIdentityProvider)
	provider.On("SignInWithPassword", mock.Anything, "jane@example.com", "pw").
		Return(&auth.ProviderUser{ID: talent.id.String(), Email: "jane@example.com"}, nil)
	provider.On("SignOut", mock.Anything).Return(nil)

	storage := auth.NewBunStorage(db)
	store := auth.NewSessionStore(provider,
		auth.NewCredentialVerifier(repos.Admins(), provider).WithLogger(quietLogger()),
		auth.NewProfileResolver(repos).WithLogger(quietLogger()),
		auth.WithSessionStorage(storage),
		auth.WithSessionLogger(quietLogger()),
	)

	res := store.SignIn(ctx, "jane@example.com", "pw")
	require.True(t, res.Success, res.Error)
	assert.Equal(t, auth.RoleTalent, store.Snapshot().Role())

	res = store.UpdateProfile(ctx, auth.ProfilePatch{"location": " Lisbon "})
	require.True(t, res.Success, res.Error)
	assert.Equal(t, "Lisbon", store.Snapshot().Profile.Talent.Location)

	require.True(t, store.SignOut(ctx).Success)

	res = store.SignIn(ctx, "ops@example.com", "s3cret")
	require.True(t, res.Success, res.Error)

	snap := store.Snapshot()
	assert.Equal(t, auth.RoleAdmin, snap.Role())
	require.NotNil(t, snap.AdminSessionStart)

	_, ok, err := storage.Get(ctx, auth.StorageKeyAdminSessionStart)
	require.NoError(t, err)
	assert.True(t, ok)

	provider.AssertNumberOfCalls(t, "SignInWithPassword", 1)
}
