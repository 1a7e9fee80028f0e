package auth

import (
	"context"
	"sync"
	"time"
)

// DefaultCallTimeout bounds every identity provider and data service call
const DefaultCallTimeout = 10 * time.Second

// Result is the outcome of a SessionStore operation. Operations never panic
// or return a Go error, failures are expected outcomes.
type Result struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
	Err     error  `json:"-"`
	// Superseded is set when a newer call started before this one finished,
	// its outcome was not committed to the session. A superseded SignIn or
	// UpdateProfile also reports failure with ErrSuperseded.
	Superseded bool `json:"-"`
}

func supersededResult() Result {
	res := failureResult(ErrSuperseded)
	res.Superseded = true
	return res
}

func successResult() Result {
	return Result{Success: true}
}

func failureResult(err error) Result {
	return Result{
		Success: false,
		Error:   err.Error(),
		Code:    ErrorCode(err),
		Err:     err,
	}
}

// SessionStoreOption customizes a SessionStore
type SessionStoreOption func(*SessionStore)

// WithSessionStorage backs the default lockout guard and metadata with storage.
func WithSessionStorage(storage Storage) SessionStoreOption {
	return func(s *SessionStore) {
		if storage != nil {
			s.storage = storage
		}
	}
}

// WithSessionLockout sets the lockout guard
func WithSessionLockout(guard *LockoutGuard) SessionStoreOption {
	return func(s *SessionStore) {
		s.lockout = guard
	}
}

// WithSessionMetadata sets the session metadata store
func WithSessionMetadata(meta *SessionMetadata) SessionStoreOption {
	return func(s *SessionStore) {
		s.meta = meta
	}
}

// WithProfileWriter sets where UpdateProfile writes. Defaults to the
// resolver when it also implements ProfileWriter.
func WithProfileWriter(writer ProfileWriter) SessionStoreOption {
	return func(s *SessionStore) {
		s.writer = writer
	}
}

// WithCallTimeout bounds each remote call, zero disables the bound.
func WithCallTimeout(d time.Duration) SessionStoreOption {
	return func(s *SessionStore) {
		if d >= 0 {
			s.timeout = d
		}
	}
}

// WithSessionClock injects a custom clock (useful for tests).
func WithSessionClock(clock Clock) SessionStoreOption {
	return func(s *SessionStore) {
		if clock != nil {
			s.now = clock
		}
	}
}

func WithSessionLogger(logger Logger) SessionStoreOption {
	return func(s *SessionStore) {
		s.lp, s.logger = ResolveLogger("auth.session_store", nil, logger)
	}
}

func WithSessionLoggerProvider(provider LoggerProvider) SessionStoreOption {
	return func(s *SessionStore) {
		s.lp, s.logger = ResolveLogger("auth.session_store", provider, s.logger)
	}
}

// WithSessionActivitySink publishes login, logout and profile events
func WithSessionActivitySink(sink ActivitySink) SessionStoreOption {
	return func(s *SessionStore) {
		s.activity = normalizeActivitySink(sink)
	}
}

// SignInOption customizes a single SignIn call
type SignInOption func(*signInOptions)

type signInOptions struct {
	remember    bool
	rememberSet bool
}

// WithRememberMe persists the email for the next visit when true and
// forgets any remembered email when false.
func WithRememberMe(remember bool) SignInOption {
	return func(o *signInOptions) {
		o.remember = remember
		o.rememberSet = true
	}
}

// SignOutOption customizes a single SignOut call
type SignOutOption func(*signOutOptions)

type signOutOptions struct {
	forget bool
}

// ForgetRememberedCredential also clears the remembered email.
func ForgetRememberedCredential() SignOutOption {
	return func(o *signOutOptions) {
		o.forget = true
	}
}

// SessionStore is the single source of truth for who is signed in.
//
// Every Initialize, SignIn and SignOut takes a new generation when it
// starts and commits its outcome only if no newer call started meanwhile, so
// the most recently started call wins. UpdateProfile does not take a
// generation, it commits only if the session it read is still current.
type SessionStore struct {
	provider IdentityProvider
	verifier CredentialChecker
	resolver ProfileLookup
	writer   ProfileWriter
	storage  Storage
	lockout  *LockoutGuard
	meta     *SessionMetadata
	timeout  time.Duration
	now      Clock
	logger   Logger
	lp       LoggerProvider
	activity ActivitySink

	mu        sync.Mutex
	gen       uint64
	committed uint64
	state     sessionState
	listeners map[uint64]func(SessionSnapshot)
	nextID    uint64
}

// NewSessionStore returns a store in the loading phase. Call Initialize to
// restore an existing provider session.
func NewSessionStore(provider IdentityProvider, verifier CredentialChecker, resolver ProfileLookup, opts ...SessionStoreOption) *SessionStore {
	lp, logger := ResolveLogger("auth.session_store", nil, nil)
	s := &SessionStore{
		provider:  provider,
		verifier:  verifier,
		resolver:  resolver,
		timeout:   DefaultCallTimeout,
		now:       time.Now,
		logger:    logger,
		lp:        lp,
		activity:  noopActivitySink{},
		state:     sessionState{phase: SessionLoading, loading: true},
		listeners: map[uint64]func(SessionSnapshot){},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	if s.storage == nil {
		s.storage = NewMemoryStorage()
	}

	if s.lockout == nil {
		s.lockout = NewLockoutGuard(s.storage,
			WithLockoutClock(s.now),
			WithLockoutLoggerProvider(s.lp),
			WithLockoutActivitySink(s.activity),
		)
	}

	if s.meta == nil {
		s.meta = NewSessionMetadata(s.storage, DefaultAdminSessionTTL, s.now)
	}

	if s.writer == nil {
		if w, ok := resolver.(ProfileWriter); ok {
			s.writer = w
		}
	}

	return s
}

// Lockout returns the guard consulted on sign in
func (s *SessionStore) Lockout() *LockoutGuard { return s.lockout }

// Metadata returns the session metadata store
func (s *SessionStore) Metadata() *SessionMetadata { return s.meta }

// Snapshot returns the current state.
func (s *SessionStore) Snapshot() SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.snapshot()
}

// Subscribe calls fn after every state change until the returned function is
// called. Listeners run outside the store lock.
func (s *SessionStore) Subscribe(fn func(SessionSnapshot)) func() {
	if fn == nil {
		return func() {}
	}

	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// Initialize restores an existing provider session. Safe to call any number
// of times, concurrently.
func (s *SessionStore) Initialize(ctx context.Context) Result {
	gen := s.begin(true)
	logger := s.logger.WithContext(ctx)

	callCtx, cancel := s.callContext(ctx)
	defer cancel()

	var current *ProviderUser
	var err error
	if s.provider != nil {
		current, err = s.provider.GetCurrentUser(callCtx)
	}

	if err != nil {
		err = providerError(err)
		logger.Error("session restore failed", "error", err)
		return s.commitAnonymous(gen, err)
	}

	if current == nil || current.ID == "" {
		logger.Debug("no session to restore")
		return s.commitAnonymous(gen, nil)
	}

	profile, err := s.resolver.Resolve(callCtx, current.ID)
	if err != nil {
		logger.Warn("session restore could not resolve profile", "principal_id", current.ID, "error", err)
		s.record(ctx, ActivityEventSessionDiscarded, &Principal{ID: current.ID, Email: current.Email}, map[string]any{
			"error": err.Error(),
		})
		return s.commitAnonymous(gen, err)
	}

	principal := Principal{ID: current.ID, Email: current.Email, Role: profile.Role}

	var adminStart *time.Time
	if profile.Role.IsPrivileged() {
		if start, ok, err := s.meta.AdminSessionStart(callCtx); err == nil && ok {
			adminStart = &start
		}
	}

	res := s.commit(gen, sessionState{
		phase:      SessionAuthenticated,
		user:       &principal,
		profile:    profile,
		adminStart: adminStart,
	}, nil)

	if !res.Superseded {
		logger.Info("session restored", "principal_id", principal.ID, "role", principal.Role)
		s.record(ctx, ActivityEventSessionRestored, &principal, nil)
	}

	return res
}

// SignIn verifies credentials behind the lockout guard and, on success,
// establishes the session.
func (s *SessionStore) SignIn(ctx context.Context, email, password string, opts ...SignInOption) Result {
	o := signInOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	input := SignInInput{Email: email, Password: password, Remember: o.remember}.Normalize()
	gen := s.begin(false)
	logger := s.logger.WithContext(ctx)

	callCtx, cancel := s.callContext(ctx)
	defer cancel()

	if err := s.lockout.Check(callCtx, input.Email); err != nil {
		if IsBlocked(err) {
			logger.Warn("sign in rejected, lockout engaged", "email", input.Email)
			s.record(ctx, ActivityEventLoginBlocked, nil, map[string]any{"email": input.Email})
			return s.fail(gen, err)
		}
		// lockout is advisory, a storage hiccup must not block sign in
		logger.Warn("lockout state unavailable", "error", err)
	}

	if err := input.Validate(); err != nil {
		s.recordFailure(callCtx, input.Email, err)
		return s.fail(gen, err)
	}

	verification, err := s.verifier.Verify(callCtx, input.Email, input.Password)
	if err == nil && verification == nil {
		err = ErrInvalidCredentials
	}
	if err != nil {
		logger.Info("sign in failed", "email", input.Email, "code", ErrorCode(err))
		s.recordFailure(callCtx, input.Email, err)
		return s.fail(gen, err)
	}

	if err := s.lockout.Reset(callCtx, input.Email); err != nil {
		logger.Warn("lockout reset failed", "error", err)
	}

	principal := verification.Principal
	profile := verification.Profile

	var adminStart *time.Time
	if verification.Privileged {
		if start, err := s.meta.MarkAdminSessionStart(callCtx); err != nil {
			logger.Warn("admin session start not recorded", "error", err)
		} else {
			adminStart = &start
		}
	} else {
		profile, err = s.resolver.Resolve(callCtx, principal.ID)
		if err != nil {
			logger.Warn("signed in principal has no profile", "principal_id", principal.ID, "error", err)
			if s.provider != nil {
				if serr := s.provider.SignOut(callCtx); serr != nil {
					logger.Warn("provider sign out after missing profile failed", "error", serr)
				}
			}
			s.record(ctx, ActivityEventLoginFailure, &principal, map[string]any{
				"email": input.Email,
				"error": err.Error(),
			})
			return s.commitAnonymous(gen, err)
		}
		principal.Role = profile.Role
	}

	if o.rememberSet {
		if err := s.meta.Remember(callCtx, input.Email, o.remember); err != nil {
			logger.Warn("remembered email not updated", "error", err)
		}
	}

	res := s.commit(gen, sessionState{
		phase:      SessionAuthenticated,
		user:       &principal,
		profile:    profile,
		adminStart: adminStart,
	}, nil)

	if res.Superseded {
		logger.Debug("sign in superseded by a newer call", "principal_id", principal.ID)
		if !verification.Privileged {
			s.releaseProviderSession(callCtx)
		}
		return supersededResult()
	}

	logger.Info("signed in", "principal_id", principal.ID, "role", principal.Role, "privileged", verification.Privileged)
	s.record(ctx, ActivityEventLoginSuccess, &principal, map[string]any{
		"privileged": verification.Privileged,
	})

	return res
}

// SignOut ends the session. Local state is cleared even when the provider
// call fails, in which case the failure is still reported.
func (s *SessionStore) SignOut(ctx context.Context, opts ...SignOutOption) Result {
	o := signOutOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	gen := s.begin(false)
	logger := s.logger.WithContext(ctx)
	previous := s.Snapshot().User

	callCtx, cancel := s.callContext(ctx)
	defer cancel()

	if err := s.meta.ClearAdminSessionStart(callCtx); err != nil {
		logger.Warn("admin session start not cleared", "error", err)
	}

	if o.forget {
		if err := s.meta.Forget(callCtx); err != nil {
			logger.Warn("remembered email not cleared", "error", err)
		}
	}

	var err error
	if s.provider != nil {
		if perr := s.provider.SignOut(callCtx); perr != nil {
			err = providerError(perr)
			logger.Error("provider sign out failed", "error", err)
		}
	}

	res := s.commitAnonymous(gen, err)
	if !res.Superseded {
		s.record(ctx, ActivityEventLogout, previous, nil)
	}

	return res
}

// UpdateProfile writes patch to the role indexed profile table and replaces
// the in memory profile with the stored record. On failure the profile is
// left unchanged.
func (s *SessionStore) UpdateProfile(ctx context.Context, patch ProfilePatch) Result {
	s.mu.Lock()
	gen := s.gen
	current := s.state.profile.Clone()
	user := s.state.user
	s.mu.Unlock()

	if current == nil {
		return failureResult(ErrNoProfile)
	}

	if s.writer == nil {
		return failureResult(withDetails(ErrProviderError, "profile updates are not configured", nil))
	}

	callCtx, cancel := s.callContext(ctx)
	defer cancel()

	updated, err := s.writer.UpdateProfile(callCtx, current, patch)
	if err != nil {
		s.logger.WithContext(ctx).Warn("profile update failed", "error", err)
		return failureResult(err)
	}

	s.mu.Lock()
	if gen != s.gen || s.state.profile == nil || s.state.profile.UserID() != current.UserID() {
		s.mu.Unlock()
		s.logger.WithContext(ctx).Debug("profile update superseded by a newer session")
		return supersededResult()
	}
	s.state.profile = updated
	snap := s.state.snapshot()
	listeners := s.listenersLocked()
	s.mu.Unlock()

	s.emit(snap, listeners)
	s.record(ctx, ActivityEventProfileUpdated, user, map[string]any{
		"fields": patch.Columns(),
	})

	return successResult()
}

// RememberedCredential returns the email to prefill the sign in form with.
func (s *SessionStore) RememberedCredential(ctx context.Context) (RememberedCredential, error) {
	return s.meta.Remembered(ctx)
}

func (s *SessionStore) begin(loading bool) uint64 {
	s.mu.Lock()
	s.gen++
	gen := s.gen

	changed := false
	if loading && !s.state.loading {
		s.state.loading = true
		changed = true
	}
	if s.state.err != nil {
		s.state.err = nil
		changed = true
	}

	var snap SessionSnapshot
	var listeners []func(SessionSnapshot)
	if changed {
		snap = s.state.snapshot()
		listeners = s.listenersLocked()
	}
	s.mu.Unlock()

	if changed {
		s.emit(snap, listeners)
	}

	return gen
}

func (s *SessionStore) commitAnonymous(gen uint64, err error) Result {
	return s.commit(gen, sessionState{phase: SessionAnonymous}, err)
}

// fail records err without touching the principal, an already signed in
// session survives a failed sign in attempt.
func (s *SessionStore) fail(gen uint64, err error) Result {
	s.mu.Lock()
	next := s.state
	s.mu.Unlock()

	if next.phase == SessionLoading {
		next = sessionState{phase: SessionAnonymous}
	}

	return s.commit(gen, next, err)
}

func (s *SessionStore) commit(gen uint64, next sessionState, err error) Result {
	res := successResult()
	if err != nil {
		res = failureResult(err)
	}

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		res.Superseded = true
		return res
	}

	if !CanTransition(s.state.phase, next.phase) {
		from := s.state.phase
		s.mu.Unlock()
		terr := invalidTransition(from, next.phase)
		s.logger.Error("rejected session transition", "from", from, "to", next.phase)
		return failureResult(terr)
	}

	next.loading = false
	next.err = err
	s.state = next
	s.committed = gen
	snap := s.state.snapshot()
	listeners := s.listenersLocked()
	s.mu.Unlock()

	s.emit(snap, listeners)
	return res
}

// releaseProviderSession signs the provider out after a sign in lost to a
// newer call, unless a newer call is still running or left someone signed in.
func (s *SessionStore) releaseProviderSession(ctx context.Context) {
	if s.provider == nil {
		return
	}

	s.mu.Lock()
	settled := s.committed == s.gen
	signedIn := s.state.phase == SessionAuthenticated
	s.mu.Unlock()

	if !settled || signedIn {
		return
	}

	if err := s.provider.SignOut(ctx); err != nil {
		s.logger.WithContext(ctx).Warn("provider sign out after superseded sign in failed", "error", err)
	}
}

func (s *SessionStore) listenersLocked() []func(SessionSnapshot) {
	out := make([]func(SessionSnapshot), 0, len(s.listeners))
	for _, fn := range s.listeners {
		out = append(out, fn)
	}
	return out
}

func (s *SessionStore) emit(snap SessionSnapshot, listeners []func(SessionSnapshot)) {
	for _, fn := range listeners {
		fn(snap)
	}
}

func (s *SessionStore) recordFailure(ctx context.Context, email string, cause error) {
	state, err := s.lockout.RecordFailure(ctx, email)
	if err != nil {
		s.logger.WithContext(ctx).Warn("failed attempt not recorded", "error", err)
	}

	meta := map[string]any{
		"email": email,
		"error": cause.Error(),
		"code":  ErrorCode(cause),
	}
	if state != nil {
		meta["attempts"] = state.Attempts()
		meta["blocked"] = state.Blocked()
	}
	s.record(ctx, ActivityEventLoginFailure, nil, meta)
}

func (s *SessionStore) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if s.timeout > 0 {
		return context.WithTimeout(ctx, s.timeout)
	}
	return context.WithCancel(ctx)
}

func (s *SessionStore) record(ctx context.Context, eventType ActivityEventType, p *Principal, metadata map[string]any) {
	event := ActivityEvent{
		EventType:  eventType,
		Actor:      actorFromPrincipal(p),
		Metadata:   metadata,
		OccurredAt: s.now(),
	}
	if p != nil {
		event.UserID = p.ID
		event.Role = p.Role
	}

	if err := s.activity.Record(ctx, event); err != nil {
		s.logger.WithContext(ctx).Warn("activity sink error", "event", eventType, "error", err)
	}
}
