package auth

import (
	"context"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultMaxLoginAttempts is the number of failed attempts that engages the lockout
	DefaultMaxLoginAttempts = 5
	// DefaultBlockDuration is how long sign in stays blocked once engaged
	DefaultBlockDuration = 15 * time.Minute
)

// LockoutState is either LockoutOpen or LockoutBlocked.
type LockoutState interface {
	Attempts() int
	Blocked() bool
	lockoutState()
}

// LockoutOpen accepts sign in attempts.
type LockoutOpen struct {
	FailedAttempts int `json:"failed_attempts"`
}

func (s LockoutOpen) Attempts() int { return s.FailedAttempts }
func (LockoutOpen) Blocked() bool   { return false }
func (LockoutOpen) lockoutState()   {}

// LockoutBlocked rejects sign in attempts until Until.
type LockoutBlocked struct {
	FailedAttempts int       `json:"failed_attempts"`
	Until          time.Time `json:"until"`
}

func (s LockoutBlocked) Attempts() int { return s.FailedAttempts }
func (LockoutBlocked) Blocked() bool   { return true }
func (LockoutBlocked) lockoutState()   {}

// Remaining is the time left on the block, never negative.
func (s LockoutBlocked) Remaining(now time.Time) time.Duration {
	if d := s.Until.Sub(now); d > 0 {
		return d
	}
	return 0
}

// LockoutScope maps a sign in identifier to the storage scope of its counter.
type LockoutScope func(identifier string) string

// GlobalScope keeps a single counter for the whole client context.
func GlobalScope(string) string { return "" }

// PerIdentityScope keeps a counter per normalized email.
func PerIdentityScope(identifier string) string {
	return strings.ToLower(strings.TrimSpace(identifier))
}

// LockoutOption customizes a LockoutGuard
type LockoutOption func(*LockoutGuard)

// WithLockoutThreshold sets how many failures engage the lockout
func WithLockoutThreshold(n int) LockoutOption {
	return func(g *LockoutGuard) {
		if n > 0 {
			g.maxAttempts = n
		}
	}
}

// WithLockoutWindow sets the block duration
func WithLockoutWindow(d time.Duration) LockoutOption {
	return func(g *LockoutGuard) {
		if d > 0 {
			g.window = d
		}
	}
}

// WithLockoutScope sets how identifiers map to counters
func WithLockoutScope(scope LockoutScope) LockoutOption {
	return func(g *LockoutGuard) {
		if scope != nil {
			g.scope = scope
		}
	}
}

// WithLockoutClock injects a custom clock (useful for tests).
func WithLockoutClock(clock Clock) LockoutOption {
	return func(g *LockoutGuard) {
		if clock != nil {
			g.now = clock
		}
	}
}

// WithLockoutLogger overrides the guard logger
func WithLockoutLogger(logger Logger) LockoutOption {
	return func(g *LockoutGuard) {
		g.provider, g.logger = ResolveLogger("auth.lockout", nil, logger)
	}
}

// WithLockoutLoggerProvider overrides the logger provider
func WithLockoutLoggerProvider(provider LoggerProvider) LockoutOption {
	return func(g *LockoutGuard) {
		g.provider, g.logger = ResolveLogger("auth.lockout", provider, g.logger)
	}
}

// WithLockoutActivitySink publishes lockout engaged/released events
func WithLockoutActivitySink(sink ActivitySink) LockoutOption {
	return func(g *LockoutGuard) {
		g.activity = normalizeActivitySink(sink)
	}
}

// LockoutGuard tracks failed sign in attempts and enforces a temporary
// block. Durable storage is the source of truth, the guard re-reads it on
// every call so a fresh process can not bypass an active block.
type LockoutGuard struct {
	storage     Storage
	maxAttempts int
	window      time.Duration
	scope       LockoutScope
	now         Clock
	logger      Logger
	provider    LoggerProvider
	activity    ActivitySink

	mu       sync.Mutex
	watchers map[string]map[chan struct{}]struct{}
}

// NewLockoutGuard returns a guard persisting its state in storage.
func NewLockoutGuard(storage Storage, opts ...LockoutOption) *LockoutGuard {
	provider, logger := ResolveLogger("auth.lockout", nil, nil)
	g := &LockoutGuard{
		storage:     storage,
		maxAttempts: DefaultMaxLoginAttempts,
		window:      DefaultBlockDuration,
		scope:       GlobalScope,
		now:         time.Now,
		logger:      logger,
		provider:    provider,
		activity:    noopActivitySink{},
		watchers:    map[string]map[chan struct{}]struct{}{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}

	return g
}

// MaxAttempts returns the configured threshold
func (g *LockoutGuard) MaxAttempts() int { return g.maxAttempts }

// Window returns the configured block duration
func (g *LockoutGuard) Window() time.Duration { return g.window }

// State returns the current state for identifier, expiring a stale block.
func (g *LockoutGuard) State(ctx context.Context, identifier string) (LockoutState, error) {
	scope := g.scope(identifier)

	g.mu.Lock()
	state, released, err := g.refresh(ctx, scope)
	g.mu.Unlock()

	g.recordRelease(ctx, scope, released)
	return state, err
}

// Check returns ErrBlocked while the lockout is engaged.
func (g *LockoutGuard) Check(ctx context.Context, identifier string) error {
	state, err := g.State(ctx, identifier)
	if err != nil {
		return err
	}

	if blocked, ok := state.(LockoutBlocked); ok {
		return g.blockedError(blocked)
	}

	return nil
}

// RecordFailure counts a failed attempt and engages the block once the
// threshold is reached. Failures recorded while blocked are ignored.
func (g *LockoutGuard) RecordFailure(ctx context.Context, identifier string) (LockoutState, error) {
	scope := g.scope(identifier)

	g.mu.Lock()
	state, released, err := g.refresh(ctx, scope)
	counted := false
	if err == nil && !state.Blocked() {
		state, err = g.increment(ctx, scope, state.Attempts()+1)
		counted = err == nil
	}
	g.mu.Unlock()

	g.recordRelease(ctx, scope, released)
	if err != nil {
		return nil, err
	}

	if counted {
		g.recorded(ctx, scope, state)
	}
	return state, nil
}

// increment must be called with g.mu held. The block end is written before
// the counter so a failed write never leaves the threshold count unblocked.
func (g *LockoutGuard) increment(ctx context.Context, scope string, attempts int) (LockoutState, error) {
	attemptsKey, blockKey := g.keys(scope)

	if attempts < g.maxAttempts {
		if err := g.storage.Set(ctx, attemptsKey, strconv.Itoa(attempts)); err != nil {
			return nil, withDetails(ErrStorageUnavailable, "", map[string]any{"error": err.Error()})
		}
		return LockoutOpen{FailedAttempts: attempts}, nil
	}

	until := g.now().Add(g.window)
	if err := g.storage.Set(ctx, blockKey, strconv.FormatInt(until.UnixMilli(), 10)); err != nil {
		return nil, withDetails(ErrStorageUnavailable, "", map[string]any{"error": err.Error()})
	}

	if err := g.storage.Set(ctx, attemptsKey, strconv.Itoa(attempts)); err != nil {
		g.logger.Warn("login attempts not stored, block engaged", "scope", scope, "error", err)
	}

	return LockoutBlocked{FailedAttempts: attempts, Until: until}, nil
}

func (g *LockoutGuard) recorded(ctx context.Context, scope string, state LockoutState) {
	if blocked, ok := state.(LockoutBlocked); ok {
		g.logger.Warn("sign in lockout engaged", "scope", scope, "attempts", blocked.FailedAttempts, "until", blocked.Until)
		g.record(ctx, ActivityEventLockoutEngaged, scope, map[string]any{
			"attempts": blocked.FailedAttempts,
			"until":    blocked.Until,
		})
	} else {
		g.logger.Debug("failed sign in attempt recorded", "scope", scope, "attempts", state.Attempts())
	}

	g.notify(scope)
}

// Reset clears the counter and any block, used after a successful sign in.
func (g *LockoutGuard) Reset(ctx context.Context, identifier string) error {
	scope := g.scope(identifier)

	g.mu.Lock()
	err := g.clear(ctx, scope)
	g.mu.Unlock()

	if err != nil {
		return err
	}

	g.notify(scope)
	return nil
}

// Watch calls fn with the current state and again on every change, including
// the automatic release when a block expires. It returns when ctx is done.
func (g *LockoutGuard) Watch(ctx context.Context, identifier string, fn func(LockoutState)) {
	if fn == nil {
		return
	}

	scope := g.scope(identifier)
	changes := g.subscribe(scope)
	defer g.unsubscribe(scope, changes)

	last, err := g.State(ctx, identifier)
	if err != nil {
		g.logger.Error("lockout watch initial state", "error", err)
		last = LockoutOpen{}
	}
	fn(last)

	for {
		var expiry *time.Timer
		var expired <-chan time.Time
		if blocked, ok := last.(LockoutBlocked); ok {
			expiry = time.NewTimer(blocked.Remaining(g.now()))
			expired = expiry.C
		}

		select {
		case <-ctx.Done():
			if expiry != nil {
				expiry.Stop()
			}
			return
		case <-changes:
		case <-expired:
		}

		if expiry != nil {
			expiry.Stop()
		}

		state, err := g.State(ctx, identifier)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			g.logger.Error("lockout watch refresh", "error", err)
			continue
		}

		fn(state)
		last = state
	}
}

// refresh must be called with g.mu held. The returned time is the end of a
// block that expired and was cleared by this call, zero otherwise.
func (g *LockoutGuard) refresh(ctx context.Context, scope string) (LockoutState, time.Time, error) {
	attemptsKey, blockKey := g.keys(scope)

	rawAttempts, _, err := g.storage.Get(ctx, attemptsKey)
	if err != nil {
		return nil, time.Time{}, withDetails(ErrStorageUnavailable, "", map[string]any{"error": err.Error()})
	}

	rawBlock, hasBlock, err := g.storage.Get(ctx, blockKey)
	if err != nil {
		return nil, time.Time{}, withDetails(ErrStorageUnavailable, "", map[string]any{"error": err.Error()})
	}

	attempts := 0
	if rawAttempts != "" {
		if n, err := strconv.Atoi(rawAttempts); err == nil && n > 0 {
			attempts = n
		} else if err != nil {
			g.logger.Warn("ignoring malformed login attempts value", "value", rawAttempts)
		}
	}

	if !hasBlock {
		return LockoutOpen{FailedAttempts: attempts}, time.Time{}, nil
	}

	millis, err := strconv.ParseInt(rawBlock, 10, 64)
	if err != nil {
		g.logger.Warn("ignoring malformed login block end", "value", rawBlock)
		if err := g.clear(ctx, scope); err != nil {
			return nil, time.Time{}, err
		}
		return LockoutOpen{}, time.Time{}, nil
	}

	until := time.UnixMilli(millis)
	if g.now().Before(until) {
		return LockoutBlocked{FailedAttempts: attempts, Until: until}, time.Time{}, nil
	}

	if err := g.clear(ctx, scope); err != nil {
		return nil, time.Time{}, err
	}

	return LockoutOpen{}, until, nil
}

func (g *LockoutGuard) recordRelease(ctx context.Context, scope string, until time.Time) {
	if until.IsZero() {
		return
	}
	g.logger.Info("sign in lockout released", "scope", scope)
	g.record(ctx, ActivityEventLockoutReleased, scope, map[string]any{"until": until})
}

func (g *LockoutGuard) clear(ctx context.Context, scope string) error {
	attemptsKey, blockKey := g.keys(scope)
	if err := g.storage.Delete(ctx, attemptsKey); err != nil {
		return withDetails(ErrStorageUnavailable, "", map[string]any{"error": err.Error()})
	}
	if err := g.storage.Delete(ctx, blockKey); err != nil {
		return withDetails(ErrStorageUnavailable, "", map[string]any{"error": err.Error()})
	}
	return nil
}

func (g *LockoutGuard) keys(scope string) (string, string) {
	if scope == "" {
		return StorageKeyLoginAttempts, StorageKeyLoginBlockEnd
	}
	return StorageKeyLoginAttempts + ":" + scope, StorageKeyLoginBlockEnd + ":" + scope
}

func (g *LockoutGuard) blockedError(state LockoutBlocked) error {
	remaining := state.Remaining(g.now())
	return withDetails(ErrBlocked, "", map[string]any{
		"until":             state.Until,
		"remaining_seconds": int(math.Ceil(remaining.Seconds())),
	})
}

func (g *LockoutGuard) subscribe(scope string) chan struct{} {
	ch := make(chan struct{}, 1)
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.watchers[scope] == nil {
		g.watchers[scope] = map[chan struct{}]struct{}{}
	}
	g.watchers[scope][ch] = struct{}{}
	return ch
}

func (g *LockoutGuard) unsubscribe(scope string, ch chan struct{}) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.watchers[scope], ch)
	if len(g.watchers[scope]) == 0 {
		delete(g.watchers, scope)
	}
}

func (g *LockoutGuard) notify(scope string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for ch := range g.watchers[scope] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (g *LockoutGuard) record(ctx context.Context, eventType ActivityEventType, scope string, metadata map[string]any) {
	if metadata == nil {
		metadata = map[string]any{}
	}
	if scope != "" {
		metadata["scope"] = scope
	}

	event := ActivityEvent{
		EventType:  eventType,
		Actor:      ActorRef{Type: "system"},
		Metadata:   metadata,
		OccurredAt: g.now(),
	}

	if err := normalizeActivitySink(g.activity).Record(ctx, event); err != nil {
		g.logger.Warn("lockout activity sink error", "error", err)
	}
}
