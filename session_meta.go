package auth

import (
	"context"
	"strconv"
	"strings"
	"time"
)

// DefaultAdminSessionTTL is the display validity of a privileged session
const DefaultAdminSessionTTL = 24 * time.Hour

// SessionMetadata persists display only session data: the privileged session
// start timestamp and the opt in remembered email.
type SessionMetadata struct {
	storage Storage
	ttl     time.Duration
	now     Clock
}

// NewSessionMetadata returns metadata backed by storage. A non positive ttl
// falls back to DefaultAdminSessionTTL.
func NewSessionMetadata(storage Storage, ttl time.Duration, clock Clock) *SessionMetadata {
	if ttl <= 0 {
		ttl = DefaultAdminSessionTTL
	}
	if clock == nil {
		clock = time.Now
	}
	return &SessionMetadata{storage: storage, ttl: ttl, now: clock}
}

// TTL returns the configured privileged session validity
func (m *SessionMetadata) TTL() time.Duration { return m.ttl }

// MarkAdminSessionStart records now as the privileged session start.
func (m *SessionMetadata) MarkAdminSessionStart(ctx context.Context) (time.Time, error) {
	start := m.now()
	err := m.storage.Set(ctx, StorageKeyAdminSessionStart, strconv.FormatInt(start.UnixMilli(), 10))
	if err != nil {
		return time.Time{}, withDetails(ErrStorageUnavailable, "", map[string]any{"error": err.Error()})
	}
	return time.UnixMilli(start.UnixMilli()), nil
}

// AdminSessionStart returns the recorded start, ok is false when absent or malformed.
func (m *SessionMetadata) AdminSessionStart(ctx context.Context) (time.Time, bool, error) {
	raw, ok, err := m.storage.Get(ctx, StorageKeyAdminSessionStart)
	if err != nil {
		return time.Time{}, false, withDetails(ErrStorageUnavailable, "", map[string]any{"error": err.Error()})
	}
	if !ok {
		return time.Time{}, false, nil
	}

	millis, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, false, nil
	}
	return time.UnixMilli(millis), true, nil
}

// AdminSessionRemaining returns how long the privileged session stays valid
// for display. Zero when no session was recorded or it already elapsed.
func (m *SessionMetadata) AdminSessionRemaining(ctx context.Context) (time.Duration, error) {
	start, ok, err := m.AdminSessionStart(ctx)
	if err != nil || !ok {
		return 0, err
	}

	if left := start.Add(m.ttl).Sub(m.now()); left > 0 {
		return left, nil
	}
	return 0, nil
}

// ClearAdminSessionStart removes the privileged session start.
func (m *SessionMetadata) ClearAdminSessionStart(ctx context.Context) error {
	if err := m.storage.Delete(ctx, StorageKeyAdminSessionStart); err != nil {
		return withDetails(ErrStorageUnavailable, "", map[string]any{"error": err.Error()})
	}
	return nil
}

// Remember stores the email when remember is true, and forgets it otherwise.
func (m *SessionMetadata) Remember(ctx context.Context, email string, remember bool) error {
	if !remember {
		return m.Forget(ctx)
	}

	if err := m.storage.Set(ctx, StorageKeyRememberedEmail, strings.TrimSpace(email)); err != nil {
		return withDetails(ErrStorageUnavailable, "", map[string]any{"error": err.Error()})
	}
	if err := m.storage.Set(ctx, StorageKeyRememberMe, "true"); err != nil {
		return withDetails(ErrStorageUnavailable, "", map[string]any{"error": err.Error()})
	}
	return nil
}

// Forget clears the remembered credential.
func (m *SessionMetadata) Forget(ctx context.Context) error {
	if err := m.storage.Delete(ctx, StorageKeyRememberedEmail); err != nil {
		return withDetails(ErrStorageUnavailable, "", map[string]any{"error": err.Error()})
	}
	if err := m.storage.Delete(ctx, StorageKeyRememberMe); err != nil {
		return withDetails(ErrStorageUnavailable, "", map[string]any{"error": err.Error()})
	}
	return nil
}

// Remembered returns the remembered credential used to prefill the sign in form.
func (m *SessionMetadata) Remembered(ctx context.Context) (RememberedCredential, error) {
	flag, _, err := m.storage.Get(ctx, StorageKeyRememberMe)
	if err != nil {
		return RememberedCredential{}, withDetails(ErrStorageUnavailable, "", map[string]any{"error": err.Error()})
	}

	remember, _ := strconv.ParseBool(flag)
	if !remember {
		return RememberedCredential{}, nil
	}

	email, _, err := m.storage.Get(ctx, StorageKeyRememberedEmail)
	if err != nil {
		return RememberedCredential{}, withDetails(ErrStorageUnavailable, "", map[string]any{"error": err.Error()})
	}

	return RememberedCredential{Email: email, Remember: email != ""}, nil
}
