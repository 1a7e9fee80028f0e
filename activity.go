package auth

import (
	"context"
	"time"
)

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventLoginSuccess     ActivityEventType = "auth.login.success"
	ActivityEventLoginFailure     ActivityEventType = "auth.login.failure"
	ActivityEventLoginBlocked     ActivityEventType = "auth.login.blocked"
	ActivityEventLockoutEngaged   ActivityEventType = "auth.lockout.engaged"
	ActivityEventLockoutReleased  ActivityEventType = "auth.lockout.released"
	ActivityEventLogout           ActivityEventType = "auth.logout"
	ActivityEventProfileUpdated   ActivityEventType = "auth.profile.updated"
	ActivityEventSessionRestored  ActivityEventType = "auth.session.restored"
	ActivityEventSessionDiscarded ActivityEventType = "auth.session.discarded"
)

// ActorRef identifies who/what triggered an event.
type ActorRef struct {
	ID   string
	Type string
}

// ActivityEvent captures audit-friendly information about an action.
type ActivityEvent struct {
	EventType  ActivityEventType
	Actor      ActorRef
	UserID     string
	Role       Role
	Metadata   map[string]any
	OccurredAt time.Time
}

// ActivitySink consumes activity events for auditing/telemetry purposes.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}

func actorFromPrincipal(p *Principal) ActorRef {
	if p == nil {
		return ActorRef{Type: "unknown"}
	}
	return ActorRef{ID: p.ID, Type: string(p.Role)}
}
