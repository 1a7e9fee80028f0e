package auth

import (
	"time"
)

// SessionPhase is the committed identity state of a SessionStore.
type SessionPhase string

const (
	// SessionLoading is the initial phase, before the first result commits
	SessionLoading SessionPhase = "loading"
	// SessionAnonymous has no principal
	SessionAnonymous SessionPhase = "anonymous"
	// SessionAuthenticated has a principal and, once resolved, a profile
	SessionAuthenticated SessionPhase = "authenticated"
)

var sessionTransitions = map[SessionPhase]map[SessionPhase]struct{}{
	SessionLoading: {
		SessionAnonymous:     {},
		SessionAuthenticated: {},
	},
	SessionAnonymous: {
		SessionAnonymous:     {},
		SessionAuthenticated: {},
	},
	SessionAuthenticated: {
		SessionAnonymous:     {},
		SessionAuthenticated: {},
	},
}

// CanTransition reports whether a session may move from one phase to another.
// Nothing moves back to loading.
func CanTransition(from, to SessionPhase) bool {
	targets, ok := sessionTransitions[from]
	if !ok {
		return false
	}
	_, ok = targets[to]
	return ok
}

func invalidTransition(from, to SessionPhase) error {
	return withDetails(ErrInvalidSessionTransition, "", map[string]any{
		"from": from,
		"to":   to,
	})
}

// SessionSnapshot is an immutable view of the session for UI consumers and
// the route guard.
type SessionSnapshot struct {
	Phase   SessionPhase `json:"phase"`
	User    *Principal   `json:"user,omitempty"`
	Profile *Profile     `json:"profile,omitempty"`
	// Loading is true while the initial restore, or a newer restore, is in flight.
	Loading           bool       `json:"loading"`
	Error             string     `json:"error,omitempty"`
	Err               error      `json:"-"`
	AdminSessionStart *time.Time `json:"admin_session_start,omitempty"`
}

// Authenticated reports whether a principal is present.
func (s SessionSnapshot) Authenticated() bool {
	return s.Phase == SessionAuthenticated && s.User != nil
}

// Role prefers the profile role tag, falling back to the principal.
func (s SessionSnapshot) Role() Role {
	if s.Profile != nil {
		return s.Profile.Role
	}
	if s.User != nil {
		return s.User.Role
	}
	return ""
}

type sessionState struct {
	phase      SessionPhase
	user       *Principal
	profile    *Profile
	loading    bool
	err        error
	adminStart *time.Time
}

func (s sessionState) snapshot() SessionSnapshot {
	snap := SessionSnapshot{
		Phase:   s.phase,
		Profile: s.profile.Clone(),
		Loading: s.loading,
		Err:     s.err,
	}
	if s.user != nil {
		u := *s.user
		snap.User = &u
	}
	if s.err != nil {
		snap.Error = s.err.Error()
	}
	if s.adminStart != nil {
		t := *s.adminStart
		snap.AdminSessionStart = &t
	}
	return snap
}
