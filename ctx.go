package auth

import (
	"context"
)

var principalCtxKey = &contextKey{"principal"}
var snapshotCtxKey = &contextKey{"session"}

type contextKey struct {
	name string
}

// WithPrincipal sets the Principal in the given context
func WithPrincipal(ctx context.Context, principal *Principal) context.Context {
	return context.WithValue(ctx, principalCtxKey, principal)
}

// PrincipalFromContext finds the principal from the context.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	raw, ok := ctx.Value(principalCtxKey).(*Principal)
	return raw, ok && raw != nil
}

// WithSnapshot stores the session snapshot, and its principal when
// authenticated, in the given context.
func WithSnapshot(ctx context.Context, snap SessionSnapshot) context.Context {
	ctx = context.WithValue(ctx, snapshotCtxKey, snap)
	if snap.Authenticated() {
		principal := *snap.User
		principal.Role = snap.Role()
		ctx = WithPrincipal(ctx, &principal)
	}
	return ctx
}

// SnapshotFromContext extracts the session snapshot from the context
func SnapshotFromContext(ctx context.Context) (SessionSnapshot, bool) {
	raw, ok := ctx.Value(snapshotCtxKey).(SessionSnapshot)
	return raw, ok
}

// Can reports whether the principal in ctx satisfies the required role.
// An empty requirement only needs a signed in principal.
func Can(ctx context.Context, required Role) bool {
	principal, ok := PrincipalFromContext(ctx)
	if !ok {
		return false
	}
	return principal.Role.Satisfies(required)
}
