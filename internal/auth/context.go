package auth

import "context"

// Identity is the per-request authenticated user, threaded through handlers
// as an explicit context value rather than ambient request mutation.
type Identity struct {
	User  *User
	Roles []string
}

// HasRole reports whether the identity carries the named role grant.
func (id Identity) HasRole(role string) bool {
	for _, r := range id.Roles {
		if r == role {
			return true
		}
	}
	return false
}

type identityContextKey struct{}

// ContextWithIdentity attaches the authenticated identity to the context.
func ContextWithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, &id)
}

// IdentityFromContext extracts the authenticated identity, if any.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	if ctx == nil {
		return Identity{}, false
	}
	v, ok := ctx.Value(identityContextKey{}).(*Identity)
	if !ok || v == nil || v.User == nil {
		return Identity{}, false
	}
	return *v, true
}
