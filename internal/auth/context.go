package auth

import "context"

type identityContextKey struct{}

// ContextWithIdentity attaches the verified identity to the context.
func ContextWithIdentity(ctx context.Context, id Identity) context.Context {
	id.Roles = NewRoles(id.Roles...)
	return context.WithValue(ctx, identityContextKey{}, &id)
}

// IdentityFromContext extracts the verified identity from the context.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	if ctx == nil {
		return Identity{}, false
	}
	v, ok := ctx.Value(identityContextKey{}).(*Identity)
	if !ok || v == nil || v.Username == "" {
		return Identity{}, false
	}
	out := *v
	out.Roles = append(Roles(nil), v.Roles...)
	return out, true
}

// UsernameFromContext returns the authenticated username, if any.
func UsernameFromContext(ctx context.Context) (string, bool) {
	id, ok := IdentityFromContext(ctx)
	if !ok {
		return "", false
	}
	return id.Username, true
}

// RolesFromContext returns the roles of the authenticated caller.
func RolesFromContext(ctx context.Context) Roles {
	id, ok := IdentityFromContext(ctx)
	if !ok {
		return nil
	}
	return id.Roles
}
