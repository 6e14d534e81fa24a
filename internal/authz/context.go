package authz

import "context"

// Identity is the caller established by the HTTP layer: either a session
// user or a bearer key acting for its organization.
type Identity struct {
	UserID         string
	OrganizationID string
	// Key is set when the caller authenticated with an API key; its scopes
	// are the caller's entire authority.
	Key *APIKey
}

// IsAPIKey reports whether the caller is a bearer key rather than a session.
func (id Identity) IsAPIKey() bool {
	return id.Key != nil
}

type identityContextKey struct{}

// ContextWithIdentity attaches the authenticated caller to the context.
func ContextWithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, &id)
}

// IdentityFromContext extracts the authenticated caller from the context.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	if ctx == nil {
		return Identity{}, false
	}
	v, ok := ctx.Value(identityContextKey{}).(*Identity)
	if !ok || v == nil {
		return Identity{}, false
	}
	return *v, true
}
