// Package identity models the caller on whose behalf an operation runs
// and the credentials the transport accepts. The server endpoint derives
// the principal from its own authenticated session; client-asserted
// identity in an envelope is never trusted.
package identity

import "context"

// Principal is the authenticated caller. It is read fresh from the
// execution context on every authorization pass — identity and roles may
// change between calls within one session, so nothing caches it.
type Principal struct {
	ID       string   `json:"id"`
	TenantID string   `json:"tenant_id,omitempty"`
	Roles    []string `json:"roles,omitempty"`
}

// IsZero reports an unauthenticated caller.
func (p Principal) IsZero() bool { return p.ID == "" }

// HasRole reports whether the principal carries the given role.
func (p Principal) HasRole(role string) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

type ctxKey int

const (
	principalKey ctxKey = iota
	sessionKey
)

// WithPrincipal attaches the principal to the context.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// FromContext reads the principal for the current call. The zero
// principal means the caller is unauthenticated.
func FromContext(ctx context.Context) Principal {
	if p, ok := ctx.Value(principalKey).(Principal); ok {
		return p
	}
	return Principal{}
}

// WithSessionID attaches the authenticated session identifier (the token
// JTI) so the endpoint can revoke the session on a forbidden fault.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionKey, id)
}

// SessionIDFromContext reads the session identifier, if any.
func SessionIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(sessionKey).(string); ok {
		return id
	}
	return ""
}
