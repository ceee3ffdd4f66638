package shared

import (
	"context"

	"github.com/haven-community/haven/internal/access"
)

type sessionContextKey struct{}
type principalContextKey struct{}

// ContextWithSession stores the session in context.
func ContextWithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, sess)
}

// SessionFromContext extracts the session from context.
func SessionFromContext(ctx context.Context) *Session {
	sess, _ := ctx.Value(sessionContextKey{}).(*Session)
	return sess
}

// ContextWithPrincipal stores the decoded principal in context. The
// principal is decoded exactly once, at the authentication boundary.
func ContextWithPrincipal(ctx context.Context, p *access.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext extracts the principal from context. A nil result
// means the request is unauthenticated.
func PrincipalFromContext(ctx context.Context) *access.Principal {
	p, _ := ctx.Value(principalContextKey{}).(*access.Principal)
	return p
}
