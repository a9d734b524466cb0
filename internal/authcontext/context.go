package authcontext

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

// Principal is the authenticated caller resolved from a session cookie.
type Principal struct {
	UserID    snowflake.ID
	SessionID snowflake.ID
	Email     string
}

type principalKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the principal, if the request is authenticated.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	if ctx == nil {
		return Principal{}, false
	}
	p, ok := ctx.Value(principalKey{}).(Principal)
	if !ok || p.UserID == 0 {
		return Principal{}, false
	}
	return p, true
}
