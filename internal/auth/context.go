package auth

import (
	"context"
)

// Identity is the authenticated customer attached to a request.
type Identity struct {
	CustomerID string
	Email      string
	Role       string
}

type ctxKey struct{}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// IdentityFrom returns the identity set by RequireAccessToken.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	if !ok || id.CustomerID == "" {
		return Identity{}, false
	}
	return id, true
}
