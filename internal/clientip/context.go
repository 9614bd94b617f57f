package clientip

import (
	"context"
)

// clientIPKey is an unexported context key for passing the resolved client identity through layers.
//
// The gin Middleware resolves the client once per request and attaches it using WithClientIP.
type clientIPKey struct{}

func WithClientIP(ctx context.Context, ip string) context.Context {
	if ip == "" {
		return ctx
	}
	return context.WithValue(ctx, clientIPKey{}, ip)
}

// FromContext returns the resolved client, or Unknown when none was attached.
func FromContext(ctx context.Context) string {
	v := ctx.Value(clientIPKey{})
	if s, ok := v.(string); ok && s != "" {
		return s
	}
	return Unknown
}
