package models

import "context"

type callerContextKey struct{}

// Caller is the authenticated identity attached to a request by the
// transport layer. Every operation acts on behalf of the caller.
type Caller struct {
	UserId    string
	Anonymous bool
}

// WithCaller attaches the caller identity to a context.
func WithCaller(ctx context.Context, c *Caller) context.Context {
	return context.WithValue(ctx, callerContextKey{}, c)
}

// GetCaller retrieves the caller identity from context, or nil if absent.
func GetCaller(ctx context.Context) *Caller {
	c, _ := ctx.Value(callerContextKey{}).(*Caller)
	return c
}
