package auth

import "context"

type identityContextKey struct{}

// WithIdentity returns a copy of ctx carrying the resolved identity
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// FromContext returns the identity resolved for the request, if any
func FromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(identityContextKey{}).(*Identity)
	return id, ok && id != nil
}
