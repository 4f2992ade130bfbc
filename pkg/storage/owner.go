package storage

import "context"

type ownerKey struct{}

// SetOwner injects the owning subject into the context. The auth
// middleware calls it with the authenticated identity.
func SetOwner(ctx context.Context, owner string) context.Context {
	return context.WithValue(ctx, ownerKey{}, owner)
}

// GetOwner extracts the owner from the context. An empty string means
// no owner (single-user mode): every session is visible.
func GetOwner(ctx context.Context) string {
	if v, ok := ctx.Value(ownerKey{}).(string); ok {
		return v
	}
	return ""
}

// Visible reports whether a session owned by owner may be seen from ctx.
func Visible(ctx context.Context, owner string) bool {
	caller := GetOwner(ctx)
	return caller == "" || caller == owner
}
