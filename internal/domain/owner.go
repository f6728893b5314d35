package domain

import "context"

type ctxKey string

const ownerCtxKey ctxKey = "owner_id"

// ContextWithOwner returns a new context carrying the caller's owner ID.
// The identity itself is resolved by the (external) auth collaborator;
// the core uses it purely as a visibility and quota key.
func ContextWithOwner(ctx context.Context, ownerID string) context.Context {
	return context.WithValue(ctx, ownerCtxKey, ownerID)
}

// OwnerFromContext extracts the owner ID from the context.
// Returns empty string if not set.
func OwnerFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ownerCtxKey).(string); ok {
		return v
	}
	return ""
}
