package domain

import "context"

// contextKey is a private type for context keys to avoid collisions
type contextKey string

const (
	actorIDKey        contextKey = "actor_id"
	organizationIDKey contextKey = "organization_id"
)

// WithActorID stores the acting user's ID in the context.
func WithActorID(ctx context.Context, actorID string) context.Context {
	return context.WithValue(ctx, actorIDKey, actorID)
}

// GetActorIDFromContext returns the acting user's ID, or "" if unset.
func GetActorIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(actorIDKey).(string); ok {
		return v
	}
	return ""
}

// WithOrganizationID stores the request's organization scope in the context.
func WithOrganizationID(ctx context.Context, organizationID string) context.Context {
	return context.WithValue(ctx, organizationIDKey, organizationID)
}

// GetOrganizationIDFromContext returns the organization scope, or "" if unset.
func GetOrganizationIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(organizationIDKey).(string); ok {
		return v
	}
	return ""
}
