// Package ctxutil provides shared context key accessors.
//
// server imports mcp to mount the MCP transport, and mcp reads the claims
// that server's auth middleware stores. Both packages import ctxutil instead
// of each other.
package ctxutil

import (
	"context"

	"github.com/ashita-ai/jobwatch/internal/auth"
)

type contextKey string

const (
	keyClaims    contextKey = "claims"
	keyRequestID contextKey = "request_id"
)

// WithClaims returns a new context carrying the given claims.
func WithClaims(ctx context.Context, claims *auth.Claims) context.Context {
	return context.WithValue(ctx, keyClaims, claims)
}

// ClaimsFromContext extracts the JWT claims from the context.
func ClaimsFromContext(ctx context.Context) *auth.Claims {
	if v, ok := ctx.Value(keyClaims).(*auth.Claims); ok {
		return v
	}
	return nil
}

// UserIDFromContext returns the authenticated user, or fallback when the
// context carries no claims (CLI and scheduler callers).
func UserIDFromContext(ctx context.Context, fallback string) string {
	if c := ClaimsFromContext(ctx); c != nil && c.UserID != "" {
		return c.UserID
	}
	return fallback
}

// WithRequestID returns a new context carrying the request ID.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, keyRequestID, id)
}

// RequestIDFromContext extracts the request ID from the context.
func RequestIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(keyRequestID).(string); ok {
		return v
	}
	return ""
}
