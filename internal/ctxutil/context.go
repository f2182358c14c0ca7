// Package ctxutil provides type-safe context value management.
// Uses private key types to prevent collisions.
package ctxutil

import (
	"context"
)

type contextKey string

const (
	userIDKey      contextKey = "ctxutil.userID"
	botIDKey       contextKey = "ctxutil.botID"
	connectorIDKey contextKey = "ctxutil.connectorID"
	requestIDKey   contextKey = "ctxutil.requestID"
)

func getString(ctx context.Context, key contextKey) string {
	if v := ctx.Value(key); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// WithUserID adds the end-user (player) id to the context.
// It is used for rate limiting and dialog lookup.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// GetUserID retrieves the user ID from the context.
// Returns the user ID if found, empty string otherwise.
func GetUserID(ctx context.Context) string {
	return getString(ctx, userIDKey)
}

// MustGetUserID retrieves the user ID from the context.
// Panics if the user ID is not found.
func MustGetUserID(ctx context.Context) string {
	userID := GetUserID(ctx)
	if userID == "" {
		panic("ctxutil: userID not found")
	}
	return userID
}

// WithBotID adds the bot id handling the request.
func WithBotID(ctx context.Context, botID string) context.Context {
	return context.WithValue(ctx, botIDKey, botID)
}

// GetBotID retrieves the bot id, or empty string.
func GetBotID(ctx context.Context) string {
	return getString(ctx, botIDKey)
}

// WithConnectorID adds the connector (application) id that received the event.
func WithConnectorID(ctx context.Context, connectorID string) context.Context {
	return context.WithValue(ctx, connectorIDKey, connectorID)
}

// GetConnectorID retrieves the connector id, or empty string.
func GetConnectorID(ctx context.Context) string {
	return getString(ctx, connectorIDKey)
}

// WithRequestID adds a request ID to the context for tracing.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// GetRequestID retrieves the request ID from the context.
// Returns the request ID and true if found, empty string and false otherwise.
func GetRequestID(ctx context.Context) (string, bool) {
	requestID, ok := ctx.Value(requestIDKey).(string)
	return requestID, ok
}

// PreserveTracing creates a detached context that preserves tracing values.
// The new context is independent of the parent's cancellation and deadlines.
//
// Use for async work that must outlive the parent, such as webhook events
// processed after the HTTP response was sent.
func PreserveTracing(ctx context.Context) context.Context {
	newCtx := context.Background()

	if userID := GetUserID(ctx); userID != "" {
		newCtx = WithUserID(newCtx, userID)
	}
	if botID := GetBotID(ctx); botID != "" {
		newCtx = WithBotID(newCtx, botID)
	}
	if connectorID := GetConnectorID(ctx); connectorID != "" {
		newCtx = WithConnectorID(newCtx, connectorID)
	}
	if requestID, ok := GetRequestID(ctx); ok && requestID != "" {
		newCtx = WithRequestID(newCtx, requestID)
	}

	return newCtx
}
