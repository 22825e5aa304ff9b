// Package contextkeys provides centralized context key definitions.
//
// All context keys used across the application are defined here to prevent
// typos and make key usage discoverable.
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// UserKey contains the authenticated *auth.User
	// Set by: middleware.AuthMiddleware (pkg/middleware/auth.go)
	// Required by: all protected endpoints
	UserKey Key = "auth_user"

	// RequestIDKey contains the request ID string (UUID)
	// Set by: middleware.RequestID
	// Used by: logger, error responses
	RequestIDKey Key = "request_id"

	// LoggerKey contains *observability.Logger
	// Set by: observability middleware
	LoggerKey Key = "logger"
)

// WithUser adds the authenticated user to the context
func WithUser(ctx context.Context, user interface{}) context.Context {
	return context.WithValue(ctx, UserKey, user)
}

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID retrieves the request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}
