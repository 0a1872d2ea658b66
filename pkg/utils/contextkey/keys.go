package contextkey

import "context"

// key is a private type to avoid context key collisions across packages.
type key string

const (
	TraceID   key = "trace_id"
	RequestID key = "request_id"
	UserID    key = "user_id"
	UserRole  key = "user_role"
	AttemptID key = "attempt_id"
)

// WithValue attaches a value under one of the package keys.
func WithValue(ctx context.Context, k key, v string) context.Context {
	return context.WithValue(ctx, k, v)
}

// Value reads a string value stored under one of the package keys.
func Value(ctx context.Context, k key) string {
	if s, ok := ctx.Value(k).(string); ok {
		return s
	}
	return ""
}
