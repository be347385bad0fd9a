package logging

import (
	"context"

	"go.uber.org/zap"
)

// Context key types
type runCtxKey struct{}
type userCtxKey struct{}
type intentCtxKey struct{}

// WithRunID attaches a workflow run identifier to the context.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runCtxKey{}, runID)
}

// RunIDFromContext returns the run ID, or "" if absent.
func RunIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(runCtxKey{}).(string); ok {
		return v
	}
	return ""
}

// WithUserID attaches the conversation owner to the context.
func WithUserID(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, userCtxKey{}, userID)
}

// UserIDFromContext returns the user ID, or 0 if absent.
func UserIDFromContext(ctx context.Context) int64 {
	if v, ok := ctx.Value(userCtxKey{}).(int64); ok {
		return v
	}
	return 0
}

// WithIntent attaches the classified intent label to the context.
func WithIntent(ctx context.Context, label string) context.Context {
	return context.WithValue(ctx, intentCtxKey{}, label)
}

// IntentFromContext returns the intent label, or "" if absent.
func IntentFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(intentCtxKey{}).(string); ok {
		return v
	}
	return ""
}

// ContextFields extracts correlation data from context.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 4)

	if runID := RunIDFromContext(ctx); runID != "" {
		fields = append(fields, zap.String("run.id", runID))
	}
	if userID := UserIDFromContext(ctx); userID != 0 {
		fields = append(fields, zap.Int64("user.id", userID))
	}
	if label := IntentFromContext(ctx); label != "" {
		fields = append(fields, zap.String("intent", label))
	}

	return fields
}
