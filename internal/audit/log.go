// Package audit records security-relevant events (registrations, logins,
// refreshes, logouts and admin actions) as structured log entries.
package audit

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"fitapp.dev/internal/auth"
	"fitapp.dev/internal/obs"
)

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// WithRequestID attaches the request identifier to the context for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext extracts the request id from context if present.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// LogEvent writes an audit entry enriched with the request id and, when the
// request is authenticated, the acting username.
func LogEvent(ctx context.Context, event string, fields ...zap.Field) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}
	entry := make([]zap.Field, 0, len(fields)+4)
	entry = append(entry, zap.String("type", "audit"), zap.String("event", event))
	if rid := RequestIDFromContext(ctx); rid != "" {
		entry = append(entry, zap.String("request_id", rid))
	}
	if actor, ok := auth.UsernameFromContext(ctx); ok {
		entry = append(entry, zap.String("actor", actor))
	}
	entry = append(entry, fields...)
	obs.Logger().Named("audit").Info(event, entry...)
	return nil
}

// Result logs event with the outcome derived from err.
func Result(ctx context.Context, event string, err error, fields ...zap.Field) {
	fields = append(fields, zap.String("outcome", auth.Outcome(err)))
	_ = LogEvent(ctx, event, fields...)
}
