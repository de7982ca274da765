package tracing

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ContextKey is the type for context keys
type ContextKey string

const (
	// TraceIDKey is the context key for trace ID
	TraceIDKey ContextKey = "trace_id"
	// RequestIDKey is the context key for the HTTP request ID
	RequestIDKey ContextKey = "request_id"
	// CrewIDKey is the context key for the crew being executed
	CrewIDKey ContextKey = "crew_id"
	// ProfileIDKey is the context key for the authenticated profile
	ProfileIDKey ContextKey = "profile_id"
)

// TraceContext holds tracing information
type TraceContext struct {
	TraceID   string
	RequestID string
	CrewID    string
	ProfileID string
}

// NewTraceID generates a new trace ID
func NewTraceID() string {
	return uuid.New().String()
}

// WithTraceID adds a trace ID to the context
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithCrewID adds a crew ID to the context
func WithCrewID(ctx context.Context, crewID string) context.Context {
	return context.WithValue(ctx, CrewIDKey, crewID)
}

// WithProfileID adds a profile ID to the context
func WithProfileID(ctx context.Context, profileID string) context.Context {
	return context.WithValue(ctx, ProfileIDKey, profileID)
}

func value(ctx context.Context, key ContextKey) string {
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

// GetTraceID retrieves the trace ID from the context
func GetTraceID(ctx context.Context) string { return value(ctx, TraceIDKey) }

// GetRequestID retrieves the request ID from the context
func GetRequestID(ctx context.Context) string { return value(ctx, RequestIDKey) }

// GetCrewID retrieves the crew ID from the context
func GetCrewID(ctx context.Context) string { return value(ctx, CrewIDKey) }

// GetProfileID retrieves the profile ID from the context
func GetProfileID(ctx context.Context) string { return value(ctx, ProfileIDKey) }

// FromContext extracts all tracing information from the context
func FromContext(ctx context.Context) *TraceContext {
	return &TraceContext{
		TraceID:   GetTraceID(ctx),
		RequestID: GetRequestID(ctx),
		CrewID:    GetCrewID(ctx),
		ProfileID: GetProfileID(ctx),
	}
}

// Detach returns a background context carrying the same tracing values, for
// work that must outlive the request that started it.
func Detach(ctx context.Context) context.Context {
	tc := FromContext(ctx)
	out := context.Background()
	if tc.TraceID != "" {
		out = WithTraceID(out, tc.TraceID)
	}
	if tc.RequestID != "" {
		out = WithRequestID(out, tc.RequestID)
	}
	if tc.CrewID != "" {
		out = WithCrewID(out, tc.CrewID)
	}
	if tc.ProfileID != "" {
		out = WithProfileID(out, tc.ProfileID)
	}
	return out
}

// LoggerFromContext adds tracing fields present in ctx to logger
func LoggerFromContext(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	tc := FromContext(ctx)
	lc := logger.With()

	if tc.TraceID != "" {
		lc = lc.Str("trace_id", tc.TraceID)
	}
	if tc.RequestID != "" {
		lc = lc.Str("request_id", tc.RequestID)
	}
	if tc.CrewID != "" {
		lc = lc.Str("crew_id", tc.CrewID)
	}
	if tc.ProfileID != "" {
		lc = lc.Str("profile_id", tc.ProfileID)
	}

	return lc.Logger()
}
