// Package logger provides structured logging infrastructure for the application.
// This is part of the platform layer and contains no business logic.
package logger

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

// Context key types for storing values in context
type contextKey string

const (
	// RequestIDKey is the context key for request ID
	RequestIDKey contextKey = "request_id"
	// CampaignIDKey is the context key for the campaign being processed
	CampaignIDKey contextKey = "campaign_id"
)

// Logger wraps slog.Logger for structured logging
type Logger struct {
	*slog.Logger
}

// New creates a new logger based on environment
func New(env string) *Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}

	if strings.EqualFold(env, "development") {
		opts.Level = slog.LevelDebug
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithContext returns a logger with context values extracted.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	if ctx == nil {
		return l
	}

	newLogger := l

	if requestID, ok := ctx.Value(RequestIDKey).(string); ok && requestID != "" {
		newLogger = &Logger{Logger: newLogger.With(slog.String("request_id", requestID))}
	}

	if campaignID, ok := ctx.Value(CampaignIDKey).(string); ok && campaignID != "" {
		newLogger = &Logger{Logger: newLogger.With(slog.String("campaign_id", campaignID))}
	}

	return newLogger
}

// WithCampaign returns a logger scoped to a campaign.
func (l *Logger) WithCampaign(campaignID string) *Logger {
	return &Logger{
		Logger: l.With(slog.String("campaign_id", campaignID)),
	}
}

// HTTPRequest logs an HTTP request
func (l *Logger) HTTPRequest(method, path string, status int, latencyMs float64, clientIP string) {
	l.Info("http_request",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", status),
		slog.Float64("latency_ms", latencyMs),
		slog.String("client_ip", clientIP),
	)
}

// Assignment logs a lead assignment event.
func (l *Logger) Assignment(leadID, agentID, method string) {
	l.Info("lead_assigned",
		slog.String("lead_id", leadID),
		slog.String("agent_id", agentID),
		slog.String("method", method),
	)
}

// DispatchBatch logs the outcome of one dispatch batch.
func (l *Logger) DispatchBatch(campaignID string, claimed, sent, failed int) {
	l.Info("dispatch_batch",
		slog.String("campaign_id", campaignID),
		slog.Int("claimed", claimed),
		slog.Int("sent", sent),
		slog.Int("failed", failed),
	)
}

// WebhookEvent logs a processed provider callback.
func (l *Logger) WebhookEvent(eventType, providerMessageID, result string) {
	l.Info("webhook_event",
		slog.String("event_type", eventType),
		slog.String("provider_message_id", providerMessageID),
		slog.String("result", result),
	)
}

// DatabaseError logs database errors
func (l *Logger) DatabaseError(operation string, err error) {
	l.Error("database_error",
		slog.String("operation", operation),
		slog.String("error", err.Error()),
	)
}

// RateLimitExceeded logs rate limit events
func (l *Logger) RateLimitExceeded(clientIP, path string) {
	l.Warn("rate_limit_exceeded",
		slog.String("client_ip", clientIP),
		slog.String("path", path),
	)
}
