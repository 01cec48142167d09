package audit

import (
	"context"
	"log/slog"
	"time"
)

type Logger struct {
	logger *slog.Logger
}

func NewLogger(logger *slog.Logger) *Logger {
	return &Logger{logger: logger}
}

func (al *Logger) LogAction(ctx context.Context, tenantID, userID, action, resource, resourceID, status, details string) {
	requestID := ""
	if reqID := ctx.Value("request_id"); reqID != nil {
		requestID = reqID.(string)
	}

	al.logger.Info("audit",
		slog.String("action", action),
		slog.String("resource", resource),
		slog.String("resource_id", resourceID),
		slog.String("tenant_id", tenantID),
		slog.String("user_id", userID),
		slog.String("status", status),
		slog.String("details", details),
		slog.String("request_id", requestID),
		slog.Time("timestamp", time.Now()),
	)
}

// LogRequest records a mutating HTTP request before dispatch.
func (al *Logger) LogRequest(ctx context.Context, userID, method, path string) {
	al.LogAction(ctx, "", userID, method, "http", path, "initiated", "")
}

func (al *Logger) LogCallCreated(ctx context.Context, tenantID, userID, callID, callNumber string) {
	al.LogAction(ctx, tenantID, userID, "create", "call", callID, "created", callNumber)
}

func (al *Logger) LogStatusChange(ctx context.Context, tenantID, userID, callID, from, to string) {
	al.LogAction(ctx, tenantID, userID, "status_change", "call", callID, to, "from="+from)
}

func (al *Logger) LogClaim(ctx context.Context, tenantID, userID, callID, status string) {
	al.LogAction(ctx, tenantID, userID, "claim", "call", callID, status, "")
}

func (al *Logger) LogRelease(ctx context.Context, tenantID, userID, impoundID, disposition string) {
	al.LogAction(ctx, tenantID, userID, "release", "impound", impoundID, disposition, "")
}

func (al *Logger) LogDenied(ctx context.Context, tenantID, userID, reason string) {
	al.LogAction(ctx, tenantID, userID, "access_denied", "api", "", "denied", reason)
}
