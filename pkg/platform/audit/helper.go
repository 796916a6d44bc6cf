package audit

import (
	"context"
	"log/slog"

	"openbadges/pkg/platform/middleware/admin"
	"openbadges/pkg/platform/middleware/request"
)

// Emitter is the interface for audit event emission.
// Satisfied by publisher.Publisher.
type Emitter interface {
	Emit(ctx context.Context, event Event) error
}

// Logger writes audit lines to the text log and forwards them to an
// optional Emitter.
type Logger struct {
	textLogger *slog.Logger
	emitter    Emitter
}

// NewLogger creates an audit logger. Either argument may be nil.
func NewLogger(textLogger *slog.Logger, emitter Emitter) *Logger {
	return &Logger{
		textLogger: textLogger,
		emitter:    emitter,
	}
}

// Log records action with key/value attributes. request_id and actor_id
// are taken from ctx when present.
//
// Usage:
//
//	logger.Log(ctx, audit.EventCredentialRevoked, "credential_id", id, "reason", reason)
func (l *Logger) Log(ctx context.Context, action Action, attributes ...any) {
	if l == nil {
		return
	}
	requestID := request.GetRequestID(ctx)
	if requestID != "" {
		attributes = append(attributes, "request_id", requestID)
	}
	actorID := admin.GetAdminActorID(ctx)
	if actorID != "" {
		attributes = append(attributes, "actor_id", actorID)
	}

	l.logToText(ctx, action, attributes)
	l.emitToAudit(ctx, Event{
		Action:       string(action),
		ActorID:      actorID,
		IssuerID:     extractString(attributes, "issuer_id"),
		CredentialID: extractString(attributes, "credential_id"),
		StatusListID: extractString(attributes, "status_list_id"),
		Reason:       extractString(attributes, "reason"),
		RequestID:    requestID,
	})
}

func (l *Logger) logToText(ctx context.Context, action Action, attributes []any) {
	if l.textLogger == nil {
		return
	}
	args := append(attributes, "event", string(action), "log_type", "audit")
	l.textLogger.InfoContext(ctx, string(action), args...)
}

func (l *Logger) emitToAudit(ctx context.Context, event Event) {
	if l.emitter == nil {
		return
	}
	if err := l.emitter.Emit(ctx, event); err != nil && l.textLogger != nil {
		l.textLogger.ErrorContext(ctx, "failed to emit audit event",
			"error", err,
			"event", event.Action,
		)
	}
}

// extractString finds key in a slog-style key/value list. Values that are
// not strings are formatted through fmt.Stringer when possible.
func extractString(attributes []any, key string) string {
	for i := 0; i+1 < len(attributes); i += 2 {
		k, ok := attributes[i].(string)
		if !ok || k != key {
			continue
		}
		switch v := attributes[i+1].(type) {
		case string:
			return v
		case interface{ String() string }:
			return v.String()
		}
		return ""
	}
	return ""
}
