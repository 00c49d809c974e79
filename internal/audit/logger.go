package audit

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Entry is one audit record for an owner or admin action.
type Entry struct {
	Timestamp    time.Time         `json:"timestamp"`
	Action       string            `json:"action"`
	Actor        string            `json:"actor"`
	ActorRole    string            `json:"actor_role,omitempty"`
	ResourceType string            `json:"resource_type,omitempty"`
	ResourceID   string            `json:"resource_id,omitempty"`
	IPAddress    string            `json:"ip_address,omitempty"`
	RequestID    string            `json:"request_id,omitempty"`
	Status       string            `json:"status"`
	Details      map[string]string `json:"details,omitempty"`
}

// Logger writes audit entries as structured zerolog events nested under an
// "audit" key so they can be filtered from application logs.
type Logger struct {
	output zerolog.Logger
}

func NewLogger(logger zerolog.Logger) *Logger {
	return &Logger{output: logger.With().Str("component", "audit").Logger()}
}

// Nop returns a logger that discards entries.
func Nop() *Logger {
	return &Logger{output: zerolog.Nop()}
}

func (l *Logger) Log(ctx context.Context, entry Entry) {
	if l == nil {
		return
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	if meta, ok := ctx.Value(requestMetaKey).(requestMeta); ok {
		if entry.IPAddress == "" {
			entry.IPAddress = meta.ip
		}
		if entry.RequestID == "" {
			entry.RequestID = meta.requestID
		}
	}

	event := l.output.Info()
	if entry.Status == StatusFailure {
		event = l.output.Warn()
	}
	event.Interface("audit", entry).Msg(entry.Action)
}

func (l *Logger) LogSuccess(ctx context.Context, action, actor, resourceType, resourceID string, details map[string]string) {
	l.Log(ctx, Entry{
		Action:       action,
		Actor:        actor,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Status:       StatusSuccess,
		Details:      details,
	})
}

func (l *Logger) LogFailure(ctx context.Context, action, actor, resourceType, resourceID string, details map[string]string) {
	l.Log(ctx, Entry{
		Action:       action,
		Actor:        actor,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Status:       StatusFailure,
		Details:      details,
	})
}

type contextKey string

const requestMetaKey contextKey = "auditRequestMeta"

type requestMeta struct {
	ip        string
	requestID string
}

// WithRequest stores the caller address and request id so entries logged
// deeper in the call chain carry them.
func WithRequest(ctx context.Context, r *http.Request, requestID string) context.Context {
	return context.WithValue(ctx, requestMetaKey, requestMeta{ip: clientIP(r), requestID: requestID})
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
