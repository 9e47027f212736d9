package audit

import (
	"context"
	"net"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"automationstation.io/internal/auth"
)

// Actions recorded by the authentication and admin flows.
const (
	ActionLogin         = "login"
	ActionLogout        = "logout"
	ActionSSOLogin      = "sso_login"
	ActionRegister      = "register"
	ActionRoleAssigned  = "role_assigned"
	ActionRoleRemoved   = "role_removed"
	ActionUserStatus    = "user_status_changed"
	ActionUserDeleted   = "user_deleted"
	ActionConfigUpdated = "config_updated"
)

// Recorder appends security-relevant events to the audit store. Writes are
// best-effort: a failed append is logged and swallowed so it never fails the
// operation it accompanies.
type Recorder struct {
	store auth.AuditStore
	log   *zap.Logger
}

func NewRecorder(store auth.AuditStore, log *zap.Logger) *Recorder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Recorder{store: store, log: log}
}

// Record appends one entry synchronously. userID may be empty for pre-auth
// failures; ip and userAgent are optional.
func (rec *Recorder) Record(ctx context.Context, userID, action, entityType, entityID, details, ip, userAgent string) {
	if rec == nil || rec.store == nil {
		return
	}
	entry := &auth.AuditEntry{
		UserID:     userID,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Details:    details,
		IPAddress:  ip,
		UserAgent:  userAgent,
	}
	if err := rec.store.Append(ctx, entry); err != nil {
		rec.log.Warn("audit append failed",
			zap.String("action", action),
			zap.String("user_id", userID),
			zap.Error(err))
	}
}

// RecordRequest is Record with ip/user-agent lifted from the request.
func (rec *Recorder) RecordRequest(r *http.Request, userID, action, entityType, entityID, details string) {
	rec.Record(r.Context(), userID, action, entityType, entityID, details, ClientIP(r), r.UserAgent())
}

// List returns the newest entries, for the admin listing endpoint.
func (rec *Recorder) List(ctx context.Context, limit int) ([]*auth.AuditEntry, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	return rec.store.List(ctx, limit)
}

// ClientIP resolves the originating address, honoring X-Forwarded-For.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
