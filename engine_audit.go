package labkit

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/labkit/internal"
	"github.com/MrEthical07/labkit/internal/audit"
	"github.com/google/uuid"
)

const (
	auditEventSessionCreated          = "session_created"
	auditEventSessionCreateFailed     = "session_create_failed"
	auditEventSessionRevoked          = "session_revoked"
	auditEventUserSessionsRevoked     = "user_sessions_revoked"
	auditEventAuthenticationFailure   = "authentication_failed"
	auditEventAuthenticationThrottled = "authentication_rate_limited"
	auditEventAuthorizationGranted    = "authorization_granted"
	auditEventAuthorizationDenied     = "authorization_denied"
)

// AuditErrorCode is the stable failure label written to AuditEvent.Error.
type AuditErrorCode string

const (
	auditErrMissingToken     AuditErrorCode = "missing_token"
	auditErrInvalidSession   AuditErrorCode = "invalid_session"
	auditErrPermissionDenied AuditErrorCode = "permission_denied"
	auditErrRoleRequired     AuditErrorCode = "role_required"
	auditErrInvalidRole      AuditErrorCode = "invalid_role"
	auditErrInvalidUser      AuditErrorCode = "invalid_user"
	auditErrRateLimited      AuditErrorCode = "rate_limited"
	auditErrUnavailable      AuditErrorCode = "backend_unavailable"
	auditErrInternal         AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	role string,
	token string,
	operation string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := audit.Event{
		ID:         uuid.NewString(),
		Timestamp:  time.Now().UTC(),
		EventType:  eventType,
		UserID:     userID,
		Role:       role,
		SessionRef: internal.Fingerprint(token),
		Operation:  operation,
		IP:         clientIPFromContext(ctx),
		Success:    success,
		Metadata:   metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	var authnErr *AuthenticationError
	if errors.As(err, &authnErr) {
		if authnErr.Missing {
			return auditErrMissingToken
		}
		return auditErrInvalidSession
	}

	switch {
	case errors.Is(err, ErrPermissionDenied):
		return auditErrPermissionDenied
	case errors.Is(err, ErrRoleRequired):
		return auditErrRoleRequired
	case errors.Is(err, ErrSessionNotFound):
		return auditErrInvalidSession
	case errors.Is(err, ErrInvalidRole):
		return auditErrInvalidRole
	case errors.Is(err, ErrInvalidUser):
		return auditErrInvalidUser
	case errors.Is(err, ErrRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrSessionBackend):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
