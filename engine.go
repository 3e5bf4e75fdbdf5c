package labkit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/labkit/internal"
	"github.com/MrEthical07/labkit/internal/audit"
	"github.com/MrEthical07/labkit/internal/rate"
	"github.com/MrEthical07/labkit/permission"
	"github.com/MrEthical07/labkit/session"
	"go.uber.org/zap"
)

// Engine issues sessions and answers permission and role checks against them.
//
// Engine methods are safe for concurrent use after [Builder.Build].
type Engine struct {
	config       Config
	registry     *permission.Registry
	roleManager  *permission.RoleManager
	sessionStore session.Store
	audit        *audit.Dispatcher
	metrics      *Metrics
	limiter      *rate.Limiter
	logger       *zap.Logger
	now          func() time.Time
}

// Close drains pending audit events. The session store is owned by the caller.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
	_ = e.logger.Sync()
}

// AuditDelivered returns how many audit events reached the sink.
func (e *Engine) AuditDelivered() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Delivered()
}

// AuditDropped returns how many audit events were dropped under backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

/*
====================================
SESSIONS
====================================
*/

// CreateSession issues a new opaque token for userID acting as role.
// Unknown roles fail with [ErrInvalidRole]; the message lists valid roles.
func (e *Engine) CreateSession(ctx context.Context, userID, role string) (string, error) {
	if e == nil || e.sessionStore == nil {
		return "", ErrEngineNotReady
	}

	if strings.TrimSpace(userID) == "" {
		e.emitAudit(ctx, auditEventSessionCreateFailed, false, userID, role, "", "", ErrInvalidUser, nil)
		return "", ErrInvalidUser
	}

	mask, ok := e.roleManager.Mask(role)
	if !ok {
		err := fmt.Errorf("%w %q: must be one of: %s", ErrInvalidRole, role, strings.Join(e.Roles(), ", "))
		e.emitAudit(ctx, auditEventSessionCreateFailed, false, userID, role, "", "", err, nil)
		return "", err
	}

	token, err := internal.NewSessionToken(e.config.Session.TokenBytes)
	if err != nil {
		return "", err
	}

	now := e.now()
	sess := &session.Session{
		Token:     token,
		UserID:    userID,
		Role:      role,
		Mask:      mask,
		CreatedAt: now.Unix(),
	}
	if ttl := e.config.Session.TTL; ttl > 0 {
		sess.ExpiresAt = now.Add(ttl).Unix()
	}

	if err := e.sessionStore.Save(ctx, sess, e.config.Session.TTL); err != nil {
		e.metricInc(MetricBackendError)
		wrapped := fmt.Errorf("%w: %v", ErrSessionBackend, err)
		e.emitAudit(ctx, auditEventSessionCreateFailed, false, userID, role, "", "", wrapped, nil)
		return "", wrapped
	}

	e.metricInc(MetricSessionCreated)
	e.logger.Info("session created",
		zap.String("user_id", userID),
		zap.String("role", role),
		zap.String("session_ref", internal.Fingerprint(token)),
	)
	e.emitAudit(ctx, auditEventSessionCreated, true, userID, role, token, "", nil, nil)

	return token, nil
}

// GetSession returns the session for token, or [ErrSessionNotFound].
func (e *Engine) GetSession(ctx context.Context, token string) (*SessionInfo, error) {
	if e == nil || e.sessionStore == nil {
		return nil, ErrEngineNotReady
	}
	if token == "" {
		return nil, ErrSessionNotFound
	}

	sess, err := e.sessionStore.Get(ctx, token)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			e.metricInc(MetricSessionLookupMiss)
			return nil, ErrSessionNotFound
		}
		e.metricInc(MetricBackendError)
		return nil, fmt.Errorf("%w: %v", ErrSessionBackend, err)
	}

	return e.sessionInfo(sess), nil
}

// RevokeSession deletes the session for token. It reports false when no
// such session existed.
func (e *Engine) RevokeSession(ctx context.Context, token string) (bool, error) {
	if e == nil || e.sessionStore == nil {
		return false, ErrEngineNotReady
	}
	if token == "" {
		return false, nil
	}

	// Looked up first so the audit record can name the user.
	var userID, role string
	if sess, err := e.sessionStore.Get(ctx, token); err == nil {
		userID, role = sess.UserID, sess.Role
	}

	existed, err := e.sessionStore.Delete(ctx, token)
	if err != nil {
		e.metricInc(MetricBackendError)
		return false, fmt.Errorf("%w: %v", ErrSessionBackend, err)
	}
	if !existed {
		return false, nil
	}

	e.metricInc(MetricSessionRevoked)
	e.logger.Info("session revoked",
		zap.String("user_id", userID),
		zap.String("session_ref", internal.Fingerprint(token)),
	)
	e.emitAudit(ctx, auditEventSessionRevoked, true, userID, role, token, "", nil, nil)
	return true, nil
}

// RevokeUserSessions deletes every session belonging to userID and returns
// how many were removed.
func (e *Engine) RevokeUserSessions(ctx context.Context, userID string) (int, error) {
	if e == nil || e.sessionStore == nil {
		return 0, ErrEngineNotReady
	}
	if userID == "" {
		return 0, ErrInvalidUser
	}

	removed, err := e.sessionStore.DeleteAllForUser(ctx, userID)
	if err != nil {
		e.metricInc(MetricBackendError)
		return removed, fmt.Errorf("%w: %v", ErrSessionBackend, err)
	}

	for i := 0; i < removed; i++ {
		e.metricInc(MetricSessionRevoked)
	}
	e.emitAudit(ctx, auditEventUserSessionsRevoked, true, userID, "", "", "", nil, func() map[string]string {
		return map[string]string{"count": fmt.Sprint(removed)}
	})
	return removed, nil
}

// ActiveSessions returns the number of sessions held by the store.
func (e *Engine) ActiveSessions(ctx context.Context) (int, error) {
	if e == nil || e.sessionStore == nil {
		return 0, ErrEngineNotReady
	}
	n, err := e.sessionStore.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrSessionBackend, err)
	}
	return n, nil
}

/*
====================================
GATES
====================================
*/

// Authorize is the permission gate. It resolves token and checks that its
// role grants perm. operation names the guarded call in errors and audit
// records.
//
// Failures are *AuthenticationError (no token, unknown token) or
// *AuthorizationError (permission missing). Store failures are returned
// wrapped in [ErrSessionBackend].
func (e *Engine) Authorize(ctx context.Context, token, operation, perm string) (*SessionInfo, error) {
	start := time.Now()
	defer e.observeAuthorize(start)

	sess, err := e.authenticate(ctx, token, operation)
	if err != nil {
		return nil, err
	}

	if !e.maskHas(sess.Mask, perm) {
		authzErr := &AuthorizationError{
			Operation:  operation,
			UserID:     sess.UserID,
			Role:       sess.Role,
			Permission: perm,
		}
		e.deny(ctx, sess, token, authzErr, MetricPermissionDenied, map[string]string{"permission": perm})
		return nil, authzErr
	}

	e.grant(ctx, sess, token, operation, MetricPermissionGranted, map[string]string{"permission": perm})
	return e.sessionInfo(sess), nil
}

// AuthorizeRole is the role gate. The session's role must equal role
// exactly; roles do not inherit from one another.
func (e *Engine) AuthorizeRole(ctx context.Context, token, operation, role string) (*SessionInfo, error) {
	start := time.Now()
	defer e.observeAuthorize(start)

	sess, err := e.authenticate(ctx, token, operation)
	if err != nil {
		return nil, err
	}

	if sess.Role != role {
		authzErr := &AuthorizationError{
			Operation:    operation,
			UserID:       sess.UserID,
			Role:         sess.Role,
			RequiredRole: role,
		}
		e.deny(ctx, sess, token, authzErr, MetricRoleDenied, map[string]string{"required_role": role})
		return nil, authzErr
	}

	e.grant(ctx, sess, token, operation, MetricRoleGranted, map[string]string{"required_role": role})
	return e.sessionInfo(sess), nil
}

func (e *Engine) authenticate(ctx context.Context, token, operation string) (*session.Session, error) {
	if e == nil || e.sessionStore == nil {
		return nil, ErrEngineNotReady
	}

	if token == "" {
		err := &AuthenticationError{Operation: operation, Missing: true}
		e.metricInc(MetricAuthenticationFailure)
		e.logger.Warn(err.Error(), zap.String("reason", "no session token provided"))
		e.emitAudit(ctx, auditEventAuthenticationFailure, false, "", "", "", operation, err, nil)
		return nil, err
	}

	ip := clientIPFromContext(ctx)
	if err := e.checkRate(ctx, ip, token, operation); err != nil {
		return nil, err
	}

	sess, err := e.sessionStore.Get(ctx, token)
	if err != nil {
		if !errors.Is(err, session.ErrNotFound) {
			e.metricInc(MetricBackendError)
			return nil, fmt.Errorf("%w: %v", ErrSessionBackend, err)
		}
		authnErr := &AuthenticationError{Operation: operation}
		e.metricInc(MetricSessionLookupMiss)
		e.metricInc(MetricAuthenticationFailure)
		e.logger.Warn(authnErr.Error(), zap.String("session_ref", internal.Fingerprint(token)))
		e.emitAudit(ctx, auditEventAuthenticationFailure, false, "", "", token, operation, authnErr, nil)
		e.recordFailure(ctx, ip)
		return nil, authnErr
	}

	return sess, nil
}

// checkRate rejects addresses that spent their failure budget. Calls without
// a client IP are not throttled.
func (e *Engine) checkRate(ctx context.Context, ip, token, operation string) error {
	if e.limiter == nil || ip == "" {
		return nil
	}
	err := e.limiter.Check(ctx, ip)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, rate.ErrRateLimited):
		e.metricInc(MetricAuthenticationThrottled)
		e.logger.Warn("authentication rate limited", zap.String("client_ip", ip), zap.String("operation", operation))
		e.emitAudit(ctx, auditEventAuthenticationThrottled, false, "", "", token, operation, ErrRateLimited, nil)
		return fmt.Errorf("%w for %s", ErrRateLimited, operation)
	default:
		e.metricInc(MetricBackendError)
		return fmt.Errorf("%w: %v", ErrSessionBackend, err)
	}
}

func (e *Engine) recordFailure(ctx context.Context, ip string) {
	if e.limiter == nil || ip == "" {
		return
	}
	if _, err := e.limiter.RecordFailure(ctx, ip); err != nil {
		e.logger.Error("record authentication failure", zap.String("client_ip", ip), zap.Error(err))
	}
}

// FailedAttempts returns the unknown-token failures counted for ip in the
// current window. It is 0 when rate limiting is off.
func (e *Engine) FailedAttempts(ctx context.Context, ip string) (int, error) {
	if e == nil || e.limiter == nil || ip == "" {
		return 0, nil
	}
	n, err := e.limiter.Failures(ctx, ip)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrSessionBackend, err)
	}
	return n, nil
}

// ClearFailedAttempts lifts the throttle on ip before its window ends.
func (e *Engine) ClearFailedAttempts(ctx context.Context, ip string) error {
	if e == nil || e.limiter == nil || ip == "" {
		return nil
	}
	if err := e.limiter.Reset(ctx, ip); err != nil {
		return fmt.Errorf("%w: %v", ErrSessionBackend, err)
	}
	e.logger.Info("authentication throttle cleared", zap.String("client_ip", ip))
	return nil
}

func (e *Engine) grant(ctx context.Context, sess *session.Session, token, operation string, metric MetricID, meta map[string]string) {
	e.metricInc(metric)
	e.logger.Info("authorized",
		zap.String("user_id", sess.UserID),
		zap.String("role", sess.Role),
		zap.String("operation", operation),
	)
	e.emitAudit(ctx, auditEventAuthorizationGranted, true, sess.UserID, sess.Role, token, operation, nil, func() map[string]string {
		return meta
	})
}

func (e *Engine) deny(ctx context.Context, sess *session.Session, token string, authzErr *AuthorizationError, metric MetricID, meta map[string]string) {
	e.metricInc(metric)
	e.logger.Warn(authzErr.Error(),
		zap.String("user_id", sess.UserID),
		zap.String("role", sess.Role),
	)
	e.emitAudit(ctx, auditEventAuthorizationDenied, false, sess.UserID, sess.Role, token, authzErr.Operation, authzErr, func() map[string]string {
		return meta
	})
}

func (e *Engine) observeAuthorize(start time.Time) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Observe(MetricAuthorizeLatency, time.Since(start))
}

/*
====================================
ROLE TABLE
====================================
*/

// HasPermission reports whether role grants perm. Unknown roles and
// permissions grant nothing.
func (e *Engine) HasPermission(role, perm string) bool {
	if e == nil || e.roleManager == nil {
		return false
	}
	mask, ok := e.roleManager.Mask(role)
	if !ok {
		return false
	}
	return e.maskHas(mask, perm)
}

// Roles returns the registered role names, sorted.
func (e *Engine) Roles() []string {
	if e == nil || e.roleManager == nil {
		return nil
	}
	return e.roleManager.Roles()
}

// Permissions returns the registered permission names in bit order.
func (e *Engine) Permissions() []string {
	if e == nil || e.registry == nil {
		return nil
	}
	return e.registry.Names()
}

// RolePermissions lists the permissions granted by role.
func (e *Engine) RolePermissions(role string) ([]string, bool) {
	if e == nil || e.roleManager == nil {
		return nil, false
	}
	mask, ok := e.roleManager.Mask(role)
	if !ok {
		return nil, false
	}
	return e.registry.Expand(mask), true
}

// RoleTable returns every role with its permissions.
func (e *Engine) RoleTable() map[string][]string {
	out := make(map[string][]string)
	for _, role := range e.Roles() {
		perms, _ := e.RolePermissions(role)
		out[role] = perms
	}
	return out
}

func (e *Engine) maskHas(mask *permission.Mask64, perm string) bool {
	if mask == nil {
		return false
	}
	bit, ok := e.registry.Bit(perm)
	if !ok {
		return false
	}
	return mask.Has(bit, e.config.Permission.RootBitReserved)
}

func (e *Engine) sessionInfo(s *session.Session) *SessionInfo {
	info := &SessionInfo{
		Token:       s.Token,
		UserID:      s.UserID,
		Role:        s.Role,
		Permissions: e.registry.Expand(s.Mask),
		CreatedAt:   time.Unix(s.CreatedAt, 0),
	}
	if s.ExpiresAt > 0 {
		info.ExpiresAt = time.Unix(s.ExpiresAt, 0)
	}
	return info
}
