package labkit

import "context"

type clientIPContextKey struct{}
type sessionContextKey struct{}

// WithClientIP attaches the caller's IP address to ctx. The Engine copies it
// into audit events.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

// WithSession attaches an authorized session to ctx. Gates call it before
// invoking the wrapped operation.
func WithSession(ctx context.Context, info *SessionInfo) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, info)
}

// SessionFromContext returns the session attached by a gate, if any.
func SessionFromContext(ctx context.Context) (*SessionInfo, bool) {
	if ctx == nil {
		return nil, false
	}
	info, ok := ctx.Value(sessionContextKey{}).(*SessionInfo)
	return info, ok && info != nil
}

func clientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	ip, _ := ctx.Value(clientIPContextKey{}).(string)
	return ip
}
