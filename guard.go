package labkit

import "context"

// Guarded is a gated operation. It takes the caller's session token ahead
// of the operation's own input.
type Guarded[In, Out any] func(ctx context.Context, token string, in In) (Out, error)

// WithPermission wraps fn so that it only runs for sessions whose role
// grants perm. Denied calls return the gate error and never reach fn. fn
// receives the authorized session through ctx; see [SessionFromContext].
func WithPermission[In, Out any](e *Engine, operation, perm string, fn func(context.Context, In) (Out, error)) Guarded[In, Out] {
	return func(ctx context.Context, token string, in In) (Out, error) {
		info, err := e.Authorize(ctx, token, operation, perm)
		if err != nil {
			var zero Out
			return zero, err
		}
		return fn(WithSession(ctx, info), in)
	}
}

// WithRole wraps fn so that it only runs for sessions holding exactly role.
func WithRole[In, Out any](e *Engine, operation, role string, fn func(context.Context, In) (Out, error)) Guarded[In, Out] {
	return func(ctx context.Context, token string, in In) (Out, error) {
		info, err := e.AuthorizeRole(ctx, token, operation, role)
		if err != nil {
			var zero Out
			return zero, err
		}
		return fn(WithSession(ctx, info), in)
	}
}
