package middleware

import "context"

type ctxKey string

const (
	ctxKeyIsHTMX  ctxKey = "is_htmx"
	ctxKeySession ctxKey = "session"
)

// WithHTMX marks the request as coming from htmx.
func WithHTMX(ctx context.Context, is bool) context.Context {
	return context.WithValue(ctx, ctxKeyIsHTMX, is)
}

// IsHTMX returns whether this is an htmx request.
func IsHTMX(ctx context.Context) bool {
	v, _ := ctx.Value(ctxKeyIsHTMX).(bool)
	return v
}

func withSession(ctx context.Context, s *SessionData) context.Context {
	return context.WithValue(ctx, ctxKeySession, s)
}

// SessionFromContext returns the request session, or an empty one outside the session middleware.
func SessionFromContext(ctx context.Context) *SessionData {
	if s, ok := ctx.Value(ctxKeySession).(*SessionData); ok && s != nil {
		return s
	}
	return &SessionData{}
}

// CSRFToken returns the token forms must echo back.
func CSRFToken(ctx context.Context) string {
	return SessionFromContext(ctx).CSRFToken
}
