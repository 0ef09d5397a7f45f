package session

import "context"

type ctxKey int

const (
	sessionKey ctxKey = iota
	personKey
)

func withSession(ctx context.Context, s Session) context.Context {
	ctx = context.WithValue(ctx, sessionKey, s)
	return WithPersonID(ctx, s.PersonID)
}

// FromContext returns the session attached by Middleware.
func FromContext(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(sessionKey).(Session)
	return s, ok
}

// WithPersonID sets the person a request operates on. Session routes set it to
// the session owner; staff routes set it from the URL.
func WithPersonID(ctx context.Context, personID string) context.Context {
	return context.WithValue(ctx, personKey, personID)
}

func PersonID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(personKey).(string)
	return id, ok && id != ""
}
