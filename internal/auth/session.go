package auth

import (
	"context"
	"time"
)

// Session identifies the signed-in user. It is passed explicitly to every
// data access call.
type Session struct {
	UserID    string
	Email     string
	TokenID   string
	ExpiresAt time.Time
}

// Token is a signed bearer token handed to the client.
type Token struct {
	Value     string
	ExpiresAt time.Time
}

func (s Session) IsZero() bool {
	return s.UserID == ""
}

type sessionKey struct{}

func NewContext(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// FromContext returns the session stored by the HTTP auth middleware.
func FromContext(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(Session)
	return s, ok && !s.IsZero()
}
