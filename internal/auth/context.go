package auth

import (
	"context"
	"net/http"
	"strings"
)

const (
	RoleClient = "client"
	RoleAdmin  = "admin"
)

// Identity is the authenticated caller, taken from a verified token.
type Identity struct {
	UserID int64
	Role   string
}

func (i Identity) IsAdmin() bool { return i.Role == RoleAdmin }

type ctxKey struct{}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the caller; ok is false for anonymous requests.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok && id.UserID > 0
}

// UserID is 0 for anonymous requests.
func UserID(ctx context.Context) int64 {
	id, _ := FromContext(ctx)
	return id.UserID
}

// Middleware attaches the identity of a valid bearer token to the request
// context. Requests without one pass through anonymous; routes that need a
// user check FromContext themselves.
func Middleware(tokens *Tokens) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearer(r.Header.Get("Authorization"))
			if ok {
				if id, err := tokens.Parse(raw); err == nil {
					r = r.WithContext(WithIdentity(r.Context(), id))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearer(h string) (string, bool) {
	scheme, tok, found := strings.Cut(strings.TrimSpace(h), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	tok = strings.TrimSpace(tok)
	return tok, tok != ""
}
