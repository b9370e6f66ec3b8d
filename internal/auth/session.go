package auth

import (
	"context"
	"net/http"
	"time"
)

// CookieName is the cookie that carries the session token.
const CookieName = "session"

// Session is the per-browser binding to a username. A request without a
// valid session cookie has no Session at all; the zero value never appears
// in a context.
type Session struct {
	Username string
}

type contextKey string

const sessionKey contextKey = "session"

// WithSession returns a copy of ctx carrying s.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionKey, s)
}

// SessionFromContext returns the caller's session, or nil for anonymous
// requests.
func SessionFromContext(ctx context.Context) *Session {
	s, _ := ctx.Value(sessionKey).(*Session)
	if s == nil || s.Username == "" {
		return nil
	}
	return s
}

// OptionalAuth attaches the session to the request context when a valid
// cookie is present and lets every request through.
func OptionalAuth(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if username, err := sessionUsername(r, tokens); err == nil {
				r = r.WithContext(WithSession(r.Context(), &Session{Username: username}))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAuth rejects requests without a valid session with 401.
func RequireAuth(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			username, err := sessionUsername(r, tokens)
			if err != nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"error":"unauthorized","message":"User not logged in"}`))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), &Session{Username: username})))
		})
	}
}

// SetSessionCookie binds the browser to username.
func SetSessionCookie(w http.ResponseWriter, r *http.Request, tokens *TokenService, username string) error {
	token, err := tokens.Generate(username)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(tokens.TTL() / time.Second),
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// ClearSessionCookie unbinds the browser. It is safe to call without a
// session.
func ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func sessionUsername(r *http.Request, tokens *TokenService) (string, error) {
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return "", err
	}
	return tokens.Validate(cookie.Value)
}
