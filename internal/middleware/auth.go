// internal/middleware/auth.go
package middleware

import (
	"context"
	"crypto/hmac"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/ReignOfTea/protest-dash/internal/errors"
	"github.com/ReignOfTea/protest-dash/internal/session"
	"github.com/ReignOfTea/protest-dash/internal/users"
)

// SessionCookie is the cookie the dashboard frontend stores its token in.
// API clients send the same token as a bearer header instead.
const SessionCookie = "session"

// StaticAdminSession keys the edit buffer for callers using the
// configured admin token, which has no session record of its own.
const StaticAdminSession = "static-admin"

const principalKey = "auth_principal"

// Principal is the resolved caller attached to each authenticated request.
type Principal struct {
	User      users.User
	SessionID string
	ActorTag  string
}

// AuthConfig wires the auth middleware to the stores it resolves against.
type AuthConfig struct {
	Sessions *session.Store
	Users    *users.Store

	// AdminToken, when set, authenticates directly as AdminUser without
	// a session. Used by ops tooling and the CLI.
	AdminToken string
	AdminUser  string
}

// Auth resolves the caller from a bearer token or session cookie and
// injects a Principal into the request context. Requests without a
// resolvable, allowlisted caller never reach the handler.
func Auth(cfg AuthConfig) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				if c, err := r.Cookie(SessionCookie); err == nil {
					token = c.Value
				}
			}
			if token == "" {
				writeError(w, errors.Unauthorized("missing session token"))
				return
			}

			if cfg.AdminToken != "" && hmac.Equal([]byte(token), []byte(cfg.AdminToken)) {
				u, ok := cfg.Users.Lookup(cfg.AdminUser)
				if !ok {
					u = users.User{DiscordID: cfg.AdminUser, Name: "admin", Role: users.RoleAdmin}
				}
				p := Principal{
					User:      u,
					SessionID: StaticAdminSession,
					ActorTag:  cfg.Users.ActorTag(u.DiscordID),
				}
				next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
				return
			}

			sess, err := cfg.Sessions.Get(token)
			if err != nil {
				writeError(w, errors.Unauthorized("invalid or expired session"))
				return
			}

			u, ok := cfg.Users.Lookup(sess.UserID)
			if !ok {
				// The user was removed from the allowlist after logging in.
				writeError(w, errors.Forbidden("user is no longer authorized"))
				return
			}

			p := Principal{
				User:      u,
				SessionID: sess.ID,
				ActorTag:  cfg.Users.ActorTag(u.DiscordID),
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

// RequireAdmin gates a handler behind the admin role. Must run inside Auth.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFrom(r.Context())
		if !ok {
			writeError(w, errors.Unauthorized("missing session token"))
			return
		}
		if p.User.Role != users.RoleAdmin {
			writeError(w, errors.Forbidden("admin role required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// PrincipalFrom returns the authenticated caller stored by Auth.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	return p, ok
}

// WithPrincipal injects a principal directly, bypassing Auth. For testing.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		return token
	}
	return ""
}

func writeError(w http.ResponseWriter, err error) {
	e := errors.From(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.Code)
	json.NewEncoder(w).Encode(map[string]any{"error": e})
}
