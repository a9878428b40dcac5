// Package middleware contains the HTTP request gates: principal resolution
// from the session cookie, role gating for privileged handlers, and the
// logging/instrumentation wrappers.
package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/hgu-oj/backend/internal/apperr"
	"github.com/hgu-oj/backend/internal/database"
	"github.com/hgu-oj/backend/internal/session"
)

type contextKey string

const principalKey contextKey = "principal"

// WithPrincipal injects the authenticated principal into the context.
func WithPrincipal(ctx context.Context, p session.Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// GetPrincipal extracts the authenticated principal from the context.
func GetPrincipal(ctx context.Context) (session.Principal, bool) {
	p, ok := ctx.Value(principalKey).(session.Principal)
	return p, ok
}

// Authorizer resolves the session cookie into a principal for each request.
type Authorizer struct {
	sessions   *session.Store
	users      database.UserDirectory
	cookieName string
	tokenTTL   time.Duration
}

func NewAuthorizer(sessions *session.Store, users database.UserDirectory, cookieName string, tokenTTL time.Duration) *Authorizer {
	return &Authorizer{
		sessions:   sessions,
		users:      users,
		cookieName: cookieName,
		tokenTTL:   tokenTTL,
	}
}

// Require wraps a handler so it only runs with a valid principal in
// context. The session TTL is re-armed on every authenticated request
// (sliding sessions). A principal whose user has vanished from the
// directory is rejected even if the session record is still live.
func (a *Authorizer) Require(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		cookie, err := r.Cookie(a.cookieName)
		if err != nil || cookie.Value == "" {
			writeError(w, apperr.New(apperr.Unauthenticated, "not authenticated"))
			return
		}

		principal, err := a.sessions.Get(ctx, cookie.Value)
		if err != nil {
			if errors.Is(err, session.ErrSessionMissing) {
				writeError(w, apperr.New(apperr.Unauthenticated, "invalid or expired token"))
				return
			}
			writeError(w, err)
			return
		}

		exists, err := a.users.ExistsByUsername(ctx, principal.Username)
		if err != nil {
			writeError(w, err)
			return
		}
		if !exists {
			writeError(w, apperr.New(apperr.Unauthenticated, "user not found"))
			return
		}

		if err := a.sessions.Touch(ctx, cookie.Value, a.tokenTTL); err != nil {
			// Sliding refresh is best-effort; the request proceeds.
			slog.Warn("[Authorizer] Session touch failed", "error", err)
		}

		next(w, r.WithContext(WithPrincipal(ctx, principal)))
	}
}

// RequireRoles gates a handler on the principal's admin type. Super Admin
// bypasses every gate; other principals must match one of the allowed
// roles exactly. Must be mounted inside Require.
func RequireRoles(next http.HandlerFunc, roles ...string) http.HandlerFunc {
	allowed := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := GetPrincipal(r.Context())
		if !ok {
			writeError(w, apperr.New(apperr.Unauthenticated, "not authenticated"))
			return
		}
		if !principal.IsSuperAdmin() {
			if _, ok := allowed[principal.AdminType]; !ok {
				writeError(w, apperr.New(apperr.Forbidden, "insufficient privileges"))
				return
			}
		}
		next(w, r)
	}
}
