package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/hgu-oj/backend/internal/apperr"
	"github.com/hgu-oj/backend/internal/middleware"
	"github.com/hgu-oj/backend/internal/security"
)

// sessionCookie builds the local-token cookie. maxAge < 0 clears it.
func sessionCookie(name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	}
}

// Login exchanges an upstream SSO token for a local session and sets the
// session cookie.
func Login(exchanger *security.Exchanger, cookieName string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Token string `json:"token"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Token == "" {
			writeError(w, apperr.New(apperr.BadRequest, "bad request"))
			return
		}

		result, err := exchanger.Exchange(r.Context(), req.Token)
		if err != nil {
			writeError(w, err)
			return
		}

		http.SetCookie(w, sessionCookie(cookieName, result.Token, int(result.TTL.Seconds())))
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// Logout drops the session (if any) and clears the cookie. A missing
// cookie is not an error.
func Logout(exchanger *security.Exchanger, cookieName string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var token string
		if cookie, err := r.Cookie(cookieName); err == nil {
			token = cookie.Value
		}

		if err := exchanger.Logout(r.Context(), token); err != nil {
			writeError(w, err)
			return
		}

		http.SetCookie(w, sessionCookie(cookieName, "", -1))
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// AuthTest echoes the authenticated principal. Mounted behind the
// authorizer as an auth smoke endpoint.
func AuthTest() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := middleware.GetPrincipal(r.Context())
		if !ok {
			writeError(w, apperr.New(apperr.Unauthenticated, "not authenticated"))
			return
		}
		writeJSON(w, http.StatusOK, principal)
	}
}
