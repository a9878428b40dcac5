package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hgu-oj/backend/internal/middleware"
	"github.com/hgu-oj/backend/internal/security"
	"github.com/hgu-oj/backend/internal/session"
)

type fakeUsers struct {
	ids map[string]int
}

func (f *fakeUsers) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	_, ok := f.ids[username]
	return ok, nil
}

func (f *fakeUsers) IDByUsername(ctx context.Context, username string) (int, error) {
	return f.ids[username], nil
}

func setupAuth(t *testing.T, ssoHandler http.HandlerFunc) (*security.Exchanger, *session.Store) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	sso := httptest.NewServer(ssoHandler)
	t.Cleanup(sso.Close)

	sessions := session.NewStore(client, "session:")
	users := &fakeUsers{ids: map[string]int{"alice": 7}}
	return security.NewExchanger(sso.URL, sessions, users, time.Hour), sessions
}

func ssoAccepts(username string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{"username":"` + username + `","avatar":"a.png","admin_type":"Regular User"}}`))
	}
}

func findCookie(t *testing.T, rec *httptest.ResponseRecorder, name string) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("cookie %q not set", name)
	return nil
}

func TestLogin(t *testing.T) {
	exchanger, sessions := setupAuth(t, ssoAccepts("alice"))
	handler := Login(exchanger, "oj_token")

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login",
		strings.NewReader(`{"token":"sso-token"}`))
	rec := httptest.NewRecorder()
	handler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	cookie := findCookie(t, rec, "oj_token")
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, 3600, cookie.MaxAge)

	p, err := sessions.Get(context.Background(), cookie.Value)
	require.NoError(t, err)
	assert.Equal(t, "alice", p.Username)
	assert.Equal(t, 7, p.UserID)
}

func TestLogin_MissingToken(t *testing.T) {
	exchanger, _ := setupAuth(t, ssoAccepts("alice"))
	handler := Login(exchanger, "oj_token")

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	handler(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLogin_RejectedUpstream(t *testing.T) {
	exchanger, _ := setupAuth(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	handler := Login(exchanger, "oj_token")

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login",
		strings.NewReader(`{"token":"bad"}`))
	rec := httptest.NewRecorder()
	handler(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogout(t *testing.T) {
	exchanger, sessions := setupAuth(t, ssoAccepts("alice"))
	ctx := context.Background()

	require.NoError(t, sessions.Put(ctx, "tok", session.Principal{UserID: 7, Username: "alice"}, time.Hour))

	req := httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: "oj_token", Value: "tok"})
	rec := httptest.NewRecorder()
	Logout(exchanger, "oj_token")(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	cookie := findCookie(t, rec, "oj_token")
	assert.Equal(t, -1, cookie.MaxAge)

	_, err := sessions.Get(ctx, "tok")
	assert.ErrorIs(t, err, session.ErrSessionMissing)
}

func TestLogout_WithoutCookie(t *testing.T) {
	exchanger, _ := setupAuth(t, ssoAccepts("alice"))

	req := httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
	rec := httptest.NewRecorder()
	Logout(exchanger, "oj_token")(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthTest(t *testing.T) {
	p := session.Principal{UserID: 7, Username: "alice", AdminType: session.RoleRegularUser}

	req := httptest.NewRequest(http.MethodGet, "/api/auth/test", nil)
	req = req.WithContext(middleware.WithPrincipal(req.Context(), p))
	rec := httptest.NewRecorder()
	AuthTest()(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"alice"`)
}

func TestAuthTest_NoPrincipal(t *testing.T) {
	rec := httptest.NewRecorder()
	AuthTest()(rec, httptest.NewRequest(http.MethodGet, "/api/auth/test", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
