// Package security implements the cross-service identity exchange: an
// upstream SSO token is introspected against the identity provider and
// traded for a service-local opaque session token.
package security

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/hgu-oj/backend/internal/apperr"
	"github.com/hgu-oj/backend/internal/database"
	"github.com/hgu-oj/backend/internal/session"
)

const (
	introspectConnectTimeout = 8 * time.Second
	introspectTotalTimeout   = 15 * time.Second
	introspectAttempts       = 3
)

// Exchanger performs the one-shot SSO introspection call and mints local
// session tokens.
type Exchanger struct {
	introspectURL string
	sessions      *session.Store
	users         database.UserDirectory
	tokenTTL      time.Duration

	client *http.Client

	// Injection points for tests. backoff defaults to linear
	// 1.5s·(attempt+1); sleep defaults to a context-aware timer wait.
	backoff func(attempt int) time.Duration
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewExchanger wires the exchanger against the configured introspection
// endpoint, session store and user directory.
func NewExchanger(introspectURL string, sessions *session.Store, users database.UserDirectory, tokenTTL time.Duration) *Exchanger {
	return &Exchanger{
		introspectURL: introspectURL,
		sessions:      sessions,
		users:         users,
		tokenTTL:      tokenTTL,
		client: &http.Client{
			Timeout: introspectTotalTimeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{Timeout: introspectConnectTimeout}).DialContext,
			},
		},
		backoff: func(attempt int) time.Duration {
			return time.Duration(float64(attempt+1) * 1.5 * float64(time.Second))
		},
		sleep: sleepCtx,
	}
}

// LoginResult carries the minted token and its TTL so the HTTP layer can
// set the session cookie.
type LoginResult struct {
	Token string
	TTL   time.Duration
}

// Exchange validates ssoToken with the identity provider, resolves the
// local user, mints a fresh opaque token and stores the principal under it.
//
// Error surface: SSOUnavailable after exhausted transport retries,
// Unauthenticated for a rejected token or unknown user,
// MisconfiguredService when no introspection endpoint is configured.
func (e *Exchanger) Exchange(ctx context.Context, ssoToken string) (*LoginResult, error) {
	if e.introspectURL == "" {
		return nil, apperr.New(apperr.MisconfiguredService, "SSO_INTROSPECT_URL is not configured")
	}

	resp, err := e.introspect(ctx, ssoToken)
	if err != nil {
		return nil, err
	}

	principal, err := e.resolvePrincipal(ctx, resp)
	if err != nil {
		return nil, err
	}

	// uuid4 carries 122 random bits from crypto/rand — unguessable.
	localToken, err := uuid.NewRandom()
	if err != nil {
		return nil, fmt.Errorf("mint local token: %w", err)
	}

	token := localToken.String()
	if err := e.sessions.Put(ctx, token, *principal, e.tokenTTL); err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}

	slog.Info("[Exchanger] Minted local session",
		"user_id", principal.UserID, "username", principal.Username)
	return &LoginResult{Token: token, TTL: e.tokenTTL}, nil
}

// introspectResponse is the provider's reply envelope.
type introspectResponse struct {
	Data *struct {
		Username  string `json:"username"`
		Avatar    string `json:"avatar"`
		AdminType string `json:"admin_type"`
	} `json:"data"`
}

// introspect POSTs the token to the provider, retrying transport errors
// with linear backoff. Non-200 responses are not retried: the provider has
// answered, just not in our favor.
func (e *Exchanger) introspect(ctx context.Context, ssoToken string) (*introspectResponse, error) {
	body, _ := json.Marshal(map[string]string{"token": ssoToken})

	var lastErr error
	for attempt := 0; attempt < introspectAttempts; attempt++ {
		if attempt > 0 {
			if err := e.sleep(ctx, e.backoff(attempt-1)); err != nil {
				return nil, fmt.Errorf("sso retry interrupted: %w", err)
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.introspectURL, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("build introspect request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := e.client.Do(req)
		if err != nil {
			lastErr = err
			slog.Warn("[Exchanger] Introspection attempt failed",
				"attempt", attempt+1, "error", err)
			continue
		}

		parsed, perr := parseIntrospect(resp)
		if perr != nil {
			return nil, perr
		}
		return parsed, nil
	}

	return nil, apperr.Wrap(apperr.SSOUnavailable, "SSO service temporarily unavailable", lastErr)
}

func parseIntrospect(resp *http.Response) (*introspectResponse, error) {
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apperr.New(apperr.Unauthenticated, "invalid SSO token")
	}

	var parsed introspectResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, apperr.Wrap(apperr.Unauthenticated, "malformed SSO response", err)
	}
	return &parsed, nil
}

// resolvePrincipal validates the introspected identity against the local
// user directory. An identity the provider vouches for but the directory
// does not know is rejected, not provisioned.
func (e *Exchanger) resolvePrincipal(ctx context.Context, resp *introspectResponse) (*session.Principal, error) {
	if resp.Data == nil || resp.Data.Username == "" {
		return nil, apperr.New(apperr.Unauthenticated, "invalid SSO token")
	}

	exists, err := e.users.ExistsByUsername(ctx, resp.Data.Username)
	if err != nil {
		return nil, fmt.Errorf("check user existence: %w", err)
	}
	if !exists {
		return nil, apperr.New(apperr.Unauthenticated, "invalid SSO token")
	}

	userID, err := e.users.IDByUsername(ctx, resp.Data.Username)
	if err != nil {
		return nil, fmt.Errorf("resolve user id: %w", err)
	}

	return &session.Principal{
		UserID:    userID,
		Username:  resp.Data.Username,
		Avatar:    resp.Data.Avatar,
		AdminType: resp.Data.AdminType,
	}, nil
}

// Logout drops the session for token. A missing or empty token is not an
// error; logout is idempotent.
func (e *Exchanger) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return e.sessions.Drop(ctx, token)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
