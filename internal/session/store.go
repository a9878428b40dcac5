// Package session implements the opaque-token → principal cache backing
// authentication. Records live in Redis under a configurable prefix with a
// sliding TTL; values are JSON-encoded principals.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hgu-oj/backend/internal/apperr"
)

// Admin types carried by a principal. Super Admin bypasses every role gate.
const (
	RoleRegularUser = "Regular User"
	RoleAdmin       = "Admin"
	RoleSuperAdmin  = "Super Admin"
)

// ErrSessionMissing is returned by Get when no record exists for a token,
// either because it was never minted or because its TTL elapsed.
var ErrSessionMissing = errors.New("session: missing or expired")

// Principal is the authenticated identity resolved from a session token.
// Principals are never mutated in place; a new login rotates the record
// wholesale.
type Principal struct {
	UserID    int    `json:"user_id"`
	Username  string `json:"username"`
	Avatar    string `json:"avatar"`
	AdminType string `json:"admin_type"`
}

// IsSuperAdmin reports whether the principal bypasses role gates.
func (p Principal) IsSuperAdmin() bool { return p.AdminType == RoleSuperAdmin }

// Store is the Redis-backed session cache.
type Store struct {
	client *redis.Client
	prefix string
}

// NewStore creates a session store using the given Redis client. Keys are
// written as prefix+token.
func NewStore(client *redis.Client, prefix string) *Store {
	return &Store{client: client, prefix: prefix}
}

func (s *Store) key(token string) string { return s.prefix + token }

// Put upserts the principal under token with an absolute TTL. Last writer
// wins; a repeated Put for the same token replaces both value and TTL.
func (s *Store) Put(ctx context.Context, token string, p Principal, ttl time.Duration) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal principal: %w", err)
	}
	if err := s.client.Set(ctx, s.key(token), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis SET session: %w", err)
	}
	return nil
}

// Get resolves the principal stored under token. A missing or expired key
// yields ErrSessionMissing; an unparseable value yields CorruptedSession.
func (s *Store) Get(ctx context.Context, token string) (Principal, error) {
	data, err := s.client.Get(ctx, s.key(token)).Bytes()
	if err == redis.Nil {
		return Principal{}, ErrSessionMissing
	}
	if err != nil {
		return Principal{}, fmt.Errorf("redis GET session: %w", err)
	}

	var p Principal
	if err := json.Unmarshal(data, &p); err != nil {
		slog.Error("[SessionStore] Corrupted session record", "token_prefix", shorten(token), "error", err)
		return Principal{}, apperr.Wrap(apperr.CorruptedSession, "corrupted session data", err)
	}
	return p, nil
}

// Touch extends the TTL of an existing record without reading it. Used for
// sliding sessions; a no-op when the key is already gone.
func (s *Store) Touch(ctx context.Context, token string, ttl time.Duration) error {
	if err := s.client.Expire(ctx, s.key(token), ttl).Err(); err != nil {
		return fmt.Errorf("redis EXPIRE session: %w", err)
	}
	return nil
}

// Drop removes the record unconditionally. Dropping an absent token is not
// an error.
func (s *Store) Drop(ctx context.Context, token string) error {
	if err := s.client.Del(ctx, s.key(token)).Err(); err != nil {
		return fmt.Errorf("redis DEL session: %w", err)
	}
	return nil
}

// shorten truncates a token for logging; full tokens never hit the logs.
func shorten(token string) string {
	if len(token) <= 8 {
		return token
	}
	return token[:8]
}
