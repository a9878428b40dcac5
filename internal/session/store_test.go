package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hgu-oj/backend/internal/apperr"
)

func setupStore(t *testing.T) (*miniredis.Miniredis, *Store) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return mr, NewStore(client, "session:")
}

func TestStore_PutGet(t *testing.T) {
	_, store := setupStore(t)
	ctx := context.Background()

	p := Principal{UserID: 7, Username: "alice", Avatar: "a.png", AdminType: RoleRegularUser}
	require.NoError(t, store.Put(ctx, "tok-1", p, time.Minute))

	got, err := store.Get(ctx, "tok-1")
	require.NoError(t, err)
	assert.Equal(t, p, got)
}

func TestStore_GetMissing(t *testing.T) {
	_, store := setupStore(t)

	_, err := store.Get(context.Background(), "never-minted")
	assert.ErrorIs(t, err, ErrSessionMissing)
}

func TestStore_ExpiryAfterTTL(t *testing.T) {
	mr, store := setupStore(t)
	ctx := context.Background()

	p := Principal{UserID: 1, Username: "bob"}
	require.NoError(t, store.Put(ctx, "tok-2", p, 60*time.Second))

	mr.FastForward(61 * time.Second)

	_, err := store.Get(ctx, "tok-2")
	assert.ErrorIs(t, err, ErrSessionMissing)
}

func TestStore_SlidingTouch(t *testing.T) {
	mr, store := setupStore(t)
	ctx := context.Background()

	p := Principal{UserID: 2, Username: "carol"}
	require.NoError(t, store.Put(ctx, "tok-3", p, 60*time.Second))

	// At t=50s the session is refreshed; at t=90s it must still resolve.
	mr.FastForward(50 * time.Second)
	require.NoError(t, store.Touch(ctx, "tok-3", 60*time.Second))
	mr.FastForward(40 * time.Second)

	got, err := store.Get(ctx, "tok-3")
	require.NoError(t, err)
	assert.Equal(t, "carol", got.Username)

	// Without another touch the refreshed TTL still runs out.
	mr.FastForward(61 * time.Second)
	_, err = store.Get(ctx, "tok-3")
	assert.ErrorIs(t, err, ErrSessionMissing)
}

func TestStore_TouchMissingIsNoop(t *testing.T) {
	_, store := setupStore(t)

	require.NoError(t, store.Touch(context.Background(), "gone", time.Minute))
}

func TestStore_Drop(t *testing.T) {
	_, store := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "tok-4", Principal{UserID: 3}, time.Minute))
	require.NoError(t, store.Drop(ctx, "tok-4"))

	_, err := store.Get(ctx, "tok-4")
	assert.ErrorIs(t, err, ErrSessionMissing)

	// Dropping again is not an error.
	require.NoError(t, store.Drop(ctx, "tok-4"))
}

func TestStore_CorruptedRecord(t *testing.T) {
	mr, store := setupStore(t)

	mr.Set("session:tok-5", "{not json")

	_, err := store.Get(context.Background(), "tok-5")
	require.Error(t, err)
	assert.Equal(t, apperr.CorruptedSession, apperr.AsKind(err))
	assert.False(t, errors.Is(err, ErrSessionMissing))
}

func TestStore_LastWriterWins(t *testing.T) {
	_, store := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "tok-6", Principal{UserID: 1, Username: "old"}, time.Minute))
	require.NoError(t, store.Put(ctx, "tok-6", Principal{UserID: 1, Username: "new"}, time.Minute))

	got, err := store.Get(ctx, "tok-6")
	require.NoError(t, err)
	assert.Equal(t, "new", got.Username)
}

func TestPrincipal_IsSuperAdmin(t *testing.T) {
	assert.True(t, Principal{AdminType: RoleSuperAdmin}.IsSuperAdmin())
	assert.False(t, Principal{AdminType: RoleAdmin}.IsSuperAdmin())
	assert.False(t, Principal{AdminType: RoleRegularUser}.IsSuperAdmin())
}
