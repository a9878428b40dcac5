package autosave

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListener_FlushOnExpiry(t *testing.T) {
	mr, _, buffer, sink := setupBuffer(t)
	ctx := context.Background()
	slot := Slot{UserID: 7, ProblemID: 42, Language: "Python3"}

	// Burst of saves; only the last write must reach the durable store.
	require.NoError(t, buffer.Save(ctx, slot, "A"))
	require.NoError(t, buffer.Save(ctx, slot, "AB"))
	require.NoError(t, buffer.Save(ctx, slot, "ABC"))

	listener := NewListener(buffer.client, "oj:code", sink, nil)
	listener.handleExpiry(ctx, DebounceKey("oj:code", slot))

	assert.Equal(t, 1, sink.upsertCount())
	assert.Equal(t, "ABC", sink.lastUpsert())
	assert.False(t, mr.Exists(DataKey("oj:code", slot)), "data key must be deleted after flush")
}

func TestListener_SkipsWhenAlreadyFlushed(t *testing.T) {
	_, _, buffer, sink := setupBuffer(t)
	slot := Slot{UserID: 7, ProblemID: 42, Language: "Python3"}

	// No data key exists: another node (or a previous cycle) flushed.
	listener := NewListener(buffer.client, "oj:code", sink, nil)
	listener.handleExpiry(context.Background(), DebounceKey("oj:code", slot))

	assert.Equal(t, 0, sink.upsertCount())
}

func TestListener_IgnoresForeignKeys(t *testing.T) {
	_, _, buffer, sink := setupBuffer(t)

	listener := NewListener(buffer.client, "oj:code", sink, nil)
	listener.handleExpiry(context.Background(), "oj:session:sometoken")
	listener.handleExpiry(context.Background(), DataKey("oj:code", Slot{UserID: 1, ProblemID: 1, Language: "C"}))

	assert.Equal(t, 0, sink.upsertCount())
}

func TestListener_FailedFlushKeepsDataKey(t *testing.T) {
	mr, _, buffer, sink := setupBuffer(t)
	ctx := context.Background()
	slot := Slot{UserID: 3, ProblemID: 4, Language: "C"}

	require.NoError(t, buffer.Save(ctx, slot, "int main(){}"))
	sink.err = errors.New("database down")

	listener := NewListener(buffer.client, "oj:code", sink, nil)
	listener.handleExpiry(ctx, DebounceKey("oj:code", slot))

	// The data key survives a failed flush so the next cycle can retry.
	assert.True(t, mr.Exists(DataKey("oj:code", slot)))
}

func TestListener_EndToEndViaPubSub(t *testing.T) {
	mr, _, buffer, sink := setupBuffer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	slot := Slot{UserID: 7, ProblemID: 42, Language: "Python3"}

	require.NoError(t, buffer.Save(ctx, slot, "final"))

	listener := NewListener(buffer.client, "oj:code", sink, nil)
	done := make(chan error, 1)
	go func() { done <- listener.Run(ctx) }()

	// Give the subscription a moment, then emit the expiry event the way
	// the server would.
	require.Eventually(t, func() bool {
		return mr.Publish(ExpiredChannel, DebounceKey("oj:code", slot)) > 0
	}, time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		return sink.upsertCount() == 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, "final", sink.lastUpsert())

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("listener did not stop on cancellation")
	}
}
