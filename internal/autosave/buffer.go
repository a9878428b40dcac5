package autosave

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hgu-oj/backend/internal/database"
)

// Buffer is the write-side of the autosave pipeline: it stores the latest
// code in Redis and arms the per-slot debounce timer. Flushing to durable
// storage is the listener's job.
type Buffer struct {
	client      *redis.Client
	prefix      string
	debounceTTL time.Duration
	sink        database.CodeSink
}

func NewBuffer(client *redis.Client, prefix string, debounceTTL time.Duration, sink database.CodeSink) *Buffer {
	return &Buffer{
		client:      client,
		prefix:      prefix,
		debounceTTL: debounceTTL,
		sink:        sink,
	}
}

// Save buffers the latest code and re-arms the debounce timer. The data
// key is written strictly before the debounce key: if the second write is
// lost, no flush fires and the next save repairs the slot.
func (b *Buffer) Save(ctx context.Context, slot Slot, code string) error {
	if err := b.client.Set(ctx, DataKey(b.prefix, slot), code, 0).Err(); err != nil {
		return fmt.Errorf("redis SET autosave data: %w", err)
	}
	if err := b.client.SetEx(ctx, DebounceKey(b.prefix, slot), "1", b.debounceTTL).Err(); err != nil {
		return fmt.Errorf("redis SETEX autosave debounce: %w", err)
	}
	return nil
}

// Load returns the freshest code for the slot: the buffered copy if one
// exists, otherwise the durably persisted copy, otherwise the empty
// string.
func (b *Buffer) Load(ctx context.Context, slot Slot) (string, error) {
	code, err := b.client.Get(ctx, DataKey(b.prefix, slot)).Result()
	if err == nil {
		return code, nil
	}
	if err != redis.Nil {
		return "", fmt.Errorf("redis GET autosave data: %w", err)
	}

	record, err := b.sink.Find(ctx, slot.ProblemID, slot.UserID, slot.Language)
	if err != nil {
		return "", err
	}
	if record == nil {
		return "", nil
	}
	return record.Code, nil
}
