package autosave

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/hgu-oj/backend/internal/database"
	"github.com/hgu-oj/backend/internal/metrics"
)

// ExpiredChannel is the keyspace notification channel for the autosave
// database. The deployment must enable expired-event notifications
// (notify-keyspace-events Ex) on database 10.
const ExpiredChannel = "__keyevent@10__:expired"

// Listener drives the flush side of the autosave pipeline: when a debounce
// sentinel expires, the buffered code is upserted into the durable store
// and the buffer entry is deleted.
//
// Single-instance per deployment. A second instance would double-flush,
// which the idempotent upsert tolerates, but nothing prevents it.
type Listener struct {
	client  *redis.Client
	prefix  string
	sink    database.CodeSink
	metrics *metrics.Metrics // optional
}

func NewListener(client *redis.Client, prefix string, sink database.CodeSink, m *metrics.Metrics) *Listener {
	return &Listener{client: client, prefix: prefix, sink: sink, metrics: m}
}

// Run subscribes to the expiry channel and processes events until ctx is
// cancelled. Flush errors are logged and swallowed: the data key survives
// a failed flush, and the next save cycle re-arms the debounce timer.
func (l *Listener) Run(ctx context.Context) error {
	pubsub := l.client.Subscribe(ctx, ExpiredChannel)
	defer pubsub.Close()

	// Force the subscription before consuming so startup failures surface
	// immediately instead of as a silent dead listener.
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", ExpiredChannel, err)
	}
	slog.Info("[ExpiryListener] Subscribed", "channel", ExpiredChannel)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			slog.Info("[ExpiryListener] Stopping")
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return fmt.Errorf("expiry channel closed")
			}
			l.handleExpiry(ctx, msg.Payload)
		}
	}
}

// handleExpiry flushes one expired debounce key. Every failure path logs
// and returns; correctness holds because the data key is only deleted
// after a successful upsert.
func (l *Listener) handleExpiry(ctx context.Context, expiredKey string) {
	slot, ok := ParseDebounceKey(l.prefix, expiredKey)
	if !ok {
		return
	}

	dataKey := DataKey(l.prefix, slot)
	code, err := l.client.Get(ctx, dataKey).Result()
	if err == redis.Nil {
		// Another save cycle or node already flushed this slot.
		l.count("skipped")
		return
	}
	if err != nil {
		slog.Error("[ExpiryListener] Read buffered code failed", "key", dataKey, "error", err)
		l.count("error")
		return
	}

	if _, err := l.sink.Upsert(ctx, slot.ProblemID, slot.UserID, slot.Language, code); err != nil {
		slog.Error("[ExpiryListener] Flush failed",
			"problem_id", slot.ProblemID, "user_id", slot.UserID, "language", slot.Language, "error", err)
		l.count("error")
		return
	}

	if err := l.client.Del(ctx, dataKey).Err(); err != nil {
		// The flush committed; a stale data key only means one redundant
		// upsert on the next expiry.
		slog.Warn("[ExpiryListener] Delete buffered code failed", "key", dataKey, "error", err)
	}

	l.count("ok")
	slog.Info("[ExpiryListener] Flushed",
		"problem_id", slot.ProblemID, "user_id", slot.UserID, "language", slot.Language)
}

func (l *Listener) count(outcome string) {
	if l.metrics != nil {
		l.metrics.FlushesTotal.WithLabelValues(outcome).Inc()
	}
}
