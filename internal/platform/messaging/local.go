package messaging

import (
	"context"
	"log/slog"
	"sync"

	"rudefriend/contexts/community-board/board-service/ports"
)

// LocalBus is an in-process publish/subscribe bus used when no Redis
// address is configured.
type LocalBus struct {
	mu          sync.RWMutex
	subscribers map[string][]chan ports.EventEnvelope
	logger      *slog.Logger
}

func NewLocalBus(logger *slog.Logger) *LocalBus {
	return &LocalBus{
		subscribers: make(map[string][]chan ports.EventEnvelope),
		logger:      logger,
	}
}

// Publish never blocks on a slow subscriber; the event is dropped for that
// subscriber instead.
func (b *LocalBus) Publish(ctx context.Context, topic string, event ports.EventEnvelope) error {
	b.mu.RLock()
	subs := append([]chan ports.EventEnvelope(nil), b.subscribers[topic]...)
	b.mu.RUnlock()

	for _, sub := range subs {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case sub <- event:
		default:
			if b.logger != nil {
				b.logger.Warn("dropping event for slow subscriber",
					"event", "local_bus_publish_drop",
					"module", "internal/platform/messaging",
					"layer", "platform",
					"topic", topic,
					"event_id", event.EventID,
				)
			}
		}
	}
	return nil
}

// Subscribe delivers events for topic to handler until ctx is cancelled.
func (b *LocalBus) Subscribe(
	ctx context.Context,
	topic string,
	handler func(context.Context, ports.EventEnvelope) error,
) {
	ch := make(chan ports.EventEnvelope, 128)

	b.mu.Lock()
	b.subscribers[topic] = append(b.subscribers[topic], ch)
	b.mu.Unlock()

	go func() {
		for {
			select {
			case <-ctx.Done():
				b.removeSubscriber(topic, ch)
				return
			case event := <-ch:
				if err := handler(ctx, event); err != nil && b.logger != nil {
					b.logger.Error("local subscriber failed",
						"event", "local_bus_consume_failed",
						"module", "internal/platform/messaging",
						"layer", "platform",
						"topic", topic,
						"event_id", event.EventID,
						"error", err.Error(),
					)
				}
			}
		}
	}()
}

func (b *LocalBus) removeSubscriber(topic string, target chan ports.EventEnvelope) {
	b.mu.Lock()
	defer b.mu.Unlock()

	items := b.subscribers[topic]
	filtered := items[:0]
	for _, item := range items {
		if item != target {
			filtered = append(filtered, item)
		}
	}
	b.subscribers[topic] = filtered
}
