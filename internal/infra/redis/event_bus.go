package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/redis/go-redis/v9"

	"live-quiz-service/internal/domain"
)

// EventBus fans session events out through Redis pub/sub so that sockets held
// by any instance follow the session. Payloads are JSON encoded events on
// channel quiz:session:{sessionID}:events.
type EventBus struct {
	client *redis.Client
	buffer int
}

func NewEventBus(client *redis.Client, buffer int) *EventBus {
	if buffer <= 0 {
		buffer = 16
	}
	return &EventBus{client: client, buffer: buffer}
}

func (b *EventBus) Publish(ctx context.Context, event domain.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return b.client.Publish(ctx, b.channel(event.SessionID), payload).Err()
}

// Subscribe returns once Redis confirmed the subscription, so no event
// published after the call is missed.
func (b *EventBus) Subscribe(ctx context.Context, sessionID string) (<-chan domain.Event, func(), error) {
	pubsub := b.client.Subscribe(ctx, b.channel(sessionID))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("subscribe session %s: %w", sessionID, err)
	}

	out := make(chan domain.Event, b.buffer)
	go func() {
		defer close(out)
		for msg := range pubsub.Channel() {
			var event domain.Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				log.Printf("event decode failed session_id=%s error=%v", sessionID, err)
				continue
			}
			select {
			case out <- event:
			default:
				// drop the oldest pending event for slow consumers
				select {
				case <-out:
				default:
				}
				out <- event
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() { _ = pubsub.Close() })
	}
	return out, cancel, nil
}

func (b *EventBus) channel(sessionID string) string {
	return "quiz:session:" + sessionID + ":events"
}
