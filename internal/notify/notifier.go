package notify

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"

	redisclient "github.com/voicepair/voicepair-go/internal/redis"
)

// Event is one row-change notification. It is a latency hint, not a
// delivery guarantee: every consumer pairs a subscription with a poll of the
// same store query, and both paths feed the same dedup inbox.
type Event struct {
	Table string          `json:"table"`
	RowID string          `json:"rowId"`
	Data  json.RawMessage `json:"data,omitempty"`
}

const (
	TableQueue    = "queue"
	TableSessions = "sessions"
	TableSignals  = "signals"
)

// Notifier publishes and subscribes row-change events over Redis pub/sub.
type Notifier struct {
	redis *redisclient.Client
}

func NewNotifier(redisClient *redisclient.Client) *Notifier {
	return &Notifier{redis: redisClient}
}

func (n *Notifier) Publish(ctx context.Context, channel string, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return n.redis.Publish(ctx, channel, data).Err()
}

// Subscription is one push-path listener. Events stop flowing when the
// channel silently dies; callers never block on it alone.
type Subscription struct {
	Events <-chan Event
	cancel context.CancelFunc
}

func (s *Subscription) Close() {
	s.cancel()
}

// NewSubscription wraps an externally produced event channel. Consumers that
// compose their own push source (and tests) use it; the cancel function runs
// on Close.
func NewSubscription(events <-chan Event, cancel context.CancelFunc) *Subscription {
	if cancel == nil {
		cancel = func() {}
	}
	return &Subscription{Events: events, cancel: cancel}
}

// Subscribe starts listening on a channel. The returned subscription is
// buffered; events are dropped, not queued, when the consumer lags, because
// the poller re-reads the store anyway.
func (n *Notifier) Subscribe(ctx context.Context, channel string) *Subscription {
	subCtx, cancel := context.WithCancel(ctx)
	events := make(chan Event, 64)

	pubsub := n.redis.Subscribe(subCtx, channel)

	go func() {
		defer pubsub.Close()
		defer close(events)

		ch := pubsub.Channel()
		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var event Event
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					log.Error().Err(err).Str("channel", channel).Msg("failed to unmarshal event")
					continue
				}
				select {
				case events <- event:
				default:
					log.Warn().Str("channel", channel).Msg("subscriber buffer full, dropping event")
				}
			}
		}
	}()

	return &Subscription{Events: events, cancel: cancel}
}
