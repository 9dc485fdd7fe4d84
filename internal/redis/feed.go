package redisclient

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/hackgods/clinic-appointment-booking/internal/events"
)

// ChangeFeed delivers committed events to live sessions over Redis pub/sub.
// Delivery is best effort; sessions refetch from the API after any message.
type ChangeFeed struct {
	client redis.UniversalClient
}

func NewChangeFeed(client redis.UniversalClient) *ChangeFeed {
	return &ChangeFeed{client: client}
}

// Publish sends the event on each of its channels.
func (f *ChangeFeed) Publish(ctx context.Context, ev events.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event %d: %w", ev.ID, err)
	}

	pipe := f.client.Pipeline()
	for _, ch := range ev.Channels() {
		pipe.Publish(ctx, ch, data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish event %d: %w", ev.ID, err)
	}
	return nil
}

// Subscription is one session's view of the feed.
type Subscription struct {
	pubsub *redis.PubSub
	events chan events.Event
}

// Subscribe listens on the given channels until ctx is done or Close is
// called. Messages that do not decode are dropped.
func (f *ChangeFeed) Subscribe(ctx context.Context, channels ...string) (events.Stream, error) {
	pubsub := f.client.Subscribe(ctx, channels...)
	// Wait for the subscription to be confirmed so no event is missed
	// between this call and the first read.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe %v: %w", channels, err)
	}

	sub := &Subscription{pubsub: pubsub, events: make(chan events.Event, 16)}
	go sub.pump(ctx)
	return sub, nil
}

func (s *Subscription) pump(ctx context.Context) {
	defer close(s.events)
	msgs := s.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			var ev events.Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				continue
			}
			select {
			case s.events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}
}

// Events is closed when the subscription ends.
func (s *Subscription) Events() <-chan events.Event {
	return s.events
}

func (s *Subscription) Close() error {
	return s.pubsub.Close()
}
