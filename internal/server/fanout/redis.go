package fanout

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/cipherroom/internal/logging"
	"github.com/redis/go-redis/v9"
)

// DefaultChannel is the redis pub/sub channel shared by all relay nodes.
const DefaultChannel = "cipherroom:events"

// RedisBus publishes events on a redis channel and delivers everything it
// receives, including its own publications, to local handlers.
type RedisBus struct {
	rdb     *redis.Client
	pubsub  *redis.PubSub
	channel string
	logger  logging.Logger

	mu       sync.RWMutex
	handlers []Handler
	done     chan struct{}
}

// NewRedisClient parses a redis:// URL and checks the server is reachable.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis url error: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping error: %w", err)
	}
	return rdb, nil
}

// NewRedisBus subscribes to channel and starts the receive loop.
func NewRedisBus(ctx context.Context, rdb *redis.Client, channel string, l logging.Logger) (*RedisBus, error) {
	ps := rdb.Subscribe(ctx, channel)
	// wait for the subscription confirmation so early publishes are not lost
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("redis subscribe error: %w", err)
	}

	b := &RedisBus{
		rdb:     rdb,
		pubsub:  ps,
		channel: channel,
		logger:  l.With("module", "redis_bus"),
		done:    make(chan struct{}),
	}
	go b.loop(ps.Channel())
	return b, nil
}

func (b *RedisBus) loop(ch <-chan *redis.Message) {
	defer close(b.done)
	for msg := range ch {
		ev, err := decodeEvent([]byte(msg.Payload))
		if err != nil {
			b.logger.Warn(context.Background(), "dropping malformed bus event", "error", err)
			continue
		}
		b.mu.RLock()
		hs := b.handlers
		b.mu.RUnlock()
		for _, h := range hs {
			h(ev)
		}
	}
}

func (b *RedisBus) Publish(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("bus encode error: %w", err)
	}
	if err := b.rdb.Publish(ctx, b.channel, data).Err(); err != nil {
		return fmt.Errorf("redis publish error: %w", err)
	}
	return nil
}

func (b *RedisBus) Subscribe(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

// Close stops the receive loop. The redis client itself is owned by the
// caller.
func (b *RedisBus) Close() error {
	err := b.pubsub.Close()
	<-b.done
	return err
}

func decodeEvent(data []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, err
	}
	if ev.Room == "" {
		return Event{}, fmt.Errorf("event without room")
	}
	switch ev.Kind {
	case KindChange:
		if ev.Change == nil {
			return Event{}, fmt.Errorf("change event without change")
		}
	case KindBroadcast:
	default:
		return Event{}, fmt.Errorf("unknown event kind %q", ev.Kind)
	}
	return ev, nil
}
