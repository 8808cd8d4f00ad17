package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Netsync-Automation/PracticeTools-sub004/internal/models"
)

const (
	eventsChannel = "practicetools:recording-events"
	eventTTL      = 5 * time.Second
)

// redisPayload is the message published to Redis for cross-instance broadcast.
type redisPayload struct {
	Event models.Event `json:"event"`
	At    int64        `json:"at"`
}

// RedisPubSub implements Bridge over Redis pub/sub.
type RedisPubSub struct {
	client  *redis.Client
	channel string
	logger  *zap.Logger
}

// NewRedisPubSub creates a Redis bridge for pipeline events.
func NewRedisPubSub(client *redis.Client, logger *zap.Logger) *RedisPubSub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisPubSub{client: client, channel: eventsChannel, logger: logger}
}

// PublishEvent publishes ev on the shared events channel.
func (r *RedisPubSub) PublishEvent(ctx context.Context, ev models.Event) error {
	body, err := json.Marshal(redisPayload{Event: ev, At: time.Now().Unix()})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return r.client.Publish(ctx, r.channel, body).Err()
}

// SubscribeEvents calls handler for every event published by any instance until
// cancel is called or ctx is done.
func (r *RedisPubSub) SubscribeEvents(ctx context.Context, handler func(models.Event)) (cancel func(), err error) {
	ctx, cancelCtx := context.WithCancel(ctx)
	pubsub := r.client.Subscribe(ctx, r.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		cancelCtx()
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	ch := pubsub.Channel()
	go func() {
		defer pubsub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var p redisPayload
				if err := json.Unmarshal([]byte(msg.Payload), &p); err != nil {
					r.logger.Warn("bad event payload on redis", zap.Error(err))
					continue
				}
				handler(p.Event)
			}
		}
	}()
	return cancelCtx, nil
}
