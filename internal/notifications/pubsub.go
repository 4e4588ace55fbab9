package notifications

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/aura-erp/meeting-scheduler/internal/models"
)

const channelPrefix = "notifications:"

// RedisPubSub carries notifications between instances so any server can push to any connected user.
type RedisPubSub struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisPubSub creates a Redis pub/sub bridge for notifications.
func NewRedisPubSub(client *redis.Client, logger *zap.Logger) *RedisPubSub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisPubSub{client: client, logger: logger}
}

func channel(userID uuid.UUID) string {
	return channelPrefix + userID.String()
}

// PublishNotification implements Publisher.
func (r *RedisPubSub) PublishNotification(ctx context.Context, n models.Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, channel(n.UserID), body).Err()
}

// Subscribe calls handler for every notification published for userID until cancel is called.
func (r *RedisPubSub) Subscribe(userID uuid.UUID, handler func(models.Notification)) (cancel func(), err error) {
	ctx, cancelCtx := context.WithCancel(context.Background())
	pubsub := r.client.Subscribe(ctx, channel(userID))
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
				var n models.Notification
				if err := json.Unmarshal([]byte(msg.Payload), &n); err != nil {
					r.logger.Debug("dropping malformed notification", zap.Error(err))
					continue
				}
				handler(n)
			}
		}
	}()
	return cancelCtx, nil
}
