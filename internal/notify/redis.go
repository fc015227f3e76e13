package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	sessionChannel = "bridge:sessions"
	publishTimeout = 5 * time.Second
)

// sessionEvent is the message published to Redis for each lifecycle change.
type sessionEvent struct {
	Event    string `json:"event"` // "joined" or "left"
	UserID   string `json:"user_id"`
	RoomName string `json:"room_name,omitempty"`
	At       int64  `json:"at"`
}

// RedisNotifier publishes lifecycle events on a Redis pub/sub channel so
// other instances and the status UI can follow session membership.
type RedisNotifier struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisNotifier creates a Redis-backed notifier.
func NewRedisNotifier(client *redis.Client, logger *zap.Logger) *RedisNotifier {
	return &RedisNotifier{client: client, logger: logger}
}

func (n *RedisNotifier) SessionJoined(userID, roomName string) {
	n.publish(sessionEvent{Event: "joined", UserID: userID, RoomName: roomName, At: time.Now().Unix()})
}

func (n *RedisNotifier) SessionLeft(userID string) {
	n.publish(sessionEvent{Event: "left", UserID: userID, At: time.Now().Unix()})
}

func (n *RedisNotifier) publish(ev sessionEvent) {
	body, err := json.Marshal(ev)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := n.client.Publish(ctx, sessionChannel, body).Err(); err != nil {
		n.logger.Warn("publish session event", zap.String("event", ev.Event), zap.Error(err))
	}
}
