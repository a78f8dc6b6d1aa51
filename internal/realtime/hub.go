package realtime

import (
	"Relay/internal/pkg/consts"
	"context"
	log "log/slog"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// Hub 事件出口：统一走 Redis 频道做跨实例扇出，本实例同样经订阅回路收到。
// Redis 发布失败时退化为仅本地投递，单实例部署下行为不变。
type Hub struct {
	registry *Registry
	rdb      *redis.Client
}

func NewHub(registry *Registry, rdb *redis.Client) *Hub {
	return &Hub{registry: registry, rdb: rdb}
}

func (h *Hub) Registry() *Registry {
	return h.registry
}

func (h *Hub) PublishToConversation(ctx context.Context, convID uint64, event string, payload any) error {
	data, err := NewEvent(event, payload)
	if err != nil {
		return err
	}
	channel := consts.WSConversationChannel + strconv.FormatUint(convID, 10)
	return h.publish(ctx, channel, ConversationTopic(convID), data)
}

func (h *Hub) PublishToUser(ctx context.Context, userID uint64, event string, payload any) error {
	data, err := NewEvent(event, payload)
	if err != nil {
		return err
	}
	channel := consts.WSUserChannel + strconv.FormatUint(userID, 10)
	return h.publish(ctx, channel, UserTopic(userID), data)
}

// PublishPresence 在线状态沿全局频道广播
func (h *Hub) PublishPresence(ctx context.Context, userID uint64, online bool) {
	data, err := NewEvent(consts.EventPresenceUpdate, &presencePayload{UserID: userID, Online: online})
	if err != nil {
		return
	}
	if err := h.publish(ctx, consts.WSFeedGlobalChannel, consts.TopicFeedGlobal, data); err != nil {
		log.Error("publish presence failed", "userId", userID, "err", err)
	}
}

func (h *Hub) publish(ctx context.Context, channel, localTopic string, data []byte) error {
	if err := h.rdb.Publish(ctx, channel, data).Err(); err != nil {
		log.Warn("redis publish failed, local fallback", "channel", channel, "err", err)
		h.registry.Publish(localTopic, data)
		return nil
	}
	return nil
}
