package realtime

import (
	"Relay/internal/pkg/consts"
	"context"
	log "log/slog"
	"strings"

	"github.com/redis/go-redis/v9"
)

// Fanout 跨实例扇出订阅端：psubscribe ws:*，去前缀得到本地主题后分发。
// 频道名与本地主题名一一对应，新增主题类型无需改动这里。
type Fanout struct {
	registry *Registry
	rdb      *redis.Client
}

func NewFanout(registry *Registry, rdb *redis.Client) *Fanout {
	return &Fanout{registry: registry, rdb: rdb}
}

// Run 阻塞运行直到 ctx 取消，go-redis 在断线后自动重订阅
func (f *Fanout) Run(ctx context.Context) error {
	pubsub := f.rdb.PSubscribe(ctx, consts.WSChannelPrefix+"*")
	defer func() {
		_ = pubsub.Close()
	}()

	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}
	log.Info("fanout subscriber started", "pattern", consts.WSChannelPrefix+"*")

	ch := pubsub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			topic := strings.TrimPrefix(msg.Channel, consts.WSChannelPrefix)
			f.registry.Publish(topic, []byte(msg.Payload))
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
