package realtime

import (
	"Relay/internal/pkg/consts"
	"context"
	"errors"
	log "log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Presence 设备在线状态：每用户一个 ZSET，member 为设备号，score 为到期时间戳。
// 不依赖精确的断开通知，靠连接层周期续租 + 读取时惰性清理过期成员。
type Presence struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewPresence(rdb *redis.Client) *Presence {
	return &Presence{rdb: rdb, ttl: consts.PresenceTTLS * time.Second}
}

func presenceKey(userID uint64) string {
	return consts.PresenceDevicesKey + strconv.FormatUint(userID, 10)
}

// Connect 设备上线，返回该用户是否由离线转为在线（首设备边沿）。
// Redis 故障按"非边沿"处理，连接本身不受影响。
func (p *Presence) Connect(ctx context.Context, userID uint64, deviceID string) bool {
	key := presenceKey(userID)
	now := time.Now()
	var wasOnline bool

	pipe := p.rdb.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(now.Unix(), 10))
	countCmd := pipe.ZCard(ctx, key)
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.Add(p.ttl).Unix()), Member: deviceID})
	pipe.Expire(ctx, key, 2*p.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Error("presence connect failed", "userId", userID, "deviceId", deviceID, "err", err)
		return false
	}
	wasOnline = countCmd.Val() > 0
	return !wasOnline
}

// Refresh 心跳续租
func (p *Presence) Refresh(ctx context.Context, userID uint64, deviceID string) {
	key := presenceKey(userID)
	pipe := p.rdb.TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(time.Now().Add(p.ttl).Unix()), Member: deviceID})
	pipe.Expire(ctx, key, 2*p.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Warn("presence refresh failed", "userId", userID, "deviceId", deviceID, "err", err)
	}
}

// Disconnect 设备下线，返回该用户是否由在线转为离线（末设备边沿）
func (p *Presence) Disconnect(ctx context.Context, userID uint64, deviceID string) bool {
	key := presenceKey(userID)
	now := time.Now()

	pipe := p.rdb.TxPipeline()
	pipe.ZRem(ctx, key, deviceID)
	pipe.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(now.Unix(), 10))
	countCmd := pipe.ZCard(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Error("presence disconnect failed", "userId", userID, "deviceId", deviceID, "err", err)
		return false
	}
	if countCmd.Val() == 0 {
		// 末设备下线即清键，不等 TTL
		if err := p.rdb.Del(ctx, key).Err(); err != nil {
			log.Warn("presence key cleanup failed", "userId", userID, "err", err)
		}
		return true
	}
	return false
}

// IsOnline 用户是否有任一在线设备；Redis 故障按离线处理，
// 宁可多登记几条重投记录也不漏掉真正离线的设备
func (p *Presence) IsOnline(ctx context.Context, userID uint64) bool {
	n, err := p.rdb.ZCount(ctx, presenceKey(userID),
		strconv.FormatInt(time.Now().Unix(), 10), "+inf").Result()
	if err != nil {
		log.Warn("presence query failed, treat as offline", "userId", userID, "err", err)
		return false
	}
	return n > 0
}

// IsDeviceOnline 指定设备是否在线，Redis 故障同样按离线处理
func (p *Presence) IsDeviceOnline(ctx context.Context, userID uint64, deviceID string) bool {
	score, err := p.rdb.ZScore(ctx, presenceKey(userID), deviceID).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Warn("presence device query failed, treat as offline", "userId", userID, "deviceId", deviceID, "err", err)
		}
		return false
	}
	return int64(score) > time.Now().Unix()
}

// ListDevices 在线设备列表，惰性剔除过期成员
func (p *Presence) ListDevices(ctx context.Context, userID uint64) ([]string, error) {
	key := presenceKey(userID)
	now := strconv.FormatInt(time.Now().Unix(), 10)
	pipe := p.rdb.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "-inf", now)
	rangeCmd := pipe.ZRangeByScore(ctx, key, &redis.ZRangeBy{Min: now, Max: "+inf"})
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}
	return rangeCmd.Val(), nil
}
