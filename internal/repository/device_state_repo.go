package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// ReceiptRow 单设备回执视图，user_id 来自 sync_state 反查，可能为空
type ReceiptRow struct {
	DeviceID    string     `json:"deviceId"`
	DeliveredAt *time.Time `json:"deliveredAt"`
	ReadAt      *time.Time `json:"readAt"`
	UserID      *uint64    `json:"userId"`
}

type DeviceStateRepo interface {
	// MarkDeliveredRange 为 (fromSeq, toSeq] 区间内的消息补写设备送达回执，首写生效
	MarkDeliveredRange(ctx context.Context, convID uint64, deviceID string, fromSeq, toSeq uint64, at time.Time) error
	// MarkReadRange 同时补写送达与已读
	MarkReadRange(ctx context.Context, convID uint64, deviceID string, fromSeq, toSeq uint64, at time.Time) error
	ListReceipts(ctx context.Context, convID, messageID uint64) ([]*ReceiptRow, error)
}

type deviceStateRepoImpl struct {
	db *gorm.DB
}

func NewDeviceStateRepo(db *gorm.DB) DeviceStateRepo {
	return &deviceStateRepoImpl{db: db}
}

// 区间补写走 INSERT..SELECT，IFNULL 保证 delivered_at/read_at 各自只被第一次确认写入
func (s *deviceStateRepoImpl) MarkDeliveredRange(ctx context.Context, convID uint64, deviceID string, fromSeq, toSeq uint64, at time.Time) error {
	return s.db.WithContext(ctx).Exec(`
		INSERT INTO message_device_states (message_id, device_id, delivered_at)
		SELECT m.id, ?, ?
		FROM messages m
		WHERE m.conversation_id = ? AND m.seq > ? AND m.seq <= ?
		ON DUPLICATE KEY UPDATE
			delivered_at = IFNULL(message_device_states.delivered_at, VALUES(delivered_at))`,
		deviceID, at, convID, fromSeq, toSeq).Error
}

func (s *deviceStateRepoImpl) MarkReadRange(ctx context.Context, convID uint64, deviceID string, fromSeq, toSeq uint64, at time.Time) error {
	return s.db.WithContext(ctx).Exec(`
		INSERT INTO message_device_states (message_id, device_id, delivered_at, read_at)
		SELECT m.id, ?, ?, ?
		FROM messages m
		WHERE m.conversation_id = ? AND m.seq > ? AND m.seq <= ?
		ON DUPLICATE KEY UPDATE
			delivered_at = IFNULL(message_device_states.delivered_at, VALUES(delivered_at)),
			read_at = IFNULL(message_device_states.read_at, VALUES(read_at))`,
		deviceID, at, at, convID, fromSeq, toSeq).Error
}

// ListReceipts 每设备一行，user_id 取该设备在本会话内最近一次同步的归属
func (s *deviceStateRepoImpl) ListReceipts(ctx context.Context, convID, messageID uint64) ([]*ReceiptRow, error) {
	var rows []*ReceiptRow
	err := s.db.WithContext(ctx).Raw(`
		SELECT mds.device_id AS device_id,
		       mds.delivered_at AS delivered_at,
		       mds.read_at AS read_at,
		       ss.user_id AS user_id
		FROM message_device_states mds
		LEFT JOIN sync_state ss
		       ON ss.device_id = mds.device_id AND ss.conversation_id = ?
		WHERE mds.message_id = ?
		ORDER BY mds.device_id`,
		convID, messageID).Scan(&rows).Error
	return rows, err
}
