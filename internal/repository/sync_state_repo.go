package repository

import (
	"Relay/internal/model"
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

type SyncStateRepo interface {
	// GetCursors 读取设备游标，无记录按 (0, 0) 处理
	GetCursors(ctx context.Context, userID uint64, deviceID string, convID uint64) (delivered, read uint64, err error)
	// UpsertDelivered 推进送达游标，GREATEST 语义，可乱序/重复应用
	UpsertDelivered(ctx context.Context, userID uint64, deviceID string, convID, seq uint64) error
	// UpsertRead 推进已读游标，已读蕴含送达，两个游标一起抬升
	UpsertRead(ctx context.Context, userID uint64, deviceID string, convID, seq uint64) error
	ListByConversation(ctx context.Context, convID uint64) ([]*model.DeviceSyncState, error)
}

type syncStateRepoImpl struct {
	db *gorm.DB
}

func NewSyncStateRepo(db *gorm.DB) SyncStateRepo {
	return &syncStateRepoImpl{db: db}
}

func (s *syncStateRepoImpl) GetCursors(ctx context.Context, userID uint64, deviceID string, convID uint64) (uint64, uint64, error) {
	var st model.DeviceSyncState
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND device_id = ? AND conversation_id = ?", userID, deviceID, convID).
		First(&st).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, err
	}
	return st.LastDeliveredSeq, st.LastReadSeq, nil
}

func (s *syncStateRepoImpl) UpsertDelivered(ctx context.Context, userID uint64, deviceID string, convID, seq uint64) error {
	now := time.Now()
	return s.db.WithContext(ctx).Exec(`
		INSERT INTO sync_state (user_id, device_id, conversation_id, last_delivered_seq, last_read_seq, last_sync_at, updated_at)
		VALUES (?, ?, ?, ?, 0, ?, ?)
		ON DUPLICATE KEY UPDATE
			last_delivered_seq = GREATEST(last_delivered_seq, VALUES(last_delivered_seq)),
			last_sync_at = VALUES(last_sync_at),
			updated_at = VALUES(updated_at)`,
		userID, deviceID, convID, seq, now, now).Error
}

func (s *syncStateRepoImpl) UpsertRead(ctx context.Context, userID uint64, deviceID string, convID, seq uint64) error {
	now := time.Now()
	return s.db.WithContext(ctx).Exec(`
		INSERT INTO sync_state (user_id, device_id, conversation_id, last_delivered_seq, last_read_seq, last_sync_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			last_delivered_seq = GREATEST(last_delivered_seq, VALUES(last_delivered_seq)),
			last_read_seq = GREATEST(last_read_seq, VALUES(last_read_seq)),
			last_sync_at = VALUES(last_sync_at),
			updated_at = VALUES(updated_at)`,
		userID, deviceID, convID, seq, seq, now, now).Error
}

func (s *syncStateRepoImpl) ListByConversation(ctx context.Context, convID uint64) ([]*model.DeviceSyncState, error) {
	var rows []*model.DeviceSyncState
	err := s.db.WithContext(ctx).Where("conversation_id = ?", convID).Find(&rows).Error
	return rows, err
}
