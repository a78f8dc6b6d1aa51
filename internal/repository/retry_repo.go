package repository

import (
	"Relay/internal/model"
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RetryRepo 至少一次投递的重投簿记：投递消费者写入，回执按区间清除，定时任务重驱
type RetryRepo interface {
	Enqueue(ctx context.Context, rows []*model.MessageRetry) error
	// ClearUpTo 设备确认到 seq 后，清掉该设备在会话内不大于 seq 的全部待重投记录
	ClearUpTo(ctx context.Context, convID uint64, deviceID string, seq uint64) error
	ListDue(ctx context.Context, now time.Time, limit int) ([]*model.MessageRetry, error)
	Reschedule(ctx context.Context, id uint64, attempts uint32, nextAttemptAt time.Time) error
	Delete(ctx context.Context, id uint64) error
}

type retryRepoImpl struct {
	db *gorm.DB
}

func NewRetryRepo(db *gorm.DB) RetryRepo {
	return &retryRepoImpl{db: db}
}

func (s *retryRepoImpl) Enqueue(ctx context.Context, rows []*model.MessageRetry) error {
	if len(rows) == 0 {
		return nil
	}
	// 同一 (message, device) 已有记录则跳过，投递任务可安全重放
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "message_id"}, {Name: "device_id"}},
		DoNothing: true,
	}).Create(rows).Error
}

func (s *retryRepoImpl) ClearUpTo(ctx context.Context, convID uint64, deviceID string, seq uint64) error {
	return s.db.WithContext(ctx).
		Where("conversation_id = ? AND device_id = ? AND seq <= ?", convID, deviceID, seq).
		Delete(&model.MessageRetry{}).Error
}

func (s *retryRepoImpl) ListDue(ctx context.Context, now time.Time, limit int) ([]*model.MessageRetry, error) {
	var rows []*model.MessageRetry
	err := s.db.WithContext(ctx).
		Where("next_attempt_at <= ?", now).
		Order("next_attempt_at ASC").Limit(limit).Find(&rows).Error
	return rows, err
}

func (s *retryRepoImpl) Reschedule(ctx context.Context, id uint64, attempts uint32, nextAttemptAt time.Time) error {
	return s.db.WithContext(ctx).Model(&model.MessageRetry{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"attempts":        attempts,
			"next_attempt_at": nextAttemptAt,
		}).Error
}

func (s *retryRepoImpl) Delete(ctx context.Context, id uint64) error {
	return s.db.WithContext(ctx).Delete(&model.MessageRetry{}, id).Error
}
