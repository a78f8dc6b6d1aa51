package repository

import (
	"Relay/internal/model"
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ReactionRepo interface {
	// Upsert 同一 (message, user) 后写覆盖 emoji
	Upsert(ctx context.Context, messageID, userID uint64, emoji string) (*model.MessageReaction, error)
	Delete(ctx context.Context, messageID, userID uint64) (bool, error)
}

type reactionRepoImpl struct {
	db *gorm.DB
}

func NewReactionRepo(db *gorm.DB) ReactionRepo {
	return &reactionRepoImpl{db: db}
}

func (s *reactionRepoImpl) Upsert(ctx context.Context, messageID, userID uint64, emoji string) (*model.MessageReaction, error) {
	now := time.Now()
	row := &model.MessageReaction{
		MessageID: messageID,
		UserID:    userID,
		Emoji:     emoji,
		ReactedAt: now,
		UpdatedAt: now,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "message_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"emoji", "updated_at"}),
	}).Create(row).Error
	if err != nil {
		return nil, err
	}
	var out model.MessageReaction
	if err := s.db.WithContext(ctx).
		Where("message_id = ? AND user_id = ?", messageID, userID).
		First(&out).Error; err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *reactionRepoImpl) Delete(ctx context.Context, messageID, userID uint64) (bool, error) {
	res := s.db.WithContext(ctx).
		Where("message_id = ? AND user_id = ?", messageID, userID).
		Delete(&model.MessageReaction{})
	return res.RowsAffected > 0, res.Error
}
