package repository

import (
	"Relay/internal/model"
	"context"
	"errors"

	"gorm.io/gorm"
)

// ConversationRepo 会话/成员归属外部子系统，这里只暴露核心需要的窄接口
type ConversationRepo interface {
	GetConversation(ctx context.Context, convID uint64) (*model.Conversation, error)
	IsMember(ctx context.Context, convID, userID uint64) (bool, error)
	ListConversationIDsForUser(ctx context.Context, userID uint64) ([]uint64, error)
	ListMemberUserIDs(ctx context.Context, convID uint64) ([]uint64, error)
	// RaiseMemberReadSeq 推进成员已读水位（未读数计算依据），GREATEST 保证只增不减
	RaiseMemberReadSeq(ctx context.Context, convID, userID, seq uint64) error
}

type conversationRepoImpl struct {
	db *gorm.DB
}

func NewConversationRepo(db *gorm.DB) ConversationRepo {
	return &conversationRepoImpl{db: db}
}

func (s *conversationRepoImpl) GetConversation(ctx context.Context, convID uint64) (*model.Conversation, error) {
	var conv model.Conversation
	err := s.db.WithContext(ctx).First(&conv, convID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// IsMember 检查用户是否为会话在席成员
func (s *conversationRepoImpl) IsMember(ctx context.Context, convID, userID uint64) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&model.ConversationMember{}).
		Where("conversation_id = ? AND user_id = ? AND left_at IS NULL", convID, userID).
		Count(&count).Error
	return count > 0, err
}

func (s *conversationRepoImpl) ListConversationIDsForUser(ctx context.Context, userID uint64) ([]uint64, error) {
	var ids []uint64
	err := s.db.WithContext(ctx).Model(&model.ConversationMember{}).
		Where("user_id = ? AND left_at IS NULL", userID).
		Pluck("conversation_id", &ids).Error
	return ids, err
}

func (s *conversationRepoImpl) ListMemberUserIDs(ctx context.Context, convID uint64) ([]uint64, error) {
	var ids []uint64
	err := s.db.WithContext(ctx).Model(&model.ConversationMember{}).
		Where("conversation_id = ? AND left_at IS NULL", convID).
		Pluck("user_id", &ids).Error
	return ids, err
}

func (s *conversationRepoImpl) RaiseMemberReadSeq(ctx context.Context, convID, userID, seq uint64) error {
	return s.db.WithContext(ctx).Model(&model.ConversationMember{}).
		Where("conversation_id = ? AND user_id = ? AND left_at IS NULL", convID, userID).
		Update("last_read_seq", gorm.Expr("GREATEST(last_read_seq, ?)", seq)).Error
}
