package repository

import (
	"Relay/internal/model"
	"context"
	"errors"
	"time"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrTempIDConflict 幂等键插入竞争：同一事务内补查仍未命中时抛出，由 Service 层换新事务重查
var ErrTempIDConflict = errors.New("client temp id conflict")

type MessageRepo interface {
	// CreateWithSeq 在单个事务内完成幂等短路、定序与落库，返回是否真正新建
	CreateWithSeq(ctx context.Context, msg *model.Message) (bool, error)
	FindByClientTempID(ctx context.Context, convID, senderUserID uint64, senderDeviceID, tempID string) (*model.Message, error)
	GetByID(ctx context.Context, convID, messageID uint64) (*model.Message, error)
	ListBefore(ctx context.Context, convID uint64, beforeSeq uint64, limit int) ([]*model.Message, error)
	ListAfter(ctx context.Context, convID uint64, afterSeq uint64, limit int) ([]*model.Message, error)
	Edit(ctx context.Context, convID, messageID, userID uint64, body string) (*model.Message, error)
	SoftDeleteForAll(ctx context.Context, convID, messageID, userID uint64) (*model.Message, error)
}

type messageRepoImpl struct {
	db *gorm.DB
}

func NewMessageRepo(db *gorm.DB) MessageRepo {
	return &messageRepoImpl{db: db}
}

// CreateWithSeq 核心定序逻辑：会话行锁串行化，seq = MAX(已有 seq) + 1，无空洞
// 幂等键撞唯一索引时在锁内补查一次，命中则回填原消息并按"未新建"返回。
func (s *messageRepoImpl) CreateWithSeq(ctx context.Context, msg *model.Message) (bool, error) {
	created := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if msg.ClientTempID != nil {
			var existing model.Message
			err := tx.Where(
				"conversation_id = ? AND sender_user_id = ? AND sender_device_id = ? AND client_temp_id = ?",
				msg.ConversationID, msg.SenderUserID, msg.SenderDeviceID, *msg.ClientTempID,
			).First(&existing).Error
			if err == nil {
				*msg = existing
				return nil
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
		}

		// 锁住会话行，串行化本会话的所有并发发送
		var conv model.Conversation
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&conv, msg.ConversationID).Error; err != nil {
			return err
		}

		var maxSeq uint64
		if err := tx.Model(&model.Message{}).
			Where("conversation_id = ?", msg.ConversationID).
			Select("COALESCE(MAX(seq), 0)").Scan(&maxSeq).Error; err != nil {
			return err
		}
		msg.Seq = maxSeq + 1
		msg.CreatedAt = time.Now()

		if err := tx.Create(msg).Error; err != nil {
			if msg.ClientTempID != nil && IsDuplicateKeyError(err) {
				// 并发重发撞键：锁内读最新已提交行
				var existing model.Message
				lerr := tx.Clauses(clause.Locking{Strength: "SHARE"}).Where(
					"conversation_id = ? AND sender_user_id = ? AND sender_device_id = ? AND client_temp_id = ?",
					msg.ConversationID, msg.SenderUserID, msg.SenderDeviceID, *msg.ClientTempID,
				).First(&existing).Error
				if lerr == nil {
					*msg = existing
					return nil
				}
				return ErrTempIDConflict
			}
			return err
		}

		// 推进会话活跃标记（会话列表排序依据）与序列水位
		if err := tx.Model(&model.Conversation{}).Where("id = ?", msg.ConversationID).
			Updates(map[string]interface{}{
				"max_msg_seq":     msg.Seq,
				"last_message_at": msg.CreatedAt,
			}).Error; err != nil {
			return err
		}

		created = true
		return nil
	})
	return created, err
}

func (s *messageRepoImpl) FindByClientTempID(ctx context.Context, convID, senderUserID uint64, senderDeviceID, tempID string) (*model.Message, error) {
	var msg model.Message
	err := s.db.WithContext(ctx).Where(
		"conversation_id = ? AND sender_user_id = ? AND sender_device_id = ? AND client_temp_id = ?",
		convID, senderUserID, senderDeviceID, tempID,
	).First(&msg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (s *messageRepoImpl) GetByID(ctx context.Context, convID, messageID uint64) (*model.Message, error) {
	var msg model.Message
	err := s.db.WithContext(ctx).
		Where("id = ? AND conversation_id = ?", messageID, convID).
		First(&msg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// ListBefore 倒序取一页后正序返回，并装配表态聚合
func (s *messageRepoImpl) ListBefore(ctx context.Context, convID uint64, beforeSeq uint64, limit int) ([]*model.Message, error) {
	q := s.db.WithContext(ctx).Where("conversation_id = ?", convID)
	if beforeSeq > 0 {
		q = q.Where("seq < ?", beforeSeq)
	}
	var page []*model.Message
	if err := q.Order("seq DESC").Limit(limit).Find(&page).Error; err != nil {
		return nil, err
	}
	// 正序
	for i, j := 0, len(page)-1; i < j; i, j = i+1, j-1 {
		page[i], page[j] = page[j], page[i]
	}
	return s.attachReactions(ctx, page)
}

func (s *messageRepoImpl) ListAfter(ctx context.Context, convID uint64, afterSeq uint64, limit int) ([]*model.Message, error) {
	var rows []*model.Message
	err := s.db.WithContext(ctx).
		Where("conversation_id = ? AND seq > ?", convID, afterSeq).
		Order("seq ASC").Limit(limit).Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// Edit 条件更新：仅发送者本人、text 类型且未删除的消息可编辑；未命中返回 nil
func (s *messageRepoImpl) Edit(ctx context.Context, convID, messageID, userID uint64, body string) (*model.Message, error) {
	res := s.db.WithContext(ctx).Model(&model.Message{}).
		Where("id = ? AND conversation_id = ? AND sender_user_id = ? AND content_type = ? AND deleted_for_all_at IS NULL",
			messageID, convID, userID, model.ContentTypeText).
		Updates(map[string]interface{}{
			"body":         body,
			"edit_version": gorm.Expr("edit_version + 1"),
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return s.GetByID(ctx, convID, messageID)
}

// SoftDeleteForAll 墓碑化：清空正文、类型转 system，seq 位置保留不重排
func (s *messageRepoImpl) SoftDeleteForAll(ctx context.Context, convID, messageID, userID uint64) (*model.Message, error) {
	res := s.db.WithContext(ctx).Model(&model.Message{}).
		Where("id = ? AND conversation_id = ? AND sender_user_id = ? AND deleted_for_all_at IS NULL",
			messageID, convID, userID).
		Updates(map[string]interface{}{
			"deleted_for_all_at": time.Now(),
			"body":               "",
			"content_type":       model.ContentTypeSystem,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return s.GetByID(ctx, convID, messageID)
}

func (s *messageRepoImpl) attachReactions(ctx context.Context, msgs []*model.Message) ([]*model.Message, error) {
	if len(msgs) == 0 {
		return msgs, nil
	}
	ids := make([]uint64, 0, len(msgs))
	byID := make(map[uint64]*model.Message, len(msgs))
	for _, m := range msgs {
		ids = append(ids, m.ID)
		byID[m.ID] = m
	}
	var reactions []model.MessageReaction
	if err := s.db.WithContext(ctx).Where("message_id IN ?", ids).Find(&reactions).Error; err != nil {
		return nil, err
	}
	for _, r := range reactions {
		if m := byID[r.MessageID]; m != nil {
			m.Reactions = append(m.Reactions, r)
		}
	}
	return msgs, nil
}

// IsDuplicateKeyError 识别 MySQL 1062 唯一键冲突
func IsDuplicateKeyError(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == 1062
}
