package service

import (
	"Relay/internal/api/dto"
	"Relay/internal/model"
	"Relay/internal/pkg/consts"
	"Relay/internal/repository"
	"context"
	"errors"
	log "log/slog"
	"strings"

	"github.com/jinzhu/copier"
)

// DeliveryEnqueuer 投递任务入队，由 Kafka 生产者实现；入队失败只记日志，
// 离线设备仍可通过重连补拉兜底
type DeliveryEnqueuer interface {
	EnqueueDelivery(ctx context.Context, messageID, conversationID, seq uint64) error
}

// EventPublisher 实时事件发布，由 Redis 扇出层实现
type EventPublisher interface {
	PublishToConversation(ctx context.Context, convID uint64, event string, payload any) error
	PublishToUser(ctx context.Context, userID uint64, event string, payload any) error
}

// MessageService 消息核心服务接口定义
type MessageService interface {
	// Send 幂等发送：同一 (会话, 用户, 设备, tempId) 重发返回原消息，created=false
	Send(ctx context.Context, userID uint64, deviceID string, req *dto.SendMessageReq) (*dto.MessageDTO, bool, error)
	GetHistory(ctx context.Context, userID, convID, beforeSeq uint64, limit int) ([]*dto.MessageDTO, error)
	GetReceipts(ctx context.Context, userID, convID, messageID uint64) ([]*dto.ReceiptDTO, error)
	Edit(ctx context.Context, userID, convID, messageID uint64, body string) (*dto.MessageDTO, error)
	DeleteForAll(ctx context.Context, userID, convID, messageID uint64) (*dto.MessageDTO, error)
	SetReaction(ctx context.Context, userID, convID, messageID uint64, emoji string) (*dto.ReactionDTO, error)
	RemoveReaction(ctx context.Context, userID, convID, messageID uint64) error
}

type messageServiceImpl struct {
	messageRepo  repository.MessageRepo
	convRepo     repository.ConversationRepo
	reactionRepo repository.ReactionRepo
	deviceRepo   repository.DeviceStateRepo
	verifier     MediaVerifier
	enqueuer     DeliveryEnqueuer
	publisher    EventPublisher
}

func NewMessageService(
	messageRepo repository.MessageRepo,
	convRepo repository.ConversationRepo,
	reactionRepo repository.ReactionRepo,
	deviceRepo repository.DeviceStateRepo,
	verifier MediaVerifier,
	enqueuer DeliveryEnqueuer,
	publisher EventPublisher,
) MessageService {
	return &messageServiceImpl{
		messageRepo:  messageRepo,
		convRepo:     convRepo,
		reactionRepo: reactionRepo,
		deviceRepo:   deviceRepo,
		verifier:     verifier,
		enqueuer:     enqueuer,
		publisher:    publisher,
	}
}

func (s *messageServiceImpl) Send(ctx context.Context, userID uint64, deviceID string, req *dto.SendMessageReq) (*dto.MessageDTO, bool, error) {
	conv, err := s.convRepo.GetConversation(ctx, req.ConversationID)
	if err != nil {
		return nil, false, err
	}
	if conv == nil {
		return nil, false, ErrConversationNotFound
	}
	isMember, err := s.convRepo.IsMember(ctx, req.ConversationID, userID)
	if err != nil {
		return nil, false, err
	}
	if !isMember {
		return nil, false, ErrNotMember
	}
	if err := s.validateContent(ctx, userID, req); err != nil {
		return nil, false, err
	}

	msg := &model.Message{
		ConversationID:  req.ConversationID,
		SenderUserID:    userID,
		SenderDeviceID:  deviceID,
		ContentType:     req.ContentType,
		Body:            req.Body,
		MediaAssetID:    req.MediaAssetID,
		ClientTempID:    req.TempID,
		ClientTimestamp: req.ClientTimestamp,
	}

	created, err := s.messageRepo.CreateWithSeq(ctx, msg)
	if errors.Is(err, repository.ErrTempIDConflict) {
		// 幂等键竞争：换新事务重查一次，此时并发方已提交
		existing, ferr := s.messageRepo.FindByClientTempID(ctx, req.ConversationID, userID, deviceID, *req.TempID)
		if ferr != nil {
			return nil, false, ferr
		}
		if existing == nil {
			log.Error("temp id conflict but original row missing",
				"conversationId", req.ConversationID, "userId", userID, "tempId", *req.TempID)
			return nil, false, UnExpectedError
		}
		return ToMessageDTO(existing), false, nil
	}
	if err != nil {
		return nil, false, err
	}

	d := ToMessageDTO(msg)
	if created {
		if eerr := s.enqueuer.EnqueueDelivery(ctx, msg.ID, msg.ConversationID, msg.Seq); eerr != nil {
			// 入队失败时直接经扇出层推送，在线端不丢实时；离线端靠补拉兜底
			log.Error("enqueue delivery failed, fallback to direct push",
				"messageId", msg.ID, "conversationId", msg.ConversationID, "err", eerr)
			s.publishConv(ctx, msg.ConversationID, consts.EventMessagePush, d)
		}
	}
	return d, created, nil
}

// validateContent 按消息类型校验内容约束，未指定类型按文本处理
func (s *messageServiceImpl) validateContent(ctx context.Context, userID uint64, req *dto.SendMessageReq) error {
	if req.ContentType == "" {
		req.ContentType = model.ContentTypeText
	}
	switch req.ContentType {
	case model.ContentTypeText, model.ContentTypeSystem:
		if strings.TrimSpace(req.Body) == "" || len(req.Body) > consts.MaxBodyLen {
			return ErrInvalidBody
		}
		if req.MediaAssetID != nil {
			return ErrInvalidMedia
		}
	case model.ContentTypeMedia:
		if req.MediaAssetID == nil || *req.MediaAssetID == "" {
			return ErrInvalidMedia
		}
		if len(req.Body) > consts.MaxBodyLen {
			return ErrInvalidBody
		}
		ok, err := s.verifier.Verify(ctx, *req.MediaAssetID, userID)
		if err != nil || !ok {
			return ErrInvalidMedia
		}
	default:
		return ErrInvalidContentType
	}
	return nil
}

func (s *messageServiceImpl) GetHistory(ctx context.Context, userID, convID, beforeSeq uint64, limit int) ([]*dto.MessageDTO, error) {
	isMember, err := s.convRepo.IsMember(ctx, convID, userID)
	if err != nil {
		return nil, err
	}
	if !isMember {
		return nil, ErrNotMember
	}
	if limit <= 0 || limit > consts.HistoryPageLimit {
		limit = consts.HistoryPageLimit
	}
	msgs, err := s.messageRepo.ListBefore(ctx, convID, beforeSeq, limit)
	if err != nil {
		return nil, err
	}
	res := make([]*dto.MessageDTO, 0, len(msgs))
	for _, m := range msgs {
		res = append(res, ToMessageDTO(m))
	}
	return res, nil
}

func (s *messageServiceImpl) GetReceipts(ctx context.Context, userID, convID, messageID uint64) ([]*dto.ReceiptDTO, error) {
	isMember, err := s.convRepo.IsMember(ctx, convID, userID)
	if err != nil {
		return nil, err
	}
	if !isMember {
		return nil, ErrNotMember
	}
	msg, err := s.messageRepo.GetByID(ctx, convID, messageID)
	if err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, ErrMessageNotFound
	}
	rows, err := s.deviceRepo.ListReceipts(ctx, convID, messageID)
	if err != nil {
		return nil, err
	}
	res := make([]*dto.ReceiptDTO, 0, len(rows))
	for _, r := range rows {
		res = append(res, &dto.ReceiptDTO{
			DeviceID:    r.DeviceID,
			UserID:      r.UserID,
			DeliveredAt: r.DeliveredAt,
			ReadAt:      r.ReadAt,
		})
	}
	return res, nil
}

// Edit 仅发送者本人可编辑 text 消息；条件更新未命中统一视为无权限
func (s *messageServiceImpl) Edit(ctx context.Context, userID, convID, messageID uint64, body string) (*dto.MessageDTO, error) {
	if strings.TrimSpace(body) == "" || len(body) > consts.MaxBodyLen {
		return nil, ErrInvalidBody
	}
	isMember, err := s.convRepo.IsMember(ctx, convID, userID)
	if err != nil {
		return nil, err
	}
	if !isMember {
		return nil, ErrNotMember
	}
	msg, err := s.messageRepo.Edit(ctx, convID, messageID, userID, body)
	if err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, ErrEditDenied
	}
	d := ToMessageDTO(msg)
	s.publishConv(ctx, convID, consts.EventMessageEdit, map[string]any{
		"conversationId": convID,
		"messageId":      messageID,
		"body":           msg.Body,
		"editVersion":    msg.EditVersion,
	})
	return d, nil
}

func (s *messageServiceImpl) DeleteForAll(ctx context.Context, userID, convID, messageID uint64) (*dto.MessageDTO, error) {
	isMember, err := s.convRepo.IsMember(ctx, convID, userID)
	if err != nil {
		return nil, err
	}
	if !isMember {
		return nil, ErrNotMember
	}
	msg, err := s.messageRepo.SoftDeleteForAll(ctx, convID, messageID, userID)
	if err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, ErrDeleteDenied
	}
	d := ToMessageDTO(msg)
	s.publishConv(ctx, convID, consts.EventMessageDelete, map[string]any{
		"conversationId":  convID,
		"messageId":       messageID,
		"deletedForAllAt": msg.DeletedForAllAt,
	})
	return d, nil
}

func (s *messageServiceImpl) SetReaction(ctx context.Context, userID, convID, messageID uint64, emoji string) (*dto.ReactionDTO, error) {
	if n := len([]rune(emoji)); n < 1 || n > consts.MaxEmojiLen {
		return nil, ErrInvalidReaction
	}
	isMember, err := s.convRepo.IsMember(ctx, convID, userID)
	if err != nil {
		return nil, err
	}
	if !isMember {
		return nil, ErrNotMember
	}
	msg, err := s.messageRepo.GetByID(ctx, convID, messageID)
	if err != nil {
		return nil, err
	}
	if msg == nil || msg.DeletedForAllAt != nil {
		return nil, ErrMessageNotFound
	}
	row, err := s.reactionRepo.Upsert(ctx, messageID, userID, emoji)
	if err != nil {
		return nil, err
	}
	d := &dto.ReactionDTO{UserID: row.UserID, Emoji: row.Emoji, ReactedAt: row.ReactedAt}
	s.publishConv(ctx, convID, consts.EventReactionUpdate, map[string]any{
		"conversationId": convID,
		"messageId":      messageID,
		"userId":         userID,
		"emoji":          row.Emoji,
		"updatedAt":      row.UpdatedAt,
	})
	return d, nil
}

func (s *messageServiceImpl) RemoveReaction(ctx context.Context, userID, convID, messageID uint64) error {
	isMember, err := s.convRepo.IsMember(ctx, convID, userID)
	if err != nil {
		return err
	}
	if !isMember {
		return ErrNotMember
	}
	removed, err := s.reactionRepo.Delete(ctx, messageID, userID)
	if err != nil {
		return err
	}
	if !removed {
		return ErrReactionMissing
	}
	s.publishConv(ctx, convID, consts.EventReactionUpdate, map[string]any{
		"conversationId": convID,
		"messageId":      messageID,
		"userId":         userID,
		"emoji":          nil,
	})
	return nil
}

func (s *messageServiceImpl) publishConv(ctx context.Context, convID uint64, event string, payload any) {
	if err := s.publisher.PublishToConversation(ctx, convID, event, payload); err != nil {
		log.Error("publish conversation event failed", "conversationId", convID, "event", event, "err", err)
	}
}

// ToMessageDTO 模型到响应结构的映射，投递管道复用
func ToMessageDTO(m *model.Message) *dto.MessageDTO {
	d := &dto.MessageDTO{}
	_ = copier.Copy(d, m)
	d.Reactions = nil
	d.TempID = m.ClientTempID
	d.Deleted = m.DeletedForAllAt != nil
	if len(m.Reactions) > 0 {
		d.Reactions = make([]dto.ReactionDTO, 0, len(m.Reactions))
		for _, r := range m.Reactions {
			d.Reactions = append(d.Reactions, dto.ReactionDTO{
				UserID: r.UserID, Emoji: r.Emoji, ReactedAt: r.ReactedAt,
			})
		}
	}
	return d
}
