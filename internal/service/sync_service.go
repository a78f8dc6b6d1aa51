package service

import (
	"Relay/internal/api/dto"
	"Relay/internal/pkg/consts"
	"Relay/internal/repository"
	"context"
	log "log/slog"
	"time"
)

// SyncService 重连补拉：先落客户端上报游标，再按 seq > lastDeliveredSeq 正序回放
type SyncService interface {
	Sync(ctx context.Context, userID uint64, deviceID string, req *dto.SyncReq) (*dto.SyncRespDTO, error)
	// SyncConversation 单会话补拉，会话不存在或非成员返回 nil 表示跳过
	SyncConversation(ctx context.Context, userID uint64, deviceID string, cursor dto.SyncCursor) (*dto.ConversationSyncDTO, error)
}

type syncServiceImpl struct {
	messageRepo repository.MessageRepo
	convRepo    repository.ConversationRepo
	syncRepo    repository.SyncStateRepo
}

func NewSyncService(
	messageRepo repository.MessageRepo,
	convRepo repository.ConversationRepo,
	syncRepo repository.SyncStateRepo,
) SyncService {
	return &syncServiceImpl{
		messageRepo: messageRepo,
		convRepo:    convRepo,
		syncRepo:    syncRepo,
	}
}

// Sync 坏条目只跳过不中断，设备其余会话照常补齐
func (s *syncServiceImpl) Sync(ctx context.Context, userID uint64, deviceID string, req *dto.SyncReq) (*dto.SyncRespDTO, error) {
	res := &dto.SyncRespDTO{
		Conversations: make([]*dto.ConversationSyncDTO, 0, len(req.Conversations)),
		SyncedAt:      time.Now(),
	}
	for _, cur := range req.Conversations {
		entry, err := s.SyncConversation(ctx, userID, deviceID, cur)
		if err != nil {
			return nil, err
		}
		if entry == nil {
			continue
		}
		res.Conversations = append(res.Conversations, entry)
	}
	return res, nil
}

func (s *syncServiceImpl) SyncConversation(ctx context.Context, userID uint64, deviceID string, cursor dto.SyncCursor) (*dto.ConversationSyncDTO, error) {
	conv, err := s.convRepo.GetConversation(ctx, cursor.ConversationID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		log.Debug("sync skip: conversation not found", "conversationId", cursor.ConversationID, "deviceId", deviceID)
		return nil, nil
	}
	isMember, err := s.convRepo.IsMember(ctx, cursor.ConversationID, userID)
	if err != nil {
		return nil, err
	}
	if !isMember {
		log.Debug("sync skip: not a member", "conversationId", cursor.ConversationID, "userId", userID)
		return nil, nil
	}

	// 先落游标再取消息：补拉窗口内新到的消息宁可重复下发，不可丢失
	if cursor.LastReadSeq > 0 {
		if err := s.syncRepo.UpsertRead(ctx, userID, deviceID, cursor.ConversationID, cursor.LastReadSeq); err != nil {
			return nil, err
		}
	}
	if err := s.syncRepo.UpsertDelivered(ctx, userID, deviceID, cursor.ConversationID, cursor.LastDeliveredSeq); err != nil {
		return nil, err
	}

	msgs, err := s.messageRepo.ListAfter(ctx, cursor.ConversationID, cursor.LastDeliveredSeq, consts.SyncPageLimit)
	if err != nil {
		return nil, err
	}
	entry := &dto.ConversationSyncDTO{
		ConversationID: cursor.ConversationID,
		Messages:       make([]*dto.MessageDTO, 0, len(msgs)),
		MaxSeq:         conv.MaxMsgSeq,
		HasMore:        len(msgs) == consts.SyncPageLimit,
	}
	for _, m := range msgs {
		entry.Messages = append(entry.Messages, ToMessageDTO(m))
	}
	return entry, nil
}
