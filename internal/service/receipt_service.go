package service

import (
	"Relay/internal/pkg/consts"
	"Relay/internal/repository"
	"context"
	log "log/slog"
	"time"
)

// ReceiptService 设备级送达/已读回执：游标只增不减，乱序与重复确认可安全应用
type ReceiptService interface {
	MarkDelivered(ctx context.Context, userID uint64, deviceID string, convID, seq uint64) error
	MarkRead(ctx context.Context, userID uint64, deviceID string, convID, seq uint64) error
}

type receiptServiceImpl struct {
	convRepo   repository.ConversationRepo
	syncRepo   repository.SyncStateRepo
	deviceRepo repository.DeviceStateRepo
	retryRepo  repository.RetryRepo
	publisher  EventPublisher
}

func NewReceiptService(
	convRepo repository.ConversationRepo,
	syncRepo repository.SyncStateRepo,
	deviceRepo repository.DeviceStateRepo,
	retryRepo repository.RetryRepo,
	publisher EventPublisher,
) ReceiptService {
	return &receiptServiceImpl{
		convRepo:   convRepo,
		syncRepo:   syncRepo,
		deviceRepo: deviceRepo,
		retryRepo:  retryRepo,
		publisher:  publisher,
	}
}

func (s *receiptServiceImpl) MarkDelivered(ctx context.Context, userID uint64, deviceID string, convID, seq uint64) error {
	seq, oldDelivered, _, err := s.prepare(ctx, userID, deviceID, convID, seq)
	if err != nil {
		return err
	}

	if err := s.syncRepo.UpsertDelivered(ctx, userID, deviceID, convID, seq); err != nil {
		return err
	}
	// 游标真正前进时才补写区间回执并清理待重投
	if seq > oldDelivered {
		now := time.Now()
		if err := s.deviceRepo.MarkDeliveredRange(ctx, convID, deviceID, oldDelivered, seq, now); err != nil {
			return err
		}
		if err := s.retryRepo.ClearUpTo(ctx, convID, deviceID, seq); err != nil {
			log.Error("clear retry backlog failed", "conversationId", convID, "deviceId", deviceID, "err", err)
		}
		s.publishReceipt(ctx, convID, userID, consts.EventDeliveryUpdate, "lastDeliveredSeq", seq)
	}
	return nil
}

func (s *receiptServiceImpl) MarkRead(ctx context.Context, userID uint64, deviceID string, convID, seq uint64) error {
	seq, oldDelivered, oldRead, err := s.prepare(ctx, userID, deviceID, convID, seq)
	if err != nil {
		return err
	}

	// 已读蕴含送达，两个游标一起推进
	if err := s.syncRepo.UpsertRead(ctx, userID, deviceID, convID, seq); err != nil {
		return err
	}
	now := time.Now()
	if seq > oldRead {
		if err := s.deviceRepo.MarkReadRange(ctx, convID, deviceID, oldRead, seq, now); err != nil {
			return err
		}
		if err := s.convRepo.RaiseMemberReadSeq(ctx, convID, userID, seq); err != nil {
			return err
		}
	}
	if seq > oldDelivered {
		if err := s.retryRepo.ClearUpTo(ctx, convID, deviceID, seq); err != nil {
			log.Error("clear retry backlog failed", "conversationId", convID, "deviceId", deviceID, "err", err)
		}
	}
	if seq > oldRead {
		s.publishReceipt(ctx, convID, userID, consts.EventReadUpdate, "lastReadSeq", seq)
	}
	return nil
}

// prepare 成员校验、seq 归一（夹取到会话水位）并取当前游标
func (s *receiptServiceImpl) prepare(ctx context.Context, userID uint64, deviceID string, convID, seq uint64) (uint64, uint64, uint64, error) {
	conv, err := s.convRepo.GetConversation(ctx, convID)
	if err != nil {
		return 0, 0, 0, err
	}
	if conv == nil {
		return 0, 0, 0, ErrConversationNotFound
	}
	isMember, err := s.convRepo.IsMember(ctx, convID, userID)
	if err != nil {
		return 0, 0, 0, err
	}
	if !isMember {
		return 0, 0, 0, ErrNotMember
	}
	// seq 为 0 的确认是合法空操作，GREATEST 语义下游标不会后退
	if seq > conv.MaxMsgSeq {
		seq = conv.MaxMsgSeq
	}
	delivered, read, err := s.syncRepo.GetCursors(ctx, userID, deviceID, convID)
	if err != nil {
		return 0, 0, 0, err
	}
	return seq, delivered, read, nil
}

// publishReceipt 游标前进时向会话广播 READ_UPDATE / DELIVERY_UPDATE
func (s *receiptServiceImpl) publishReceipt(ctx context.Context, convID, userID uint64, event, seqField string, seq uint64) {
	payload := map[string]any{
		"conversationId": convID,
		"userId":         userID,
		seqField:         seq,
	}
	if err := s.publisher.PublishToConversation(ctx, convID, event, payload); err != nil {
		log.Error("publish receipt event failed", "conversationId", convID, "event", event, "err", err)
	}
}
