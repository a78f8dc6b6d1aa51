package kafka

import (
	"Relay/internal/model"
	"Relay/internal/pkg/consts"
	"Relay/internal/realtime"
	"Relay/internal/repository"
	"Relay/internal/service"
	"context"
	log "log/slog"
	"time"

	"github.com/IBM/sarama"
	"github.com/goccy/go-json"
	"github.com/pkg/errors"
)

// retryBaseDelay 首次重投延迟，之后由定时任务按尝试次数指数退避
const retryBaseDelay = 30 * time.Second

// DeliveryHandler 消费投递任务：向会话主题推送 MESSAGE_PUSH，
// 并为游标落后且不在线的设备登记待重投记录
type DeliveryHandler struct {
	messageRepo repository.MessageRepo
	convRepo    repository.ConversationRepo
	syncRepo    repository.SyncStateRepo
	retryRepo   repository.RetryRepo
	presence    *realtime.Presence
	publisher   service.EventPublisher
}

func NewDeliveryHandler(
	messageRepo repository.MessageRepo,
	convRepo repository.ConversationRepo,
	syncRepo repository.SyncStateRepo,
	retryRepo repository.RetryRepo,
	presence *realtime.Presence,
	publisher service.EventPublisher,
) *DeliveryHandler {
	return &DeliveryHandler{
		messageRepo: messageRepo,
		convRepo:    convRepo,
		syncRepo:    syncRepo,
		retryRepo:   retryRepo,
		presence:    presence,
		publisher:   publisher,
	}
}

func (s *DeliveryHandler) Setup(sarama.ConsumerGroupSession) error {
	log.Info("message delivery consumer setup")
	return nil
}

func (s *DeliveryHandler) Cleanup(sarama.ConsumerGroupSession) error {
	log.Info("message delivery consumer cleanup")
	return nil
}

func (s *DeliveryHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	log.Info("topic-message-delivery consume claim")
	err := pullMessageBatch(session, claim, s.logic)
	if err != nil {
		log.Error("topic-message-delivery process batch error", "err", err)
		return err
	}
	return nil
}

func (s *DeliveryHandler) logic(ctx context.Context, msg *sarama.ConsumerMessage) error {
	var task DeliveryTask
	if err := json.Unmarshal(msg.Value, &task); err != nil {
		log.Error("unmarshal delivery task error", "err", err)
		// 毒丸消息直接跳过，重试也不会变好
		return nil
	}

	m, err := s.messageRepo.GetByID(ctx, task.ConversationID, task.MessageID)
	if err != nil {
		return errors.Wrap(err, "load message")
	}
	if m == nil {
		log.Warn("delivery task for missing message", "messageId", task.MessageID, "conversationId", task.ConversationID)
		return nil
	}

	if perr := s.publisher.PublishToConversation(ctx, m.ConversationID, consts.EventMessagePush, service.ToMessageDTO(m)); perr != nil {
		log.Error("push message failed", "messageId", m.ID, "conversationId", m.ConversationID, "err", perr)
	}

	return s.enqueueRetries(ctx, m)
}

// enqueueRetries 为落后且离线的设备登记重投；发送设备自身跳过
func (s *DeliveryHandler) enqueueRetries(ctx context.Context, m *model.Message) error {
	memberIDs, err := s.convRepo.ListMemberUserIDs(ctx, m.ConversationID)
	if err != nil {
		return errors.Wrap(err, "list members")
	}
	members := make(map[uint64]struct{}, len(memberIDs))
	for _, id := range memberIDs {
		members[id] = struct{}{}
	}

	states, err := s.syncRepo.ListByConversation(ctx, m.ConversationID)
	if err != nil {
		return errors.Wrap(err, "list sync state")
	}

	now := time.Now()
	var rows []*model.MessageRetry
	for _, st := range states {
		if _, ok := members[st.UserID]; !ok {
			continue
		}
		if st.UserID == m.SenderUserID && st.DeviceID == m.SenderDeviceID {
			continue
		}
		if st.LastDeliveredSeq >= m.Seq {
			continue
		}
		if s.presence.IsDeviceOnline(ctx, st.UserID, st.DeviceID) {
			continue
		}
		rows = append(rows, &model.MessageRetry{
			MessageID:      m.ID,
			DeviceID:       st.DeviceID,
			UserID:         st.UserID,
			ConversationID: m.ConversationID,
			Seq:            m.Seq,
			NextAttemptAt:  now.Add(retryBaseDelay),
		})
	}
	return s.retryRepo.Enqueue(ctx, rows)
}
