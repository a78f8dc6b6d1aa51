package job

import (
	"Relay/internal/pkg/consts"
	"Relay/internal/realtime"
	"Relay/internal/repository"
	"Relay/internal/service"
	"context"
	log "log/slog"
	"time"
)

const (
	dueBatchSize   = 256
	retryBaseDelay = 30 * time.Second
)

// RetryRedeliveryJob 定时重驱离线期间漏投的消息：
// 设备重新上线后沿用户主题补推，超过尝试上限的记录放弃，由补拉兜底
type RetryRedeliveryJob struct {
	retryRepo   repository.RetryRepo
	messageRepo repository.MessageRepo
	presence    *realtime.Presence
	publisher   service.EventPublisher
}

func NewRetryRedeliveryJob(
	retryRepo repository.RetryRepo,
	messageRepo repository.MessageRepo,
	presence *realtime.Presence,
	publisher service.EventPublisher,
) *RetryRedeliveryJob {
	return &RetryRedeliveryJob{
		retryRepo:   retryRepo,
		messageRepo: messageRepo,
		presence:    presence,
		publisher:   publisher,
	}
}

func (s *RetryRedeliveryJob) Run() {
	ctx := context.Background()

	due, err := s.retryRepo.ListDue(ctx, time.Now(), dueBatchSize)
	if err != nil {
		log.Error("list due retries failed", "err", err)
		return
	}
	if len(due) == 0 {
		return
	}

	redelivered, dropped := 0, 0
	for _, r := range due {
		attempts := r.Attempts + 1
		if attempts > consts.RetryMaxAttempts {
			if err := s.retryRepo.Delete(ctx, r.ID); err != nil {
				log.Error("drop exhausted retry failed", "retryId", r.ID, "err", err)
			}
			dropped++
			continue
		}

		if s.presence.IsDeviceOnline(ctx, r.UserID, r.DeviceID) {
			if err := s.redeliver(ctx, r.ConversationID, r.MessageID, r.UserID); err != nil {
				log.Error("redeliver failed", "retryId", r.ID, "messageId", r.MessageID, "err", err)
			} else {
				redelivered++
			}
		}

		// 推送后不立即删除：设备回执 ClearUpTo 才是投递成功的凭据
		backoff := retryBaseDelay * time.Duration(1<<(attempts-1))
		if err := s.retryRepo.Reschedule(ctx, r.ID, attempts, time.Now().Add(backoff)); err != nil {
			log.Error("reschedule retry failed", "retryId", r.ID, "err", err)
		}
	}

	log.Info("retry redelivery job finished", "due", len(due), "redelivered", redelivered, "dropped", dropped)
}

func (s *RetryRedeliveryJob) redeliver(ctx context.Context, convID, messageID, userID uint64) error {
	m, err := s.messageRepo.GetByID(ctx, convID, messageID)
	if err != nil {
		return err
	}
	if m == nil {
		return nil
	}
	return s.publisher.PublishToUser(ctx, userID, consts.EventMessagePush, service.ToMessageDTO(m))
}
