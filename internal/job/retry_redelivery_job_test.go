package job

import (
	"Relay/internal/model"
	"Relay/internal/realtime"
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type jobMessageRepo struct {
	msgs map[uint64]*model.Message
}

func (s *jobMessageRepo) CreateWithSeq(context.Context, *model.Message) (bool, error) {
	return false, nil
}

func (s *jobMessageRepo) FindByClientTempID(context.Context, uint64, uint64, string, string) (*model.Message, error) {
	return nil, nil
}

func (s *jobMessageRepo) GetByID(_ context.Context, _, messageID uint64) (*model.Message, error) {
	return s.msgs[messageID], nil
}

func (s *jobMessageRepo) ListBefore(context.Context, uint64, uint64, int) ([]*model.Message, error) {
	return nil, nil
}

func (s *jobMessageRepo) ListAfter(context.Context, uint64, uint64, int) ([]*model.Message, error) {
	return nil, nil
}

func (s *jobMessageRepo) Edit(context.Context, uint64, uint64, uint64, string) (*model.Message, error) {
	return nil, nil
}

func (s *jobMessageRepo) SoftDeleteForAll(context.Context, uint64, uint64, uint64) (*model.Message, error) {
	return nil, nil
}

type rescheduleCall struct {
	id       uint64
	attempts uint32
	at       time.Time
}

type jobRetryRepo struct {
	due         []*model.MessageRetry
	rescheduled []rescheduleCall
	deleted     []uint64
}

func (s *jobRetryRepo) Enqueue(context.Context, []*model.MessageRetry) error { return nil }

func (s *jobRetryRepo) ClearUpTo(context.Context, uint64, string, uint64) error { return nil }

func (s *jobRetryRepo) ListDue(context.Context, time.Time, int) ([]*model.MessageRetry, error) {
	return s.due, nil
}

func (s *jobRetryRepo) Reschedule(_ context.Context, id uint64, attempts uint32, at time.Time) error {
	s.rescheduled = append(s.rescheduled, rescheduleCall{id: id, attempts: attempts, at: at})
	return nil
}

func (s *jobRetryRepo) Delete(_ context.Context, id uint64) error {
	s.deleted = append(s.deleted, id)
	return nil
}

type jobPublisher struct {
	pushedTo []uint64
}

func (s *jobPublisher) PublishToConversation(context.Context, uint64, string, any) error { return nil }

func (s *jobPublisher) PublishToUser(_ context.Context, userID uint64, _ string, _ any) error {
	s.pushedTo = append(s.pushedTo, userID)
	return nil
}

func TestRetryJobRedeliversToOnlineDevices(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	presence := realtime.NewPresence(rdb)
	presence.Connect(context.Background(), 20, "dev-back")

	retryRepo := &jobRetryRepo{due: []*model.MessageRetry{
		{ID: 1, MessageID: 7, ConversationID: 1, UserID: 20, DeviceID: "dev-back", Seq: 5, Attempts: 1},
		{ID: 2, MessageID: 7, ConversationID: 1, UserID: 30, DeviceID: "dev-away", Seq: 5, Attempts: 1},
	}}
	msgRepo := &jobMessageRepo{msgs: map[uint64]*model.Message{
		7: {ID: 7, ConversationID: 1, Seq: 5, SenderUserID: 10, ContentType: model.ContentTypeText, Body: "hi"},
	}}
	publisher := &jobPublisher{}

	NewRetryRedeliveryJob(retryRepo, msgRepo, presence, publisher).Run()

	// 仅回到线上的设备被补推
	assert.Equal(t, []uint64{20}, publisher.pushedTo)

	// 补推后不删除记录，回执 ClearUpTo 才是成功凭据；两条都按退避重排
	require.Len(t, retryRepo.rescheduled, 2)
	assert.Empty(t, retryRepo.deleted)
	for _, r := range retryRepo.rescheduled {
		assert.Equal(t, uint32(2), r.attempts)
		// attempts=2 的退避为 60s
		assert.WithinDuration(t, time.Now().Add(time.Minute), r.at, 5*time.Second)
	}
}

func TestRetryJobDropsExhaustedEntries(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	presence := realtime.NewPresence(rdb)

	retryRepo := &jobRetryRepo{due: []*model.MessageRetry{
		{ID: 9, MessageID: 7, ConversationID: 1, UserID: 20, DeviceID: "dev-a", Seq: 5, Attempts: 5},
	}}
	publisher := &jobPublisher{}

	NewRetryRedeliveryJob(retryRepo, &jobMessageRepo{}, presence, publisher).Run()

	assert.Equal(t, []uint64{9}, retryRepo.deleted)
	assert.Empty(t, retryRepo.rescheduled)
	assert.Empty(t, publisher.pushedTo)
}
