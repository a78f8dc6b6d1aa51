package kafka

import (
	"Relay/internal/model"
	"Relay/internal/realtime"
	"Relay/internal/repository"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/alicebob/miniredis/v2"
	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubMessageRepo struct {
	msg *model.Message
}

func (s *stubMessageRepo) CreateWithSeq(context.Context, *model.Message) (bool, error) {
	return false, nil
}

func (s *stubMessageRepo) FindByClientTempID(context.Context, uint64, uint64, string, string) (*model.Message, error) {
	return nil, nil
}

func (s *stubMessageRepo) GetByID(_ context.Context, convID, messageID uint64) (*model.Message, error) {
	if s.msg != nil && s.msg.ID == messageID && s.msg.ConversationID == convID {
		return s.msg, nil
	}
	return nil, nil
}

func (s *stubMessageRepo) ListBefore(context.Context, uint64, uint64, int) ([]*model.Message, error) {
	return nil, nil
}

func (s *stubMessageRepo) ListAfter(context.Context, uint64, uint64, int) ([]*model.Message, error) {
	return nil, nil
}

func (s *stubMessageRepo) Edit(context.Context, uint64, uint64, uint64, string) (*model.Message, error) {
	return nil, nil
}

func (s *stubMessageRepo) SoftDeleteForAll(context.Context, uint64, uint64, uint64) (*model.Message, error) {
	return nil, nil
}

type stubConvRepo struct {
	memberIDs []uint64
}

func (s *stubConvRepo) GetConversation(context.Context, uint64) (*model.Conversation, error) {
	return nil, nil
}

func (s *stubConvRepo) IsMember(context.Context, uint64, uint64) (bool, error) { return true, nil }

func (s *stubConvRepo) ListConversationIDsForUser(context.Context, uint64) ([]uint64, error) {
	return nil, nil
}

func (s *stubConvRepo) ListMemberUserIDs(context.Context, uint64) ([]uint64, error) {
	return s.memberIDs, nil
}

func (s *stubConvRepo) RaiseMemberReadSeq(context.Context, uint64, uint64, uint64) error { return nil }

type stubSyncRepo struct {
	states []*model.DeviceSyncState
}

func (s *stubSyncRepo) GetCursors(context.Context, uint64, string, uint64) (uint64, uint64, error) {
	return 0, 0, nil
}

func (s *stubSyncRepo) UpsertDelivered(context.Context, uint64, string, uint64, uint64) error {
	return nil
}

func (s *stubSyncRepo) UpsertRead(context.Context, uint64, string, uint64, uint64) error { return nil }

func (s *stubSyncRepo) ListByConversation(context.Context, uint64) ([]*model.DeviceSyncState, error) {
	return s.states, nil
}

type stubRetryRepo struct {
	mu       sync.Mutex
	enqueued []*model.MessageRetry
}

func (s *stubRetryRepo) Enqueue(_ context.Context, rows []*model.MessageRetry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enqueued = append(s.enqueued, rows...)
	return nil
}

func (s *stubRetryRepo) ClearUpTo(context.Context, uint64, string, uint64) error { return nil }

func (s *stubRetryRepo) ListDue(context.Context, time.Time, int) ([]*model.MessageRetry, error) {
	return nil, nil
}

func (s *stubRetryRepo) Reschedule(context.Context, uint64, uint32, time.Time) error { return nil }

func (s *stubRetryRepo) Delete(context.Context, uint64) error { return nil }

type recordedPublish struct {
	convID uint64
	userID uint64
	event  string
}

type stubPublisher struct {
	mu     sync.Mutex
	events []recordedPublish
}

func (s *stubPublisher) PublishToConversation(_ context.Context, convID uint64, event string, _ any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, recordedPublish{convID: convID, event: event})
	return nil
}

func (s *stubPublisher) PublishToUser(_ context.Context, userID uint64, event string, _ any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, recordedPublish{userID: userID, event: event})
	return nil
}

func newHandlerUnderTest(t *testing.T, msg *model.Message, members []uint64, states []*model.DeviceSyncState) (*DeliveryHandler, *stubRetryRepo, *stubPublisher, *realtime.Presence) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	presence := realtime.NewPresence(rdb)

	retryRepo := &stubRetryRepo{}
	publisher := &stubPublisher{}
	h := NewDeliveryHandler(
		&stubMessageRepo{msg: msg},
		&stubConvRepo{memberIDs: members},
		&stubSyncRepo{states: states},
		retryRepo,
		presence,
		publisher,
	)
	return h, retryRepo, publisher, presence
}

func taskMessage(t *testing.T, task *DeliveryTask) *sarama.ConsumerMessage {
	data, err := json.Marshal(task)
	require.NoError(t, err)
	return &sarama.ConsumerMessage{Value: data}
}

func TestDeliveryLogicPushesAndEnqueuesRetries(t *testing.T) {
	msg := &model.Message{
		ID: 7, ConversationID: 1, Seq: 5,
		SenderUserID: 10, SenderDeviceID: "dev-sender",
		ContentType: model.ContentTypeText, Body: "hello",
	}
	// dev-sender 是发送设备、dev-online 在线、dev-caughtup 游标已追平、
	// dev-left 的用户已退群：只有 dev-offline 应进重投队列
	states := []*model.DeviceSyncState{
		{UserID: 10, DeviceID: "dev-sender", ConversationID: 1},
		{UserID: 10, DeviceID: "dev-online", ConversationID: 1},
		{UserID: 20, DeviceID: "dev-offline", ConversationID: 1},
		{UserID: 20, DeviceID: "dev-caughtup", ConversationID: 1, LastDeliveredSeq: 5},
		{UserID: 99, DeviceID: "dev-left", ConversationID: 1},
	}
	h, retryRepo, publisher, presence := newHandlerUnderTest(t, msg, []uint64{10, 20}, states)
	ctx := context.Background()
	presence.Connect(ctx, 10, "dev-online")

	require.NoError(t, h.logic(ctx, taskMessage(t, &DeliveryTask{MessageID: 7, ConversationID: 1, Seq: 5})))

	require.Len(t, publisher.events, 1)
	assert.Equal(t, "MESSAGE_PUSH", publisher.events[0].event)
	assert.Equal(t, uint64(1), publisher.events[0].convID)

	// 只有离线且落后的成员设备进重投队列
	require.Len(t, retryRepo.enqueued, 1)
	row := retryRepo.enqueued[0]
	assert.Equal(t, "dev-offline", row.DeviceID)
	assert.Equal(t, uint64(20), row.UserID)
	assert.Equal(t, uint64(7), row.MessageID)
	assert.Equal(t, uint64(5), row.Seq)
	assert.True(t, row.NextAttemptAt.After(time.Now()))
}

func TestDeliveryLogicPoisonPill(t *testing.T) {
	h, retryRepo, publisher, _ := newHandlerUnderTest(t, nil, nil, nil)

	// 坏消息跳过而不是卡死分区
	require.NoError(t, h.logic(context.Background(), &sarama.ConsumerMessage{Value: []byte("garbage{")}))
	assert.Empty(t, publisher.events)
	assert.Empty(t, retryRepo.enqueued)
}

func TestDeliveryLogicMissingMessage(t *testing.T) {
	h, retryRepo, publisher, _ := newHandlerUnderTest(t, nil, []uint64{10}, nil)

	require.NoError(t, h.logic(context.Background(), taskMessage(t, &DeliveryTask{MessageID: 404, ConversationID: 1, Seq: 1})))
	assert.Empty(t, publisher.events)
	assert.Empty(t, retryRepo.enqueued)
}

var _ repository.MessageRepo = (*stubMessageRepo)(nil)
var _ repository.ConversationRepo = (*stubConvRepo)(nil)
var _ repository.SyncStateRepo = (*stubSyncRepo)(nil)
var _ repository.RetryRepo = (*stubRetryRepo)(nil)
