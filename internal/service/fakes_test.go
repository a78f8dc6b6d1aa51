package service

import (
	"Relay/internal/model"
	"Relay/internal/repository"
	"context"
	"fmt"
	"sync"
	"time"
)

// 内存版仓储桩，行为对齐 MySQL 实现的语义约定

type fakeConvRepo struct {
	mu      sync.Mutex
	convs   map[uint64]*model.Conversation
	members map[uint64]map[uint64]bool
	readSeq map[string]uint64
}

func newFakeConvRepo() *fakeConvRepo {
	return &fakeConvRepo{
		convs:   make(map[uint64]*model.Conversation),
		members: make(map[uint64]map[uint64]bool),
		readSeq: make(map[string]uint64),
	}
}

func (f *fakeConvRepo) addConversation(id uint64, memberIDs ...uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.convs[id] = &model.Conversation{ID: id, Type: 2}
	m := make(map[uint64]bool)
	for _, uid := range memberIDs {
		m[uid] = true
	}
	f.members[id] = m
}

func (f *fakeConvRepo) GetConversation(_ context.Context, convID uint64) (*model.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.convs[convID], nil
}

func (f *fakeConvRepo) IsMember(_ context.Context, convID, userID uint64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.members[convID][userID], nil
}

func (f *fakeConvRepo) ListConversationIDsForUser(_ context.Context, userID uint64) ([]uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []uint64
	for convID, m := range f.members {
		if m[userID] {
			ids = append(ids, convID)
		}
	}
	return ids, nil
}

func (f *fakeConvRepo) ListMemberUserIDs(_ context.Context, convID uint64) ([]uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []uint64
	for uid := range f.members[convID] {
		ids = append(ids, uid)
	}
	return ids, nil
}

func (f *fakeConvRepo) RaiseMemberReadSeq(_ context.Context, convID, userID, seq uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := fmt.Sprintf("%d/%d", convID, userID)
	if seq > f.readSeq[key] {
		f.readSeq[key] = seq
	}
	return nil
}

type fakeMessageRepo struct {
	mu     sync.Mutex
	conv   *fakeConvRepo
	byConv map[uint64][]*model.Message
	nextID uint64
}

func newFakeMessageRepo(conv *fakeConvRepo) *fakeMessageRepo {
	return &fakeMessageRepo{conv: conv, byConv: make(map[uint64][]*model.Message)}
}

func (f *fakeMessageRepo) CreateWithSeq(_ context.Context, msg *model.Message) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if msg.ClientTempID != nil {
		for _, m := range f.byConv[msg.ConversationID] {
			if m.SenderUserID == msg.SenderUserID && m.SenderDeviceID == msg.SenderDeviceID &&
				m.ClientTempID != nil && *m.ClientTempID == *msg.ClientTempID {
				*msg = *m
				return false, nil
			}
		}
	}
	f.nextID++
	msg.ID = f.nextID
	msg.Seq = uint64(len(f.byConv[msg.ConversationID])) + 1
	msg.CreatedAt = time.Now()
	stored := *msg
	f.byConv[msg.ConversationID] = append(f.byConv[msg.ConversationID], &stored)

	f.conv.mu.Lock()
	if c := f.conv.convs[msg.ConversationID]; c != nil {
		c.MaxMsgSeq = msg.Seq
		c.LastMessageAt = msg.CreatedAt
	}
	f.conv.mu.Unlock()
	return true, nil
}

func (f *fakeMessageRepo) FindByClientTempID(_ context.Context, convID, senderUserID uint64, senderDeviceID, tempID string) (*model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.byConv[convID] {
		if m.SenderUserID == senderUserID && m.SenderDeviceID == senderDeviceID &&
			m.ClientTempID != nil && *m.ClientTempID == tempID {
			return m, nil
		}
	}
	return nil, nil
}

func (f *fakeMessageRepo) GetByID(_ context.Context, convID, messageID uint64) (*model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.byConv[convID] {
		if m.ID == messageID {
			return m, nil
		}
	}
	return nil, nil
}

func (f *fakeMessageRepo) ListBefore(_ context.Context, convID uint64, beforeSeq uint64, limit int) ([]*model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.Message
	for _, m := range f.byConv[convID] {
		if beforeSeq == 0 || m.Seq < beforeSeq {
			out = append(out, m)
		}
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (f *fakeMessageRepo) ListAfter(_ context.Context, convID uint64, afterSeq uint64, limit int) ([]*model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.Message
	for _, m := range f.byConv[convID] {
		if m.Seq > afterSeq {
			out = append(out, m)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeMessageRepo) Edit(_ context.Context, convID, messageID, userID uint64, body string) (*model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.byConv[convID] {
		if m.ID == messageID && m.SenderUserID == userID &&
			m.ContentType == model.ContentTypeText && m.DeletedForAllAt == nil {
			m.Body = body
			m.EditVersion++
			return m, nil
		}
	}
	return nil, nil
}

func (f *fakeMessageRepo) SoftDeleteForAll(_ context.Context, convID, messageID, userID uint64) (*model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.byConv[convID] {
		if m.ID == messageID && m.SenderUserID == userID && m.DeletedForAllAt == nil {
			now := time.Now()
			m.DeletedForAllAt = &now
			m.Body = ""
			m.ContentType = model.ContentTypeSystem
			return m, nil
		}
	}
	return nil, nil
}

type fakeReactionRepo struct {
	mu   sync.Mutex
	rows map[string]*model.MessageReaction
}

func newFakeReactionRepo() *fakeReactionRepo {
	return &fakeReactionRepo{rows: make(map[string]*model.MessageReaction)}
}

func (f *fakeReactionRepo) Upsert(_ context.Context, messageID, userID uint64, emoji string) (*model.MessageReaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := fmt.Sprintf("%d/%d", messageID, userID)
	now := time.Now()
	if r, ok := f.rows[key]; ok {
		r.Emoji = emoji
		r.UpdatedAt = now
		return r, nil
	}
	r := &model.MessageReaction{MessageID: messageID, UserID: userID, Emoji: emoji, ReactedAt: now, UpdatedAt: now}
	f.rows[key] = r
	return r, nil
}

func (f *fakeReactionRepo) Delete(_ context.Context, messageID, userID uint64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := fmt.Sprintf("%d/%d", messageID, userID)
	if _, ok := f.rows[key]; !ok {
		return false, nil
	}
	delete(f.rows, key)
	return true, nil
}

type cursorPair struct {
	delivered uint64
	read      uint64
}

type fakeSyncRepo struct {
	mu      sync.Mutex
	cursors map[string]*cursorPair
}

func newFakeSyncRepo() *fakeSyncRepo {
	return &fakeSyncRepo{cursors: make(map[string]*cursorPair)}
}

func cursorKey(userID uint64, deviceID string, convID uint64) string {
	return fmt.Sprintf("%d/%s/%d", userID, deviceID, convID)
}

func (f *fakeSyncRepo) GetCursors(_ context.Context, userID uint64, deviceID string, convID uint64) (uint64, uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.cursors[cursorKey(userID, deviceID, convID)]; ok {
		return c.delivered, c.read, nil
	}
	return 0, 0, nil
}

func (f *fakeSyncRepo) UpsertDelivered(_ context.Context, userID uint64, deviceID string, convID, seq uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.get(userID, deviceID, convID)
	if seq > c.delivered {
		c.delivered = seq
	}
	return nil
}

func (f *fakeSyncRepo) UpsertRead(_ context.Context, userID uint64, deviceID string, convID, seq uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.get(userID, deviceID, convID)
	if seq > c.delivered {
		c.delivered = seq
	}
	if seq > c.read {
		c.read = seq
	}
	return nil
}

func (f *fakeSyncRepo) get(userID uint64, deviceID string, convID uint64) *cursorPair {
	key := cursorKey(userID, deviceID, convID)
	if c, ok := f.cursors[key]; ok {
		return c
	}
	c := &cursorPair{}
	f.cursors[key] = c
	return c
}

func (f *fakeSyncRepo) ListByConversation(_ context.Context, _ uint64) ([]*model.DeviceSyncState, error) {
	return nil, nil
}

type markCall struct {
	convID   uint64
	deviceID string
	fromSeq  uint64
	toSeq    uint64
	read     bool
}

type fakeDeviceStateRepo struct {
	mu    sync.Mutex
	calls []markCall
}

func (f *fakeDeviceStateRepo) MarkDeliveredRange(_ context.Context, convID uint64, deviceID string, fromSeq, toSeq uint64, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, markCall{convID, deviceID, fromSeq, toSeq, false})
	return nil
}

func (f *fakeDeviceStateRepo) MarkReadRange(_ context.Context, convID uint64, deviceID string, fromSeq, toSeq uint64, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, markCall{convID, deviceID, fromSeq, toSeq, true})
	return nil
}

func (f *fakeDeviceStateRepo) ListReceipts(_ context.Context, _, _ uint64) ([]*repository.ReceiptRow, error) {
	return nil, nil
}

type clearCall struct {
	convID   uint64
	deviceID string
	seq      uint64
}

type fakeRetryRepo struct {
	mu     sync.Mutex
	clears []clearCall
}

func (f *fakeRetryRepo) Enqueue(_ context.Context, _ []*model.MessageRetry) error { return nil }

func (f *fakeRetryRepo) ClearUpTo(_ context.Context, convID uint64, deviceID string, seq uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clears = append(f.clears, clearCall{convID, deviceID, seq})
	return nil
}

func (f *fakeRetryRepo) ListDue(_ context.Context, _ time.Time, _ int) ([]*model.MessageRetry, error) {
	return nil, nil
}

func (f *fakeRetryRepo) Reschedule(_ context.Context, _ uint64, _ uint32, _ time.Time) error {
	return nil
}

func (f *fakeRetryRepo) Delete(_ context.Context, _ uint64) error { return nil }

type publishedEvent struct {
	convID uint64
	userID uint64
	event  string
}

type fakePublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (f *fakePublisher) PublishToConversation(_ context.Context, convID uint64, event string, _ any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, publishedEvent{convID: convID, event: event})
	return nil
}

func (f *fakePublisher) PublishToUser(_ context.Context, userID uint64, event string, _ any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, publishedEvent{userID: userID, event: event})
	return nil
}

type enqueuedTask struct {
	messageID uint64
	convID    uint64
	seq       uint64
}

type fakeEnqueuer struct {
	mu    sync.Mutex
	tasks []enqueuedTask
	err   error
}

func (f *fakeEnqueuer) EnqueueDelivery(_ context.Context, messageID, conversationID, seq uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.tasks = append(f.tasks, enqueuedTask{messageID, conversationID, seq})
	return nil
}

type fakeVerifier struct {
	ok bool
}

func (f *fakeVerifier) Verify(_ context.Context, _ string, _ uint64) (bool, error) {
	return f.ok, nil
}
