package service

import (
	"Relay/internal/api/dto"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type messageTestEnv struct {
	svc       MessageService
	convRepo  *fakeConvRepo
	msgRepo   *fakeMessageRepo
	reactions *fakeReactionRepo
	enqueuer  *fakeEnqueuer
	publisher *fakePublisher
	verifier  *fakeVerifier
}

func newMessageTestEnv() *messageTestEnv {
	convRepo := newFakeConvRepo()
	msgRepo := newFakeMessageRepo(convRepo)
	reactions := newFakeReactionRepo()
	enqueuer := &fakeEnqueuer{}
	publisher := &fakePublisher{}
	verifier := &fakeVerifier{ok: true}
	svc := NewMessageService(msgRepo, convRepo, reactions, &fakeDeviceStateRepo{}, verifier, enqueuer, publisher)
	return &messageTestEnv{
		svc:       svc,
		convRepo:  convRepo,
		msgRepo:   msgRepo,
		reactions: reactions,
		enqueuer:  enqueuer,
		publisher: publisher,
		verifier:  verifier,
	}
}

func strPtr(s string) *string { return &s }

func textReq(convID uint64, body string, tempID *string) *dto.SendMessageReq {
	return &dto.SendMessageReq{ConversationID: convID, ContentType: "text", Body: body, TempID: tempID}
}

func TestSendAssignsSequentialSeq(t *testing.T) {
	env := newMessageTestEnv()
	env.convRepo.addConversation(1, 10, 20)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		msg, created, err := env.svc.Send(ctx, 10, "dev-a", textReq(1, fmt.Sprintf("hello %d", i), nil))
		require.NoError(t, err)
		assert.True(t, created)
		assert.Equal(t, uint64(i), msg.Seq)
	}
	assert.Len(t, env.enqueuer.tasks, 3)
}

func TestSendIdempotentResend(t *testing.T) {
	env := newMessageTestEnv()
	env.convRepo.addConversation(1, 10)
	ctx := context.Background()

	first, created, err := env.svc.Send(ctx, 10, "dev-a", textReq(1, "hi", strPtr("tmp-1")))
	require.NoError(t, err)
	require.True(t, created)

	again, created, err := env.svc.Send(ctx, 10, "dev-a", textReq(1, "hi", strPtr("tmp-1")))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, first.Seq, again.Seq)
	require.NotNil(t, again.TempID)
	assert.Equal(t, "tmp-1", *again.TempID)

	// 重发不重复入队投递任务
	assert.Len(t, env.enqueuer.tasks, 1)
}

func TestSendConcurrentNoGaps(t *testing.T) {
	env := newMessageTestEnv()
	env.convRepo.addConversation(1, 10)
	ctx := context.Background()

	const n = 20
	seqs := make(chan uint64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			msg, _, err := env.svc.Send(ctx, 10, "dev-a", textReq(1, "m", strPtr(fmt.Sprintf("tmp-%d", i))))
			if assert.NoError(t, err) {
				seqs <- msg.Seq
			}
		}(i)
	}
	wg.Wait()
	close(seqs)

	seen := make(map[uint64]bool)
	for s := range seqs {
		assert.False(t, seen[s], "duplicate seq %d", s)
		seen[s] = true
	}
	for s := uint64(1); s <= n; s++ {
		assert.True(t, seen[s], "missing seq %d", s)
	}
}

func TestSendValidation(t *testing.T) {
	tests := []struct {
		name    string
		userID  uint64
		req     *dto.SendMessageReq
		reject  bool
		wantErr error
	}{
		{name: "conversation missing", userID: 10,
			req:     textReq(99, "hi", nil),
			wantErr: ErrConversationNotFound},
		{name: "not a member", userID: 30,
			req:     textReq(1, "hi", nil),
			wantErr: ErrNotMember},
		{name: "empty body", userID: 10,
			req:     textReq(1, "", nil),
			wantErr: ErrInvalidBody},
		{name: "whitespace body", userID: 10,
			req:     textReq(1, "   ", nil),
			wantErr: ErrInvalidBody},
		{name: "oversized body", userID: 10,
			req:     textReq(1, strings.Repeat("a", 8193), nil),
			wantErr: ErrInvalidBody},
		{name: "text with media asset", userID: 10,
			req:     &dto.SendMessageReq{ConversationID: 1, ContentType: "text", Body: "hi", MediaAssetID: strPtr("asset-1")},
			wantErr: ErrInvalidMedia},
		{name: "media without asset", userID: 10,
			req:     &dto.SendMessageReq{ConversationID: 1, ContentType: "media"},
			wantErr: ErrInvalidMedia},
		{name: "media asset rejected", userID: 10,
			req:    &dto.SendMessageReq{ConversationID: 1, ContentType: "media", MediaAssetID: strPtr("asset-1")},
			reject: true, wantErr: ErrInvalidMedia},
		{name: "unknown content type", userID: 10,
			req:     &dto.SendMessageReq{ConversationID: 1, ContentType: "sticker", Body: "hi"},
			wantErr: ErrInvalidContentType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newMessageTestEnv()
			env.convRepo.addConversation(1, 10)
			env.verifier.ok = !tt.reject
			_, _, err := env.svc.Send(context.Background(), tt.userID, "dev-a", tt.req)
			assert.True(t, errors.Is(err, tt.wantErr), "want %v, got %v", tt.wantErr, err)
			assert.Empty(t, env.enqueuer.tasks)
		})
	}
}

// 未指定 contentType 按 text 处理
func TestSendDefaultsContentTypeText(t *testing.T) {
	env := newMessageTestEnv()
	env.convRepo.addConversation(1, 10)

	msg, created, err := env.svc.Send(context.Background(), 10, "dev-a",
		&dto.SendMessageReq{ConversationID: 1, Body: "hi"})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "text", msg.ContentType)

	// 缺省类型同样走文本校验
	_, _, err = env.svc.Send(context.Background(), 10, "dev-a",
		&dto.SendMessageReq{ConversationID: 1})
	assert.ErrorIs(t, err, ErrInvalidBody)
}

// 投递任务入队失败时直接经扇出层推送，在线接收端不丢这条消息
func TestSendEnqueueFailureFallsBackToPush(t *testing.T) {
	env := newMessageTestEnv()
	env.convRepo.addConversation(1, 10, 20)
	env.enqueuer.err = errors.New("broker down")

	msg, created, err := env.svc.Send(context.Background(), 10, "dev-a", textReq(1, "hi", nil))
	require.NoError(t, err)
	assert.True(t, created)
	assert.Empty(t, env.enqueuer.tasks)

	require.NotEmpty(t, env.publisher.events)
	last := env.publisher.events[len(env.publisher.events)-1]
	assert.Equal(t, "MESSAGE_PUSH", last.event)
	assert.Equal(t, msg.ConversationID, last.convID)
}

func TestSendMediaWithCaption(t *testing.T) {
	env := newMessageTestEnv()
	env.convRepo.addConversation(1, 10)

	msg, created, err := env.svc.Send(context.Background(), 10, "dev-a",
		&dto.SendMessageReq{ConversationID: 1, ContentType: "media", Body: "look at this", MediaAssetID: strPtr("asset-1")})
	require.NoError(t, err)
	assert.True(t, created)
	require.NotNil(t, msg.MediaAssetID)
	assert.Equal(t, "asset-1", *msg.MediaAssetID)
}

func TestEdit(t *testing.T) {
	env := newMessageTestEnv()
	env.convRepo.addConversation(1, 10, 20)
	ctx := context.Background()

	msg, _, err := env.svc.Send(ctx, 10, "dev-a", textReq(1, "original", nil))
	require.NoError(t, err)

	// 非发送者编辑被拒
	_, err = env.svc.Edit(ctx, 20, 1, msg.ID, "hacked")
	assert.ErrorIs(t, err, ErrEditDenied)

	edited, err := env.svc.Edit(ctx, 10, 1, msg.ID, "fixed")
	require.NoError(t, err)
	assert.Equal(t, "fixed", edited.Body)
	assert.Equal(t, uint32(1), edited.EditVersion)
	assert.Equal(t, msg.Seq, edited.Seq)

	_, err = env.svc.Edit(ctx, 10, 1, msg.ID, "")
	assert.ErrorIs(t, err, ErrInvalidBody)

	last := env.publisher.events[len(env.publisher.events)-1]
	assert.Equal(t, "MESSAGE_EDIT", last.event)
	assert.Equal(t, uint64(1), last.convID)
}

func TestDeleteForAll(t *testing.T) {
	env := newMessageTestEnv()
	env.convRepo.addConversation(1, 10, 20)
	ctx := context.Background()

	msg, _, err := env.svc.Send(ctx, 10, "dev-a", textReq(1, "oops", nil))
	require.NoError(t, err)

	_, err = env.svc.DeleteForAll(ctx, 20, 1, msg.ID)
	assert.ErrorIs(t, err, ErrDeleteDenied)

	deleted, err := env.svc.DeleteForAll(ctx, 10, 1, msg.ID)
	require.NoError(t, err)
	assert.True(t, deleted.Deleted)
	assert.Empty(t, deleted.Body)
	// 墓碑保留原 seq，序列无空洞
	assert.Equal(t, msg.Seq, deleted.Seq)

	// 重复删除同样视为无权限
	_, err = env.svc.DeleteForAll(ctx, 10, 1, msg.ID)
	assert.ErrorIs(t, err, ErrDeleteDenied)

	// 已删消息不可编辑
	_, err = env.svc.Edit(ctx, 10, 1, msg.ID, "resurrect")
	assert.ErrorIs(t, err, ErrEditDenied)
}

func TestReactions(t *testing.T) {
	env := newMessageTestEnv()
	env.convRepo.addConversation(1, 10, 20)
	ctx := context.Background()

	msg, _, err := env.svc.Send(ctx, 10, "dev-a", textReq(1, "react to me", nil))
	require.NoError(t, err)

	_, err = env.svc.SetReaction(ctx, 20, 1, msg.ID, "")
	assert.ErrorIs(t, err, ErrInvalidReaction)
	_, err = env.svc.SetReaction(ctx, 20, 1, msg.ID, strings.Repeat("👍", 17))
	assert.ErrorIs(t, err, ErrInvalidReaction)

	r, err := env.svc.SetReaction(ctx, 20, 1, msg.ID, "👍")
	require.NoError(t, err)
	assert.Equal(t, uint64(20), r.UserID)
	assert.Equal(t, "👍", r.Emoji)

	// 同一用户换表态为覆盖
	r, err = env.svc.SetReaction(ctx, 20, 1, msg.ID, "🎉")
	require.NoError(t, err)
	assert.Equal(t, "🎉", r.Emoji)

	require.NoError(t, env.svc.RemoveReaction(ctx, 20, 1, msg.ID))
	assert.ErrorIs(t, env.svc.RemoveReaction(ctx, 20, 1, msg.ID), ErrReactionMissing)

	_, err = env.svc.SetReaction(ctx, 20, 1, 999, "👍")
	assert.ErrorIs(t, err, ErrMessageNotFound)
}

func TestReactionOnDeletedMessage(t *testing.T) {
	env := newMessageTestEnv()
	env.convRepo.addConversation(1, 10)
	ctx := context.Background()

	msg, _, err := env.svc.Send(ctx, 10, "dev-a", textReq(1, "gone soon", nil))
	require.NoError(t, err)
	_, err = env.svc.DeleteForAll(ctx, 10, 1, msg.ID)
	require.NoError(t, err)

	_, err = env.svc.SetReaction(ctx, 10, 1, msg.ID, "👍")
	assert.ErrorIs(t, err, ErrMessageNotFound)
}

func TestGetHistory(t *testing.T) {
	env := newMessageTestEnv()
	env.convRepo.addConversation(1, 10)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, _, err := env.svc.Send(ctx, 10, "dev-a", textReq(1, fmt.Sprintf("m%d", i), nil))
		require.NoError(t, err)
	}

	_, err := env.svc.GetHistory(ctx, 30, 1, 0, 50)
	assert.ErrorIs(t, err, ErrNotMember)

	msgs, err := env.svc.GetHistory(ctx, 10, 1, 4, 50)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, uint64(1), msgs[0].Seq)
	assert.Equal(t, uint64(3), msgs[2].Seq)
}
