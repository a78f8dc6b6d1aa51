package realtime

import (
	"Relay/internal/api/dto"
	"Relay/internal/pkg/consts"
	"Relay/internal/repository"
	"Relay/internal/service"
	"context"
	"errors"
	"fmt"
	log "log/slog"

	"github.com/goccy/go-json"
)

// handlerFunc 单条命令处理器，返回错误表示连接应当关闭
type handlerFunc func(ctx context.Context, c *Client, payload json.RawMessage) error

// Router 连接上行命令分发器，所有连接共享一个实例
type Router struct {
	messageSvc service.MessageService
	receiptSvc service.ReceiptService
	syncSvc    service.SyncService
	convRepo   repository.ConversationRepo
	hub        *Hub
	registry   *Registry
	handlers   map[string]handlerFunc
}

func NewRouter(
	messageSvc service.MessageService,
	receiptSvc service.ReceiptService,
	syncSvc service.SyncService,
	convRepo repository.ConversationRepo,
	hub *Hub,
	registry *Registry,
) *Router {
	r := &Router{
		messageSvc: messageSvc,
		receiptSvc: receiptSvc,
		syncSvc:    syncSvc,
		convRepo:   convRepo,
		hub:        hub,
		registry:   registry,
	}
	r.handlers = map[string]handlerFunc{
		consts.CmdSyncInit:              r.handleSyncInit,
		consts.CmdMessageSend:           r.handleSend,
		consts.CmdReadReceipt:           r.handleReadReceipt,
		consts.CmdDeliveryReceipt:       r.handleDeliveryReceipt,
		consts.CmdMessageEdit:           r.handleEdit,
		consts.CmdMessageDelete:         r.handleDelete,
		consts.CmdReactionSet:           r.handleReactionSet,
		consts.CmdReactionRemove:        r.handleReactionRemove,
		consts.CmdTypingStart:           r.handleTypingStart,
		consts.CmdTypingStop:            r.handleTypingStop,
		consts.CmdConversationSubscribe: r.handleConversationSubscribe,
		consts.CmdFeedSubscribe:         r.handleFeedSubscribe,
		consts.CmdPing:                  r.handlePing,
	}
	return r
}

// HandleFrame 解析并分发一帧。帧本身不是合法 JSON、或命令载荷缺少必填字段时
// 返回错误，连接层据此断开；成员/内容类校验失败只回 ERROR 事件，连接保持。
// 未知的 type 不处理也不断开
func (r *Router) HandleFrame(ctx context.Context, c *Client, raw []byte) error {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("malformed frame: %w", err)
	}
	h, ok := r.handlers[env.Type]
	if !ok {
		log.Debug("ignore unknown frame type", "type", env.Type, "userId", c.UserID)
		return nil
	}
	return h(ctx, c, env.Payload)
}

func (r *Router) handleSend(ctx context.Context, c *Client, payload json.RawMessage) error {
	var req dto.SendMessageReq
	if err := json.Unmarshal(payload, &req); err != nil || req.ConversationID == 0 {
		return errors.New("bad send payload")
	}
	// MESSAGE_PUSH 由投递管道负责，且仅对真正新建的消息触发；
	// 重发命中已有消息时这里只回 ACK，接收端不会看到重复
	msg, created, err := r.messageSvc.Send(ctx, c.UserID, c.DeviceID, &req)
	if err != nil {
		r.sendError(c, sendErrCode(err), err.Error())
		return nil
	}

	// ACK 发到用户主题：发送者的其他设备同样需要看到这条消息已落库
	if perr := r.hub.PublishToUser(ctx, c.UserID, consts.EventMessageAck, &ackPayload{
		TempID:         req.TempID,
		ConversationID: msg.ConversationID,
		MessageID:      msg.ID,
		Seq:            msg.Seq,
		CreatedAt:      msg.CreatedAt,
		Created:        created,
	}); perr != nil {
		log.Error("publish ack failed", "userId", c.UserID, "messageId", msg.ID, "err", perr)
	}
	return nil
}

// sendErrCode 发送失败的服务错误到协议错误码映射
func sendErrCode(err error) string {
	switch {
	case errors.Is(err, service.ErrNotMember), errors.Is(err, service.ErrConversationNotFound):
		return consts.WSErrNotMember
	case errors.Is(err, service.ErrInvalidBody):
		return consts.WSErrInvalidBody
	case errors.Is(err, service.ErrInvalidMedia):
		return consts.WSErrInvalidMedia
	case errors.Is(err, service.ErrInvalidContentType):
		return consts.WSErrInvalidType
	default:
		return consts.WSErrSendFailed
	}
}

func (r *Router) handleDeliveryReceipt(ctx context.Context, c *Client, payload json.RawMessage) error {
	var req deliveryReceiptPayload
	if err := json.Unmarshal(payload, &req); err != nil || req.ConversationID == 0 {
		return errors.New("bad delivery receipt payload")
	}
	if err := r.receiptSvc.MarkDelivered(ctx, c.UserID, c.DeviceID, req.ConversationID, req.LastDeliveredSeq); err != nil {
		r.sendError(c, receiptErrCode(err, consts.WSErrInvalidDelivered), err.Error())
	}
	return nil
}

func (r *Router) handleReadReceipt(ctx context.Context, c *Client, payload json.RawMessage) error {
	var req readReceiptPayload
	if err := json.Unmarshal(payload, &req); err != nil || req.ConversationID == 0 {
		return errors.New("bad read receipt payload")
	}
	if err := r.receiptSvc.MarkRead(ctx, c.UserID, c.DeviceID, req.ConversationID, req.LastReadSeq); err != nil {
		r.sendError(c, receiptErrCode(err, consts.WSErrInvalidRead), err.Error())
	}
	return nil
}

func receiptErrCode(err error, fallback string) string {
	if errors.Is(err, service.ErrNotMember) || errors.Is(err, service.ErrConversationNotFound) {
		return consts.WSErrNotMember
	}
	return fallback
}

func (r *Router) handleEdit(ctx context.Context, c *Client, payload json.RawMessage) error {
	var req editPayload
	if err := json.Unmarshal(payload, &req); err != nil || req.ConversationID == 0 || req.MessageID == 0 {
		return errors.New("bad edit payload")
	}
	_, err := r.messageSvc.Edit(ctx, c.UserID, req.ConversationID, req.MessageID, req.Body)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidBody):
			r.sendError(c, consts.WSErrInvalidBody, err.Error())
		case errors.Is(err, service.ErrNotMember):
			r.sendError(c, consts.WSErrNotMember, err.Error())
		default:
			r.sendError(c, consts.WSErrEditDenied, err.Error())
		}
	}
	return nil
}

func (r *Router) handleDelete(ctx context.Context, c *Client, payload json.RawMessage) error {
	var req deletePayload
	if err := json.Unmarshal(payload, &req); err != nil || req.ConversationID == 0 || req.MessageID == 0 {
		return errors.New("bad delete payload")
	}
	_, err := r.messageSvc.DeleteForAll(ctx, c.UserID, req.ConversationID, req.MessageID)
	if err != nil {
		if errors.Is(err, service.ErrNotMember) {
			r.sendError(c, consts.WSErrNotMember, err.Error())
		} else {
			r.sendError(c, consts.WSErrDeleteDenied, err.Error())
		}
	}
	return nil
}

func (r *Router) handleReactionSet(ctx context.Context, c *Client, payload json.RawMessage) error {
	var req reactionSetPayload
	if err := json.Unmarshal(payload, &req); err != nil || req.ConversationID == 0 || req.MessageID == 0 || req.Emoji == nil {
		return errors.New("bad reaction payload")
	}
	_, err := r.messageSvc.SetReaction(ctx, c.UserID, req.ConversationID, req.MessageID, *req.Emoji)
	switch {
	case err == nil:
	case errors.Is(err, service.ErrInvalidReaction):
		r.sendError(c, consts.WSErrInvalidReaction, err.Error())
	case errors.Is(err, service.ErrNotMember):
		r.sendError(c, consts.WSErrNotMember, err.Error())
	default:
		r.sendError(c, consts.WSErrReactionFailed, err.Error())
	}
	return nil
}

func (r *Router) handleReactionRemove(ctx context.Context, c *Client, payload json.RawMessage) error {
	var req deletePayload
	if err := json.Unmarshal(payload, &req); err != nil || req.ConversationID == 0 || req.MessageID == 0 {
		return errors.New("bad reaction payload")
	}
	err := r.messageSvc.RemoveReaction(ctx, c.UserID, req.ConversationID, req.MessageID)
	switch {
	case err == nil:
	case errors.Is(err, service.ErrReactionMissing):
		r.sendError(c, consts.WSErrReactionMissing, err.Error())
	case errors.Is(err, service.ErrNotMember):
		r.sendError(c, consts.WSErrNotMember, err.Error())
	default:
		r.sendError(c, consts.WSErrReactionFailed, err.Error())
	}
	return nil
}

func (r *Router) handleTypingStart(ctx context.Context, c *Client, payload json.RawMessage) error {
	return r.publishTyping(ctx, c, payload, true)
}

func (r *Router) handleTypingStop(ctx context.Context, c *Client, payload json.RawMessage) error {
	return r.publishTyping(ctx, c, payload, false)
}

// publishTyping 输入状态是瞬态提示，非成员直接丢弃，不值得回一条 ERROR
func (r *Router) publishTyping(ctx context.Context, c *Client, payload json.RawMessage, isTyping bool) error {
	var req conversationPayload
	if err := json.Unmarshal(payload, &req); err != nil || req.ConversationID == 0 {
		return errors.New("bad typing payload")
	}
	isMember, err := r.convRepo.IsMember(ctx, req.ConversationID, c.UserID)
	if err != nil || !isMember {
		return nil
	}
	if perr := r.hub.PublishToConversation(ctx, req.ConversationID, consts.EventTyping, &typingPayload{
		ConversationID: req.ConversationID,
		UserID:         c.UserID,
		IsTyping:       isTyping,
	}); perr != nil {
		log.Warn("publish typing failed", "conversationId", req.ConversationID, "err", perr)
	}
	return nil
}

func (r *Router) handleConversationSubscribe(ctx context.Context, c *Client, payload json.RawMessage) error {
	var req conversationPayload
	if err := json.Unmarshal(payload, &req); err != nil || req.ConversationID == 0 {
		return errors.New("bad subscribe payload")
	}
	isMember, err := r.convRepo.IsMember(ctx, req.ConversationID, c.UserID)
	if err != nil {
		r.sendError(c, consts.WSErrNotMember, err.Error())
		return nil
	}
	if !isMember {
		r.sendError(c, consts.WSErrNotMember, "不是会话成员")
		return nil
	}
	r.registry.Subscribe(c, ConversationTopic(req.ConversationID))
	return nil
}

func (r *Router) handleFeedSubscribe(_ context.Context, c *Client, _ json.RawMessage) error {
	r.registry.Subscribe(c, consts.TopicFeedGlobal)
	return nil
}

// handleSyncInit 重连补拉：坏条目跳过，合法条目把错过的消息按 seq 升序逐条
// 以 MESSAGE_PUSH 回放到当前连接，并把连接挂到会话主题上
func (r *Router) handleSyncInit(ctx context.Context, c *Client, payload json.RawMessage) error {
	var req dto.SyncReq
	if err := json.Unmarshal(payload, &req); err != nil || req.Conversations == nil {
		return errors.New("bad sync payload")
	}
	for _, cur := range req.Conversations {
		entry, err := r.syncSvc.SyncConversation(ctx, c.UserID, c.DeviceID, cur)
		if err != nil {
			log.Error("sync conversation failed", "conversationId", cur.ConversationID, "userId", c.UserID, "err", err)
			continue
		}
		if entry == nil {
			continue
		}
		r.registry.Subscribe(c, ConversationTopic(cur.ConversationID))
		for _, msg := range entry.Messages {
			data, merr := NewEvent(consts.EventMessagePush, msg)
			if merr != nil {
				continue
			}
			c.Enqueue(data)
		}
	}
	return nil
}

func (r *Router) handlePing(_ context.Context, c *Client, _ json.RawMessage) error {
	data, err := NewEvent(consts.EventPong, struct{}{})
	if err != nil {
		return nil
	}
	c.Enqueue(data)
	return nil
}

func (r *Router) sendError(c *Client, code, message string) {
	c.Enqueue(NewErrorEvent(code, message))
}
