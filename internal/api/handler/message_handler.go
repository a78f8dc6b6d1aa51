package handler

import (
	"Relay/internal/api/dto"
	"Relay/internal/pkg/response"
	"Relay/internal/service"
	"context"
	"strconv"

	"github.com/gin-gonic/gin"
)

type MessageHandler struct {
	messageService service.MessageService
	receiptService service.ReceiptService
	syncService    service.SyncService
}

func NewMessageHandler(
	messageService service.MessageService,
	receiptService service.ReceiptService,
	syncService service.SyncService,
) *MessageHandler {
	return &MessageHandler{
		messageService: messageService,
		receiptService: receiptService,
		syncService:    syncService,
	}
}

// deviceID 回执与补拉按设备区分，设备号由客户端经请求头携带
func deviceID(c *gin.Context) string {
	return c.GetHeader("X-Device-ID")
}

// SendMessage 发送消息接口
func (s *MessageHandler) SendMessage(c *gin.Context) {
	var req dto.SendMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}
	dev := deviceID(c)
	if dev == "" {
		response.Error(c, service.ErrParamInvalid)
		return
	}

	userID := c.GetUint64("user_id")

	msg, _, err := s.messageService.Send(c, userID, dev, &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, msg)
}

// GetHistory 按 seq 倒序分页拉取历史
func (s *MessageHandler) GetHistory(c *gin.Context) {
	convID, err := strconv.ParseUint(c.Param("conversationId"), 10, 64)
	if err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}
	var q dto.HistoryReq
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}

	userID := c.GetUint64("user_id")

	res, err := s.messageService.GetHistory(c, userID, convID, q.BeforeSeq, q.Limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

// GetReceipts 单条消息的设备回执视图
func (s *MessageHandler) GetReceipts(c *gin.Context) {
	convID, err := strconv.ParseUint(c.Param("conversationId"), 10, 64)
	if err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}
	messageID, err := strconv.ParseUint(c.Param("messageId"), 10, 64)
	if err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}

	userID := c.GetUint64("user_id")

	res, err := s.messageService.GetReceipts(c, userID, convID, messageID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

// EditMessage 编辑消息正文
func (s *MessageHandler) EditMessage(c *gin.Context) {
	convID, err := strconv.ParseUint(c.Param("conversationId"), 10, 64)
	if err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}
	messageID, err := strconv.ParseUint(c.Param("messageId"), 10, 64)
	if err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}
	var req dto.EditMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}

	userID := c.GetUint64("user_id")

	msg, err := s.messageService.Edit(c, userID, convID, messageID, req.Body)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, msg)
}

// DeleteMessage 全员撤回，消息转为墓碑
func (s *MessageHandler) DeleteMessage(c *gin.Context) {
	convID, err := strconv.ParseUint(c.Param("conversationId"), 10, 64)
	if err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}
	messageID, err := strconv.ParseUint(c.Param("messageId"), 10, 64)
	if err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}

	userID := c.GetUint64("user_id")

	msg, err := s.messageService.DeleteForAll(c, userID, convID, messageID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, msg)
}

// SetReaction 添加或覆盖表态
func (s *MessageHandler) SetReaction(c *gin.Context) {
	convID, err := strconv.ParseUint(c.Param("conversationId"), 10, 64)
	if err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}
	messageID, err := strconv.ParseUint(c.Param("messageId"), 10, 64)
	if err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}
	var req dto.ReactionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, service.ErrInvalidReaction)
		return
	}

	userID := c.GetUint64("user_id")

	res, err := s.messageService.SetReaction(c, userID, convID, messageID, req.Emoji)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

// RemoveReaction 撤销自己的表态
func (s *MessageHandler) RemoveReaction(c *gin.Context) {
	convID, err := strconv.ParseUint(c.Param("conversationId"), 10, 64)
	if err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}
	messageID, err := strconv.ParseUint(c.Param("messageId"), 10, 64)
	if err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}

	userID := c.GetUint64("user_id")

	if err := s.messageService.RemoveReaction(c, userID, convID, messageID); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

// MarkDelivered 推进送达游标
func (s *MessageHandler) MarkDelivered(c *gin.Context) {
	var req dto.MarkDeliveredReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}
	s.markReceipt(c, req.ConversationID, req.LastDeliveredSeq, s.receiptService.MarkDelivered)
}

// MarkRead 推进已读游标
func (s *MessageHandler) MarkRead(c *gin.Context) {
	var req dto.MarkReadReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}
	s.markReceipt(c, req.ConversationID, req.LastReadSeq, s.receiptService.MarkRead)
}

func (s *MessageHandler) markReceipt(c *gin.Context, convID, seq uint64, mark func(ctx context.Context, userID uint64, deviceID string, convID, seq uint64) error) {
	dev := deviceID(c)
	if dev == "" {
		response.Error(c, service.ErrParamInvalid)
		return
	}

	userID := c.GetUint64("user_id")

	if err := mark(c, userID, dev, convID, seq); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

// Sync 重连补拉接口
func (s *MessageHandler) Sync(c *gin.Context) {
	var req dto.SyncReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}
	dev := deviceID(c)
	if dev == "" {
		response.Error(c, service.ErrParamInvalid)
		return
	}

	userID := c.GetUint64("user_id")

	res, err := s.syncService.Sync(c, userID, dev, &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}
