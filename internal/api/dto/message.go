package dto

import "time"

// SendMessageReq 发送消息请求体，contentType 缺省按 text 处理
type SendMessageReq struct {
	ConversationID  uint64     `json:"conversationId" binding:"required"`
	ContentType     string     `json:"contentType" binding:"omitempty,oneof=text media system"`
	Body            string     `json:"body"`
	MediaAssetID    *string    `json:"mediaAssetId"`
	TempID          *string    `json:"tempId"`
	ClientTimestamp *time.Time `json:"clientTimestamp"`
}

// EditMessageReq 编辑消息请求体
type EditMessageReq struct {
	Body string `json:"body" binding:"required"`
}

// ReactionReq 表态请求体
type ReactionReq struct {
	Emoji string `json:"emoji" binding:"required,min=1,max=16"`
}

// ReactionDTO 单条表态
type ReactionDTO struct {
	UserID    uint64    `json:"userId"`
	Emoji     string    `json:"emoji"`
	ReactedAt time.Time `json:"reactedAt"`
}

// MessageDTO 消息明细响应
type MessageDTO struct {
	ID              uint64        `json:"id"`
	ConversationID  uint64        `json:"conversationId"`
	SenderUserID    uint64        `json:"senderUserId"`
	SenderDeviceID  string        `json:"senderDeviceId"`
	Seq             uint64        `json:"seq"`
	ContentType     string        `json:"contentType"`
	Body            string        `json:"body"`
	MediaAssetID    *string       `json:"mediaAssetId,omitempty"`
	TempID          *string       `json:"tempId,omitempty"`
	ClientTimestamp *time.Time    `json:"clientTimestamp,omitempty"`
	EditVersion     uint32        `json:"editVersion"`
	Deleted         bool          `json:"deleted"`
	CreatedAt       time.Time     `json:"createdAt"`
	Reactions       []ReactionDTO `json:"reactions,omitempty"`
}

// ReceiptDTO 单设备回执视图
type ReceiptDTO struct {
	DeviceID    string     `json:"deviceId"`
	UserID      *uint64    `json:"userId,omitempty"`
	DeliveredAt *time.Time `json:"deliveredAt,omitempty"`
	ReadAt      *time.Time `json:"readAt,omitempty"`
}

// MarkDeliveredReq 推进送达游标请求体，游标为 0 是合法空操作
type MarkDeliveredReq struct {
	ConversationID   uint64 `json:"conversationId" binding:"required"`
	LastDeliveredSeq uint64 `json:"lastDeliveredSeq"`
}

// MarkReadReq 推进已读游标请求体
type MarkReadReq struct {
	ConversationID uint64 `json:"conversationId" binding:"required"`
	LastReadSeq    uint64 `json:"lastReadSeq"`
}

// HistoryReq 历史分页查询参数
type HistoryReq struct {
	BeforeSeq uint64 `form:"beforeSeq"`
	Limit     int    `form:"limit,default=50" binding:"max=200"`
}
