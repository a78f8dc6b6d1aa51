package dto

import "time"

// SyncCursor 单会话同步游标
type SyncCursor struct {
	ConversationID   uint64 `json:"conversationId" binding:"required"`
	LastDeliveredSeq uint64 `json:"lastDeliveredSeq"`
	LastReadSeq      uint64 `json:"lastReadSeq"`
}

// SyncReq 重连补拉请求体：设备上报各会话的本地游标
type SyncReq struct {
	Conversations []SyncCursor `json:"conversations" binding:"required,dive"`
}

// ConversationSyncDTO 单会话补拉结果
type ConversationSyncDTO struct {
	ConversationID uint64        `json:"conversationId"`
	Messages       []*MessageDTO `json:"messages"`
	MaxSeq         uint64        `json:"maxSeq"`
	HasMore        bool          `json:"hasMore"`
}

// SyncRespDTO 补拉响应
type SyncRespDTO struct {
	Conversations []*ConversationSyncDTO `json:"conversations"`
	SyncedAt      time.Time              `json:"syncedAt"`
}

// PresenceDTO 在线状态查询响应项
type PresenceDTO struct {
	UserID  uint64   `json:"userId"`
	Online  bool     `json:"online"`
	Devices []string `json:"devices,omitempty"`
}
