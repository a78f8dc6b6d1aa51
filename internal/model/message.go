package model

import "time"

const (
	ContentTypeText   = "text"
	ContentTypeMedia  = "media"
	ContentTypeSystem = "system"
)

// Message 消息主表
// (conversation_id, seq) 唯一保证会话内严格定序；
// (conversation_id, sender_user_id, sender_device_id, client_temp_id) 唯一承载幂等重发。
type Message struct {
	ID              uint64     `gorm:"primaryKey;autoIncrement" json:"id"`
	ConversationID  uint64     `gorm:"not null;uniqueIndex:idx_conv_seq;uniqueIndex:idx_conv_temp" json:"conversationId"`
	SenderUserID    uint64     `gorm:"not null;uniqueIndex:idx_conv_temp" json:"senderUserId"`
	SenderDeviceID  string     `gorm:"type:varchar(64);not null;uniqueIndex:idx_conv_temp" json:"senderDeviceId"`
	Seq             uint64     `gorm:"not null;uniqueIndex:idx_conv_seq" json:"seq"`
	ContentType     string     `gorm:"type:varchar(16);not null;default:text" json:"contentType"`
	Body            string     `gorm:"type:varchar(8192)" json:"body"`
	MediaAssetID    *string    `gorm:"type:varchar(64)" json:"mediaAssetId"`
	ClientTempID    *string    `gorm:"type:varchar(64);uniqueIndex:idx_conv_temp" json:"clientTempId"`
	ClientTimestamp *time.Time `json:"clientTimestamp"`
	EditVersion     uint32     `gorm:"not null;default:0" json:"editVersion"`
	DeletedForAllAt *time.Time `json:"deletedForAllAt"`
	CreatedAt       time.Time  `json:"createdAt"`

	// 虚拟字段：列表查询时由 SQL 聚合填充
	Reactions []MessageReaction `gorm:"-" json:"reactions,omitempty"`
}

func (Message) TableName() string { return "messages" }

// MessageReaction 消息表态，(message_id, user_id) 唯一，同一用户后写覆盖
type MessageReaction struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	MessageID uint64    `gorm:"not null;uniqueIndex:idx_msg_user" json:"messageId"`
	UserID    uint64    `gorm:"not null;uniqueIndex:idx_msg_user" json:"userId"`
	Emoji     string    `gorm:"type:varchar(16);not null" json:"emoji"`
	ReactedAt time.Time `json:"reactedAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (MessageReaction) TableName() string { return "message_reactions" }

// MessageDeviceState 设备级回执，delivered_at/read_at 各自首写生效
type MessageDeviceState struct {
	ID          uint64     `gorm:"primaryKey;autoIncrement" json:"id"`
	MessageID   uint64     `gorm:"not null;uniqueIndex:idx_msg_device" json:"messageId"`
	DeviceID    string     `gorm:"type:varchar(64);not null;uniqueIndex:idx_msg_device" json:"deviceId"`
	DeliveredAt *time.Time `json:"deliveredAt"`
	ReadAt      *time.Time `json:"readAt"`
}

func (MessageDeviceState) TableName() string { return "message_device_states" }

// MessageRetry 待重投记录：投递消费者写入，回执确认后按 seq 区间清除
type MessageRetry struct {
	ID             uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	MessageID      uint64    `gorm:"not null;uniqueIndex:idx_retry_msg_device" json:"messageId"`
	DeviceID       string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_retry_msg_device" json:"deviceId"`
	UserID         uint64    `gorm:"not null;index" json:"userId"`
	ConversationID uint64    `gorm:"not null;index" json:"conversationId"`
	Seq            uint64    `gorm:"not null" json:"seq"`
	Attempts       uint32    `gorm:"not null;default:0" json:"attempts"`
	NextAttemptAt  time.Time `gorm:"index" json:"nextAttemptAt"`
	CreatedAt      time.Time `json:"createdAt"`
}

func (MessageRetry) TableName() string { return "message_retries" }
