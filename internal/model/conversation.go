package model

import "time"

// Conversation 会话主表（归属成员子系统，核心只读取并在定序时持有行锁）
type Conversation struct {
	ID            uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	Type          int8      `gorm:"not null;default:1" json:"type"` // 1-单聊, 2-群聊
	Title         string    `gorm:"type:varchar(128)" json:"title"` // 群聊标题
	MaxMsgSeq     uint64    `gorm:"not null;default:0" json:"maxMsgSeq"`
	LastMessageAt time.Time `gorm:"index" json:"lastMessageAt"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

func (Conversation) TableName() string { return "conversations" }

// ConversationMember 会话成员表（外部子系统维护增删，核心只做成员校验与已读推进）
type ConversationMember struct {
	ID             uint64     `gorm:"primaryKey;autoIncrement" json:"id"`
	ConversationID uint64     `gorm:"uniqueIndex:idx_conv_user" json:"conversationId"`
	UserID         uint64     `gorm:"uniqueIndex:idx_conv_user;index" json:"userId"`
	LastReadSeq    uint64     `gorm:"not null;default:0" json:"lastReadSeq"` // 已读进度，只增不减
	LeftAt         *time.Time `json:"leftAt"`
	JoinedAt       time.Time  `json:"joinedAt"`
}

func (ConversationMember) TableName() string { return "conversation_members" }
