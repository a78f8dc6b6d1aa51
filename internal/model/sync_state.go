package model

import "time"

// DeviceSyncState 设备同步游标，(user_id, device_id, conversation_id) 唯一
// 两个游标都只能单调推进，更新语义为 GREATEST(old, incoming)。
type DeviceSyncState struct {
	ID               uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID           uint64    `gorm:"not null;uniqueIndex:idx_user_device_conv" json:"userId"`
	DeviceID         string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_user_device_conv" json:"deviceId"`
	ConversationID   uint64    `gorm:"not null;uniqueIndex:idx_user_device_conv;index" json:"conversationId"`
	LastDeliveredSeq uint64    `gorm:"not null;default:0" json:"lastDeliveredSeq"`
	LastReadSeq      uint64    `gorm:"not null;default:0" json:"lastReadSeq"`
	LastSyncAt       time.Time `json:"lastSyncAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

func (DeviceSyncState) TableName() string { return "sync_state" }
