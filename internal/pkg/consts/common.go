package consts

// 客户端上行命令
const (
	CmdSyncInit              = "SYNC_INIT"
	CmdMessageSend           = "MESSAGE_SEND"
	CmdReadReceipt           = "READ_RECEIPT"
	CmdDeliveryReceipt       = "DELIVERY_RECEIPT"
	CmdMessageEdit           = "MESSAGE_EDIT"
	CmdMessageDelete         = "MESSAGE_DELETE"
	CmdReactionSet           = "REACTION_SET"
	CmdReactionRemove        = "REACTION_REMOVE"
	CmdTypingStart           = "TYPING_START"
	CmdTypingStop            = "TYPING_STOP"
	CmdConversationSubscribe = "CONVERSATION_SUBSCRIBE"
	CmdFeedSubscribe         = "FEED_SUBSCRIBE"
	CmdPing                  = "PING"
)

// 服务端下行事件
const (
	EventMessageAck     = "MESSAGE_ACK"
	EventMessagePush    = "MESSAGE_PUSH"
	EventMessageEdit    = "MESSAGE_EDIT"
	EventMessageDelete  = "MESSAGE_DELETE"
	EventReactionUpdate = "REACTION_UPDATE"
	EventReadUpdate     = "READ_UPDATE"
	EventDeliveryUpdate = "DELIVERY_UPDATE"
	EventTyping         = "TYPING"
	EventPresenceUpdate = "PRESENCE_UPDATE"
	EventPong           = "PONG"
	EventError          = "ERROR"
)

// ERROR 事件错误码
const (
	WSErrNotMember        = "NOT_MEMBER"
	WSErrInvalidBody      = "INVALID_BODY"
	WSErrInvalidMedia     = "INVALID_MEDIA"
	WSErrInvalidType      = "INVALID_TYPE"
	WSErrInvalidRead      = "INVALID_READ"
	WSErrInvalidDelivered = "INVALID_DELIVERED"
	WSErrInvalidReaction  = "INVALID_REACTION"
	WSErrEditDenied       = "EDIT_DENIED"
	WSErrDeleteDenied     = "DELETE_DENIED"
	WSErrReactionFailed   = "REACTION_FAILED"
	WSErrReactionMissing  = "REACTION_MISSING"
	WSErrSendFailed       = "SEND_FAILED"
)

// 协议与投递限制
const (
	MaxBodyLen       = 8192
	MaxEmojiLen      = 16
	SyncPageLimit    = 500
	HistoryPageLimit = 200
	MaxFramePayload  = 64 * 1024
	FrameRateLimit   = 120
	FrameRateWindowS = 10
	PresenceTTLS     = 90
	PresenceRefreshS = 30
	RetryMaxAttempts = 5
)
