package realtime

import (
	"Relay/internal/pkg/consts"
	"time"

	"github.com/goccy/go-json"
)

// Envelope 连接上行/下行的统一帧结构
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
	TS      int64           `json:"ts"`
}

// NewEvent 构造下行事件帧
func NewEvent(eventType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(&Envelope{
		Type:    eventType,
		Payload: raw,
		TS:      time.Now().UnixMilli(),
	})
}

// ErrorPayload ERROR 事件载荷
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

// NewErrorEvent 构造 ERROR 帧；错误码是协议的一部分，构造失败不应发生
func NewErrorEvent(code, message string) []byte {
	data, _ := NewEvent(consts.EventError, &ErrorPayload{Code: code, Message: message})
	return data
}

// readReceiptPayload READ_RECEIPT 载荷，lastReadSeq 为 0 表示尚无已读
type readReceiptPayload struct {
	ConversationID uint64 `json:"conversationId"`
	LastReadSeq    uint64 `json:"lastReadSeq"`
}

// deliveryReceiptPayload DELIVERY_RECEIPT 载荷
type deliveryReceiptPayload struct {
	ConversationID   uint64 `json:"conversationId"`
	LastDeliveredSeq uint64 `json:"lastDeliveredSeq"`
}

// editPayload MESSAGE_EDIT 载荷
type editPayload struct {
	ConversationID uint64 `json:"conversationId"`
	MessageID      uint64 `json:"messageId"`
	Body           string `json:"body"`
}

// deletePayload MESSAGE_DELETE / REACTION_REMOVE 载荷
type deletePayload struct {
	ConversationID uint64 `json:"conversationId"`
	MessageID      uint64 `json:"messageId"`
}

// reactionSetPayload REACTION_SET 载荷；emoji 缺失属于结构性错误
type reactionSetPayload struct {
	ConversationID uint64  `json:"conversationId"`
	MessageID      uint64  `json:"messageId"`
	Emoji          *string `json:"emoji"`
}

// conversationPayload TYPING_START / TYPING_STOP / CONVERSATION_SUBSCRIBE 载荷
type conversationPayload struct {
	ConversationID uint64 `json:"conversationId"`
}

// typingPayload TYPING 下行载荷
type typingPayload struct {
	ConversationID uint64 `json:"conversationId"`
	UserID         uint64 `json:"userId"`
	IsTyping       bool   `json:"isTyping"`
}

// ackPayload MESSAGE_ACK 载荷：tempId 回传给客户端做本地消息替换，
// created=false 表示命中幂等重发
type ackPayload struct {
	TempID         *string   `json:"tempId"`
	ConversationID uint64    `json:"conversationId"`
	MessageID      uint64    `json:"messageId"`
	Seq            uint64    `json:"seq"`
	CreatedAt      time.Time `json:"createdAt"`
	Created        bool      `json:"created"`
}

// presencePayload PRESENCE_UPDATE 载荷
type presencePayload struct {
	UserID uint64 `json:"userId"`
	Online bool   `json:"online"`
}
