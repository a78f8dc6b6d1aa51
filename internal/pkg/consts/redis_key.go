package consts

const (
	// PresenceDevicesKey + userID -> ZSET member=deviceID score=到期时间戳
	PresenceDevicesKey = "presence:devices:"

	// WSChannelPrefix 跨实例扇出频道前缀，psubscribe ws:* 后去前缀得到本地主题名
	WSChannelPrefix       = "ws:"
	WSUserChannel         = "ws:user:"
	WSConversationChannel = "ws:conversation:"
	WSFeedGlobalChannel   = "ws:feed:global"
)

const (
	// 本地主题名（去 ws: 前缀后的形式）
	TopicUserPrefix         = "user:"
	TopicConversationPrefix = "conversation:"
	TopicFeedGlobal         = "feed:global"
)
