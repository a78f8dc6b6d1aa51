package handler

import (
	"Relay/internal/pkg/consts"
	"Relay/internal/pkg/response"
	"Relay/internal/pkg/security"
	"Relay/internal/realtime"
	"Relay/internal/repository"
	"Relay/internal/service"
	"context"
	log "log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

const readWait = 60 * time.Second

type WsHandler struct {
	registry *realtime.Registry
	router   *realtime.Router
	hub      *realtime.Hub
	presence *realtime.Presence
	convRepo repository.ConversationRepo
}

func NewWsHandler(
	registry *realtime.Registry,
	router *realtime.Router,
	hub *realtime.Hub,
	presence *realtime.Presence,
	convRepo repository.ConversationRepo,
) *WsHandler {
	return &WsHandler{
		registry: registry,
		router:   router,
		hub:      hub,
		presence: presence,
		convRepo: convRepo,
	}
}

func (s *WsHandler) Connect(c *gin.Context) {
	// 鉴权：token 与设备号都经查询参数携带
	token := c.Query("token")
	deviceID := c.Query("deviceId")
	if token == "" || deviceID == "" {
		response.Error(c, service.UnauthorizedError)
		return
	}
	claims, err := security.ValidateToken(token)
	if err != nil {
		log.Warn("WS 鉴权失败", "err", err)
		response.Error(c, service.UnauthorizedError)
		return
	}
	userID := claims.UserID

	// 升级 Websocket
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WS 协议升级失败", "err", err)
		return
	}
	conn.SetReadLimit(consts.MaxFramePayload)

	client := realtime.NewClient(s.registry.NextConnID(), userID, deviceID, conn)
	defer func() {
		s.cleanup(client)
	}()

	// 订阅个人主题、全局在线状态主题与全部在席会话主题
	s.registry.Subscribe(client, realtime.UserTopic(userID))
	s.registry.Subscribe(client, consts.TopicFeedGlobal)
	convIDs, err := s.convRepo.ListConversationIDsForUser(c.Request.Context(), userID)
	if err != nil {
		log.Error("获取会话列表失败", "userID", userID, "err", err)
		return
	}
	for _, id := range convIDs {
		s.registry.Subscribe(client, realtime.ConversationTopic(id))
	}

	// 在线状态：首设备上线沿全局主题广播边沿事件
	if first := s.presence.Connect(c.Request.Context(), userID, deviceID); first {
		s.hub.PublishPresence(context.Background(), userID, true)
	}

	log.Info("用户 WS 连接已建立", "userID", userID, "deviceId", deviceID, "connId", client.ID, "conversations", len(convIDs))

	go client.WritePump()
	go s.refreshLoop(client)

	s.readLoop(c.Request.Context(), conn, client)
}

// readLoop 读循环：限频、解析并分发，坏帧直接断开
func (s *WsHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *realtime.Client) {
	_ = conn.SetReadDeadline(time.Now().Add(readWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readWait))
	})

	windowStart := time.Now()
	frames := 0

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(readWait))

		// 固定窗口限频，超限视为协议滥用
		now := time.Now()
		if now.Sub(windowStart) > consts.FrameRateWindowS*time.Second {
			windowStart = now
			frames = 0
		}
		frames++
		if frames > consts.FrameRateLimit {
			log.Warn("WS 超过限频，断开连接", "userID", client.UserID, "connId", client.ID)
			return
		}

		if err := s.router.HandleFrame(ctx, client, raw); err != nil {
			log.Warn("WS 非法帧，断开连接", "userID", client.UserID, "connId", client.ID, "err", err)
			return
		}
	}
}

// refreshLoop 周期续租在线状态直到连接关闭
func (s *WsHandler) refreshLoop(client *realtime.Client) {
	ticker := time.NewTicker(consts.PresenceRefreshS * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if client.IsClosed() {
				return
			}
			s.presence.Refresh(context.Background(), client.UserID, client.DeviceID)
		case <-client.Done():
			return
		}
	}
}

func (s *WsHandler) cleanup(client *realtime.Client) {
	client.Close()
	s.registry.RemoveConn(client)
	// 末设备下线广播边沿事件
	if last := s.presence.Disconnect(context.Background(), client.UserID, client.DeviceID); last {
		s.hub.PublishPresence(context.Background(), client.UserID, false)
	}
	log.Info("用户 WS 连接已断开", "userID", client.UserID, "deviceId", client.DeviceID, "connId", client.ID)
}
