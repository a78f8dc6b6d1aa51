package api

import "Relay/internal/api/handler"

// HandlersGroup 封装了所有已初始化的 Handler 实例
type HandlersGroup struct {
	MessageHandler  *handler.MessageHandler
	PresenceHandler *handler.PresenceHandler
	WSHandler       *handler.WsHandler
}
