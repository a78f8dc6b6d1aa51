package realtime

import (
	log "log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	sendQueueSize = 256
	writeWait     = 10 * time.Second
	pingInterval  = 25 * time.Second
)

// Client 网关上的单个设备连接，一个用户可同时持有多个连接
type Client struct {
	ID       uint64
	UserID   uint64
	DeviceID string

	ws        *websocket.Conn
	send      chan []byte
	quit      chan struct{}
	closed    atomic.Bool
	closeOnce sync.Once
}

func NewClient(id, userID uint64, deviceID string, ws *websocket.Conn) *Client {
	return &Client{
		ID:       id,
		UserID:   userID,
		DeviceID: deviceID,
		ws:       ws,
		send:     make(chan []byte, sendQueueSize),
		quit:     make(chan struct{}),
	}
}

// Enqueue 非阻塞入队：慢客户端丢帧不丢连接，落后的消息靠补拉追平
func (c *Client) Enqueue(payload []byte) bool {
	if c.closed.Load() {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		log.Warn("slow client, frame dropped", "connId", c.ID, "userId", c.UserID, "deviceId", c.DeviceID)
		return false
	}
}

// WritePump 单写协程，退出时关闭底层连接
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.Close()
	}()
	for {
		select {
		case payload := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.quit:
			return
		}
	}
}

// Close 幂等关闭；send 队列不关闭，避免与并发 Enqueue 竞争
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.quit)
		if c.ws != nil {
			_ = c.ws.Close()
		}
	})
}

func (c *Client) IsClosed() bool {
	return c.closed.Load()
}

// Done 连接关闭信号
func (c *Client) Done() <-chan struct{} {
	return c.quit
}
