package realtime

import (
	"Relay/internal/pkg/consts"
	"strconv"
	"sync"
	"sync/atomic"
)

// UserTopic 用户个人主题：该用户的全部在线设备
func UserTopic(userID uint64) string {
	return consts.TopicUserPrefix + strconv.FormatUint(userID, 10)
}

// ConversationTopic 会话主题：订阅了该会话的全部本地连接
func ConversationTopic(convID uint64) string {
	return consts.TopicConversationPrefix + strconv.FormatUint(convID, 10)
}

// Registry 本实例的主题订阅表，双向索引：主题 -> 连接、连接 -> 主题
type Registry struct {
	mu      sync.RWMutex
	byTopic map[string]map[uint64]*Client
	byConn  map[uint64]map[string]struct{}
	nextID  atomic.Uint64
}

func NewRegistry() *Registry {
	return &Registry{
		byTopic: make(map[string]map[uint64]*Client),
		byConn:  make(map[uint64]map[string]struct{}),
	}
}

// NextConnID 进程内单调递增的连接号，重连拿到新号，旧连接的迟到操作不会串台
func (r *Registry) NextConnID() uint64 {
	return r.nextID.Add(1)
}

func (r *Registry) Subscribe(c *Client, topic string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := r.byTopic[topic]
	if m == nil {
		m = make(map[uint64]*Client)
		r.byTopic[topic] = m
	}
	m[c.ID] = c
	t := r.byConn[c.ID]
	if t == nil {
		t = make(map[string]struct{})
		r.byConn[c.ID] = t
	}
	t[topic] = struct{}{}
}

func (r *Registry) Unsubscribe(c *Client, topic string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unsubscribeLocked(c.ID, topic)
}

// RemoveConn 摘除连接的全部订阅
func (r *Registry) RemoveConn(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for topic := range r.byConn[c.ID] {
		r.unsubscribeLocked(c.ID, topic)
	}
	delete(r.byConn, c.ID)
}

func (r *Registry) unsubscribeLocked(connID uint64, topic string) {
	if m := r.byTopic[topic]; m != nil {
		delete(m, connID)
		if len(m) == 0 {
			delete(r.byTopic, topic)
		}
	}
	if t := r.byConn[connID]; t != nil {
		delete(t, topic)
	}
}

// Publish 向主题下所有本地连接投递；锁内只做快照，发送在锁外进行。
// 命中已关闭的连接时顺手摘除，订阅表随流量自愈。
func (r *Registry) Publish(topic string, payload []byte) int {
	r.mu.RLock()
	m := r.byTopic[topic]
	conns := make([]*Client, 0, len(m))
	for _, c := range m {
		conns = append(conns, c)
	}
	r.mu.RUnlock()

	delivered := 0
	var dead []*Client
	for _, c := range conns {
		if c.IsClosed() {
			dead = append(dead, c)
			continue
		}
		if c.Enqueue(payload) {
			delivered++
		}
	}
	for _, c := range dead {
		r.RemoveConn(c)
	}
	return delivered
}

// Topics 返回连接当前订阅的主题快照
func (r *Registry) Topics(c *Client) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byConn[c.ID]))
	for topic := range r.byConn[c.ID] {
		out = append(out, topic)
	}
	return out
}

// TopicSize 主题下的本地连接数
func (r *Registry) TopicSize(topic string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byTopic[topic])
}
