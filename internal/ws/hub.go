package ws

import (
	"fmt"
	"sync"

	"github.com/PapaBear1981/SupplyLine-MRO-Suite-sub002/internal/metrics"
)

// 房间按字符串键组织，三个命名空间：个人房间、频道房间、kit 房间。
func UserRoom(userID uint) string       { return fmt.Sprintf("user:%d", userID) }
func ChannelRoom(channelID uint) string { return fmt.Sprintf("channel:%d", channelID) }
func KitRoom(kitID uint) string         { return fmt.Sprintf("kit:%d", kitID) }

// Hub 管理连接与房间的多对多关系，并发安全。一个连接可以同时位于
// 任意多个房间（个人房间 + 各频道房间 + 按需加入的 kit 房间）。
type Hub struct {
	mu      sync.RWMutex
	rooms   map[string]map[*Client]struct{}
	clients map[*Client]map[string]struct{}
}

func NewHub() *Hub {
	return &Hub{
		rooms:   make(map[string]map[*Client]struct{}),
		clients: make(map[*Client]map[string]struct{}),
	}
}

// Register 登记一个新连接，此时它还不在任何房间。
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		return
	}
	h.clients[c] = make(map[string]struct{})
	metrics.WsConnections.Inc()
}

// Unregister 将连接从所有房间移除并关闭其发送通道。重复调用无害。
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	roomSet, ok := h.clients[c]
	if ok {
		for room := range roomSet {
			h.dropLocked(room, c)
		}
		delete(h.clients, c)
		metrics.WsConnections.Dec()
	}
	h.mu.Unlock()
	if ok {
		c.closeSend()
	}
}

// Join 将连接加入房间，连接未登记或已在房间时为 no-op。
func (h *Hub) Join(room string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	roomSet, ok := h.clients[c]
	if !ok {
		return
	}
	roomSet[room] = struct{}{}
	members := h.rooms[room]
	if members == nil {
		members = make(map[*Client]struct{})
		h.rooms[room] = members
	}
	members[c] = struct{}{}
}

// Leave 将连接移出房间，不检查成员资格，总是成功。
func (h *Hub) Leave(room string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if roomSet, ok := h.clients[c]; ok {
		delete(roomSet, room)
	}
	h.dropLocked(room, c)
}

func (h *Hub) dropLocked(room string, c *Client) {
	members, ok := h.rooms[room]
	if !ok {
		return
	}
	delete(members, c)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
}

// Broadcast 把载荷投递给房间内所有连接。发送通道已满的连接视为掉线，
// 事后从 Hub 中清除，避免慢消费者拖垮广播。
func (h *Hub) Broadcast(room string, payload []byte) {
	h.broadcast(room, nil, payload)
}

// BroadcastExcept 同 Broadcast，但跳过指定连接（通常是事件的发起方）。
func (h *Hub) BroadcastExcept(room string, except *Client, payload []byte) {
	h.broadcast(room, except, payload)
}

func (h *Hub) broadcast(room string, except *Client, payload []byte) {
	h.mu.RLock()
	var stalled []*Client
	for c := range h.rooms[room] {
		if c == except {
			continue
		}
		if !c.enqueue(payload) {
			stalled = append(stalled, c)
		}
	}
	h.mu.RUnlock()
	for _, c := range stalled {
		h.Unregister(c)
	}
}

// BroadcastAll 把载荷投递给全部已登记连接，用于全局 presence 事件。
func (h *Hub) BroadcastAll(payload []byte) {
	h.mu.RLock()
	var stalled []*Client
	for c := range h.clients {
		if !c.enqueue(payload) {
			stalled = append(stalled, c)
		}
	}
	h.mu.RUnlock()
	for _, c := range stalled {
		h.Unregister(c)
	}
}

// Online 返回房间内的连接数量，供测试与 REST 接口复用。
func (h *Hub) Online(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Rooms 返回连接当前所在的房间列表。
func (h *Hub) Rooms(c *Client) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.clients[c]))
	for room := range h.clients[c] {
		out = append(out, room)
	}
	return out
}
