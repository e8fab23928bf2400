package ws

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Client 是一条已鉴权的 WebSocket 连接。handle 是本次连接的传输层
// 标识，写入 presence 行的 connection_handle。
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	userID uint
	handle string

	// mu 保护 send 的关闭：广播方与本连接的 reader 会并发投递，
	// 慢消费者清退又会从第三方 goroutine 关闭通道。
	mu     sync.Mutex
	send   chan []byte
	closed bool
}

// enqueue 非阻塞投递，通道已满或已关闭返回 false，由 Hub 负责清退
// 慢消费者。
func (c *Client) enqueue(payload []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// closeSend 幂等关闭发送通道，之后的 enqueue 全部失败而不是 panic。
func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// reply 只发给本连接，用于确认回执与 error 事件。
func (c *Client) reply(event string, fields map[string]interface{}) {
	c.enqueue(payload(event, fields))
}

func (c *Client) replyError(message string) {
	c.reply("error", map[string]interface{}{"message": message})
}

// readPump 串行处理本连接的入站事件：同一连接内按到达顺序执行，
// 不同连接之间没有任何顺序约束。
func (c *Client) readPump(g *Gateway) {
	defer func() {
		g.disconnect(c)
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(1 << 20) // 1MB
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
		g.dispatch(c, data)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			_, _ = w.Write(message)
			_ = w.Close()
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
