package display

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// 显示端事件名
const (
	EventChangeState   = "change_state"
	EventLoadProducts  = "load_products"
	EventUpdateProduct = "update_product"
	EventUpdateTotal   = "update_total"
	EventUpdateTimer   = "update_timer"
	EventShowReceipt   = "show_receipt"
	EventShowError     = "show_error"
)

// Message 推送给显示端的事件
type Message struct {
	Event     string      `json:"event"`     // 事件名
	Data      interface{} `json:"data"`      // 事件数据
	Timestamp int64       `json:"timestamp"` // 时间戳
}

// Hub WebSocket连接管理中心
// 推送永不阻塞：客户端缓冲区满时丢弃该条消息
type Hub struct {
	clients   map[string]*Client
	clientsMu sync.RWMutex

	broadcast  chan *Message
	register   chan *Client
	unregister chan *Client

	// 新连接需要的初始状态
	onConnect func(c *Client)

	logger *zap.Logger
	stopCh chan struct{}
}

// Client 一个显示端连接
type Client struct {
	ID   string
	Hub  *Hub
	Conn *websocket.Conn
	Send chan []byte

	writeTimeout time.Duration
}

// NewHub 创建Hub
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		broadcast:  make(chan *Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     logger,
		stopCh:     make(chan struct{}),
	}
}

// SetConnectHook 注册新连接回调（发送初始状态用）
func (h *Hub) SetConnectHook(fn func(c *Client)) {
	h.onConnect = fn
}

// Run 运行Hub事件循环
func (h *Hub) Run() {
	for {
		select {
		case <-h.stopCh:
			h.closeAll()
			return
		case client := <-h.register:
			h.registerClient(client)
		case client := <-h.unregister:
			h.unregisterClient(client)
		case message := <-h.broadcast:
			h.broadcastMessage(message)
		}
	}
}

// Stop 停止Hub并断开全部连接
func (h *Hub) Stop() {
	close(h.stopCh)
}

// Broadcast 向全部显示端推送事件（非阻塞）
func (h *Hub) Broadcast(event string, data interface{}) {
	msg := &Message{
		Event:     event,
		Data:      data,
		Timestamp: time.Now().Unix(),
	}
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("显示端广播队列已满，消息丢弃", zap.String("event", event))
	}
}

// SendTo 向单个客户端推送事件（非阻塞）
func (h *Hub) SendTo(c *Client, event string, data interface{}) {
	raw, err := json.Marshal(&Message{
		Event:     event,
		Data:      data,
		Timestamp: time.Now().Unix(),
	})
	if err != nil {
		h.logger.Error("显示端消息序列化失败", zap.Error(err))
		return
	}
	select {
	case c.Send <- raw:
	default:
		h.logger.Warn("显示端发送缓冲区满", zap.String("client_id", c.ID))
	}
}

// ClientCount 当前连接数
func (h *Hub) ClientCount() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}

// HandleConn 接管一条新的WebSocket连接
func (h *Hub) HandleConn(conn *websocket.Conn, writeTimeout time.Duration) {
	client := &Client{
		ID:           uuid.New().String(),
		Hub:          h,
		Conn:         conn,
		Send:         make(chan []byte, 64),
		writeTimeout: writeTimeout,
	}
	h.register <- client

	go client.writePump()
	go client.readPump()
}

// registerClient 注册客户端
func (h *Hub) registerClient(client *Client) {
	h.clientsMu.Lock()
	h.clients[client.ID] = client
	h.clientsMu.Unlock()

	h.logger.Info("显示端已连接", zap.String("client_id", client.ID))

	if h.onConnect != nil {
		h.onConnect(client)
	}
}

// unregisterClient 注销客户端
func (h *Hub) unregisterClient(client *Client) {
	h.clientsMu.Lock()
	if _, ok := h.clients[client.ID]; ok {
		delete(h.clients, client.ID)
		close(client.Send)
	}
	h.clientsMu.Unlock()

	h.logger.Info("显示端已断开", zap.String("client_id", client.ID))
}

// broadcastMessage 序列化一次，分发到全部客户端
func (h *Hub) broadcastMessage(message *Message) {
	raw, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("显示端消息序列化失败", zap.Error(err))
		return
	}

	h.clientsMu.RLock()
	for _, client := range h.clients {
		select {
		case client.Send <- raw:
		default:
			h.logger.Warn("显示端发送缓冲区满，消息丢弃",
				zap.String("client_id", client.ID),
				zap.String("event", message.Event))
		}
	}
	h.clientsMu.RUnlock()
}

// closeAll 断开全部连接
func (h *Hub) closeAll() {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	for id, client := range h.clients {
		close(client.Send)
		client.Conn.Close()
		delete(h.clients, id)
	}
}

// readPump 读循环，只消费客户端消息并处理断开
func (c *Client) readPump() {
	defer func() {
		c.Hub.unregister <- c
		c.Conn.Close()
	}()

	for {
		_, raw, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.Hub.logger.Warn("显示端连接异常断开",
					zap.String("client_id", c.ID), zap.Error(err))
			}
			return
		}

		// 显示端唯一的上行请求：重新拉取商品列表
		var req struct {
			Event string `json:"event"`
		}
		if err := json.Unmarshal(raw, &req); err == nil && req.Event == "request_products" {
			if c.Hub.onConnect != nil {
				c.Hub.onConnect(c)
			}
		}
	}
}

// writePump 写循环
func (c *Client) writePump() {
	defer c.Conn.Close()

	for raw := range c.Send {
		if c.writeTimeout > 0 {
			c.Conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
		}
		if err := c.Conn.WriteMessage(websocket.TextMessage, raw); err != nil {
			return
		}
	}
	c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
}
