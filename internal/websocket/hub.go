package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wfunc/pinball-game/internal/event"
)

// Hub 监控推送中心
// 订阅机器事件总线的全部事件，广播给所有已连接的监控客户端。
// 诊断界面靠它实时观察开关命中、规则武装和球搜索进度。
type Hub struct {
	clients   map[string]*Client
	clientsMu sync.RWMutex

	broadcast  chan *Message
	register   chan *Client
	unregister chan *Client

	events   *event.Bus
	eventKey int

	logger *zap.Logger
}

// Message 监控推送消息
type Message struct {
	Type      string      `json:"type"`
	Event     string      `json:"event,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// 消息类型
const (
	MessageTypeConnected = "connected"
	MessageTypeEvent     = "event"
	MessageTypeError     = "error"
)

// NewHub 创建监控推送中心
func NewHub(events *event.Bus, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients:    make(map[string]*Client),
		broadcast:  make(chan *Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		events:     events,
		logger:     logger,
	}
}

// Run 运行推送中心
// 订阅事件总线的通配主题，机器事件全部进入广播通道。
func (h *Hub) Run() {
	h.eventKey = h.events.Subscribe(event.WildcardTopic, func(name string, data map[string]interface{}) {
		msg := &Message{
			Type:      MessageTypeEvent,
			Event:     name,
			Data:      data,
			Timestamp: time.Now().UnixMilli(),
		}
		select {
		case h.broadcast <- msg:
		default:
			// 广播通道满时丢弃，监控推送不能阻塞机器事件
			h.logger.Warn("监控广播通道已满，丢弃事件", zap.String("event", name))
		}
	})

	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case message := <-h.broadcast:
			h.broadcastMessage(message)
		}
	}
}

// registerClient 注册客户端
func (h *Hub) registerClient(client *Client) {
	h.clientsMu.Lock()
	h.clients[client.ID] = client
	h.clientsMu.Unlock()

	h.logger.Info("监控客户端连接", zap.String("client_id", client.ID))

	welcome, _ := json.Marshal(&Message{
		Type:      MessageTypeConnected,
		Timestamp: time.Now().UnixMilli(),
	})
	select {
	case client.Send <- welcome:
	default:
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

	h.logger.Info("监控客户端断开", zap.String("client_id", client.ID))
}

// broadcastMessage 广播一条消息
func (h *Hub) broadcastMessage(message *Message) {
	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("监控消息序列化失败", zap.Error(err))
		return
	}

	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()

	for _, client := range h.clients {
		select {
		case client.Send <- data:
		default:
			// 发送缓冲满的客户端跳过本条
			h.logger.Warn("监控客户端发送缓冲已满",
				zap.String("client_id", client.ID))
		}
	}
}

// ClientCount 当前连接数
func (h *Hub) ClientCount() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}
