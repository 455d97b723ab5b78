package event

import (
	"sync"

	"go.uber.org/zap"
)

// Handler 事件处理函数
type Handler func(name string, data map[string]interface{})

// Bus 事件总线
// 设备投递命名事件（如kickback的fired事件），计分/监控等子系统订阅消费。
// Post为即发即忘，无返回值，处理函数在投递协程内同步执行。
type Bus struct {
	mu       sync.RWMutex
	handlers map[string]map[int]Handler
	nextID   int
	logger   *zap.Logger
}

// WildcardTopic 通配订阅主题，接收所有事件
const WildcardTopic = "*"

// NewBus 创建事件总线
func NewBus(logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{
		handlers: make(map[string]map[int]Handler),
		logger:   logger,
	}
}

// Subscribe 订阅指定名称的事件，返回用于退订的key
func (b *Bus) Subscribe(name string, handler Handler) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	if b.handlers[name] == nil {
		b.handlers[name] = make(map[int]Handler)
	}
	b.handlers[name][b.nextID] = handler
	return b.nextID
}

// Unsubscribe 退订事件
func (b *Bus) Unsubscribe(name string, key int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if hs, ok := b.handlers[name]; ok {
		delete(hs, key)
		if len(hs) == 0 {
			delete(b.handlers, name)
		}
	}
}

// Post 投递事件
func (b *Bus) Post(name string, data map[string]interface{}) {
	b.mu.RLock()
	var targets []Handler
	for _, h := range b.handlers[name] {
		targets = append(targets, h)
	}
	for _, h := range b.handlers[WildcardTopic] {
		targets = append(targets, h)
	}
	b.mu.RUnlock()

	b.logger.Debug("事件投递",
		zap.String("event", name),
		zap.Int("handlers", len(targets)))

	for _, h := range targets {
		h(name, data)
	}
}
