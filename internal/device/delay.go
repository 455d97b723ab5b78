package device

import (
	"sync"
	"time"
)

// DelayManager 命名延时管理器
// 同名延时互相替换，一个设备同名延时任意时刻最多存在一个，
// 用于自动发射线圈的冷却重启等可取消定时任务。
type DelayManager struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
}

// NewDelayManager 创建延时管理器
func NewDelayManager() *DelayManager {
	return &DelayManager{
		timers: make(map[string]*time.Timer),
	}
}

// Add 注册命名延时，已存在同名延时则先取消
func (m *DelayManager) Add(name string, d time.Duration, callback func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if t, ok := m.timers[name]; ok {
		t.Stop()
	}

	var t *time.Timer
	t = time.AfterFunc(d, func() {
		m.fire(name, t, callback)
	})
	m.timers[name] = t
}

// fire 定时器到期入口
// Stop对已到期的定时器无效，因此到期后还要核对登记表：
// 条目已被Remove或同名Add换掉时放弃回调，保证Remove返回后旧回调不再执行。
func (m *DelayManager) fire(name string, t *time.Timer, callback func()) {
	m.mu.Lock()
	if m.timers[name] != t {
		m.mu.Unlock()
		return
	}
	delete(m.timers, name)
	m.mu.Unlock()

	callback()
}

// Remove 取消命名延时，不存在时无操作
func (m *DelayManager) Remove(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if t, ok := m.timers[name]; ok {
		t.Stop()
		delete(m.timers, name)
	}
}

// Exists 指定名称的延时是否在等待中
func (m *DelayManager) Exists(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.timers[name]
	return ok
}

// RemoveAll 取消全部延时
func (m *DelayManager) RemoveAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for name, t := range m.timers {
		t.Stop()
		delete(m.timers, name)
	}
}
