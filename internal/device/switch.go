package device

import (
	"sync"

	"go.uber.org/zap"

	"github.com/wfunc/pinball-game/internal/config"
	"github.com/wfunc/pinball-game/internal/platform"
)

// SwitchHandler 开关软件层命中回调
// state为逻辑状态（已做极性补偿），true表示开关逻辑激活。
type SwitchHandler func(state bool)

// Switch 开关设备
// 软件层订阅与硬件规则互相独立：硬件规则由平台执行，
// 软件回调用于硬件规则表达不了的副作用（事件投递、命中计数）。
type Switch struct {
	name     string
	cfg      config.SwitchConfig
	hw       platform.HwSwitch
	platform platform.DriverPlatform
	logger   *zap.Logger

	mu       sync.Mutex
	hwState  bool
	handlers map[int]SwitchHandler
	nextKey  int
}

// NewSwitch 创建开关设备
func NewSwitch(name string, cfg config.SwitchConfig, hw platform.HwSwitch,
	p platform.DriverPlatform, logger *zap.Logger) *Switch {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Switch{
		name:     name,
		cfg:      cfg,
		hw:       hw,
		platform: p,
		logger:   logger,
		handlers: make(map[int]SwitchHandler),
	}
}

// GetName 设备名称
func (s *Switch) GetName() string { return s.name }

// GetHwSwitch 硬件句柄
func (s *Switch) GetHwSwitch() platform.HwSwitch { return s.hw }

// GetPlatform 所属平台
func (s *Switch) GetPlatform() platform.DriverPlatform { return s.platform }

// IsInverted 开关自身极性，常闭开关为true
func (s *Switch) IsInverted() bool { return s.cfg.Invert }

// IsActive 逻辑状态：硬件状态与极性异或
func (s *Switch) IsActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hwState != s.cfg.Invert
}

// AddHandler 注册软件层回调，返回用于移除的key
func (s *Switch) AddHandler(handler SwitchHandler) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextKey++
	s.handlers[s.nextKey] = handler
	return s.nextKey
}

// RemoveHandler 移除软件层回调
func (s *Switch) RemoveHandler(key int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.handlers, key)
}

// ProcessHwChange 处理一次硬件状态变化
// 由平台回调进入，补偿极性后分发给所有软件层回调。
func (s *Switch) ProcessHwChange(hwState bool) {
	s.mu.Lock()
	if s.hwState == hwState {
		s.mu.Unlock()
		return
	}
	s.hwState = hwState
	active := hwState != s.cfg.Invert
	handlers := make([]SwitchHandler, 0, len(s.handlers))
	for _, h := range s.handlers {
		handlers = append(handlers, h)
	}
	s.mu.Unlock()

	s.logger.Debug("开关状态变化",
		zap.String("switch", s.name),
		zap.Bool("active", active))

	for _, h := range handlers {
		h(active)
	}
}
