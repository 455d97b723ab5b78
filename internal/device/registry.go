package device

import (
	"go.uber.org/zap"

	"github.com/wfunc/pinball-game/internal/config"
	"github.com/wfunc/pinball-game/internal/errors"
	"github.com/wfunc/pinball-game/internal/event"
	"github.com/wfunc/pinball-game/internal/platform"
)

// ConfigurablePlatform 可按编号登记硬件句柄的平台
// 虚拟平台与串口平台都满足该接口。
type ConfigurablePlatform interface {
	platform.DriverPlatform
	platform.SwitchPlatform

	ConfigureSwitch(number string) platform.HwSwitch
	ConfigureDriver(number string) platform.HwDriver
}

// Registry 设备注册表
// 按机器配置实例化全部设备，并把平台的开关变化回调路由到对应开关设备。
type Registry struct {
	logger *zap.Logger

	drivers   map[string]*Driver
	switches  map[string]*Switch
	autofires map[string]*AutofireCoil
	kickbacks map[string]*Kickback

	// 按硬件编号索引，用于回调路由
	switchesByNumber map[string]*Switch
}

// NewRegistry 创建空注册表
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		logger:           logger,
		drivers:          make(map[string]*Driver),
		switches:         make(map[string]*Switch),
		autofires:        make(map[string]*AutofireCoil),
		kickbacks:        make(map[string]*Kickback),
		switchesByNumber: make(map[string]*Switch),
	}
}

// Build 按机器配置实例化设备
// 先建线圈与开关，再建引用它们的自动发射与回弹设备。配置校验已保证
// 引用存在，这里的查找失败属于编程错误而非配置错误。
func (r *Registry) Build(cfg *config.MachineConfig, p ConfigurablePlatform,
	controller *platform.Controller, events *event.Bus, playfield PlayfieldMarker) error {

	for name, coilCfg := range cfg.Coils {
		hw := p.ConfigureDriver(coilCfg.Number)
		r.drivers[name] = NewDriver(name, coilCfg, hw, p, r.logger)
	}

	for name, swCfg := range cfg.Switches {
		hw := p.ConfigureSwitch(swCfg.Number)
		sw := NewSwitch(name, swCfg, hw, p, r.logger)
		r.switches[name] = sw
		r.switchesByNumber[swCfg.Number] = sw
	}

	for name, afCfg := range cfg.Autofires {
		coil, sw, err := r.resolveRefs(name, afCfg)
		if err != nil {
			return err
		}
		r.autofires[name] = NewAutofireCoil(name, afCfg, coil, sw, controller, events, playfield, r.logger)
	}

	for name, kbCfg := range cfg.Kickbacks {
		coil, sw, err := r.resolveRefs(name, kbCfg)
		if err != nil {
			return err
		}
		r.kickbacks[name] = NewKickback(name, kbCfg, coil, sw, controller, events, playfield, r.logger)
	}

	// 平台开关变化统一入口
	p.SetSwitchChangeCallback(func(number string, state bool) {
		if sw, ok := r.switchesByNumber[number]; ok {
			sw.ProcessHwChange(state)
			return
		}
		r.logger.Warn("未登记开关的状态变化", zap.String("number", number))
	})

	r.logger.Info("设备注册完成",
		zap.Int("coils", len(r.drivers)),
		zap.Int("switches", len(r.switches)),
		zap.Int("autofires", len(r.autofires)),
		zap.Int("kickbacks", len(r.kickbacks)))
	return nil
}

func (r *Registry) resolveRefs(name string, cfg config.AutofireConfig) (*Driver, *Switch, error) {
	coil, ok := r.drivers[cfg.Coil]
	if !ok {
		return nil, nil, errors.Newf(errors.ErrNotFound,
			"设备 %s 引用的线圈 %s 不存在", name, cfg.Coil)
	}
	sw, ok := r.switches[cfg.Switch]
	if !ok {
		return nil, nil, errors.Newf(errors.ErrNotFound,
			"设备 %s 引用的开关 %s 不存在", name, cfg.Switch)
	}
	return coil, sw, nil
}

// GetDriver 按名称查找线圈
func (r *Registry) GetDriver(name string) (*Driver, bool) {
	d, ok := r.drivers[name]
	return d, ok
}

// GetSwitch 按名称查找开关
func (r *Registry) GetSwitch(name string) (*Switch, bool) {
	s, ok := r.switches[name]
	return s, ok
}

// GetAutofire 按名称查找自动发射线圈
func (r *Registry) GetAutofire(name string) (*AutofireCoil, bool) {
	a, ok := r.autofires[name]
	return a, ok
}

// GetKickback 按名称查找回弹器
func (r *Registry) GetKickback(name string) (*Kickback, bool) {
	k, ok := r.kickbacks[name]
	return k, ok
}

// Drivers 全部线圈
func (r *Registry) Drivers() map[string]*Driver { return r.drivers }

// Switches 全部开关
func (r *Registry) Switches() map[string]*Switch { return r.switches }

// Autofires 全部自动发射线圈
func (r *Registry) Autofires() map[string]*AutofireCoil { return r.autofires }

// Kickbacks 全部回弹器
func (r *Registry) Kickbacks() map[string]*Kickback { return r.kickbacks }

// EnableAll 使能全部自动发射设备，返回第一个错误
func (r *Registry) EnableAll() error {
	var firstErr error
	for _, af := range r.autofires {
		if err := af.Enable(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for _, kb := range r.kickbacks {
		if err := kb.Enable(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Shutdown 停机清理全部设备
func (r *Registry) Shutdown() {
	for _, af := range r.autofires {
		if err := af.Shutdown(); err != nil {
			r.logger.Error("设备停机清理失败",
				zap.String("device", af.Name()), zap.Error(err))
		}
	}
	for _, kb := range r.kickbacks {
		if err := kb.Shutdown(); err != nil {
			r.logger.Error("设备停机清理失败",
				zap.String("device", kb.Name()), zap.Error(err))
		}
	}
}
