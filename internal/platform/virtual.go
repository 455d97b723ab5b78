package platform

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// RuleType 规则拓扑类型
type RuleType string

const (
	RulePulseOnHitAndRelease                    RuleType = "pulse_on_hit_and_release"
	RulePulseOnHitAndEnableAndRelease           RuleType = "pulse_on_hit_and_enable_and_release"
	RulePulseOnHit                              RuleType = "pulse_on_hit"
	RulePulseOnHitAndEnableAndReleaseAndDisable RuleType = "pulse_on_hit_and_enable_and_release_and_disable"
)

// virtualRule 虚拟平台中的一条武装规则
type virtualRule struct {
	Type     RuleType
	Switch   SwitchSettings
	Driver   DriverSettings
	// disableFor 指向该禁用开关所服务的使能绑定
	disableFor string
}

// bindingKey 规则绑定键（开关+驱动器）
func bindingKey(swNumber, drvNumber string) string {
	return swNumber + "->" + drvNumber
}

// VirtualSwitch 虚拟开关句柄
type VirtualSwitch struct {
	number string
}

// Number 硬件编号
func (s *VirtualSwitch) Number() string { return s.number }

// VirtualDriver 虚拟驱动器句柄
type VirtualDriver struct {
	number string
}

// Number 硬件编号
func (d *VirtualDriver) Number() string { return d.number }

// VirtualPlatform 虚拟硬件平台
// 在内存中记录武装规则与驱动器动作，既是无硬件时的默认后端，
// 也是测试中验证平台调用的探针。
type VirtualPlatform struct {
	mu     sync.Mutex
	name   string
	logger *zap.Logger

	switches map[string]*VirtualSwitch
	drivers  map[string]*VirtualDriver

	rules        map[string]*virtualRule
	switchStates map[string]bool

	pulseCounts   map[string]int
	enabledStates map[string]bool
	lastPulse     map[string]PulseSettings

	clearErrors map[string]error

	callback SwitchChangeCallback
}

// NewVirtualPlatform 创建虚拟平台
func NewVirtualPlatform(name string, logger *zap.Logger) *VirtualPlatform {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VirtualPlatform{
		name:          name,
		logger:        logger,
		switches:      make(map[string]*VirtualSwitch),
		drivers:       make(map[string]*VirtualDriver),
		rules:         make(map[string]*virtualRule),
		switchStates:  make(map[string]bool),
		pulseCounts:   make(map[string]int),
		enabledStates: make(map[string]bool),
		lastPulse:     make(map[string]PulseSettings),
		clearErrors:   make(map[string]error),
	}
}

// Name 平台名称
func (v *VirtualPlatform) Name() string { return v.name }

// ConfigureSwitch 注册开关并返回句柄
func (v *VirtualPlatform) ConfigureSwitch(number string) HwSwitch {
	v.mu.Lock()
	defer v.mu.Unlock()

	if sw, ok := v.switches[number]; ok {
		return sw
	}
	sw := &VirtualSwitch{number: number}
	v.switches[number] = sw
	return sw
}

// ConfigureDriver 注册驱动器并返回句柄
func (v *VirtualPlatform) ConfigureDriver(number string) HwDriver {
	v.mu.Lock()
	defer v.mu.Unlock()

	if d, ok := v.drivers[number]; ok {
		return d
	}
	d := &VirtualDriver{number: number}
	v.drivers[number] = d
	return d
}

func (v *VirtualPlatform) setRule(t RuleType, sw SwitchSettings, driver DriverSettings) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	key := bindingKey(sw.HwSwitch.Number(), driver.HwDriver.Number())
	v.rules[key] = &virtualRule{Type: t, Switch: sw, Driver: driver}

	v.logger.Debug("虚拟平台武装规则",
		zap.String("type", string(t)),
		zap.String("binding", key))
	return nil
}

// SetPulseOnHitAndReleaseRule 武装命中脉冲、释放取消规则
func (v *VirtualPlatform) SetPulseOnHitAndReleaseRule(enable SwitchSettings, driver DriverSettings) error {
	return v.setRule(RulePulseOnHitAndRelease, enable, driver)
}

// SetPulseOnHitAndEnableAndReleaseRule 武装保持规则
func (v *VirtualPlatform) SetPulseOnHitAndEnableAndReleaseRule(enable SwitchSettings, driver DriverSettings) error {
	return v.setRule(RulePulseOnHitAndEnableAndRelease, enable, driver)
}

// SetPulseOnHitRule 武装命中即完整脉冲规则
func (v *VirtualPlatform) SetPulseOnHitRule(enable SwitchSettings, driver DriverSettings) error {
	return v.setRule(RulePulseOnHit, enable, driver)
}

// SetPulseOnHitAndEnableAndReleaseAndDisableRule 武装带禁用开关的保持规则
func (v *VirtualPlatform) SetPulseOnHitAndEnableAndReleaseAndDisableRule(enable SwitchSettings,
	disable SwitchSettings, driver DriverSettings) error {

	if err := v.setRule(RulePulseOnHitAndEnableAndReleaseAndDisable, enable, driver); err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	enableKey := bindingKey(enable.HwSwitch.Number(), driver.HwDriver.Number())
	disableKey := bindingKey(disable.HwSwitch.Number(), driver.HwDriver.Number())
	v.rules[disableKey] = &virtualRule{
		Type:       RulePulseOnHitAndEnableAndReleaseAndDisable,
		Switch:     disable,
		Driver:     driver,
		disableFor: enableKey,
	}
	return nil
}

// ClearHwRule 解除开关与驱动器之间的绑定，幂等
func (v *VirtualPlatform) ClearHwRule(sw SwitchSettings, driver DriverSettings) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	swNumber := sw.HwSwitch.Number()
	if err, ok := v.clearErrors[swNumber]; ok {
		return err
	}

	delete(v.rules, bindingKey(swNumber, driver.HwDriver.Number()))
	return nil
}

// PulseDriver 直接脉冲驱动器
func (v *VirtualPlatform) PulseDriver(driver DriverSettings) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.recordPulse(driver)
	return nil
}

// EnableDriver 直接使能驱动器
func (v *VirtualPlatform) EnableDriver(driver DriverSettings) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if driver.Hold == nil {
		return fmt.Errorf("虚拟平台: 驱动器 %s 缺少保持参数", driver.HwDriver.Number())
	}
	v.recordPulse(driver)
	v.enabledStates[driver.HwDriver.Number()] = true
	return nil
}

// DisableDriver 直接关闭驱动器
func (v *VirtualPlatform) DisableDriver(driver DriverSettings) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.enabledStates[driver.HwDriver.Number()] = false
	return nil
}

func (v *VirtualPlatform) recordPulse(driver DriverSettings) {
	number := driver.HwDriver.Number()
	v.pulseCounts[number]++
	v.lastPulse[number] = driver.Pulse
	v.logger.Debug("虚拟平台脉冲",
		zap.String("driver", number),
		zap.Int("pulse_ms", driver.Pulse.DurationMs))
}

// SetSwitchChangeCallback 注册开关变化回调
func (v *VirtualPlatform) SetSwitchChangeCallback(cb SwitchChangeCallback) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.callback = cb
}

// GetSwitchState 读取开关硬件状态
func (v *VirtualPlatform) GetSwitchState(number string) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if _, ok := v.switches[number]; !ok {
		return false, fmt.Errorf("虚拟平台: 开关 %s 未注册", number)
	}
	return v.switchStates[number], nil
}

// SetSwitch 模拟一次开关硬件状态变化
// 按武装规则执行驱动器动作，再分发回调，与真实平台的先后顺序一致。
func (v *VirtualPlatform) SetSwitch(number string, state bool) {
	v.mu.Lock()

	v.switchStates[number] = state

	for key, rule := range v.rules {
		if rule.Switch.HwSwitch.Number() != number {
			continue
		}
		// 规则眼中的"激活" = 硬件状态 XOR 有效反转
		active := state != rule.Switch.Invert

		if rule.disableFor != "" {
			// 禁用开关激活时取消对应绑定的驱动
			if active {
				v.enabledStates[rule.Driver.HwDriver.Number()] = false
			}
			continue
		}

		switch rule.Type {
		case RulePulseOnHit, RulePulseOnHitAndRelease:
			if active {
				v.recordPulse(rule.Driver)
			}
		case RulePulseOnHitAndEnableAndRelease, RulePulseOnHitAndEnableAndReleaseAndDisable:
			if active {
				v.recordPulse(rule.Driver)
				v.enabledStates[rule.Driver.HwDriver.Number()] = true
			} else {
				v.enabledStates[rule.Driver.HwDriver.Number()] = false
			}
		}
		_ = key
	}

	cb := v.callback
	v.mu.Unlock()

	if cb != nil {
		cb(number, state)
	}
}

// 以下为测试探针方法

// RuleCount 当前武装规则数
func (v *VirtualPlatform) RuleCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.rules)
}

// HasRule 指定开关与驱动器之间是否存在绑定
func (v *VirtualPlatform) HasRule(swNumber, drvNumber string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	_, ok := v.rules[bindingKey(swNumber, drvNumber)]
	return ok
}

// GetRule 返回指定绑定的规则详情
func (v *VirtualPlatform) GetRule(swNumber, drvNumber string) (RuleType, SwitchSettings, DriverSettings, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	rule, ok := v.rules[bindingKey(swNumber, drvNumber)]
	if !ok {
		return "", SwitchSettings{}, DriverSettings{}, false
	}
	return rule.Type, rule.Switch, rule.Driver, true
}

// PulseCount 驱动器累计脉冲次数
func (v *VirtualPlatform) PulseCount(drvNumber string) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.pulseCounts[drvNumber]
}

// LastPulse 驱动器最近一次脉冲参数
func (v *VirtualPlatform) LastPulse(drvNumber string) PulseSettings {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.lastPulse[drvNumber]
}

// DriverEnabled 驱动器是否处于使能状态
func (v *VirtualPlatform) DriverEnabled(drvNumber string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.enabledStates[drvNumber]
}

// FailClearFor 注入清除失败，用于部分清除故障传播测试
func (v *VirtualPlatform) FailClearFor(swNumber string, err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err == nil {
		delete(v.clearErrors, swNumber)
		return
	}
	v.clearErrors[swNumber] = err
}
