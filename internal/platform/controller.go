package platform

import (
	"go.uber.org/zap"

	"github.com/wfunc/pinball-game/internal/errors"
	"github.com/wfunc/pinball-game/internal/event"
)

// SwitchRuleSettings 规则请求中的开关描述
type SwitchRuleSettings struct {
	Switch   RuleSwitch
	Invert   bool // 请求反转，与开关自身极性异或后生效
	Debounce bool
}

// DriverRuleSettings 规则请求中的驱动器描述
type DriverRuleSettings struct {
	Driver  RuleDriver
	Recycle bool
}

// PulseRuleSettings 脉冲覆盖项，nil字段表示使用线圈默认值
type PulseRuleSettings struct {
	DurationMs *int
	Power      *float64
}

// HoldRuleSettings 保持功率覆盖项
type HoldRuleSettings struct {
	Power *float64
}

// HardwareRule 已生效规则的句柄
// 由请求设备持有，必须显式清除，否则规则在物理硬件上一直处于武装状态。
// SwitchSettings包含规则涉及的全部开关（含禁用开关），清除时逐一解除绑定。
type HardwareRule struct {
	Platform       DriverPlatform
	SwitchSettings []SwitchSettings
	DriverSettings DriverSettings
}

// Controller 平台规则控制器
// 校验开关与驱动器同平台、解析有效脉冲/保持参数，并向平台下发对应拓扑。
// 自身不持有可变状态，所有状态在平台后端与各设备中。
type Controller struct {
	logger *zap.Logger
	events *event.Bus
}

// NewController 创建平台规则控制器
func NewController(logger *zap.Logger, events *event.Bus) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		logger: logger,
		events: events,
	}
}

// checkAndGetPlatform 校验开关与驱动器属于同一平台
func (c *Controller) checkAndGetPlatform(sw RuleSwitch, driver RuleDriver) (DriverPlatform, error) {
	if sw.GetPlatform() != driver.GetPlatform() {
		return nil, errors.Newf(errors.ErrPlatformMismatch,
			"开关 %s 在平台 %s，线圈 %s 在平台 %s",
			sw.GetName(), sw.GetPlatform().Name(),
			driver.GetName(), driver.GetPlatform().Name())
	}
	return driver.GetPlatform(), nil
}

// configuredSwitch 解析开关参数，有效反转 = 请求反转 XOR 开关自身极性
func (c *Controller) configuredSwitch(sw SwitchRuleSettings) SwitchSettings {
	return SwitchSettings{
		HwSwitch: sw.Switch.GetHwSwitch(),
		Invert:   sw.Invert != sw.Switch.IsInverted(),
		Debounce: sw.Debounce,
	}
}

// configuredDriverNoHold 解析无保持阶段的驱动器参数
func (c *Controller) configuredDriverNoHold(driver DriverRuleSettings, pulse *PulseRuleSettings) (DriverSettings, error) {
	var durationOverride *int
	var powerOverride *float64
	if pulse != nil {
		durationOverride = pulse.DurationMs
		powerOverride = pulse.Power
	}

	duration, err := driver.Driver.GetAndVerifyPulseMs(durationOverride)
	if err != nil {
		return DriverSettings{}, err
	}
	power, err := driver.Driver.GetAndVerifyPulsePower(powerOverride)
	if err != nil {
		return DriverSettings{}, err
	}

	return DriverSettings{
		HwDriver: driver.Driver.GetHwDriver(),
		Pulse:    PulseSettings{DurationMs: duration, Power: power},
		Hold:     nil,
		Recycle:  driver.Recycle,
	}, nil
}

// configuredDriverWithHold 解析带保持阶段的驱动器参数
func (c *Controller) configuredDriverWithHold(driver DriverRuleSettings, pulse *PulseRuleSettings,
	hold *HoldRuleSettings) (DriverSettings, error) {

	settings, err := c.configuredDriverNoHold(driver, pulse)
	if err != nil {
		return DriverSettings{}, err
	}

	var holdOverride *float64
	if hold != nil {
		holdOverride = hold.Power
	}
	holdPower, err := driver.Driver.GetAndVerifyHoldPower(holdOverride)
	if err != nil {
		return DriverSettings{}, err
	}
	if holdPower == 0.0 {
		return DriverSettings{}, errors.Newf(errors.ErrHoldPowerZero,
			"线圈 %s 无法以保持功率0使能", driver.Driver.GetName())
	}

	settings.Hold = &HoldSettings{Power: holdPower}
	return settings, nil
}

// postRuleEvent 投递规则事件，供监控订阅
func (c *Controller) postRuleEvent(action string, switches []SwitchSettings, driver DriverSettings) {
	if c.events == nil {
		return
	}
	data := map[string]interface{}{
		"action":        action,
		"driver_number": driver.HwDriver.Number(),
		"pulse_ms":      driver.Pulse.DurationMs,
		"pulse_power":   driver.Pulse.Power,
		"recycle":       driver.Recycle,
	}
	if driver.Hold != nil {
		data["hold_power"] = driver.Hold.Power
	}
	for i, sw := range switches {
		key := "switch_number"
		if i > 0 {
			key = "disable_switch_number"
		}
		data[key] = sw.HwSwitch.Number()
	}
	c.events.Post("driver_rule", data)
}

// SetPulseOnHitAndReleaseRule 命中脉冲、释放取消
// 开关激活期间按解析后的完整脉冲时长驱动，若开关提前释放则取消脉冲。
func (c *Controller) SetPulseOnHitAndReleaseRule(enableSwitch SwitchRuleSettings,
	driver DriverRuleSettings, pulse *PulseRuleSettings) (*HardwareRule, error) {

	p, err := c.checkAndGetPlatform(enableSwitch.Switch, driver.Driver)
	if err != nil {
		return nil, err
	}

	enableSettings := c.configuredSwitch(enableSwitch)
	driverSettings, err := c.configuredDriverNoHold(driver, pulse)
	if err != nil {
		return nil, err
	}

	if err := p.SetPulseOnHitAndReleaseRule(enableSettings, driverSettings); err != nil {
		return nil, err
	}

	c.logger.Debug("下发规则 pulse_on_hit_and_release",
		zap.String("switch", enableSwitch.Switch.GetName()),
		zap.String("driver", driver.Driver.GetName()))
	c.postRuleEvent("pulse_on_hit_and_release", []SwitchSettings{enableSettings}, driverSettings)

	return &HardwareRule{
		Platform:       p,
		SwitchSettings: []SwitchSettings{enableSettings},
		DriverSettings: driverSettings,
	}, nil
}

// SetPulseOnHitAndEnableAndReleaseRule 命中脉冲后转保持、释放取消
func (c *Controller) SetPulseOnHitAndEnableAndReleaseRule(enableSwitch SwitchRuleSettings,
	driver DriverRuleSettings, pulse *PulseRuleSettings, hold *HoldRuleSettings) (*HardwareRule, error) {

	p, err := c.checkAndGetPlatform(enableSwitch.Switch, driver.Driver)
	if err != nil {
		return nil, err
	}

	enableSettings := c.configuredSwitch(enableSwitch)
	driverSettings, err := c.configuredDriverWithHold(driver, pulse, hold)
	if err != nil {
		return nil, err
	}

	if err := p.SetPulseOnHitAndEnableAndReleaseRule(enableSettings, driverSettings); err != nil {
		return nil, err
	}

	c.logger.Debug("下发规则 pulse_on_hit_and_enable_and_release",
		zap.String("switch", enableSwitch.Switch.GetName()),
		zap.String("driver", driver.Driver.GetName()))
	c.postRuleEvent("pulse_on_hit_and_enable_and_release", []SwitchSettings{enableSettings}, driverSettings)

	return &HardwareRule{
		Platform:       p,
		SwitchSettings: []SwitchSettings{enableSettings},
		DriverSettings: driverSettings,
	}, nil
}

// SetPulseOnHitRule 命中即完整脉冲
// 无论开关是否释放都完成整个脉冲，自动发射类设备使用此拓扑。
func (c *Controller) SetPulseOnHitRule(enableSwitch SwitchRuleSettings,
	driver DriverRuleSettings, pulse *PulseRuleSettings) (*HardwareRule, error) {

	p, err := c.checkAndGetPlatform(enableSwitch.Switch, driver.Driver)
	if err != nil {
		return nil, err
	}

	enableSettings := c.configuredSwitch(enableSwitch)
	driverSettings, err := c.configuredDriverNoHold(driver, pulse)
	if err != nil {
		return nil, err
	}

	if err := p.SetPulseOnHitRule(enableSettings, driverSettings); err != nil {
		return nil, err
	}

	c.logger.Debug("下发规则 pulse_on_hit",
		zap.String("switch", enableSwitch.Switch.GetName()),
		zap.String("driver", driver.Driver.GetName()))
	c.postRuleEvent("pulse_on_hit", []SwitchSettings{enableSettings}, driverSettings)

	return &HardwareRule{
		Platform:       p,
		SwitchSettings: []SwitchSettings{enableSettings},
		DriverSettings: driverSettings,
	}, nil
}

// SetPulseOnHitAndEnableAndReleaseAndDisableRule 带独立禁用开关的保持拓扑
// 使能开关与禁用开关都必须和驱动器在同一平台。
func (c *Controller) SetPulseOnHitAndEnableAndReleaseAndDisableRule(enableSwitch SwitchRuleSettings,
	disableSwitch SwitchRuleSettings, driver DriverRuleSettings,
	pulse *PulseRuleSettings, hold *HoldRuleSettings) (*HardwareRule, error) {

	p, err := c.checkAndGetPlatform(enableSwitch.Switch, driver.Driver)
	if err != nil {
		return nil, err
	}
	if _, err := c.checkAndGetPlatform(disableSwitch.Switch, driver.Driver); err != nil {
		return nil, err
	}

	enableSettings := c.configuredSwitch(enableSwitch)
	disableSettings := c.configuredSwitch(disableSwitch)
	driverSettings, err := c.configuredDriverWithHold(driver, pulse, hold)
	if err != nil {
		return nil, err
	}

	if err := p.SetPulseOnHitAndEnableAndReleaseAndDisableRule(enableSettings, disableSettings, driverSettings); err != nil {
		return nil, err
	}

	c.logger.Debug("下发规则 pulse_on_hit_and_enable_and_release_and_disable",
		zap.String("switch", enableSwitch.Switch.GetName()),
		zap.String("disable_switch", disableSwitch.Switch.GetName()),
		zap.String("driver", driver.Driver.GetName()))
	c.postRuleEvent("pulse_on_hit_and_enable_and_release_and_disable",
		[]SwitchSettings{enableSettings, disableSettings}, driverSettings)

	// 规则句柄记录两个开关，清除时两个绑定都要解除
	return &HardwareRule{
		Platform:       p,
		SwitchSettings: []SwitchSettings{enableSettings, disableSettings},
		DriverSettings: driverSettings,
	}, nil
}

// ClearHwRule 清除硬件规则
// 对规则中每个开关逐一解除与驱动器的绑定。单个开关的清除是幂等的，
// 多开关之间不保证原子性：首个失败立即返回，不重试，避免驱动器卡在武装状态时
// 被重复写入掩盖故障。
func (c *Controller) ClearHwRule(rule *HardwareRule) error {
	if rule == nil {
		return nil
	}

	for _, sw := range rule.SwitchSettings {
		if err := rule.Platform.ClearHwRule(sw, rule.DriverSettings); err != nil {
			c.logger.Error("硬件规则清除失败",
				zap.String("switch_number", sw.HwSwitch.Number()),
				zap.String("driver_number", rule.DriverSettings.HwDriver.Number()),
				zap.Error(err))
			return errors.Wrap(err, errors.ErrRuleClearFailed)
		}

		if c.events != nil {
			c.events.Post("driver_rule", map[string]interface{}{
				"action":        "remove",
				"switch_number": sw.HwSwitch.Number(),
				"driver_number": rule.DriverSettings.HwDriver.Number(),
			})
		}
	}

	c.logger.Debug("规则已清除",
		zap.String("driver_number", rule.DriverSettings.HwDriver.Number()),
		zap.Int("switches", len(rule.SwitchSettings)))
	return nil
}
