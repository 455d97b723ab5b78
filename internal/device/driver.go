package device

import (
	"go.uber.org/zap"

	"github.com/wfunc/pinball-game/internal/config"
	"github.com/wfunc/pinball-game/internal/errors"
	"github.com/wfunc/pinball-game/internal/platform"
)

// 线圈缺省脉冲参数，配置未给出时使用
const (
	defaultPulseMs    = 10
	defaultPulsePower = 1.0
)

// Driver 线圈（驱动器）设备
// 持有硬件句柄与自身配置，负责把调用方的覆盖值校验到配置允许的范围内。
// 覆盖值越界属于配置错误，在规则激活前失败，不触发任何硬件调用。
type Driver struct {
	name     string
	cfg      config.CoilConfig
	hw       platform.HwDriver
	platform platform.DriverPlatform
	logger   *zap.Logger
}

// NewDriver 创建线圈设备
func NewDriver(name string, cfg config.CoilConfig, hw platform.HwDriver,
	p platform.DriverPlatform, logger *zap.Logger) *Driver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Driver{
		name:     name,
		cfg:      cfg,
		hw:       hw,
		platform: p,
		logger:   logger,
	}
}

// GetName 设备名称
func (d *Driver) GetName() string { return d.name }

// GetHwDriver 硬件句柄
func (d *Driver) GetHwDriver() platform.HwDriver { return d.hw }

// GetPlatform 所属平台
func (d *Driver) GetPlatform() platform.DriverPlatform { return d.platform }

// GetAndVerifyPulseMs 解析有效脉冲时长
// override为nil时使用线圈默认值，否则校验覆盖值不超过配置上限。
func (d *Driver) GetAndVerifyPulseMs(override *int) (int, error) {
	pulseMs := d.cfg.DefaultPulseMs
	if pulseMs <= 0 {
		pulseMs = defaultPulseMs
	}
	if override != nil {
		pulseMs = *override
	}

	if pulseMs < 0 {
		return 0, errors.Newf(errors.ErrPulseOutOfRange,
			"线圈 %s 脉冲时长不能为负: %dms", d.name, pulseMs)
	}
	if d.cfg.MaxPulseMs > 0 && pulseMs > d.cfg.MaxPulseMs {
		return 0, errors.Newf(errors.ErrPulseOutOfRange,
			"线圈 %s 脉冲时长 %dms 超过上限 %dms", d.name, pulseMs, d.cfg.MaxPulseMs)
	}

	return pulseMs, nil
}

// GetAndVerifyPulsePower 解析有效脉冲功率
func (d *Driver) GetAndVerifyPulsePower(override *float64) (float64, error) {
	power := d.cfg.DefaultPulsePower
	if power <= 0 {
		power = defaultPulsePower
	}
	if override != nil {
		power = *override
	}

	maxPower := d.cfg.MaxPulsePower
	if maxPower <= 0 {
		maxPower = 1.0
	}
	if power <= 0 || power > maxPower {
		return 0, errors.Newf(errors.ErrPowerOutOfRange,
			"线圈 %s 脉冲功率 %.2f 超出范围 (0, %.2f]", d.name, power, maxPower)
	}

	return power, nil
}

// GetAndVerifyHoldPower 解析有效保持功率
// 不允许持续通电的线圈只能以低于满功率保持，满功率保持会烧毁线圈。
func (d *Driver) GetAndVerifyHoldPower(override *float64) (float64, error) {
	power := d.cfg.DefaultHoldPower
	if override != nil {
		power = *override
	}

	maxPower := d.cfg.MaxHoldPower
	if maxPower <= 0 {
		maxPower = 1.0
	}
	if power < 0 || power > maxPower {
		return 0, errors.Newf(errors.ErrPowerOutOfRange,
			"线圈 %s 保持功率 %.2f 超出范围 [0, %.2f]", d.name, power, maxPower)
	}
	if power >= 1.0 && !d.cfg.AllowEnable {
		return 0, errors.Newf(errors.ErrHoldNotAllowed,
			"线圈 %s 未配置allow_enable，不能以满功率保持", d.name)
	}

	return power, nil
}

// Pulse 直接脉冲线圈（绕过硬件规则）
func (d *Driver) Pulse(overrideMs *int) error {
	pulseMs, err := d.GetAndVerifyPulseMs(overrideMs)
	if err != nil {
		return err
	}
	power, err := d.GetAndVerifyPulsePower(nil)
	if err != nil {
		return err
	}

	d.logger.Debug("线圈脉冲",
		zap.String("driver", d.name),
		zap.Int("pulse_ms", pulseMs))

	return d.platform.PulseDriver(platform.DriverSettings{
		HwDriver: d.hw,
		Pulse:    platform.PulseSettings{DurationMs: pulseMs, Power: power},
	})
}

// Enable 直接使能线圈（脉冲后保持）
func (d *Driver) Enable() error {
	pulseMs, err := d.GetAndVerifyPulseMs(nil)
	if err != nil {
		return err
	}
	power, err := d.GetAndVerifyPulsePower(nil)
	if err != nil {
		return err
	}
	holdPower, err := d.GetAndVerifyHoldPower(nil)
	if err != nil {
		return err
	}
	if holdPower == 0 {
		return errors.Newf(errors.ErrHoldPowerZero, "线圈 %s 无法以保持功率0使能", d.name)
	}

	return d.platform.EnableDriver(platform.DriverSettings{
		HwDriver: d.hw,
		Pulse:    platform.PulseSettings{DurationMs: pulseMs, Power: power},
		Hold:     &platform.HoldSettings{Power: holdPower},
	})
}

// Disable 直接关闭线圈
func (d *Driver) Disable() error {
	return d.platform.DisableDriver(platform.DriverSettings{
		HwDriver: d.hw,
	})
}
