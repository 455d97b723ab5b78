package platform

// HwSwitch 平台侧开关句柄
type HwSwitch interface {
	Number() string
}

// HwDriver 平台侧驱动器（线圈）句柄
type HwDriver interface {
	Number() string
}

// PulseSettings 脉冲参数（已解析的有效值）
type PulseSettings struct {
	DurationMs int     // 脉冲时长，毫秒
	Power      float64 // 脉冲功率 0.0-1.0
}

// HoldSettings 保持参数（已解析的有效值）
type HoldSettings struct {
	Power float64 // 保持功率 0.0-1.0
}

// SwitchSettings 下发到平台的开关参数
// Invert为最终有效反转：调用方请求值与开关自身极性异或之后的结果。
type SwitchSettings struct {
	HwSwitch HwSwitch
	Invert   bool
	Debounce bool
}

// DriverSettings 下发到平台的驱动器参数
// Hold为nil表示该规则没有持续通电阶段。
type DriverSettings struct {
	HwDriver HwDriver
	Pulse    PulseSettings
	Hold     *HoldSettings
	Recycle  bool
}

// DriverPlatform 硬件平台能力接口
// 四种规则拓扑由硬件/平台层执行计时，规则引擎不运行软件状态机。
// 所有调用对调用方同步；平台内部的串口写入可以由平台自有协程完成。
type DriverPlatform interface {
	// Name 平台名称，用于同平台校验与日志
	Name() string

	// SetPulseOnHitAndReleaseRule 命中时脉冲，开关释放则提前取消脉冲
	SetPulseOnHitAndReleaseRule(enable SwitchSettings, driver DriverSettings) error

	// SetPulseOnHitAndEnableAndReleaseRule 命中时脉冲后转保持，开关释放则全部取消
	SetPulseOnHitAndEnableAndReleaseRule(enable SwitchSettings, driver DriverSettings) error

	// SetPulseOnHitRule 命中时完整脉冲，无论开关是否释放
	SetPulseOnHitRule(enable SwitchSettings, driver DriverSettings) error

	// SetPulseOnHitAndEnableAndReleaseAndDisableRule 同上保持拓扑，另有独立的禁用开关可取消
	SetPulseOnHitAndEnableAndReleaseAndDisableRule(enable SwitchSettings, disable SwitchSettings, driver DriverSettings) error

	// ClearHwRule 移除指定开关与驱动器之间的规则绑定
	ClearHwRule(sw SwitchSettings, driver DriverSettings) error

	// PulseDriver 直接脉冲驱动器（绕过规则）
	PulseDriver(driver DriverSettings) error

	// EnableDriver 直接使能驱动器（脉冲后保持）
	EnableDriver(driver DriverSettings) error

	// DisableDriver 直接关闭驱动器
	DisableDriver(driver DriverSettings) error
}

// SwitchChangeCallback 开关状态变化回调（硬件状态，未做极性补偿）
type SwitchChangeCallback func(number string, state bool)

// SwitchPlatform 开关输入能力接口
type SwitchPlatform interface {
	// SetSwitchChangeCallback 注册开关变化回调
	SetSwitchChangeCallback(cb SwitchChangeCallback)

	// GetSwitchState 读取开关当前硬件状态
	GetSwitchState(number string) (bool, error)
}

// RuleSwitch 规则请求引用的开关设备
type RuleSwitch interface {
	GetName() string
	GetHwSwitch() HwSwitch
	GetPlatform() DriverPlatform
	// IsInverted 开关自身极性（常闭为true）
	IsInverted() bool
}

// RuleDriver 规则请求引用的驱动器设备
// GetAndVerify系列由设备校验覆盖值是否超出自身配置范围。
type RuleDriver interface {
	GetName() string
	GetHwDriver() HwDriver
	GetPlatform() DriverPlatform
	GetAndVerifyPulseMs(override *int) (int, error)
	GetAndVerifyPulsePower(override *float64) (float64, error)
	GetAndVerifyHoldPower(override *float64) (float64, error)
}
