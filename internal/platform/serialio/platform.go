package serialio

import (
	"bufio"
	"io"
	"strconv"
	"sync"

	"github.com/tarm/serial"
	"go.uber.org/zap"

	"github.com/wfunc/pinball-game/internal/config"
	"github.com/wfunc/pinball-game/internal/errors"
	"github.com/wfunc/pinball-game/internal/platform"
)

// hwSwitch 串口平台开关句柄
type hwSwitch struct {
	number string
}

func (s *hwSwitch) Number() string { return s.number }

// hwDriver 串口平台驱动器句柄
type hwDriver struct {
	number string
}

func (d *hwDriver) Number() string { return d.number }

// SerialPlatform 串口I/O板平台
// 规则计时在板卡固件中执行，这里只负责命令编码、写入与上行报文分发。
// 写入由互斥锁串行化，读取由独立协程完成。
type SerialPlatform struct {
	cfg    config.SerialPortConfig
	port   io.ReadWriteCloser
	logger *zap.Logger

	writeMu sync.Mutex

	mu           sync.Mutex
	switches     map[string]*hwSwitch
	drivers      map[string]*hwDriver
	switchStates map[string]bool
	callback     platform.SwitchChangeCallback

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewSerialPlatform 打开串口并创建平台
func NewSerialPlatform(cfg config.SerialPortConfig, logger *zap.Logger) (*SerialPlatform, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	port, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Port,
		Baud:        cfg.BaudRate,
		ReadTimeout: cfg.ReadTimeout,
	})
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrSerialPortOpen,
			"打开I/O板串口 %s 失败", cfg.Port)
	}

	return newWithPort(cfg, port, logger), nil
}

// newWithPort 用已打开的端口创建平台，测试注入假端口
func newWithPort(cfg config.SerialPortConfig, port io.ReadWriteCloser, logger *zap.Logger) *SerialPlatform {
	return &SerialPlatform{
		cfg:          cfg,
		port:         port,
		logger:       logger,
		switches:     make(map[string]*hwSwitch),
		drivers:      make(map[string]*hwDriver),
		switchStates: make(map[string]bool),
		stopCh:       make(chan struct{}),
	}
}

// Name 平台名称
func (p *SerialPlatform) Name() string { return "serialio" }

// Start 启动上行报文读取协程
func (p *SerialPlatform) Start() {
	p.wg.Add(1)
	go p.readLoop()
}

// Stop 停止读取并关闭串口
func (p *SerialPlatform) Stop() error {
	close(p.stopCh)
	err := p.port.Close()
	p.wg.Wait()
	return err
}

// ConfigureSwitch 注册开关并返回句柄
func (p *SerialPlatform) ConfigureSwitch(number string) platform.HwSwitch {
	p.mu.Lock()
	defer p.mu.Unlock()

	if sw, ok := p.switches[number]; ok {
		return sw
	}
	sw := &hwSwitch{number: number}
	p.switches[number] = sw
	return sw
}

// ConfigureDriver 注册驱动器并返回句柄
func (p *SerialPlatform) ConfigureDriver(number string) platform.HwDriver {
	p.mu.Lock()
	defer p.mu.Unlock()

	if d, ok := p.drivers[number]; ok {
		return d
	}
	d := &hwDriver{number: number}
	p.drivers[number] = d
	return d
}

// send 编码并写入一条命令
func (p *SerialPlatform) send(cmd string, fields ...string) error {
	frame := encodeFrame(cmd, fields...)

	p.writeMu.Lock()
	_, err := p.port.Write(frame)
	p.writeMu.Unlock()

	if err != nil {
		return errors.Wrapf(err, errors.ErrSerialPortWrite,
			"I/O板命令 %s 写入失败", cmd)
	}

	p.logger.Debug("I/O板命令", zap.String("frame", string(frame[:len(frame)-1])))
	return nil
}

// armRule 下发一条武装规则命令
// RA:mode,sw,invert,debounce,drv,pulse_ms,pulse_pw,hold_pw,recycle[,disable_sw,disable_invert]
func (p *SerialPlatform) armRule(mode int, enable platform.SwitchSettings,
	driver platform.DriverSettings, extra ...string) error {

	holdPower := 0
	if driver.Hold != nil {
		holdPower = powerPercent(driver.Hold.Power)
	}

	fields := []string{
		strconv.Itoa(mode),
		enable.HwSwitch.Number(),
		boolField(enable.Invert),
		boolField(enable.Debounce),
		driver.HwDriver.Number(),
		strconv.Itoa(driver.Pulse.DurationMs),
		strconv.Itoa(powerPercent(driver.Pulse.Power)),
		strconv.Itoa(holdPower),
		boolField(driver.Recycle),
	}
	fields = append(fields, extra...)
	return p.send(cmdArmRule, fields...)
}

// SetPulseOnHitAndReleaseRule 武装命中脉冲、释放取消规则
func (p *SerialPlatform) SetPulseOnHitAndReleaseRule(enable platform.SwitchSettings,
	driver platform.DriverSettings) error {
	return p.armRule(modePulseOnHitAndRelease, enable, driver)
}

// SetPulseOnHitAndEnableAndReleaseRule 武装保持规则
func (p *SerialPlatform) SetPulseOnHitAndEnableAndReleaseRule(enable platform.SwitchSettings,
	driver platform.DriverSettings) error {
	return p.armRule(modePulseOnHitAndEnableAndRelease, enable, driver)
}

// SetPulseOnHitRule 武装命中即完整脉冲规则
func (p *SerialPlatform) SetPulseOnHitRule(enable platform.SwitchSettings,
	driver platform.DriverSettings) error {
	return p.armRule(modePulseOnHit, enable, driver)
}

// SetPulseOnHitAndEnableAndReleaseAndDisableRule 武装带禁用开关的保持规则
func (p *SerialPlatform) SetPulseOnHitAndEnableAndReleaseAndDisableRule(enable platform.SwitchSettings,
	disable platform.SwitchSettings, driver platform.DriverSettings) error {
	return p.armRule(modePulseOnHitWithDisable, enable, driver,
		disable.HwSwitch.Number(), boolField(disable.Invert))
}

// ClearHwRule 解除开关与驱动器之间的规则绑定
func (p *SerialPlatform) ClearHwRule(sw platform.SwitchSettings,
	driver platform.DriverSettings) error {
	return p.send(cmdClearRule, sw.HwSwitch.Number(), driver.HwDriver.Number())
}

// PulseDriver 直接脉冲驱动器
func (p *SerialPlatform) PulseDriver(driver platform.DriverSettings) error {
	return p.send(cmdDrivePulse,
		driver.HwDriver.Number(),
		strconv.Itoa(driver.Pulse.DurationMs),
		strconv.Itoa(powerPercent(driver.Pulse.Power)))
}

// EnableDriver 直接使能驱动器
func (p *SerialPlatform) EnableDriver(driver platform.DriverSettings) error {
	if driver.Hold == nil {
		return errors.Newf(errors.ErrCommandFailed,
			"驱动器 %s 使能缺少保持参数", driver.HwDriver.Number())
	}
	return p.send(cmdDriveEnable,
		driver.HwDriver.Number(),
		strconv.Itoa(driver.Pulse.DurationMs),
		strconv.Itoa(powerPercent(driver.Pulse.Power)),
		strconv.Itoa(powerPercent(driver.Hold.Power)))
}

// DisableDriver 直接关闭驱动器
func (p *SerialPlatform) DisableDriver(driver platform.DriverSettings) error {
	return p.send(cmdDriveDisable, driver.HwDriver.Number())
}

// SetSwitchChangeCallback 注册开关变化回调
func (p *SerialPlatform) SetSwitchChangeCallback(cb platform.SwitchChangeCallback) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.callback = cb
}

// GetSwitchState 读取开关当前硬件状态（最近一次上行报文的值）
func (p *SerialPlatform) GetSwitchState(number string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.switches[number]; !ok {
		return false, errors.Newf(errors.ErrNotFound, "开关 %s 未注册", number)
	}
	return p.switchStates[number], nil
}

// readLoop 上行报文读取循环
func (p *SerialPlatform) readLoop() {
	defer p.wg.Done()

	scanner := bufio.NewScanner(p.port)
	for scanner.Scan() {
		select {
		case <-p.stopCh:
			return
		default:
		}

		line := scanner.Text()
		if line == "" {
			continue
		}

		cmd, fields, err := parseLine(line)
		if err != nil {
			p.logger.Warn("丢弃无效上行报文", zap.Error(err))
			continue
		}

		switch cmd {
		case cmdSwitchChange:
			p.handleSwitchChange(fields)
		default:
			p.logger.Warn("未知上行命令", zap.String("cmd", cmd))
		}
	}

	select {
	case <-p.stopCh:
	default:
		if err := scanner.Err(); err != nil {
			p.logger.Error("I/O板串口读取中断", zap.Error(err))
		}
	}
}

// handleSwitchChange 处理一条开关状态变化报文 SW:<num>,<state>
func (p *SerialPlatform) handleSwitchChange(fields []string) {
	if len(fields) != 2 {
		p.logger.Warn("开关报文字段数错误", zap.Strings("fields", fields))
		return
	}

	number := fields[0]
	state := fields[1] == "1"

	p.mu.Lock()
	p.switchStates[number] = state
	cb := p.callback
	p.mu.Unlock()

	if cb != nil {
		cb(number, state)
	}
}
