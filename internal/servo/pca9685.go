package servo

import (
	"time"

	"go.uber.org/zap"

	"github.com/wfunc/pinball-game/internal/errors"
)

// PCA9685寄存器
const (
	regMode1    = 0x00
	regPrescale = 0xFE
	regLED0OnL  = 0x06
)

// PCA9685工作模式位
const (
	mode1Sleep   = 0x10
	mode1AutoInc = 0x20
	mode1Restart = 0x80
)

// pca9685Channels 控制器通道数
const pca9685Channels = 16

// 舵机PWM脉宽刻度（12位计数，50Hz下约1ms-2ms）
const (
	pca9685DefaultMin = 205
	pca9685DefaultMax = 410
)

// I2CBus I2C总线写入抽象
// 便于注入假总线做单元测试。
type I2CBus interface {
	WriteReg(addr byte, reg byte, value byte) error
}

// PCA9685 16通道I2C PWM舵机控制器
type PCA9685 struct {
	bus     I2CBus
	addr    byte
	channel int
	min     int
	max     int
	logger  *zap.Logger

	// sleep 可注入的延时函数，初始化时序需要等待振荡器稳定
	sleep func(time.Duration)
}

// NewPCA9685 创建并初始化PCA9685舵机
// 初始化时序：复位模式寄存器、进入睡眠、写预分频、唤醒并打开自动递增。
func NewPCA9685(bus I2CBus, addr byte, channel int, min, max int, logger *zap.Logger) (*PCA9685, error) {
	if channel < 0 || channel >= pca9685Channels {
		return nil, errors.Newf(errors.ErrServoChannel,
			"PCA9685通道 %d 超出范围 [0, %d)", channel, pca9685Channels)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if min <= 0 {
		min = pca9685DefaultMin
	}
	if max <= 0 {
		max = pca9685DefaultMax
	}

	s := &PCA9685{
		bus:     bus,
		addr:    addr,
		channel: channel,
		min:     min,
		max:     max,
		logger:  logger,
		sleep:   time.Sleep,
	}
	if err := s.init(); err != nil {
		return nil, errors.Wrap(err, errors.ErrServoInitFailed, "PCA9685初始化失败")
	}
	return s, nil
}

// init 上电初始化时序
// 预分频寄存器只能在睡眠状态下写入，50Hz对应预分频值121。
func (s *PCA9685) init() error {
	if err := s.bus.WriteReg(s.addr, regMode1, 0x00); err != nil {
		return err
	}
	s.sleep(5 * time.Millisecond)

	if err := s.bus.WriteReg(s.addr, regMode1, mode1Sleep); err != nil {
		return err
	}
	if err := s.bus.WriteReg(s.addr, regPrescale, 121); err != nil {
		return err
	}

	if err := s.bus.WriteReg(s.addr, regMode1, mode1AutoInc); err != nil {
		return err
	}
	s.sleep(5 * time.Millisecond)

	if err := s.bus.WriteReg(s.addr, regMode1, mode1AutoInc|mode1Restart); err != nil {
		return err
	}

	s.logger.Info("PCA9685初始化完成",
		zap.Int("address", int(s.addr)),
		zap.Int("channel", s.channel))
	return nil
}

// GoToPosition 移动到归一化位置
// 写入通道的4个PWM寄存器：ON恒为0，OFF为映射后的计数值。
func (s *PCA9685) GoToPosition(position float64) error {
	value, err := positionValue(position, s.min, s.max)
	if err != nil {
		return err
	}

	base := byte(regLED0OnL + 4*s.channel)
	if err := s.bus.WriteReg(s.addr, base, 0x00); err != nil {
		return err
	}
	if err := s.bus.WriteReg(s.addr, base+1, 0x00); err != nil {
		return err
	}
	if err := s.bus.WriteReg(s.addr, base+2, byte(value&0xFF)); err != nil {
		return err
	}
	if err := s.bus.WriteReg(s.addr, base+3, byte(value>>8)); err != nil {
		return err
	}

	s.logger.Debug("PCA9685移动舵机",
		zap.Int("channel", s.channel),
		zap.Float64("position", position),
		zap.Int("value", value))
	return nil
}

// SetSpeed PCA9685不支持速度控制
func (s *PCA9685) SetSpeed(speed int) error {
	if speed != 0 {
		s.logger.Warn("PCA9685不支持速度控制，忽略", zap.Int("speed", speed))
	}
	return nil
}

// SetAcceleration PCA9685不支持加速度控制
func (s *PCA9685) SetAcceleration(acceleration int) error {
	if acceleration != 0 {
		s.logger.Warn("PCA9685不支持加速度控制，忽略", zap.Int("acceleration", acceleration))
	}
	return nil
}
