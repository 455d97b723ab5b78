package servo

import (
	"io"
	"time"

	"github.com/tarm/serial"
	"go.uber.org/zap"

	"github.com/wfunc/pinball-game/internal/errors"
)

// Pololu协议常量
const (
	maestroStartByte = 0xAA
	maestroDeviceID  = 0x0C

	maestroCmdSetTarget       = 0x04
	maestroCmdSetSpeed        = 0x07
	maestroCmdSetAcceleration = 0x09
)

// maestroChannels Mini Maestro最大通道数
const maestroChannels = 24

// 目标脉宽范围，四分之一微秒单位（1ms-2ms）
const (
	maestroDefaultMin = 4000
	maestroDefaultMax = 8000
)

// Maestro Pololu Maestro串口舵机控制器
// 使用Pololu紧凑协议的带设备号变体，多块控制器可共享一条总线。
type Maestro struct {
	port    io.Writer
	channel int
	min     int
	max     int
	logger  *zap.Logger
}

// NewMaestro 创建Maestro舵机
func NewMaestro(port io.Writer, channel int, min, max int, logger *zap.Logger) (*Maestro, error) {
	if channel < 0 || channel >= maestroChannels {
		return nil, errors.Newf(errors.ErrServoChannel,
			"Maestro通道 %d 超出范围 [0, %d)", channel, maestroChannels)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if min <= 0 {
		min = maestroDefaultMin
	}
	if max <= 0 {
		max = maestroDefaultMax
	}
	return &Maestro{
		port:    port,
		channel: channel,
		min:     min,
		max:     max,
		logger:  logger,
	}, nil
}

// OpenMaestro 打开串口并创建Maestro舵机
func OpenMaestro(portName string, channel int, min, max int, logger *zap.Logger) (*Maestro, error) {
	port, err := serial.OpenPort(&serial.Config{
		Name:        portName,
		Baud:        9600,
		ReadTimeout: 100 * time.Millisecond,
	})
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrSerialPortOpen,
			"打开Maestro串口 %s 失败", portName)
	}
	return NewMaestro(port, channel, min, max, logger)
}

// sendCommand 发送一条带14位数据的命令
// 数据拆成低7位与高7位两个字节，最高位保持为0。
func (m *Maestro) sendCommand(cmd byte, value int) error {
	frame := []byte{
		maestroStartByte,
		maestroDeviceID,
		cmd,
		byte(m.channel),
		byte(value & 0x7F),
		byte((value >> 7) & 0x7F),
	}
	if _, err := m.port.Write(frame); err != nil {
		return errors.Wrap(err, errors.ErrSerialPortWrite, "Maestro命令写入失败")
	}
	return nil
}

// GoToPosition 移动到归一化位置
func (m *Maestro) GoToPosition(position float64) error {
	value, err := positionValue(position, m.min, m.max)
	if err != nil {
		return err
	}

	m.logger.Debug("Maestro移动舵机",
		zap.Int("channel", m.channel),
		zap.Float64("position", position),
		zap.Int("target", value))

	return m.sendCommand(maestroCmdSetTarget, value)
}

// maestroDataMax 命令数据字段上限（14位）
const maestroDataMax = 0x3FFF

// SetSpeed 设置移动速度，0表示不限制
func (m *Maestro) SetSpeed(speed int) error {
	if speed < 0 || speed > maestroDataMax {
		return errors.Newf(errors.ErrInvalidParam,
			"Maestro速度 %d 超出范围 [0, %d]", speed, maestroDataMax)
	}
	return m.sendCommand(maestroCmdSetSpeed, speed)
}

// SetAcceleration 设置加速度，0表示不限制
func (m *Maestro) SetAcceleration(acceleration int) error {
	if acceleration < 0 || acceleration > maestroDataMax {
		return errors.Newf(errors.ErrInvalidParam,
			"Maestro加速度 %d 超出范围 [0, %d]", acceleration, maestroDataMax)
	}
	return m.sendCommand(maestroCmdSetAcceleration, acceleration)
}
