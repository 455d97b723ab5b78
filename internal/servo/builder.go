package servo

import (
	"go.uber.org/zap"

	"github.com/wfunc/pinball-game/internal/config"
	"github.com/wfunc/pinball-game/internal/errors"
)

// Build 按配置创建舵机
// pca9685类型需要调用方提供I2C总线，maestro类型自行打开串口。
// 创建成功后立即下发速度与加速度配置。
func Build(name string, cfg config.ServoConfig, bus I2CBus, logger *zap.Logger) (Servo, error) {
	var (
		s   Servo
		err error
	)

	switch cfg.Type {
	case "pca9685":
		if bus == nil {
			return nil, errors.Newf(errors.ErrServoInitFailed,
				"舵机 %s 需要I2C总线", name)
		}
		s, err = NewPCA9685(bus, byte(cfg.Address), cfg.Channel, cfg.Min, cfg.Max, logger)
	case "maestro":
		s, err = OpenMaestro(cfg.Port, cfg.Channel, cfg.Min, cfg.Max, logger)
	default:
		return nil, errors.Newf(errors.ErrInvalidParam,
			"舵机 %s 类型无效: %s", name, cfg.Type)
	}
	if err != nil {
		return nil, err
	}

	if err := s.SetSpeed(cfg.Speed); err != nil {
		return nil, err
	}
	if err := s.SetAcceleration(cfg.Acceleration); err != nil {
		return nil, err
	}
	return s, nil
}
