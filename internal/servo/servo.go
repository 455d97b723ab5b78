package servo

import (
	"math"

	"github.com/wfunc/pinball-game/internal/errors"
)

// Servo 舵机统一接口
// 位置使用0.0-1.0的归一化值，具体控制器负责映射到自身的校准范围。
type Servo interface {
	// GoToPosition 移动到归一化位置，范围[0,1]
	GoToPosition(position float64) error
	// SetSpeed 设置移动速度，0表示不限制
	SetSpeed(speed int) error
	// SetAcceleration 设置加速度，0表示不限制
	SetAcceleration(acceleration int) error
}

// positionValue 把归一化位置映射到校准范围
// 四舍五入到最近的整数刻度，越界返回错误而不是钳位。
func positionValue(position float64, min, max int) (int, error) {
	if position < 0 || position > 1 {
		return 0, errors.Newf(errors.ErrServoPosition,
			"舵机位置 %.3f 超出范围 [0, 1]", position)
	}
	return int(math.Round(float64(min) + position*float64(max-min))), nil
}
