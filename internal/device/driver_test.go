package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wfunc/pinball-game/internal/config"
	"github.com/wfunc/pinball-game/internal/errors"
	"github.com/wfunc/pinball-game/internal/platform"
)

func newTestDriver(t *testing.T, cfg config.CoilConfig) (*Driver, *platform.VirtualPlatform) {
	t.Helper()
	vp := platform.NewVirtualPlatform("virtual", zap.NewNop())
	hw := vp.ConfigureDriver(cfg.Number)
	return NewDriver("c_test", cfg, hw, vp, zap.NewNop()), vp
}

func TestDriver_GetAndVerifyPulseMs(t *testing.T) {
	d, _ := newTestDriver(t, config.CoilConfig{
		Number:         "0",
		DefaultPulseMs: 12,
		MaxPulseMs:     30,
	})

	t.Run("默认值", func(t *testing.T) {
		ms, err := d.GetAndVerifyPulseMs(nil)
		require.NoError(t, err)
		assert.Equal(t, 12, ms)
	})

	t.Run("合法覆盖", func(t *testing.T) {
		over := 20
		ms, err := d.GetAndVerifyPulseMs(&over)
		require.NoError(t, err)
		assert.Equal(t, 20, ms)
	})

	t.Run("覆盖到上限", func(t *testing.T) {
		over := 30
		ms, err := d.GetAndVerifyPulseMs(&over)
		require.NoError(t, err)
		assert.Equal(t, 30, ms)
	})

	t.Run("覆盖超上限", func(t *testing.T) {
		over := 31
		_, err := d.GetAndVerifyPulseMs(&over)
		assert.True(t, errors.Is(err, errors.ErrPulseOutOfRange))
	})

	t.Run("负值", func(t *testing.T) {
		over := -1
		_, err := d.GetAndVerifyPulseMs(&over)
		assert.True(t, errors.Is(err, errors.ErrPulseOutOfRange))
	})
}

func TestDriver_GetAndVerifyPulsePower(t *testing.T) {
	d, _ := newTestDriver(t, config.CoilConfig{
		Number:            "0",
		DefaultPulsePower: 0.8,
		MaxPulsePower:     0.9,
	})

	power, err := d.GetAndVerifyPulsePower(nil)
	require.NoError(t, err)
	assert.Equal(t, 0.8, power)

	over := 0.95
	_, err = d.GetAndVerifyPulsePower(&over)
	assert.True(t, errors.Is(err, errors.ErrPowerOutOfRange))

	zero := 0.0
	_, err = d.GetAndVerifyPulsePower(&zero)
	assert.True(t, errors.Is(err, errors.ErrPowerOutOfRange))
}

func TestDriver_GetAndVerifyHoldPower(t *testing.T) {
	t.Run("不允许满功率保持", func(t *testing.T) {
		d, _ := newTestDriver(t, config.CoilConfig{
			Number:           "0",
			DefaultHoldPower: 0.25,
		})

		power, err := d.GetAndVerifyHoldPower(nil)
		require.NoError(t, err)
		assert.Equal(t, 0.25, power)

		full := 1.0
		_, err = d.GetAndVerifyHoldPower(&full)
		assert.True(t, errors.Is(err, errors.ErrHoldNotAllowed))
	})

	t.Run("允许满功率保持", func(t *testing.T) {
		d, _ := newTestDriver(t, config.CoilConfig{
			Number:      "0",
			AllowEnable: true,
		})

		full := 1.0
		power, err := d.GetAndVerifyHoldPower(&full)
		require.NoError(t, err)
		assert.Equal(t, 1.0, power)
	})

	t.Run("保持功率0合法", func(t *testing.T) {
		// 0在解析层合法，由规则拓扑决定是否拒绝
		d, _ := newTestDriver(t, config.CoilConfig{Number: "0"})

		zero := 0.0
		power, err := d.GetAndVerifyHoldPower(&zero)
		require.NoError(t, err)
		assert.Equal(t, 0.0, power)
	})
}

func TestDriver_PulseUsesVerifiedValues(t *testing.T) {
	d, vp := newTestDriver(t, config.CoilConfig{
		Number:         "0",
		DefaultPulseMs: 15,
		MaxPulseMs:     30,
	})

	require.NoError(t, d.Pulse(nil))
	assert.Equal(t, 1, vp.PulseCount("0"))
	assert.Equal(t, 15, vp.LastPulse("0").DurationMs)

	// 越界覆盖不触发平台调用
	over := 99
	require.Error(t, d.Pulse(&over))
	assert.Equal(t, 1, vp.PulseCount("0"))
}

func TestDriver_EnableRequiresNonZeroHold(t *testing.T) {
	d, vp := newTestDriver(t, config.CoilConfig{
		Number:           "0",
		DefaultHoldPower: 0, // 保持功率0
	})

	err := d.Enable()
	assert.True(t, errors.Is(err, errors.ErrHoldPowerZero))
	assert.False(t, vp.DriverEnabled("0"))
}
