package device

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wfunc/pinball-game/internal/config"
	"github.com/wfunc/pinball-game/internal/event"
	"github.com/wfunc/pinball-game/internal/platform"
)

func TestKickback_PostsFiredEvent(t *testing.T) {
	vp := platform.NewVirtualPlatform("virtual", zap.NewNop())
	coil := NewDriver("c_kickback", config.CoilConfig{
		Number:         "4",
		DefaultPulseMs: 15,
		MaxPulseMs:     40,
	}, vp.ConfigureDriver("4"), vp, zap.NewNop())
	sw := NewSwitch("s_outlane", config.SwitchConfig{Number: "14"},
		vp.ConfigureSwitch("14"), vp, zap.NewNop())

	bus := event.NewBus(zap.NewNop())
	controller := platform.NewController(zap.NewNop(), bus)
	playfield := &fakePlayfield{}

	kb := NewKickback("kb_outlane", config.AutofireConfig{
		Coil: "c_kickback", Switch: "s_outlane",
	}, coil, sw, controller, bus, playfield, zap.NewNop())

	var fired atomic.Int32
	bus.Subscribe("kickback_kb_outlane_fired", func(name string, data map[string]interface{}) {
		fired.Add(1)
	})

	require.NoError(t, kb.Enable())

	sw.ProcessHwChange(true)
	sw.ProcessHwChange(false)

	assert.Equal(t, int32(1), fired.Load())
	assert.Equal(t, int32(1), playfield.marks.Load())

	// 禁用后命中不再投递
	require.NoError(t, kb.Disable())
	sw.ProcessHwChange(true)
	assert.Equal(t, int32(1), fired.Load())
}
