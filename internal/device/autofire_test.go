package device

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wfunc/pinball-game/internal/config"
	"github.com/wfunc/pinball-game/internal/event"
	"github.com/wfunc/pinball-game/internal/platform"
)

// fakePlayfield 记录台面活动标记次数
type fakePlayfield struct {
	marks atomic.Int32
}

func (f *fakePlayfield) MarkActive() { f.marks.Add(1) }

// autofireRig 自动发射测试环境
type autofireRig struct {
	vp        *platform.VirtualPlatform
	af        *AutofireCoil
	sw        *Switch
	playfield *fakePlayfield
	bus       *event.Bus
}

func newAutofireRig(t *testing.T, cfg config.AutofireConfig) *autofireRig {
	t.Helper()

	vp := platform.NewVirtualPlatform("virtual", zap.NewNop())
	coil := NewDriver("c_sling", config.CoilConfig{
		Number:         "0",
		DefaultPulseMs: 10,
		MaxPulseMs:     30,
	}, vp.ConfigureDriver("0"), vp, zap.NewNop())
	sw := NewSwitch("s_sling", config.SwitchConfig{Number: "10"},
		vp.ConfigureSwitch("10"), vp, zap.NewNop())

	bus := event.NewBus(zap.NewNop())
	controller := platform.NewController(zap.NewNop(), bus)
	playfield := &fakePlayfield{}

	af := NewAutofireCoil("af_sling", cfg, coil, sw, controller, bus, playfield, zap.NewNop())
	return &autofireRig{vp: vp, af: af, sw: sw, playfield: playfield, bus: bus}
}

// hit 模拟一次完整的开关命中（闭合再断开）
func (r *autofireRig) hit() {
	r.sw.ProcessHwChange(true)
	r.sw.ProcessHwChange(false)
}

func TestAutofire_EnableArmsRule(t *testing.T) {
	rig := newAutofireRig(t, config.AutofireConfig{Coil: "c_sling", Switch: "s_sling"})

	require.NoError(t, rig.af.Enable())
	assert.True(t, rig.af.IsEnabled())
	assert.True(t, rig.vp.HasRule("10", "0"))

	ruleType, swSettings, drvSettings, ok := rig.vp.GetRule("10", "0")
	require.True(t, ok)
	assert.Equal(t, platform.RulePulseOnHit, ruleType)
	// 缺省策略：recycle开、debounce开
	assert.True(t, drvSettings.Recycle)
	assert.True(t, swSettings.Debounce)
}

func TestAutofire_EnableIsIdempotent(t *testing.T) {
	rig := newAutofireRig(t, config.AutofireConfig{Coil: "c_sling", Switch: "s_sling"})

	require.NoError(t, rig.af.Enable())
	require.NoError(t, rig.af.Enable())
	assert.Equal(t, 1, rig.vp.RuleCount())
}

func TestAutofire_QuickDebounce(t *testing.T) {
	rig := newAutofireRig(t, config.AutofireConfig{
		Coil: "c_sling", Switch: "s_sling", Debounce: "quick",
	})

	require.NoError(t, rig.af.Enable())
	_, swSettings, _, ok := rig.vp.GetRule("10", "0")
	require.True(t, ok)
	assert.False(t, swSettings.Debounce)
}

func TestAutofire_RecycleOff(t *testing.T) {
	off := false
	rig := newAutofireRig(t, config.AutofireConfig{
		Coil: "c_sling", Switch: "s_sling", Recycle: &off,
	})

	require.NoError(t, rig.af.Enable())
	_, _, drvSettings, ok := rig.vp.GetRule("10", "0")
	require.True(t, ok)
	assert.False(t, drvSettings.Recycle)
}

func TestAutofire_PulseOverrideApplied(t *testing.T) {
	ms := 20
	rig := newAutofireRig(t, config.AutofireConfig{
		Coil: "c_sling", Switch: "s_sling", PulseMs: &ms,
	})

	require.NoError(t, rig.af.Enable())
	_, _, drvSettings, ok := rig.vp.GetRule("10", "0")
	require.True(t, ok)
	assert.Equal(t, 20, drvSettings.Pulse.DurationMs)
}

func TestAutofire_DisableClearsRule(t *testing.T) {
	rig := newAutofireRig(t, config.AutofireConfig{Coil: "c_sling", Switch: "s_sling"})

	require.NoError(t, rig.af.Enable())
	require.NoError(t, rig.af.Disable())
	assert.False(t, rig.af.IsEnabled())
	assert.Equal(t, 0, rig.vp.RuleCount())

	// 已禁用时再次禁用为无操作
	require.NoError(t, rig.af.Disable())
}

func TestAutofire_HitMarksPlayfieldAndPostsEvents(t *testing.T) {
	rig := newAutofireRig(t, config.AutofireConfig{
		Coil: "c_sling", Switch: "s_sling",
		Events: []string{"sling_hit"},
	})

	var events atomic.Int32
	rig.bus.Subscribe("sling_hit", func(name string, data map[string]interface{}) {
		events.Add(1)
	})

	require.NoError(t, rig.af.Enable())
	rig.hit()

	assert.Equal(t, int32(1), rig.playfield.marks.Load())
	assert.Equal(t, int32(1), events.Load())
	// 硬件规则也执行了脉冲
	assert.Equal(t, 1, rig.vp.PulseCount("0"))
}

func TestAutofire_DisabledHitShortCircuits(t *testing.T) {
	rig := newAutofireRig(t, config.AutofireConfig{
		Coil: "c_sling", Switch: "s_sling",
		Events: []string{"sling_hit"},
	})

	var events atomic.Int32
	rig.bus.Subscribe("sling_hit", func(name string, data map[string]interface{}) {
		events.Add(1)
	})

	// 未使能时命中不产生任何副作用
	rig.hit()
	assert.Equal(t, int32(0), rig.playfield.marks.Load())
	assert.Equal(t, int32(0), events.Load())
}

func TestAutofire_ReverseSwitchFiresOnRelease(t *testing.T) {
	rig := newAutofireRig(t, config.AutofireConfig{
		Coil: "c_sling", Switch: "s_sling", ReverseSwitch: true,
	})

	require.NoError(t, rig.af.Enable())

	// 反转触发：闭合沿不算命中，断开沿才算
	rig.sw.ProcessHwChange(true)
	assert.Equal(t, int32(0), rig.playfield.marks.Load())

	rig.sw.ProcessHwChange(false)
	assert.Equal(t, int32(1), rig.playfield.marks.Load())
}

func TestAutofire_HitRateLimiter(t *testing.T) {
	rig := newAutofireRig(t, config.AutofireConfig{
		Coil: "c_sling", Switch: "s_sling",
		TimeoutWatchWindow: 2 * time.Second,
		TimeoutMaxHits:     3,
		TimeoutDisableFor:  time.Minute,
	})

	now := time.Unix(1000, 0)
	rig.af.now = func() time.Time { return now }

	require.NoError(t, rig.af.Enable())

	rig.hit()
	now = now.Add(100 * time.Millisecond)
	rig.hit()
	assert.True(t, rig.af.IsEnabled())

	// 第3次命中达到上限，立即禁用
	now = now.Add(100 * time.Millisecond)
	rig.hit()
	assert.False(t, rig.af.IsEnabled())
	assert.Equal(t, 0, rig.vp.RuleCount())
	assert.True(t, rig.af.delay.Exists(delayReenable))
}

func TestAutofire_HitWindowBoundaryEviction(t *testing.T) {
	rig := newAutofireRig(t, config.AutofireConfig{
		Coil: "c_sling", Switch: "s_sling",
		TimeoutWatchWindow: 2 * time.Second,
		TimeoutMaxHits:     3,
		TimeoutDisableFor:  time.Minute,
	})

	now := time.Unix(1000, 0)
	rig.af.now = func() time.Time { return now }

	require.NoError(t, rig.af.Enable())

	rig.hit()
	now = now.Add(time.Second)
	rig.hit()

	// 第3次命中时首个命中恰好过期整个窗口，被剔除后窗口内只剩2次
	now = now.Add(time.Second)
	rig.hit()
	assert.True(t, rig.af.IsEnabled())

	// 紧接着的第4次凑满3次，触发禁用
	now = now.Add(100 * time.Millisecond)
	rig.hit()
	assert.False(t, rig.af.IsEnabled())
}

func TestAutofire_ReenableAfterCooldown(t *testing.T) {
	rig := newAutofireRig(t, config.AutofireConfig{
		Coil: "c_sling", Switch: "s_sling",
		TimeoutWatchWindow: 2 * time.Second,
		TimeoutMaxHits:     2,
		TimeoutDisableFor:  20 * time.Millisecond,
	})

	require.NoError(t, rig.af.Enable())

	rig.hit()
	rig.hit()
	require.False(t, rig.af.IsEnabled())

	// 冷却结束后自动恢复
	assert.Eventually(t, func() bool { return rig.af.IsEnabled() },
		time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, rig.vp.RuleCount())
}

func TestAutofire_ManualDisableCancelsReenable(t *testing.T) {
	rig := newAutofireRig(t, config.AutofireConfig{
		Coil: "c_sling", Switch: "s_sling",
		TimeoutWatchWindow: 2 * time.Second,
		TimeoutMaxHits:     2,
		TimeoutDisableFor:  20 * time.Millisecond,
	})

	require.NoError(t, rig.af.Enable())
	rig.hit()
	rig.hit()
	require.False(t, rig.af.IsEnabled())

	// 运维主动禁用会取消冷却重启
	require.NoError(t, rig.af.Disable())
	assert.False(t, rig.af.delay.Exists(delayReenable))

	time.Sleep(60 * time.Millisecond)
	assert.False(t, rig.af.IsEnabled())
}

func TestAutofire_StaleCooldownCallbackStaysDisabled(t *testing.T) {
	rig := newAutofireRig(t, config.AutofireConfig{
		Coil: "c_sling", Switch: "s_sling",
		TimeoutWatchWindow: 2 * time.Second,
		TimeoutMaxHits:     2,
		TimeoutDisableFor:  time.Minute,
	})

	require.NoError(t, rig.af.Enable())
	rig.hit()
	rig.hit()
	require.False(t, rig.af.IsEnabled())

	rig.af.mu.Lock()
	gen := rig.af.disableGen
	rig.af.mu.Unlock()

	// 冷却定时器到期与手工禁用竞争时，携带旧代数的重启回调必须作废，
	// 设备保持禁用直到再次人工使能
	require.NoError(t, rig.af.Disable())
	rig.af.reenableAfterCooldown(gen)
	assert.False(t, rig.af.IsEnabled())
	assert.Equal(t, 0, rig.vp.RuleCount())
}

func TestAutofire_PruneHits(t *testing.T) {
	base := time.Unix(1000, 0)
	window := 2 * time.Second

	hits := []time.Time{
		base.Add(-3 * time.Second),        // 过期
		base.Add(-2 * time.Second),        // 恰好等于窗口，过期
		base.Add(-2*time.Second + 1),      // 窗口内
		base.Add(-time.Second),            // 窗口内
	}

	kept := pruneHits(hits, base, window)
	assert.Len(t, kept, 2)
}

func TestAutofire_BallSearchPulsesAndIgnoresHits(t *testing.T) {
	rig := newAutofireRig(t, config.AutofireConfig{Coil: "c_sling", Switch: "s_sling"})

	require.NoError(t, rig.af.Enable())

	fired := rig.af.PerformBallSearch(1, 1)
	assert.True(t, fired)
	assert.Equal(t, 1, rig.vp.PulseCount("0"))

	// 忽略窗口内的命中不标记台面活动
	rig.hit()
	assert.Equal(t, int32(0), rig.playfield.marks.Load())
}

func TestAutofire_ShutdownCleansUp(t *testing.T) {
	rig := newAutofireRig(t, config.AutofireConfig{Coil: "c_sling", Switch: "s_sling"})

	require.NoError(t, rig.af.Enable())
	require.NoError(t, rig.af.Shutdown())

	assert.Equal(t, 0, rig.vp.RuleCount())
	// 观察者已注销，命中不再有副作用
	rig.hit()
	assert.Equal(t, int32(0), rig.playfield.marks.Load())
}
