package device

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wfunc/pinball-game/internal/config"
	"github.com/wfunc/pinball-game/internal/event"
	"github.com/wfunc/pinball-game/internal/platform"
)

// 延时任务名称
const (
	delayReenable     = "timeout_reenable"
	delaySearchIgnore = "ball_search_ignore"
)

// 球搜索发射后的人为开关闭合忽略窗口
const ballSearchIgnoreWindow = 3 * time.Second

// PlayfieldMarker 台面活动标记
// 命中真实球时通知台面，重置球搜索计时。
type PlayfieldMarker interface {
	MarkActive()
}

// AutofireCoil 自动发射线圈
// 命中开关后由硬件规则立即发射线圈（非软件计时），本体只维护使能状态、
// 软件层命中副作用和命中频率限制。硬件规则与软件观察者并行且互相独立。
type AutofireCoil struct {
	name       string
	cfg        config.AutofireConfig
	coil       *Driver
	sw         *Switch
	controller *platform.Controller
	events     *event.Bus
	playfield  PlayfieldMarker
	logger     *zap.Logger
	delay      *DelayManager

	// now 可注入时钟，便于命中窗口测试
	now func() time.Time

	mu           sync.Mutex
	enabled      bool
	rule         *platform.HardwareRule
	hits         []time.Time
	searchIgnore bool
	handlerKey   int
	// disableGen 每次禁用递增，冷却重启回调携带旧值时作废，
	// 保证手工禁用不会被已到期的冷却定时器重新使能
	disableGen uint64

	// firedHook 命中且使能时在基础处理之后调用，Kickback用于投递专属事件
	firedHook func()
}

// NewAutofireCoil 创建自动发射线圈
// 软件层命中观察者在创建时即注册，与设备使能状态无关（未使能时短路）。
func NewAutofireCoil(name string, cfg config.AutofireConfig, coil *Driver, sw *Switch,
	controller *platform.Controller, events *event.Bus, playfield PlayfieldMarker,
	logger *zap.Logger) *AutofireCoil {

	if logger == nil {
		logger = zap.NewNop()
	}

	af := &AutofireCoil{
		name:       name,
		cfg:        cfg,
		coil:       coil,
		sw:         sw,
		controller: controller,
		events:     events,
		playfield:  playfield,
		logger:     logger,
		delay:      NewDelayManager(),
		now:        time.Now,
	}
	af.handlerKey = sw.AddHandler(af.onSwitchChange)
	return af
}

// Name 设备名称
func (af *AutofireCoil) Name() string { return af.name }

// IsEnabled 是否处于使能状态
func (af *AutofireCoil) IsEnabled() bool {
	af.mu.Lock()
	defer af.mu.Unlock()
	return af.enabled
}

// Enable 使能设备
// 已使能时为无操作。按配置解析recycle/debounce策略后向平台控制器
// 申请pulse_on_hit规则并持有句柄；申请失败设备保持禁用，无部分规则生效。
func (af *AutofireCoil) Enable() error {
	af.mu.Lock()
	defer af.mu.Unlock()
	return af.enableLocked()
}

func (af *AutofireCoil) enableLocked() error {
	if af.enabled {
		return nil
	}

	// recycle默认开启，除非显式关闭
	recycle := af.cfg.Recycle == nil || *af.cfg.Recycle
	// debounce默认开启，除非显式关闭或配置为quick
	debounce := af.cfg.Debounce != "quick" && af.cfg.Debounce != "off"

	var pulse *platform.PulseRuleSettings
	if af.cfg.PulseMs != nil || af.cfg.PulsePower != nil {
		pulse = &platform.PulseRuleSettings{
			DurationMs: af.cfg.PulseMs,
			Power:      af.cfg.PulsePower,
		}
	}

	rule, err := af.controller.SetPulseOnHitRule(
		platform.SwitchRuleSettings{
			Switch:   af.sw,
			Invert:   af.cfg.ReverseSwitch,
			Debounce: debounce,
		},
		platform.DriverRuleSettings{
			Driver:  af.coil,
			Recycle: recycle,
		},
		pulse,
	)
	if err != nil {
		af.logger.Error("自动发射规则下发失败",
			zap.String("device", af.name),
			zap.Error(err))
		return err
	}

	af.rule = rule
	af.enabled = true
	af.logger.Info("自动发射已使能",
		zap.String("device", af.name),
		zap.Bool("recycle", recycle),
		zap.Bool("debounce", debounce))
	return nil
}

// Disable 禁用设备
// 先取消待执行的冷却重启延时；已禁用时为无操作，否则清除持有的硬件规则。
func (af *AutofireCoil) Disable() error {
	af.mu.Lock()
	defer af.mu.Unlock()
	return af.disableLocked()
}

func (af *AutofireCoil) disableLocked() error {
	af.delay.Remove(delayReenable)
	af.disableGen++

	if !af.enabled {
		return nil
	}

	af.enabled = false
	af.hits = nil
	rule := af.rule
	af.rule = nil

	af.logger.Info("自动发射已禁用", zap.String("device", af.name))

	if rule != nil {
		return af.controller.ClearHwRule(rule)
	}
	return nil
}

// onSwitchChange 开关软件层观察者
// 每次物理命中都会进入，与硬件规则并行。
func (af *AutofireCoil) onSwitchChange(active bool) {
	// 配置了reverse_switch时在释放沿命中
	hit := active != af.cfg.ReverseSwitch
	if !hit {
		return
	}
	af.processHit()
}

func (af *AutofireCoil) processHit() {
	af.mu.Lock()

	if !af.enabled {
		af.mu.Unlock()
		return
	}

	markActive := !af.searchIgnore
	fireHook := af.firedHook

	// 命中频率限制：窗口内达到最大命中数立即禁用并安排冷却重启
	if af.cfg.TimeoutWatchWindow > 0 {
		now := af.now()
		af.hits = pruneHits(af.hits, now, af.cfg.TimeoutWatchWindow)
		af.hits = append(af.hits, now)

		if len(af.hits) >= af.cfg.TimeoutMaxHits {
			af.logger.Warn("自动发射命中过频，临时禁用",
				zap.String("device", af.name),
				zap.Int("hits", len(af.hits)),
				zap.Duration("window", af.cfg.TimeoutWatchWindow))

			if err := af.disableLocked(); err != nil {
				af.logger.Error("禁用失败", zap.String("device", af.name), zap.Error(err))
			}
			if af.cfg.TimeoutDisableFor > 0 {
				gen := af.disableGen
				af.delay.Add(delayReenable, af.cfg.TimeoutDisableFor, func() {
					af.reenableAfterCooldown(gen)
				})
			}
		}
	}
	af.mu.Unlock()

	// 球搜索发射造成的人为闭合不算台面活动
	if markActive && af.playfield != nil {
		af.playfield.MarkActive()
	}

	if af.events != nil {
		for _, name := range af.cfg.Events {
			af.events.Post(name, map[string]interface{}{
				"device": af.name,
				"switch": af.sw.GetName(),
				"driver": af.coil.GetName(),
			})
		}
	}

	if fireHook != nil {
		fireHook()
	}
}

// reenableAfterCooldown 冷却到期重新使能
// 期间发生过手工禁用（代数不匹配）则放弃，设备保持禁用等待人工干预。
func (af *AutofireCoil) reenableAfterCooldown(gen uint64) {
	af.mu.Lock()
	if gen != af.disableGen {
		af.mu.Unlock()
		return
	}
	err := af.enableLocked()
	af.mu.Unlock()

	if err != nil {
		// 冷却后重启失败则保持禁用，等待人工干预或下一次enable
		af.logger.Error("冷却后重新使能失败",
			zap.String("device", af.name),
			zap.Error(err))
	}
}

// pruneHits 剔除窗口外的命中时间戳
// 恰好等于窗口长度的命中视为过期。纯函数，便于边界测试。
func pruneHits(hits []time.Time, now time.Time, window time.Duration) []time.Time {
	kept := hits[:0]
	for _, ts := range hits {
		if now.Sub(ts) < window {
			kept = append(kept, ts)
		}
	}
	return kept
}

// PerformBallSearch 球搜索回调
// 绕过硬件规则直接发射线圈，并武装忽略窗口，避免发射造成的开关闭合
// 被当作真实命中。返回true表示执行了搜索动作。
func (af *AutofireCoil) PerformBallSearch(phase int, iteration int) bool {
	af.mu.Lock()
	af.searchIgnore = true
	af.mu.Unlock()

	af.delay.Add(delaySearchIgnore, ballSearchIgnoreWindow, func() {
		af.mu.Lock()
		af.searchIgnore = false
		af.mu.Unlock()
	})

	af.logger.Debug("球搜索发射",
		zap.String("device", af.name),
		zap.Int("phase", phase),
		zap.Int("iteration", iteration))

	if err := af.coil.Pulse(nil); err != nil {
		af.logger.Error("球搜索发射失败", zap.String("device", af.name), zap.Error(err))
		return false
	}
	return true
}

// BallSearchOrder 球搜索登记顺序，0表示不参与
func (af *AutofireCoil) BallSearchOrder() int {
	return af.cfg.BallSearchOrder
}

// Shutdown 停机清理
// 清除硬件规则、取消全部延时并注销开关观察者。
func (af *AutofireCoil) Shutdown() error {
	err := af.Disable()
	af.delay.RemoveAll()
	af.sw.RemoveHandler(af.handlerKey)
	return err
}
