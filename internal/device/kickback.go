package device

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/wfunc/pinball-game/internal/config"
	"github.com/wfunc/pinball-game/internal/event"
	"github.com/wfunc/pinball-game/internal/platform"
)

// Kickback 出球道回弹器
// 行为与自动发射线圈完全一致，仅额外投递专属发射事件，
// 供灯光音效系统响应回弹动作。
type Kickback struct {
	*AutofireCoil

	events *event.Bus
}

// NewKickback 创建回弹器
func NewKickback(name string, cfg config.AutofireConfig, coil *Driver, sw *Switch,
	controller *platform.Controller, events *event.Bus, playfield PlayfieldMarker,
	logger *zap.Logger) *Kickback {

	k := &Kickback{
		AutofireCoil: NewAutofireCoil(name, cfg, coil, sw, controller, events, playfield, logger),
		events:       events,
	}
	k.firedHook = k.postFired
	return k
}

// postFired 投递回弹发射事件
func (k *Kickback) postFired() {
	if k.events == nil {
		return
	}
	k.events.Post(fmt.Sprintf("kickback_%s_fired", k.name), map[string]interface{}{
		"device": k.name,
	})
}
