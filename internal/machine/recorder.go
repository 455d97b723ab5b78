package machine

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/wfunc/pinball-game/internal/device"
	"github.com/wfunc/pinball-game/internal/event"
	"github.com/wfunc/pinball-game/internal/models"
	"github.com/wfunc/pinball-game/internal/repository"
)

// Recorder 硬件事件落库观察者
// 订阅事件总线，把规则变化与设备命中异步写入数据库。
// 写库不能阻塞事件投递，事件先进缓冲通道由单独协程消费。
type Recorder struct {
	statusRepo repository.DeviceStatusRepository
	logRepo    repository.HardwareLogRepository
	events     *event.Bus
	registry   *device.Registry
	logger     *zap.Logger

	queue    chan *models.HardwareLog
	eventKey int
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewRecorder 创建落库观察者
func NewRecorder(db *gorm.DB, events *event.Bus, registry *device.Registry, logger *zap.Logger) *Recorder {
	return &Recorder{
		statusRepo: repository.NewDeviceStatusRepository(db),
		logRepo:    repository.NewHardwareLogRepository(db),
		events:     events,
		registry:   registry,
		logger:     logger,
		queue:      make(chan *models.HardwareLog, 1024),
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
}

// Start 登记设备初始状态并启动消费协程
func (r *Recorder) Start() error {
	ctx := context.Background()

	for name := range r.registry.Drivers() {
		if err := r.upsert(ctx, name, "coil"); err != nil {
			return err
		}
	}
	for name := range r.registry.Switches() {
		if err := r.upsert(ctx, name, "switch"); err != nil {
			return err
		}
	}
	for name := range r.registry.Autofires() {
		if err := r.upsert(ctx, name, "autofire"); err != nil {
			return err
		}
	}
	for name := range r.registry.Kickbacks() {
		if err := r.upsert(ctx, name, "kickback"); err != nil {
			return err
		}
	}

	r.eventKey = r.events.Subscribe(event.WildcardTopic, r.onEvent)
	go r.consume()
	return nil
}

// Stop 停止消费协程
func (r *Recorder) Stop() {
	r.events.Unsubscribe(event.WildcardTopic, r.eventKey)
	close(r.stopCh)
	<-r.doneCh
}

func (r *Recorder) upsert(ctx context.Context, name, deviceType string) error {
	return r.statusRepo.Upsert(ctx, &models.DeviceStatus{
		Name:       name,
		DeviceType: deviceType,
		State:      models.DeviceStateDisabled,
	})
}

// onEvent 事件转硬件日志
func (r *Recorder) onEvent(name string, data map[string]interface{}) {
	log := &models.HardwareLog{
		Type:    eventLogType(name, data),
		Level:   models.HardwareLogLevelInfo,
		Message: name,
		Detail:  models.JSONMap(data),
	}
	if data != nil {
		if sw, ok := data["switch"].(string); ok {
			log.SwitchName = sw
		}
		if sw, ok := data["switch_number"].(string); ok {
			log.SwitchName = sw
		}
		if drv, ok := data["driver"].(string); ok {
			log.DriverName = drv
		}
		if drv, ok := data["driver_number"].(string); ok {
			log.DriverName = drv
		}
		if action, ok := data["action"].(string); ok {
			log.RuleType = action
		}
	}
	if name == "ball_search_failed" {
		log.Level = models.HardwareLogLevelError
	}

	select {
	case r.queue <- log:
	default:
		// 队列满时丢弃，落库只是诊断辅助
		r.logger.Warn("硬件日志队列已满，丢弃", zap.String("event", name))
	}
}

// eventLogType 根据事件名与内容推断日志类型
func eventLogType(name string, data map[string]interface{}) models.HardwareLogType {
	switch {
	case strings.HasPrefix(name, "ball_search"):
		return models.HardwareLogTypeBallSearch
	case strings.HasPrefix(name, "servo"):
		return models.HardwareLogTypeServo
	case name == "driver_rule":
		if action, ok := data["action"].(string); ok && action == "remove" {
			return models.HardwareLogTypeRuleClear
		}
		return models.HardwareLogTypeRuleArm
	default:
		return models.HardwareLogTypeDriver
	}
}

// consume 消费协程
func (r *Recorder) consume() {
	defer close(r.doneCh)

	for {
		select {
		case log := <-r.queue:
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			if err := r.logRepo.Create(ctx, log); err != nil {
				r.logger.Error("硬件日志写入失败", zap.Error(err))
			}
			cancel()
		case <-r.stopCh:
			// 排空剩余日志
			for {
				select {
				case log := <-r.queue:
					ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
					if err := r.logRepo.Create(ctx, log); err != nil {
						r.logger.Error("硬件日志写入失败", zap.Error(err))
					}
					cancel()
				default:
					return
				}
			}
		}
	}
}
