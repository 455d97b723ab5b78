package machine

import (
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/wfunc/pinball-game/internal/ballsearch"
	"github.com/wfunc/pinball-game/internal/config"
	"github.com/wfunc/pinball-game/internal/device"
	"github.com/wfunc/pinball-game/internal/errors"
	"github.com/wfunc/pinball-game/internal/event"
	"github.com/wfunc/pinball-game/internal/platform"
	"github.com/wfunc/pinball-game/internal/platform/serialio"
	"github.com/wfunc/pinball-game/internal/servo"
)

// Machine 整机协调器
// 按配置装配硬件平台、规则控制器、设备注册表、球搜索与舵机，
// 管理整机的启动与停机顺序。
type Machine struct {
	cfg    *config.Config
	logger *zap.Logger

	events     *event.Bus
	backend    device.ConfigurablePlatform
	controller *platform.Controller
	registry   *device.Registry
	searcher   *ballsearch.Searcher
	servos     map[string]servo.Servo

	recorder *Recorder

	// serialPlatform 仅serialio后端时非nil，需要显式启停
	serialPlatform *serialio.SerialPlatform
}

// New 创建整机协调器
// db可为nil，此时跳过状态与日志落库。i2cBus可为nil，此时跳过pca9685舵机。
func New(cfg *config.Config, db *gorm.DB, i2cBus servo.I2CBus, logger *zap.Logger) (*Machine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	m := &Machine{
		cfg:    cfg,
		logger: logger,
		events: event.NewBus(logger),
		servos: make(map[string]servo.Servo),
	}

	// 选择平台后端
	switch cfg.Platform.Backend {
	case "serialio":
		sp, err := serialio.NewSerialPlatform(cfg.Platform.Serial, logger)
		if err != nil {
			return nil, err
		}
		m.serialPlatform = sp
		m.backend = sp
	case "virtual", "":
		m.backend = platform.NewVirtualPlatform("virtual", logger)
	default:
		return nil, errors.Newf(errors.ErrConfigValidate,
			"未知的平台后端: %s", cfg.Platform.Backend)
	}

	m.controller = platform.NewController(logger, m.events)
	m.searcher = ballsearch.NewSearcher(cfg.Machine.BallSearch, m.events, logger)

	// 装配设备
	m.registry = device.NewRegistry(logger)
	if err := m.registry.Build(&cfg.Machine, m.backend, m.controller, m.events, m.searcher); err != nil {
		return nil, err
	}

	// 登记球搜索目标
	for name, af := range m.registry.Autofires() {
		if af.BallSearchOrder() > 0 {
			m.searcher.Register(af.BallSearchOrder(), name, af.PerformBallSearch)
		}
	}
	for name, kb := range m.registry.Kickbacks() {
		if kb.BallSearchOrder() > 0 {
			m.searcher.Register(kb.BallSearchOrder(), name, kb.PerformBallSearch)
		}
	}

	// 装配舵机
	for name, servoCfg := range cfg.Machine.Servos {
		if servoCfg.Type == "pca9685" && i2cBus == nil {
			m.logger.Warn("缺少I2C总线，跳过舵机", zap.String("servo", name))
			continue
		}
		s, err := servo.Build(name, servoCfg, i2cBus, logger)
		if err != nil {
			return nil, err
		}
		m.servos[name] = s
	}

	// 状态与日志落库
	if db != nil {
		m.recorder = NewRecorder(db, m.events, m.registry, logger)
	}

	return m, nil
}

// Start 启动整机
// 顺序：平台读取、落库观察者、设备使能、球搜索监视。
func (m *Machine) Start() error {
	if m.serialPlatform != nil {
		m.serialPlatform.Start()
	}
	if m.recorder != nil {
		if err := m.recorder.Start(); err != nil {
			return err
		}
	}
	if err := m.registry.EnableAll(); err != nil {
		return err
	}
	m.searcher.Start()

	m.logger.Info("机器启动完成",
		zap.String("machine", m.cfg.Machine.Name),
		zap.String("backend", m.backend.Name()))
	return nil
}

// Stop 停机
// 顺序与启动相反：先停球搜索，再清理设备规则，最后关平台。
func (m *Machine) Stop() error {
	m.searcher.Stop()
	m.registry.Shutdown()
	if m.recorder != nil {
		m.recorder.Stop()
	}

	var err error
	if m.serialPlatform != nil {
		err = m.serialPlatform.Stop()
	}

	m.logger.Info("机器已停机", zap.String("machine", m.cfg.Machine.Name))
	return err
}

// Events 事件总线
func (m *Machine) Events() *event.Bus { return m.events }

// Registry 设备注册表
func (m *Machine) Registry() *device.Registry { return m.registry }

// Controller 规则控制器
func (m *Machine) Controller() *platform.Controller { return m.controller }

// Searcher 球搜索协调器
func (m *Machine) Searcher() *ballsearch.Searcher { return m.searcher }

// BackendName 平台后端名称
func (m *Machine) BackendName() string { return m.backend.Name() }

// MoveServo 移动指定舵机到归一化位置
func (m *Machine) MoveServo(name string, position float64) error {
	s, ok := m.servos[name]
	if !ok {
		return errors.Newf(errors.ErrNotFound, "舵机 %s 不存在", name)
	}
	if err := s.GoToPosition(position); err != nil {
		return err
	}

	m.events.Post("servo_moved", map[string]interface{}{
		"servo":    name,
		"position": position,
	})
	return nil
}

// Servos 全部舵机名称
func (m *Machine) Servos() []string {
	names := make([]string, 0, len(m.servos))
	for name := range m.servos {
		names = append(names, name)
	}
	return names
}
