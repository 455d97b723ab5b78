package ballsearch

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wfunc/pinball-game/internal/config"
	"github.com/wfunc/pinball-game/internal/event"
)

// Callback 球搜索设备回调
// phase从1开始递增，iteration为当前阶段内的轮次。
// 返回true表示设备执行了搜索动作。
type Callback func(phase int, iteration int) bool

// target 一个登记的搜索目标
type target struct {
	order int
	name  string
	cb    Callback
}

// Searcher 球搜索协调器
// 台面无活动超时后按登记顺序逐个触发设备回调，尝试把卡住的球震出来。
// 每个阶段把全部设备过一遍，阶段数用尽后投递失败事件并停止。
type Searcher struct {
	cfg    config.BallSearchConfig
	events *event.Bus
	logger *zap.Logger

	mu       sync.Mutex
	targets  []target
	started  bool
	running  bool
	stopCh   chan struct{}
	lastMark time.Time

	// now 可注入时钟
	now func() time.Time
}

// NewSearcher 创建球搜索协调器
func NewSearcher(cfg config.BallSearchConfig, events *event.Bus, logger *zap.Logger) *Searcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PhaseCount <= 0 {
		cfg.PhaseCount = 3
	}
	return &Searcher{
		cfg:    cfg,
		events: events,
		logger: logger,
		now:    time.Now,
	}
}

// Register 登记搜索目标
// order决定触发顺序，order相同时按名称排序保证确定性。
func (s *Searcher) Register(order int, name string, cb Callback) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.targets = append(s.targets, target{order: order, name: name, cb: cb})
	sort.SliceStable(s.targets, func(i, j int) bool {
		if s.targets[i].order != s.targets[j].order {
			return s.targets[i].order < s.targets[j].order
		}
		return s.targets[i].name < s.targets[j].name
	})
}

// MarkActive 台面活动标记
// 真实命中会重置无活动计时；搜索进行中收到活动说明球已找到，停止搜索。
func (s *Searcher) MarkActive() {
	s.mu.Lock()
	s.lastMark = s.now()
	stopCh := s.takeStopChLocked()
	s.mu.Unlock()

	if stopCh != nil {
		s.logger.Info("检测到台面活动，停止球搜索")
		close(stopCh)
	}
}

// takeStopChLocked 取走停止通道，保证每轮搜索只被关闭一次
// 连续的MarkActive/Stop中只有第一个拿到通道，后续拿到nil。
// 调用方必须持有s.mu。
func (s *Searcher) takeStopChLocked() chan struct{} {
	if !s.running || s.stopCh == nil {
		return nil
	}
	ch := s.stopCh
	s.stopCh = nil
	return ch
}

// Start 启动无活动监视
func (s *Searcher) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.cfg.Enabled || s.started {
		return
	}
	s.started = true
	s.lastMark = s.now()
	go s.watchLoop()
}

// Stop 停止监视与进行中的搜索
func (s *Searcher) Stop() {
	s.mu.Lock()
	s.started = false
	stopCh := s.takeStopChLocked()
	s.mu.Unlock()

	if stopCh != nil {
		close(stopCh)
	}
}

// TriggerNow 立即执行一轮球搜索（诊断用），已在搜索中则无操作
func (s *Searcher) TriggerNow() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	stopCh := make(chan struct{})
	s.stopCh = stopCh
	s.mu.Unlock()

	s.runSearch(stopCh)
}

// watchLoop 无活动监视循环
func (s *Searcher) watchLoop() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for range ticker.C {
		s.mu.Lock()
		if !s.started {
			s.mu.Unlock()
			return
		}
		idle := s.now().Sub(s.lastMark)
		shouldSearch := !s.running && idle >= s.cfg.Timeout
		var stopCh chan struct{}
		if shouldSearch {
			s.running = true
			stopCh = make(chan struct{})
			s.stopCh = stopCh
		}
		s.mu.Unlock()

		if shouldSearch {
			s.runSearch(stopCh)
		}
	}
}

// runSearch 执行一轮完整的球搜索
func (s *Searcher) runSearch(stopCh chan struct{}) {
	s.mu.Lock()
	targets := make([]target, len(s.targets))
	copy(targets, s.targets)
	s.mu.Unlock()

	s.logger.Warn("台面无活动，开始球搜索",
		zap.Duration("timeout", s.cfg.Timeout),
		zap.Int("targets", len(targets)))
	s.events.Post("ball_search_started", nil)

	defer func() {
		s.mu.Lock()
		s.running = false
		s.stopCh = nil
		s.lastMark = s.now()
		s.mu.Unlock()
	}()

	for phase := 1; phase <= s.cfg.PhaseCount; phase++ {
		s.events.Post("ball_search_phase", map[string]interface{}{"phase": phase})

		for iteration, t := range targets {
			select {
			case <-stopCh:
				s.events.Post("ball_search_stopped", nil)
				return
			default:
			}

			fired := t.cb(phase, iteration+1)
			s.logger.Debug("球搜索触发设备",
				zap.String("target", t.name),
				zap.Int("phase", phase),
				zap.Bool("fired", fired))

			if fired {
				select {
				case <-stopCh:
					s.events.Post("ball_search_stopped", nil)
					return
				case <-time.After(s.cfg.IterationInterval):
				}
			}
		}
	}

	// 全部阶段用尽仍未找到球
	s.logger.Error("球搜索失败，未能找回台面上的球")
	s.events.Post("ball_search_failed", nil)
}
