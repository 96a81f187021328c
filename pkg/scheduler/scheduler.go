// Package scheduler 实现性能层的后台任务调度器：
// 按 immediate/interval/once/cron 四种方式触发命名任务，
// 跟踪每个任务的状态机，并通过 cleanup 任务类型驱动缓存清理。
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/dvnharish/plugins-sub002/pkg/core"
	"github.com/dvnharish/plugins-sub002/pkg/logger"
)

// cronParser 支持秒级调度的 cron 表达式解析器。
var cronParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Scheduler 后台任务调度器。
// 任务表由调度器独占持有；interval 和 cron 调度都委托给 robfig/cron。
type Scheduler struct {
	cron     *cron.Cron
	tasks    map[string]*Task
	handlers map[TaskKind]Handler
	sweeper  core.CacheSweeper
	mu       sync.RWMutex
	log      *logrus.Entry
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewScheduler 创建任务调度器。sweeper 为 cleanup 任务类型的执行目标，
// 可以为 nil（此时 cleanup 任务完成为空操作）。
func NewScheduler(sweeper core.CacheSweeper) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	s := &Scheduler{
		cron:     cron.New(cron.WithSeconds()),
		tasks:    make(map[string]*Task),
		handlers: make(map[TaskKind]Handler),
		sweeper:  sweeper,
		log:      logger.WithComponent("scheduler"),
		ctx:      ctx,
		cancel:   cancel,
	}

	// 内置处理器。cleanup 驱动缓存清理；其余三种是扩展点，
	// 默认实现为空操作，可通过 SetHandler 覆盖。
	s.handlers[KindCleanup] = s.runCleanup
	s.handlers[KindOptimization] = s.runNoop
	s.handlers[KindPreprocessing] = s.runNoop
	s.handlers[KindIndexing] = s.runNoop

	return s
}

// SetHandler 注册或覆盖某个任务类型的处理器。
// custom 类型的任务必须先注册处理器，否则按未知类型处理。
func (s *Scheduler) SetHandler(kind TaskKind, handler Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[kind] = handler
}

// Register 注册一个后台任务。schedule.Enabled 为 true 时立即按调度方式布防。
// 返回任务的副本；调度器内部状态不暴露给调用方。
func (s *Scheduler) Register(config TaskConfig) (*Task, error) {
	if err := s.validateConfig(config); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[config.Name]; exists {
		return nil, core.NewError(core.ErrTaskExists, "task already registered").
			WithContext("name", config.Name)
	}

	if config.Priority == core.PriorityUnspecified {
		config.Priority = core.PriorityMedium
	}

	task := &Task{
		ID:     uuid.New().String(),
		Config: config,
		Status: StatusPending,
	}
	s.tasks[config.Name] = task

	if !config.Schedule.Enabled {
		s.log.Infof("任务已注册（未启用）: %s", config.Name)
		copied := *task
		return &copied, nil
	}

	switch config.Schedule.Kind {
	case ScheduleImmediate:
		go s.execute(task)
	case ScheduleOnce:
		time.AfterFunc(config.Schedule.Interval, func() {
			s.execute(task)
		})
	case ScheduleInterval:
		task.EntryID = s.cron.Schedule(cron.Every(config.Schedule.Interval), cron.FuncJob(func() {
			s.execute(task)
		}))
	case ScheduleCron:
		schedule, err := cronParser.Parse(config.Schedule.Spec)
		if err != nil {
			// validateConfig 已经解析过一次，这里不应该失败
			delete(s.tasks, config.Name)
			return nil, core.WrapError(core.ErrScheduleInvalid, "invalid cron spec", err)
		}
		task.EntryID = s.cron.Schedule(schedule, cron.FuncJob(func() {
			s.execute(task)
		}))
	}

	s.log.Infof("任务已注册: %s (调度: %s)", config.Name, config.Schedule.Kind)
	copied := *task
	return &copied, nil
}

// List 返回所有任务的副本。
func (s *Scheduler) List() []*Task {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tasks := make([]*Task, 0, len(s.tasks))
	for _, task := range s.tasks {
		copied := *task
		tasks = append(tasks, &copied)
	}
	return tasks
}

// Get 获取指定任务的副本。
func (s *Scheduler) Get(name string) (*Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	task, exists := s.tasks[name]
	if !exists {
		return nil, core.NewError(core.ErrTaskNotFound, "task not found").
			WithContext("name", name)
	}
	copied := *task
	return &copied, nil
}

// Run 手动触发一次任务执行。
func (s *Scheduler) Run(name string) error {
	s.mu.RLock()
	task, exists := s.tasks[name]
	s.mu.RUnlock()

	if !exists {
		return core.NewError(core.ErrTaskNotFound, "task not found").WithContext("name", name)
	}

	go s.execute(task)
	return nil
}

// Start 启动调度器，开始驱动 interval 和 cron 任务。
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("任务调度器已启动")
}

// Stop 停止调度器。只停止后续触发，不会中断正在执行的任务体
// （基础设计不提供执行中取消）。
func (s *Scheduler) Stop() {
	s.cancel()
	ctx := s.cron.Stop()

	select {
	case <-ctx.Done():
		s.log.Info("任务调度器已停止")
	case <-time.After(30 * time.Second):
		s.log.Warn("任务调度器停止超时")
	}
}

// validateConfig 验证任务配置。
func (s *Scheduler) validateConfig(config TaskConfig) error {
	if config.Name == "" {
		return core.NewError(core.ErrScheduleInvalid, "task name cannot be empty")
	}

	switch config.Schedule.Kind {
	case ScheduleImmediate:
	case ScheduleInterval, ScheduleOnce:
		if config.Schedule.Interval <= 0 {
			return core.NewError(core.ErrScheduleInvalid, "schedule interval must be positive").
				WithContext("name", config.Name)
		}
	case ScheduleCron:
		if _, err := cronParser.Parse(config.Schedule.Spec); err != nil {
			return core.WrapError(core.ErrScheduleInvalid,
				fmt.Sprintf("invalid cron spec '%s'", config.Schedule.Spec), err)
		}
	default:
		return core.NewError(core.ErrScheduleInvalid, "unknown schedule kind").
			WithContext("kind", string(config.Schedule.Kind))
	}

	return nil
}

// execute 执行一次任务。同一任务不并发执行：上一次还在运行时跳过本次触发。
// 任务体没有超时限制，长时间运行的任务体会阻塞同一任务的后续调度。
func (s *Scheduler) execute(task *Task) {
	s.mu.Lock()
	if task.Status == StatusRunning {
		s.mu.Unlock()
		s.log.Warnf("任务正在运行，跳过本次执行: %s", task.Config.Name)
		return
	}
	now := time.Now()
	task.Status = StatusRunning
	task.StartedAt = &now
	task.Progress = 0
	task.RunCount++
	handler := s.handlers[task.Config.Kind]
	s.mu.Unlock()

	s.log.Debugf("开始执行任务: %s (%s)", task.Config.Name, task.Config.Kind)

	var err error
	if handler == nil {
		// 未知任务类型是可恢复状况：告警后按空操作完成
		s.log.Warnf("未知的任务类型 %s，任务按空操作完成: %s", task.Config.Kind, task.Config.Name)
	} else {
		err = s.runHandler(handler, task)
	}

	s.mu.Lock()
	done := time.Now()
	task.CompletedAt = &done
	if err != nil {
		task.Status = StatusFailed
		task.Err = err.Error()
		s.log.WithError(err).Errorf("任务执行失败: %s", task.Config.Name)
	} else {
		task.Status = StatusCompleted
		task.Progress = 100
		task.Err = ""
		s.log.Debugf("任务执行成功: %s", task.Config.Name)
	}
	s.mu.Unlock()
}

// runHandler 调用任务处理器，panic 按任务失败处理。
func (s *Scheduler) runHandler(handler Handler, task *Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task handler panic: %v", r)
		}
	}()
	return handler(s.ctx, task)
}

// runCleanup 内置 cleanup 处理器：触发缓存过期清理。
func (s *Scheduler) runCleanup(ctx context.Context, task *Task) error {
	if s.sweeper == nil {
		return nil
	}
	removed := s.sweeper.Sweep()
	s.log.Debugf("cleanup 任务移除了 %d 个过期条目", removed)
	return nil
}

// runNoop 扩展点的默认空实现。
func (s *Scheduler) runNoop(ctx context.Context, task *Task) error {
	return nil
}
