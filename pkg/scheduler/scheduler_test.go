package scheduler

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvnharish/plugins-sub002/pkg/core"
)

// countingSweeper 记录清理调用次数的假清理目标
type countingSweeper struct {
	mu    sync.Mutex
	calls int
}

func (c *countingSweeper) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return 0
}

func (c *countingSweeper) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func immediateConfig(name string, kind TaskKind) TaskConfig {
	return TaskConfig{
		Name: name,
		Kind: kind,
		Schedule: Schedule{
			Kind:    ScheduleImmediate,
			Enabled: true,
		},
	}
}

// TestScheduler_RegisterImmediate 立即任务注册后自动执行一次
func TestScheduler_RegisterImmediate(t *testing.T) {
	s := NewScheduler(nil)
	defer s.Stop()

	done := make(chan struct{})
	s.SetHandler(KindCustom, func(ctx context.Context, task *Task) error {
		close(done)
		return nil
	})

	task, err := s.Register(immediateConfig("immediate-task", KindCustom))
	require.NoError(t, err)
	assert.NotEmpty(t, task.ID)
	assert.Equal(t, core.PriorityMedium, task.Config.Priority)

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatal("立即任务没有执行")
	}

	// 等待状态机落到终态
	time.Sleep(50 * time.Millisecond)

	got, err := s.Get("immediate-task")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, 100, got.Progress)
	assert.Equal(t, int64(1), got.RunCount)
	assert.NotNil(t, got.StartedAt)
	assert.NotNil(t, got.CompletedAt)
}

// TestScheduler_RegisterDuplicate 重复注册同名任务被拒绝
func TestScheduler_RegisterDuplicate(t *testing.T) {
	s := NewScheduler(nil)
	defer s.Stop()

	cfg := TaskConfig{
		Name:     "dup",
		Kind:     KindCustom,
		Schedule: Schedule{Kind: ScheduleImmediate, Enabled: false},
	}

	_, err := s.Register(cfg)
	require.NoError(t, err)

	_, err = s.Register(cfg)
	assert.Error(t, err)
	assert.True(t, core.IsCode(err, core.ErrTaskExists))
}

// TestScheduler_ValidateConfig 配置校验
func TestScheduler_ValidateConfig(t *testing.T) {
	s := NewScheduler(nil)
	defer s.Stop()

	// 空任务名
	_, err := s.Register(TaskConfig{
		Kind:     KindCustom,
		Schedule: Schedule{Kind: ScheduleImmediate},
	})
	assert.True(t, core.IsCode(err, core.ErrScheduleInvalid))

	// interval 调度缺少间隔
	_, err = s.Register(TaskConfig{
		Name:     "no-interval",
		Kind:     KindCustom,
		Schedule: Schedule{Kind: ScheduleInterval},
	})
	assert.True(t, core.IsCode(err, core.ErrScheduleInvalid))

	// 非法 cron 表达式
	_, err = s.Register(TaskConfig{
		Name:     "bad-cron",
		Kind:     KindCustom,
		Schedule: Schedule{Kind: ScheduleCron, Spec: "not a cron"},
	})
	assert.True(t, core.IsCode(err, core.ErrScheduleInvalid))

	// 未知调度方式
	_, err = s.Register(TaskConfig{
		Name:     "bad-kind",
		Kind:     KindCustom,
		Schedule: Schedule{Kind: ScheduleKind("hourly")},
	})
	assert.True(t, core.IsCode(err, core.ErrScheduleInvalid))

	// 合法的秒级 cron 表达式
	_, err = s.Register(TaskConfig{
		Name:     "good-cron",
		Kind:     KindCustom,
		Schedule: Schedule{Kind: ScheduleCron, Spec: "*/5 * * * * *"},
	})
	assert.NoError(t, err)
}

// TestScheduler_DisabledNotArmed 未启用的任务只注册不布防
func TestScheduler_DisabledNotArmed(t *testing.T) {
	s := NewScheduler(nil)
	defer s.Stop()

	executed := false
	s.SetHandler(KindCustom, func(ctx context.Context, task *Task) error {
		executed = true
		return nil
	})

	cfg := immediateConfig("disabled", KindCustom)
	cfg.Schedule.Enabled = false

	_, err := s.Register(cfg)
	require.NoError(t, err)

	time.Sleep(100 * time.Millisecond)

	got, err := s.Get("disabled")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)
	assert.Equal(t, int64(0), got.RunCount)
	assert.False(t, executed)
}

// TestScheduler_TaskFailure 处理器失败只影响自身任务的状态
func TestScheduler_TaskFailure(t *testing.T) {
	s := NewScheduler(nil)
	defer s.Stop()

	s.SetHandler(KindCustom, func(ctx context.Context, task *Task) error {
		return fmt.Errorf("模拟执行失败")
	})

	okDone := make(chan struct{})
	s.SetHandler(KindOptimization, func(ctx context.Context, task *Task) error {
		close(okDone)
		return nil
	})

	_, err := s.Register(immediateConfig("failing", KindCustom))
	require.NoError(t, err)
	_, err = s.Register(immediateConfig("healthy", KindOptimization))
	require.NoError(t, err)

	select {
	case <-okDone:
	case <-time.After(1 * time.Second):
		t.Fatal("健康任务没有执行")
	}
	time.Sleep(50 * time.Millisecond)

	failed, err := s.Get("failing")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, failed.Status)
	assert.Contains(t, failed.Err, "模拟执行失败")

	healthy, err := s.Get("healthy")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, healthy.Status)
}

// TestScheduler_HandlerPanic 处理器 panic 按任务失败处理，不影响调度器
func TestScheduler_HandlerPanic(t *testing.T) {
	s := NewScheduler(nil)
	defer s.Stop()

	s.SetHandler(KindCustom, func(ctx context.Context, task *Task) error {
		panic("处理器崩溃")
	})

	_, err := s.Register(immediateConfig("panicking", KindCustom))
	require.NoError(t, err)

	time.Sleep(200 * time.Millisecond)

	got, err := s.Get("panicking")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Contains(t, got.Err, "panic")
}

// TestScheduler_UnknownKind 未知任务类型告警后按空操作完成
func TestScheduler_UnknownKind(t *testing.T) {
	s := NewScheduler(nil)
	defer s.Stop()

	_, err := s.Register(immediateConfig("mystery", TaskKind("bogus")))
	require.NoError(t, err)

	time.Sleep(200 * time.Millisecond)

	got, err := s.Get("mystery")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
}

// TestScheduler_CleanupInvokesSweeper cleanup 任务驱动清理目标
func TestScheduler_CleanupInvokesSweeper(t *testing.T) {
	sweeper := &countingSweeper{}
	s := NewScheduler(sweeper)
	defer s.Stop()

	_, err := s.Register(immediateConfig("cache-cleanup", KindCleanup))
	require.NoError(t, err)

	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, 1, sweeper.Calls())

	// 手动触发再执行一次
	require.NoError(t, s.Run("cache-cleanup"))
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, 2, sweeper.Calls())

	got, err := s.Get("cache-cleanup")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.RunCount)
}

// TestScheduler_OnceTask once 任务延迟执行且只执行一次
func TestScheduler_OnceTask(t *testing.T) {
	s := NewScheduler(nil)
	defer s.Stop()

	var mu sync.Mutex
	runs := 0
	s.SetHandler(KindCustom, func(ctx context.Context, task *Task) error {
		mu.Lock()
		runs++
		mu.Unlock()
		return nil
	})

	_, err := s.Register(TaskConfig{
		Name: "delayed",
		Kind: KindCustom,
		Schedule: Schedule{
			Kind:     ScheduleOnce,
			Interval: 50 * time.Millisecond,
			Enabled:  true,
		},
	})
	require.NoError(t, err)

	// 延迟窗口内还未执行
	got, err := s.Get("delayed")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)

	time.Sleep(300 * time.Millisecond)

	mu.Lock()
	assert.Equal(t, 1, runs)
	mu.Unlock()

	got, err = s.Get("delayed")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, int64(1), got.RunCount)
}

// TestScheduler_IntervalTask interval 任务周期性重复执行
func TestScheduler_IntervalTask(t *testing.T) {
	if testing.Short() {
		t.Skip("跳过耗时的周期调度测试")
	}

	s := NewScheduler(nil)
	defer s.Stop()

	var mu sync.Mutex
	runs := 0
	s.SetHandler(KindCustom, func(ctx context.Context, task *Task) error {
		mu.Lock()
		runs++
		mu.Unlock()
		return nil
	})

	_, err := s.Register(TaskConfig{
		Name: "periodic",
		Kind: KindCustom,
		Schedule: Schedule{
			Kind:     ScheduleInterval,
			Interval: 1 * time.Second,
			Enabled:  true,
		},
	})
	require.NoError(t, err)

	s.Start()
	time.Sleep(2500 * time.Millisecond)

	mu.Lock()
	got := runs
	mu.Unlock()
	assert.GreaterOrEqual(t, got, 2, "周期任务应至少执行两次")

	task, err := s.Get("periodic")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, task.RunCount, int64(2))
}

// TestScheduler_GetAndList 任务查询返回副本
func TestScheduler_GetAndList(t *testing.T) {
	s := NewScheduler(nil)
	defer s.Stop()

	_, err := s.Get("missing")
	assert.True(t, core.IsCode(err, core.ErrTaskNotFound))

	err = s.Run("missing")
	assert.True(t, core.IsCode(err, core.ErrTaskNotFound))

	cfg := immediateConfig("listed", KindCustom)
	cfg.Schedule.Enabled = false
	_, err = s.Register(cfg)
	require.NoError(t, err)

	tasks := s.List()
	require.Len(t, tasks, 1)

	// 修改副本不影响调度器内部状态
	tasks[0].Status = StatusFailed
	got, err := s.Get("listed")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)
}
