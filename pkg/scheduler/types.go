package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/dvnharish/plugins-sub002/pkg/core"
)

// TaskKind 后台任务类型
type TaskKind string

const (
	KindCleanup       TaskKind = "cleanup"       // 触发缓存过期清理
	KindOptimization  TaskKind = "optimization"  // 扩展点
	KindPreprocessing TaskKind = "preprocessing" // 扩展点
	KindIndexing      TaskKind = "indexing"      // 扩展点
	KindCustom        TaskKind = "custom"        // 调用方注册的处理器
)

// ScheduleKind 调度方式
type ScheduleKind string

const (
	ScheduleImmediate ScheduleKind = "immediate" // 注册后立即执行一次
	ScheduleInterval  ScheduleKind = "interval"  // 每隔 Interval 重复执行
	ScheduleOnce      ScheduleKind = "once"      // 延迟 Interval 后执行一次
	ScheduleCron      ScheduleKind = "cron"      // 按 cron 表达式执行（支持秒级）
)

// Schedule 定义任务的触发方式。
// interval/once 使用 Interval 字段，cron 使用 Spec 字段。
type Schedule struct {
	Kind     ScheduleKind  `yaml:"kind" json:"kind" mapstructure:"kind"`
	Interval time.Duration `yaml:"interval,omitempty" json:"interval,omitempty" mapstructure:"interval"`
	Spec     string        `yaml:"spec,omitempty" json:"spec,omitempty" mapstructure:"spec"`
	Enabled  bool          `yaml:"enabled" json:"enabled" mapstructure:"enabled"`
}

// TaskStatus 任务状态。状态机：pending -> running -> {completed | failed}。
// 重复调度的任务在下一次触发时从终态重新进入 running。
type TaskStatus string

const (
	StatusPending   TaskStatus = "pending"
	StatusRunning   TaskStatus = "running"
	StatusCompleted TaskStatus = "completed"
	StatusFailed    TaskStatus = "failed"
)

// TaskConfig 定义单个任务的配置
type TaskConfig struct {
	Name        string        `yaml:"name" json:"name" mapstructure:"name"`
	Description string        `yaml:"description" json:"description" mapstructure:"description"`
	Kind        TaskKind      `yaml:"kind" json:"kind" mapstructure:"kind"`
	Schedule    Schedule      `yaml:"schedule" json:"schedule" mapstructure:"schedule"`
	Priority    core.Priority `yaml:"priority" json:"priority" mapstructure:"priority"`
}

// TasksConfig 定义整个任务配置文件结构
type TasksConfig struct {
	Tasks []TaskConfig `yaml:"tasks" json:"tasks" mapstructure:"tasks"`
}

// Task 表示一个已注册的后台任务，由调度器独占持有，
// 只在调度器的执行循环中被修改。
type Task struct {
	ID          string       `json:"id"`
	Config      TaskConfig   `json:"config"`
	EntryID     cron.EntryID `json:"-"`
	Status      TaskStatus   `json:"status"`
	Progress    int          `json:"progress"` // 0-100
	StartedAt   *time.Time   `json:"started_at,omitempty"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"`
	Err         string       `json:"error,omitempty"`
	RunCount    int64        `json:"run_count"`
}

// Handler 任务处理器。任务体的失败只会被记录到任务状态里，
// 不会影响其他任务或调度器循环。
type Handler func(ctx context.Context, task *Task) error
