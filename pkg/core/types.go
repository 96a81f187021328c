// Package core 定义了性能层的核心接口、数据结构和错误分类。
// 这些类型为各子包（cache, scheduler, pool, persist）提供统一的抽象和交互契约。
package core

import (
	"context"
	"encoding/json"
	"strings"
)

// Priority 表示缓存条目或后台任务的优先级。
// 数值越小优先级越低；淘汰时低优先级条目先被移除。
type Priority int

const (
	// PriorityUnspecified 表示未指定优先级，按中优先级处理。
	PriorityUnspecified Priority = iota
	PriorityLow                  // 低优先级
	PriorityMedium               // 中优先级（默认）
	PriorityHigh                 // 高优先级
	PriorityCritical             // 关键优先级
)

// String 返回优先级的字符串表示。
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityMedium:
		return "medium"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return "medium"
	}
}

// ParsePriority 将字符串解析为优先级，无法识别时返回中优先级。
func ParsePriority(s string) Priority {
	switch strings.ToLower(s) {
	case "low":
		return PriorityLow
	case "medium":
		return PriorityMedium
	case "high":
		return PriorityHigh
	case "critical":
		return PriorityCritical
	default:
		return PriorityMedium
	}
}

// Store 定义了持久化存储的行为。
// 缓存快照以字节流形式写入，写入是尽力而为的：失败只记录日志，
// 不会传播给缓存操作的调用方。
type Store interface {
	// Put 保存一条记录到存储后端。
	Put(ctx context.Context, key string, value []byte) error
	// Get 根据键从存储后端读取一条记录。
	Get(ctx context.Context, key string) ([]byte, error)
	// Close 关闭存储并释放所有资源。
	Close() error
}

// SizeEstimator 估算缓存值的序列化字节大小。
// 估算失败时调用方应将条目大小记为 0，而不是中止写入。
type SizeEstimator interface {
	Estimate(value interface{}) (int64, error)
}

// JSONSizeEstimator 基于 JSON 规范化序列化的默认大小估算器。
type JSONSizeEstimator struct{}

// Estimate 估算值的大小（字节）。
func (JSONSizeEstimator) Estimate(value interface{}) (int64, error) {
	switch v := value.(type) {
	case string:
		return int64(len(v)), nil
	case []byte:
		return int64(len(v)), nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return 0, WrapError(ErrSerializeFailed, "size estimation failed", err)
	}
	return int64(len(data)), nil
}

// CacheSweeper 定义了可被后台任务触发的过期清理行为。
// 调度器的 cleanup 任务类型通过此接口驱动缓存清理。
type CacheSweeper interface {
	// Sweep 移除所有过期条目，返回被移除的条目数。
	Sweep() int
}

var _ SizeEstimator = JSONSizeEstimator{}
