// Package cache 提供性能层的核心缓存实现：带标签和优先级的条目存储、
// 多种淘汰策略、TTL 定期清理以及尽力而为的快照持久化。
package cache

import (
	"time"

	"github.com/dvnharish/plugins-sub002/pkg/core"
)

// Entry 代表缓存中的一个条目。
type Entry struct {
	Key            string        `json:"key"`              // 缓存键，在条目存储内唯一
	Value          interface{}   `json:"value"`            // 缓存的值
	CreatedAt      time.Time     `json:"created_at"`       // 创建时间
	TTL            time.Duration `json:"ttl"`              // 生存时间
	AccessCount    int64         `json:"access_count"`     // 命中次数，单调递增
	LastAccessedAt time.Time     `json:"last_accessed_at"` // 最后访问时间，每次命中更新
	SizeBytes      int64         `json:"size_bytes"`       // 估算的序列化大小（字节）
	Tags           []string      `json:"tags,omitempty"`   // 标签集合，用于批量失效
	Priority       core.Priority `json:"priority"`         // 优先级，淘汰时低优先级先被移除
}

// IsExpired 判断条目在给定时刻是否已过期。
func (e *Entry) IsExpired(now time.Time) bool {
	return now.Sub(e.CreatedAt) > e.TTL
}

// HasAnyTag 判断条目的标签集合是否与给定标签有交集。
func (e *Entry) HasAnyTag(tags []string) bool {
	for _, want := range tags {
		for _, have := range e.Tags {
			if have == want {
				return true
			}
		}
	}
	return false
}

// touch 更新条目的访问统计。调用方需要持有管理器的写锁。
func (e *Entry) touch(now time.Time) {
	e.AccessCount++
	e.LastAccessedAt = now
}

// EntryOptions 是 SetEntry 的可选参数。
// 零值字段使用管理器的默认值：TTL 取 DefaultTTL，Priority 取中优先级。
type EntryOptions struct {
	TTL      time.Duration
	Tags     []string
	Priority core.Priority
}
