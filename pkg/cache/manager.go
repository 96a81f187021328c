package cache

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dvnharish/plugins-sub002/pkg/core"
	"github.com/dvnharish/plugins-sub002/pkg/logger"
)

// Config 缓存管理器配置。在管理器的生命周期内不可变，
// 更换淘汰策略需要重建管理器。
type Config struct {
	MaxSizeBytes       int64         `yaml:"max_size_bytes" mapstructure:"max_size_bytes"`             // 最大总字节数，0 表示不限制
	MaxEntries         int           `yaml:"max_entries" mapstructure:"max_entries"`                   // 最大条目数，0 表示不限制
	DefaultTTL         time.Duration `yaml:"default_ttl" mapstructure:"default_ttl"`                   // 默认生存时间
	SweepInterval      time.Duration `yaml:"sweep_interval" mapstructure:"sweep_interval"`             // 过期清理间隔，0 表示不启动定期清理
	EvictionPolicy     Policy        `yaml:"eviction_policy" mapstructure:"eviction_policy"`           // 淘汰策略
	PersistenceEnabled bool          `yaml:"persistence_enabled" mapstructure:"persistence_enabled"`   // 是否启用快照持久化
	PersistencePath    string        `yaml:"persistence_path" mapstructure:"persistence_path"`         // 快照目录（磁盘存储时使用）
}

// DefaultConfig 返回默认的缓存配置。
func DefaultConfig() Config {
	return Config{
		MaxSizeBytes:   64 * 1024 * 1024,
		MaxEntries:     10000,
		DefaultTTL:     5 * time.Minute,
		SweepInterval:  1 * time.Minute,
		EvictionPolicy: PolicyLRU,
	}
}

// Stats 缓存的点位统计信息。
// HitRate 是当前存活条目中被命中过（AccessCount > 0）的比例，
// 反映存量条目的利用率，而不是请求级别的命中率。
type Stats struct {
	TotalEntries   int       `json:"total_entries"`    // 当前条目数
	TotalSizeBytes int64     `json:"total_size_bytes"` // 当前总字节数
	HitRate        float64   `json:"hit_rate"`         // 被访问过的条目占比
	MissRate       float64   `json:"miss_rate"`        // 从未被访问的条目占比
	OldestEntry    time.Time `json:"oldest_entry"`     // 最早创建的条目时间
	NewestEntry    time.Time `json:"newest_entry"`     // 最晚创建的条目时间
	LastSweep      time.Time `json:"last_sweep"`       // 最后一次清理时间
}

// Manager 缓存管理器，组合条目存储、淘汰引擎、TTL 清理和快照持久化。
// 所有公开操作都由单个互斥锁保护，可在多 goroutine 下安全使用。
type Manager struct {
	mu        sync.RWMutex
	config    Config
	entries   map[string]*Entry
	totalSize int64
	lastSweep time.Time
	disposed  bool

	estimator core.SizeEstimator
	store     core.Store
	log       *logrus.Entry

	sweepTicker *time.Ticker
	stopSweep   chan struct{}
}

// NewManager 创建缓存管理器。store 为 nil 时不做持久化；
// 需要持久化时由调用方注入一个 core.Store 实现（见 pkg/persist）。
func NewManager(config Config, store core.Store) (*Manager, error) {
	if config.EvictionPolicy == "" {
		config.EvictionPolicy = PolicyLRU
	}
	if !ValidPolicy(string(config.EvictionPolicy)) {
		return nil, core.NewError(core.ErrConfigInvalid, "unknown eviction policy").
			WithContext("policy", string(config.EvictionPolicy))
	}
	if config.DefaultTTL <= 0 {
		config.DefaultTTL = DefaultConfig().DefaultTTL
	}

	m := &Manager{
		config:    config,
		entries:   make(map[string]*Entry),
		estimator: core.JSONSizeEstimator{},
		log:       logger.WithComponent("cache"),
		stopSweep: make(chan struct{}),
	}

	if config.PersistenceEnabled && store != nil {
		m.store = store
		m.restoreSnapshot()
	}

	if config.SweepInterval > 0 {
		m.sweepTicker = time.NewTicker(config.SweepInterval)
		go m.sweepLoop()
	}

	return m, nil
}

// SetEstimator 替换大小估算器。必须在并发使用管理器之前调用。
func (m *Manager) SetEstimator(estimator core.SizeEstimator) {
	if estimator != nil {
		m.estimator = estimator
	}
}

// Set 写入一个缓存条目，TTL 为 0 时使用默认 TTL，优先级为中。
// 对合法输入永不失败；容量压力通过淘汰解决而不是拒绝写入。
func (m *Manager) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return m.SetEntry(ctx, key, value, EntryOptions{TTL: ttl})
}

// SetEntry 写入一个带标签和优先级的缓存条目。
// 在插入前同步执行一次淘汰检查；淘汰之后无论是否腾出足够空间，
// 插入都无条件继续（淘汰是启发式的，不保证精确释放量）。
func (m *Manager) SetEntry(ctx context.Context, key string, value interface{}, opts EntryOptions) error {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = m.config.DefaultTTL
	}
	priority := opts.Priority
	if priority == core.PriorityUnspecified {
		priority = core.PriorityMedium
	}

	size, err := m.estimator.Estimate(value)
	if err != nil {
		// 估算失败按 0 字节处理，不中止写入
		m.log.WithError(err).Debugf("大小估算失败，条目按 0 字节记账: %s", key)
		size = 0
	}

	now := time.Now()
	entry := &Entry{
		Key:            key,
		Value:          value,
		CreatedAt:      now,
		TTL:            ttl,
		LastAccessedAt: now,
		SizeBytes:      size,
		Tags:           opts.Tags,
		Priority:       priority,
	}

	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return core.ErrManagerDisposed
	}

	// 覆盖写先移除旧条目，避免容量重复记账
	if old, exists := m.entries[key]; exists {
		m.totalSize -= old.SizeBytes
		delete(m.entries, key)
	}

	m.evictLocked(entry)

	m.entries[key] = entry
	m.totalSize += entry.SizeBytes
	m.mu.Unlock()

	m.persistAsync()
	return nil
}

// Get 读取一个缓存条目。条目不存在或已过期时返回 ErrCacheMiss；
// 过期条目作为副作用被立即移除。Get 本身绝不触发淘汰。
func (m *Manager) Get(ctx context.Context, key string) (interface{}, error) {
	now := time.Now()

	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return nil, core.ErrManagerDisposed
	}

	entry, exists := m.entries[key]
	if !exists {
		m.mu.Unlock()
		return nil, core.NewError(core.ErrCacheMiss, "cache miss").WithContext("key", key)
	}

	if entry.IsExpired(now) {
		m.totalSize -= entry.SizeBytes
		delete(m.entries, key)
		m.mu.Unlock()
		m.persistAsync()
		return nil, core.NewError(core.ErrCacheMiss, "cache entry expired").WithContext("key", key)
	}

	entry.touch(now)
	value := entry.Value
	m.mu.Unlock()

	return value, nil
}

// Delete 删除一个缓存条目，返回是否确实删除了条目。
func (m *Manager) Delete(ctx context.Context, key string) bool {
	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return false
	}
	entry, exists := m.entries[key]
	if exists {
		m.totalSize -= entry.SizeBytes
		delete(m.entries, key)
	}
	m.mu.Unlock()

	if exists {
		m.persistAsync()
	}
	return exists
}

// Clear 清空缓存。不带标签时移除所有条目；
// 带标签时只移除标签集合与给定标签有交集的条目。幂等。
func (m *Manager) Clear(ctx context.Context, tags ...string) error {
	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return core.ErrManagerDisposed
	}

	removed := 0
	if len(tags) == 0 {
		removed = len(m.entries)
		m.entries = make(map[string]*Entry)
		m.totalSize = 0
	} else {
		for key, entry := range m.entries {
			if entry.HasAnyTag(tags) {
				m.totalSize -= entry.SizeBytes
				delete(m.entries, key)
				removed++
			}
		}
	}
	m.mu.Unlock()

	if removed > 0 {
		m.log.Debugf("已清除 %d 个缓存条目", removed)
		m.persistAsync()
	}
	return nil
}

// Stats 返回当前缓存的统计信息。
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := Stats{
		TotalEntries:   len(m.entries),
		TotalSizeBytes: m.totalSize,
		LastSweep:      m.lastSweep,
	}

	accessed := 0
	for _, entry := range m.entries {
		if entry.AccessCount > 0 {
			accessed++
		}
		if stats.OldestEntry.IsZero() || entry.CreatedAt.Before(stats.OldestEntry) {
			stats.OldestEntry = entry.CreatedAt
		}
		if entry.CreatedAt.After(stats.NewestEntry) {
			stats.NewestEntry = entry.CreatedAt
		}
	}

	if len(m.entries) > 0 {
		stats.HitRate = float64(accessed) / float64(len(m.entries))
		stats.MissRate = 1 - stats.HitRate
	}

	return stats
}

// Sweep 移除所有过期条目，返回移除数量。幂等，可与 Set/Get 任意交错。
func (m *Manager) Sweep() int {
	now := time.Now()

	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return 0
	}

	removed := 0
	for key, entry := range m.entries {
		if entry.IsExpired(now) {
			m.totalSize -= entry.SizeBytes
			delete(m.entries, key)
			removed++
		}
	}
	m.lastSweep = now
	m.mu.Unlock()

	if removed > 0 {
		m.log.Debugf("定期清理移除了 %d 个过期条目", removed)
		m.persistAsync()
	}
	return removed
}

// Dispose 停止清理定时器并关闭持久化存储。幂等。
func (m *Manager) Dispose() error {
	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return nil
	}
	m.disposed = true
	m.mu.Unlock()

	if m.sweepTicker != nil {
		m.sweepTicker.Stop()
	}
	close(m.stopSweep)

	if m.store != nil {
		if err := m.store.Close(); err != nil {
			m.log.WithError(err).Warn("关闭持久化存储失败")
		}
	}
	return nil
}

// evictLocked 在插入 incoming 之前按需淘汰条目。调用方需要持有写锁。
func (m *Manager) evictLocked(incoming *Entry) {
	needed := victimCount(incoming.SizeBytes, m.totalSize, m.config.MaxSizeBytes,
		len(m.entries), m.config.MaxEntries)
	if needed == 0 {
		return
	}

	victims := rankVictims(m.entries, m.config.EvictionPolicy)
	for i := 0; i < needed && i < len(victims); i++ {
		victim := victims[i]
		m.totalSize -= victim.SizeBytes
		delete(m.entries, victim.Key)
		m.log.WithFields(logrus.Fields{
			"key":      victim.Key,
			"policy":   string(m.config.EvictionPolicy),
			"priority": victim.Priority.String(),
		}).Debug("淘汰缓存条目")
	}
}

// sweepLoop 定期清理过期条目的工作协程。
func (m *Manager) sweepLoop() {
	for {
		select {
		case <-m.sweepTicker.C:
			m.Sweep()
		case <-m.stopSweep:
			return
		}
	}
}

var _ core.CacheSweeper = (*Manager)(nil)
