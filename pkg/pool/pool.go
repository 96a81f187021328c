// Package pool 提供固定容量的对象池和按名称管理池实例的注册表。
// 池在创建时用工厂函数预填满，不自动扩容；对象在 available 和
// allocated 两个集合之间移动，任何时刻一个对象只属于其中一个集合。
package pool

import (
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/dvnharish/plugins-sub002/pkg/core"
	"github.com/dvnharish/plugins-sub002/pkg/logger"
)

// Stats 对象池统计信息。
// HitRate 定义为 TotalAllocations / (TotalAllocations + TotalDeallocations)，
// MissRate 为失败分配占全部分配尝试的比例。计数器只增不减。
type Stats struct {
	TotalAllocations   int64   `json:"total_allocations"`
	TotalDeallocations int64   `json:"total_deallocations"`
	Misses             int64   `json:"misses"`
	HitRate            float64 `json:"hit_rate"`
	MissRate           float64 `json:"miss_rate"`
}

// Factory 创建池中的一个对象。返回值必须是可比较的
// （通常是指针），对象的身份用于归还时的成员检查。
type Factory func() interface{}

// Pool 固定容量的自由表分配器，独立于缓存使用。
type Pool struct {
	mu        sync.Mutex
	id        string
	name      string
	maxSize   int
	available []interface{}
	allocated map[interface{}]struct{}

	totalAllocations   int64
	totalDeallocations int64
	misses             int64

	log *logrus.Entry
}

// NewPool 创建对象池并用工厂函数预填满 maxSize 个对象。
func NewPool(name string, factory Factory, maxSize int) (*Pool, error) {
	if name == "" {
		return nil, core.NewError(core.ErrConfigInvalid, "pool name cannot be empty")
	}
	if factory == nil {
		return nil, core.NewError(core.ErrConfigInvalid, "pool factory cannot be nil")
	}
	if maxSize <= 0 {
		return nil, core.NewError(core.ErrConfigInvalid, "pool max size must be positive").
			WithContext("name", name)
	}

	p := &Pool{
		id:        uuid.New().String(),
		name:      name,
		maxSize:   maxSize,
		available: make([]interface{}, 0, maxSize),
		allocated: make(map[interface{}]struct{}, maxSize),
		log:       logger.WithComponent("pool"),
	}

	for i := 0; i < maxSize; i++ {
		p.available = append(p.available, factory())
	}

	return p, nil
}

// Allocate 从池中取出一个对象。池空时记录一次 miss 并返回
// ErrPoolExhausted，不自动扩容。
func (p *Pool) Allocate() (interface{}, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.available) == 0 {
		p.misses++
		return nil, core.NewError(core.ErrPoolExhausted, "no object available in pool").
			WithContext("pool", p.name)
	}

	item := p.available[len(p.available)-1]
	p.available = p.available[:len(p.available)-1]
	p.allocated[item] = struct{}{}
	p.totalAllocations++

	return item, nil
}

// Deallocate 将对象归还到池中。对象不是从本池分配出去的时返回 false，
// 这是一个布尔失败信号而不是错误。
func (p *Pool) Deallocate(item interface{}) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.allocated[item]; !ok {
		return false
	}

	delete(p.allocated, item)
	p.available = append(p.available, item)
	p.totalDeallocations++
	return true
}

// Stats 返回池的统计信息。
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	stats := Stats{
		TotalAllocations:   p.totalAllocations,
		TotalDeallocations: p.totalDeallocations,
		Misses:             p.misses,
	}

	if total := p.totalAllocations + p.totalDeallocations; total > 0 {
		stats.HitRate = float64(p.totalAllocations) / float64(total)
	}
	if attempts := p.totalAllocations + p.misses; attempts > 0 {
		stats.MissRate = float64(p.misses) / float64(attempts)
	}

	return stats
}

// ID 返回池的唯一标识。
func (p *Pool) ID() string { return p.id }

// Name 返回池名称。
func (p *Pool) Name() string { return p.name }

// MaxSize 返回池容量。
func (p *Pool) MaxSize() int { return p.maxSize }

// Available 返回当前可用对象数。
func (p *Pool) Available() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.available)
}

// Allocated 返回当前已借出对象数。
func (p *Pool) Allocated() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.allocated)
}
