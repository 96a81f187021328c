package pool

import (
	"sync"

	"github.com/dvnharish/plugins-sub002/pkg/core"
	"github.com/dvnharish/plugins-sub002/pkg/logger"
)

// Registry 按名称管理对象池实例。每个池由恰好一个注册表持有，
// 不做跨实例共享。
type Registry struct {
	mu    sync.RWMutex
	pools map[string]*Pool
}

// NewRegistry 创建池注册表。
func NewRegistry() *Registry {
	return &Registry{
		pools: make(map[string]*Pool),
	}
}

// Create 创建并登记一个命名对象池。同名池已存在时返回 ErrPoolExists。
func (r *Registry) Create(name string, factory Factory, maxSize int) (*Pool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.pools[name]; exists {
		return nil, core.NewError(core.ErrPoolExists, "pool already exists").
			WithContext("name", name)
	}

	p, err := NewPool(name, factory, maxSize)
	if err != nil {
		return nil, err
	}

	r.pools[name] = p
	logger.WithComponent("pool").Infof("对象池已创建: %s (容量 %d)", name, maxSize)
	return p, nil
}

// Get 获取指定名称的池。
func (r *Registry) Get(name string) (*Pool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, exists := r.pools[name]
	if !exists {
		return nil, core.NewError(core.ErrPoolNotFound, "pool not found").
			WithContext("name", name)
	}
	return p, nil
}

// List 返回所有已登记的池。
func (r *Registry) List() []*Pool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	pools := make([]*Pool, 0, len(r.pools))
	for _, p := range r.pools {
		pools = append(pools, p)
	}
	return pools
}
