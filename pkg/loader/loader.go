// Package loader 提供按需分页加载器：包装外部的分页获取函数，
// 增量拉取数据并累积，同一时刻最多允许一次在途加载。
package loader

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/dvnharish/plugins-sub002/pkg/logger"
)

// DefaultBatchSize 未指定批次大小时使用的默认值。
const DefaultBatchSize = 50

// FetchFunc 调用方提供的分页获取函数。
type FetchFunc func(ctx context.Context, offset, limit int) ([]interface{}, error)

// PagedLoader 分页懒加载器。
// Load 采用至多一次在途的策略：已有加载在进行时，新的调用立即返回
// 空批次而不是排队，因此累积序列中不会出现重复数据。
type PagedLoader struct {
	mu        sync.Mutex
	fetch     FetchFunc
	batchSize int
	items     []interface{}
	loading   bool
	loaded    bool
	gen       uint64 // Reset 递增，用于丢弃跨越重置的过期批次
	log       *logrus.Entry
}

// NewPagedLoader 创建分页加载器。batchSize 不大于 0 时使用默认批次大小。
func NewPagedLoader(fetch FetchFunc, batchSize int) *PagedLoader {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &PagedLoader{
		fetch:     fetch,
		batchSize: batchSize,
		log:       logger.WithComponent("loader"),
	}
}

// Load 拉取下一批数据并追加到累积序列。
// 已在加载中或已全部加载时返回空批次；获取到的批次小于请求的
// 批次大小时标记为全部加载完成。获取函数的错误只传播给本次调用方。
func (l *PagedLoader) Load(ctx context.Context) ([]interface{}, error) {
	l.mu.Lock()
	if l.loading || l.loaded {
		l.mu.Unlock()
		return []interface{}{}, nil
	}
	l.loading = true
	gen := l.gen
	offset := len(l.items)
	limit := l.batchSize
	l.mu.Unlock()

	// 挂起点：获取函数在锁外执行
	batch, err := l.fetch(ctx, offset, limit)

	l.mu.Lock()
	defer l.mu.Unlock()

	// 挂起期间发生了 Reset：批次基于过期的偏移量，直接丢弃，
	// 不触碰重置后的状态
	if gen != l.gen {
		return []interface{}{}, nil
	}
	l.loading = false

	if err != nil {
		l.log.WithError(err).Debugf("分页获取失败: offset=%d limit=%d", offset, limit)
		return nil, err
	}

	l.items = append(l.items, batch...)
	if len(batch) < limit {
		l.loaded = true
	}

	return batch, nil
}

// IsLoading 返回是否有加载正在进行。
func (l *PagedLoader) IsLoading() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loading
}

// IsLoaded 返回是否已全部加载完成。
func (l *PagedLoader) IsLoaded() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loaded
}

// Items 返回累积序列的副本。
func (l *PagedLoader) Items() []interface{} {
	l.mu.Lock()
	defer l.mu.Unlock()

	items := make([]interface{}, len(l.items))
	copy(items, l.items)
	return items
}

// Len 返回累积序列的长度。
func (l *PagedLoader) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.items)
}

// Reset 清空累积状态，允许重新加载。
// 正在挂起的加载不会被中断，但其批次在完成时会被丢弃。
func (l *PagedLoader) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.items = nil
	l.loaded = false
	l.loading = false
	l.gen++
}
