package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvnharish/plugins-sub002/pkg/core"
	"github.com/dvnharish/plugins-sub002/pkg/persist"
)

func newTestManager(t *testing.T, config Config) *Manager {
	t.Helper()
	m, err := NewManager(config, nil)
	require.NoError(t, err)
	t.Cleanup(func() { m.Dispose() })
	return m
}

// 测试Manager基本操作
func TestManager_BasicOperations(t *testing.T) {
	m := newTestManager(t, Config{
		MaxEntries:    100,
		DefaultTTL:    5 * time.Minute,
		SweepInterval: 1 * time.Minute,
	})

	ctx := context.Background()

	err := m.Set(ctx, "key1", "value1", 0)
	assert.NoError(t, err)

	value, err := m.Get(ctx, "key1")
	assert.NoError(t, err)
	assert.Equal(t, "value1", value)

	// 不存在的键
	_, err = m.Get(ctx, "nonexistent")
	assert.Error(t, err)
	assert.True(t, core.IsCode(err, core.ErrCacheMiss))

	// Delete 返回是否确实删除
	assert.True(t, m.Delete(ctx, "key1"))
	assert.False(t, m.Delete(ctx, "key1"))

	_, err = m.Get(ctx, "key1")
	assert.True(t, core.IsCode(err, core.ErrCacheMiss))
}

// TestManager_TTL 验证过期条目在Get时被删除
func TestManager_TTL(t *testing.T) {
	m := newTestManager(t, Config{
		MaxEntries: 100,
		DefaultTTL: 5 * time.Minute,
	})

	ctx := context.Background()

	err := m.Set(ctx, "key1", "value1", 50*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 1, m.Stats().TotalEntries)

	time.Sleep(60 * time.Millisecond)

	// 过期条目读取返回缺失，并作为副作用被移除
	_, err = m.Get(ctx, "key1")
	assert.Error(t, err)
	assert.True(t, core.IsCode(err, core.ErrCacheMiss))
	assert.Equal(t, 0, m.Stats().TotalEntries)
}

// TestManager_Sweep 验证定期清理移除所有过期条目
func TestManager_Sweep(t *testing.T) {
	m := newTestManager(t, Config{
		MaxEntries: 100,
		DefaultTTL: 5 * time.Minute,
	})

	ctx := context.Background()

	m.Set(ctx, "short1", "v", 30*time.Millisecond)
	m.Set(ctx, "short2", "v", 30*time.Millisecond)
	m.Set(ctx, "long", "v", 1*time.Hour)

	time.Sleep(50 * time.Millisecond)

	removed := m.Sweep()
	assert.Equal(t, 2, removed)
	assert.Equal(t, 1, m.Stats().TotalEntries)

	// 清理是幂等的
	assert.Equal(t, 0, m.Sweep())

	// 清理后存储中不存在过期条目
	_, err := m.Get(ctx, "long")
	assert.NoError(t, err)
}

// TestManager_ClearByTags 验证按标签清除只移除有交集的条目且幂等
func TestManager_ClearByTags(t *testing.T) {
	m := newTestManager(t, Config{
		MaxEntries: 100,
		DefaultTTL: 5 * time.Minute,
	})

	ctx := context.Background()

	m.SetEntry(ctx, "a1", "v", EntryOptions{Tags: []string{"a"}})
	m.SetEntry(ctx, "a2", "v", EntryOptions{Tags: []string{"a", "b"}})
	m.SetEntry(ctx, "b1", "v", EntryOptions{Tags: []string{"b"}})
	m.SetEntry(ctx, "none", "v", EntryOptions{})

	err := m.Clear(ctx, "a")
	require.NoError(t, err)

	_, err = m.Get(ctx, "a1")
	assert.True(t, core.IsCode(err, core.ErrCacheMiss))
	_, err = m.Get(ctx, "a2")
	assert.True(t, core.IsCode(err, core.ErrCacheMiss))

	// 其余条目不受影响
	_, err = m.Get(ctx, "b1")
	assert.NoError(t, err)
	_, err = m.Get(ctx, "none")
	assert.NoError(t, err)

	// 再次清除是空操作
	err = m.Clear(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 2, m.Stats().TotalEntries)

	// 不带标签清空全部
	err = m.Clear(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, m.Stats().TotalEntries)
}

// TestManager_Stats 验证统计信息。HitRate 是存量条目的利用率，
// 不是请求级命中率。
func TestManager_Stats(t *testing.T) {
	m := newTestManager(t, Config{
		MaxEntries: 100,
		DefaultTTL: 5 * time.Minute,
	})

	ctx := context.Background()

	stats := m.Stats()
	assert.Equal(t, 0, stats.TotalEntries)
	assert.Equal(t, float64(0), stats.HitRate)

	m.Set(ctx, "key1", "value1", 0)
	time.Sleep(5 * time.Millisecond)
	m.Set(ctx, "key2", "value2", 0)

	m.Get(ctx, "key1")

	stats = m.Stats()
	assert.Equal(t, 2, stats.TotalEntries)
	assert.True(t, stats.TotalSizeBytes > 0)
	assert.Equal(t, 0.5, stats.HitRate)
	assert.Equal(t, 0.5, stats.MissRate)
	assert.True(t, stats.OldestEntry.Before(stats.NewestEntry))
}

// TestManager_LRUEviction 端到端场景：maxEntries=2，写入A、B后访问A，
// 再写入C触发淘汰，被淘汰的必须是最久未访问的B。
func TestManager_LRUEviction(t *testing.T) {
	m := newTestManager(t, Config{
		MaxEntries:     2,
		DefaultTTL:     5 * time.Minute,
		EvictionPolicy: PolicyLRU,
	})

	ctx := context.Background()

	m.Set(ctx, "A", "va", 0)
	time.Sleep(5 * time.Millisecond)
	m.Set(ctx, "B", "vb", 0)
	time.Sleep(5 * time.Millisecond)

	_, err := m.Get(ctx, "A")
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)

	m.Set(ctx, "C", "vc", 0)

	_, err = m.Get(ctx, "B")
	assert.True(t, core.IsCode(err, core.ErrCacheMiss), "B 应该被淘汰")

	_, err = m.Get(ctx, "A")
	assert.NoError(t, err)
	_, err = m.Get(ctx, "C")
	assert.NoError(t, err)
	assert.Equal(t, 2, m.Stats().TotalEntries)
}

// TestManager_PriorityDominatesEviction 优先级支配策略顺序：
// 低优先级条目即使刚被访问过也先于高优先级条目被淘汰。
func TestManager_PriorityDominatesEviction(t *testing.T) {
	m := newTestManager(t, Config{
		MaxEntries:     2,
		DefaultTTL:     5 * time.Minute,
		EvictionPolicy: PolicyLRU,
	})

	ctx := context.Background()

	m.SetEntry(ctx, "high", "v", EntryOptions{Priority: core.PriorityHigh})
	time.Sleep(5 * time.Millisecond)
	m.SetEntry(ctx, "low", "v", EntryOptions{Priority: core.PriorityLow})
	time.Sleep(5 * time.Millisecond)

	// low 比 high 更近被访问，但 LRU 顺序被优先级覆盖
	_, err := m.Get(ctx, "low")
	require.NoError(t, err)

	m.Set(ctx, "new", "v", 0)

	_, err = m.Get(ctx, "low")
	assert.True(t, core.IsCode(err, core.ErrCacheMiss), "低优先级条目应该先被淘汰")
	_, err = m.Get(ctx, "high")
	assert.NoError(t, err)
}

// TestManager_SizeEviction 验证字节超限时按批次淘汰：
// 每步约释放十分之一容量，ceil(newSize/(maxSize/10)) 个条目。
func TestManager_SizeEviction(t *testing.T) {
	m := newTestManager(t, Config{
		MaxSizeBytes:   100,
		DefaultTTL:     5 * time.Minute,
		EvictionPolicy: PolicyFIFO,
	})

	ctx := context.Background()

	// 5 个各 20 字节的条目，总大小正好 100
	for i := 0; i < 5; i++ {
		err := m.Set(ctx, fmt.Sprintf("key%d", i), "01234567890123456789", 0)
		require.NoError(t, err)
		time.Sleep(2 * time.Millisecond)
	}
	require.Equal(t, int64(100), m.Stats().TotalSizeBytes)

	// 插入 25 字节的条目：step=10，ceil(25/10)=3 个条目被淘汰
	err := m.Set(ctx, "big", "0123456789012345678901234", 0)
	require.NoError(t, err)

	stats := m.Stats()
	assert.Equal(t, 3, stats.TotalEntries)
	assert.Equal(t, int64(65), stats.TotalSizeBytes)

	// FIFO：最早创建的三个被淘汰
	for i := 0; i < 3; i++ {
		_, err := m.Get(ctx, fmt.Sprintf("key%d", i))
		assert.True(t, core.IsCode(err, core.ErrCacheMiss))
	}
	_, err = m.Get(ctx, "big")
	assert.NoError(t, err)
}

// TestManager_GetNeverEvicts Get 操作本身绝不触发淘汰
func TestManager_GetNeverEvicts(t *testing.T) {
	m := newTestManager(t, Config{
		MaxEntries:     2,
		DefaultTTL:     5 * time.Minute,
		EvictionPolicy: PolicyLRU,
	})

	ctx := context.Background()

	m.Set(ctx, "a", "v", 0)
	m.Set(ctx, "b", "v", 0)

	for i := 0; i < 10; i++ {
		m.Get(ctx, "a")
		m.Get(ctx, "b")
	}

	assert.Equal(t, 2, m.Stats().TotalEntries)
}

// TestManager_OverwriteDoesNotDoubleCount 覆盖写不会重复记账
func TestManager_OverwriteDoesNotDoubleCount(t *testing.T) {
	m := newTestManager(t, Config{
		MaxEntries: 100,
		DefaultTTL: 5 * time.Minute,
	})

	ctx := context.Background()

	m.Set(ctx, "key", "aaaaaaaaaa", 0) // 10 字节
	m.Set(ctx, "key", "bbbbb", 0)      // 5 字节

	stats := m.Stats()
	assert.Equal(t, 1, stats.TotalEntries)
	assert.Equal(t, int64(5), stats.TotalSizeBytes)
}

// failingEstimator 总是失败的大小估算器
type failingEstimator struct{}

func (failingEstimator) Estimate(value interface{}) (int64, error) {
	return 0, core.NewError(core.ErrSerializeFailed, "boom")
}

// TestManager_EstimatorFailure 估算失败按 0 字节写入而不是中止
func TestManager_EstimatorFailure(t *testing.T) {
	m := newTestManager(t, Config{
		MaxEntries: 100,
		DefaultTTL: 5 * time.Minute,
	})
	m.SetEstimator(failingEstimator{})

	ctx := context.Background()

	err := m.Set(ctx, "key", "value", 0)
	assert.NoError(t, err)

	value, err := m.Get(ctx, "key")
	assert.NoError(t, err)
	assert.Equal(t, "value", value)
	assert.Equal(t, int64(0), m.Stats().TotalSizeBytes)
}

// TestManager_PersistRestore 验证快照持久化与恢复，过期条目被跳过
func TestManager_PersistRestore(t *testing.T) {
	store, err := persist.NewDiskStore(persist.DiskStoreConfig{
		BaseDir:    t.TempDir(),
		FilePrefix: "restore_test",
	})
	require.NoError(t, err)

	config := Config{
		MaxEntries:         100,
		DefaultTTL:         5 * time.Minute,
		PersistenceEnabled: true,
	}

	m, err := NewManager(config, store)
	require.NoError(t, err)

	ctx := context.Background()
	m.Set(ctx, "keep", "value", 1*time.Hour)
	m.Set(ctx, "expire", "value", 20*time.Millisecond)

	// 等待异步快照落盘和短 TTL 条目过期
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, m.Dispose())

	m2, err := NewManager(config, store)
	require.NoError(t, err)
	defer m2.Dispose()

	value, err := m2.Get(ctx, "keep")
	assert.NoError(t, err)
	assert.Equal(t, "value", value)

	_, err = m2.Get(ctx, "expire")
	assert.True(t, core.IsCode(err, core.ErrCacheMiss), "过期条目不应被恢复")
}

// TestManager_InvalidPolicy 未知淘汰策略拒绝创建
func TestManager_InvalidPolicy(t *testing.T) {
	_, err := NewManager(Config{EvictionPolicy: Policy("bogus")}, nil)
	assert.Error(t, err)
	assert.True(t, core.IsCode(err, core.ErrConfigInvalid))
}

// Manager基准测试
func BenchmarkManager_Set(b *testing.B) {
	m, _ := NewManager(Config{
		MaxEntries: 100000,
		DefaultTTL: 5 * time.Minute,
	}, nil)
	defer m.Dispose()

	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		key := fmt.Sprintf("key%d", i)
		m.Set(ctx, key, "value", 0)
	}
}

func BenchmarkManager_Get(b *testing.B) {
	m, _ := NewManager(Config{
		MaxEntries: 10000,
		DefaultTTL: 5 * time.Minute,
	}, nil)
	defer m.Dispose()

	ctx := context.Background()

	for i := 0; i < 1000; i++ {
		m.Set(ctx, fmt.Sprintf("key%d", i), "value", 0)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m.Get(ctx, fmt.Sprintf("key%d", i%1000))
	}
}
