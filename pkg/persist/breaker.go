package persist

import (
	"context"
	"errors"

	"time"

	"github.com/sony/gobreaker"

	"github.com/dvnharish/plugins-sub002/pkg/core"
	"github.com/dvnharish/plugins-sub002/pkg/logger"
)

// BreakerConfig 熔断器配置
type BreakerConfig struct {
	Name        string        `yaml:"name" mapstructure:"name"`                   // 熔断器名称
	MaxRequests uint32        `yaml:"max_requests" mapstructure:"max_requests"`   // 半开状态下的最大请求数
	Interval    time.Duration `yaml:"interval" mapstructure:"interval"`           // 统计窗口时间
	Timeout     time.Duration `yaml:"timeout" mapstructure:"timeout"`             // 熔断器打开后的超时时间
	ReadyToTrip uint32        `yaml:"ready_to_trip" mapstructure:"ready_to_trip"` // 触发熔断的连续失败次数阈值
}

// DefaultBreakerConfig 默认熔断器配置
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Name:        "DurableStore",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: 5,
	}
}

// BreakerStore 带熔断器的存储包装。
// 快照写入是尽力而为的：当底层存储连续失败时熔断器打开，
// 后续写入被本地拒绝，避免每次缓存操作都去撞一个已经坏掉的后端。
type BreakerStore struct {
	inner core.Store
	cb    *gobreaker.CircuitBreaker
	log   *logger.Entry
}

// NewBreakerStore 用熔断器包装一个存储实现。
func NewBreakerStore(inner core.Store, config BreakerConfig) *BreakerStore {
	if config.Name == "" {
		config = DefaultBreakerConfig()
	}

	log := logger.WithComponent("persist")

	settings := gobreaker.Settings{
		Name:        config.Name,
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.ReadyToTrip
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warnf("存储熔断器 %s 状态从 %v 变更为 %v", name, from, to)
		},
	}

	return &BreakerStore{
		inner: inner,
		cb:    gobreaker.NewCircuitBreaker(settings),
		log:   log,
	}
}

// Put 通过熔断器写入记录。熔断器打开时写入被本地拒绝。
func (bs *BreakerStore) Put(ctx context.Context, key string, value []byte) error {
	_, err := bs.cb.Execute(func() (interface{}, error) {
		return nil, bs.inner.Put(ctx, key, value)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return core.WrapError(core.ErrStoreUnavailable, "durable store circuit open", err)
	}
	return err
}

// Get 通过熔断器读取记录。
func (bs *BreakerStore) Get(ctx context.Context, key string) ([]byte, error) {
	result, err := bs.cb.Execute(func() (interface{}, error) {
		return bs.inner.Get(ctx, key)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, core.WrapError(core.ErrStoreUnavailable, "durable store circuit open", err)
	}
	if err != nil {
		return nil, err
	}
	data, _ := result.([]byte)
	return data, nil
}

// Close 关闭底层存储。
func (bs *BreakerStore) Close() error {
	return bs.inner.Close()
}

// State 返回熔断器当前状态。
func (bs *BreakerStore) State() gobreaker.State {
	return bs.cb.State()
}

var (
	_ core.Store = (*DiskStore)(nil)
	_ core.Store = (*RedisStore)(nil)
	_ core.Store = (*BreakerStore)(nil)
)
