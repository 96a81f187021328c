package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestPerfError_Basic 错误消息格式与代码
func TestPerfError_Basic(t *testing.T) {
	err := NewError(ErrCacheMiss, "entry not found")
	assert.Equal(t, "CACHE_MISS: entry not found", err.Error())
	assert.True(t, IsCode(err, ErrCacheMiss))
	assert.False(t, IsCode(err, ErrPoolExhausted))
}

// TestPerfError_Wrap 包装保留原始错误
func TestPerfError_Wrap(t *testing.T) {
	cause := fmt.Errorf("disk full")
	err := WrapError(ErrStorageIO, "write failed", cause)

	assert.Contains(t, err.Error(), "STORAGE_IO")
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, cause, errors.Unwrap(err))
	assert.True(t, errors.Is(err, cause))
	assert.True(t, IsCode(err, ErrStorageIO))
}

// TestPerfError_Is 相同代码的错误互相匹配
func TestPerfError_Is(t *testing.T) {
	err := NewError(ErrCacheMiss, "miss for key x")
	assert.True(t, errors.Is(err, ErrEntryNotFound))
	assert.False(t, errors.Is(err, ErrManagerDisposed))
}

// TestPerfError_WithContext 上下文信息附加
func TestPerfError_WithContext(t *testing.T) {
	err := NewError(ErrPoolNotFound, "pool not found").
		WithContext("name", "buffers").
		WithContext("attempt", 2)

	assert.Equal(t, "buffers", err.Context["name"])
	assert.Equal(t, 2, err.Context["attempt"])
}

// TestIsCode_NonPerfError 普通错误不匹配任何代码
func TestIsCode_NonPerfError(t *testing.T) {
	assert.False(t, IsCode(fmt.Errorf("plain error"), ErrCacheMiss))
	assert.False(t, IsCode(nil, ErrCacheMiss))
}

// TestIsCode_WrappedChain 透过 fmt.Errorf 的包装链仍能识别代码
func TestIsCode_WrappedChain(t *testing.T) {
	inner := NewError(ErrScheduleInvalid, "bad cron spec")
	outer := fmt.Errorf("register failed: %w", inner)
	assert.True(t, IsCode(outer, ErrScheduleInvalid))
}

// TestPriority 优先级解析与默认值
func TestPriority(t *testing.T) {
	assert.Equal(t, PriorityLow, ParsePriority("low"))
	assert.Equal(t, PriorityMedium, ParsePriority("MEDIUM"))
	assert.Equal(t, PriorityHigh, ParsePriority("high"))
	assert.Equal(t, PriorityCritical, ParsePriority("critical"))

	// 无法识别的输入回落到中优先级
	assert.Equal(t, PriorityMedium, ParsePriority(""))
	assert.Equal(t, PriorityMedium, ParsePriority("urgent"))

	assert.Equal(t, "medium", PriorityUnspecified.String())
	assert.Equal(t, "critical", PriorityCritical.String())

	// 低优先级排在高优先级之前
	assert.Less(t, PriorityLow, PriorityHigh)
}

// TestJSONSizeEstimator 大小估算
func TestJSONSizeEstimator(t *testing.T) {
	e := JSONSizeEstimator{}

	size, err := e.Estimate("hello")
	require.NoError(t, err)
	assert.Equal(t, int64(5), size)

	size, err = e.Estimate([]byte{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, int64(3), size)

	size, err = e.Estimate(map[string]int{"a": 1})
	require.NoError(t, err)
	assert.Equal(t, int64(len(`{"a":1}`)), size)

	// 无法序列化的值
	_, err = e.Estimate(make(chan int))
	assert.Error(t, err)
	assert.True(t, IsCode(err, ErrSerializeFailed))
}
