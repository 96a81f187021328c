package core

import (
	"errors"
	"fmt"
	"time"
)

// ErrorCode 是一个字符串类型，用于表示性能层中所有预定义的错误类别。
type ErrorCode string

// 标准错误代码常量定义了性能层中可能出现的各种错误。
const (
	// ErrCacheMiss 表示在缓存中未找到请求的条目（包括已过期的条目）。
	ErrCacheMiss ErrorCode = "CACHE_MISS"
	// ErrCacheDisposed 表示缓存管理器已被释放。
	ErrCacheDisposed ErrorCode = "CACHE_DISPOSED"

	// ErrSerializeFailed 表示序列化操作失败。
	ErrSerializeFailed ErrorCode = "SERIALIZE_FAILED"
	// ErrDeserializeFailed 表示反序列化操作失败。
	ErrDeserializeFailed ErrorCode = "DESERIALIZE_FAILED"

	// ErrStorageIO 表示持久化存储发生了 I/O 错误。
	ErrStorageIO ErrorCode = "STORAGE_IO"
	// ErrStoreUnavailable 表示持久化存储暂时不可用（如熔断器打开）。
	ErrStoreUnavailable ErrorCode = "STORE_UNAVAILABLE"

	// ErrPoolExhausted 表示对象池已无可用对象。
	ErrPoolExhausted ErrorCode = "POOL_EXHAUSTED"
	// ErrPoolExists 表示同名对象池已存在。
	ErrPoolExists ErrorCode = "POOL_EXISTS"
	// ErrPoolNotFound 表示未找到指定的对象池。
	ErrPoolNotFound ErrorCode = "POOL_NOT_FOUND"

	// ErrTaskExists 表示同名后台任务已注册。
	ErrTaskExists ErrorCode = "TASK_EXISTS"
	// ErrTaskNotFound 表示未找到指定的后台任务。
	ErrTaskNotFound ErrorCode = "TASK_NOT_FOUND"
	// ErrScheduleInvalid 表示任务调度配置无效。
	ErrScheduleInvalid ErrorCode = "SCHEDULE_INVALID"

	// ErrConfigInvalid 表示配置无效。
	ErrConfigInvalid ErrorCode = "CONFIG_INVALID"
	// ErrResourceClosed 表示尝试访问已关闭的资源。
	ErrResourceClosed ErrorCode = "RESOURCE_CLOSED"
)

// PerfError 是性能层的自定义错误类型。
// 它包含了错误代码、消息、可选的原始错误(cause)和附加上下文信息。
type PerfError struct {
	Code      ErrorCode              `json:"code"`              // 错误的分类代码
	Message   string                 `json:"message"`           // 人类可读的错误信息
	Cause     error                  `json:"-"`                 // 导致此错误的原始错误
	Context   map[string]interface{} `json:"context,omitempty"` // 额外的上下文信息
	Timestamp time.Time              `json:"timestamp"`         // 错误发生的时间戳
}

// Error 实现了 Go 内置的 error 接口。
func (e *PerfError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %s)", e.Code, e.Message, e.Cause.Error())
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap 实现了 Go 1.13+ 的错误包装接口，允许访问被包装的原始错误(Cause)。
func (e *PerfError) Unwrap() error {
	return e.Cause
}

// Is 实现了错误判断接口，用于判断一个错误是否与目标错误具有相同的错误代码。
func (e *PerfError) Is(target error) bool {
	var perfErr *PerfError
	if errors.As(target, &perfErr) {
		return e.Code == perfErr.Code
	}
	return false
}

// WithContext 为错误附加一个键值对形式的上下文信息。
func (e *PerfError) WithContext(key string, value interface{}) *PerfError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// NewError 创建一个新的 PerfError。
func NewError(code ErrorCode, message string) *PerfError {
	return &PerfError{
		Code:      code,
		Message:   message,
		Timestamp: time.Now(),
		Context:   make(map[string]interface{}),
	}
}

// WrapError 将一个已有的 error 包装成一个新的 PerfError。
func WrapError(code ErrorCode, message string, cause error) *PerfError {
	return &PerfError{
		Code:      code,
		Message:   message,
		Cause:     cause,
		Timestamp: time.Now(),
		Context:   make(map[string]interface{}),
	}
}

// 预定义的常用错误实例
var (
	ErrEntryNotFound     = NewError(ErrCacheMiss, "cache entry not found")
	ErrManagerDisposed   = NewError(ErrCacheDisposed, "cache manager disposed")
	ErrNoObjectAvailable = NewError(ErrPoolExhausted, "no object available in pool")
	ErrStoreWriteFailed  = NewError(ErrStorageIO, "durable store write failed")
)

// IsCode 判断一个错误是否携带指定的错误代码。
func IsCode(err error, code ErrorCode) bool {
	var perfErr *PerfError
	if errors.As(err, &perfErr) {
		return perfErr.Code == code
	}
	return false
}
