// Package config 提供性能层的顶层配置：默认值、校验和基于 viper 的文件加载。
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"

	"github.com/dvnharish/plugins-sub002/pkg/cache"
	"github.com/dvnharish/plugins-sub002/pkg/persist"
	"github.com/dvnharish/plugins-sub002/pkg/scheduler"
)

// Config 主配置结构
type Config struct {
	// 缓存配置
	Cache cache.Config `yaml:"cache" mapstructure:"cache"`

	// 持久化配置
	Persistence PersistenceConfig `yaml:"persistence" mapstructure:"persistence"`

	// 预注册的后台任务
	Tasks []scheduler.TaskConfig `yaml:"tasks" mapstructure:"tasks"`

	// HTTP 服务配置（cmd/perfd 使用）
	Server ServerConfig `yaml:"server" mapstructure:"server"`

	// 日志配置
	Logger LoggerConfig `yaml:"logger" mapstructure:"logger"`
}

// PersistenceConfig 持久化后端配置
type PersistenceConfig struct {
	Backend string                   `yaml:"backend" mapstructure:"backend"` // disk 或 redis
	Disk    persist.DiskStoreConfig  `yaml:"disk" mapstructure:"disk"`
	Redis   persist.RedisStoreConfig `yaml:"redis" mapstructure:"redis"`
	Breaker persist.BreakerConfig    `yaml:"breaker" mapstructure:"breaker"`
}

// ServerConfig HTTP 服务配置
type ServerConfig struct {
	Port string `yaml:"port" mapstructure:"port"` // 监听端口
	Mode string `yaml:"mode" mapstructure:"mode"` // debug, release, test
}

// LoggerConfig 日志配置
type LoggerConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`   // 日志级别 (debug, info, warn, error)
	Format string `yaml:"format" mapstructure:"format"` // 输出格式 (text, json)
}

// Default 返回默认配置
func Default() *Config {
	return &Config{
		Cache: cache.DefaultConfig(),
		Persistence: PersistenceConfig{
			Backend: "disk",
			Disk: persist.DiskStoreConfig{
				FilePrefix: "perf_snapshot",
			},
			Breaker: persist.DefaultBreakerConfig(),
		},
		Server: ServerConfig{
			Port: "8080",
			Mode: "release",
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load 从配置文件加载配置，未设置的字段保留默认值。
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("配置文件不存在: %s", path)
	}

	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	config := Default()
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.Cache.MaxEntries < 0 {
		return errors.New("cache max_entries cannot be negative")
	}

	if c.Cache.MaxSizeBytes < 0 {
		return errors.New("cache max_size_bytes cannot be negative")
	}

	if c.Cache.DefaultTTL <= 0 {
		return errors.New("cache default_ttl must be positive")
	}

	if c.Cache.SweepInterval < 0 {
		return errors.New("cache sweep_interval cannot be negative")
	}

	if c.Cache.EvictionPolicy != "" && !cache.ValidPolicy(string(c.Cache.EvictionPolicy)) {
		return fmt.Errorf("unknown eviction policy: %s", c.Cache.EvictionPolicy)
	}

	switch c.Persistence.Backend {
	case "", "disk":
	case "redis":
		if c.Persistence.Redis.Addr == "" {
			return errors.New("redis backend requires an address")
		}
	default:
		return fmt.Errorf("unknown persistence backend: %s", c.Persistence.Backend)
	}

	if c.Server.Port == "" {
		return errors.New("server port cannot be empty")
	}

	return nil
}

// SetEvictionPolicy 设置淘汰策略
func (c *Config) SetEvictionPolicy(policy cache.Policy) *Config {
	c.Cache.EvictionPolicy = policy
	return c
}

// SetDefaultTTL 设置默认生存时间
func (c *Config) SetDefaultTTL(ttl time.Duration) *Config {
	c.Cache.DefaultTTL = ttl
	return c
}

// SetSweepInterval 设置过期清理间隔
func (c *Config) SetSweepInterval(interval time.Duration) *Config {
	c.Cache.SweepInterval = interval
	return c
}

// SetMaxEntries 设置最大条目数
func (c *Config) SetMaxEntries(max int) *Config {
	c.Cache.MaxEntries = max
	return c
}

// SetLogLevel 设置日志级别
func (c *Config) SetLogLevel(level string) *Config {
	c.Logger.Level = level
	return c
}
