package persist

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisStoreConfig Redis 存储配置
type RedisStoreConfig struct {
	Addr      string        `yaml:"addr" mapstructure:"addr"`             // Redis 地址，格式 host:port
	Password  string        `yaml:"password" mapstructure:"password"`     // Redis 密码
	DB        int           `yaml:"db" mapstructure:"db"`                 // 数据库编号
	KeyPrefix string        `yaml:"key_prefix" mapstructure:"key_prefix"` // 键前缀
	KeyTTL    time.Duration `yaml:"key_ttl" mapstructure:"key_ttl"`       // 快照键的过期时间，0 表示不过期
}

// RedisStore Redis 存储实现，快照以单个字符串键保存。
type RedisStore struct {
	client *redis.Client
	config RedisStoreConfig
}

// NewRedisStore 创建 Redis 存储实例并验证连通性。
func NewRedisStore(config RedisStoreConfig) (*RedisStore, error) {
	if config.KeyPrefix == "" {
		config.KeyPrefix = "perf:snapshot:"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("连接 Redis 失败: %w", err)
	}

	return &RedisStore{client: client, config: config}, nil
}

// Put 将记录写入 Redis。
func (rs *RedisStore) Put(ctx context.Context, key string, value []byte) error {
	if err := rs.client.Set(ctx, rs.config.KeyPrefix+key, value, rs.config.KeyTTL).Err(); err != nil {
		return fmt.Errorf("写入 Redis 失败: %w", err)
	}
	return nil
}

// Get 从 Redis 读取记录。记录不存在时返回 (nil, nil)。
func (rs *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := rs.client.Get(ctx, rs.config.KeyPrefix+key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("读取 Redis 失败: %w", err)
	}
	return data, nil
}

// Close 关闭 Redis 连接。
func (rs *RedisStore) Close() error {
	return rs.client.Close()
}
