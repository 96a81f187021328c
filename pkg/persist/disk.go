// Package persist 提供持久化存储（core.Store）的具体实现：
// 磁盘 JSON 文件、Redis，以及带熔断器的包装存储。
package persist

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// DiskStoreConfig 磁盘存储配置
type DiskStoreConfig struct {
	BaseDir    string `yaml:"base_dir" mapstructure:"base_dir"`       // 存储基础目录
	FilePrefix string `yaml:"file_prefix" mapstructure:"file_prefix"` // 文件名前缀
}

// DiskStore 磁盘存储实现：每个逻辑键对应一个 JSON 文件，
// 写入采用临时文件加重命名，避免读到半写状态。
type DiskStore struct {
	dir    string
	prefix string
}

// NewDiskStore 创建磁盘存储实例。
func NewDiskStore(config DiskStoreConfig) (*DiskStore, error) {
	if config.BaseDir == "" {
		config.BaseDir = os.TempDir()
	}
	if config.FilePrefix == "" {
		config.FilePrefix = "perf_snapshot"
	}

	dir := filepath.Join(config.BaseDir, config.FilePrefix)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("创建存储目录失败: %w", err)
	}

	return &DiskStore{dir: dir, prefix: config.FilePrefix}, nil
}

// Put 将记录写入磁盘。
func (ds *DiskStore) Put(ctx context.Context, key string, value []byte) error {
	target := ds.pathFor(key)
	tempFile := target + ".tmp"

	if err := os.WriteFile(tempFile, value, 0644); err != nil {
		return fmt.Errorf("写入临时文件失败: %w", err)
	}

	if err := os.Rename(tempFile, target); err != nil {
		return fmt.Errorf("重命名文件失败: %w", err)
	}

	return nil
}

// Get 从磁盘读取记录。记录不存在时返回 (nil, nil)。
func (ds *DiskStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(ds.pathFor(key))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("读取文件失败: %w", err)
	}
	return data, nil
}

// Close 关闭存储。磁盘存储没有需要释放的资源。
func (ds *DiskStore) Close() error {
	return nil
}

func (ds *DiskStore) pathFor(key string) string {
	return filepath.Join(ds.dir, key+".json")
}
