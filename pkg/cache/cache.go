package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/hashicorp/go-hclog"
)

// 共享缓存键
const (
	KeyRemotePlugins = "remote_plugins"
	KeyConfig        = "config"
)

// Cache 键值缓存
type Cache interface {
	// Get 读取未过期的值到v，ttl<=0表示永不过期；不存在或已过期返回false
	Get(key string, ttl time.Duration, v interface{}) (bool, error)
	// Write 写入值
	Write(key string, v interface{}) error
	// Remove 删除值，不存在时不报错
	Remove(key string) error
}

var unsafeKey = regexp.MustCompile(`[^a-zA-Z0-9_.-]`)

// FileCache 以目录中的JSON文件保存缓存项，文件修改时间即写入时间
type FileCache struct {
	dir    string
	logger hclog.Logger
	now    func() time.Time
}

// NewFileCache 创建文件缓存
func NewFileCache(dir string, logger hclog.Logger) (*FileCache, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("创建缓存目录失败: %w", err)
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &FileCache{
		dir:    dir,
		logger: logger.Named("cache"),
		now:    time.Now,
	}, nil
}

func (c *FileCache) path(key string) string {
	return filepath.Join(c.dir, unsafeKey.ReplaceAllString(key, "_")+".json")
}

// Get 读取缓存项
func (c *FileCache) Get(key string, ttl time.Duration, v interface{}) (bool, error) {
	path := c.path(key)
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("读取缓存失败: %w", err)
	}

	if ttl > 0 && c.now().Sub(info.ModTime()) > ttl {
		c.logger.Debug("缓存已过期", "key", key)
		return false, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Errorf("读取缓存失败: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		// 损坏的缓存项视为不存在
		c.logger.Warn("缓存内容无效", "key", key, "error", err)
		return false, nil
	}
	return true, nil
}

// Write 写入缓存项，先写临时文件再重命名
func (c *FileCache) Write(key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("序列化缓存失败: %w", err)
	}

	tmp, err := os.CreateTemp(c.dir, ".cache-*")
	if err != nil {
		return fmt.Errorf("写入缓存失败: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("写入缓存失败: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("写入缓存失败: %w", err)
	}
	if err := os.Rename(tmp.Name(), c.path(key)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("写入缓存失败: %w", err)
	}

	c.logger.Debug("缓存已写入", "key", key)
	return nil
}

// Remove 删除缓存项
func (c *FileCache) Remove(key string) error {
	if err := os.Remove(c.path(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("删除缓存失败: %w", err)
	}
	c.logger.Debug("缓存已删除", "key", key)
	return nil
}
