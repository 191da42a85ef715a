package webconsole

import (
	"fmt"
	"time"

	"github.com/lomehong/pluginadmin/pkg/config"
)

// Config 定义Web控制台配置
type Config struct {
	// 监听地址
	Host string

	// 监听端口
	Port int

	// API前缀
	APIPrefix string

	// 是否启用认证
	EnableAuth bool

	// 认证用户名，未启用认证时作为请求用户
	Username string

	// 认证密码
	Password string

	// 每个客户端每秒请求数
	RateLimit float64

	// 突发请求数
	RateBurst int

	// 关闭超时时间
	ShutdownTimeout time.Duration

	// 日志级别
	LogLevel string
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Host:            "127.0.0.1",
		Port:            8088,
		APIPrefix:       "/api",
		EnableAuth:      true,
		Username:        "admin",
		Password:        "admin",
		RateLimit:       5,
		RateBurst:       20,
		ShutdownTimeout: 5 * time.Second,
		LogLevel:        "info",
	}
}

// FromWebConfig 从应用配置转换
func FromWebConfig(c config.WebConfig) Config {
	return Config{
		Host:            c.Host,
		Port:            c.Port,
		APIPrefix:       c.APIPrefix,
		EnableAuth:      c.EnableAuth,
		Username:        c.Username,
		Password:        c.Password,
		RateLimit:       c.RateLimit,
		RateBurst:       c.RateBurst,
		ShutdownTimeout: c.Shutdown,
		LogLevel:        c.LogLevel,
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("无效的端口号: %d", c.Port)
	}

	if c.EnableAuth {
		if c.Username == "" {
			return fmt.Errorf("启用认证时必须指定用户名")
		}
		if c.Password == "" {
			return fmt.Errorf("启用认证时必须指定密码")
		}
	}

	if c.RateLimit <= 0 || c.RateBurst <= 0 {
		return fmt.Errorf("请求限制必须大于0")
	}

	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 5 * time.Second
	}

	return nil
}

// GetAddress 获取监听地址
func (c *Config) GetAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
