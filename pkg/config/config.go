package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lomehong/pluginadmin/pkg/logging"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// EnvPrefix 环境变量前缀
const EnvPrefix = "PLUGINADMIN"

// Config 插件管理后台的完整配置
type Config struct {
	Platform PlatformConfig    `mapstructure:"platform"`
	Paths    PathsConfig       `mapstructure:"paths"`
	Remote   RemoteConfig      `mapstructure:"remote"`
	Database DatabaseConfig    `mapstructure:"database"`
	Cache    CacheConfig       `mapstructure:"cache"`
	Web      WebConfig         `mapstructure:"web"`
	ACL      ACLConfig         `mapstructure:"acl"`
	Log      logging.LogConfig `mapstructure:"log"`
	Audit    AuditConfig       `mapstructure:"audit"`
}

// PlatformConfig 平台信息
type PlatformConfig struct {
	// 当前平台版本，所有兼容性判断都以此为准
	Version   string `mapstructure:"version"`
	SiteURL   string `mapstructure:"site_url"`
	AssetsURL string `mapstructure:"assets_url"`
}

// PathsConfig 文件系统路径
type PathsConfig struct {
	Plugins      string `mapstructure:"plugins"`
	Temp         string `mapstructure:"temp"`
	InfoTemplate string `mapstructure:"info_template"`
	Phrases      string `mapstructure:"phrases"`
}

// RemoteConfig 远程工具服务配置
type RemoteConfig struct {
	ToolsURL      string        `mapstructure:"tools_url"`
	Timeout       time.Duration `mapstructure:"timeout"`
	CacheTTL      time.Duration `mapstructure:"cache_ttl"`
	IssueURL      string        `mapstructure:"issue_url"`
	PluginInfoURL string        `mapstructure:"plugin_info_url"`
	UserAgent     string        `mapstructure:"user_agent"`
}

// DatabaseConfig 注册表数据库配置
type DatabaseConfig struct {
	Path        string        `mapstructure:"path"`
	BusyTimeout time.Duration `mapstructure:"busy_timeout"`
}

// CacheConfig 缓存配置
type CacheConfig struct {
	Dir string `mapstructure:"dir"`
}

// WebConfig Web控制台配置
type WebConfig struct {
	Host       string        `mapstructure:"host"`
	Port       int           `mapstructure:"port"`
	APIPrefix  string        `mapstructure:"api_prefix"`
	EnableAuth bool          `mapstructure:"enable_auth"`
	Username   string        `mapstructure:"username"`
	Password   string        `mapstructure:"password"`
	RateLimit  float64       `mapstructure:"rate_limit"`
	RateBurst  int           `mapstructure:"rate_burst"`
	Shutdown   time.Duration `mapstructure:"shutdown_timeout"`
	LogLevel   string        `mapstructure:"log_level"`
}

// ACLConfig 访问控制配置，键为用户名，值为权限列表（如 plugins:install、plugins:*）
type ACLConfig struct {
	Permissions map[string][]string `mapstructure:"permissions"`
}

// AuditConfig 操作日志配置
type AuditConfig struct {
	Path string `mapstructure:"path"`
}

// Defaults 返回默认配置项
func Defaults() map[string]interface{} {
	return map[string]interface{}{
		"platform.version":        "4.2.1",
		"platform.site_url":       "http://localhost/",
		"platform.assets_url":     "http://localhost/",
		"paths.plugins":           "modules",
		"paths.temp":              "tmp",
		"paths.info_template":     "templates/extra_information.tpl",
		"paths.phrases":           "",
		"remote.tools_url":        "https://tools.subrion.org/",
		"remote.timeout":          "30s",
		"remote.cache_ttl":        "1h",
		"remote.issue_url":        "https://dev.subrion.org/issues/",
		"remote.plugin_info_url":  "https://subrion.org/plugin/",
		"remote.user_agent":       "pluginadmin",
		"database.path":           "data/registry.db",
		"database.busy_timeout":   "5s",
		"cache.dir":               "tmp/cache",
		"web.host":                "127.0.0.1",
		"web.port":                8088,
		"web.api_prefix":          "/api",
		"web.enable_auth":         true,
		"web.username":            "admin",
		"web.password":            "admin",
		"web.rate_limit":          5.0,
		"web.rate_burst":          20,
		"web.shutdown_timeout":    "5s",
		"web.log_level":           "info",
		"acl.permissions":         map[string]interface{}{"admin": []interface{}{"plugins:*"}},
		"log.level":               "info",
		"log.format":              "text",
		"log.output":              "stderr",
		"log.file_path":           "logs/pluginadmin.log",
		"log.include_location":    false,
		"log.time_format":         time.RFC3339,
		"audit.path":              "logs/actions.log",
	}
}

// Load 读取配置文件、环境变量和默认值
// configFile 为空时在当前目录和用户目录下查找 pluginadmin.yaml，找不到则只使用默认值
func Load(configFile string) (*Config, error) {
	v := viper.New()
	for k, val := range Defaults() {
		v.SetDefault(k, val)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".pluginadmin"))
		}
		v.SetConfigName("pluginadmin")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("无法读取配置文件: %w", err)
		}
	}

	return decode(v)
}

// decode 使用mapstructure将viper的设置解码为Config
// 环境变量只在显式读取时生效，所以逐键读取而不是直接使用AllSettings
func decode(v *viper.Viper) (*Config, error) {
	settings := make(map[string]interface{})
	for _, key := range v.AllKeys() {
		setNested(settings, strings.Split(key, "."), v.Get(key))
	}

	var cfg Config
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("创建解码器失败: %w", err)
	}
	if err := decoder.Decode(settings); err != nil {
		return nil, fmt.Errorf("解码配置失败: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setNested(m map[string]interface{}, path []string, value interface{}) {
	for i, p := range path {
		if i == len(path)-1 {
			m[p] = value
			return
		}
		next, ok := m[p].(map[string]interface{})
		if !ok {
			next = make(map[string]interface{})
			m[p] = next
		}
		m = next
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.Platform.Version == "" {
		return fmt.Errorf("必须指定平台版本")
	}
	if c.Paths.Plugins == "" {
		return fmt.Errorf("必须指定插件目录")
	}
	if c.Paths.Temp == "" {
		return fmt.Errorf("必须指定临时目录")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("必须指定注册表数据库路径")
	}
	if c.Remote.ToolsURL != "" && !strings.HasSuffix(c.Remote.ToolsURL, "/") {
		c.Remote.ToolsURL += "/"
	}
	if c.Remote.CacheTTL <= 0 {
		return fmt.Errorf("远程目录缓存时间必须大于0")
	}
	if c.Web.Port <= 0 || c.Web.Port > 65535 {
		return fmt.Errorf("无效的端口号: %d", c.Web.Port)
	}
	if c.Web.EnableAuth && (c.Web.Username == "" || c.Web.Password == "") {
		return fmt.Errorf("启用认证时必须指定用户名和密码")
	}
	if c.Web.RateLimit <= 0 || c.Web.RateBurst <= 0 {
		return fmt.Errorf("请求限制必须大于0")
	}
	return nil
}

// Address 获取Web控制台监听地址
func (c *WebConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
