package webconsole

import (
	"testing"
	"time"

	"github.com/lomehong/pluginadmin/pkg/config"
	"github.com/stretchr/testify/assert"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(c *Config)
		wantErr bool
	}{
		{"默认配置", func(c *Config) {}, false},
		{"端口越界", func(c *Config) { c.Port = 70000 }, true},
		{"认证缺少密码", func(c *Config) { c.Password = "" }, true},
		{"关闭认证时不需要密码", func(c *Config) { c.EnableAuth = false; c.Password = "" }, false},
		{"请求限制为0", func(c *Config) { c.RateLimit = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestFromWebConfig(t *testing.T) {
	cfg := FromWebConfig(config.WebConfig{
		Host:      "0.0.0.0",
		Port:      9000,
		APIPrefix: "/admin",
		RateLimit: 2,
		RateBurst: 4,
	})
	assert.Equal(t, "0.0.0.0:9000", cfg.GetAddress())
	assert.Equal(t, "/admin", cfg.APIPrefix)

	assert.NoError(t, cfg.Validate())
	assert.Equal(t, 5*time.Second, cfg.ShutdownTimeout)
}
