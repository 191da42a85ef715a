package webconsole

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/go-hclog"
	"github.com/lomehong/pluginadmin/pkg/audit"
	"github.com/lomehong/pluginadmin/pkg/errors"
	"github.com/lomehong/pluginadmin/pkg/plugin/api"
	"github.com/lomehong/pluginadmin/pkg/plugin/catalog"
)

// Backend Web控制台调用的插件管理后台
type Backend interface {
	catalog.AdminController
	UpdateStatus(ctx context.Context, rc api.RequestContext, id int64, status string) api.ActionResult
	Settings(ctx context.Context) (map[string]string, error)
}

// EventSource 操作记录订阅
type EventSource interface {
	Subscribe() (<-chan audit.Entry, func())
}

// Console 定义Web控制台
type Console struct {
	// 配置
	config Config

	// 插件管理后台
	backend Backend

	// 操作记录
	events EventSource

	// HTTP服务器
	server *http.Server

	// Gin引擎
	engine *gin.Engine

	// 按客户端的请求限制
	limiters *limiterSet

	// panic恢复
	recoverer *errors.Recoverer

	// 日志
	logger hclog.Logger

	// 互斥锁
	mu sync.RWMutex

	// 是否已初始化
	initialized bool

	// 是否已启动
	started bool
}

// NewConsole 创建一个新的Web控制台
func NewConsole(config Config, backend Backend, events EventSource, logger hclog.Logger) (*Console, error) {
	// 验证配置
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("无效的Web控制台配置: %w", err)
	}

	// 设置Gin模式
	if config.LogLevel == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	logger = logger.Named("web-console")

	return &Console{
		config:    config,
		backend:   backend,
		events:    events,
		engine:    gin.New(),
		limiters:  newLimiterSet(config.RateLimit, config.RateBurst),
		recoverer: errors.NewRecoverer(logger),
		logger:    logger,
	}, nil
}

// Init 初始化Web控制台
func (c *Console) Init() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.initialized {
		return fmt.Errorf("Web控制台已初始化")
	}

	c.logger.Info("初始化Web控制台")

	// 设置中间件
	c.setupMiddleware()

	// 设置路由
	c.setupRoutes()

	// 创建HTTP服务器
	c.server = &http.Server{
		Addr:    c.config.GetAddress(),
		Handler: c.engine,
	}

	c.initialized = true
	c.logger.Info("Web控制台初始化完成")

	return nil
}

// Handler 返回HTTP处理器
func (c *Console) Handler() http.Handler {
	return c.engine
}

// Start 启动Web控制台
func (c *Console) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.initialized {
		return fmt.Errorf("Web控制台未初始化")
	}

	if c.started {
		return fmt.Errorf("Web控制台已启动")
	}

	c.logger.Info("启动Web控制台", "address", c.config.GetAddress())

	// 启动HTTP服务器
	go func() {
		if err := c.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			c.logger.Error("Web控制台启动失败", "error", err)
		}
	}()

	c.started = true
	c.logger.Info("Web控制台已启动", "address", c.config.GetAddress(), "auth", c.config.EnableAuth)

	return nil
}

// Stop 停止Web控制台
func (c *Console) Stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.started {
		return nil
	}

	c.logger.Info("停止Web控制台")

	// 设置关闭超时
	shutdownCtx, cancel := context.WithTimeout(ctx, c.config.ShutdownTimeout)
	defer cancel()

	// 关闭HTTP服务器
	if err := c.server.Shutdown(shutdownCtx); err != nil {
		c.logger.Error("Web控制台关闭失败", "error", err)
		return fmt.Errorf("Web控制台关闭失败: %w", err)
	}

	c.started = false
	c.logger.Info("Web控制台已停止")

	return nil
}

// setupMiddleware 设置中间件
func (c *Console) setupMiddleware() {
	// 使用恢复中间件
	c.engine.Use(c.recoveryMiddleware())

	// 请求ID和日志
	c.engine.Use(c.requestIDMiddleware())
	c.engine.Use(c.loggingMiddleware())

	// 使用请求限制中间件
	c.engine.Use(c.rateLimitMiddleware())

	// 使用认证中间件
	if c.config.EnableAuth {
		c.engine.Use(c.authMiddleware())
	}
}

// setupRoutes 设置路由
func (c *Console) setupRoutes() {
	// 记录API前缀
	c.logger.Info("设置API路由", "prefix", c.config.APIPrefix)

	// API路由组
	apiGroup := c.engine.Group(c.config.APIPrefix)
	{
		apiGroup.GET("/ping", c.ping)
		apiGroup.GET("/settings", c.getSettings)

		// 插件管理API
		plugins := apiGroup.Group("/plugins")
		{
			plugins.GET("", c.listPlugins)
			plugins.GET("/documentation", c.getDocumentation)
			plugins.GET("/events", c.streamEvents)
			plugins.POST("/:action", c.pluginAction)
			plugins.PUT("/:id/status", c.updatePluginStatus)
		}
	}

	// 记录已注册的路由
	routes := c.engine.Routes()
	c.logger.Debug("已注册的路由", "count", len(routes))
	for _, route := range routes {
		c.logger.Debug("路由", "method", route.Method, "path", route.Path)
	}

	// 404处理
	c.engine.NoRoute(func(ctx *gin.Context) {
		ctx.JSON(http.StatusNotFound, gin.H{
			"error": "API not found",
			"path":  ctx.Request.URL.Path,
		})
	})
}
