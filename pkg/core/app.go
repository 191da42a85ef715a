// Package core 组装插件管理后台的各个组件
package core

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/lomehong/pluginadmin/pkg/acl"
	"github.com/lomehong/pluginadmin/pkg/audit"
	"github.com/lomehong/pluginadmin/pkg/cache"
	"github.com/lomehong/pluginadmin/pkg/config"
	"github.com/lomehong/pluginadmin/pkg/controller"
	"github.com/lomehong/pluginadmin/pkg/errors"
	"github.com/lomehong/pluginadmin/pkg/i18n"
	"github.com/lomehong/pluginadmin/pkg/logging"
	"github.com/lomehong/pluginadmin/pkg/plugin/catalog"
	"github.com/lomehong/pluginadmin/pkg/plugin/docs"
	"github.com/lomehong/pluginadmin/pkg/plugin/installer"
	"github.com/lomehong/pluginadmin/pkg/plugin/module"
	"github.com/lomehong/pluginadmin/pkg/plugin/registry"
	"github.com/lomehong/pluginadmin/pkg/remote"
	"github.com/lomehong/pluginadmin/pkg/webconsole"
)

// App 是应用程序的核心
type App struct {
	// 配置
	cfg *config.Config

	// 日志
	logger    hclog.Logger
	logCloser io.Closer

	// 短语表
	phrases *i18n.Phrases

	// 短语文件监视器
	watcher *config.Watcher

	// panic恢复
	recoverer *errors.Recoverer

	// 注册表
	store *registry.Store

	// 文件缓存
	cache *cache.FileCache

	// 操作日志
	audit *audit.Log

	// 安装器
	installer *installer.Installer

	// 插件管理控制器
	controller *controller.Plugins

	// Web控制台
	console *webconsole.Console

	// 版本
	version string

	mu          sync.Mutex
	initialized bool
	running     bool
}

// NewApp 创建一个新的应用程序实例
func NewApp(cfg *config.Config) *App {
	return &App{
		cfg:     cfg,
		logger:  hclog.NewNullLogger(),
		version: "dev",
	}
}

// SetVersion 设置版本
func (app *App) SetVersion(version string) {
	app.version = version
}

// GetVersion 获取版本
func (app *App) GetVersion() string {
	return app.version
}

// Logger 返回应用日志
func (app *App) Logger() hclog.Logger {
	return app.logger
}

// Controller 返回插件管理控制器
func (app *App) Controller() *controller.Plugins {
	return app.controller
}

// Audit 返回操作日志
func (app *App) Audit() *audit.Log {
	return app.audit
}

// Init 初始化应用程序，按依赖顺序创建各个组件
func (app *App) Init() error {
	app.mu.Lock()
	defer app.mu.Unlock()

	if app.initialized {
		return fmt.Errorf("应用程序已初始化")
	}
	cfg := app.cfg

	logger, closer, err := logging.NewLogger("pluginadmin", &cfg.Log)
	if err != nil {
		return fmt.Errorf("创建日志记录器失败: %w", err)
	}
	app.logger = logger
	app.logCloser = closer
	app.recoverer = errors.NewRecoverer(app.logger.Named("recovery"))

	app.logger.Info("初始化应用程序", "version", app.version, "platform", cfg.Platform.Version)

	if err := os.MkdirAll(cfg.Paths.Plugins, 0755); err != nil {
		return fmt.Errorf("创建插件目录失败: %w", err)
	}

	// 短语
	app.phrases, err = i18n.Load(cfg.Paths.Phrases, app.logger)
	if err != nil {
		return fmt.Errorf("加载短语失败: %w", err)
	}

	// 注册表
	app.store, err = registry.Open(cfg.Database.Path, cfg.Database.BusyTimeout, app.logger)
	if err != nil {
		return fmt.Errorf("打开注册表失败: %w", err)
	}

	// 缓存
	app.cache, err = cache.NewFileCache(cfg.Cache.Dir, app.logger)
	if err != nil {
		return fmt.Errorf("创建缓存失败: %w", err)
	}

	// 操作日志
	app.audit, err = audit.Open(cfg.Audit.Path)
	if err != nil {
		return fmt.Errorf("打开操作日志失败: %w", err)
	}

	fetcher := remote.NewHTTPFetcher(cfg.Remote.Timeout,
		remote.WithUserAgent(cfg.Remote.UserAgent),
		remote.WithLogger(app.logger))

	installed := catalog.NewInstalled(app.store, cfg.Paths.Plugins, cfg.Platform.Version, app.logger)
	local := catalog.NewLocal(app.store, cfg.Paths.Plugins, app.phrases, app.logger)
	remoteCatalog := catalog.NewRemote(app.store, fetcher, app.cache, catalog.RemoteConfig{
		ToolsURL: cfg.Remote.ToolsURL,
		Platform: cfg.Platform.Version,
		TTL:      cfg.Remote.CacheTTL,
	}, app.phrases, app.logger)

	helper := module.NewHelper(app.store, app.phrases, app.logger)
	app.installer = installer.New(installer.Config{
		PluginsDir: cfg.Paths.Plugins,
		TempDir:    cfg.Paths.Temp,
		ToolsURL:   cfg.Remote.ToolsURL,
		Platform:   cfg.Platform.Version,
	}, fetcher, helper, app.store, app.cache, app.audit, app.phrases, installer.WithLogger(app.logger))

	renderer := docs.NewRenderer(docs.Config{
		PluginsDir:    cfg.Paths.Plugins,
		SiteURL:       cfg.Platform.SiteURL,
		AssetsURL:     cfg.Platform.AssetsURL,
		IssueURL:      cfg.Remote.IssueURL,
		PluginInfoURL: cfg.Remote.PluginInfoURL,
		TemplatePath:  cfg.Paths.InfoTemplate,
	}, app.phrases, app.logger)

	app.controller = controller.NewPlugins(controller.Dependencies{
		Installed: installed,
		Local:     local,
		Remote:    remoteCatalog,
		Actions:   app.installer,
		Docs:      renderer,
		ACL:       acl.NewPermissionChecker(cfg.ACL.Permissions),
		Store:     app.store,
		Cache:     app.cache,
		Recorder:  app.audit,
		Phrases:   app.phrases,
		Logger:    app.logger,
	})

	app.initialized = true
	app.logger.Info("应用程序初始化完成")
	return nil
}

// watchPhrases 短语文件变化时重新加载
func (app *App) watchPhrases() error {
	path := app.cfg.Paths.Phrases
	if path == "" {
		return nil
	}

	watcher, err := config.NewWatcher(app.logger)
	if err != nil {
		return err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	if err := watcher.Watch(abs, func(event config.ChangeEvent) error {
		if event.Type == config.ChangeTypeDelete {
			return nil
		}
		app.logger.Info("短语文件已变化，重新加载", "path", event.Path, "type", event.Type)
		return app.recoverer.SafeExec(app.phrases.Reload)
	}); err != nil {
		watcher.Stop()
		return err
	}
	watcher.Start()
	app.watcher = watcher
	return nil
}

// Start 启动短语监视和Web控制台
func (app *App) Start() error {
	app.mu.Lock()
	defer app.mu.Unlock()

	if !app.initialized {
		return fmt.Errorf("应用程序未初始化")
	}
	if app.running {
		return fmt.Errorf("应用程序已启动")
	}

	if err := app.watchPhrases(); err != nil {
		// 监视失败不影响服务
		app.logger.Warn("监视短语文件失败", "error", err)
	}

	console, err := webconsole.NewConsole(webconsole.FromWebConfig(app.cfg.Web), app.controller, app.audit, app.logger)
	if err != nil {
		return fmt.Errorf("创建Web控制台失败: %w", err)
	}
	if err := console.Init(); err != nil {
		return fmt.Errorf("初始化Web控制台失败: %w", err)
	}
	if err := console.Start(); err != nil {
		return fmt.Errorf("启动Web控制台失败: %w", err)
	}
	app.console = console

	app.running = true
	app.logger.Info("应用程序已启动", "address", app.cfg.Web.Address())
	return nil
}

// Run 启动应用程序并阻塞到收到终止信号或ctx取消
func (app *App) Run(ctx context.Context) error {
	if err := app.Start(); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		app.logger.Info("收到信号", "signal", sig)
	case <-ctx.Done():
	}

	return app.Stop()
}

// Stop 停止Web控制台和短语监视
func (app *App) Stop() error {
	app.mu.Lock()
	defer app.mu.Unlock()

	if !app.running {
		return nil
	}
	app.logger.Info("开始停止应用程序")

	var firstErr error
	if app.console != nil {
		timeout := app.cfg.Web.Shutdown
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		if err := app.console.Stop(ctx); err != nil {
			firstErr = err
		}
		cancel()
		app.console = nil
	}
	if app.watcher != nil {
		if err := app.watcher.Stop(); err != nil && firstErr == nil {
			firstErr = err
		}
		app.watcher = nil
	}

	app.running = false
	app.logger.Info("应用程序已停止")
	return firstErr
}

// Close 释放注册表、操作日志和日志文件
func (app *App) Close() error {
	if err := app.Stop(); err != nil {
		app.logger.Warn("停止应用程序失败", "error", err)
	}

	app.mu.Lock()
	defer app.mu.Unlock()

	var firstErr error
	if app.store != nil {
		if err := app.store.Close(); err != nil {
			firstErr = err
		}
		app.store = nil
	}
	if app.audit != nil {
		if err := app.audit.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		app.audit = nil
	}
	if app.logCloser != nil {
		app.logCloser.Close()
		app.logCloser = nil
	}
	app.initialized = false
	return firstErr
}
