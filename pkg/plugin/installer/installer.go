// Package installer 执行插件的安装、重新安装、升级和卸载
package installer

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-hclog"
	"github.com/lomehong/pluginadmin/pkg/audit"
	"github.com/lomehong/pluginadmin/pkg/cache"
	"github.com/lomehong/pluginadmin/pkg/errors"
	"github.com/lomehong/pluginadmin/pkg/i18n"
	"github.com/lomehong/pluginadmin/pkg/plugin/api"
	"github.com/lomehong/pluginadmin/pkg/plugin/manifest"
	"github.com/lomehong/pluginadmin/pkg/plugin/module"
	"github.com/lomehong/pluginadmin/pkg/plugin/version"
	"github.com/lomehong/pluginadmin/pkg/remote"
)

// Recorder 操作日志
type Recorder interface {
	Write(action audit.Action, params map[string]string) audit.Entry
}

// RemovableChecker 检查模块是否可卸载
type RemovableChecker interface {
	ExistsRemovable(ctx context.Context, name, moduleType string) (bool, error)
}

// Config 安装器配置
type Config struct {
	PluginsDir string
	TempDir    string
	ToolsURL   string
	Platform   string
}

// Installer 插件安装器
type Installer struct {
	cfg       Config
	fetcher   remote.Fetcher
	helper    module.Helper
	removable RemovableChecker
	cache     cache.Cache
	recorder  Recorder
	phrases   i18n.Translator
	freeSpace FreeSpaceFunc
	logger    hclog.Logger
}

// Option 安装器选项
type Option func(*Installer)

// WithFreeSpace 替换磁盘空间查询
func WithFreeSpace(fn FreeSpaceFunc) Option {
	return func(i *Installer) {
		i.freeSpace = fn
	}
}

// WithLogger 设置日志记录器
func WithLogger(logger hclog.Logger) Option {
	return func(i *Installer) {
		i.logger = logger.Named("installer")
	}
}

// New 创建安装器
func New(cfg Config, fetcher remote.Fetcher, helper module.Helper, removable RemovableChecker,
	c cache.Cache, recorder Recorder, phrases i18n.Translator, opts ...Option) *Installer {
	i := &Installer{
		cfg:       cfg,
		fetcher:   fetcher,
		helper:    helper,
		removable: removable,
		cache:     c,
		recorder:  recorder,
		phrases:   phrases,
		freeSpace: DiskFree,
		logger:    hclog.NewNullLogger(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// ArchivePath 远程插件包的下载位置
func (i *Installer) ArchivePath(name string) string {
	return filepath.Join(i.cfg.TempDir, "modules", name+".zip")
}

// DownloadURL 远程插件包地址
func (i *Installer) DownloadURL(name string) string {
	return i.cfg.ToolsURL + "install/" + name + "/" + i.cfg.Platform
}

// message 将错误转换为界面消息
// 校验错误的消息由模块助手生成，直接展示；其他错误按代码查找短语
func (i *Installer) message(err error) string {
	var appErr *errors.AppError
	if errors.As(err, &appErr) {
		if appErr.Type == errors.ErrorTypeValidation && appErr.Code != i18n.KeyManifestInvalid {
			return appErr.Message
		}
		if appErr.Code != "" {
			return i.phrases.Get(appErr.Code)
		}
		return appErr.Message
	}
	return err.Error()
}

// Install 安装或重新安装插件；已注册且清单版本更高时为升级
func (i *Installer) Install(ctx context.Context, req api.ActionRequest) api.ActionResult {
	name := req.Name
	if !safeName(name) {
		return api.Fail(i.phrases.Get(i18n.KeyInvalidParameters))
	}
	action := req.Action
	if action != api.ActionReinstall {
		action = api.ActionInstall
	}

	if req.Remote() {
		if msg := i.fetchRemote(ctx, name); msg != "" {
			return api.Fail(msg)
		}
	}

	m, err := manifest.Load(i.cfg.PluginsDir, name)
	if err != nil {
		i.logger.Warn("加载安装清单失败", "plugin", name, "error", err)
		return api.Fail(i.message(err))
	}

	if !version.Compatible(m.Compatibility, i.cfg.Platform) {
		i.logger.Info("插件与平台版本不兼容", "plugin", name, "compatibility", m.Compatibility, "platform", i.cfg.Platform)
		return api.Fail(i.phrases.Get(i18n.KeyIncompatible))
	}

	out, err := i.helper.Execute(ctx, m, action)
	if err != nil {
		i.logger.Warn("安装插件失败", "plugin", name, "error", err)
		return api.Fail(i.message(err))
	}

	result := api.ActionResult{Result: true}
	if out.Upgrade {
		result.Upgrade = true
		result.Messages = []string{i.phrases.Get(i18n.KeyPluginUpdated)}
		i.recorder.Write(audit.ActionUpgrade, map[string]string{
			"type": api.TypePlugin,
			"name": m.Info.Title,
			"to":   m.Info.Version,
		})
	} else {
		key := i18n.KeyPluginInstalled
		if action == api.ActionReinstall {
			key = i18n.KeyPluginReinstalled
		}
		result.Groups = out.Groups
		result.Messages = []string{i.phrases.Getf(key, map[string]string{"name": m.Info.Title})}
		i.recorder.Write(audit.ActionInstall, map[string]string{
			"type": api.TypePlugin,
			"name": m.Info.Title,
		})
	}
	result.Messages = append(result.Messages, m.Notes...)

	i.invalidateConfig()
	i.logger.Info("插件已安装", "plugin", m.Name, "version", m.Info.Version, "upgrade", out.Upgrade)
	return result
}

// fetchRemote 下载并解压远程插件包，下载失败时静默返回，由后续的清单检查报告
func (i *Installer) fetchRemote(ctx context.Context, name string) string {
	archive := i.ArchivePath(name)
	if err := os.MkdirAll(filepath.Dir(archive), 0755); err != nil {
		i.logger.Error("创建临时目录失败", "error", err)
	}
	if err := i.fetcher.Download(ctx, i.DownloadURL(name), archive); err != nil {
		i.logger.Warn("下载插件包失败", "plugin", name, "error", err)
	}
	if _, err := os.Stat(archive); err != nil {
		return ""
	}
	defer os.Remove(archive)

	if !writable(i.cfg.PluginsDir) {
		i.logger.Error("插件目录不可写", "dir", i.cfg.PluginsDir)
		return i.phrases.Get(i18n.KeyUploadModuleError)
	}

	target := filepath.Join(i.cfg.PluginsDir, name)
	if err := os.RemoveAll(target); err != nil {
		i.logger.Error("删除旧插件目录失败", "dir", target, "error", err)
		return i.phrases.Get(i18n.KeyUploadModuleError)
	}
	if err := extract(archive, target, i.freeSpace); err != nil {
		i.logger.Error("解压插件包失败", "plugin", name, "error", err)
		if stderrors.Is(err, errInsufficientSpace) {
			return i.phrases.Get(i18n.KeyInsufficientDiskSpace)
		}
		return i.phrases.Get(i18n.KeyUploadModuleError)
	}

	if i.cache != nil {
		if err := i.cache.Remove(cache.KeyRemotePlugins); err != nil {
			i.logger.Warn("清除远程目录缓存失败", "error", err)
		}
	}
	i.logger.Info("插件包已解压", "plugin", name, "dir", target)
	return ""
}

// Uninstall 卸载插件，只允许卸载已注册且可卸载的插件
func (i *Installer) Uninstall(ctx context.Context, name string) api.ActionResult {
	ok, err := i.removable.ExistsRemovable(ctx, name, api.TypePlugin)
	if err != nil {
		i.logger.Error("查询插件失败", "plugin", name, "error", err)
	}
	if !ok {
		return api.Fail(i.phrases.Get(i18n.KeyPluginMayNotBeRemoved))
	}

	var messages []string
	if !manifest.Exists(i.cfg.PluginsDir, name) {
		messages = append(messages, i.phrases.Get(i18n.KeyPluginFilesMissed))
	}

	if err := i.helper.Uninstall(ctx, name); err != nil {
		i.logger.Error("卸载插件失败", "plugin", name, "error", err)
		return api.Fail(append(messages, i.message(err))...)
	}
	messages = append(messages, i.phrases.Get(i18n.KeyPluginUninstalled))

	i.recorder.Write(audit.ActionUninstall, map[string]string{
		"type": api.TypePlugin,
		"name": name,
	})
	i.invalidateConfig()
	i.logger.Info("插件已卸载", "plugin", name)
	return api.ActionResult{Result: true, Messages: messages}
}

// invalidateConfig 清除全局配置缓存
func (i *Installer) invalidateConfig() {
	if i.cache == nil {
		return
	}
	if err := i.cache.Remove(cache.KeyConfig); err != nil {
		i.logger.Warn("清除配置缓存失败", "error", err)
	}
}
