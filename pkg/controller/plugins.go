// Package controller 插件管理后台控制器
package controller

import (
	"context"
	"strconv"

	"github.com/hashicorp/go-hclog"
	"github.com/lomehong/pluginadmin/pkg/acl"
	"github.com/lomehong/pluginadmin/pkg/audit"
	"github.com/lomehong/pluginadmin/pkg/cache"
	"github.com/lomehong/pluginadmin/pkg/i18n"
	"github.com/lomehong/pluginadmin/pkg/plugin/api"
	"github.com/lomehong/pluginadmin/pkg/plugin/catalog"
	"github.com/lomehong/pluginadmin/pkg/plugin/installer"
	"github.com/lomehong/pluginadmin/pkg/plugin/registry"
)

// ObjectName 访问控制中的对象名
const ObjectName = "plugins"

// 访问控制操作名
const (
	ActionStatus    = "status"
	ActionRemovable = "removable"
)

// Actions 安装与卸载
type Actions interface {
	Install(ctx context.Context, req api.ActionRequest) api.ActionResult
	Uninstall(ctx context.Context, name string) api.ActionResult
}

// DocRenderer 文档渲染
type DocRenderer interface {
	Render(name string) (api.DocumentationResult, error)
}

// SettingsStore 状态修改与配置读取
type SettingsStore interface {
	UpdateStatus(ctx context.Context, id int64, status string) (bool, error)
	SetRemovable(ctx context.Context, name string, removable bool) error
	ConfigValues(ctx context.Context) (map[string]string, error)
}

// Dependencies 控制器依赖
type Dependencies struct {
	Installed catalog.Lister
	Local     catalog.Lister
	Remote    catalog.Lister
	Actions   Actions
	Docs      DocRenderer
	ACL       acl.Checker
	Store     SettingsStore
	Cache     cache.Cache
	Recorder  installer.Recorder
	Phrases   i18n.Translator
	Logger    hclog.Logger
}

// Plugins 插件管理控制器
type Plugins struct {
	deps   Dependencies
	logger hclog.Logger
}

var _ catalog.AdminController = (*Plugins)(nil)

// NewPlugins 创建插件管理控制器
func NewPlugins(deps Dependencies) *Plugins {
	logger := deps.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Plugins{deps: deps, logger: logger.Named("plugins")}
}

// ListPage 按类型列出插件，未知类型返回空列表
func (p *Plugins) ListPage(ctx context.Context, req api.ListRequest) api.ListResult {
	var lister catalog.Lister
	switch req.Type {
	case api.SourceInstalled:
		lister = p.deps.Installed
	case api.SourceLocal:
		lister = p.deps.Local
	case api.SourceRemote:
		lister = p.deps.Remote
	}
	if lister == nil {
		return api.ListResult{Data: []api.Descriptor{}}
	}

	res := lister.List(ctx, req)
	if res.Data == nil {
		res.Data = []api.Descriptor{}
	}
	return res
}

// HandleAction 检查权限后执行安装、重新安装或卸载
func (p *Plugins) HandleAction(ctx context.Context, rc api.RequestContext, req api.ActionRequest) api.ActionResult {
	switch req.Action {
	case api.ActionInstall, api.ActionReinstall, api.ActionUninstall:
	default:
		return api.Fail(p.deps.Phrases.Get(i18n.KeyInvalidParameters))
	}

	if !p.deps.ACL.IsAccessible(rc.User, ObjectName, req.Action) {
		p.logger.Warn("拒绝访问", "user", rc.User, "action", req.Action, "request_id", rc.RequestID)
		res := api.Fail(p.deps.Phrases.Get(i18n.KeyAccessDenied))
		res.Denied = true
		return res
	}
	if req.Name == "" {
		return api.Fail(p.deps.Phrases.Get(i18n.KeyInvalidParameters))
	}

	p.logger.Info("执行插件操作", "user", rc.User, "action", req.Action, "plugin", req.Name,
		"mode", req.Mode, "request_id", rc.RequestID)

	if req.Action == api.ActionUninstall {
		return p.deps.Actions.Uninstall(ctx, req.Name)
	}
	return p.deps.Actions.Install(ctx, req)
}

// Documentation 返回插件文档，出错时返回空结果
func (p *Plugins) Documentation(ctx context.Context, name string) api.DocumentationResult {
	res, err := p.deps.Docs.Render(name)
	if err != nil {
		p.logger.Warn("渲染文档失败", "plugin", name, "error", err)
		return api.DocumentationResult{}
	}
	return res
}

// UpdateStatus 修改插件状态，只允许修改可卸载的插件
func (p *Plugins) UpdateStatus(ctx context.Context, rc api.RequestContext, id int64, status string) api.ActionResult {
	if !p.deps.ACL.IsAccessible(rc.User, ObjectName, ActionStatus) {
		res := api.Fail(p.deps.Phrases.Get(i18n.KeyAccessDenied))
		res.Denied = true
		return res
	}
	if status != registry.StatusActive && status != registry.StatusInactive {
		return api.Fail(p.deps.Phrases.Get(i18n.KeyInvalidParameters))
	}

	ok, err := p.deps.Store.UpdateStatus(ctx, id, status)
	if err != nil {
		p.logger.Error("修改插件状态失败", "id", id, "error", err)
	}
	if !ok {
		return api.Fail(p.deps.Phrases.Get(i18n.KeyPluginStatusNotChanged))
	}

	p.deps.Recorder.Write(audit.ActionStatus, map[string]string{
		"type":   api.TypePlugin,
		"id":     strconv.FormatInt(id, 10),
		"status": status,
	})
	if p.deps.Cache != nil {
		if err := p.deps.Cache.Remove(cache.KeyConfig); err != nil {
			p.logger.Warn("清除配置缓存失败", "error", err)
		}
	}
	return api.ActionResult{Result: true, Messages: []string{p.deps.Phrases.Get(i18n.KeyChanges)}}
}

// SetRemovable 标记插件是否允许卸载；不可卸载的插件也不能修改状态
func (p *Plugins) SetRemovable(ctx context.Context, rc api.RequestContext, name string, removable bool) api.ActionResult {
	if !p.deps.ACL.IsAccessible(rc.User, ObjectName, ActionRemovable) {
		res := api.Fail(p.deps.Phrases.Get(i18n.KeyAccessDenied))
		res.Denied = true
		return res
	}
	if name == "" {
		return api.Fail(p.deps.Phrases.Get(i18n.KeyInvalidParameters))
	}

	if err := p.deps.Store.SetRemovable(ctx, name, removable); err != nil {
		p.logger.Warn("修改可卸载标记失败", "plugin", name, "error", err)
		return api.Fail(p.deps.Phrases.Get(i18n.KeyInvalidParameters))
	}

	p.deps.Recorder.Write(audit.ActionStatus, map[string]string{
		"type":      api.TypePlugin,
		"name":      name,
		"removable": strconv.FormatBool(removable),
	})
	p.logger.Info("已修改可卸载标记", "user", rc.User, "plugin", name, "removable", removable)
	return api.ActionResult{Result: true, Messages: []string{p.deps.Phrases.Get(i18n.KeyChanges)}}
}

// Settings 返回全局配置，优先读取缓存；安装、卸载和状态修改会使缓存失效
func (p *Plugins) Settings(ctx context.Context) (map[string]string, error) {
	values := map[string]string{}
	if p.deps.Cache != nil {
		hit, err := p.deps.Cache.Get(cache.KeyConfig, 0, &values)
		if err != nil {
			p.logger.Warn("读取配置缓存失败", "error", err)
		}
		if hit {
			return values, nil
		}
	}

	values, err := p.deps.Store.ConfigValues(ctx)
	if err != nil {
		return nil, err
	}
	if p.deps.Cache != nil {
		if err := p.deps.Cache.Write(cache.KeyConfig, values); err != nil {
			p.logger.Warn("写入配置缓存失败", "error", err)
		}
	}
	return values, nil
}
