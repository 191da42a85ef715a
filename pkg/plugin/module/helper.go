// Package module 将安装清单应用到注册表：安装、升级和卸载
package module

import (
	"context"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/lomehong/pluginadmin/pkg/errors"
	"github.com/lomehong/pluginadmin/pkg/i18n"
	"github.com/lomehong/pluginadmin/pkg/plugin/api"
	"github.com/lomehong/pluginadmin/pkg/plugin/manifest"
	"github.com/lomehong/pluginadmin/pkg/plugin/version"
)

// Store 模块助手所需的注册表操作
type Store interface {
	Get(ctx context.Context, name string) (api.InstalledRecord, bool, error)
	InstalledVersions(ctx context.Context, moduleType string) (map[string]string, error)
	Save(ctx context.Context, m api.Manifest) error
	Delete(ctx context.Context, name string) error
}

// Outcome 安装结果
type Outcome struct {
	// Upgrade 已注册且清单版本更高
	Upgrade bool
	// PreviousVersion 安装前注册的版本，首次安装时为空
	PreviousVersion string
	// Groups 插件管理页面所在的菜单分组
	Groups []string
}

// Helper 模块助手
type Helper interface {
	Execute(ctx context.Context, m api.Manifest, action string) (Outcome, error)
	Uninstall(ctx context.Context, name string) error
}

// RegistryHelper 基于注册表的模块助手
type RegistryHelper struct {
	store   Store
	phrases i18n.Translator
	logger  hclog.Logger
}

// NewHelper 创建模块助手
func NewHelper(store Store, phrases i18n.Translator, logger hclog.Logger) *RegistryHelper {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &RegistryHelper{
		store:   store,
		phrases: phrases,
		logger:  logger.Named("module"),
	}
}

// Execute 校验依赖后写入注册表
func (h *RegistryHelper) Execute(ctx context.Context, m api.Manifest, action string) (Outcome, error) {
	installed, err := h.store.InstalledVersions(ctx, api.TypePlugin)
	if err != nil {
		return Outcome{}, errors.Wrap(err, errors.ErrorTypeInternal, i18n.KeyInvalidParameters, "查询已安装插件失败")
	}
	if notes := manifest.DependencyNotes(m, installed, h.phrases); len(notes) > 0 {
		return Outcome{}, errors.New(errors.ErrorTypeValidation, i18n.KeyPluginRequired, strings.Join(notes, "\n")).
			WithContext("plugin", m.Name)
	}

	prior, exists, err := h.store.Get(ctx, m.Name)
	if err != nil {
		return Outcome{}, errors.Wrap(err, errors.ErrorTypeInternal, i18n.KeyInvalidParameters, "查询模块失败")
	}

	out := Outcome{}
	if exists {
		out.PreviousVersion = prior.Version
		out.Upgrade = version.Greater(m.Info.Version, prior.Version)
	}

	if err := h.store.Save(ctx, m); err != nil {
		return Outcome{}, errors.Wrap(err, errors.ErrorTypeInternal, i18n.KeyInvalidParameters, "写入注册表失败")
	}
	if !out.Upgrade {
		out.Groups = MenuGroups(m)
	}

	h.logger.Info("模块已应用", "plugin", m.Name, "action", action, "version", m.Info.Version, "upgrade", out.Upgrade)
	return out, nil
}

// Uninstall 从注册表删除模块
func (h *RegistryHelper) Uninstall(ctx context.Context, name string) error {
	if err := h.store.Delete(ctx, name); err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, i18n.KeyInvalidParameters, "删除模块失败")
	}
	h.logger.Info("模块已卸载", "plugin", name)
	return nil
}

// MenuGroups 返回管理页面的菜单分组，按出现顺序去重
func MenuGroups(m api.Manifest) []string {
	var groups []string
	seen := make(map[string]bool)
	for _, p := range m.AdminPages {
		if p.Group == "" || seen[p.Group] {
			continue
		}
		seen[p.Group] = true
		groups = append(groups, p.Group)
	}
	return groups
}
