package catalog

import (
	"context"

	"github.com/hashicorp/go-hclog"
	"github.com/lomehong/pluginadmin/pkg/plugin/api"
	"github.com/lomehong/pluginadmin/pkg/plugin/manifest"
	"github.com/lomehong/pluginadmin/pkg/plugin/registry"
	"github.com/lomehong/pluginadmin/pkg/plugin/version"
)

// Installed 已安装插件目录，数据来自注册表
type Installed struct {
	store      InstalledStore
	pluginsDir string
	platform   string
	logger     hclog.Logger
}

// NewInstalled 创建已安装插件目录
func NewInstalled(store InstalledStore, pluginsDir, platform string, logger hclog.Logger) *Installed {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Installed{
		store:      store,
		pluginsDir: pluginsDir,
		platform:   platform,
		logger:     logger.Named("catalog-installed"),
	}
}

// List 查询注册表并补充配置锚点、管理页面和升级标记
func (c *Installed) List(ctx context.Context, req api.ListRequest) api.ListResult {
	req.Normalize()
	q := registry.Query{
		Type:   api.TypePlugin,
		Filter: req.Filter,
		Sort:   req.Sort,
		Dir:    req.Dir,
		Start:  req.Start,
		Limit:  req.Limit,
	}

	records, err := c.store.ListInstalled(ctx, q)
	if err != nil {
		c.logger.Error("查询已安装插件失败", "error", err)
		return api.ListResult{Data: []api.Descriptor{}}
	}
	total, err := c.store.CountInstalled(ctx, q)
	if err != nil {
		c.logger.Error("统计已安装插件失败", "error", err)
	}

	data := make([]api.Descriptor, 0, len(records))
	for _, r := range records {
		data = append(data, c.describe(ctx, r))
	}
	return api.ListResult{Data: data, Total: total}
}

func (c *Installed) describe(ctx context.Context, r api.InstalledRecord) api.Descriptor {
	d := api.Descriptor{
		ID:        r.ID,
		Name:      r.Name,
		Title:     r.Title,
		Version:   r.Version,
		Status:    r.Status,
		Author:    r.Author,
		Summary:   r.Summary,
		Date:      r.Date,
		File:      r.Name,
		Removable: r.Removable,
		Info:      true,
		Reinstall: true,
		Uninstall: r.Removable,
		Remove:    r.Removable,
		Source:    api.SourceInstalled,
	}

	if name, group, ok, err := c.store.FirstConfig(ctx, r.Name); err != nil {
		c.logger.Warn("查询配置项失败", "plugin", r.Name, "error", err)
	} else if ok {
		d.Config = group + "/#" + name
	}

	if alias, ok, err := c.store.AdminPageAlias(ctx, r.Name); err != nil {
		c.logger.Warn("查询管理页面失败", "plugin", r.Name, "error", err)
	} else if ok {
		d.Manage = alias
	}

	if !manifest.Exists(c.pluginsDir, r.Name) {
		return d
	}
	m, err := manifest.Load(c.pluginsDir, r.Name)
	if err != nil {
		c.logger.Warn("解析安装清单失败", "plugin", r.Name, "error", err)
		return d
	}
	d.Compatibility = m.Compatibility
	if version.Upgradable(c.platform, m.Compatibility, m.Info.Version, r.Version) {
		d.Upgrade = r.Name
	}
	d.Name = m.Name
	return d
}
