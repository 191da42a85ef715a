package catalog

import (
	"context"
	"os"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/lomehong/pluginadmin/pkg/i18n"
	"github.com/lomehong/pluginadmin/pkg/plugin/api"
	"github.com/lomehong/pluginadmin/pkg/plugin/manifest"
)

// Local 本地插件目录：插件目录中已上传但未安装的插件
type Local struct {
	installed  InstalledLookup
	pluginsDir string
	phrases    i18n.Translator
	logger     hclog.Logger
}

// NewLocal 创建本地插件目录
func NewLocal(installed InstalledLookup, pluginsDir string, phrases i18n.Translator, logger hclog.Logger) *Local {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Local{
		installed:  installed,
		pluginsDir: pluginsDir,
		phrases:    phrases,
		logger:     logger.Named("catalog-local"),
	}
}

// Scan 扫描插件目录，返回未安装的插件描述符
func (c *Local) Scan(ctx context.Context) []api.Descriptor {
	installed, err := c.installed.InstalledVersions(ctx, api.TypePlugin)
	if err != nil {
		c.logger.Error("查询已安装插件失败", "error", err)
		return nil
	}

	entries, err := os.ReadDir(c.pluginsDir)
	if err != nil {
		c.logger.Warn("读取插件目录失败", "dir", c.pluginsDir, "error", err)
		return nil
	}

	var items []api.Descriptor
	for _, entry := range entries {
		folder := entry.Name()
		if strings.HasPrefix(folder, ".") || !entry.IsDir() || !manifest.Exists(c.pluginsDir, folder) {
			continue
		}

		m, err := manifest.Load(c.pluginsDir, folder)
		if err != nil {
			c.logger.Warn("解析安装清单失败", "folder", folder, "error", err)
			continue
		}
		if m.Type != api.TypePlugin {
			continue
		}
		if _, ok := installed[m.Name]; ok {
			continue
		}

		var notes string
		if deps := manifest.DependencyNotes(m, installed, c.phrases); len(deps) > 0 {
			notes = strings.Join(deps, "\n") + "\n\n" + c.phrases.Get(i18n.KeyInstallationImpossible)
		}

		items = append(items, api.Descriptor{
			Name:          m.Name,
			Title:         m.Info.Title,
			Version:       m.Info.Version,
			Compatibility: m.Compatibility,
			Summary:       m.Info.Summary,
			Author:        m.Info.Author,
			Date:          m.Info.Date,
			File:          folder,
			Notes:         notes,
			Info:          true,
			Installable:   true,
			Source:        api.SourceLocal,
		})
	}
	return items
}

// List 扫描后过滤、排序、分页
func (c *Local) List(ctx context.Context, req api.ListRequest) api.ListResult {
	return SortFilterPaginate(c.Scan(ctx), req)
}
