// Package catalog 提供已安装、本地和远程三种插件目录，
// 统一输出插件描述符并执行过滤、排序和分页。
package catalog

import (
	"context"

	"github.com/lomehong/pluginadmin/pkg/plugin/api"
	"github.com/lomehong/pluginadmin/pkg/plugin/registry"
)

// Lister 插件目录
type Lister interface {
	List(ctx context.Context, req api.ListRequest) api.ListResult
}

// AdminController 插件管理后台控制器
type AdminController interface {
	// ListPage 按请求类型列出插件
	ListPage(ctx context.Context, req api.ListRequest) api.ListResult
	// HandleAction 执行安装、重新安装或卸载
	HandleAction(ctx context.Context, rc api.RequestContext, req api.ActionRequest) api.ActionResult
	// Documentation 返回插件文档
	Documentation(ctx context.Context, name string) api.DocumentationResult
}

// InstalledLookup 查询已安装模块的名称和版本
type InstalledLookup interface {
	InstalledVersions(ctx context.Context, moduleType string) (map[string]string, error)
}

// InstalledStore 已安装插件目录所需的注册表操作
type InstalledStore interface {
	InstalledLookup
	ListInstalled(ctx context.Context, q registry.Query) ([]api.InstalledRecord, error)
	CountInstalled(ctx context.Context, q registry.Query) (int, error)
	FirstConfig(ctx context.Context, module string) (name, group string, ok bool, err error)
	AdminPageAlias(ctx context.Context, name string) (string, bool, error)
}
