package catalog

import (
	"context"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/lomehong/pluginadmin/pkg/cache"
	"github.com/lomehong/pluginadmin/pkg/errors"
	"github.com/lomehong/pluginadmin/pkg/i18n"
	"github.com/lomehong/pluginadmin/pkg/plugin/api"
	"github.com/lomehong/pluginadmin/pkg/plugin/version"
	"github.com/lomehong/pluginadmin/pkg/remote"
	"github.com/tidwall/gjson"
)

// remotePayload 缓存的远程目录
type remotePayload struct {
	Plugins []api.Descriptor `json:"plugins"`
}

// Remote 远程插件目录
type Remote struct {
	installed InstalledLookup
	fetcher   remote.Fetcher
	cache     cache.Cache
	toolsURL  string
	platform  string
	ttl       time.Duration
	phrases   i18n.Translator
	logger    hclog.Logger
}

// RemoteConfig 远程目录配置
type RemoteConfig struct {
	ToolsURL string
	Platform string
	TTL      time.Duration
}

// NewRemote 创建远程插件目录
func NewRemote(installed InstalledLookup, fetcher remote.Fetcher, c cache.Cache, cfg RemoteConfig,
	phrases i18n.Translator, logger hclog.Logger) *Remote {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	if cfg.TTL <= 0 {
		cfg.TTL = time.Hour
	}
	return &Remote{
		installed: installed,
		fetcher:   fetcher,
		cache:     c,
		toolsURL:  cfg.ToolsURL,
		platform:  cfg.Platform,
		ttl:       cfg.TTL,
		phrases:   phrases,
		logger:    logger.Named("catalog-remote"),
	}
}

// ListURL 远程目录地址
func (c *Remote) ListURL() string {
	return c.toolsURL + "list/plugin/" + c.platform
}

// List 获取远程目录（优先使用缓存），排除已安装插件后过滤、排序、分页
// 远程服务出错时返回消息且不返回数据，不重试
func (c *Remote) List(ctx context.Context, req api.ListRequest) api.ListResult {
	items, err := c.load(ctx)
	if err != nil {
		return api.ListResult{Data: []api.Descriptor{}, Messages: []string{c.message(err)}}
	}

	installed, err := c.installed.InstalledVersions(ctx, api.TypePlugin)
	if err != nil {
		c.logger.Error("查询已安装插件失败", "error", err)
		return api.ListResult{Data: []api.Descriptor{}}
	}

	available := make([]api.Descriptor, 0, len(items))
	for _, d := range items {
		if _, ok := installed[d.Name]; !ok {
			available = append(available, d)
		}
	}
	return SortFilterPaginate(available, req)
}

// message 将错误转换为界面消息，远程服务自带的错误文本原样返回
func (c *Remote) message(err error) string {
	var appErr *errors.AppError
	if errors.As(err, &appErr) {
		if appErr.Code == "" {
			return appErr.Message
		}
		return c.phrases.Get(appErr.Code)
	}
	return c.phrases.Get(i18n.KeyIncorrectRemoteResponse)
}

func (c *Remote) load(ctx context.Context) ([]api.Descriptor, error) {
	var payload remotePayload
	if c.cache != nil {
		hit, err := c.cache.Get(cache.KeyRemotePlugins, c.ttl, &payload)
		if err != nil {
			c.logger.Warn("读取远程目录缓存失败", "error", err)
		}
		if hit {
			return payload.Plugins, nil
		}
	}

	data, err := c.fetcher.Get(ctx, c.ListURL())
	if err != nil {
		return nil, err
	}

	items, cacheable, err := ParseRemote(data, c.platform)
	if err != nil {
		c.logger.Warn("远程目录响应无效", "url", c.ListURL(), "error", err)
		return nil, err
	}

	if cacheable && c.cache != nil {
		if err := c.cache.Write(cache.KeyRemotePlugins, remotePayload{Plugins: items}); err != nil {
			c.logger.Warn("写入远程目录缓存失败", "error", err)
		}
	}
	c.logger.Debug("已获取远程目录", "count", len(items))
	return items, nil
}

// truthy 判断JSON值是否为非空
func truthy(r gjson.Result) bool {
	switch r.Type {
	case gjson.String:
		return r.Str != "" && r.Str != "0"
	case gjson.Number:
		return r.Num != 0
	case gjson.True:
		return true
	case gjson.JSON:
		return r.Raw != "[]" && r.Raw != "{}"
	default:
		return false
	}
}

// ParseRemote 解析远程目录响应 {error?, total, extensions[]}
// total 为0时返回空列表且不应缓存
func ParseRemote(data []byte, platform string) (items []api.Descriptor, cacheable bool, err error) {
	if !gjson.ValidBytes(data) {
		return nil, false, errors.New(errors.ErrorTypeRemoteFetch, i18n.KeyIncorrectRemoteResponse, "远程目录响应不是有效的JSON")
	}
	res := gjson.ParseBytes(data)

	if e := res.Get("error"); truthy(e) {
		return nil, false, errors.New(errors.ErrorTypeRemoteFetch, "", e.String())
	}
	if res.Get("total").Int() <= 0 {
		return []api.Descriptor{}, false, nil
	}

	extensions := res.Get("extensions")
	if !extensions.IsArray() {
		return nil, false, errors.New(errors.ErrorTypeRemoteFetch, i18n.KeyIncorrectRemoteFormat, "远程目录缺少extensions")
	}

	items = []api.Descriptor{}
	seen := make(map[string]bool)
	extensions.ForEach(func(_, entry gjson.Result) bool {
		name := entry.Get("name").String()
		if name == "" || seen[name] {
			return true
		}
		seen[name] = true

		compat := entry.Get("compatibility")
		summary := entry.Get("description").String()
		if summary == "" {
			summary = entry.Get("summary").String()
		}

		items = append(items, api.Descriptor{
			Name:          name,
			Title:         entry.Get("title").String(),
			Version:       entry.Get("version").String(),
			Compatibility: compat.String(),
			Author:        entry.Get("author").String(),
			Summary:       summary,
			Date:          time.Unix(entry.Get("date").Int(), 0).UTC().Format(DateFormat),
			File:          name,
			Installable:   compat.Exists() && version.AtMost(compat.String(), platform),
			Source:        api.SourceRemote,
		})
		return true
	})
	return items, true, nil
}
