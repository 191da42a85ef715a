// Package docs 渲染插件目录中的文档标签页和信息卡片
package docs

import (
	"html"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/lomehong/pluginadmin/pkg/errors"
	"github.com/lomehong/pluginadmin/pkg/i18n"
	"github.com/lomehong/pluginadmin/pkg/plugin/api"
	"github.com/lomehong/pluginadmin/pkg/plugin/manifest"
)

// defaultTemplate 信息卡片模板文件不存在时使用
const defaultTemplate = `<table class="table plugin-info">
{icon}
<tr><td><strong>{name}</strong></td></tr>
<tr><td>Author: {author}</td></tr>
<tr><td>Contributor: {contributor}</td></tr>
<tr><td>Version: {version}</td></tr>
<tr><td>Date: {date}</td></tr>
<tr><td>Compatibility: {compatibility}</td></tr>
{link}
</table>`

var issueRef = regexp.MustCompile(`#(\d+)`)

// Config 文档渲染配置
type Config struct {
	PluginsDir    string
	SiteURL       string
	AssetsURL     string
	IssueURL      string
	PluginInfoURL string
	// TemplatePath 信息卡片模板
	TemplatePath string
}

// Renderer 文档渲染器
type Renderer struct {
	cfg     Config
	phrases i18n.Translator
	logger  hclog.Logger
}

// NewRenderer 创建文档渲染器
func NewRenderer(cfg Config, phrases i18n.Translator, logger hclog.Logger) *Renderer {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Renderer{
		cfg:     cfg,
		phrases: phrases,
		logger:  logger.Named("docs"),
	}
}

func validName(name string) bool {
	return name != "" && !strings.ContainsAny(name, `/\`) && !strings.Contains(name, "..")
}

// Render 渲染插件文档，没有docs目录时返回空结果
func (r *Renderer) Render(name string) (api.DocumentationResult, error) {
	if !validName(name) {
		return api.DocumentationResult{}, errors.New(errors.ErrorTypeValidation, i18n.KeyInvalidParameters, "无效的插件名").
			WithContext("plugin", name)
	}

	docsDir := filepath.Join(r.cfg.PluginsDir, name, "docs")
	entries, err := os.ReadDir(docsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return api.DocumentationResult{}, nil
		}
		return api.DocumentationResult{}, errors.Wrap(err, errors.ErrorTypeInternal, i18n.KeyFileDoesntExist, "读取文档目录失败")
	}

	var result api.DocumentationResult
	for _, entry := range entries {
		file := entry.Name()
		if strings.HasPrefix(file, ".") || !entry.Type().IsRegular() {
			continue
		}
		content, err := os.ReadFile(filepath.Join(docsDir, file))
		if err != nil {
			r.logger.Warn("读取文档失败", "plugin", name, "file", file, "error", err)
			continue
		}
		result.Tabs = append(result.Tabs, r.tab(file, string(content)))
	}

	info, err := r.info(name)
	if err != nil {
		r.logger.Warn("生成插件信息失败", "plugin", name, "error", err)
	}
	result.Info = info
	return result, nil
}

func (r *Renderer) tab(file, content string) api.DocTab {
	key := strings.TrimSuffix(file, filepath.Ext(file))
	content = strings.ReplaceAll(content, "{IA_URL}", r.cfg.SiteURL)
	if key == "changelog" {
		content = issueRef.ReplaceAllString(content,
			`<a href="`+r.cfg.IssueURL+`$1" target="_blank">#$1</a>`)
	}
	return api.DocTab{
		Title:    r.phrases.Get("extra_"+key, key),
		HTML:     content,
		CSSClass: "extension-docs extension-docs--" + key,
	}
}

func (r *Renderer) template() string {
	if r.cfg.TemplatePath == "" {
		return defaultTemplate
	}
	data, err := os.ReadFile(r.cfg.TemplatePath)
	if err != nil {
		r.logger.Debug("信息卡片模板不可用，使用默认模板", "path", r.cfg.TemplatePath, "error", err)
		return defaultTemplate
	}
	return string(data)
}

// info 使用清单信息填充信息卡片模板
func (r *Renderer) info(name string) (string, error) {
	m, err := manifest.Load(r.cfg.PluginsDir, name)
	if err != nil {
		return "", err
	}

	var icon string
	if _, err := os.Stat(filepath.Join(r.cfg.PluginsDir, name, "docs", "img", "icon.png")); err == nil {
		icon = `<tr><td class="plugin-icon"><img src="` + r.cfg.AssetsURL + `modules/` + name +
			`/docs/img/icon.png" alt="` + html.EscapeString(m.Info.Title) + `"></td></tr>`
	}
	link := `<tr><td><a href="` + r.cfg.PluginInfoURL + name + `.html" class="btn btn-block btn-info" target="_blank">` +
		html.EscapeString(r.phrases.Get(i18n.KeyAdditionalInfo)) + `</a><br></td></tr>`

	replacer := strings.NewReplacer(
		"{icon}", icon,
		"{link}", link,
		"{name}", html.EscapeString(m.Info.Title),
		"{author}", html.EscapeString(m.Info.Author),
		"{contributor}", html.EscapeString(m.Info.Contributor),
		"{version}", html.EscapeString(m.Info.Version),
		"{date}", html.EscapeString(m.Info.Date),
		"{compatibility}", html.EscapeString(m.Compatibility),
	)
	return replacer.Replace(r.template()), nil
}
