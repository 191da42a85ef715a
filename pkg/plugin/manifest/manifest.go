// Package manifest 解析插件目录中的安装清单 install.xml
package manifest

import (
	"bytes"
	"encoding/xml"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/lomehong/pluginadmin/pkg/errors"
	"github.com/lomehong/pluginadmin/pkg/i18n"
	"github.com/lomehong/pluginadmin/pkg/plugin/api"
)

// FileName 安装清单文件名
const FileName = "install.xml"

type xmlModule struct {
	XMLName       xml.Name `xml:"module"`
	Type          string   `xml:"type,attr"`
	Name          string   `xml:"name,attr"`
	Title         string   `xml:"title"`
	Summary       string   `xml:"summary"`
	Author        string   `xml:"author"`
	Contributor   string   `xml:"contributor"`
	Version       string   `xml:"version"`
	Date          string   `xml:"date"`
	Compatibility string   `xml:"compatibility"`
	Notes         []string `xml:"notes>note"`

	Dependencies []struct {
		Type string `xml:"type,attr"`
		Name string `xml:",chardata"`
	} `xml:"dependencies>dependency"`

	AdminPages []struct {
		Name  string `xml:"name,attr"`
		URL   string `xml:"url,attr"`
		Group string `xml:"group,attr"`
		Title string `xml:",chardata"`
	} `xml:"adminpages>page"`

	ConfigGroups []struct {
		Name  string `xml:"name,attr"`
		Title string `xml:",chardata"`
	} `xml:"configgroup"`

	Configs []struct {
		Group       string `xml:"group,attr"`
		Name        string `xml:"name,attr"`
		Type        string `xml:"type,attr"`
		Description string `xml:"description,attr"`
		Value       string `xml:",chardata"`
	} `xml:"config"`
}

// Parse 解析清单内容
func Parse(data []byte) (api.Manifest, error) {
	var doc xmlModule
	decoder := xml.NewDecoder(bytes.NewReader(data))
	// 清单文件常见非UTF-8声明，内容按原样读取
	decoder.CharsetReader = func(_ string, r io.Reader) (io.Reader, error) { return r, nil }
	if err := decoder.Decode(&doc); err != nil {
		return api.Manifest{}, errors.Wrap(err, errors.ErrorTypeValidation, i18n.KeyManifestInvalid, "解析安装清单失败")
	}

	m := api.Manifest{
		Name:          strings.TrimSpace(doc.Name),
		Type:          strings.TrimSpace(doc.Type),
		Compatibility: strings.TrimSpace(doc.Compatibility),
		Info: api.ManifestInfo{
			Title:       strings.TrimSpace(doc.Title),
			Version:     strings.TrimSpace(doc.Version),
			Author:      strings.TrimSpace(doc.Author),
			Contributor: strings.TrimSpace(doc.Contributor),
			Summary:     strings.TrimSpace(doc.Summary),
			Date:        strings.TrimSpace(doc.Date),
		},
	}
	if m.Name == "" || m.Type == "" {
		return api.Manifest{}, errors.New(errors.ErrorTypeValidation, i18n.KeyManifestInvalid, "安装清单缺少名称或类型")
	}
	if m.Info.Title == "" {
		m.Info.Title = m.Name
	}

	for _, n := range doc.Notes {
		if n = strings.TrimSpace(n); n != "" {
			m.Notes = append(m.Notes, n)
		}
	}
	for _, d := range doc.Dependencies {
		dep := api.Dependency{Name: strings.TrimSpace(d.Name), Type: strings.TrimSpace(d.Type)}
		if dep.Type == "" {
			dep.Type = api.TypePlugin
		}
		if dep.Name != "" {
			m.Dependencies = append(m.Dependencies, dep)
		}
	}
	for _, p := range doc.AdminPages {
		page := api.AdminPage{
			Name:  strings.TrimSpace(p.Name),
			Alias: strings.TrimSpace(p.URL),
			Group: strings.TrimSpace(p.Group),
			Title: strings.TrimSpace(p.Title),
		}
		if page.Name == "" {
			page.Name = m.Name
		}
		if page.Alias == "" {
			page.Alias = page.Name
		}
		m.AdminPages = append(m.AdminPages, page)
	}
	for _, g := range doc.ConfigGroups {
		m.ConfigGroups = append(m.ConfigGroups, api.ConfigGroup{
			Name:  strings.TrimSpace(g.Name),
			Title: strings.TrimSpace(g.Title),
		})
	}
	for i, c := range doc.Configs {
		m.Configs = append(m.Configs, api.ConfigEntry{
			Name:        strings.TrimSpace(c.Name),
			Group:       strings.TrimSpace(c.Group),
			Type:        strings.TrimSpace(c.Type),
			Description: strings.TrimSpace(c.Description),
			Value:       strings.TrimSpace(c.Value),
			Order:       i + 1,
		})
	}

	return m, nil
}

// Path 返回插件目录中清单的路径
func Path(pluginsDir, folder string) string {
	return filepath.Join(pluginsDir, folder, FileName)
}

// Exists 检查清单是否存在
func Exists(pluginsDir, folder string) bool {
	info, err := os.Stat(Path(pluginsDir, folder))
	return err == nil && info.Mode().IsRegular()
}

// Load 读取并解析插件目录中的清单
func Load(pluginsDir, folder string) (api.Manifest, error) {
	path := Path(pluginsDir, folder)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return api.Manifest{}, errors.New(errors.ErrorTypeNotFound, i18n.KeyFileDoesntExist, "安装清单不存在").
				WithContext("path", path)
		}
		return api.Manifest{}, errors.Wrap(err, errors.ErrorTypeInternal, i18n.KeyFileDoesntExist, "读取安装清单失败")
	}
	return Parse(data)
}

// MissingDependencies 返回未安装的插件依赖
func MissingDependencies(m api.Manifest, installed map[string]string) []string {
	var missing []string
	for _, d := range m.Dependencies {
		if d.Type != api.TypePlugin {
			continue
		}
		if _, ok := installed[d.Name]; !ok {
			missing = append(missing, d.Name)
		}
	}
	return missing
}

// DependencyNotes 将未满足的依赖转换为说明文字
func DependencyNotes(m api.Manifest, installed map[string]string, tr i18n.Translator) []string {
	var notes []string
	for _, name := range MissingDependencies(m, installed) {
		notes = append(notes, tr.Getf(i18n.KeyPluginRequired, map[string]string{"name": name}))
	}
	return notes
}
