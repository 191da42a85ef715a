package api

import "strings"

// TypePlugin 插件类型的模块
const TypePlugin = "plugin"

// Source 描述符来源
type Source string

// 描述符来源
const (
	SourceInstalled Source = "installed"
	SourceLocal     Source = "local"
	SourceRemote    Source = "remote"
)

// ParseSource 解析列表类型，未知类型返回false
func ParseSource(s string) (Source, bool) {
	switch Source(s) {
	case SourceInstalled, SourceLocal, SourceRemote:
		return Source(s), true
	default:
		return "", false
	}
}

// Descriptor 插件描述符，三种来源的列表统一使用此结构
type Descriptor struct {
	ID            int64  `json:"id,omitempty"`
	Name          string `json:"name"`
	Title         string `json:"title"`
	Version       string `json:"version"`
	Compatibility string `json:"compatibility,omitempty"`
	Author        string `json:"author"`
	Summary       string `json:"description"`
	Date          string `json:"date"`
	Status        string `json:"status,omitempty"`

	// File 插件所在的目录名
	File  string `json:"file"`
	Notes string `json:"notes,omitempty"`

	// Config 配置锚点，形如 <config_group>/#<name>
	Config string `json:"config,omitempty"`
	// Manage 管理页面别名
	Manage string `json:"manage,omitempty"`
	// Upgrade 可升级时为插件名
	Upgrade string `json:"upgrade,omitempty"`

	Removable   bool `json:"removable"`
	Installable bool `json:"install"`
	Info        bool `json:"info"`
	Reinstall   bool `json:"reinstall"`
	Uninstall   bool `json:"uninstall"`
	Remove      bool `json:"remove"`

	Source Source `json:"source"`
}

// InstalledRecord 注册表中的插件记录
type InstalledRecord struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Title     string `json:"title"`
	Version   string `json:"version"`
	Status    string `json:"status"`
	Author    string `json:"author"`
	Summary   string `json:"summary"`
	Removable bool   `json:"removable"`
	Date      string `json:"date"`
	Type      string `json:"type"`
}

// ManifestInfo 清单中的基本信息
type ManifestInfo struct {
	Title       string
	Version     string
	Author      string
	Contributor string
	Summary     string
	Date        string
}

// Dependency 清单声明的依赖
type Dependency struct {
	Name string
	Type string
}

// AdminPage 插件提供的管理页面
type AdminPage struct {
	Name  string
	Alias string
	Group string
	Title string
}

// ConfigGroup 插件的配置分组
type ConfigGroup struct {
	Name  string
	Title string
}

// ConfigEntry 插件的配置项
type ConfigEntry struct {
	Name        string
	Group       string
	Type        string
	Description string
	Value       string
	Order       int
}

// Manifest 安装清单（install.xml）解析结果
type Manifest struct {
	Name          string
	Type          string
	Compatibility string
	Info          ManifestInfo
	// Notes 安装说明（发布说明）
	Notes        []string
	Dependencies []Dependency
	AdminPages   []AdminPage
	ConfigGroups []ConfigGroup
	Configs      []ConfigEntry
}

// 排序方向
const (
	DirAsc  = "ASC"
	DirDesc = "DESC"
)

// DefaultLimit 默认每页条数
const DefaultLimit = 15

// ListRequest 列表请求
type ListRequest struct {
	Type   Source `form:"type" json:"type"`
	Start  int    `form:"start" json:"start"`
	Limit  int    `form:"limit" json:"limit"`
	Sort   string `form:"sort" json:"sort"`
	Dir    string `form:"dir" json:"dir"`
	Filter string `form:"filter" json:"filter"`
}

// Normalize 填充默认值：limit为0时取15，方向不区分大小写，未知方向取升序
func (r *ListRequest) Normalize() {
	if r.Start < 0 {
		r.Start = 0
	}
	if r.Limit == 0 {
		r.Limit = DefaultLimit
	}
	r.Dir = strings.ToUpper(strings.TrimSpace(r.Dir))
	switch r.Dir {
	case DirAsc, DirDesc:
	default:
		r.Dir = DirAsc
	}
}

// ListResult 列表结果
type ListResult struct {
	Data     []Descriptor `json:"data"`
	Total    int          `json:"total"`
	Messages []string     `json:"message,omitempty"`
}

// OK 列表请求是否成功
func (r ListResult) OK() bool {
	return len(r.Messages) == 0
}

// 插件操作
const (
	ActionInstall   = "install"
	ActionReinstall = "reinstall"
	ActionUninstall = "uninstall"
)

// ModeRemote 从远程服务器下载后安装
const ModeRemote = "remote"

// ActionRequest 操作请求
type ActionRequest struct {
	Action string `json:"action"`
	Name   string `form:"name" json:"name"`
	Mode   string `form:"mode" json:"mode"`
}

// Remote 是否为远程安装
func (r ActionRequest) Remote() bool {
	return r.Mode == ModeRemote
}

// ActionResult 操作结果
type ActionResult struct {
	Result   bool     `json:"result"`
	Messages []string `json:"message"`
	Groups   []string `json:"groups,omitempty"`
	Upgrade  bool     `json:"upgrade,omitempty"`

	// Denied 因权限不足被拒绝
	Denied bool `json:"-"`
}

// Fail 返回失败结果
func Fail(messages ...string) ActionResult {
	return ActionResult{Result: false, Messages: messages}
}

// DocTab 文档标签页
type DocTab struct {
	Title    string `json:"title"`
	HTML     string `json:"html"`
	CSSClass string `json:"cls"`
}

// DocumentationResult 文档结果
type DocumentationResult struct {
	Tabs []DocTab `json:"tabs,omitempty"`
	Info string   `json:"info,omitempty"`
}

// RequestContext 请求上下文，替代全局的当前用户与请求信息
type RequestContext struct {
	User      string
	RequestID string
	Remote    string
}
