package i18n

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/hashicorp/go-hclog"
	"gopkg.in/yaml.v3"
)

// 短语键
const (
	KeyAccessDenied            = "access_denied"
	KeyInvalidParameters       = "invalid_parameters"
	KeyFileDoesntExist         = "file_doesnt_exist"
	KeyIncompatible            = "incompatible"
	KeyUploadModuleError       = "upload_module_error"
	KeyInsufficientDiskSpace   = "insufficient_disk_space"
	KeyInstallationImpossible  = "installation_impossible"
	KeyPluginInstalled         = "plugin_installed"
	KeyPluginReinstalled       = "plugin_reinstalled"
	KeyPluginUpdated           = "plugin_updated"
	KeyPluginUninstalled       = "plugin_uninstalled"
	KeyPluginMayNotBeRemoved   = "plugin_may_not_be_removed"
	KeyPluginFilesMissed       = "plugin_files_physically_missed"
	KeyPluginStatusNotChanged  = "plugin_status_may_not_be_changed"
	KeyPluginRequired          = "plugin_required"
	KeyIncorrectRemoteFormat   = "error_incorrect_format_from_remote"
	KeyIncorrectRemoteResponse = "error_incorrect_response_from_remote"
	KeyManifestInvalid         = "manifest_invalid"
	KeyAdditionalInfo          = "additional_info"
	KeyChanges                 = "changes_saved"
)

// DefaultPhrases 内置英文短语，短语文件中的同名键会覆盖它们
func DefaultPhrases() map[string]string {
	return map[string]string{
		KeyAccessDenied:            "Access denied.",
		KeyInvalidParameters:       "Invalid parameters.",
		KeyFileDoesntExist:         "Installation file does not exist.",
		KeyIncompatible:            "The plugin is not compatible with this version of the platform.",
		KeyUploadModuleError:       "Plugins folder is not writable, the plugin could not be uploaded.",
		KeyInsufficientDiskSpace:   "Not enough free disk space to extract the plugin.",
		KeyInstallationImpossible:  "Installation is impossible.",
		KeyPluginInstalled:         "Plugin \":name\" installed.",
		KeyPluginReinstalled:       "Plugin \":name\" reinstalled.",
		KeyPluginUpdated:           "Plugin updated.",
		KeyPluginUninstalled:       "Plugin uninstalled.",
		KeyPluginMayNotBeRemoved:   "This plugin may not be removed.",
		KeyPluginFilesMissed:       "Plugin files are physically missing.",
		KeyPluginStatusNotChanged:  "Plugin status may not be changed.",
		KeyPluginRequired:          "Plugin \":name\" is required.",
		KeyIncorrectRemoteFormat:   "Incorrect format of the response from the remote server.",
		KeyIncorrectRemoteResponse: "Incorrect response from the remote server.",
		KeyManifestInvalid:         "Installation file is invalid.",
		KeyAdditionalInfo:          "Additional info",
		KeyChanges:                 "Changes saved.",
	}
}

// Translator 短语查找接口
type Translator interface {
	Get(key string, def ...string) string
	Getf(key string, replacements map[string]string) string
}

// Phrases 本地化短语表
type Phrases struct {
	mu     sync.RWMutex
	values map[string]string
	path   string
	logger hclog.Logger
}

// New 使用内置短语和给定覆盖值创建短语表
func New(overrides map[string]string) *Phrases {
	p := &Phrases{values: DefaultPhrases(), logger: hclog.NewNullLogger()}
	for k, v := range overrides {
		p.values[k] = v
	}
	return p
}

// Load 从YAML文件加载短语，path为空时只使用内置短语
func Load(path string, logger hclog.Logger) (*Phrases, error) {
	p := New(nil)
	p.path = path
	if logger != nil {
		p.logger = logger.Named("i18n")
	}
	if path == "" {
		return p, nil
	}
	if err := p.Reload(); err != nil {
		return nil, err
	}
	return p, nil
}

// Path 返回短语文件路径
func (p *Phrases) Path() string {
	return p.path
}

// Reload 重新读取短语文件
func (p *Phrases) Reload() error {
	if p.path == "" {
		return nil
	}

	data, err := os.ReadFile(p.path)
	if err != nil {
		return fmt.Errorf("读取短语文件失败: %w", err)
	}

	var overrides map[string]string
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return fmt.Errorf("解析短语文件失败: %w", err)
	}

	values := DefaultPhrases()
	for k, v := range overrides {
		values[k] = v
	}

	p.mu.Lock()
	p.values = values
	p.mu.Unlock()

	p.logger.Info("短语已加载", "path", p.path, "count", len(overrides))
	return nil
}

// Get 获取短语，不存在时返回默认值或 {key}
func (p *Phrases) Get(key string, def ...string) string {
	p.mu.RLock()
	value, ok := p.values[key]
	p.mu.RUnlock()

	if ok {
		return value
	}
	if len(def) > 0 {
		return def[0]
	}
	return "{" + key + "}"
}

// Getf 获取短语并替换 :name 形式的占位符
func (p *Phrases) Getf(key string, replacements map[string]string) string {
	value := p.Get(key)
	for k, v := range replacements {
		value = strings.ReplaceAll(value, ":"+k, v)
	}
	return value
}
