package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
)

// LogLevel 日志级别
type LogLevel string

// 预定义日志级别
const (
	LogLevelTrace LogLevel = "trace"
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// LogFormat 日志格式
type LogFormat string

// 预定义日志格式
const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

// LogOutput 日志输出
type LogOutput string

// 预定义日志输出
const (
	LogOutputStdout LogOutput = "stdout"
	LogOutputStderr LogOutput = "stderr"
	LogOutputFile   LogOutput = "file"
)

// LogConfig 日志配置
type LogConfig struct {
	Level           LogLevel  `mapstructure:"level"`            // 日志级别
	Format          LogFormat `mapstructure:"format"`           // 日志格式
	Output          LogOutput `mapstructure:"output"`           // 日志输出
	FilePath        string    `mapstructure:"file_path"`        // 日志文件路径
	IncludeLocation bool      `mapstructure:"include_location"` // 是否包含代码位置
	TimeFormat      string    `mapstructure:"time_format"`      // 时间格式
}

// DefaultLogConfig 默认日志配置
func DefaultLogConfig() *LogConfig {
	return &LogConfig{
		Level:      LogLevelInfo,
		Format:     LogFormatText,
		Output:     LogOutputStderr,
		FilePath:   "logs/pluginadmin.log",
		TimeFormat: time.RFC3339,
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// NewLogger 根据配置创建hclog日志记录器
// 返回的Closer在输出为文件时负责关闭文件
func NewLogger(name string, config *LogConfig) (hclog.Logger, io.Closer, error) {
	if config == nil {
		config = DefaultLogConfig()
	}

	writer, closer, err := OpenWriter(config.Output, config.FilePath)
	if err != nil {
		return nil, nil, err
	}

	logger := hclog.New(&hclog.LoggerOptions{
		Name:            name,
		Level:           ParseLevel(string(config.Level)),
		Output:          writer,
		JSONFormat:      config.Format == LogFormatJSON,
		IncludeLocation: config.IncludeLocation,
		TimeFormat:      config.TimeFormat,
	})

	return logger, closer, nil
}

// OpenWriter 打开日志输出
func OpenWriter(output LogOutput, path string) (io.Writer, io.Closer, error) {
	switch output {
	case LogOutputStdout:
		return os.Stdout, nopCloser{}, nil
	case LogOutputStderr, "":
		return os.Stderr, nopCloser{}, nil
	case LogOutputFile:
		// 确保目录存在
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, nil, fmt.Errorf("创建日志目录失败: %w", err)
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, nil, fmt.Errorf("打开日志文件失败: %w", err)
		}
		return f, f, nil
	default:
		return nil, nil, fmt.Errorf("不支持的日志输出: %s", output)
	}
}

// ParseLevel 根据字符串获取hclog日志级别
func ParseLevel(level string) hclog.Level {
	switch LogLevel(strings.ToLower(level)) {
	case LogLevelTrace:
		return hclog.Trace
	case LogLevelDebug:
		return hclog.Debug
	case LogLevelInfo:
		return hclog.Info
	case LogLevelWarn:
		return hclog.Warn
	case LogLevelError:
		return hclog.Error
	default:
		return hclog.Info
	}
}
