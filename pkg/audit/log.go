// Package audit 记录插件安装、升级、卸载等管理操作，
// 以JSON行追加写入并推送给订阅者。
package audit

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Action 操作类型
type Action string

// 预定义操作类型
const (
	ActionInstall   Action = "install"
	ActionUpgrade   Action = "upgrade"
	ActionUninstall Action = "uninstall"
	ActionStatus    Action = "status"
)

// Entry 操作日志条目
type Entry struct {
	ID     string            `json:"id"`
	Time   time.Time         `json:"time"`
	Action Action            `json:"action"`
	Params map[string]string `json:"params"`
}

// Log 只追加的操作日志
type Log struct {
	logger zerolog.Logger
	closer io.Closer

	mu          sync.RWMutex
	subscribers map[int]chan Entry
	nextID      int
}

// New 创建写入w的操作日志
func New(w io.Writer) *Log {
	return &Log{
		logger:      zerolog.New(w).With().Timestamp().Logger(),
		subscribers: make(map[int]chan Entry),
	}
}

// Open 打开（或创建）操作日志文件
func Open(path string) (*Log, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("创建操作日志目录失败: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("打开操作日志失败: %w", err)
	}
	l := New(f)
	l.closer = f
	return l, nil
}

// Write 写入一条操作记录
func (l *Log) Write(action Action, params map[string]string) Entry {
	entry := Entry{
		ID:     uuid.New().String(),
		Time:   time.Now().UTC(),
		Action: action,
		Params: params,
	}

	fields := make(map[string]interface{}, len(params))
	for k, v := range params {
		fields[k] = v
	}
	l.logger.Info().
		Str("id", entry.ID).
		Str("action", string(action)).
		Fields(fields).
		Msg("plugin action")

	l.mu.RLock()
	for _, ch := range l.subscribers {
		select {
		case ch <- entry:
		default:
			// 订阅者处理过慢时丢弃
		}
	}
	l.mu.RUnlock()

	return entry
}

// Subscribe 订阅新的操作记录，返回的函数用于取消订阅
func (l *Log) Subscribe() (<-chan Entry, func()) {
	l.mu.Lock()
	defer l.mu.Unlock()

	id := l.nextID
	l.nextID++
	ch := make(chan Entry, 16)
	l.subscribers[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.subscribers, id)
			l.mu.Unlock()
			close(ch)
		})
	}
}

// Close 关闭日志文件
func (l *Log) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}
