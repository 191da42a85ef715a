package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/hashicorp/go-hclog"
)

// ChangeType 表示文件变更类型
type ChangeType int

// 预定义变更类型
const (
	ChangeTypeCreate ChangeType = iota // 创建
	ChangeTypeUpdate                   // 更新
	ChangeTypeDelete                   // 删除
	ChangeTypeRename                   // 重命名
	ChangeTypeChmod                    // 权限变更
)

// String 返回变更类型的字符串表示
func (ct ChangeType) String() string {
	switch ct {
	case ChangeTypeCreate:
		return "Create"
	case ChangeTypeUpdate:
		return "Update"
	case ChangeTypeDelete:
		return "Delete"
	case ChangeTypeRename:
		return "Rename"
	case ChangeTypeChmod:
		return "Chmod"
	default:
		return "Unknown"
	}
}

// ChangeEvent 文件变更事件
type ChangeEvent struct {
	Type ChangeType
	Path string
	Time time.Time
}

// ChangeHandler 变更处理器
type ChangeHandler func(event ChangeEvent) error

// Watcher 监视短语文件等运行时可重载的文件
// 处理器按文件路径或所在目录注册，事件经过去抖后分发
type Watcher struct {
	watcher      *fsnotify.Watcher
	handlers     map[string][]ChangeHandler
	paths        map[string]bool
	logger       hclog.Logger
	mu           sync.RWMutex
	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	debounceTime time.Duration
	events       chan fsnotify.Event
}

// NewWatcher 创建一个新的文件监视器
func NewWatcher(logger hclog.Logger) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("创建文件监视器失败: %w", err)
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Watcher{
		watcher:      watcher,
		handlers:     make(map[string][]ChangeHandler),
		paths:        make(map[string]bool),
		logger:       logger.Named("watcher"),
		ctx:          ctx,
		cancel:       cancel,
		debounceTime: 100 * time.Millisecond,
		events:       make(chan fsnotify.Event, 100),
	}, nil
}

// Watch 添加监视路径并注册处理器
func (w *Watcher) Watch(path string, handler ChangeHandler) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	path = filepath.Clean(path)
	if !w.paths[path] {
		if err := w.watcher.Add(path); err != nil {
			return fmt.Errorf("添加监视路径失败: %w", err)
		}
		w.paths[path] = true
		w.logger.Debug("添加监视路径", "path", path)
	}

	w.handlers[path] = append(w.handlers[path], handler)
	return nil
}

// SetDebounceTime 设置去抖时间
func (w *Watcher) SetDebounceTime(duration time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.debounceTime = duration
}

// Start 启动监视
func (w *Watcher) Start() {
	w.logger.Info("启动文件监视")

	w.wg.Add(2)
	go w.collectEvents()
	go w.processEvents()
}

// Stop 停止监视
func (w *Watcher) Stop() error {
	w.logger.Info("停止文件监视")
	w.cancel()
	w.wg.Wait()
	return w.watcher.Close()
}

// collectEvents 收集事件
func (w *Watcher) collectEvents() {
	defer w.wg.Done()

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			select {
			case w.events <- event:
			case <-w.ctx.Done():
				return
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("监视器错误", "error", err)
		case <-w.ctx.Done():
			return
		}
	}
}

// processEvents 对事件去重后分发
func (w *Watcher) processEvents() {
	defer w.wg.Done()

	pending := make(map[string]fsnotify.Event)
	timer := time.NewTimer(time.Hour)
	timer.Stop()

	for {
		select {
		case event := <-w.events:
			pending[event.Name] = event
			w.mu.RLock()
			timer.Reset(w.debounceTime)
			w.mu.RUnlock()
		case <-timer.C:
			for _, event := range pending {
				w.dispatch(event)
			}
			pending = make(map[string]fsnotify.Event)
		case <-w.ctx.Done():
			timer.Stop()
			return
		}
	}
}

// dispatch 处理单个事件
func (w *Watcher) dispatch(event fsnotify.Event) {
	var changeType ChangeType
	switch {
	case event.Op&fsnotify.Create == fsnotify.Create:
		changeType = ChangeTypeCreate
	case event.Op&fsnotify.Write == fsnotify.Write:
		changeType = ChangeTypeUpdate
	case event.Op&fsnotify.Remove == fsnotify.Remove:
		changeType = ChangeTypeDelete
	case event.Op&fsnotify.Rename == fsnotify.Rename:
		changeType = ChangeTypeRename
	case event.Op&fsnotify.Chmod == fsnotify.Chmod:
		changeType = ChangeTypeChmod
	default:
		w.logger.Warn("未知事件类型", "op", event.Op.String())
		return
	}

	path := filepath.Clean(event.Name)
	change := ChangeEvent{Type: changeType, Path: path, Time: time.Now()}

	w.mu.RLock()
	handlers := append([]ChangeHandler(nil), w.handlers[path]...)
	if dir := filepath.Dir(path); dir != path {
		handlers = append(handlers, w.handlers[dir]...)
	}
	w.mu.RUnlock()

	for _, handler := range handlers {
		if err := handler(change); err != nil {
			w.logger.Error("处理文件变更失败", "path", path, "error", err)
		}
	}
}
