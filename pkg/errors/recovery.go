package errors

import (
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
)

// CodePanic 由panic转换来的错误代码
const CodePanic = "panic"

// RecoveryStats 恢复统计信息
type RecoveryStats struct {
	TotalPanics   int64
	LastPanicTime time.Time
}

// Recoverer 将panic记录日志并转换为错误
type Recoverer struct {
	logger hclog.Logger
	stats  RecoveryStats
	mu     sync.RWMutex
}

// NewRecoverer 创建恢复器
func NewRecoverer(logger hclog.Logger) *Recoverer {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Recoverer{logger: logger}
}

// HandlePanic 处理panic，返回带调用栈的内部错误
func (r *Recoverer) HandlePanic(p interface{}) error {
	r.mu.Lock()
	r.stats.TotalPanics++
	r.stats.LastPanicTime = time.Now()
	r.mu.Unlock()

	stack := debug.Stack()
	r.logger.Error("恢复panic", "panic", p, "stack", string(stack))

	return New(ErrorTypeInternal, CodePanic, fmt.Sprintf("Panic: %v", p)).
		WithContext("stack", string(stack))
}

// GetStats 获取统计信息
func (r *Recoverer) GetStats() RecoveryStats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stats
}

// SafeExec 执行f，panic转换为错误返回
func (r *Recoverer) SafeExec(f func() error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = r.HandlePanic(p)
		}
	}()
	return f()
}

// SafeGo 在goroutine中执行f，panic只记录日志
func (r *Recoverer) SafeGo(f func()) {
	go func() {
		defer func() {
			if p := recover(); p != nil {
				r.HandlePanic(p)
			}
		}()
		f()
	}()
}
