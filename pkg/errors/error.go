package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrorType 表示错误类型
type ErrorType int

// 预定义错误类型
const (
	ErrorTypeInternal     ErrorType = iota // 内部错误
	ErrorTypeNotFound                      // 清单或文档文件不存在
	ErrorTypeIncompatible                  // 版本范围检查失败
	ErrorTypePermission                    // 权限不足或目录不可写
	ErrorTypeRemoteFetch                   // 远程目录响应缺失或格式错误
	ErrorTypeValidation                    // 安装/卸载助手报告的错误
	ErrorTypeNotRemovable                  // 插件不可卸载或未注册
)

// String 返回错误类型的字符串表示
func (et ErrorType) String() string {
	switch et {
	case ErrorTypeInternal:
		return "Internal"
	case ErrorTypeNotFound:
		return "NotFound"
	case ErrorTypeIncompatible:
		return "Incompatible"
	case ErrorTypePermission:
		return "PermissionDenied"
	case ErrorTypeRemoteFetch:
		return "RemoteFetchFailure"
	case ErrorTypeValidation:
		return "ValidationFailure"
	case ErrorTypeNotRemovable:
		return "NotRemovable"
	default:
		return "Unknown"
	}
}

// AppError 表示应用程序错误
// Code 同时是界面展示时使用的短语键
type AppError struct {
	Type    ErrorType              // 错误类型
	Code    string                 // 错误代码（短语键）
	Message string                 // 错误消息
	Cause   error                  // 原始错误
	Context map[string]interface{} // 错误上下文
	Time    time.Time              // 错误发生时间
}

// Error 实现error接口
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap 实现errors.Unwrap接口
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithContext 添加上下文信息
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// New 创建一个新的应用程序错误
func New(errorType ErrorType, code string, message string) *AppError {
	return &AppError{
		Type:    errorType,
		Code:    code,
		Message: message,
		Time:    time.Now(),
	}
}

// Wrap 包装一个错误
func Wrap(err error, errorType ErrorType, code string, message string) *AppError {
	if err == nil {
		return nil
	}

	// 如果已经是AppError，保留原始错误类型和代码
	var appErr *AppError
	if errors.As(err, &appErr) {
		return &AppError{
			Type:    appErr.Type,
			Code:    appErr.Code,
			Message: message,
			Cause:   appErr,
			Context: appErr.Context,
			Time:    time.Now(),
		}
	}

	return &AppError{
		Type:    errorType,
		Code:    code,
		Message: message,
		Cause:   err,
		Time:    time.Now(),
	}
}

// Is 检查错误是否为指定类型
func Is(err error, target error) bool {
	return errors.Is(err, target)
}

// As 将错误转换为指定类型
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// IsType 检查错误是否为指定类型
func IsType(err error, errorType ErrorType) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == errorType
	}
	return false
}

// CodeOf 返回错误代码，非AppError返回空字符串
func CodeOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// GetContext 获取错误上下文
func GetContext(err error) map[string]interface{} {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Context
	}
	return nil
}
