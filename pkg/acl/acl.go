package acl

import (
	"strings"
	"sync"
)

// Checker 访问控制检查
type Checker interface {
	IsAccessible(user, object, action string) bool
}

// PermissionChecker 基于 "对象:操作" 权限列表的访问控制
// 支持 "对象:*" 与 "*" 通配
type PermissionChecker struct {
	mu          sync.RWMutex
	permissions map[string]map[string]bool
}

// NewPermissionChecker 创建访问控制检查器，用户名不区分大小写
func NewPermissionChecker(permissions map[string][]string) *PermissionChecker {
	c := &PermissionChecker{permissions: make(map[string]map[string]bool)}
	for user, perms := range permissions {
		c.Grant(user, perms...)
	}
	return c
}

// Grant 为用户添加权限
func (c *PermissionChecker) Grant(user string, perms ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	user = strings.ToLower(user)
	set, ok := c.permissions[user]
	if !ok {
		set = make(map[string]bool)
		c.permissions[user] = set
	}
	for _, p := range perms {
		set[strings.ToLower(strings.TrimSpace(p))] = true
	}
}

// IsAccessible 检查用户是否可以对对象执行操作
func (c *PermissionChecker) IsAccessible(user, object, action string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	set, ok := c.permissions[strings.ToLower(user)]
	if !ok {
		return false
	}
	object = strings.ToLower(object)
	return set["*"] || set[object+":*"] || set[object+":"+strings.ToLower(action)]
}
