// Package version 处理插件兼容性范围与版本比较
package version

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Range 兼容性范围
// "min" 表示 min <= 平台版本，"min-max" 表示 min <= 平台版本 <= max，空字符串不限制
type Range struct {
	Min string
	Max string
}

// ParseRange 解析兼容性范围
func ParseRange(s string) (Range, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Range{}, nil
	}

	parts := strings.Split(s, "-")
	r := Range{Min: strings.TrimSpace(parts[0])}
	if len(parts) > 1 {
		r.Max = strings.TrimSpace(parts[1])
	}

	if r.Min != "" {
		if err := validate(r.Min); err != nil {
			return Range{}, fmt.Errorf("无效的最低版本 %q: %w", r.Min, err)
		}
	}
	if r.Max != "" {
		if err := validate(r.Max); err != nil {
			return Range{}, fmt.Errorf("无效的最高版本 %q: %w", r.Max, err)
		}
	}
	return r, nil
}

// Satisfies 检查平台版本是否在范围内
func (r Range) Satisfies(platform string) bool {
	if r.Min != "" {
		if c, err := Compare(r.Min, platform); err != nil || c > 0 {
			return false
		}
	}
	if r.Max != "" {
		if c, err := Compare(platform, r.Max); err != nil || c > 0 {
			return false
		}
	}
	return true
}

// String 返回范围的原始形式
func (r Range) String() string {
	if r.Max == "" {
		return r.Min
	}
	return r.Min + "-" + r.Max
}

// Compatible 解析范围并检查平台版本，无法解析的范围视为不兼容
func Compatible(compatibility, platform string) bool {
	r, err := ParseRange(compatibility)
	if err != nil {
		return false
	}
	return r.Satisfies(platform)
}

// validate 版本可以按semver解析，或是纯数字的点分版本
func validate(v string) error {
	if _, err := semver.NewVersion(v); err == nil {
		return nil
	}
	_, err := segments(v)
	return err
}

// segments 将 4.1.5.1 这类超过三段的数字版本拆成整数
func segments(v string) ([]int, error) {
	v = strings.TrimPrefix(strings.TrimSpace(v), "v")
	if v == "" {
		return nil, fmt.Errorf("空版本")
	}
	parts := strings.Split(v, ".")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("无效的版本段 %q", p)
		}
		out = append(out, n)
	}
	return out, nil
}

// compareSegments 逐段比较，缺少的段按0处理
func compareSegments(a, b []int) int {
	for i := 0; i < len(a) || i < len(b); i++ {
		var x, y int
		if i < len(a) {
			x = a[i]
		}
		if i < len(b) {
			y = b[i]
		}
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
	}
	return 0
}

// Compare 比较两个版本，a<b 返回-1，相等返回0，a>b 返回1
// 两者都是semver时按semver比较，否则退回逐段数字比较
func Compare(a, b string) (int, error) {
	va, errA := semver.NewVersion(a)
	vb, errB := semver.NewVersion(b)
	if errA == nil && errB == nil {
		return va.Compare(vb), nil
	}

	sa, err := segments(a)
	if err != nil {
		return 0, fmt.Errorf("无效的版本 %q: %w", a, err)
	}
	sb, err := segments(b)
	if err != nil {
		return 0, fmt.Errorf("无效的版本 %q: %w", b, err)
	}
	return compareSegments(sa, sb), nil
}

// AtMost 检查 v <= platform，无法解析时返回false
func AtMost(v, platform string) bool {
	c, err := Compare(v, platform)
	return err == nil && c <= 0
}

// Greater 检查 a > b，无法解析时返回false
func Greater(a, b string) bool {
	c, err := Compare(a, b)
	return err == nil && c > 0
}

// Upgradable 检查磁盘上的清单是否构成一次升级：
// 清单版本严格大于已注册版本，且平台版本不低于清单的兼容性下限
func Upgradable(platform, compatibility, available, registered string) bool {
	if compatibility == "" {
		return false
	}
	r, err := ParseRange(compatibility)
	if err != nil || !AtMost(r.Min, platform) {
		return false
	}
	return Greater(available, registered)
}
