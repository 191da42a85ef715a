package catalog

import (
	"sort"
	"strings"
	"time"

	"github.com/lomehong/pluginadmin/pkg/plugin/api"
)

// DateFormat 列表中日期的格式
const DateFormat = "2006-01-02 15:04:05"

var dateLayouts = []string{
	DateFormat,
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"02.01.2006",
	"Jan 2, 2006",
	"January 2, 2006",
}

// ParseDate 解析日期，无法解析时返回零值时间
func ParseDate(s string) time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func column(d api.Descriptor, name string) string {
	switch name {
	case "name":
		return d.Name
	case "title":
		return d.Title
	case "version":
		return d.Version
	case "compatibility":
		return d.Compatibility
	case "author":
		return d.Author
	case "description", "summary":
		return d.Summary
	case "file":
		return d.File
	case "status":
		return d.Status
	default:
		return ""
	}
}

// Filter 按 name+title 不区分大小写的子串过滤
func Filter(items []api.Descriptor, filter string) []api.Descriptor {
	if filter == "" {
		return items
	}
	needle := strings.ToLower(filter)
	out := make([]api.Descriptor, 0, len(items))
	for _, d := range items {
		if strings.Contains(strings.ToLower(d.Name+d.Title), needle) {
			out = append(out, d)
		}
	}
	return out
}

// Sort 稳定排序：date 列按时间，其他列按不区分大小写的字典序
func Sort(items []api.Descriptor, col, dir string) {
	desc := dir == api.DirDesc

	var compare func(a, b api.Descriptor) int
	if col == "date" {
		compare = func(a, b api.Descriptor) int {
			return ParseDate(a.Date).Compare(ParseDate(b.Date))
		}
	} else {
		compare = func(a, b api.Descriptor) int {
			return strings.Compare(strings.ToLower(column(a, col)), strings.ToLower(column(b, col)))
		}
	}

	sort.SliceStable(items, func(i, j int) bool {
		c := compare(items[i], items[j])
		if desc {
			return c > 0
		}
		return c < 0
	})
}

// Paginate 取 start 开始的 limit 条，limit<=0 时返回空
func Paginate(items []api.Descriptor, start, limit int) []api.Descriptor {
	if start < 0 {
		start = 0
	}
	if limit <= 0 || start >= len(items) {
		return []api.Descriptor{}
	}
	end := start + limit
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

// SortFilterPaginate 依次过滤、排序、分页；total 为过滤后分页前的数量
func SortFilterPaginate(items []api.Descriptor, req api.ListRequest) api.ListResult {
	req.Normalize()

	filtered := Filter(items, req.Filter)
	sorted := make([]api.Descriptor, len(filtered))
	copy(sorted, filtered)
	Sort(sorted, req.Sort, req.Dir)

	return api.ListResult{
		Data:  Paginate(sorted, req.Start, req.Limit),
		Total: len(sorted),
	}
}
