package installer

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/shirou/gopsutil/v3/disk"
)

// errInsufficientSpace 磁盘剩余空间不足
var errInsufficientSpace = fmt.Errorf("磁盘剩余空间不足")

// FreeSpaceFunc 返回路径所在磁盘的剩余空间
type FreeSpaceFunc func(path string) (uint64, error)

// DiskFree 使用gopsutil查询剩余空间
func DiskFree(path string) (uint64, error) {
	usage, err := disk.Usage(path)
	if err != nil {
		return 0, err
	}
	return usage.Free, nil
}

// writable 检查目录是否可写
func writable(dir string) bool {
	f, err := os.CreateTemp(dir, ".write-test-*")
	if err != nil {
		return false
	}
	name := f.Name()
	f.Close()
	os.Remove(name)
	return true
}

// safeName 插件名不能包含路径分隔符或上级目录
func safeName(name string) bool {
	return name != "" && name != "." && name != ".." &&
		!strings.ContainsAny(name, `/\`) && !strings.Contains(name, "..")
}

// extract 将zip解压到target，拒绝指向target之外的条目
func extract(archive, target string, free FreeSpaceFunc) error {
	r, err := zip.OpenReader(archive)
	if err != nil {
		return fmt.Errorf("打开插件包失败: %w", err)
	}
	defer r.Close()

	var total uint64
	for _, f := range r.File {
		total += f.UncompressedSize64
	}
	if free != nil {
		avail, err := free(filepath.Dir(target))
		if err != nil {
			return fmt.Errorf("查询磁盘空间失败: %w", err)
		}
		if avail < total {
			return errInsufficientSpace
		}
	}

	root, err := filepath.Abs(target)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return fmt.Errorf("创建插件目录失败: %w", err)
	}

	for _, f := range r.File {
		path := filepath.Join(root, filepath.FromSlash(f.Name))
		if path != root && !strings.HasPrefix(path, root+string(os.PathSeparator)) {
			return fmt.Errorf("插件包条目越界: %s", f.Name)
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(path, 0755); err != nil {
				return err
			}
			continue
		}
		if err := extractFile(f, path); err != nil {
			return err
		}
	}
	return nil
}

func extractFile(f *zip.File, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("读取条目 %s 失败: %w", f.Name, err)
	}
	defer rc.Close()

	mode := f.Mode().Perm()
	if mode == 0 {
		mode = 0644
	}
	out, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return fmt.Errorf("写入 %s 失败: %w", path, err)
	}
	return out.Close()
}
