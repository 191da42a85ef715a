// Package registry 基于SQLite的已安装模块注册表
package registry

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/lomehong/pluginadmin/pkg/errors"
	"github.com/lomehong/pluginadmin/pkg/i18n"
	"github.com/lomehong/pluginadmin/pkg/plugin/api"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schema string

// 已安装插件的默认状态
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

// sortable 允许排序的列
var sortable = map[string]bool{
	"id":        true,
	"name":      true,
	"title":     true,
	"version":   true,
	"status":    true,
	"author":    true,
	"summary":   true,
	"removable": true,
	"date":      true,
}

// Query 已安装插件查询条件
type Query struct {
	Type   string
	Filter string
	Sort   string
	Dir    string
	Start  int
	Limit  int
}

// Store 模块注册表
type Store struct {
	db     *sql.DB
	path   string
	logger hclog.Logger
}

// Open 打开注册表数据库并执行结构迁移
func Open(path string, busyTimeout time.Duration, logger hclog.Logger) (*Store, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	if busyTimeout <= 0 {
		busyTimeout = 5 * time.Second
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("创建注册表目录失败: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=%d",
		path, int(busyTimeout.Milliseconds()))
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("打开注册表失败: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("连接注册表失败: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("初始化注册表结构失败: %w", err)
	}

	s := &Store{db: db, path: path, logger: logger.Named("registry")}
	s.logger.Debug("注册表已打开", "path", path)
	return s, nil
}

// Close 关闭注册表
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path 返回数据库文件路径
func (s *Store) Path() string {
	return s.path
}

// InstalledVersions 返回指定类型的已安装模块 名称->版本
func (s *Store) InstalledVersions(ctx context.Context, moduleType string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, version FROM modules WHERE type = ?`, moduleType)
	if err != nil {
		return nil, fmt.Errorf("查询已安装模块失败: %w", err)
	}
	defer rows.Close()

	result := make(map[string]string)
	for rows.Next() {
		var name, ver string
		if err := rows.Scan(&name, &ver); err != nil {
			return nil, fmt.Errorf("读取已安装模块失败: %w", err)
		}
		result[name] = ver
	}
	return result, rows.Err()
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func (q Query) where() (string, []interface{}) {
	where := "type = ?"
	args := []interface{}{q.Type}
	if q.Filter != "" {
		where += ` AND title LIKE ? ESCAPE '\'`
		args = append(args, "%"+escapeLike(q.Filter)+"%")
	}
	return where, args
}

// ListInstalled 分页查询已安装模块，排序列不在白名单内时按id排序
func (s *Store) ListInstalled(ctx context.Context, q Query) ([]api.InstalledRecord, error) {
	if q.Limit <= 0 {
		return []api.InstalledRecord{}, nil
	}
	if q.Start < 0 {
		q.Start = 0
	}

	order := "id ASC"
	if sortable[q.Sort] {
		dir := "ASC"
		if strings.EqualFold(q.Dir, api.DirDesc) {
			dir = "DESC"
		}
		order = fmt.Sprintf("%q %s, id ASC", q.Sort, dir)
	}

	where, args := q.where()
	args = append(args, q.Limit, q.Start)
	stmt := fmt.Sprintf(`SELECT id, name, title, version, status, author, summary, removable, date, type
		FROM modules WHERE %s ORDER BY %s LIMIT ? OFFSET ?`, where, order)

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("查询已安装模块失败: %w", err)
	}
	defer rows.Close()

	records := []api.InstalledRecord{}
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// CountInstalled 统计符合条件的已安装模块数量（忽略分页）
func (s *Store) CountInstalled(ctx context.Context, q Query) (int, error) {
	where, args := q.where()
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM modules WHERE "+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("统计已安装模块失败: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row scanner) (api.InstalledRecord, error) {
	var r api.InstalledRecord
	var removable int
	if err := row.Scan(&r.ID, &r.Name, &r.Title, &r.Version, &r.Status, &r.Author, &r.Summary,
		&removable, &r.Date, &r.Type); err != nil {
		return r, err
	}
	r.Removable = removable == 1
	return r, nil
}

// Get 按名称查询模块
func (s *Store) Get(ctx context.Context, name string) (api.InstalledRecord, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, name, title, version, status, author, summary, removable, date, type
		FROM modules WHERE name = ?`, name)
	r, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return r, false, nil
	}
	if err != nil {
		return r, false, fmt.Errorf("查询模块 %s 失败: %w", name, err)
	}
	return r, true, nil
}

// ExistsRemovable 检查指定类型的模块已注册且可卸载
func (s *Store) ExistsRemovable(ctx context.Context, name, moduleType string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM modules WHERE name = ? AND type = ? AND removable = 1`, name, moduleType).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("查询模块 %s 失败: %w", name, err)
	}
	return n > 0, nil
}

// FirstConfig 返回模块按顺序排列的第一个配置项
func (s *Store) FirstConfig(ctx context.Context, module string) (name, group string, ok bool, err error) {
	err = s.db.QueryRowContext(ctx,
		`SELECT name, config_group FROM config WHERE module = ? ORDER BY "order" ASC LIMIT 1`, module).
		Scan(&name, &group)
	if err == sql.ErrNoRows {
		return "", "", false, nil
	}
	if err != nil {
		return "", "", false, fmt.Errorf("查询配置项失败: %w", err)
	}
	return name, group, true, nil
}

// AdminPageAlias 返回管理页面别名
func (s *Store) AdminPageAlias(ctx context.Context, name string) (string, bool, error) {
	var alias string
	err := s.db.QueryRowContext(ctx, `SELECT alias FROM admin_pages WHERE name = ? LIMIT 1`, name).Scan(&alias)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("查询管理页面失败: %w", err)
	}
	return alias, true, nil
}

// Save 在一个事务中写入模块记录及其配置、配置分组和管理页面
// 已存在的模块保留id、状态、可卸载标记和已有配置值
func (s *Store) Save(ctx context.Context, m api.Manifest) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("开始事务失败: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `INSERT INTO modules (name, title, version, author, summary, date, type)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			title = excluded.title, version = excluded.version, author = excluded.author,
			summary = excluded.summary, date = excluded.date, type = excluded.type`,
		m.Name, m.Info.Title, m.Info.Version, m.Info.Author, m.Info.Summary, m.Info.Date, m.Type)
	if err != nil {
		return fmt.Errorf("写入模块 %s 失败: %w", m.Name, err)
	}

	names := make([]interface{}, 0, len(m.Configs)+1)
	names = append(names, m.Name)
	for _, c := range m.Configs {
		names = append(names, c.Name)
		_, err = tx.ExecContext(ctx, `INSERT INTO config (name, config_group, module, type, description, value, "order")
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(name) DO UPDATE SET
				config_group = excluded.config_group, module = excluded.module, type = excluded.type,
				description = excluded.description, "order" = excluded."order"`,
			c.Name, c.Group, m.Name, c.Type, c.Description, c.Value, c.Order)
		if err != nil {
			return fmt.Errorf("写入配置项 %s 失败: %w", c.Name, err)
		}
	}

	// 删除新清单中已不存在的配置项
	stale := `DELETE FROM config WHERE module = ?`
	if len(m.Configs) > 0 {
		stale += ` AND name NOT IN (?` + strings.Repeat(", ?", len(m.Configs)-1) + `)`
	}
	if _, err = tx.ExecContext(ctx, stale, names...); err != nil {
		return fmt.Errorf("清理配置项失败: %w", err)
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM config_groups WHERE module = ?`, m.Name); err != nil {
		return fmt.Errorf("清理配置分组失败: %w", err)
	}
	for _, g := range m.ConfigGroups {
		_, err = tx.ExecContext(ctx, `INSERT OR REPLACE INTO config_groups (name, title, module) VALUES (?, ?, ?)`,
			g.Name, g.Title, m.Name)
		if err != nil {
			return fmt.Errorf("写入配置分组 %s 失败: %w", g.Name, err)
		}
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM admin_pages WHERE module = ?`, m.Name); err != nil {
		return fmt.Errorf("清理管理页面失败: %w", err)
	}
	for _, p := range m.AdminPages {
		_, err = tx.ExecContext(ctx, `INSERT OR REPLACE INTO admin_pages (name, alias, "group", title, module)
			VALUES (?, ?, ?, ?, ?)`, p.Name, p.Alias, p.Group, p.Title, m.Name)
		if err != nil {
			return fmt.Errorf("写入管理页面 %s 失败: %w", p.Name, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("提交事务失败: %w", err)
	}
	s.logger.Debug("模块已写入注册表", "name", m.Name, "version", m.Info.Version)
	return nil
}

// Delete 删除模块及其配置、配置分组和管理页面
func (s *Store) Delete(ctx context.Context, name string) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("开始事务失败: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	for _, stmt := range []string{
		`DELETE FROM config WHERE module = ?`,
		`DELETE FROM config_groups WHERE module = ?`,
		`DELETE FROM admin_pages WHERE module = ?`,
		`DELETE FROM modules WHERE name = ?`,
	} {
		if _, err = tx.ExecContext(ctx, stmt, name); err != nil {
			return fmt.Errorf("删除模块 %s 失败: %w", name, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("提交事务失败: %w", err)
	}
	s.logger.Debug("模块已从注册表删除", "name", name)
	return nil
}

// SetRemovable 设置模块是否可卸载，模块未注册时返回NotFound
func (s *Store) SetRemovable(ctx context.Context, name string, removable bool) error {
	v := 0
	if removable {
		v = 1
	}
	res, err := s.db.ExecContext(ctx, `UPDATE modules SET removable = ? WHERE name = ?`, v, name)
	if err != nil {
		return fmt.Errorf("更新模块 %s 失败: %w", name, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.New(errors.ErrorTypeNotFound, i18n.KeyInvalidParameters, "模块未注册: "+name)
	}
	s.logger.Debug("模块可卸载标记已更新", "name", name, "removable", removable)
	return nil
}

// UpdateStatus 更新可卸载模块的状态，返回是否有记录被修改
func (s *Store) UpdateStatus(ctx context.Context, id int64, status string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE modules SET status = ? WHERE removable = 1 AND id = ?`, status, id)
	if err != nil {
		return false, fmt.Errorf("更新模块状态失败: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("更新模块状态失败: %w", err)
	}
	return n > 0, nil
}

// ConfigValues 返回全部配置项 名称->值
func (s *Store) ConfigValues(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, value FROM config ORDER BY "order" ASC`)
	if err != nil {
		return nil, fmt.Errorf("查询配置失败: %w", err)
	}
	defer rows.Close()

	values := make(map[string]string)
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, fmt.Errorf("读取配置失败: %w", err)
		}
		values[name] = value
	}
	return values, rows.Err()
}
