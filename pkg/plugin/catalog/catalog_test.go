package catalog

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/lomehong/pluginadmin/pkg/cache"
	"github.com/lomehong/pluginadmin/pkg/i18n"
	"github.com/lomehong/pluginadmin/pkg/plugin/api"
	"github.com/lomehong/pluginadmin/pkg/plugin/registry"
	"github.com/lomehong/pluginadmin/pkg/remote"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const platform = "4.2.1"

func writeManifest(t *testing.T, dir, folder, name, typ, ver, compat, extra string) {
	t.Helper()
	content := fmt.Sprintf(`<module type="%s" name="%s">
	<title>%s title</title>
	<summary>%s summary</summary>
	<author>Intelliants</author>
	<version>%s</version>
	<date>2017-01-01</date>
	<compatibility>%s</compatibility>
	%s
</module>`, typ, name, name, name, ver, compat, extra)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, folder), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, folder, "install.xml"), []byte(content), 0644))
}

func setupRegistry(t *testing.T) *registry.Store {
	t.Helper()
	s, err := registry.Open(filepath.Join(t.TempDir(), "registry.db"), time.Second, hclog.NewNullLogger())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func install(t *testing.T, s *registry.Store, name, ver string) {
	t.Helper()
	require.NoError(t, s.Save(context.Background(), api.Manifest{
		Name: name,
		Type: api.TypePlugin,
		Info: api.ManifestInfo{Title: name + " title", Version: ver, Date: "2017-01-01"},
		AdminPages: []api.AdminPage{{Name: name, Alias: name + "/manage"}},
		Configs: []api.ConfigEntry{
			{Name: name + "_b", Group: "cfg_" + name, Order: 2},
			{Name: name + "_a", Group: "cfg_" + name, Order: 1},
		},
	}))
}

func TestInstalledList(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := setupRegistry(t)

	install(t, store, "blog", "1.0")
	install(t, store, "rss", "2.0")
	require.NoError(t, store.SetRemovable(ctx, "rss", false))

	// blog 有更新版本的清单，rss 清单版本相同
	writeManifest(t, dir, "blog", "blog", "plugin", "1.1", "4.0", "")
	writeManifest(t, dir, "rss", "rss", "plugin", "2.0", "4.0", "")

	c := NewInstalled(store, dir, platform, nil)
	res := c.List(ctx, api.ListRequest{Sort: "name"})
	require.Len(t, res.Data, 2)
	assert.Equal(t, 2, res.Total)

	blog := res.Data[0]
	assert.Equal(t, "blog", blog.Name)
	assert.Equal(t, "blog", blog.Upgrade)
	assert.Equal(t, "cfg_blog/#blog_a", blog.Config)
	assert.Equal(t, "blog/manage", blog.Manage)
	assert.True(t, blog.Uninstall)
	assert.True(t, blog.Reinstall)
	assert.Equal(t, api.SourceInstalled, blog.Source)

	rss := res.Data[1]
	assert.Empty(t, rss.Upgrade)
	assert.False(t, rss.Uninstall)
	assert.False(t, rss.Remove)

	res = c.List(ctx, api.ListRequest{Filter: "rss"})
	require.Len(t, res.Data, 1)
	assert.Equal(t, 1, res.Total)

	res = c.List(ctx, api.ListRequest{Sort: "name", Dir: "desc"})
	assert.Equal(t, []string{"rss", "blog"}, names(res.Data))
}

func TestInstalledUpgradeRequiresCompatibility(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := setupRegistry(t)

	install(t, store, "blog", "1.0")
	writeManifest(t, dir, "blog", "blog", "plugin", "1.1", "5.0", "")

	res := NewInstalled(store, dir, platform, nil).List(ctx, api.ListRequest{})
	require.Len(t, res.Data, 1)
	assert.Empty(t, res.Data[0].Upgrade)
}

func TestLocalScan(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := setupRegistry(t)
	install(t, store, "blog", "1.0")

	writeManifest(t, dir, "blog", "blog", "plugin", "1.0", "4.0", "")
	writeManifest(t, dir, "gallery-folder", "gallery", "plugin", "1.0", "4.0", "")
	writeManifest(t, dir, "tags", "tags", "plugin", "1.0", "4.0",
		`<dependencies><dependency type="plugin">comments</dependency></dependencies>`)
	writeManifest(t, dir, "theme", "theme", "template", "1.0", "4.0", "")
	writeManifest(t, dir, ".hidden", "hidden", "plugin", "1.0", "4.0", "")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "empty"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "broken"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken", "install.xml"), []byte("<module"), 0644))

	c := NewLocal(store, dir, i18n.New(nil), nil)
	res := c.List(ctx, api.ListRequest{Sort: "name"})
	require.Equal(t, []string{"gallery", "tags"}, names(res.Data))

	gallery := res.Data[0]
	assert.Equal(t, "gallery-folder", gallery.File)
	assert.True(t, gallery.Installable)
	assert.Empty(t, gallery.Notes)
	assert.Equal(t, api.SourceLocal, gallery.Source)

	tags := res.Data[1]
	assert.Contains(t, tags.Notes, `Plugin "comments" is required.`)
	assert.Contains(t, tags.Notes, "Installation is impossible.")

	res = NewLocal(store, filepath.Join(dir, "missing"), i18n.New(nil), nil).List(ctx, api.ListRequest{})
	assert.Empty(t, res.Data)
	assert.Equal(t, 0, res.Total)
}

type remoteServer struct {
	*httptest.Server
	hits atomic.Int32
	body atomic.Value
}

func newRemoteServer(t *testing.T, body string) *remoteServer {
	rs := &remoteServer{}
	rs.body.Store(body)
	rs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rs.hits.Add(1)
		if r.URL.Path != "/list/plugin/"+platform {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(rs.body.Load().(string)))
	}))
	t.Cleanup(rs.Close)
	return rs
}

func newRemote(t *testing.T, store *registry.Store, url string) *Remote {
	t.Helper()
	fc, err := cache.NewFileCache(t.TempDir(), nil)
	require.NoError(t, err)
	return NewRemote(store, remote.NewHTTPFetcher(time.Second), fc,
		RemoteConfig{ToolsURL: url + "/", Platform: platform, TTL: time.Hour}, i18n.New(nil), nil)
}

const remoteBody = `{
	"total": 3,
	"extensions": [
		{"name": "blog", "title": "Blog", "version": "1.2", "compatibility": "4.0", "date": 1500000000},
		{"name": "forum", "title": "Forum", "version": "2.0", "compatibility": "4.2.0", "date": 1510000000, "description": "Forum plugin"},
		{"name": "future", "title": "Future", "version": "1.0", "compatibility": "5.0", "date": 1400000000}
	]
}`

func TestRemoteList(t *testing.T) {
	ctx := context.Background()
	store := setupRegistry(t)
	install(t, store, "blog", "1.0")
	srv := newRemoteServer(t, remoteBody)

	c := newRemote(t, store, srv.URL)
	res := c.List(ctx, api.ListRequest{Sort: "date", Dir: api.DirDesc})
	require.True(t, res.OK(), res.Messages)
	require.Equal(t, []string{"forum", "future"}, names(res.Data))
	assert.Equal(t, 2, res.Total)

	forum := res.Data[0]
	assert.True(t, forum.Installable)
	assert.Equal(t, "Forum plugin", forum.Summary)
	assert.Equal(t, "2017-11-06 20:26:40", forum.Date)
	assert.Equal(t, api.SourceRemote, forum.Source)
	assert.False(t, res.Data[1].Installable)

	// 第二次读取命中缓存
	c.List(ctx, api.ListRequest{})
	assert.Equal(t, int32(1), srv.hits.Load())

	// 缓存过期前安装的插件同样被排除
	install(t, store, "forum", "2.0")
	res = c.List(ctx, api.ListRequest{})
	assert.Equal(t, []string{"future"}, names(res.Data))
}

func TestRemoteErrors(t *testing.T) {
	ctx := context.Background()
	store := setupRegistry(t)

	tests := []struct {
		name string
		body string
		want string
	}{
		{"远程错误", `{"error": "Service is down"}`, "Service is down"},
		{"缺少extensions", `{"total": 2}`, "Incorrect format of the response from the remote server."},
		{"无效JSON", `not json`, "Incorrect response from the remote server."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newRemoteServer(t, tt.body)
			res := newRemote(t, store, srv.URL).List(ctx, api.ListRequest{})
			assert.False(t, res.OK())
			assert.Equal(t, []string{tt.want}, res.Messages)
			assert.Empty(t, res.Data)
		})
	}

	// 请求失败
	res := newRemote(t, store, "http://127.0.0.1:1").List(ctx, api.ListRequest{})
	assert.Equal(t, []string{"Incorrect response from the remote server."}, res.Messages)
}

func TestRemoteEmptyNotCached(t *testing.T) {
	ctx := context.Background()
	store := setupRegistry(t)
	srv := newRemoteServer(t, `{"total": 0}`)

	c := newRemote(t, store, srv.URL)
	res := c.List(ctx, api.ListRequest{})
	assert.True(t, res.OK())
	assert.Empty(t, res.Data)

	srv.body.Store(remoteBody)
	res = c.List(ctx, api.ListRequest{})
	assert.Len(t, res.Data, 3)
	assert.Equal(t, int32(2), srv.hits.Load())
}
