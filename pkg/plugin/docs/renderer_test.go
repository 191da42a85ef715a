package docs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/lomehong/pluginadmin/pkg/errors"
	"github.com/lomehong/pluginadmin/pkg/i18n"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const blogManifest = `<module type="plugin" name="blog">
	<title>Blog &amp; News</title>
	<author>Intelliants</author>
	<contributor>Community</contributor>
	<version>4.2.0</version>
	<date>2017-11-02</date>
	<compatibility>4.2</compatibility>
</module>`

func setupPlugin(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	docs := filepath.Join(dir, "blog", "docs")
	require.NoError(t, os.MkdirAll(filepath.Join(docs, "img"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "blog", "install.xml"), []byte(blogManifest), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(docs, "changelog.html"), []byte("Fixed #12 and #345"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(docs, "description.html"), []byte(`<img src="{IA_URL}logo.png">`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(docs, ".hidden.html"), []byte("secret"), 0644))
	return dir
}

func newRenderer(dir, tpl string) *Renderer {
	return NewRenderer(Config{
		PluginsDir:    dir,
		SiteURL:       "https://example.com/",
		AssetsURL:     "https://cdn.example.com/",
		IssueURL:      "https://dev.subrion.org/issues/",
		PluginInfoURL: "https://subrion.org/plugin/",
		TemplatePath:  tpl,
	}, i18n.New(map[string]string{"extra_description": "Description"}), nil)
}

func TestRenderTabs(t *testing.T) {
	dir := setupPlugin(t)
	res, err := newRenderer(dir, "").Render("blog")
	require.NoError(t, err)
	require.Len(t, res.Tabs, 2)

	changelog := res.Tabs[0]
	assert.Equal(t, "changelog", changelog.Title)
	assert.Equal(t, "extension-docs extension-docs--changelog", changelog.CSSClass)
	assert.Equal(t, `Fixed <a href="https://dev.subrion.org/issues/12" target="_blank">#12</a> and `+
		`<a href="https://dev.subrion.org/issues/345" target="_blank">#345</a>`, changelog.HTML)

	description := res.Tabs[1]
	assert.Equal(t, "Description", description.Title)
	assert.Equal(t, `<img src="https://example.com/logo.png">`, description.HTML)
}

func TestRenderInfo(t *testing.T) {
	dir := setupPlugin(t)
	tpl := filepath.Join(t.TempDir(), "extra_information.tpl")
	require.NoError(t, os.WriteFile(tpl, []byte("{icon}|{link}|{name}|{author}|{contributor}|{version}|{date}|{compatibility}"), 0644))

	res, err := newRenderer(dir, tpl).Render("blog")
	require.NoError(t, err)
	assert.Equal(t, `|<tr><td><a href="https://subrion.org/plugin/blog.html" class="btn btn-block btn-info" target="_blank">Additional info</a><br></td></tr>`+
		`|Blog &amp; News|Intelliants|Community|4.2.0|2017-11-02|4.2`, res.Info)

	// 存在图标时输出图标行
	require.NoError(t, os.WriteFile(filepath.Join(dir, "blog", "docs", "img", "icon.png"), []byte("png"), 0644))
	res, err = newRenderer(dir, tpl).Render("blog")
	require.NoError(t, err)
	assert.Contains(t, res.Info, `<img src="https://cdn.example.com/modules/blog/docs/img/icon.png" alt="Blog &amp; News">`)
}

func TestRenderDefaultTemplate(t *testing.T) {
	dir := setupPlugin(t)
	res, err := newRenderer(dir, filepath.Join(dir, "missing.tpl")).Render("blog")
	require.NoError(t, err)
	assert.Contains(t, res.Info, "Version: 4.2.0")
}

func TestRenderMissing(t *testing.T) {
	dir := t.TempDir()
	res, err := newRenderer(dir, "").Render("nothing")
	require.NoError(t, err)
	assert.Empty(t, res.Tabs)
	assert.Empty(t, res.Info)

	_, err = newRenderer(dir, "").Render("../etc")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
}
