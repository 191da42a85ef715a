package controller

import (
	"context"
	"fmt"
	"io"
	"testing"

	"github.com/lomehong/pluginadmin/pkg/acl"
	"github.com/lomehong/pluginadmin/pkg/audit"
	"github.com/lomehong/pluginadmin/pkg/cache"
	"github.com/lomehong/pluginadmin/pkg/i18n"
	"github.com/lomehong/pluginadmin/pkg/plugin/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockActions struct {
	mock.Mock
}

func (m *mockActions) Install(ctx context.Context, req api.ActionRequest) api.ActionResult {
	args := m.Called(ctx, req)
	return args.Get(0).(api.ActionResult)
}

func (m *mockActions) Uninstall(ctx context.Context, name string) api.ActionResult {
	args := m.Called(ctx, name)
	return args.Get(0).(api.ActionResult)
}

type mockStore struct {
	mock.Mock
}

func (m *mockStore) UpdateStatus(ctx context.Context, id int64, status string) (bool, error) {
	args := m.Called(ctx, id, status)
	return args.Bool(0), args.Error(1)
}

func (m *mockStore) SetRemovable(ctx context.Context, name string, removable bool) error {
	args := m.Called(ctx, name, removable)
	return args.Error(0)
}

func (m *mockStore) ConfigValues(ctx context.Context) (map[string]string, error) {
	args := m.Called(ctx)
	return args.Get(0).(map[string]string), args.Error(1)
}

type staticLister struct {
	source api.Source
}

func (l staticLister) List(_ context.Context, req api.ListRequest) api.ListResult {
	return api.ListResult{Data: []api.Descriptor{{Name: string(l.source)}}, Total: 1}
}

type staticDocs struct {
	err error
}

func (d staticDocs) Render(name string) (api.DocumentationResult, error) {
	if d.err != nil {
		return api.DocumentationResult{}, d.err
	}
	return api.DocumentationResult{Tabs: []api.DocTab{{Title: name}}}, nil
}

func newController(t *testing.T, actions *mockActions, store *mockStore, docs DocRenderer) (*Plugins, *cache.FileCache) {
	t.Helper()
	fc, err := cache.NewFileCache(t.TempDir(), nil)
	require.NoError(t, err)
	return NewPlugins(Dependencies{
		Installed: staticLister{api.SourceInstalled},
		Local:     staticLister{api.SourceLocal},
		Remote:    staticLister{api.SourceRemote},
		Actions:   actions,
		Docs:      docs,
		ACL: acl.NewPermissionChecker(map[string][]string{
			"admin":  {"plugins:*"},
			"editor": {"plugins:install"},
		}),
		Store:    store,
		Cache:    fc,
		Recorder: audit.New(io.Discard),
		Phrases:  i18n.New(nil),
	}), fc
}

func TestListPage(t *testing.T) {
	c, _ := newController(t, &mockActions{}, &mockStore{}, staticDocs{})
	ctx := context.Background()

	for _, s := range []api.Source{api.SourceInstalled, api.SourceLocal, api.SourceRemote} {
		res := c.ListPage(ctx, api.ListRequest{Type: s})
		require.Len(t, res.Data, 1)
		assert.Equal(t, string(s), res.Data[0].Name)
	}

	res := c.ListPage(ctx, api.ListRequest{Type: "unknown"})
	assert.NotNil(t, res.Data)
	assert.Empty(t, res.Data)
	assert.Equal(t, 0, res.Total)
}

func TestHandleAction(t *testing.T) {
	ctx := context.Background()
	actions := &mockActions{}
	c, _ := newController(t, actions, &mockStore{}, staticDocs{})

	installReq := api.ActionRequest{Action: api.ActionInstall, Name: "blog", Mode: api.ModeRemote}
	actions.On("Install", mock.Anything, installReq).Return(api.ActionResult{Result: true}).Once()
	actions.On("Uninstall", mock.Anything, "blog").Return(api.ActionResult{Result: true}).Once()

	res := c.HandleAction(ctx, api.RequestContext{User: "editor"}, installReq)
	assert.True(t, res.Result)

	res = c.HandleAction(ctx, api.RequestContext{User: "editor"},
		api.ActionRequest{Action: api.ActionUninstall, Name: "blog"})
	assert.False(t, res.Result)
	assert.True(t, res.Denied)
	assert.Equal(t, []string{"Access denied."}, res.Messages)

	res = c.HandleAction(ctx, api.RequestContext{User: "admin"},
		api.ActionRequest{Action: api.ActionUninstall, Name: "blog"})
	assert.True(t, res.Result)

	res = c.HandleAction(ctx, api.RequestContext{User: "admin"}, api.ActionRequest{Action: "delete", Name: "blog"})
	assert.Equal(t, []string{"Invalid parameters."}, res.Messages)

	res = c.HandleAction(ctx, api.RequestContext{User: "admin"}, api.ActionRequest{Action: api.ActionInstall})
	assert.Equal(t, []string{"Invalid parameters."}, res.Messages)

	actions.AssertExpectations(t)
}

func TestDocumentation(t *testing.T) {
	c, _ := newController(t, &mockActions{}, &mockStore{}, staticDocs{})
	res := c.Documentation(context.Background(), "blog")
	require.Len(t, res.Tabs, 1)

	c, _ = newController(t, &mockActions{}, &mockStore{}, staticDocs{err: fmt.Errorf("boom")})
	res = c.Documentation(context.Background(), "blog")
	assert.Empty(t, res.Tabs)
}

func TestUpdateStatus(t *testing.T) {
	ctx := context.Background()
	store := &mockStore{}
	c, fc := newController(t, &mockActions{}, store, staticDocs{})

	store.On("UpdateStatus", mock.Anything, int64(1), "inactive").Return(true, nil).Once()
	store.On("UpdateStatus", mock.Anything, int64(2), "inactive").Return(false, nil).Once()
	require.NoError(t, fc.Write(cache.KeyConfig, map[string]string{"x": "y"}))

	res := c.UpdateStatus(ctx, api.RequestContext{User: "admin"}, 1, "inactive")
	assert.True(t, res.Result)
	var cached map[string]string
	hit, err := fc.Get(cache.KeyConfig, 0, &cached)
	require.NoError(t, err)
	assert.False(t, hit)

	res = c.UpdateStatus(ctx, api.RequestContext{User: "admin"}, 2, "inactive")
	assert.False(t, res.Result)
	assert.Equal(t, []string{"Plugin status may not be changed."}, res.Messages)

	res = c.UpdateStatus(ctx, api.RequestContext{User: "admin"}, 1, "bogus")
	assert.Equal(t, []string{"Invalid parameters."}, res.Messages)

	res = c.UpdateStatus(ctx, api.RequestContext{User: "editor"}, 1, "active")
	assert.True(t, res.Denied)

	store.AssertExpectations(t)
}

func TestSettingsCached(t *testing.T) {
	ctx := context.Background()
	store := &mockStore{}
	c, fc := newController(t, &mockActions{}, store, staticDocs{})

	store.On("ConfigValues", mock.Anything).Return(map[string]string{"blog_number": "10"}, nil).Once()

	values, err := c.Settings(ctx)
	require.NoError(t, err)
	assert.Equal(t, "10", values["blog_number"])

	// 第二次从缓存读取
	values, err = c.Settings(ctx)
	require.NoError(t, err)
	assert.Equal(t, "10", values["blog_number"])
	store.AssertExpectations(t)

	require.NoError(t, fc.Remove(cache.KeyConfig))
	store.On("ConfigValues", mock.Anything).Return(map[string]string{"blog_number": "20"}, nil).Once()
	values, err = c.Settings(ctx)
	require.NoError(t, err)
	assert.Equal(t, "20", values["blog_number"])
}

func TestSetRemovable(t *testing.T) {
	ctx := context.Background()
	store := &mockStore{}
	c, _ := newController(t, &mockActions{}, store, staticDocs{})

	store.On("SetRemovable", mock.Anything, "core", false).Return(nil).Once()
	store.On("SetRemovable", mock.Anything, "ghost", true).Return(fmt.Errorf("not registered")).Once()

	res := c.SetRemovable(ctx, api.RequestContext{User: "admin"}, "core", false)
	assert.True(t, res.Result)
	assert.Equal(t, []string{"Changes saved."}, res.Messages)

	res = c.SetRemovable(ctx, api.RequestContext{User: "admin"}, "ghost", true)
	assert.False(t, res.Result)
	assert.Equal(t, []string{"Invalid parameters."}, res.Messages)

	res = c.SetRemovable(ctx, api.RequestContext{User: "editor"}, "core", true)
	assert.True(t, res.Denied)

	res = c.SetRemovable(ctx, api.RequestContext{User: "admin"}, "", true)
	assert.False(t, res.Result)

	store.AssertExpectations(t)
}
