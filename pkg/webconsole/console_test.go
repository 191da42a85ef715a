package webconsole

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/lomehong/pluginadmin/pkg/audit"
	"github.com/lomehong/pluginadmin/pkg/plugin/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockBackend struct {
	mock.Mock
}

func (m *mockBackend) ListPage(ctx context.Context, req api.ListRequest) api.ListResult {
	args := m.Called(req)
	return args.Get(0).(api.ListResult)
}

func (m *mockBackend) HandleAction(ctx context.Context, rc api.RequestContext, req api.ActionRequest) api.ActionResult {
	args := m.Called(rc.User, req)
	return args.Get(0).(api.ActionResult)
}

func (m *mockBackend) Documentation(ctx context.Context, name string) api.DocumentationResult {
	args := m.Called(name)
	return args.Get(0).(api.DocumentationResult)
}

func (m *mockBackend) UpdateStatus(ctx context.Context, rc api.RequestContext, id int64, status string) api.ActionResult {
	args := m.Called(rc.User, id, status)
	return args.Get(0).(api.ActionResult)
}

func (m *mockBackend) Settings(ctx context.Context) (map[string]string, error) {
	args := m.Called()
	return args.Get(0).(map[string]string), args.Error(1)
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.EnableAuth = false
	cfg.RateLimit = 1000
	cfg.RateBurst = 1000
	return cfg
}

func newTestConsole(t *testing.T, cfg Config, backend Backend, events EventSource) *Console {
	t.Helper()
	gin.SetMode(gin.TestMode)
	c, err := NewConsole(cfg, backend, events, nil)
	require.NoError(t, err)
	require.NoError(t, c.Init())
	return c
}

func serve(c *Console, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	c.Handler().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestPing(t *testing.T) {
	c := newTestConsole(t, testConfig(), &mockBackend{}, nil)

	w := serve(c, httptest.NewRequest(http.MethodGet, "/api/ping", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pong", decode(t, w)["message"])
	assert.NotEmpty(t, w.Header().Get(HeaderRequestID))

	w = serve(c, httptest.NewRequest(http.MethodGet, "/api/nothing", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListPlugins(t *testing.T) {
	backend := &mockBackend{}
	c := newTestConsole(t, testConfig(), backend, nil)

	backend.On("ListPage", api.ListRequest{Type: api.SourceLocal, Start: 10, Limit: 5, Sort: "title", Dir: "DESC", Filter: "blog"}).
		Return(api.ListResult{Data: []api.Descriptor{{Name: "blog"}}, Total: 11}).Once()
	backend.On("ListPage", api.ListRequest{Type: api.SourceRemote}).
		Return(api.ListResult{Data: []api.Descriptor{}, Messages: []string{"Remote server is unavailable."}}).Once()

	w := serve(c, httptest.NewRequest(http.MethodGet,
		"/api/plugins?type=local&start=10&limit=5&sort=title&dir=DESC&filter=blog", nil))
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.EqualValues(t, 11, body["total"])
	assert.Len(t, body["data"], 1)

	w = serve(c, httptest.NewRequest(http.MethodGet, "/api/plugins?type=remote", nil))
	body = decode(t, w)
	assert.Equal(t, false, body["result"])
	assert.Equal(t, []interface{}{"Remote server is unavailable."}, body["message"])

	w = serve(c, httptest.NewRequest(http.MethodGet, "/api/plugins?start=abc", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	backend.AssertExpectations(t)
}

func TestPluginAction(t *testing.T) {
	backend := &mockBackend{}
	cfg := testConfig()
	c := newTestConsole(t, cfg, backend, nil)

	backend.On("HandleAction", cfg.Username, api.ActionRequest{Action: api.ActionInstall, Name: "blog", Mode: api.ModeRemote}).
		Return(api.ActionResult{Result: true, Messages: []string{`Plugin "Blog" installed.`}, Groups: []string{"content"}}).Once()
	backend.On("HandleAction", cfg.Username, api.ActionRequest{Action: api.ActionUninstall, Name: "blog"}).
		Return(api.ActionResult{Messages: []string{"Access denied."}, Denied: true}).Once()

	form := url.Values{"name": {"blog"}, "mode": {"remote"}}
	req := httptest.NewRequest(http.MethodPost, "/api/plugins/install", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := serve(c, req)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, true, body["result"])
	assert.Equal(t, []interface{}{"content"}, body["groups"])

	req = httptest.NewRequest(http.MethodPost, "/api/plugins/uninstall", bytes.NewBufferString(`{"name":"blog"}`))
	req.Header.Set("Content-Type", "application/json")
	w = serve(c, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, false, decode(t, w)["result"])

	backend.AssertExpectations(t)
}

func TestUpdatePluginStatus(t *testing.T) {
	backend := &mockBackend{}
	cfg := testConfig()
	c := newTestConsole(t, cfg, backend, nil)

	backend.On("UpdateStatus", cfg.Username, int64(3), "inactive").
		Return(api.ActionResult{Result: true, Messages: []string{"Changes saved."}}).Once()

	req := httptest.NewRequest(http.MethodPut, "/api/plugins/3/status", bytes.NewBufferString(`{"status":"inactive"}`))
	req.Header.Set("Content-Type", "application/json")
	w := serve(c, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["result"])

	req = httptest.NewRequest(http.MethodPut, "/api/plugins/abc/status", bytes.NewBufferString(`{"status":"inactive"}`))
	req.Header.Set("Content-Type", "application/json")
	w = serve(c, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	backend.AssertExpectations(t)
}

func TestDocumentationAndSettings(t *testing.T) {
	backend := &mockBackend{}
	c := newTestConsole(t, testConfig(), backend, nil)

	backend.On("Documentation", "blog").
		Return(api.DocumentationResult{Tabs: []api.DocTab{{Title: "Changelog", HTML: "x", CSSClass: "extension-docs"}}, Info: "<table>"}).Once()
	backend.On("Settings").Return(map[string]string{"blog_number": "10"}, nil).Once()

	w := serve(c, httptest.NewRequest(http.MethodGet, "/api/plugins/documentation?name=blog", nil))
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "<table>", body["info"])
	tabs := body["tabs"].([]interface{})
	require.Len(t, tabs, 1)
	assert.Equal(t, "extension-docs", tabs[0].(map[string]interface{})["cls"])

	w = serve(c, httptest.NewRequest(http.MethodGet, "/api/settings", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]interface{}{"blog_number": "10"}, decode(t, w)["data"])

	backend.AssertExpectations(t)
}

func TestAuth(t *testing.T) {
	backend := &mockBackend{}
	cfg := testConfig()
	cfg.EnableAuth = true
	cfg.Username = "root"
	cfg.Password = "secret"
	c := newTestConsole(t, cfg, backend, nil)

	w := serve(c, httptest.NewRequest(http.MethodGet, "/api/ping", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.NotEmpty(t, w.Header().Get("WWW-Authenticate"))

	req := httptest.NewRequest(http.MethodGet, "/api/ping", nil)
	req.SetBasicAuth("root", "wrong")
	assert.Equal(t, http.StatusUnauthorized, serve(c, req).Code)

	backend.On("HandleAction", "root", api.ActionRequest{Action: api.ActionReinstall, Name: "blog"}).
		Return(api.ActionResult{Result: true}).Once()
	req = httptest.NewRequest(http.MethodPost, "/api/plugins/reinstall", bytes.NewBufferString(`{"name":"blog"}`))
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth("root", "secret")
	assert.Equal(t, http.StatusOK, serve(c, req).Code)

	backend.AssertExpectations(t)
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit = 0.001
	cfg.RateBurst = 2
	c := newTestConsole(t, cfg, &mockBackend{}, nil)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		codes = append(codes, serve(c, httptest.NewRequest(http.MethodGet, "/api/ping", nil)).Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestRequestIDPropagation(t *testing.T) {
	c := newTestConsole(t, testConfig(), &mockBackend{}, nil)

	id := "6f1c3c1e-2d1b-4b7e-9d0a-3f6a2b1c9e10"
	req := httptest.NewRequest(http.MethodGet, "/api/ping", nil)
	req.Header.Set(HeaderRequestID, id)
	assert.Equal(t, id, serve(c, req).Header().Get(HeaderRequestID))

	req = httptest.NewRequest(http.MethodGet, "/api/ping", nil)
	req.Header.Set(HeaderRequestID, "not-a-uuid")
	assert.NotEqual(t, "not-a-uuid", serve(c, req).Header().Get(HeaderRequestID))
}

func TestStreamEvents(t *testing.T) {
	log := audit.New(&bytes.Buffer{})
	c := newTestConsole(t, testConfig(), &mockBackend{}, log)

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/plugins/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// 订阅在握手之后建立，持续写入直到客户端收到
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(20 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				log.Write(audit.ActionInstall, map[string]string{"name": "Blog"})
			}
		}
	}()

	var entry audit.Entry
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	received := conn.ReadJSON(&entry) == nil
	require.True(t, received)
	assert.Equal(t, audit.ActionInstall, entry.Action)
	assert.Equal(t, "Blog", entry.Params["name"])
}

func TestStreamEventsUnavailable(t *testing.T) {
	c := newTestConsole(t, testConfig(), &mockBackend{}, nil)
	w := serve(c, httptest.NewRequest(http.MethodGet, "/api/plugins/events", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRecoverFromPanic(t *testing.T) {
	// 未设置期望的mock调用会panic
	c := newTestConsole(t, testConfig(), &mockBackend{}, nil)

	w := serve(c, httptest.NewRequest(http.MethodGet, "/api/settings", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, int64(1), c.recoverer.GetStats().TotalPanics)

	w = serve(c, httptest.NewRequest(http.MethodGet, "/api/ping", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
