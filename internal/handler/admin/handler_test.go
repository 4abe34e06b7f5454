package admin

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"locally/internal/analytics"
	"locally/internal/config"
	"locally/internal/logging"
	"locally/internal/site"
)

type testEnv struct {
	echo     *echo.Echo
	registry *site.Registry
	settings *config.SettingsStore
	logs     *logging.Store
	session  *site.FileStore
	dataDir  string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dataDir := t.TempDir()

	settings := config.NewSettingsStore(filepath.Join(dataDir, config.SettingsFile))
	_, err := settings.Update(func(s *config.Settings) {
		s.DefaultSiteDir = filepath.Join(dataDir, "sites")
		s.ServerTimeout = 5
	})
	require.NoError(t, err)

	logs := logging.NewStore(filepath.Join(dataDir, config.LogsDir))
	stats := analytics.NewManager(filepath.Join(dataDir, config.StatsDir))
	reg := site.NewRegistry(site.Options{
		Settings:        settings,
		Recorder:        logs,
		Stats:           stats,
		ShutdownTimeout: 2 * time.Second,
	})
	session := site.NewFileStore(filepath.Join(dataDir, config.SessionFile))
	t.Cleanup(func() {
		_ = reg.StopAll()
		stats.StopAll()
	})

	e := echo.New()
	NewHandler(reg, settings, logs, stats, session).RegisterRoutes(e.Group("/_api"))

	return &testEnv{
		echo:     e,
		registry: reg,
		settings: settings,
		logs:     logs,
		session:  session,
		dataDir:  dataDir,
	}
}

func (env *testEnv) do(t *testing.T, method, target string, body any) (*httptest.ResponseRecorder, Response) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	env.echo.ServeHTTP(rec, req)

	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return rec, resp
}

func decodeData[T any](t *testing.T, resp Response) T {
	t.Helper()
	data, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	var out T
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

func siteDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("hi"), 0644))
	return dir
}

func TestCreateStartStopFlow(t *testing.T) {
	env := newTestEnv(t)
	port := freePort(t)

	rec, resp := env.do(t, http.MethodPost, "/_api/sites", CreateSiteRequest{Name: "blog", Path: siteDir(t), Port: port})
	require.Equal(t, http.StatusCreated, rec.Code, resp.Message)
	info := decodeData[site.Info](t, resp)
	assert.Equal(t, "blog", info.Name)
	assert.Equal(t, port, info.Port)
	assert.False(t, info.Running)

	rec, resp = env.do(t, http.MethodPost, "/_api/sites/"+info.ID+"/start", nil)
	require.Equal(t, http.StatusOK, rec.Code, resp.Message)
	assert.True(t, decodeData[site.Info](t, resp).Running)

	rec, resp = env.do(t, http.MethodPost, "/_api/sites/"+info.ID+"/start", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.False(t, resp.Success)

	httpResp, err := http.Get("http://127.0.0.1:" + strconv.Itoa(port) + "/")
	require.NoError(t, err)
	httpResp.Body.Close()
	assert.Equal(t, http.StatusOK, httpResp.StatusCode)

	rec, resp = env.do(t, http.MethodPost, "/_api/sites/"+info.ID+"/stop", nil)
	require.Equal(t, http.StatusOK, rec.Code, resp.Message)
	assert.False(t, decodeData[site.Info](t, resp).Running)

	rec, _ = env.do(t, http.MethodPost, "/_api/sites/"+info.ID+"/stop", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	appLog, err := env.logs.ReadApp()
	require.NoError(t, err)
	assert.Contains(t, appLog, "[START] Site blog started at")
	assert.Contains(t, appLog, "[STOP] Site blog stopped at")
}

func TestCreateSiteValidation(t *testing.T) {
	env := newTestEnv(t)

	rec, resp := env.do(t, http.MethodPost, "/_api/sites", CreateSiteRequest{Name: "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, resp.Success)

	rec, _ = env.do(t, http.MethodPost, "/_api/sites", CreateSiteRequest{Path: filepath.Join(t.TempDir(), "missing")})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateAndStartInOneRequest(t *testing.T) {
	env := newTestEnv(t)

	rec, resp := env.do(t, http.MethodPost, "/_api/sites", CreateSiteRequest{Path: siteDir(t), Port: freePort(t), Start: true})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.True(t, decodeData[site.Info](t, resp).Running)
}

func TestGetAndDeleteSite(t *testing.T) {
	env := newTestEnv(t)
	s, err := env.registry.Create("docs", siteDir(t), freePort(t))
	require.NoError(t, err)
	require.NoError(t, env.registry.Start(s.ID))

	rec, resp := env.do(t, http.MethodGet, "/_api/sites/"+s.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	data := decodeData[map[string]json.RawMessage](t, resp)
	assert.Contains(t, string(data["site"]), `"running":true`)
	assert.Contains(t, string(data["usage"]), `"file_count":1`)

	rec, _ = env.do(t, http.MethodDelete, "/_api/sites/"+s.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, s.Running())

	rec, _ = env.do(t, http.MethodGet, "/_api/sites/"+s.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec, _ = env.do(t, http.MethodDelete, "/_api/sites/"+s.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListSitesAndSession(t *testing.T) {
	env := newTestEnv(t)

	env.do(t, http.MethodPost, "/_api/sites", CreateSiteRequest{Name: "a", Path: siteDir(t), Port: 20101})
	env.do(t, http.MethodPost, "/_api/sites", CreateSiteRequest{Name: "b", Path: siteDir(t), Port: 20102})

	rec, resp := env.do(t, http.MethodGet, "/_api/sites", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeData[struct {
		Sites []site.Info `json:"sites"`
		Total int         `json:"total"`
	}](t, resp)
	assert.Equal(t, 2, list.Total)
	assert.Equal(t, "a", list.Sites[0].Name)
	assert.Equal(t, "b", list.Sites[1].Name)

	records, err := env.session.Load()
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestSessionNotSavedWhenDisabled(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.settings.Update(func(s *config.Settings) { s.RememberLastSession = false })
	require.NoError(t, err)

	rec, _ := env.do(t, http.MethodPost, "/_api/sites", CreateSiteRequest{Path: siteDir(t), Port: 20103})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.NoFileExists(t, env.session.Path())
}

func writeZip(t *testing.T, path string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	w, err := zw.Create("index.html")
	require.NoError(t, err)
	_, err = w.Write([]byte("from zip"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
}

func TestImportSiteFromPath(t *testing.T) {
	env := newTestEnv(t)
	archive := filepath.Join(t.TempDir(), "landing.zip")
	writeZip(t, archive)

	rec, resp := env.do(t, http.MethodPost, "/_api/sites/import", ImportSiteRequest{Archive: archive})
	require.Equal(t, http.StatusCreated, rec.Code, resp.Message)
	info := decodeData[site.Info](t, resp)
	assert.Equal(t, "landing", info.Name)
	assert.Equal(t, site.SourceArchive, info.Source)
	assert.FileExists(t, filepath.Join(info.Path, "index.html"))

	rec, _ = env.do(t, http.MethodPost, "/_api/sites/import", ImportSiteRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestImportSiteUpload(t *testing.T) {
	env := newTestEnv(t)
	archive := filepath.Join(t.TempDir(), "upload.zip")
	writeZip(t, archive)
	content, err := os.ReadFile(archive)
	require.NoError(t, err)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("name", "uploaded"))
	fw, err := mw.CreateFormFile("file", "upload.zip")
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/_api/sites/import", &body)
	req.Header.Set(echo.HeaderContentType, mw.FormDataContentType())
	rec := httptest.NewRecorder()
	env.echo.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	info := decodeData[site.Info](t, resp)
	assert.Equal(t, "uploaded", info.Name)

	data, err := os.ReadFile(filepath.Join(info.Path, "index.html"))
	require.NoError(t, err)
	assert.Equal(t, "from zip", string(data))
}

func TestSiteLogs(t *testing.T) {
	env := newTestEnv(t)
	s, err := env.registry.Create("logs", siteDir(t), 20104)
	require.NoError(t, err)
	env.logs.Record(s.ID, "line one")

	rec, resp := env.do(t, http.MethodGet, "/_api/sites/"+s.ID+"/logs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, decodeData[map[string]string](t, resp)["content"], "line one")

	rec, _ = env.do(t, http.MethodDelete, "/_api/sites/"+s.ID+"/logs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	content, err := env.logs.ReadSite(s.ID)
	require.NoError(t, err)
	assert.Empty(t, content)

	rec, _ = env.do(t, http.MethodGet, "/_api/sites/nope/logs", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAppLogs(t *testing.T) {
	env := newTestEnv(t)
	env.logs.RecordApp("[START] something")

	rec, resp := env.do(t, http.MethodGet, "/_api/logs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, decodeData[map[string]string](t, resp)["content"], "[START] something")

	rec, _ = env.do(t, http.MethodDelete, "/_api/logs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	content, err := env.logs.ReadApp()
	require.NoError(t, err)
	assert.Empty(t, content)
}

func TestStreamSiteLogs(t *testing.T) {
	env := newTestEnv(t)
	s, err := env.registry.Create("stream", siteDir(t), 20105)
	require.NoError(t, err)
	env.logs.Record(s.ID, "existing")

	srv := httptest.NewServer(env.echo)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/_api/sites/" + s.ID + "/logs/stream"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "existing", string(msg))

	env.logs.Record(s.ID, "appended")
	_, msg, err = conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "appended", string(msg))
}

func TestStreamSiteLogsRejectsForeignOrigin(t *testing.T) {
	env := newTestEnv(t)
	s, err := env.registry.Create("stream", siteDir(t), 20106)
	require.NoError(t, err)

	srv := httptest.NewServer(env.echo)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/_api/sites/" + s.ID + "/logs/stream"
	header := http.Header{"Origin": []string{"http://evil.example"}}
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	if conn != nil {
		conn.Close()
	}
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, resp)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	header = http.Header{"Origin": []string{srv.URL}}
	conn, _, err = websocket.DefaultDialer.Dial(wsURL, header)
	require.NoError(t, err)
	conn.Close()
}

func TestGetStats(t *testing.T) {
	env := newTestEnv(t)
	s, err := env.registry.Create("stats", siteDir(t), freePort(t))
	require.NoError(t, err)
	require.NoError(t, env.registry.Start(s.ID))

	httpResp, err := http.Get("http://127.0.0.1:" + strconv.Itoa(s.Port) + "/")
	require.NoError(t, err)
	httpResp.Body.Close()

	assert.Eventually(t, func() bool {
		_, resp := env.do(t, http.MethodGet, "/_api/sites/"+s.ID+"/stats", nil)
		return decodeData[analytics.DailyStats](t, resp).PV == 1
	}, 5*time.Second, 20*time.Millisecond)

	rec, resp := env.do(t, http.MethodGet, "/_api/sites/"+s.ID+"/stats?scope=full", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	full := decodeData[map[string]json.RawMessage](t, resp)
	assert.Contains(t, full, "history")

	rec, _ = env.do(t, http.MethodGet, "/_api/sites/nope/stats", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSettingsEndpoints(t *testing.T) {
	env := newTestEnv(t)

	rec, resp := env.do(t, http.MethodGet, "/_api/settings", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeData[struct {
		Settings config.Settings `json:"settings"`
		Path     string          `json:"path"`
	}](t, resp)
	assert.Equal(t, env.settings.Path(), got.Path)
	assert.Equal(t, 5, got.Settings.ServerTimeout)

	rec, resp = env.do(t, http.MethodPut, "/_api/settings", map[string]any{
		"default_port_range": []int{9100, 9200},
		"cors_enabled":       true,
	})
	require.Equal(t, http.StatusOK, rec.Code, resp.Message)
	current := env.settings.Current()
	assert.Equal(t, config.PortRange{9100, 9200}, current.DefaultPortRange)
	assert.True(t, current.CORSEnabled)
	assert.Equal(t, 5, current.ServerTimeout)

	onDisk := config.LoadSettings(env.settings.Path())
	assert.Equal(t, current, onDisk)

	rec, resp = env.do(t, http.MethodPut, "/_api/settings", map[string]any{
		"default_port_range": []int{9000, 8000},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, resp.Success)
	assert.Equal(t, config.PortRange{9100, 9200}, env.settings.Current().DefaultPortRange)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.registry.Create("h", siteDir(t), 20106)
	require.NoError(t, err)

	rec, resp := env.do(t, http.MethodGet, "/_api/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	data := decodeData[map[string]any](t, resp)
	assert.Equal(t, "healthy", data["status"])
	assert.EqualValues(t, 1, data["sites_count"])
	assert.EqualValues(t, 0, data["running_count"])
}
