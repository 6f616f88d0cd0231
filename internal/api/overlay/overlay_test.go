package overlay

import (
	"danmaku-overlay/internal/danmaku"
	"danmaku-overlay/internal/fetch"
	"danmaku-overlay/internal/metrics"
	"danmaku-overlay/internal/render"
	"danmaku-overlay/internal/store"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const remoteXML = `<?xml version="1.0" encoding="UTF-8"?><i>` +
	`<d p="1,1,25,16777215,0,0,u1,0">first</d>` +
	`<d p="2,5,25,255,0,0,u2,0">second</d></i>`

type testEnv struct {
	service *Service
	router  *chi.Mux
	overlay *render.Overlay
	remote  *httptest.Server
	dir     string
}

func newEnv(t *testing.T, dir string) *testEnv {
	t.Helper()
	require.NoError(t, InitExportCache())

	remote := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/xml")
		_, _ = w.Write([]byte(remoteXML))
	}))
	t.Cleanup(remote.Close)

	cache, err := render.NewDrawCache(render.NewMeasureLoader(), render.DrawCacheOptions{})
	require.NoError(t, err)
	t.Cleanup(cache.Close)
	o := render.NewOverlay(render.Options{
		Width:           1000,
		Height:          360,
		RowHeight:       36,
		RollingDuration: 10000,
		StayDuration:    5000,
		BatchSize:       8,
	}, cache, danmaku.NewRuleEngine())

	s := NewService(o, Options{
		Loader:  fetch.NewLoader(fetch.NewFetcher(fetch.Options{}), o.Handoff(), 2),
		Rules:   store.NewYAMLRuleStore(filepath.Join(dir, "rules.yaml")),
		Sources: store.NewGobSourceStore(filepath.Join(dir, "sources.gob")),
		Metrics: metrics.NewCollector(prometheus.NewRegistry()),
	})
	r := chi.NewRouter()
	RegisterRoute(r, s, 10)
	return &testEnv{service: s, router: r, overlay: o, remote: remote, dir: dir}
}

func (e *testEnv) request(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		req = httptest.NewRequest(method, path, strings.NewReader(string(data)))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func (e *testEnv) waitSources(t *testing.T, n int) []sourceView {
	t.Helper()
	var sources []sourceView
	require.Eventually(t, func() bool {
		sources = decode[[]sourceView](t, e.request(t, http.MethodGet, "/api/v1/sources", nil))
		return len(sources) == n
	}, 5*time.Second, 20*time.Millisecond)
	return sources
}

func TestRulesAPI(t *testing.T) {
	e := newEnv(t, t.TempDir())

	w := e.request(t, http.MethodPost, "/api/v1/rules", ruleParam{Name: "ad", Content: "spam"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	first := decode[ruleView](t, w)
	assert.Equal(t, "text", first.Field)
	assert.Equal(t, "contain", first.Relation)
	assert.True(t, first.Enable)

	w = e.request(t, http.MethodPost, "/api/v1/rules", ruleParam{Field: "sender", Relation: "equal", Content: "u1"})
	require.Equal(t, http.StatusCreated, w.Code)
	second := decode[ruleView](t, w)

	w = e.request(t, http.MethodPost, "/api/v1/rules", ruleParam{Content: "(bad", Regexp: true})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = e.request(t, http.MethodPost, "/api/v1/rules", ruleParam{Field: "title", Content: "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.request(t, http.MethodPut, "/api/v1/rules/"+strconv.Itoa(second.ID)+"/move", moveParam{Index: 0})
	require.Equal(t, http.StatusOK, w.Code)
	rules := decode[[]ruleView](t, e.request(t, http.MethodGet, "/api/v1/rules", nil))
	require.Len(t, rules, 2)
	assert.Equal(t, []int{second.ID, first.ID}, []int{rules[0].ID, rules[1].ID})

	w = e.request(t, http.MethodPut, "/api/v1/rules/"+strconv.Itoa(first.ID)+"/enable", enableParam{Enable: false})
	require.Equal(t, http.StatusOK, w.Code)

	// 每次修改后写入文件
	saved, err := e.service.rules.LoadRules()
	require.NoError(t, err)
	require.Len(t, saved, 2)
	assert.Equal(t, second.ID, saved[0].ID)
	assert.False(t, saved[1].Enable)

	assert.Equal(t, http.StatusOK, e.request(t, http.MethodDelete, "/api/v1/rules/"+strconv.Itoa(first.ID), nil).Code)
	assert.Equal(t, http.StatusNotFound, e.request(t, http.MethodDelete, "/api/v1/rules/"+strconv.Itoa(first.ID), nil).Code)
	assert.Equal(t, http.StatusBadRequest, e.request(t, http.MethodDelete, "/api/v1/rules/x", nil).Code)
}

func TestFrameAndSeekAPI(t *testing.T) {
	e := newEnv(t, t.TempDir())
	_, err := e.overlay.AddSource(danmaku.NewSource("local"), []*danmaku.Comment{
		danmaku.NewComment("a", 100, danmaku.NormalMode),
		danmaku.NewComment("b", 200, danmaku.TopMode),
	})
	require.NoError(t, err)

	w := e.request(t, http.MethodGet, "/api/v1/overlay?time=300", nil)
	require.Equal(t, http.StatusOK, w.Code)
	frame := decode[frameView](t, w)
	require.Len(t, frame.Instances, 2)
	assert.Equal(t, "a", frame.Instances[0].Text)
	assert.Equal(t, "rolling", frame.Instances[0].Type)
	assert.Equal(t, "top", frame.Instances[1].Type)
	assert.Equal(t, float32(4900), frame.Instances[1].Remain)
	assert.Equal(t, 2, frame.Live)

	assert.Equal(t, http.StatusBadRequest, e.request(t, http.MethodGet, "/api/v1/overlay?time=abc", nil).Code)
	assert.Equal(t, http.StatusBadRequest, e.request(t, http.MethodGet, "/api/v1/overlay", nil).Code)

	w = e.request(t, http.MethodPost, "/api/v1/seek", seekParam{Time: 150})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]int64{"time": 150, "released": 2}, decode[map[string]int64](t, w))
	assert.Equal(t, http.StatusBadRequest, e.request(t, http.MethodPost, "/api/v1/seek", seekParam{Time: -1}).Code)

	frame = decode[frameView](t, e.request(t, http.MethodGet, "/api/v1/overlay?time=250", nil))
	require.Len(t, frame.Instances, 1)
	assert.Equal(t, "b", frame.Instances[0].Text)
}

func TestSourcesAPI(t *testing.T) {
	dir := t.TempDir()
	e := newEnv(t, dir)

	w := e.request(t, http.MethodPost, "/api/v1/sources", sourceParam{Title: "ep1", URLs: []string{e.remote.URL}, Format: "xml"})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	assert.Equal(t, http.StatusBadRequest, e.request(t, http.MethodPost, "/api/v1/sources", sourceParam{Title: "x"}).Code)
	assert.Equal(t, http.StatusBadRequest, e.request(t, http.MethodPost, "/api/v1/sources",
		sourceParam{Title: "x", URLs: []string{e.remote.URL}, Format: "ass"}).Code)
	assert.Equal(t, http.StatusBadRequest, e.request(t, http.MethodPost, "/api/v1/sources",
		sourceParam{Title: "x", URLs: []string{e.remote.URL}, Timeline: "1:2,0:1"}).Code)

	sources := e.waitSources(t, 1)
	src := sources[0]
	assert.Equal(t, "ep1", src.Title)
	assert.Equal(t, 2, src.Count)
	assert.True(t, src.Show)
	id := strconv.Itoa(src.ID)

	require.Equal(t, http.StatusOK, e.request(t, http.MethodPut, "/api/v1/sources/"+id+"/delay", delayParam{Delay: 1000}).Code)
	require.Equal(t, http.StatusOK, e.request(t, http.MethodPut, "/api/v1/sources/"+id+"/timeline", timelineParam{Timeline: "0:10,120:5"}).Code)
	assert.Equal(t, http.StatusBadRequest, e.request(t, http.MethodPut, "/api/v1/sources/"+id+"/timeline", timelineParam{Timeline: "0:x"}).Code)
	assert.Equal(t, http.StatusNotFound, e.request(t, http.MethodPut, "/api/v1/sources/99/delay", delayParam{Delay: 1}).Code)
	assert.Equal(t, http.StatusNotFound, e.request(t, http.MethodPut, "/api/v1/sources/99/timeline", timelineParam{}).Code)

	src = e.waitSources(t, 1)[0]
	assert.Equal(t, int64(1000), src.Delay)
	assert.Equal(t, "0:10,120:5", src.Timeline)

	// 延迟后 1s 的弹幕在 2s 出现
	frame := decode[frameView](t, e.request(t, http.MethodGet, "/api/v1/overlay?time=1500", nil))
	assert.Empty(t, frame.Instances)
	frame = decode[frameView](t, e.request(t, http.MethodGet, "/api/v1/overlay?time=2100", nil))
	require.Len(t, frame.Instances, 1)
	assert.Equal(t, "first", frame.Instances[0].Text)

	require.Equal(t, http.StatusOK, e.request(t, http.MethodPut, "/api/v1/sources/"+id+"/show", showParam{Show: false}).Code)
	frame = decode[frameView](t, e.request(t, http.MethodGet, "/api/v1/overlay?time=3100", nil))
	assert.Empty(t, frame.Instances)

	w = e.request(t, http.MethodGet, "/api/v1/sources/"+id+"/comments", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
	exported := decode[map[string]any](t, w)
	assert.Equal(t, float64(2), exported["count"])

	w = e.request(t, http.MethodGet, "/api/v1/sources/"+id+"/comments?format=xml", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `<d p="1.000,1,25,16777215,0,0,u1,0">first</d>`)
	assert.Equal(t, http.StatusBadRequest, e.request(t, http.MethodGet, "/api/v1/sources/"+id+"/comments?format=ass", nil).Code)

	// Close 保存来源设置，新的服务从保存的数据重新加载
	require.NoError(t, e.service.Close())
	restored := newEnv(t, dir)
	require.NoError(t, restored.service.Restore())
	src = restored.waitSources(t, 1)[0]
	assert.Equal(t, "ep1", src.Title)
	assert.Equal(t, int64(1000), src.Delay)
	assert.Equal(t, "0:10,120:5", src.Timeline)
	assert.False(t, src.Show)

	assert.Equal(t, http.StatusOK, restored.request(t, http.MethodDelete, "/api/v1/sources/"+strconv.Itoa(src.ID), nil).Code)
	assert.Equal(t, http.StatusNotFound, restored.request(t, http.MethodDelete, "/api/v1/sources/"+strconv.Itoa(src.ID), nil).Code)
	assert.Equal(t, http.StatusNotFound, restored.request(t, http.MethodGet, "/api/v1/sources/"+strconv.Itoa(src.ID)+"/comments", nil).Code)
	require.NoError(t, restored.service.Close())
}
