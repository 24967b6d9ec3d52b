package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/codelive/internal/domain/buffer"
	"github.com/GriffinCanCode/codelive/internal/domain/playground"
	"github.com/GriffinCanCode/codelive/internal/domain/template"
	"github.com/GriffinCanCode/codelive/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/codelive/internal/infrastructure/storage"
	"github.com/GriffinCanCode/codelive/internal/relay"
	"github.com/GriffinCanCode/codelive/internal/sandbox"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	router *gin.Engine
	pg     *playground.Playground
	relay  *relay.Relay
	kv     *storage.Memory
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	kv := storage.NewMemory()
	rel := relay.New(relay.Options{MaxLines: 100})
	gallery, err := template.Default()
	require.NoError(t, err)

	cfg := sandbox.DefaultConfig()
	cfg.Timeout = time.Second

	pg, err := playground.New(context.Background(), playground.Options{
		Store:   buffer.NewStore(kv),
		Host:    sandbox.NewHost(cfg, rel.Sink, nil),
		Relay:   rel,
		Gallery: gallery,
		Delay:   time.Hour,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		pg.Close()
		rel.Close()
	})

	router := gin.New()
	NewHandlers(pg, monitoring.NewMetrics(), nil).Register(router)
	return &testServer{router: router, pg: pg, relay: rel, kv: kv}
}

func (s *testServer) do(method, path, body string, headers ...string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestRootServesHostPage(t *testing.T) {
	s := newTestServer(t)
	w := s.do(http.MethodGet, "/", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, w.Body.String(), `sandbox="allow-scripts"`)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	w := s.do(http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, Version, body["version"])

	pg, ok := body["playground"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, false, pg["auto_run"])
	assert.Equal(t, "idle", pg["state"])
	assert.Contains(t, body, "metrics")
}

func TestBuffersRoundTrip(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodPut, "/api/buffers", `{"html":"<p id=\"x\">a</p>","css":"p{}","js":"console.log('hi')"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, false, decode(t, w)["ran"])

	w = s.do(http.MethodGet, "/api/buffers", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, `<p id="x">a</p>`, body["html"])
	assert.Equal(t, "p{}", body["css"])
	assert.Equal(t, "console.log('hi')", body["js"])

	// Every change is saved immediately
	rec, ok := buffer.NewStore(s.kv).Load(context.Background())
	require.True(t, ok)
	assert.Equal(t, "p{}", rec.CSS)
}

func TestPutBuffersWithRun(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodPut, "/api/buffers?run=true", `{"html":"","css":"","js":"console.log('now')"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, true, decode(t, w)["ran"])

	require.NoError(t, s.relay.Flush(context.Background()))
	lines := s.pg.Console()
	require.Len(t, lines, 1)
	assert.Equal(t, "now", lines[0].Text())
}

func TestPutBuffersRejectsBadInput(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name string
		path string
		body string
		want int
	}{
		{"malformed json", "/api/buffers", `{"html":`, http.StatusBadRequest},
		{"bad run flag", "/api/buffers?run=maybe", `{"html":""}`, http.StatusBadRequest},
		{"oversized buffer", "/api/buffers", `{"js":"` + strings.Repeat("a", 600*1024) + `"}`, http.StatusBadRequest},
		{"oversized body", "/api/buffers", `{"js":"` + strings.Repeat("a", 3*1024*1024) + `"}`, http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(http.MethodPut, tt.path, tt.body)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}
}

func TestEditPane(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name string
		pane string
		body string
		want int
	}{
		{"html", "html", `{"text":"<h1>t</h1>"}`, http.StatusOK},
		{"empty text", "css", `{"text":""}`, http.StatusOK},
		{"unknown pane", "python", `{"text":"x"}`, http.StatusBadRequest},
		{"missing text", "js", `{}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(http.MethodPatch, "/api/buffers/"+tt.pane, tt.body)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}

	assert.Equal(t, "<h1>t</h1>", s.pg.Buffers().Markup)
}

func TestRun(t *testing.T) {
	s := newTestServer(t)
	require.NoError(t, s.pg.Replace(context.Background(), buffer.Set{
		Markup: `<div id="out"></div>`,
		Script: `document.getElementById('out').textContent = 'done'; console.log('ran');`,
	}, false))

	w := s.do(http.MethodPost, "/api/run", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	body := decode(t, w)
	assert.NotEmpty(t, body["instance"])
	assert.EqualValues(t, 1, body["scripts"])
	assert.NotContains(t, body, "error")
	assert.EqualValues(t, 1, body["dom_changes"])
}

func TestRunReportsUncaughtError(t *testing.T) {
	s := newTestServer(t)
	// A syntax error escapes the failure boundary around the user script
	require.NoError(t, s.pg.Replace(context.Background(), buffer.Set{Script: `var = ;`}, false))

	w := s.do(http.MethodPost, "/api/run", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, decode(t, w)["error"])

	// The next rebuild starts clean
	require.NoError(t, s.pg.Replace(context.Background(), buffer.Set{Script: `console.log("ok")`}, false))
	w = s.do(http.MethodPost, "/api/run", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, decode(t, w), "error")
}

func TestSetAutoRun(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodPut, "/api/autorun", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPut, "/api/autorun", `{"enabled":true}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["auto_run"])
	assert.True(t, s.pg.AutoRun())

	w = s.do(http.MethodPut, "/api/autorun", `{"enabled":false}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, s.pg.AutoRun())
}

func TestSaveAndClear(t *testing.T) {
	s := newTestServer(t)
	require.NoError(t, s.pg.Edit(buffer.PaneHTML, "<p>keep</p>"))

	w := s.do(http.MethodPost, "/api/save", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, decode(t, w)["timestamp"])

	w = s.do(http.MethodPost, "/api/clear", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.True(t, s.pg.Buffers().IsEmpty())

	rec, ok := buffer.NewStore(s.kv).Load(context.Background())
	require.True(t, ok)
	assert.True(t, rec.Buffers().IsEmpty())
}

func TestTemplates(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodGet, "/api/templates", "")
	require.Equal(t, http.StatusOK, w.Code)
	list, ok := decode(t, w)["templates"].([]any)
	require.True(t, ok)
	assert.Len(t, list, len(template.IDs))

	first := list[0].(map[string]any)
	assert.NotEmpty(t, first["id"])
	assert.NotEmpty(t, first["name"])
	assert.NotContains(t, first, "html")

	w = s.do(http.MethodPost, "/api/templates/basic/load", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Contains(t, body, "buffers")
	assert.False(t, s.pg.Buffers().IsEmpty())
	assert.NotEmpty(t, s.pg.Status().Instance)

	w = s.do(http.MethodPost, "/api/templates/missing/load", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestConsole(t *testing.T) {
	s := newTestServer(t)
	require.NoError(t, s.pg.Replace(context.Background(), buffer.Set{
		Script: `console.log("one"); console.warn("<b>two</b>");`,
	}, true))
	require.NoError(t, s.relay.Flush(context.Background()))

	w := s.do(http.MethodGet, "/api/console", "")
	require.Equal(t, http.StatusOK, w.Code)
	lines, ok := decode(t, w)["lines"].([]any)
	require.True(t, ok)
	require.Len(t, lines, 2)

	firstSeq := uint64(lines[0].(map[string]any)["seq"].(float64))
	w = s.do(http.MethodGet, "/api/console?since="+strconv.FormatUint(firstSeq, 10), "")
	require.Equal(t, http.StatusOK, w.Code)
	lines = decode(t, w)["lines"].([]any)
	require.Len(t, lines, 1)
	assert.Equal(t, "warn", lines[0].(map[string]any)["method"])

	w = s.do(http.MethodGet, "/api/console?since=abc", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodGet, "/api/console?format=html", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "one")
	assert.NotContains(t, w.Body.String(), "<b>two</b>")

	w = s.do(http.MethodDelete, "/api/console", "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = s.do(http.MethodGet, "/api/console", "")
	assert.Empty(t, decode(t, w)["lines"])
}

func TestPreview(t *testing.T) {
	s := newTestServer(t)
	require.NoError(t, s.pg.Replace(context.Background(), buffer.Set{
		Markup: "<h1>Hello</h1>",
		Style:  "h1{color:red}",
	}, true))

	w := s.do(http.MethodGet, "/preview", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, PreviewCSP, w.Header().Get("Content-Security-Policy"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Contains(t, w.Body.String(), "<h1>Hello</h1>")
	assert.Contains(t, w.Body.String(), "h1{color:red}")

	etag := w.Header().Get("ETag")
	require.NotEmpty(t, etag)

	w = s.do(http.MethodGet, "/preview", "", "If-None-Match", etag)
	assert.Equal(t, http.StatusNotModified, w.Code)
	assert.Empty(t, w.Body.String())

	require.NoError(t, s.pg.Replace(context.Background(), buffer.Set{Markup: "<h1>Changed</h1>"}, true))
	w = s.do(http.MethodGet, "/preview", "", "If-None-Match", etag)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEqual(t, etag, w.Header().Get("ETag"))
}

func TestSnapshotAndDispatch(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodGet, "/preview/snapshot", "")
	assert.Equal(t, http.StatusConflict, w.Code, "nothing rendered yet")

	require.NoError(t, s.pg.Replace(context.Background(), buffer.Set{
		Markup: `<button id="b">go</button><span id="out"></span>`,
		Script: `document.getElementById('b').addEventListener('click', function () {
			document.getElementById('out').textContent = 'clicked';
		});`,
	}, true))

	tests := []struct {
		name string
		body string
		want int
	}{
		{"click", `{"selector":"#b","event":"click"}`, http.StatusOK},
		{"default event", `{"selector":"#b"}`, http.StatusOK},
		{"no match", `{"selector":"#missing"}`, http.StatusNotFound},
		{"empty selector", `{"selector":""}`, http.StatusBadRequest},
		{"bad event name", `{"selector":"#b","event":"on click!"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(http.MethodPost, "/api/preview/dispatch", tt.body)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}

	w = s.do(http.MethodGet, "/preview/snapshot", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `<span id="out">clicked</span>`)
}

func TestClosedPlaygroundIsUnavailable(t *testing.T) {
	s := newTestServer(t)
	s.pg.Close()

	w := s.do(http.MethodPatch, "/api/buffers/html", `{"text":"x"}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = s.do(http.MethodPost, "/api/run", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{buffer.ErrUnknownPane, http.StatusBadRequest},
		{template.ErrTemplateNotFound, http.StatusNotFound},
		{sandbox.ErrNoTarget, http.StatusNotFound},
		{sandbox.ErrNoInstance, http.StatusConflict},
		{playground.ErrClosed, http.StatusServiceUnavailable},
		{context.DeadlineExceeded, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}
