package server

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/siegeai/canary/assets"
	"github.com/siegeai/canary/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fastjson"
)

func newTestServer(t *testing.T, cfg Config) (*Server, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	logger, closer, err := logging.New(logging.Options{Console: buf})
	require.NoError(t, err)
	t.Cleanup(func() { closer.Close() })

	if cfg.ImagesDir == "" {
		cfg.ImagesDir = writeImages(t)
	}
	return New(cfg, logger), buf
}

func writeImages(t *testing.T) string {
	dir := t.TempDir()
	for i, img := range assets.Images {
		content := bytes.Repeat([]byte{0x89, 'P', 'N', 'G'}, 64*(i+1))
		require.NoError(t, os.WriteFile(filepath.Join(dir, img.File), content, 0o644))
	}
	return dir
}

func get(s *Server, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func logLines(buf *bytes.Buffer) []string {
	out := strings.TrimSuffix(buf.String(), "\n")
	if out == "" {
		return nil
	}
	return strings.Split(out, "\n")
}

func count(lines []string, substr string) int {
	n := 0
	for _, l := range lines {
		if strings.Contains(l, substr) {
			n++
		}
	}
	return n
}

func TestIndex(t *testing.T) {
	s, buf := newTestServer(t, Config{})

	rec := get(s, "/")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "CI/CD works")
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))

	lines := logLines(buf)
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "level=INFO msg=request ")
	assert.Contains(t, lines[0], "method=GET path=/ remote=192.0.2.1:1234")
	assert.Contains(t, lines[1], "level=INFO msg=response ")
	assert.Contains(t, lines[1], "status=200")
}

func TestUsers(t *testing.T) {
	s, _ := newTestServer(t, Config{Accounts: assets.Accounts{
		Host:        "web-01",
		DBUser:      "oracle_app",
		CalypsoUser: "calypso_ro",
	}})

	for i := 0; i < 2; i++ {
		rec := get(s, "/users")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

		v, err := fastjson.ParseBytes(rec.Body.Bytes())
		require.NoError(t, err)
		arr, err := v.Array()
		require.NoError(t, err)
		require.Len(t, arr, 3)
		assert.Equal(t, "web-01", string(arr[0].GetStringBytes()))
		assert.Equal(t, "oracle_app", string(arr[1].GetStringBytes()))
		assert.Equal(t, "calypso_ro", string(arr[2].GetStringBytes()))
	}
}

func TestHealthAlwaysLogsError(t *testing.T) {
	s, buf := newTestServer(t, Config{})
	get(s, "/")

	for i := 0; i < 3; i++ {
		buf.Reset()
		rec := get(s, "/health")

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "<h1>App is Up</h1>", rec.Body.String())

		lines := logLines(buf)
		require.Len(t, lines, 3)
		assert.Equal(t, 1, count(lines, "level=ERROR"))
		assert.Contains(t, lines[1], `level=ERROR msg="Health check passed!"`)
		assert.Contains(t, lines[2], "msg=response ")
	}
}

func TestImages(t *testing.T) {
	dir := writeImages(t)
	s, buf := newTestServer(t, Config{ImagesDir: dir})

	for _, img := range assets.Images {
		buf.Reset()
		info, err := os.Stat(filepath.Join(dir, img.File))
		require.NoError(t, err)

		rec := get(s, img.Route)

		assert.Equal(t, http.StatusOK, rec.Code, img.Route)
		assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
		assert.EqualValues(t, info.Size(), rec.Body.Len())
		assert.Equal(t, 1, count(logLines(buf), "msg=response "))
	}
}

func TestMissingImage(t *testing.T) {
	dir := writeImages(t)
	s, buf := newTestServer(t, Config{ImagesDir: dir})
	require.NoError(t, os.Remove(filepath.Join(dir, "stars.jpg")))

	rec := get(s, "/stars")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Not Found\n", rec.Body.String())
	assert.NotContains(t, rec.Body.String(), dir)

	lines := logLines(buf)
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "msg=request ")
	assert.Contains(t, lines[1], `level=ERROR msg="request failed"`)
	assert.Contains(t, lines[1], "status=404")
	assert.Contains(t, lines[1], "stars.jpg")
	assert.Zero(t, count(lines, "msg=response "))

	rec = get(s, "/clouds")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStressTest(t *testing.T) {
	s, buf := newTestServer(t, Config{StressIterations: 200})

	rec := get(s, "/stress-test")

	require.Equal(t, http.StatusOK, rec.Code)
	v, err := fastjson.ParseBytes(rec.Body.Bytes())
	require.NoError(t, err)
	assert.Equal(t, 200, v.GetInt("iterations"))
	assert.Equal(t, "completed", string(v.GetStringBytes("status")))
	assert.Equal(t, "Resource-intensive operation finished", string(v.GetStringBytes("message")))
	assert.True(t, v.Exists("elapsed_seconds"))

	lines := logLines(buf)
	assert.Contains(t, lines[0], "msg=request ")
	assert.Contains(t, lines[len(lines)-1], "msg=response ")
}

func TestUnmatchedPath(t *testing.T) {
	s, buf := newTestServer(t, Config{})

	rec := get(s, "/nope")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	lines := logLines(buf)
	require.Len(t, lines, 2)
	assert.Contains(t, lines[1], "status=404")
}

func TestNoPrefixMatch(t *testing.T) {
	s, _ := newTestServer(t, Config{})

	assert.Equal(t, http.StatusNotFound, get(s, "/health/").Code)
	assert.Equal(t, http.StatusNotFound, get(s, "/users/1").Code)
}

func TestWrongMethod(t *testing.T) {
	s, _ := newTestServer(t, Config{})

	req := httptest.NewRequest(http.MethodPost, "/health", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestFaultRoutesDisabled(t *testing.T) {
	s, _ := newTestServer(t, Config{EnableFaults: false})

	assert.Equal(t, http.StatusNotFound, get(s, "/infinite-loop").Code)
	assert.Equal(t, http.StatusNotFound, get(s, "/memory-bomb").Code)
}

func TestFaultRoutesRegistered(t *testing.T) {
	s, _ := newTestServer(t, Config{EnableFaults: true})

	for _, name := range []string{"infinite-loop", "memory-bomb"} {
		rt := s.router.Get(name)
		require.NotNil(t, rt, name)
		tpl, err := rt.GetPathTemplate()
		require.NoError(t, err)
		assert.Equal(t, "/"+name, tpl)
	}
}

func TestHandlerErrorIsGeneric(t *testing.T) {
	s, buf := newTestServer(t, Config{})
	h := s.logMiddleware(s.adapt(func(w http.ResponseWriter, r *http.Request) error {
		return errors.New("disk on fire at /var/secret")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Internal Server Error\n", rec.Body.String())

	lines := logLines(buf)
	require.Len(t, lines, 2)
	assert.Contains(t, lines[1], "level=ERROR")
	assert.Contains(t, lines[1], "disk on fire")
}

func TestHandlerPanicIsRecovered(t *testing.T) {
	s, buf := newTestServer(t, Config{})
	h := s.logMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("kaboom")
	}))

	rec := httptest.NewRecorder()
	assert.NotPanics(t, func() {
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
	})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "kaboom")

	lines := logLines(buf)
	require.Len(t, lines, 2)
	assert.Contains(t, lines[1], "level=ERROR")
	assert.Contains(t, lines[1], "panic: kaboom")
}

func TestErrorAfterWriteKeepsResponse(t *testing.T) {
	s, buf := newTestServer(t, Config{})
	h := s.logMiddleware(s.adapt(func(w http.ResponseWriter, r *http.Request) error {
		w.Write([]byte("partial"))
		return errors.New("client went away")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/partial", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "partial", rec.Body.String())
	assert.Equal(t, 1, count(logLines(buf), "level=ERROR"))
}

func TestRequestID(t *testing.T) {
	s, buf := newTestServer(t, Config{})

	rec := get(s, "/")

	id := rec.Header().Get("X-Request-Id")
	_, err := uuid.Parse(id)
	require.NoError(t, err)
	for _, l := range logLines(buf) {
		assert.Contains(t, l, "request_id="+id)
	}
}

func TestMetrics(t *testing.T) {
	s, _ := newTestServer(t, Config{})
	get(s, "/")
	get(s, "/")
	get(s, "/nope")

	rec := get(s, "/metrics")

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `canary_http_requests_total{code="200",method="GET",route="index"} 2`)
	assert.Contains(t, body, `canary_http_requests_total{code="404",method="GET",route="unmatched"} 1`)
	assert.Contains(t, body, "go_goroutines")
}

func TestOpenAPI(t *testing.T) {
	s, _ := newTestServer(t, Config{EnableFaults: true, Version: "1.2.3"})

	rec := get(s, "/openapi.json")

	require.Equal(t, http.StatusOK, rec.Code)
	v, err := fastjson.ParseBytes(rec.Body.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "3.0.0", string(v.GetStringBytes("openapi")))
	assert.Equal(t, "1.2.3", string(v.GetStringBytes("info", "version")))
	for _, p := range []string{"/", "/users", "/health", "/stress-test", "/clouds", "/stars", "/infinite-flight", "/infinite-loop", "/memory-bomb"} {
		assert.True(t, v.Exists("paths", p, "get"), p)
	}
	assert.True(t, v.Exists("paths", "/memory-bomb", "get", "responses", "default"))
	assert.Equal(t, "array", string(v.GetStringBytes("paths", "/users", "get", "responses", "200", "content", "application/json", "schema", "type")))
}
