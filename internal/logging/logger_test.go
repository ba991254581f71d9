package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/klauspost/compress/gzip"

	"raygrid/internal/config"
)

func TestNewWithWriterEmitsStructuredFields(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWithWriter(&buf, "debug")
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	logger.With(String("component", "stepper")).Debug("hit obstacle",
		Int("index", 3),
		Float64("radius", 0.02),
		Vec3("center", mgl64.Vec3{0.1, -0.1, 0}),
		Error(errors.New("boom")),
	)

	var payload map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &payload); err != nil {
		t.Fatalf("decode line %q: %v", buf.String(), err)
	}
	if payload["message"] != "hit obstacle" || payload["level"] != "debug" {
		t.Fatalf("unexpected envelope %+v", payload)
	}
	if payload["component"] != "stepper" || payload["service"] != "raygrid" {
		t.Fatalf("missing inherited fields %+v", payload)
	}
	if payload["index"] != float64(3) {
		t.Fatalf("unexpected index %v", payload["index"])
	}
	if payload["error"] != "boom" {
		t.Fatalf("errors should log their text, got %v", payload["error"])
	}
	center, ok := payload["center"].([]any)
	if !ok || len(center) != 3 || center[0] != 0.1 {
		t.Fatalf("unexpected center %v", payload["center"])
	}
}

func TestFieldOrderIsStable(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWithWriter(&buf, "info")
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	logger.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }
	logger.With(String("component", "hub")).Info("tick", Int("b", 2), Int("a", 1), String("component", "loop"), String("level", "ignored"))

	want := `{"timestamp":"2024-01-02T03:04:05Z","level":"info","message":"tick","service":"raygrid","component":"loop","b":2,"a":1}`
	if got := strings.TrimSpace(buf.String()); got != want {
		t.Fatalf("unexpected line\n got %s\nwant %s", got, want)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWithWriter(&buf, "warn")
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	logger.Info("dropped")
	logger.Warn("kept")
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 || !strings.Contains(lines[0], "kept") {
		t.Fatalf("expected only the warning, got %q", buf.String())
	}
}

func TestParseLevelRejectsUnknown(t *testing.T) {
	if _, err := NewWithWriter(&bytes.Buffer{}, "loud"); err == nil {
		t.Fatal("expected an error for an unknown level")
	}
	if level, err := parseLevel("WARNING"); err != nil || level != WarnLevel {
		t.Fatalf("expected warning alias, got %v %v", level, err)
	}
}

func readGzip(t *testing.T, path string) string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	zr, err := gzip.NewReader(f)
	if err != nil {
		t.Fatalf("gzip reader: %v", err)
	}
	data, err := io.ReadAll(zr)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}

func TestFileSinkShiftsNumberedBackups(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "logs", "raygrid.log")
	sink, err := openFileSink(config.LoggingConfig{Path: path, MaxSizeMB: 1, MaxBackups: 2, Compress: true})
	if err != nil {
		t.Fatalf("open sink: %v", err)
	}
	sink.maxBytes = 16

	for _, line := range []string{"first-line-0001\n", "second-line-002\n", "third-line-0003\n", "fourth-line-004\n"} {
		if _, err := sink.Write([]byte(line)); err != nil {
			t.Fatalf("write %q: %v", line, err)
		}
	}
	if err := sink.Sync(); err != nil {
		t.Fatalf("sync: %v", err)
	}

	if got := readGzip(t, path+".1.gz"); got != "third-line-0003\n" {
		t.Fatalf("backup 1 holds %q", got)
	}
	if got := readGzip(t, path+".2.gz"); got != "second-line-002\n" {
		t.Fatalf("backup 2 holds %q", got)
	}
	if _, err := os.Stat(path + ".3.gz"); !os.IsNotExist(err) {
		t.Fatalf("expected only two backups, stat err %v", err)
	}
	current, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read current: %v", err)
	}
	if string(current) != "fourth-line-004\n" {
		t.Fatalf("current file holds %q", current)
	}
}

func TestOpenFileSinkReportsEveryProblem(t *testing.T) {
	_, err := openFileSink(config.LoggingConfig{Path: filepath.Join(t.TempDir(), "x.log"), MaxBackups: -1, MaxAgeDays: -1})
	if err == nil {
		t.Fatal("expected configuration errors")
	}
	for _, key := range []string{"MAX_SIZE_MB", "MAX_BACKUPS", "MAX_AGE_DAYS"} {
		if !strings.Contains(err.Error(), key) {
			t.Fatalf("error %q does not mention %s", err, key)
		}
	}
}

func TestHTTPTraceMiddleware(t *testing.T) {
	var buf bytes.Buffer
	base, err := NewWithWriter(&buf, "debug")
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	var seen *Logger
	handler := HTTPTraceMiddleware(base)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = LoggerFromContext(r.Context())
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/livez", nil)
	req.Header.Set(TraceIDHeader, "abc123")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Header().Get(TraceIDHeader) != "abc123" {
		t.Fatalf("trace id not echoed: %q", rr.Header().Get(TraceIDHeader))
	}
	if seen == nil || seen == L() {
		t.Fatal("handler should receive a request-scoped logger")
	}
	var payload map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &payload); err != nil {
		t.Fatalf("decode %q: %v", buf.String(), err)
	}
	if payload["trace_id"] != "abc123" || payload["status"] != float64(http.StatusTeapot) || payload["path"] != "/livez" {
		t.Fatalf("unexpected request log %+v", payload)
	}

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/livez", nil))
	if len(rr.Header().Get(TraceIDHeader)) != 16 {
		t.Fatalf("expected a generated 16 hex digit trace id, got %q", rr.Header().Get(TraceIDHeader))
	}
}
