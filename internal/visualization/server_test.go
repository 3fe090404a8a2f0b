package visualization

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nvandessel/tendril/internal/driver"
	"github.com/nvandessel/tendril/internal/metrics"
	"github.com/nvandessel/tendril/internal/program"
	"github.com/nvandessel/tendril/internal/ratelimit"
)

func newTestDriver(t *testing.T) *driver.Driver {
	t.Helper()
	p, err := program.Lookup("flip")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	dr, err := driver.New(p, 1, driver.WithPaused(true))
	if err != nil {
		t.Fatalf("driver.New() error = %v", err)
	}
	t.Cleanup(func() { dr.Close(context.Background()) })
	return dr
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeStatus(t *testing.T, rec *httptest.ResponseRecorder) driver.Status {
	t.Helper()
	var st driver.Status
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode status: %v (%s)", err, rec.Body.String())
	}
	return st
}

func TestServer_Index(t *testing.T) {
	h := NewServer(newTestDriver(t)).Handler()
	rec := do(t, h, http.MethodGet, "/", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET / status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type = %q, want text/html", ct)
	}
	if !strings.Contains(rec.Body.String(), "<svg") {
		t.Error("index page has no SVG")
	}
}

func TestServer_Health(t *testing.T) {
	h := NewServer(newTestDriver(t)).Handler()
	rec := do(t, h, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "healthy") {
		t.Errorf("GET /health = %d %s", rec.Code, rec.Body.String())
	}
}

func TestServer_StepAndStatus(t *testing.T) {
	h := NewServer(newTestDriver(t)).Handler()

	rec := do(t, h, http.MethodPost, "/api/step?n=12", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /api/step status = %d: %s", rec.Code, rec.Body.String())
	}
	var step stepResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &step); err != nil {
		t.Fatalf("decode step: %v", err)
	}
	if step.Ticks != 12 || step.Tick != 12 {
		t.Errorf("step = %+v, want 12 ticks at tick 12", step)
	}
	if step.Phase != "slope" {
		t.Errorf("step phase = %q, want slope", step.Phase)
	}

	st := decodeStatus(t, do(t, h, http.MethodGet, "/api/status", ""))
	if st.Tick != 12 || st.Program != "flip" {
		t.Errorf("status = %+v", st)
	}
}

func TestServer_StepBadCount(t *testing.T) {
	h := NewServer(newTestDriver(t)).Handler()
	for _, n := range []string{"0", "-3", "many"} {
		rec := do(t, h, http.MethodPost, "/api/step?n="+n, "")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("n=%s status = %d, want 400", n, rec.Code)
		}
	}
}

func TestServer_StepWrongMethod(t *testing.T) {
	h := NewServer(newTestDriver(t)).Handler()
	rec := do(t, h, http.MethodGet, "/api/step", "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET /api/step status = %d, want 405", rec.Code)
	}
}

func TestServer_Snapshot(t *testing.T) {
	h := NewServer(newTestDriver(t)).Handler()
	tests := []struct {
		query       string
		code        int
		contentType string
		contains    string
	}{
		{"", http.StatusOK, "application/json", `"flow_count": 14`},
		{"?format=json", http.StatusOK, "application/json", `"node_count": 12`},
		{"?format=dot", http.StatusOK, "text/vnd.graphviz", "digraph tendril"},
		{"?format=text", http.StatusOK, "text/plain", "tick 0: 12 nodes, 14 flows"},
		{"?format=png", http.StatusBadRequest, "application/json", "unknown format"},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rec := do(t, h, http.MethodGet, "/api/snapshot"+tt.query, "")
			if rec.Code != tt.code {
				t.Fatalf("status = %d, want %d", rec.Code, tt.code)
			}
			if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, tt.contentType) {
				t.Errorf("Content-Type = %q, want %q", ct, tt.contentType)
			}
			if !strings.Contains(rec.Body.String(), tt.contains) {
				t.Errorf("body missing %q:\n%s", tt.contains, rec.Body.String())
			}
		})
	}
}

func TestServer_PauseResume(t *testing.T) {
	h := NewServer(newTestDriver(t)).Handler()
	if st := decodeStatus(t, do(t, h, http.MethodPost, "/api/resume", "")); st.Paused {
		t.Error("resume left driver paused")
	}
	if st := decodeStatus(t, do(t, h, http.MethodPost, "/api/pause", "")); !st.Paused {
		t.Error("pause left driver running")
	}
}

func TestServer_Reload(t *testing.T) {
	dir := t.TempDir()
	h := NewServer(newTestDriver(t), WithAllowedProgramDirs([]string{dir})).Handler()

	rec := do(t, h, http.MethodPost, "/api/reload", `{"program":"octagon","seed":5}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("reload builtin status = %d: %s", rec.Code, rec.Body.String())
	}
	if st := decodeStatus(t, rec); st.Program != "octagon" || st.Seed != 5 {
		t.Errorf("status after reload = %+v", st)
	}

	src, err := os.ReadFile(filepath.Join("..", "program", "testdata", "flip.yaml"))
	if err != nil {
		t.Fatalf("read testdata: %v", err)
	}
	path := filepath.Join(dir, "mine.yaml")
	if err := os.WriteFile(path, src, 0600); err != nil {
		t.Fatalf("write program: %v", err)
	}
	body, _ := json.Marshal(reloadRequest{Program: path})
	rec = do(t, h, http.MethodPost, "/api/reload", string(body))
	if rec.Code != http.StatusOK {
		t.Fatalf("reload file status = %d: %s", rec.Code, rec.Body.String())
	}
}

func TestServer_ReloadErrors(t *testing.T) {
	allowed := t.TempDir()
	outside := filepath.Join(t.TempDir(), "evil.yaml")
	h := NewServer(newTestDriver(t), WithAllowedProgramDirs([]string{allowed})).Handler()
	noFiles := NewServer(newTestDriver(t)).Handler()

	tests := []struct {
		name    string
		handler http.Handler
		body    string
		code    int
	}{
		{"malformed body", h, `{"program":`, http.StatusBadRequest},
		{"empty name", h, `{}`, http.StatusBadRequest},
		{"unknown builtin", h, `{"program":"nope"}`, http.StatusNotFound},
		{"outside allowed dirs", h, `{"program":"` + outside + `"}`, http.StatusBadRequest},
		{"files disabled", noFiles, `{"program":"x.yaml"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, tt.handler, http.MethodPost, "/api/reload", tt.body)
			if rec.Code != tt.code {
				t.Errorf("status = %d, want %d: %s", rec.Code, tt.code, rec.Body.String())
			}
		})
	}
}

func TestServer_Metrics(t *testing.T) {
	c := metrics.NewCollector()
	p, _ := program.Lookup("flip")
	dr, err := driver.New(p, 1, driver.WithPaused(true), driver.WithMetrics(c))
	if err != nil {
		t.Fatalf("driver.New() error = %v", err)
	}
	defer dr.Close(context.Background())

	h := NewServer(dr, WithMetricsHandler(c)).Handler()
	do(t, h, http.MethodPost, "/api/step?n=3", "")
	rec := do(t, h, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /metrics status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `tendril_ticks_total{phase="predict"} 3`) {
		t.Errorf("metrics missing predict ticks:\n%s", rec.Body.String())
	}
}

func TestServer_NoMetricsRoute(t *testing.T) {
	h := NewServer(newTestDriver(t)).Handler()
	if rec := do(t, h, http.MethodGet, "/metrics", ""); rec.Code != http.StatusNotFound {
		t.Errorf("GET /metrics without collector = %d, want 404", rec.Code)
	}
}

func TestServer_CORS(t *testing.T) {
	h := NewServer(newTestDriver(t), WithAllowedOrigins([]string{"http://localhost:3000"})).Handler()
	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
}

func TestServer_ListenAndServe(t *testing.T) {
	srv := NewServer(newTestDriver(t))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe(ctx, "127.0.0.1:0") }()
	waitForServer(t, srv, 2*time.Second)

	resp, err := http.Get("http://" + srv.Addr() + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("ListenAndServe() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func waitForServer(t *testing.T, srv *Server, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if srv.Addr() != "" {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("server did not start in time")
}

func TestServer_RateLimits(t *testing.T) {
	limits := ratelimit.Limits{
		ratelimit.OpStep:     ratelimit.NewLimiter(0, 2),
		ratelimit.OpSnapshot: ratelimit.NewLimiter(0, 1),
		ratelimit.OpLoad:     ratelimit.NewLimiter(1.0/30, 1),
	}
	h := NewServer(newTestDriver(t), WithRateLimits(limits)).Handler()

	// 1000 ticks cost two tokens, so the step budget is gone after one call.
	if rec := do(t, h, http.MethodPost, "/api/step?n=1000", ""); rec.Code != http.StatusOK {
		t.Fatalf("first step status = %d: %s", rec.Code, rec.Body.String())
	}
	rec := do(t, h, http.MethodPost, "/api/step", "")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second step status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("429 without Retry-After")
	}

	do(t, h, http.MethodGet, "/api/snapshot", "")
	if rec := do(t, h, http.MethodGet, "/api/snapshot", ""); rec.Code != http.StatusTooManyRequests {
		t.Errorf("second snapshot status = %d, want 429", rec.Code)
	}

	do(t, h, http.MethodPost, "/api/reload", `{"program":"octagon","seed":1}`)
	rec = do(t, h, http.MethodPost, "/api/reload", `{"program":"flip","seed":1}`)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second reload status = %d, want 429", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "30" {
		t.Errorf("Retry-After = %q, want 30", got)
	}

	// Status is never metered.
	for i := 0; i < 5; i++ {
		if rec := do(t, h, http.MethodGet, "/api/status", ""); rec.Code != http.StatusOK {
			t.Fatalf("status call %d = %d", i, rec.Code)
		}
	}
}

func TestServer_BadRequestsNotCharged(t *testing.T) {
	limits := ratelimit.Limits{ratelimit.OpStep: ratelimit.NewLimiter(0, 1)}
	h := NewServer(newTestDriver(t), WithRateLimits(limits)).Handler()

	if rec := do(t, h, http.MethodPost, "/api/step?n=zero", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad step status = %d, want 400", rec.Code)
	}
	if rec := do(t, h, http.MethodPost, "/api/step", ""); rec.Code != http.StatusOK {
		t.Errorf("valid step after a bad one = %d, want 200", rec.Code)
	}
}

func TestServer_ReloadRelativeName(t *testing.T) {
	dir := t.TempDir()
	src, err := os.ReadFile(filepath.Join("..", "program", "testdata", "flip.yaml"))
	if err != nil {
		t.Fatalf("read testdata: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "crossed.yaml"), src, 0600); err != nil {
		t.Fatalf("write program: %v", err)
	}
	h := NewServer(newTestDriver(t), WithAllowedProgramDirs([]string{dir})).Handler()

	rec := do(t, h, http.MethodPost, "/api/reload", `{"program":"crossed.yaml","seed":2}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("reload status = %d: %s", rec.Code, rec.Body.String())
	}
	if st := decodeStatus(t, rec); st.Seed != 2 {
		t.Errorf("status after reload = %+v", st)
	}
}
