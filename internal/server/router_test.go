package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type fakeRunner struct {
	adminRuns   []RunRequest
	quickChecks []QuickCheckRequest
	failWith    error
}

func (f *fakeRunner) CreateAdminRun(request RunRequest, principal Principal, source string) (RunMeta, error) {
	if f.failWith != nil {
		return RunMeta{}, f.failWith
	}
	f.adminRuns = append(f.adminRuns, request)
	return RunMeta{RunID: "run_admin", Status: "queued", Request: request}, nil
}

func (f *fakeRunner) CreateQuickCheck(request QuickCheckRequest, ipHash, uaHash string) (RunMeta, error) {
	if f.failWith != nil {
		return RunMeta{}, f.failWith
	}
	f.quickChecks = append(f.quickChecks, request)
	return RunMeta{RunID: "run_quick", Status: "queued"}, nil
}

func newTestAPI(t *testing.T, runner RunnerService) (*API, *MemoryFileStore) {
	t.Helper()
	store, err := NewMemoryFileStore("")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	cfg := DefaultServerConfig()
	cfg.Security.AdminToken = "test-admin-token"
	auth := NewAuth(nil, cfg)
	return NewAPI(auth, store, runner, nil), store
}

func TestHealthz(t *testing.T) {
	api, _ := newTestAPI(t, &fakeRunner{})
	server := httptest.NewServer(api.Handler())
	defer server.Close()

	resp, err := http.Get(server.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestAdminEndpointsRequireToken(t *testing.T) {
	api, _ := newTestAPI(t, &fakeRunner{})
	server := httptest.NewServer(api.Handler())
	defer server.Close()

	resp, err := http.Get(server.URL + "/api/v1/admin/runs")
	if err != nil {
		t.Fatalf("GET without token: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("without token status = %d, expected 401", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, server.URL+"/api/v1/admin/runs", nil)
	req.Header.Set("X-Admin-Token", "wrong")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET with bad token: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad token status = %d, expected 401", resp.StatusCode)
	}

	req, _ = http.NewRequest(http.MethodGet, server.URL+"/api/v1/admin/runs", nil)
	req.Header.Set("X-Admin-Token", "test-admin-token")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET with token: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("with token status = %d, expected 200", resp.StatusCode)
	}
}

func TestAdminBearerTokenAccepted(t *testing.T) {
	api, _ := newTestAPI(t, &fakeRunner{})
	server := httptest.NewServer(api.Handler())
	defer server.Close()

	req, _ := http.NewRequest(http.MethodGet, server.URL+"/api/v1/admin/metrics/overview", nil)
	req.Header.Set("Authorization", "Bearer test-admin-token")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET with bearer: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("bearer status = %d, expected 200", resp.StatusCode)
	}
}

func TestAdminCreateRun(t *testing.T) {
	runner := &fakeRunner{}
	api, _ := newTestAPI(t, runner)
	server := httptest.NewServer(api.Handler())
	defer server.Close()

	req, _ := http.NewRequest(http.MethodPost, server.URL+"/api/v1/admin/runs",
		strings.NewReader(`{"base_url": "http://localhost:8000"}`))
	req.Header.Set("X-Admin-Token", "test-admin-token")
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, expected 202", resp.StatusCode)
	}
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["run_id"] != "run_admin" {
		t.Fatalf("run_id = %v", body["run_id"])
	}
	if len(runner.adminRuns) != 1 || runner.adminRuns[0].BaseURL != "http://localhost:8000" {
		t.Fatalf("runner not invoked correctly: %+v", runner.adminRuns)
	}
}

func TestQuickCheckEndpoint(t *testing.T) {
	runner := &fakeRunner{}
	api, _ := newTestAPI(t, runner)
	server := httptest.NewServer(api.Handler())
	defer server.Close()

	resp, err := http.Post(server.URL+"/api/v1/quick-check", "application/json",
		strings.NewReader(`{"base_url": "http://localhost:8000"}`))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, expected 202", resp.StatusCode)
	}
	if len(runner.quickChecks) != 1 {
		t.Fatalf("runner not invoked: %+v", runner.quickChecks)
	}
}

func TestQuickCheckRejectsBadBody(t *testing.T) {
	api, _ := newTestAPI(t, &fakeRunner{})
	server := httptest.NewServer(api.Handler())
	defer server.Close()

	resp, err := http.Post(server.URL+"/api/v1/quick-check", "application/json",
		strings.NewReader(`{"base_url":`))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, expected 400", resp.StatusCode)
	}
}

func TestQuickCheckRateLimitMapsTo429(t *testing.T) {
	runner := &fakeRunner{failWith: errors.New("quick check rate limit reached")}
	api, _ := newTestAPI(t, runner)
	server := httptest.NewServer(api.Handler())
	defer server.Close()

	resp, err := http.Post(server.URL+"/api/v1/quick-check", "application/json",
		strings.NewReader(`{"base_url": "http://localhost:8000"}`))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("status = %d, expected 429", resp.StatusCode)
	}
}

func TestGetQuickCheckView(t *testing.T) {
	api, store := newTestAPI(t, &fakeRunner{})
	server := httptest.NewServer(api.Handler())
	defer server.Close()

	run := newTestRun("run_view", "pass")
	run.Score = 5
	_ = store.CreateRun(run)

	resp, err := http.Get(server.URL + "/api/v1/quick-check/run_view")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var view map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if view["run_id"] != "run_view" || view["score"] != float64(5) {
		t.Fatalf("unexpected view: %+v", view)
	}

	resp, err = http.Get(server.URL + "/api/v1/quick-check/run_missing")
	if err != nil {
		t.Fatalf("GET missing: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing run status = %d, expected 404", resp.StatusCode)
	}
}

func TestRunEventsSSEDeliversBacklog(t *testing.T) {
	api, store := newTestAPI(t, &fakeRunner{})

	_ = store.CreateRun(newTestRun("run_sse", "running"))
	_, _ = store.AppendRunEvent("run_sse", "start", "run started", nil)
	_, _ = store.AppendRunEvent("run_sse", "check_start", "check started", map[string]any{"check": "list"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // stream returns right after the initial backlog flush

	req := httptest.NewRequest(http.MethodGet, "/api/v1/quick-check/run_sse/events", nil).WithContext(ctx)
	req.SetPathValue("id", "run_sse")
	recorder := httptest.NewRecorder()
	api.handleRunEventsSSE(recorder, req)

	if ct := recorder.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}
	body := recorder.Body.String()
	if !strings.Contains(body, "event: run_event") {
		t.Fatalf("no SSE events in body: %q", body)
	}
	if !strings.Contains(body, `"stage":"check_start"`) {
		t.Fatalf("expected check_start event, got: %q", body)
	}
}

func TestCORSPreflight(t *testing.T) {
	api, _ := newTestAPI(t, &fakeRunner{})
	server := httptest.NewServer(api.Handler())
	defer server.Close()

	req, _ := http.NewRequest(http.MethodOptions, server.URL+"/api/v1/quick-check", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("OPTIONS: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("preflight status = %d", resp.StatusCode)
	}
	if origin := resp.Header.Get("Access-Control-Allow-Origin"); origin != "*" {
		t.Fatalf("allow-origin = %q", origin)
	}
}
