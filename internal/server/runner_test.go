package server

import (
	"net/http/httptest"
	"testing"
	"time"

	"todocheck/internal/backend"
)

func newTestManager(t *testing.T) (*RunManager, *MemoryFileStore) {
	t.Helper()
	store, err := NewMemoryFileStore("")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	cfg := DefaultServerConfig()
	cfg.Runs.DefaultTimeoutSec = 10
	manager := NewRunManager(cfg, store, nil)
	t.Cleanup(manager.Shutdown)
	return manager, store
}

func waitForTerminal(t *testing.T, store *MemoryFileStore, runID string) RunMeta {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		meta, ok := store.GetRun(runID)
		if ok && (meta.Status == "pass" || meta.Status == "fail") {
			return meta
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("run %s did not finish in time", runID)
	return RunMeta{}
}

func TestQuickCheckAgainstReferenceBackend(t *testing.T) {
	target := httptest.NewServer(backend.Handler(backend.NewStore()))
	defer target.Close()

	manager, store := newTestManager(t)
	meta, err := manager.CreateQuickCheck(QuickCheckRequest{BaseURL: target.URL}, "iphash", "uahash")
	if err != nil {
		t.Fatalf("create quick check: %v", err)
	}
	if meta.Status != "queued" || meta.Total != 5 {
		t.Fatalf("unexpected initial meta: %+v", meta)
	}

	final := waitForTerminal(t, store, meta.RunID)
	if final.Status != "pass" {
		t.Fatalf("run status = %s, error = %s", final.Status, final.Error)
	}
	if final.Score != 5 || final.Report == nil {
		t.Fatalf("unexpected final meta: score=%d report=%v", final.Score, final.Report)
	}
	if final.StartedAt == "" || final.FinishedAt == "" {
		t.Fatalf("timestamps not recorded: %+v", final)
	}

	events := store.ListRunEvents(meta.RunID, 0)
	stages := map[string]int{}
	for _, event := range events {
		stages[event.Stage]++
	}
	if stages["start"] != 1 || stages["completed"] != 1 {
		t.Fatalf("lifecycle events missing: %+v", stages)
	}
	if stages["check_start"] != 5 || stages["check_result"] != 5 {
		t.Fatalf("per-check events missing: %+v", stages)
	}
}

func TestQuickCheckAgainstUnreachableTarget(t *testing.T) {
	target := httptest.NewServer(backend.Handler(backend.NewStore()))
	targetURL := target.URL
	target.Close()

	manager, store := newTestManager(t)
	meta, err := manager.CreateQuickCheck(QuickCheckRequest{BaseURL: targetURL}, "iphash2", "uahash2")
	if err != nil {
		t.Fatalf("create quick check: %v", err)
	}

	final := waitForTerminal(t, store, meta.RunID)
	if final.Status != "fail" || final.Score != 0 {
		t.Fatalf("expected failing run with score 0, got %+v", final)
	}
	if final.Error == "" {
		t.Fatalf("failing run should carry the first failure reason")
	}
}

func TestCreateAdminRunValidation(t *testing.T) {
	manager, _ := newTestManager(t)
	if _, err := manager.CreateAdminRun(RunRequest{}, Principal{Subject: "admin-1"}, "admin.manual"); err == nil {
		t.Fatalf("empty base_url should be rejected")
	}
}

func TestCreateAdminRunDefaultsTimeout(t *testing.T) {
	target := httptest.NewServer(backend.Handler(backend.NewStore()))
	defer target.Close()

	manager, store := newTestManager(t)
	meta, err := manager.CreateAdminRun(RunRequest{BaseURL: target.URL}, Principal{Subject: "admin-1"}, "admin.manual")
	if err != nil {
		t.Fatalf("create admin run: %v", err)
	}
	if meta.Request.TimeoutSec != 10 {
		t.Fatalf("timeout not defaulted: %+v", meta.Request)
	}
	if meta.CreatorType != "admin" || meta.CreatorSub != "admin-1" {
		t.Fatalf("creator not recorded: %+v", meta)
	}

	final := waitForTerminal(t, store, meta.RunID)
	if final.Status != "pass" {
		t.Fatalf("run status = %s, error = %s", final.Status, final.Error)
	}

	audit := store.ListAudit(10)
	var sawCreate, sawComplete bool
	for _, event := range audit {
		switch event.Action {
		case "run.create":
			sawCreate = true
		case "run.completed":
			sawComplete = true
		}
	}
	if !sawCreate || !sawComplete {
		t.Fatalf("audit trail incomplete: %+v", audit)
	}
}

func TestQuickCheckRateLimiter(t *testing.T) {
	limiter := newIPRateLimiter(2)
	if !limiter.Allow("ip-1") || !limiter.Allow("ip-1") {
		t.Fatalf("first two requests should pass")
	}
	if limiter.Allow("ip-1") {
		t.Fatalf("third request within a minute should be blocked")
	}
	if !limiter.Allow("ip-2") {
		t.Fatalf("another key should not be affected")
	}
}

func TestQuickCheckRateLimitRejection(t *testing.T) {
	store, _ := NewMemoryFileStore("")
	cfg := DefaultServerConfig()
	cfg.Limits.QuickCheckRPM = 1
	manager := NewRunManager(cfg, store, nil)
	defer manager.Shutdown()

	target := httptest.NewServer(backend.Handler(backend.NewStore()))
	defer target.Close()

	if _, err := manager.CreateQuickCheck(QuickCheckRequest{BaseURL: target.URL}, "same-ip", "ua"); err != nil {
		t.Fatalf("first quick check: %v", err)
	}
	if _, err := manager.CreateQuickCheck(QuickCheckRequest{BaseURL: target.URL}, "same-ip", "ua"); err == nil {
		t.Fatalf("second quick check from the same ip should be rate limited")
	}

	var sawReject bool
	for _, event := range store.ListAudit(10) {
		if event.Action == "quick_check.reject" && event.Result == "rate_limited" {
			sawReject = true
		}
	}
	if !sawReject {
		t.Fatalf("rate limit rejection should be audited")
	}
}
