package server

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"todocheck/internal/check"
	"todocheck/internal/todoapi"
)

// RunManager queues conformance runs and executes them on a bounded worker
// pool. Each run is internally sequential; the pool only bounds how many
// independent runs may be in flight.
type RunManager struct {
	cfg        ServerConfig
	store      Store
	obs        *Observability
	queue      chan queuedRun
	wg         sync.WaitGroup
	quickLimit *ipRateLimiter
}

type RunnerService interface {
	CreateAdminRun(request RunRequest, principal Principal, source string) (RunMeta, error)
	CreateQuickCheck(request QuickCheckRequest, ipHash, uaHash string) (RunMeta, error)
}

type queuedRun struct {
	RunID       string
	Request     RunRequest
	Creator     Principal
	CreatorType string
	Source      string
}

func NewRunManager(cfg ServerConfig, store Store, obs *Observability) *RunManager {
	maxParallel := cfg.Runs.MaxParallelRuns
	if maxParallel <= 0 {
		maxParallel = 2
	}
	manager := &RunManager{
		cfg:        cfg,
		store:      store,
		obs:        obs,
		queue:      make(chan queuedRun, maxParallel*8),
		quickLimit: newIPRateLimiter(cfg.Limits.QuickCheckRPM),
	}
	for i := 0; i < maxParallel; i++ {
		manager.wg.Add(1)
		go func() {
			defer manager.wg.Done()
			manager.worker()
		}()
	}
	return manager
}

func (m *RunManager) Shutdown() {
	close(m.queue)
	m.wg.Wait()
}

func (m *RunManager) CreateAdminRun(request RunRequest, principal Principal, source string) (RunMeta, error) {
	request.BaseURL = strings.TrimSpace(request.BaseURL)
	if request.BaseURL == "" {
		return RunMeta{}, errors.New("base_url is required")
	}
	if request.TimeoutSec <= 0 {
		request.TimeoutSec = m.cfg.Runs.DefaultTimeoutSec
	}
	runID, err := randomID("run")
	if err != nil {
		return RunMeta{}, err
	}
	meta := RunMeta{
		RunID:       runID,
		Status:      "queued",
		Source:      source,
		CreatorType: "admin",
		CreatorSub:  principal.Subject,
		Request:     request,
		Total:       len(check.Specs()),
		CreatedAt:   nowRFC3339(),
	}
	if err := m.store.CreateRun(meta); err != nil {
		return RunMeta{}, err
	}
	_, _ = m.store.AppendRunEvent(runID, "queue", "run queued", map[string]any{
		"source": source,
	})
	_ = m.store.AppendAudit(AuditEvent{
		Timestamp: nowRFC3339(),
		RunID:     runID,
		ActorType: "admin",
		ActorSub:  principal.Subject,
		Action:    "run.create",
		Result:    "queued",
		Detail:    request.BaseURL,
	})
	m.queue <- queuedRun{
		RunID:       runID,
		Request:     request,
		Creator:     principal,
		CreatorType: "admin",
		Source:      source,
	}
	return meta, nil
}

func (m *RunManager) CreateQuickCheck(request QuickCheckRequest, ipHash, uaHash string) (RunMeta, error) {
	if !m.quickLimit.Allow(ipHash) {
		if m.obs != nil {
			m.obs.MarkQuickBlocked(context.Background(), "quick_check_rate_limit")
		}
		_ = m.store.AppendAudit(AuditEvent{
			Timestamp: nowRFC3339(),
			ActorType: "user",
			Action:    "quick_check.reject",
			Result:    "rate_limited",
			IPHash:    ipHash,
			UAHash:    uaHash,
		})
		return RunMeta{}, errors.New("quick check rate limit reached")
	}
	baseURL := strings.TrimSpace(request.BaseURL)
	if baseURL == "" {
		return RunMeta{}, errors.New("base_url is required")
	}
	runRequest := RunRequest{
		BaseURL:    baseURL,
		TimeoutSec: m.cfg.Runs.DefaultTimeoutSec,
	}
	runID, err := randomID("run")
	if err != nil {
		return RunMeta{}, err
	}
	meta := RunMeta{
		RunID:       runID,
		Status:      "queued",
		Source:      "user.quick_check",
		CreatorType: "user",
		Request:     runRequest,
		Total:       len(check.Specs()),
		CreatedAt:   nowRFC3339(),
	}
	if err := m.store.CreateRun(meta); err != nil {
		return RunMeta{}, err
	}
	_, _ = m.store.AppendRunEvent(runID, "queue", "quick check queued", map[string]any{
		"base_url": baseURL,
	})
	_ = m.store.AppendAudit(AuditEvent{
		Timestamp: nowRFC3339(),
		RunID:     runID,
		ActorType: "user",
		Action:    "quick_check.create",
		Result:    "queued",
		IPHash:    ipHash,
		UAHash:    uaHash,
		Detail:    baseURL,
	})
	m.queue <- queuedRun{
		RunID:       runID,
		Request:     runRequest,
		CreatorType: "user",
		Source:      "user.quick_check",
	}
	return meta, nil
}

func (m *RunManager) worker() {
	for queued := range m.queue {
		m.executeRun(queued)
	}
}

func (m *RunManager) executeRun(queued queuedRun) {
	startedAt := nowRFC3339()
	_, _ = m.store.UpdateRun(queued.RunID, func(meta *RunMeta) {
		meta.Status = "running"
		meta.StartedAt = startedAt
	})
	_, _ = m.store.AppendRunEvent(queued.RunID, "start", "run started", map[string]any{
		"base_url": queued.Request.BaseURL,
	})

	timeout := time.Duration(queued.Request.TimeoutSec) * time.Second
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	client := todoapi.NewClient(todoapi.Config{
		BaseURL: queued.Request.BaseURL,
		Timeout: timeout,
	})
	report := check.Run(ctx, client, check.Specs(), func(outcome check.Outcome) {
		m.publishOutcome(ctx, queued.RunID, outcome)
	})

	status := "fail"
	if report.Passed() {
		status = "pass"
	}
	_, _ = m.store.UpdateRun(queued.RunID, func(meta *RunMeta) {
		meta.Status = status
		meta.FinishedAt = nowRFC3339()
		meta.Report = &report
		meta.Score = report.Score
		meta.Total = report.Total
		if status == "fail" {
			meta.Error = firstFailureReason(report)
		}
	})
	_, _ = m.store.AppendRunEvent(queued.RunID, "completed", "run completed", map[string]any{
		"status": status,
		"score":  report.Score,
		"total":  report.Total,
	})
	_ = m.store.AppendAudit(AuditEvent{
		Timestamp: nowRFC3339(),
		RunID:     queued.RunID,
		ActorType: queued.CreatorType,
		ActorSub:  queued.Creator.Subject,
		Action:    "run.completed",
		Result:    status,
		Detail:    fmt.Sprintf("score=%d/%d base_url=%s", report.Score, report.Total, queued.Request.BaseURL),
	})
	if m.obs != nil {
		m.obs.MarkRun(ctx, status)
	}
}

func (m *RunManager) publishOutcome(ctx context.Context, runID string, outcome check.Outcome) {
	switch outcome.State {
	case check.StateRunning:
		_, _ = m.store.AppendRunEvent(runID, "check_start", "check started", map[string]any{
			"check": outcome.Name,
		})
	case check.StatePassed, check.StateFailed:
		data := map[string]any{
			"check":       outcome.Name,
			"state":       string(outcome.State),
			"passed":      outcome.Passed,
			"duration_ms": outcome.DurationMS,
		}
		if outcome.Reason != "" {
			data["reason"] = outcome.Reason
		}
		message := "check passed"
		if !outcome.Passed {
			message = "check failed"
		}
		_, _ = m.store.AppendRunEvent(runID, "check_result", message, data)
		if m.obs != nil {
			m.obs.MarkCheck(ctx, outcome.Name, outcome.DurationMS)
			if !outcome.Passed {
				m.obs.MarkCheckFailed(ctx, outcome.Name)
			}
		}
	}
}

func firstFailureReason(report check.Report) string {
	for _, outcome := range report.Outcomes {
		if outcome.State == check.StateFailed {
			return fmt.Sprintf("%s: %s", outcome.Name, outcome.Reason)
		}
	}
	return ""
}

func randomID(prefix string) (string, error) {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return prefix + "_" + hex.EncodeToString(b), nil
}

type ipRateLimiter struct {
	mu      sync.Mutex
	rpm     int
	records map[string][]time.Time
}

func newIPRateLimiter(rpm int) *ipRateLimiter {
	if rpm <= 0 {
		rpm = 6
	}
	return &ipRateLimiter{
		rpm:     rpm,
		records: map[string][]time.Time{},
	}
}

func (l *ipRateLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if strings.TrimSpace(key) == "" {
		key = "unknown"
	}
	now := time.Now()
	cutoff := now.Add(-1 * time.Minute)
	items := filterRecentTime(l.records[key], cutoff)
	if len(items) >= l.rpm {
		l.records[key] = items
		return false
	}
	items = append(items, now)
	l.records[key] = items
	return true
}

func filterRecentTime(items []time.Time, cutoff time.Time) []time.Time {
	out := items[:0]
	for _, item := range items {
		if item.After(cutoff) {
			out = append(out, item)
		}
	}
	return out
}

func hashString(input string) string {
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])[:16]
}
