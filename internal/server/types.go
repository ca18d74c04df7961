package server

import (
	"time"

	"todocheck/internal/check"
)

type Principal struct {
	Subject  string `json:"subject"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// RunRequest is an admin-created conformance run against a target base URL.
type RunRequest struct {
	BaseURL    string `json:"base_url"`
	TimeoutSec int    `json:"timeout_sec,omitempty"`
}

// QuickCheckRequest is the public, browser-facing way to start a run: just a
// base URL, everything else defaulted server-side.
type QuickCheckRequest struct {
	BaseURL string `json:"base_url"`
}

type RunMeta struct {
	RunID       string        `json:"run_id"`
	Status      string        `json:"status"`
	CreatorType string        `json:"creator_type"`
	CreatorSub  string        `json:"creator_sub,omitempty"`
	Source      string        `json:"source"`
	Request     RunRequest    `json:"request"`
	StartedAt   string        `json:"started_at,omitempty"`
	FinishedAt  string        `json:"finished_at,omitempty"`
	CreatedAt   string        `json:"created_at"`
	Error       string        `json:"error,omitempty"`
	Report      *check.Report `json:"report,omitempty"`
	Score       int           `json:"score"`
	Total       int           `json:"total"`
}

type AuditEvent struct {
	Timestamp string `json:"timestamp"`
	RunID     string `json:"run_id,omitempty"`
	ActorType string `json:"actor_type"`
	ActorSub  string `json:"actor_sub,omitempty"`
	Action    string `json:"action"`
	Result    string `json:"result"`
	IPHash    string `json:"ip_hash,omitempty"`
	UAHash    string `json:"ua_hash,omitempty"`
	Detail    string `json:"detail,omitempty"`
}

// RunEvent is one live-progress entry: a check entering running, a check
// reaching a terminal state, or a run lifecycle transition. Clients follow
// the stream by sequence number.
type RunEvent struct {
	Seq       int64          `json:"seq"`
	Timestamp string         `json:"timestamp"`
	Stage     string         `json:"stage"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
}

type MetricsOverview struct {
	GeneratedAt     string  `json:"generated_at"`
	TotalRuns       int     `json:"total_runs"`
	RunningRuns     int     `json:"running_runs"`
	PassRuns        int     `json:"pass_runs"`
	FailRuns        int     `json:"fail_runs"`
	AverageDuration int64   `json:"average_duration_ms"`
	AverageScore    float64 `json:"average_score"`
}

func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339)
}
