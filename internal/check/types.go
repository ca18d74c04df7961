package check

import "todocheck/internal/todoapi"

// State tracks an outcome through its lifecycle. There is no retry or
// cancelled state; a check either runs to a terminal state or stays pending
// behind an earlier failure.
type State string

const (
	StatePending State = "pending"
	StateRunning State = "running"
	StatePassed  State = "passed"
	StateFailed  State = "failed"
)

// Validator inspects a parsed response body. For create checks it also
// receives the request body that was sent, so echoes can be verified.
type Validator func(body any, request *todoapi.CreateTodoRequest) error

// Spec describes one conformance check. Specs are declared once in Specs()
// and never mutated.
type Spec struct {
	Name              string
	Method            string
	Path              string
	ExpectStatus      int
	ExpectContentType string // substring match against Content-Type, empty = no expectation
	RequestBody       *todoapi.CreateTodoRequest
	Validate          Validator
	Sequential        bool
}

// Outcome is the recorded result of running one check.
type Outcome struct {
	Name                string   `json:"name"`
	Method              string   `json:"method"`
	URLs                []string `json:"urls,omitempty"`
	ExpectedStatus      int      `json:"expected_status"`
	ObservedStatus      int      `json:"observed_status,omitempty"`
	ExpectedContentType string   `json:"expected_content_type,omitempty"`
	ObservedContentType string   `json:"observed_content_type,omitempty"`

	// Payload holds the parsed (or raw text) response of a single-request
	// check. Sequential checks record both legs so a failing read still
	// carries the create response for diagnostics.
	Payload       any `json:"payload,omitempty"`
	CreatePayload any `json:"create_payload,omitempty"`
	ReadPayload   any `json:"read_payload,omitempty"`

	Passed     bool   `json:"passed"`
	Reason     string `json:"reason,omitempty"`
	State      State  `json:"state"`
	DurationMS int64  `json:"duration_ms"`
}

// Report is the result of one run: outcomes in declaration order plus the
// score. Checks behind the first failure remain pending and do not count
// against the score.
type Report struct {
	GeneratedAt string    `json:"generated_at"`
	BaseURL     string    `json:"base_url"`
	Outcomes    []Outcome `json:"outcomes"`
	Score       int       `json:"score"`
	Total       int       `json:"total"`
}

// Passed reports whether every defined check passed.
func (r Report) Passed() bool {
	return r.Score == r.Total
}
