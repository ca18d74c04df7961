package check

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"todocheck/internal/todoapi"
)

// EmitFunc receives a snapshot of an outcome each time it changes state:
// once when the check enters running, once when it reaches a terminal state.
type EmitFunc func(Outcome)

// Run executes the checks in order against the client's base URL,
// short-circuiting on the first failure. Checks behind a failure are left
// pending. Run issues at most one request at a time and is not reentrant;
// callers must not start a second run while one is active.
func Run(ctx context.Context, client *todoapi.Client, specs []Spec, emit EmitFunc) Report {
	if specs == nil {
		specs = Specs()
	}
	if emit == nil {
		emit = func(Outcome) {}
	}

	outcomes := make([]Outcome, len(specs))
	for i, spec := range specs {
		outcomes[i] = newOutcome(spec)
	}

	score := 0
	for i, spec := range specs {
		outcomes[i].State = StateRunning
		emit(outcomes[i])

		start := time.Now()
		outcome := runSpec(ctx, client, spec)
		outcome.DurationMS = time.Since(start).Milliseconds()
		outcomes[i] = outcome
		emit(outcome)

		if !outcome.Passed {
			break
		}
		score++
	}

	return Report{
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		BaseURL:     client.BaseURL(),
		Outcomes:    outcomes,
		Score:       score,
		Total:       len(specs),
	}
}

func newOutcome(spec Spec) Outcome {
	return Outcome{
		Name:                spec.Name,
		Method:              spec.Method,
		ExpectedStatus:      spec.ExpectStatus,
		ExpectedContentType: spec.ExpectContentType,
		State:               StatePending,
	}
}

func runSpec(ctx context.Context, client *todoapi.Client, spec Spec) Outcome {
	outcome := newOutcome(spec)
	outcome.State = StateRunning

	first := executeLeg(ctx, client, legRequest{
		method:            spec.Method,
		path:              spec.Path,
		body:              spec.RequestBody,
		expectStatus:      spec.ExpectStatus,
		expectContentType: spec.ExpectContentType,
		validate:          spec.Validate,
	})
	outcome.URLs = append(outcome.URLs, first.url)
	outcome.ObservedStatus = first.status
	outcome.ObservedContentType = first.contentType

	if !spec.Sequential {
		outcome.Payload = first.payload
		finalize(&outcome, first.reason)
		return outcome
	}

	outcome.CreatePayload = first.payload
	if first.reason != "" {
		finalize(&outcome, first.reason)
		return outcome
	}

	// The create leg passed its validator, so a numeric id is present.
	fields, err := todoFields(first.payload)
	if err != nil {
		finalize(&outcome, "create response lacks a usable id: "+err.Error())
		return outcome
	}
	id := int(fields.ID)

	readPath := fmt.Sprintf("/todos/%d", id)
	readURL := client.URL(readPath)
	second := executeLeg(ctx, client, legRequest{
		method:            http.MethodGet,
		path:              readPath,
		expectStatus:      http.StatusOK,
		expectContentType: "application/json",
		validate:          validateReadBack(id, spec.RequestBody, readURL),
	})
	outcome.URLs = append(outcome.URLs, second.url)
	outcome.ObservedStatus = second.status
	outcome.ObservedContentType = second.contentType
	outcome.ReadPayload = second.payload
	finalize(&outcome, second.reason)
	return outcome
}

// validateReadBack requires the read leg to match the create exactly: the id
// just returned and the title/completed that were posted.
func validateReadBack(id int, request *todoapi.CreateTodoRequest, readURL string) Validator {
	return func(body any, _ *todoapi.CreateTodoRequest) error {
		fields, err := todoFields(body)
		if err != nil {
			return fmt.Errorf("read back from %s: %s", readURL, err)
		}
		if fields.ID != float64(id) {
			return fmt.Errorf("read back from %s: id mismatch: expected %d, got %v", readURL, id, fields.ID)
		}
		if fields.Title != request.Title {
			return fmt.Errorf("read back from %s: title mismatch: expected %q, got %q", readURL, request.Title, fields.Title)
		}
		if fields.Completed != request.Completed {
			return fmt.Errorf("read back from %s: completed mismatch: expected %t, got %t", readURL, request.Completed, fields.Completed)
		}
		return nil
	}
}

func finalize(outcome *Outcome, reason string) {
	if reason == "" {
		outcome.Passed = true
		outcome.State = StatePassed
		return
	}
	outcome.Passed = false
	outcome.Reason = reason
	outcome.State = StateFailed
}

type legRequest struct {
	method            string
	path              string
	body              *todoapi.CreateTodoRequest
	expectStatus      int
	expectContentType string
	validate          Validator
}

type legResult struct {
	url         string
	status      int
	contentType string
	payload     any
	reason      string
}

// executeLeg performs one HTTP exchange and evaluates its conditions in
// fixed order: transport, JSON parseability, status, content type,
// validator. The first failing condition sets the reason.
func executeLeg(ctx context.Context, client *todoapi.Client, leg legRequest) legResult {
	result := legResult{url: client.URL(leg.path)}

	var raw *todoapi.RawResponse
	var err error
	if leg.method == http.MethodPost {
		raw, err = client.PostJSON(ctx, leg.path, leg.body)
	} else {
		raw, err = client.Get(ctx, leg.path)
	}
	if err != nil {
		if transportErr, ok := todoapi.IsTransportError(err); ok && transportErr.Kind == todoapi.TransportNetwork {
			result.reason = "network error (no response from target): " + transportErr.Err.Error()
		} else {
			result.reason = "request failed: " + err.Error()
		}
		return result
	}

	result.status = raw.StatusCode
	result.contentType = raw.ContentType()
	wantJSON := todoapi.ContentTypeIsJSON(leg.expectContentType)

	// A body is only parsed when the header claims JSON; otherwise the raw
	// text is captured for diagnostics.
	parsed := false
	if raw.IsJSON() {
		var payload any
		if unmarshalErr := json.Unmarshal(raw.Body, &payload); unmarshalErr != nil {
			result.payload = string(raw.Body)
			if wantJSON {
				result.reason = "response body is not valid JSON: " + unmarshalErr.Error()
				return result
			}
		} else {
			result.payload = payload
			parsed = true
		}
	} else {
		result.payload = string(raw.Body)
	}

	if raw.StatusCode != leg.expectStatus {
		result.reason = fmt.Sprintf("status mismatch: expected %d, got %d", leg.expectStatus, raw.StatusCode)
		return result
	}
	if leg.expectContentType != "" && !strings.Contains(result.contentType, leg.expectContentType) {
		result.reason = fmt.Sprintf("content-type mismatch: expected substring %q, got %q", leg.expectContentType, result.contentType)
		return result
	}
	if leg.validate != nil {
		if wantJSON && !parsed {
			result.reason = "response body is not valid JSON"
			return result
		}
		if validateErr := leg.validate(result.payload, leg.body); validateErr != nil {
			result.reason = validateErr.Error()
			return result
		}
	}
	return result
}
