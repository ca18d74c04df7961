package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"todocheck/internal/check"
	"todocheck/internal/todoapi"
)

func TestListReturnsSeededTodos(t *testing.T) {
	server := httptest.NewServer(Handler(NewStore()))
	defer server.Close()

	resp, err := http.Get(server.URL + "/todos")
	if err != nil {
		t.Fatalf("GET /todos: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "application/json") {
		t.Fatalf("content type = %q", ct)
	}
	var todos []todoapi.Todo
	if err := json.NewDecoder(resp.Body).Decode(&todos); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(todos) != 2 {
		t.Fatalf("expected 2 seeded todos, got %d", len(todos))
	}
	if todos[0].ID != 1 {
		t.Fatalf("first todo id = %d, expected 1", todos[0].ID)
	}
}

func TestGetByID(t *testing.T) {
	server := httptest.NewServer(Handler(NewStore()))
	defer server.Close()

	resp, err := http.Get(server.URL + "/todos/1")
	if err != nil {
		t.Fatalf("GET /todos/1: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var todo todoapi.Todo
	if err := json.NewDecoder(resp.Body).Decode(&todo); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if todo.ID != 1 || todo.Title == "" {
		t.Fatalf("unexpected todo: %+v", todo)
	}
}

func TestGetMissingReturns404Detail(t *testing.T) {
	server := httptest.NewServer(Handler(NewStore()))
	defer server.Close()

	for _, path := range []string{"/todos/99999", "/todos/not-a-number"} {
		resp, err := http.Get(server.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		var detail todoapi.ErrorDetail
		err = json.NewDecoder(resp.Body).Decode(&detail)
		resp.Body.Close()
		if err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
		if resp.StatusCode != http.StatusNotFound {
			t.Fatalf("GET %s status = %d", path, resp.StatusCode)
		}
		if detail.Detail != "Todo not found" {
			t.Fatalf("GET %s detail = %q", path, detail.Detail)
		}
	}
}

func TestCreateAssignsIDAndPersists(t *testing.T) {
	server := httptest.NewServer(Handler(NewStore()))
	defer server.Close()

	resp, err := http.Post(server.URL+"/todos", "application/json",
		strings.NewReader(`{"title": "write tests", "completed": true}`))
	if err != nil {
		t.Fatalf("POST /todos: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var created todoapi.Todo
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.ID != 3 || created.Title != "write tests" || !created.Completed {
		t.Fatalf("unexpected created todo: %+v", created)
	}

	readResp, err := http.Get(server.URL + "/todos/3")
	if err != nil {
		t.Fatalf("GET /todos/3: %v", err)
	}
	defer readResp.Body.Close()
	var read todoapi.Todo
	if err := json.NewDecoder(readResp.Body).Decode(&read); err != nil {
		t.Fatalf("decode read: %v", err)
	}
	if read != created {
		t.Fatalf("read back %+v, expected %+v", read, created)
	}
}

func TestCreateRejectsBadInput(t *testing.T) {
	server := httptest.NewServer(Handler(NewStore()))
	defer server.Close()

	cases := []struct {
		name string
		body string
	}{
		{"invalid JSON", `{"title":`},
		{"missing title", `{"completed": true}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := http.Post(server.URL+"/todos", "application/json", strings.NewReader(tc.body))
			if err != nil {
				t.Fatalf("POST: %v", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("status = %d, expected 400", resp.StatusCode)
			}
		})
	}
}

func TestCORSHeaders(t *testing.T) {
	server := httptest.NewServer(Handler(NewStore()))
	defer server.Close()

	req, _ := http.NewRequest(http.MethodOptions, server.URL+"/todos", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("OPTIONS: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("preflight status = %d", resp.StatusCode)
	}
	if origin := resp.Header.Get("Access-Control-Allow-Origin"); origin != "*" {
		t.Fatalf("allow-origin = %q", origin)
	}
}

// The reference backend must itself score 5/5.
func TestBackendPassesAllChecks(t *testing.T) {
	server := httptest.NewServer(Handler(NewStore()))
	defer server.Close()

	client := todoapi.NewClient(todoapi.Config{BaseURL: server.URL})
	report := check.Run(context.Background(), client, check.Specs(), nil)
	if !report.Passed() {
		for _, outcome := range report.Outcomes {
			if outcome.Reason != "" {
				t.Logf("%s: %s", outcome.Name, outcome.Reason)
			}
		}
		t.Fatalf("reference backend scored %d/%d", report.Score, report.Total)
	}
}
