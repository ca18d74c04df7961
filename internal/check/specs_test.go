package check

import (
	"strings"
	"testing"

	"todocheck/internal/todoapi"
)

func TestValidateListRejectsNonArray(t *testing.T) {
	cases := []struct {
		name string
		body any
	}{
		{"object", map[string]any{"todos": []any{}}},
		{"string", "not a list"},
		{"null", nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := validateList(tc.body, nil); err == nil {
				t.Fatalf("expected error for %s body", tc.name)
			}
		})
	}
	if err := validateList([]any{}, nil); err != nil {
		t.Fatalf("empty array should be valid: %v", err)
	}
}

func TestValidateKnownTodoChecksID(t *testing.T) {
	valid := map[string]any{"id": float64(1), "title": "one", "completed": true}
	if err := validateKnownTodo(1)(valid, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wrong := map[string]any{"id": float64(2), "title": "two", "completed": false}
	err := validateKnownTodo(1)(wrong, nil)
	if err == nil || !strings.Contains(err.Error(), "id mismatch") {
		t.Fatalf("expected id mismatch error, got %v", err)
	}
}

func TestTodoFieldsEnforcesTypes(t *testing.T) {
	cases := []struct {
		name string
		body any
		want string
	}{
		{"missing id", map[string]any{"title": "x", "completed": true}, `missing field "id"`},
		{"string id", map[string]any{"id": "1", "title": "x", "completed": true}, "not numeric"},
		{"missing title", map[string]any{"id": float64(1), "completed": true}, `missing field "title"`},
		{"numeric title", map[string]any{"id": float64(1), "title": float64(3), "completed": true}, "not a string"},
		{"missing completed", map[string]any{"id": float64(1), "title": "x"}, `missing field "completed"`},
		{"string completed", map[string]any{"id": float64(1), "title": "x", "completed": "yes"}, "not a boolean"},
		{"array body", []any{}, "expected a JSON object"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := todoFields(tc.body)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestValidateCreateEchoComparesRequest(t *testing.T) {
	request := &todoapi.CreateTodoRequest{Title: "Test Todo", Completed: false}

	echo := map[string]any{"id": float64(10), "title": "Test Todo", "completed": false}
	if err := validateCreateEcho(echo, request); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	badTitle := map[string]any{"id": float64(10), "title": "Other", "completed": false}
	if err := validateCreateEcho(badTitle, request); err == nil || !strings.Contains(err.Error(), "title mismatch") {
		t.Fatalf("expected title mismatch, got %v", err)
	}

	badCompleted := map[string]any{"id": float64(10), "title": "Test Todo", "completed": true}
	if err := validateCreateEcho(badCompleted, request); err == nil || !strings.Contains(err.Error(), "completed mismatch") {
		t.Fatalf("expected completed mismatch, got %v", err)
	}
}

func TestSpecsTableShape(t *testing.T) {
	specs := Specs()
	if len(specs) != 5 {
		t.Fatalf("expected 5 checks, got %d", len(specs))
	}
	for i, spec := range specs {
		if spec.Name == "" || spec.Method == "" || spec.Path == "" || spec.ExpectStatus == 0 {
			t.Fatalf("spec %d is incomplete: %+v", i, spec)
		}
	}
	if specs[2].Validate != nil || specs[2].ExpectContentType != "" {
		t.Fatalf("the missing-todo check should only assert the status code")
	}
	last := specs[len(specs)-1]
	if !last.Sequential || last.RequestBody == nil {
		t.Fatalf("the final check must be the sequential create-then-read")
	}
}
