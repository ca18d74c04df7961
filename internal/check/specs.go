package check

import (
	"fmt"
	"net/http"

	"todocheck/internal/todoapi"
)

// Specs returns the fixed conformance check table in execution order.
func Specs() []Spec {
	return []Spec{
		{
			Name:              "list",
			Method:            http.MethodGet,
			Path:              "/todos",
			ExpectStatus:      http.StatusOK,
			ExpectContentType: "application/json",
			Validate:          validateList,
		},
		{
			Name:              "get-existing",
			Method:            http.MethodGet,
			Path:              "/todos/1",
			ExpectStatus:      http.StatusOK,
			ExpectContentType: "application/json",
			Validate:          validateKnownTodo(1),
		},
		{
			// Only the status code is part of the contract here; many
			// backends return HTML or plain text for 404s.
			Name:         "get-missing",
			Method:       http.MethodGet,
			Path:         "/todos/99999",
			ExpectStatus: http.StatusNotFound,
		},
		{
			Name:              "create",
			Method:            http.MethodPost,
			Path:              "/todos",
			ExpectStatus:      http.StatusCreated,
			ExpectContentType: "application/json",
			RequestBody:       &todoapi.CreateTodoRequest{Title: "Test Todo", Completed: false},
			Validate:          validateCreateEcho,
		},
		{
			Name:              "create-then-read",
			Method:            http.MethodPost,
			Path:              "/todos",
			ExpectStatus:      http.StatusCreated,
			ExpectContentType: "application/json",
			RequestBody:       &todoapi.CreateTodoRequest{Title: "Validate Me Todo", Completed: true},
			Validate:          validateCreateEcho,
			Sequential:        true,
		},
	}
}

func validateList(body any, _ *todoapi.CreateTodoRequest) error {
	if _, ok := body.([]any); !ok {
		return fmt.Errorf("expected a JSON array, got %s", describeJSON(body))
	}
	return nil
}

// validateKnownTodo checks the object shape plus the exact id the check
// requested, so a backend returning a different record still fails.
func validateKnownTodo(wantID int) Validator {
	return func(body any, _ *todoapi.CreateTodoRequest) error {
		fields, err := todoFields(body)
		if err != nil {
			return err
		}
		if fields.ID != float64(wantID) {
			return fmt.Errorf("id mismatch: expected %d, got %v", wantID, fields.ID)
		}
		return nil
	}
}

func validateCreateEcho(body any, request *todoapi.CreateTodoRequest) error {
	fields, err := todoFields(body)
	if err != nil {
		return err
	}
	if request == nil {
		return nil
	}
	if fields.Title != request.Title {
		return fmt.Errorf("title mismatch: expected %q, got %q", request.Title, fields.Title)
	}
	if fields.Completed != request.Completed {
		return fmt.Errorf("completed mismatch: expected %t, got %t", request.Completed, fields.Completed)
	}
	return nil
}

type todoShape struct {
	ID        float64
	Title     string
	Completed bool
}

// todoFields enforces the implicit ToDo contract: an object with a numeric
// id, string title, and boolean completed. JSON numbers arrive as float64.
func todoFields(body any) (todoShape, error) {
	object, ok := body.(map[string]any)
	if !ok {
		return todoShape{}, fmt.Errorf("expected a JSON object, got %s", describeJSON(body))
	}
	idValue, ok := object["id"]
	if !ok {
		return todoShape{}, fmt.Errorf("missing field %q", "id")
	}
	id, ok := idValue.(float64)
	if !ok {
		return todoShape{}, fmt.Errorf("field %q is not numeric: %v", "id", idValue)
	}
	titleValue, ok := object["title"]
	if !ok {
		return todoShape{}, fmt.Errorf("missing field %q", "title")
	}
	title, ok := titleValue.(string)
	if !ok {
		return todoShape{}, fmt.Errorf("field %q is not a string: %v", "title", titleValue)
	}
	completedValue, ok := object["completed"]
	if !ok {
		return todoShape{}, fmt.Errorf("missing field %q", "completed")
	}
	completed, ok := completedValue.(bool)
	if !ok {
		return todoShape{}, fmt.Errorf("field %q is not a boolean: %v", "completed", completedValue)
	}
	return todoShape{ID: id, Title: title, Completed: completed}, nil
}

func describeJSON(value any) string {
	switch value.(type) {
	case nil:
		return "null"
	case map[string]any:
		return "an object"
	case []any:
		return "an array"
	case string:
		return "a string"
	case float64:
		return "a number"
	case bool:
		return "a boolean"
	default:
		return fmt.Sprintf("%T", value)
	}
}
