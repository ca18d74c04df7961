// Package backend is a reference implementation of the ToDo contract the
// checker verifies: an in-memory store behind GET /todos, GET /todos/{id},
// and POST /todos. It exists so the checker has a known-conformant target.
package backend

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"todocheck/internal/todoapi"
)

type Store struct {
	mu     sync.Mutex
	todos  []todoapi.Todo
	nextID int
}

// NewStore returns a store seeded with two example todos, so id=1 exists
// from the first request on.
func NewStore() *Store {
	store := &Store{nextID: 1}
	store.append("Learn Go", false)
	store.append("Build an API tester", true)
	return store
}

func (s *Store) append(title string, completed bool) todoapi.Todo {
	todo := todoapi.Todo{ID: s.nextID, Title: title, Completed: completed}
	s.todos = append(s.todos, todo)
	s.nextID++
	return todo
}

func (s *Store) List() []todoapi.Todo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]todoapi.Todo, len(s.todos))
	copy(out, s.todos)
	return out
}

func (s *Store) Get(id int) (todoapi.Todo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, todo := range s.todos {
		if todo.ID == id {
			return todo, true
		}
	}
	return todoapi.Todo{}, false
}

func (s *Store) Create(title string, completed bool) todoapi.Todo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.append(title, completed)
}

// Handler serves the ToDo API with allow-all CORS, matching how the
// original backend is meant to be reachable from a browser page.
func Handler(store *Store) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /todos", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, store.List())
	})
	mux.HandleFunc("GET /todos/{id}", func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.Atoi(strings.TrimSpace(r.PathValue("id")))
		if err != nil {
			writeJSON(w, http.StatusNotFound, todoapi.ErrorDetail{Detail: "Todo not found"})
			return
		}
		todo, ok := store.Get(id)
		if !ok {
			writeJSON(w, http.StatusNotFound, todoapi.ErrorDetail{Detail: "Todo not found"})
			return
		}
		writeJSON(w, http.StatusOK, todo)
	})
	mux.HandleFunc("POST /todos", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Title     *string `json:"title"`
			Completed bool    `json:"completed"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, todoapi.ErrorDetail{Detail: "invalid JSON body"})
			return
		}
		if body.Title == nil {
			writeJSON(w, http.StatusBadRequest, todoapi.ErrorDetail{Detail: "title is required"})
			return
		}
		todo := store.Create(*body.Title, body.Completed)
		writeJSON(w, http.StatusCreated, todo)
	})
	return withCORS(mux)
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	data, err := json.Marshal(value)
	if err != nil {
		http.Error(w, "json encode failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
