package todoapi

// Todo is the resource shape the target API is expected to serve.
type Todo struct {
	ID        int    `json:"id"`
	Title     string `json:"title"`
	Completed bool   `json:"completed"`
}

// CreateTodoRequest is the JSON body sent by create checks.
type CreateTodoRequest struct {
	Title     string `json:"title"`
	Completed bool   `json:"completed"`
}

// ErrorDetail is the error envelope the reference backend returns for 404s.
type ErrorDetail struct {
	Detail string `json:"detail"`
}
