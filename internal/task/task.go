package task

import "context"

type Task struct {
	ID          int64   `json:"id"`
	Title       string  `json:"title"`
	Description *string `json:"description,omitempty"`
	Completed   bool    `json:"completed"`
}

// CreateTask is a new Task. The id is assigned by storage and a new task
// always starts out not completed.
type CreateTask struct {
	Title       string  `json:"title" validate:"required"`
	Description *string `json:"description,omitempty"`
}

// UpdateTask carries only the fields a caller wants changed; nil means keep.
type UpdateTask struct {
	Title       *string `json:"title,omitempty" validate:"omitnil,min=1"`
	Description *string `json:"description,omitempty"`
	Completed   *bool   `json:"completed,omitempty"`
}

type Repository interface {
	GetAll(ctx context.Context, completed bool) ([]Task, error)
	GetByID(ctx context.Context, id int64) (Task, bool, error)
	Create(ctx context.Context, payload CreateTask) error
	Update(ctx context.Context, id int64, patch UpdateTask) error
	Delete(ctx context.Context, id int64) error
}

type Service interface {
	GetAllTasks(ctx context.Context, completed bool) ([]Task, error)
	GetTaskByID(ctx context.Context, id int64) (Task, error)
	CreateTask(ctx context.Context, payload CreateTask) error
	UpdateTask(ctx context.Context, id int64, patch UpdateTask) (Task, error)
	DeleteTask(ctx context.Context, id int64) error
}
