package service

import (
	"context"
	"fmt"

	"busybee/internal/logger"
	"busybee/internal/repository"
	"busybee/internal/task"
)

// TaskService holds the rules both transports share: not-found detection
// for reads, updates and deletes, and returning the task an update produced.
type TaskService struct {
	repository task.Repository
	log        logger.Logger
}

func NewTaskService(repo task.Repository, log logger.Logger) *TaskService {
	return &TaskService{
		repository: repo,
		log:        log,
	}
}

func (s *TaskService) GetAllTasks(ctx context.Context, completed bool) ([]task.Task, error) {
	log := logger.FromContext(ctx).With("where", "service")
	log.Debug("service: getting all tasks", "completed", completed)

	tasks, err := s.repository.GetAll(ctx, completed)
	if err != nil {
		return nil, fmt.Errorf("service: error getting all tasks: %w", err)
	}
	log.Debug("service: tasks retrieved from repository", "count", len(tasks))
	return tasks, nil
}

func (s *TaskService) GetTaskByID(ctx context.Context, id int64) (task.Task, error) {
	log := logger.FromContext(ctx).With("where", "service")
	log.Debug("service: getting task by id", "id", id)

	t, ok, err := s.repository.GetByID(ctx, id)
	if err != nil {
		return task.Task{}, fmt.Errorf("service: error getting task: %w", err)
	}
	if !ok {
		return task.Task{}, repository.ErrNotFound
	}
	log.Debug("service: task retrieved from repository", "id", t.ID)
	return t, nil
}

func (s *TaskService) CreateTask(ctx context.Context, payload task.CreateTask) error {
	log := logger.FromContext(ctx).With("where", "service")
	log.Debug("service: creating task", "title", payload.Title)

	if err := s.repository.Create(ctx, payload); err != nil {
		return fmt.Errorf("service: error creating task: %w", err)
	}

	log.Debug("service: task created successfully", "title", payload.Title)
	return nil
}

// UpdateTask merges patch onto the stored task and returns the result.
func (s *TaskService) UpdateTask(ctx context.Context, id int64, patch task.UpdateTask) (task.Task, error) {
	log := logger.FromContext(ctx).With("where", "service")
	log.Debug("service: updating task", "id", id)

	if err := s.repository.Update(ctx, id, patch); err != nil {
		return task.Task{}, fmt.Errorf("service: error updating task: %w", err)
	}

	updated, err := s.GetTaskByID(ctx, id)
	if err != nil {
		return task.Task{}, err
	}
	log.Debug("service: task updated successfully", "id", id)
	return updated, nil
}

// DeleteTask checks existence first so that both transports report an
// unknown id as not found.
func (s *TaskService) DeleteTask(ctx context.Context, id int64) error {
	log := logger.FromContext(ctx).With("where", "service")
	log.Debug("service: deleting task", "id", id)

	if _, err := s.GetTaskByID(ctx, id); err != nil {
		return err
	}
	if err := s.repository.Delete(ctx, id); err != nil {
		return fmt.Errorf("service: error deleting task: %w", err)
	}

	log.Debug("service: task deleted successfully", "id", id)
	return nil
}
